package middleware

import (
	"net/http"

	"swiftbase/pkg/common"
)

// Versioning advertises the API version on every response and rejects
// requests pinned to a version this server does not speak. Versioning is
// header based; paths carry no version segment.
func Versioning(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("API-Version", common.APIVersion)
		w.Header().Set("API-Supported-Versions", common.APIVersion)

		if requested := r.Header.Get("API-Version"); requested != "" && requested != common.APIVersion {
			common.RespondErrorCode(w, r, http.StatusBadRequest,
				"BAD_REQUEST", "unsupported API version "+requested)
			return
		}
		next.ServeHTTP(w, r)
	})
}
