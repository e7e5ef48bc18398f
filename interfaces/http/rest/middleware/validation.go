package middleware

import (
	"net/http"
	"strings"

	"swiftbase/pkg/common"
)

// maxJSONBody caps JSON request bodies. File uploads go through their own
// endpoint with its own, larger bound.
const maxJSONBody = 10 << 20

const uploadPath = "/api/storage/upload"

var allowedMethods = map[string]bool{
	http.MethodGet: true, http.MethodPost: true, http.MethodPut: true,
	http.MethodPatch: true, http.MethodDelete: true,
	http.MethodOptions: true, http.MethodHead: true,
}

// Validation enforces the method allowlist, the JSON content type on
// body-carrying methods, and the body size cap. The upload endpoint is exempt
// from the latter two; it carries raw bytes under its own limit.
func Validation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !allowedMethods[r.Method] {
			common.RespondErrorCode(w, r, http.StatusMethodNotAllowed,
				"METHOD_NOT_ALLOWED", "method not allowed: "+r.Method)
			return
		}

		if r.URL.Path == uploadPath {
			next.ServeHTTP(w, r)
			return
		}

		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			if !jsonContentType(r) {
				common.RespondErrorCode(w, r, http.StatusUnsupportedMediaType,
					"UNSUPPORTED_MEDIA_TYPE", "content type must be application/json")
				return
			}
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
		next.ServeHTTP(w, r)
	})
}

// jsonContentType accepts application/json with optional parameters. A
// missing content type passes only when the request carries no body.
func jsonContentType(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return r.ContentLength == 0
	}
	return strings.HasPrefix(strings.TrimSpace(strings.ToLower(ct)), "application/json")
}
