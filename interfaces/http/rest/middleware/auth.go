package middleware

import (
	"net/http"
	"strings"

	"swiftbase/application/services"
	"swiftbase/pkg/auth"
	"swiftbase/pkg/common"
	apperrors "swiftbase/pkg/errors"
)

// Authenticate resolves the bearer access token and attaches the principal to
// the request context. A missing header and a malformed one fail identically.
func Authenticate(authsvc *services.AuthService) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			parts := strings.SplitN(header, " ", 2)
			if header == "" || len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				common.RespondError(w, r, apperrors.NewAuthFailure("missing or malformed authorization header"))
				return
			}

			principal, err := authsvc.ValidateAccess(r.Context(), parts[1])
			if err != nil {
				common.RespondError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
		})
	}
}

// RequireAdmin rejects authenticated non-admin principals.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := auth.PrincipalFromContext(r.Context())
		if err != nil {
			common.RespondError(w, r, apperrors.NewAuthFailure(""))
			return
		}
		if !principal.IsAdmin() {
			common.RespondError(w, r, apperrors.NewForbidden("admin access required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
