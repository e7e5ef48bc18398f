package middleware

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"swiftbase/application/services"
	"swiftbase/infrastructure/persistence/sqlite"
	"swiftbase/pkg/auth"
	"swiftbase/pkg/common"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope common.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.False(t, envelope.Success)
	return envelope.Error.Code
}

func TestVersioningAdvertisesAndRejects(t *testing.T) {
	handler := Versioning(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, common.APIVersion, rec.Header().Get("API-Version"))
	assert.Equal(t, common.APIVersion, rec.Header().Get("API-Supported-Versions"))

	req := httptest.NewRequest(http.MethodGet, "/api", nil)
	req.Header.Set("API-Version", common.APIVersion)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api", nil)
	req.Header.Set("API-Version", "2.0")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "BAD_REQUEST", errorCode(t, rec))
}

func TestValidationMethodAllowlist(t *testing.T) {
	handler := Validation(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("TRACE", "/api/query", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "METHOD_NOT_ALLOWED", errorCode(t, rec))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/query", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestValidationContentType(t *testing.T) {
	handler := Validation(okHandler())

	// A body-carrying POST needs the JSON content type.
	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Equal(t, "UNSUPPORTED_MEDIA_TYPE", errorCode(t, rec))

	req = httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// No content type passes only with an empty body.
	req = httptest.NewRequest(http.MethodPost, "/api/query", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`{}`))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestValidationUploadPathIsExempt(t *testing.T) {
	handler := Validation(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/storage/upload", strings.NewReader("raw bytes"))
	req.Header.Set("Content-Type", "application/octet-stream")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestValidationCapsBodySize(t *testing.T) {
	var readErr error
	handler := Validation(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))

	// One byte over the cap: the handler's read fails.
	body := strings.NewReader(strings.Repeat("x", maxJSONBody+1))
	req := httptest.NewRequest(http.MethodPost, "/api/query", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var maxErr *http.MaxBytesError
	assert.ErrorAs(t, readErr, &maxErr)
}

func newAuthService(t *testing.T) *services.AuthService {
	t.Helper()
	logger := zap.NewNop()
	kernel, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { kernel.Close() })
	require.NoError(t, kernel.Migrate(context.Background()))

	audit := services.NewAuditRecorder(kernel, sqlite.NewAuditRepository(), logger)
	tokens := auth.NewTokenService("test-secret", 0, 0)
	return services.NewAuthService(kernel,
		sqlite.NewUserRepository(), sqlite.NewAdminRepository(), tokens, audit, logger)
}

func TestAuthenticateRejectsMissingOrBadTokens(t *testing.T) {
	authsvc := newAuthService(t)
	handler := Authenticate(authsvc)(okHandler())

	cases := map[string]string{
		"no header":     "",
		"not bearer":    "Basic dXNlcjpwdw==",
		"missing token": "Bearer",
		"garbage token": "Bearer not-a-jwt",
	}
	for name, header := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, name)
		assert.Equal(t, "UNAUTHORIZED", errorCode(t, rec), name)
	}
}

func TestAuthenticateAttachesPrincipal(t *testing.T) {
	authsvc := newAuthService(t)

	session, err := authsvc.Register(context.Background(),
		services.RegisterInput{Email: "ada@example.com", Password: "hunter2hunter2"})
	require.NoError(t, err)

	var seen *auth.Principal
	handler := Authenticate(authsvc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = auth.PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+session.AccessToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, session.User.ID, seen.ID)

	// The bearer keyword is case-insensitive.
	req = httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "bearer "+session.AccessToken)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAdmin(t *testing.T) {
	handler := RequireAdmin(okHandler())

	// An authenticated non-admin is forbidden, not unauthorized.
	user := &auth.Principal{ID: "user-1", Type: auth.PrincipalUser}
	req := httptest.NewRequest(http.MethodGet, "/api/admin/me", nil)
	req = req.WithContext(auth.WithPrincipal(req.Context(), user))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", errorCode(t, rec))

	admin := &auth.Principal{ID: "admin-1", Type: auth.PrincipalAdmin}
	req = httptest.NewRequest(http.MethodGet, "/api/admin/me", nil)
	req = req.WithContext(auth.WithPrincipal(req.Context(), admin))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// No principal at all is an auth failure.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
