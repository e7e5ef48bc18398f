package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"swiftbase/application/services"
	"swiftbase/pkg/auth"
	"swiftbase/pkg/common"
	apperrors "swiftbase/pkg/errors"
)

// AuthHandler exposes registration, login, refresh and logout for both
// principal kinds.
type AuthHandler struct {
	authsvc *services.AuthService
	logger  *zap.Logger
}

func NewAuthHandler(authsvc *services.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{authsvc: authsvc, logger: logger}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var input services.RegisterInput
	if err := decodeJSON(r, &input); err != nil {
		common.RespondError(w, r, err)
		return
	}
	session, err := h.authsvc.Register(r.Context(), input)
	if err != nil {
		common.RespondError(w, r, err)
		return
	}
	common.RespondData(w, r, http.StatusCreated, session)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var input services.LoginInput
	if err := decodeJSON(r, &input); err != nil {
		common.RespondError(w, r, err)
		return
	}
	session, err := h.authsvc.Login(r.Context(), input)
	if err != nil {
		common.RespondError(w, r, err)
		return
	}
	common.RespondData(w, r, http.StatusOK, session)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var input struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeJSON(r, &input); err != nil {
		common.RespondError(w, r, err)
		return
	}
	if input.RefreshToken == "" {
		common.RespondError(w, r, apperrors.NewInvalidInput("refreshToken is required"))
		return
	}
	pair, err := h.authsvc.Refresh(r.Context(), input.RefreshToken)
	if err != nil {
		common.RespondError(w, r, err)
		return
	}
	common.RespondData(w, r, http.StatusOK, pair)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.PrincipalFromContext(r.Context())
	if err != nil {
		common.RespondError(w, r, apperrors.NewAuthFailure(""))
		return
	}
	if err := h.authsvc.Logout(r.Context(), principal); err != nil {
		common.RespondError(w, r, err)
		return
	}
	common.RespondData(w, r, http.StatusOK, map[string]any{"message": "logged out"})
}

// Me returns the caller's own profile. An admin token on the user endpoint
// resolves against the admin table.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.PrincipalFromContext(r.Context())
	if err != nil {
		common.RespondError(w, r, apperrors.NewAuthFailure(""))
		return
	}
	if principal.IsAdmin() {
		admin, err := h.authsvc.AdminMe(r.Context(), principal)
		if err != nil {
			common.RespondError(w, r, err)
			return
		}
		common.RespondData(w, r, http.StatusOK, admin)
		return
	}
	user, err := h.authsvc.Me(r.Context(), principal)
	if err != nil {
		common.RespondError(w, r, err)
		return
	}
	common.RespondData(w, r, http.StatusOK, user)
}

func (h *AuthHandler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var input services.AdminLoginInput
	if err := decodeJSON(r, &input); err != nil {
		common.RespondError(w, r, err)
		return
	}
	session, err := h.authsvc.AdminLogin(r.Context(), input)
	if err != nil {
		common.RespondError(w, r, err)
		return
	}
	common.RespondData(w, r, http.StatusOK, session)
}

func (h *AuthHandler) AdminMe(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.PrincipalFromContext(r.Context())
	if err != nil {
		common.RespondError(w, r, apperrors.NewAuthFailure(""))
		return
	}
	admin, err := h.authsvc.AdminMe(r.Context(), principal)
	if err != nil {
		common.RespondError(w, r, err)
		return
	}
	common.RespondData(w, r, http.StatusOK, admin)
}
