package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"swiftbase/application/services"
	"swiftbase/pkg/auth"
	"swiftbase/pkg/common"
	apperrors "swiftbase/pkg/errors"
)

// CollectionHandler serves the collection catalog endpoints.
type CollectionHandler struct {
	collections *services.CollectionService
	logger      *zap.Logger
}

func NewCollectionHandler(collections *services.CollectionService, logger *zap.Logger) *CollectionHandler {
	return &CollectionHandler{collections: collections, logger: logger}
}

func (h *CollectionHandler) List(w http.ResponseWriter, r *http.Request) {
	cols, err := h.collections.List(r.Context())
	if err != nil {
		common.RespondError(w, r, err)
		return
	}
	common.RespondData(w, r, http.StatusOK, cols)
}

func (h *CollectionHandler) Get(w http.ResponseWriter, r *http.Request) {
	col, err := h.collections.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		common.RespondError(w, r, err)
		return
	}
	common.RespondData(w, r, http.StatusOK, col)
}

func (h *CollectionHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.collections.Stats(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		common.RespondError(w, r, err)
		return
	}
	common.RespondData(w, r, http.StatusOK, stats)
}

func (h *CollectionHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.PrincipalFromContext(r.Context())
	if err != nil {
		common.RespondError(w, r, apperrors.NewAuthFailure(""))
		return
	}

	var input services.CreateInput
	if err := decodeJSON(r, &input); err != nil {
		common.RespondError(w, r, err)
		return
	}
	col, err := h.collections.Create(r.Context(), input, principal)
	if err != nil {
		common.RespondError(w, r, err)
		return
	}
	common.RespondData(w, r, http.StatusCreated, col)
}

func (h *CollectionHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.PrincipalFromContext(r.Context())
	if err != nil {
		common.RespondError(w, r, apperrors.NewAuthFailure(""))
		return
	}

	var input services.UpdateInput
	if err := decodeJSON(r, &input); err != nil {
		common.RespondError(w, r, err)
		return
	}
	col, err := h.collections.Update(r.Context(), chi.URLParam(r, "name"), input, principal)
	if err != nil {
		common.RespondError(w, r, err)
		return
	}
	common.RespondData(w, r, http.StatusOK, col)
}

func (h *CollectionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.PrincipalFromContext(r.Context())
	if err != nil {
		common.RespondError(w, r, apperrors.NewAuthFailure(""))
		return
	}

	name := chi.URLParam(r, "name")
	cascade := r.URL.Query().Get("cascade") == "true"
	if err := h.collections.Delete(r.Context(), name, cascade, principal); err != nil {
		common.RespondError(w, r, err)
		return
	}
	common.RespondData(w, r, http.StatusOK, map[string]any{"message": "collection deleted"})
}
