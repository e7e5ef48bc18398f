package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"swiftbase/application/services"
	"swiftbase/domain/entities"
	"swiftbase/pkg/auth"
	"swiftbase/pkg/common"
	apperrors "swiftbase/pkg/errors"
)

// StorageHandler serves file upload, fetch, listing and maintenance.
type StorageHandler struct {
	files  *services.FileService
	logger *zap.Logger
}

func NewStorageHandler(files *services.FileService, logger *zap.Logger) *StorageHandler {
	return &StorageHandler{files: files, logger: logger}
}

// Upload accepts raw payload bytes; the file name arrives in X-Filename and
// optional JSON metadata in X-Metadata.
func (h *StorageHandler) Upload(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.PrincipalFromContext(r.Context())
	if err != nil {
		common.RespondError(w, r, apperrors.NewAuthFailure(""))
		return
	}

	name := r.Header.Get("X-Filename")
	if name == "" {
		common.RespondError(w, r, apperrors.NewInvalidInput("X-Filename header is required"))
		return
	}

	var metadata map[string]any
	if raw := r.Header.Get("X-Metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
			common.RespondError(w, r, apperrors.NewInvalidInput("X-Metadata header is not valid JSON"))
			return
		}
	}

	// One byte past the limit is read so the service can tell "at the limit"
	// from "over it".
	payload, err := io.ReadAll(io.LimitReader(r.Body, entities.MaxFileSize+1))
	if err != nil {
		common.RespondError(w, r, apperrors.NewInternal("reading upload body").WithCause(err))
		return
	}

	meta, err := h.files.Upload(r.Context(), payload, name, r.Header.Get("Content-Type"), metadata, principal)
	if err != nil {
		common.RespondError(w, r, err)
		return
	}
	common.RespondData(w, r, http.StatusCreated, meta)
}

// Download streams the payload; ServeContent handles byte ranges.
func (h *StorageHandler) Download(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.PrincipalFromContext(r.Context())
	if err != nil {
		common.RespondError(w, r, apperrors.NewAuthFailure(""))
		return
	}

	meta, payload, err := h.files.Open(r.Context(), chi.URLParam(r, "id"), principal)
	if err != nil {
		common.RespondError(w, r, err)
		return
	}
	defer payload.Close()

	w.Header().Set("Content-Type", meta.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", meta.OriginalName))
	http.ServeContent(w, r, meta.OriginalName, meta.CreatedAt, payload)
}

func (h *StorageHandler) Info(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.PrincipalFromContext(r.Context())
	if err != nil {
		common.RespondError(w, r, apperrors.NewAuthFailure(""))
		return
	}
	meta, err := h.files.GetMetadata(r.Context(), chi.URLParam(r, "id"), principal)
	if err != nil {
		common.RespondError(w, r, err)
		return
	}
	common.RespondData(w, r, http.StatusOK, meta)
}

func (h *StorageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.PrincipalFromContext(r.Context())
	if err != nil {
		common.RespondError(w, r, apperrors.NewAuthFailure(""))
		return
	}
	if err := h.files.Delete(r.Context(), chi.URLParam(r, "id"), principal); err != nil {
		common.RespondError(w, r, err)
		return
	}
	common.RespondData(w, r, http.StatusOK, map[string]any{"message": "file deleted"})
}

func (h *StorageHandler) List(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, r.URL.Query().Get("search"))
}

// Search is the listing narrowed by the q parameter.
func (h *StorageHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		common.RespondError(w, r, apperrors.NewInvalidInput("q parameter is required"))
		return
	}
	h.list(w, r, q)
}

func (h *StorageHandler) list(w http.ResponseWriter, r *http.Request, search string) {
	principal, err := auth.PrincipalFromContext(r.Context())
	if err != nil {
		common.RespondError(w, r, apperrors.NewAuthFailure(""))
		return
	}

	params := common.ExtractListParams(r, 50, 200)
	files, total, err := h.files.List(r.Context(), services.ListInput{
		ContentType: r.URL.Query().Get("content_type"),
		Search:      search,
		Limit:       params.Limit,
		Offset:      params.Offset,
	}, principal)
	if err != nil {
		common.RespondError(w, r, err)
		return
	}
	common.RespondPage(w, r, http.StatusOK, files, common.BuildPagination(params, int(total)))
}

func (h *StorageHandler) Stats(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.PrincipalFromContext(r.Context())
	if err != nil {
		common.RespondError(w, r, apperrors.NewAuthFailure(""))
		return
	}
	stats, err := h.files.Stats(r.Context(), principal)
	if err != nil {
		common.RespondError(w, r, err)
		return
	}
	common.RespondData(w, r, http.StatusOK, stats)
}

// Cleanup runs the orphan sweep on demand.
func (h *StorageHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	result, err := h.files.Sweep(r.Context())
	if err != nil {
		common.RespondError(w, r, err)
		return
	}
	common.RespondData(w, r, http.StatusOK, result)
}
