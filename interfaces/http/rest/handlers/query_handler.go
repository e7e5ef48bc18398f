package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"swiftbase/application/services"
	"swiftbase/domain/query"
	"swiftbase/pkg/auth"
	"swiftbase/pkg/common"
	apperrors "swiftbase/pkg/errors"
)

// QueryHandler serves the query envelope and the bulk endpoint.
type QueryHandler struct {
	queries     *services.QueryService
	collections *services.CollectionService
	logger      *zap.Logger
}

func NewQueryHandler(queries *services.QueryService, collections *services.CollectionService, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{queries: queries, collections: collections, logger: logger}
}

func (h *QueryHandler) Execute(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.PrincipalFromContext(r.Context())
	if err != nil {
		common.RespondError(w, r, apperrors.NewAuthFailure(""))
		return
	}

	var req query.Request
	if err := decodeJSON(r, &req); err != nil {
		common.RespondError(w, r, err)
		return
	}

	result, err := h.queries.Execute(r.Context(), &req, principal.ID)
	if err != nil {
		common.RespondError(w, r, err)
		return
	}
	common.RespondData(w, r, http.StatusOK, result)
}

// Bulk runs a list of create/update/delete items; one failed item never
// aborts the rest, and the envelope success flag is the conjunction of the
// per-item outcomes.
func (h *QueryHandler) Bulk(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.PrincipalFromContext(r.Context())
	if err != nil {
		common.RespondError(w, r, apperrors.NewAuthFailure(""))
		return
	}

	var items []services.BulkItem
	if err := decodeJSON(r, &items); err != nil {
		common.RespondError(w, r, err)
		return
	}
	if len(items) == 0 {
		common.RespondError(w, r, apperrors.NewInvalidInput("bulk request requires at least one item"))
		return
	}

	results, allOK := h.collections.ExecuteBulk(r.Context(), items, h.queries, principal.ID)
	common.RespondWithSuccess(w, r, http.StatusOK, allOK, results)
}
