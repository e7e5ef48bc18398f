package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"swiftbase/application/services"
	"swiftbase/interfaces/websocket"
	"swiftbase/pkg/common"
)

// AdminHandler serves the admin-only introspection endpoints.
type AdminHandler struct {
	registry *services.CustomRegistry
	hub      *websocket.Hub
	audit    *services.AuditRecorder
	logger   *zap.Logger
}

func NewAdminHandler(registry *services.CustomRegistry, hub *websocket.Hub, audit *services.AuditRecorder, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{registry: registry, hub: hub, audit: audit, logger: logger}
}

// CustomQueries lists the registered custom query catalog.
func (h *AdminHandler) CustomQueries(w http.ResponseWriter, r *http.Request) {
	common.RespondData(w, r, http.StatusOK, h.registry.List())
}

// RealtimeStats reports the hub's connection and subscription counts.
func (h *AdminHandler) RealtimeStats(w http.ResponseWriter, r *http.Request) {
	common.RespondData(w, r, http.StatusOK, h.hub.Stats())
}

// AuditLog lists recent audit entries, newest first.
func (h *AdminHandler) AuditLog(w http.ResponseWriter, r *http.Request) {
	params := common.ExtractListParams(r, 50, 500)
	entries, total, err := h.audit.List(r.Context(), params.Limit, params.Offset)
	if err != nil {
		common.RespondError(w, r, err)
		return
	}
	common.RespondPage(w, r, http.StatusOK, entries, common.BuildPagination(params, int(total)))
}
