package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"swiftbase/infrastructure/persistence/sqlite"
	"swiftbase/pkg/common"
	apperrors "swiftbase/pkg/errors"
)

// HealthHandler serves liveness, database health and the server info page.
type HealthHandler struct {
	kernel    *sqlite.Kernel
	logger    *zap.Logger
	startedAt time.Time
}

func NewHealthHandler(kernel *sqlite.Kernel, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{kernel: kernel, logger: logger, startedAt: time.Now()}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	common.RespondData(w, r, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *HealthHandler) HealthDB(w http.ResponseWriter, r *http.Request) {
	if err := h.kernel.Health(r.Context()); err != nil {
		h.logger.Error("database health check failed", zap.Error(err))
		common.RespondError(w, r, apperrors.NewStorage("health check", err))
		return
	}
	common.RespondData(w, r, http.StatusOK, map[string]any{"status": "ok"})
}

// Info is the unauthenticated server identity page.
func (h *HealthHandler) Info(w http.ResponseWriter, r *http.Request) {
	common.RespondData(w, r, http.StatusOK, map[string]any{
		"name":        "swiftbase",
		"version":     common.APIVersion,
		"apiVersions": []string{common.APIVersion},
		"uptime":      time.Since(h.startedAt).Round(time.Second).String(),
	})
}
