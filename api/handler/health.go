package handler

import (
	"net/http"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/guild-designer/api/transport"
	"github.com/fastygo/guild-designer/internal/infrastructure/monitor"
	"github.com/fastygo/guild-designer/pkg/httpcontext"
)

// HealthReporter is satisfied by *monitor.Monitor.
type HealthReporter interface {
	GetStatus() monitor.Status
	IsOnline() bool
}

type HealthHandler struct {
	baseHandler
	monitor HealthReporter
}

func NewHealthHandler(mon HealthReporter, adapter *httpcontext.Adapter, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		baseHandler: newBaseHandler(adapter, logger),
		monitor:     mon,
	}
}

// @Summary Health check
// @Tags health
// @Router /health [get]
func (h *HealthHandler) Check(ctx *fasthttp.RequestCtx) {
	status := h.monitor.GetStatus()
	payload := map[string]interface{}{
		"timestamp": time.Now().UTC(),
		"services": map[string]interface{}{
			"templates": map[string]interface{}{
				"driver": status.Storage,
				"online": status.StorageOK,
			},
			"active_cache": map[string]interface{}{
				"enabled": status.CacheEnabled,
				"online":  status.Cache,
			},
			"layouts": map[string]interface{}{
				"online": status.Layouts,
				"count":  status.LayoutCount,
			},
		},
		"last_check": status.LastCheck,
	}

	if h.monitor.IsOnline() {
		h.respondSuccess(ctx, http.StatusOK, payload)
		return
	}
	h.respondJSON(ctx, http.StatusServiceUnavailable, transport.NewError("DEGRADED", "dependencies unhealthy", payload))
}
