package handler

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	"github.com/fastygo/studyplanner/api/transport"
	"github.com/fastygo/studyplanner/internal/infrastructure/monitor"
	"github.com/fastygo/studyplanner/pkg/httpcontext"
)

// StatusSource reports backend health.
type StatusSource interface {
	GetStatus() monitor.Status
	IsOnline() bool
}

type HealthHandler struct {
	baseHandler
	monitor StatusSource
	metrics fasthttp.RequestHandler
}

func NewHealthHandler(mon StatusSource, adapter *httpcontext.Adapter, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		baseHandler: newBaseHandler(adapter, logger),
		monitor:     mon,
		metrics:     fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler()),
	}
}

// @Summary Health check
// @Tags health
// @Router /health [get]
func (h *HealthHandler) Check(ctx *fasthttp.RequestCtx) {
	status := h.monitor.GetStatus()
	payload := map[string]interface{}{
		"timestamp": time.Now().UTC(),
		"services":  status.Backends,
		"buffer": map[string]interface{}{
			"online": status.Buffer,
			"size":   status.BufferSize,
		},
	}

	if h.monitor.IsOnline() {
		h.respondSuccess(ctx, http.StatusOK, payload)
		return
	}
	h.respondJSON(ctx, http.StatusServiceUnavailable, transport.Fail("DEGRADED", "dependencies unhealthy").WithDetails(payload))
}

// Metrics serves the Prometheus registry.
func (h *HealthHandler) Metrics(ctx *fasthttp.RequestCtx) {
	h.metrics(ctx)
}
