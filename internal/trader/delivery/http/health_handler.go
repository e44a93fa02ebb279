package http

import (
	"context"
	"net/http"
	"time"

	"golang-stock-trader/internal/trader/dto"
	"golang-stock-trader/pkg/logger"
	"golang-stock-trader/pkg/metrics"

	"github.com/labstack/echo/v4"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// HealthHandler reports dependency health and exposes metrics.
type HealthHandler struct {
	checks   map[string]HealthCheck
	tradeEnv string
	metrics  *metrics.Metrics
	logger   *logger.Logger
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(checks map[string]HealthCheck, tradeEnv string, m *metrics.Metrics, logger *logger.Logger) *HealthHandler {
	return &HealthHandler{checks: checks, tradeEnv: tradeEnv, metrics: m, logger: logger}
}

// RegisterRoutes registers the health route on the API group and metrics on the root router.
func (h *HealthHandler) RegisterRoutes(e *echo.Echo, g *echo.Group) {
	g.GET("/health", h.Health)
	if h.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(h.metrics.Handler()))
	}
}

// Health godoc
// @Summary Health check
// @Description Ping the position store and cache
// @Tags health
// @Produce  json
// @Success 200 {object} dto.HealthResponse
// @Failure 503 {object} dto.HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	resp := dto.HealthResponse{Status: "ok", Checks: map[string]string{}, TradeEnv: h.tradeEnv}
	status := http.StatusOK
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.Warn("Health check failed", logger.StringField("check", name), logger.ErrorField(err))
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	return c.JSON(status, resp)
}
