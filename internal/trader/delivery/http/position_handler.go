package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"golang-stock-trader/internal/entity"
	"golang-stock-trader/internal/trader/dto"
	"golang-stock-trader/internal/trader/service"
	"golang-stock-trader/pkg/logger"

	"github.com/labstack/echo/v4"
)

// PositionHandler serves read-only views of the Position Store and its audit trail.
type PositionHandler struct {
	queryService service.PositionQueryService
	logger       *logger.Logger
}

// NewPositionHandler creates a new PositionHandler.
func NewPositionHandler(queryService service.PositionQueryService, logger *logger.Logger) *PositionHandler {
	return &PositionHandler{queryService: queryService, logger: logger}
}

// RegisterRoutes registers the position routes to the Echo group.
func (h *PositionHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/positions", h.ListPositions)
	g.GET("/positions/:strategy_type/:symbol", h.GetPosition)
	g.GET("/events", h.ListEvents)
}

// ListPositions godoc
// @Summary List positions
// @Description List every tracked position record, optionally filtered by strategy type
// @Tags positions
// @Produce  json
// @Param   strategy_type  query  string  false  "Strategy type (A or B)"
// @Success 200 {array} dto.PositionResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /positions [get]
func (h *PositionHandler) ListPositions(c echo.Context) error {
	positions, err := h.queryService.ListPositions(c.Request().Context(), c.QueryParam("strategy_type"))
	if err != nil {
		h.logger.Error("Failed to list positions", logger.ErrorField(err))
		return c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list positions"})
	}
	return c.JSON(http.StatusOK, positions)
}

// GetPosition godoc
// @Summary Get a position
// @Description Get one position record by strategy type and symbol
// @Tags positions
// @Produce  json
// @Param   strategy_type  path  string  true  "Strategy type (A or B)"
// @Param   symbol         path  string  true  "Symbol"
// @Success 200 {object} dto.PositionResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /positions/{strategy_type}/{symbol} [get]
func (h *PositionHandler) GetPosition(c echo.Context) error {
	symbol := strings.ToUpper(c.Param("symbol"))
	position, err := h.queryService.GetPosition(c.Request().Context(), symbol, c.Param("strategy_type"))
	if errors.Is(err, dto.ErrPositionNotFound) {
		return c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: err.Error()})
	}
	if err != nil {
		h.logger.Error("Failed to get position", logger.ErrorField(err), logger.StringField("symbol", symbol))
		return c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to get position"})
	}
	return c.JSON(http.StatusOK, position)
}

// ListEvents godoc
// @Summary List position events
// @Description List the most recent lifecycle events, newest first
// @Tags events
// @Produce  json
// @Param   symbol         query  string  false  "Symbol"
// @Param   strategy_type  query  string  false  "Strategy type (A or B)"
// @Param   event          query  string  false  "Comma separated event types"
// @Param   limit          query  int     false  "Maximum rows (default 100, max 500)"
// @Success 200 {array} entity.PositionEvent
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /events [get]
func (h *PositionHandler) ListEvents(c echo.Context) error {
	param := dto.GetPositionEventsParam{
		StockCode: strings.ToUpper(c.QueryParam("symbol")),
	}
	if t := c.QueryParam("strategy_type"); t != "" {
		param.StockType = entity.ParseStrategyType(t)
	}
	if raw := c.QueryParam("event"); raw != "" {
		for _, e := range strings.Split(raw, ",") {
			if e = strings.TrimSpace(strings.ToUpper(e)); e != "" {
				param.Events = append(param.Events, entity.PositionEventType(e))
			}
		}
	}
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid limit"})
		}
		param.Limit = limit
	}

	events, err := h.queryService.ListEvents(c.Request().Context(), param)
	if err != nil {
		h.logger.Error("Failed to list events", logger.ErrorField(err))
		return c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list events"})
	}
	return c.JSON(http.StatusOK, events)
}
