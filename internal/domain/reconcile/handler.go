package reconcile

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/reconciliation/run", h.Run)
	api.GET("/reconciliation/orphans", h.Orphans)
	api.POST("/reconciliation/orphans/convert", h.Convert)
}

func (h *Handler) Run(c echo.Context) error {
	var body struct {
		AutoConvert bool `json:"auto_convert"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	report, err := h.engine.Reconcile(c.Request().Context(), body.AutoConvert)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, report)
}

func (h *Handler) Orphans(c echo.Context) error {
	orphans, err := h.engine.DetectOrphans(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"count":   len(orphans),
		"orphans": orphans,
	})
}

func (h *Handler) Convert(c echo.Context) error {
	var body struct {
		SessionIDs []uuid.UUID `json:"session_ids"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(body.SessionIDs) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "session_ids is required")
	}
	report, err := h.engine.ConvertByID(c.Request().Context(), body.SessionIDs)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, report)
}
