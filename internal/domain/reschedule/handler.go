package reschedule

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/therakit/therakit/internal/domain/appointment"
)

type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/appointments/:id/reschedule-suggestions", h.Suggest)
	api.POST("/reschedule/apply", h.Apply)
}

func (h *Handler) Suggest(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var params SuggestParams
	if v := c.QueryParam("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid from date")
		}
		params.From = t
	}
	if v := c.QueryParam("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid to date")
		}
		params.To = t
	}

	suggestions, err := h.engine.Suggest(c.Request().Context(), id, params)
	if err != nil {
		if errors.Is(err, appointment.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"appointment_id": id,
		"suggestions":    suggestions,
	})
}

func (h *Handler) Apply(c echo.Context) error {
	var body struct {
		Approvals []Approval `json:"approvals"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(body.Approvals) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "approvals is required")
	}
	results := h.engine.Apply(c.Request().Context(), body.Approvals)
	applied := 0
	for _, r := range results {
		if r.Error == "" {
			applied++
		}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"applied": applied,
		"results": results,
	})
}
