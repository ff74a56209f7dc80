package maintenance

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	orch *Orchestrator
}

func NewHandler(orch *Orchestrator) *Handler {
	return &Handler{orch: orch}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/maintenance/run", h.Run)
	api.GET("/maintenance/status", h.Status)
}

func (h *Handler) Run(c echo.Context) error {
	report, err := h.orch.Run(c.Request().Context())
	if err != nil {
		if errors.Is(err, ErrAlreadyRunning) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, report)
}

func (h *Handler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"running":     h.orch.Running(),
		"last_report": h.orch.LastReport(),
	})
}
