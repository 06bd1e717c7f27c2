package triage

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ems/ems/internal/platform/auth"
)

// Handler exposes the classifier as a stateless preview endpoint, used by
// intake forms to show the tier before a case is reported.
type Handler struct{}

func NewHandler() *Handler { return &Handler{} }

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("admin", "dispatcher", "medic"))
	g.POST("/triage/classify", h.Classify)
}

func (h *Handler) Classify(c echo.Context) error {
	var attrs CaseAttributes
	if err := c.Bind(&attrs); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	verdict, err := Classify(attrs)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, verdict)
}
