package dispatch

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ems/ems/internal/domain/hospital"
	"github.com/ems/ems/internal/domain/triage"
	"github.com/ems/ems/internal/platform/auth"
	"github.com/ems/ems/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole("admin", "dispatcher", "medic"))
	readGroup.GET("/cases", h.ListCases)
	readGroup.GET("/cases/:id", h.GetCase)
	readGroup.GET("/cases/:id/history", h.History)
	readGroup.POST("/cases", h.Report)

	opGroup := api.Group("", auth.RequireRole("admin", "dispatcher"))
	opGroup.POST("/cases/:id/retriage", h.Retriage)
	opGroup.POST("/cases/:id/acknowledge", h.Acknowledge)
	opGroup.POST("/cases/:id/cancel", h.Cancel)
	opGroup.GET("/queue", h.Queue)
	opGroup.GET("/queue/next", h.NextCase)
	opGroup.POST("/cases/:id/claim", h.Claim)
	opGroup.DELETE("/cases/:id/claim", h.ReleaseClaim)

	medGroup := api.Group("", auth.RequireRole("admin", "medic"))
	medGroup.POST("/cases/:id/admit", h.Admit)
	medGroup.POST("/cases/:id/discharge", h.Discharge)
	medGroup.POST("/cases/:id/transfer", h.Transfer)
	medGroup.POST("/cases/:id/deceased", h.MarkDeceased)
}

func (h *Handler) Report(c echo.Context) error {
	var attrs triage.CaseAttributes
	if err := c.Bind(&attrs); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	created, err := h.svc.Report(c.Request().Context(), attrs)
	if err != nil {
		return caseError(err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) GetCase(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	found, err := h.svc.GetCase(c.Request().Context(), id)
	if err != nil {
		return caseError(err)
	}
	return c.JSON(http.StatusOK, found)
}

func (h *Handler) History(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	events, err := h.svc.History(c.Request().Context(), id)
	if err != nil {
		return caseError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"events": events,
		"total":  len(events),
	})
}

func (h *Handler) ListCases(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListCases(c.Request().Context(), Status(c.QueryParam("status")), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Retriage(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var attrs triage.CaseAttributes
	if err := c.Bind(&attrs); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	updated, err := h.svc.Retriage(c.Request().Context(), id, attrs)
	if err != nil {
		return caseError(err)
	}
	return c.JSON(http.StatusOK, updated)
}

type hospitalRequest struct {
	HospitalID uuid.UUID `json:"hospital_id"`
}

func (h *Handler) Acknowledge(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req hospitalRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.HospitalID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "hospital_id is required")
	}
	updated, err := h.svc.Acknowledge(c.Request().Context(), id, req.HospitalID)
	if err != nil {
		return caseError(err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) Admit(c echo.Context) error {
	return h.transition(c, h.svc.Admit)
}

func (h *Handler) Discharge(c echo.Context) error {
	return h.transition(c, h.svc.Discharge)
}

func (h *Handler) MarkDeceased(c echo.Context) error {
	return h.transition(c, h.svc.MarkDeceased)
}

func (h *Handler) Cancel(c echo.Context) error {
	return h.transition(c, h.svc.Cancel)
}

func (h *Handler) transition(c echo.Context, fn func(ctx context.Context, id uuid.UUID) (*Case, error)) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	updated, err := fn(c.Request().Context(), id)
	if err != nil {
		return caseError(err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) Transfer(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req hospitalRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.HospitalID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "hospital_id is required")
	}
	updated, err := h.svc.Transfer(c.Request().Context(), id, req.HospitalID)
	if err != nil {
		return caseError(err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) Queue(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, err := h.svc.Queue(c.Request().Context(), pg.Limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"cases": items,
		"total": len(items),
	})
}

func (h *Handler) NextCase(c echo.Context) error {
	next, err := h.svc.NextCase(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if next == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, next)
}

func (h *Handler) Claim(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	operator := auth.UserIDFromContext(c.Request().Context())
	if operator == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "unknown operator")
	}
	claimed, err := h.svc.Claim(c.Request().Context(), id, operator)
	if err != nil {
		return caseError(err)
	}
	return c.JSON(http.StatusOK, claimed)
}

func (h *Handler) ReleaseClaim(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	operator := auth.UserIDFromContext(c.Request().Context())
	if operator == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "unknown operator")
	}
	if err := h.svc.ReleaseClaim(c.Request().Context(), id, operator); err != nil {
		return caseError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// caseError maps domain failures onto HTTP statuses: conflicts are
// retryable, invalid transitions are the caller's bug.
func caseError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, hospital.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, hospital.ErrOutOfCapacity):
		return echo.NewHTTPError(http.StatusConflict, "no capacity available; try another hospital")
	case errors.Is(err, ErrAlreadyClaimed):
		return echo.NewHTTPError(http.StatusConflict, "case already claimed by another operator")
	case errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrNotClaimed):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, triage.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
