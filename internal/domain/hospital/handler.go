package hospital

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

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
	readGroup.GET("/hospitals", h.ListHospitals)
	readGroup.GET("/hospitals/:id", h.GetHospital)
	readGroup.GET("/hospitals/:id/capacity", h.GetCapacity)
	readGroup.GET("/hospitals/:id/reservations", h.ListReservations)

	adminGroup := api.Group("", auth.RequireRole("admin"))
	adminGroup.POST("/hospitals", h.RegisterHospital)
	adminGroup.PUT("/hospitals/:id/capacity", h.SetTotal)

	opGroup := api.Group("", auth.RequireRole("admin", "dispatcher"))
	opGroup.POST("/reservations", h.Reserve)
	opGroup.POST("/reservations/:id/release", h.Release)
}

func (h *Handler) RegisterHospital(c echo.Context) error {
	var hosp Hospital
	if err := c.Bind(&hosp); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.RegisterHospital(c.Request().Context(), &hosp); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, hosp)
}

func (h *Handler) GetHospital(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	hosp, err := h.svc.GetHospital(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "hospital not found")
	}
	return c.JSON(http.StatusOK, hosp)
}

func (h *Handler) ListHospitals(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListHospitals(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetCapacity(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	snap, err := h.svc.Snapshot(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "hospital not found")
	}
	return c.JSON(http.StatusOK, snap)
}

type setTotalRequest struct {
	Kind  ResourceKind `json:"resource_kind"`
	Total int          `json:"total"`
}

func (h *Handler) SetTotal(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req setTotalRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.SetTotal(c.Request().Context(), id, req.Kind, req.Total); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "hospital not found")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	snap, err := h.svc.Snapshot(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, snap)
}

type reserveRequest struct {
	HospitalID uuid.UUID    `json:"hospital_id"`
	CaseID     uuid.UUID    `json:"case_id"`
	Kind       ResourceKind `json:"resource_kind"`
}

func (h *Handler) Reserve(c echo.Context) error {
	var req reserveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.Reserve(c.Request().Context(), req.HospitalID, req.CaseID, req.Kind)
	if err != nil {
		switch {
		case errors.Is(err, ErrOutOfCapacity):
			return echo.NewHTTPError(http.StatusConflict, "no capacity available; try another hospital")
		case errors.Is(err, ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "hospital not found")
		default:
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) Release(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Release(c.Request().Context(), id); err != nil {
		switch {
		case errors.Is(err, ErrAlreadyReleased):
			return echo.NewHTTPError(http.StatusConflict, "reservation already released")
		case errors.Is(err, ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "reservation not found")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListReservations(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListReservations(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
