package matching

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ems/ems/internal/domain/hospital"
	"github.com/ems/ems/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("admin", "dispatcher", "medic"))
	g.GET("/hospitals/search", h.Search)
}

// Search ranks hospitals for a resource profile. Query parameters:
// profile, require_available and specialties are comma-separated lists;
// lat and lng together form the origin.
func (h *Handler) Search(c echo.Context) error {
	q := Query{Sort: SortKey(c.QueryParam("sort"))}

	var err error
	if q.Profile, err = parseKinds(c.QueryParam("profile")); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if q.Filters.RequiredAvailable, err = parseKinds(c.QueryParam("require_available")); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	q.Filters.Specialties = parseList(c.QueryParam("specialties"))
	q.Filters.Insurance = parseList(c.QueryParam("insurance"))

	if q.Origin, err = parseOrigin(c.QueryParam("lat"), c.QueryParam("lng")); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if q.Filters.MaxDistanceKm, err = parseFloat(c.QueryParam("max_distance_km")); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid max_distance_km")
	}
	if q.Filters.MinRating, err = parseFloat(c.QueryParam("min_rating")); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid min_rating")
	}

	matches, err := h.svc.Search(c.Request().Context(), q)
	if err != nil {
		if errors.Is(err, ErrBadQuery) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"matches": matches,
		"total":   len(matches),
	})
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseKinds(raw string) ([]hospital.ResourceKind, error) {
	var kinds []hospital.ResourceKind
	for _, p := range parseList(raw) {
		kind := hospital.ResourceKind(strings.ToLower(p))
		if !kind.Valid() {
			return nil, errors.New("unknown resource kind: " + p)
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

func parseOrigin(lat, lng string) (*Origin, error) {
	if lat == "" && lng == "" {
		return nil, nil
	}
	if lat == "" || lng == "" {
		return nil, errors.New("lat and lng must be given together")
	}
	latF, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return nil, errors.New("invalid lat")
	}
	lngF, err := strconv.ParseFloat(lng, 64)
	if err != nil {
		return nil, errors.New("invalid lng")
	}
	return &Origin{Latitude: latF, Longitude: lngF}, nil
}

func parseFloat(raw string) (*float64, error) {
	if raw == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}
