package matching

import (
	"errors"

	"github.com/ems/ems/internal/domain/hospital"
)

// SortKey selects the single active ranking key for a search.
type SortKey string

const (
	SortDistance     SortKey = "distance"
	SortAvailability SortKey = "availability"
	SortRating       SortKey = "rating"
	SortName         SortKey = "name"
)

// Valid reports whether k is a known sort key.
func (k SortKey) Valid() bool {
	switch k {
	case SortDistance, SortAvailability, SortRating, SortName:
		return true
	}
	return false
}

// Origin is the incident location searches measure distance from.
type Origin struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Filters narrow the candidate set. All are optional and AND-combined.
type Filters struct {
	MaxDistanceKm     *float64                `json:"max_distance_km,omitempty"`
	MinRating         *float64                `json:"min_rating,omitempty"`
	Specialties       []string                `json:"specialties,omitempty"`
	Insurance         []string                `json:"insurance,omitempty"`
	RequiredAvailable []hospital.ResourceKind `json:"required_available,omitempty"`
}

// Query is one matcher search: the resource profile the case needs,
// an optional origin, filters and a sort key.
type Query struct {
	Profile []hospital.ResourceKind
	Origin  *Origin
	Filters Filters
	Sort    SortKey
}

// Match is one ranked hospital in a search result. DistanceKm is nil
// when the query carried no origin. Availability sums the available
// counters across the profile's resource kinds.
type Match struct {
	Hospital     *hospital.Hospital `json:"hospital"`
	DistanceKm   *float64           `json:"distance_km,omitempty"`
	Availability int                `json:"availability"`
	// Shortfall counts profile kinds with zero availability. Hospitals
	// with a shortfall rank after fully stocked ones whatever the sort.
	Shortfall int `json:"shortfall"`
}

var (
	// ErrBadQuery marks a search request that cannot be evaluated,
	// such as an unknown sort key or distance sort without an origin.
	ErrBadQuery = errors.New("invalid search query")
)
