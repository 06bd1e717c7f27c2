package hospital

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ResourceKind is a category of hospital capacity (beds or equipment).
type ResourceKind string

const (
	ResourceGeneral    ResourceKind = "general"
	ResourceICU        ResourceKind = "icu"
	ResourceOxygen     ResourceKind = "oxygen"
	ResourceVentilator ResourceKind = "ventilator"
)

var validResourceKinds = map[ResourceKind]bool{
	ResourceGeneral: true, ResourceICU: true,
	ResourceOxygen: true, ResourceVentilator: true,
}

// Valid reports whether k is a known resource kind.
func (k ResourceKind) Valid() bool { return validResourceKinds[k] }

// ResourceCapacity is the counter pair for one resource kind.
// Invariant: 0 <= Available <= Total.
type ResourceCapacity struct {
	Total     int `db:"total" json:"total"`
	Available int `db:"available" json:"available"`
}

// Capacity is a point-in-time snapshot of a hospital's counters.
type Capacity map[ResourceKind]ResourceCapacity

// Hospital maps to the hospital table.
type Hospital struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Latitude    float64   `db:"latitude" json:"latitude"`
	Longitude   float64   `db:"longitude" json:"longitude"`
	Specialties []string  `db:"specialties" json:"specialties"`
	Insurers    []string  `db:"insurers" json:"insurers"`
	Rating      float64   `db:"rating" json:"rating"`
	Capacity    Capacity  `db:"-" json:"capacity,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Reservation is one unit of capacity held against a case. Records are
// append-only: release sets ReleasedAt, nothing is ever deleted.
type Reservation struct {
	ID         uuid.UUID    `db:"id" json:"id"`
	CaseID     uuid.UUID    `db:"case_id" json:"case_id"`
	HospitalID uuid.UUID    `db:"hospital_id" json:"hospital_id"`
	Kind       ResourceKind `db:"resource_kind" json:"resource_kind"`
	CreatedAt  time.Time    `db:"created_at" json:"created_at"`
	ReleasedAt *time.Time   `db:"released_at" json:"released_at,omitempty"`
}

var (
	// ErrNotFound is returned when a hospital or reservation does not exist.
	ErrNotFound = errors.New("not found")
	// ErrOutOfCapacity is returned when a reserve cannot be satisfied.
	// The caller may retry against a different hospital.
	ErrOutOfCapacity = errors.New("out of capacity")
	// ErrAlreadyReleased is returned when releasing a reservation twice.
	ErrAlreadyReleased = errors.New("reservation already released")
)
