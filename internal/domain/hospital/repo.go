package hospital

import (
	"context"

	"github.com/google/uuid"
)

type HospitalRepository interface {
	Create(ctx context.Context, h *Hospital) error
	GetByID(ctx context.Context, id uuid.UUID) (*Hospital, error)
	List(ctx context.Context, limit, offset int) ([]*Hospital, int, error)
	// SetTotal applies an administrative total-capacity change for one
	// resource kind. Available shifts by the same delta, floored at zero.
	SetTotal(ctx context.Context, hospitalID uuid.UUID, kind ResourceKind, total int) error
}

// ReservationRepository owns the capacity counters and the reservation
// ledger. Counters change only through Reserve*/Release*; every change
// appends to or closes a ledger row.
type ReservationRepository interface {
	// Snapshot returns the current counters for one hospital. Strongly
	// consistent with respect to completed reserves and releases.
	Snapshot(ctx context.Context, hospitalID uuid.UUID) (Capacity, error)
	// Reserve atomically takes one unit of kind, or fails with
	// ErrOutOfCapacity leaving the counters untouched.
	Reserve(ctx context.Context, hospitalID, caseID uuid.UUID, kind ResourceKind) (*Reservation, error)
	// ReserveAll takes one unit of every kind, all-or-nothing: if any kind
	// has no availability the whole call fails with ErrOutOfCapacity and no
	// counter changes.
	ReserveAll(ctx context.Context, hospitalID, caseID uuid.UUID, kinds []ResourceKind) ([]*Reservation, error)
	Release(ctx context.Context, reservationID uuid.UUID) error
	// ReleaseByCase releases every open reservation held by a case.
	ReleaseByCase(ctx context.Context, caseID uuid.UUID) error
	// ReleaseByCaseAtHospital releases the case's open reservations at one
	// hospital only. Transfers use it to drop the old hospital's holds
	// after the new hospital's reserve has succeeded.
	ReleaseByCaseAtHospital(ctx context.Context, caseID, hospitalID uuid.UUID) error
	ListByHospital(ctx context.Context, hospitalID uuid.UUID, limit, offset int) ([]*Reservation, int, error)
}
