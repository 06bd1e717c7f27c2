package hospital

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Service is the capacity registry: it owns hospital metadata, the
// capacity counters and the reservation ledger. The case lifecycle
// manager drives reservations exclusively through this service.
type Service struct {
	hospitals    HospitalRepository
	reservations ReservationRepository
}

func NewService(hospitals HospitalRepository, reservations ReservationRepository) *Service {
	return &Service{hospitals: hospitals, reservations: reservations}
}

func (s *Service) RegisterHospital(ctx context.Context, h *Hospital) error {
	if h.Name == "" {
		return fmt.Errorf("name is required")
	}
	if h.Rating < 0 || h.Rating > 5 {
		return fmt.Errorf("rating must be between 0.0 and 5.0")
	}
	for kind, rc := range h.Capacity {
		if !kind.Valid() {
			return fmt.Errorf("unknown resource kind: %s", kind)
		}
		if rc.Total < 0 {
			return fmt.Errorf("total for %s must not be negative", kind)
		}
	}
	return s.hospitals.Create(ctx, h)
}

func (s *Service) GetHospital(ctx context.Context, id uuid.UUID) (*Hospital, error) {
	return s.hospitals.GetByID(ctx, id)
}

func (s *Service) ListHospitals(ctx context.Context, limit, offset int) ([]*Hospital, int, error) {
	return s.hospitals.List(ctx, limit, offset)
}

// SetTotal applies an administrative capacity change. It is the only way
// Total moves; Available still changes only through reserve/release.
func (s *Service) SetTotal(ctx context.Context, hospitalID uuid.UUID, kind ResourceKind, total int) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown resource kind: %s", kind)
	}
	if total < 0 {
		return fmt.Errorf("total must not be negative")
	}
	return s.hospitals.SetTotal(ctx, hospitalID, kind, total)
}

func (s *Service) Snapshot(ctx context.Context, hospitalID uuid.UUID) (Capacity, error) {
	return s.reservations.Snapshot(ctx, hospitalID)
}

func (s *Service) Reserve(ctx context.Context, hospitalID, caseID uuid.UUID, kind ResourceKind) (*Reservation, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown resource kind: %s", kind)
	}
	if caseID == uuid.Nil {
		return nil, fmt.Errorf("case_id is required")
	}
	return s.reservations.Reserve(ctx, hospitalID, caseID, kind)
}

func (s *Service) ReserveAll(ctx context.Context, hospitalID, caseID uuid.UUID, kinds []ResourceKind) ([]*Reservation, error) {
	if len(kinds) == 0 {
		return nil, fmt.Errorf("at least one resource kind is required")
	}
	for _, kind := range kinds {
		if !kind.Valid() {
			return nil, fmt.Errorf("unknown resource kind: %s", kind)
		}
	}
	return s.reservations.ReserveAll(ctx, hospitalID, caseID, kinds)
}

func (s *Service) Release(ctx context.Context, reservationID uuid.UUID) error {
	return s.reservations.Release(ctx, reservationID)
}

func (s *Service) ReleaseByCase(ctx context.Context, caseID uuid.UUID) error {
	return s.reservations.ReleaseByCase(ctx, caseID)
}

func (s *Service) ReleaseByCaseAtHospital(ctx context.Context, caseID, hospitalID uuid.UUID) error {
	return s.reservations.ReleaseByCaseAtHospital(ctx, caseID, hospitalID)
}

func (s *Service) ListReservations(ctx context.Context, hospitalID uuid.UUID, limit, offset int) ([]*Reservation, int, error) {
	return s.reservations.ListByHospital(ctx, hospitalID, limit, offset)
}
