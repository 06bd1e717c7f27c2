package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ems/ems/internal/domain/hospital"
	"github.com/ems/ems/internal/domain/triage"
)

// Reservations is the slice of the capacity registry the lifecycle
// manager drives. Counters are never touched directly.
type Reservations interface {
	ReserveAll(ctx context.Context, hospitalID, caseID uuid.UUID, kinds []hospital.ResourceKind) ([]*hospital.Reservation, error)
	ReleaseByCase(ctx context.Context, caseID uuid.UUID) error
	ReleaseByCaseAtHospital(ctx context.Context, caseID, hospitalID uuid.UUID) error
}

// Service owns the case lifecycle. Every transition is validated against
// the state machine, stamped, and paired with its reservation side
// effect so capacity and status cannot drift apart.
type Service struct {
	cases        CaseRepository
	reservations Reservations
	claimTTL     time.Duration
	now          func() time.Time
}

func NewService(cases CaseRepository, reservations Reservations, claimTTL time.Duration) *Service {
	return &Service{
		cases:        cases,
		reservations: reservations,
		claimTTL:     claimTTL,
		now:          time.Now,
	}
}

// Report runs intake: classify the attributes and open the case in
// Reported. The tier and profile are assigned here once; only an
// explicit re-triage changes them afterwards.
func (s *Service) Report(ctx context.Context, attrs triage.CaseAttributes) (*Case, error) {
	verdict, err := triage.Classify(attrs)
	if err != nil {
		return nil, err
	}
	c := &Case{
		Attributes:   attrs,
		PriorityTier: verdict.Tier,
		Profile:      verdict.Profile,
		Status:       StatusReported,
	}
	if err := s.cases.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) GetCase(ctx context.Context, id uuid.UUID) (*Case, error) {
	return s.cases.GetByID(ctx, id)
}

// History returns the case's status timeline, oldest event first.
func (s *Service) History(ctx context.Context, id uuid.UUID) ([]*StatusEvent, error) {
	if _, err := s.cases.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.cases.History(ctx, id)
}

func (s *Service) ListCases(ctx context.Context, status Status, limit, offset int) ([]*Case, int, error) {
	if status != "" && !validStatus(status) {
		return nil, 0, fmt.Errorf("unknown status: %s", status)
	}
	return s.cases.List(ctx, status, limit, offset)
}

// Retriage re-runs classification with the new attributes. Permitted
// only while the case is still reported.
func (s *Service) Retriage(ctx context.Context, id uuid.UUID, attrs triage.CaseAttributes) (*Case, error) {
	verdict, err := triage.Classify(attrs)
	if err != nil {
		return nil, err
	}
	return s.cases.UpdateTriage(ctx, id, verdict.Tier, verdict.Profile)
}

// Acknowledge books the case into a hospital. The reservation is taken
// first, all-or-nothing across the profile; the status swap then runs as
// a compare-and-swap on Reported. If the case was cancelled while the
// reservation was in flight the swap loses and the reservation is
// released again, so a concurrent cancel never strands capacity.
func (s *Service) Acknowledge(ctx context.Context, id, hospitalID uuid.UUID) (*Case, error) {
	c, err := s.cases.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != StatusReported {
		return nil, fmt.Errorf("acknowledge from %s: %w", c.Status, ErrInvalidTransition)
	}

	if _, err := s.reservations.ReserveAll(ctx, hospitalID, id, c.Profile); err != nil {
		return nil, err
	}

	now := s.now()
	updated, err := s.cases.Transition(ctx, id, StatusReported, StatusAcknowledged, StatusChange{
		AssignHospital: &hospitalID,
		AcknowledgedAt: &now,
		ClearClaim:     true,
	})
	if err != nil {
		if relErr := s.reservations.ReleaseByCaseAtHospital(ctx, id, hospitalID); relErr != nil {
			return nil, fmt.Errorf("%w (release after lost acknowledge: %v)", err, relErr)
		}
		return nil, err
	}
	return updated, nil
}

// Admit moves an acknowledged case into the hospital, or completes an
// in-flight transfer. The reservation is already held either way.
func (s *Service) Admit(ctx context.Context, id uuid.UUID) (*Case, error) {
	c, err := s.cases.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch c.Status {
	case StatusAcknowledged, StatusTransferring:
		return s.cases.Transition(ctx, id, c.Status, StatusAdmitted, StatusChange{})
	}
	return nil, fmt.Errorf("admit from %s: %w", c.Status, ErrInvalidTransition)
}

// Discharge closes an admitted case and frees its capacity.
func (s *Service) Discharge(ctx context.Context, id uuid.UUID) (*Case, error) {
	return s.resolve(ctx, id, StatusAdmitted, StatusDischarged)
}

// MarkDeceased closes an admitted case and frees its capacity.
func (s *Service) MarkDeceased(ctx context.Context, id uuid.UUID) (*Case, error) {
	return s.resolve(ctx, id, StatusAdmitted, StatusDeceased)
}

// resolve is the shared terminal transition. The status swap wins first,
// then the reservations are released; once terminal no other caller can
// transition the case, so the release cannot race a re-book.
func (s *Service) resolve(ctx context.Context, id uuid.UUID, from, to Status) (*Case, error) {
	now := s.now()
	updated, err := s.cases.Transition(ctx, id, from, to, StatusChange{
		ResolvedAt:    &now,
		ClearHospital: true,
		ClearClaim:    true,
	})
	if err != nil {
		return nil, err
	}
	if err := s.reservations.ReleaseByCase(ctx, id); err != nil {
		return nil, err
	}
	return updated, nil
}

// Transfer moves an admitted case to another hospital. The new
// hospital's reservation is taken before the old one is dropped, so the
// case never sits without held capacity; if the new hospital cannot take
// the whole profile the transfer fails and nothing changes.
func (s *Service) Transfer(ctx context.Context, id, newHospitalID uuid.UUID) (*Case, error) {
	c, err := s.cases.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != StatusAdmitted {
		return nil, fmt.Errorf("transfer from %s: %w", c.Status, ErrInvalidTransition)
	}
	if c.AssignedHospitalID != nil && *c.AssignedHospitalID == newHospitalID {
		return nil, fmt.Errorf("already at hospital %s: %w", newHospitalID, ErrInvalidTransition)
	}
	oldHospitalID := c.AssignedHospitalID

	if _, err := s.reservations.ReserveAll(ctx, newHospitalID, id, c.Profile); err != nil {
		return nil, err
	}

	updated, err := s.cases.Transition(ctx, id, StatusAdmitted, StatusTransferring, StatusChange{
		AssignHospital: &newHospitalID,
	})
	if err != nil {
		if relErr := s.reservations.ReleaseByCaseAtHospital(ctx, id, newHospitalID); relErr != nil {
			return nil, fmt.Errorf("%w (release after lost transfer: %v)", err, relErr)
		}
		return nil, err
	}

	if oldHospitalID != nil {
		if err := s.reservations.ReleaseByCaseAtHospital(ctx, id, *oldHospitalID); err != nil {
			return nil, err
		}
	}
	return updated, nil
}

// Cancel aborts a case that has not been admitted yet, freeing any held
// capacity.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Case, error) {
	c, err := s.cases.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != StatusReported && c.Status != StatusAcknowledged {
		return nil, fmt.Errorf("cancel from %s: %w", c.Status, ErrInvalidTransition)
	}

	now := s.now()
	updated, err := s.cases.Transition(ctx, id, c.Status, StatusCancelled, StatusChange{
		ResolvedAt:    &now,
		ClearHospital: true,
		ClearClaim:    true,
	})
	if err != nil {
		return nil, err
	}
	if err := s.reservations.ReleaseByCase(ctx, id); err != nil {
		return nil, err
	}
	return updated, nil
}

func validStatus(s Status) bool {
	switch s {
	case StatusReported, StatusAcknowledged, StatusAdmitted, StatusTransferring,
		StatusDischarged, StatusDeceased, StatusCancelled:
		return true
	}
	return false
}
