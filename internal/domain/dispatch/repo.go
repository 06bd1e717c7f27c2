package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ems/ems/internal/domain/hospital"
	"github.com/ems/ems/internal/domain/triage"
)

// StatusChange carries the field updates applied together with a status
// move. Zero-value fields leave the case untouched.
type StatusChange struct {
	AssignHospital *uuid.UUID
	ClearHospital  bool
	AcknowledgedAt *time.Time
	ResolvedAt     *time.Time
	ClearClaim     bool
}

// CaseRepository persists cases. Transition and Claim are the two
// compare-and-swap points: both mutate only when the case is still in
// the expected state, so concurrent callers cannot both win.
type CaseRepository interface {
	Create(ctx context.Context, c *Case) error
	GetByID(ctx context.Context, id uuid.UUID) (*Case, error)
	List(ctx context.Context, status Status, limit, offset int) ([]*Case, int, error)
	// Transition atomically moves the case from one status to another,
	// applying change in the same step. Fails with ErrInvalidTransition
	// when the case is no longer in the from status.
	Transition(ctx context.Context, id uuid.UUID, from, to Status, change StatusChange) (*Case, error)
	// UpdateTriage replaces tier and profile, permitted only while the
	// case is still reported.
	UpdateTriage(ctx context.Context, id uuid.UUID, tier triage.PriorityTier, profile []hospital.ResourceKind) (*Case, error)
	// History returns the case's status events oldest first. Events are
	// written by Create and Transition in the same atomic step as the
	// case row, so the timeline never disagrees with the case.
	History(ctx context.Context, caseID uuid.UUID) ([]*StatusEvent, error)
	// Queue returns reported cases ordered by priority tier descending,
	// then reported_at ascending.
	Queue(ctx context.Context, limit int) ([]*Case, error)
	// Claim marks the case as being worked by operator. A live claim by
	// another operator fails with ErrAlreadyClaimed; a claim older than
	// ttl is treated as expired and may be taken over.
	Claim(ctx context.Context, id uuid.UUID, operator string, ttl time.Duration) (*Case, error)
	// ReleaseClaim drops the operator's own claim on a reported case.
	ReleaseClaim(ctx context.Context, id uuid.UUID, operator string) error
	// ExpireClaims clears claims on reported cases whose claimed_at is
	// before cutoff, returning how many were cleared.
	ExpireClaims(ctx context.Context, cutoff time.Time) (int, error)
}
