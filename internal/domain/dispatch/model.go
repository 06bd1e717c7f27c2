package dispatch

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ems/ems/internal/domain/hospital"
	"github.com/ems/ems/internal/domain/triage"
)

// Status is a case's position in its lifecycle.
type Status string

const (
	StatusReported     Status = "reported"
	StatusAcknowledged Status = "acknowledged"
	StatusAdmitted     Status = "admitted"
	// StatusTransferring is an admitted case moving between hospitals:
	// the new hospital's reservations are held, the old ones released,
	// and the next admit completes the move.
	StatusTransferring Status = "transferring"
	StatusDischarged   Status = "discharged"
	StatusDeceased     Status = "deceased"
	StatusCancelled    Status = "cancelled"
)

// Terminal reports whether no further transitions leave s.
func (s Status) Terminal() bool {
	switch s {
	case StatusDischarged, StatusDeceased, StatusCancelled:
		return true
	}
	return false
}

// Assigned reports whether a case in s holds an assigned hospital.
// AssignedHospitalID is non-nil exactly in these states.
func (s Status) Assigned() bool {
	switch s {
	case StatusAcknowledged, StatusAdmitted, StatusTransferring:
		return true
	}
	return false
}

// Case is one emergency request moving through triage, dispatch and a
// hospital stay.
type Case struct {
	ID                 uuid.UUID               `db:"id" json:"id"`
	Attributes         triage.CaseAttributes   `db:"attributes" json:"attributes"`
	PriorityTier       triage.PriorityTier     `db:"priority_tier" json:"priority_tier"`
	Profile            []hospital.ResourceKind `db:"resource_profile" json:"resource_profile"`
	Status             Status                  `db:"status" json:"status"`
	AssignedHospitalID *uuid.UUID              `db:"assigned_hospital_id" json:"assigned_hospital_id,omitempty"`
	ClaimedBy          *string                 `db:"claimed_by" json:"claimed_by,omitempty"`
	ClaimedAt          *time.Time              `db:"claimed_at" json:"claimed_at,omitempty"`
	ReportedAt         time.Time               `db:"reported_at" json:"reported_at"`
	AcknowledgedAt     *time.Time              `db:"acknowledged_at" json:"acknowledged_at,omitempty"`
	ResolvedAt         *time.Time              `db:"resolved_at" json:"resolved_at,omitempty"`
	CreatedAt          time.Time               `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time               `db:"updated_at" json:"updated_at"`
}

// StatusEvent is one recorded lifecycle move. The events of a case,
// oldest first, form its timeline. FromStatus is empty on the opening
// event.
type StatusEvent struct {
	ID         uuid.UUID `db:"id" json:"id"`
	CaseID     uuid.UUID `db:"case_id" json:"case_id"`
	FromStatus Status    `db:"from_status" json:"from_status,omitempty"`
	ToStatus   Status    `db:"to_status" json:"to_status"`
	OccurredAt time.Time `db:"occurred_at" json:"occurred_at"`
}

var (
	// ErrNotFound is returned when a case does not exist.
	ErrNotFound = errors.New("case not found")
	// ErrInvalidTransition is returned for a lifecycle move the state
	// machine does not allow. The case is left unchanged.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrAlreadyClaimed is returned when a second operator claims a case
	// whose claim is still live.
	ErrAlreadyClaimed = errors.New("case already claimed")
	// ErrNotClaimed is returned when releasing a claim the operator does
	// not hold.
	ErrNotClaimed = errors.New("case not claimed by operator")
)
