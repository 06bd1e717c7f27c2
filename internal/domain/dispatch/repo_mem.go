package dispatch

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ems/ems/internal/domain/hospital"
	"github.com/ems/ems/internal/domain/triage"
)

// MemCaseRepo is an in-memory CaseRepository for `serve --in-memory`
// and the test suites. One mutex serializes all case mutations, which
// makes Transition and Claim true compare-and-swaps.
type MemCaseRepo struct {
	mu     sync.Mutex
	cases  map[uuid.UUID]*Case
	events map[uuid.UUID][]*StatusEvent
	now    func() time.Time
}

func NewMemCaseRepo() *MemCaseRepo {
	return &MemCaseRepo{
		cases:  make(map[uuid.UUID]*Case),
		events: make(map[uuid.UUID][]*StatusEvent),
		now:    time.Now,
	}
}

// appendEvent records a status move; callers hold the mutex.
func (m *MemCaseRepo) appendEvent(caseID uuid.UUID, from, to Status, at time.Time) {
	m.events[caseID] = append(m.events[caseID], &StatusEvent{
		ID:         uuid.New(),
		CaseID:     caseID,
		FromStatus: from,
		ToStatus:   to,
		OccurredAt: at,
	})
}

func (m *MemCaseRepo) Create(_ context.Context, c *Case) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := m.now()
	if c.ReportedAt.IsZero() {
		c.ReportedAt = now
	}
	c.CreatedAt = now
	c.UpdatedAt = now

	stored := *c
	m.cases[c.ID] = &stored
	m.appendEvent(c.ID, "", c.Status, now)
	return nil
}

func (m *MemCaseRepo) GetByID(_ context.Context, id uuid.UUID) (*Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.cases[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *c
	return &out, nil
}

func (m *MemCaseRepo) List(_ context.Context, status Status, limit, offset int) ([]*Case, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var all []*Case
	for _, c := range m.cases {
		if status != "" && c.Status != status {
			continue
		}
		cp := *c
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].ReportedAt.Equal(all[j].ReportedAt) {
			return all[i].ReportedAt.Before(all[j].ReportedAt)
		}
		return all[i].ID.String() < all[j].ID.String()
	})

	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *MemCaseRepo) Transition(_ context.Context, id uuid.UUID, from, to Status, change StatusChange) (*Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.cases[id]
	if !ok {
		return nil, ErrNotFound
	}
	if c.Status != from {
		return nil, ErrInvalidTransition
	}

	c.Status = to
	if change.AssignHospital != nil {
		c.AssignedHospitalID = change.AssignHospital
	}
	if change.ClearHospital {
		c.AssignedHospitalID = nil
	}
	if change.AcknowledgedAt != nil {
		c.AcknowledgedAt = change.AcknowledgedAt
	}
	if change.ResolvedAt != nil {
		c.ResolvedAt = change.ResolvedAt
	}
	if change.ClearClaim {
		c.ClaimedBy = nil
		c.ClaimedAt = nil
	}
	c.UpdatedAt = m.now()
	m.appendEvent(c.ID, from, to, c.UpdatedAt)

	out := *c
	return &out, nil
}

func (m *MemCaseRepo) History(_ context.Context, caseID uuid.UUID) ([]*StatusEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	events := m.events[caseID]
	out := make([]*StatusEvent, len(events))
	for i, e := range events {
		cp := *e
		out[i] = &cp
	}
	return out, nil
}

func (m *MemCaseRepo) UpdateTriage(_ context.Context, id uuid.UUID, tier triage.PriorityTier, profile []hospital.ResourceKind) (*Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.cases[id]
	if !ok {
		return nil, ErrNotFound
	}
	if c.Status != StatusReported {
		return nil, ErrInvalidTransition
	}
	c.PriorityTier = tier
	c.Profile = profile
	c.UpdatedAt = m.now()

	out := *c
	return &out, nil
}

func (m *MemCaseRepo) Queue(_ context.Context, limit int) ([]*Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var pending []*Case
	for _, c := range m.cases {
		if c.Status == StatusReported {
			cp := *c
			pending = append(pending, &cp)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		a, b := pending[i], pending[j]
		if a.PriorityTier.Rank() != b.PriorityTier.Rank() {
			return a.PriorityTier.Rank() > b.PriorityTier.Rank()
		}
		if !a.ReportedAt.Equal(b.ReportedAt) {
			return a.ReportedAt.Before(b.ReportedAt)
		}
		return a.ID.String() < b.ID.String()
	})

	if limit > 0 && limit < len(pending) {
		pending = pending[:limit]
	}
	return pending, nil
}

func (m *MemCaseRepo) Claim(_ context.Context, id uuid.UUID, operator string, ttl time.Duration) (*Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.cases[id]
	if !ok {
		return nil, ErrNotFound
	}
	if c.Status != StatusReported {
		return nil, ErrInvalidTransition
	}
	now := m.now()
	if c.ClaimedBy != nil && *c.ClaimedBy != operator {
		if ttl <= 0 || c.ClaimedAt == nil || now.Sub(*c.ClaimedAt) < ttl {
			return nil, ErrAlreadyClaimed
		}
	}
	c.ClaimedBy = &operator
	c.ClaimedAt = &now
	c.UpdatedAt = now

	out := *c
	return &out, nil
}

func (m *MemCaseRepo) ReleaseClaim(_ context.Context, id uuid.UUID, operator string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.cases[id]
	if !ok {
		return ErrNotFound
	}
	if c.ClaimedBy == nil || *c.ClaimedBy != operator {
		return ErrNotClaimed
	}
	c.ClaimedBy = nil
	c.ClaimedAt = nil
	c.UpdatedAt = m.now()
	return nil
}

func (m *MemCaseRepo) ExpireClaims(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, c := range m.cases {
		if c.Status == StatusReported && c.ClaimedAt != nil && c.ClaimedAt.Before(cutoff) {
			c.ClaimedBy = nil
			c.ClaimedAt = nil
			c.UpdatedAt = m.now()
			n++
		}
	}
	return n, nil
}
