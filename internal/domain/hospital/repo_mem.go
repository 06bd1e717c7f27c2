package hospital

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-memory implementation of HospitalRepository and
// ReservationRepository. It backs `serve --in-memory` and the test suites.
// A single mutex serializes all counter mutations, so no two reserves can
// both observe the last free unit; reads copy under the same lock.
type MemStore struct {
	mu           sync.Mutex
	hospitals    map[uuid.UUID]*Hospital
	capacity     map[uuid.UUID]map[ResourceKind]*ResourceCapacity
	reservations map[uuid.UUID]*Reservation
	byCase       map[uuid.UUID][]uuid.UUID
}

func NewMemStore() *MemStore {
	return &MemStore{
		hospitals:    make(map[uuid.UUID]*Hospital),
		capacity:     make(map[uuid.UUID]map[ResourceKind]*ResourceCapacity),
		reservations: make(map[uuid.UUID]*Reservation),
		byCase:       make(map[uuid.UUID][]uuid.UUID),
	}
}

// -- HospitalRepository --

func (m *MemStore) Create(_ context.Context, h *Hospital) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	now := time.Now()
	h.CreatedAt = now
	h.UpdatedAt = now

	caps := make(map[ResourceKind]*ResourceCapacity, len(h.Capacity))
	for kind, rc := range h.Capacity {
		caps[kind] = &ResourceCapacity{Total: rc.Total, Available: rc.Total}
	}
	stored := *h
	stored.Capacity = nil
	m.hospitals[h.ID] = &stored
	m.capacity[h.ID] = caps
	return nil
}

func (m *MemStore) GetByID(_ context.Context, id uuid.UUID) (*Hospital, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.hospitals[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *h
	out.Capacity = m.snapshotLocked(id)
	return &out, nil
}

func (m *MemStore) List(_ context.Context, limit, offset int) ([]*Hospital, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := make([]*Hospital, 0, len(m.hospitals))
	for id, h := range m.hospitals {
		out := *h
		out.Capacity = m.snapshotLocked(id)
		all = append(all, &out)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })

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

func (m *MemStore) SetTotal(_ context.Context, hospitalID uuid.UUID, kind ResourceKind, total int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	caps, ok := m.capacity[hospitalID]
	if !ok {
		return ErrNotFound
	}
	rc, ok := caps[kind]
	if !ok {
		rc = &ResourceCapacity{}
		caps[kind] = rc
	}
	delta := total - rc.Total
	rc.Total = total
	rc.Available += delta
	if rc.Available < 0 {
		rc.Available = 0
	}
	if rc.Available > rc.Total {
		rc.Available = rc.Total
	}
	return nil
}

// -- ReservationRepository --

func (m *MemStore) Snapshot(_ context.Context, hospitalID uuid.UUID) (Capacity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.capacity[hospitalID]; !ok {
		return nil, ErrNotFound
	}
	return m.snapshotLocked(hospitalID), nil
}

func (m *MemStore) snapshotLocked(hospitalID uuid.UUID) Capacity {
	snap := make(Capacity)
	for kind, rc := range m.capacity[hospitalID] {
		snap[kind] = *rc
	}
	return snap
}

func (m *MemStore) Reserve(ctx context.Context, hospitalID, caseID uuid.UUID, kind ResourceKind) (*Reservation, error) {
	rs, err := m.ReserveAll(ctx, hospitalID, caseID, []ResourceKind{kind})
	if err != nil {
		return nil, err
	}
	return rs[0], nil
}

func (m *MemStore) ReserveAll(_ context.Context, hospitalID, caseID uuid.UUID, kinds []ResourceKind) ([]*Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reserveLocked(hospitalID, caseID, kinds)
}

func (m *MemStore) reserveLocked(hospitalID, caseID uuid.UUID, kinds []ResourceKind) ([]*Reservation, error) {
	caps, ok := m.capacity[hospitalID]
	if !ok {
		return nil, ErrNotFound
	}

	// Check every kind before touching any counter, so a partial failure
	// cannot leave a dangling decrement.
	for _, kind := range kinds {
		rc, ok := caps[kind]
		if !ok || rc.Available == 0 {
			return nil, ErrOutOfCapacity
		}
	}

	now := time.Now()
	out := make([]*Reservation, 0, len(kinds))
	for _, kind := range kinds {
		caps[kind].Available--
		r := &Reservation{
			ID:         uuid.New(),
			CaseID:     caseID,
			HospitalID: hospitalID,
			Kind:       kind,
			CreatedAt:  now,
		}
		m.reservations[r.ID] = r
		m.byCase[caseID] = append(m.byCase[caseID], r.ID)
		out = append(out, r)
	}
	return out, nil
}

func (m *MemStore) Release(_ context.Context, reservationID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.releaseLocked(reservationID)
}

func (m *MemStore) releaseLocked(reservationID uuid.UUID) error {
	r, ok := m.reservations[reservationID]
	if !ok {
		return ErrNotFound
	}
	if r.ReleasedAt != nil {
		return ErrAlreadyReleased
	}
	now := time.Now()
	r.ReleasedAt = &now
	if rc, ok := m.capacity[r.HospitalID][r.Kind]; ok && rc.Available < rc.Total {
		rc.Available++
	}
	return nil
}

func (m *MemStore) ReleaseByCase(_ context.Context, caseID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range m.byCase[caseID] {
		if r := m.reservations[id]; r != nil && r.ReleasedAt == nil {
			if err := m.releaseLocked(id); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *MemStore) ReleaseByCaseAtHospital(_ context.Context, caseID, hospitalID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range m.byCase[caseID] {
		if r := m.reservations[id]; r != nil && r.ReleasedAt == nil && r.HospitalID == hospitalID {
			if err := m.releaseLocked(id); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *MemStore) ListByHospital(_ context.Context, hospitalID uuid.UUID, limit, offset int) ([]*Reservation, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var all []*Reservation
	for _, r := range m.reservations {
		if r.HospitalID == hospitalID {
			cp := *r
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })

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
