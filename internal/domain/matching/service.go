package matching

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ems/ems/internal/domain/hospital"
	"github.com/ems/ems/internal/platform/cache"
	"github.com/ems/ems/internal/platform/geo"
)

// Registry is the slice of the capacity registry the matcher reads.
// Searches never take the reservation path.
type Registry interface {
	ListHospitals(ctx context.Context, limit, offset int) ([]*hospital.Hospital, int, error)
	Snapshot(ctx context.Context, hospitalID uuid.UUID) (hospital.Capacity, error)
}

const listPageSize = 200

// Service ranks hospitals against a case's resource profile. Capacity
// snapshots go through a short-TTL cache so search load cannot contend
// with reservations; a slightly stale availability display is accepted.
type Service struct {
	registry    Registry
	cache       cache.Cache
	snapshotTTL time.Duration
}

func NewService(registry Registry, c cache.Cache, snapshotTTL time.Duration) *Service {
	return &Service{registry: registry, cache: c, snapshotTTL: snapshotTTL}
}

// Search returns the full ranked result for q. The result is a snapshot
// at call time, not a live cursor.
func (s *Service) Search(ctx context.Context, q Query) ([]*Match, error) {
	if q.Sort == "" {
		q.Sort = SortAvailability
		if q.Origin != nil {
			q.Sort = SortDistance
		}
	}
	if !q.Sort.Valid() {
		return nil, fmt.Errorf("unknown sort key %q: %w", q.Sort, ErrBadQuery)
	}
	if q.Sort == SortDistance && q.Origin == nil {
		return nil, fmt.Errorf("distance sort requires an origin: %w", ErrBadQuery)
	}
	if q.Filters.MaxDistanceKm != nil && q.Origin == nil {
		return nil, fmt.Errorf("max_distance_km requires an origin: %w", ErrBadQuery)
	}
	for _, kind := range q.Profile {
		if !kind.Valid() {
			return nil, fmt.Errorf("unknown resource kind %q: %w", kind, ErrBadQuery)
		}
	}
	for _, kind := range q.Filters.RequiredAvailable {
		if !kind.Valid() {
			return nil, fmt.Errorf("unknown resource kind %q: %w", kind, ErrBadQuery)
		}
	}

	hospitals, err := s.listAll(ctx)
	if err != nil {
		return nil, err
	}

	matches := make([]*Match, 0, len(hospitals))
	for _, h := range hospitals {
		m, ok, err := s.evaluate(ctx, h, q)
		if err != nil {
			return nil, err
		}
		if ok {
			matches = append(matches, m)
		}
	}

	rank(matches, q.Sort)
	return matches, nil
}

func (s *Service) listAll(ctx context.Context) ([]*hospital.Hospital, error) {
	var all []*hospital.Hospital
	for offset := 0; ; offset += listPageSize {
		page, total, err := s.registry.ListHospitals(ctx, listPageSize, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(all) >= total || len(page) == 0 {
			return all, nil
		}
	}
}

// evaluate applies filters to one hospital and builds its Match.
// The boolean is false when the hospital is filtered out.
func (s *Service) evaluate(ctx context.Context, h *hospital.Hospital, q Query) (*Match, bool, error) {
	if q.Filters.MinRating != nil && h.Rating < *q.Filters.MinRating {
		return nil, false, nil
	}
	if !containsAll(h.Specialties, q.Filters.Specialties) {
		return nil, false, nil
	}
	if len(q.Filters.Insurance) > 0 && !containsAny(h.Insurers, q.Filters.Insurance) {
		return nil, false, nil
	}

	var distance *float64
	if q.Origin != nil {
		d := geo.DistanceKm(q.Origin.Latitude, q.Origin.Longitude, h.Latitude, h.Longitude)
		if q.Filters.MaxDistanceKm != nil && d > *q.Filters.MaxDistanceKm {
			return nil, false, nil
		}
		distance = &d
	}

	snap, err := s.snapshot(ctx, h.ID)
	if err != nil {
		return nil, false, err
	}

	for _, kind := range q.Filters.RequiredAvailable {
		if snap[kind].Available == 0 {
			return nil, false, nil
		}
	}

	m := &Match{Hospital: h, DistanceKm: distance}
	for _, kind := range q.Profile {
		rc := snap[kind]
		m.Availability += rc.Available
		if rc.Available == 0 {
			m.Shortfall++
		}
	}
	return m, true, nil
}

// snapshot reads the hospital's capacity through the cache. A failed
// cache write is not an error; the next search just misses again.
func (s *Service) snapshot(ctx context.Context, hospitalID uuid.UUID) (hospital.Capacity, error) {
	key := "capacity:" + hospitalID.String()

	if b, err := s.cache.Get(ctx, key); err == nil {
		var snap hospital.Capacity
		if err := json.Unmarshal(b, &snap); err == nil {
			return snap, nil
		}
	}

	snap, err := s.registry.Snapshot(ctx, hospitalID)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(snap); err == nil {
		_ = s.cache.Set(ctx, key, b, s.snapshotTTL)
	}
	return snap, nil
}

// rank orders matches in place. Fully stocked hospitals always precede
// hospitals short on a profile kind; within each band the chosen sort
// key applies, with hospital id ascending as the final tie-break.
func rank(matches []*Match, key SortKey) {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Shortfall != b.Shortfall {
			return a.Shortfall < b.Shortfall
		}
		switch key {
		case SortDistance:
			if *a.DistanceKm != *b.DistanceKm {
				return *a.DistanceKm < *b.DistanceKm
			}
		case SortAvailability:
			if a.Availability != b.Availability {
				return a.Availability > b.Availability
			}
		case SortRating:
			if a.Hospital.Rating != b.Hospital.Rating {
				return a.Hospital.Rating > b.Hospital.Rating
			}
		case SortName:
			if a.Hospital.Name != b.Hospital.Name {
				return a.Hospital.Name < b.Hospital.Name
			}
		}
		return a.Hospital.ID.String() < b.Hospital.ID.String()
	})
}

func containsAll(have, want []string) bool {
	for _, w := range want {
		if !containsFold(have, w) {
			return false
		}
	}
	return true
}

func containsAny(have, want []string) bool {
	for _, w := range want {
		if containsFold(have, w) {
			return true
		}
	}
	return false
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
