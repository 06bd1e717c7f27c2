package matching

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ems/ems/internal/domain/hospital"
	"github.com/ems/ems/internal/platform/cache"
)

type fixture struct {
	registry *hospital.Service
	svc      *Service
}

func newFixture() *fixture {
	mem := hospital.NewMemStore()
	registry := hospital.NewService(mem, mem)
	return &fixture{
		registry: registry,
		svc:      NewService(registry, cache.NewMemory(), time.Minute),
	}
}

type seed struct {
	name        string
	lat, lng    float64
	rating      float64
	specialties []string
	insurers    []string
	capacity    hospital.Capacity
}

func (f *fixture) add(t *testing.T, s seed) *hospital.Hospital {
	t.Helper()
	h := &hospital.Hospital{
		Name:        s.name,
		Latitude:    s.lat,
		Longitude:   s.lng,
		Rating:      s.rating,
		Specialties: s.specialties,
		Insurers:    s.insurers,
		Capacity:    s.capacity,
	}
	if err := f.registry.RegisterHospital(context.Background(), h); err != nil {
		t.Fatalf("seed hospital: %v", err)
	}
	return h
}

func names(matches []*Match) []string {
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.Hospital.Name
	}
	return out
}

func TestSearch_RanksByDistance(t *testing.T) {
	f := newFixture()
	f.add(t, seed{name: "Far", lat: 9.0, lng: 7.4, rating: 4.5,
		capacity: hospital.Capacity{hospital.ResourceGeneral: {Total: 5}}})
	f.add(t, seed{name: "Near", lat: 6.6, lng: 3.4, rating: 3.0,
		capacity: hospital.Capacity{hospital.ResourceGeneral: {Total: 5}}})

	matches, err := f.svc.Search(context.Background(), Query{
		Profile: []hospital.ResourceKind{hospital.ResourceGeneral},
		Origin:  &Origin{Latitude: 6.5, Longitude: 3.3},
		Sort:    SortDistance,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	got := names(matches)
	if len(got) != 2 || got[0] != "Near" || got[1] != "Far" {
		t.Errorf("expected [Near Far], got %v", got)
	}
	if matches[0].DistanceKm == nil || *matches[0].DistanceKm >= *matches[1].DistanceKm {
		t.Error("distances must be populated and ascending")
	}
}

func TestSearch_ZeroAvailabilityRankedLowerNotExcluded(t *testing.T) {
	f := newFixture()
	f.add(t, seed{name: "Full", rating: 5.0,
		capacity: hospital.Capacity{hospital.ResourceICU: {Total: 2, Available: 2}}})
	f.add(t, seed{name: "Empty", rating: 5.0,
		capacity: hospital.Capacity{hospital.ResourceICU: {Total: 2}}})

	// Drain Empty's ICU units.
	var empty *hospital.Hospital
	hospitals, _, _ := f.registry.ListHospitals(context.Background(), 10, 0)
	for _, h := range hospitals {
		if h.Name == "Empty" {
			empty = h
		}
	}
	for i := 0; i < 2; i++ {
		if _, err := f.registry.Reserve(context.Background(), empty.ID, uuid.New(), hospital.ResourceICU); err != nil {
			t.Fatalf("drain: %v", err)
		}
	}

	matches, err := f.svc.Search(context.Background(), Query{
		Profile: []hospital.ResourceKind{hospital.ResourceICU},
		Sort:    SortRating,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	got := names(matches)
	if len(got) != 2 || got[0] != "Full" || got[1] != "Empty" {
		t.Errorf("empty hospital must still be listed, after stocked ones: %v", got)
	}
	if matches[1].Shortfall != 1 {
		t.Errorf("expected shortfall 1 for drained hospital, got %d", matches[1].Shortfall)
	}
}

func TestSearch_RequiredAvailableExcludes(t *testing.T) {
	f := newFixture()
	f.add(t, seed{name: "Stocked",
		capacity: hospital.Capacity{hospital.ResourceICU: {Total: 1, Available: 1}}})
	f.add(t, seed{name: "Drained",
		capacity: hospital.Capacity{hospital.ResourceICU: {Total: 0}}})

	matches, err := f.svc.Search(context.Background(), Query{
		Profile: []hospital.ResourceKind{hospital.ResourceICU},
		Filters: Filters{RequiredAvailable: []hospital.ResourceKind{hospital.ResourceICU}},
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	got := names(matches)
	if len(got) != 1 || got[0] != "Stocked" {
		t.Errorf("expected only Stocked, got %v", got)
	}
}

func TestSearch_Filters(t *testing.T) {
	f := newFixture()
	f.add(t, seed{name: "Cardiac Center", rating: 4.8,
		specialties: []string{"cardiology", "trauma"},
		insurers:    []string{"NHIS"},
		capacity:    hospital.Capacity{hospital.ResourceGeneral: {Total: 5, Available: 5}}})
	f.add(t, seed{name: "Clinic", rating: 2.1,
		specialties: []string{"general practice"},
		insurers:    []string{"AXA"},
		capacity:    hospital.Capacity{hospital.ResourceGeneral: {Total: 5, Available: 5}}})

	minRating := 4.0
	matches, err := f.svc.Search(context.Background(), Query{
		Profile: []hospital.ResourceKind{hospital.ResourceGeneral},
		Filters: Filters{
			MinRating:   &minRating,
			Specialties: []string{"Cardiology"},
			Insurance:   []string{"nhis"},
		},
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	got := names(matches)
	if len(got) != 1 || got[0] != "Cardiac Center" {
		t.Errorf("filters must match case-insensitively, got %v", got)
	}
}

func TestSearch_MaxDistanceFiltersOut(t *testing.T) {
	f := newFixture()
	f.add(t, seed{name: "Near", lat: 6.55, lng: 3.35,
		capacity: hospital.Capacity{hospital.ResourceGeneral: {Total: 1, Available: 1}}})
	f.add(t, seed{name: "Far", lat: 9.0, lng: 7.4,
		capacity: hospital.Capacity{hospital.ResourceGeneral: {Total: 1, Available: 1}}})

	maxKm := 50.0
	matches, err := f.svc.Search(context.Background(), Query{
		Profile: []hospital.ResourceKind{hospital.ResourceGeneral},
		Origin:  &Origin{Latitude: 6.5, Longitude: 3.3},
		Filters: Filters{MaxDistanceKm: &maxKm},
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	got := names(matches)
	if len(got) != 1 || got[0] != "Near" {
		t.Errorf("expected only Near within 50km, got %v", got)
	}
}

func TestSearch_AvailabilitySumsProfileKinds(t *testing.T) {
	f := newFixture()
	f.add(t, seed{name: "A", capacity: hospital.Capacity{
		hospital.ResourceICU:    {Total: 2, Available: 2},
		hospital.ResourceOxygen: {Total: 3, Available: 3},
	}})
	f.add(t, seed{name: "B", capacity: hospital.Capacity{
		hospital.ResourceICU:    {Total: 1, Available: 1},
		hospital.ResourceOxygen: {Total: 1, Available: 1},
	}})

	matches, err := f.svc.Search(context.Background(), Query{
		Profile: []hospital.ResourceKind{hospital.ResourceICU, hospital.ResourceOxygen},
		Sort:    SortAvailability,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	got := names(matches)
	if len(got) != 2 || got[0] != "A" {
		t.Errorf("expected A first by summed availability, got %v", got)
	}
	if matches[0].Availability != 5 {
		t.Errorf("expected availability 5, got %d", matches[0].Availability)
	}
}

func TestSearch_BadQuery(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Search(context.Background(), Query{Sort: SortKey("nope")})
	if !errors.Is(err, ErrBadQuery) {
		t.Errorf("expected ErrBadQuery for unknown sort, got %v", err)
	}

	_, err = f.svc.Search(context.Background(), Query{Sort: SortDistance})
	if !errors.Is(err, ErrBadQuery) {
		t.Errorf("expected ErrBadQuery for distance sort without origin, got %v", err)
	}

	_, err = f.svc.Search(context.Background(), Query{
		Profile: []hospital.ResourceKind{hospital.ResourceKind("xray")},
	})
	if !errors.Is(err, ErrBadQuery) {
		t.Errorf("expected ErrBadQuery for unknown profile kind, got %v", err)
	}
}

func TestSearch_SnapshotServedFromCache(t *testing.T) {
	f := newFixture()
	h := f.add(t, seed{name: "Cached",
		capacity: hospital.Capacity{hospital.ResourceGeneral: {Total: 3, Available: 3}}})

	q := Query{Profile: []hospital.ResourceKind{hospital.ResourceGeneral}}
	if _, err := f.svc.Search(context.Background(), q); err != nil {
		t.Fatalf("first search: %v", err)
	}

	// Reserve after the snapshot is cached; the stale value should be
	// served until the TTL lapses.
	if _, err := f.registry.Reserve(context.Background(), h.ID, uuid.New(), hospital.ResourceGeneral); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	matches, err := f.svc.Search(context.Background(), q)
	if err != nil {
		t.Fatalf("second search: %v", err)
	}
	if matches[0].Availability != 3 {
		t.Errorf("expected cached availability 3, got %d", matches[0].Availability)
	}
}
