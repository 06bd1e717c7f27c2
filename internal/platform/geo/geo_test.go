package geo

import (
	"math"
	"testing"
)

func TestDistanceKm_SamePoint(t *testing.T) {
	if d := DistanceKm(6.5244, 3.3792, 6.5244, 3.3792); d != 0 {
		t.Errorf("expected 0, got %f", d)
	}
}

func TestDistanceKm_KnownPair(t *testing.T) {
	// Lagos to Abuja is roughly 535 km.
	d := DistanceKm(6.5244, 3.3792, 9.0765, 7.3986)
	if math.Abs(d-535) > 15 {
		t.Errorf("expected ~535 km, got %f", d)
	}
}

func TestDistanceKm_Symmetric(t *testing.T) {
	a := DistanceKm(6.5, 3.3, 9.0, 7.4)
	b := DistanceKm(9.0, 7.4, 6.5, 3.3)
	if math.Abs(a-b) > 1e-9 {
		t.Errorf("distance must be symmetric: %f vs %f", a, b)
	}
}
