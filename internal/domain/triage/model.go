package triage

import (
	"errors"

	"github.com/ems/ems/internal/domain/hospital"
)

// PriorityTier classifies how urgently a case needs dispatch attention.
type PriorityTier string

const (
	TierCritical PriorityTier = "critical"
	TierHigh     PriorityTier = "high"
	TierModerate PriorityTier = "moderate"
	TierLow      PriorityTier = "low"
)

// Rank orders tiers for queue sorting; higher is more urgent.
func (t PriorityTier) Rank() int {
	switch t {
	case TierCritical:
		return 4
	case TierHigh:
		return 3
	case TierModerate:
		return 2
	case TierLow:
		return 1
	}
	return 0
}

// Valid reports whether t is a known tier.
func (t PriorityTier) Valid() bool { return t.Rank() > 0 }

// CaseAttributes is the raw intake for a case: the reported emergency type
// plus whatever vitals the caller could capture. Vitals are optional.
type CaseAttributes struct {
	EmergencyType      string `json:"emergency_type"`
	HeartRate          *int   `json:"heart_rate,omitempty"`
	OxygenSaturation   *int   `json:"oxygen_saturation,omitempty"`
	VentilatorRequired bool   `json:"ventilator_required,omitempty"`
}

// Classification is the classifier's verdict: a priority tier and the
// minimum set of resources a receiving hospital must hold.
type Classification struct {
	Tier    PriorityTier            `json:"priority_tier"`
	Profile []hospital.ResourceKind `json:"resource_profile"`
}

// ErrValidation marks malformed intake attributes, rejected before any
// state mutation.
var ErrValidation = errors.New("invalid case attributes")
