package triage

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ems/ems/internal/domain/hospital"
)

// tierByEmergencyType is the closed keyword table. Lookup is by normalized
// exact match first, then by substring so "suspected cardiac arrest" still
// lands on the right row.
var tierByEmergencyType = map[string]PriorityTier{
	"cardiac arrest":      TierCritical,
	"stroke":              TierCritical,
	"not breathing":       TierCritical,
	"respiratory failure": TierCritical,
	"severe bleeding":     TierCritical,
	"anaphylaxis":         TierCritical,
	"unconscious":         TierCritical,
	"chest pain":          TierHigh,
	"difficulty breathing": TierHigh,
	"seizure":             TierHigh,
	"overdose":            TierHigh,
	"major burn":          TierHigh,
	"fracture":            TierModerate,
	"deep cut":            TierModerate,
	"concussion":          TierModerate,
	"high fever":          TierModerate,
	"severe pain":         TierModerate,
	"sprain":              TierLow,
	"minor cut":           TierLow,
	"rash":                TierLow,
	"minor burn":          TierLow,
}

// profileByTier maps each tier to its minimum resource set.
var profileByTier = map[PriorityTier][]hospital.ResourceKind{
	TierCritical: {hospital.ResourceICU, hospital.ResourceOxygen},
	TierHigh:     {hospital.ResourceGeneral, hospital.ResourceOxygen},
	TierModerate: {hospital.ResourceGeneral},
	TierLow:      {hospital.ResourceGeneral},
}

const lowOxygenSaturation = 90

// Classify maps raw case attributes to a priority tier and resource
// profile. Pure and deterministic: same input, same verdict, no I/O.
// An unrecognized emergency type triages to Moderate rather than failing;
// under-triage is unsafe but a hard failure would block care entirely.
func Classify(attrs CaseAttributes) (Classification, error) {
	emergencyType := strings.ToLower(strings.TrimSpace(attrs.EmergencyType))
	if emergencyType == "" {
		return Classification{}, fmt.Errorf("emergency_type is required: %w", ErrValidation)
	}
	if attrs.OxygenSaturation != nil && (*attrs.OxygenSaturation < 0 || *attrs.OxygenSaturation > 100) {
		return Classification{}, fmt.Errorf("oxygen_saturation must be a percentage: %w", ErrValidation)
	}
	if attrs.HeartRate != nil && *attrs.HeartRate < 0 {
		return Classification{}, fmt.Errorf("heart_rate must not be negative: %w", ErrValidation)
	}

	tier := lookupTier(emergencyType)

	// Vital-sign overrides only ever escalate.
	if attrs.OxygenSaturation != nil && *attrs.OxygenSaturation < lowOxygenSaturation {
		tier = atLeast(tier, TierHigh)
	}
	if attrs.HeartRate != nil && (*attrs.HeartRate > 140 || (*attrs.HeartRate < 40 && *attrs.HeartRate > 0)) {
		tier = atLeast(tier, TierHigh)
	}
	if attrs.HeartRate != nil && *attrs.HeartRate == 0 {
		tier = TierCritical
	}

	profile := make(map[hospital.ResourceKind]bool)
	for _, kind := range profileByTier[tier] {
		profile[kind] = true
	}
	if attrs.OxygenSaturation != nil && *attrs.OxygenSaturation < lowOxygenSaturation {
		profile[hospital.ResourceOxygen] = true
	}
	// An explicit ventilator flag always adds the ventilator, whatever the tier.
	if attrs.VentilatorRequired {
		profile[hospital.ResourceVentilator] = true
	}

	kinds := make([]hospital.ResourceKind, 0, len(profile))
	for kind := range profile {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	return Classification{Tier: tier, Profile: kinds}, nil
}

func lookupTier(emergencyType string) PriorityTier {
	if tier, ok := tierByEmergencyType[emergencyType]; ok {
		return tier
	}
	// Substring pass over sorted keys keeps the fallback deterministic
	// when more than one keyword matches.
	keys := make([]string, 0, len(tierByEmergencyType))
	for k := range tierByEmergencyType {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	best := PriorityTier("")
	for _, k := range keys {
		if strings.Contains(emergencyType, k) {
			if tier := tierByEmergencyType[k]; tier.Rank() > best.Rank() {
				best = tier
			}
		}
	}
	if best != "" {
		return best
	}
	return TierModerate
}

func atLeast(tier, floor PriorityTier) PriorityTier {
	if floor.Rank() > tier.Rank() {
		return floor
	}
	return tier
}
