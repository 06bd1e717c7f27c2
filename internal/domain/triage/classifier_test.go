package triage

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/ems/ems/internal/domain/hospital"
)

func intp(v int) *int { return &v }

func TestClassify_KeywordTable(t *testing.T) {
	tests := []struct {
		emergencyType string
		wantTier      PriorityTier
	}{
		{"Cardiac Arrest", TierCritical},
		{"stroke", TierCritical},
		{"chest pain", TierHigh},
		{"fracture", TierModerate},
		{"sprain", TierLow},
	}
	for _, tt := range tests {
		got, err := Classify(CaseAttributes{EmergencyType: tt.emergencyType})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.emergencyType, err)
		}
		if got.Tier != tt.wantTier {
			t.Errorf("%s: expected %s, got %s", tt.emergencyType, tt.wantTier, got.Tier)
		}
	}
}

func TestClassify_UnknownTypeDefaultsToModerate(t *testing.T) {
	got, err := Classify(CaseAttributes{EmergencyType: "spontaneous combustion"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Tier != TierModerate {
		t.Errorf("unknown type must default to moderate, got %s", got.Tier)
	}
}

func TestClassify_SubstringMatch(t *testing.T) {
	got, err := Classify(CaseAttributes{EmergencyType: "suspected cardiac arrest, CPR in progress"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Tier != TierCritical {
		t.Errorf("expected critical, got %s", got.Tier)
	}
}

func TestClassify_CriticalProfile(t *testing.T) {
	got, err := Classify(CaseAttributes{EmergencyType: "cardiac arrest"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []hospital.ResourceKind{hospital.ResourceICU, hospital.ResourceOxygen}
	if !reflect.DeepEqual(got.Profile, want) {
		t.Errorf("expected profile %v, got %v", want, got.Profile)
	}
}

func TestClassify_VentilatorFlagAlwaysAdds(t *testing.T) {
	got, err := Classify(CaseAttributes{EmergencyType: "sprain", VentilatorRequired: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := false
	for _, kind := range got.Profile {
		if kind == hospital.ResourceVentilator {
			found = true
		}
	}
	if !found {
		t.Errorf("ventilator flag must add ventilator regardless of tier, got %v", got.Profile)
	}
	if got.Tier != TierLow {
		t.Errorf("ventilator flag must not change the tier, got %s", got.Tier)
	}
}

func TestClassify_LowOxygenEscalates(t *testing.T) {
	got, err := Classify(CaseAttributes{EmergencyType: "sprain", OxygenSaturation: intp(85)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Tier != TierHigh {
		t.Errorf("SpO2 85 must escalate to high, got %s", got.Tier)
	}
	found := false
	for _, kind := range got.Profile {
		if kind == hospital.ResourceOxygen {
			found = true
		}
	}
	if !found {
		t.Errorf("low SpO2 must add oxygen to the profile, got %v", got.Profile)
	}
}

func TestClassify_OverridesNeverDowngrade(t *testing.T) {
	got, err := Classify(CaseAttributes{EmergencyType: "cardiac arrest", OxygenSaturation: intp(99)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Tier != TierCritical {
		t.Errorf("healthy vitals must not downgrade a critical type, got %s", got.Tier)
	}
}

func TestClassify_Deterministic(t *testing.T) {
	attrs := CaseAttributes{EmergencyType: "overdose with seizure", OxygenSaturation: intp(88)}
	first, err := Classify(attrs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 20; i++ {
		again, _ := Classify(attrs)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("classification not deterministic: %+v vs %+v", first, again)
		}
	}
}

func TestClassify_Validation(t *testing.T) {
	_, err := Classify(CaseAttributes{})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for missing type, got %v", err)
	}
	_, err = Classify(CaseAttributes{EmergencyType: "sprain", OxygenSaturation: intp(130)})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for SpO2 > 100, got %v", err)
	}
	_, err = Classify(CaseAttributes{EmergencyType: "sprain", HeartRate: intp(-5)})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for negative heart rate, got %v", err)
	}
}

func TestHandler_Classify(t *testing.T) {
	h := NewHandler()
	e := echo.New()
	body := `{"emergency_type":"cardiac arrest"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Classify(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "critical") {
		t.Errorf("expected critical tier in response, got %s", rec.Body.String())
	}
}

func TestHandler_Classify_BadRequest(t *testing.T) {
	h := NewHandler()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Classify(c); err == nil {
		t.Error("expected error for missing emergency_type")
	}
}
