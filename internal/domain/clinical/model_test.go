package clinical

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
)

func TestNormalizeMonth(t *testing.T) {
	cases := map[string]string{
		"january":   "January",
		"FEBRUARY":  "February",
		" December": "December",
	}
	for in, want := range cases {
		got, ok := NormalizeMonth(in)
		if !ok || got != want {
			t.Errorf("NormalizeMonth(%q) = %q, %v; want %q", in, got, ok, want)
		}
	}
	for _, bad := range []string{"", "Jan", "Smarch", "13"} {
		if _, ok := NormalizeMonth(bad); ok {
			t.Errorf("expected %q to be rejected", bad)
		}
	}
}

func TestDiagnosisHistoryInput_VitalRanges(t *testing.T) {
	tests := []struct {
		name  string
		field string
		edit  func(*DiagnosisHistoryInput)
	}{
		{"systolic low", "blood_pressure_systolic_value", func(in *DiagnosisHistoryInput) { in.SystolicValue = 49 }},
		{"systolic high", "blood_pressure_systolic_value", func(in *DiagnosisHistoryInput) { in.SystolicValue = 251 }},
		{"diastolic low", "blood_pressure_diastolic_value", func(in *DiagnosisHistoryInput) { in.DiastolicValue = 29 }},
		{"diastolic high", "blood_pressure_diastolic_value", func(in *DiagnosisHistoryInput) { in.DiastolicValue = 151 }},
		{"heart rate low", "heart_rate_value", func(in *DiagnosisHistoryInput) { in.HeartRateValue = 29 }},
		{"heart rate high", "heart_rate_value", func(in *DiagnosisHistoryInput) { in.HeartRateValue = 221 }},
		{"respiratory low", "respiratory_rate_value", func(in *DiagnosisHistoryInput) { in.RespiratoryRateValue = 4 }},
		{"respiratory high", "respiratory_rate_value", func(in *DiagnosisHistoryInput) { in.RespiratoryRateValue = 61 }},
		{"temperature low", "temperature_value", func(in *DiagnosisHistoryInput) { in.TemperatureValue = 94.9 }},
		{"temperature high", "temperature_value", func(in *DiagnosisHistoryInput) { in.TemperatureValue = 108.1 }},
		{"year low", "year", func(in *DiagnosisHistoryInput) { in.Year = 1899 }},
		{"year high", "year", func(in *DiagnosisHistoryInput) { in.Year = 2101 }},
		{"bad level", "temperature_levels", func(in *DiagnosisHistoryInput) { in.TemperatureLevel = "feverish" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validHistory(uuid.New())
			tt.edit(&in)
			errs := in.Validate()
			if !errs.Has(tt.field) {
				t.Errorf("expected error on %s, got %v", tt.field, errs)
			}
			if len(errs) != 1 {
				t.Errorf("expected only %s to fail, got %v", tt.field, errs)
			}
		})
	}
}

func TestDiagnosisHistoryInput_Bounds(t *testing.T) {
	in := validHistory(uuid.New())
	in.SystolicValue, in.DiastolicValue = 250, 30
	in.HeartRateValue, in.RespiratoryRateValue = 220, 5
	in.TemperatureValue = 95.0
	in.Year = 1900
	if errs := in.Validate(); len(errs) != 0 {
		t.Errorf("expected inclusive bounds to pass, got %v", errs)
	}
}

func TestDiagnostic_MarshalJSON(t *testing.T) {
	d := Diagnostic{Name: "Diabetes", Status: "active"}
	b, err := json.Marshal(d)
	if err != nil {
		t.Fatal(err)
	}
	var out map[string]interface{}
	json.Unmarshal(b, &out)
	if out["status_display"] != "Actively being treated" {
		t.Errorf("expected status display, got %v", out["status_display"])
	}
	if out["diagnosed_date"] != nil {
		t.Errorf("expected null diagnosed_date, got %v", out["diagnosed_date"])
	}
}
