package clinical

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/hms/hms/pkg/validation"
)

const DefaultLevel = "normal"

// LevelChoices grade a vital sign against the patient's expected range.
var LevelChoices = map[string]string{
	"normal":              "Normal",
	"lower_than_average":  "Lower than Average",
	"higher_than_average": "Higher than Average",
	"critical_low":        "Critical Low",
	"critical_high":       "Critical High",
}

const DefaultDiagnosticStatus = "active"

var DiagnosticStatusChoices = map[string]string{
	"active":     "Actively being treated",
	"controlled": "Controlled",
	"resolved":   "Resolved",
	"monitoring": "Monitoring",
	"chronic":    "Chronic",
}

// NormalizeMonth maps an English month name in any letter case onto its
// title-case form.
func NormalizeMonth(s string) (string, bool) {
	s = strings.TrimSpace(s)
	for m := time.January; m <= time.December; m++ {
		if strings.EqualFold(s, m.String()) {
			return m.String(), true
		}
	}
	return "", false
}

// -- Diagnosis History --

// DiagnosisHistory is one month of recorded vitals for a patient.
type DiagnosisHistory struct {
	ID                   uuid.UUID  `db:"id" json:"id"`
	PatientID            uuid.UUID  `db:"patient_id" json:"patient_id"`
	PatientName          string     `json:"patient_name"`
	DoctorID             *uuid.UUID `db:"doctor_id" json:"doctor_id"`
	DoctorName           string     `json:"doctor_name"`
	Month                string     `db:"month" json:"month"`
	Year                 int        `db:"year" json:"year"`
	SystolicValue        int        `db:"systolic_value" json:"blood_pressure_systolic_value"`
	SystolicLevel        string     `db:"systolic_level" json:"blood_pressure_systolic_levels"`
	DiastolicValue       int        `db:"diastolic_value" json:"blood_pressure_diastolic_value"`
	DiastolicLevel       string     `db:"diastolic_level" json:"blood_pressure_diastolic_levels"`
	HeartRateValue       int        `db:"heart_rate_value" json:"heart_rate_value"`
	HeartRateLevel       string     `db:"heart_rate_level" json:"heart_rate_levels"`
	RespiratoryRateValue int        `db:"respiratory_rate_value" json:"respiratory_rate_value"`
	RespiratoryRateLevel string     `db:"respiratory_rate_level" json:"respiratory_rate_levels"`
	TemperatureValue     float64    `db:"temperature_value" json:"temperature_value"`
	TemperatureLevel     string     `db:"temperature_level" json:"temperature_levels"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

// Period is the "Month Year" label of the record.
func (h *DiagnosisHistory) Period() string {
	return h.Month + " " + strconv.Itoa(h.Year)
}

// DiagnosisHistoryInput is the writable part of a DiagnosisHistory.
type DiagnosisHistoryInput struct {
	PatientID            uuid.UUID  `json:"patient_id"`
	DoctorID             *uuid.UUID `json:"doctor_id"`
	Month                string     `json:"month"`
	Year                 int        `json:"year"`
	SystolicValue        int        `json:"blood_pressure_systolic_value"`
	SystolicLevel        string     `json:"blood_pressure_systolic_levels"`
	DiastolicValue       int        `json:"blood_pressure_diastolic_value"`
	DiastolicLevel       string     `json:"blood_pressure_diastolic_levels"`
	HeartRateValue       int        `json:"heart_rate_value"`
	HeartRateLevel       string     `json:"heart_rate_levels"`
	RespiratoryRateValue int        `json:"respiratory_rate_value"`
	RespiratoryRateLevel string     `json:"respiratory_rate_levels"`
	TemperatureValue     float64    `json:"temperature_value"`
	TemperatureLevel     string     `json:"temperature_levels"`
}

func DiagnosisHistoryInputFrom(h *DiagnosisHistory) DiagnosisHistoryInput {
	return DiagnosisHistoryInput{
		PatientID:            h.PatientID,
		DoctorID:             h.DoctorID,
		Month:                h.Month,
		Year:                 h.Year,
		SystolicValue:        h.SystolicValue,
		SystolicLevel:        h.SystolicLevel,
		DiastolicValue:       h.DiastolicValue,
		DiastolicLevel:       h.DiastolicLevel,
		HeartRateValue:       h.HeartRateValue,
		HeartRateLevel:       h.HeartRateLevel,
		RespiratoryRateValue: h.RespiratoryRateValue,
		RespiratoryRateLevel: h.RespiratoryRateLevel,
		TemperatureValue:     h.TemperatureValue,
		TemperatureLevel:     h.TemperatureLevel,
	}
}

// Validate checks ranges and choices. It normalizes the month and fills in
// default levels.
func (in *DiagnosisHistoryInput) Validate() validation.Errors {
	errs := validation.Errors{}

	if errs.Required("month", in.Month) {
		if m, ok := NormalizeMonth(in.Month); ok {
			in.Month = m
		} else {
			errs.Add("month", "Enter a full English month name, for example \"January\".")
		}
	}
	errs.Between("year", float64(in.Year), 1900, 2100)

	errs.Between("blood_pressure_systolic_value", float64(in.SystolicValue), 50, 250)
	errs.Between("blood_pressure_diastolic_value", float64(in.DiastolicValue), 30, 150)
	errs.Between("heart_rate_value", float64(in.HeartRateValue), 30, 220)
	errs.Between("respiratory_rate_value", float64(in.RespiratoryRateValue), 5, 60)
	errs.Between("temperature_value", in.TemperatureValue, 95.0, 108.0)

	levels := []struct {
		field string
		value *string
	}{
		{"blood_pressure_systolic_levels", &in.SystolicLevel},
		{"blood_pressure_diastolic_levels", &in.DiastolicLevel},
		{"heart_rate_levels", &in.HeartRateLevel},
		{"respiratory_rate_levels", &in.RespiratoryRateLevel},
		{"temperature_levels", &in.TemperatureLevel},
	}
	for _, l := range levels {
		if *l.value == "" {
			*l.value = DefaultLevel
		}
		errs.Choice(l.field, *l.value, LevelChoices)
	}
	return errs
}

func (in *DiagnosisHistoryInput) apply(h *DiagnosisHistory) {
	h.PatientID = in.PatientID
	h.DoctorID = in.DoctorID
	h.Month = in.Month
	h.Year = in.Year
	h.SystolicValue = in.SystolicValue
	h.SystolicLevel = in.SystolicLevel
	h.DiastolicValue = in.DiastolicValue
	h.DiastolicLevel = in.DiastolicLevel
	h.HeartRateValue = in.HeartRateValue
	h.HeartRateLevel = in.HeartRateLevel
	h.RespiratoryRateValue = in.RespiratoryRateValue
	h.RespiratoryRateLevel = in.RespiratoryRateLevel
	h.TemperatureValue = in.TemperatureValue
	h.TemperatureLevel = in.TemperatureLevel
}

// -- Diagnostic --

// Diagnostic is a diagnosed condition on a patient's problem list.
type Diagnostic struct {
	ID            uuid.UUID   `db:"id" json:"id"`
	PatientID     uuid.UUID   `db:"patient_id" json:"patient_id"`
	PatientName   string      `json:"patient_name"`
	DoctorID      *uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	DoctorName    string      `json:"doctor_name"`
	Name          string      `db:"name" json:"name"`
	Description   string      `db:"description" json:"description"`
	Status        string      `db:"status" json:"status"`
	DiagnosedDate *civil.Date `db:"diagnosed_date" json:"diagnosed_date"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at" json:"updated_at"`
}

func (d Diagnostic) MarshalJSON() ([]byte, error) {
	type plain Diagnostic
	return json.Marshal(struct {
		plain
		StatusDisplay string `json:"status_display"`
	}{plain(d), DiagnosticStatusChoices[d.Status]})
}

type DiagnosticInput struct {
	PatientID     uuid.UUID  `json:"patient_id"`
	DoctorID      *uuid.UUID `json:"doctor_id"`
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	Status        string     `json:"status"`
	DiagnosedDate *string    `json:"diagnosed_date"`
}

func DiagnosticInputFrom(d *Diagnostic) DiagnosticInput {
	in := DiagnosticInput{
		PatientID:   d.PatientID,
		DoctorID:    d.DoctorID,
		Name:        d.Name,
		Description: d.Description,
		Status:      d.Status,
	}
	if d.DiagnosedDate != nil {
		s := d.DiagnosedDate.String()
		in.DiagnosedDate = &s
	}
	return in
}

// Validate checks the fields and returns the parsed diagnosed date, which is
// nil when the date was left blank.
func (in *DiagnosticInput) Validate(today civil.Date) (*civil.Date, validation.Errors) {
	errs := validation.Errors{}
	in.Name = strings.TrimSpace(in.Name)
	if errs.Required("name", in.Name) {
		errs.MaxLength("name", in.Name, 255)
	}
	if in.Status == "" {
		in.Status = DefaultDiagnosticStatus
	}
	errs.Choice("status", in.Status, DiagnosticStatusChoices)

	date, ok := parseOptionalDate(errs, "diagnosed_date", in.DiagnosedDate)
	if ok && date != nil && date.After(today) {
		errs.Add("diagnosed_date", "Diagnosed date cannot be in the future.")
	}
	return date, errs
}

func parseOptionalDate(errs validation.Errors, field string, raw *string) (*civil.Date, bool) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, true
	}
	d, err := civil.ParseDate(strings.TrimSpace(*raw))
	if err != nil {
		errs.Add(field, "Date has wrong format. Use one of these formats instead: YYYY-MM-DD.")
		return nil, false
	}
	return &d, true
}
