package diagnostics

import (
	"encoding/json"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/hms/hms/pkg/validation"
)

const DefaultStatus = "pending"

var StatusChoices = map[string]string{
	"normal":   "Normal",
	"abnormal": "Abnormal",
	"critical": "Critical",
	"pending":  "Pending",
}

const dateFormatMessage = "Date has wrong format. Use one of these formats instead: YYYY-MM-DD."

// LabResult is a laboratory test performed for a patient.
type LabResult struct {
	ID             uuid.UUID   `db:"id" json:"id"`
	PatientID      uuid.UUID   `db:"patient_id" json:"patient_id"`
	PatientName    string      `json:"patient_name"`
	DoctorID       *uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	DoctorName     string      `json:"doctor_name"`
	Name           string      `db:"name" json:"name"`
	ResultValue    string      `db:"result_value" json:"result_value"`
	ResultUnit     string      `db:"result_unit" json:"result_unit"`
	ReferenceRange string      `db:"reference_range" json:"reference_range"`
	Status         string      `db:"status" json:"status"`
	PerformedDate  civil.Date  `db:"performed_date" json:"performed_date"`
	ReportedDate   *civil.Date `db:"reported_date" json:"reported_date"`
	Notes          string      `db:"notes" json:"notes"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at" json:"updated_at"`
}

// IsReported reports whether the lab has returned the result.
func (r *LabResult) IsReported() bool {
	return r.ReportedDate != nil
}

func (r LabResult) MarshalJSON() ([]byte, error) {
	type plain LabResult
	return json.Marshal(struct {
		plain
		StatusDisplay string `json:"status_display"`
	}{plain(r), StatusChoices[r.Status]})
}

type LabResultInput struct {
	PatientID      uuid.UUID  `json:"patient_id"`
	DoctorID       *uuid.UUID `json:"doctor_id"`
	Name           string     `json:"name"`
	ResultValue    string     `json:"result_value"`
	ResultUnit     string     `json:"result_unit"`
	ReferenceRange string     `json:"reference_range"`
	Status         string     `json:"status"`
	PerformedDate  string     `json:"performed_date"`
	ReportedDate   *string    `json:"reported_date"`
	Notes          string     `json:"notes"`
}

func LabResultInputFrom(r *LabResult) LabResultInput {
	in := LabResultInput{
		PatientID:      r.PatientID,
		DoctorID:       r.DoctorID,
		Name:           r.Name,
		ResultValue:    r.ResultValue,
		ResultUnit:     r.ResultUnit,
		ReferenceRange: r.ReferenceRange,
		Status:         r.Status,
		PerformedDate:  r.PerformedDate.String(),
		Notes:          r.Notes,
	}
	if r.ReportedDate != nil {
		s := r.ReportedDate.String()
		in.ReportedDate = &s
	}
	return in
}

// Validate checks the fields and returns a LabResult carrying them. The
// reported date may not precede the performed date.
func (in *LabResultInput) Validate() (*LabResult, validation.Errors) {
	errs := validation.Errors{}
	r := &LabResult{
		PatientID:      in.PatientID,
		DoctorID:       in.DoctorID,
		Name:           strings.TrimSpace(in.Name),
		ResultValue:    in.ResultValue,
		ResultUnit:     in.ResultUnit,
		ReferenceRange: in.ReferenceRange,
		Status:         in.Status,
		Notes:          in.Notes,
	}

	if errs.Required("name", r.Name) {
		errs.MaxLength("name", r.Name, 255)
	}
	errs.MaxLength("result_value", r.ResultValue, 255)
	errs.MaxLength("result_unit", r.ResultUnit, 50)
	errs.MaxLength("reference_range", r.ReferenceRange, 255)
	if r.Status == "" {
		r.Status = DefaultStatus
	}
	errs.Choice("status", r.Status, StatusChoices)

	performedOK := false
	if errs.Required("performed_date", in.PerformedDate) {
		d, err := civil.ParseDate(strings.TrimSpace(in.PerformedDate))
		if err != nil {
			errs.Add("performed_date", dateFormatMessage)
		} else {
			r.PerformedDate = d
			performedOK = true
		}
	}
	if in.ReportedDate != nil && strings.TrimSpace(*in.ReportedDate) != "" {
		d, err := civil.ParseDate(strings.TrimSpace(*in.ReportedDate))
		switch {
		case err != nil:
			errs.Add("reported_date", dateFormatMessage)
		case performedOK && d.Before(r.PerformedDate):
			errs.Add("reported_date", "Reported date cannot be before the performed date.")
		default:
			r.ReportedDate = &d
		}
	}
	return r, errs
}
