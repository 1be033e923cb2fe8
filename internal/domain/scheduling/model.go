package scheduling

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/hms/hms/pkg/validation"
)

const (
	StatusScheduled   = "scheduled"
	StatusCompleted   = "completed"
	StatusCancelled   = "cancelled"
	StatusNoShow      = "no_show"
	StatusRescheduled = "rescheduled"
)

var StatusChoices = map[string]string{
	StatusScheduled:   "Scheduled",
	StatusCompleted:   "Completed",
	StatusCancelled:   "Cancelled",
	StatusNoShow:      "No Show",
	StatusRescheduled: "Rescheduled",
}

const DefaultType = "check_up"

var TypeChoices = map[string]string{
	"check_up":     "Regular Check-up",
	"follow_up":    "Follow-up Visit",
	"consultation": "Consultation",
	"emergency":    "Emergency",
	"procedure":    "Medical Procedure",
	"lab_work":     "Laboratory Work",
	"other":        "Other",
}

// transitions lists the statuses reachable from each open status. Completed,
// cancelled and no-show appointments are final.
var transitions = map[string][]string{
	StatusScheduled:   {StatusCompleted, StatusCancelled, StatusNoShow},
	StatusRescheduled: {StatusCompleted, StatusCancelled, StatusNoShow},
}

// CanTransition reports whether an appointment may move from one status to
// another.
func CanTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsOpen reports whether the appointment can still change status or be
// rescheduled.
func IsOpen(status string) bool {
	return len(transitions[status]) > 0
}

// Appointment maps to the appointment table, joined with participant names.
type Appointment struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	PatientID       uuid.UUID  `db:"patient_id" json:"patient_id"`
	PatientName     string     `json:"patient_name"`
	DoctorID        uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	DoctorName      string     `json:"doctor_name"`
	AppointmentDate civil.Date `db:"appointment_date" json:"appointment_date"`
	AppointmentTime civil.Time `db:"appointment_time" json:"appointment_time"`
	AppointmentType string     `db:"appointment_type" json:"appointment_type"`
	Reason          string     `db:"reason" json:"reason"`
	Status          string     `db:"status" json:"status"`
	Notes           string     `db:"notes" json:"notes"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// StartsAt combines the appointment date and time in loc.
func (a *Appointment) StartsAt(loc *time.Location) time.Time {
	return civil.DateTime{Date: a.AppointmentDate, Time: a.AppointmentTime}.In(loc)
}

func (a *Appointment) String() string {
	return fmt.Sprintf("%s with %s on %s at %s", a.PatientName, a.DoctorName, a.AppointmentDate, a.AppointmentTime)
}

func (a Appointment) MarshalJSON() ([]byte, error) {
	type plain Appointment
	return json.Marshal(struct {
		plain
		AppointmentTypeDisplay string `json:"appointment_type_display"`
		StatusDisplay          string `json:"status_display"`
	}{plain(a), TypeChoices[a.AppointmentType], StatusChoices[a.Status]})
}

// AppointmentInput is the writable part of an appointment.
type AppointmentInput struct {
	PatientID       uuid.UUID `json:"patient_id"`
	DoctorID        uuid.UUID `json:"doctor_id"`
	AppointmentDate string    `json:"appointment_date"`
	AppointmentTime string    `json:"appointment_time"`
	AppointmentType string    `json:"appointment_type"`
	Reason          string    `json:"reason"`
	Status          string    `json:"status"`
	Notes           string    `json:"notes"`
}

func AppointmentInputFrom(a *Appointment) AppointmentInput {
	return AppointmentInput{
		PatientID:       a.PatientID,
		DoctorID:        a.DoctorID,
		AppointmentDate: a.AppointmentDate.String(),
		AppointmentTime: a.AppointmentTime.String(),
		AppointmentType: a.AppointmentType,
		Reason:          a.Reason,
		Status:          a.Status,
		Notes:           a.Notes,
	}
}

// Validate checks the fields and returns an Appointment carrying them.
func (in *AppointmentInput) Validate() (*Appointment, validation.Errors) {
	errs := validation.Errors{}
	a := &Appointment{
		PatientID:       in.PatientID,
		DoctorID:        in.DoctorID,
		AppointmentType: in.AppointmentType,
		Reason:          in.Reason,
		Status:          in.Status,
		Notes:           in.Notes,
	}
	if in.DoctorID == uuid.Nil {
		errs.Add("doctor_id", "This field is required.")
	}
	if a.AppointmentType == "" {
		a.AppointmentType = DefaultType
	}
	errs.Choice("appointment_type", a.AppointmentType, TypeChoices)
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	errs.Choice("status", a.Status, StatusChoices)

	if d, ok := parseDate(errs, "appointment_date", in.AppointmentDate); ok {
		a.AppointmentDate = d
	}
	if t, ok := parseTime(errs, "appointment_time", in.AppointmentTime); ok {
		a.AppointmentTime = t
	}
	return a, errs
}

// RescheduleInput moves an appointment to a new slot.
type RescheduleInput struct {
	AppointmentDate string `json:"appointment_date"`
	AppointmentTime string `json:"appointment_time"`
	Notes           string `json:"notes"`
}

func (in *RescheduleInput) Validate() (civil.Date, civil.Time, validation.Errors) {
	errs := validation.Errors{}
	d, _ := parseDate(errs, "appointment_date", in.AppointmentDate)
	t, _ := parseTime(errs, "appointment_time", in.AppointmentTime)
	return d, t, errs
}

// StatusInput changes the status of an appointment.
type StatusInput struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

func parseDate(errs validation.Errors, field, raw string) (civil.Date, bool) {
	if !errs.Required(field, raw) {
		return civil.Date{}, false
	}
	d, err := civil.ParseDate(strings.TrimSpace(raw))
	if err != nil {
		errs.Add(field, "Date has wrong format. Use one of these formats instead: YYYY-MM-DD.")
		return civil.Date{}, false
	}
	return d, true
}

// parseTime accepts "15:04" and "15:04:05[.fraction]".
func parseTime(errs validation.Errors, field, raw string) (civil.Time, bool) {
	if !errs.Required(field, raw) {
		return civil.Time{}, false
	}
	raw = strings.TrimSpace(raw)
	if strings.Count(raw, ":") == 1 {
		raw += ":00"
	}
	t, err := civil.ParseTime(raw)
	if err != nil || !t.IsValid() {
		errs.Add(field, "Time has wrong format. Use one of these formats instead: hh:mm[:ss[.uuuuuu]].")
		return civil.Time{}, false
	}
	return t, true
}
