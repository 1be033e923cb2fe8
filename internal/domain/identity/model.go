package identity

import (
	"encoding/json"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/hms/hms/internal/domain/accounts"
	"github.com/hms/hms/pkg/validation"
)

var GenderChoices = map[string]string{
	"M": "Male",
	"F": "Female",
	"O": "Other",
}

const DefaultInsuranceType = "private"

var InsuranceChoices = map[string]string{
	"private":   "Private",
	"medicare":  "Medicare",
	"medicaid":  "Medicaid",
	"uninsured": "Uninsured",
	"other":     "Other",
}

var SpecializationChoices = map[string]string{
	"general_practitioner": "General Practitioner",
	"cardiologist":         "Cardiologist",
	"dermatologist":        "Dermatologist",
	"endocrinologist":      "Endocrinologist",
	"gastroenterologist":   "Gastroenterologist",
	"neurologist":          "Neurologist",
	"obstetrician":         "Obstetrician",
	"ophthalmologist":      "Ophthalmologist",
	"pediatrician":         "Pediatrician",
	"psychiatrist":         "Psychiatrist",
	"surgeon":              "Surgeon",
	"other":                "Other",
}

const maxYearsOfExperience = 70

// UserSummary is the slice of the owning user embedded in profiles.
type UserSummary struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	PhoneNumber string    `json:"phone_number"`
	IsActive    bool      `json:"is_active"`
}

func (u UserSummary) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func summaryOf(u *accounts.User) UserSummary {
	return UserSummary{
		ID:          u.ID,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		PhoneNumber: u.PhoneNumber,
		IsActive:    u.IsActive,
	}
}

// -- Patient --

// Patient maps to the patient table, joined with its user.
type Patient struct {
	ID               uuid.UUID   `db:"id" json:"id"`
	UserID           uuid.UUID   `db:"user_id" json:"user_id"`
	User             UserSummary `json:"user"`
	Gender           string      `db:"gender" json:"gender"`
	DateOfBirth      civil.Date  `db:"date_of_birth" json:"date_of_birth"`
	EmergencyContact string      `db:"emergency_contact" json:"emergency_contact"`
	InsuranceType    string      `db:"insurance_type" json:"insurance_type"`
	CreatedAt        time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time   `db:"updated_at" json:"updated_at"`
}

// Name is the full name of the patient's user.
func (p *Patient) Name() string {
	return p.User.FullName()
}

// Age returns the patient's age in whole years on the given day.
func (p *Patient) Age(today civil.Date) int {
	born := p.DateOfBirth
	age := today.Year - born.Year
	if today.Month < born.Month || (today.Month == born.Month && today.Day < born.Day) {
		age--
	}
	return age
}

func (p Patient) MarshalJSON() ([]byte, error) {
	type plain Patient
	return json.Marshal(struct {
		plain
		Name                 string `json:"name"`
		Age                  int    `json:"age"`
		GenderDisplay        string `json:"gender_display"`
		InsuranceTypeDisplay string `json:"insurance_type_display"`
	}{
		plain(p),
		p.Name(),
		p.Age(civil.DateOf(time.Now())),
		GenderChoices[p.Gender],
		InsuranceChoices[p.InsuranceType],
	})
}

// PatientInput creates or updates a patient. On create either UserID names
// an existing patient user or User describes a new one.
type PatientInput struct {
	UserID           *uuid.UUID          `json:"user_id,omitempty"`
	User             *accounts.UserInput `json:"user,omitempty"`
	Gender           string              `json:"gender"`
	DateOfBirth      string              `json:"date_of_birth"`
	EmergencyContact string              `json:"emergency_contact"`
	InsuranceType    string              `json:"insurance_type"`
}

// PatientInputFrom returns the input that reproduces p.
func PatientInputFrom(p *Patient) PatientInput {
	return PatientInput{
		Gender:           p.Gender,
		DateOfBirth:      p.DateOfBirth.String(),
		EmergencyContact: p.EmergencyContact,
		InsuranceType:    p.InsuranceType,
	}
}

// Validate checks the patient fields and returns the parsed date of birth.
func (in *PatientInput) Validate(today civil.Date) (civil.Date, validation.Errors) {
	errs := validation.Errors{}
	if errs.Required("gender", in.Gender) {
		errs.Choice("gender", in.Gender, GenderChoices)
	}
	if in.InsuranceType == "" {
		in.InsuranceType = DefaultInsuranceType
	}
	errs.Choice("insurance_type", in.InsuranceType, InsuranceChoices)
	if in.EmergencyContact != "" {
		if errs.MaxLength("emergency_contact", in.EmergencyContact, 17) && !accounts.PhonePattern.MatchString(in.EmergencyContact) {
			errs.Add("emergency_contact", accounts.PhoneMessage)
		}
	}

	var dob civil.Date
	if errs.Required("date_of_birth", in.DateOfBirth) {
		d, err := civil.ParseDate(in.DateOfBirth)
		switch {
		case err != nil:
			errs.Add("date_of_birth", "Date has wrong format. Use one of these formats instead: YYYY-MM-DD.")
		case d.After(today):
			errs.Add("date_of_birth", "Date of birth cannot be in the future.")
		default:
			dob = d
		}
	}
	return dob, errs
}

// -- Doctor --

// Doctor maps to the doctor table, joined with its user.
type Doctor struct {
	ID                   uuid.UUID   `db:"id" json:"id"`
	UserID               uuid.UUID   `db:"user_id" json:"user_id"`
	User                 UserSummary `json:"user"`
	Specialization       string      `db:"specialization" json:"specialization"`
	LicenseNumber        string      `db:"license_number" json:"license_number"`
	Biography            string      `db:"biography" json:"biography"`
	YearsOfExperience    int         `db:"years_of_experience" json:"years_of_experience"`
	AcceptingNewPatients bool        `db:"accepting_new_patients" json:"accepting_new_patients"`
	CreatedAt            time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time   `db:"updated_at" json:"updated_at"`
}

func (d *Doctor) FullName() string {
	return d.User.FullName()
}

// Name is the display name with the "Dr." prefix.
func (d *Doctor) Name() string {
	return "Dr. " + d.FullName()
}

func (d Doctor) MarshalJSON() ([]byte, error) {
	type plain Doctor
	return json.Marshal(struct {
		plain
		Name                  string `json:"name"`
		FullName              string `json:"full_name"`
		SpecializationDisplay string `json:"specialization_display"`
	}{plain(d), d.Name(), d.FullName(), SpecializationChoices[d.Specialization]})
}

// DoctorInput creates or updates a doctor; see PatientInput for the user
// fields.
type DoctorInput struct {
	UserID               *uuid.UUID          `json:"user_id,omitempty"`
	User                 *accounts.UserInput `json:"user,omitempty"`
	Specialization       string              `json:"specialization"`
	LicenseNumber        string              `json:"license_number"`
	Biography            string              `json:"biography"`
	YearsOfExperience    int                 `json:"years_of_experience"`
	AcceptingNewPatients *bool               `json:"accepting_new_patients,omitempty"`
}

func DoctorInputFrom(d *Doctor) DoctorInput {
	accepting := d.AcceptingNewPatients
	return DoctorInput{
		Specialization:       d.Specialization,
		LicenseNumber:        d.LicenseNumber,
		Biography:            d.Biography,
		YearsOfExperience:    d.YearsOfExperience,
		AcceptingNewPatients: &accepting,
	}
}

func (in *DoctorInput) Validate() validation.Errors {
	errs := validation.Errors{}
	if errs.Required("specialization", in.Specialization) {
		errs.Choice("specialization", in.Specialization, SpecializationChoices)
	}
	in.LicenseNumber = strings.TrimSpace(in.LicenseNumber)
	if errs.Required("license_number", in.LicenseNumber) {
		errs.MaxLength("license_number", in.LicenseNumber, 50)
	}
	errs.Between("years_of_experience", float64(in.YearsOfExperience), 0, maxYearsOfExperience)
	return errs
}
