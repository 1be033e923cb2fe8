// Package fixtures loads YAML seed data through the domain services, so
// fixtures pass the same validation as API requests. Records refer to each
// other by fixture key rather than by id.
package fixtures

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/hms/hms/internal/domain/accounts"
	"github.com/hms/hms/internal/domain/clinical"
	"github.com/hms/hms/internal/domain/diagnostics"
	"github.com/hms/hms/internal/domain/identity"
	"github.com/hms/hms/internal/domain/scheduling"
	"github.com/hms/hms/internal/platform/db"
)

// File is the top-level fixture document.
type File struct {
	Users              []User             `yaml:"users"`
	Patients           []Patient          `yaml:"patients"`
	Doctors            []Doctor           `yaml:"doctors"`
	DiagnosisHistories []DiagnosisHistory `yaml:"diagnosis_histories"`
	Diagnostics        []Diagnostic       `yaml:"diagnostics"`
	LabResults         []LabResult        `yaml:"lab_results"`
	Appointments       []Appointment      `yaml:"appointments"`
}

type User struct {
	Email       string `yaml:"email"`
	Password    string `yaml:"password"`
	FirstName   string `yaml:"first_name"`
	LastName    string `yaml:"last_name"`
	UserType    string `yaml:"user_type"`
	PhoneNumber string `yaml:"phone_number"`
	Superuser   bool   `yaml:"superuser"`
}

func (u User) input() accounts.UserInput {
	return accounts.UserInput{
		Email:       u.Email,
		Password:    u.Password,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		UserType:    u.UserType,
		PhoneNumber: u.PhoneNumber,
	}
}

type Patient struct {
	Key              string `yaml:"key"`
	User             User   `yaml:"user"`
	Gender           string `yaml:"gender"`
	DateOfBirth      string `yaml:"date_of_birth"`
	EmergencyContact string `yaml:"emergency_contact"`
	InsuranceType    string `yaml:"insurance_type"`
}

type Doctor struct {
	Key                  string `yaml:"key"`
	User                 User   `yaml:"user"`
	Specialization       string `yaml:"specialization"`
	LicenseNumber        string `yaml:"license_number"`
	Biography            string `yaml:"biography"`
	YearsOfExperience    int    `yaml:"years_of_experience"`
	AcceptingNewPatients *bool  `yaml:"accepting_new_patients"`
}

type DiagnosisHistory struct {
	Patient              string  `yaml:"patient"`
	Doctor               string  `yaml:"doctor"`
	Month                string  `yaml:"month"`
	Year                 int     `yaml:"year"`
	SystolicValue        int     `yaml:"blood_pressure_systolic_value"`
	SystolicLevel        string  `yaml:"blood_pressure_systolic_levels"`
	DiastolicValue       int     `yaml:"blood_pressure_diastolic_value"`
	DiastolicLevel       string  `yaml:"blood_pressure_diastolic_levels"`
	HeartRateValue       int     `yaml:"heart_rate_value"`
	HeartRateLevel       string  `yaml:"heart_rate_levels"`
	RespiratoryRateValue int     `yaml:"respiratory_rate_value"`
	RespiratoryRateLevel string  `yaml:"respiratory_rate_levels"`
	TemperatureValue     float64 `yaml:"temperature_value"`
	TemperatureLevel     string  `yaml:"temperature_levels"`
}

type Diagnostic struct {
	Patient       string  `yaml:"patient"`
	Doctor        string  `yaml:"doctor"`
	Name          string  `yaml:"name"`
	Description   string  `yaml:"description"`
	Status        string  `yaml:"status"`
	DiagnosedDate *string `yaml:"diagnosed_date"`
}

type LabResult struct {
	Patient        string  `yaml:"patient"`
	Doctor         string  `yaml:"doctor"`
	Name           string  `yaml:"name"`
	ResultValue    string  `yaml:"result_value"`
	ResultUnit     string  `yaml:"result_unit"`
	ReferenceRange string  `yaml:"reference_range"`
	Status         string  `yaml:"status"`
	PerformedDate  string  `yaml:"performed_date"`
	ReportedDate   *string `yaml:"reported_date"`
	Notes          string  `yaml:"notes"`
}

type Appointment struct {
	Patient         string `yaml:"patient"`
	Doctor          string `yaml:"doctor"`
	AppointmentDate string `yaml:"appointment_date"`
	AppointmentTime string `yaml:"appointment_time"`
	AppointmentType string `yaml:"appointment_type"`
	Reason          string `yaml:"reason"`
	Status          string `yaml:"status"`
	Notes           string `yaml:"notes"`
}

// Services are the write operations a fixture file can reach.
type Services struct {
	Users interface {
		CreateUser(ctx context.Context, in accounts.UserInput) (*accounts.User, error)
		CreateSuperuser(ctx context.Context, in accounts.UserInput) (*accounts.User, error)
	}
	Identity interface {
		CreatePatient(ctx context.Context, in identity.PatientInput) (*identity.Patient, error)
		CreateDoctor(ctx context.Context, in identity.DoctorInput) (*identity.Doctor, error)
	}
	Clinical interface {
		CreateDiagnosisHistory(ctx context.Context, in clinical.DiagnosisHistoryInput) (*clinical.DiagnosisHistory, error)
		CreateDiagnostic(ctx context.Context, in clinical.DiagnosticInput) (*clinical.Diagnostic, error)
	}
	Labs interface {
		CreateLabResult(ctx context.Context, in diagnostics.LabResultInput) (*diagnostics.LabResult, error)
	}
	Appointments interface {
		CreateAppointment(ctx context.Context, in scheduling.AppointmentInput) (*scheduling.Appointment, error)
	}
}

// Summary counts the records created per section.
type Summary map[string]int

// Loader applies fixture files inside one transaction.
type Loader struct {
	svc Services
	tx  db.Transactor
}

func NewLoader(svc Services, tx db.Transactor) *Loader {
	return &Loader{svc: svc, tx: tx}
}

// Parse decodes a fixture document. Unknown keys are rejected.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}
	return &f, nil
}

// Load creates every record of the given files. Nothing is written when any
// record fails.
func (l *Loader) Load(ctx context.Context, files ...*File) (Summary, error) {
	var sum Summary
	err := l.tx.WithTx(ctx, func(ctx context.Context) error {
		sum = Summary{}
		run := &loadRun{svc: l.svc, sum: sum, patients: map[string]uuid.UUID{}, doctors: map[string]uuid.UUID{}}
		for _, f := range files {
			if err := run.apply(ctx, f); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info().Interface("created", sum).Msg("fixtures loaded")
	return sum, nil
}

type loadRun struct {
	svc      Services
	sum      Summary
	patients map[string]uuid.UUID
	doctors  map[string]uuid.UUID
}

func (r *loadRun) patient(key string) (uuid.UUID, error) {
	id, ok := r.patients[key]
	if !ok {
		return uuid.Nil, fmt.Errorf("unknown patient %q", key)
	}
	return id, nil
}

// doctor resolves an optional doctor key.
func (r *loadRun) doctor(key string) (*uuid.UUID, error) {
	if key == "" {
		return nil, nil
	}
	id, ok := r.doctors[key]
	if !ok {
		return nil, fmt.Errorf("unknown doctor %q", key)
	}
	return &id, nil
}

func (r *loadRun) apply(ctx context.Context, f *File) error {
	for i, u := range f.Users {
		create := r.svc.Users.CreateUser
		if u.Superuser {
			create = r.svc.Users.CreateSuperuser
		}
		if _, err := create(ctx, u.input()); err != nil {
			return fmt.Errorf("users[%d] %s: %w", i, u.Email, err)
		}
		r.sum["users"]++
	}

	for i, p := range f.Patients {
		user := p.User.input()
		created, err := r.svc.Identity.CreatePatient(ctx, identity.PatientInput{
			User:             &user,
			Gender:           p.Gender,
			DateOfBirth:      p.DateOfBirth,
			EmergencyContact: p.EmergencyContact,
			InsuranceType:    p.InsuranceType,
		})
		if err != nil {
			return fmt.Errorf("patients[%d] %s: %w", i, p.Key, err)
		}
		if p.Key != "" {
			r.patients[p.Key] = created.ID
		}
		r.sum["patients"]++
	}

	for i, d := range f.Doctors {
		user := d.User.input()
		created, err := r.svc.Identity.CreateDoctor(ctx, identity.DoctorInput{
			User:                 &user,
			Specialization:       d.Specialization,
			LicenseNumber:        d.LicenseNumber,
			Biography:            d.Biography,
			YearsOfExperience:    d.YearsOfExperience,
			AcceptingNewPatients: d.AcceptingNewPatients,
		})
		if err != nil {
			return fmt.Errorf("doctors[%d] %s: %w", i, d.Key, err)
		}
		if d.Key != "" {
			r.doctors[d.Key] = created.ID
		}
		r.sum["doctors"]++
	}

	for i, h := range f.DiagnosisHistories {
		patientID, err := r.patient(h.Patient)
		if err != nil {
			return fmt.Errorf("diagnosis_histories[%d]: %w", i, err)
		}
		doctorID, err := r.doctor(h.Doctor)
		if err != nil {
			return fmt.Errorf("diagnosis_histories[%d]: %w", i, err)
		}
		_, err = r.svc.Clinical.CreateDiagnosisHistory(ctx, clinical.DiagnosisHistoryInput{
			PatientID:            patientID,
			DoctorID:             doctorID,
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
		})
		if err != nil {
			return fmt.Errorf("diagnosis_histories[%d]: %w", i, err)
		}
		r.sum["diagnosis_histories"]++
	}

	for i, d := range f.Diagnostics {
		patientID, err := r.patient(d.Patient)
		if err != nil {
			return fmt.Errorf("diagnostics[%d]: %w", i, err)
		}
		doctorID, err := r.doctor(d.Doctor)
		if err != nil {
			return fmt.Errorf("diagnostics[%d]: %w", i, err)
		}
		_, err = r.svc.Clinical.CreateDiagnostic(ctx, clinical.DiagnosticInput{
			PatientID:     patientID,
			DoctorID:      doctorID,
			Name:          d.Name,
			Description:   d.Description,
			Status:        d.Status,
			DiagnosedDate: d.DiagnosedDate,
		})
		if err != nil {
			return fmt.Errorf("diagnostics[%d]: %w", i, err)
		}
		r.sum["diagnostics"]++
	}

	for i, l := range f.LabResults {
		patientID, err := r.patient(l.Patient)
		if err != nil {
			return fmt.Errorf("lab_results[%d]: %w", i, err)
		}
		doctorID, err := r.doctor(l.Doctor)
		if err != nil {
			return fmt.Errorf("lab_results[%d]: %w", i, err)
		}
		_, err = r.svc.Labs.CreateLabResult(ctx, diagnostics.LabResultInput{
			PatientID:      patientID,
			DoctorID:       doctorID,
			Name:           l.Name,
			ResultValue:    l.ResultValue,
			ResultUnit:     l.ResultUnit,
			ReferenceRange: l.ReferenceRange,
			Status:         l.Status,
			PerformedDate:  l.PerformedDate,
			ReportedDate:   l.ReportedDate,
			Notes:          l.Notes,
		})
		if err != nil {
			return fmt.Errorf("lab_results[%d]: %w", i, err)
		}
		r.sum["lab_results"]++
	}

	for i, a := range f.Appointments {
		patientID, err := r.patient(a.Patient)
		if err != nil {
			return fmt.Errorf("appointments[%d]: %w", i, err)
		}
		doctorID, err := r.doctor(a.Doctor)
		if err != nil {
			return fmt.Errorf("appointments[%d]: %w", i, err)
		}
		if doctorID == nil {
			return fmt.Errorf("appointments[%d]: doctor is required", i)
		}
		_, err = r.svc.Appointments.CreateAppointment(ctx, scheduling.AppointmentInput{
			PatientID:       patientID,
			DoctorID:        *doctorID,
			AppointmentDate: a.AppointmentDate,
			AppointmentTime: a.AppointmentTime,
			AppointmentType: a.AppointmentType,
			Reason:          a.Reason,
			Status:          a.Status,
			Notes:           a.Notes,
		})
		if err != nil {
			return fmt.Errorf("appointments[%d]: %w", i, err)
		}
		r.sum["appointments"]++
	}
	return nil
}
