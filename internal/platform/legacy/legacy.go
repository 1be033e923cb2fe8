// Package legacy copies records out of the previous Django deployment into
// the Postgres schema. Profile and record ids are kept as they were; users
// had integer keys and get a stable UUID derived from the old key. Password
// hashes are copied verbatim and upgraded on the next successful login.
//
// Every insert skips rows that already exist, so an import can be re-run
// after a partial failure or against a database that is already in use.
package legacy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hms/hms/internal/domain/clinical"
	"github.com/hms/hms/internal/platform/db"
)

// userNamespace seeds the UUIDs of users whose legacy key is an integer.
var userNamespace = uuid.MustParse("6f1c7a52-3d0e-4c55-9a3f-5d8c1b0e2a41")

// Tables lists the imported tables in dependency order.
var Tables = []string{"users", "patients", "doctors", "diagnosis_histories", "diagnostics", "lab_results", "appointments"}

type User struct {
	ID             string
	Password       string
	LastLogin      *time.Time
	IsSuperuser    bool
	IsStaff        bool
	IsActive       bool
	FirstName      string
	LastName       string
	Email          string
	UserType       string
	PhoneNumber    string
	ProfilePicture *string
	DateJoined     time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Patient struct {
	ID               string
	UserID           string
	Gender           string
	DateOfBirth      time.Time
	EmergencyContact string
	InsuranceType    string
}

type Doctor struct {
	ID                   string
	UserID               string
	Specialization       string
	LicenseNumber        string
	Biography            string
	YearsOfExperience    int
	AcceptingNewPatients bool
}

type DiagnosisHistory struct {
	ID                   string
	PatientID            string
	DoctorID             *string
	Month                string
	Year                 int
	SystolicValue        int
	SystolicLevel        string
	DiastolicValue       int
	DiastolicLevel       string
	HeartRateValue       int
	HeartRateLevel       string
	RespiratoryRateValue int
	RespiratoryRateLevel string
	TemperatureValue     float64
	TemperatureLevel     string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

type Diagnostic struct {
	ID            string
	PatientID     string
	DoctorID      *string
	Name          string
	Description   string
	Status        string
	DiagnosedDate *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type LabResult struct {
	ID             string
	PatientID      string
	DoctorID       *string
	Name           string
	ResultValue    string
	ResultUnit     string
	ReferenceRange string
	Status         string
	PerformedDate  time.Time
	ReportedDate   *time.Time
	Notes          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Appointment struct {
	ID              string
	PatientID       string
	DoctorID        string
	AppointmentDate time.Time
	AppointmentTime string
	AppointmentType string
	Reason          string
	Status          string
	Notes           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Reader yields the legacy rows of each table.
type Reader interface {
	Users(ctx context.Context) ([]User, error)
	Patients(ctx context.Context) ([]Patient, error)
	Doctors(ctx context.Context) ([]Doctor, error)
	DiagnosisHistories(ctx context.Context) ([]DiagnosisHistory, error)
	Diagnostics(ctx context.Context) ([]Diagnostic, error)
	LabResults(ctx context.Context) ([]LabResult, error)
	Appointments(ctx context.Context) ([]Appointment, error)
}

// Counts describes the outcome for one table.
type Counts struct {
	Read     int `json:"read"`
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}

// Report maps table names from Tables to their counts.
type Report map[string]Counts

// Importer writes legacy rows through dst inside a single transaction.
type Importer struct {
	src Reader
	dst db.Querier
	tx  db.Transactor
}

func NewImporter(src Reader, dst db.Querier, tx db.Transactor) *Importer {
	return &Importer{src: src, dst: dst, tx: tx}
}

// Run copies every table. Nothing is committed if any table fails.
func (im *Importer) Run(ctx context.Context) (Report, error) {
	var report Report
	err := im.tx.WithTx(ctx, func(ctx context.Context) error {
		report = Report{}
		q := db.ConnFromContext(ctx, im.dst)
		steps := []struct {
			table string
			run   func(context.Context, db.Querier) (Counts, error)
		}{
			{"users", im.users},
			{"patients", im.patients},
			{"doctors", im.doctors},
			{"diagnosis_histories", im.histories},
			{"diagnostics", im.diagnostics},
			{"lab_results", im.labResults},
			{"appointments", im.appointments},
		}
		for _, s := range steps {
			c, err := s.run(ctx, q)
			if err != nil {
				return fmt.Errorf("import %s: %w", s.table, err)
			}
			report[s.table] = c
			log.Info().Str("table", s.table).Int("read", c.Read).Int("inserted", c.Inserted).
				Int("skipped", c.Skipped).Msg("legacy table imported")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// insertAll runs insert once per row. A row counts as skipped when its id
// already exists; any other constraint violation fails the import.
func insertAll[T any](ctx context.Context, q db.Querier, rows []T, insert string, args func(T) ([]any, error)) (Counts, error) {
	c := Counts{Read: len(rows)}
	for i, row := range rows {
		a, err := args(row)
		if err != nil {
			return c, fmt.Errorf("row %d: %w", i, err)
		}
		tag, err := q.Exec(ctx, insert, a...)
		if err != nil {
			return c, fmt.Errorf("row %d (id %v): %w", i, a[0], db.MapError(err))
		}
		if tag.RowsAffected() > 0 {
			c.Inserted++
		} else {
			c.Skipped++
		}
	}
	return c, nil
}

// UserID converts a legacy user key. UUID keys are kept; integer keys map to
// a name-based UUID so that repeated imports agree.
func UserID(raw string) uuid.UUID {
	raw = strings.TrimSpace(raw)
	if id, err := uuid.Parse(raw); err == nil {
		return id
	}
	return uuid.NewSHA1(userNamespace, []byte("user:"+raw))
}

// parseID accepts both the dashed form and the 32 hex digits MySQL stores.
func parseID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s %q: %w", field, raw, err)
	}
	return id, nil
}

func parseOptionalID(field string, raw *string) (*uuid.UUID, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	id, err := parseID(field, *raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func optionalDate(t *time.Time) *civil.Date {
	if t == nil {
		return nil
	}
	d := civil.DateOf(*t)
	return &d
}

const insertUser = `INSERT INTO users (id, email, password_hash, first_name, last_name, user_type,
	phone_number, profile_picture, is_active, is_staff, is_superuser, last_login, date_joined, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	ON CONFLICT (id) DO NOTHING`

func userArgs(u User) ([]any, error) {
	picture := ""
	if u.ProfilePicture != nil {
		picture = *u.ProfilePicture
	}
	userType := u.UserType
	if userType == "" && (u.IsStaff || u.IsSuperuser) {
		userType = "admin"
	}
	return []any{UserID(u.ID), strings.TrimSpace(u.Email), u.Password, u.FirstName, u.LastName, userType,
		u.PhoneNumber, picture, u.IsActive, u.IsStaff, u.IsSuperuser, u.LastLogin, u.DateJoined, u.CreatedAt, u.UpdatedAt}, nil
}

func (im *Importer) users(ctx context.Context, q db.Querier) (Counts, error) {
	rows, err := im.src.Users(ctx)
	if err != nil {
		return Counts{}, err
	}
	return insertAll(ctx, q, rows, insertUser, userArgs)
}

const insertPatient = `INSERT INTO patient (id, user_id, gender, date_of_birth, emergency_contact, insurance_type)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (id) DO NOTHING`

func patientArgs(p Patient) ([]any, error) {
	id, err := parseID("id", p.ID)
	if err != nil {
		return nil, err
	}
	return []any{id, UserID(p.UserID), p.Gender, db.DateValue(civil.DateOf(p.DateOfBirth)),
		p.EmergencyContact, p.InsuranceType}, nil
}

func (im *Importer) patients(ctx context.Context, q db.Querier) (Counts, error) {
	rows, err := im.src.Patients(ctx)
	if err != nil {
		return Counts{}, err
	}
	return insertAll(ctx, q, rows, insertPatient, patientArgs)
}

const insertDoctor = `INSERT INTO doctor (id, user_id, specialization, license_number, biography,
	years_of_experience, accepting_new_patients)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (id) DO NOTHING`

func doctorArgs(d Doctor) ([]any, error) {
	id, err := parseID("id", d.ID)
	if err != nil {
		return nil, err
	}
	return []any{id, UserID(d.UserID), d.Specialization, d.LicenseNumber, d.Biography,
		d.YearsOfExperience, d.AcceptingNewPatients}, nil
}

func (im *Importer) doctors(ctx context.Context, q db.Querier) (Counts, error) {
	rows, err := im.src.Doctors(ctx)
	if err != nil {
		return Counts{}, err
	}
	return insertAll(ctx, q, rows, insertDoctor, doctorArgs)
}

const insertHistory = `INSERT INTO diagnosis_history (id, patient_id, doctor_id, month, year,
	systolic_value, systolic_level, diastolic_value, diastolic_level, heart_rate_value, heart_rate_level,
	respiratory_rate_value, respiratory_rate_level, temperature_value, temperature_level, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	ON CONFLICT (id) DO NOTHING`

func historyArgs(h DiagnosisHistory) ([]any, error) {
	id, err := parseID("id", h.ID)
	if err != nil {
		return nil, err
	}
	patientID, err := parseID("patient_id", h.PatientID)
	if err != nil {
		return nil, err
	}
	doctorID, err := parseOptionalID("doctor_id", h.DoctorID)
	if err != nil {
		return nil, err
	}
	month := h.Month
	if m, ok := clinical.NormalizeMonth(month); ok {
		month = m
	}
	return []any{id, patientID, doctorID, month, h.Year,
		h.SystolicValue, h.SystolicLevel, h.DiastolicValue, h.DiastolicLevel, h.HeartRateValue, h.HeartRateLevel,
		h.RespiratoryRateValue, h.RespiratoryRateLevel, h.TemperatureValue, h.TemperatureLevel, h.CreatedAt, h.UpdatedAt}, nil
}

func (im *Importer) histories(ctx context.Context, q db.Querier) (Counts, error) {
	rows, err := im.src.DiagnosisHistories(ctx)
	if err != nil {
		return Counts{}, err
	}
	return insertAll(ctx, q, rows, insertHistory, historyArgs)
}

const insertDiagnostic = `INSERT INTO diagnostic (id, patient_id, doctor_id, name, description, status,
	diagnosed_date, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (id) DO NOTHING`

func diagnosticArgs(d Diagnostic) ([]any, error) {
	id, err := parseID("id", d.ID)
	if err != nil {
		return nil, err
	}
	patientID, err := parseID("patient_id", d.PatientID)
	if err != nil {
		return nil, err
	}
	doctorID, err := parseOptionalID("doctor_id", d.DoctorID)
	if err != nil {
		return nil, err
	}
	return []any{id, patientID, doctorID, d.Name, d.Description, d.Status,
		db.NullDateValue(optionalDate(d.DiagnosedDate)), d.CreatedAt, d.UpdatedAt}, nil
}

func (im *Importer) diagnostics(ctx context.Context, q db.Querier) (Counts, error) {
	rows, err := im.src.Diagnostics(ctx)
	if err != nil {
		return Counts{}, err
	}
	return insertAll(ctx, q, rows, insertDiagnostic, diagnosticArgs)
}

const insertLabResult = `INSERT INTO lab_result (id, patient_id, doctor_id, name, result_value, result_unit,
	reference_range, status, performed_date, reported_date, notes, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (id) DO NOTHING`

func labResultArgs(l LabResult) ([]any, error) {
	id, err := parseID("id", l.ID)
	if err != nil {
		return nil, err
	}
	patientID, err := parseID("patient_id", l.PatientID)
	if err != nil {
		return nil, err
	}
	doctorID, err := parseOptionalID("doctor_id", l.DoctorID)
	if err != nil {
		return nil, err
	}
	return []any{id, patientID, doctorID, l.Name, l.ResultValue, l.ResultUnit,
		l.ReferenceRange, l.Status, db.DateValue(civil.DateOf(l.PerformedDate)),
		db.NullDateValue(optionalDate(l.ReportedDate)), l.Notes, l.CreatedAt, l.UpdatedAt}, nil
}

func (im *Importer) labResults(ctx context.Context, q db.Querier) (Counts, error) {
	rows, err := im.src.LabResults(ctx)
	if err != nil {
		return Counts{}, err
	}
	return insertAll(ctx, q, rows, insertLabResult, labResultArgs)
}

const insertAppointment = `INSERT INTO appointment (id, patient_id, doctor_id, appointment_date, appointment_time,
	appointment_type, reason, status, notes, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (id) DO NOTHING`

func appointmentArgs(a Appointment) ([]any, error) {
	id, err := parseID("id", a.ID)
	if err != nil {
		return nil, err
	}
	patientID, err := parseID("patient_id", a.PatientID)
	if err != nil {
		return nil, err
	}
	doctorID, err := parseID("doctor_id", a.DoctorID)
	if err != nil {
		return nil, err
	}
	at, err := civil.ParseTime(strings.TrimSpace(a.AppointmentTime))
	if err != nil {
		return nil, fmt.Errorf("appointment_time %q: %w", a.AppointmentTime, err)
	}
	return []any{id, patientID, doctorID, db.DateValue(civil.DateOf(a.AppointmentDate)), db.TimeValue(at),
		a.AppointmentType, a.Reason, a.Status, a.Notes, a.CreatedAt, a.UpdatedAt}, nil
}

func (im *Importer) appointments(ctx context.Context, q db.Querier) (Counts, error) {
	rows, err := im.src.Appointments(ctx)
	if err != nil {
		return Counts{}, err
	}
	return insertAll(ctx, q, rows, insertAppointment, appointmentArgs)
}
