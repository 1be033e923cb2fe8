package legacy

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// DefaultTablePrefix is the Django app label of the legacy tables.
const DefaultTablePrefix = "app_"

// MySQLReader reads the legacy Django tables from MySQL or MariaDB.
type MySQLReader struct {
	db     *sql.DB
	prefix string
}

// NormalizeDSN parses a go-sql-driver DSN and forces the options the reader
// depends on: DATE and DATETIME columns scanned as time.Time, in UTC.
func NormalizeDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse legacy dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}

// Open connects to the legacy database and pings it.
func Open(ctx context.Context, dsn string) (*MySQLReader, error) {
	normalized, err := NormalizeDSN(dsn)
	if err != nil {
		return nil, err
	}
	conn, err := sql.Open("mysql", normalized)
	if err != nil {
		return nil, fmt.Errorf("open legacy database: %w", err)
	}
	conn.SetMaxOpenConns(4)
	conn.SetConnMaxLifetime(5 * time.Minute)
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping legacy database: %w", err)
	}
	return &MySQLReader{db: conn, prefix: DefaultTablePrefix}, nil
}

func (r *MySQLReader) Close() error {
	return r.db.Close()
}

func (r *MySQLReader) table(name string) string {
	return "`" + r.prefix + name + "`"
}

// query runs a SELECT and calls scan once per row.
func (r *MySQLReader) query(ctx context.Context, q string, scan func(*sql.Rows) error) error {
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func (r *MySQLReader) Users(ctx context.Context) ([]User, error) {
	var out []User
	err := r.query(ctx, `SELECT id, password, last_login, is_superuser, is_staff, is_active, first_name, last_name,
		email, user_type, phone_number, profile_picture, date_joined, created_at, updated_at
		FROM `+r.table("user")+` ORDER BY date_joined, id`, func(rows *sql.Rows) error {
		var u User
		var lastLogin sql.NullTime
		var picture sql.NullString
		if err := rows.Scan(&u.ID, &u.Password, &lastLogin, &u.IsSuperuser, &u.IsStaff, &u.IsActive,
			&u.FirstName, &u.LastName, &u.Email, &u.UserType, &u.PhoneNumber, &picture,
			&u.DateJoined, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return err
		}
		u.LastLogin = nullTime(lastLogin)
		u.ProfilePicture = nullString(picture)
		out = append(out, u)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read users: %w", err)
	}
	return out, nil
}

func (r *MySQLReader) Patients(ctx context.Context) ([]Patient, error) {
	var out []Patient
	err := r.query(ctx, `SELECT id, user_id, gender, date_of_birth, emergency_contact, insurance_type
		FROM `+r.table("patient"), func(rows *sql.Rows) error {
		var p Patient
		if err := rows.Scan(&p.ID, &p.UserID, &p.Gender, &p.DateOfBirth, &p.EmergencyContact, &p.InsuranceType); err != nil {
			return err
		}
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read patients: %w", err)
	}
	return out, nil
}

func (r *MySQLReader) Doctors(ctx context.Context) ([]Doctor, error) {
	var out []Doctor
	err := r.query(ctx, `SELECT id, user_id, specialization, license_number, biography, years_of_experience,
		accepting_new_patients FROM `+r.table("doctor"), func(rows *sql.Rows) error {
		var d Doctor
		if err := rows.Scan(&d.ID, &d.UserID, &d.Specialization, &d.LicenseNumber, &d.Biography,
			&d.YearsOfExperience, &d.AcceptingNewPatients); err != nil {
			return err
		}
		out = append(out, d)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read doctors: %w", err)
	}
	return out, nil
}

func (r *MySQLReader) DiagnosisHistories(ctx context.Context) ([]DiagnosisHistory, error) {
	var out []DiagnosisHistory
	err := r.query(ctx, `SELECT id, patient_id, doctor_id, month, year,
		blood_pressure_systolic_value, blood_pressure_systolic_levels,
		blood_pressure_diastolic_value, blood_pressure_diastolic_levels,
		heart_rate_value, heart_rate_levels, respiratory_rate_value, respiratory_rate_levels,
		temperature_value, temperature_levels, created_at, updated_at
		FROM `+r.table("diagnosishistory"), func(rows *sql.Rows) error {
		var h DiagnosisHistory
		var doctorID sql.NullString
		if err := rows.Scan(&h.ID, &h.PatientID, &doctorID, &h.Month, &h.Year,
			&h.SystolicValue, &h.SystolicLevel, &h.DiastolicValue, &h.DiastolicLevel,
			&h.HeartRateValue, &h.HeartRateLevel, &h.RespiratoryRateValue, &h.RespiratoryRateLevel,
			&h.TemperatureValue, &h.TemperatureLevel, &h.CreatedAt, &h.UpdatedAt); err != nil {
			return err
		}
		h.DoctorID = nullString(doctorID)
		out = append(out, h)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read diagnosis histories: %w", err)
	}
	return out, nil
}

func (r *MySQLReader) Diagnostics(ctx context.Context) ([]Diagnostic, error) {
	var out []Diagnostic
	err := r.query(ctx, `SELECT id, patient_id, doctor_id, name, description, status, diagnosed_date,
		created_at, updated_at FROM `+r.table("diagnosticlist"), func(rows *sql.Rows) error {
		var d Diagnostic
		var doctorID sql.NullString
		var diagnosed sql.NullTime
		if err := rows.Scan(&d.ID, &d.PatientID, &doctorID, &d.Name, &d.Description, &d.Status, &diagnosed,
			&d.CreatedAt, &d.UpdatedAt); err != nil {
			return err
		}
		d.DoctorID = nullString(doctorID)
		d.DiagnosedDate = nullTime(diagnosed)
		out = append(out, d)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read diagnostics: %w", err)
	}
	return out, nil
}

func (r *MySQLReader) LabResults(ctx context.Context) ([]LabResult, error) {
	var out []LabResult
	err := r.query(ctx, `SELECT id, patient_id, doctor_id, name, result_value, result_unit, reference_range,
		status, performed_date, reported_date, notes, created_at, updated_at
		FROM `+r.table("labresult"), func(rows *sql.Rows) error {
		var l LabResult
		var doctorID sql.NullString
		var reported sql.NullTime
		if err := rows.Scan(&l.ID, &l.PatientID, &doctorID, &l.Name, &l.ResultValue, &l.ResultUnit,
			&l.ReferenceRange, &l.Status, &l.PerformedDate, &reported, &l.Notes, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return err
		}
		l.DoctorID = nullString(doctorID)
		l.ReportedDate = nullTime(reported)
		out = append(out, l)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read lab results: %w", err)
	}
	return out, nil
}

// Appointments reads appointment_time as text; the driver does not parse
// TIME columns.
func (r *MySQLReader) Appointments(ctx context.Context) ([]Appointment, error) {
	var out []Appointment
	err := r.query(ctx, `SELECT id, patient_id, doctor_id, appointment_date, CAST(appointment_time AS CHAR),
		appointment_type, reason, status, notes, created_at, updated_at
		FROM `+r.table("appointment"), func(rows *sql.Rows) error {
		var a Appointment
		if err := rows.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.AppointmentDate, &a.AppointmentTime,
			&a.AppointmentType, &a.Reason, &a.Status, &a.Notes, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return err
		}
		out = append(out, a)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read appointments: %w", err)
	}
	return out, nil
}
