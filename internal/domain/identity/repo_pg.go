package identity

import (
	"context"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/platform/db"
)

// -- Patient Repository --

type patientRepoPG struct {
	pool *pgxpool.Pool
}

func NewPatientRepo(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) db.Querier {
	return db.ConnFromContext(ctx, r.pool)
}

const patientFrom = `patient p JOIN users u ON u.id = p.user_id`

const patientCols = `p.id, p.user_id, p.gender, p.date_of_birth, p.emergency_contact,
	p.insurance_type, p.created_at, p.updated_at,
	u.id, u.email, u.first_name, u.last_name, u.phone_number, u.is_active`

var patientFilters = map[string]db.Filter{
	"gender":         {Column: "p.gender", Type: db.FilterExact},
	"insurance_type": {Column: "p.insurance_type", Type: db.FilterExact},
	"date_of_birth":  {Column: "p.date_of_birth", Type: db.FilterDate},
	"user":           {Column: "p.user_id", Type: db.FilterUUID},
	"id":             {Column: "p.id", Type: db.FilterUUID},
}

var patientOrdering = map[string]string{
	"last_name":     "u.last_name",
	"first_name":    "u.first_name",
	"email":         "u.email",
	"date_of_birth": "p.date_of_birth",
	"created_at":    "p.created_at",
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient (id, user_id, gender, date_of_birth, emergency_contact, insurance_type)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		p.ID, p.UserID, p.Gender, db.DateValue(p.DateOfBirth), p.EmergencyContact, p.InsuranceType,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert patient: %w", db.MapError(err))
	}
	return nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM `+patientFrom+` WHERE p.id = $1`, id))
}

func (r *patientRepoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*Patient, error) {
	return r.scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM `+patientFrom+` WHERE p.user_id = $1`, userID))
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patient SET
			gender=$2, date_of_birth=$3, emergency_contact=$4, insurance_type=$5, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.Gender, db.DateValue(p.DateOfBirth), p.EmergencyContact, p.InsuranceType,
	).Scan(&p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update patient: %w", db.MapError(err))
	}
	return nil
}

func (r *patientRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient WHERE id = $1`, id)
	return db.Affected(tag, err)
}

func (r *patientRepoPG) Search(ctx context.Context, params url.Values, limit, offset int) ([]*Patient, int, error) {
	q := db.NewSearchQuery(patientFrom, patientCols)
	if err := q.ApplyFilters(params, patientFilters); err != nil {
		return nil, 0, err
	}
	q.Search(params.Get("search"), "u.first_name", "u.last_name", "u.email")
	q.ApplyOrdering(params.Get("ordering"), "u.last_name ASC, u.first_name ASC", patientOrdering)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx, q.DataSQL(), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("search patients: %w", err)
	}
	defer rows.Close()

	var patients []*Patient
	for rows.Next() {
		p, err := r.scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		patients = append(patients, p)
	}
	return patients, total, rows.Err()
}

func (r *patientRepoPG) scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var dob pgtype.Date
	err := row.Scan(
		&p.ID, &p.UserID, &p.Gender, &dob, &p.EmergencyContact,
		&p.InsuranceType, &p.CreatedAt, &p.UpdatedAt,
		&p.User.ID, &p.User.Email, &p.User.FirstName, &p.User.LastName, &p.User.PhoneNumber, &p.User.IsActive,
	)
	if err != nil {
		return nil, db.MapError(err)
	}
	p.DateOfBirth = db.DateFrom(dob)
	return &p, nil
}

// -- Doctor Repository --

type doctorRepoPG struct {
	pool *pgxpool.Pool
}

func NewDoctorRepo(pool *pgxpool.Pool) DoctorRepository {
	return &doctorRepoPG{pool: pool}
}

func (r *doctorRepoPG) conn(ctx context.Context) db.Querier {
	return db.ConnFromContext(ctx, r.pool)
}

const doctorFrom = `doctor d JOIN users u ON u.id = d.user_id`

const doctorCols = `d.id, d.user_id, d.specialization, d.license_number, d.biography,
	d.years_of_experience, d.accepting_new_patients, d.created_at, d.updated_at,
	u.id, u.email, u.first_name, u.last_name, u.phone_number, u.is_active`

var doctorFilters = map[string]db.Filter{
	"specialization":         {Column: "d.specialization", Type: db.FilterExact},
	"accepting_new_patients": {Column: "d.accepting_new_patients", Type: db.FilterBool},
	"years_of_experience":    {Column: "d.years_of_experience", Type: db.FilterInt},
	"license_number":         {Column: "d.license_number", Type: db.FilterIExact},
	"user":                   {Column: "d.user_id", Type: db.FilterUUID},
}

var doctorOrdering = map[string]string{
	"last_name":           "u.last_name",
	"first_name":          "u.first_name",
	"specialization":      "d.specialization",
	"years_of_experience": "d.years_of_experience",
	"created_at":          "d.created_at",
}

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctor (id, user_id, specialization, license_number, biography,
			years_of_experience, accepting_new_patients)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		d.ID, d.UserID, d.Specialization, d.LicenseNumber, d.Biography,
		d.YearsOfExperience, d.AcceptingNewPatients,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert doctor: %w", db.MapError(err))
	}
	return nil
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return r.scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorCols+` FROM `+doctorFrom+` WHERE d.id = $1`, id))
}

func (r *doctorRepoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error) {
	return r.scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorCols+` FROM `+doctorFrom+` WHERE d.user_id = $1`, userID))
}

func (r *doctorRepoPG) Update(ctx context.Context, d *Doctor) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE doctor SET
			specialization=$2, license_number=$3, biography=$4,
			years_of_experience=$5, accepting_new_patients=$6, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		d.ID, d.Specialization, d.LicenseNumber, d.Biography,
		d.YearsOfExperience, d.AcceptingNewPatients,
	).Scan(&d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update doctor: %w", db.MapError(err))
	}
	return nil
}

func (r *doctorRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM doctor WHERE id = $1`, id)
	return db.Affected(tag, err)
}

func (r *doctorRepoPG) Search(ctx context.Context, params url.Values, limit, offset int) ([]*Doctor, int, error) {
	q := db.NewSearchQuery(doctorFrom, doctorCols)
	if err := q.ApplyFilters(params, doctorFilters); err != nil {
		return nil, 0, err
	}
	q.Search(params.Get("search"), "u.first_name", "u.last_name", "u.email", "d.license_number")
	q.ApplyOrdering(params.Get("ordering"), "u.last_name ASC, u.first_name ASC", doctorOrdering)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count doctors: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx, q.DataSQL(), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("search doctors: %w", err)
	}
	defer rows.Close()

	var doctors []*Doctor
	for rows.Next() {
		d, err := r.scanDoctor(rows)
		if err != nil {
			return nil, 0, err
		}
		doctors = append(doctors, d)
	}
	return doctors, total, rows.Err()
}

func (r *doctorRepoPG) scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(
		&d.ID, &d.UserID, &d.Specialization, &d.LicenseNumber, &d.Biography,
		&d.YearsOfExperience, &d.AcceptingNewPatients, &d.CreatedAt, &d.UpdatedAt,
		&d.User.ID, &d.User.Email, &d.User.FirstName, &d.User.LastName, &d.User.PhoneNumber, &d.User.IsActive,
	)
	if err != nil {
		return nil, db.MapError(err)
	}
	return &d, nil
}
