package scheduling

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

type appointmentRepoPG struct {
	pool *pgxpool.Pool
}

func NewAppointmentRepo(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier {
	return db.ConnFromContext(ctx, r.pool)
}

const apptFrom = `appointment a
	JOIN patient p ON p.id = a.patient_id
	JOIN users pu ON pu.id = p.user_id
	JOIN doctor d ON d.id = a.doctor_id
	JOIN users du ON du.id = d.user_id`

const apptCols = `a.id, a.patient_id, TRIM(pu.first_name || ' ' || pu.last_name),
	a.doctor_id, 'Dr. ' || TRIM(du.first_name || ' ' || du.last_name),
	a.appointment_date, a.appointment_time, a.appointment_type, a.reason, a.status, a.notes,
	a.created_at, a.updated_at`

var apptFilters = map[string]db.Filter{
	"status":           {Column: "a.status", Type: db.FilterExact},
	"appointment_type": {Column: "a.appointment_type", Type: db.FilterExact},
	"appointment_date": {Column: "a.appointment_date", Type: db.FilterDate},
	"patient":          {Column: "a.patient_id", Type: db.FilterUUID},
	"doctor":           {Column: "a.doctor_id", Type: db.FilterUUID},
}

var apptOrdering = map[string]string{
	"appointment_date": "a.appointment_date",
	"appointment_time": "a.appointment_time",
	"status":           "a.status",
	"patient":          "pu.last_name",
	"doctor":           "du.last_name",
	"created_at":       "a.created_at",
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment (id, patient_id, doctor_id, appointment_date, appointment_time,
			appointment_type, reason, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.DoctorID, db.DateValue(a.AppointmentDate), db.TimeValue(a.AppointmentTime),
		a.AppointmentType, a.Reason, a.Status, a.Notes,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", db.MapError(err))
	}
	return nil
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM `+apptFrom+` WHERE a.id = $1`, id))
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointment SET
			patient_id=$2, doctor_id=$3, appointment_date=$4, appointment_time=$5,
			appointment_type=$6, reason=$7, status=$8, notes=$9, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, a.PatientID, a.DoctorID, db.DateValue(a.AppointmentDate), db.TimeValue(a.AppointmentTime),
		a.AppointmentType, a.Reason, a.Status, a.Notes,
	).Scan(&a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update appointment: %w", db.MapError(err))
	}
	return nil
}

func (r *appointmentRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM appointment WHERE id = $1`, id)
	return db.Affected(tag, err)
}

func (r *appointmentRepoPG) HasHistory(ctx context.Context, patientID, doctorID uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM appointment WHERE patient_id = $1 AND doctor_id = $2)`,
		patientID, doctorID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check appointment history: %w", err)
	}
	return exists, nil
}

func (r *appointmentRepoPG) Search(ctx context.Context, params url.Values, limit, offset int) ([]*Appointment, int, error) {
	q := db.NewSearchQuery(apptFrom, apptCols)
	if err := q.ApplyFilters(params, apptFilters); err != nil {
		return nil, 0, err
	}
	q.Search(params.Get("search"), "pu.first_name", "pu.last_name", "du.last_name", "a.reason")
	q.ApplyOrdering(params.Get("ordering"), "a.appointment_date DESC, a.appointment_time DESC", apptOrdering)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx, q.DataSQL(), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("search appointments: %w", err)
	}
	defer rows.Close()

	var items []*Appointment
	for rows.Next() {
		a, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *appointmentRepoPG) scan(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var date pgtype.Date
	var tm pgtype.Time
	err := row.Scan(
		&a.ID, &a.PatientID, &a.PatientName, &a.DoctorID, &a.DoctorName,
		&date, &tm, &a.AppointmentType, &a.Reason, &a.Status, &a.Notes,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, db.MapError(err)
	}
	a.AppointmentDate = db.DateFrom(date)
	a.AppointmentTime = db.TimeFrom(tm)
	return &a, nil
}
