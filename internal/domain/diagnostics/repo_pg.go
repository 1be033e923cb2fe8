package diagnostics

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

type labResultRepoPG struct {
	pool *pgxpool.Pool
}

func NewLabResultRepo(pool *pgxpool.Pool) LabResultRepository {
	return &labResultRepoPG{pool: pool}
}

func (r *labResultRepoPG) conn(ctx context.Context) db.Querier {
	return db.ConnFromContext(ctx, r.pool)
}

const labResultFrom = `lab_result l
	JOIN patient p ON p.id = l.patient_id
	JOIN users pu ON pu.id = p.user_id
	LEFT JOIN doctor d ON d.id = l.doctor_id
	LEFT JOIN users du ON du.id = d.user_id`

const labResultCols = `l.id, l.patient_id, TRIM(pu.first_name || ' ' || pu.last_name),
	l.doctor_id, COALESCE('Dr. ' || TRIM(du.first_name || ' ' || du.last_name), ''),
	l.name, l.result_value, l.result_unit, l.reference_range, l.status,
	l.performed_date, l.reported_date, l.notes, l.created_at, l.updated_at`

var labResultFilters = map[string]db.Filter{
	"status":         {Column: "l.status", Type: db.FilterExact},
	"performed_date": {Column: "l.performed_date", Type: db.FilterDate},
	"reported_date":  {Column: "l.reported_date", Type: db.FilterDate},
	"patient":        {Column: "l.patient_id", Type: db.FilterUUID},
	"doctor":         {Column: "l.doctor_id", Type: db.FilterUUID},
}

var labResultOrdering = map[string]string{
	"name":           "l.name",
	"status":         "l.status",
	"performed_date": "l.performed_date",
	"reported_date":  "l.reported_date",
	"created_at":     "l.created_at",
}

func (r *labResultRepoPG) Create(ctx context.Context, l *LabResult) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO lab_result (id, patient_id, doctor_id, name, result_value, result_unit,
			reference_range, status, performed_date, reported_date, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`,
		l.ID, l.PatientID, l.DoctorID, l.Name, l.ResultValue, l.ResultUnit,
		l.ReferenceRange, l.Status, db.DateValue(l.PerformedDate), db.NullDateValue(l.ReportedDate), l.Notes,
	).Scan(&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert lab result: %w", db.MapError(err))
	}
	return nil
}

func (r *labResultRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*LabResult, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+labResultCols+` FROM `+labResultFrom+` WHERE l.id = $1`, id))
}

func (r *labResultRepoPG) Update(ctx context.Context, l *LabResult) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE lab_result SET
			patient_id=$2, doctor_id=$3, name=$4, result_value=$5, result_unit=$6,
			reference_range=$7, status=$8, performed_date=$9, reported_date=$10, notes=$11,
			updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		l.ID, l.PatientID, l.DoctorID, l.Name, l.ResultValue, l.ResultUnit,
		l.ReferenceRange, l.Status, db.DateValue(l.PerformedDate), db.NullDateValue(l.ReportedDate), l.Notes,
	).Scan(&l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update lab result: %w", db.MapError(err))
	}
	return nil
}

func (r *labResultRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM lab_result WHERE id = $1`, id)
	return db.Affected(tag, err)
}

func (r *labResultRepoPG) Search(ctx context.Context, params url.Values, limit, offset int) ([]*LabResult, int, error) {
	q := db.NewSearchQuery(labResultFrom, labResultCols)
	if err := q.ApplyFilters(params, labResultFilters); err != nil {
		return nil, 0, err
	}
	q.Search(params.Get("search"), "pu.first_name", "pu.last_name", "du.last_name", "l.name")
	q.ApplyOrdering(params.Get("ordering"), "l.performed_date DESC, l.created_at DESC", labResultOrdering)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count lab results: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx, q.DataSQL(), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("search lab results: %w", err)
	}
	defer rows.Close()

	var items []*LabResult
	for rows.Next() {
		l, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, l)
	}
	return items, total, rows.Err()
}

func (r *labResultRepoPG) scan(row pgx.Row) (*LabResult, error) {
	var l LabResult
	var performed, reported pgtype.Date
	err := row.Scan(
		&l.ID, &l.PatientID, &l.PatientName, &l.DoctorID, &l.DoctorName,
		&l.Name, &l.ResultValue, &l.ResultUnit, &l.ReferenceRange, &l.Status,
		&performed, &reported, &l.Notes, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, db.MapError(err)
	}
	l.PerformedDate = db.DateFrom(performed)
	l.ReportedDate = db.NullDateFrom(reported)
	return &l, nil
}
