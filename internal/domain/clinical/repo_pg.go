package clinical

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

// participantJoins resolves the patient and doctor names of a clinical row
// aliased "r".
const participantJoins = `
	JOIN patient p ON p.id = r.patient_id
	JOIN users pu ON pu.id = p.user_id
	LEFT JOIN doctor d ON d.id = r.doctor_id
	LEFT JOIN users du ON du.id = d.user_id`

const participantCols = `TRIM(pu.first_name || ' ' || pu.last_name),
	COALESCE('Dr. ' || TRIM(du.first_name || ' ' || du.last_name), '')`

// monthOrder sorts month names in calendar order.
const monthOrder = `array_position(ARRAY['January','February','March','April','May','June','July',
	'August','September','October','November','December']::text[], r.month::text)`

// -- Diagnosis History Repository --

type historyRepoPG struct {
	pool *pgxpool.Pool
}

func NewDiagnosisHistoryRepo(pool *pgxpool.Pool) DiagnosisHistoryRepository {
	return &historyRepoPG{pool: pool}
}

func (r *historyRepoPG) conn(ctx context.Context) db.Querier {
	return db.ConnFromContext(ctx, r.pool)
}

const historyFrom = `diagnosis_history r` + participantJoins

const historyCols = `r.id, r.patient_id, ` + participantCols + `, r.doctor_id, r.month, r.year,
	r.systolic_value, r.systolic_level, r.diastolic_value, r.diastolic_level,
	r.heart_rate_value, r.heart_rate_level, r.respiratory_rate_value, r.respiratory_rate_level,
	r.temperature_value, r.temperature_level, r.created_at, r.updated_at`

var historyFilters = map[string]db.Filter{
	"month":                           {Column: "r.month", Type: db.FilterIExact},
	"year":                            {Column: "r.year", Type: db.FilterInt},
	"blood_pressure_systolic_levels":  {Column: "r.systolic_level", Type: db.FilterExact},
	"blood_pressure_diastolic_levels": {Column: "r.diastolic_level", Type: db.FilterExact},
	"heart_rate_levels":               {Column: "r.heart_rate_level", Type: db.FilterExact},
	"patient":                         {Column: "r.patient_id", Type: db.FilterUUID},
	"doctor":                          {Column: "r.doctor_id", Type: db.FilterUUID},
}

var historyOrdering = map[string]string{
	"year":       "r.year",
	"month":      monthOrder,
	"created_at": "r.created_at",
}

func (r *historyRepoPG) Create(ctx context.Context, h *DiagnosisHistory) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO diagnosis_history (id, patient_id, doctor_id, month, year,
			systolic_value, systolic_level, diastolic_value, diastolic_level,
			heart_rate_value, heart_rate_level, respiratory_rate_value, respiratory_rate_level,
			temperature_value, temperature_level)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at, updated_at`,
		h.ID, h.PatientID, h.DoctorID, h.Month, h.Year,
		h.SystolicValue, h.SystolicLevel, h.DiastolicValue, h.DiastolicLevel,
		h.HeartRateValue, h.HeartRateLevel, h.RespiratoryRateValue, h.RespiratoryRateLevel,
		h.TemperatureValue, h.TemperatureLevel,
	).Scan(&h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert diagnosis history: %w", db.MapError(err))
	}
	return nil
}

func (r *historyRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*DiagnosisHistory, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+historyCols+` FROM `+historyFrom+` WHERE r.id = $1`, id))
}

func (r *historyRepoPG) Update(ctx context.Context, h *DiagnosisHistory) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE diagnosis_history SET
			patient_id=$2, doctor_id=$3, month=$4, year=$5,
			systolic_value=$6, systolic_level=$7, diastolic_value=$8, diastolic_level=$9,
			heart_rate_value=$10, heart_rate_level=$11, respiratory_rate_value=$12, respiratory_rate_level=$13,
			temperature_value=$14, temperature_level=$15, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		h.ID, h.PatientID, h.DoctorID, h.Month, h.Year,
		h.SystolicValue, h.SystolicLevel, h.DiastolicValue, h.DiastolicLevel,
		h.HeartRateValue, h.HeartRateLevel, h.RespiratoryRateValue, h.RespiratoryRateLevel,
		h.TemperatureValue, h.TemperatureLevel,
	).Scan(&h.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update diagnosis history: %w", db.MapError(err))
	}
	return nil
}

func (r *historyRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM diagnosis_history WHERE id = $1`, id)
	return db.Affected(tag, err)
}

func (r *historyRepoPG) Search(ctx context.Context, params url.Values, limit, offset int) ([]*DiagnosisHistory, int, error) {
	q := db.NewSearchQuery(historyFrom, historyCols)
	if err := q.ApplyFilters(params, historyFilters); err != nil {
		return nil, 0, err
	}
	q.Search(params.Get("search"), "pu.first_name", "pu.last_name", "du.last_name")
	q.ApplyOrdering(params.Get("ordering"), "r.year DESC, "+monthOrder+" DESC", historyOrdering)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count diagnosis histories: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx, q.DataSQL(), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("search diagnosis histories: %w", err)
	}
	defer rows.Close()

	var items []*DiagnosisHistory
	for rows.Next() {
		h, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, h)
	}
	return items, total, rows.Err()
}

func (r *historyRepoPG) scan(row pgx.Row) (*DiagnosisHistory, error) {
	var h DiagnosisHistory
	err := row.Scan(
		&h.ID, &h.PatientID, &h.PatientName, &h.DoctorName, &h.DoctorID, &h.Month, &h.Year,
		&h.SystolicValue, &h.SystolicLevel, &h.DiastolicValue, &h.DiastolicLevel,
		&h.HeartRateValue, &h.HeartRateLevel, &h.RespiratoryRateValue, &h.RespiratoryRateLevel,
		&h.TemperatureValue, &h.TemperatureLevel, &h.CreatedAt, &h.UpdatedAt,
	)
	if err != nil {
		return nil, db.MapError(err)
	}
	return &h, nil
}

// -- Diagnostic Repository --

type diagnosticRepoPG struct {
	pool *pgxpool.Pool
}

func NewDiagnosticRepo(pool *pgxpool.Pool) DiagnosticRepository {
	return &diagnosticRepoPG{pool: pool}
}

func (r *diagnosticRepoPG) conn(ctx context.Context) db.Querier {
	return db.ConnFromContext(ctx, r.pool)
}

const diagnosticFrom = `diagnostic r` + participantJoins

const diagnosticCols = `r.id, r.patient_id, ` + participantCols + `, r.doctor_id,
	r.name, r.description, r.status, r.diagnosed_date, r.created_at, r.updated_at`

var diagnosticFilters = map[string]db.Filter{
	"status":         {Column: "r.status", Type: db.FilterExact},
	"diagnosed_date": {Column: "r.diagnosed_date", Type: db.FilterDate},
	"patient":        {Column: "r.patient_id", Type: db.FilterUUID},
	"doctor":         {Column: "r.doctor_id", Type: db.FilterUUID},
}

var diagnosticOrdering = map[string]string{
	"name":           "r.name",
	"status":         "r.status",
	"diagnosed_date": "r.diagnosed_date",
	"created_at":     "r.created_at",
}

func (r *diagnosticRepoPG) Create(ctx context.Context, d *Diagnostic) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO diagnostic (id, patient_id, doctor_id, name, description, status, diagnosed_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		d.ID, d.PatientID, d.DoctorID, d.Name, d.Description, d.Status, db.NullDateValue(d.DiagnosedDate),
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert diagnostic: %w", db.MapError(err))
	}
	return nil
}

func (r *diagnosticRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Diagnostic, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+diagnosticCols+` FROM `+diagnosticFrom+` WHERE r.id = $1`, id))
}

func (r *diagnosticRepoPG) Update(ctx context.Context, d *Diagnostic) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE diagnostic SET
			patient_id=$2, doctor_id=$3, name=$4, description=$5, status=$6, diagnosed_date=$7,
			updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		d.ID, d.PatientID, d.DoctorID, d.Name, d.Description, d.Status, db.NullDateValue(d.DiagnosedDate),
	).Scan(&d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update diagnostic: %w", db.MapError(err))
	}
	return nil
}

func (r *diagnosticRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM diagnostic WHERE id = $1`, id)
	return db.Affected(tag, err)
}

func (r *diagnosticRepoPG) Search(ctx context.Context, params url.Values, limit, offset int) ([]*Diagnostic, int, error) {
	q := db.NewSearchQuery(diagnosticFrom, diagnosticCols)
	if err := q.ApplyFilters(params, diagnosticFilters); err != nil {
		return nil, 0, err
	}
	q.Search(params.Get("search"), "pu.first_name", "pu.last_name", "du.last_name", "r.name")
	q.ApplyOrdering(params.Get("ordering"), "r.created_at DESC", diagnosticOrdering)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count diagnostics: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx, q.DataSQL(), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("search diagnostics: %w", err)
	}
	defer rows.Close()

	var items []*Diagnostic
	for rows.Next() {
		d, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}

func (r *diagnosticRepoPG) scan(row pgx.Row) (*Diagnostic, error) {
	var d Diagnostic
	var diagnosed pgtype.Date
	err := row.Scan(
		&d.ID, &d.PatientID, &d.PatientName, &d.DoctorName, &d.DoctorID,
		&d.Name, &d.Description, &d.Status, &diagnosed, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, db.MapError(err)
	}
	d.DiagnosedDate = db.NullDateFrom(diagnosed)
	return &d, nil
}
