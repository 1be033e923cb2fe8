package clinical

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/pkg/validation"
)

// -- Mock Diagnosis History Repository --

type mockHistoryRepo struct {
	items map[uuid.UUID]*DiagnosisHistory
}

func newMockHistoryRepo() *mockHistoryRepo {
	return &mockHistoryRepo{items: make(map[uuid.UUID]*DiagnosisHistory)}
}

func (m *mockHistoryRepo) Create(_ context.Context, h *DiagnosisHistory) error {
	for _, existing := range m.items {
		if existing.PatientID == h.PatientID && existing.Month == h.Month && existing.Year == h.Year {
			return &db.ConstraintError{Kind: db.ErrConflict, Constraint: "diagnosis_history_patient_month_year_key"}
		}
	}
	h.ID = uuid.New()
	h.CreatedAt = time.Now()
	h.UpdatedAt = h.CreatedAt
	cp := *h
	m.items[h.ID] = &cp
	return nil
}

func (m *mockHistoryRepo) GetByID(_ context.Context, id uuid.UUID) (*DiagnosisHistory, error) {
	h, ok := m.items[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *h
	return &cp, nil
}

func (m *mockHistoryRepo) Update(_ context.Context, h *DiagnosisHistory) error {
	if _, ok := m.items[h.ID]; !ok {
		return db.ErrNotFound
	}
	cp := *h
	m.items[h.ID] = &cp
	return nil
}

func (m *mockHistoryRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.items[id]; !ok {
		return db.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *mockHistoryRepo) Search(_ context.Context, params url.Values, limit, offset int) ([]*DiagnosisHistory, int, error) {
	var result []*DiagnosisHistory
	for _, h := range m.items {
		if p := params.Get("patient"); p != "" && h.PatientID.String() != p {
			continue
		}
		result = append(result, h)
	}
	return result, len(result), nil
}

// -- Mock Diagnostic Repository --

type mockDiagnosticRepo struct {
	items map[uuid.UUID]*Diagnostic
}

func newMockDiagnosticRepo() *mockDiagnosticRepo {
	return &mockDiagnosticRepo{items: make(map[uuid.UUID]*Diagnostic)}
}

func (m *mockDiagnosticRepo) Create(_ context.Context, d *Diagnostic) error {
	d.ID = uuid.New()
	d.CreatedAt = time.Now()
	d.UpdatedAt = d.CreatedAt
	cp := *d
	m.items[d.ID] = &cp
	return nil
}

func (m *mockDiagnosticRepo) GetByID(_ context.Context, id uuid.UUID) (*Diagnostic, error) {
	d, ok := m.items[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *mockDiagnosticRepo) Update(_ context.Context, d *Diagnostic) error {
	if _, ok := m.items[d.ID]; !ok {
		return db.ErrNotFound
	}
	cp := *d
	m.items[d.ID] = &cp
	return nil
}

func (m *mockDiagnosticRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.items[id]; !ok {
		return db.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *mockDiagnosticRepo) Search(_ context.Context, params url.Values, limit, offset int) ([]*Diagnostic, int, error) {
	var result []*Diagnostic
	for _, d := range m.items {
		if p := params.Get("patient"); p != "" && d.PatientID.String() != p {
			continue
		}
		if s := params.Get("status"); s != "" && d.Status != s {
			continue
		}
		result = append(result, d)
	}
	return result, len(result), nil
}

// -- Fake references --

type fakeRefs struct {
	patients map[uuid.UUID]bool
	doctors  map[uuid.UUID]bool
}

func newFakeRefs() *fakeRefs {
	return &fakeRefs{patients: map[uuid.UUID]bool{}, doctors: map[uuid.UUID]bool{}}
}

func (f *fakeRefs) CheckRefs(_ context.Context, errs validation.Errors, patientID uuid.UUID, doctorID *uuid.UUID) error {
	if patientID == uuid.Nil {
		errs.Add("patient_id", "This field is required.")
	} else if !f.patients[patientID] {
		errs.Add("patient_id", "Invalid pk - object does not exist.")
	}
	if doctorID != nil && !f.doctors[*doctorID] {
		errs.Add("doctor_id", "Invalid pk - object does not exist.")
	}
	return nil
}

func (f *fakeRefs) patient() uuid.UUID {
	id := uuid.New()
	f.patients[id] = true
	return id
}

func (f *fakeRefs) doctor() uuid.UUID {
	id := uuid.New()
	f.doctors[id] = true
	return id
}

func newTestService() (*Service, *fakeRefs) {
	refs := newFakeRefs()
	svc := NewService(newMockHistoryRepo(), newMockDiagnosticRepo(), refs)
	svc.today = func() civil.Date { return civil.Date{Year: 2024, Month: time.June, Day: 15} }
	return svc, refs
}

func validHistory(patientID uuid.UUID) DiagnosisHistoryInput {
	return DiagnosisHistoryInput{
		PatientID:            patientID,
		Month:                "march",
		Year:                 2024,
		SystolicValue:        120,
		DiastolicValue:       80,
		HeartRateValue:       72,
		RespiratoryRateValue: 16,
		TemperatureValue:     98.6,
	}
}

// -- Diagnosis History Tests --

func TestService_CreateDiagnosisHistory(t *testing.T) {
	svc, refs := newTestService()
	doctorID := refs.doctor()
	in := validHistory(refs.patient())
	in.DoctorID = &doctorID
	in.HeartRateLevel = "higher_than_average"

	h, err := svc.CreateDiagnosisHistory(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.Month != "March" {
		t.Errorf("expected normalized month March, got %s", h.Month)
	}
	if h.SystolicLevel != DefaultLevel || h.TemperatureLevel != DefaultLevel {
		t.Errorf("expected default levels, got %s / %s", h.SystolicLevel, h.TemperatureLevel)
	}
	if h.HeartRateLevel != "higher_than_average" {
		t.Errorf("expected heart rate level to be kept, got %s", h.HeartRateLevel)
	}
	if h.Period() != "March 2024" {
		t.Errorf("expected period March 2024, got %s", h.Period())
	}
}

func TestService_CreateDiagnosisHistory_DuplicateMonth(t *testing.T) {
	svc, refs := newTestService()
	ctx := context.Background()
	patientID := refs.patient()

	if _, err := svc.CreateDiagnosisHistory(ctx, validHistory(patientID)); err != nil {
		t.Fatal(err)
	}
	dup := validHistory(patientID)
	dup.Month = "MARCH"
	_, err := svc.CreateDiagnosisHistory(ctx, dup)
	if !errors.Is(err, db.ErrConflict) {
		t.Errorf("expected conflict, got %v", err)
	}

	other := validHistory(refs.patient())
	if _, err := svc.CreateDiagnosisHistory(ctx, other); err != nil {
		t.Errorf("expected another patient's March to be allowed, got %v", err)
	}
}

func TestService_CreateDiagnosisHistory_UnknownRefs(t *testing.T) {
	svc, _ := newTestService()
	ghost := uuid.New()
	in := validHistory(uuid.New())
	in.DoctorID = &ghost

	_, err := svc.CreateDiagnosisHistory(context.Background(), in)
	ve, ok := validation.As(err)
	if !ok || !ve.Has("patient_id") || !ve.Has("doctor_id") {
		t.Fatalf("expected reference errors, got %v", err)
	}
}

func TestService_UpdateDiagnosisHistory(t *testing.T) {
	svc, refs := newTestService()
	ctx := context.Background()
	h, err := svc.CreateDiagnosisHistory(ctx, validHistory(refs.patient()))
	if err != nil {
		t.Fatal(err)
	}

	in, err := svc.DiagnosisHistoryPatchBase(ctx, h.ID)
	if err != nil {
		t.Fatal(err)
	}
	in.TemperatureValue = 103.2
	in.TemperatureLevel = "critical_high"
	updated, err := svc.UpdateDiagnosisHistory(ctx, h.ID, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.TemperatureValue != 103.2 || updated.TemperatureLevel != "critical_high" {
		t.Errorf("expected temperature update, got %v %s", updated.TemperatureValue, updated.TemperatureLevel)
	}
	if updated.SystolicValue != 120 {
		t.Errorf("expected other vitals unchanged, got %d", updated.SystolicValue)
	}
}

func TestService_DeleteDiagnosisHistory(t *testing.T) {
	svc, refs := newTestService()
	ctx := context.Background()
	h, _ := svc.CreateDiagnosisHistory(ctx, validHistory(refs.patient()))

	if err := svc.DeleteDiagnosisHistory(ctx, h.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.DeleteDiagnosisHistory(ctx, h.ID); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("expected not found on second delete, got %v", err)
	}
}

// -- Diagnostic Tests --

func TestService_CreateDiagnostic(t *testing.T) {
	svc, refs := newTestService()
	date := "2024-01-20"
	d, err := svc.CreateDiagnostic(context.Background(), DiagnosticInput{
		PatientID:     refs.patient(),
		Name:          "  Hypertension ",
		DiagnosedDate: &date,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Status != "active" {
		t.Errorf("expected default status active, got %s", d.Status)
	}
	if d.Name != "Hypertension" {
		t.Errorf("expected trimmed name, got %q", d.Name)
	}
	if d.DiagnosedDate == nil || d.DiagnosedDate.String() != date {
		t.Errorf("expected diagnosed date %s, got %v", date, d.DiagnosedDate)
	}
}

func TestService_CreateDiagnostic_FutureDate(t *testing.T) {
	svc, refs := newTestService()
	date := "2024-06-16"
	_, err := svc.CreateDiagnostic(context.Background(), DiagnosticInput{PatientID: refs.patient(), Name: "Flu", DiagnosedDate: &date})
	ve, ok := validation.As(err)
	if !ok || !ve.Has("diagnosed_date") {
		t.Fatalf("expected diagnosed_date error, got %v", err)
	}
}

func TestService_UpdateDiagnostic_ClearDate(t *testing.T) {
	svc, refs := newTestService()
	ctx := context.Background()
	date := "2023-05-01"
	d, err := svc.CreateDiagnostic(ctx, DiagnosticInput{PatientID: refs.patient(), Name: "Asthma", DiagnosedDate: &date})
	if err != nil {
		t.Fatal(err)
	}

	in, _ := svc.DiagnosticPatchBase(ctx, d.ID)
	in.DiagnosedDate = nil
	in.Status = "chronic"
	updated, err := svc.UpdateDiagnostic(ctx, d.ID, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.DiagnosedDate != nil {
		t.Errorf("expected date cleared, got %v", updated.DiagnosedDate)
	}
	if updated.Status != "chronic" {
		t.Errorf("expected chronic, got %s", updated.Status)
	}
}

func TestService_SearchDiagnostics(t *testing.T) {
	svc, refs := newTestService()
	ctx := context.Background()
	a, b := refs.patient(), refs.patient()
	svc.CreateDiagnostic(ctx, DiagnosticInput{PatientID: a, Name: "One"})
	svc.CreateDiagnostic(ctx, DiagnosticInput{PatientID: a, Name: "Two", Status: "resolved"})
	svc.CreateDiagnostic(ctx, DiagnosticInput{PatientID: b, Name: "Three"})

	_, total, err := svc.SearchDiagnostics(ctx, url.Values{"patient": {a.String()}}, 20, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 {
		t.Errorf("expected 2 diagnostics for patient a, got %d", total)
	}
}
