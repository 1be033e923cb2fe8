package scheduling

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/hms/hms/internal/domain/identity"
	"github.com/hms/hms/internal/platform/apierr"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/websocket"
	"github.com/hms/hms/pkg/validation"
)

// -- Mock Appointment Repository --

type mockAppointmentRepo struct {
	items map[uuid.UUID]*Appointment
}

func newMockAppointmentRepo() *mockAppointmentRepo {
	return &mockAppointmentRepo{items: make(map[uuid.UUID]*Appointment)}
}

func (m *mockAppointmentRepo) slotTaken(a *Appointment) bool {
	for _, existing := range m.items {
		if existing.ID != a.ID && existing.DoctorID == a.DoctorID &&
			existing.AppointmentDate == a.AppointmentDate && existing.AppointmentTime == a.AppointmentTime {
			return true
		}
	}
	return false
}

func (m *mockAppointmentRepo) Create(_ context.Context, a *Appointment) error {
	if m.slotTaken(a) {
		return &db.ConstraintError{Kind: db.ErrConflict, Constraint: "appointment_doctor_slot_key"}
	}
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	m.items[a.ID] = &cp
	return nil
}

func (m *mockAppointmentRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := m.items[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *mockAppointmentRepo) Update(_ context.Context, a *Appointment) error {
	if _, ok := m.items[a.ID]; !ok {
		return db.ErrNotFound
	}
	if m.slotTaken(a) {
		return &db.ConstraintError{Kind: db.ErrConflict, Constraint: "appointment_doctor_slot_key"}
	}
	cp := *a
	m.items[a.ID] = &cp
	return nil
}

func (m *mockAppointmentRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.items[id]; !ok {
		return db.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *mockAppointmentRepo) Search(_ context.Context, params url.Values, limit, offset int) ([]*Appointment, int, error) {
	var result []*Appointment
	for _, a := range m.items {
		if p := params.Get("patient"); p != "" && a.PatientID.String() != p {
			continue
		}
		if d := params.Get("doctor"); d != "" && a.DoctorID.String() != d {
			continue
		}
		if s := params.Get("status"); s != "" && a.Status != s {
			continue
		}
		result = append(result, a)
	}
	return result, len(result), nil
}

func (m *mockAppointmentRepo) HasHistory(_ context.Context, patientID, doctorID uuid.UUID) (bool, error) {
	for _, a := range m.items {
		if a.PatientID == patientID && a.DoctorID == doctorID {
			return true, nil
		}
	}
	return false, nil
}

// -- Fake profiles --

type fakeProfiles struct {
	patients map[uuid.UUID]bool
	doctors  map[uuid.UUID]*identity.Doctor
}

func (f *fakeProfiles) patient() uuid.UUID {
	id := uuid.New()
	f.patients[id] = true
	return id
}

func (f *fakeProfiles) doctor(accepting bool) uuid.UUID {
	id := uuid.New()
	f.doctors[id] = &identity.Doctor{ID: id, AcceptingNewPatients: accepting}
	return id
}

func (f *fakeProfiles) CheckRefs(_ context.Context, errs validation.Errors, patientID uuid.UUID, _ *uuid.UUID) error {
	if patientID == uuid.Nil {
		errs.Add("patient_id", "This field is required.")
	} else if !f.patients[patientID] {
		errs.Addf("patient_id", "Invalid pk %q - object does not exist.", patientID.String())
	}
	return nil
}

func (f *fakeProfiles) GetDoctor(_ context.Context, id uuid.UUID) (*identity.Doctor, error) {
	d, ok := f.doctors[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return d, nil
}

type recordingPublisher struct {
	events []websocket.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev websocket.Event) error {
	p.events = append(p.events, ev)
	return nil
}

type countingMetrics struct {
	counts map[string]int
}

func (m *countingMetrics) IncAppointmentEvent(eventType string) {
	m.counts[eventType]++
}

func newTestService() (*Service, *fakeProfiles) {
	profiles := &fakeProfiles{patients: map[uuid.UUID]bool{}, doctors: map[uuid.UUID]*identity.Doctor{}}
	return NewService(newMockAppointmentRepo(), profiles), profiles
}

func booking(patientID, doctorID uuid.UUID) AppointmentInput {
	return AppointmentInput{
		PatientID:       patientID,
		DoctorID:        doctorID,
		AppointmentDate: "2024-07-01",
		AppointmentTime: "09:30",
		Reason:          "Annual check",
	}
}

func fieldErrors(t *testing.T, err error) validation.Errors {
	t.Helper()
	ve, ok := validation.As(err)
	if !ok {
		t.Fatalf("expected validation errors, got %v", err)
	}
	return ve
}

func TestService_CreateAppointment(t *testing.T) {
	svc, profiles := newTestService()
	ctx := context.Background()

	a, err := svc.CreateAppointment(ctx, booking(profiles.patient(), profiles.doctor(true)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.ID == uuid.Nil {
		t.Error("expected ID")
	}
	if a.Status != StatusScheduled || a.AppointmentType != DefaultType {
		t.Errorf("expected defaults, got status=%s type=%s", a.Status, a.AppointmentType)
	}
	if a.AppointmentTime != (civil.Time{Hour: 9, Minute: 30}) {
		t.Errorf("unexpected time %s", a.AppointmentTime)
	}
}

func TestService_CreateAppointment_Validation(t *testing.T) {
	svc, profiles := newTestService()

	_, err := svc.CreateAppointment(context.Background(), AppointmentInput{
		PatientID:       uuid.New(),
		AppointmentDate: "01/07/2024",
		AppointmentTime: "25:00",
		AppointmentType: "surgery",
	})
	errs := fieldErrors(t, err)
	for _, field := range []string{"patient_id", "doctor_id", "appointment_date", "appointment_time", "appointment_type"} {
		if !errs.Has(field) {
			t.Errorf("expected error on %s, got %v", field, errs)
		}
	}

	_, err = svc.CreateAppointment(context.Background(), booking(profiles.patient(), uuid.New()))
	if errs := fieldErrors(t, err); !errs.Has("doctor_id") {
		t.Errorf("expected unknown doctor error, got %v", errs)
	}
}

func TestService_CreateAppointment_SlotConflict(t *testing.T) {
	svc, profiles := newTestService()
	ctx := context.Background()
	doctorID := profiles.doctor(true)

	if _, err := svc.CreateAppointment(ctx, booking(profiles.patient(), doctorID)); err != nil {
		t.Fatalf("first booking: %v", err)
	}
	_, err := svc.CreateAppointment(ctx, booking(profiles.patient(), doctorID))
	if !errors.Is(err, db.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if db.ConstraintName(err) != "appointment_doctor_slot_key" {
		t.Errorf("unexpected constraint %q", db.ConstraintName(err))
	}
}

func TestService_CreateAppointment_NotAcceptingNewPatients(t *testing.T) {
	svc, profiles := newTestService()
	ctx := context.Background()
	doctorID := profiles.doctor(false)

	_, err := svc.CreateAppointment(ctx, booking(profiles.patient(), doctorID))
	errs := fieldErrors(t, err)
	if msgs := errs["doctor_id"]; len(msgs) != 1 || msgs[0] != "This doctor is not accepting new patients." {
		t.Errorf("unexpected doctor_id errors %v", msgs)
	}

	// An existing patient of the doctor may still book.
	returning := profiles.patient()
	svc.appointments.(*mockAppointmentRepo).items[uuid.New()] = &Appointment{PatientID: returning, DoctorID: doctorID, Status: StatusCompleted}
	if _, err := svc.CreateAppointment(ctx, booking(returning, doctorID)); err != nil {
		t.Fatalf("returning patient: %v", err)
	}
}

func TestService_UpdateAppointment_Transitions(t *testing.T) {
	svc, profiles := newTestService()
	ctx := context.Background()
	a, _ := svc.CreateAppointment(ctx, booking(profiles.patient(), profiles.doctor(true)))

	in := AppointmentInputFrom(a)
	in.Status = StatusCompleted
	done, err := svc.UpdateAppointment(ctx, a.ID, in)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.CreatedAt != a.CreatedAt {
		t.Error("created_at must not change")
	}

	in.Status = StatusScheduled
	_, err = svc.UpdateAppointment(ctx, a.ID, in)
	if !errors.Is(err, apierr.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}

	// Editing notes on a final appointment keeps its status.
	in.Status = StatusCompleted
	in.Notes = "BP slightly elevated"
	if _, err := svc.UpdateAppointment(ctx, a.ID, in); err != nil {
		t.Fatalf("notes edit: %v", err)
	}
}

func TestService_UpdateAppointment_FinalKeepsSlot(t *testing.T) {
	svc, profiles := newTestService()
	ctx := context.Background()
	a, _ := svc.CreateAppointment(ctx, booking(profiles.patient(), profiles.doctor(true)))
	if _, err := svc.ChangeStatus(ctx, a.ID, StatusInput{Status: StatusCompleted}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	base := AppointmentInputFrom(a)
	base.Status = StatusCompleted
	edits := map[string]func(*AppointmentInput){
		"date":    func(in *AppointmentInput) { in.AppointmentDate = "2031-01-02" },
		"time":    func(in *AppointmentInput) { in.AppointmentTime = "16:00" },
		"doctor":  func(in *AppointmentInput) { in.DoctorID = profiles.doctor(true) },
		"patient": func(in *AppointmentInput) { in.PatientID = profiles.patient() },
	}
	for name, edit := range edits {
		in := base
		edit(&in)
		if _, err := svc.UpdateAppointment(ctx, a.ID, in); !errors.Is(err, apierr.ErrInvalidTransition) {
			t.Errorf("%s change on a completed appointment: expected invalid transition, got %v", name, err)
		}
	}

	stored, _ := svc.GetAppointment(ctx, a.ID)
	if stored.AppointmentDate.String() != "2024-07-01" || stored.AppointmentTime != (civil.Time{Hour: 9, Minute: 30}) {
		t.Errorf("completed appointment moved to %s %s", stored.AppointmentDate, stored.AppointmentTime)
	}
}

func TestService_UpdateAppointment_MoveMarksRescheduled(t *testing.T) {
	svc, profiles := newTestService()
	ctx := context.Background()
	a, _ := svc.CreateAppointment(ctx, booking(profiles.patient(), profiles.doctor(true)))

	in := AppointmentInputFrom(a)
	in.Status = StatusRescheduled
	if _, err := svc.UpdateAppointment(ctx, a.ID, in); !errors.Is(err, apierr.ErrInvalidTransition) {
		t.Fatalf("rescheduled without a new slot: expected invalid transition, got %v", err)
	}

	in.AppointmentTime = "10:00"
	moved, err := svc.UpdateAppointment(ctx, a.ID, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if moved.Status != StatusRescheduled {
		t.Errorf("expected rescheduled, got %s", moved.Status)
	}
}

func TestService_ChangeStatus(t *testing.T) {
	svc, profiles := newTestService()
	ctx := context.Background()
	a, _ := svc.CreateAppointment(ctx, booking(profiles.patient(), profiles.doctor(true)))

	if _, err := svc.ChangeStatus(ctx, a.ID, StatusInput{Status: "lost"}); !fieldErrors(t, err).Has("status") {
		t.Error("expected status choice error")
	}
	if _, err := svc.ChangeStatus(ctx, a.ID, StatusInput{}); !fieldErrors(t, err).Has("status") {
		t.Error("expected required status error")
	}

	got, err := svc.ChangeStatus(ctx, a.ID, StatusInput{Status: StatusNoShow, Notes: "did not attend"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusNoShow || got.Notes != "did not attend" {
		t.Errorf("got status=%s notes=%q", got.Status, got.Notes)
	}

	_, err = svc.ChangeStatus(ctx, a.ID, StatusInput{Status: StatusCancelled})
	if !errors.Is(err, apierr.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition from no_show, got %v", err)
	}

	if _, err := svc.ChangeStatus(ctx, uuid.New(), StatusInput{Status: StatusCancelled}); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestService_Reschedule(t *testing.T) {
	svc, profiles := newTestService()
	ctx := context.Background()
	doctorID := profiles.doctor(true)
	a, _ := svc.CreateAppointment(ctx, booking(profiles.patient(), doctorID))
	other := booking(profiles.patient(), doctorID)
	other.AppointmentTime = "11:00"
	if _, err := svc.CreateAppointment(ctx, other); err != nil {
		t.Fatalf("second booking: %v", err)
	}

	_, err := svc.Reschedule(ctx, a.ID, RescheduleInput{AppointmentDate: "2024-07-01", AppointmentTime: "11:00"})
	if !errors.Is(err, db.ErrConflict) {
		t.Fatalf("expected slot conflict, got %v", err)
	}

	if _, err := svc.Reschedule(ctx, a.ID, RescheduleInput{}); !fieldErrors(t, err).Has("appointment_date") {
		t.Error("expected required date")
	}

	moved, err := svc.Reschedule(ctx, a.ID, RescheduleInput{AppointmentDate: "2024-07-02", AppointmentTime: "08:15", Notes: "patient request"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if moved.Status != StatusRescheduled || moved.AppointmentDate != (civil.Date{Year: 2024, Month: time.July, Day: 2}) {
		t.Errorf("got %s on %s", moved.Status, moved.AppointmentDate)
	}

	if _, err := svc.ChangeStatus(ctx, a.ID, StatusInput{Status: StatusCompleted}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	_, err = svc.Reschedule(ctx, a.ID, RescheduleInput{AppointmentDate: "2024-07-03", AppointmentTime: "08:15"})
	if !errors.Is(err, apierr.ErrInvalidTransition) {
		t.Fatalf("expected completed appointment to be final, got %v", err)
	}
}

func TestService_DeleteAppointment(t *testing.T) {
	svc, profiles := newTestService()
	ctx := context.Background()
	a, _ := svc.CreateAppointment(ctx, booking(profiles.patient(), profiles.doctor(true)))

	if err := svc.DeleteAppointment(ctx, a.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.GetAppointment(ctx, a.ID); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if err := svc.DeleteAppointment(ctx, a.ID); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("expected not found on second delete, got %v", err)
	}
}

func TestService_PublishesEvents(t *testing.T) {
	svc, profiles := newTestService()
	pub := &recordingPublisher{}
	metrics := &countingMetrics{counts: map[string]int{}}
	svc.SetPublisher(pub)
	svc.SetMetrics(metrics)
	ctx := context.Background()

	patientID, doctorID := profiles.patient(), profiles.doctor(true)
	a, err := svc.CreateAppointment(ctx, booking(patientID, doctorID))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.ChangeStatus(ctx, a.ID, StatusInput{Status: StatusCancelled}); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if len(pub.events) != 6 {
		t.Fatalf("expected 6 events (2 changes x 3 topics), got %d", len(pub.events))
	}
	want := map[string]bool{"appointments": false, "doctor:" + doctorID.String(): false, "patient:" + patientID.String(): false}
	for _, ev := range pub.events[:3] {
		if ev.Type != EventCreated || ev.ResourceID != a.ID.String() {
			t.Errorf("unexpected event %+v", ev)
		}
		want[ev.Topic] = true
	}
	for topic, seen := range want {
		if !seen {
			t.Errorf("no event on %s", topic)
		}
	}
	if pub.events[3].Type != EventStatusChanged {
		t.Errorf("expected status change event, got %s", pub.events[3].Type)
	}
	if metrics.counts[EventCreated] != 1 || metrics.counts[EventStatusChanged] != 1 {
		t.Errorf("unexpected counts %v", metrics.counts)
	}
}

func TestService_SearchAppointments(t *testing.T) {
	svc, profiles := newTestService()
	ctx := context.Background()
	doctorID := profiles.doctor(true)
	mine := profiles.patient()
	svc.CreateAppointment(ctx, booking(mine, doctorID))
	other := booking(profiles.patient(), doctorID)
	other.AppointmentTime = "14:00"
	svc.CreateAppointment(ctx, other)

	items, total, err := svc.SearchAppointments(ctx, url.Values{"patient": {mine.String()}}, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(items) != 1 || items[0].PatientID != mine {
		t.Errorf("expected only the patient's appointment, got %d", total)
	}
}
