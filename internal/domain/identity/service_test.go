package identity

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/hms/hms/internal/domain/accounts"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/pkg/validation"
)

// -- Mock Patient Repository --

type mockPatientRepo struct {
	patients map[uuid.UUID]*Patient
}

func newMockPatientRepo() *mockPatientRepo {
	return &mockPatientRepo{patients: make(map[uuid.UUID]*Patient)}
}

func (m *mockPatientRepo) Create(_ context.Context, p *Patient) error {
	for _, existing := range m.patients {
		if existing.UserID == p.UserID {
			return &db.ConstraintError{Kind: db.ErrConflict, Constraint: "patient_user_id_key"}
		}
	}
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	m.patients[p.ID] = &cp
	return nil
}

func (m *mockPatientRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockPatientRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*Patient, error) {
	for _, p := range m.patients {
		if p.UserID == userID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *mockPatientRepo) Update(_ context.Context, p *Patient) error {
	if _, ok := m.patients[p.ID]; !ok {
		return db.ErrNotFound
	}
	cp := *p
	m.patients[p.ID] = &cp
	return nil
}

func (m *mockPatientRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.patients[id]; !ok {
		return db.ErrNotFound
	}
	delete(m.patients, id)
	return nil
}

func (m *mockPatientRepo) Search(_ context.Context, params url.Values, limit, offset int) ([]*Patient, int, error) {
	var result []*Patient
	for _, p := range m.patients {
		if g := params.Get("gender"); g != "" && p.Gender != g {
			continue
		}
		result = append(result, p)
	}
	return result, len(result), nil
}

// -- Mock Doctor Repository --

type mockDoctorRepo struct {
	doctors map[uuid.UUID]*Doctor
}

func newMockDoctorRepo() *mockDoctorRepo {
	return &mockDoctorRepo{doctors: make(map[uuid.UUID]*Doctor)}
}

func (m *mockDoctorRepo) Create(_ context.Context, d *Doctor) error {
	for _, existing := range m.doctors {
		if existing.LicenseNumber == d.LicenseNumber {
			return &db.ConstraintError{Kind: db.ErrConflict, Constraint: "doctor_license_number_key"}
		}
	}
	d.ID = uuid.New()
	d.CreatedAt = time.Now()
	d.UpdatedAt = d.CreatedAt
	cp := *d
	m.doctors[d.ID] = &cp
	return nil
}

func (m *mockDoctorRepo) GetByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	d, ok := m.doctors[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *mockDoctorRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*Doctor, error) {
	for _, d := range m.doctors {
		if d.UserID == userID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *mockDoctorRepo) Update(_ context.Context, d *Doctor) error {
	if _, ok := m.doctors[d.ID]; !ok {
		return db.ErrNotFound
	}
	cp := *d
	m.doctors[d.ID] = &cp
	return nil
}

func (m *mockDoctorRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.doctors[id]; !ok {
		return db.ErrNotFound
	}
	delete(m.doctors, id)
	return nil
}

func (m *mockDoctorRepo) Search(_ context.Context, params url.Values, limit, offset int) ([]*Doctor, int, error) {
	var result []*Doctor
	for _, d := range m.doctors {
		if s := params.Get("specialization"); s != "" && d.Specialization != s {
			continue
		}
		result = append(result, d)
	}
	return result, len(result), nil
}

// -- Fake user directory --

type fakeUsers struct {
	users map[uuid.UUID]*accounts.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: make(map[uuid.UUID]*accounts.User)}
}

func (f *fakeUsers) CreateUser(_ context.Context, in accounts.UserInput) (*accounts.User, error) {
	in.Email = accounts.NormalizeEmail(in.Email)
	if err := in.Validate().Err(); err != nil {
		return nil, err
	}
	for _, u := range f.users {
		if strings.EqualFold(u.Email, in.Email) {
			return nil, &db.ConstraintError{Kind: db.ErrConflict, Constraint: "users_email_key"}
		}
	}
	u := &accounts.User{
		ID:        uuid.New(),
		Email:     in.Email,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		UserType:  in.UserType,
		IsActive:  true,
	}
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeUsers) GetUser(_ context.Context, id uuid.UUID) (*accounts.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) UpdateUser(_ context.Context, id uuid.UUID, in accounts.UserInput) (*accounts.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	if err := in.Validate().Err(); err != nil {
		return nil, err
	}
	u.Email = in.Email
	u.FirstName = in.FirstName
	u.LastName = in.LastName
	u.UserType = in.UserType
	if in.IsStaff != nil {
		u.IsStaff = *in.IsStaff
	}
	if in.Password != "" {
		u.PasswordHash = in.Password
	}
	return u, nil
}

func (f *fakeUsers) add(userType, first, last string) *accounts.User {
	u := &accounts.User{ID: uuid.New(), Email: strings.ToLower(first) + "@example.com", FirstName: first, LastName: last, UserType: userType, IsActive: true}
	f.users[u.ID] = u
	return u
}

func newTestService() (*Service, *fakeUsers) {
	users := newFakeUsers()
	svc := NewService(newMockPatientRepo(), newMockDoctorRepo(), users, db.NoTx{})
	svc.today = func() civil.Date { return civil.Date{Year: 2024, Month: time.June, Day: 15} }
	return svc, users
}

// -- Patient Tests --

func TestService_CreatePatient_NestedUser(t *testing.T) {
	svc, users := newTestService()
	p, err := svc.CreatePatient(context.Background(), PatientInput{
		User:        &accounts.UserInput{Email: "john@example.com", FirstName: "John", LastName: "Doe", UserType: "admin"},
		Gender:      "M",
		DateOfBirth: "1990-06-16",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if p.InsuranceType != "private" {
		t.Errorf("expected default insurance private, got %s", p.InsuranceType)
	}
	if p.Name() != "John Doe" {
		t.Errorf("expected name John Doe, got %s", p.Name())
	}
	if users.users[p.UserID].UserType != accounts.UserTypePatient {
		t.Errorf("expected nested user to be a patient, got %s", users.users[p.UserID].UserType)
	}
}

func TestService_CreatePatient_ExistingUser(t *testing.T) {
	svc, users := newTestService()
	u := users.add(accounts.UserTypePatient, "Ann", "Lee")
	p, err := svc.CreatePatient(context.Background(), PatientInput{UserID: &u.ID, Gender: "F", DateOfBirth: "1985-01-01", InsuranceType: "medicare"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.UserID != u.ID || p.User.Email != u.Email {
		t.Errorf("expected patient to reference user %s, got %+v", u.ID, p.User)
	}

	_, err = svc.CreatePatient(context.Background(), PatientInput{UserID: &u.ID, Gender: "F", DateOfBirth: "1985-01-01"})
	if !errors.Is(err, db.ErrConflict) {
		t.Errorf("expected conflict for a second profile, got %v", err)
	}
}

func TestService_CreatePatient_WrongUserType(t *testing.T) {
	svc, users := newTestService()
	u := users.add(accounts.UserTypeDoctor, "Greg", "House")
	_, err := svc.CreatePatient(context.Background(), PatientInput{UserID: &u.ID, Gender: "M", DateOfBirth: "1960-05-11"})
	ve, ok := validation.As(err)
	if !ok || !ve.Has("user_id") {
		t.Fatalf("expected user_id error, got %v", err)
	}
}

func TestService_CreatePatient_UnknownUser(t *testing.T) {
	svc, _ := newTestService()
	id := uuid.New()
	_, err := svc.CreatePatient(context.Background(), PatientInput{UserID: &id, Gender: "M", DateOfBirth: "1960-05-11"})
	ve, ok := validation.As(err)
	if !ok || !strings.Contains(ve["user_id"][0], "does not exist") {
		t.Fatalf("expected does-not-exist error, got %v", err)
	}
}

func TestService_CreatePatient_Validation(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.CreatePatient(context.Background(), PatientInput{
		User:             &accounts.UserInput{Email: "bad"},
		Gender:           "X",
		DateOfBirth:      "2030-01-01",
		InsuranceType:    "gold",
		EmergencyContact: "call me",
	})
	ve, ok := validation.As(err)
	if !ok {
		t.Fatalf("expected validation error, got %v", err)
	}
	for _, field := range []string{"gender", "date_of_birth", "insurance_type", "emergency_contact", "user.email"} {
		if !ve.Has(field) {
			t.Errorf("expected error on %s, got %v", field, ve)
		}
	}
}

func TestService_CreatePatient_RequiresUser(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.CreatePatient(context.Background(), PatientInput{Gender: "M", DateOfBirth: "1960-05-11"})
	ve, ok := validation.As(err)
	if !ok || !ve.Has("user_id") {
		t.Fatalf("expected user_id required, got %v", err)
	}
}

func TestService_UpdatePatient(t *testing.T) {
	svc, users := newTestService()
	ctx := context.Background()
	u := users.add(accounts.UserTypePatient, "Mia", "Wong")
	p, err := svc.CreatePatient(ctx, PatientInput{UserID: &u.ID, Gender: "F", DateOfBirth: "1999-12-31"})
	if err != nil {
		t.Fatal(err)
	}

	in, err := svc.PatientPatchBase(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	in.InsuranceType = "medicaid"
	in.User.LastName = "Wong-Smith"
	updated, err := svc.UpdatePatient(ctx, p.ID, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.InsuranceType != "medicaid" {
		t.Errorf("expected medicaid, got %s", updated.InsuranceType)
	}
	if updated.Name() != "Mia Wong-Smith" {
		t.Errorf("expected updated user name, got %s", updated.Name())
	}
}

func TestService_DeletePatient(t *testing.T) {
	svc, users := newTestService()
	ctx := context.Background()
	u := users.add(accounts.UserTypePatient, "Del", "Me")
	p, _ := svc.CreatePatient(ctx, PatientInput{UserID: &u.ID, Gender: "O", DateOfBirth: "2001-02-03"})

	if err := svc.DeletePatient(ctx, p.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.GetPatient(ctx, p.ID); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

// -- Doctor Tests --

func TestService_CreateDoctor(t *testing.T) {
	svc, _ := newTestService()
	d, err := svc.CreateDoctor(context.Background(), DoctorInput{
		User:              &accounts.UserInput{Email: "strange@example.com", FirstName: "Stephen", LastName: "Strange"},
		Specialization:    "neurologist",
		LicenseNumber:     " LIC-001 ",
		YearsOfExperience: 12,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.AcceptingNewPatients {
		t.Error("expected doctors to accept new patients by default")
	}
	if d.LicenseNumber != "LIC-001" {
		t.Errorf("expected trimmed license, got %q", d.LicenseNumber)
	}
	if d.Name() != "Dr. Stephen Strange" {
		t.Errorf("expected Dr. prefix, got %s", d.Name())
	}
}

func TestService_CreateDoctor_DuplicateLicense(t *testing.T) {
	svc, users := newTestService()
	ctx := context.Background()
	a := users.add(accounts.UserTypeDoctor, "A", "One")
	b := users.add(accounts.UserTypeDoctor, "B", "Two")
	if _, err := svc.CreateDoctor(ctx, DoctorInput{UserID: &a.ID, Specialization: "surgeon", LicenseNumber: "L1"}); err != nil {
		t.Fatal(err)
	}
	_, err := svc.CreateDoctor(ctx, DoctorInput{UserID: &b.ID, Specialization: "surgeon", LicenseNumber: "L1"})
	if !errors.Is(err, db.ErrConflict) {
		t.Errorf("expected conflict, got %v", err)
	}
}

func TestService_CreateDoctor_ExperienceBounds(t *testing.T) {
	svc, users := newTestService()
	u := users.add(accounts.UserTypeDoctor, "Old", "Timer")
	for _, years := range []int{-1, 71} {
		_, err := svc.CreateDoctor(context.Background(), DoctorInput{UserID: &u.ID, Specialization: "other", LicenseNumber: "X", YearsOfExperience: years})
		ve, ok := validation.As(err)
		if !ok || !ve.Has("years_of_experience") {
			t.Errorf("expected years_of_experience error for %d, got %v", years, err)
		}
	}
	if _, err := svc.CreateDoctor(context.Background(), DoctorInput{UserID: &u.ID, Specialization: "other", LicenseNumber: "X", YearsOfExperience: 70}); err != nil {
		t.Errorf("expected 70 years to be accepted, got %v", err)
	}
}

func TestService_UpdateDoctor_KeepsAcceptingWhenOmitted(t *testing.T) {
	svc, users := newTestService()
	ctx := context.Background()
	u := users.add(accounts.UserTypeDoctor, "Keep", "Flag")
	no := false
	d, err := svc.CreateDoctor(ctx, DoctorInput{UserID: &u.ID, Specialization: "pediatrician", LicenseNumber: "P-1", AcceptingNewPatients: &no})
	if err != nil {
		t.Fatal(err)
	}
	updated, err := svc.UpdateDoctor(ctx, d.ID, DoctorInput{Specialization: "pediatrician", LicenseNumber: "P-1", Biography: "Kids"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.AcceptingNewPatients {
		t.Error("expected accepting_new_patients to stay false")
	}
	if updated.Biography != "Kids" {
		t.Errorf("expected biography update, got %q", updated.Biography)
	}
}

// -- Profile Tests --

func TestService_LoadProfile(t *testing.T) {
	svc, users := newTestService()
	ctx := context.Background()
	pu := users.add(accounts.UserTypePatient, "Pat", "One")
	du := users.add(accounts.UserTypeDoctor, "Doc", "Two")
	admin := users.add(accounts.UserTypeAdmin, "Ad", "Min")
	p, _ := svc.CreatePatient(ctx, PatientInput{UserID: &pu.ID, Gender: "F", DateOfBirth: "1970-01-01"})
	d, _ := svc.CreateDoctor(ctx, DoctorInput{UserID: &du.ID, Specialization: "surgeon", LicenseNumber: "S-9"})

	prof, err := svc.LoadProfile(ctx, pu.ID, true)
	if err != nil || prof == nil || prof.PatientID == nil || *prof.PatientID != p.ID {
		t.Fatalf("expected patient profile, got %+v, %v", prof, err)
	}
	if prof.Detail == nil {
		t.Error("expected detail to be included")
	}

	prof, err = svc.LoadProfile(ctx, du.ID, false)
	if err != nil || prof == nil || prof.DoctorID == nil || *prof.DoctorID != d.ID {
		t.Fatalf("expected doctor profile, got %+v, %v", prof, err)
	}
	if prof.Detail != nil {
		t.Error("expected no detail")
	}

	prof, err = svc.LoadProfile(ctx, admin.ID, true)
	if err != nil || prof != nil {
		t.Errorf("expected no profile for admin, got %+v, %v", prof, err)
	}
}

func TestService_CheckRefs(t *testing.T) {
	svc, users := newTestService()
	ctx := context.Background()
	u := users.add(accounts.UserTypePatient, "Ref", "Check")
	p, _ := svc.CreatePatient(ctx, PatientInput{UserID: &u.ID, Gender: "M", DateOfBirth: "1950-01-01"})

	errs := validation.Errors{}
	if err := svc.CheckRefs(ctx, errs, p.ID, nil); err != nil {
		t.Fatal(err)
	}
	if len(errs) != 0 {
		t.Errorf("expected no errors, got %v", errs)
	}

	ghost := uuid.New()
	errs = validation.Errors{}
	if err := svc.CheckRefs(ctx, errs, uuid.Nil, &ghost); err != nil {
		t.Fatal(err)
	}
	if !errs.Has("patient_id") || !errs.Has("doctor_id") {
		t.Errorf("expected patient_id and doctor_id errors, got %v", errs)
	}
}
