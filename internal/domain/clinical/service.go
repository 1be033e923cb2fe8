package clinical

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/hms/hms/internal/platform/apierr"
	"github.com/hms/hms/pkg/validation"
)

func init() {
	apierr.RegisterConflict("diagnosis_history_patient_month_year_key", "The fields patient, month, year must make a unique set.")
}

// References checks that the patient and doctor a record points at exist.
// identity.Service implements it.
type References interface {
	CheckRefs(ctx context.Context, errs validation.Errors, patientID uuid.UUID, doctorID *uuid.UUID) error
}

type Service struct {
	histories   DiagnosisHistoryRepository
	diagnostics DiagnosticRepository
	refs        References
	today       func() civil.Date
}

func NewService(histories DiagnosisHistoryRepository, diagnostics DiagnosticRepository, refs References) *Service {
	return &Service{
		histories:   histories,
		diagnostics: diagnostics,
		refs:        refs,
		today:       func() civil.Date { return civil.DateOf(time.Now()) },
	}
}

func (s *Service) check(ctx context.Context, errs validation.Errors, patientID uuid.UUID, doctorID *uuid.UUID) error {
	if err := s.refs.CheckRefs(ctx, errs, patientID, doctorID); err != nil {
		return err
	}
	return errs.Err()
}

// -- Diagnosis History --

func (s *Service) CreateDiagnosisHistory(ctx context.Context, in DiagnosisHistoryInput) (*DiagnosisHistory, error) {
	if err := s.check(ctx, in.Validate(), in.PatientID, in.DoctorID); err != nil {
		return nil, err
	}
	h := &DiagnosisHistory{}
	in.apply(h)
	if err := s.histories.Create(ctx, h); err != nil {
		return nil, fmt.Errorf("create diagnosis history: %w", err)
	}
	// Reload for the joined names.
	return s.histories.GetByID(ctx, h.ID)
}

func (s *Service) GetDiagnosisHistory(ctx context.Context, id uuid.UUID) (*DiagnosisHistory, error) {
	return s.histories.GetByID(ctx, id)
}

func (s *Service) DiagnosisHistoryPatchBase(ctx context.Context, id uuid.UUID) (DiagnosisHistoryInput, error) {
	h, err := s.histories.GetByID(ctx, id)
	if err != nil {
		return DiagnosisHistoryInput{}, err
	}
	return DiagnosisHistoryInputFrom(h), nil
}

func (s *Service) UpdateDiagnosisHistory(ctx context.Context, id uuid.UUID, in DiagnosisHistoryInput) (*DiagnosisHistory, error) {
	h, err := s.histories.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.check(ctx, in.Validate(), in.PatientID, in.DoctorID); err != nil {
		return nil, err
	}
	in.apply(h)
	if err := s.histories.Update(ctx, h); err != nil {
		return nil, fmt.Errorf("update diagnosis history: %w", err)
	}
	return s.histories.GetByID(ctx, id)
}

func (s *Service) DeleteDiagnosisHistory(ctx context.Context, id uuid.UUID) error {
	return s.histories.Delete(ctx, id)
}

func (s *Service) SearchDiagnosisHistories(ctx context.Context, params url.Values, limit, offset int) ([]*DiagnosisHistory, int, error) {
	return s.histories.Search(ctx, params, limit, offset)
}

// -- Diagnostic --

func (s *Service) CreateDiagnostic(ctx context.Context, in DiagnosticInput) (*Diagnostic, error) {
	date, errs := in.Validate(s.today())
	if err := s.check(ctx, errs, in.PatientID, in.DoctorID); err != nil {
		return nil, err
	}
	d := &Diagnostic{
		PatientID:     in.PatientID,
		DoctorID:      in.DoctorID,
		Name:          in.Name,
		Description:   in.Description,
		Status:        in.Status,
		DiagnosedDate: date,
	}
	if err := s.diagnostics.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("create diagnostic: %w", err)
	}
	return s.diagnostics.GetByID(ctx, d.ID)
}

func (s *Service) GetDiagnostic(ctx context.Context, id uuid.UUID) (*Diagnostic, error) {
	return s.diagnostics.GetByID(ctx, id)
}

func (s *Service) DiagnosticPatchBase(ctx context.Context, id uuid.UUID) (DiagnosticInput, error) {
	d, err := s.diagnostics.GetByID(ctx, id)
	if err != nil {
		return DiagnosticInput{}, err
	}
	return DiagnosticInputFrom(d), nil
}

func (s *Service) UpdateDiagnostic(ctx context.Context, id uuid.UUID, in DiagnosticInput) (*Diagnostic, error) {
	d, err := s.diagnostics.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	date, errs := in.Validate(s.today())
	if err := s.check(ctx, errs, in.PatientID, in.DoctorID); err != nil {
		return nil, err
	}
	d.PatientID = in.PatientID
	d.DoctorID = in.DoctorID
	d.Name = in.Name
	d.Description = in.Description
	d.Status = in.Status
	d.DiagnosedDate = date
	if err := s.diagnostics.Update(ctx, d); err != nil {
		return nil, fmt.Errorf("update diagnostic: %w", err)
	}
	return s.diagnostics.GetByID(ctx, id)
}

func (s *Service) DeleteDiagnostic(ctx context.Context, id uuid.UUID) error {
	return s.diagnostics.Delete(ctx, id)
}

func (s *Service) SearchDiagnostics(ctx context.Context, params url.Values, limit, offset int) ([]*Diagnostic, int, error) {
	return s.diagnostics.Search(ctx, params, limit, offset)
}
