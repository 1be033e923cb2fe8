package diagnostics

import (
	"context"
	"fmt"
	"net/url"

	"github.com/google/uuid"

	"github.com/hms/hms/pkg/validation"
)

// References checks that the patient and doctor a lab result points at exist.
type References interface {
	CheckRefs(ctx context.Context, errs validation.Errors, patientID uuid.UUID, doctorID *uuid.UUID) error
}

type Service struct {
	results LabResultRepository
	refs    References
}

func NewService(results LabResultRepository, refs References) *Service {
	return &Service{results: results, refs: refs}
}

func (s *Service) validate(ctx context.Context, in LabResultInput) (*LabResult, error) {
	r, errs := in.Validate()
	if err := s.refs.CheckRefs(ctx, errs, in.PatientID, in.DoctorID); err != nil {
		return nil, err
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) CreateLabResult(ctx context.Context, in LabResultInput) (*LabResult, error) {
	r, err := s.validate(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := s.results.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("create lab result: %w", err)
	}
	return s.results.GetByID(ctx, r.ID)
}

func (s *Service) GetLabResult(ctx context.Context, id uuid.UUID) (*LabResult, error) {
	return s.results.GetByID(ctx, id)
}

func (s *Service) LabResultPatchBase(ctx context.Context, id uuid.UUID) (LabResultInput, error) {
	r, err := s.results.GetByID(ctx, id)
	if err != nil {
		return LabResultInput{}, err
	}
	return LabResultInputFrom(r), nil
}

func (s *Service) UpdateLabResult(ctx context.Context, id uuid.UUID, in LabResultInput) (*LabResult, error) {
	existing, err := s.results.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r, err := s.validate(ctx, in)
	if err != nil {
		return nil, err
	}
	r.ID = existing.ID
	r.CreatedAt = existing.CreatedAt
	if err := s.results.Update(ctx, r); err != nil {
		return nil, fmt.Errorf("update lab result: %w", err)
	}
	return s.results.GetByID(ctx, id)
}

func (s *Service) DeleteLabResult(ctx context.Context, id uuid.UUID) error {
	return s.results.Delete(ctx, id)
}

func (s *Service) SearchLabResults(ctx context.Context, params url.Values, limit, offset int) ([]*LabResult, int, error) {
	return s.results.Search(ctx, params, limit, offset)
}
