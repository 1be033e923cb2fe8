package diagnostics

import (
	"context"
	"net/url"

	"github.com/google/uuid"
)

type LabResultRepository interface {
	Create(ctx context.Context, r *LabResult) error
	GetByID(ctx context.Context, id uuid.UUID) (*LabResult, error)
	Update(ctx context.Context, r *LabResult) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, params url.Values, limit, offset int) ([]*LabResult, int, error)
}
