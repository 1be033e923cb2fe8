package clinical

import (
	"context"
	"net/url"

	"github.com/google/uuid"
)

type DiagnosisHistoryRepository interface {
	Create(ctx context.Context, h *DiagnosisHistory) error
	GetByID(ctx context.Context, id uuid.UUID) (*DiagnosisHistory, error)
	Update(ctx context.Context, h *DiagnosisHistory) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, params url.Values, limit, offset int) ([]*DiagnosisHistory, int, error)
}

type DiagnosticRepository interface {
	Create(ctx context.Context, d *Diagnostic) error
	GetByID(ctx context.Context, id uuid.UUID) (*Diagnostic, error)
	Update(ctx context.Context, d *Diagnostic) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, params url.Values, limit, offset int) ([]*Diagnostic, int, error)
}
