package scheduling

import (
	"context"
	"net/url"

	"github.com/google/uuid"
)

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, params url.Values, limit, offset int) ([]*Appointment, int, error)
	// HasHistory reports whether the patient has any appointment with the doctor.
	HasHistory(ctx context.Context, patientID, doctorID uuid.UUID) (bool, error)
}
