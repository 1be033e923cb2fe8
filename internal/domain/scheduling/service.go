package scheduling

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hms/hms/internal/domain/identity"
	"github.com/hms/hms/internal/platform/apierr"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/websocket"
	"github.com/hms/hms/pkg/validation"
)

func init() {
	apierr.RegisterConflict("appointment_doctor_slot_key", "This doctor already has an appointment at that date and time.")
}

// Profiles resolves the patient and doctor an appointment points at.
type Profiles interface {
	CheckRefs(ctx context.Context, errs validation.Errors, patientID uuid.UUID, doctorID *uuid.UUID) error
	GetDoctor(ctx context.Context, id uuid.UUID) (*identity.Doctor, error)
}

// EventCounter counts published appointment events.
type EventCounter interface {
	IncAppointmentEvent(eventType string)
}

type Service struct {
	appointments AppointmentRepository
	profiles     Profiles
	publisher    websocket.EventPublisher
	metrics      EventCounter
}

func NewService(appointments AppointmentRepository, profiles Profiles) *Service {
	return &Service{appointments: appointments, profiles: profiles}
}

// SetPublisher enables live notifications for appointment changes.
func (s *Service) SetPublisher(p websocket.EventPublisher) { s.publisher = p }

func (s *Service) SetMetrics(m EventCounter) { s.metrics = m }

// validate checks the input and the referenced profiles. existing is nil on
// create.
func (s *Service) validate(ctx context.Context, in AppointmentInput, existing *Appointment) (*Appointment, error) {
	a, errs := in.Validate()
	if err := s.profiles.CheckRefs(ctx, errs, in.PatientID, nil); err != nil {
		return nil, err
	}
	if in.DoctorID != uuid.Nil {
		if err := s.checkDoctor(ctx, errs, in, existing); err != nil {
			return nil, err
		}
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}
	return a, nil
}

// checkDoctor rejects unknown doctors and new patients for doctors who are
// not taking any. A patient already seen by the doctor may always book.
func (s *Service) checkDoctor(ctx context.Context, errs validation.Errors, in AppointmentInput, existing *Appointment) error {
	d, err := s.profiles.GetDoctor(ctx, in.DoctorID)
	if errors.Is(err, db.ErrNotFound) {
		errs.Addf("doctor_id", "Invalid pk %q - object does not exist.", in.DoctorID.String())
		return nil
	}
	if err != nil {
		return err
	}
	if d.AcceptingNewPatients || in.PatientID == uuid.Nil {
		return nil
	}
	if existing != nil && existing.DoctorID == in.DoctorID && existing.PatientID == in.PatientID {
		return nil
	}
	seen, err := s.appointments.HasHistory(ctx, in.PatientID, in.DoctorID)
	if err != nil {
		return err
	}
	if !seen {
		errs.Add("doctor_id", "This doctor is not accepting new patients.")
	}
	return nil
}

func transitionError(from, to string) error {
	return fmt.Errorf("%w: cannot change status from %s to %s", apierr.ErrInvalidTransition, from, to)
}

func (s *Service) CreateAppointment(ctx context.Context, in AppointmentInput) (*Appointment, error) {
	a, err := s.validate(ctx, in, nil)
	if err != nil {
		return nil, err
	}
	if err := s.appointments.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}
	created, err := s.appointments.GetByID(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, EventCreated, created)
	return created, nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.appointments.GetByID(ctx, id)
}

func (s *Service) AppointmentPatchBase(ctx context.Context, id uuid.UUID) (AppointmentInput, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return AppointmentInput{}, err
	}
	return AppointmentInputFrom(a), nil
}

// UpdateAppointment replaces the writable fields. A status change must follow
// the workflow; moving an open appointment to a new slot may mark it
// rescheduled. A final appointment keeps its slot and parties.
func (s *Service) UpdateAppointment(ctx context.Context, id uuid.UUID, in AppointmentInput) (*Appointment, error) {
	existing, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	a, err := s.validate(ctx, in, existing)
	if err != nil {
		return nil, err
	}
	if a.Status != existing.Status && !CanTransition(existing.Status, a.Status) {
		moved := a.AppointmentDate != existing.AppointmentDate || a.AppointmentTime != existing.AppointmentTime
		if !(a.Status == StatusRescheduled && IsOpen(existing.Status) && moved) {
			return nil, transitionError(existing.Status, a.Status)
		}
	}
	if !IsOpen(existing.Status) && !sameBooking(existing, a) {
		return nil, fmt.Errorf("%w: a %s appointment cannot be moved", apierr.ErrInvalidTransition, existing.Status)
	}
	a.ID = existing.ID
	a.CreatedAt = existing.CreatedAt
	if err := s.appointments.Update(ctx, a); err != nil {
		return nil, fmt.Errorf("update appointment: %w", err)
	}
	updated, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, EventUpdated, updated)
	return updated, nil
}

func sameBooking(a, b *Appointment) bool {
	return a.PatientID == b.PatientID && a.DoctorID == b.DoctorID &&
		a.AppointmentDate == b.AppointmentDate && a.AppointmentTime == b.AppointmentTime
}

// ChangeStatus moves an appointment along the workflow. Non-empty notes
// replace the stored ones.
func (s *Service) ChangeStatus(ctx context.Context, id uuid.UUID, in StatusInput) (*Appointment, error) {
	errs := validation.Errors{}
	if errs.Required("status", in.Status) {
		errs.Choice("status", in.Status, StatusChoices)
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(a.Status, in.Status) {
		return nil, transitionError(a.Status, in.Status)
	}
	a.Status = in.Status
	if in.Notes != "" {
		a.Notes = in.Notes
	}
	if err := s.appointments.Update(ctx, a); err != nil {
		return nil, fmt.Errorf("change appointment status: %w", err)
	}
	updated, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, EventStatusChanged, updated)
	return updated, nil
}

// Reschedule moves an open appointment to a new slot and marks it
// rescheduled.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, in RescheduleInput) (*Appointment, error) {
	date, tm, errs := in.Validate()
	if err := errs.Err(); err != nil {
		return nil, err
	}
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !IsOpen(a.Status) {
		return nil, fmt.Errorf("%w: a %s appointment cannot be rescheduled", apierr.ErrInvalidTransition, a.Status)
	}
	a.AppointmentDate = date
	a.AppointmentTime = tm
	a.Status = StatusRescheduled
	if in.Notes != "" {
		a.Notes = in.Notes
	}
	if err := s.appointments.Update(ctx, a); err != nil {
		return nil, fmt.Errorf("reschedule appointment: %w", err)
	}
	updated, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, EventRescheduled, updated)
	return updated, nil
}

func (s *Service) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.appointments.Delete(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, EventDeleted, a)
	return nil
}

func (s *Service) SearchAppointments(ctx context.Context, params url.Values, limit, offset int) ([]*Appointment, int, error) {
	return s.appointments.Search(ctx, params, limit, offset)
}

// publish notifies live subscribers. Failures are logged and never fail the
// request that caused them.
func (s *Service) publish(ctx context.Context, eventType string, a *Appointment) {
	if s.metrics != nil {
		s.metrics.IncAppointmentEvent(eventType)
	}
	if s.publisher == nil {
		return
	}
	for _, topic := range Topics(a) {
		ev, err := websocket.NewEvent(eventType, topic, "appointment", a.ID.String(), a)
		if err != nil {
			log.Error().Err(err).Str("appointment_id", a.ID.String()).Msg("build appointment event")
			return
		}
		if err := s.publisher.Publish(ctx, ev); err != nil {
			log.Warn().Err(err).Str("topic", topic).Str("type", eventType).Msg("publish appointment event")
		}
	}
}
