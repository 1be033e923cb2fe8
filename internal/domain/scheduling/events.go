package scheduling

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/platform/auth"
)

const (
	EventCreated       = "appointment.created"
	EventUpdated       = "appointment.updated"
	EventStatusChanged = "appointment.status_changed"
	EventRescheduled   = "appointment.rescheduled"
	EventDeleted       = "appointment.deleted"
)

const (
	TopicAll           = "appointments"
	topicDoctorPrefix  = "doctor:"
	topicPatientPrefix = "patient:"
)

// Topics lists the live-update topics an appointment change is sent to.
func Topics(a *Appointment) []string {
	return []string{
		TopicAll,
		topicDoctorPrefix + a.DoctorID.String(),
		topicPatientPrefix + a.PatientID.String(),
	}
}

// CanSubscribe reports whether the caller may follow topic. Admins follow
// anything, doctors follow the full board, their own calendar and any
// patient, and patients only their own appointments.
func CanSubscribe(ctx context.Context, topic string) bool {
	if auth.IsAdmin(ctx) {
		return true
	}
	switch {
	case topic == TopicAll:
		return auth.HasRole(ctx, auth.RoleDoctor)
	case strings.HasPrefix(topic, topicDoctorPrefix):
		id, ok := auth.DoctorUUID(ctx)
		return ok && sameID(id, strings.TrimPrefix(topic, topicDoctorPrefix))
	case strings.HasPrefix(topic, topicPatientPrefix):
		if auth.HasRole(ctx, auth.RoleDoctor) {
			return true
		}
		id, ok := auth.PatientUUID(ctx)
		return ok && sameID(id, strings.TrimPrefix(topic, topicPatientPrefix))
	}
	return false
}

func sameID(id uuid.UUID, raw string) bool {
	parsed, err := uuid.Parse(raw)
	return err == nil && parsed == id
}
