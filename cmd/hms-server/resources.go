package main

import (
	"github.com/hms/hms/internal/domain/accounts"
	"github.com/hms/hms/internal/domain/clinical"
	"github.com/hms/hms/internal/domain/diagnostics"
	"github.com/hms/hms/internal/domain/identity"
	"github.com/hms/hms/internal/domain/scheduling"
	"github.com/hms/hms/internal/platform/openapi"
)

type passwordInput struct {
	Password string `json:"password"`
}

// apiResources describes the REST collections for the OpenAPI document.
func apiResources() []openapi.Resource {
	return []openapi.Resource{
		{
			Path:    "/users",
			Tag:     "Users",
			Name:    "User",
			Model:   accounts.User{},
			Input:   accounts.UserInput{},
			Filters: []string{"user_type", "is_staff", "is_active", "is_superuser", "date_joined"},
			Actions: []openapi.Action{{Name: "password", Summary: "Set a user's password", Input: passwordInput{}}},
		},
		{
			Path:    "/patients",
			Tag:     "Patients",
			Name:    "Patient",
			Model:   identity.Patient{},
			Input:   identity.PatientInput{},
			Filters: []string{"gender", "insurance_type", "date_of_birth", "user", "id"},
		},
		{
			Path:    "/doctors",
			Tag:     "Doctors",
			Name:    "Doctor",
			Model:   identity.Doctor{},
			Input:   identity.DoctorInput{},
			Filters: []string{"specialization", "accepting_new_patients", "years_of_experience", "license_number", "user"},
		},
		{
			Path:  "/diagnosis-histories",
			Tag:   "Diagnosis histories",
			Name:  "DiagnosisHistory",
			Model: clinical.DiagnosisHistory{},
			Input: clinical.DiagnosisHistoryInput{},
			Filters: []string{"month", "year", "blood_pressure_systolic_levels", "blood_pressure_diastolic_levels",
				"heart_rate_levels", "patient", "doctor"},
		},
		{
			Path:    "/diagnostics",
			Tag:     "Diagnostics",
			Name:    "Diagnostic",
			Model:   clinical.Diagnostic{},
			Input:   clinical.DiagnosticInput{},
			Filters: []string{"status", "diagnosed_date", "patient", "doctor"},
		},
		{
			Path:    "/lab-results",
			Tag:     "Lab results",
			Name:    "LabResult",
			Model:   diagnostics.LabResult{},
			Input:   diagnostics.LabResultInput{},
			Filters: []string{"status", "performed_date", "reported_date", "patient", "doctor"},
		},
		{
			Path:    "/appointments",
			Tag:     "Appointments",
			Name:    "Appointment",
			Model:   scheduling.Appointment{},
			Input:   scheduling.AppointmentInput{},
			Filters: []string{"status", "appointment_type", "appointment_date", "patient", "doctor"},
			Actions: []openapi.Action{
				{Name: "status", Summary: "Change the status of an appointment", Input: scheduling.StatusInput{}},
				{Name: "reschedule", Summary: "Move an appointment to a new date and time", Input: scheduling.RescheduleInput{}},
			},
		},
	}
}
