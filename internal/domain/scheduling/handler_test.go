package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/platform/auth"
)

func newTestHandler() (*Handler, *Service, *fakeProfiles, *echo.Echo) {
	svc, profiles := newTestService()
	return NewHandler(svc), svc, profiles, echo.New()
}

func withIdentity(req *http.Request, key interface{}, id uuid.UUID, roles ...string) *http.Request {
	ctx := context.WithValue(req.Context(), auth.UserIDKey, uuid.New().String())
	ctx = context.WithValue(ctx, auth.UserRolesKey, roles)
	if key != nil {
		ctx = context.WithValue(ctx, key, id.String())
	}
	return req.WithContext(ctx)
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func httpCode(t *testing.T, err error) int {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected *echo.HTTPError, got %v", err)
	}
	return he.Code
}

func idContext(e *echo.Echo, req *http.Request, id uuid.UUID) (echo.Context, *httptest.ResponseRecorder) {
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(id.String())
	return c, rec
}

func TestHandler_CreateAppointment_AsPatient(t *testing.T) {
	h, _, profiles, e := newTestHandler()
	me := profiles.patient()
	doctorID := profiles.doctor(true)

	// patient_id and status from the body are ignored for patients.
	body := `{"patient_id":"` + uuid.NewString() + `","doctor_id":"` + doctorID.String() + `","appointment_date":"2024-07-01","appointment_time":"10:00","status":"completed"}`
	req := withIdentity(jsonRequest(http.MethodPost, "/api/v1/appointments", body), auth.PatientIDKey, me, auth.RolePatient)
	rec := httptest.NewRecorder()

	if err := h.CreateAppointment(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var res map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &res)
	if res["patient_id"] != me.String() || res["status"] != StatusScheduled {
		t.Errorf("expected own scheduled booking, got %v / %v", res["patient_id"], res["status"])
	}
}

func TestHandler_CreateAppointment_Conflict(t *testing.T) {
	h, svc, profiles, e := newTestHandler()
	doctorID := profiles.doctor(true)
	svc.CreateAppointment(context.Background(), booking(profiles.patient(), doctorID))

	body := `{"patient_id":"` + profiles.patient().String() + `","doctor_id":"` + doctorID.String() + `","appointment_date":"2024-07-01","appointment_time":"09:30:00"}`
	req := withIdentity(jsonRequest(http.MethodPost, "/api/v1/appointments", body), nil, uuid.Nil, auth.RoleAdmin)

	err := h.CreateAppointment(e.NewContext(req, httptest.NewRecorder()))
	if code := httpCode(t, err); code != http.StatusConflict {
		t.Errorf("expected 409, got %d", code)
	}
}

func TestHandler_CreateAppointment_ValidationError(t *testing.T) {
	h, _, _, e := newTestHandler()
	req := withIdentity(jsonRequest(http.MethodPost, "/api/v1/appointments", `{}`), nil, uuid.Nil, auth.RoleAdmin)

	err := h.CreateAppointment(e.NewContext(req, httptest.NewRecorder()))
	if code := httpCode(t, err); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_ListAppointments_Scoped(t *testing.T) {
	h, svc, profiles, e := newTestHandler()
	ctx := context.Background()
	doctorA, doctorB := profiles.doctor(true), profiles.doctor(true)
	svc.CreateAppointment(ctx, booking(profiles.patient(), doctorA))
	svc.CreateAppointment(ctx, booking(profiles.patient(), doctorB))

	// A doctor asking for another doctor's calendar still gets their own.
	req := withIdentity(httptest.NewRequest(http.MethodGet, "/api/v1/appointments?doctor="+doctorB.String(), nil), auth.DoctorIDKey, doctorA, auth.RoleDoctor)
	rec := httptest.NewRecorder()
	if err := h.ListAppointments(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var page struct {
		Count   int                      `json:"count"`
		Results []map[string]interface{} `json:"results"`
	}
	json.Unmarshal(rec.Body.Bytes(), &page)
	if page.Count != 1 || page.Results[0]["doctor_id"] != doctorA.String() {
		t.Errorf("expected only doctor A's appointment, got %+v", page)
	}

	req = withIdentity(httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil), nil, uuid.Nil, auth.RoleDoctor)
	err := h.ListAppointments(e.NewContext(req, httptest.NewRecorder()))
	if code := httpCode(t, err); code != http.StatusForbidden {
		t.Errorf("doctor without profile: expected 403, got %d", code)
	}
}

func TestHandler_GetAppointment_Ownership(t *testing.T) {
	h, svc, profiles, e := newTestHandler()
	patientID := profiles.patient()
	a, _ := svc.CreateAppointment(context.Background(), booking(patientID, profiles.doctor(true)))

	c, rec := idContext(e, withIdentity(httptest.NewRequest(http.MethodGet, "/", nil), auth.PatientIDKey, patientID, auth.RolePatient), a.ID)
	if err := h.GetAppointment(c); err != nil || rec.Code != http.StatusOK {
		t.Fatalf("owner: err=%v code=%d", err, rec.Code)
	}

	c, _ = idContext(e, withIdentity(httptest.NewRequest(http.MethodGet, "/", nil), auth.PatientIDKey, uuid.New(), auth.RolePatient), a.ID)
	if code := httpCode(t, h.GetAppointment(c)); code != http.StatusForbidden {
		t.Errorf("stranger: expected 403, got %d", code)
	}

	c, _ = idContext(e, withIdentity(httptest.NewRequest(http.MethodGet, "/", nil), nil, uuid.Nil, auth.RoleAdmin), uuid.New())
	if code := httpCode(t, h.GetAppointment(c)); code != http.StatusNotFound {
		t.Errorf("missing: expected 404, got %d", code)
	}
}

func TestHandler_ChangeStatus(t *testing.T) {
	h, svc, profiles, e := newTestHandler()
	patientID, doctorID := profiles.patient(), profiles.doctor(true)
	a, _ := svc.CreateAppointment(context.Background(), booking(patientID, doctorID))

	req := withIdentity(jsonRequest(http.MethodPost, "/", `{"status":"completed"}`), auth.PatientIDKey, patientID, auth.RolePatient)
	c, _ := idContext(e, req, a.ID)
	if code := httpCode(t, h.ChangeStatus(c)); code != http.StatusForbidden {
		t.Errorf("patient completing: expected 403, got %d", code)
	}

	req = withIdentity(jsonRequest(http.MethodPost, "/", `{"status":"completed","notes":"all good"}`), auth.DoctorIDKey, doctorID, auth.RoleDoctor)
	c, rec := idContext(e, req, a.ID)
	if err := h.ChangeStatus(c); err != nil {
		t.Fatalf("doctor completing: %v", err)
	}
	var res map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &res)
	if res["status"] != StatusCompleted || res["status_display"] != "Completed" {
		t.Errorf("unexpected response %v", res)
	}

	req = withIdentity(jsonRequest(http.MethodPost, "/", `{"status":"cancelled"}`), auth.PatientIDKey, patientID, auth.RolePatient)
	c, _ = idContext(e, req, a.ID)
	if code := httpCode(t, h.ChangeStatus(c)); code != http.StatusConflict {
		t.Errorf("cancelling completed: expected 409, got %d", code)
	}
}

func TestHandler_Reschedule(t *testing.T) {
	h, svc, profiles, e := newTestHandler()
	doctorID := profiles.doctor(true)
	a, _ := svc.CreateAppointment(context.Background(), booking(profiles.patient(), doctorID))

	req := withIdentity(jsonRequest(http.MethodPost, "/", `{"appointment_date":"2024-07-08","appointment_time":"13:00"}`), auth.DoctorIDKey, doctorID, auth.RoleDoctor)
	c, rec := idContext(e, req, a.ID)
	if err := h.Reschedule(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var res map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &res)
	if res["status"] != StatusRescheduled || res["appointment_date"] != "2024-07-08" {
		t.Errorf("unexpected response %v", res)
	}

	req = withIdentity(jsonRequest(http.MethodPost, "/", `{"appointment_date":"soon"}`), auth.DoctorIDKey, doctorID, auth.RoleDoctor)
	c, _ = idContext(e, req, a.ID)
	if code := httpCode(t, h.Reschedule(c)); code != http.StatusBadRequest {
		t.Errorf("bad date: expected 400, got %d", code)
	}
}

func TestHandler_Reschedule_PatientForbidden(t *testing.T) {
	h, svc, profiles, e := newTestHandler()
	h.RegisterRoutes(e.Group("/api/v1"))
	patientID := profiles.patient()
	a, _ := svc.CreateAppointment(context.Background(), booking(patientID, profiles.doctor(true)))

	body := `{"appointment_date":"2024-07-08","appointment_time":"13:00"}`
	req := withIdentity(jsonRequest(http.MethodPost, "/api/v1/appointments/"+a.ID.String()+"/reschedule", body), auth.PatientIDKey, patientID, auth.RolePatient)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("patient rescheduling: expected 403, got %d", rec.Code)
	}

	stored, _ := svc.GetAppointment(context.Background(), a.ID)
	if stored.Status != StatusScheduled || stored.AppointmentDate.String() != "2024-07-01" {
		t.Errorf("appointment changed: status=%s date=%s", stored.Status, stored.AppointmentDate)
	}
}

func TestHandler_PatchAndDelete(t *testing.T) {
	h, svc, profiles, e := newTestHandler()
	a, _ := svc.CreateAppointment(context.Background(), booking(profiles.patient(), profiles.doctor(true)))

	req := withIdentity(jsonRequest(http.MethodPatch, "/", `{"reason":"Follow-up on labs","appointment_type":"follow_up"}`), nil, uuid.Nil, auth.RoleAdmin)
	c, rec := idContext(e, req, a.ID)
	if err := h.PatchAppointment(c); err != nil {
		t.Fatalf("patch: %v", err)
	}
	var res map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &res)
	if res["reason"] != "Follow-up on labs" || res["appointment_type_display"] != "Follow-up Visit" {
		t.Errorf("unexpected response %v", res)
	}
	if res["appointment_time"] != "09:30:00" {
		t.Errorf("patch must keep the slot, got %v", res["appointment_time"])
	}

	c, rec = idContext(e, withIdentity(httptest.NewRequest(http.MethodDelete, "/", nil), nil, uuid.Nil, auth.RoleAdmin), a.ID)
	if err := h.DeleteAppointment(c); err != nil || rec.Code != http.StatusNoContent {
		t.Fatalf("delete: err=%v code=%d", err, rec.Code)
	}

	c, _ = idContext(e, httptest.NewRequest(http.MethodDelete, "/", nil), uuid.Nil)
	c.SetParamValues("not-a-uuid")
	if code := httpCode(t, h.DeleteAppointment(c)); code != http.StatusBadRequest {
		t.Errorf("invalid id: expected 400, got %d", code)
	}
}

func TestHandler_Routes(t *testing.T) {
	h, _, _, e := newTestHandler()
	h.RegisterRoutes(e.Group("/api/v1"))

	want := map[string]bool{
		"GET /api/v1/appointments":                 false,
		"POST /api/v1/appointments":                false,
		"GET /api/v1/appointments/:id":             false,
		"PUT /api/v1/appointments/:id":             false,
		"PATCH /api/v1/appointments/:id":           false,
		"DELETE /api/v1/appointments/:id":          false,
		"POST /api/v1/appointments/:id/status":     false,
		"POST /api/v1/appointments/:id/reschedule": false,
	}
	for _, r := range e.Routes() {
		key := r.Method + " " + r.Path
		if _, ok := want[key]; ok {
			want[key] = true
		}
	}
	for route, found := range want {
		if !found {
			t.Errorf("route %s not registered", route)
		}
	}
}
