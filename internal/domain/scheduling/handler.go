package scheduling

import (
	"context"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/platform/apierr"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Ownership for doctors and patients is checked per request.
	all := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleDoctor, auth.RolePatient))
	all.GET("/appointments", h.ListAppointments)
	all.GET("/appointments/:id", h.GetAppointment)
	all.POST("/appointments", h.CreateAppointment)
	all.POST("/appointments/:id/status", h.ChangeStatus)

	staff := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleDoctor))
	staff.POST("/appointments/:id/reschedule", h.Reschedule)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.PUT("/appointments/:id", h.UpdateAppointment)
	admin.PATCH("/appointments/:id", h.PatchAppointment)
	admin.DELETE("/appointments/:id", h.DeleteAppointment)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// owns reports whether the caller is the appointment's doctor or patient.
func owns(ctx context.Context, a *Appointment) bool {
	if id, ok := auth.DoctorUUID(ctx); ok && id == a.DoctorID {
		return true
	}
	id, ok := auth.PatientUUID(ctx)
	return ok && id == a.PatientID
}

// scopeList pins doctors to their own calendar and patients to their own
// appointments.
func scopeList(ctx context.Context, params url.Values) error {
	if auth.IsAdmin(ctx) {
		return nil
	}
	if auth.HasRole(ctx, auth.RoleDoctor) {
		id := auth.DoctorIDFromContext(ctx)
		if id == "" {
			return echo.NewHTTPError(http.StatusForbidden, "no doctor profile is linked to this account")
		}
		params.Set("doctor", id)
		return nil
	}
	return auth.ScopeToPatient(ctx, params)
}

// load fetches an appointment the caller may see.
func (h *Handler) load(c echo.Context) (*Appointment, error) {
	id, err := parseID(c)
	if err != nil {
		return nil, err
	}
	ctx := c.Request().Context()
	a, err := h.svc.GetAppointment(ctx, id)
	if err != nil {
		return nil, apierr.From(err)
	}
	if !auth.IsAdmin(ctx) && !owns(ctx, a) {
		return nil, apierr.From(apierr.ErrForbidden)
	}
	return a, nil
}

func (h *Handler) CreateAppointment(c echo.Context) error {
	var in AppointmentInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	if !auth.IsAdmin(ctx) {
		// Doctors book into their own calendar, patients for themselves.
		if id, ok := auth.DoctorUUID(ctx); ok && auth.HasRole(ctx, auth.RoleDoctor) {
			in.DoctorID = id
		} else if id, ok := auth.PatientUUID(ctx); ok && auth.HasRole(ctx, auth.RolePatient) {
			in.PatientID = id
		} else {
			return apierr.From(apierr.ErrForbidden)
		}
		in.Status = StatusScheduled
	}
	a, err := h.svc.CreateAppointment(ctx, in)
	if err != nil {
		return apierr.From(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	a, err := h.load(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	ctx := c.Request().Context()
	params := c.QueryParams()
	if err := scopeList(ctx, params); err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.SearchAppointments(ctx, params, pg.Limit, pg.Offset)
	if err != nil {
		return apierr.From(err)
	}
	return pagination.Respond(c, items, total, pg)
}

func (h *Handler) UpdateAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in AppointmentInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.svc.UpdateAppointment(c.Request().Context(), id, in)
	if err != nil {
		return apierr.From(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) PatchAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	in, err := h.svc.AppointmentPatchBase(ctx, id)
	if err != nil {
		return apierr.From(err)
	}
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.svc.UpdateAppointment(ctx, id, in)
	if err != nil {
		return apierr.From(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) DeleteAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteAppointment(c.Request().Context(), id); err != nil {
		return apierr.From(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ChangeStatus lets the treating doctor close out an appointment. Patients
// may only cancel their own.
func (h *Handler) ChangeStatus(c echo.Context) error {
	a, err := h.load(c)
	if err != nil {
		return err
	}
	var in StatusInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	if !auth.IsAdmin(ctx) && !auth.HasRole(ctx, auth.RoleDoctor) && in.Status != StatusCancelled {
		return echo.NewHTTPError(http.StatusForbidden, "patients may only cancel appointments")
	}
	updated, err := h.svc.ChangeStatus(ctx, a.ID, in)
	if err != nil {
		return apierr.From(err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) Reschedule(c echo.Context) error {
	a, err := h.load(c)
	if err != nil {
		return err
	}
	var in RescheduleInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	updated, err := h.svc.Reschedule(c.Request().Context(), a.ID, in)
	if err != nil {
		return apierr.From(err)
	}
	return c.JSON(http.StatusOK, updated)
}
