package clinical

import (
	"net/http"

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
	// Patients read their own records
	read := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleDoctor, auth.RolePatient))
	read.GET("/diagnosis-histories", h.ListDiagnosisHistories)
	read.GET("/diagnosis-histories/:id", h.GetDiagnosisHistory)
	read.GET("/diagnostics", h.ListDiagnostics)
	read.GET("/diagnostics/:id", h.GetDiagnostic)

	write := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleDoctor))
	write.POST("/diagnosis-histories", h.CreateDiagnosisHistory)
	write.PUT("/diagnosis-histories/:id", h.UpdateDiagnosisHistory)
	write.PATCH("/diagnosis-histories/:id", h.PatchDiagnosisHistory)
	write.DELETE("/diagnosis-histories/:id", h.DeleteDiagnosisHistory)
	write.POST("/diagnostics", h.CreateDiagnostic)
	write.PUT("/diagnostics/:id", h.UpdateDiagnostic)
	write.PATCH("/diagnostics/:id", h.PatchDiagnostic)
	write.DELETE("/diagnostics/:id", h.DeleteDiagnostic)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// defaultDoctor fills in the calling doctor when the record names none.
func defaultDoctor(c echo.Context, doctorID **uuid.UUID) {
	if *doctorID != nil {
		return
	}
	if id, ok := auth.DoctorUUID(c.Request().Context()); ok {
		*doctorID = &id
	}
}

// -- Diagnosis History Handlers --

func (h *Handler) CreateDiagnosisHistory(c echo.Context) error {
	var in DiagnosisHistoryInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	defaultDoctor(c, &in.DoctorID)
	rec, err := h.svc.CreateDiagnosisHistory(c.Request().Context(), in)
	if err != nil {
		return apierr.From(err)
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) GetDiagnosisHistory(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	rec, err := h.svc.GetDiagnosisHistory(ctx, id)
	if err != nil {
		return apierr.From(err)
	}
	if !auth.CanSeePatient(ctx, rec.PatientID) {
		return apierr.From(apierr.ErrForbidden)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) ListDiagnosisHistories(c echo.Context) error {
	ctx := c.Request().Context()
	params := c.QueryParams()
	if err := auth.ScopeToPatient(ctx, params); err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.SearchDiagnosisHistories(ctx, params, pg.Limit, pg.Offset)
	if err != nil {
		return apierr.From(err)
	}
	return pagination.Respond(c, items, total, pg)
}

func (h *Handler) UpdateDiagnosisHistory(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in DiagnosisHistoryInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	rec, err := h.svc.UpdateDiagnosisHistory(c.Request().Context(), id, in)
	if err != nil {
		return apierr.From(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) PatchDiagnosisHistory(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	in, err := h.svc.DiagnosisHistoryPatchBase(ctx, id)
	if err != nil {
		return apierr.From(err)
	}
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	rec, err := h.svc.UpdateDiagnosisHistory(ctx, id, in)
	if err != nil {
		return apierr.From(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) DeleteDiagnosisHistory(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteDiagnosisHistory(c.Request().Context(), id); err != nil {
		return apierr.From(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Diagnostic Handlers --

func (h *Handler) CreateDiagnostic(c echo.Context) error {
	var in DiagnosticInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	defaultDoctor(c, &in.DoctorID)
	d, err := h.svc.CreateDiagnostic(c.Request().Context(), in)
	if err != nil {
		return apierr.From(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) GetDiagnostic(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	d, err := h.svc.GetDiagnostic(ctx, id)
	if err != nil {
		return apierr.From(err)
	}
	if !auth.CanSeePatient(ctx, d.PatientID) {
		return apierr.From(apierr.ErrForbidden)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListDiagnostics(c echo.Context) error {
	ctx := c.Request().Context()
	params := c.QueryParams()
	if err := auth.ScopeToPatient(ctx, params); err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.SearchDiagnostics(ctx, params, pg.Limit, pg.Offset)
	if err != nil {
		return apierr.From(err)
	}
	return pagination.Respond(c, items, total, pg)
}

func (h *Handler) UpdateDiagnostic(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in DiagnosticInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	d, err := h.svc.UpdateDiagnostic(c.Request().Context(), id, in)
	if err != nil {
		return apierr.From(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) PatchDiagnostic(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	in, err := h.svc.DiagnosticPatchBase(ctx, id)
	if err != nil {
		return apierr.From(err)
	}
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	d, err := h.svc.UpdateDiagnostic(ctx, id, in)
	if err != nil {
		return apierr.From(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) DeleteDiagnostic(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteDiagnostic(c.Request().Context(), id); err != nil {
		return apierr.From(err)
	}
	return c.NoContent(http.StatusNoContent)
}
