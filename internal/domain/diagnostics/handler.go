package diagnostics

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
	read := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleDoctor, auth.RolePatient))
	read.GET("/lab-results", h.ListLabResults)
	read.GET("/lab-results/:id", h.GetLabResult)

	write := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleDoctor))
	write.POST("/lab-results", h.CreateLabResult)
	write.PUT("/lab-results/:id", h.UpdateLabResult)
	write.PATCH("/lab-results/:id", h.PatchLabResult)
	write.DELETE("/lab-results/:id", h.DeleteLabResult)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) CreateLabResult(c echo.Context) error {
	var in LabResultInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if in.DoctorID == nil {
		if id, ok := auth.DoctorUUID(c.Request().Context()); ok {
			in.DoctorID = &id
		}
	}
	r, err := h.svc.CreateLabResult(c.Request().Context(), in)
	if err != nil {
		return apierr.From(err)
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) GetLabResult(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	r, err := h.svc.GetLabResult(ctx, id)
	if err != nil {
		return apierr.From(err)
	}
	if !auth.CanSeePatient(ctx, r.PatientID) {
		return apierr.From(apierr.ErrForbidden)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) ListLabResults(c echo.Context) error {
	ctx := c.Request().Context()
	params := c.QueryParams()
	if err := auth.ScopeToPatient(ctx, params); err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	results, total, err := h.svc.SearchLabResults(ctx, params, pg.Limit, pg.Offset)
	if err != nil {
		return apierr.From(err)
	}
	return pagination.Respond(c, results, total, pg)
}

func (h *Handler) UpdateLabResult(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in LabResultInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	r, err := h.svc.UpdateLabResult(c.Request().Context(), id, in)
	if err != nil {
		return apierr.From(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) PatchLabResult(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	in, err := h.svc.LabResultPatchBase(ctx, id)
	if err != nil {
		return apierr.From(err)
	}
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	r, err := h.svc.UpdateLabResult(ctx, id, in)
	if err != nil {
		return apierr.From(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) DeleteLabResult(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteLabResult(c.Request().Context(), id); err != nil {
		return apierr.From(err)
	}
	return c.NoContent(http.StatusNoContent)
}
