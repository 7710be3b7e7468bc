package patient

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/openmrs/openmrs-api/internal/platform/apperr"
	"github.com/openmrs/openmrs-api/internal/platform/auth"
	"github.com/openmrs/openmrs-api/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.ReadRoles...))
	readGroup.GET("/patients", h.SearchPatients)
	readGroup.GET("/patients/:id", h.GetPatient)

	writeGroup := api.Group("", auth.RequireRole(auth.RoleRegistrar))
	writeGroup.POST("/patients", h.CreatePatient)
	writeGroup.PUT("/patients/:id", h.UpdatePatient)
	writeGroup.POST("/patients/:id/void", h.VoidPatient)
	writeGroup.POST("/patients/:id/unvoid", h.UnvoidPatient)

	adminGroup := api.Group("", auth.RequireRole(auth.RoleAdmin))
	adminGroup.DELETE("/patients/:id", h.PurgePatient)
}

type patientRequest struct {
	Identifier string     `json:"identifier" validate:"required,max=50"`
	GivenName  string     `json:"given_name" validate:"required,max=50"`
	FamilyName string     `json:"family_name" validate:"max=50"`
	Gender     string     `json:"gender" validate:"required,oneof=M F O U"`
	BirthDate  *time.Time `json:"birthdate"`
	Dead       bool       `json:"dead"`
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (r patientRequest) apply(p *Patient) {
	p.Identifier = r.Identifier
	p.GivenName = r.GivenName
	p.FamilyName = r.FamilyName
	p.Gender = r.Gender
	p.BirthDate = r.BirthDate
	p.Dead = r.Dead
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var req patientRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return apperr.ToHTTP(err)
	}
	var p Patient
	req.apply(&p)
	saved, err := h.svc.SavePatient(c.Request().Context(), &p)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, saved)
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req patientRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return apperr.ToHTTP(err)
	}
	ctx := c.Request().Context()
	p, err := h.svc.GetPatient(ctx, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	req.apply(p)
	saved, err := h.svc.SavePatient(ctx, p)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, saved)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) SearchPatients(c echo.Context) error {
	ctx := c.Request().Context()
	if ident := c.QueryParam("identifier"); ident != "" {
		p, err := h.svc.GetPatientByIdentifier(ctx, ident)
		if err != nil {
			return apperr.ToHTTP(err)
		}
		return c.JSON(http.StatusOK, pagination.NewResponse([]*Patient{p}, 1, 1, 0))
	}
	pg := pagination.FromContext(c)
	includeVoided, _ := strconv.ParseBool(c.QueryParam("includeVoided"))
	patients, total, err := h.svc.SearchPatients(ctx, c.QueryParam("q"), includeVoided, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(patients, total, pg.Limit, pg.Offset))
}

func (h *Handler) VoidPatient(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req reasonRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return apperr.ToHTTP(err)
	}
	p, err := h.svc.VoidPatient(c.Request().Context(), id, req.Reason)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UnvoidPatient(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.UnvoidPatient(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) PurgePatient(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.PurgePatient(c.Request().Context(), id); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}
