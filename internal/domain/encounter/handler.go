package encounter

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
	readGroup.GET("/encounters", h.ListEncounters)
	readGroup.GET("/encounters/:id", h.GetEncounter)

	writeGroup := api.Group("", auth.RequireRole(auth.RoleClinician))
	writeGroup.POST("/encounters", h.CreateEncounter)
	writeGroup.PUT("/encounters/:id", h.UpdateEncounter)
	writeGroup.POST("/encounters/:id/void", h.VoidEncounter)
	writeGroup.POST("/encounters/:id/unvoid", h.UnvoidEncounter)

	adminGroup := api.Group("", auth.RequireRole(auth.RoleAdmin))
	adminGroup.DELETE("/encounters/:id", h.PurgeEncounter)
}

type encounterRequest struct {
	PatientID         uuid.UUID   `json:"patient_id" validate:"required"`
	LocationID        uuid.UUID   `json:"location_id" validate:"required"`
	EncounterType     string      `json:"encounter_type" validate:"required,max=50"`
	EncounterDatetime *time.Time  `json:"encounter_datetime"`
	ProviderIDs       []uuid.UUID `json:"provider_ids"`
}

func (r encounterRequest) apply(enc *Encounter) {
	enc.PatientID = r.PatientID
	enc.LocationID = r.LocationID
	enc.EncounterType = r.EncounterType
	if r.EncounterDatetime != nil {
		enc.EncounterDatetime = *r.EncounterDatetime
	}
	enc.ProviderIDs = r.ProviderIDs
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

func bindValid(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return apperr.ToHTTP(err)
	}
	return nil
}

func (h *Handler) CreateEncounter(c echo.Context) error {
	var req encounterRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	var enc Encounter
	req.apply(&enc)
	saved, err := h.svc.SaveEncounter(c.Request().Context(), &enc)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, saved)
}

func (h *Handler) UpdateEncounter(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req encounterRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	enc, err := h.svc.GetEncounter(ctx, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	req.apply(enc)
	saved, err := h.svc.SaveEncounter(ctx, enc)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, saved)
}

func (h *Handler) GetEncounter(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	enc, err := h.svc.GetEncounter(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, enc)
}

// ListEncounters requires a patient query parameter.
func (h *Handler) ListEncounters(c echo.Context) error {
	patientID, err := uuid.Parse(c.QueryParam("patient"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "patient query parameter is required")
	}
	includeVoided, _ := strconv.ParseBool(c.QueryParam("includeVoided"))
	encs, err := h.svc.GetEncountersByPatient(c.Request().Context(), patientID, includeVoided)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(encs, pagination.FromContext(c)))
}

func (h *Handler) VoidEncounter(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req reasonRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	enc, err := h.svc.VoidEncounter(c.Request().Context(), id, req.Reason)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, enc)
}

func (h *Handler) UnvoidEncounter(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	enc, err := h.svc.UnvoidEncounter(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, enc)
}

func (h *Handler) PurgeEncounter(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.PurgeEncounter(c.Request().Context(), id); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}
