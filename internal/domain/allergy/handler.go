package allergy

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/openmrs/openmrs-api/internal/platform/apperr"
	"github.com/openmrs/openmrs-api/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.ReadRoles...))
	readGroup.GET("/patients/:patientId/allergies", h.GetAllergies)
	readGroup.GET("/allergies/:id", h.GetAllergy)

	writeGroup := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleClinician))
	writeGroup.PUT("/patients/:patientId/allergies", h.SetAllergies)
	writeGroup.POST("/patients/:patientId/allergies", h.CreateAllergy)
	writeGroup.PUT("/allergies/:id", h.UpdateAllergy)
	writeGroup.POST("/allergies/:id/void", h.VoidAllergy)
	writeGroup.POST("/allergies/:id/unvoid", h.UnvoidAllergy)
}

type reactionRequest struct {
	ReactionConceptID *uuid.UUID `json:"reaction_concept_id"`
	ReactionNonCoded  string     `json:"reaction_non_coded"`
}

type allergyRequest struct {
	ID               uuid.UUID         `json:"id"`
	AllergenType     AllergenType      `json:"allergen_type" validate:"required,oneof=DRUG FOOD ENVIRONMENT OTHER"`
	CodedAllergenID  *uuid.UUID        `json:"coded_allergen_id"`
	NonCodedAllergen string            `json:"non_coded_allergen" validate:"max=255"`
	Severity         Severity          `json:"severity" validate:"omitempty,oneof=MILD MODERATE SEVERE"`
	Comment          string            `json:"comment"`
	Reactions        []reactionRequest `json:"reactions"`
}

func (r allergyRequest) toAllergy(patientID uuid.UUID) *Allergy {
	a := &Allergy{
		ID:               r.ID,
		PatientID:        patientID,
		AllergenType:     r.AllergenType,
		CodedAllergenID:  r.CodedAllergenID,
		NonCodedAllergen: r.NonCodedAllergen,
		Severity:         r.Severity,
		Comment:          r.Comment,
	}
	for _, re := range r.Reactions {
		a.Reactions = append(a.Reactions, &AllergyReaction{ReactionConceptID: re.ReactionConceptID, ReactionNonCoded: re.ReactionNonCoded})
	}
	return a
}

type listRequest struct {
	Status string           `json:"status" validate:"omitempty,oneof='Unknown' 'No known allergies' 'See list'"`
	Items  []allergyRequest `json:"items" validate:"dive"`
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func pathID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
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

func (h *Handler) GetAllergies(c echo.Context) error {
	patientID, err := pathID(c, "patientId")
	if err != nil {
		return err
	}
	list, err := h.svc.GetAllergies(c.Request().Context(), patientID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) SetAllergies(c echo.Context) error {
	patientID, err := pathID(c, "patientId")
	if err != nil {
		return err
	}
	var req listRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	list := &Allergies{Status: req.Status}
	for _, item := range req.Items {
		list.Items = append(list.Items, item.toAllergy(patientID))
	}
	out, err := h.svc.SetAllergies(c.Request().Context(), patientID, list)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) GetAllergy(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	a, err := h.svc.GetAllergy(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) CreateAllergy(c echo.Context) error {
	patientID, err := pathID(c, "patientId")
	if err != nil {
		return err
	}
	var req allergyRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	req.ID = uuid.Nil
	a, err := h.svc.SaveAllergy(c.Request().Context(), req.toAllergy(patientID))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) UpdateAllergy(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req allergyRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	existing, err := h.svc.GetAllergy(ctx, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	req.ID = id
	a := req.toAllergy(existing.PatientID)
	a.Stamp = existing.Stamp
	a.Voidable = existing.Voidable
	saved, err := h.svc.SaveAllergy(ctx, a)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, saved)
}

func (h *Handler) VoidAllergy(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req reasonRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	a, err := h.svc.VoidAllergy(c.Request().Context(), id, req.Reason)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) UnvoidAllergy(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	a, err := h.svc.UnvoidAllergy(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}
