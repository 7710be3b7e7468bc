package concept

import (
	"net/http"
	"strconv"

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
	readGroup.GET("/concepts", h.ListConcepts)
	readGroup.GET("/concepts/:id", h.GetConcept)
	readGroup.GET("/concepts/:id/drugs", h.ListDrugs)
	readGroup.GET("/drugs/:id", h.GetDrug)

	writeGroup := api.Group("", auth.RequireRole(auth.RoleAdmin))
	writeGroup.POST("/concepts", h.CreateConcept)
	writeGroup.POST("/concepts/:id/retire", h.RetireConcept)
	writeGroup.POST("/concepts/:id/unretire", h.UnretireConcept)
	writeGroup.POST("/drugs", h.CreateDrug)
	writeGroup.POST("/drugs/:id/retire", h.RetireDrug)
}

type conceptRequest struct {
	Name      string `json:"name" validate:"required,max=255"`
	ShortName string `json:"short_name" validate:"max=255"`
	ClassName string `json:"class_name"`
	Datatype  string `json:"datatype"`
}

type drugRequest struct {
	ConceptID  uuid.UUID `json:"concept_id" validate:"required"`
	Name       string    `json:"name" validate:"required,max=255"`
	Strength   string    `json:"strength"`
	DosageForm string    `json:"dosage_form"`
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

func (h *Handler) CreateConcept(c echo.Context) error {
	var req conceptRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	saved, err := h.svc.SaveConcept(c.Request().Context(), &Concept{
		Name: req.Name, ShortName: req.ShortName, ClassName: req.ClassName, Datatype: req.Datatype,
	})
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, saved)
}

func (h *Handler) GetConcept(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	con, err := h.svc.GetConcept(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, con)
}

func (h *Handler) ListConcepts(c echo.Context) error {
	ctx := c.Request().Context()
	if name := c.QueryParam("name"); name != "" {
		con, err := h.svc.GetConceptByName(ctx, name)
		if err != nil {
			return apperr.ToHTTP(err)
		}
		return c.JSON(http.StatusOK, pagination.NewResponse([]*Concept{con}, 1, 1, 0))
	}
	includeRetired, _ := strconv.ParseBool(c.QueryParam("includeRetired"))
	all, err := h.svc.GetAllConcepts(ctx, includeRetired)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(all, pagination.FromContext(c)))
}

func (h *Handler) RetireConcept(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req reasonRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	con, err := h.svc.RetireConcept(c.Request().Context(), id, req.Reason)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, con)
}

func (h *Handler) UnretireConcept(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	con, err := h.svc.UnretireConcept(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, con)
}

func (h *Handler) CreateDrug(c echo.Context) error {
	var req drugRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	saved, err := h.svc.SaveDrug(c.Request().Context(), &Drug{
		ConceptID: req.ConceptID, Name: req.Name, Strength: req.Strength, DosageForm: req.DosageForm,
	})
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, saved)
}

func (h *Handler) GetDrug(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	d, err := h.svc.GetDrug(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListDrugs(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	includeRetired, _ := strconv.ParseBool(c.QueryParam("includeRetired"))
	drugs, err := h.svc.GetDrugsByConcept(c.Request().Context(), id, includeRetired)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if drugs == nil {
		drugs = []*Drug{}
	}
	return c.JSON(http.StatusOK, drugs)
}

func (h *Handler) RetireDrug(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req reasonRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	d, err := h.svc.RetireDrug(c.Request().Context(), id, req.Reason)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}
