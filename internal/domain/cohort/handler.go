package cohort

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
	readGroup.GET("/cohorts", h.ListCohorts)
	readGroup.GET("/cohorts/:id", h.GetCohort)
	readGroup.GET("/cohorts/:id/:op/:other", h.CombineCohorts)
	readGroup.GET("/patients/:patientId/cohorts", h.ListPatientCohorts)
	readGroup.GET("/patients/:patientId/cohortmemberships", h.ListPatientMemberships)

	writeGroup := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleClinician))
	writeGroup.POST("/cohorts", h.CreateCohort)
	writeGroup.PUT("/cohorts/:id", h.UpdateCohort)
	writeGroup.POST("/cohorts/:id/members", h.AddMember)
	writeGroup.DELETE("/cohorts/:id/members/:patientId", h.RemoveMember)
	writeGroup.POST("/cohortmemberships/:id/end", h.EndMembership)
	writeGroup.POST("/cohorts/:id/void", h.VoidCohort)
	writeGroup.POST("/cohorts/:id/unvoid", h.UnvoidCohort)

	adminGroup := api.Group("", auth.RequireRole(auth.RoleAdmin))
	adminGroup.DELETE("/cohorts/:id", h.PurgeCohort)
}

type membershipRequest struct {
	PatientID uuid.UUID  `json:"patient_id" validate:"required"`
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
}

type cohortRequest struct {
	Name        string              `json:"name" validate:"required,max=255"`
	Description string              `json:"description"`
	Members     []membershipRequest `json:"members" validate:"dive"`
}

type endRequest struct {
	EndDate *time.Time `json:"end_date"`
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

func queryTime(c echo.Context, name string) (*time.Time, error) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name+": expected RFC3339")
	}
	return &t, nil
}

func (h *Handler) ListCohorts(c echo.Context) error {
	ctx := c.Request().Context()
	var (
		list []*Cohort
		err  error
	)
	if q := c.QueryParam("q"); q != "" {
		list, err = h.svc.GetCohorts(ctx, q)
	} else {
		includeVoided, _ := strconv.ParseBool(c.QueryParam("includeVoided"))
		list, err = h.svc.GetAllCohorts(ctx, includeVoided)
	}
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(list, pagination.FromContext(c)))
}

func (h *Handler) GetCohort(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	cohort, err := h.svc.GetCohort(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, cohort)
}

// CombineCohorts returns the unsaved union, intersection or difference of
// two cohorts.
func (h *Handler) CombineCohorts(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	otherID, err := pathID(c, "other")
	if err != nil {
		return err
	}
	var op func(a, b *Cohort) *Cohort
	switch c.Param("op") {
	case "union":
		op = Union
	case "intersect":
		op = Intersect
	case "subtract":
		op = Subtract
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "op must be union, intersect or subtract")
	}
	ctx := c.Request().Context()
	a, err := h.svc.GetCohort(ctx, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	b, err := h.svc.GetCohort(ctx, otherID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, op(a, b))
}

func (h *Handler) ListPatientCohorts(c echo.Context) error {
	patientID, err := pathID(c, "patientId")
	if err != nil {
		return err
	}
	asOf, err := queryTime(c, "asOfDate")
	if err != nil {
		return err
	}
	includeVoided, _ := strconv.ParseBool(c.QueryParam("includeVoided"))
	list, err := h.svc.GetCohortsContainingPatientID(c.Request().Context(), patientID, includeVoided, asOf)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if list == nil {
		list = []*Cohort{}
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) ListPatientMemberships(c echo.Context) error {
	patientID, err := pathID(c, "patientId")
	if err != nil {
		return err
	}
	activeOn, err := queryTime(c, "activeOnDate")
	if err != nil {
		return err
	}
	includeVoided, _ := strconv.ParseBool(c.QueryParam("includeVoided"))
	list, err := h.svc.GetCohortMemberships(c.Request().Context(), patientID, activeOn, includeVoided)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if list == nil {
		list = []*CohortMembership{}
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) CreateCohort(c echo.Context) error {
	var req cohortRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	cohort := &Cohort{Name: req.Name, Description: req.Description}
	for _, m := range req.Members {
		mem := &CohortMembership{PatientID: m.PatientID, EndDate: m.EndDate}
		if m.StartDate != nil {
			mem.StartDate = *m.StartDate
		}
		cohort.Memberships = append(cohort.Memberships, mem)
	}
	saved, err := h.svc.SaveCohort(c.Request().Context(), cohort)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, saved)
}

// UpdateCohort renames a cohort. Membership changes go through the member
// endpoints.
func (h *Handler) UpdateCohort(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req cohortRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	cohort, err := h.svc.GetCohort(ctx, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	cohort.Name, cohort.Description = req.Name, req.Description
	saved, err := h.svc.SaveCohort(ctx, cohort)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, saved)
}

func (h *Handler) AddMember(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req membershipRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	cohort, err := h.svc.AddPatientToCohort(c.Request().Context(), id, req.PatientID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, cohort)
}

func (h *Handler) RemoveMember(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	patientID, err := pathID(c, "patientId")
	if err != nil {
		return err
	}
	cohort, err := h.svc.RemovePatientFromCohort(c.Request().Context(), id, patientID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, cohort)
}

func (h *Handler) EndMembership(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req endRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	m, err := h.svc.EndCohortMembership(c.Request().Context(), id, req.EndDate)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) VoidCohort(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req reasonRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	cohort, err := h.svc.VoidCohort(c.Request().Context(), id, req.Reason)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, cohort)
}

func (h *Handler) UnvoidCohort(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	cohort, err := h.svc.UnvoidCohort(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, cohort)
}

func (h *Handler) PurgeCohort(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.PurgeCohort(c.Request().Context(), id); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}
