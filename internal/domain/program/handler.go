package program

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
	readGroup.GET("/programs", h.ListPrograms)
	readGroup.GET("/programs/:id", h.GetProgram)
	readGroup.GET("/patients/:patientId/programs", h.ListPatientPrograms)
	readGroup.GET("/patientprograms/:id", h.GetPatientProgram)
	readGroup.GET("/patientprograms/:id/workflows/:workflowId/state", h.GetCurrentState)

	writeGroup := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleClinician))
	writeGroup.POST("/patients/:patientId/programs", h.Enroll)
	writeGroup.PUT("/patientprograms/:id", h.UpdatePatientProgram)
	writeGroup.POST("/patientprograms/:id/transitions", h.Transition)
	writeGroup.POST("/patientprograms/:id/void", h.VoidPatientProgram)
	writeGroup.POST("/patientprograms/:id/unvoid", h.UnvoidPatientProgram)

	adminGroup := api.Group("", auth.RequireRole(auth.RoleAdmin))
	adminGroup.POST("/programs", h.CreateProgram)
	adminGroup.PUT("/programs/:id", h.UpdateProgram)
	adminGroup.POST("/programs/:id/retire", h.RetireProgram)
	adminGroup.POST("/programs/:id/unretire", h.UnretireProgram)
	adminGroup.DELETE("/programs/:id", h.PurgeProgram)
}

type stateRequest struct {
	ID        uuid.UUID `json:"id"`
	ConceptID uuid.UUID `json:"concept_id" validate:"required"`
	Initial   bool      `json:"initial"`
	Terminal  bool      `json:"terminal"`
}

type workflowRequest struct {
	ID        uuid.UUID      `json:"id"`
	ConceptID uuid.UUID      `json:"concept_id" validate:"required"`
	States    []stateRequest `json:"states" validate:"dive"`
}

type programRequest struct {
	Name              string            `json:"name" validate:"required,max=255"`
	Description       string            `json:"description"`
	ConceptID         *uuid.UUID        `json:"concept_id"`
	OutcomesConceptID *uuid.UUID        `json:"outcomes_concept_id"`
	Workflows         []workflowRequest `json:"workflows" validate:"dive"`
}

// applyTo copies the request onto p. Workflows and states carrying a known
// id are updated in place, the rest are added. Nothing is removed.
func (r programRequest) applyTo(p *Program) {
	p.Name = r.Name
	p.Description = r.Description
	p.ConceptID = r.ConceptID
	p.OutcomesConceptID = r.OutcomesConceptID
	for _, wr := range r.Workflows {
		w := p.GetWorkflow(wr.ID)
		if wr.ID == uuid.Nil || w == nil {
			w = &ProgramWorkflow{}
			p.Workflows = append(p.Workflows, w)
		}
		w.ConceptID = wr.ConceptID
		for _, sr := range wr.States {
			st := w.GetState(sr.ID)
			if sr.ID == uuid.Nil || st == nil {
				st = &ProgramWorkflowState{}
				w.States = append(w.States, st)
			}
			st.ConceptID = sr.ConceptID
			st.Initial = sr.Initial
			st.Terminal = sr.Terminal
		}
	}
}

type enrollmentRequest struct {
	ProgramID        uuid.UUID  `json:"program_id" validate:"required"`
	LocationID       *uuid.UUID `json:"location_id"`
	DateEnrolled     *time.Time `json:"date_enrolled"`
	DateCompleted    *time.Time `json:"date_completed"`
	OutcomeConceptID *uuid.UUID `json:"outcome_concept_id"`
}

type transitionRequest struct {
	StateID uuid.UUID  `json:"state_id" validate:"required"`
	OnDate  *time.Time `json:"on_date"`
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

// -- Programs --

func (h *Handler) ListPrograms(c echo.Context) error {
	includeRetired, _ := strconv.ParseBool(c.QueryParam("includeRetired"))
	list, err := h.svc.GetAllPrograms(c.Request().Context(), includeRetired)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(list, pagination.FromContext(c)))
}

func (h *Handler) GetProgram(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	p, err := h.svc.GetProgram(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) CreateProgram(c echo.Context) error {
	var req programRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	p := &Program{}
	req.applyTo(p)
	saved, err := h.svc.SaveProgram(c.Request().Context(), p)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, saved)
}

func (h *Handler) UpdateProgram(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req programRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	p, err := h.svc.GetProgram(ctx, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	req.applyTo(p)
	saved, err := h.svc.SaveProgram(ctx, p)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, saved)
}

func (h *Handler) RetireProgram(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req reasonRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	p, err := h.svc.RetireProgram(c.Request().Context(), id, req.Reason)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UnretireProgram(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	p, err := h.svc.UnretireProgram(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) PurgeProgram(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.PurgeProgram(c.Request().Context(), id); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Enrollments --

func (h *Handler) ListPatientPrograms(c echo.Context) error {
	patientID, err := pathID(c, "patientId")
	if err != nil {
		return err
	}
	var programID *uuid.UUID
	if v := c.QueryParam("programId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid programId")
		}
		programID = &id
	}
	includeVoided, _ := strconv.ParseBool(c.QueryParam("includeVoided"))
	list, err := h.svc.GetPatientPrograms(c.Request().Context(), patientID, programID, includeVoided)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if list == nil {
		list = []*PatientProgram{}
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) GetPatientProgram(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	pp, err := h.svc.GetPatientProgram(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pp)
}

func (h *Handler) Enroll(c echo.Context) error {
	patientID, err := pathID(c, "patientId")
	if err != nil {
		return err
	}
	var req enrollmentRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	pp := &PatientProgram{
		PatientID:        patientID,
		ProgramID:        req.ProgramID,
		LocationID:       req.LocationID,
		DateCompleted:    req.DateCompleted,
		OutcomeConceptID: req.OutcomeConceptID,
	}
	if req.DateEnrolled != nil {
		pp.DateEnrolled = *req.DateEnrolled
	}
	saved, err := h.svc.SavePatientProgram(c.Request().Context(), pp)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, saved)
}

// UpdatePatientProgram changes the location, dates or outcome of an
// enrollment. The program itself cannot change.
func (h *Handler) UpdatePatientProgram(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req enrollmentRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	pp, err := h.svc.GetPatientProgram(ctx, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if req.ProgramID != pp.ProgramID {
		return echo.NewHTTPError(http.StatusBadRequest, "program_id cannot change")
	}
	pp.LocationID = req.LocationID
	if req.DateEnrolled != nil {
		pp.DateEnrolled = *req.DateEnrolled
	}
	pp.DateCompleted = req.DateCompleted
	pp.OutcomeConceptID = req.OutcomeConceptID
	saved, err := h.svc.SavePatientProgram(ctx, pp)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, saved)
}

func (h *Handler) Transition(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req transitionRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	var onDate time.Time
	if req.OnDate != nil {
		onDate = *req.OnDate
	}
	pp, err := h.svc.TransitionToState(c.Request().Context(), id, req.StateID, onDate)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pp)
}

func (h *Handler) GetCurrentState(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	workflowID, err := pathID(c, "workflowId")
	if err != nil {
		return err
	}
	ps, err := h.svc.GetCurrentState(c.Request().Context(), id, workflowID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, ps)
}

func (h *Handler) VoidPatientProgram(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req reasonRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	pp, err := h.svc.VoidPatientProgram(c.Request().Context(), id, req.Reason)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pp)
}

func (h *Handler) UnvoidPatientProgram(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	pp, err := h.svc.UnvoidPatientProgram(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pp)
}
