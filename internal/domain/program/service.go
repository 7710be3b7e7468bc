package program

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openmrs/openmrs-api/internal/domain/concept"
	"github.com/openmrs/openmrs-api/internal/domain/location"
	"github.com/openmrs/openmrs-api/internal/domain/patient"
	"github.com/openmrs/openmrs-api/internal/platform/apperr"
	"github.com/openmrs/openmrs-api/internal/platform/auth"
)

type PatientLookup interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
}

type ConceptLookup interface {
	GetConcept(ctx context.Context, id uuid.UUID) (*concept.Concept, error)
}

type LocationLookup interface {
	GetLocation(ctx context.Context, id uuid.UUID) (*location.Location, error)
}

type Service struct {
	repo      Repository
	patients  PatientLookup
	concepts  ConceptLookup
	locations LocationLookup
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(repo Repository, patients PatientLookup, concepts ConceptLookup, locations LocationLookup) *Service {
	return &Service{
		repo:      repo,
		patients:  patients,
		concepts:  concepts,
		locations: locations,
		logger:    zerolog.Nop(),
		now:       time.Now,
	}
}

func (s *Service) SetLogger(l zerolog.Logger) {
	s.logger = l
}

func missing(err error, what string, id uuid.UUID) error {
	if errors.Is(err, apperr.ErrNotFound) {
		return apperr.Validation("%s %s does not exist", what, id)
	}
	return err
}

func (s *Service) checkConcept(ctx context.Context, what string, id *uuid.UUID) error {
	if id == nil {
		return nil
	}
	if _, err := s.concepts.GetConcept(ctx, *id); err != nil {
		return missing(err, what, *id)
	}
	return nil
}

// -- Programs --

// SaveProgram creates or updates a program together with its workflows
// and states. Program names are unique ignoring case.
func (s *Service) SaveProgram(ctx context.Context, p *Program) (*Program, error) {
	if p == nil {
		return nil, apperr.InvalidArgument("program is required")
	}
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return nil, apperr.Validation("program name is required")
	}
	existing, err := s.repo.GetProgramByName(ctx, p.Name)
	switch {
	case err == nil && existing.ID != p.ID:
		return nil, apperr.Duplicate("program %q already exists", p.Name)
	case err != nil && !errors.Is(err, apperr.ErrNotFound):
		return nil, err
	}
	if err := s.checkConcept(ctx, "program concept", p.ConceptID); err != nil {
		return nil, err
	}
	if err := s.checkConcept(ctx, "outcomes concept", p.OutcomesConceptID); err != nil {
		return nil, err
	}

	actor := auth.ActorFromContext(ctx)
	now := s.now()
	for _, w := range p.Workflows {
		if w.ConceptID == uuid.Nil {
			return nil, apperr.Validation("workflow concept is required")
		}
		if err := s.checkConcept(ctx, "workflow concept", &w.ConceptID); err != nil {
			return nil, err
		}
		seen := map[uuid.UUID]bool{}
		for _, st := range w.States {
			if st.ConceptID == uuid.Nil {
				return nil, apperr.Validation("workflow state concept is required")
			}
			if seen[st.ConceptID] {
				return nil, apperr.Validation("workflow %s has state concept %s twice", w.ConceptID, st.ConceptID)
			}
			seen[st.ConceptID] = true
			if err := s.checkConcept(ctx, "state concept", &st.ConceptID); err != nil {
				return nil, err
			}
			st.Touch(actor, now)
		}
		w.Touch(actor, now)
	}
	p.Touch(actor, now)

	if p.ID == uuid.Nil {
		err = s.repo.CreateProgram(ctx, p)
	} else {
		err = s.repo.UpdateProgram(ctx, p)
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("program_id", p.ID.String()).Str("name", p.Name).Msg("program saved")
	return p, nil
}

func (s *Service) GetProgram(ctx context.Context, id uuid.UUID) (*Program, error) {
	return s.repo.GetProgram(ctx, id)
}

func (s *Service) GetProgramByName(ctx context.Context, name string) (*Program, error) {
	return s.repo.GetProgramByName(ctx, name)
}

func (s *Service) GetAllPrograms(ctx context.Context, includeRetired bool) ([]*Program, error) {
	return s.repo.ListPrograms(ctx, includeRetired)
}

// RetireProgram retires the program with its unretired workflows and
// states.
func (s *Service) RetireProgram(ctx context.Context, id uuid.UUID, reason string) (*Program, error) {
	p, err := s.repo.GetProgram(ctx, id)
	if err != nil {
		return nil, err
	}
	actor := auth.ActorFromContext(ctx)
	now := s.now()
	if err := p.Retire(actor, reason, now); err != nil {
		return nil, err
	}
	for _, w := range p.Workflows {
		for _, st := range w.States {
			if !st.Retired {
				if err := st.Retire(actor, reason, now); err != nil {
					return nil, err
				}
			}
		}
		if !w.Retired {
			if err := w.Retire(actor, reason, now); err != nil {
				return nil, err
			}
		}
	}
	p.Touch(actor, now)
	if err := s.repo.UpdateProgram(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// UnretireProgram restores the program and what was retired with it.
func (s *Service) UnretireProgram(ctx context.Context, id uuid.UUID) (*Program, error) {
	p, err := s.repo.GetProgram(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Retired {
		return p, nil
	}
	reason := ""
	if p.RetireReason != nil {
		reason = *p.RetireReason
	}
	for _, w := range p.Workflows {
		if w.RetiredWith(reason) {
			w.Unretire()
		}
		for _, st := range w.States {
			if st.RetiredWith(reason) {
				st.Unretire()
			}
		}
	}
	p.Unretire()
	p.Touch(auth.ActorFromContext(ctx), s.now())
	if err := s.repo.UpdateProgram(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// PurgeProgram deletes a program that has never been used for an
// enrollment.
func (s *Service) PurgeProgram(ctx context.Context, id uuid.UUID) error {
	used, err := s.repo.ListPatientPrograms(ctx, nil, &id, true)
	if err != nil {
		return err
	}
	if len(used) > 0 {
		return apperr.API("program %s has patient enrollments and cannot be purged", id)
	}
	return s.repo.DeleteProgram(ctx, id)
}

// -- Enrollments --

func (s *Service) validateEnrollment(ctx context.Context, pp *PatientProgram) (*Program, error) {
	if pp.PatientID == uuid.Nil {
		return nil, apperr.Validation("patient program patient is required")
	}
	if _, err := s.patients.GetPatient(ctx, pp.PatientID); err != nil {
		return nil, missing(err, "patient", pp.PatientID)
	}
	if pp.ProgramID == uuid.Nil {
		return nil, apperr.Validation("patient program program is required")
	}
	prog, err := s.repo.GetProgram(ctx, pp.ProgramID)
	if err != nil {
		return nil, missing(err, "program", pp.ProgramID)
	}
	if pp.LocationID != nil {
		if _, err := s.locations.GetLocation(ctx, *pp.LocationID); err != nil {
			return nil, missing(err, "location", *pp.LocationID)
		}
	}
	if pp.DateEnrolled.After(s.now()) {
		return nil, apperr.Validation("enrollment date %s is in the future", pp.DateEnrolled.Format(time.RFC3339))
	}
	if pp.DateCompleted != nil && pp.DateCompleted.Before(pp.DateEnrolled) {
		return nil, apperr.Validation("completion date is before the enrollment date")
	}
	if pp.OutcomeConceptID != nil {
		if pp.DateCompleted == nil {
			return nil, apperr.Validation("an outcome requires a completion date")
		}
		if err := s.checkConcept(ctx, "outcome concept", pp.OutcomeConceptID); err != nil {
			return nil, err
		}
	}
	for _, ps := range pp.States {
		if _, st := prog.FindState(ps.StateID); st == nil {
			return nil, apperr.Validation("state %s does not belong to program %s", ps.StateID, prog.Name)
		}
		if ps.EndDate != nil && ps.EndDate.Before(ps.StartDate) {
			return nil, apperr.Validation("patient state ends before it starts")
		}
	}
	return prog, s.checkOverlap(ctx, pp)
}

func (s *Service) checkOverlap(ctx context.Context, pp *PatientProgram) error {
	others, err := s.repo.ListPatientPrograms(ctx, &pp.PatientID, &pp.ProgramID, false)
	if err != nil {
		return err
	}
	for _, other := range others {
		if other.ID != pp.ID && other.Overlaps(pp) {
			return apperr.Validation("patient %s is already enrolled in program %s on overlapping dates", pp.PatientID, pp.ProgramID)
		}
	}
	return nil
}

// SavePatientProgram enrolls a patient or updates an enrollment. A zero
// enrollment date means now.
func (s *Service) SavePatientProgram(ctx context.Context, pp *PatientProgram) (*PatientProgram, error) {
	if pp == nil {
		return nil, apperr.InvalidArgument("patient program is required")
	}
	if pp.DateEnrolled.IsZero() {
		pp.DateEnrolled = s.now()
	}
	if _, err := s.validateEnrollment(ctx, pp); err != nil {
		return nil, err
	}
	actor := auth.ActorFromContext(ctx)
	now := s.now()
	for _, ps := range pp.States {
		ps.Touch(actor, now)
	}
	pp.Touch(actor, now)
	var err error
	if pp.ID == uuid.Nil {
		err = s.repo.CreatePatientProgram(ctx, pp)
	} else {
		err = s.repo.UpdatePatientProgram(ctx, pp)
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("patient_program_id", pp.ID.String()).Str("patient_id", pp.PatientID.String()).
		Str("program_id", pp.ProgramID.String()).Msg("patient program saved")
	return pp, nil
}

func (s *Service) GetPatientProgram(ctx context.Context, id uuid.UUID) (*PatientProgram, error) {
	return s.repo.GetPatientProgram(ctx, id)
}

// GetPatientPrograms lists enrollments of patientID, optionally narrowed
// to one program.
func (s *Service) GetPatientPrograms(ctx context.Context, patientID uuid.UUID, programID *uuid.UUID, includeVoided bool) ([]*PatientProgram, error) {
	return s.repo.ListPatientPrograms(ctx, &patientID, programID, includeVoided)
}

// TransitionToState moves the enrollment into stateID on onDate, ending
// the current state of the same workflow. A zero onDate means now. A
// terminal state completes the enrollment.
func (s *Service) TransitionToState(ctx context.Context, patientProgramID, stateID uuid.UUID, onDate time.Time) (*PatientProgram, error) {
	pp, err := s.repo.GetPatientProgram(ctx, patientProgramID)
	if err != nil {
		return nil, err
	}
	if pp.Voided {
		return nil, apperr.API("patient program %s is voided", pp.ID)
	}
	prog, err := s.repo.GetProgram(ctx, pp.ProgramID)
	if err != nil {
		return nil, err
	}
	workflow, state := prog.FindState(stateID)
	if state == nil {
		return nil, apperr.Validation("state %s does not belong to program %s", stateID, prog.Name)
	}
	if onDate.IsZero() {
		onDate = s.now()
	}
	if onDate.Before(pp.DateEnrolled) {
		return nil, apperr.Validation("cannot change state before the enrollment date")
	}
	if pp.DateCompleted != nil && onDate.After(*pp.DateCompleted) {
		return nil, apperr.API("patient program %s was completed before %s", pp.ID, onDate.Format(time.RFC3339))
	}

	current := pp.CurrentState(workflow)
	switch {
	case current == nil && !state.Initial:
		return nil, apperr.API("the first state of a workflow must be an initial state")
	case current != nil && current.StateID == stateID:
		return nil, apperr.API("patient program %s is already in state %s", pp.ID, stateID)
	case current != nil && onDate.Before(current.StartDate):
		return nil, apperr.Validation("cannot change state before the start of the current state")
	}

	actor := auth.ActorFromContext(ctx)
	now := s.now()
	if current != nil {
		end := onDate
		current.EndDate = &end
		current.Touch(actor, now)
	}
	next := &PatientState{PatientProgramID: pp.ID, StateID: stateID, StartDate: onDate}
	next.Touch(actor, now)
	pp.States = append(pp.States, next)
	if state.Terminal && pp.DateCompleted == nil {
		completed := onDate
		pp.DateCompleted = &completed
	}
	pp.Touch(actor, now)
	if err := s.repo.UpdatePatientProgram(ctx, pp); err != nil {
		return nil, err
	}
	s.logger.Info().Str("patient_program_id", pp.ID.String()).Str("state_id", stateID.String()).
		Bool("terminal", state.Terminal).Msg("patient state changed")
	return pp, nil
}

// GetCurrentState returns the state the enrollment is in for a workflow.
// It fails with ErrNotFound when no state is open.
func (s *Service) GetCurrentState(ctx context.Context, patientProgramID, workflowID uuid.UUID) (*PatientState, error) {
	pp, err := s.repo.GetPatientProgram(ctx, patientProgramID)
	if err != nil {
		return nil, err
	}
	prog, err := s.repo.GetProgram(ctx, pp.ProgramID)
	if err != nil {
		return nil, err
	}
	w := prog.GetWorkflow(workflowID)
	if w == nil {
		return nil, apperr.Validation("workflow %s does not belong to program %s", workflowID, prog.Name)
	}
	current := pp.CurrentState(w)
	if current == nil {
		return nil, apperr.NotFound("current state", workflowID)
	}
	return current, nil
}

// VoidPatientProgram voids the enrollment and its unvoided states.
func (s *Service) VoidPatientProgram(ctx context.Context, id uuid.UUID, reason string) (*PatientProgram, error) {
	pp, err := s.repo.GetPatientProgram(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.void(ctx, pp, reason); err != nil {
		return nil, err
	}
	return pp, nil
}

func (s *Service) void(ctx context.Context, pp *PatientProgram, reason string) error {
	actor := auth.ActorFromContext(ctx)
	now := s.now()
	if err := pp.Void(actor, reason, now); err != nil {
		return err
	}
	for _, ps := range pp.States {
		if !ps.Voided {
			if err := ps.Void(actor, reason, now); err != nil {
				return err
			}
		}
	}
	pp.Touch(actor, now)
	return s.repo.UpdatePatientProgram(ctx, pp)
}

// UnvoidPatientProgram restores the enrollment and the states voided with
// it, unless an overlapping enrollment has been recorded since.
func (s *Service) UnvoidPatientProgram(ctx context.Context, id uuid.UUID) (*PatientProgram, error) {
	pp, err := s.repo.GetPatientProgram(ctx, id)
	if err != nil {
		return nil, err
	}
	if !pp.Voided {
		return pp, nil
	}
	if err := s.checkOverlap(ctx, pp); err != nil {
		return nil, err
	}
	if err := s.unvoid(ctx, pp); err != nil {
		return nil, err
	}
	return pp, nil
}

func (s *Service) unvoid(ctx context.Context, pp *PatientProgram) error {
	reason := ""
	if pp.VoidReason != nil {
		reason = *pp.VoidReason
	}
	for _, ps := range pp.States {
		if ps.VoidedWith(reason) {
			ps.Unvoid()
		}
	}
	pp.Unvoid()
	pp.Touch(auth.ActorFromContext(ctx), s.now())
	return s.repo.UpdatePatientProgram(ctx, pp)
}

// NotifyPatientVoided voids the patient's enrollments.
func (s *Service) NotifyPatientVoided(ctx context.Context, patientID uuid.UUID, reason string) error {
	enrollments, err := s.repo.ListPatientPrograms(ctx, &patientID, nil, false)
	if err != nil {
		return err
	}
	for _, pp := range enrollments {
		if err := s.void(ctx, pp, reason); err != nil {
			return err
		}
	}
	return nil
}

// NotifyPatientUnvoided restores the enrollments voided with the patient.
func (s *Service) NotifyPatientUnvoided(ctx context.Context, patientID uuid.UUID, reason string) error {
	enrollments, err := s.repo.ListPatientPrograms(ctx, &patientID, nil, true)
	if err != nil {
		return err
	}
	for _, pp := range enrollments {
		if !pp.VoidedWith(reason) {
			continue
		}
		if err := s.unvoid(ctx, pp); err != nil {
			return err
		}
	}
	return nil
}
