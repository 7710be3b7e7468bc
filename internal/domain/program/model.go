package program

import (
	"time"

	"github.com/google/uuid"

	"github.com/openmrs/openmrs-api/internal/domain/audit"
)

// Program maps to the program table. A program owns its workflows, and
// each workflow owns its states.
type Program struct {
	ID                uuid.UUID          `db:"id" json:"id"`
	Name              string             `db:"name" json:"name"`
	Description       string             `db:"description" json:"description,omitempty"`
	ConceptID         *uuid.UUID         `db:"concept_id" json:"concept_id,omitempty"`
	OutcomesConceptID *uuid.UUID         `db:"outcomes_concept_id" json:"outcomes_concept_id,omitempty"`
	Workflows         []*ProgramWorkflow `db:"-" json:"workflows"`
	audit.Stamp
	audit.Retirable
}

// ProgramWorkflow maps to the program_workflow table.
type ProgramWorkflow struct {
	ID        uuid.UUID               `db:"id" json:"id"`
	ProgramID uuid.UUID               `db:"program_id" json:"program_id"`
	ConceptID uuid.UUID               `db:"concept_id" json:"concept_id"`
	States    []*ProgramWorkflowState `db:"-" json:"states"`
	audit.Stamp
	audit.Retirable
}

// ProgramWorkflowState maps to the program_workflow_state table.
type ProgramWorkflowState struct {
	ID         uuid.UUID `db:"id" json:"id"`
	WorkflowID uuid.UUID `db:"program_workflow_id" json:"program_workflow_id"`
	ConceptID  uuid.UUID `db:"concept_id" json:"concept_id"`
	Initial    bool      `db:"initial" json:"initial"`
	Terminal   bool      `db:"terminal" json:"terminal"`
	audit.Stamp
	audit.Retirable
}

// PatientProgram is one enrollment of a patient in a program.
type PatientProgram struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	PatientID        uuid.UUID       `db:"patient_id" json:"patient_id"`
	ProgramID        uuid.UUID       `db:"program_id" json:"program_id"`
	LocationID       *uuid.UUID      `db:"location_id" json:"location_id,omitempty"`
	DateEnrolled     time.Time       `db:"date_enrolled" json:"date_enrolled"`
	DateCompleted    *time.Time      `db:"date_completed" json:"date_completed,omitempty"`
	OutcomeConceptID *uuid.UUID      `db:"outcome_concept_id" json:"outcome_concept_id,omitempty"`
	States           []*PatientState `db:"-" json:"states"`
	audit.Stamp
	audit.Voidable
}

// PatientState maps to the patient_state table.
type PatientState struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	PatientProgramID uuid.UUID  `db:"patient_program_id" json:"patient_program_id"`
	StateID          uuid.UUID  `db:"state_id" json:"state_id"`
	StartDate        time.Time  `db:"start_date" json:"start_date"`
	EndDate          *time.Time `db:"end_date" json:"end_date,omitempty"`
	audit.Stamp
	audit.Voidable
}

func (p *Program) GetWorkflow(id uuid.UUID) *ProgramWorkflow {
	for _, w := range p.Workflows {
		if w.ID == id {
			return w
		}
	}
	return nil
}

// FindState returns the state with the given id and the workflow it
// belongs to.
func (p *Program) FindState(id uuid.UUID) (*ProgramWorkflow, *ProgramWorkflowState) {
	for _, w := range p.Workflows {
		if s := w.GetState(id); s != nil {
			return w, s
		}
	}
	return nil, nil
}

func (w *ProgramWorkflow) GetState(id uuid.UUID) *ProgramWorkflowState {
	for _, s := range w.States {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// IsActive reports whether the enrollment covers t.
func (pp *PatientProgram) IsActive(t time.Time) bool {
	if pp.Voided || pp.DateEnrolled.After(t) {
		return false
	}
	return pp.DateCompleted == nil || pp.DateCompleted.After(t)
}

// Overlaps reports whether two enrollments share any instant. An open
// enrollment runs forever.
func (pp *PatientProgram) Overlaps(other *PatientProgram) bool {
	endsAfter := func(a, b *PatientProgram) bool {
		return a.DateCompleted == nil || a.DateCompleted.After(b.DateEnrolled)
	}
	return endsAfter(pp, other) && endsAfter(other, pp)
}

// CurrentState returns the open, unvoided state the patient is in for
// workflow w, or nil.
func (pp *PatientProgram) CurrentState(w *ProgramWorkflow) *PatientState {
	var current *PatientState
	for _, ps := range pp.States {
		if ps.Voided || ps.EndDate != nil || w.GetState(ps.StateID) == nil {
			continue
		}
		if current == nil || ps.StartDate.After(current.StartDate) {
			current = ps
		}
	}
	return current
}
