package program

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists programs with their workflows and states, and
// patient enrollments with their patient states. Create and Update upsert
// the nested rows.
type Repository interface {
	CreateProgram(ctx context.Context, p *Program) error
	UpdateProgram(ctx context.Context, p *Program) error
	GetProgram(ctx context.Context, id uuid.UUID) (*Program, error)
	GetProgramByName(ctx context.Context, name string) (*Program, error)
	ListPrograms(ctx context.Context, includeRetired bool) ([]*Program, error)
	DeleteProgram(ctx context.Context, id uuid.UUID) error

	CreatePatientProgram(ctx context.Context, pp *PatientProgram) error
	UpdatePatientProgram(ctx context.Context, pp *PatientProgram) error
	GetPatientProgram(ctx context.Context, id uuid.UUID) (*PatientProgram, error)
	// ListPatientPrograms filters on whichever of patientID and programID
	// are set, ordered by enrollment date.
	ListPatientPrograms(ctx context.Context, patientID, programID *uuid.UUID, includeVoided bool) ([]*PatientProgram, error)
}
