package allergy

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, a *Allergy) error
	Update(ctx context.Context, a *Allergy) error
	GetByID(ctx context.Context, id uuid.UUID) (*Allergy, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, includeVoided bool) ([]*Allergy, error)

	// GetStatus returns the stored list status, or ErrNotFound when none
	// was recorded.
	GetStatus(ctx context.Context, patientID uuid.UUID) (string, error)
	SetStatus(ctx context.Context, patientID uuid.UUID, status string) error
}
