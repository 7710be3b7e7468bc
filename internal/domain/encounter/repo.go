package encounter

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, enc *Encounter) error
	Update(ctx context.Context, enc *Encounter) error
	GetByID(ctx context.Context, id uuid.UUID) (*Encounter, error)
	// ListByPatient returns encounters newest first.
	ListByPatient(ctx context.Context, patientID uuid.UUID, includeVoided bool) ([]*Encounter, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
