package patient

import (
	"context"

	"github.com/google/uuid"
)

// PatientRepository defines the persistence interface for patients.
type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	Update(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByIdentifier(ctx context.Context, identifier string) (*Patient, error)
	// Search matches name against given, family and full names ignoring case.
	Search(ctx context.Context, name string, includeVoided bool, limit, offset int) ([]*Patient, int, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
