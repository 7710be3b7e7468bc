package cohort

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists cohorts with their memberships. Create and Update
// upsert every membership in Cohort.Memberships.
type Repository interface {
	Create(ctx context.Context, c *Cohort) error
	Update(ctx context.Context, c *Cohort) error
	GetByID(ctx context.Context, id uuid.UUID) (*Cohort, error)
	GetByName(ctx context.Context, name string) (*Cohort, error)
	List(ctx context.Context, includeVoided bool) ([]*Cohort, error)
	SearchByName(ctx context.Context, fragment string) ([]*Cohort, error)
	Delete(ctx context.Context, id uuid.UUID) error

	GetMembership(ctx context.Context, id uuid.UUID) (*CohortMembership, error)
	UpdateMembership(ctx context.Context, m *CohortMembership) error
	ListMembershipsByPatient(ctx context.Context, patientID uuid.UUID, includeVoided bool) ([]*CohortMembership, error)
}
