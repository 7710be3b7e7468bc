package concept

import (
	"context"

	"github.com/google/uuid"
)

// ConceptRepository defines the persistence interface for concepts.
type ConceptRepository interface {
	Create(ctx context.Context, c *Concept) error
	Update(ctx context.Context, c *Concept) error
	GetByID(ctx context.Context, id uuid.UUID) (*Concept, error)
	// GetByName matches ignoring case, preferring a non-retired concept.
	GetByName(ctx context.Context, name string) (*Concept, error)
	List(ctx context.Context, includeRetired bool) ([]*Concept, error)
}

// DrugRepository defines the persistence interface for drugs.
type DrugRepository interface {
	Create(ctx context.Context, d *Drug) error
	Update(ctx context.Context, d *Drug) error
	GetByID(ctx context.Context, id uuid.UUID) (*Drug, error)
	ListByConcept(ctx context.Context, conceptID uuid.UUID, includeRetired bool) ([]*Drug, error)
}
