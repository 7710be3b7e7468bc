package orderset

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists order sets together with their members. Create and
// Update rewrite the member rows to match OrderSet.Members.
type Repository interface {
	Create(ctx context.Context, s *OrderSet) error
	Update(ctx context.Context, s *OrderSet) error
	GetByID(ctx context.Context, id uuid.UUID) (*OrderSet, error)
	GetByName(ctx context.Context, name string) (*OrderSet, error)
	List(ctx context.Context, includeRetired bool) ([]*OrderSet, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
