package location

import (
	"context"

	"github.com/google/uuid"
)

// LocationRepository defines the persistence interface for locations.
// Name matching is case-insensitive throughout.
type LocationRepository interface {
	Create(ctx context.Context, loc *Location) error
	Update(ctx context.Context, loc *Location) error
	GetByID(ctx context.Context, id uuid.UUID) (*Location, error)
	// GetByName prefers a non-retired location when several share a name.
	GetByName(ctx context.Context, name string) (*Location, error)
	List(ctx context.Context, includeRetired bool) ([]*Location, error)
	ListByNamePrefix(ctx context.Context, prefix string, includeRetired bool) ([]*Location, error)
	// ListChildren returns root locations when parentID is nil.
	ListChildren(ctx context.Context, parentID *uuid.UUID, includeRetired bool) ([]*Location, error)
	// ListByTags returns locations carrying every tag when matchAll is
	// set and any of them otherwise.
	ListByTags(ctx context.Context, tags []string, matchAll bool) ([]*Location, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// LocationTagRepository defines the persistence interface for location tags.
type LocationTagRepository interface {
	Create(ctx context.Context, tag *LocationTag) error
	Update(ctx context.Context, tag *LocationTag) error
	GetByID(ctx context.Context, id uuid.UUID) (*LocationTag, error)
	GetByName(ctx context.Context, name string) (*LocationTag, error)
	List(ctx context.Context, includeRetired bool) ([]*LocationTag, error)
	InUse(ctx context.Context, id uuid.UUID) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
