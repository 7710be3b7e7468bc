package provider

import (
	"context"

	"github.com/google/uuid"
)

// ProviderRepository defines the persistence interface for providers.
type ProviderRepository interface {
	Create(ctx context.Context, p *Provider) error
	Update(ctx context.Context, p *Provider) error
	GetByID(ctx context.Context, id uuid.UUID) (*Provider, error)
	// GetByIdentifier matches ignoring case across retired and active rows.
	GetByIdentifier(ctx context.Context, identifier string) (*Provider, error)
	// Search matches query against name or identifier ignoring case. An
	// empty query matches every provider.
	Search(ctx context.Context, query string, includeRetired bool, limit, offset int) ([]*Provider, error)
	Count(ctx context.Context, query string, includeRetired bool) (int, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
