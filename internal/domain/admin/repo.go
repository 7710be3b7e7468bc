package admin

import "context"

// GlobalPropertyRepository defines the persistence interface for global
// properties. Every name lookup is case-insensitive.
type GlobalPropertyRepository interface {
	Get(ctx context.Context, name string) (*GlobalProperty, error)
	List(ctx context.Context) ([]*GlobalProperty, error)
	ListByPrefix(ctx context.Context, prefix string) ([]*GlobalProperty, error)
	ListBySuffix(ctx context.Context, suffix string) ([]*GlobalProperty, error)
	// Save inserts gp or updates the row whose name matches it ignoring case.
	Save(ctx context.Context, gp *GlobalProperty) error
	Delete(ctx context.Context, name string) error
	// NextSequenceValue increments an integer property atomically and
	// returns the value held before the increment.
	NextSequenceValue(ctx context.Context, name string) (int64, error)
}
