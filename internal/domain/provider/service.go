package provider

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openmrs/openmrs-api/internal/platform/apperr"
	"github.com/openmrs/openmrs-api/internal/platform/auth"
)

const propUnknownProviderUUID = "provider.unknownProviderUuid"

// PropertyReader reads global properties.
type PropertyReader interface {
	GetGlobalProperty(ctx context.Context, name string) (string, error)
}

type Service struct {
	providers ProviderRepository
	props     PropertyReader
	now       func() time.Time
}

func NewService(providers ProviderRepository, props PropertyReader) *Service {
	return &Service{providers: providers, props: props, now: time.Now}
}

// IsProviderIdentifierUnique reports whether no other provider uses p's
// identifier, ignoring case. A blank identifier is always unique.
func (s *Service) IsProviderIdentifierUnique(ctx context.Context, p *Provider) (bool, error) {
	if strings.TrimSpace(p.Identifier) == "" {
		return true, nil
	}
	existing, err := s.providers.GetByIdentifier(ctx, strings.TrimSpace(p.Identifier))
	if errors.Is(err, apperr.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return existing.ID == p.ID, nil
}

func (s *Service) SaveProvider(ctx context.Context, p *Provider) (*Provider, error) {
	if p == nil {
		return nil, apperr.InvalidArgument("provider is required")
	}
	p.PersonName = strings.TrimSpace(p.PersonName)
	p.Identifier = strings.TrimSpace(p.Identifier)
	if p.PersonName == "" && p.Identifier == "" {
		return nil, apperr.Validation("provider requires a person name or an identifier")
	}
	unique, err := s.IsProviderIdentifierUnique(ctx, p)
	if err != nil {
		return nil, err
	}
	if !unique {
		return nil, apperr.Validation("provider identifier %s is already in use", p.Identifier)
	}
	p.Touch(auth.ActorFromContext(ctx), s.now())
	if p.ID == uuid.Nil {
		err = s.providers.Create(ctx, p)
	} else {
		err = s.providers.Update(ctx, p)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error) {
	return s.providers.GetByID(ctx, id)
}

func (s *Service) GetProviderByIdentifier(ctx context.Context, identifier string) (*Provider, error) {
	return s.providers.GetByIdentifier(ctx, strings.TrimSpace(identifier))
}

func (s *Service) GetAllProviders(ctx context.Context, includeRetired bool) ([]*Provider, error) {
	n, err := s.providers.Count(ctx, "", includeRetired)
	if err != nil {
		return nil, err
	}
	return s.providers.Search(ctx, "", includeRetired, n, 0)
}

// GetProviders pages through providers whose name or identifier contains
// query. A negative length returns every match from start.
func (s *Service) GetProviders(ctx context.Context, query string, start, length int, includeRetired bool) ([]*Provider, error) {
	if start < 0 {
		start = 0
	}
	query = strings.TrimSpace(query)
	if length < 0 {
		n, err := s.providers.Count(ctx, query, includeRetired)
		if err != nil {
			return nil, err
		}
		length = n
	}
	return s.providers.Search(ctx, query, includeRetired, length, start)
}

func (s *Service) GetCountOfProviders(ctx context.Context, query string, includeRetired bool) (int, error) {
	return s.providers.Count(ctx, strings.TrimSpace(query), includeRetired)
}

func (s *Service) RetireProvider(ctx context.Context, id uuid.UUID, reason string) (*Provider, error) {
	p, err := s.providers.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	actor := auth.ActorFromContext(ctx)
	if err := p.Retire(actor, reason, s.now()); err != nil {
		return nil, err
	}
	p.Touch(actor, s.now())
	if err := s.providers.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) UnretireProvider(ctx context.Context, id uuid.UUID) (*Provider, error) {
	p, err := s.providers.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Unretire()
	p.Touch(auth.ActorFromContext(ctx), s.now())
	if err := s.providers.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) PurgeProvider(ctx context.Context, id uuid.UUID) error {
	return s.providers.Delete(ctx, id)
}

// GetUnknownProvider resolves the provider.unknownProviderUuid global
// property.
func (s *Service) GetUnknownProvider(ctx context.Context) (*Provider, error) {
	if s.props == nil {
		return nil, apperr.NotFound("provider", "unknown")
	}
	value, err := s.props.GetGlobalProperty(ctx, propUnknownProviderUUID)
	if err != nil {
		return nil, err
	}
	if value == "" {
		return nil, apperr.NotFound("provider", "unknown")
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return nil, apperr.API("%s holds an invalid uuid %q", propUnknownProviderUUID, value)
	}
	return s.providers.GetByID(ctx, id)
}
