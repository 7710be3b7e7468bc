package admin

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/openmrs/openmrs-api/internal/platform/apperr"
	"github.com/openmrs/openmrs-api/internal/platform/db"
)

// GlobalPropertyListener is told about saves and purges of the property
// names it supports.
type GlobalPropertyListener interface {
	SupportsPropertyName(name string) bool
	GlobalPropertyChanged(ctx context.Context, gp *GlobalProperty)
	GlobalPropertyDeleted(ctx context.Context, name string)
}

// PropertyListener adapts a pair of callbacks to GlobalPropertyListener
// for a fixed set of names.
type PropertyListener struct {
	Names    []string
	OnChange func(ctx context.Context, gp *GlobalProperty)
	OnDelete func(ctx context.Context, name string)
}

func (l *PropertyListener) SupportsPropertyName(name string) bool {
	for _, n := range l.Names {
		if NormalizeName(n) == NormalizeName(name) {
			return true
		}
	}
	return false
}

func (l *PropertyListener) GlobalPropertyChanged(ctx context.Context, gp *GlobalProperty) {
	if l.OnChange != nil {
		l.OnChange(ctx, gp)
	}
}

func (l *PropertyListener) GlobalPropertyDeleted(ctx context.Context, name string) {
	if l.OnDelete != nil {
		l.OnDelete(ctx, name)
	}
}

// DatatypeValidator checks a value for a datatype the admin package does
// not know how to validate itself, e.g. "location".
type DatatypeValidator func(ctx context.Context, value string) error

type Service struct {
	props     GlobalPropertyRepository
	cache     PropertyCache
	logger    zerolog.Logger
	mu        sync.RWMutex
	listeners []GlobalPropertyListener
	datatypes map[string]DatatypeValidator
}

func NewService(props GlobalPropertyRepository, cache PropertyCache) *Service {
	return &Service{
		props:     props,
		cache:     cache,
		logger:    zerolog.Nop(),
		datatypes: make(map[string]DatatypeValidator),
	}
}

func (s *Service) SetLogger(l zerolog.Logger) {
	s.logger = l
}

// RegisterDatatype installs the validator for values of datatype name.
func (s *Service) RegisterDatatype(name string, fn DatatypeValidator) {
	s.mu.Lock()
	s.datatypes[name] = fn
	s.mu.Unlock()
}

func (s *Service) AddGlobalPropertyListener(l GlobalPropertyListener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

func (s *Service) RemoveGlobalPropertyListener(l GlobalPropertyListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.listeners {
		if existing == l {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			return
		}
	}
}

func (s *Service) interested(name string) []GlobalPropertyListener {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []GlobalPropertyListener
	for _, l := range s.listeners {
		if l.SupportsPropertyName(name) {
			out = append(out, l)
		}
	}
	return out
}

// -- Reads --

// GetGlobalPropertyObject returns the full row for name, or ErrNotFound.
func (s *Service) GetGlobalPropertyObject(ctx context.Context, name string) (*GlobalProperty, error) {
	if s.cache != nil {
		gp, ok, err := s.cache.Get(ctx, name)
		if err != nil {
			s.logger.Warn().Err(err).Str("property", name).Msg("global property cache read failed")
		} else if ok {
			return gp, nil
		}
	}
	gp, err := s.props.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.logger.Debug().Str("property", name).Msg("global property cache miss")
		if err := s.cache.Set(ctx, gp); err != nil {
			s.logger.Warn().Err(err).Str("property", name).Msg("global property cache write failed")
		}
	}
	return gp, nil
}

// GetGlobalProperty returns the value of name, or "" when it is not set.
func (s *Service) GetGlobalProperty(ctx context.Context, name string) (string, error) {
	return s.GetGlobalPropertyOrDefault(ctx, name, "")
}

// GetGlobalPropertyOrDefault returns def when name is missing or blank.
func (s *Service) GetGlobalPropertyOrDefault(ctx context.Context, name, def string) (string, error) {
	gp, err := s.GetGlobalPropertyObject(ctx, name)
	if errors.Is(err, apperr.ErrNotFound) {
		return def, nil
	}
	if err != nil {
		return "", err
	}
	if gp.PropertyValue == "" {
		return def, nil
	}
	return gp.PropertyValue, nil
}

func (s *Service) GetBool(ctx context.Context, name string, def bool) (bool, error) {
	v, err := s.GetGlobalProperty(ctx, name)
	if err != nil || v == "" {
		return def, err
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, apperr.Validation("global property %s value %q is not a boolean", name, v)
	}
	return b, nil
}

func (s *Service) GetInt(ctx context.Context, name string, def int) (int, error) {
	v, err := s.GetGlobalProperty(ctx, name)
	if err != nil || v == "" {
		return def, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, apperr.Validation("global property %s value %q is not an integer", name, v)
	}
	return n, nil
}

func (s *Service) GetAllGlobalProperties(ctx context.Context) ([]*GlobalProperty, error) {
	return s.props.List(ctx)
}

func (s *Service) GetGlobalPropertiesByPrefix(ctx context.Context, prefix string) ([]*GlobalProperty, error) {
	return s.props.ListByPrefix(ctx, prefix)
}

func (s *Service) GetGlobalPropertiesBySuffix(ctx context.Context, suffix string) ([]*GlobalProperty, error) {
	return s.props.ListBySuffix(ctx, suffix)
}

// -- Writes --

func (s *Service) validate(ctx context.Context, gp *GlobalProperty) error {
	if gp == nil {
		return apperr.InvalidArgument("global property is required")
	}
	if err := validateName(gp.Property); err != nil {
		return err
	}
	known, err := validateBuiltinValue(gp.Datatype, gp.PropertyValue)
	if known {
		return err
	}
	s.mu.RLock()
	fn, ok := s.datatypes[gp.Datatype]
	s.mu.RUnlock()
	if !ok {
		return apperr.Validation("unknown global property datatype %q", gp.Datatype)
	}
	if gp.PropertyValue == "" {
		return nil
	}
	return fn(ctx, gp.PropertyValue)
}

func (s *Service) save(ctx context.Context, gp *GlobalProperty) error {
	if err := s.validate(ctx, gp); err != nil {
		return err
	}
	if err := s.props.Save(ctx, gp); err != nil {
		return err
	}
	s.invalidate(ctx, gp.Property)
	return nil
}

// invalidate drops name from the cache once the surrounding transaction
// commits, so a concurrent reader cannot put the old row back.
func (s *Service) invalidate(ctx context.Context, name string) {
	if s.cache == nil {
		return
	}
	db.AfterCommit(ctx, func(ctx context.Context) {
		if err := s.cache.Delete(ctx, name); err != nil {
			s.logger.Warn().Err(err).Str("property", name).Msg("global property cache invalidation failed")
		}
	})
}

func (s *Service) notifyChanged(ctx context.Context, gp *GlobalProperty) {
	for _, l := range s.interested(gp.Property) {
		l.GlobalPropertyChanged(ctx, gp)
	}
}

func (s *Service) notifyDeleted(ctx context.Context, name string) {
	for _, l := range s.interested(name) {
		l.GlobalPropertyDeleted(ctx, name)
	}
}

// SaveGlobalProperty inserts gp or updates the existing property whose
// name matches ignoring case.
func (s *Service) SaveGlobalProperty(ctx context.Context, gp *GlobalProperty) (*GlobalProperty, error) {
	if err := s.save(ctx, gp); err != nil {
		return nil, err
	}
	s.notifyChanged(ctx, gp)
	return gp, nil
}

// SetGlobalProperty replaces the value of an existing property.
func (s *Service) SetGlobalProperty(ctx context.Context, name, value string) error {
	gp, err := s.props.Get(ctx, name)
	if errors.Is(err, apperr.ErrNotFound) {
		return apperr.API("global property %s does not exist", name)
	}
	if err != nil {
		return err
	}
	gp.PropertyValue = value
	_, err = s.SaveGlobalProperty(ctx, gp)
	return err
}

// SaveGlobalProperties saves every property in a single transaction.
// Listeners hear about the changes once all of them are stored.
func (s *Service) SaveGlobalProperties(ctx context.Context, gps []*GlobalProperty) ([]*GlobalProperty, error) {
	err := db.RunInTx(ctx, func(ctx context.Context) error {
		for _, gp := range gps {
			if err := s.save(ctx, gp); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, gp := range gps {
		s.notifyChanged(ctx, gp)
	}
	return gps, nil
}

func (s *Service) PurgeGlobalProperty(ctx context.Context, name string) error {
	if err := s.props.Delete(ctx, name); err != nil {
		return err
	}
	s.invalidate(ctx, name)
	s.notifyDeleted(ctx, name)
	return nil
}

func (s *Service) PurgeGlobalProperties(ctx context.Context, names []string) error {
	err := db.RunInTx(ctx, func(ctx context.Context) error {
		for _, name := range names {
			if err := s.props.Delete(ctx, name); err != nil {
				return err
			}
			s.invalidate(ctx, name)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, name := range names {
		s.notifyDeleted(ctx, name)
	}
	return nil
}

// GetNextSequenceValue increments the integer property name and returns
// the value it held. Concurrent callers always receive distinct values.
func (s *Service) GetNextSequenceValue(ctx context.Context, name string) (int64, error) {
	v, err := s.props.NextSequenceValue(ctx, name)
	if err != nil {
		return 0, err
	}
	s.invalidate(ctx, name)
	return v, nil
}
