package location

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openmrs/openmrs-api/internal/platform/apperr"
	"github.com/openmrs/openmrs-api/internal/platform/auth"
)

const propDefaultLocation = "default_location"

// PropertyReader reads global properties.
type PropertyReader interface {
	GetGlobalProperty(ctx context.Context, name string) (string, error)
}

type Service struct {
	locs  LocationRepository
	tags  LocationTagRepository
	props PropertyReader
	now   func() time.Time
}

func NewService(locs LocationRepository, tags LocationTagRepository, props PropertyReader) *Service {
	return &Service{locs: locs, tags: tags, props: props, now: time.Now}
}

// -- Location --

// SaveLocation creates or updates loc. Tag names are normalized to the
// stored tag's spelling.
func (s *Service) SaveLocation(ctx context.Context, loc *Location) (*Location, error) {
	if loc == nil {
		return nil, apperr.InvalidArgument("location is required")
	}
	loc.Name = strings.TrimSpace(loc.Name)
	if loc.Name == "" {
		return nil, apperr.Validation("location name is required")
	}
	existing, err := s.locs.GetByName(ctx, loc.Name)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
	case err != nil:
		return nil, err
	case existing.ID != loc.ID && !existing.Retired && !loc.Retired:
		return nil, apperr.Duplicate("a location named %q already exists", loc.Name)
	}

	if loc.ParentLocationID != nil {
		if err := s.checkParent(ctx, loc); err != nil {
			return nil, err
		}
	}

	tags, err := s.resolveTags(ctx, loc.Tags)
	if err != nil {
		return nil, err
	}
	loc.Tags = tags

	loc.Touch(auth.ActorFromContext(ctx), s.now())
	if loc.ID == uuid.Nil {
		err = s.locs.Create(ctx, loc)
	} else {
		err = s.locs.Update(ctx, loc)
	}
	if err != nil {
		return nil, err
	}
	return loc, nil
}

// checkParent walks up from the proposed parent and fails when the chain
// reaches loc itself.
func (s *Service) checkParent(ctx context.Context, loc *Location) error {
	seen := make(map[uuid.UUID]bool)
	next := loc.ParentLocationID
	for next != nil {
		if loc.ID != uuid.Nil && *next == loc.ID {
			return apperr.API("cyclic location hierarchy: %s cannot descend from itself", loc.Name)
		}
		if seen[*next] {
			return apperr.API("cyclic location hierarchy above %s", loc.Name)
		}
		seen[*next] = true
		parent, err := s.locs.GetByID(ctx, *next)
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.Validation("parent location %s does not exist", *next)
		}
		if err != nil {
			return err
		}
		next = parent.ParentLocationID
	}
	return nil
}

func (s *Service) resolveTags(ctx context.Context, names []string) ([]string, error) {
	seen := make(map[string]bool)
	out := make([]string, 0, len(names))
	for _, n := range names {
		tag, err := s.tags.GetByName(ctx, strings.TrimSpace(n))
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Validation("unknown location tag %q", n)
		}
		if err != nil {
			return nil, err
		}
		key := strings.ToLower(tag.Name)
		if !seen[key] {
			seen[key] = true
			out = append(out, tag.Name)
		}
	}
	return out, nil
}

func (s *Service) GetLocation(ctx context.Context, id uuid.UUID) (*Location, error) {
	return s.locs.GetByID(ctx, id)
}

func (s *Service) GetLocationByName(ctx context.Context, name string) (*Location, error) {
	return s.locs.GetByName(ctx, strings.TrimSpace(name))
}

func (s *Service) GetAllLocations(ctx context.Context, includeRetired bool) ([]*Location, error) {
	return s.locs.List(ctx, includeRetired)
}

// GetLocations returns non-retired locations whose name starts with
// fragment, ignoring case.
func (s *Service) GetLocations(ctx context.Context, fragment string) ([]*Location, error) {
	return s.locs.ListByNamePrefix(ctx, strings.TrimSpace(fragment), false)
}

func (s *Service) GetRootLocations(ctx context.Context, includeRetired bool) ([]*Location, error) {
	return s.locs.ListChildren(ctx, nil, includeRetired)
}

func (s *Service) GetChildLocations(ctx context.Context, parentID uuid.UUID, includeRetired bool) ([]*Location, error) {
	return s.locs.ListChildren(ctx, &parentID, includeRetired)
}

// GetDescendantLocations walks the tree under rootID breadth first. The
// root itself is not included.
func (s *Service) GetDescendantLocations(ctx context.Context, rootID uuid.UUID, includeRetired bool) ([]*Location, error) {
	var out []*Location
	seen := map[uuid.UUID]bool{rootID: true}
	queue := []uuid.UUID{rootID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		children, err := s.locs.ListChildren(ctx, &id, includeRetired)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			if seen[child.ID] {
				continue
			}
			seen[child.ID] = true
			out = append(out, child)
			queue = append(queue, child.ID)
		}
	}
	return out, nil
}

// IsInHierarchy reports whether locID is rootID or one of its descendants.
func (s *Service) IsInHierarchy(ctx context.Context, locID, rootID *uuid.UUID) (bool, error) {
	if locID == nil || rootID == nil {
		return false, nil
	}
	seen := make(map[uuid.UUID]bool)
	cur := locID
	for cur != nil && !seen[*cur] {
		if *cur == *rootID {
			return true, nil
		}
		seen[*cur] = true
		loc, err := s.locs.GetByID(ctx, *cur)
		if err != nil {
			return false, err
		}
		cur = loc.ParentLocationID
	}
	return false, nil
}

func (s *Service) GetLocationsByTag(ctx context.Context, tag string) ([]*Location, error) {
	return s.locs.ListByTags(ctx, []string{tag}, false)
}

func (s *Service) GetLocationsHavingAllTags(ctx context.Context, tags []string) ([]*Location, error) {
	if len(tags) == 0 {
		return s.locs.List(ctx, false)
	}
	return s.locs.ListByTags(ctx, dedupe(tags), true)
}

func (s *Service) GetLocationsHavingAnyTag(ctx context.Context, tags []string) ([]*Location, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	return s.locs.ListByTags(ctx, dedupe(tags), false)
}

func (s *Service) RetireLocation(ctx context.Context, id uuid.UUID, reason string) (*Location, error) {
	loc, err := s.locs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	actor := auth.ActorFromContext(ctx)
	if err := loc.Retire(actor, reason, s.now()); err != nil {
		return nil, err
	}
	loc.Touch(actor, s.now())
	if err := s.locs.Update(ctx, loc); err != nil {
		return nil, err
	}
	return loc, nil
}

func (s *Service) UnretireLocation(ctx context.Context, id uuid.UUID) (*Location, error) {
	loc, err := s.locs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	loc.Unretire()
	loc.Touch(auth.ActorFromContext(ctx), s.now())
	if err := s.locs.Update(ctx, loc); err != nil {
		return nil, err
	}
	return loc, nil
}

// PurgeLocation deletes a location that has no child locations.
func (s *Service) PurgeLocation(ctx context.Context, id uuid.UUID) error {
	children, err := s.locs.ListChildren(ctx, &id, true)
	if err != nil {
		return err
	}
	if len(children) > 0 {
		return apperr.API("cannot purge a location that has child locations")
	}
	return s.locs.Delete(ctx, id)
}

// GetDefaultLocation resolves the default_location global property by
// name or UUID. It falls back to "Unknown Location" and then to the first
// root location.
func (s *Service) GetDefaultLocation(ctx context.Context) (*Location, error) {
	if s.props != nil {
		value, err := s.props.GetGlobalProperty(ctx, propDefaultLocation)
		if err != nil {
			return nil, err
		}
		if value != "" {
			if loc, err := s.lookup(ctx, value); err == nil {
				return loc, nil
			} else if !errors.Is(err, apperr.ErrNotFound) {
				return nil, err
			}
		}
	}
	loc, err := s.locs.GetByName(ctx, UnknownLocationName)
	if err == nil {
		return loc, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	roots, err := s.locs.ListChildren(ctx, nil, false)
	if err != nil {
		return nil, err
	}
	if len(roots) == 0 {
		return nil, apperr.NotFound("location", "default")
	}
	return roots[0], nil
}

func (s *Service) lookup(ctx context.Context, value string) (*Location, error) {
	loc, err := s.locs.GetByName(ctx, value)
	if err == nil || !errors.Is(err, apperr.ErrNotFound) {
		return loc, err
	}
	id, perr := uuid.Parse(value)
	if perr != nil {
		return nil, err
	}
	return s.locs.GetByID(ctx, id)
}

// ValidateLocationValue checks a "location" typed global property value.
func (s *Service) ValidateLocationValue(ctx context.Context, value string) error {
	_, err := s.lookup(ctx, value)
	if errors.Is(err, apperr.ErrNotFound) {
		return apperr.Validation("no location named or identified by %q", value)
	}
	return err
}

// -- Location Tag --

func (s *Service) SaveLocationTag(ctx context.Context, tag *LocationTag) (*LocationTag, error) {
	if tag == nil {
		return nil, apperr.InvalidArgument("location tag is required")
	}
	tag.Name = strings.TrimSpace(tag.Name)
	if tag.Name == "" {
		return nil, apperr.Validation("location tag name is required")
	}
	existing, err := s.tags.GetByName(ctx, tag.Name)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
	case err != nil:
		return nil, err
	case existing.ID != tag.ID:
		return nil, apperr.Duplicate("a location tag named %q already exists", tag.Name)
	}
	tag.Touch(auth.ActorFromContext(ctx), s.now())
	if tag.ID == uuid.Nil {
		err = s.tags.Create(ctx, tag)
	} else {
		err = s.tags.Update(ctx, tag)
	}
	if err != nil {
		return nil, err
	}
	return tag, nil
}

func (s *Service) GetLocationTag(ctx context.Context, id uuid.UUID) (*LocationTag, error) {
	return s.tags.GetByID(ctx, id)
}

func (s *Service) GetLocationTagByName(ctx context.Context, name string) (*LocationTag, error) {
	return s.tags.GetByName(ctx, strings.TrimSpace(name))
}

func (s *Service) GetAllLocationTags(ctx context.Context, includeRetired bool) ([]*LocationTag, error) {
	return s.tags.List(ctx, includeRetired)
}

func (s *Service) RetireLocationTag(ctx context.Context, id uuid.UUID, reason string) (*LocationTag, error) {
	tag, err := s.tags.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	actor := auth.ActorFromContext(ctx)
	if err := tag.Retire(actor, reason, s.now()); err != nil {
		return nil, err
	}
	tag.Touch(actor, s.now())
	if err := s.tags.Update(ctx, tag); err != nil {
		return nil, err
	}
	return tag, nil
}

func (s *Service) UnretireLocationTag(ctx context.Context, id uuid.UUID) (*LocationTag, error) {
	tag, err := s.tags.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	tag.Unretire()
	tag.Touch(auth.ActorFromContext(ctx), s.now())
	if err := s.tags.Update(ctx, tag); err != nil {
		return nil, err
	}
	return tag, nil
}

// PurgeLocationTag deletes a tag no location carries.
func (s *Service) PurgeLocationTag(ctx context.Context, id uuid.UUID) error {
	used, err := s.tags.InUse(ctx, id)
	if err != nil {
		return err
	}
	if used {
		return apperr.API("cannot purge a location tag that is in use")
	}
	return s.tags.Delete(ctx, id)
}

func dedupe(names []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, n := range names {
		key := strings.ToLower(strings.TrimSpace(n))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, n)
	}
	return out
}
