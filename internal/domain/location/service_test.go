package location

import (
	"context"
	"sort"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmrs/openmrs-api/internal/platform/apperr"
)

// -- Mock Repositories --

type mockLocationRepo struct {
	locs map[uuid.UUID]*Location
}

func newMockLocationRepo() *mockLocationRepo {
	return &mockLocationRepo{locs: make(map[uuid.UUID]*Location)}
}

func cloneLoc(l *Location) *Location {
	cp := *l
	cp.Tags = append([]string(nil), l.Tags...)
	return &cp
}

func (m *mockLocationRepo) Create(_ context.Context, l *Location) error {
	l.ID = uuid.New()
	m.locs[l.ID] = cloneLoc(l)
	return nil
}

func (m *mockLocationRepo) Update(_ context.Context, l *Location) error {
	if _, ok := m.locs[l.ID]; !ok {
		return apperr.NotFound("location", l.ID)
	}
	m.locs[l.ID] = cloneLoc(l)
	return nil
}

func (m *mockLocationRepo) GetByID(_ context.Context, id uuid.UUID) (*Location, error) {
	l, ok := m.locs[id]
	if !ok {
		return nil, apperr.NotFound("location", id)
	}
	return cloneLoc(l), nil
}

func (m *mockLocationRepo) GetByName(_ context.Context, name string) (*Location, error) {
	var match *Location
	for _, l := range m.locs {
		if strings.EqualFold(l.Name, name) && (match == nil || match.Retired) {
			match = cloneLoc(l)
		}
	}
	if match == nil {
		return nil, apperr.NotFound("location", name)
	}
	return match, nil
}

func (m *mockLocationRepo) filter(keep func(l *Location) bool) []*Location {
	var out []*Location
	for _, l := range m.locs {
		if keep(l) {
			out = append(out, cloneLoc(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *mockLocationRepo) List(_ context.Context, includeRetired bool) ([]*Location, error) {
	return m.filter(func(l *Location) bool { return includeRetired || !l.Retired }), nil
}

func (m *mockLocationRepo) ListByNamePrefix(_ context.Context, prefix string, includeRetired bool) ([]*Location, error) {
	return m.filter(func(l *Location) bool {
		return (includeRetired || !l.Retired) && strings.HasPrefix(strings.ToLower(l.Name), strings.ToLower(prefix))
	}), nil
}

func (m *mockLocationRepo) ListChildren(_ context.Context, parentID *uuid.UUID, includeRetired bool) ([]*Location, error) {
	return m.filter(func(l *Location) bool {
		if !includeRetired && l.Retired {
			return false
		}
		if parentID == nil {
			return l.ParentLocationID == nil
		}
		return l.ParentLocationID != nil && *l.ParentLocationID == *parentID
	}), nil
}

func (m *mockLocationRepo) ListByTags(_ context.Context, tags []string, matchAll bool) ([]*Location, error) {
	return m.filter(func(l *Location) bool {
		if l.Retired {
			return false
		}
		hits := 0
		for _, t := range tags {
			if l.HasTag(t) {
				hits++
			}
		}
		if matchAll {
			return hits == len(tags)
		}
		return hits > 0
	}), nil
}

func (m *mockLocationRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.locs[id]; !ok {
		return apperr.NotFound("location", id)
	}
	delete(m.locs, id)
	return nil
}

type mockTagRepo struct {
	tags map[uuid.UUID]*LocationTag
	locs *mockLocationRepo
}

func (m *mockTagRepo) Create(_ context.Context, t *LocationTag) error {
	t.ID = uuid.New()
	cp := *t
	m.tags[t.ID] = &cp
	return nil
}

func (m *mockTagRepo) Update(_ context.Context, t *LocationTag) error {
	cp := *t
	m.tags[t.ID] = &cp
	return nil
}

func (m *mockTagRepo) GetByID(_ context.Context, id uuid.UUID) (*LocationTag, error) {
	t, ok := m.tags[id]
	if !ok {
		return nil, apperr.NotFound("location tag", id)
	}
	cp := *t
	return &cp, nil
}

func (m *mockTagRepo) GetByName(_ context.Context, name string) (*LocationTag, error) {
	for _, t := range m.tags {
		if strings.EqualFold(t.Name, name) {
			cp := *t
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("location tag", name)
}

func (m *mockTagRepo) List(_ context.Context, includeRetired bool) ([]*LocationTag, error) {
	var out []*LocationTag
	for _, t := range m.tags {
		if includeRetired || !t.Retired {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockTagRepo) InUse(_ context.Context, id uuid.UUID) (bool, error) {
	t, ok := m.tags[id]
	if !ok {
		return false, nil
	}
	for _, l := range m.locs.locs {
		if l.HasTag(t.Name) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockTagRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.tags, id)
	return nil
}

type mockProps map[string]string

func (m mockProps) GetGlobalProperty(_ context.Context, name string) (string, error) {
	return m[name], nil
}

func newTestService(props mockProps) *Service {
	locs := newMockLocationRepo()
	tags := &mockTagRepo{tags: make(map[uuid.UUID]*LocationTag), locs: locs}
	return NewService(locs, tags, props)
}

func mustSave(t *testing.T, svc *Service, name string, parent *Location, tags ...string) *Location {
	t.Helper()
	loc := &Location{Name: name, Tags: tags}
	if parent != nil {
		loc.ParentLocationID = &parent.ID
	}
	saved, err := svc.SaveLocation(context.Background(), loc)
	require.NoError(t, err)
	return saved
}

// -- Tests --

func TestSaveLocation_NameRules(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()

	_, err := svc.SaveLocation(ctx, &Location{Name: " "})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	first := mustSave(t, svc, "Outpatient Clinic", nil)
	_, err = svc.SaveLocation(ctx, &Location{Name: "outpatient clinic"})
	assert.ErrorIs(t, err, apperr.ErrDuplicate)

	_, err = svc.RetireLocation(ctx, first.ID, "closed")
	require.NoError(t, err)
	_, err = svc.SaveLocation(ctx, &Location{Name: "Outpatient Clinic"})
	assert.NoError(t, err)
}

func TestSaveLocation_ParentMustExist(t *testing.T) {
	svc := newTestService(nil)
	missing := uuid.New()
	_, err := svc.SaveLocation(context.Background(), &Location{Name: "Ward", ParentLocationID: &missing})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestSaveLocation_RejectsCycles(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()

	hospital := mustSave(t, svc, "Hospital", nil)
	ward := mustSave(t, svc, "Ward", hospital)
	bed := mustSave(t, svc, "Bed 1", ward)

	hospital.ParentLocationID = &bed.ID
	_, err := svc.SaveLocation(ctx, hospital)
	assert.ErrorIs(t, err, apperr.ErrAPI)
	assert.Contains(t, err.Error(), "cyclic location hierarchy")

	ward.ParentLocationID = &ward.ID
	_, err = svc.SaveLocation(ctx, ward)
	assert.ErrorIs(t, err, apperr.ErrAPI)
}

func TestSaveLocation_Tags(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()

	_, err := svc.SaveLocation(ctx, &Location{Name: "Lab", Tags: []string{"Login Location"}})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.SaveLocationTag(ctx, &LocationTag{Name: "Login Location"})
	require.NoError(t, err)
	_, err = svc.SaveLocationTag(ctx, &LocationTag{Name: "login location"})
	assert.ErrorIs(t, err, apperr.ErrDuplicate)

	lab, err := svc.SaveLocation(ctx, &Location{Name: "Lab", Tags: []string{"login location", "LOGIN LOCATION"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Login Location"}, lab.Tags)
}

func TestHierarchyQueries(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()

	hospital := mustSave(t, svc, "Hospital", nil)
	clinic := mustSave(t, svc, "Clinic", nil)
	wardA := mustSave(t, svc, "Ward A", hospital)
	wardB := mustSave(t, svc, "Ward B", hospital)
	bed := mustSave(t, svc, "Bed 1", wardA)

	roots, err := svc.GetRootLocations(ctx, false)
	require.NoError(t, err)
	assert.Len(t, roots, 2)

	children, err := svc.GetChildLocations(ctx, hospital.ID, false)
	require.NoError(t, err)
	assert.Len(t, children, 2)

	desc, err := svc.GetDescendantLocations(ctx, hospital.ID, false)
	require.NoError(t, err)
	require.Len(t, desc, 3)
	assert.Equal(t, bed.ID, desc[2].ID, "grandchildren come after children")

	_, err = svc.RetireLocation(ctx, wardB.ID, "renovation")
	require.NoError(t, err)
	desc, err = svc.GetDescendantLocations(ctx, hospital.ID, false)
	require.NoError(t, err)
	assert.Len(t, desc, 2)
	desc, err = svc.GetDescendantLocations(ctx, hospital.ID, true)
	require.NoError(t, err)
	assert.Len(t, desc, 3)

	in, err := svc.IsInHierarchy(ctx, &bed.ID, &hospital.ID)
	require.NoError(t, err)
	assert.True(t, in)
	in, err = svc.IsInHierarchy(ctx, &hospital.ID, &hospital.ID)
	require.NoError(t, err)
	assert.True(t, in)
	in, err = svc.IsInHierarchy(ctx, &bed.ID, &clinic.ID)
	require.NoError(t, err)
	assert.False(t, in)
	in, err = svc.IsInHierarchy(ctx, nil, &hospital.ID)
	require.NoError(t, err)
	assert.False(t, in)
}

func TestGetLocations_Prefix(t *testing.T) {
	svc := newTestService(nil)
	mustSave(t, svc, "Maternity Ward", nil)
	mustSave(t, svc, "Male Ward", nil)
	mustSave(t, svc, "Pharmacy", nil)

	found, err := svc.GetLocations(context.Background(), "MA")
	require.NoError(t, err)
	assert.Len(t, found, 2)
}

func TestTagQueries(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()
	for _, name := range []string{"Login Location", "Admission Location", "Visit Location"} {
		_, err := svc.SaveLocationTag(ctx, &LocationTag{Name: name})
		require.NoError(t, err)
	}

	mustSave(t, svc, "Triage", nil, "Login Location")
	mustSave(t, svc, "Inpatient", nil, "Login Location", "Admission Location")
	mustSave(t, svc, "Registration", nil, "Visit Location")

	byTag, err := svc.GetLocationsByTag(ctx, "login location")
	require.NoError(t, err)
	assert.Len(t, byTag, 2)

	all, err := svc.GetLocationsHavingAllTags(ctx, []string{"Login Location", "Admission Location"})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Inpatient", all[0].Name)

	anyTag, err := svc.GetLocationsHavingAnyTag(ctx, []string{"Admission Location", "Visit Location"})
	require.NoError(t, err)
	assert.Len(t, anyTag, 2)

	none, err := svc.GetLocationsHavingAnyTag(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestPurgeLocation(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()

	parent := mustSave(t, svc, "Parent", nil)
	child := mustSave(t, svc, "Child", parent)

	assert.ErrorIs(t, svc.PurgeLocation(ctx, parent.ID), apperr.ErrAPI)
	require.NoError(t, svc.PurgeLocation(ctx, child.ID))
	require.NoError(t, svc.PurgeLocation(ctx, parent.ID))
	_, err := svc.GetLocation(ctx, parent.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestLocationTagLifecycle(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()

	tag, err := svc.SaveLocationTag(ctx, &LocationTag{Name: "Login Location"})
	require.NoError(t, err)
	mustSave(t, svc, "Triage", nil, "Login Location")

	assert.ErrorIs(t, svc.PurgeLocationTag(ctx, tag.ID), apperr.ErrAPI)

	retired, err := svc.RetireLocationTag(ctx, tag.ID, "unused")
	require.NoError(t, err)
	assert.True(t, retired.Retired)

	back, err := svc.UnretireLocationTag(ctx, tag.ID)
	require.NoError(t, err)
	assert.False(t, back.Retired)

	found, err := svc.GetLocationTagByName(ctx, "LOGIN LOCATION")
	require.NoError(t, err)
	assert.Equal(t, tag.ID, found.ID)

	spare, err := svc.SaveLocationTag(ctx, &LocationTag{Name: "Spare"})
	require.NoError(t, err)
	require.NoError(t, svc.PurgeLocationTag(ctx, spare.ID))
}

func TestRetireLocation_RequiresReason(t *testing.T) {
	svc := newTestService(nil)
	loc := mustSave(t, svc, "Ward", nil)

	_, err := svc.RetireLocation(context.Background(), loc.ID, "")
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	retired, err := svc.RetireLocation(context.Background(), loc.ID, "closed")
	require.NoError(t, err)
	assert.True(t, retired.RetiredWith("closed"))

	back, err := svc.UnretireLocation(context.Background(), loc.ID)
	require.NoError(t, err)
	assert.False(t, back.Retired)
	assert.Nil(t, back.RetiredBy)
}

func TestGetDefaultLocation(t *testing.T) {
	ctx := context.Background()

	t.Run("by name from global property", func(t *testing.T) {
		svc := newTestService(mockProps{propDefaultLocation: "Registration Desk"})
		mustSave(t, svc, "Alpha", nil)
		mustSave(t, svc, "Registration Desk", nil)
		loc, err := svc.GetDefaultLocation(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Registration Desk", loc.Name)
	})

	t.Run("by uuid from global property", func(t *testing.T) {
		props := mockProps{}
		svc := newTestService(props)
		desk := mustSave(t, svc, "Desk", nil)
		props[propDefaultLocation] = desk.ID.String()
		loc, err := svc.GetDefaultLocation(ctx)
		require.NoError(t, err)
		assert.Equal(t, desk.ID, loc.ID)
	})

	t.Run("falls back to unknown location", func(t *testing.T) {
		svc := newTestService(mockProps{propDefaultLocation: "Nowhere"})
		mustSave(t, svc, "Alpha", nil)
		mustSave(t, svc, UnknownLocationName, nil)
		loc, err := svc.GetDefaultLocation(ctx)
		require.NoError(t, err)
		assert.Equal(t, UnknownLocationName, loc.Name)
	})

	t.Run("falls back to first root", func(t *testing.T) {
		svc := newTestService(nil)
		mustSave(t, svc, "Zulu", nil)
		mustSave(t, svc, "Alpha", nil)
		loc, err := svc.GetDefaultLocation(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Alpha", loc.Name)
	})

	t.Run("no locations", func(t *testing.T) {
		svc := newTestService(nil)
		_, err := svc.GetDefaultLocation(ctx)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}

func TestValidateLocationValue(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()
	desk := mustSave(t, svc, "Desk", nil)

	assert.NoError(t, svc.ValidateLocationValue(ctx, "desk"))
	assert.NoError(t, svc.ValidateLocationValue(ctx, desk.ID.String()))
	assert.ErrorIs(t, svc.ValidateLocationValue(ctx, "Nowhere"), apperr.ErrValidation)
}
