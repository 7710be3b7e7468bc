package provider

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

// -- Mock Repository --

type mockProviderRepo struct {
	providers map[uuid.UUID]*Provider
}

func newMockProviderRepo() *mockProviderRepo {
	return &mockProviderRepo{providers: make(map[uuid.UUID]*Provider)}
}

func (m *mockProviderRepo) Create(_ context.Context, p *Provider) error {
	p.ID = uuid.New()
	cp := *p
	m.providers[p.ID] = &cp
	return nil
}

func (m *mockProviderRepo) Update(_ context.Context, p *Provider) error {
	if _, ok := m.providers[p.ID]; !ok {
		return apperr.NotFound("provider", p.ID)
	}
	cp := *p
	m.providers[p.ID] = &cp
	return nil
}

func (m *mockProviderRepo) GetByID(_ context.Context, id uuid.UUID) (*Provider, error) {
	p, ok := m.providers[id]
	if !ok {
		return nil, apperr.NotFound("provider", id)
	}
	cp := *p
	return &cp, nil
}

func (m *mockProviderRepo) GetByIdentifier(_ context.Context, identifier string) (*Provider, error) {
	for _, p := range m.providers {
		if strings.EqualFold(p.Identifier, identifier) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("provider", identifier)
}

func (m *mockProviderRepo) matches(query string, includeRetired bool) []*Provider {
	q := strings.ToLower(query)
	var out []*Provider
	for _, p := range m.providers {
		if p.Retired && !includeRetired {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(p.PersonName), q) &&
			!strings.Contains(strings.ToLower(p.Identifier), q) {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PersonName < out[j].PersonName })
	return out
}

func (m *mockProviderRepo) Search(_ context.Context, query string, includeRetired bool, limit, offset int) ([]*Provider, error) {
	all := m.matches(query, includeRetired)
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (m *mockProviderRepo) Count(_ context.Context, query string, includeRetired bool) (int, error) {
	return len(m.matches(query, includeRetired)), nil
}

func (m *mockProviderRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.providers[id]; !ok {
		return apperr.NotFound("provider", id)
	}
	delete(m.providers, id)
	return nil
}

type mockProps map[string]string

func (m mockProps) GetGlobalProperty(_ context.Context, name string) (string, error) {
	return m[name], nil
}

func newTestService(props mockProps) (*Service, *mockProviderRepo) {
	repo := newMockProviderRepo()
	return NewService(repo, props), repo
}

// -- Tests --

func TestSaveProvider_RequiresNameOrIdentifier(t *testing.T) {
	svc, _ := newTestService(nil)

	_, err := svc.SaveProvider(context.Background(), &Provider{PersonName: "  "})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	p, err := svc.SaveProvider(context.Background(), &Provider{Identifier: "P-1"})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, p.ID)
	assert.NotEmpty(t, p.Creator)
}

func TestSaveProvider_IdentifierUniqueIgnoringCase(t *testing.T) {
	svc, _ := newTestService(nil)
	ctx := context.Background()

	first, err := svc.SaveProvider(ctx, &Provider{PersonName: "Jane", Identifier: "doc-1"})
	require.NoError(t, err)

	_, err = svc.SaveProvider(ctx, &Provider{PersonName: "John", Identifier: "DOC-1"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	// resaving the owner of the identifier is fine
	first.Role = "Nurse"
	_, err = svc.SaveProvider(ctx, first)
	require.NoError(t, err)

	unique, err := svc.IsProviderIdentifierUnique(ctx, &Provider{Identifier: ""})
	require.NoError(t, err)
	assert.True(t, unique)
}

func TestGetProviders_PagingAndCount(t *testing.T) {
	svc, _ := newTestService(nil)
	ctx := context.Background()
	for _, name := range []string{"Alice", "Alan", "Bob"} {
		_, err := svc.SaveProvider(ctx, &Provider{PersonName: name})
		require.NoError(t, err)
	}

	n, err := svc.GetCountOfProviders(ctx, "al", false)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	page, err := svc.GetProviders(ctx, "al", 1, 1, false)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "Alice", page[0].PersonName)

	all, err := svc.GetProviders(ctx, "", 0, -1, false)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRetireProvider(t *testing.T) {
	svc, _ := newTestService(nil)
	ctx := context.Background()
	p, err := svc.SaveProvider(ctx, &Provider{PersonName: "Jane"})
	require.NoError(t, err)

	_, err = svc.RetireProvider(ctx, p.ID, "")
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	retired, err := svc.RetireProvider(ctx, p.ID, "left")
	require.NoError(t, err)
	assert.True(t, retired.Retired)
	require.NotNil(t, retired.RetireReason)
	assert.Equal(t, "left", *retired.RetireReason)

	active, err := svc.GetAllProviders(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := svc.GetAllProviders(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	back, err := svc.UnretireProvider(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, back.Retired)
	assert.Nil(t, back.RetireReason)
}

func TestGetUnknownProvider(t *testing.T) {
	props := mockProps{}
	svc, _ := newTestService(props)
	ctx := context.Background()

	_, err := svc.GetUnknownProvider(ctx)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	props[propUnknownProviderUUID] = "not-a-uuid"
	_, err = svc.GetUnknownProvider(ctx)
	assert.ErrorIs(t, err, apperr.ErrAPI)

	p, err := svc.SaveProvider(ctx, &Provider{PersonName: "Unknown Provider"})
	require.NoError(t, err)
	props[propUnknownProviderUUID] = p.ID.String()
	got, err := svc.GetUnknownProvider(ctx)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
}

func TestPurgeProvider(t *testing.T) {
	svc, _ := newTestService(nil)
	ctx := context.Background()
	p, err := svc.SaveProvider(ctx, &Provider{PersonName: "Jane"})
	require.NoError(t, err)

	require.NoError(t, svc.PurgeProvider(ctx, p.ID))
	_, err = svc.GetProvider(ctx, p.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
