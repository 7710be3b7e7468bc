package orderset

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmrs/openmrs-api/internal/domain/concept"
	"github.com/openmrs/openmrs-api/internal/domain/order"
	"github.com/openmrs/openmrs-api/internal/platform/apperr"
)

// -- Mocks --

type mockRepo struct {
	sets map[uuid.UUID]*OrderSet
}

func newMockRepo() *mockRepo {
	return &mockRepo{sets: map[uuid.UUID]*OrderSet{}}
}

func cloneSet(s *OrderSet) *OrderSet {
	cp := *s
	cp.Members = make([]*OrderSetMember, len(s.Members))
	for i, m := range s.Members {
		mc := *m
		cp.Members[i] = &mc
	}
	return &cp
}

func (m *mockRepo) store(s *OrderSet) {
	for i, mem := range s.Members {
		if mem.ID == uuid.Nil {
			mem.ID = uuid.New()
		}
		mem.OrderSetID = s.ID
		mem.SortWeight = i
	}
	m.sets[s.ID] = cloneSet(s)
}

func (m *mockRepo) Create(_ context.Context, s *OrderSet) error {
	s.ID = uuid.New()
	m.store(s)
	return nil
}

func (m *mockRepo) Update(_ context.Context, s *OrderSet) error {
	if _, ok := m.sets[s.ID]; !ok {
		return apperr.NotFound("order set", s.ID)
	}
	m.store(s)
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*OrderSet, error) {
	s, ok := m.sets[id]
	if !ok {
		return nil, apperr.NotFound("order set", id)
	}
	return cloneSet(s), nil
}

func (m *mockRepo) GetByName(_ context.Context, name string) (*OrderSet, error) {
	for _, s := range m.sets {
		if s.Name == name {
			return cloneSet(s), nil
		}
	}
	return nil, apperr.NotFound("order set", name)
}

func (m *mockRepo) List(_ context.Context, includeRetired bool) ([]*OrderSet, error) {
	var out []*OrderSet
	for _, s := range m.sets {
		if includeRetired || !s.Retired {
			out = append(out, cloneSet(s))
		}
	}
	return out, nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.sets[id]; !ok {
		return apperr.NotFound("order set", id)
	}
	delete(m.sets, id)
	return nil
}

type mockConcepts map[uuid.UUID]bool

func (m mockConcepts) GetConcept(_ context.Context, id uuid.UUID) (*concept.Concept, error) {
	if !m[id] {
		return nil, apperr.NotFound("concept", id)
	}
	return &concept.Concept{ID: id}, nil
}

type mockOrderTypes map[uuid.UUID]bool

func (m mockOrderTypes) GetOrderType(_ context.Context, id uuid.UUID) (*order.OrderType, error) {
	if !m[id] {
		return nil, apperr.NotFound("order type", id)
	}
	return &order.OrderType{ID: id}, nil
}

type fixture struct {
	svc       *Service
	repo      *mockRepo
	aspirin   uuid.UUID
	cbc       uuid.UUID
	drugOrder uuid.UUID
}

func newFixture() *fixture {
	f := &fixture{repo: newMockRepo(), aspirin: uuid.New(), cbc: uuid.New(), drugOrder: uuid.New()}
	f.svc = NewService(f.repo,
		mockConcepts{f.aspirin: true, f.cbc: true},
		mockOrderTypes{f.drugOrder: true})
	f.svc.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return f
}

func (f *fixture) saved(t *testing.T) *OrderSet {
	t.Helper()
	set, err := f.svc.SaveOrderSet(context.Background(), &OrderSet{
		Name:     "Chest pain",
		Operator: OperatorAny,
		Members: []*OrderSetMember{
			{ConceptID: &f.aspirin, OrderTypeID: &f.drugOrder, OrderTemplate: `{"dose":300}`},
			{ConceptID: &f.cbc},
		},
	})
	require.NoError(t, err)
	return set
}

// -- Tests --

func TestSaveOrderSet(t *testing.T) {
	f := newFixture()
	set := f.saved(t)

	got, err := f.svc.GetOrderSet(context.Background(), set.ID)
	require.NoError(t, err)
	require.Len(t, got.Members, 2)
	assert.Equal(t, f.aspirin, *got.Members[0].ConceptID)
	assert.Equal(t, 1, got.Members[1].SortWeight)
	assert.NotEmpty(t, got.Members[0].Creator)

	byName, err := f.svc.GetOrderSetByName(context.Background(), " Chest pain ")
	require.NoError(t, err)
	assert.Equal(t, set.ID, byName.ID)
}

func TestSaveOrderSet_Validation(t *testing.T) {
	f := newFixture()
	unknown := uuid.New()
	tests := []struct {
		name string
		set  *OrderSet
	}{
		{"missing name", &OrderSet{Operator: OperatorAll}},
		{"missing operator", &OrderSet{Name: "x"}},
		{"bad operator", &OrderSet{Name: "x", Operator: "SOME"}},
		{"unknown category", &OrderSet{Name: "x", Operator: OperatorAll, CategoryID: &unknown}},
		{"empty member", &OrderSet{Name: "x", Operator: OperatorAll, Members: []*OrderSetMember{{}}}},
		{"unknown concept", &OrderSet{Name: "x", Operator: OperatorAll, Members: []*OrderSetMember{{ConceptID: &unknown}}}},
		{"unknown order type", &OrderSet{Name: "x", Operator: OperatorAll,
			Members: []*OrderSetMember{{ConceptID: &f.cbc, OrderTypeID: &unknown}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SaveOrderSet(context.Background(), tt.set)
			assert.ErrorIs(t, err, apperr.ErrValidation)
		})
	}
}

func TestAddAndRemoveMember(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	set := f.saved(t)

	first := 0
	updated, err := f.svc.AddMember(ctx, set.ID, &OrderSetMember{OrderTemplate: "nitroglycerin"}, &first)
	require.NoError(t, err)
	require.Len(t, updated.Members, 3)
	assert.Equal(t, "nitroglycerin", updated.Members[0].OrderTemplate)

	tooFar := 7
	_, err = f.svc.AddMember(ctx, set.ID, &OrderSetMember{OrderTemplate: "x"}, &tooFar)
	assert.ErrorIs(t, err, apperr.ErrAPI)

	stored, err := f.svc.GetOrderSet(ctx, set.ID)
	require.NoError(t, err)
	removed, err := f.svc.RemoveMember(ctx, set.ID, stored.Members[1].ID)
	require.NoError(t, err)
	require.Len(t, removed.Members, 2)
	assert.Equal(t, f.cbc, *removed.Members[1].ConceptID)
	assert.Equal(t, 1, removed.Members[1].SortWeight)

	_, err = f.svc.RemoveMember(ctx, set.ID, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRetireOrderSet_Cascade(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	set := f.saved(t)

	stored, err := f.svc.GetOrderSet(ctx, set.ID)
	require.NoError(t, err)
	_, err = f.svc.RetireMember(ctx, set.ID, stored.Members[0].ID, "no longer stocked")
	require.NoError(t, err)

	_, err = f.svc.RetireOrderSet(ctx, set.ID, "")
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	retired, err := f.svc.RetireOrderSet(ctx, set.ID, "protocol replaced")
	require.NoError(t, err)
	assert.True(t, retired.Retired)
	assert.True(t, retired.Members[1].RetiredWith("protocol replaced"))
	assert.True(t, retired.Members[0].RetiredWith("no longer stocked"))

	active, err := f.svc.GetOrderSets(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, active)

	back, err := f.svc.UnretireOrderSet(ctx, set.ID)
	require.NoError(t, err)
	assert.False(t, back.Retired)
	assert.True(t, back.Members[0].Retired, "member retired on its own stays retired")
	assert.False(t, back.Members[1].Retired)
	assert.Len(t, back.GetUnRetiredOrderSetMembers(), 1)
}

func TestUnretireOrderSet_KeepsEarlierRetirementWithSameReason(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	set := f.saved(t)

	stored, err := f.svc.GetOrderSet(ctx, set.ID)
	require.NoError(t, err)
	_, err = f.svc.RetireMember(ctx, set.ID, stored.Members[0].ID, "protocol replaced")
	require.NoError(t, err)

	later := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return later }
	_, err = f.svc.RetireOrderSet(ctx, set.ID, "protocol replaced")
	require.NoError(t, err)

	back, err := f.svc.UnretireOrderSet(ctx, set.ID)
	require.NoError(t, err)
	assert.False(t, back.Retired)
	assert.True(t, back.Members[0].RetiredWith("protocol replaced"), "retired before the set")
	assert.False(t, back.Members[1].Retired)
}

func TestPurgeOrderSet(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	set := f.saved(t)

	require.NoError(t, f.svc.PurgeOrderSet(ctx, set.ID))
	_, err := f.svc.GetOrderSet(ctx, set.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
