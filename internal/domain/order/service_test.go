package order

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmrs/openmrs-api/internal/domain/concept"
	"github.com/openmrs/openmrs-api/internal/domain/encounter"
	"github.com/openmrs/openmrs-api/internal/domain/patient"
	"github.com/openmrs/openmrs-api/internal/domain/provider"
	"github.com/openmrs/openmrs-api/internal/platform/apperr"
)

// -- Mock Repositories --

type mockOrderRepo struct {
	orders map[uuid.UUID]*Order
	seq    map[uuid.UUID]int
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{orders: map[uuid.UUID]*Order{}, seq: map[uuid.UUID]int{}}
}

func cloneOrder(o *Order) *Order {
	cp := *o
	if o.Drug != nil {
		d := *o.Drug
		cp.Drug = &d
	}
	if o.Test != nil {
		t := *o.Test
		cp.Test = &t
	}
	return &cp
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	for _, other := range m.orders {
		if other.OrderNumber == o.OrderNumber {
			return apperr.Duplicate("order %s", o.OrderNumber)
		}
	}
	o.ID = uuid.New()
	m.seq[o.ID] = len(m.seq)
	m.orders[o.ID] = cloneOrder(o)
	return nil
}

func (m *mockOrderRepo) Update(_ context.Context, o *Order) error {
	cur, ok := m.orders[o.ID]
	if !ok {
		return apperr.NotFound("order", o.ID)
	}
	cur.DateStopped = o.DateStopped
	cur.FulfillerStatus, cur.FulfillerComment = o.FulfillerStatus, o.FulfillerComment
	cur.Stamp = o.Stamp
	cur.Voidable = o.Voidable
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id uuid.UUID) (*Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, apperr.NotFound("order", id)
	}
	return cloneOrder(o), nil
}

func (m *mockOrderRepo) GetByOrderNumber(_ context.Context, number string) (*Order, error) {
	for _, o := range m.orders {
		if o.OrderNumber == number {
			return cloneOrder(o), nil
		}
	}
	return nil, apperr.NotFound("order", number)
}

func (m *mockOrderRepo) filter(keep func(o *Order) bool) []*Order {
	var out []*Order
	for _, o := range m.orders {
		if keep(o) {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DateActivated.Equal(out[j].DateActivated) {
			return out[i].DateActivated.Before(out[j].DateActivated)
		}
		return m.seq[out[i].ID] < m.seq[out[j].ID]
	})
	return out
}

func (m *mockOrderRepo) ListByPatient(_ context.Context, patientID uuid.UUID, includeVoided bool) ([]*Order, error) {
	return m.filter(func(o *Order) bool { return o.PatientID == patientID && (includeVoided || !o.Voided) }), nil
}

func (m *mockOrderRepo) ListByEncounter(_ context.Context, encounterID uuid.UUID, includeVoided bool) ([]*Order, error) {
	return m.filter(func(o *Order) bool { return o.EncounterID == encounterID && (includeVoided || !o.Voided) }), nil
}

func (m *mockOrderRepo) ListByPreviousOrder(_ context.Context, prevID uuid.UUID) ([]*Order, error) {
	return m.filter(func(o *Order) bool { return o.PreviousOrderID != nil && *o.PreviousOrderID == prevID }), nil
}

func (m *mockOrderRepo) CountByOrderType(_ context.Context, id uuid.UUID) (int, error) {
	return len(m.filter(func(o *Order) bool { return o.OrderTypeID == id })), nil
}

func (m *mockOrderRepo) CountByFrequency(_ context.Context, id uuid.UUID) (int, error) {
	return len(m.filter(func(o *Order) bool {
		return o.Drug != nil && o.Drug.FrequencyID != nil && *o.Drug.FrequencyID == id
	})), nil
}

func (m *mockOrderRepo) CountByCareSetting(_ context.Context, id uuid.UUID) (int, error) {
	return len(m.filter(func(o *Order) bool { return o.CareSettingID == id })), nil
}

func (m *mockOrderRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.orders, id)
	return nil
}

type mockCareSettingRepo struct {
	items map[uuid.UUID]*CareSetting
}

func (m *mockCareSettingRepo) Create(_ context.Context, cs *CareSetting) error {
	cs.ID = uuid.New()
	cp := *cs
	m.items[cs.ID] = &cp
	return nil
}

func (m *mockCareSettingRepo) Update(_ context.Context, cs *CareSetting) error {
	cp := *cs
	m.items[cs.ID] = &cp
	return nil
}

func (m *mockCareSettingRepo) GetByID(_ context.Context, id uuid.UUID) (*CareSetting, error) {
	cs, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("care setting", id)
	}
	cp := *cs
	return &cp, nil
}

func (m *mockCareSettingRepo) GetByName(_ context.Context, name string) (*CareSetting, error) {
	for _, cs := range m.items {
		if strings.EqualFold(cs.Name, name) {
			cp := *cs
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("care setting", name)
}

func (m *mockCareSettingRepo) List(_ context.Context, includeRetired bool) ([]*CareSetting, error) {
	var out []*CareSetting
	for _, cs := range m.items {
		if includeRetired || !cs.Retired {
			cp := *cs
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockCareSettingRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.items, id)
	return nil
}

type mockOrderTypeRepo struct {
	items map[uuid.UUID]*OrderType
}

func (m *mockOrderTypeRepo) Create(_ context.Context, ot *OrderType) error {
	ot.ID = uuid.New()
	cp := *ot
	m.items[ot.ID] = &cp
	return nil
}

func (m *mockOrderTypeRepo) Update(_ context.Context, ot *OrderType) error {
	cp := *ot
	m.items[ot.ID] = &cp
	return nil
}

func (m *mockOrderTypeRepo) GetByID(_ context.Context, id uuid.UUID) (*OrderType, error) {
	ot, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("order type", id)
	}
	cp := *ot
	return &cp, nil
}

func (m *mockOrderTypeRepo) GetByName(_ context.Context, name string) (*OrderType, error) {
	for _, ot := range m.items {
		if strings.EqualFold(ot.Name, name) {
			cp := *ot
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("order type", name)
}

func (m *mockOrderTypeRepo) List(_ context.Context, includeRetired bool) ([]*OrderType, error) {
	var out []*OrderType
	for _, ot := range m.items {
		if includeRetired || !ot.Retired {
			cp := *ot
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *mockOrderTypeRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.items, id)
	return nil
}

type mockFrequencyRepo struct {
	items map[uuid.UUID]*OrderFrequency
}

func (m *mockFrequencyRepo) Create(_ context.Context, f *OrderFrequency) error {
	f.ID = uuid.New()
	cp := *f
	m.items[f.ID] = &cp
	return nil
}

func (m *mockFrequencyRepo) Update(_ context.Context, f *OrderFrequency) error {
	cp := *f
	m.items[f.ID] = &cp
	return nil
}

func (m *mockFrequencyRepo) GetByID(_ context.Context, id uuid.UUID) (*OrderFrequency, error) {
	f, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("order frequency", id)
	}
	cp := *f
	return &cp, nil
}

func (m *mockFrequencyRepo) GetByConcept(_ context.Context, conceptID uuid.UUID) (*OrderFrequency, error) {
	for _, f := range m.items {
		if f.ConceptID == conceptID {
			cp := *f
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("order frequency", conceptID)
}

func (m *mockFrequencyRepo) List(_ context.Context, includeRetired bool) ([]*OrderFrequency, error) {
	var out []*OrderFrequency
	for _, f := range m.items {
		if includeRetired || !f.Retired {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockFrequencyRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.items, id)
	return nil
}

// -- Mock Lookups --

type mockPatients map[uuid.UUID]bool

func (m mockPatients) GetPatient(_ context.Context, id uuid.UUID) (*patient.Patient, error) {
	if !m[id] {
		return nil, apperr.NotFound("patient", id)
	}
	return &patient.Patient{ID: id}, nil
}

type mockConcepts struct {
	concepts map[uuid.UUID]*concept.Concept
	drugs    map[uuid.UUID]*concept.Drug
}

func (m *mockConcepts) GetConcept(_ context.Context, id uuid.UUID) (*concept.Concept, error) {
	c, ok := m.concepts[id]
	if !ok {
		return nil, apperr.NotFound("concept", id)
	}
	return c, nil
}

func (m *mockConcepts) GetDrug(_ context.Context, id uuid.UUID) (*concept.Drug, error) {
	d, ok := m.drugs[id]
	if !ok {
		return nil, apperr.NotFound("drug", id)
	}
	return d, nil
}

func (m *mockConcepts) add(class string) uuid.UUID {
	id := uuid.New()
	m.concepts[id] = &concept.Concept{ID: id, Name: class + "-" + id.String()[:8], ClassName: class}
	return id
}

type mockProviders map[uuid.UUID]bool

func (m mockProviders) GetProvider(_ context.Context, id uuid.UUID) (*provider.Provider, error) {
	if !m[id] {
		return nil, apperr.NotFound("provider", id)
	}
	return &provider.Provider{ID: id}, nil
}

type mockEncounters map[uuid.UUID]*encounter.Encounter

func (m mockEncounters) GetEncounter(_ context.Context, id uuid.UUID) (*encounter.Encounter, error) {
	e, ok := m[id]
	if !ok {
		return nil, apperr.NotFound("encounter", id)
	}
	return e, nil
}

type counterNumbers struct {
	mu sync.Mutex
	n  int
}

func (c *counterNumbers) NewOrderNumber(context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return "ORD-" + strconv.Itoa(c.n), nil
}

// -- Fixture --

var fixedNow = base.AddDate(0, 0, 30)

type fixture struct {
	svc        *Service
	orders     *mockOrderRepo
	concepts   *mockConcepts
	encounters mockEncounters

	patient, otherPatient uuid.UUID
	encounter, provider   uuid.UUID
	outpatient, inpatient uuid.UUID
	drugType, testType    uuid.UUID
	radiologyType         uuid.UUID
	aspirin, aspirinDrug  uuid.UUID
	cbc, xray             uuid.UUID
	freq                  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		orders:       newMockOrderRepo(),
		concepts:     &mockConcepts{concepts: map[uuid.UUID]*concept.Concept{}, drugs: map[uuid.UUID]*concept.Drug{}},
		encounters:   mockEncounters{},
		patient:      uuid.New(),
		otherPatient: uuid.New(),
		encounter:    uuid.New(),
		provider:     uuid.New(),
	}
	f.encounters[f.encounter] = &encounter.Encounter{ID: f.encounter, PatientID: f.patient}
	f.aspirin = f.concepts.add(concept.ClassDrug)
	f.aspirinDrug = uuid.New()
	f.concepts.drugs[f.aspirinDrug] = &concept.Drug{ID: f.aspirinDrug, ConceptID: f.aspirin, Name: "Aspirin 81mg"}
	f.cbc = f.concepts.add(concept.ClassTest)
	f.xray = f.concepts.add("Radiology")
	freqConcept := f.concepts.add(concept.ClassFrequency)

	f.svc = NewService(
		f.orders,
		&mockCareSettingRepo{items: map[uuid.UUID]*CareSetting{}},
		&mockOrderTypeRepo{items: map[uuid.UUID]*OrderType{}},
		&mockFrequencyRepo{items: map[uuid.UUID]*OrderFrequency{}},
		Lookups{
			Patients:   mockPatients{f.patient: true, f.otherPatient: true},
			Concepts:   f.concepts,
			Providers:  mockProviders{f.provider: true},
			Encounters: f.encounters,
		},
		&counterNumbers{},
	)
	f.svc.now = func() time.Time { return fixedNow }

	ctx := context.Background()
	out, err := f.svc.SaveCareSetting(ctx, &CareSetting{Name: "Outpatient", Type: CareSettingOutpatient})
	require.NoError(t, err)
	f.outpatient = out.ID
	in, err := f.svc.SaveCareSetting(ctx, &CareSetting{Name: "Inpatient", Type: CareSettingInpatient})
	require.NoError(t, err)
	f.inpatient = in.ID

	dt, err := f.svc.SaveOrderType(ctx, &OrderType{Name: "Drug Order", Kind: KindDrug, ConceptClasses: []string{concept.ClassDrug}})
	require.NoError(t, err)
	f.drugType = dt.ID
	tt, err := f.svc.SaveOrderType(ctx, &OrderType{Name: "Test Order", Kind: KindTest, ConceptClasses: []string{concept.ClassTest}})
	require.NoError(t, err)
	f.testType = tt.ID
	rt, err := f.svc.SaveOrderType(ctx, &OrderType{Name: "Radiology Order", Kind: KindTest,
		ParentID: &f.testType, ConceptClasses: []string{"Radiology"}})
	require.NoError(t, err)
	f.radiologyType = rt.ID

	fr, err := f.svc.SaveOrderFrequency(ctx, &OrderFrequency{ConceptID: freqConcept, FrequencyPerDay: 2})
	require.NoError(t, err)
	f.freq = fr.ID
	return f
}

func (f *fixture) drugOrder(activated time.Time) *Order {
	drug, freq := f.aspirinDrug, f.freq
	refills := 0
	return &Order{
		PatientID: f.patient, EncounterID: f.encounter, OrdererID: f.provider,
		CareSettingID: f.outpatient, DateActivated: activated,
		Drug: &DrugDetails{
			DrugID: &drug, DosingType: DosingSimple,
			Dose: decimal.NewNullDecimal(decimal.NewFromInt(81)), DoseUnits: "mg",
			Route: "oral", FrequencyID: &freq,
			Quantity: decimal.NewNullDecimal(decimal.NewFromInt(30)), QuantityUnits: "tablet", NumRefills: &refills,
		},
	}
}

func (f *fixture) testOrder(conceptID uuid.UUID, activated time.Time) *Order {
	return &Order{
		PatientID: f.patient, EncounterID: f.encounter, OrdererID: f.provider,
		CareSettingID: f.outpatient, ConceptID: conceptID, DateActivated: activated,
		Test: &TestDetails{Specimen: "blood"},
	}
}

func (f *fixture) save(t *testing.T, o *Order) *Order {
	t.Helper()
	saved, err := f.svc.SaveOrder(context.Background(), o, nil)
	require.NoError(t, err)
	return saved
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) *Order {
	t.Helper()
	o, err := f.svc.GetOrder(context.Background(), id)
	require.NoError(t, err)
	return o
}

func (f *fixture) discontinueRequest() DiscontinueRequest {
	return DiscontinueRequest{ReasonNonCoded: "resolved", OrdererID: f.provider, EncounterID: f.encounter}
}

// -- SaveOrder --

func TestSaveOrder_NewDrugOrder(t *testing.T) {
	f := newFixture(t)
	o := f.save(t, f.drugOrder(base))

	assert.Equal(t, "ORD-1", o.OrderNumber)
	assert.Equal(t, ActionNew, o.Action)
	assert.Equal(t, UrgencyRoutine, o.Urgency)
	assert.Equal(t, f.aspirin, o.ConceptID, "concept taken from the drug")
	assert.Equal(t, f.drugType, o.OrderTypeID, "type inferred from concept class")
	assert.NotEmpty(t, o.Creator)
}

func TestSaveOrder_TypeFromSubclass(t *testing.T) {
	f := newFixture(t)
	o := f.save(t, f.testOrder(f.xray, base))
	assert.Equal(t, f.radiologyType, o.OrderTypeID)
}

func TestSaveOrder_CannotEditExisting(t *testing.T) {
	f := newFixture(t)
	o := f.save(t, f.drugOrder(base))
	o.Instructions = "changed"

	_, err := f.svc.SaveOrder(context.Background(), o, nil)
	require.ErrorIs(t, err, apperr.ErrAPI)
	assert.Contains(t, err.Error(), "Order.cannot.edit.existing")
}

func TestSaveOrder_Validation(t *testing.T) {
	f := newFixture(t)
	otherEncounter := uuid.New()
	f.encounters[otherEncounter] = &encounter.Encounter{ID: otherEncounter, PatientID: f.otherPatient}

	tests := []struct {
		name   string
		mutate func(o *Order)
	}{
		{"future activation", func(o *Order) { o.DateActivated = fixedNow.Add(time.Hour) }},
		{"missing patient", func(o *Order) { o.PatientID = uuid.Nil }},
		{"missing orderer", func(o *Order) { o.OrdererID = uuid.Nil }},
		{"unknown orderer", func(o *Order) { o.OrdererID = uuid.New() }},
		{"missing care setting", func(o *Order) { o.CareSettingID = uuid.Nil }},
		{"missing encounter", func(o *Order) { o.EncounterID = uuid.Nil }},
		{"encounter of another patient", func(o *Order) { o.EncounterID = otherEncounter }},
		{"expiry before activation", func(o *Order) { e := base.Add(-time.Hour); o.AutoExpireDate = &e }},
		{"scheduled without date", func(o *Order) { o.Urgency = UrgencyOnScheduledDate }},
		{"missing dose", func(o *Order) { o.Drug.Dose = decimal.NullDecimal{} }},
		{"missing outpatient quantity", func(o *Order) { o.Drug.Quantity = decimal.NullDecimal{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := f.drugOrder(base)
			tt.mutate(o)
			_, err := f.svc.SaveOrder(context.Background(), o, nil)
			assert.ErrorIs(t, err, apperr.ErrValidation)
		})
	}
}

func TestSaveOrder_OrderContextDefaults(t *testing.T) {
	f := newFixture(t)
	o := f.testOrder(f.cbc, base)
	o.CareSettingID = uuid.Nil

	saved, err := f.svc.SaveOrder(context.Background(), o, &OrderContext{CareSettingID: &f.inpatient})
	require.NoError(t, err)
	assert.Equal(t, f.inpatient, saved.CareSettingID)
}

func TestSaveOrder_TypeCannotBeDetermined(t *testing.T) {
	f := newFixture(t)
	misc := f.concepts.add(concept.ClassMisc)
	o := &Order{PatientID: f.patient, EncounterID: f.encounter, OrdererID: f.provider,
		CareSettingID: f.outpatient, ConceptID: misc}

	_, err := f.svc.SaveOrder(context.Background(), o, nil)
	require.ErrorIs(t, err, apperr.ErrAPI)
	assert.Contains(t, err.Error(), "Order.type.cannot.determine")
}

func TestSaveOrder_TypeKindMismatch(t *testing.T) {
	f := newFixture(t)
	o := f.testOrder(f.cbc, base)
	o.OrderTypeID = f.drugType

	_, err := f.svc.SaveOrder(context.Background(), o, nil)
	require.ErrorIs(t, err, apperr.ErrAPI)
}

func TestSaveOrder_DuplicateActiveOrder(t *testing.T) {
	f := newFixture(t)
	f.save(t, f.drugOrder(base))

	_, err := f.svc.SaveOrder(context.Background(), f.drugOrder(base.Add(time.Hour)), nil)
	require.ErrorIs(t, err, apperr.ErrAPI)
	assert.Contains(t, err.Error(), "Order.cannot.have.more.than.one")

	// another care setting is a different context
	inpatient := f.drugOrder(base.Add(time.Hour))
	inpatient.CareSettingID = f.inpatient
	f.save(t, inpatient)
}

func TestSaveOrder_ComputesAutoExpire(t *testing.T) {
	f := newFixture(t)
	o := f.drugOrder(base)
	days := 7
	o.Drug.Duration, o.Drug.DurationUnits = &days, DurationDays

	saved := f.save(t, o)
	require.NotNil(t, saved.AutoExpireDate)
	assert.Equal(t, base.AddDate(0, 0, 7).Add(-time.Second), *saved.AutoExpireDate)
}

// -- Revision and discontinuation --

func TestReviseOrder_StopsPrevious(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orig := f.save(t, f.drugOrder(base))

	rev := orig.CloneForRevision()
	rev.DateActivated = base.Add(24 * time.Hour)
	rev.Drug.Dose = decimal.NewNullDecimal(decimal.NewFromInt(162))
	rev = f.save(t, rev)

	prev := f.reload(t, orig.ID)
	require.NotNil(t, prev.DateStopped)
	assert.Equal(t, rev.DateActivated.Add(-time.Second), *prev.DateStopped)

	got, err := f.svc.GetRevisionOrder(ctx, orig.ID)
	require.NoError(t, err)
	assert.Equal(t, rev.ID, got.ID)

	active, err := f.svc.GetActiveOrders(ctx, f.patient, nil, nil, nil)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, rev.ID, active[0].ID)

	// as of the first day only the original was active
	firstDay := base.Add(time.Hour)
	active, err = f.svc.GetActiveOrders(ctx, f.patient, nil, nil, &firstDay)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, orig.ID, active[0].ID)
}

func TestReviseOrder_Rules(t *testing.T) {
	f := newFixture(t)
	orig := f.save(t, f.drugOrder(base))

	noPrev := f.drugOrder(base.Add(time.Hour))
	noPrev.Action = ActionRevise
	_, err := f.svc.SaveOrder(context.Background(), noPrev, nil)
	assert.ErrorIs(t, err, apperr.ErrAPI)

	otherPatient := orig.CloneForRevision()
	otherPatient.PatientID = f.otherPatient
	otherEncounter := uuid.New()
	f.encounters[otherEncounter] = &encounter.Encounter{ID: otherEncounter, PatientID: f.otherPatient}
	otherPatient.EncounterID = otherEncounter
	_, err = f.svc.SaveOrder(context.Background(), otherPatient, nil)
	require.ErrorIs(t, err, apperr.ErrAPI)
	assert.Contains(t, err.Error(), "Order.cannot.change.patient")

	otherSetting := orig.CloneForRevision()
	otherSetting.CareSettingID = f.inpatient
	_, err = f.svc.SaveOrder(context.Background(), otherSetting, nil)
	require.ErrorIs(t, err, apperr.ErrAPI)
	assert.Contains(t, err.Error(), "Order.cannot.change.careSetting")
}

func TestDiscontinueOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orig := f.save(t, f.drugOrder(base))

	disc, err := f.svc.DiscontinueOrder(ctx, orig.ID, f.discontinueRequest())
	require.NoError(t, err)
	assert.Equal(t, ActionDiscontinue, disc.Action)
	assert.Equal(t, fixedNow, disc.DateActivated)
	assert.Equal(t, "resolved", disc.OrderReasonNonCoded)
	assert.False(t, disc.IsActive(fixedNow))

	prev := f.reload(t, orig.ID)
	require.NotNil(t, prev.DateStopped)
	assert.Equal(t, fixedNow.Add(-time.Second), *prev.DateStopped)
	assert.True(t, prev.IsDiscontinued(fixedNow))

	got, err := f.svc.GetDiscontinuationOrder(ctx, orig.ID)
	require.NoError(t, err)
	assert.Equal(t, disc.ID, got.ID)

	_, err = f.svc.DiscontinueOrder(ctx, orig.ID, f.discontinueRequest())
	require.ErrorIs(t, err, apperr.ErrAPI)
	assert.Contains(t, err.Error(), "Order.cannot.discontinue.inactive")

	_, err = f.svc.DiscontinueOrder(ctx, disc.ID, f.discontinueRequest())
	assert.ErrorIs(t, err, apperr.ErrAPI)
}

func TestDiscontinueOrder_Dates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orig := f.save(t, f.drugOrder(base))

	req := f.discontinueRequest()
	future := fixedNow.Add(time.Hour)
	req.DiscontinueDate = &future
	_, err := f.svc.DiscontinueOrder(ctx, orig.ID, req)
	assert.ErrorIs(t, err, apperr.ErrAPI)

	beforeStart := base.Add(-time.Hour)
	req.DiscontinueDate = &beforeStart
	_, err = f.svc.DiscontinueOrder(ctx, orig.ID, req)
	assert.ErrorIs(t, err, apperr.ErrAPI)

	past := base.Add(48 * time.Hour)
	req.DiscontinueDate = &past
	disc, err := f.svc.DiscontinueOrder(ctx, orig.ID, req)
	require.NoError(t, err)
	assert.Equal(t, past, disc.DateActivated)
}

func TestDiscontinueWithoutPreviousOrder_FindsActiveOrder(t *testing.T) {
	f := newFixture(t)
	orig := f.save(t, f.testOrder(f.cbc, base))

	d := f.testOrder(f.cbc, time.Time{})
	d.Action = ActionDiscontinue
	d = f.save(t, d)
	require.NotNil(t, d.PreviousOrderID)
	assert.Equal(t, orig.ID, *d.PreviousOrderID)
}

func TestVoidDiscontinuation_ReopensPrevious(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orig := f.save(t, f.drugOrder(base))
	disc, err := f.svc.DiscontinueOrder(ctx, orig.ID, f.discontinueRequest())
	require.NoError(t, err)

	_, err = f.svc.VoidOrder(ctx, disc.ID, "")
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	voided, err := f.svc.VoidOrder(ctx, disc.ID, "wrong patient chart")
	require.NoError(t, err)
	assert.True(t, voided.Voided)
	assert.Nil(t, f.reload(t, orig.ID).DateStopped)

	_, err = f.svc.UnvoidOrder(ctx, disc.ID)
	require.NoError(t, err)
	prev := f.reload(t, orig.ID)
	require.NotNil(t, prev.DateStopped)
	assert.Equal(t, disc.DateActivated.Add(-time.Second), *prev.DateStopped)
}

func TestUnvoidDiscontinuation_FailsWhenPreviousReplaced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orig := f.save(t, f.drugOrder(base))
	disc, err := f.svc.DiscontinueOrder(ctx, orig.ID, f.discontinueRequest())
	require.NoError(t, err)
	_, err = f.svc.VoidOrder(ctx, disc.ID, "entered in error")
	require.NoError(t, err)

	rev := f.reload(t, orig.ID).CloneForRevision()
	f.save(t, rev)

	_, err = f.svc.UnvoidOrder(ctx, disc.ID)
	require.ErrorIs(t, err, apperr.ErrAPI)
	assert.Contains(t, err.Error(), "Order.action.cannot.unvoid")
}

func TestVoidOrder_NewOrderReopensNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orig := f.save(t, f.drugOrder(base))

	disc, err := f.svc.DiscontinueOrder(ctx, orig.ID, f.discontinueRequest())
	require.NoError(t, err)

	// a NEW order never reopens anything
	other := f.save(t, f.testOrder(f.cbc, base))
	_, err = f.svc.VoidOrder(ctx, other.ID, "duplicate")
	require.NoError(t, err)
	assert.NotNil(t, f.reload(t, orig.ID).DateStopped)

	_, err = f.svc.VoidOrder(ctx, disc.ID, "mistake")
	require.NoError(t, err)
	assert.Nil(t, f.reload(t, orig.ID).DateStopped)
}

// -- Renewal --

func TestRenewOrder(t *testing.T) {
	f := newFixture(t)
	o := f.drugOrder(base)
	days := 7
	o.Drug.Duration, o.Drug.DurationUnits = &days, DurationDays
	expired := f.save(t, o)
	require.True(t, expired.IsExpired(fixedNow))

	renew := f.drugOrder(time.Time{})
	renew.Action = ActionRenew
	renew.PreviousOrderID = &expired.ID
	renewed := f.save(t, renew)
	assert.True(t, renewed.IsActive(fixedNow))
	assert.Nil(t, f.reload(t, expired.ID).DateStopped)
}

func TestRenewOrder_Rules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orig := f.save(t, f.drugOrder(base))
	_, err := f.svc.DiscontinueOrder(ctx, orig.ID, f.discontinueRequest())
	require.NoError(t, err)

	renew := f.drugOrder(time.Time{})
	renew.Action = ActionRenew
	renew.PreviousOrderID = &orig.ID
	_, err = f.svc.SaveOrder(ctx, renew, nil)
	require.ErrorIs(t, err, apperr.ErrAPI)
	assert.Contains(t, err.Error(), "Order.cannot.renew.discontinued")

	testOrder := f.save(t, f.testOrder(f.cbc, base))
	renewTest := f.testOrder(f.cbc, time.Time{})
	renewTest.Action = ActionRenew
	renewTest.PreviousOrderID = &testOrder.ID
	_, err = f.svc.SaveOrder(ctx, renewTest, nil)
	require.ErrorIs(t, err, apperr.ErrAPI)
	assert.Contains(t, err.Error(), "Order.renew.drug.mismatch")
}

// -- Queries --

func TestGetActiveOrders_Filters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	drug := f.save(t, f.drugOrder(base))
	cbc := f.save(t, f.testOrder(f.cbc, base.Add(time.Hour)))
	xray := f.save(t, f.testOrder(f.xray, base.Add(2*time.Hour)))

	all, err := f.svc.GetActiveOrders(ctx, f.patient, nil, nil, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []uuid.UUID{drug.ID, cbc.ID, xray.ID}, []uuid.UUID{all[0].ID, all[1].ID, all[2].ID})

	tests, err := f.svc.GetActiveOrders(ctx, f.patient, &f.testType, nil, nil)
	require.NoError(t, err)
	assert.Len(t, tests, 2, "test type includes the radiology subtype")

	radiology, err := f.svc.GetActiveOrders(ctx, f.patient, &f.radiologyType, nil, nil)
	require.NoError(t, err)
	require.Len(t, radiology, 1)
	assert.Equal(t, xray.ID, radiology[0].ID)

	inpatient, err := f.svc.GetActiveOrders(ctx, f.patient, nil, &f.inpatient, nil)
	require.NoError(t, err)
	assert.Empty(t, inpatient)

	found, err := f.svc.GetActiveOrderFor(ctx, f.patient, drug.Orderable(), f.outpatient)
	require.NoError(t, err)
	assert.Equal(t, drug.ID, found.ID)

	_, err = f.svc.GetActiveOrderFor(ctx, f.otherPatient, drug.Orderable(), f.outpatient)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestGetOrderHistoryByConcept_NewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.save(t, f.testOrder(f.cbc, base))
	_, err := f.svc.DiscontinueOrder(ctx, first.ID, f.discontinueRequest())
	require.NoError(t, err)
	second := f.save(t, f.testOrder(f.cbc, fixedNow))

	history, err := f.svc.GetOrderHistoryByConcept(ctx, f.patient, f.cbc)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, first.ID, history[2].ID)

	byNumber, err := f.svc.GetOrderByOrderNumber(ctx, second.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, second.ID, byNumber.ID)
}

func TestUpdateOrderFulfillerStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.save(t, f.testOrder(f.cbc, base))

	_, err := f.svc.UpdateOrderFulfillerStatus(ctx, o.ID, "SHIPPED", "")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	updated, err := f.svc.UpdateOrderFulfillerStatus(ctx, o.ID, FulfillerInProgress, "sample received")
	require.NoError(t, err)
	assert.Equal(t, FulfillerInProgress, updated.FulfillerStatus)
	got := f.reload(t, o.ID)
	assert.Equal(t, "sample received", got.FulfillerComment)
}

func TestPurgeOrder_ReferencedByLaterOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.save(t, f.testOrder(f.cbc, base))
	_, err := f.svc.DiscontinueOrder(ctx, o.ID, f.discontinueRequest())
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.PurgeOrder(ctx, o.ID), apperr.ErrAPI)
}

// -- Patient and encounter cascades --

func TestNotifyPatientVoided(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.save(t, f.drugOrder(base))
	b := f.save(t, f.testOrder(f.cbc, base))
	_, err := f.svc.VoidOrder(ctx, b.ID, "duplicate")
	require.NoError(t, err)

	require.NoError(t, f.svc.NotifyPatientVoided(ctx, f.patient, "patient voided"))
	assert.True(t, f.reload(t, a.ID).VoidedWith("patient voided"))

	require.NoError(t, f.svc.NotifyPatientUnvoided(ctx, f.patient, "patient voided"))
	assert.False(t, f.reload(t, a.ID).Voided)
	assert.True(t, f.reload(t, b.ID).VoidedWith("duplicate"))
}

func TestNotifyPatientVoided_IncludesInactiveOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orig := f.save(t, f.drugOrder(base))
	disc, err := f.svc.DiscontinueOrder(ctx, orig.ID, f.discontinueRequest())
	require.NoError(t, err)
	require.False(t, f.reload(t, orig.ID).IsActive(fixedNow))

	require.NoError(t, f.svc.NotifyPatientVoided(ctx, f.patient, "patient voided"))
	assert.True(t, f.reload(t, orig.ID).VoidedWith("patient voided"))
	assert.True(t, f.reload(t, disc.ID).VoidedWith("patient voided"))

	all, err := f.svc.GetAllOrdersByPatient(ctx, f.patient, false)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestEncounterOrderCascade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orig := f.save(t, f.drugOrder(base))

	later := uuid.New()
	f.encounters[later] = &encounter.Encounter{ID: later, PatientID: f.patient}
	req := f.discontinueRequest()
	req.EncounterID = later
	_, err := f.svc.DiscontinueOrder(ctx, orig.ID, req)
	require.NoError(t, err)

	require.NoError(t, f.svc.VoidEncounterOrders(ctx, later, "encounter voided"))
	assert.Nil(t, f.reload(t, orig.ID).DateStopped, "voiding the discontinuation reopens the order")

	require.NoError(t, f.svc.UnvoidEncounterOrders(ctx, later, "encounter voided"))
	assert.NotNil(t, f.reload(t, orig.ID).DateStopped)
}

// -- Reference data --

func TestSaveOrderType_Rules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SaveOrderType(ctx, &OrderType{Name: "drug order", Kind: KindDrug})
	assert.ErrorIs(t, err, apperr.ErrDuplicate)

	_, err = f.svc.SaveOrderType(ctx, &OrderType{Name: "Lab", Kind: "lab"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	ct, err := f.svc.SaveOrderType(ctx, &OrderType{Name: "CT Order", Kind: KindTest, ParentID: &f.radiologyType})
	require.NoError(t, err)

	testType, err := f.svc.GetOrderType(ctx, f.testType)
	require.NoError(t, err)
	testType.ParentID = &ct.ID
	_, err = f.svc.SaveOrderType(ctx, testType)
	require.ErrorIs(t, err, apperr.ErrAPI)

	direct, err := f.svc.GetSubtypes(ctx, f.testType, false)
	require.NoError(t, err)
	assert.Len(t, direct, 1)
	all, err := f.svc.GetSubtypes(ctx, f.testType, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestPurgeOrderType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.save(t, f.drugOrder(base))

	assert.ErrorIs(t, f.svc.PurgeOrderType(ctx, f.drugType), apperr.ErrAPI)
	assert.ErrorIs(t, f.svc.PurgeOrderType(ctx, f.testType), apperr.ErrAPI, "has subtypes")
	require.NoError(t, f.svc.PurgeOrderType(ctx, f.radiologyType))

	_, err := f.svc.GetOrderType(ctx, f.radiologyType)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestOrderTypeRetireLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	retired, err := f.svc.RetireOrderType(ctx, f.radiologyType, "merged into test order")
	require.NoError(t, err)
	assert.True(t, retired.Retired)

	active, err := f.svc.GetOrderTypes(ctx, false)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	back, err := f.svc.UnretireOrderType(ctx, f.radiologyType)
	require.NoError(t, err)
	assert.False(t, back.Retired)
}

func TestOrderFrequency_Rules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	existing, err := f.svc.GetOrderFrequency(ctx, f.freq)
	require.NoError(t, err)
	_, err = f.svc.SaveOrderFrequency(ctx, &OrderFrequency{ConceptID: existing.ConceptID, FrequencyPerDay: 3})
	assert.ErrorIs(t, err, apperr.ErrDuplicate)

	_, err = f.svc.SaveOrderFrequency(ctx, &OrderFrequency{ConceptID: uuid.New()})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	f.save(t, f.drugOrder(base))
	assert.ErrorIs(t, f.svc.PurgeOrderFrequency(ctx, f.freq), apperr.ErrAPI)

	retired, err := f.svc.RetireOrderFrequency(ctx, f.freq, "replaced")
	require.NoError(t, err)
	assert.True(t, retired.Retired)
	list, err := f.svc.GetOrderFrequencies(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, list)
	_, err = f.svc.UnretireOrderFrequency(ctx, f.freq)
	require.NoError(t, err)
}

func TestCareSetting_Rules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SaveCareSetting(ctx, &CareSetting{Name: "OUTPATIENT", Type: CareSettingOutpatient})
	assert.ErrorIs(t, err, apperr.ErrDuplicate)
	_, err = f.svc.SaveCareSetting(ctx, &CareSetting{Name: "Emergency", Type: "ER"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	cs, err := f.svc.GetCareSettingByName(ctx, "inpatient")
	require.NoError(t, err)
	assert.Equal(t, f.inpatient, cs.ID)

	f.save(t, f.testOrder(f.cbc, base))
	assert.ErrorIs(t, f.svc.PurgeCareSetting(ctx, f.outpatient), apperr.ErrAPI)
	require.NoError(t, f.svc.PurgeCareSetting(ctx, f.inpatient))
}
