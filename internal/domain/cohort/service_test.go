package cohort

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmrs/openmrs-api/internal/domain/patient"
	"github.com/openmrs/openmrs-api/internal/platform/apperr"
)

// -- Mocks --

type mockRepo struct {
	cohorts map[uuid.UUID]*Cohort
}

func newMockRepo() *mockRepo {
	return &mockRepo{cohorts: map[uuid.UUID]*Cohort{}}
}

func cloneCohort(c *Cohort) *Cohort {
	cp := *c
	cp.Memberships = make([]*CohortMembership, len(c.Memberships))
	for i, m := range c.Memberships {
		mc := *m
		cp.Memberships[i] = &mc
	}
	return &cp
}

func (r *mockRepo) store(c *Cohort) {
	for _, m := range c.Memberships {
		if m.ID == uuid.Nil {
			m.ID = uuid.New()
		}
		m.CohortID = c.ID
	}
	r.cohorts[c.ID] = cloneCohort(c)
}

func (r *mockRepo) Create(_ context.Context, c *Cohort) error {
	c.ID = uuid.New()
	r.store(c)
	return nil
}

func (r *mockRepo) Update(_ context.Context, c *Cohort) error {
	if _, ok := r.cohorts[c.ID]; !ok {
		return apperr.NotFound("cohort", c.ID)
	}
	r.store(c)
	return nil
}

func (r *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Cohort, error) {
	c, ok := r.cohorts[id]
	if !ok {
		return nil, apperr.NotFound("cohort", id)
	}
	return cloneCohort(c), nil
}

func (r *mockRepo) GetByName(_ context.Context, name string) (*Cohort, error) {
	for _, c := range r.cohorts {
		if strings.EqualFold(c.Name, name) {
			return cloneCohort(c), nil
		}
	}
	return nil, apperr.NotFound("cohort", name)
}

func (r *mockRepo) List(_ context.Context, includeVoided bool) ([]*Cohort, error) {
	var out []*Cohort
	for _, c := range r.cohorts {
		if includeVoided || !c.Voided {
			out = append(out, cloneCohort(c))
		}
	}
	return out, nil
}

func (r *mockRepo) SearchByName(_ context.Context, fragment string) ([]*Cohort, error) {
	var out []*Cohort
	for _, c := range r.cohorts {
		if !c.Voided && strings.Contains(strings.ToLower(c.Name), strings.ToLower(fragment)) {
			out = append(out, cloneCohort(c))
		}
	}
	return out, nil
}

func (r *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(r.cohorts, id)
	return nil
}

func (r *mockRepo) GetMembership(_ context.Context, id uuid.UUID) (*CohortMembership, error) {
	for _, c := range r.cohorts {
		for _, m := range c.Memberships {
			if m.ID == id {
				cp := *m
				return &cp, nil
			}
		}
	}
	return nil, apperr.NotFound("cohort membership", id)
}

func (r *mockRepo) UpdateMembership(_ context.Context, m *CohortMembership) error {
	for _, c := range r.cohorts {
		for i, cur := range c.Memberships {
			if cur.ID == m.ID {
				cp := *m
				c.Memberships[i] = &cp
				return nil
			}
		}
	}
	return apperr.NotFound("cohort membership", m.ID)
}

func (r *mockRepo) ListMembershipsByPatient(_ context.Context, patientID uuid.UUID, includeVoided bool) ([]*CohortMembership, error) {
	var out []*CohortMembership
	for _, c := range r.cohorts {
		for _, m := range c.Memberships {
			if m.PatientID == patientID && (includeVoided || !m.Voided) {
				cp := *m
				out = append(out, &cp)
			}
		}
	}
	return out, nil
}

type mockPatients map[uuid.UUID]bool

func (m mockPatients) GetPatient(_ context.Context, id uuid.UUID) (*patient.Patient, error) {
	if !m[id] {
		return nil, apperr.NotFound("patient", id)
	}
	return &patient.Patient{ID: id}, nil
}

type mockProps map[string]string

func (m mockProps) GetGlobalProperty(_ context.Context, name string) (string, error) {
	return m[name], nil
}

type fixture struct {
	svc    *Service
	repo   *mockRepo
	props  mockProps
	p1, p2 uuid.UUID
	p3     uuid.UUID
	now    time.Time
}

func newFixture() *fixture {
	f := &fixture{repo: newMockRepo(), props: mockProps{}, p1: uuid.New(), p2: uuid.New(), p3: uuid.New(),
		now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	f.svc = NewService(f.repo, mockPatients{f.p1: true, f.p2: true, f.p3: true}, f.props)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) cohort(t *testing.T, name string, patients ...uuid.UUID) *Cohort {
	t.Helper()
	c := &Cohort{Name: name}
	for _, p := range patients {
		c.Memberships = append(c.Memberships, &CohortMembership{PatientID: p, StartDate: day})
	}
	saved, err := f.svc.SaveCohort(context.Background(), c)
	require.NoError(t, err)
	return saved
}

// -- Tests --

func TestSaveCohort(t *testing.T) {
	f := newFixture()
	c := f.cohort(t, "  HIV program  ", f.p1, f.p2)
	assert.Equal(t, "HIV program", c.Name)
	assert.NotEmpty(t, c.Memberships[0].Creator)

	got, err := f.svc.GetCohortByName(context.Background(), "hiv program")
	require.NoError(t, err)
	assert.Len(t, got.MemberIDs(f.now), 2)
}

func TestSaveCohort_Validation(t *testing.T) {
	f := newFixture()
	f.props[PropMaxMembers] = "1"
	end := day.Add(-time.Hour)
	tests := []struct {
		name   string
		cohort *Cohort
	}{
		{"missing name", &Cohort{}},
		{"unknown patient", &Cohort{Name: "x", Memberships: []*CohortMembership{{PatientID: uuid.New()}}}},
		{"missing patient", &Cohort{Name: "x", Memberships: []*CohortMembership{{}}}},
		{"end before start", &Cohort{Name: "x", Memberships: []*CohortMembership{{PatientID: f.p1, StartDate: day, EndDate: &end}}}},
		{"too many members", &Cohort{Name: "x", Memberships: []*CohortMembership{{PatientID: f.p1}, {PatientID: f.p2}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SaveCohort(context.Background(), tt.cohort)
			assert.ErrorIs(t, err, apperr.ErrValidation)
		})
	}
}

func TestSaveCohort_BadMaxMembersProperty(t *testing.T) {
	f := newFixture()
	f.props[PropMaxMembers] = "lots"
	_, err := f.svc.SaveCohort(context.Background(), &Cohort{Name: "x"})
	assert.ErrorIs(t, err, apperr.ErrAPI)
}

func TestAddAndRemovePatient(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := f.cohort(t, "Diabetics", f.p1)

	again, err := f.svc.AddPatientToCohort(ctx, c.ID, f.p1)
	require.NoError(t, err)
	assert.Len(t, again.Memberships, 1, "already a member")

	added, err := f.svc.AddPatientToCohort(ctx, c.ID, f.p2)
	require.NoError(t, err)
	assert.Len(t, added.Memberships, 2)
	assert.Equal(t, f.now, added.Memberships[1].StartDate)

	_, err = f.svc.AddPatientToCohort(ctx, c.ID, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrValidation)

	removed, err := f.svc.RemovePatientFromCohort(ctx, c.ID, f.p1)
	require.NoError(t, err)
	assert.True(t, removed.Memberships[0].VoidedWith(ReasonRemoved))
	assert.Nil(t, removed.ActiveMembership(f.p1, f.now))

	// re-adding starts a fresh membership
	back, err := f.svc.AddPatientToCohort(ctx, c.ID, f.p1)
	require.NoError(t, err)
	assert.Len(t, back.Memberships, 3)
	assert.NotNil(t, back.ActiveMembership(f.p1, f.now))
}

func TestEndCohortMembership(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := f.cohort(t, "Pregnant", f.p1)
	mID := c.Memberships[0].ID

	_, err := f.svc.EndCohortMembership(ctx, mID, ptr(day.Add(-time.Hour)))
	assert.ErrorIs(t, err, apperr.ErrValidation)

	end := day.AddDate(0, 1, 0)
	m, err := f.svc.EndCohortMembership(ctx, mID, &end)
	require.NoError(t, err)
	assert.Equal(t, end, *m.EndDate)

	active, err := f.svc.GetCohortMemberships(ctx, f.p1, &f.now, false)
	require.NoError(t, err)
	assert.Empty(t, active)

	during := day.AddDate(0, 0, 5)
	active, err = f.svc.GetCohortMemberships(ctx, f.p1, &during, false)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestGetCohortsContainingPatient(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.cohort(t, "A", f.p1, f.p2)
	b := f.cohort(t, "B", f.p1)
	f.cohort(t, "C", f.p3)

	list, err := f.svc.GetCohortsContainingPatientID(ctx, f.p1, false, nil)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = f.svc.VoidCohort(ctx, b.ID, "obsolete")
	require.NoError(t, err)
	list, err = f.svc.GetCohortsContainingPatientID(ctx, f.p1, false, &f.now)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, a.ID, list[0].ID)

	list, err = f.svc.GetCohortsContainingPatientID(ctx, f.p1, true, nil)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	before := day.Add(-time.Hour)
	list, err = f.svc.GetCohortsContainingPatientID(ctx, f.p1, false, &before)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestGetCohorts_Search(t *testing.T) {
	f := newFixture()
	f.cohort(t, "Adult HIV")
	f.cohort(t, "Pediatric HIV")
	f.cohort(t, "TB")

	list, err := f.svc.GetCohorts(context.Background(), "hiv")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestVoidUnvoidCohort(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := f.cohort(t, "Study", f.p1, f.p2)
	_, err := f.svc.RemovePatientFromCohort(ctx, c.ID, f.p2)
	require.NoError(t, err)

	_, err = f.svc.VoidCohort(ctx, c.ID, " ")
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	voided, err := f.svc.VoidCohort(ctx, c.ID, "study closed")
	require.NoError(t, err)
	assert.True(t, voided.Voided)
	assert.True(t, voided.Memberships[0].VoidedWith("study closed"))

	all, err := f.svc.GetAllCohorts(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, all)

	back, err := f.svc.UnvoidCohort(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, back.Voided)
	assert.False(t, back.Memberships[0].Voided)
	assert.True(t, back.Memberships[1].VoidedWith(ReasonRemoved), "removed member stays removed")

	require.NoError(t, f.svc.PurgeCohort(ctx, c.ID))
	_, err = f.svc.GetCohort(ctx, c.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestPatientVoidListener(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.cohort(t, "A", f.p1, f.p2)
	b := f.cohort(t, "B", f.p1)

	require.NoError(t, f.svc.NotifyPatientVoided(ctx, f.p1, "duplicate patient"))
	gotA, err := f.svc.GetCohort(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, gotA.Contains(f.p1))
	assert.True(t, gotA.Contains(f.p2))

	require.NoError(t, f.svc.NotifyPatientUnvoided(ctx, f.p1, "duplicate patient"))
	gotB, err := f.svc.GetCohort(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, gotB.Contains(f.p1))
}
