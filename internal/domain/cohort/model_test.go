package cohort

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

func member(patientID uuid.UUID, start time.Time, end *time.Time) *CohortMembership {
	return &CohortMembership{ID: uuid.New(), PatientID: patientID, StartDate: start, EndDate: end}
}

func ptr(t time.Time) *time.Time { return &t }

func TestMembership_IsActive(t *testing.T) {
	p := uuid.New()
	voided := member(p, day, nil)
	voided.Voided = true

	tests := []struct {
		name string
		m    *CohortMembership
		at   time.Time
		want bool
	}{
		{"open ended", member(p, day, nil), day.AddDate(1, 0, 0), true},
		{"on start date", member(p, day, nil), day, true},
		{"before start", member(p, day, nil), day.Add(-time.Second), false},
		{"before end", member(p, day, ptr(day.AddDate(0, 1, 0))), day.AddDate(0, 0, 10), true},
		{"on end date", member(p, day, ptr(day.AddDate(0, 1, 0))), day.AddDate(0, 1, 0), false},
		{"voided", voided, day.AddDate(0, 0, 1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.m.IsActive(tt.at))
		})
	}
}

func TestCohort_MembersAndSize(t *testing.T) {
	p1, p2, p3 := uuid.New(), uuid.New(), uuid.New()
	c := &Cohort{Name: "A", Memberships: []*CohortMembership{
		member(p1, day, nil),
		member(p1, day.AddDate(0, 0, 1), nil),
		member(p2, day, ptr(day.AddDate(0, 0, 1))),
		member(p3, time.Now().AddDate(1, 0, 0), nil),
	}}

	assert.True(t, c.Contains(p1))
	assert.False(t, c.Contains(p2), "membership ended")
	assert.False(t, c.Contains(p3), "membership not started")
	assert.Equal(t, 1, c.Size(), "duplicate memberships count once")
	assert.False(t, c.IsEmpty())
	assert.Len(t, c.MemberIDs(day), 2)
	assert.True(t, (&Cohort{}).IsEmpty())
}

func TestSetOperations(t *testing.T) {
	p1, p2, p3 := uuid.New(), uuid.New(), uuid.New()
	a := &Cohort{Name: "A", Memberships: []*CohortMembership{member(p1, day, nil), member(p2, day, nil)}}
	b := &Cohort{Name: "B", Memberships: []*CohortMembership{member(p2, day, nil), member(p3, day, nil)}}

	u := Union(a, b)
	assert.Equal(t, "(A + B)", u.Name)
	assert.Equal(t, 3, u.Size())
	assert.Equal(t, uuid.Nil, u.ID, "result is unsaved")

	i := Intersect(a, b)
	assert.Equal(t, "(A * B)", i.Name)
	require.Equal(t, 1, i.Size())
	assert.True(t, i.Contains(p2))

	d := Subtract(a, b)
	assert.Equal(t, "(A - B)", d.Name)
	require.Equal(t, 1, d.Size())
	assert.True(t, d.Contains(p1))

	assert.True(t, Subtract(a, a).IsEmpty())
}
