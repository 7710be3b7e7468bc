package cohort

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/openmrs/openmrs-api/internal/domain/audit"
)

// ReasonRemoved is the void reason of memberships ended by
// RemovePatientFromCohort.
const ReasonRemoved = "removed from cohort"

// Cohort maps to the cohort table.
type Cohort struct {
	ID          uuid.UUID           `db:"id" json:"id"`
	Name        string              `db:"name" json:"name"`
	Description string              `db:"description" json:"description,omitempty"`
	Memberships []*CohortMembership `db:"-" json:"memberships"`
	audit.Stamp
	audit.Voidable
}

// CohortMembership maps to the cohort_member table.
type CohortMembership struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	CohortID  uuid.UUID  `db:"cohort_id" json:"cohort_id"`
	PatientID uuid.UUID  `db:"patient_id" json:"patient_id"`
	StartDate time.Time  `db:"start_date" json:"start_date"`
	EndDate   *time.Time `db:"end_date" json:"end_date,omitempty"`
	audit.Stamp
	audit.Voidable
}

// IsActive reports whether the membership holds at t.
func (m *CohortMembership) IsActive(t time.Time) bool {
	if m.Voided || m.StartDate.After(t) {
		return false
	}
	return m.EndDate == nil || m.EndDate.After(t)
}

// ActiveMembership returns the patient's membership active at t, or nil.
func (c *Cohort) ActiveMembership(patientID uuid.UUID, t time.Time) *CohortMembership {
	for _, m := range c.Memberships {
		if m.PatientID == patientID && m.IsActive(t) {
			return m
		}
	}
	return nil
}

// MemberIDs returns the distinct patients with a membership active at t,
// sorted.
func (c *Cohort) MemberIDs(t time.Time) []uuid.UUID {
	seen := map[uuid.UUID]bool{}
	var out []uuid.UUID
	for _, m := range c.Memberships {
		if m.IsActive(t) && !seen[m.PatientID] {
			seen[m.PatientID] = true
			out = append(out, m.PatientID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func (c *Cohort) Contains(patientID uuid.UUID) bool {
	return c.ActiveMembership(patientID, time.Now()) != nil
}

func (c *Cohort) Size() int {
	return len(c.MemberIDs(time.Now()))
}

func (c *Cohort) IsEmpty() bool {
	return c.Size() == 0
}

// Union returns an unsaved cohort of the patients active in a or b.
func Union(a, b *Cohort) *Cohort {
	return combine("(%s + %s)", a, b, func(inA, inB bool) bool { return inA || inB })
}

// Intersect returns an unsaved cohort of the patients active in both.
func Intersect(a, b *Cohort) *Cohort {
	return combine("(%s * %s)", a, b, func(inA, inB bool) bool { return inA && inB })
}

// Subtract returns an unsaved cohort of the patients active in a but not b.
func Subtract(a, b *Cohort) *Cohort {
	return combine("(%s - %s)", a, b, func(inA, inB bool) bool { return inA && !inB })
}

func combine(format string, a, b *Cohort, keep func(inA, inB bool) bool) *Cohort {
	now := time.Now()
	inA, inB := idSet(a, now), idSet(b, now)
	out := &Cohort{Name: fmt.Sprintf(format, name(a), name(b)), Memberships: []*CohortMembership{}}
	var ids []uuid.UUID
	for id := range union(inA, inB) {
		if keep(inA[id], inB[id]) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	for _, id := range ids {
		out.Memberships = append(out.Memberships, &CohortMembership{PatientID: id, StartDate: now})
	}
	return out
}

func idSet(c *Cohort, t time.Time) map[uuid.UUID]bool {
	out := map[uuid.UUID]bool{}
	if c == nil {
		return out
	}
	for _, id := range c.MemberIDs(t) {
		out[id] = true
	}
	return out
}

func union(a, b map[uuid.UUID]bool) map[uuid.UUID]bool {
	out := make(map[uuid.UUID]bool, len(a)+len(b))
	for id := range a {
		out[id] = true
	}
	for id := range b {
		out[id] = true
	}
	return out
}

func name(c *Cohort) string {
	if c == nil {
		return ""
	}
	return c.Name
}
