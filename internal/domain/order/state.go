package order

import (
	"time"

	"github.com/google/uuid"
)

// IsActivated reports whether the order had been activated at t.
func (o *Order) IsActivated(t time.Time) bool {
	return !o.DateActivated.IsZero() && !o.DateActivated.After(t)
}

// IsActive reports whether the order is in effect at t. Discontinuation
// orders are never active.
func (o *Order) IsActive(t time.Time) bool {
	return !o.Voided && o.Action != ActionDiscontinue &&
		o.IsActivated(t) && !o.IsDiscontinued(t) && !o.isExpiredAt(t)
}

// IsStarted is false for scheduled orders before their scheduled date.
func (o *Order) IsStarted(t time.Time) bool {
	if !o.IsActivated(t) {
		return false
	}
	if o.Urgency == UrgencyOnScheduledDate && o.ScheduledDate != nil {
		return !o.ScheduledDate.After(t)
	}
	return true
}

func (o *Order) IsDiscontinued(t time.Time) bool {
	return o.DateStopped != nil && !o.DateStopped.After(t)
}

// IsExpired is true once the auto-expire date has passed, unless the order
// was stopped first.
func (o *Order) IsExpired(t time.Time) bool {
	return o.isExpiredAt(t) && !o.IsDiscontinued(t)
}

func (o *Order) isExpiredAt(t time.Time) bool {
	return o.AutoExpireDate != nil && !o.AutoExpireDate.After(t)
}

func (o *Order) EffectiveStartDate() time.Time {
	if o.Urgency == UrgencyOnScheduledDate && o.ScheduledDate != nil {
		return *o.ScheduledDate
	}
	return o.DateActivated
}

// EffectiveStopDate returns nil for open-ended orders.
func (o *Order) EffectiveStopDate() *time.Time {
	if o.DateStopped != nil {
		return o.DateStopped
	}
	return o.AutoExpireDate
}

func (o *Order) Orderable() Orderable {
	ob := Orderable{ConceptID: o.ConceptID}
	if o.Drug != nil {
		ob.DrugID = o.Drug.DrugID
	}
	return ob
}

// HasSameOrderableAs compares drugs for drug orders, falling back to the
// concept when neither order names a drug. Other orders compare concepts.
func (o *Order) HasSameOrderableAs(other *Order) bool {
	if other == nil || (o.Drug == nil) != (other.Drug == nil) {
		return false
	}
	if o.Drug != nil {
		return o.Orderable().matches(other.Orderable())
	}
	return o.ConceptID == other.ConceptID
}

func (ob Orderable) matches(other Orderable) bool {
	if ob.DrugID != nil || other.DrugID != nil {
		return ob.DrugID != nil && other.DrugID != nil && *ob.DrugID == *other.DrugID
	}
	return ob.ConceptID == other.ConceptID
}

// CloneForDiscontinuing returns an unsaved DISCONTINUE order pointing at o.
func (o *Order) CloneForDiscontinuing() *Order {
	id := o.ID
	out := &Order{
		PatientID:       o.PatientID,
		ConceptID:       o.ConceptID,
		CareSettingID:   o.CareSettingID,
		OrderTypeID:     o.OrderTypeID,
		Action:          ActionDiscontinue,
		Urgency:         UrgencyRoutine,
		PreviousOrderID: &id,
	}
	if o.Drug != nil {
		out.Drug = &DrugDetails{DrugID: copyUUID(o.Drug.DrugID), DosingType: o.Drug.DosingType}
	}
	if o.Test != nil {
		out.Test = &TestDetails{}
	}
	return out
}

// CloneForRevision copies every clinical field of o into an unsaved REVISE
// order. Drug orders with a duration get their expiry recomputed on save.
func (o *Order) CloneForRevision() *Order {
	id := o.ID
	out := &Order{
		PatientID:           o.PatientID,
		EncounterID:         o.EncounterID,
		ConceptID:           o.ConceptID,
		OrdererID:           o.OrdererID,
		CareSettingID:       o.CareSettingID,
		OrderTypeID:         o.OrderTypeID,
		Action:              ActionRevise,
		Urgency:             o.Urgency,
		ScheduledDate:       copyTime(o.ScheduledDate),
		AutoExpireDate:      copyTime(o.AutoExpireDate),
		PreviousOrderID:     &id,
		OrderReasonID:       copyUUID(o.OrderReasonID),
		OrderReasonNonCoded: o.OrderReasonNonCoded,
		Instructions:        o.Instructions,
		CommentToFulfiller:  o.CommentToFulfiller,
	}
	if o.Drug != nil {
		d := *o.Drug
		d.DrugID = copyUUID(o.Drug.DrugID)
		d.FrequencyID = copyUUID(o.Drug.FrequencyID)
		d.NumRefills = copyInt(o.Drug.NumRefills)
		d.Duration = copyInt(o.Drug.Duration)
		out.Drug = &d
		if d.Duration != nil {
			out.AutoExpireDate = nil
		}
	}
	if o.Test != nil {
		t := *o.Test
		t.NumberOfRepeats = copyInt(o.Test.NumberOfRepeats)
		out.Test = &t
	}
	return out
}

func copyUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyInt(n *int) *int {
	if n == nil {
		return nil
	}
	v := *n
	return &v
}

// aMomentBefore is the stop date given to an order replaced at t.
func aMomentBefore(t time.Time) time.Time {
	return t.Add(-time.Second)
}
