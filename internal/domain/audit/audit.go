// Package audit holds the bookkeeping columns shared by every entity:
// creation/change stamps plus the retire (reference data) and void
// (clinical data) soft-delete markers.
package audit

import (
	"strings"
	"time"

	"github.com/openmrs/openmrs-api/internal/platform/apperr"
)

// Stamp records who created and last changed a row.
type Stamp struct {
	Creator     string     `db:"creator" json:"creator"`
	DateCreated time.Time  `db:"date_created" json:"date_created"`
	ChangedBy   *string    `db:"changed_by" json:"changed_by,omitempty"`
	DateChanged *time.Time `db:"date_changed" json:"date_changed,omitempty"`
}

// Touch fills the creation fields on first save and the change fields after.
func (s *Stamp) Touch(actor string, now time.Time) {
	if s.Creator == "" {
		s.Creator = actor
		s.DateCreated = now
		return
	}
	s.ChangedBy = &actor
	s.DateChanged = &now
}

// Retirable marks reference data that is no longer in use.
type Retirable struct {
	Retired      bool       `db:"retired" json:"retired"`
	RetiredBy    *string    `db:"retired_by" json:"retired_by,omitempty"`
	DateRetired  *time.Time `db:"date_retired" json:"date_retired,omitempty"`
	RetireReason *string    `db:"retire_reason" json:"retire_reason,omitempty"`
}

// Retire requires a non-blank reason.
func (r *Retirable) Retire(actor, reason string, now time.Time) error {
	if strings.TrimSpace(reason) == "" {
		return apperr.InvalidArgument("retire reason is required")
	}
	r.Retired = true
	r.RetiredBy = &actor
	r.DateRetired = &now
	r.RetireReason = &reason
	return nil
}

func (r *Retirable) Unretire() {
	r.Retired = false
	r.RetiredBy = nil
	r.DateRetired = nil
	r.RetireReason = nil
}

// RetiredWith reports whether the entity was retired with exactly reason.
func (r *Retirable) RetiredWith(reason string) bool {
	return r.Retired && r.RetireReason != nil && *r.RetireReason == reason
}

// Voidable marks clinical data entered in error.
type Voidable struct {
	Voided     bool       `db:"voided" json:"voided"`
	VoidedBy   *string    `db:"voided_by" json:"voided_by,omitempty"`
	DateVoided *time.Time `db:"date_voided" json:"date_voided,omitempty"`
	VoidReason *string    `db:"void_reason" json:"void_reason,omitempty"`
}

// Void requires a non-blank reason.
func (v *Voidable) Void(actor, reason string, now time.Time) error {
	if strings.TrimSpace(reason) == "" {
		return apperr.InvalidArgument("void reason is required")
	}
	v.Voided = true
	v.VoidedBy = &actor
	v.DateVoided = &now
	v.VoidReason = &reason
	return nil
}

func (v *Voidable) Unvoid() {
	v.Voided = false
	v.VoidedBy = nil
	v.DateVoided = nil
	v.VoidReason = nil
}

// VoidedWith reports whether the entity was voided with exactly reason.
func (v *Voidable) VoidedWith(reason string) bool {
	return v.Voided && v.VoidReason != nil && *v.VoidReason == reason
}
