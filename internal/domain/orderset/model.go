package orderset

import (
	"time"

	"github.com/google/uuid"

	"github.com/openmrs/openmrs-api/internal/domain/audit"
	"github.com/openmrs/openmrs-api/internal/platform/apperr"
)

// Operator says how many members of a set a clinician is expected to order.
type Operator string

const (
	OperatorAll Operator = "ALL"
	OperatorOne Operator = "ONE"
	OperatorAny Operator = "ANY"
)

func (o Operator) Valid() bool {
	switch o {
	case OperatorAll, OperatorOne, OperatorAny:
		return true
	}
	return false
}

// OrderSet maps to the order_set table. Members are kept in display order.
type OrderSet struct {
	ID          uuid.UUID         `db:"id" json:"id"`
	Name        string            `db:"name" json:"name"`
	Description string            `db:"description" json:"description,omitempty"`
	Operator    Operator          `db:"operator" json:"operator"`
	CategoryID  *uuid.UUID        `db:"category_concept_id" json:"category_concept_id,omitempty"`
	Members     []*OrderSetMember `db:"-" json:"members"`
	audit.Stamp
	audit.Retirable
}

// OrderSetMember maps to the order_set_member table. SortWeight mirrors
// the member's index in OrderSet.Members.
type OrderSetMember struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	OrderSetID        uuid.UUID  `db:"order_set_id" json:"order_set_id"`
	OrderTypeID       *uuid.UUID `db:"order_type_id" json:"order_type_id,omitempty"`
	ConceptID         *uuid.UUID `db:"concept_id" json:"concept_id,omitempty"`
	OrderTemplate     string     `db:"order_template" json:"order_template,omitempty"`
	OrderTemplateType string     `db:"order_template_type" json:"order_template_type,omitempty"`
	SortWeight        int        `db:"sort_weight" json:"sort_weight"`
	audit.Stamp
	audit.Retirable
}

// AddOrderSetMember inserts m at position. A nil position appends. A
// negative position counts from the end: -1 appends and -(len+1)
// prepends.
func (s *OrderSet) AddOrderSetMember(m *OrderSetMember, position *int) error {
	if m == nil {
		return apperr.InvalidArgument("order set member is required")
	}
	n := len(s.Members)
	idx := n
	if position != nil {
		p := *position
		switch {
		case p >= 0 && p <= n:
			idx = p
		case p < 0 && p >= -(n + 1):
			idx = n + 1 + p
		default:
			return apperr.API("Cannot add a member which is out of range of the list")
		}
	}
	m.OrderSetID = s.ID
	s.Members = append(s.Members, nil)
	copy(s.Members[idx+1:], s.Members[idx:])
	s.Members[idx] = m
	s.reweigh()
	return nil
}

// RemoveOrderSetMember drops m, matched by identity or by saved ID. It
// reports whether a member was removed.
func (s *OrderSet) RemoveOrderSetMember(m *OrderSetMember) bool {
	for i, cur := range s.Members {
		if sameMember(cur, m) {
			s.Members = append(s.Members[:i], s.Members[i+1:]...)
			s.reweigh()
			return true
		}
	}
	return false
}

// RetireOrderSetMember retires m in place.
func (s *OrderSet) RetireOrderSetMember(m *OrderSetMember, actor, reason string, now time.Time) error {
	for _, cur := range s.Members {
		if sameMember(cur, m) {
			return cur.Retire(actor, reason, now)
		}
	}
	return apperr.NotFound("order set member", m.ID)
}

func (s *OrderSet) GetUnRetiredOrderSetMembers() []*OrderSetMember {
	out := make([]*OrderSetMember, 0, len(s.Members))
	for _, m := range s.Members {
		if !m.Retired {
			out = append(out, m)
		}
	}
	return out
}

func (s *OrderSet) GetOrderSetMemberByID(id uuid.UUID) *OrderSetMember {
	for _, m := range s.Members {
		if m.ID == id {
			return m
		}
	}
	return nil
}

func (s *OrderSet) reweigh() {
	for i, m := range s.Members {
		m.SortWeight = i
	}
}

func sameMember(a, b *OrderSetMember) bool {
	if a == b {
		return true
	}
	return a.ID != uuid.Nil && a.ID == b.ID
}
