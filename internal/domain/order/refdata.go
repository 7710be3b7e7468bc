package order

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/openmrs/openmrs-api/internal/platform/apperr"
	"github.com/openmrs/openmrs-api/internal/platform/auth"
)

// HandlesConceptClass reports whether concepts of class default to ot.
func (ot *OrderType) HandlesConceptClass(class string) bool {
	for _, c := range ot.ConceptClasses {
		if strings.EqualFold(c, class) {
			return true
		}
	}
	return false
}

// -- Care settings --

func (s *Service) SaveCareSetting(ctx context.Context, cs *CareSetting) (*CareSetting, error) {
	if cs == nil {
		return nil, apperr.InvalidArgument("care setting is required")
	}
	cs.Name = strings.TrimSpace(cs.Name)
	if cs.Name == "" {
		return nil, apperr.Validation("care setting name is required")
	}
	cs.Type = strings.ToUpper(strings.TrimSpace(cs.Type))
	if cs.Type != CareSettingOutpatient && cs.Type != CareSettingInpatient {
		return nil, apperr.Validation("care setting type must be %s or %s", CareSettingOutpatient, CareSettingInpatient)
	}
	existing, err := s.careSettings.GetByName(ctx, cs.Name)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
	case err != nil:
		return nil, err
	case existing.ID != cs.ID:
		return nil, apperr.Duplicate("care setting %s already exists", cs.Name)
	}
	cs.Touch(auth.ActorFromContext(ctx), s.now())
	if cs.ID == uuid.Nil {
		err = s.careSettings.Create(ctx, cs)
	} else {
		err = s.careSettings.Update(ctx, cs)
	}
	if err != nil {
		return nil, err
	}
	return cs, nil
}

func (s *Service) GetCareSetting(ctx context.Context, id uuid.UUID) (*CareSetting, error) {
	return s.careSettings.GetByID(ctx, id)
}

func (s *Service) GetCareSettingByName(ctx context.Context, name string) (*CareSetting, error) {
	return s.careSettings.GetByName(ctx, strings.TrimSpace(name))
}

func (s *Service) GetCareSettings(ctx context.Context, includeRetired bool) ([]*CareSetting, error) {
	return s.careSettings.List(ctx, includeRetired)
}

func (s *Service) RetireCareSetting(ctx context.Context, id uuid.UUID, reason string) (*CareSetting, error) {
	cs, err := s.careSettings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	actor := auth.ActorFromContext(ctx)
	if err := cs.Retire(actor, reason, s.now()); err != nil {
		return nil, err
	}
	cs.Touch(actor, s.now())
	if err := s.careSettings.Update(ctx, cs); err != nil {
		return nil, err
	}
	return cs, nil
}

func (s *Service) UnretireCareSetting(ctx context.Context, id uuid.UUID) (*CareSetting, error) {
	cs, err := s.careSettings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	cs.Unretire()
	cs.Touch(auth.ActorFromContext(ctx), s.now())
	if err := s.careSettings.Update(ctx, cs); err != nil {
		return nil, err
	}
	return cs, nil
}

func (s *Service) PurgeCareSetting(ctx context.Context, id uuid.UUID) error {
	n, err := s.orders.CountByCareSetting(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return apperr.API("CareSetting.cannot.delete: used by %d orders", n)
	}
	return s.careSettings.Delete(ctx, id)
}

// -- Order types --

func (s *Service) SaveOrderType(ctx context.Context, ot *OrderType) (*OrderType, error) {
	if ot == nil {
		return nil, apperr.InvalidArgument("order type is required")
	}
	ot.Name = strings.TrimSpace(ot.Name)
	if ot.Name == "" {
		return nil, apperr.Validation("order type name is required")
	}
	if ot.Kind == "" {
		ot.Kind = KindGeneric
	}
	switch ot.Kind {
	case KindDrug, KindTest, KindGeneric:
	default:
		return nil, apperr.Validation("unknown order type kind %q", ot.Kind)
	}
	existing, err := s.orderTypes.GetByName(ctx, ot.Name)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
	case err != nil:
		return nil, err
	case existing.ID != ot.ID:
		return nil, apperr.Duplicate("order type %s already exists", ot.Name)
	}
	if err := s.checkTypeParent(ctx, ot); err != nil {
		return nil, err
	}
	ot.Touch(auth.ActorFromContext(ctx), s.now())
	if ot.ID == uuid.Nil {
		err = s.orderTypes.Create(ctx, ot)
	} else {
		err = s.orderTypes.Update(ctx, ot)
	}
	if err != nil {
		return nil, err
	}
	return ot, nil
}

// checkTypeParent walks the parent chain and rejects cycles.
func (s *Service) checkTypeParent(ctx context.Context, ot *OrderType) error {
	seen := map[uuid.UUID]bool{}
	if ot.ID != uuid.Nil {
		seen[ot.ID] = true
	}
	for next := ot.ParentID; next != nil; {
		if seen[*next] {
			return apperr.API("OrderType.parent.cycle: order type %s cannot be its own ancestor", ot.Name)
		}
		seen[*next] = true
		parent, err := s.orderTypes.GetByID(ctx, *next)
		if err != nil {
			return missing(err, "parent order type", *next)
		}
		next = parent.ParentID
	}
	return nil
}

func (s *Service) GetOrderType(ctx context.Context, id uuid.UUID) (*OrderType, error) {
	return s.orderTypes.GetByID(ctx, id)
}

func (s *Service) GetOrderTypeByName(ctx context.Context, name string) (*OrderType, error) {
	return s.orderTypes.GetByName(ctx, strings.TrimSpace(name))
}

func (s *Service) GetOrderTypes(ctx context.Context, includeRetired bool) ([]*OrderType, error) {
	return s.orderTypes.List(ctx, includeRetired)
}

// GetSubtypes returns the direct children of the order type, or every
// descendant when recursive.
func (s *Service) GetSubtypes(ctx context.Context, id uuid.UUID, recursive bool) ([]*OrderType, error) {
	all, err := s.orderTypes.List(ctx, true)
	if err != nil {
		return nil, err
	}
	children := make(map[uuid.UUID][]*OrderType)
	for _, ot := range all {
		if ot.ParentID != nil {
			children[*ot.ParentID] = append(children[*ot.ParentID], ot)
		}
	}
	var out []*OrderType
	queue := []uuid.UUID{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, child := range children[cur] {
			out = append(out, child)
			if recursive {
				queue = append(queue, child.ID)
			}
		}
	}
	return out, nil
}

// typeFilter is the set of the order type and all its subtypes, or nil to
// match every type.
func (s *Service) typeFilter(ctx context.Context, orderTypeID *uuid.UUID) (map[uuid.UUID]bool, error) {
	if orderTypeID == nil {
		return nil, nil
	}
	subs, err := s.GetSubtypes(ctx, *orderTypeID, true)
	if err != nil {
		return nil, err
	}
	set := map[uuid.UUID]bool{*orderTypeID: true}
	for _, ot := range subs {
		set[ot.ID] = true
	}
	return set, nil
}

func (s *Service) RetireOrderType(ctx context.Context, id uuid.UUID, reason string) (*OrderType, error) {
	ot, err := s.orderTypes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	actor := auth.ActorFromContext(ctx)
	if err := ot.Retire(actor, reason, s.now()); err != nil {
		return nil, err
	}
	ot.Touch(actor, s.now())
	if err := s.orderTypes.Update(ctx, ot); err != nil {
		return nil, err
	}
	return ot, nil
}

func (s *Service) UnretireOrderType(ctx context.Context, id uuid.UUID) (*OrderType, error) {
	ot, err := s.orderTypes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	ot.Unretire()
	ot.Touch(auth.ActorFromContext(ctx), s.now())
	if err := s.orderTypes.Update(ctx, ot); err != nil {
		return nil, err
	}
	return ot, nil
}

// PurgeOrderType fails while orders or subtypes use the type.
func (s *Service) PurgeOrderType(ctx context.Context, id uuid.UUID) error {
	n, err := s.orders.CountByOrderType(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return apperr.API("OrderType.cannot.delete: used by %d orders", n)
	}
	subs, err := s.GetSubtypes(ctx, id, false)
	if err != nil {
		return err
	}
	if len(subs) > 0 {
		return apperr.API("OrderType.cannot.delete: has %d subtypes", len(subs))
	}
	return s.orderTypes.Delete(ctx, id)
}

// -- Order frequencies --

func (s *Service) SaveOrderFrequency(ctx context.Context, f *OrderFrequency) (*OrderFrequency, error) {
	if f == nil {
		return nil, apperr.InvalidArgument("order frequency is required")
	}
	if f.ConceptID == uuid.Nil {
		return nil, apperr.Validation("order frequency concept is required")
	}
	if f.FrequencyPerDay < 0 {
		return nil, apperr.Validation("frequency per day cannot be negative")
	}
	if _, err := s.lookups.Concepts.GetConcept(ctx, f.ConceptID); err != nil {
		return nil, missing(err, "concept", f.ConceptID)
	}
	existing, err := s.frequencies.GetByConcept(ctx, f.ConceptID)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
	case err != nil:
		return nil, err
	case existing.ID != f.ID:
		return nil, apperr.Duplicate("an order frequency for concept %s already exists", f.ConceptID)
	}
	f.Touch(auth.ActorFromContext(ctx), s.now())
	if f.ID == uuid.Nil {
		err = s.frequencies.Create(ctx, f)
	} else {
		err = s.frequencies.Update(ctx, f)
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Service) GetOrderFrequency(ctx context.Context, id uuid.UUID) (*OrderFrequency, error) {
	return s.frequencies.GetByID(ctx, id)
}

func (s *Service) GetOrderFrequencyByConcept(ctx context.Context, conceptID uuid.UUID) (*OrderFrequency, error) {
	return s.frequencies.GetByConcept(ctx, conceptID)
}

func (s *Service) GetOrderFrequencies(ctx context.Context, includeRetired bool) ([]*OrderFrequency, error) {
	return s.frequencies.List(ctx, includeRetired)
}

func (s *Service) RetireOrderFrequency(ctx context.Context, id uuid.UUID, reason string) (*OrderFrequency, error) {
	f, err := s.frequencies.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	actor := auth.ActorFromContext(ctx)
	if err := f.Retire(actor, reason, s.now()); err != nil {
		return nil, err
	}
	f.Touch(actor, s.now())
	if err := s.frequencies.Update(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Service) UnretireOrderFrequency(ctx context.Context, id uuid.UUID) (*OrderFrequency, error) {
	f, err := s.frequencies.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	f.Unretire()
	f.Touch(auth.ActorFromContext(ctx), s.now())
	if err := s.frequencies.Update(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// PurgeOrderFrequency fails while drug orders use the frequency.
func (s *Service) PurgeOrderFrequency(ctx context.Context, id uuid.UUID) error {
	n, err := s.orders.CountByFrequency(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return apperr.API("OrderFrequency.cannot.delete: used by %d drug orders", n)
	}
	return s.frequencies.Delete(ctx, id)
}
