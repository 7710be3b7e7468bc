package orderset

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openmrs/openmrs-api/internal/domain/concept"
	"github.com/openmrs/openmrs-api/internal/domain/order"
	"github.com/openmrs/openmrs-api/internal/platform/apperr"
	"github.com/openmrs/openmrs-api/internal/platform/auth"
)

type ConceptLookup interface {
	GetConcept(ctx context.Context, id uuid.UUID) (*concept.Concept, error)
}

type OrderTypeLookup interface {
	GetOrderType(ctx context.Context, id uuid.UUID) (*order.OrderType, error)
}

type Service struct {
	sets       Repository
	concepts   ConceptLookup
	orderTypes OrderTypeLookup
	logger     zerolog.Logger
	now        func() time.Time
}

func NewService(sets Repository, concepts ConceptLookup, orderTypes OrderTypeLookup) *Service {
	return &Service{sets: sets, concepts: concepts, orderTypes: orderTypes, logger: zerolog.Nop(), now: time.Now}
}

func (s *Service) SetLogger(l zerolog.Logger) {
	s.logger = l
}

// SaveOrderSet validates the set and its members and writes both. Member
// sort weights follow slice order.
func (s *Service) SaveOrderSet(ctx context.Context, set *OrderSet) (*OrderSet, error) {
	if set == nil {
		return nil, apperr.InvalidArgument("order set is required")
	}
	set.Name = strings.TrimSpace(set.Name)
	if set.Name == "" {
		return nil, apperr.Validation("order set name is required")
	}
	if set.Operator == "" {
		return nil, apperr.Validation("order set operator is required")
	}
	if !set.Operator.Valid() {
		return nil, apperr.Validation("unknown order set operator %q", set.Operator)
	}
	if set.CategoryID != nil {
		if _, err := s.concepts.GetConcept(ctx, *set.CategoryID); err != nil {
			return nil, missing(err, "category concept", *set.CategoryID)
		}
	}
	actor := auth.ActorFromContext(ctx)
	now := s.now()
	for _, m := range set.Members {
		if err := s.checkMember(ctx, m); err != nil {
			return nil, err
		}
		m.Touch(actor, now)
	}
	set.reweigh()
	set.Touch(actor, now)

	var err error
	if set.ID == uuid.Nil {
		err = s.sets.Create(ctx, set)
	} else {
		err = s.sets.Update(ctx, set)
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("order_set_id", set.ID.String()).Int("members", len(set.Members)).Msg("order set saved")
	return set, nil
}

func (s *Service) checkMember(ctx context.Context, m *OrderSetMember) error {
	if m == nil {
		return apperr.Validation("order set member is required")
	}
	if m.ConceptID == nil && strings.TrimSpace(m.OrderTemplate) == "" {
		return apperr.Validation("order set member needs a concept or an order template")
	}
	if m.ConceptID != nil {
		if _, err := s.concepts.GetConcept(ctx, *m.ConceptID); err != nil {
			return missing(err, "concept", *m.ConceptID)
		}
	}
	if m.OrderTypeID != nil {
		if _, err := s.orderTypes.GetOrderType(ctx, *m.OrderTypeID); err != nil {
			return missing(err, "order type", *m.OrderTypeID)
		}
	}
	return nil
}

func missing(err error, what string, id uuid.UUID) error {
	if errors.Is(err, apperr.ErrNotFound) {
		return apperr.Validation("%s %s does not exist", what, id)
	}
	return err
}

func (s *Service) GetOrderSet(ctx context.Context, id uuid.UUID) (*OrderSet, error) {
	return s.sets.GetByID(ctx, id)
}

func (s *Service) GetOrderSetByName(ctx context.Context, name string) (*OrderSet, error) {
	return s.sets.GetByName(ctx, strings.TrimSpace(name))
}

func (s *Service) GetOrderSets(ctx context.Context, includeRetired bool) ([]*OrderSet, error) {
	return s.sets.List(ctx, includeRetired)
}

// RetireOrderSet retires the set and every member not already retired,
// using the set's reason.
func (s *Service) RetireOrderSet(ctx context.Context, id uuid.UUID, reason string) (*OrderSet, error) {
	set, err := s.sets.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	actor := auth.ActorFromContext(ctx)
	now := s.now()
	if err := set.Retire(actor, reason, now); err != nil {
		return nil, err
	}
	for _, m := range set.GetUnRetiredOrderSetMembers() {
		if err := m.Retire(actor, reason, now); err != nil {
			return nil, err
		}
	}
	set.Touch(actor, now)
	if err := s.sets.Update(ctx, set); err != nil {
		return nil, err
	}
	return set, nil
}

// UnretireOrderSet restores the set and the members retired along with it.
func (s *Service) UnretireOrderSet(ctx context.Context, id uuid.UUID) (*OrderSet, error) {
	set, err := s.sets.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !set.Retired {
		return set, nil
	}
	for _, m := range set.Members {
		if retiredWithSet(m, set) {
			m.Unretire()
		}
	}
	set.Unretire()
	set.Touch(auth.ActorFromContext(ctx), s.now())
	if err := s.sets.Update(ctx, set); err != nil {
		return nil, err
	}
	return set, nil
}

// retiredWithSet reports whether m was retired by RetireOrderSet on set:
// same reason and same retirement time.
func retiredWithSet(m *OrderSetMember, set *OrderSet) bool {
	if set.RetireReason == nil || set.DateRetired == nil || m.DateRetired == nil {
		return false
	}
	return m.RetiredWith(*set.RetireReason) && m.DateRetired.Equal(*set.DateRetired)
}

func (s *Service) PurgeOrderSet(ctx context.Context, id uuid.UUID) error {
	return s.sets.Delete(ctx, id)
}

// AddMember inserts member into the set at position (see
// OrderSet.AddOrderSetMember) and saves the set.
func (s *Service) AddMember(ctx context.Context, setID uuid.UUID, member *OrderSetMember, position *int) (*OrderSet, error) {
	set, err := s.sets.GetByID(ctx, setID)
	if err != nil {
		return nil, err
	}
	if err := set.AddOrderSetMember(member, position); err != nil {
		return nil, err
	}
	return s.SaveOrderSet(ctx, set)
}

func (s *Service) RemoveMember(ctx context.Context, setID, memberID uuid.UUID) (*OrderSet, error) {
	set, err := s.sets.GetByID(ctx, setID)
	if err != nil {
		return nil, err
	}
	if !set.RemoveOrderSetMember(&OrderSetMember{ID: memberID}) {
		return nil, apperr.NotFound("order set member", memberID)
	}
	return s.SaveOrderSet(ctx, set)
}

func (s *Service) RetireMember(ctx context.Context, setID, memberID uuid.UUID, reason string) (*OrderSet, error) {
	set, err := s.sets.GetByID(ctx, setID)
	if err != nil {
		return nil, err
	}
	if err := set.RetireOrderSetMember(&OrderSetMember{ID: memberID}, auth.ActorFromContext(ctx), reason, s.now()); err != nil {
		return nil, err
	}
	return s.SaveOrderSet(ctx, set)
}
