package order

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openmrs/openmrs-api/internal/domain/concept"
	"github.com/openmrs/openmrs-api/internal/domain/encounter"
	"github.com/openmrs/openmrs-api/internal/domain/patient"
	"github.com/openmrs/openmrs-api/internal/domain/provider"
	"github.com/openmrs/openmrs-api/internal/platform/apperr"
	"github.com/openmrs/openmrs-api/internal/platform/auth"
	"github.com/openmrs/openmrs-api/internal/platform/db"
)

type PatientLookup interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
}

type ConceptLookup interface {
	GetConcept(ctx context.Context, id uuid.UUID) (*concept.Concept, error)
	GetDrug(ctx context.Context, id uuid.UUID) (*concept.Drug, error)
}

type ProviderLookup interface {
	GetProvider(ctx context.Context, id uuid.UUID) (*provider.Provider, error)
}

type EncounterLookup interface {
	GetEncounter(ctx context.Context, id uuid.UUID) (*encounter.Encounter, error)
}

// Lookups resolves the records an order points at.
type Lookups struct {
	Patients   PatientLookup
	Concepts   ConceptLookup
	Providers  ProviderLookup
	Encounters EncounterLookup
}

// OrderContext supplies defaults for fields the order leaves unset.
type OrderContext struct {
	CareSettingID *uuid.UUID
	OrderTypeID   *uuid.UUID
}

// DiscontinueRequest describes how an order is stopped. A nil date means
// now.
type DiscontinueRequest struct {
	ReasonConceptID *uuid.UUID
	ReasonNonCoded  string
	DiscontinueDate *time.Time
	OrdererID       uuid.UUID
	EncounterID     uuid.UUID
}

type Service struct {
	orders       OrderRepository
	careSettings CareSettingRepository
	orderTypes   OrderTypeRepository
	frequencies  OrderFrequencyRepository
	lookups      Lookups
	numbers      OrderNumberGenerator
	logger       zerolog.Logger
	now          func() time.Time
}

func NewService(
	orders OrderRepository,
	careSettings CareSettingRepository,
	orderTypes OrderTypeRepository,
	frequencies OrderFrequencyRepository,
	lookups Lookups,
	numbers OrderNumberGenerator,
) *Service {
	return &Service{
		orders:       orders,
		careSettings: careSettings,
		orderTypes:   orderTypes,
		frequencies:  frequencies,
		lookups:      lookups,
		numbers:      numbers,
		logger:       zerolog.Nop(),
		now:          time.Now,
	}
}

func (s *Service) SetLogger(l zerolog.Logger) {
	s.logger = l
}

// missing turns a failed lookup of a referenced record into a validation
// error.
func missing(err error, what string, id uuid.UUID) error {
	if errors.Is(err, apperr.ErrNotFound) {
		return apperr.Validation("%s %s does not exist", what, id)
	}
	return err
}

func kindOf(o *Order) string {
	switch {
	case o.Drug != nil:
		return KindDrug
	case o.Test != nil:
		return KindTest
	default:
		return KindGeneric
	}
}

// SaveOrder validates and places a new order. Saved orders are immutable;
// revise or discontinue them with a new order instead.
func (s *Service) SaveOrder(ctx context.Context, o *Order, oc *OrderContext) (*Order, error) {
	if o == nil {
		return nil, apperr.InvalidArgument("order is required")
	}
	if o.ID != uuid.Nil {
		return nil, apperr.API("Order.cannot.edit.existing")
	}
	if oc != nil {
		if o.CareSettingID == uuid.Nil && oc.CareSettingID != nil {
			o.CareSettingID = *oc.CareSettingID
		}
		if o.OrderTypeID == uuid.Nil && oc.OrderTypeID != nil {
			o.OrderTypeID = *oc.OrderTypeID
		}
	}
	if err := s.validateHeader(o); err != nil {
		return nil, err
	}
	c, err := s.checkReferences(ctx, o)
	if err != nil {
		return nil, err
	}
	cs, err := s.careSettings.GetByID(ctx, o.CareSettingID)
	if err != nil {
		return nil, missing(err, "care setting", o.CareSettingID)
	}
	if _, err := s.resolveOrderType(ctx, o, c); err != nil {
		return nil, err
	}
	if o.Drug != nil && o.Action != ActionDiscontinue {
		if err := s.checkFrequency(ctx, o.Drug); err != nil {
			return nil, err
		}
		if err := validateDrugDetails(o, cs.Type); err != nil {
			return nil, err
		}
	}
	if o.AutoExpireDate != nil && !o.AutoExpireDate.After(o.DateActivated) {
		return nil, apperr.Validation("auto expire date must be after date activated")
	}

	err = db.RunInTx(ctx, func(ctx context.Context) error {
		prev, err := s.checkAction(ctx, o)
		if err != nil {
			return err
		}
		num, err := s.numbers.NewOrderNumber(ctx)
		if err != nil {
			return err
		}
		o.OrderNumber = num
		actor := auth.ActorFromContext(ctx)
		o.Touch(actor, s.now())
		if err := s.orders.Create(ctx, o); err != nil {
			return err
		}
		if prev != nil {
			stop := aMomentBefore(o.DateActivated)
			prev.DateStopped = &stop
			prev.Touch(actor, s.now())
			return s.orders.Update(ctx, prev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("order_number", o.OrderNumber).Str("action", string(o.Action)).
		Str("patient_id", o.PatientID.String()).Msg("order saved")
	return o, nil
}

func (s *Service) validateHeader(o *Order) error {
	if o.Drug != nil && o.Test != nil {
		return apperr.Validation("an order cannot be both a drug order and a test order")
	}
	if o.Action == "" {
		o.Action = ActionNew
	}
	switch o.Action {
	case ActionNew, ActionRevise, ActionDiscontinue, ActionRenew:
	default:
		return apperr.Validation("unknown order action %q", o.Action)
	}
	if o.Urgency == "" {
		o.Urgency = UrgencyRoutine
	}
	switch o.Urgency {
	case UrgencyRoutine, UrgencyStat:
		if o.ScheduledDate != nil {
			return apperr.Validation("scheduled date requires urgency %s", UrgencyOnScheduledDate)
		}
	case UrgencyOnScheduledDate:
		if o.ScheduledDate == nil {
			return apperr.Validation("urgency %s requires a scheduled date", UrgencyOnScheduledDate)
		}
	default:
		return apperr.Validation("unknown urgency %q", o.Urgency)
	}
	now := s.now()
	if o.DateActivated.IsZero() {
		o.DateActivated = now
	}
	if o.DateActivated.After(now) {
		return apperr.Validation("date activated cannot be in the future")
	}
	if o.FulfillerStatus != "" && !fulfillerStatuses[o.FulfillerStatus] {
		return apperr.Validation("unknown fulfiller status %q", o.FulfillerStatus)
	}
	return nil
}

// checkReferences confirms every referenced record exists and returns the
// order's concept. A drug order without a concept takes the drug's.
func (s *Service) checkReferences(ctx context.Context, o *Order) (*concept.Concept, error) {
	if o.PatientID == uuid.Nil {
		return nil, apperr.Validation("order patient is required")
	}
	if _, err := s.lookups.Patients.GetPatient(ctx, o.PatientID); err != nil {
		return nil, missing(err, "patient", o.PatientID)
	}
	if o.Drug != nil && o.Drug.DrugID != nil {
		drug, err := s.lookups.Concepts.GetDrug(ctx, *o.Drug.DrugID)
		if err != nil {
			return nil, missing(err, "drug", *o.Drug.DrugID)
		}
		if o.ConceptID == uuid.Nil {
			o.ConceptID = drug.ConceptID
		} else if o.ConceptID != drug.ConceptID {
			return nil, apperr.Validation("drug %s is not a formulation of concept %s", drug.ID, o.ConceptID)
		}
	}
	if o.ConceptID == uuid.Nil {
		return nil, apperr.Validation("order concept is required")
	}
	c, err := s.lookups.Concepts.GetConcept(ctx, o.ConceptID)
	if err != nil {
		return nil, missing(err, "concept", o.ConceptID)
	}
	if o.OrdererID == uuid.Nil {
		return nil, apperr.Validation("orderer is required")
	}
	if _, err := s.lookups.Providers.GetProvider(ctx, o.OrdererID); err != nil {
		return nil, missing(err, "provider", o.OrdererID)
	}
	if o.CareSettingID == uuid.Nil {
		return nil, apperr.Validation("care setting is required")
	}
	if o.EncounterID == uuid.Nil {
		return nil, apperr.Validation("encounter is required")
	}
	enc, err := s.lookups.Encounters.GetEncounter(ctx, o.EncounterID)
	if err != nil {
		return nil, missing(err, "encounter", o.EncounterID)
	}
	if enc.PatientID != o.PatientID {
		return nil, apperr.Validation("encounter patient does not match the order patient")
	}
	return c, nil
}

func (s *Service) checkFrequency(ctx context.Context, d *DrugDetails) error {
	if d.FrequencyID == nil {
		return nil
	}
	if _, err := s.frequencies.GetByID(ctx, *d.FrequencyID); err != nil {
		return missing(err, "order frequency", *d.FrequencyID)
	}
	return nil
}

// resolveOrderType loads the order's type, inferring it from the concept
// class (then from the payload kind) when unset.
func (s *Service) resolveOrderType(ctx context.Context, o *Order, c *concept.Concept) (*OrderType, error) {
	kind := kindOf(o)
	if o.OrderTypeID != uuid.Nil {
		ot, err := s.orderTypes.GetByID(ctx, o.OrderTypeID)
		if err != nil {
			return nil, missing(err, "order type", o.OrderTypeID)
		}
		if ot.Kind != kind {
			return nil, apperr.API("Order.type.class.does.not.match: order type %s is for %s orders", ot.Name, ot.Kind)
		}
		return ot, nil
	}

	types, err := s.orderTypes.List(ctx, false)
	if err != nil {
		return nil, err
	}
	var byKind *OrderType
	for _, ot := range types {
		if ot.Kind != kind {
			continue
		}
		if ot.HandlesConceptClass(c.ClassName) {
			o.OrderTypeID = ot.ID
			return ot, nil
		}
		if byKind == nil && ot.ParentID == nil && kind != KindGeneric {
			byKind = ot
		}
	}
	if byKind != nil {
		o.OrderTypeID = byKind.ID
		return byKind, nil
	}
	return nil, apperr.API("Order.type.cannot.determine: no order type for concept class %q", c.ClassName)
}

// checkAction applies the rules of the order's action and returns the
// previous order that saving o must stop, if any.
func (s *Service) checkAction(ctx context.Context, o *Order) (*Order, error) {
	switch o.Action {
	case ActionNew:
		return nil, s.checkNoDuplicate(ctx, o)
	case ActionRevise, ActionDiscontinue:
		prev, err := s.previousOrder(ctx, o)
		if err != nil {
			return nil, err
		}
		if !prev.IsActive(o.DateActivated) {
			return nil, apperr.API("Order.cannot.discontinue.inactive: order %s is not active", prev.OrderNumber)
		}
		return prev, nil
	case ActionRenew:
		if o.PreviousOrderID == nil {
			return nil, apperr.API("Order.previous.required: a RENEW order needs a previous order")
		}
		prev, err := s.orders.GetByID(ctx, *o.PreviousOrderID)
		if err != nil {
			return nil, missing(err, "previous order", *o.PreviousOrderID)
		}
		if prev.Drug == nil || o.Drug == nil || prev.Drug.DrugID == nil || !o.HasSameOrderableAs(prev) {
			return nil, apperr.API("Order.renew.drug.mismatch: only a drug order for the same drug can be renewed")
		}
		if err := sameContext(o, prev); err != nil {
			return nil, err
		}
		if prev.Voided || prev.IsDiscontinued(o.DateActivated) {
			return nil, apperr.API("Order.cannot.renew.discontinued: order %s was stopped", prev.OrderNumber)
		}
		if prev.IsActive(o.DateActivated) {
			return prev, nil
		}
		return nil, nil
	}
	return nil, apperr.Validation("unknown order action %q", o.Action)
}

func (s *Service) checkNoDuplicate(ctx context.Context, o *Order) error {
	existing, err := s.orders.ListByPatient(ctx, o.PatientID, false)
	if err != nil {
		return err
	}
	for _, other := range existing {
		if other.CareSettingID == o.CareSettingID && other.IsActive(o.DateActivated) && other.HasSameOrderableAs(o) {
			return apperr.API("Order.cannot.have.more.than.one: order %s is already active for this orderable", other.OrderNumber)
		}
	}
	return nil
}

// previousOrder loads and checks the order a REVISE or DISCONTINUE order
// replaces. A DISCONTINUE order naming no previous order stops the active
// order for the same orderable.
func (s *Service) previousOrder(ctx context.Context, o *Order) (*Order, error) {
	var prev *Order
	if o.PreviousOrderID == nil {
		if o.Action != ActionDiscontinue {
			return nil, apperr.API("Order.previous.required: a %s order needs a previous order", o.Action)
		}
		active, err := s.activeFor(ctx, o.PatientID, o.Orderable(), o.CareSettingID, o.DateActivated)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return nil, apperr.API("Order.previous.required: no active order to discontinue")
			}
			return nil, err
		}
		prev = active
		o.PreviousOrderID = &prev.ID
	} else {
		p, err := s.orders.GetByID(ctx, *o.PreviousOrderID)
		if err != nil {
			return nil, missing(err, "previous order", *o.PreviousOrderID)
		}
		prev = p
	}
	if err := sameContext(o, prev); err != nil {
		return nil, err
	}
	if !o.HasSameOrderableAs(prev) {
		return nil, apperr.API("Order.previous.order.has.different.orderable")
	}
	if o.OrderTypeID != prev.OrderTypeID {
		return nil, apperr.API("Order.type.does.not.match: previous order has a different order type")
	}
	return prev, nil
}

func sameContext(o, prev *Order) error {
	if o.PatientID != prev.PatientID {
		return apperr.API("Order.cannot.change.patient")
	}
	if o.CareSettingID != prev.CareSettingID {
		return apperr.API("Order.cannot.change.careSetting")
	}
	return nil
}

// DiscontinueOrder places a DISCONTINUE order that stops orderID.
func (s *Service) DiscontinueOrder(ctx context.Context, orderID uuid.UUID, req DiscontinueRequest) (*Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	date := s.now()
	if req.DiscontinueDate != nil {
		date = *req.DiscontinueDate
	}
	if date.After(s.now()) {
		return nil, apperr.API("Order.discontinueDate.cannot.be.in.future")
	}
	if o.Action == ActionDiscontinue {
		return nil, apperr.API("Order.action.cannot.discontinue: %s is a discontinuation order", o.OrderNumber)
	}
	if !o.IsActive(date) {
		return nil, apperr.API("Order.cannot.discontinue.inactive: order %s is not active", o.OrderNumber)
	}
	d := o.CloneForDiscontinuing()
	d.DateActivated = date
	d.OrderReasonID = req.ReasonConceptID
	d.OrderReasonNonCoded = req.ReasonNonCoded
	d.OrdererID = req.OrdererID
	d.EncounterID = req.EncounterID
	return s.SaveOrder(ctx, d, nil)
}

// VoidOrder voids an order. Voiding the order that stopped its previous
// order reopens the previous one unless another live order replaced it.
func (s *Service) VoidOrder(ctx context.Context, id uuid.UUID, reason string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Voided {
		return o, nil
	}
	if err := db.RunInTx(ctx, func(ctx context.Context) error {
		return s.voidOrder(ctx, o, reason)
	}); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Service) voidOrder(ctx context.Context, o *Order, reason string) error {
	actor := auth.ActorFromContext(ctx)
	if err := o.Void(actor, reason, s.now()); err != nil {
		return err
	}
	o.Touch(actor, s.now())
	if err := s.orders.Update(ctx, o); err != nil {
		return err
	}
	if o.PreviousOrderID == nil || o.Action == ActionNew {
		return nil
	}
	prev, err := s.orders.GetByID(ctx, *o.PreviousOrderID)
	if err != nil {
		return err
	}
	if prev.DateStopped == nil || !prev.DateStopped.Equal(aMomentBefore(o.DateActivated)) {
		return nil
	}
	successors, err := s.orders.ListByPreviousOrder(ctx, prev.ID)
	if err != nil {
		return err
	}
	for _, next := range successors {
		if next.ID != o.ID && !next.Voided && next.Action != ActionNew {
			return nil
		}
	}
	prev.DateStopped = nil
	prev.Touch(actor, s.now())
	return s.orders.Update(ctx, prev)
}

// UnvoidOrder restores a voided order. A REVISE or DISCONTINUE order stops
// its previous order again, which must still be active.
func (s *Service) UnvoidOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !o.Voided {
		return o, nil
	}
	if err := db.RunInTx(ctx, func(ctx context.Context) error {
		return s.unvoidOrder(ctx, o)
	}); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Service) unvoidOrder(ctx context.Context, o *Order) error {
	actor := auth.ActorFromContext(ctx)
	if o.PreviousOrderID != nil && o.Action != ActionNew {
		prev, err := s.orders.GetByID(ctx, *o.PreviousOrderID)
		if err != nil {
			return err
		}
		active := prev.IsActive(o.DateActivated)
		if !active && o.Action != ActionRenew {
			return apperr.API("Order.action.cannot.unvoid: previous order %s is no longer active", prev.OrderNumber)
		}
		if active {
			stop := aMomentBefore(o.DateActivated)
			prev.DateStopped = &stop
			prev.Touch(actor, s.now())
			if err := s.orders.Update(ctx, prev); err != nil {
				return err
			}
		}
	}
	o.Unvoid()
	o.Touch(actor, s.now())
	return s.orders.Update(ctx, o)
}

func (s *Service) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	return s.orders.GetByID(ctx, id)
}

func (s *Service) GetOrderByOrderNumber(ctx context.Context, number string) (*Order, error) {
	return s.orders.GetByOrderNumber(ctx, number)
}

// GetOrderHistoryByConcept returns the patient's orders for a concept,
// newest first.
func (s *Service) GetOrderHistoryByConcept(ctx context.Context, patientID, conceptID uuid.UUID) ([]*Order, error) {
	all, err := s.orders.ListByPatient(ctx, patientID, false)
	if err != nil {
		return nil, err
	}
	var out []*Order
	for _, o := range all {
		if o.ConceptID == conceptID {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DateActivated.After(out[j].DateActivated) })
	return out, nil
}

func (s *Service) GetAllOrdersByPatient(ctx context.Context, patientID uuid.UUID, includeVoided bool) ([]*Order, error) {
	return s.orders.ListByPatient(ctx, patientID, includeVoided)
}

// GetOrders filters the patient's orders. A nil care setting or order type
// matches any; the order type filter includes its subtypes.
func (s *Service) GetOrders(ctx context.Context, patientID uuid.UUID, careSettingID, orderTypeID *uuid.UUID, includeVoided bool) ([]*Order, error) {
	types, err := s.typeFilter(ctx, orderTypeID)
	if err != nil {
		return nil, err
	}
	all, err := s.orders.ListByPatient(ctx, patientID, includeVoided)
	if err != nil {
		return nil, err
	}
	var out []*Order
	for _, o := range all {
		if careSettingID != nil && o.CareSettingID != *careSettingID {
			continue
		}
		if types != nil && !types[o.OrderTypeID] {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

// GetActiveOrders returns the patient's orders active at asOf (now when
// nil) ordered by date activated.
func (s *Service) GetActiveOrders(ctx context.Context, patientID uuid.UUID, orderTypeID, careSettingID *uuid.UUID, asOf *time.Time) ([]*Order, error) {
	at := s.now()
	if asOf != nil {
		at = *asOf
	}
	candidates, err := s.GetOrders(ctx, patientID, careSettingID, orderTypeID, false)
	if err != nil {
		return nil, err
	}
	var out []*Order
	for _, o := range candidates {
		if o.IsActive(at) {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DateActivated.Before(out[j].DateActivated) })
	return out, nil
}

// GetActiveOrderFor returns the patient's order for the orderable that is
// active now in the care setting.
func (s *Service) GetActiveOrderFor(ctx context.Context, patientID uuid.UUID, orderable Orderable, careSettingID uuid.UUID) (*Order, error) {
	return s.activeFor(ctx, patientID, orderable, careSettingID, s.now())
}

func (s *Service) activeFor(ctx context.Context, patientID uuid.UUID, orderable Orderable, careSettingID uuid.UUID, at time.Time) (*Order, error) {
	all, err := s.orders.ListByPatient(ctx, patientID, false)
	if err != nil {
		return nil, err
	}
	for _, o := range all {
		if o.CareSettingID == careSettingID && o.IsActive(at) && o.Orderable().matches(orderable) {
			return o, nil
		}
	}
	return nil, apperr.NotFound("active order", orderable.ConceptID)
}

func (s *Service) successor(ctx context.Context, id uuid.UUID, action Action) (*Order, error) {
	next, err := s.orders.ListByPreviousOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, o := range next {
		if o.Action == action && !o.Voided {
			return o, nil
		}
	}
	return nil, apperr.NotFound(string(action)+" order", id)
}

// GetRevisionOrder returns the live REVISE order that replaced id.
func (s *Service) GetRevisionOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	return s.successor(ctx, id, ActionRevise)
}

// GetDiscontinuationOrder returns the live DISCONTINUE order that stopped id.
func (s *Service) GetDiscontinuationOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	return s.successor(ctx, id, ActionDiscontinue)
}

// UpdateOrderFulfillerStatus is the only change allowed on a saved order.
func (s *Service) UpdateOrderFulfillerStatus(ctx context.Context, id uuid.UUID, status FulfillerStatus, comment string) (*Order, error) {
	if !fulfillerStatuses[status] {
		return nil, apperr.Validation("unknown fulfiller status %q", status)
	}
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Voided {
		return nil, apperr.API("Order.cannot.update.voided: order %s is voided", o.OrderNumber)
	}
	o.FulfillerStatus = status
	o.FulfillerComment = comment
	o.Touch(auth.ActorFromContext(ctx), s.now())
	if err := s.orders.Update(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// GetNewOrderNumber issues an order number without saving an order.
func (s *Service) GetNewOrderNumber(ctx context.Context) (string, error) {
	return s.numbers.NewOrderNumber(ctx)
}

// PurgeOrder deletes an order row. Orders revised or discontinued by other
// orders cannot be purged.
func (s *Service) PurgeOrder(ctx context.Context, id uuid.UUID) error {
	next, err := s.orders.ListByPreviousOrder(ctx, id)
	if err != nil {
		return err
	}
	if len(next) > 0 {
		return apperr.API("Order.cannot.purge: order is referenced by %d later orders", len(next))
	}
	return s.orders.Delete(ctx, id)
}
