package order

import (
	"context"

	"github.com/google/uuid"

	"github.com/openmrs/openmrs-api/internal/platform/auth"
)

// NotifyPatientVoided voids every unvoided order of the patient, stopped
// and discontinued ones too. It runs inside the patient's voiding
// transaction.
func (s *Service) NotifyPatientVoided(ctx context.Context, patientID uuid.UUID, reason string) error {
	orders, err := s.orders.ListByPatient(ctx, patientID, false)
	if err != nil {
		return err
	}
	actor := auth.ActorFromContext(ctx)
	for _, o := range orders {
		if err := o.Void(actor, reason, s.now()); err != nil {
			return err
		}
		o.Touch(actor, s.now())
		if err := s.orders.Update(ctx, o); err != nil {
			return err
		}
	}
	return nil
}

// NotifyPatientUnvoided restores the orders voided with the patient.
func (s *Service) NotifyPatientUnvoided(ctx context.Context, patientID uuid.UUID, reason string) error {
	orders, err := s.orders.ListByPatient(ctx, patientID, true)
	if err != nil {
		return err
	}
	actor := auth.ActorFromContext(ctx)
	for _, o := range orders {
		if !o.VoidedWith(reason) {
			continue
		}
		o.Unvoid()
		o.Touch(actor, s.now())
		if err := s.orders.Update(ctx, o); err != nil {
			return err
		}
	}
	return nil
}

// VoidEncounterOrders voids the encounter's orders newest first, so each
// void sees its successors already voided.
func (s *Service) VoidEncounterOrders(ctx context.Context, encounterID uuid.UUID, reason string) error {
	orders, err := s.orders.ListByEncounter(ctx, encounterID, false)
	if err != nil {
		return err
	}
	for i := len(orders) - 1; i >= 0; i-- {
		o, err := s.orders.GetByID(ctx, orders[i].ID)
		if err != nil {
			return err
		}
		if o.Voided {
			continue
		}
		if err := s.voidOrder(ctx, o, reason); err != nil {
			return err
		}
	}
	return nil
}

// UnvoidEncounterOrders restores, oldest first, the encounter's orders
// voided with reason.
func (s *Service) UnvoidEncounterOrders(ctx context.Context, encounterID uuid.UUID, reason string) error {
	orders, err := s.orders.ListByEncounter(ctx, encounterID, true)
	if err != nil {
		return err
	}
	for _, listed := range orders {
		if !listed.VoidedWith(reason) {
			continue
		}
		o, err := s.orders.GetByID(ctx, listed.ID)
		if err != nil {
			return err
		}
		if err := s.unvoidOrder(ctx, o); err != nil {
			return err
		}
	}
	return nil
}
