package order

import (
	"context"

	"github.com/google/uuid"
)

// OrderRepository persists orders with their drug or test details.
type OrderRepository interface {
	Create(ctx context.Context, o *Order) error
	// Update writes the mutable columns only: stop date, fulfiller
	// status and the void fields.
	Update(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	GetByOrderNumber(ctx context.Context, number string) (*Order, error)
	// ListByPatient returns orders by date activated, oldest first.
	ListByPatient(ctx context.Context, patientID uuid.UUID, includeVoided bool) ([]*Order, error)
	ListByEncounter(ctx context.Context, encounterID uuid.UUID, includeVoided bool) ([]*Order, error)
	// ListByPreviousOrder returns every order, voided or not, whose
	// previous order is prevID.
	ListByPreviousOrder(ctx context.Context, prevID uuid.UUID) ([]*Order, error)
	CountByOrderType(ctx context.Context, orderTypeID uuid.UUID) (int, error)
	CountByFrequency(ctx context.Context, frequencyID uuid.UUID) (int, error)
	CountByCareSetting(ctx context.Context, careSettingID uuid.UUID) (int, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type CareSettingRepository interface {
	Create(ctx context.Context, cs *CareSetting) error
	Update(ctx context.Context, cs *CareSetting) error
	GetByID(ctx context.Context, id uuid.UUID) (*CareSetting, error)
	GetByName(ctx context.Context, name string) (*CareSetting, error)
	List(ctx context.Context, includeRetired bool) ([]*CareSetting, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type OrderTypeRepository interface {
	Create(ctx context.Context, ot *OrderType) error
	Update(ctx context.Context, ot *OrderType) error
	GetByID(ctx context.Context, id uuid.UUID) (*OrderType, error)
	GetByName(ctx context.Context, name string) (*OrderType, error)
	List(ctx context.Context, includeRetired bool) ([]*OrderType, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type OrderFrequencyRepository interface {
	Create(ctx context.Context, f *OrderFrequency) error
	Update(ctx context.Context, f *OrderFrequency) error
	GetByID(ctx context.Context, id uuid.UUID) (*OrderFrequency, error)
	GetByConcept(ctx context.Context, conceptID uuid.UUID) (*OrderFrequency, error)
	List(ctx context.Context, includeRetired bool) ([]*OrderFrequency, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
