package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openmrs/openmrs-api/internal/domain/audit"
)

type Action string

const (
	ActionNew         Action = "NEW"
	ActionRevise      Action = "REVISE"
	ActionDiscontinue Action = "DISCONTINUE"
	ActionRenew       Action = "RENEW"
)

type Urgency string

const (
	UrgencyRoutine         Urgency = "ROUTINE"
	UrgencyStat            Urgency = "STAT"
	UrgencyOnScheduledDate Urgency = "ON_SCHEDULED_DATE"
)

type FulfillerStatus string

const (
	FulfillerReceived   FulfillerStatus = "RECEIVED"
	FulfillerInProgress FulfillerStatus = "IN_PROGRESS"
	FulfillerException  FulfillerStatus = "EXCEPTION"
	FulfillerOnHold     FulfillerStatus = "ON_HOLD"
	FulfillerDeclined   FulfillerStatus = "DECLINED"
	FulfillerCompleted  FulfillerStatus = "COMPLETED"
)

var fulfillerStatuses = map[FulfillerStatus]bool{
	FulfillerReceived: true, FulfillerInProgress: true, FulfillerException: true,
	FulfillerOnHold: true, FulfillerDeclined: true, FulfillerCompleted: true,
}

// Care setting types.
const (
	CareSettingOutpatient = "OUTPATIENT"
	CareSettingInpatient  = "INPATIENT"
)

// Order type kinds. The kind decides which detail payload an order carries.
const (
	KindDrug    = "drug"
	KindTest    = "test"
	KindGeneric = "generic"
)

// Drug dosing types.
const (
	DosingSimple   = "simple"
	DosingFreeText = "free_text"
)

// Duration units accepted on drug orders.
const (
	DurationMinutes = "MINUTES"
	DurationHours   = "HOURS"
	DurationDays    = "DAYS"
	DurationWeeks   = "WEEKS"
	DurationMonths  = "MONTHS"
	DurationYears   = "YEARS"
)

// CareSetting maps to the care_setting table.
type CareSetting struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description,omitempty"`
	Type        string    `db:"care_setting_type" json:"care_setting_type"`
	audit.Stamp
	audit.Retirable
}

// OrderType maps to the order_type table. ConceptClasses lists the concept
// classes whose concepts default to this type.
type OrderType struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	Name           string     `db:"name" json:"name"`
	Description    string     `db:"description" json:"description,omitempty"`
	Kind           string     `db:"kind" json:"kind"`
	ParentID       *uuid.UUID `db:"parent_id" json:"parent_id,omitempty"`
	ConceptClasses []string   `db:"concept_classes" json:"concept_classes"`
	audit.Stamp
	audit.Retirable
}

// OrderFrequency maps to the order_frequency table.
type OrderFrequency struct {
	ID              uuid.UUID `db:"id" json:"id"`
	ConceptID       uuid.UUID `db:"concept_id" json:"concept_id"`
	FrequencyPerDay float64   `db:"frequency_per_day" json:"frequency_per_day"`
	audit.Stamp
	audit.Retirable
}

// Order maps to the orders table. Drug and Test carry the subtype payload
// stored in drug_order and test_order.
type Order struct {
	ID                  uuid.UUID       `db:"id" json:"id"`
	OrderNumber         string          `db:"order_number" json:"order_number"`
	PatientID           uuid.UUID       `db:"patient_id" json:"patient_id"`
	EncounterID         uuid.UUID       `db:"encounter_id" json:"encounter_id"`
	ConceptID           uuid.UUID       `db:"concept_id" json:"concept_id"`
	OrdererID           uuid.UUID       `db:"orderer_id" json:"orderer_id"`
	CareSettingID       uuid.UUID       `db:"care_setting_id" json:"care_setting_id"`
	OrderTypeID         uuid.UUID       `db:"order_type_id" json:"order_type_id"`
	Action              Action          `db:"order_action" json:"action"`
	Urgency             Urgency         `db:"urgency" json:"urgency"`
	ScheduledDate       *time.Time      `db:"scheduled_date" json:"scheduled_date,omitempty"`
	DateActivated       time.Time       `db:"date_activated" json:"date_activated"`
	AutoExpireDate      *time.Time      `db:"auto_expire_date" json:"auto_expire_date,omitempty"`
	DateStopped         *time.Time      `db:"date_stopped" json:"date_stopped,omitempty"`
	PreviousOrderID     *uuid.UUID      `db:"previous_order_id" json:"previous_order_id,omitempty"`
	OrderReasonID       *uuid.UUID      `db:"order_reason_id" json:"order_reason_id,omitempty"`
	OrderReasonNonCoded string          `db:"order_reason_non_coded" json:"order_reason_non_coded,omitempty"`
	Instructions        string          `db:"instructions" json:"instructions,omitempty"`
	CommentToFulfiller  string          `db:"comment_to_fulfiller" json:"comment_to_fulfiller,omitempty"`
	FulfillerStatus     FulfillerStatus `db:"fulfiller_status" json:"fulfiller_status,omitempty"`
	FulfillerComment    string          `db:"fulfiller_comment" json:"fulfiller_comment,omitempty"`
	Drug                *DrugDetails    `db:"-" json:"drug,omitempty"`
	Test                *TestDetails    `db:"-" json:"test,omitempty"`
	audit.Stamp
	audit.Voidable
}

// DrugDetails maps to the drug_order table.
type DrugDetails struct {
	DrugID             *uuid.UUID          `db:"drug_id" json:"drug_id,omitempty"`
	DosingType         string              `db:"dosing_type" json:"dosing_type"`
	Dose               decimal.NullDecimal `db:"dose" json:"dose"`
	DoseUnits          string              `db:"dose_units" json:"dose_units,omitempty"`
	Route              string              `db:"route" json:"route,omitempty"`
	FrequencyID        *uuid.UUID          `db:"frequency_id" json:"frequency_id,omitempty"`
	AsNeeded           bool                `db:"as_needed" json:"as_needed"`
	AsNeededCondition  string              `db:"as_needed_condition" json:"as_needed_condition,omitempty"`
	Quantity           decimal.NullDecimal `db:"quantity" json:"quantity"`
	QuantityUnits      string              `db:"quantity_units" json:"quantity_units,omitempty"`
	NumRefills         *int                `db:"num_refills" json:"num_refills,omitempty"`
	Duration           *int                `db:"duration" json:"duration,omitempty"`
	DurationUnits      string              `db:"duration_units" json:"duration_units,omitempty"`
	DosingInstructions string              `db:"dosing_instructions" json:"dosing_instructions,omitempty"`
}

// TestDetails maps to the test_order table.
type TestDetails struct {
	Specimen        string `db:"specimen" json:"specimen,omitempty"`
	Laterality      string `db:"laterality" json:"laterality,omitempty"`
	ClinicalHistory string `db:"clinical_history" json:"clinical_history,omitempty"`
	NumberOfRepeats *int   `db:"number_of_repeats" json:"number_of_repeats,omitempty"`
}

// Orderable identifies what an order is for: a drug when DrugID is set,
// otherwise a concept.
type Orderable struct {
	ConceptID uuid.UUID
	DrugID    *uuid.UUID
}
