package concept

import (
	"github.com/google/uuid"

	"github.com/openmrs/openmrs-api/internal/domain/audit"
)

// Concept classes known to the order and program modules.
const (
	ClassDrug      = "Drug"
	ClassTest      = "Test"
	ClassDiagnosis = "Diagnosis"
	ClassMisc      = "Misc"
	ClassFrequency = "Frequency"
	ClassReason    = "Reason"
	ClassProgram   = "Program"
	ClassState     = "State"
	ClassUnits     = "Units"
	ClassAllergen  = "Allergen"
)

var knownClasses = map[string]bool{
	ClassDrug: true, ClassTest: true, ClassDiagnosis: true, ClassMisc: true,
	ClassFrequency: true, ClassReason: true, ClassProgram: true, ClassState: true,
	ClassUnits: true, ClassAllergen: true,
}

// Concept maps to the concept table.
type Concept struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	ShortName string    `db:"short_name" json:"short_name,omitempty"`
	ClassName string    `db:"class_name" json:"class_name"`
	Datatype  string    `db:"datatype" json:"datatype"`
	audit.Stamp
	audit.Retirable
}

// Drug maps to the drug table. Every drug is a formulation of a concept.
type Drug struct {
	ID         uuid.UUID `db:"id" json:"id"`
	ConceptID  uuid.UUID `db:"concept_id" json:"concept_id"`
	Name       string    `db:"name" json:"name"`
	Strength   string    `db:"strength" json:"strength,omitempty"`
	DosageForm string    `db:"dosage_form" json:"dosage_form,omitempty"`
	audit.Stamp
	audit.Retirable
}
