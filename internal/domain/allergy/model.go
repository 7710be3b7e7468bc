package allergy

import (
	"strings"

	"github.com/google/uuid"

	"github.com/openmrs/openmrs-api/internal/domain/audit"
)

type AllergenType string

const (
	AllergenDrug        AllergenType = "DRUG"
	AllergenFood        AllergenType = "FOOD"
	AllergenEnvironment AllergenType = "ENVIRONMENT"
	AllergenOther       AllergenType = "OTHER"
)

type Severity string

const (
	SeverityMild     Severity = "MILD"
	SeverityModerate Severity = "MODERATE"
	SeveritySevere   Severity = "SEVERE"
)

// Status of a patient's allergy list.
const (
	StatusUnknown          = "Unknown"
	StatusNoKnownAllergies = "No known allergies"
	StatusSeeList          = "See list"
)

// Allergy maps to the allergy table.
type Allergy struct {
	ID               uuid.UUID          `db:"id" json:"id"`
	PatientID        uuid.UUID          `db:"patient_id" json:"patient_id"`
	AllergenType     AllergenType       `db:"allergen_type" json:"allergen_type"`
	CodedAllergenID  *uuid.UUID         `db:"coded_allergen_id" json:"coded_allergen_id,omitempty"`
	NonCodedAllergen string             `db:"non_coded_allergen" json:"non_coded_allergen,omitempty"`
	Severity         Severity           `db:"severity" json:"severity,omitempty"`
	Comment          string             `db:"comment" json:"comment,omitempty"`
	Reactions        []*AllergyReaction `db:"-" json:"reactions"`
	audit.Stamp
	audit.Voidable
}

// AllergyReaction maps to the allergy_reaction table.
type AllergyReaction struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	AllergyID         uuid.UUID  `db:"allergy_id" json:"allergy_id"`
	ReactionConceptID *uuid.UUID `db:"reaction_concept_id" json:"reaction_concept_id,omitempty"`
	ReactionNonCoded  string     `db:"reaction_non_coded" json:"reaction_non_coded,omitempty"`
}

// Allergies is a patient's allergy list with its status.
type Allergies struct {
	Status string     `json:"status"`
	Items  []*Allergy `json:"items"`
}

// allergenKey identifies what the patient is allergic to.
func (a *Allergy) allergenKey() string {
	if a.CodedAllergenID != nil {
		return "coded:" + a.CodedAllergenID.String()
	}
	return "text:" + strings.ToLower(strings.TrimSpace(a.NonCodedAllergen))
}

// HasSameAllergen reports whether a and b name the same allergen.
func (a *Allergy) HasSameAllergen(b *Allergy) bool {
	return a.allergenKey() == b.allergenKey()
}
