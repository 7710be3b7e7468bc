package admin

import (
	"strconv"
	"strings"

	"github.com/openmrs/openmrs-api/internal/platform/apperr"
)

// Well-known global property names.
const (
	PropDefaultLocation        = "default_location"
	PropNextOrderNumberSeed    = "order.nextOrderNumberSeed"
	PropDrugDosingUnitsConcept = "order.drugDosingUnitsConceptUuid"
	PropUnknownProviderUUID    = "provider.unknownProviderUuid"
	PropPatientIdentifierRegex = "patient.identifierRegex"
	PropCohortMaxMembers       = "cohort.maxMembers"
)

// Datatypes a global property value may be constrained to. Enumerations
// are written as "enum:a|b|c".
const (
	DatatypeText     = ""
	DatatypeBoolean  = "boolean"
	DatatypeInteger  = "integer"
	DatatypeFloat    = "float"
	DatatypeLocation = "location"

	enumPrefix = "enum:"
)

const maxPropertyLength = 255

// GlobalProperty maps to the global_property table. Property names are
// unique regardless of case.
type GlobalProperty struct {
	Property      string `db:"property" json:"property"`
	PropertyValue string `db:"property_value" json:"property_value"`
	Description   string `db:"description" json:"description,omitempty"`
	Datatype      string `db:"datatype" json:"datatype,omitempty"`
}

// NormalizeName folds a property name into its cache and lookup key.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return apperr.Validation("global property name is required")
	}
	if len(name) > maxPropertyLength {
		return apperr.Validation("global property name must be at most %d characters", maxPropertyLength)
	}
	if strings.ContainsAny(name, " \t\r\n") {
		return apperr.Validation("global property name %q must not contain whitespace", name)
	}
	return nil
}

// validateBuiltinValue checks value against the datatypes that need no
// external lookup. It reports false when the datatype is not built in.
func validateBuiltinValue(datatype, value string) (bool, error) {
	switch {
	case datatype == DatatypeText:
		return true, nil
	case datatype == DatatypeBoolean:
		if value != "" && value != "true" && value != "false" {
			return true, apperr.Validation("value %q is not a boolean", value)
		}
		return true, nil
	case datatype == DatatypeInteger:
		if value == "" {
			return true, nil
		}
		if _, err := strconv.ParseInt(value, 10, 64); err != nil {
			return true, apperr.Validation("value %q is not an integer", value)
		}
		return true, nil
	case datatype == DatatypeFloat:
		if value == "" {
			return true, nil
		}
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return true, apperr.Validation("value %q is not a number", value)
		}
		return true, nil
	case strings.HasPrefix(datatype, enumPrefix):
		if value == "" {
			return true, nil
		}
		for _, allowed := range strings.Split(strings.TrimPrefix(datatype, enumPrefix), "|") {
			if value == allowed {
				return true, nil
			}
		}
		return true, apperr.Validation("value %q is not one of %s", value, strings.TrimPrefix(datatype, enumPrefix))
	}
	return false, nil
}
