package provider

import (
	"github.com/google/uuid"

	"github.com/openmrs/openmrs-api/internal/domain/audit"
)

// Provider maps to the provider table.
type Provider struct {
	ID         uuid.UUID `db:"id" json:"id"`
	PersonName string    `db:"person_name" json:"person_name,omitempty"`
	Identifier string    `db:"identifier" json:"identifier,omitempty"`
	Role       string    `db:"role" json:"role,omitempty"`
	audit.Stamp
	audit.Retirable
}
