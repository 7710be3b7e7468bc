package location

import (
	"strings"

	"github.com/google/uuid"

	"github.com/openmrs/openmrs-api/internal/domain/audit"
)

// UnknownLocationName is the fallback when no default location is set.
const UnknownLocationName = "Unknown Location"

// Location maps to the location table. Tags holds tag names.
type Location struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	Name             string     `db:"name" json:"name"`
	Description      string     `db:"description" json:"description,omitempty"`
	Address1         string     `db:"address1" json:"address1,omitempty"`
	Address2         string     `db:"address2" json:"address2,omitempty"`
	CityVillage      string     `db:"city_village" json:"city_village,omitempty"`
	StateProvince    string     `db:"state_province" json:"state_province,omitempty"`
	Country          string     `db:"country" json:"country,omitempty"`
	PostalCode       string     `db:"postal_code" json:"postal_code,omitempty"`
	ParentLocationID *uuid.UUID `db:"parent_location_id" json:"parent_location_id,omitempty"`
	Tags             []string   `json:"tags"`
	audit.Stamp
	audit.Retirable
}

// HasTag reports whether the location carries tag, ignoring case.
func (l *Location) HasTag(tag string) bool {
	for _, t := range l.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// LocationTag maps to the location_tag table.
type LocationTag struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description,omitempty"`
	audit.Stamp
	audit.Retirable
}
