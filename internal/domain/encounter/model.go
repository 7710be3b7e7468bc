package encounter

import (
	"time"

	"github.com/google/uuid"

	"github.com/openmrs/openmrs-api/internal/domain/audit"
)

// Encounter maps to the encounter table. ProviderIDs are stored in
// encounter_provider.
type Encounter struct {
	ID                uuid.UUID   `db:"id" json:"id"`
	PatientID         uuid.UUID   `db:"patient_id" json:"patient_id"`
	LocationID        uuid.UUID   `db:"location_id" json:"location_id"`
	EncounterType     string      `db:"encounter_type" json:"encounter_type"`
	EncounterDatetime time.Time   `db:"encounter_datetime" json:"encounter_datetime"`
	ProviderIDs       []uuid.UUID `db:"-" json:"provider_ids"`
	audit.Stamp
	audit.Voidable
}
