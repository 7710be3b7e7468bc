package patient

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openmrs/openmrs-api/internal/domain/audit"
)

// Administrative gender codes.
const (
	GenderMale    = "M"
	GenderFemale  = "F"
	GenderOther   = "O"
	GenderUnknown = "U"
)

// Patient maps to the patient table.
type Patient struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	Identifier string     `db:"identifier" json:"identifier"`
	GivenName  string     `db:"given_name" json:"given_name"`
	FamilyName string     `db:"family_name" json:"family_name,omitempty"`
	Gender     string     `db:"gender" json:"gender"`
	BirthDate  *time.Time `db:"birthdate" json:"birthdate,omitempty"`
	Dead       bool       `db:"dead" json:"dead"`
	audit.Stamp
	audit.Voidable
}

// FullName joins the given and family names.
func (p *Patient) FullName() string {
	return strings.TrimSpace(p.GivenName + " " + p.FamilyName)
}

func validGender(g string) bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther, GenderUnknown:
		return true
	}
	return false
}
