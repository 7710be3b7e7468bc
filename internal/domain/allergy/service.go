package allergy

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openmrs/openmrs-api/internal/domain/concept"
	"github.com/openmrs/openmrs-api/internal/domain/patient"
	"github.com/openmrs/openmrs-api/internal/platform/apperr"
	"github.com/openmrs/openmrs-api/internal/platform/auth"
	"github.com/openmrs/openmrs-api/internal/platform/db"
)

// ReasonRemovedFromList voids allergies dropped by SetAllergies.
const ReasonRemovedFromList = "removed from allergy list"

type PatientLookup interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
}

type ConceptLookup interface {
	GetConcept(ctx context.Context, id uuid.UUID) (*concept.Concept, error)
}

type Service struct {
	allergies Repository
	patients  PatientLookup
	concepts  ConceptLookup
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(allergies Repository, patients PatientLookup, concepts ConceptLookup) *Service {
	return &Service{allergies: allergies, patients: patients, concepts: concepts, logger: zerolog.Nop(), now: time.Now}
}

func (s *Service) SetLogger(l zerolog.Logger) {
	s.logger = l
}

func missing(err error, what string, id uuid.UUID) error {
	if errors.Is(err, apperr.ErrNotFound) {
		return apperr.Validation("%s %s does not exist", what, id)
	}
	return err
}

func (s *Service) validate(ctx context.Context, a *Allergy) error {
	if a.PatientID == uuid.Nil {
		return apperr.Validation("allergy patient is required")
	}
	if _, err := s.patients.GetPatient(ctx, a.PatientID); err != nil {
		return missing(err, "patient", a.PatientID)
	}
	switch a.AllergenType {
	case AllergenDrug, AllergenFood, AllergenEnvironment, AllergenOther:
	default:
		return apperr.Validation("unknown allergen type %q", a.AllergenType)
	}
	a.NonCodedAllergen = strings.TrimSpace(a.NonCodedAllergen)
	if (a.CodedAllergenID == nil) == (a.NonCodedAllergen == "") {
		return apperr.Validation("an allergy needs exactly one of a coded or a non-coded allergen")
	}
	if a.CodedAllergenID != nil {
		if _, err := s.concepts.GetConcept(ctx, *a.CodedAllergenID); err != nil {
			return missing(err, "allergen concept", *a.CodedAllergenID)
		}
	}
	switch a.Severity {
	case "", SeverityMild, SeverityModerate, SeveritySevere:
	default:
		return apperr.Validation("unknown severity %q", a.Severity)
	}
	for _, re := range a.Reactions {
		if re.ReactionConceptID == nil && strings.TrimSpace(re.ReactionNonCoded) == "" {
			return apperr.Validation("an allergy reaction needs a concept or text")
		}
		if re.ReactionConceptID != nil {
			if _, err := s.concepts.GetConcept(ctx, *re.ReactionConceptID); err != nil {
				return missing(err, "reaction concept", *re.ReactionConceptID)
			}
		}
	}
	return nil
}

func duplicate(a *Allergy) error {
	name := a.NonCodedAllergen
	if a.CodedAllergenID != nil {
		name = a.CodedAllergenID.String()
	}
	return apperr.API("Allergy.duplicate: the patient already has an allergy to %s", name)
}

// GetAllergies returns the patient's unvoided allergies. The status is
// "See list" when there are any, otherwise the stored status.
func (s *Service) GetAllergies(ctx context.Context, patientID uuid.UUID) (*Allergies, error) {
	items, err := s.allergies.ListByPatient(ctx, patientID, false)
	if err != nil {
		return nil, err
	}
	if len(items) > 0 {
		return &Allergies{Status: StatusSeeList, Items: items}, nil
	}
	status, err := s.allergies.GetStatus(ctx, patientID)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		status = StatusUnknown
	case err != nil:
		return nil, err
	}
	return &Allergies{Status: status, Items: []*Allergy{}}, nil
}

// SetAllergies replaces the patient's allergy list. Allergies missing from
// the new list are voided. An empty list records list.Status, which must
// be Unknown or No known allergies.
func (s *Service) SetAllergies(ctx context.Context, patientID uuid.UUID, list *Allergies) (*Allergies, error) {
	if list == nil {
		return nil, apperr.InvalidArgument("allergies are required")
	}
	for i, a := range list.Items {
		a.PatientID = patientID
		if err := s.validate(ctx, a); err != nil {
			return nil, err
		}
		for _, prev := range list.Items[:i] {
			if prev.HasSameAllergen(a) {
				return nil, duplicate(a)
			}
		}
	}
	status := StatusSeeList
	if len(list.Items) == 0 {
		status = list.Status
		if status == "" {
			status = StatusUnknown
		}
		if status != StatusUnknown && status != StatusNoKnownAllergies {
			return nil, apperr.Validation("an empty allergy list must have status %q or %q", StatusUnknown, StatusNoKnownAllergies)
		}
	}

	existing, err := s.allergies.ListByPatient(ctx, patientID, false)
	if err != nil {
		return nil, err
	}
	existingByID := make(map[uuid.UUID]*Allergy, len(existing))
	for _, old := range existing {
		existingByID[old.ID] = old
	}
	keep := map[uuid.UUID]bool{}
	for _, a := range list.Items {
		if a.ID == uuid.Nil {
			continue
		}
		old, ok := existingByID[a.ID]
		if !ok {
			return nil, apperr.Validation("allergy %s is not on the patient's allergy list", a.ID)
		}
		a.Stamp = old.Stamp
		a.Voidable = old.Voidable
		keep[a.ID] = true
	}
	actor := auth.ActorFromContext(ctx)
	err = db.RunInTx(ctx, func(ctx context.Context) error {
		for _, old := range existing {
			if keep[old.ID] {
				continue
			}
			if err := old.Void(actor, ReasonRemovedFromList, s.now()); err != nil {
				return err
			}
			old.Touch(actor, s.now())
			if err := s.allergies.Update(ctx, old); err != nil {
				return err
			}
		}
		for _, a := range list.Items {
			a.Touch(actor, s.now())
			if a.ID == uuid.Nil {
				err = s.allergies.Create(ctx, a)
			} else {
				err = s.allergies.Update(ctx, a)
			}
			if err != nil {
				return err
			}
		}
		return s.allergies.SetStatus(ctx, patientID, status)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("patient_id", patientID.String()).Str("status", status).
		Int("allergies", len(list.Items)).Msg("allergy list set")
	return s.GetAllergies(ctx, patientID)
}

func (s *Service) GetAllergy(ctx context.Context, id uuid.UUID) (*Allergy, error) {
	return s.allergies.GetByID(ctx, id)
}

// SaveAllergy adds or updates one allergy. The patient may not have two
// unvoided allergies to the same allergen.
func (s *Service) SaveAllergy(ctx context.Context, a *Allergy) (*Allergy, error) {
	if a == nil {
		return nil, apperr.InvalidArgument("allergy is required")
	}
	if err := s.validate(ctx, a); err != nil {
		return nil, err
	}
	if a.ID != uuid.Nil {
		stored, err := s.allergies.GetByID(ctx, a.ID)
		switch {
		case errors.Is(err, apperr.ErrNotFound):
		case err != nil:
			return nil, err
		case stored.PatientID != a.PatientID:
			return nil, apperr.Validation("allergy %s belongs to another patient", a.ID)
		}
	}
	existing, err := s.allergies.ListByPatient(ctx, a.PatientID, false)
	if err != nil {
		return nil, err
	}
	for _, other := range existing {
		if other.ID != a.ID && other.HasSameAllergen(a) {
			return nil, duplicate(a)
		}
	}
	a.Touch(auth.ActorFromContext(ctx), s.now())
	err = db.RunInTx(ctx, func(ctx context.Context) error {
		if a.ID == uuid.Nil {
			if err := s.allergies.Create(ctx, a); err != nil {
				return err
			}
		} else if err := s.allergies.Update(ctx, a); err != nil {
			return err
		}
		return s.allergies.SetStatus(ctx, a.PatientID, StatusSeeList)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) VoidAllergy(ctx context.Context, id uuid.UUID, reason string) (*Allergy, error) {
	a, err := s.allergies.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	actor := auth.ActorFromContext(ctx)
	if err := a.Void(actor, reason, s.now()); err != nil {
		return nil, err
	}
	a.Touch(actor, s.now())
	if err := s.allergies.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// UnvoidAllergy restores an allergy unless an unvoided allergy to the same
// allergen has been recorded since.
func (s *Service) UnvoidAllergy(ctx context.Context, id uuid.UUID) (*Allergy, error) {
	a, err := s.allergies.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.Voided {
		return a, nil
	}
	existing, err := s.allergies.ListByPatient(ctx, a.PatientID, false)
	if err != nil {
		return nil, err
	}
	for _, other := range existing {
		if other.HasSameAllergen(a) {
			return nil, duplicate(a)
		}
	}
	a.Unvoid()
	a.Touch(auth.ActorFromContext(ctx), s.now())
	if err := s.allergies.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// NotifyPatientVoided voids the patient's allergies.
func (s *Service) NotifyPatientVoided(ctx context.Context, patientID uuid.UUID, reason string) error {
	items, err := s.allergies.ListByPatient(ctx, patientID, false)
	if err != nil {
		return err
	}
	actor := auth.ActorFromContext(ctx)
	for _, a := range items {
		if err := a.Void(actor, reason, s.now()); err != nil {
			return err
		}
		a.Touch(actor, s.now())
		if err := s.allergies.Update(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// NotifyPatientUnvoided restores the allergies voided with the patient.
func (s *Service) NotifyPatientUnvoided(ctx context.Context, patientID uuid.UUID, reason string) error {
	items, err := s.allergies.ListByPatient(ctx, patientID, true)
	if err != nil {
		return err
	}
	actor := auth.ActorFromContext(ctx)
	for _, a := range items {
		if !a.VoidedWith(reason) {
			continue
		}
		a.Unvoid()
		a.Touch(actor, s.now())
		if err := s.allergies.Update(ctx, a); err != nil {
			return err
		}
	}
	return nil
}
