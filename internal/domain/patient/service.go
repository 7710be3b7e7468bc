package patient

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openmrs/openmrs-api/internal/platform/apperr"
	"github.com/openmrs/openmrs-api/internal/platform/auth"
	"github.com/openmrs/openmrs-api/internal/platform/db"
)

const propIdentifierRegex = "patient.identifierRegex"

// PropertyReader reads global properties.
type PropertyReader interface {
	GetGlobalProperty(ctx context.Context, name string) (string, error)
}

// VoidListener is notified inside the voiding transaction when a patient
// is voided or unvoided, so dependent records can follow.
type VoidListener interface {
	NotifyPatientVoided(ctx context.Context, patientID uuid.UUID, reason string) error
	NotifyPatientUnvoided(ctx context.Context, patientID uuid.UUID, reason string) error
}

type Service struct {
	patients  PatientRepository
	props     PropertyReader
	listeners []VoidListener
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(patients PatientRepository, props PropertyReader) *Service {
	return &Service{patients: patients, props: props, logger: zerolog.Nop(), now: time.Now}
}

func (s *Service) SetLogger(l zerolog.Logger) {
	s.logger = l
}

// AddVoidListener registers l for patient void and unvoid events.
func (s *Service) AddVoidListener(l VoidListener) {
	s.listeners = append(s.listeners, l)
}

func (s *Service) validate(ctx context.Context, p *Patient) error {
	p.Identifier = strings.TrimSpace(p.Identifier)
	if p.Identifier == "" {
		return apperr.Validation("patient identifier is required")
	}
	if strings.TrimSpace(p.GivenName) == "" {
		return apperr.Validation("patient given name is required")
	}
	if !validGender(p.Gender) {
		return apperr.Validation("gender must be one of M, F, O, U")
	}
	if p.BirthDate != nil && p.BirthDate.After(s.now()) {
		return apperr.Validation("birthdate cannot be in the future")
	}
	if s.props != nil {
		pattern, err := s.props.GetGlobalProperty(ctx, propIdentifierRegex)
		if err != nil {
			return err
		}
		if pattern != "" {
			re, err := regexp.Compile("^(?:" + pattern + ")$")
			if err != nil {
				return apperr.API("invalid %s pattern %q", propIdentifierRegex, pattern)
			}
			if !re.MatchString(p.Identifier) {
				return apperr.Validation("identifier %q does not match %s", p.Identifier, pattern)
			}
		}
	}
	existing, err := s.patients.GetByIdentifier(ctx, p.Identifier)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
	case err != nil:
		return err
	case existing.ID != p.ID:
		return apperr.Validation("identifier %s is already in use by another patient", p.Identifier)
	}
	return nil
}

// SavePatient creates p when it has no ID and updates it otherwise.
func (s *Service) SavePatient(ctx context.Context, p *Patient) (*Patient, error) {
	if p == nil {
		return nil, apperr.InvalidArgument("patient is required")
	}
	if err := s.validate(ctx, p); err != nil {
		return nil, err
	}
	p.Touch(auth.ActorFromContext(ctx), s.now())
	if p.ID == uuid.Nil {
		if err := s.patients.Create(ctx, p); err != nil {
			return nil, err
		}
		return p, nil
	}
	if err := s.patients.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) GetPatientByIdentifier(ctx context.Context, identifier string) (*Patient, error) {
	return s.patients.GetByIdentifier(ctx, strings.TrimSpace(identifier))
}

func (s *Service) SearchPatients(ctx context.Context, name string, includeVoided bool, limit, offset int) ([]*Patient, int, error) {
	return s.patients.Search(ctx, strings.TrimSpace(name), includeVoided, limit, offset)
}

// VoidPatient voids the patient and lets every listener void the records
// that hang off it.
func (s *Service) VoidPatient(ctx context.Context, id uuid.UUID, reason string) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Voided {
		return p, nil
	}
	err = db.RunInTx(ctx, func(ctx context.Context) error {
		actor := auth.ActorFromContext(ctx)
		if err := p.Void(actor, reason, s.now()); err != nil {
			return err
		}
		p.Touch(actor, s.now())
		if err := s.patients.Update(ctx, p); err != nil {
			return err
		}
		for _, l := range s.listeners {
			if err := l.NotifyPatientVoided(ctx, p.ID, reason); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("patient_id", p.ID.String()).Str("reason", reason).Msg("patient voided")
	return p, nil
}

// UnvoidPatient reverses VoidPatient. Listeners restore only what was
// voided with the patient's void reason.
func (s *Service) UnvoidPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Voided {
		return p, nil
	}
	var reason string
	if p.VoidReason != nil {
		reason = *p.VoidReason
	}
	err = db.RunInTx(ctx, func(ctx context.Context) error {
		p.Unvoid()
		p.Touch(auth.ActorFromContext(ctx), s.now())
		if err := s.patients.Update(ctx, p); err != nil {
			return err
		}
		for _, l := range s.listeners {
			if err := l.NotifyPatientUnvoided(ctx, p.ID, reason); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// PurgePatient deletes the patient row. It fails with ErrAPI while orders,
// memberships or other records still reference the patient.
func (s *Service) PurgePatient(ctx context.Context, id uuid.UUID) error {
	return s.patients.Delete(ctx, id)
}
