package encounter

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openmrs/openmrs-api/internal/domain/location"
	"github.com/openmrs/openmrs-api/internal/domain/patient"
	"github.com/openmrs/openmrs-api/internal/domain/provider"
	"github.com/openmrs/openmrs-api/internal/platform/apperr"
	"github.com/openmrs/openmrs-api/internal/platform/auth"
	"github.com/openmrs/openmrs-api/internal/platform/db"
)

type PatientLookup interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
}

type LocationLookup interface {
	GetLocation(ctx context.Context, id uuid.UUID) (*location.Location, error)
}

type ProviderLookup interface {
	GetProvider(ctx context.Context, id uuid.UUID) (*provider.Provider, error)
}

// OrderVoider voids and restores the orders placed within an encounter.
type OrderVoider interface {
	VoidEncounterOrders(ctx context.Context, encounterID uuid.UUID, reason string) error
	UnvoidEncounterOrders(ctx context.Context, encounterID uuid.UUID, reason string) error
}

type Service struct {
	repo      Repository
	patients  PatientLookup
	locations LocationLookup
	providers ProviderLookup
	orders    OrderVoider
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(repo Repository, patients PatientLookup, locations LocationLookup, providers ProviderLookup) *Service {
	return &Service{
		repo:      repo,
		patients:  patients,
		locations: locations,
		providers: providers,
		logger:    zerolog.Nop(),
		now:       time.Now,
	}
}

func (s *Service) SetLogger(l zerolog.Logger) {
	s.logger = l
}

// SetOrderVoider attaches the order service once both services exist.
func (s *Service) SetOrderVoider(v OrderVoider) {
	s.orders = v
}

func (s *Service) validate(ctx context.Context, enc *Encounter) error {
	if enc.PatientID == uuid.Nil {
		return apperr.Validation("encounter patient is required")
	}
	if _, err := s.patients.GetPatient(ctx, enc.PatientID); err != nil {
		return apperr.Validation("encounter patient %s: %v", enc.PatientID, err)
	}
	if enc.LocationID == uuid.Nil {
		return apperr.Validation("encounter location is required")
	}
	if _, err := s.locations.GetLocation(ctx, enc.LocationID); err != nil {
		return apperr.Validation("encounter location %s: %v", enc.LocationID, err)
	}
	enc.EncounterType = strings.TrimSpace(enc.EncounterType)
	if enc.EncounterType == "" {
		return apperr.Validation("encounter type is required")
	}
	if enc.EncounterDatetime.IsZero() {
		enc.EncounterDatetime = s.now()
	}
	if enc.EncounterDatetime.After(s.now()) {
		return apperr.Validation("encounter datetime cannot be in the future")
	}

	seen := make(map[uuid.UUID]bool, len(enc.ProviderIDs))
	ids := enc.ProviderIDs[:0]
	for _, pid := range enc.ProviderIDs {
		if seen[pid] {
			continue
		}
		seen[pid] = true
		if s.providers != nil {
			if _, err := s.providers.GetProvider(ctx, pid); err != nil {
				return apperr.Validation("encounter provider %s: %v", pid, err)
			}
		}
		ids = append(ids, pid)
	}
	enc.ProviderIDs = ids
	return nil
}

func (s *Service) SaveEncounter(ctx context.Context, enc *Encounter) (*Encounter, error) {
	if enc == nil {
		return nil, apperr.InvalidArgument("encounter is required")
	}
	if err := s.validate(ctx, enc); err != nil {
		return nil, err
	}
	enc.Touch(auth.ActorFromContext(ctx), s.now())
	var err error
	if enc.ID == uuid.Nil {
		err = s.repo.Create(ctx, enc)
	} else {
		err = s.repo.Update(ctx, enc)
	}
	if err != nil {
		return nil, err
	}
	return enc, nil
}

func (s *Service) GetEncounter(ctx context.Context, id uuid.UUID) (*Encounter, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetEncountersByPatient(ctx context.Context, patientID uuid.UUID, includeVoided bool) ([]*Encounter, error) {
	return s.repo.ListByPatient(ctx, patientID, includeVoided)
}

// VoidEncounter voids the encounter and every order placed in it.
func (s *Service) VoidEncounter(ctx context.Context, id uuid.UUID, reason string) (*Encounter, error) {
	enc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if enc.Voided {
		return enc, nil
	}
	err = db.RunInTx(ctx, func(ctx context.Context) error {
		actor := auth.ActorFromContext(ctx)
		if err := enc.Void(actor, reason, s.now()); err != nil {
			return err
		}
		enc.Touch(actor, s.now())
		if err := s.repo.Update(ctx, enc); err != nil {
			return err
		}
		if s.orders != nil {
			return s.orders.VoidEncounterOrders(ctx, enc.ID, reason)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("encounter_id", enc.ID.String()).Str("reason", reason).Msg("encounter voided")
	return enc, nil
}

// UnvoidEncounter restores the encounter and the orders voided with it.
func (s *Service) UnvoidEncounter(ctx context.Context, id uuid.UUID) (*Encounter, error) {
	enc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !enc.Voided {
		return enc, nil
	}
	var reason string
	if enc.VoidReason != nil {
		reason = *enc.VoidReason
	}
	err = db.RunInTx(ctx, func(ctx context.Context) error {
		enc.Unvoid()
		enc.Touch(auth.ActorFromContext(ctx), s.now())
		if err := s.repo.Update(ctx, enc); err != nil {
			return err
		}
		if s.orders != nil {
			return s.orders.UnvoidEncounterOrders(ctx, enc.ID, reason)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return enc, nil
}

func (s *Service) PurgeEncounter(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

// NotifyPatientVoided voids the patient's encounters. Orders follow through
// their own patient listener.
func (s *Service) NotifyPatientVoided(ctx context.Context, patientID uuid.UUID, reason string) error {
	encs, err := s.repo.ListByPatient(ctx, patientID, false)
	if err != nil {
		return err
	}
	actor := auth.ActorFromContext(ctx)
	for _, enc := range encs {
		if err := enc.Void(actor, reason, s.now()); err != nil {
			return err
		}
		enc.Touch(actor, s.now())
		if err := s.repo.Update(ctx, enc); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) NotifyPatientUnvoided(ctx context.Context, patientID uuid.UUID, reason string) error {
	encs, err := s.repo.ListByPatient(ctx, patientID, true)
	if err != nil {
		return err
	}
	actor := auth.ActorFromContext(ctx)
	for _, enc := range encs {
		if !enc.VoidedWith(reason) {
			continue
		}
		enc.Unvoid()
		enc.Touch(actor, s.now())
		if err := s.repo.Update(ctx, enc); err != nil {
			return err
		}
	}
	return nil
}
