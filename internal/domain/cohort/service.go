package cohort

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openmrs/openmrs-api/internal/domain/patient"
	"github.com/openmrs/openmrs-api/internal/platform/apperr"
	"github.com/openmrs/openmrs-api/internal/platform/auth"
	"github.com/openmrs/openmrs-api/internal/platform/db"
)

// PropMaxMembers caps the active members of a saved cohort. Empty or zero
// means no cap.
const PropMaxMembers = "cohort.maxMembers"

type PatientLookup interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
}

// PropertyReader reads global properties.
type PropertyReader interface {
	GetGlobalProperty(ctx context.Context, name string) (string, error)
}

type Service struct {
	cohorts  Repository
	patients PatientLookup
	props    PropertyReader
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(cohorts Repository, patients PatientLookup, props PropertyReader) *Service {
	return &Service{cohorts: cohorts, patients: patients, props: props, logger: zerolog.Nop(), now: time.Now}
}

func (s *Service) SetLogger(l zerolog.Logger) {
	s.logger = l
}

func (s *Service) maxMembers(ctx context.Context) (int, error) {
	v, err := s.props.GetGlobalProperty(ctx, PropMaxMembers)
	if err != nil {
		return 0, err
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, apperr.API("global property %s must be a non-negative integer, got %q", PropMaxMembers, v)
	}
	return n, nil
}

func (s *Service) validate(ctx context.Context, c *Cohort) error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return apperr.Validation("cohort name is required")
	}
	now := s.now()
	checked := map[uuid.UUID]bool{}
	for _, m := range c.Memberships {
		if m.PatientID == uuid.Nil {
			return apperr.Validation("cohort membership patient is required")
		}
		if m.StartDate.IsZero() {
			m.StartDate = now
		}
		if m.EndDate != nil && m.EndDate.Before(m.StartDate) {
			return apperr.Validation("membership end date %s is before its start date %s",
				m.EndDate.Format(time.RFC3339), m.StartDate.Format(time.RFC3339))
		}
		if checked[m.PatientID] {
			continue
		}
		checked[m.PatientID] = true
		if _, err := s.patients.GetPatient(ctx, m.PatientID); err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return apperr.Validation("patient %s does not exist", m.PatientID)
			}
			return err
		}
	}
	limit, err := s.maxMembers(ctx)
	if err != nil {
		return err
	}
	if limit > 0 {
		if n := len(c.MemberIDs(now)); n > limit {
			return apperr.Validation("cohort has %d members, more than %s=%d", n, PropMaxMembers, limit)
		}
	}
	return nil
}

func (s *Service) SaveCohort(ctx context.Context, c *Cohort) (*Cohort, error) {
	if c == nil {
		return nil, apperr.InvalidArgument("cohort is required")
	}
	if err := s.validate(ctx, c); err != nil {
		return nil, err
	}
	actor := auth.ActorFromContext(ctx)
	now := s.now()
	for _, m := range c.Memberships {
		m.Touch(actor, now)
	}
	c.Touch(actor, now)
	var err error
	if c.ID == uuid.Nil {
		err = s.cohorts.Create(ctx, c)
	} else {
		err = s.cohorts.Update(ctx, c)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) GetCohort(ctx context.Context, id uuid.UUID) (*Cohort, error) {
	return s.cohorts.GetByID(ctx, id)
}

func (s *Service) GetCohortByName(ctx context.Context, name string) (*Cohort, error) {
	return s.cohorts.GetByName(ctx, strings.TrimSpace(name))
}

func (s *Service) GetAllCohorts(ctx context.Context, includeVoided bool) ([]*Cohort, error) {
	return s.cohorts.List(ctx, includeVoided)
}

// GetCohorts returns the unvoided cohorts whose name contains fragment.
func (s *Service) GetCohorts(ctx context.Context, fragment string) ([]*Cohort, error) {
	return s.cohorts.SearchByName(ctx, strings.TrimSpace(fragment))
}

// AddPatientToCohort starts a membership now unless the patient is
// already an active member.
func (s *Service) AddPatientToCohort(ctx context.Context, cohortID, patientID uuid.UUID) (*Cohort, error) {
	c, err := s.cohorts.GetByID(ctx, cohortID)
	if err != nil {
		return nil, err
	}
	if c.ActiveMembership(patientID, s.now()) != nil {
		return c, nil
	}
	c.Memberships = append(c.Memberships, &CohortMembership{CohortID: c.ID, PatientID: patientID, StartDate: s.now()})
	return s.SaveCohort(ctx, c)
}

// RemovePatientFromCohort voids the patient's active membership.
func (s *Service) RemovePatientFromCohort(ctx context.Context, cohortID, patientID uuid.UUID) (*Cohort, error) {
	c, err := s.cohorts.GetByID(ctx, cohortID)
	if err != nil {
		return nil, err
	}
	m := c.ActiveMembership(patientID, s.now())
	if m == nil {
		return c, nil
	}
	actor := auth.ActorFromContext(ctx)
	if err := m.Void(actor, ReasonRemoved, s.now()); err != nil {
		return nil, err
	}
	m.Touch(actor, s.now())
	c.Touch(actor, s.now())
	if err := s.cohorts.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// EndCohortMembership closes a membership on endDate, or now when nil.
func (s *Service) EndCohortMembership(ctx context.Context, membershipID uuid.UUID, endDate *time.Time) (*CohortMembership, error) {
	m, err := s.cohorts.GetMembership(ctx, membershipID)
	if err != nil {
		return nil, err
	}
	end := s.now()
	if endDate != nil {
		end = *endDate
	}
	if end.Before(m.StartDate) {
		return nil, apperr.Validation("membership end date cannot be before its start date")
	}
	m.EndDate = &end
	m.Touch(auth.ActorFromContext(ctx), s.now())
	if err := s.cohorts.UpdateMembership(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// GetCohortMemberships returns the patient's memberships, only those
// active on activeOnDate when it is set.
func (s *Service) GetCohortMemberships(ctx context.Context, patientID uuid.UUID, activeOnDate *time.Time, includeVoided bool) ([]*CohortMembership, error) {
	all, err := s.cohorts.ListMembershipsByPatient(ctx, patientID, includeVoided)
	if err != nil {
		return nil, err
	}
	if activeOnDate == nil {
		return all, nil
	}
	var out []*CohortMembership
	for _, m := range all {
		if m.IsActive(*activeOnDate) {
			out = append(out, m)
		}
	}
	return out, nil
}

// GetCohortsContainingPatientID returns the cohorts the patient belongs
// to. With asOfDate set only memberships active then count.
func (s *Service) GetCohortsContainingPatientID(ctx context.Context, patientID uuid.UUID, includeVoided bool, asOfDate *time.Time) ([]*Cohort, error) {
	memberships, err := s.GetCohortMemberships(ctx, patientID, asOfDate, includeVoided)
	if err != nil {
		return nil, err
	}
	seen := map[uuid.UUID]bool{}
	var out []*Cohort
	for _, m := range memberships {
		if seen[m.CohortID] {
			continue
		}
		seen[m.CohortID] = true
		c, err := s.cohorts.GetByID(ctx, m.CohortID)
		if err != nil {
			return nil, err
		}
		if c.Voided && !includeVoided {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// VoidCohort voids the cohort and its memberships with the same reason.
func (s *Service) VoidCohort(ctx context.Context, id uuid.UUID, reason string) (*Cohort, error) {
	c, err := s.cohorts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Voided {
		return c, nil
	}
	actor := auth.ActorFromContext(ctx)
	now := s.now()
	if err := c.Void(actor, reason, now); err != nil {
		return nil, err
	}
	for _, m := range c.Memberships {
		if m.Voided {
			continue
		}
		if err := m.Void(actor, reason, now); err != nil {
			return nil, err
		}
		m.Touch(actor, now)
	}
	c.Touch(actor, now)
	if err := s.cohorts.Update(ctx, c); err != nil {
		return nil, err
	}
	s.logger.Info().Str("cohort_id", c.ID.String()).Str("reason", reason).Msg("cohort voided")
	return c, nil
}

// UnvoidCohort restores the cohort and the memberships voided with it.
func (s *Service) UnvoidCohort(ctx context.Context, id uuid.UUID) (*Cohort, error) {
	c, err := s.cohorts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.Voided {
		return c, nil
	}
	var reason string
	if c.VoidReason != nil {
		reason = *c.VoidReason
	}
	actor := auth.ActorFromContext(ctx)
	for _, m := range c.Memberships {
		if m.VoidedWith(reason) {
			m.Unvoid()
			m.Touch(actor, s.now())
		}
	}
	c.Unvoid()
	c.Touch(actor, s.now())
	if err := s.cohorts.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) PurgeCohort(ctx context.Context, id uuid.UUID) error {
	return s.cohorts.Delete(ctx, id)
}

// NotifyPatientVoided voids the patient's memberships.
func (s *Service) NotifyPatientVoided(ctx context.Context, patientID uuid.UUID, reason string) error {
	memberships, err := s.cohorts.ListMembershipsByPatient(ctx, patientID, false)
	if err != nil {
		return err
	}
	actor := auth.ActorFromContext(ctx)
	return db.RunInTx(ctx, func(ctx context.Context) error {
		for _, m := range memberships {
			if err := m.Void(actor, reason, s.now()); err != nil {
				return err
			}
			m.Touch(actor, s.now())
			if err := s.cohorts.UpdateMembership(ctx, m); err != nil {
				return err
			}
		}
		return nil
	})
}

// NotifyPatientUnvoided restores the memberships voided with the patient.
func (s *Service) NotifyPatientUnvoided(ctx context.Context, patientID uuid.UUID, reason string) error {
	memberships, err := s.cohorts.ListMembershipsByPatient(ctx, patientID, true)
	if err != nil {
		return err
	}
	actor := auth.ActorFromContext(ctx)
	return db.RunInTx(ctx, func(ctx context.Context) error {
		for _, m := range memberships {
			if !m.VoidedWith(reason) {
				continue
			}
			m.Unvoid()
			m.Touch(actor, s.now())
			if err := s.cohorts.UpdateMembership(ctx, m); err != nil {
				return err
			}
		}
		return nil
	})
}
