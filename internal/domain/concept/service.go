package concept

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openmrs/openmrs-api/internal/platform/apperr"
	"github.com/openmrs/openmrs-api/internal/platform/auth"
)

type Service struct {
	concepts ConceptRepository
	drugs    DrugRepository
	now      func() time.Time
}

func NewService(concepts ConceptRepository, drugs DrugRepository) *Service {
	return &Service{concepts: concepts, drugs: drugs, now: time.Now}
}

// -- Concept --

func (s *Service) SaveConcept(ctx context.Context, c *Concept) (*Concept, error) {
	if c == nil {
		return nil, apperr.InvalidArgument("concept is required")
	}
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return nil, apperr.Validation("concept name is required")
	}
	if c.ClassName == "" {
		c.ClassName = ClassMisc
	}
	if !knownClasses[c.ClassName] {
		return nil, apperr.Validation("unknown concept class %q", c.ClassName)
	}
	if c.Datatype == "" {
		c.Datatype = "N/A"
	}
	existing, err := s.concepts.GetByName(ctx, c.Name)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
	case err != nil:
		return nil, err
	case existing.ID != c.ID && !existing.Retired && !c.Retired:
		return nil, apperr.Duplicate("a concept named %q already exists", c.Name)
	}

	c.Touch(auth.ActorFromContext(ctx), s.now())
	if c.ID == uuid.Nil {
		err = s.concepts.Create(ctx, c)
	} else {
		err = s.concepts.Update(ctx, c)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) GetConcept(ctx context.Context, id uuid.UUID) (*Concept, error) {
	return s.concepts.GetByID(ctx, id)
}

func (s *Service) GetConceptByName(ctx context.Context, name string) (*Concept, error) {
	return s.concepts.GetByName(ctx, strings.TrimSpace(name))
}

func (s *Service) GetAllConcepts(ctx context.Context, includeRetired bool) ([]*Concept, error) {
	return s.concepts.List(ctx, includeRetired)
}

func (s *Service) RetireConcept(ctx context.Context, id uuid.UUID, reason string) (*Concept, error) {
	c, err := s.concepts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	actor := auth.ActorFromContext(ctx)
	if err := c.Retire(actor, reason, s.now()); err != nil {
		return nil, err
	}
	c.Touch(actor, s.now())
	if err := s.concepts.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) UnretireConcept(ctx context.Context, id uuid.UUID) (*Concept, error) {
	c, err := s.concepts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Unretire()
	c.Touch(auth.ActorFromContext(ctx), s.now())
	if err := s.concepts.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// -- Drug --

func (s *Service) SaveDrug(ctx context.Context, d *Drug) (*Drug, error) {
	if d == nil {
		return nil, apperr.InvalidArgument("drug is required")
	}
	d.Name = strings.TrimSpace(d.Name)
	if d.Name == "" {
		return nil, apperr.Validation("drug name is required")
	}
	if d.ConceptID == uuid.Nil {
		return nil, apperr.Validation("drug concept is required")
	}
	if _, err := s.concepts.GetByID(ctx, d.ConceptID); err != nil {
		return nil, err
	}
	d.Touch(auth.ActorFromContext(ctx), s.now())
	var err error
	if d.ID == uuid.Nil {
		err = s.drugs.Create(ctx, d)
	} else {
		err = s.drugs.Update(ctx, d)
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) GetDrug(ctx context.Context, id uuid.UUID) (*Drug, error) {
	return s.drugs.GetByID(ctx, id)
}

func (s *Service) GetDrugsByConcept(ctx context.Context, conceptID uuid.UUID, includeRetired bool) ([]*Drug, error) {
	return s.drugs.ListByConcept(ctx, conceptID, includeRetired)
}

func (s *Service) RetireDrug(ctx context.Context, id uuid.UUID, reason string) (*Drug, error) {
	d, err := s.drugs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	actor := auth.ActorFromContext(ctx)
	if err := d.Retire(actor, reason, s.now()); err != nil {
		return nil, err
	}
	d.Touch(actor, s.now())
	if err := s.drugs.Update(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}
