// Package dataset loads YAML fixtures through the domain services, so the
// usual business rules run on every record. Records refer to each other by
// name (locations, concepts, order types) or identifier (patients,
// providers) rather than by id.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/openmrs/openmrs-api/internal/domain/admin"
	"github.com/openmrs/openmrs-api/internal/domain/cohort"
	"github.com/openmrs/openmrs-api/internal/domain/concept"
	"github.com/openmrs/openmrs-api/internal/domain/encounter"
	"github.com/openmrs/openmrs-api/internal/domain/location"
	"github.com/openmrs/openmrs-api/internal/domain/order"
	"github.com/openmrs/openmrs-api/internal/domain/patient"
	"github.com/openmrs/openmrs-api/internal/domain/program"
	"github.com/openmrs/openmrs-api/internal/domain/provider"
)

type PropertyStore interface {
	SaveGlobalProperty(ctx context.Context, gp *admin.GlobalProperty) (*admin.GlobalProperty, error)
}

type LocationStore interface {
	SaveLocationTag(ctx context.Context, tag *location.LocationTag) (*location.LocationTag, error)
	SaveLocation(ctx context.Context, loc *location.Location) (*location.Location, error)
}

type ProviderStore interface {
	SaveProvider(ctx context.Context, p *provider.Provider) (*provider.Provider, error)
}

type PatientStore interface {
	SavePatient(ctx context.Context, p *patient.Patient) (*patient.Patient, error)
}

type ConceptStore interface {
	SaveConcept(ctx context.Context, c *concept.Concept) (*concept.Concept, error)
	SaveDrug(ctx context.Context, d *concept.Drug) (*concept.Drug, error)
}

type OrderStore interface {
	SaveCareSetting(ctx context.Context, cs *order.CareSetting) (*order.CareSetting, error)
	SaveOrderType(ctx context.Context, ot *order.OrderType) (*order.OrderType, error)
	SaveOrderFrequency(ctx context.Context, f *order.OrderFrequency) (*order.OrderFrequency, error)
}

type EncounterStore interface {
	SaveEncounter(ctx context.Context, enc *encounter.Encounter) (*encounter.Encounter, error)
}

type CohortStore interface {
	SaveCohort(ctx context.Context, c *cohort.Cohort) (*cohort.Cohort, error)
}

type ProgramStore interface {
	SaveProgram(ctx context.Context, p *program.Program) (*program.Program, error)
}

// Services are the savers a dataset is loaded through. A section whose
// service is nil fails the load.
type Services struct {
	Properties PropertyStore
	Locations  LocationStore
	Providers  ProviderStore
	Patients   PatientStore
	Concepts   ConceptStore
	Orders     OrderStore
	Encounters EncounterStore
	Cohorts    CohortStore
	Programs   ProgramStore
}

// Document is one YAML document of a dataset file.
type Document struct {
	GlobalProperties []GlobalProperty `yaml:"global_properties"`
	LocationTags     []LocationTag    `yaml:"location_tags"`
	Locations        []Location       `yaml:"locations"`
	Providers        []Provider       `yaml:"providers"`
	Patients         []Patient        `yaml:"patients"`
	Concepts         []Concept        `yaml:"concepts"`
	Drugs            []Drug           `yaml:"drugs"`
	CareSettings     []CareSetting    `yaml:"care_settings"`
	OrderTypes       []OrderType      `yaml:"order_types"`
	OrderFrequencies []OrderFrequency `yaml:"order_frequencies"`
	Encounters       []Encounter      `yaml:"encounters"`
	Cohorts          []Cohort         `yaml:"cohorts"`
	Programs         []Program        `yaml:"programs"`
}

type GlobalProperty struct {
	Property    string `yaml:"property"`
	Value       string `yaml:"value"`
	Description string `yaml:"description"`
	Datatype    string `yaml:"datatype"`
}

type LocationTag struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type Location struct {
	Name          string   `yaml:"name"`
	Description   string   `yaml:"description"`
	Parent        string   `yaml:"parent"`
	Tags          []string `yaml:"tags"`
	CityVillage   string   `yaml:"city_village"`
	StateProvince string   `yaml:"state_province"`
	Country       string   `yaml:"country"`
}

type Provider struct {
	Name       string `yaml:"name"`
	Identifier string `yaml:"identifier"`
	Role       string `yaml:"role"`
}

type Patient struct {
	Identifier string     `yaml:"identifier"`
	GivenName  string     `yaml:"given_name"`
	FamilyName string     `yaml:"family_name"`
	Gender     string     `yaml:"gender"`
	BirthDate  *time.Time `yaml:"birthdate"`
}

type Concept struct {
	Name      string `yaml:"name"`
	ShortName string `yaml:"short_name"`
	Class     string `yaml:"class"`
	Datatype  string `yaml:"datatype"`
}

type Drug struct {
	Name       string `yaml:"name"`
	Concept    string `yaml:"concept"`
	Strength   string `yaml:"strength"`
	DosageForm string `yaml:"dosage_form"`
}

type CareSetting struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Type        string `yaml:"type"`
}

type OrderType struct {
	Name           string   `yaml:"name"`
	Description    string   `yaml:"description"`
	Kind           string   `yaml:"kind"`
	Parent         string   `yaml:"parent"`
	ConceptClasses []string `yaml:"concept_classes"`
}

type OrderFrequency struct {
	Concept         string  `yaml:"concept"`
	FrequencyPerDay float64 `yaml:"frequency_per_day"`
}

type Encounter struct {
	Patient   string    `yaml:"patient"`
	Location  string    `yaml:"location"`
	Type      string    `yaml:"type"`
	Datetime  time.Time `yaml:"datetime"`
	Providers []string  `yaml:"providers"`
}

type Cohort struct {
	Name        string             `yaml:"name"`
	Description string             `yaml:"description"`
	Members     []CohortMembership `yaml:"members"`
}

type CohortMembership struct {
	Patient   string     `yaml:"patient"`
	StartDate time.Time  `yaml:"start_date"`
	EndDate   *time.Time `yaml:"end_date"`
}

type Program struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Concept     string     `yaml:"concept"`
	Workflows   []Workflow `yaml:"workflows"`
}

type Workflow struct {
	Concept string          `yaml:"concept"`
	States  []WorkflowState `yaml:"states"`
}

type WorkflowState struct {
	Concept  string `yaml:"concept"`
	Initial  bool   `yaml:"initial"`
	Terminal bool   `yaml:"terminal"`
}

// Counts reports how many records each section saved.
type Counts map[string]int

// Loader saves dataset documents. Name lookups carry over from one
// document to the next, so later documents may refer to earlier ones.
type Loader struct {
	svc    Services
	logger zerolog.Logger

	locations  map[string]uuid.UUID
	providers  map[string]uuid.UUID
	patients   map[string]uuid.UUID
	concepts   map[string]uuid.UUID
	orderTypes map[string]uuid.UUID
}

func NewLoader(svc Services, logger zerolog.Logger) *Loader {
	return &Loader{
		svc:        svc,
		logger:     logger,
		locations:  map[string]uuid.UUID{},
		providers:  map[string]uuid.UUID{},
		patients:   map[string]uuid.UUID{},
		concepts:   map[string]uuid.UUID{},
		orderTypes: map[string]uuid.UUID{},
	}
}

// Load reads every YAML document from r and saves it.
func Load(ctx context.Context, r io.Reader, svc Services) (Counts, error) {
	return NewLoader(svc, zerolog.Nop()).Load(ctx, r)
}

func (l *Loader) Load(ctx context.Context, r io.Reader) (Counts, error) {
	counts := Counts{}
	dec := yaml.NewDecoder(r)
	for n := 1; ; n++ {
		var doc Document
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return counts, fmt.Errorf("parse dataset document %d: %w", n, err)
		}
		if err := l.LoadDocument(ctx, &doc, counts); err != nil {
			return counts, fmt.Errorf("dataset document %d: %w", n, err)
		}
	}
	l.logger.Info().Interface("counts", counts).Msg("dataset loaded")
	return counts, nil
}

func key(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func lookup(m map[string]uuid.UUID, what, name string) (uuid.UUID, error) {
	id, ok := m[key(name)]
	if !ok {
		return uuid.Nil, fmt.Errorf("unknown %s %q", what, name)
	}
	return id, nil
}

// LoadDocument saves doc in dependency order and adds to counts.
func (l *Loader) LoadDocument(ctx context.Context, doc *Document, counts Counts) error {
	steps := []struct {
		section string
		n       int
		svc     interface{}
		run     func() error
	}{
		{"global_properties", len(doc.GlobalProperties), l.svc.Properties, func() error { return l.properties(ctx, doc.GlobalProperties) }},
		{"location_tags", len(doc.LocationTags), l.svc.Locations, func() error { return l.locationTags(ctx, doc.LocationTags) }},
		{"locations", len(doc.Locations), l.svc.Locations, func() error { return l.locationList(ctx, doc.Locations) }},
		{"providers", len(doc.Providers), l.svc.Providers, func() error { return l.providerList(ctx, doc.Providers) }},
		{"patients", len(doc.Patients), l.svc.Patients, func() error { return l.patientList(ctx, doc.Patients) }},
		{"concepts", len(doc.Concepts), l.svc.Concepts, func() error { return l.conceptList(ctx, doc.Concepts) }},
		{"drugs", len(doc.Drugs), l.svc.Concepts, func() error { return l.drugs(ctx, doc.Drugs) }},
		{"care_settings", len(doc.CareSettings), l.svc.Orders, func() error { return l.careSettings(ctx, doc.CareSettings) }},
		{"order_types", len(doc.OrderTypes), l.svc.Orders, func() error { return l.orderTypeList(ctx, doc.OrderTypes) }},
		{"order_frequencies", len(doc.OrderFrequencies), l.svc.Orders, func() error { return l.frequencies(ctx, doc.OrderFrequencies) }},
		{"encounters", len(doc.Encounters), l.svc.Encounters, func() error { return l.encounters(ctx, doc.Encounters) }},
		{"cohorts", len(doc.Cohorts), l.svc.Cohorts, func() error { return l.cohorts(ctx, doc.Cohorts) }},
		{"programs", len(doc.Programs), l.svc.Programs, func() error { return l.programs(ctx, doc.Programs) }},
	}
	for _, st := range steps {
		if st.n == 0 {
			continue
		}
		if st.svc == nil {
			return fmt.Errorf("%s: no service to load them", st.section)
		}
		if err := st.run(); err != nil {
			return fmt.Errorf("%s: %w", st.section, err)
		}
		counts[st.section] += st.n
	}
	return nil
}

func (l *Loader) properties(ctx context.Context, items []GlobalProperty) error {
	for _, it := range items {
		_, err := l.svc.Properties.SaveGlobalProperty(ctx, &admin.GlobalProperty{
			Property: it.Property, PropertyValue: it.Value, Description: it.Description, Datatype: it.Datatype,
		})
		if err != nil {
			return fmt.Errorf("%s: %w", it.Property, err)
		}
	}
	return nil
}

func (l *Loader) locationTags(ctx context.Context, items []LocationTag) error {
	for _, it := range items {
		if _, err := l.svc.Locations.SaveLocationTag(ctx, &location.LocationTag{Name: it.Name, Description: it.Description}); err != nil {
			return fmt.Errorf("%s: %w", it.Name, err)
		}
	}
	return nil
}

// locationList saves locations in the given order, so a parent must come
// before its children.
func (l *Loader) locationList(ctx context.Context, items []Location) error {
	for _, it := range items {
		loc := &location.Location{
			Name:          it.Name,
			Description:   it.Description,
			Tags:          it.Tags,
			CityVillage:   it.CityVillage,
			StateProvince: it.StateProvince,
			Country:       it.Country,
		}
		if it.Parent != "" {
			parent, err := lookup(l.locations, "parent location", it.Parent)
			if err != nil {
				return err
			}
			loc.ParentLocationID = &parent
		}
		saved, err := l.svc.Locations.SaveLocation(ctx, loc)
		if err != nil {
			return fmt.Errorf("%s: %w", it.Name, err)
		}
		l.locations[key(it.Name)] = saved.ID
	}
	return nil
}

func (l *Loader) providerList(ctx context.Context, items []Provider) error {
	for _, it := range items {
		saved, err := l.svc.Providers.SaveProvider(ctx, &provider.Provider{
			PersonName: it.Name, Identifier: it.Identifier, Role: it.Role,
		})
		if err != nil {
			return fmt.Errorf("%s: %w", it.Identifier, err)
		}
		l.providers[key(it.Identifier)] = saved.ID
	}
	return nil
}

func (l *Loader) patientList(ctx context.Context, items []Patient) error {
	for _, it := range items {
		saved, err := l.svc.Patients.SavePatient(ctx, &patient.Patient{
			Identifier: it.Identifier, GivenName: it.GivenName, FamilyName: it.FamilyName,
			Gender: it.Gender, BirthDate: it.BirthDate,
		})
		if err != nil {
			return fmt.Errorf("%s: %w", it.Identifier, err)
		}
		l.patients[key(it.Identifier)] = saved.ID
	}
	return nil
}

func (l *Loader) conceptList(ctx context.Context, items []Concept) error {
	for _, it := range items {
		saved, err := l.svc.Concepts.SaveConcept(ctx, &concept.Concept{
			Name: it.Name, ShortName: it.ShortName, ClassName: it.Class, Datatype: it.Datatype,
		})
		if err != nil {
			return fmt.Errorf("%s: %w", it.Name, err)
		}
		l.concepts[key(it.Name)] = saved.ID
	}
	return nil
}

func (l *Loader) drugs(ctx context.Context, items []Drug) error {
	for _, it := range items {
		conceptID, err := lookup(l.concepts, "concept", it.Concept)
		if err != nil {
			return err
		}
		_, err = l.svc.Concepts.SaveDrug(ctx, &concept.Drug{
			ConceptID: conceptID, Name: it.Name, Strength: it.Strength, DosageForm: it.DosageForm,
		})
		if err != nil {
			return fmt.Errorf("%s: %w", it.Name, err)
		}
	}
	return nil
}

func (l *Loader) careSettings(ctx context.Context, items []CareSetting) error {
	for _, it := range items {
		_, err := l.svc.Orders.SaveCareSetting(ctx, &order.CareSetting{
			Name: it.Name, Description: it.Description, Type: strings.ToUpper(it.Type),
		})
		if err != nil {
			return fmt.Errorf("%s: %w", it.Name, err)
		}
	}
	return nil
}

func (l *Loader) orderTypeList(ctx context.Context, items []OrderType) error {
	for _, it := range items {
		ot := &order.OrderType{
			Name: it.Name, Description: it.Description, Kind: it.Kind, ConceptClasses: it.ConceptClasses,
		}
		if it.Parent != "" {
			parent, err := lookup(l.orderTypes, "parent order type", it.Parent)
			if err != nil {
				return err
			}
			ot.ParentID = &parent
		}
		saved, err := l.svc.Orders.SaveOrderType(ctx, ot)
		if err != nil {
			return fmt.Errorf("%s: %w", it.Name, err)
		}
		l.orderTypes[key(it.Name)] = saved.ID
	}
	return nil
}

func (l *Loader) frequencies(ctx context.Context, items []OrderFrequency) error {
	for _, it := range items {
		conceptID, err := lookup(l.concepts, "concept", it.Concept)
		if err != nil {
			return err
		}
		_, err = l.svc.Orders.SaveOrderFrequency(ctx, &order.OrderFrequency{
			ConceptID: conceptID, FrequencyPerDay: it.FrequencyPerDay,
		})
		if err != nil {
			return fmt.Errorf("%s: %w", it.Concept, err)
		}
	}
	return nil
}

func (l *Loader) encounters(ctx context.Context, items []Encounter) error {
	for _, it := range items {
		patientID, err := lookup(l.patients, "patient", it.Patient)
		if err != nil {
			return err
		}
		locationID, err := lookup(l.locations, "location", it.Location)
		if err != nil {
			return err
		}
		enc := &encounter.Encounter{
			PatientID: patientID, LocationID: locationID,
			EncounterType: it.Type, EncounterDatetime: it.Datetime,
		}
		for _, p := range it.Providers {
			id, err := lookup(l.providers, "provider", p)
			if err != nil {
				return err
			}
			enc.ProviderIDs = append(enc.ProviderIDs, id)
		}
		if _, err := l.svc.Encounters.SaveEncounter(ctx, enc); err != nil {
			return fmt.Errorf("%s at %s: %w", it.Patient, it.Datetime.Format(time.RFC3339), err)
		}
	}
	return nil
}

func (l *Loader) cohorts(ctx context.Context, items []Cohort) error {
	for _, it := range items {
		c := &cohort.Cohort{Name: it.Name, Description: it.Description}
		for _, m := range it.Members {
			patientID, err := lookup(l.patients, "patient", m.Patient)
			if err != nil {
				return err
			}
			c.Memberships = append(c.Memberships, &cohort.CohortMembership{
				PatientID: patientID, StartDate: m.StartDate, EndDate: m.EndDate,
			})
		}
		if _, err := l.svc.Cohorts.SaveCohort(ctx, c); err != nil {
			return fmt.Errorf("%s: %w", it.Name, err)
		}
	}
	return nil
}

func (l *Loader) programs(ctx context.Context, items []Program) error {
	for _, it := range items {
		p := &program.Program{Name: it.Name, Description: it.Description}
		if it.Concept != "" {
			id, err := lookup(l.concepts, "concept", it.Concept)
			if err != nil {
				return err
			}
			p.ConceptID = &id
		}
		for _, wf := range it.Workflows {
			wfConcept, err := lookup(l.concepts, "concept", wf.Concept)
			if err != nil {
				return err
			}
			w := &program.ProgramWorkflow{ConceptID: wfConcept}
			for _, st := range wf.States {
				stConcept, err := lookup(l.concepts, "concept", st.Concept)
				if err != nil {
					return err
				}
				w.States = append(w.States, &program.ProgramWorkflowState{
					ConceptID: stConcept, Initial: st.Initial, Terminal: st.Terminal,
				})
			}
			p.Workflows = append(p.Workflows, w)
		}
		if _, err := l.svc.Programs.SaveProgram(ctx, p); err != nil {
			return fmt.Errorf("%s: %w", it.Name, err)
		}
	}
	return nil
}
