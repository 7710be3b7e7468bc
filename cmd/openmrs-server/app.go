package main

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/openmrs/openmrs-api/internal/config"
	"github.com/openmrs/openmrs-api/internal/domain/admin"
	"github.com/openmrs/openmrs-api/internal/domain/allergy"
	"github.com/openmrs/openmrs-api/internal/domain/cohort"
	"github.com/openmrs/openmrs-api/internal/domain/concept"
	"github.com/openmrs/openmrs-api/internal/domain/encounter"
	"github.com/openmrs/openmrs-api/internal/domain/location"
	"github.com/openmrs/openmrs-api/internal/domain/order"
	"github.com/openmrs/openmrs-api/internal/domain/orderset"
	"github.com/openmrs/openmrs-api/internal/domain/patient"
	"github.com/openmrs/openmrs-api/internal/domain/program"
	"github.com/openmrs/openmrs-api/internal/domain/provider"
	"github.com/openmrs/openmrs-api/internal/platform/dataset"
)

// app holds every domain service, wired against one pool.
type app struct {
	admin     *admin.Service
	patients  *patient.Service
	concepts  *concept.Service
	locations *location.Service
	providers *provider.Service
	encounter *encounter.Service
	orders    *order.Service
	orderSets *orderset.Service
	cohorts   *cohort.Service
	allergies *allergy.Service
	programs  *program.Service
}

func newApp(pool *pgxpool.Pool, cfg *config.Config, cache admin.PropertyCache, logger zerolog.Logger) *app {
	a := &app{}

	a.admin = admin.NewService(admin.NewGlobalPropertyRepo(pool), cache)
	a.admin.SetLogger(logger.With().Str("service", "admin").Logger())

	a.patients = patient.NewService(patient.NewPatientRepo(pool), a.admin)
	a.patients.SetLogger(logger.With().Str("service", "patient").Logger())

	a.concepts = concept.NewService(concept.NewConceptRepo(pool), concept.NewDrugRepo(pool))
	a.locations = location.NewService(location.NewLocationRepo(pool), location.NewLocationTagRepo(pool), a.admin)
	a.providers = provider.NewService(provider.NewProviderRepo(pool), a.admin)

	a.admin.RegisterDatatype(admin.DatatypeLocation, a.locations.ValidateLocationValue)

	a.encounter = encounter.NewService(encounter.NewRepo(pool), a.patients, a.locations, a.providers)
	a.encounter.SetLogger(logger.With().Str("service", "encounter").Logger())

	numbers := order.NewSequenceNumberGenerator(cfg.OrderNumberPrefix, a.admin,
		logger.With().Str("service", "order_number").Logger())
	a.orders = order.NewService(
		order.NewOrderRepo(pool),
		order.NewCareSettingRepo(pool),
		order.NewOrderTypeRepo(pool),
		order.NewOrderFrequencyRepo(pool),
		order.Lookups{
			Patients:   a.patients,
			Concepts:   a.concepts,
			Providers:  a.providers,
			Encounters: a.encounter,
		},
		numbers,
	)
	a.orders.SetLogger(logger.With().Str("service", "order").Logger())
	a.encounter.SetOrderVoider(a.orders)

	a.orderSets = orderset.NewService(orderset.NewRepo(pool), a.concepts, a.orders)
	a.orderSets.SetLogger(logger.With().Str("service", "orderset").Logger())

	a.cohorts = cohort.NewService(cohort.NewRepo(pool), a.patients, a.admin)
	a.cohorts.SetLogger(logger.With().Str("service", "cohort").Logger())

	a.allergies = allergy.NewService(allergy.NewRepo(pool), a.patients, a.concepts)
	a.allergies.SetLogger(logger.With().Str("service", "allergy").Logger())

	a.programs = program.NewService(program.NewRepo(pool), a.patients, a.concepts, a.locations)
	a.programs.SetLogger(logger.With().Str("service", "program").Logger())

	// Voiding a patient voids their clinical data in the same transaction.
	a.patients.AddVoidListener(a.encounter)
	a.patients.AddVoidListener(a.orders)
	a.patients.AddVoidListener(a.cohorts)
	a.patients.AddVoidListener(a.allergies)
	a.patients.AddVoidListener(a.programs)

	return a
}

func (a *app) registerRoutes(api *echo.Group) {
	admin.NewHandler(a.admin).RegisterRoutes(api)
	patient.NewHandler(a.patients).RegisterRoutes(api)
	concept.NewHandler(a.concepts).RegisterRoutes(api)
	location.NewHandler(a.locations).RegisterRoutes(api)
	provider.NewHandler(a.providers).RegisterRoutes(api)
	encounter.NewHandler(a.encounter).RegisterRoutes(api)
	order.NewHandler(a.orders).RegisterRoutes(api)
	orderset.NewHandler(a.orderSets).RegisterRoutes(api)
	cohort.NewHandler(a.cohorts).RegisterRoutes(api)
	allergy.NewHandler(a.allergies).RegisterRoutes(api)
	program.NewHandler(a.programs).RegisterRoutes(api)
}

func (a *app) datasetServices() dataset.Services {
	return dataset.Services{
		Properties: a.admin,
		Locations:  a.locations,
		Providers:  a.providers,
		Patients:   a.patients,
		Concepts:   a.concepts,
		Orders:     a.orders,
		Encounters: a.encounter,
		Cohorts:    a.cohorts,
		Programs:   a.programs,
	}
}
