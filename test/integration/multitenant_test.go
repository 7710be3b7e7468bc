//go:build integration

package integration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmrs/openmrs-api/internal/domain/admin"
	"github.com/openmrs/openmrs-api/internal/domain/patient"
	"github.com/openmrs/openmrs-api/internal/platform/apperr"
)

func TestTenants_AreIsolated(t *testing.T) {
	ctxA := tenantCtx(t, newTenant(t))
	ctxB := tenantCtx(t, newTenant(t))
	// one process-wide cache serves both tenants
	svc := newServices(admin.NewInMemoryPropertyCache(time.Minute))

	saved, err := svc.patients.SavePatient(ctxA, &patient.Patient{
		Identifier: "200-1", GivenName: "Ada", FamilyName: "Lovelace", Gender: "F",
	})
	require.NoError(t, err)

	_, err = svc.patients.GetPatient(ctxB, saved.ID)
	require.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = svc.patients.GetPatientByIdentifier(ctxB, "200-1")
	require.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = svc.admin.SaveGlobalProperty(ctxA, &admin.GlobalProperty{Property: "locale.default", PropertyValue: "en_GB"})
	require.NoError(t, err)
	_, err = svc.admin.SaveGlobalProperty(ctxB, &admin.GlobalProperty{Property: "locale.default", PropertyValue: "fr"})
	require.NoError(t, err)

	a, err := svc.admin.GetGlobalProperty(ctxA, "locale.default")
	require.NoError(t, err)
	b, err := svc.admin.GetGlobalProperty(ctxB, "locale.default")
	require.NoError(t, err)
	assert.Equal(t, "en_GB", a)
	assert.Equal(t, "fr", b)
}
