package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmrs/openmrs-api/internal/platform/auth"
)

type auditCapture struct {
	entries []AuditEntry
	err     error
}

func (a *auditCapture) RecordAccess(e AuditEntry) error {
	a.entries = append(a.entries, e)
	return a.err
}

func auditContext(method, target string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, nil)
	req = req.WithContext(auth.WithUser(req.Context(), "clerk", []string{auth.RoleRegistrar}))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("request_id", "req-1")
	c.Set("tenant_id", "default")
	return c, rec
}

func TestAudit_RecordsPatientAccess(t *testing.T) {
	pid := uuid.New()
	c, _ := auditContext(http.MethodGet, "/api/v1/patients/"+pid.String()+"/allergies")
	c.SetParamNames("patientId")
	c.SetParamValues(pid.String())

	rec := &auditCapture{}
	err := Audit(zerolog.Nop(), rec)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})(c)
	require.NoError(t, err)

	require.Len(t, rec.entries, 1)
	got := rec.entries[0]
	assert.Equal(t, "clerk", got.UserID)
	assert.Equal(t, []string{auth.RoleRegistrar}, got.UserRoles)
	assert.Equal(t, "default", got.TenantID)
	assert.Equal(t, "patients", got.Resource)
	assert.Equal(t, pid.String(), got.PatientID)
	assert.Equal(t, "read", got.Action)
	assert.Equal(t, "req-1", got.RequestID)
	assert.Equal(t, http.StatusOK, got.StatusCode)
}

func TestAudit_PatientFromPathAndQuery(t *testing.T) {
	pid := uuid.New()

	c, _ := auditContext(http.MethodPost, "/api/v1/patients/"+pid.String()+"/void")
	rec := &auditCapture{}
	require.NoError(t, Audit(zerolog.Nop(), rec)(func(c echo.Context) error { return nil })(c))
	assert.Equal(t, pid.String(), rec.entries[0].PatientID)
	assert.Equal(t, "create", rec.entries[0].Action)

	c, _ = auditContext(http.MethodGet, "/api/v1/orders?patientId="+pid.String())
	require.NoError(t, Audit(zerolog.Nop(), rec)(func(c echo.Context) error { return nil })(c))
	assert.Equal(t, pid.String(), rec.entries[1].PatientID)
	assert.Equal(t, "orders", rec.entries[1].Resource)
}

func TestAudit_HandlerErrorStatus(t *testing.T) {
	c, _ := auditContext(http.MethodDelete, "/api/v1/cohorts/abc")
	rec := &auditCapture{}

	err := Audit(zerolog.Nop(), rec)(func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "cohort not found")
	})(c)

	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, rec.entries[0].StatusCode)
	assert.Equal(t, "delete", rec.entries[0].Action)
	assert.Empty(t, rec.entries[0].PatientID)
}

func TestAudit_SkipsNonAPIPaths(t *testing.T) {
	c, _ := auditContext(http.MethodGet, "/health")
	rec := &auditCapture{}
	require.NoError(t, Audit(zerolog.Nop(), rec)(func(c echo.Context) error { return nil })(c))
	assert.Empty(t, rec.entries)
}

func TestAudit_RecorderFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	c, _ := auditContext(http.MethodPut, "/api/v1/locations/x")

	err := Audit(logger, &auditCapture{err: errors.New("disk full")})(func(c echo.Context) error {
		return nil
	})(c)
	require.NoError(t, err)

	dec := json.NewDecoder(&buf)
	var first map[string]interface{}
	require.NoError(t, dec.Decode(&first))
	assert.Equal(t, "failed to record audit entry", first["message"])

	var second map[string]interface{}
	require.NoError(t, dec.Decode(&second))
	assert.Equal(t, "record_access", second["message"])
	assert.Equal(t, "update", second["action"])
}

func TestResourceOf(t *testing.T) {
	assert.Equal(t, "ordersets", resourceOf("/api/v1/ordersets/1/members"))
	assert.Equal(t, "globalproperties", resourceOf("/api/v1/globalproperties"))
	assert.Equal(t, "unknown", resourceOf("/api/v1/"))
}
