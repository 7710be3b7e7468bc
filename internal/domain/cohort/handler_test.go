package cohort

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmrs/openmrs-api/internal/platform/validation"
	"github.com/openmrs/openmrs-api/pkg/pagination"
)

func jsonContext(e *echo.Echo, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func newTestEcho() *echo.Echo {
	e := echo.New()
	e.Validator = validation.New()
	return e
}

func TestHandler_CreateAndSearch(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)
	e := newTestEcho()

	body := `{"name":"Hypertension","members":[{"patient_id":"` + f.p1.String() +
		`","start_date":"2024-01-01T00:00:00Z"}]}`
	c, rec := jsonContext(e, http.MethodPost, "/api/v1/cohorts", body)
	require.NoError(t, h.CreateCohort(c))
	assert.Equal(t, http.StatusCreated, rec.Code)

	c, rec = jsonContext(e, http.MethodGet, "/api/v1/cohorts?q=tension", "")
	require.NoError(t, h.ListCohorts(c))
	var resp pagination.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Total)
}

func TestHandler_CreateCohort_MissingName(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)
	c, _ := jsonContext(newTestEcho(), http.MethodPost, "/", `{"description":"x"}`)
	var he *echo.HTTPError
	require.ErrorAs(t, h.CreateCohort(c), &he)
	assert.Equal(t, http.StatusBadRequest, he.Code)
}

func TestHandler_CombineCohorts(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)
	a := f.cohort(t, "A", f.p1, f.p2)
	b := f.cohort(t, "B", f.p2)

	c, rec := jsonContext(newTestEcho(), http.MethodGet, "/", "")
	c.SetParamNames("id", "op", "other")
	c.SetParamValues(a.ID.String(), "subtract", b.ID.String())
	require.NoError(t, h.CombineCohorts(c))
	var out Cohort
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "(A - B)", out.Name)
	require.Len(t, out.Memberships, 1)
	assert.Equal(t, f.p1, out.Memberships[0].PatientID)

	c, _ = jsonContext(newTestEcho(), http.MethodGet, "/", "")
	c.SetParamNames("id", "op", "other")
	c.SetParamValues(a.ID.String(), "xor", b.ID.String())
	var he *echo.HTTPError
	require.ErrorAs(t, h.CombineCohorts(c), &he)
	assert.Equal(t, http.StatusBadRequest, he.Code)
}

func TestHandler_MembersAndPatientCohorts(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)
	e := newTestEcho()
	a := f.cohort(t, "A")

	c, rec := jsonContext(e, http.MethodPost, "/", `{"patient_id":"`+f.p3.String()+`"}`)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	require.NoError(t, h.AddMember(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	c, rec = jsonContext(e, http.MethodGet, "/", "")
	c.SetParamNames("patientId")
	c.SetParamValues(f.p3.String())
	require.NoError(t, h.ListPatientCohorts(c))
	var list []Cohort
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, a.ID, list[0].ID)

	c, rec = jsonContext(e, http.MethodDelete, "/", "")
	c.SetParamNames("id", "patientId")
	c.SetParamValues(a.ID.String(), f.p3.String())
	require.NoError(t, h.RemoveMember(c))
	var updated Cohort
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.True(t, updated.Memberships[0].Voided)
}

func TestHandler_VoidCohort_RequiresReason(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)
	a := f.cohort(t, "A")
	c, _ := jsonContext(newTestEcho(), http.MethodPost, "/", `{}`)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	var he *echo.HTTPError
	require.ErrorAs(t, h.VoidCohort(c), &he)
	assert.Equal(t, http.StatusBadRequest, he.Code)
}
