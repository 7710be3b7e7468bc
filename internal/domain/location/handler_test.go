package location

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

func newTestHandler() (*Handler, *echo.Echo) {
	e := echo.New()
	e.Validator = validation.New()
	return NewHandler(newTestService(nil)), e
}

func jsonContext(e *echo.Echo, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandler_CreateLocationWithParent(t *testing.T) {
	h, e := newTestHandler()

	c, rec := jsonContext(e, http.MethodPost, "/api/v1/locations", `{"name":"Hospital"}`)
	require.NoError(t, h.CreateLocation(c))
	assert.Equal(t, http.StatusCreated, rec.Code)
	var parent Location
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &parent))

	c, rec = jsonContext(e, http.MethodPost, "/api/v1/locations",
		`{"name":"Ward","parent_location_id":"`+parent.ID.String()+`"}`)
	require.NoError(t, h.CreateLocation(c))
	assert.Equal(t, http.StatusCreated, rec.Code)

	c, rec = jsonContext(e, http.MethodGet, "/", "")
	c.SetParamNames("id")
	c.SetParamValues(parent.ID.String())
	require.NoError(t, h.ListChildren(c))
	var children []Location
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &children))
	require.Len(t, children, 1)
	assert.Equal(t, "Ward", children[0].Name)
}

func TestHandler_CreateLocation_Duplicate(t *testing.T) {
	h, e := newTestHandler()

	c, _ := jsonContext(e, http.MethodPost, "/", `{"name":"Lab"}`)
	require.NoError(t, h.CreateLocation(c))

	c, _ = jsonContext(e, http.MethodPost, "/", `{"name":"LAB"}`)
	var he *echo.HTTPError
	require.ErrorAs(t, h.CreateLocation(c), &he)
	assert.Equal(t, http.StatusConflict, he.Code)
}

func TestHandler_ListLocations_Prefix(t *testing.T) {
	h, e := newTestHandler()
	for _, name := range []string{"Main Lab", "Maternity", "Pharmacy"} {
		c, _ := jsonContext(e, http.MethodPost, "/", `{"name":"`+name+`"}`)
		require.NoError(t, h.CreateLocation(c))
	}

	c, rec := jsonContext(e, http.MethodGet, "/api/v1/locations?q=ma", "")
	require.NoError(t, h.ListLocations(c))
	var resp pagination.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
}

func TestHandler_RetireLocation_RequiresReason(t *testing.T) {
	h, e := newTestHandler()
	c, rec := jsonContext(e, http.MethodPost, "/", `{"name":"Lab"}`)
	require.NoError(t, h.CreateLocation(c))
	var loc Location
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &loc))

	c, _ = jsonContext(e, http.MethodPost, "/", `{}`)
	c.SetParamNames("id")
	c.SetParamValues(loc.ID.String())
	var he *echo.HTTPError
	require.ErrorAs(t, h.RetireLocation(c), &he)
	assert.Equal(t, http.StatusBadRequest, he.Code)
}
