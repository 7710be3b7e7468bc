package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasAnyRole(t *testing.T) {
	tests := []struct {
		name     string
		granted  []string
		required []string
		want     bool
	}{
		{"exact match", []string{RoleClinician}, []string{RoleClinician}, true},
		{"one of many", []string{RoleRegistrar}, []string{RoleClinician, RoleRegistrar}, true},
		{"admin passes everything", []string{RoleAdmin}, []string{RoleClinician}, true},
		{"viewer cannot write", []string{RoleViewer}, []string{RoleClinician}, false},
		{"no roles", nil, []string{RoleViewer}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasAnyRole(tt.granted, tt.required...))
		})
	}
}

func TestRequireRole(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(WithUser(req.Context(), "viewer-1", []string{RoleViewer}))
	c := e.NewContext(req, httptest.NewRecorder())

	err := RequireRole(RoleClinician)(func(echo.Context) error { return nil })(c)
	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusForbidden, httpErr.Code)

	req = req.WithContext(WithUser(req.Context(), "doc-1", []string{RoleClinician}))
	c = e.NewContext(req, httptest.NewRecorder())
	assert.NoError(t, RequireRole(RoleClinician)(func(echo.Context) error { return nil })(c))
}

func TestAuthSkipper_HealthAndAPI(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health/db", nil), httptest.NewRecorder())
	assert.True(t, AuthSkipper(c))

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/cohorts", nil), httptest.NewRecorder())
	assert.False(t, AuthSkipper(c))
}
