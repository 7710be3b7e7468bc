package admin

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/openmrs/openmrs-api/internal/platform/apperr"
	"github.com/openmrs/openmrs-api/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.ReadRoles...))
	readGroup.GET("/globalproperties", h.ListGlobalProperties)
	readGroup.GET("/globalproperties/:name", h.GetGlobalProperty)

	writeGroup := api.Group("", auth.RequireRole(auth.RoleAdmin))
	writeGroup.POST("/globalproperties", h.SaveGlobalProperties)
	writeGroup.PUT("/globalproperties/:name", h.PutGlobalProperty)
	writeGroup.DELETE("/globalproperties/:name", h.DeleteGlobalProperty)
	writeGroup.POST("/globalproperties/:name/next", h.NextSequenceValue)
}

type globalPropertyRequest struct {
	Property      string `json:"property" validate:"required,max=255,nowhitespace"`
	PropertyValue string `json:"property_value"`
	Description   string `json:"description"`
	Datatype      string `json:"datatype"`
}

func (r globalPropertyRequest) model() *GlobalProperty {
	return &GlobalProperty{
		Property:      r.Property,
		PropertyValue: r.PropertyValue,
		Description:   r.Description,
		Datatype:      r.Datatype,
	}
}

func (h *Handler) ListGlobalProperties(c echo.Context) error {
	ctx := c.Request().Context()
	var (
		gps []*GlobalProperty
		err error
	)
	switch {
	case c.QueryParam("prefix") != "":
		gps, err = h.svc.GetGlobalPropertiesByPrefix(ctx, c.QueryParam("prefix"))
	case c.QueryParam("suffix") != "":
		gps, err = h.svc.GetGlobalPropertiesBySuffix(ctx, c.QueryParam("suffix"))
	default:
		gps, err = h.svc.GetAllGlobalProperties(ctx)
	}
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if gps == nil {
		gps = []*GlobalProperty{}
	}
	return c.JSON(http.StatusOK, gps)
}

func (h *Handler) GetGlobalProperty(c echo.Context) error {
	gp, err := h.svc.GetGlobalPropertyObject(c.Request().Context(), c.Param("name"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, gp)
}

// SaveGlobalProperties accepts a JSON array and stores it atomically.
func (h *Handler) SaveGlobalProperties(c echo.Context) error {
	var reqs []globalPropertyRequest
	if err := c.Bind(&reqs); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	gps := make([]*GlobalProperty, 0, len(reqs))
	for _, r := range reqs {
		if err := c.Validate(&r); err != nil {
			return apperr.ToHTTP(err)
		}
		gps = append(gps, r.model())
	}
	saved, err := h.svc.SaveGlobalProperties(c.Request().Context(), gps)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, saved)
}

func (h *Handler) PutGlobalProperty(c echo.Context) error {
	var req globalPropertyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.Property = c.Param("name")
	if err := c.Validate(&req); err != nil {
		return apperr.ToHTTP(err)
	}
	gp, err := h.svc.SaveGlobalProperty(c.Request().Context(), req.model())
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, gp)
}

func (h *Handler) DeleteGlobalProperty(c echo.Context) error {
	if err := h.svc.PurgeGlobalProperty(c.Request().Context(), c.Param("name")); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) NextSequenceValue(c echo.Context) error {
	v, err := h.svc.GetNextSequenceValue(c.Request().Context(), c.Param("name"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]int64{"value": v})
}
