package location

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/openmrs/openmrs-api/internal/platform/apperr"
	"github.com/openmrs/openmrs-api/internal/platform/auth"
	"github.com/openmrs/openmrs-api/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.ReadRoles...))
	readGroup.GET("/locations", h.ListLocations)
	readGroup.GET("/locations/default", h.GetDefaultLocation)
	readGroup.GET("/locations/:id", h.GetLocation)
	readGroup.GET("/locations/:id/children", h.ListChildren)
	readGroup.GET("/locations/:id/descendants", h.ListDescendants)
	readGroup.GET("/locationtags", h.ListTags)

	writeGroup := api.Group("", auth.RequireRole(auth.RoleAdmin))
	writeGroup.POST("/locations", h.CreateLocation)
	writeGroup.PUT("/locations/:id", h.UpdateLocation)
	writeGroup.POST("/locations/:id/retire", h.RetireLocation)
	writeGroup.POST("/locations/:id/unretire", h.UnretireLocation)
	writeGroup.DELETE("/locations/:id", h.PurgeLocation)
	writeGroup.POST("/locationtags", h.CreateTag)
	writeGroup.POST("/locationtags/:id/retire", h.RetireTag)
	writeGroup.POST("/locationtags/:id/unretire", h.UnretireTag)
	writeGroup.DELETE("/locationtags/:id", h.PurgeTag)
}

type locationRequest struct {
	Name             string     `json:"name" validate:"required,max=255"`
	Description      string     `json:"description"`
	Address1         string     `json:"address1"`
	Address2         string     `json:"address2"`
	CityVillage      string     `json:"city_village"`
	StateProvince    string     `json:"state_province"`
	Country          string     `json:"country"`
	PostalCode       string     `json:"postal_code"`
	ParentLocationID *uuid.UUID `json:"parent_location_id"`
	Tags             []string   `json:"tags"`
}

func (r locationRequest) apply(l *Location) {
	l.Name = r.Name
	l.Description = r.Description
	l.Address1 = r.Address1
	l.Address2 = r.Address2
	l.CityVillage = r.CityVillage
	l.StateProvince = r.StateProvince
	l.Country = r.Country
	l.PostalCode = r.PostalCode
	l.ParentLocationID = r.ParentLocationID
	l.Tags = r.Tags
}

type tagRequest struct {
	Name        string `json:"name" validate:"required,max=50"`
	Description string `json:"description"`
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func bindValid(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return apperr.ToHTTP(err)
	}
	return nil
}

func (h *Handler) CreateLocation(c echo.Context) error {
	var req locationRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	var loc Location
	req.apply(&loc)
	saved, err := h.svc.SaveLocation(c.Request().Context(), &loc)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, saved)
}

func (h *Handler) UpdateLocation(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req locationRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	loc, err := h.svc.GetLocation(ctx, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	req.apply(loc)
	saved, err := h.svc.SaveLocation(ctx, loc)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, saved)
}

func (h *Handler) GetLocation(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	loc, err := h.svc.GetLocation(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, loc)
}

func (h *Handler) GetDefaultLocation(c echo.Context) error {
	loc, err := h.svc.GetDefaultLocation(c.Request().Context())
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, loc)
}

// ListLocations filters by ?q= name prefix, ?tag= (repeatable, all must
// match) or ?anyTag=, and lists everything otherwise.
func (h *Handler) ListLocations(c echo.Context) error {
	ctx := c.Request().Context()
	includeRetired, _ := strconv.ParseBool(c.QueryParam("includeRetired"))
	qp := c.QueryParams()

	var (
		locs []*Location
		err  error
	)
	switch {
	case c.QueryParam("q") != "":
		locs, err = h.svc.GetLocations(ctx, c.QueryParam("q"))
	case len(qp["tag"]) > 0:
		locs, err = h.svc.GetLocationsHavingAllTags(ctx, qp["tag"])
	case c.QueryParam("anyTag") != "":
		locs, err = h.svc.GetLocationsHavingAnyTag(ctx, strings.Split(c.QueryParam("anyTag"), ","))
	case c.QueryParam("root") == "true":
		locs, err = h.svc.GetRootLocations(ctx, includeRetired)
	default:
		locs, err = h.svc.GetAllLocations(ctx, includeRetired)
	}
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(locs, pagination.FromContext(c)))
}

func (h *Handler) ListChildren(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	includeRetired, _ := strconv.ParseBool(c.QueryParam("includeRetired"))
	locs, err := h.svc.GetChildLocations(c.Request().Context(), id, includeRetired)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if locs == nil {
		locs = []*Location{}
	}
	return c.JSON(http.StatusOK, locs)
}

func (h *Handler) ListDescendants(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	includeRetired, _ := strconv.ParseBool(c.QueryParam("includeRetired"))
	locs, err := h.svc.GetDescendantLocations(c.Request().Context(), id, includeRetired)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if locs == nil {
		locs = []*Location{}
	}
	return c.JSON(http.StatusOK, locs)
}

func (h *Handler) RetireLocation(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req reasonRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	loc, err := h.svc.RetireLocation(c.Request().Context(), id, req.Reason)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, loc)
}

func (h *Handler) UnretireLocation(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	loc, err := h.svc.UnretireLocation(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, loc)
}

func (h *Handler) PurgeLocation(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.PurgeLocation(c.Request().Context(), id); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListTags(c echo.Context) error {
	includeRetired, _ := strconv.ParseBool(c.QueryParam("includeRetired"))
	tags, err := h.svc.GetAllLocationTags(c.Request().Context(), includeRetired)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if tags == nil {
		tags = []*LocationTag{}
	}
	return c.JSON(http.StatusOK, tags)
}

func (h *Handler) CreateTag(c echo.Context) error {
	var req tagRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	tag, err := h.svc.SaveLocationTag(c.Request().Context(), &LocationTag{Name: req.Name, Description: req.Description})
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, tag)
}

func (h *Handler) RetireTag(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req reasonRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	tag, err := h.svc.RetireLocationTag(c.Request().Context(), id, req.Reason)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, tag)
}

func (h *Handler) UnretireTag(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	tag, err := h.svc.UnretireLocationTag(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, tag)
}

func (h *Handler) PurgeTag(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.PurgeLocationTag(c.Request().Context(), id); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}
