package provider

import (
	"net/http"
	"strconv"

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
	readGroup.GET("/providers", h.SearchProviders)
	readGroup.GET("/providers/unknown", h.GetUnknownProvider)
	readGroup.GET("/providers/:id", h.GetProvider)

	writeGroup := api.Group("", auth.RequireRole(auth.RoleAdmin))
	writeGroup.POST("/providers", h.CreateProvider)
	writeGroup.PUT("/providers/:id", h.UpdateProvider)
	writeGroup.POST("/providers/:id/retire", h.RetireProvider)
	writeGroup.POST("/providers/:id/unretire", h.UnretireProvider)
	writeGroup.DELETE("/providers/:id", h.PurgeProvider)
}

type providerRequest struct {
	PersonName string `json:"person_name" validate:"max=255"`
	Identifier string `json:"identifier" validate:"max=255"`
	Role       string `json:"role"`
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

func (h *Handler) CreateProvider(c echo.Context) error {
	var req providerRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	p, err := h.svc.SaveProvider(c.Request().Context(), &Provider{
		PersonName: req.PersonName, Identifier: req.Identifier, Role: req.Role,
	})
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) UpdateProvider(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req providerRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	p, err := h.svc.GetProvider(ctx, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	p.PersonName, p.Identifier, p.Role = req.PersonName, req.Identifier, req.Role
	saved, err := h.svc.SaveProvider(ctx, p)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, saved)
}

func (h *Handler) GetProvider(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetProvider(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) GetUnknownProvider(c echo.Context) error {
	p, err := h.svc.GetUnknownProvider(c.Request().Context())
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) SearchProviders(c echo.Context) error {
	ctx := c.Request().Context()
	pg := pagination.FromContext(c)
	q := c.QueryParam("q")
	includeRetired, _ := strconv.ParseBool(c.QueryParam("includeRetired"))

	total, err := h.svc.GetCountOfProviders(ctx, q, includeRetired)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	providers, err := h.svc.GetProviders(ctx, q, pg.Offset, pg.Limit, includeRetired)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(providers, total, pg.Limit, pg.Offset))
}

func (h *Handler) RetireProvider(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req reasonRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	p, err := h.svc.RetireProvider(c.Request().Context(), id, req.Reason)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UnretireProvider(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.UnretireProvider(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) PurgeProvider(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.PurgeProvider(c.Request().Context(), id); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}
