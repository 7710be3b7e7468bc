package orderset

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
	readGroup.GET("/ordersets", h.ListOrderSets)
	readGroup.GET("/ordersets/:id", h.GetOrderSet)

	writeGroup := api.Group("", auth.RequireRole(auth.RoleAdmin))
	writeGroup.POST("/ordersets", h.CreateOrderSet)
	writeGroup.PUT("/ordersets/:id", h.UpdateOrderSet)
	writeGroup.POST("/ordersets/:id/retire", h.RetireOrderSet)
	writeGroup.POST("/ordersets/:id/unretire", h.UnretireOrderSet)
	writeGroup.DELETE("/ordersets/:id", h.PurgeOrderSet)
	writeGroup.POST("/ordersets/:id/members", h.AddMember)
	writeGroup.POST("/ordersets/:id/members/:memberId/retire", h.RetireMember)
	writeGroup.DELETE("/ordersets/:id/members/:memberId", h.RemoveMember)
}

type memberRequest struct {
	OrderTypeID       *uuid.UUID `json:"order_type_id"`
	ConceptID         *uuid.UUID `json:"concept_id"`
	OrderTemplate     string     `json:"order_template"`
	OrderTemplateType string     `json:"order_template_type" validate:"max=255"`
}

func (r memberRequest) toMember() *OrderSetMember {
	return &OrderSetMember{
		OrderTypeID:       r.OrderTypeID,
		ConceptID:         r.ConceptID,
		OrderTemplate:     r.OrderTemplate,
		OrderTemplateType: r.OrderTemplateType,
	}
}

type orderSetRequest struct {
	Name        string          `json:"name" validate:"required,max=255"`
	Description string          `json:"description"`
	Operator    Operator        `json:"operator" validate:"required,oneof=ALL ONE ANY"`
	CategoryID  *uuid.UUID      `json:"category_concept_id"`
	Members     []memberRequest `json:"members" validate:"dive"`
}

type addMemberRequest struct {
	memberRequest
	Position *int `json:"position"`
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func pathID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
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

func (h *Handler) ListOrderSets(c echo.Context) error {
	includeRetired, _ := strconv.ParseBool(c.QueryParam("includeRetired"))
	sets, err := h.svc.GetOrderSets(c.Request().Context(), includeRetired)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(sets, pagination.FromContext(c)))
}

func (h *Handler) GetOrderSet(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	set, err := h.svc.GetOrderSet(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, set)
}

func (h *Handler) CreateOrderSet(c echo.Context) error {
	var req orderSetRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	set := &OrderSet{Name: req.Name, Description: req.Description, Operator: req.Operator, CategoryID: req.CategoryID}
	for _, m := range req.Members {
		set.Members = append(set.Members, m.toMember())
	}
	saved, err := h.svc.SaveOrderSet(c.Request().Context(), set)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, saved)
}

// UpdateOrderSet changes the set's own fields. Members are managed through
// the member endpoints.
func (h *Handler) UpdateOrderSet(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req orderSetRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	set, err := h.svc.GetOrderSet(ctx, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	set.Name, set.Description, set.Operator, set.CategoryID = req.Name, req.Description, req.Operator, req.CategoryID
	saved, err := h.svc.SaveOrderSet(ctx, set)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, saved)
}

func (h *Handler) RetireOrderSet(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req reasonRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	set, err := h.svc.RetireOrderSet(c.Request().Context(), id, req.Reason)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, set)
}

func (h *Handler) UnretireOrderSet(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	set, err := h.svc.UnretireOrderSet(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, set)
}

func (h *Handler) PurgeOrderSet(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.PurgeOrderSet(c.Request().Context(), id); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) AddMember(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req addMemberRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	set, err := h.svc.AddMember(c.Request().Context(), id, req.toMember(), req.Position)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, set)
}

func (h *Handler) RemoveMember(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	memberID, err := pathID(c, "memberId")
	if err != nil {
		return err
	}
	set, err := h.svc.RemoveMember(c.Request().Context(), id, memberID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, set)
}

func (h *Handler) RetireMember(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	memberID, err := pathID(c, "memberId")
	if err != nil {
		return err
	}
	var req reasonRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	set, err := h.svc.RetireMember(c.Request().Context(), id, memberID, req.Reason)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, set)
}
