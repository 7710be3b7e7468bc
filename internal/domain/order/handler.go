package order

import (
	"net/http"
	"strconv"
	"time"

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
	readGroup.GET("/orders", h.ListOrders)
	readGroup.GET("/orders/active", h.ListActiveOrders)
	readGroup.GET("/orders/number/:number", h.GetOrderByNumber)
	readGroup.GET("/orders/:id", h.GetOrder)
	readGroup.GET("/orders/:id/revision", h.GetRevisionOrder)
	readGroup.GET("/orders/:id/discontinuation", h.GetDiscontinuationOrder)
	readGroup.GET("/caresettings", h.ListCareSettings)
	readGroup.GET("/ordertypes", h.ListOrderTypes)
	readGroup.GET("/ordertypes/:id", h.GetOrderType)
	readGroup.GET("/ordertypes/:id/subtypes", h.ListSubtypes)
	readGroup.GET("/orderfrequencies", h.ListOrderFrequencies)

	clinical := api.Group("", auth.RequireRole(auth.RoleClinician))
	clinical.POST("/orders", h.CreateOrder)
	clinical.POST("/orders/numbers", h.NewOrderNumber)
	clinical.POST("/orders/:id/discontinue", h.DiscontinueOrder)
	clinical.POST("/orders/:id/void", h.VoidOrder)
	clinical.POST("/orders/:id/unvoid", h.UnvoidOrder)
	clinical.PUT("/orders/:id/fulfillerstatus", h.UpdateFulfillerStatus)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.DELETE("/orders/:id", h.PurgeOrder)
	admin.POST("/caresettings", h.CreateCareSetting)
	admin.POST("/caresettings/:id/retire", h.RetireCareSetting)
	admin.POST("/caresettings/:id/unretire", h.UnretireCareSetting)
	admin.POST("/ordertypes", h.CreateOrderType)
	admin.POST("/ordertypes/:id/retire", h.RetireOrderType)
	admin.POST("/ordertypes/:id/unretire", h.UnretireOrderType)
	admin.DELETE("/ordertypes/:id", h.PurgeOrderType)
	admin.POST("/orderfrequencies", h.CreateOrderFrequency)
	admin.POST("/orderfrequencies/:id/retire", h.RetireOrderFrequency)
	admin.POST("/orderfrequencies/:id/unretire", h.UnretireOrderFrequency)
	admin.DELETE("/orderfrequencies/:id", h.PurgeOrderFrequency)
}

// -- Request types --

type orderRequest struct {
	PatientID           uuid.UUID    `json:"patient_id" validate:"required"`
	EncounterID         uuid.UUID    `json:"encounter_id" validate:"required"`
	OrdererID           uuid.UUID    `json:"orderer_id" validate:"required"`
	ConceptID           uuid.UUID    `json:"concept_id"`
	CareSettingID       uuid.UUID    `json:"care_setting_id"`
	OrderTypeID         uuid.UUID    `json:"order_type_id"`
	Action              Action       `json:"action" validate:"omitempty,oneof=NEW REVISE DISCONTINUE RENEW"`
	Urgency             Urgency      `json:"urgency" validate:"omitempty,oneof=ROUTINE STAT ON_SCHEDULED_DATE"`
	ScheduledDate       *time.Time   `json:"scheduled_date"`
	DateActivated       *time.Time   `json:"date_activated"`
	AutoExpireDate      *time.Time   `json:"auto_expire_date"`
	PreviousOrderID     *uuid.UUID   `json:"previous_order_id"`
	OrderReasonID       *uuid.UUID   `json:"order_reason_id"`
	OrderReasonNonCoded string       `json:"order_reason_non_coded"`
	Instructions        string       `json:"instructions"`
	CommentToFulfiller  string       `json:"comment_to_fulfiller"`
	Drug                *DrugDetails `json:"drug"`
	Test                *TestDetails `json:"test"`
}

func (r orderRequest) toOrder() *Order {
	o := &Order{
		PatientID:           r.PatientID,
		EncounterID:         r.EncounterID,
		OrdererID:           r.OrdererID,
		ConceptID:           r.ConceptID,
		CareSettingID:       r.CareSettingID,
		OrderTypeID:         r.OrderTypeID,
		Action:              r.Action,
		Urgency:             r.Urgency,
		ScheduledDate:       r.ScheduledDate,
		AutoExpireDate:      r.AutoExpireDate,
		PreviousOrderID:     r.PreviousOrderID,
		OrderReasonID:       r.OrderReasonID,
		OrderReasonNonCoded: r.OrderReasonNonCoded,
		Instructions:        r.Instructions,
		CommentToFulfiller:  r.CommentToFulfiller,
		Drug:                r.Drug,
		Test:                r.Test,
	}
	if r.DateActivated != nil {
		o.DateActivated = *r.DateActivated
	}
	return o
}

type discontinueRequest struct {
	ReasonConceptID *uuid.UUID `json:"reason_concept_id"`
	ReasonNonCoded  string     `json:"reason_non_coded"`
	DiscontinueDate *time.Time `json:"discontinue_date"`
	OrdererID       uuid.UUID  `json:"orderer_id" validate:"required"`
	EncounterID     uuid.UUID  `json:"encounter_id" validate:"required"`
}

type fulfillerRequest struct {
	Status  FulfillerStatus `json:"status" validate:"required,oneof=RECEIVED IN_PROGRESS EXCEPTION ON_HOLD DECLINED COMPLETED"`
	Comment string          `json:"comment"`
}

type careSettingRequest struct {
	Name        string `json:"name" validate:"required,max=255"`
	Description string `json:"description"`
	Type        string `json:"care_setting_type" validate:"required,oneof=OUTPATIENT INPATIENT"`
}

type orderTypeRequest struct {
	Name           string     `json:"name" validate:"required,max=255"`
	Description    string     `json:"description"`
	Kind           string     `json:"kind" validate:"omitempty,oneof=drug test generic"`
	ParentID       *uuid.UUID `json:"parent_id"`
	ConceptClasses []string   `json:"concept_classes"`
}

type frequencyRequest struct {
	ConceptID       uuid.UUID `json:"concept_id" validate:"required"`
	FrequencyPerDay float64   `json:"frequency_per_day" validate:"gte=0"`
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// -- Helpers --

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

func queryUUID(c echo.Context, name string) (*uuid.UUID, error) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return &id, nil
}

func queryTime(c echo.Context, name string) (*time.Time, error) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name+": expected RFC3339")
	}
	return &t, nil
}

// -- Orders --

func (h *Handler) CreateOrder(c echo.Context) error {
	var req orderRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	o, err := h.svc.SaveOrder(c.Request().Context(), req.toOrder(), nil)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, o)
}

func (h *Handler) GetOrder(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	o, err := h.svc.GetOrder(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) GetOrderByNumber(c echo.Context) error {
	o, err := h.svc.GetOrderByOrderNumber(c.Request().Context(), c.Param("number"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) ListOrders(c echo.Context) error {
	patientID, err := queryUUID(c, "patient")
	if err != nil {
		return err
	}
	if patientID == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "patient query parameter is required")
	}
	careSetting, err := queryUUID(c, "careSetting")
	if err != nil {
		return err
	}
	orderType, err := queryUUID(c, "orderType")
	if err != nil {
		return err
	}
	includeVoided, _ := strconv.ParseBool(c.QueryParam("includeVoided"))
	orders, err := h.svc.GetOrders(c.Request().Context(), *patientID, careSetting, orderType, includeVoided)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(orders, pagination.FromContext(c)))
}

func (h *Handler) ListActiveOrders(c echo.Context) error {
	patientID, err := queryUUID(c, "patient")
	if err != nil {
		return err
	}
	if patientID == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "patient query parameter is required")
	}
	careSetting, err := queryUUID(c, "careSetting")
	if err != nil {
		return err
	}
	orderType, err := queryUUID(c, "orderType")
	if err != nil {
		return err
	}
	asOf, err := queryTime(c, "asOfDate")
	if err != nil {
		return err
	}
	orders, err := h.svc.GetActiveOrders(c.Request().Context(), *patientID, orderType, careSetting, asOf)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if orders == nil {
		orders = []*Order{}
	}
	return c.JSON(http.StatusOK, orders)
}

func (h *Handler) GetRevisionOrder(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	o, err := h.svc.GetRevisionOrder(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) GetDiscontinuationOrder(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	o, err := h.svc.GetDiscontinuationOrder(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) DiscontinueOrder(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req discontinueRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	o, err := h.svc.DiscontinueOrder(c.Request().Context(), id, DiscontinueRequest{
		ReasonConceptID: req.ReasonConceptID,
		ReasonNonCoded:  req.ReasonNonCoded,
		DiscontinueDate: req.DiscontinueDate,
		OrdererID:       req.OrdererID,
		EncounterID:     req.EncounterID,
	})
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, o)
}

func (h *Handler) VoidOrder(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req reasonRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	o, err := h.svc.VoidOrder(c.Request().Context(), id, req.Reason)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) UnvoidOrder(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	o, err := h.svc.UnvoidOrder(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) UpdateFulfillerStatus(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req fulfillerRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	o, err := h.svc.UpdateOrderFulfillerStatus(c.Request().Context(), id, req.Status, req.Comment)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) NewOrderNumber(c echo.Context) error {
	num, err := h.svc.GetNewOrderNumber(c.Request().Context())
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"order_number": num})
}

func (h *Handler) PurgeOrder(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.PurgeOrder(c.Request().Context(), id); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Care settings --

func (h *Handler) ListCareSettings(c echo.Context) error {
	includeRetired, _ := strconv.ParseBool(c.QueryParam("includeRetired"))
	list, err := h.svc.GetCareSettings(c.Request().Context(), includeRetired)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(list, pagination.FromContext(c)))
}

func (h *Handler) CreateCareSetting(c echo.Context) error {
	var req careSettingRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	cs, err := h.svc.SaveCareSetting(c.Request().Context(), &CareSetting{
		Name: req.Name, Description: req.Description, Type: req.Type,
	})
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, cs)
}

func (h *Handler) RetireCareSetting(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req reasonRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	cs, err := h.svc.RetireCareSetting(c.Request().Context(), id, req.Reason)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, cs)
}

func (h *Handler) UnretireCareSetting(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	cs, err := h.svc.UnretireCareSetting(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, cs)
}

// -- Order types --

func (h *Handler) ListOrderTypes(c echo.Context) error {
	includeRetired, _ := strconv.ParseBool(c.QueryParam("includeRetired"))
	list, err := h.svc.GetOrderTypes(c.Request().Context(), includeRetired)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(list, pagination.FromContext(c)))
}

func (h *Handler) GetOrderType(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ot, err := h.svc.GetOrderType(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, ot)
}

func (h *Handler) ListSubtypes(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	recursive, _ := strconv.ParseBool(c.QueryParam("recursive"))
	subs, err := h.svc.GetSubtypes(c.Request().Context(), id, recursive)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if subs == nil {
		subs = []*OrderType{}
	}
	return c.JSON(http.StatusOK, subs)
}

func (h *Handler) CreateOrderType(c echo.Context) error {
	var req orderTypeRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	ot, err := h.svc.SaveOrderType(c.Request().Context(), &OrderType{
		Name:           req.Name,
		Description:    req.Description,
		Kind:           req.Kind,
		ParentID:       req.ParentID,
		ConceptClasses: req.ConceptClasses,
	})
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, ot)
}

func (h *Handler) RetireOrderType(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req reasonRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	ot, err := h.svc.RetireOrderType(c.Request().Context(), id, req.Reason)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, ot)
}

func (h *Handler) UnretireOrderType(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ot, err := h.svc.UnretireOrderType(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, ot)
}

func (h *Handler) PurgeOrderType(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.PurgeOrderType(c.Request().Context(), id); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Order frequencies --

func (h *Handler) ListOrderFrequencies(c echo.Context) error {
	includeRetired, _ := strconv.ParseBool(c.QueryParam("includeRetired"))
	list, err := h.svc.GetOrderFrequencies(c.Request().Context(), includeRetired)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(list, pagination.FromContext(c)))
}

func (h *Handler) CreateOrderFrequency(c echo.Context) error {
	var req frequencyRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	f, err := h.svc.SaveOrderFrequency(c.Request().Context(), &OrderFrequency{
		ConceptID: req.ConceptID, FrequencyPerDay: req.FrequencyPerDay,
	})
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, f)
}

func (h *Handler) RetireOrderFrequency(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req reasonRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	f, err := h.svc.RetireOrderFrequency(c.Request().Context(), id, req.Reason)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, f)
}

func (h *Handler) UnretireOrderFrequency(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	f, err := h.svc.UnretireOrderFrequency(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, f)
}

func (h *Handler) PurgeOrderFrequency(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.PurgeOrderFrequency(c.Request().Context(), id); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}
