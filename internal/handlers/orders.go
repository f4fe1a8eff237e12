package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/feastline/api/internal/domain"
	"github.com/feastline/api/internal/platform/auth"
	"github.com/feastline/api/internal/platform/httpx"
	"github.com/feastline/api/internal/repositories"
	"github.com/feastline/api/internal/services"
)

const maxOrderBodySize = 64 * 1024

type orderLineRequest struct {
	FoodItemID  string   `json:"food_item_id"`
	Quantity    int      `json:"quantity"`
	VariantName string   `json:"variant,omitempty"`
	AddOnNames  []string `json:"add_ons,omitempty"`
	Note        string   `json:"note,omitempty"`
}

type createOrderRequest struct {
	Items           []orderLineRequest `json:"items"`
	DeliveryAddress addressPayload     `json:"delivery_address"`
	PaymentMethod   string             `json:"payment_method"`
	Note            string             `json:"note,omitempty"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note,omitempty"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason,omitempty"`
}

type trackingRequest struct {
	Location string `json:"location,omitempty"`
	Status   string `json:"status,omitempty"`
	Note     string `json:"note,omitempty"`
}

// OrderHandlers exposes the order lifecycle endpoints.
type OrderHandlers struct {
	orders services.OrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{orders: orders}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.createOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Get("/{orderID}/track", h.trackOrder)
	r.Patch("/{orderID}/status", h.updateStatus)
	r.Post("/{orderID}/cancel", h.cancelOrder)
	r.Post("/{orderID}/tracking", h.appendTracking)
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if !identity.IsCustomer() {
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "only customers place orders", http.StatusForbidden))
		return
	}

	var req createOrderRequest
	if err := decodeJSON(w, r, maxOrderBodySize, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	lines := make([]services.OrderLineInput, 0, len(req.Items))
	for _, item := range req.Items {
		lines = append(lines, services.OrderLineInput{
			FoodItemID:  item.FoodItemID,
			Quantity:    item.Quantity,
			VariantName: item.VariantName,
			AddOnNames:  item.AddOnNames,
			Note:        item.Note,
		})
	}

	order, err := h.orders.Create(ctx, services.CreateOrderCommand{
		CustomerID: identity.UserID,
		Lines:      lines,
		DeliveryAddress: domain.DeliveryAddress{
			Label:    req.DeliveryAddress.Label,
			Name:     req.DeliveryAddress.Name,
			Address:  req.DeliveryAddress.Address,
			City:     req.DeliveryAddress.City,
			State:    req.DeliveryAddress.State,
			Pincode:  req.DeliveryAddress.Pincode,
			Landmark: req.DeliveryAddress.Landmark,
			Phone:    req.DeliveryAddress.Phone,
		},
		PaymentMethod: domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod))),
		Note:          req.Note,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	filter := repositories.OrderListFilter{}
	query := r.URL.Query()
	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		filter.Status = domain.OrderStatus(strings.ToLower(raw))
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "limit must be a non-negative integer", http.StatusBadRequest))
			return
		}
		filter.Limit = limit
	}

	var (
		orders []domain.Order
		err    error
	)
	switch {
	case identity.IsCustomer():
		orders, err = h.orders.ListByCustomer(ctx, identity.UserID, filter)
	case identity.IsVendor():
		orders, err = h.orders.ListByVendor(ctx, identity.UserID, filter)
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "listing requires a customer or vendor caller", http.StatusBadRequest))
		return
	}
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	items := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		items = append(items, buildOrderPayload(order))
	}
	httpx.WriteJSON(w, http.StatusOK, orderListResponse{Items: items})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	orderID, ok := requireOrderID(w, r)
	if !ok {
		return
	}

	order, err := h.orders.Get(ctx, identity.UserID, identity.Role, orderID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) trackOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	orderID, ok := requireOrderID(w, r)
	if !ok {
		return
	}

	order, err := h.orders.Get(ctx, identity.UserID, identity.Role, orderID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildTrackResponse(order))
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	orderID, ok := requireOrderID(w, r)
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := decodeJSON(w, r, maxOrderBodySize, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	order, err := h.orders.AdvanceStatus(ctx, services.AdvanceStatusCommand{
		OrderID: orderID,
		Target:  domain.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status))),
		ActorID: identity.UserID,
		Role:    identity.Role,
		Note:    req.Note,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	orderID, ok := requireOrderID(w, r)
	if !ok {
		return
	}

	var req cancelOrderRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(w, r, maxOrderBodySize, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
			return
		}
	}

	order, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		OrderID: orderID,
		ActorID: identity.UserID,
		Role:    identity.Role,
		Reason:  req.Reason,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) appendTracking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	orderID, ok := requireOrderID(w, r)
	if !ok {
		return
	}

	var req trackingRequest
	if err := decodeJSON(w, r, maxOrderBodySize, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	order, err := h.orders.AppendTracking(ctx, services.TrackingUpdateCommand{
		OrderID:  orderID,
		ActorID:  identity.UserID,
		Role:     identity.Role,
		Location: req.Location,
		Status:   req.Status,
		Note:     req.Note,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func requireIdentity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return auth.Identity{}, false
	}
	return identity, true
}

func requireOrderID(w http.ResponseWriter, r *http.Request) (string, bool) {
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return "", false
	}
	return orderID, true
}
