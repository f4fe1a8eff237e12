package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/feastline/api/internal/domain"
	"github.com/feastline/api/internal/platform/auth"
	"github.com/feastline/api/internal/repositories"
	"github.com/feastline/api/internal/services"
)

type stubOrderService struct {
	createFn   func(context.Context, services.CreateOrderCommand) (domain.Order, error)
	getFn      func(context.Context, string, domain.Role, string) (domain.Order, error)
	listCustFn func(context.Context, string, repositories.OrderListFilter) ([]domain.Order, error)
	listVendFn func(context.Context, string, repositories.OrderListFilter) ([]domain.Order, error)
	advanceFn  func(context.Context, services.AdvanceStatusCommand) (domain.Order, error)
	cancelFn   func(context.Context, services.CancelOrderCommand) (domain.Order, error)
	trackFn    func(context.Context, services.TrackingUpdateCommand) (domain.Order, error)
}

func (s *stubOrderService) Create(ctx context.Context, cmd services.CreateOrderCommand) (domain.Order, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) Get(ctx context.Context, actorID string, role domain.Role, orderID string) (domain.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, actorID, role, orderID)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) ListByCustomer(ctx context.Context, customerID string, filter repositories.OrderListFilter) ([]domain.Order, error) {
	if s.listCustFn != nil {
		return s.listCustFn(ctx, customerID, filter)
	}
	return nil, errors.New("not implemented")
}

func (s *stubOrderService) ListByVendor(ctx context.Context, vendorUserID string, filter repositories.OrderListFilter) ([]domain.Order, error) {
	if s.listVendFn != nil {
		return s.listVendFn(ctx, vendorUserID, filter)
	}
	return nil, errors.New("not implemented")
}

func (s *stubOrderService) AdvanceStatus(ctx context.Context, cmd services.AdvanceStatusCommand) (domain.Order, error) {
	if s.advanceFn != nil {
		return s.advanceFn(ctx, cmd)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) Cancel(ctx context.Context, cmd services.CancelOrderCommand) (domain.Order, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, cmd)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) AppendTracking(ctx context.Context, cmd services.TrackingUpdateCommand) (domain.Order, error) {
	if s.trackFn != nil {
		return s.trackFn(ctx, cmd)
	}
	return domain.Order{}, errors.New("not implemented")
}

func sampleOrder() domain.Order {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return domain.Order{
		ID:          "ord_1",
		OrderNumber: "FM-2025-000042",
		CustomerID:  "cust-1",
		VendorID:    "vendor-1",
		Items: []domain.OrderItem{
			{FoodItemID: "item-1", Name: "Chicken Biryani", Quantity: 2, UnitPrice: 280},
		},
		Payment:   domain.OrderPayment{Method: domain.PaymentMethodRazorpay, Status: domain.PaymentStatusPending, Amount: 618},
		Pricing:   domain.OrderPricing{Subtotal: 560, DeliveryFee: 30, Tax: 28, Total: 618},
		Status:    domain.OrderStatusPending,
		Timeline:  []domain.TimelineEntry{{Status: domain.OrderStatusPending, Timestamp: now}},
		Refund:    domain.OrderRefund{Status: domain.RefundStatusNone},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func newOrderTestServer(svc services.OrderService) http.Handler {
	r := chi.NewRouter()
	r.Use(auth.Middleware())
	r.Route("/orders", NewOrderHandlers(svc).Routes)
	return r
}

func doRequest(t *testing.T, handler http.Handler, method, path, userID, role string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.ContentLength = int64(buf.Len())
	}
	if userID != "" {
		req.Header.Set(auth.HeaderUserID, userID)
		req.Header.Set(auth.HeaderUserRole, role)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestCreateOrderEndpoint(t *testing.T) {
	var captured services.CreateOrderCommand
	svc := &stubOrderService{
		createFn: func(ctx context.Context, cmd services.CreateOrderCommand) (domain.Order, error) {
			captured = cmd
			return sampleOrder(), nil
		},
	}
	server := newOrderTestServer(svc)

	body := map[string]any{
		"items": []map[string]any{
			{"food_item_id": "item-1", "quantity": 2, "add_ons": []string{"Raita"}},
		},
		"delivery_address": map[string]any{
			"name": "Asha Rao", "address": "14 MG Road", "city": "Bengaluru", "pincode": "560001",
		},
		"payment_method": "razorpay",
	}
	rec := doRequest(t, server, http.MethodPost, "/orders/", "cust-1", "customer", body)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if captured.CustomerID != "cust-1" {
		t.Errorf("customer id = %q, must come from identity header", captured.CustomerID)
	}
	if len(captured.Lines) != 1 || captured.Lines[0].FoodItemID != "item-1" || captured.Lines[0].Quantity != 2 {
		t.Errorf("lines = %+v", captured.Lines)
	}
	if captured.PaymentMethod != domain.PaymentMethodRazorpay {
		t.Errorf("payment method = %q", captured.PaymentMethod)
	}

	var resp struct {
		Order struct {
			OrderNumber string `json:"order_number"`
		} `json:"order"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Order.OrderNumber != "FM-2025-000042" {
		t.Errorf("order number = %q", resp.Order.OrderNumber)
	}
}

func TestCreateOrderRejectsNonCustomers(t *testing.T) {
	server := newOrderTestServer(&stubOrderService{})
	rec := doRequest(t, server, http.MethodPost, "/orders/", "user-vendor-1", "vendor", map[string]any{})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestCreateOrderRequiresAuth(t *testing.T) {
	server := newOrderTestServer(&stubOrderService{})
	rec := doRequest(t, server, http.MethodPost, "/orders/", "", "", map[string]any{})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestListOrdersDispatchesByRole(t *testing.T) {
	svc := &stubOrderService{
		listCustFn: func(ctx context.Context, customerID string, filter repositories.OrderListFilter) ([]domain.Order, error) {
			if customerID != "cust-1" {
				t.Errorf("customer id = %q", customerID)
			}
			if filter.Status != domain.OrderStatusDelivered || filter.Limit != 5 {
				t.Errorf("filter = %+v", filter)
			}
			return []domain.Order{sampleOrder()}, nil
		},
		listVendFn: func(ctx context.Context, vendorUserID string, filter repositories.OrderListFilter) ([]domain.Order, error) {
			if vendorUserID != "user-vendor-1" {
				t.Errorf("vendor user id = %q", vendorUserID)
			}
			return nil, nil
		},
	}
	server := newOrderTestServer(svc)

	rec := doRequest(t, server, http.MethodGet, "/orders/?status=delivered&limit=5", "cust-1", "customer", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("customer list status = %d", rec.Code)
	}

	rec = doRequest(t, server, http.MethodGet, "/orders/", "user-vendor-1", "vendor", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("vendor list status = %d", rec.Code)
	}
}

func TestGetOrderErrorTranslation(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", services.ErrOrderNotFound, http.StatusNotFound, "order_not_found"},
		{"forbidden", services.ErrOrderForbidden, http.StatusForbidden, "forbidden"},
		{"unavailable", services.ErrOrderUnavailable, http.StatusServiceUnavailable, "service_unavailable"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubOrderService{
				getFn: func(ctx context.Context, actorID string, role domain.Role, orderID string) (domain.Order, error) {
					return domain.Order{}, tc.err
				},
			}
			server := newOrderTestServer(svc)
			rec := doRequest(t, server, http.MethodGet, "/orders/ord_1", "cust-1", "customer", nil)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			var payload map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
				t.Fatalf("decode error payload: %v", err)
			}
			if payload["error"] != tc.wantCode {
				t.Errorf("error code = %v, want %q", payload["error"], tc.wantCode)
			}
		})
	}
}

func TestTrackOrderEndpoint(t *testing.T) {
	svc := &stubOrderService{
		getFn: func(ctx context.Context, actorID string, role domain.Role, orderID string) (domain.Order, error) {
			if orderID != "ord_1" {
				t.Errorf("order id = %q", orderID)
			}
			order := sampleOrder()
			order.Status = domain.OrderStatusOutForDelivery
			order.Delivery.EstimatedMinutes = 35
			order.Delivery.Tracking = []domain.TrackingUpdate{
				{Timestamp: order.CreatedAt, Location: "Koramangala", Status: "nearby"},
			}
			return order, nil
		},
	}
	server := newOrderTestServer(svc)

	rec := doRequest(t, server, http.MethodGet, "/orders/ord_1/track", "cust-1", "customer", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		OrderNumber      string `json:"order_number"`
		Status           string `json:"status"`
		EstimatedMinutes int    `json:"estimated_minutes"`
		Tracking         []struct {
			Location string `json:"location"`
		} `json:"tracking"`
		Payment any `json:"payment"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != string(domain.OrderStatusOutForDelivery) || resp.EstimatedMinutes != 35 {
		t.Errorf("status = %q estimated = %d", resp.Status, resp.EstimatedMinutes)
	}
	if len(resp.Tracking) != 1 || resp.Tracking[0].Location != "Koramangala" {
		t.Errorf("tracking = %+v", resp.Tracking)
	}
	if resp.Payment != nil {
		t.Error("track projection must not expose payment details")
	}
}

func TestUpdateStatusEndpoint(t *testing.T) {
	var captured services.AdvanceStatusCommand
	svc := &stubOrderService{
		advanceFn: func(ctx context.Context, cmd services.AdvanceStatusCommand) (domain.Order, error) {
			captured = cmd
			order := sampleOrder()
			order.Status = domain.OrderStatusConfirmed
			return order, nil
		},
	}
	server := newOrderTestServer(svc)

	rec := doRequest(t, server, http.MethodPatch, "/orders/ord_1/status", "user-vendor-1", "vendor", map[string]any{
		"status": "Confirmed",
		"note":   "on it",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if captured.Target != domain.OrderStatusConfirmed {
		t.Errorf("target = %q, want normalised confirmed", captured.Target)
	}
	if captured.Role != domain.RoleVendor || captured.ActorID != "user-vendor-1" {
		t.Errorf("actor = %q role = %q", captured.ActorID, captured.Role)
	}
}

func TestCancelOrderEndpoint(t *testing.T) {
	svc := &stubOrderService{
		cancelFn: func(ctx context.Context, cmd services.CancelOrderCommand) (domain.Order, error) {
			if cmd.Reason != "changed my mind" {
				t.Errorf("reason = %q", cmd.Reason)
			}
			order := sampleOrder()
			order.Status = domain.OrderStatusCancelled
			return order, nil
		},
	}
	server := newOrderTestServer(svc)

	rec := doRequest(t, server, http.MethodPost, "/orders/ord_1/cancel", "cust-1", "customer", map[string]any{
		"reason": "changed my mind",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestAppendTrackingEndpoint(t *testing.T) {
	svc := &stubOrderService{
		trackFn: func(ctx context.Context, cmd services.TrackingUpdateCommand) (domain.Order, error) {
			if cmd.Location != "Koramangala" {
				t.Errorf("location = %q", cmd.Location)
			}
			return sampleOrder(), nil
		},
	}
	server := newOrderTestServer(svc)

	rec := doRequest(t, server, http.MethodPost, "/orders/ord_1/tracking", "user-vendor-1", "vendor", map[string]any{
		"location": "Koramangala",
		"status":   "nearby",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}
