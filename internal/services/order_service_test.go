package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/feastline/api/internal/domain"
)

var testClock = func() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

type orderServiceFixture struct {
	service   OrderService
	orders    *memOrderRepo
	vendors   *stubVendorRepo
	foodItems *stubFoodItemRepo
	counters  *stubCounterRepo
	publisher *capturePublisher
}

func newOrderServiceFixture(t *testing.T, orders ...domain.Order) *orderServiceFixture {
	t.Helper()
	items, vendors := testCatalog()
	engine, err := NewPricingEngine(PricingEngineDeps{FoodItems: items, Vendors: vendors, TaxRate: 0.05})
	if err != nil {
		t.Fatalf("NewPricingEngine: %v", err)
	}

	orderRepo := newMemOrderRepo(orders...)
	counters := &stubCounterRepo{value: 41}
	publisher := &capturePublisher{}

	service, err := NewOrderService(OrderServiceDeps{
		Orders:       orderRepo,
		Vendors:      vendors,
		FoodItems:    items,
		Counters:     counters,
		Pricing:      engine,
		RefundPolicy: NewTimelineRefundPolicy(),
		Publisher:    publisher,
		Clock:        testClock,
		IDGenerator:  func() string { return "01TESTULID" },
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	return &orderServiceFixture{
		service:   service,
		orders:    orderRepo,
		vendors:   vendors,
		foodItems: items,
		counters:  counters,
		publisher: publisher,
	}
}

func testAddress() domain.DeliveryAddress {
	return domain.DeliveryAddress{
		Name:    "Asha Rao",
		Address: "14 MG Road",
		City:    "Bengaluru",
		State:   "KA",
		Pincode: "560001",
	}
}

func placedOrder(id string, status domain.OrderStatus) domain.Order {
	now := testClock()
	timeline := []domain.TimelineEntry{{Status: domain.OrderStatusPending, Timestamp: now}}
	if status != domain.OrderStatusPending {
		timeline = append(timeline, domain.TimelineEntry{Status: status, Timestamp: now.Add(time.Minute)})
	}
	return domain.Order{
		ID:          id,
		OrderNumber: "FM-2025-000042",
		CustomerID:  "cust-1",
		VendorID:    "vendor-1",
		Items: []domain.OrderItem{
			{FoodItemID: "item-biryani", Name: "Chicken Biryani", Quantity: 2, UnitPrice: 280},
		},
		DeliveryAddress: testAddress(),
		Payment: domain.OrderPayment{
			Method: domain.PaymentMethodRazorpay,
			Status: domain.PaymentStatusPending,
			Amount: 618,
		},
		Pricing:   domain.OrderPricing{Subtotal: 560, DeliveryFee: 30, Tax: 28, Total: 618},
		Status:    status,
		Timeline:  timeline,
		Refund:    domain.OrderRefund{Status: domain.RefundStatusNone},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestCreateOrderBuildsPendingOrder(t *testing.T) {
	fx := newOrderServiceFixture(t)

	order, err := fx.service.Create(context.Background(), CreateOrderCommand{
		CustomerID:      "cust-1",
		Lines:           []OrderLineInput{{FoodItemID: "item-biryani", Quantity: 2}},
		DeliveryAddress: testAddress(),
		PaymentMethod:   domain.PaymentMethodRazorpay,
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if order.ID != "ord_01TESTULID" {
		t.Errorf("id = %q, want ord_01TESTULID", order.ID)
	}
	if order.OrderNumber != "FM-2025-000042" {
		t.Errorf("order number = %q, want FM-2025-000042", order.OrderNumber)
	}
	if order.Status != domain.OrderStatusPending {
		t.Errorf("status = %q, want pending", order.Status)
	}
	if len(order.Timeline) != 1 || order.Timeline[0].Status != domain.OrderStatusPending {
		t.Errorf("timeline = %+v, want single pending entry", order.Timeline)
	}
	if order.Payment.Status != domain.PaymentStatusPending || !approxEqual(order.Payment.Amount, 618) {
		t.Errorf("payment = %+v, want pending for 618", order.Payment)
	}
	if order.Delivery.EstimatedMinutes != 35 {
		t.Errorf("estimated minutes = %d, want 35", order.Delivery.EstimatedMinutes)
	}
	if stored := fx.orders.get(order.ID); stored.OrderNumber != order.OrderNumber {
		t.Errorf("order was not persisted: %+v", stored)
	}
	if len(fx.publisher.events) != 1 || fx.publisher.events[0].Type != EventOrderCreated {
		t.Errorf("events = %+v, want one order.created", fx.publisher.events)
	}
}

func TestCreateOrderValidatesInput(t *testing.T) {
	fx := newOrderServiceFixture(t)
	ctx := context.Background()

	_, err := fx.service.Create(ctx, CreateOrderCommand{
		Lines:           []OrderLineInput{{FoodItemID: "item-biryani", Quantity: 1}},
		DeliveryAddress: testAddress(),
		PaymentMethod:   domain.PaymentMethodRazorpay,
	})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Errorf("missing customer: err = %v, want ErrOrderInvalidInput", err)
	}

	_, err = fx.service.Create(ctx, CreateOrderCommand{
		CustomerID:      "cust-1",
		Lines:           []OrderLineInput{{FoodItemID: "item-biryani", Quantity: 1}},
		DeliveryAddress: domain.DeliveryAddress{Name: "Asha Rao"},
		PaymentMethod:   domain.PaymentMethodRazorpay,
	})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Errorf("incomplete address: err = %v, want ErrOrderInvalidInput", err)
	}

	_, err = fx.service.Create(ctx, CreateOrderCommand{
		CustomerID:      "cust-1",
		Lines:           []OrderLineInput{{FoodItemID: "item-biryani", Quantity: 1}},
		DeliveryAddress: testAddress(),
		PaymentMethod:   domain.PaymentMethod("bitcoin"),
	})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Errorf("bad payment method: err = %v, want ErrOrderInvalidInput", err)
	}
}

func TestAdvanceStatusVendorConfirms(t *testing.T) {
	fx := newOrderServiceFixture(t, placedOrder("ord_1", domain.OrderStatusPending))

	order, err := fx.service.AdvanceStatus(context.Background(), AdvanceStatusCommand{
		OrderID: "ord_1",
		Target:  domain.OrderStatusConfirmed,
		ActorID: "user-vendor-1",
		Role:    domain.RoleVendor,
	})
	if err != nil {
		t.Fatalf("AdvanceStatus returned error: %v", err)
	}
	if order.Status != domain.OrderStatusConfirmed {
		t.Errorf("status = %q, want confirmed", order.Status)
	}
	last := order.Timeline[len(order.Timeline)-1]
	if last.Status != domain.OrderStatusConfirmed {
		t.Errorf("timeline tail = %+v, want confirmed entry", last)
	}
	if len(fx.publisher.events) != 1 || fx.publisher.events[0].PreviousStatus != domain.OrderStatusPending {
		t.Errorf("events = %+v, want status change from pending", fx.publisher.events)
	}
}

func TestAdvanceStatusRejectsSkippedStates(t *testing.T) {
	fx := newOrderServiceFixture(t, placedOrder("ord_1", domain.OrderStatusPending))

	_, err := fx.service.AdvanceStatus(context.Background(), AdvanceStatusCommand{
		OrderID: "ord_1",
		Target:  domain.OrderStatusReady,
		ActorID: "user-vendor-1",
		Role:    domain.RoleVendor,
	})
	if !errors.Is(err, ErrOrderInvalidTransition) {
		t.Fatalf("err = %v, want ErrOrderInvalidTransition", err)
	}
}

func TestAdvanceStatusEnforcesRoles(t *testing.T) {
	fx := newOrderServiceFixture(t, placedOrder("ord_1", domain.OrderStatusPending))

	_, err := fx.service.AdvanceStatus(context.Background(), AdvanceStatusCommand{
		OrderID: "ord_1",
		Target:  domain.OrderStatusConfirmed,
		ActorID: "cust-1",
		Role:    domain.RoleCustomer,
	})
	if !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("customer confirming: err = %v, want ErrOrderForbidden", err)
	}
}

func TestAdvanceStatusRejectsForeignVendor(t *testing.T) {
	fx := newOrderServiceFixture(t, placedOrder("ord_1", domain.OrderStatusPending))

	_, err := fx.service.AdvanceStatus(context.Background(), AdvanceStatusCommand{
		OrderID: "ord_1",
		Target:  domain.OrderStatusConfirmed,
		ActorID: "user-vendor-2",
		Role:    domain.RoleVendor,
	})
	if !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("err = %v, want ErrOrderForbidden", err)
	}
}

func TestAdvanceStatusDeliveredRecordsStatsOnce(t *testing.T) {
	seeded := placedOrder("ord_1", domain.OrderStatusOutForDelivery)
	// A second line for the same item: popularity counts quantities, not lines.
	seeded.Items = append(seeded.Items, domain.OrderItem{
		FoodItemID: "item-biryani", Name: "Chicken Biryani", Quantity: 1, UnitPrice: 280,
		Variant: &domain.VariantSelection{Name: "Family Pack", Price: 520},
	})
	fx := newOrderServiceFixture(t, seeded)

	order, err := fx.service.AdvanceStatus(context.Background(), AdvanceStatusCommand{
		OrderID: "ord_1",
		Target:  domain.OrderStatusDelivered,
		ActorID: "user-vendor-1",
		Role:    domain.RoleVendor,
	})
	if err != nil {
		t.Fatalf("AdvanceStatus returned error: %v", err)
	}
	if order.Delivery.DeliveredAt == nil {
		t.Error("DeliveredAt not set")
	}
	if !order.StatsRecorded {
		t.Error("StatsRecorded not set")
	}
	if len(fx.vendors.deliveries) != 1 || !approxEqual(fx.vendors.deliveries[0].Earnings, 618) {
		t.Errorf("vendor deliveries = %+v, want one for 618", fx.vendors.deliveries)
	}
	if fx.foodItems.counts["item-biryani"] != 3 {
		t.Errorf("item count = %d, want summed quantity 3", fx.foodItems.counts["item-biryani"])
	}
}

func TestAdvanceStatusDeliveredSkipsRecordedStats(t *testing.T) {
	order := placedOrder("ord_1", domain.OrderStatusOutForDelivery)
	order.StatsRecorded = true
	fx := newOrderServiceFixture(t, order)

	if _, err := fx.service.AdvanceStatus(context.Background(), AdvanceStatusCommand{
		OrderID: "ord_1",
		Target:  domain.OrderStatusDelivered,
		ActorID: "user-vendor-1",
		Role:    domain.RoleVendor,
	}); err != nil {
		t.Fatalf("AdvanceStatus returned error: %v", err)
	}
	if len(fx.vendors.deliveries) != 0 {
		t.Errorf("vendor deliveries = %+v, want none", fx.vendors.deliveries)
	}
}

func TestAdvanceStatusDeliveredSettlesCashOnDelivery(t *testing.T) {
	order := placedOrder("ord_1", domain.OrderStatusOutForDelivery)
	order.Payment.Method = domain.PaymentMethodCOD
	fx := newOrderServiceFixture(t, order)

	updated, err := fx.service.AdvanceStatus(context.Background(), AdvanceStatusCommand{
		OrderID: "ord_1",
		Target:  domain.OrderStatusDelivered,
		ActorID: "user-vendor-1",
		Role:    domain.RoleVendor,
	})
	if err != nil {
		t.Fatalf("AdvanceStatus returned error: %v", err)
	}
	if updated.Payment.Status != domain.PaymentStatusCompleted {
		t.Errorf("payment status = %q, want completed", updated.Payment.Status)
	}
}

func TestCancelPendingOrderRecordsFullRefund(t *testing.T) {
	order := placedOrder("ord_1", domain.OrderStatusPending)
	order.Payment.Status = domain.PaymentStatusCompleted
	fx := newOrderServiceFixture(t, order)

	updated, err := fx.service.Cancel(context.Background(), CancelOrderCommand{
		OrderID: "ord_1",
		ActorID: "cust-1",
		Role:    domain.RoleCustomer,
		Reason:  "ordered by mistake",
	})
	if err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}
	if updated.Status != domain.OrderStatusCancelled {
		t.Errorf("status = %q, want cancelled", updated.Status)
	}
	if updated.Refund.Status != domain.RefundStatusRequested || !approxEqual(updated.Refund.Amount, 618) {
		t.Errorf("refund = %+v, want requested full 618", updated.Refund)
	}
	last := updated.Timeline[len(updated.Timeline)-1]
	if last.Status != domain.OrderStatusCancelled || last.Note != "ordered by mistake" {
		t.Errorf("timeline tail = %+v", last)
	}
}

func TestCancelUnpaidOrderLeavesNoRefund(t *testing.T) {
	fx := newOrderServiceFixture(t, placedOrder("ord_1", domain.OrderStatusPending))

	updated, err := fx.service.Cancel(context.Background(), CancelOrderCommand{
		OrderID: "ord_1",
		ActorID: "cust-1",
		Role:    domain.RoleCustomer,
	})
	if err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}
	if updated.Refund.Status != domain.RefundStatusNone {
		t.Errorf("refund = %+v, want none", updated.Refund)
	}
}

func TestCancelRejectsLateAndForeignCallers(t *testing.T) {
	fx := newOrderServiceFixture(t,
		placedOrder("ord_preparing", domain.OrderStatusPreparing),
		placedOrder("ord_pending", domain.OrderStatusPending),
	)
	ctx := context.Background()

	_, err := fx.service.Cancel(ctx, CancelOrderCommand{OrderID: "ord_preparing", ActorID: "cust-1", Role: domain.RoleCustomer})
	if !errors.Is(err, ErrOrderInvalidTransition) {
		t.Errorf("late cancel: err = %v, want ErrOrderInvalidTransition", err)
	}

	_, err = fx.service.Cancel(ctx, CancelOrderCommand{OrderID: "ord_pending", ActorID: "cust-2", Role: domain.RoleCustomer})
	if !errors.Is(err, ErrOrderForbidden) {
		t.Errorf("foreign customer: err = %v, want ErrOrderForbidden", err)
	}

	_, err = fx.service.Cancel(ctx, CancelOrderCommand{OrderID: "ord_pending", ActorID: "admin-1", Role: domain.RoleAdmin})
	if !errors.Is(err, ErrOrderForbidden) {
		t.Errorf("admin cancel: err = %v, want ErrOrderForbidden", err)
	}
}

func TestGetScopesByRole(t *testing.T) {
	fx := newOrderServiceFixture(t, placedOrder("ord_1", domain.OrderStatusPending))
	ctx := context.Background()

	if _, err := fx.service.Get(ctx, "cust-1", domain.RoleCustomer, "ord_1"); err != nil {
		t.Errorf("owner read: %v", err)
	}
	if _, err := fx.service.Get(ctx, "cust-2", domain.RoleCustomer, "ord_1"); !errors.Is(err, ErrOrderForbidden) {
		t.Errorf("foreign customer read: err = %v, want ErrOrderForbidden", err)
	}
	if _, err := fx.service.Get(ctx, "user-vendor-1", domain.RoleVendor, "ord_1"); err != nil {
		t.Errorf("vendor read: %v", err)
	}
	if _, err := fx.service.Get(ctx, "user-vendor-2", domain.RoleVendor, "ord_1"); !errors.Is(err, ErrOrderForbidden) {
		t.Errorf("foreign vendor read: err = %v, want ErrOrderForbidden", err)
	}
	if _, err := fx.service.Get(ctx, "admin-1", domain.RoleAdmin, "ord_1"); err != nil {
		t.Errorf("admin read: %v", err)
	}
	if _, err := fx.service.Get(ctx, "cust-1", domain.RoleCustomer, "ord_missing"); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("missing order: err = %v, want ErrOrderNotFound", err)
	}
}

func TestAppendTrackingRequiresActiveOrder(t *testing.T) {
	fx := newOrderServiceFixture(t,
		placedOrder("ord_active", domain.OrderStatusOutForDelivery),
		placedOrder("ord_done", domain.OrderStatusDelivered),
	)
	ctx := context.Background()

	updated, err := fx.service.AppendTracking(ctx, TrackingUpdateCommand{
		OrderID:  "ord_active",
		ActorID:  "user-vendor-1",
		Role:     domain.RoleVendor,
		Location: "Koramangala",
		Status:   "nearby",
	})
	if err != nil {
		t.Fatalf("AppendTracking returned error: %v", err)
	}
	if len(updated.Delivery.Tracking) != 1 || updated.Delivery.Tracking[0].Location != "Koramangala" {
		t.Errorf("tracking = %+v", updated.Delivery.Tracking)
	}
	if updated.Status != domain.OrderStatusOutForDelivery {
		t.Errorf("status changed to %q, tracking must not touch status", updated.Status)
	}

	_, err = fx.service.AppendTracking(ctx, TrackingUpdateCommand{
		OrderID: "ord_done",
		ActorID: "user-vendor-1",
		Role:    domain.RoleVendor,
		Note:    "late note",
	})
	if !errors.Is(err, ErrOrderInvalidTransition) {
		t.Errorf("tracking on delivered order: err = %v, want ErrOrderInvalidTransition", err)
	}

	_, err = fx.service.AppendTracking(ctx, TrackingUpdateCommand{
		OrderID: "ord_active",
		ActorID: "cust-1",
		Role:    domain.RoleCustomer,
		Note:    "where is my food",
	})
	if !errors.Is(err, ErrOrderForbidden) {
		t.Errorf("customer tracking: err = %v, want ErrOrderForbidden", err)
	}
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	fx := newOrderServiceFixture(t)
	fx.publisher.err = errors.New("pubsub down")

	_, err := fx.service.Create(context.Background(), CreateOrderCommand{
		CustomerID:      "cust-1",
		Lines:           []OrderLineInput{{FoodItemID: "item-biryani", Quantity: 1}},
		DeliveryAddress: testAddress(),
		PaymentMethod:   domain.PaymentMethodCOD,
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
}
