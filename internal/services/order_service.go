package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/feastline/api/internal/domain"
	"github.com/feastline/api/internal/repositories"
)

// Order service errors.
var (
	ErrOrderInvalidInput      = errors.New("order: invalid input")
	ErrOrderNotFound          = errors.New("order: not found")
	ErrOrderForbidden         = errors.New("order: forbidden")
	ErrOrderInvalidTransition = errors.New("order: invalid status transition")
	ErrOrderConflict          = errors.New("order: conflict")
	ErrOrderUnavailable       = errors.New("order: storage unavailable")
)

const (
	orderIDPrefix       = "ord_"
	orderNumberCounter  = "orders"
	createdTimelineNote = "Order placed"
)

// orderStatusTransitions is the fulfilment state machine: for each current
// status, the reachable targets and the roles allowed to take the edge.
// Cancellation is handled separately by Cancel.
var orderStatusTransitions = map[domain.OrderStatus]map[domain.OrderStatus][]domain.Role{
	domain.OrderStatusPending: {
		domain.OrderStatusConfirmed: {domain.RoleVendor, domain.RoleAdmin, domain.RoleSystem},
	},
	domain.OrderStatusConfirmed: {
		domain.OrderStatusPreparing: {domain.RoleVendor, domain.RoleAdmin},
	},
	domain.OrderStatusPreparing: {
		domain.OrderStatusReady: {domain.RoleVendor, domain.RoleAdmin},
	},
	domain.OrderStatusReady: {
		domain.OrderStatusOutForDelivery: {domain.RoleVendor, domain.RoleAdmin},
	},
	domain.OrderStatusOutForDelivery: {
		domain.OrderStatusDelivered: {domain.RoleVendor, domain.RoleAdmin},
	},
}

// cancellableStatuses are the only states a customer can cancel from.
var cancellableStatuses = map[domain.OrderStatus]bool{
	domain.OrderStatusPending:   true,
	domain.OrderStatusConfirmed: true,
}

// OrderServiceDeps lists the collaborators required by the order service.
type OrderServiceDeps struct {
	Orders       repositories.OrderRepository
	Vendors      repositories.VendorRepository
	FoodItems    repositories.FoodItemRepository
	Counters     repositories.CounterRepository
	Pricing      PricingEngine
	RefundPolicy RefundPolicy
	UnitOfWork   repositories.UnitOfWork

	// Publisher is optional; events are best effort.
	Publisher OrderEventPublisher

	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders       repositories.OrderRepository
	vendors      repositories.VendorRepository
	foodItems    repositories.FoodItemRepository
	counters     repositories.CounterRepository
	pricing      PricingEngine
	refundPolicy RefundPolicy
	uow          repositories.UnitOfWork
	publisher    OrderEventPublisher
	clock        func() time.Time
	generateID   func() string
	logger       func(ctx context.Context, event string, fields map[string]any)
}

// NewOrderService constructs the order lifecycle service.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service requires order repository")
	}
	if deps.Vendors == nil {
		return nil, errors.New("order service requires vendor repository")
	}
	if deps.FoodItems == nil {
		return nil, errors.New("order service requires food item repository")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service requires counter repository")
	}
	if deps.Pricing == nil {
		return nil, errors.New("order service requires pricing engine")
	}
	if deps.RefundPolicy == nil {
		return nil, errors.New("order service requires refund policy")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	generateID := deps.IDGenerator
	if generateID == nil {
		generateID = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	uow := deps.UnitOfWork
	if uow == nil {
		uow = noopUnitOfWork{}
	}

	return &orderService{
		orders:       deps.Orders,
		vendors:      deps.Vendors,
		foodItems:    deps.FoodItems,
		counters:     deps.Counters,
		pricing:      deps.Pricing,
		refundPolicy: deps.RefundPolicy,
		uow:          uow,
		publisher:    deps.Publisher,
		clock:        func() time.Time { return clock().UTC() },
		generateID:   generateID,
		logger:       logger,
	}, nil
}

// Create prices the requested lines, allocates an order number and persists
// the order in pending state.
func (s *orderService) Create(ctx context.Context, cmd CreateOrderCommand) (domain.Order, error) {
	customerID := strings.TrimSpace(cmd.CustomerID)
	if customerID == "" {
		return domain.Order{}, fmt.Errorf("%w: customer id is required", ErrOrderInvalidInput)
	}
	if err := validateDeliveryAddress(cmd.DeliveryAddress); err != nil {
		return domain.Order{}, err
	}
	switch cmd.PaymentMethod {
	case domain.PaymentMethodRazorpay, domain.PaymentMethodStripe, domain.PaymentMethodCOD:
	default:
		return domain.Order{}, fmt.Errorf("%w: unsupported payment method %q", ErrOrderInvalidInput, cmd.PaymentMethod)
	}

	quote, err := s.pricing.Quote(ctx, cmd.Lines)
	if err != nil {
		return domain.Order{}, err
	}

	now := s.clock()
	order := domain.Order{
		ID:              orderIDPrefix + s.generateID(),
		CustomerID:      customerID,
		VendorID:        quote.VendorID,
		Items:           quote.Lines,
		DeliveryAddress: cmd.DeliveryAddress,
		Payment: domain.OrderPayment{
			Method: cmd.PaymentMethod,
			Status: domain.PaymentStatusPending,
			Amount: quote.Pricing.Total,
		},
		Pricing: quote.Pricing,
		Status:  domain.OrderStatusPending,
		Timeline: []domain.TimelineEntry{
			{Status: domain.OrderStatusPending, Timestamp: now, Note: createdTimelineNote},
		},
		Delivery:  domain.OrderDelivery{EstimatedMinutes: quote.EstimatedMinutes},
		Refund:    domain.OrderRefund{Status: domain.RefundStatusNone},
		Note:      strings.TrimSpace(cmd.Note),
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		seq, err := s.counters.Next(txCtx, orderNumberCounter, 1)
		if err != nil {
			return err
		}
		order.OrderNumber = formatOrderNumber(now, seq)
		return s.orders.Insert(txCtx, order)
	})
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "order.created", map[string]any{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"vendor_id":    order.VendorID,
		"total":        order.Pricing.Total,
	})
	s.publishEvent(ctx, OrderEvent{
		Type:        EventOrderCreated,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		CustomerID:  order.CustomerID,
		VendorID:    order.VendorID,
		Status:      order.Status,
		OccurredAt:  now,
	})
	return order, nil
}

// Get loads an order, enforcing that the caller is its customer, its vendor,
// or an admin.
func (s *orderService) Get(ctx context.Context, actorID string, role domain.Role, orderID string) (domain.Order, error) {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	if err := s.authorizeOrderAccess(ctx, order, actorID, role); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// ListByCustomer returns the customer's own orders, newest first.
func (s *orderService) ListByCustomer(ctx context.Context, customerID string, filter repositories.OrderListFilter) ([]domain.Order, error) {
	id := strings.TrimSpace(customerID)
	if id == "" {
		return nil, fmt.Errorf("%w: customer id is required", ErrOrderInvalidInput)
	}
	orders, err := s.orders.ListByCustomer(ctx, id, filter)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return orders, nil
}

// ListByVendor resolves the caller's vendor record and returns its orders.
func (s *orderService) ListByVendor(ctx context.Context, vendorUserID string, filter repositories.OrderListFilter) ([]domain.Order, error) {
	vendor, err := s.vendorForUser(ctx, vendorUserID)
	if err != nil {
		return nil, err
	}
	orders, err := s.orders.ListByVendor(ctx, vendor.ID, filter)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return orders, nil
}

// AdvanceStatus applies one forward transition of the fulfilment state
// machine. The order is re-read inside the transaction so concurrent
// transitions cannot both commit; reaching delivered also applies the vendor
// and item stats exactly once.
func (s *orderService) AdvanceStatus(ctx context.Context, cmd AdvanceStatusCommand) (domain.Order, error) {
	id := strings.TrimSpace(cmd.OrderID)
	if id == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if cmd.Target == "" {
		return domain.Order{}, fmt.Errorf("%w: target status is required", ErrOrderInvalidInput)
	}

	// Vendor actors are resolved to their vendor record before the
	// transaction; the ownership check happens against the re-read order.
	var actorVendorID string
	if cmd.Role == domain.RoleVendor {
		vendor, err := s.vendorForUser(ctx, cmd.ActorID)
		if err != nil {
			return domain.Order{}, err
		}
		actorVendorID = vendor.ID
	}

	var (
		updated  domain.Order
		previous domain.OrderStatus
	)
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, id)
		if err != nil {
			return err
		}
		previous = order.Status

		allowedRoles, ok := orderStatusTransitions[order.Status][cmd.Target]
		if !ok {
			return fmt.Errorf("%w: %s -> %s", ErrOrderInvalidTransition, order.Status, cmd.Target)
		}
		if !roleAllowed(cmd.Role, allowedRoles) {
			return fmt.Errorf("%w: role %s may not set %s", ErrOrderForbidden, cmd.Role, cmd.Target)
		}
		if cmd.Role == domain.RoleVendor && order.VendorID != actorVendorID {
			return fmt.Errorf("%w: order belongs to another vendor", ErrOrderForbidden)
		}

		now := s.clock()
		order.Status = cmd.Target
		order.Timeline = append(order.Timeline, domain.TimelineEntry{
			Status:    cmd.Target,
			Timestamp: now,
			Note:      strings.TrimSpace(cmd.Note),
		})
		order.UpdatedAt = now

		if cmd.Target == domain.OrderStatusDelivered {
			order.Delivery.DeliveredAt = &now
			// Cash on delivery settles when the order is handed over.
			if order.Payment.Method == domain.PaymentMethodCOD &&
				order.Payment.Status == domain.PaymentStatusPending {
				order.Payment.Status = domain.PaymentStatusCompleted
			}
			if !order.StatsRecorded {
				if err := s.recordDeliveryStats(txCtx, order); err != nil {
					return err
				}
				order.StatsRecorded = true
			}
		}

		if err := s.orders.Update(txCtx, order); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "order.status_changed", map[string]any{
		"order_id": updated.ID,
		"from":     string(previous),
		"to":       string(updated.Status),
		"actor_id": cmd.ActorID,
	})
	s.publishEvent(ctx, OrderEvent{
		Type:           EventOrderStatus,
		OrderID:        updated.ID,
		OrderNumber:    updated.OrderNumber,
		CustomerID:     updated.CustomerID,
		VendorID:       updated.VendorID,
		Status:         updated.Status,
		PreviousStatus: previous,
		ActorID:        cmd.ActorID,
		OccurredAt:     updated.UpdatedAt,
	})
	return updated, nil
}

// Cancel cancels a pending or confirmed order on behalf of its customer and
// records the refund the policy grants.
func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (domain.Order, error) {
	id := strings.TrimSpace(cmd.OrderID)
	if id == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if cmd.Role != domain.RoleCustomer {
		return domain.Order{}, fmt.Errorf("%w: only the customer may cancel", ErrOrderForbidden)
	}

	var (
		updated  domain.Order
		previous domain.OrderStatus
	)
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, id)
		if err != nil {
			return err
		}
		if order.CustomerID != strings.TrimSpace(cmd.ActorID) {
			return fmt.Errorf("%w: order belongs to another customer", ErrOrderForbidden)
		}
		if !cancellableStatuses[order.Status] {
			return fmt.Errorf("%w: cannot cancel from %s", ErrOrderInvalidTransition, order.Status)
		}
		previous = order.Status

		now := s.clock()
		note := strings.TrimSpace(cmd.Reason)
		if note == "" {
			note = "Cancelled by customer"
		}
		order.Status = domain.OrderStatusCancelled
		order.Timeline = append(order.Timeline, domain.TimelineEntry{
			Status:    domain.OrderStatusCancelled,
			Timestamp: now,
			Note:      note,
		})
		order.UpdatedAt = now

		if s.refundPolicy.Eligible(order) {
			order.Refund = domain.OrderRefund{
				Amount: s.refundPolicy.Amount(order),
				Reason: note,
				Status: domain.RefundStatusRequested,
			}
		}

		if err := s.orders.Update(txCtx, order); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "order.cancelled", map[string]any{
		"order_id":      updated.ID,
		"from":          string(previous),
		"refund_amount": updated.Refund.Amount,
	})
	s.publishEvent(ctx, OrderEvent{
		Type:           EventOrderCancelled,
		OrderID:        updated.ID,
		OrderNumber:    updated.OrderNumber,
		CustomerID:     updated.CustomerID,
		VendorID:       updated.VendorID,
		Status:         updated.Status,
		PreviousStatus: previous,
		ActorID:        cmd.ActorID,
		OccurredAt:     updated.UpdatedAt,
	})
	return updated, nil
}

// AppendTracking adds a delivery progress note. Tracking never changes the
// order status and is rejected once the order reached a terminal state.
func (s *orderService) AppendTracking(ctx context.Context, cmd TrackingUpdateCommand) (domain.Order, error) {
	id := strings.TrimSpace(cmd.OrderID)
	if id == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(cmd.Location) == "" && strings.TrimSpace(cmd.Status) == "" && strings.TrimSpace(cmd.Note) == "" {
		return domain.Order{}, fmt.Errorf("%w: tracking update is empty", ErrOrderInvalidInput)
	}

	var actorVendorID string
	switch cmd.Role {
	case domain.RoleAdmin:
	case domain.RoleVendor:
		vendor, err := s.vendorForUser(ctx, cmd.ActorID)
		if err != nil {
			return domain.Order{}, err
		}
		actorVendorID = vendor.ID
	default:
		return domain.Order{}, fmt.Errorf("%w: role %s may not update tracking", ErrOrderForbidden, cmd.Role)
	}

	var updated domain.Order
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, id)
		if err != nil {
			return err
		}
		if cmd.Role == domain.RoleVendor && order.VendorID != actorVendorID {
			return fmt.Errorf("%w: order belongs to another vendor", ErrOrderForbidden)
		}
		switch order.Status {
		case domain.OrderStatusDelivered, domain.OrderStatusCancelled:
			return fmt.Errorf("%w: order is %s", ErrOrderInvalidTransition, order.Status)
		}

		now := s.clock()
		order.Delivery.Tracking = append(order.Delivery.Tracking, domain.TrackingUpdate{
			Timestamp: now,
			Location:  strings.TrimSpace(cmd.Location),
			Status:    strings.TrimSpace(cmd.Status),
			Note:      strings.TrimSpace(cmd.Note),
		})
		order.UpdatedAt = now

		if err := s.orders.Update(txCtx, order); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	return updated, nil
}

// recordDeliveryStats applies the delivered-order counters: vendor earnings
// plus each item's ordered quantity on its popularity counter. All updates are
// server-side increments, so they stay valid inside the surrounding
// transaction.
func (s *orderService) recordDeliveryStats(ctx context.Context, order domain.Order) error {
	if err := s.vendors.RecordDelivery(ctx, order.VendorID, order.Pricing.Total); err != nil {
		return err
	}
	quantities := make(map[string]int64, len(order.Items))
	ids := make([]string, 0, len(order.Items))
	for _, item := range order.Items {
		if _, seen := quantities[item.FoodItemID]; !seen {
			ids = append(ids, item.FoodItemID)
		}
		quantities[item.FoodItemID] += int64(item.Quantity)
	}
	for _, id := range ids {
		if err := s.foodItems.AddOrderCount(ctx, id, quantities[id]); err != nil {
			return err
		}
	}
	return nil
}

// authorizeOrderAccess enforces read scoping by caller role.
func (s *orderService) authorizeOrderAccess(ctx context.Context, order domain.Order, actorID string, role domain.Role) error {
	switch role {
	case domain.RoleAdmin, domain.RoleSystem:
		return nil
	case domain.RoleCustomer:
		if order.CustomerID == strings.TrimSpace(actorID) {
			return nil
		}
	case domain.RoleVendor:
		vendor, err := s.vendorForUser(ctx, actorID)
		if err != nil {
			return err
		}
		if order.VendorID == vendor.ID {
			return nil
		}
	}
	return fmt.Errorf("%w: order is not visible to this caller", ErrOrderForbidden)
}

func (s *orderService) vendorForUser(ctx context.Context, userID string) (domain.Vendor, error) {
	id := strings.TrimSpace(userID)
	if id == "" {
		return domain.Vendor{}, fmt.Errorf("%w: vendor user id is required", ErrOrderInvalidInput)
	}
	vendor, err := s.vendors.FindByUserID(ctx, id)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return domain.Vendor{}, fmt.Errorf("%w: no vendor record for caller", ErrOrderForbidden)
		}
		return domain.Vendor{}, s.mapRepositoryError(err)
	}
	return vendor, nil
}

func (s *orderService) runInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.uow.RunInTx(ctx, fn)
}

// mapRepositoryError translates persistence failures into service sentinels
// while keeping domain sentinels intact.
func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrOrderInvalidInput) || errors.Is(err, ErrOrderForbidden) ||
		errors.Is(err, ErrOrderInvalidTransition) || errors.Is(err, ErrOrderNotFound) {
		return err
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
		}
	}
	return err
}

// publishEvent forwards the event when a publisher is wired. Failures are
// logged and swallowed; order state is already committed.
func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.publisher == nil {
		return
	}
	if _, err := s.publisher.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event_publish_failed", map[string]any{
			"order_id": event.OrderID,
			"type":     event.Type,
			"error":    err.Error(),
		})
	}
}

func formatOrderNumber(now time.Time, seq int64) string {
	return fmt.Sprintf("FM-%04d-%06d", now.Year(), seq)
}

func roleAllowed(role domain.Role, allowed []domain.Role) bool {
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}

func validateDeliveryAddress(addr domain.DeliveryAddress) error {
	if strings.TrimSpace(addr.Name) == "" {
		return fmt.Errorf("%w: delivery address needs a recipient name", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(addr.Address) == "" {
		return fmt.Errorf("%w: delivery address needs a street address", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(addr.City) == "" {
		return fmt.Errorf("%w: delivery address needs a city", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(addr.Pincode) == "" {
		return fmt.Errorf("%w: delivery address needs a pincode", ErrOrderInvalidInput)
	}
	return nil
}

// noopUnitOfWork runs the function directly; used when no transactional
// backend is wired (tests, in-memory repositories).
type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
