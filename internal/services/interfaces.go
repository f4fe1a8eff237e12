package services

import (
	"context"
	"time"

	"github.com/feastline/api/internal/domain"
	"github.com/feastline/api/internal/repositories"
)

// OrderLineInput is a single requested line on an order before pricing. All
// monetary values are resolved server-side from the catalog; the caller only
// names what it wants.
type OrderLineInput struct {
	FoodItemID  string
	Quantity    int
	VariantName string
	AddOnNames  []string
	Note        string
}

// PriceQuote is the authoritative pricing for a set of order lines. Lines are
// fully resolved catalog snapshots; the quote fixes the vendor and the totals
// the order will be created with.
type PriceQuote struct {
	VendorID         string
	VendorName       string
	Lines            []domain.OrderItem
	Pricing          domain.OrderPricing
	EstimatedMinutes int
}

// PricingEngine resolves catalog prices and computes order totals. Client
// supplied prices are never trusted.
type PricingEngine interface {
	Quote(ctx context.Context, lines []OrderLineInput) (PriceQuote, error)
}

// CreateOrderCommand captures everything needed to place an order.
type CreateOrderCommand struct {
	CustomerID      string
	Lines           []OrderLineInput
	DeliveryAddress domain.DeliveryAddress
	PaymentMethod   domain.PaymentMethod
	Note            string
}

// AdvanceStatusCommand moves an order along its fulfilment lifecycle.
type AdvanceStatusCommand struct {
	OrderID string
	Target  domain.OrderStatus
	ActorID string
	Role    domain.Role
	Note    string
}

// CancelOrderCommand cancels an order on behalf of its customer.
type CancelOrderCommand struct {
	OrderID string
	ActorID string
	Role    domain.Role
	Reason  string
}

// TrackingUpdateCommand appends a delivery tracking entry to an order.
type TrackingUpdateCommand struct {
	OrderID  string
	ActorID  string
	Role     domain.Role
	Location string
	Status   string
	Note     string
}

// OrderService owns the order lifecycle: creation, status transitions,
// cancellation and read access scoped by caller role.
type OrderService interface {
	Create(ctx context.Context, cmd CreateOrderCommand) (domain.Order, error)
	Get(ctx context.Context, actorID string, role domain.Role, orderID string) (domain.Order, error)
	ListByCustomer(ctx context.Context, customerID string, filter repositories.OrderListFilter) ([]domain.Order, error)
	ListByVendor(ctx context.Context, vendorUserID string, filter repositories.OrderListFilter) ([]domain.Order, error)
	AdvanceStatus(ctx context.Context, cmd AdvanceStatusCommand) (domain.Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (domain.Order, error)
	AppendTracking(ctx context.Context, cmd TrackingUpdateCommand) (domain.Order, error)
}

// PaymentIntentResult is returned to the client so it can drive the gateway
// checkout flow.
type PaymentIntentResult struct {
	OrderID     string
	OrderNumber string
	IntentID    string
	Provider    string
	Amount      int64
	Currency    string
}

// VerifyPaymentCommand confirms a gateway payment against an order.
type VerifyPaymentCommand struct {
	OrderID          string
	CustomerID       string
	GatewayPaymentID string
	Signature        string
}

// RefundCommand pushes an order refund through the payment gateway.
type RefundCommand struct {
	OrderID string
	ActorID string
	Role    domain.Role
	Amount  float64
	Reason  string
}

// PaymentService owns the payment leg of an order: intent creation, signed
// verification and refund execution.
type PaymentService interface {
	Initiate(ctx context.Context, customerID, orderID string) (PaymentIntentResult, error)
	Verify(ctx context.Context, cmd VerifyPaymentCommand) (domain.Order, error)
	Refund(ctx context.Context, cmd RefundCommand) (domain.Order, error)
}

// RefundPolicy decides whether a cancelled order earns a refund and how much.
type RefundPolicy interface {
	Eligible(order domain.Order) bool
	Amount(order domain.Order) float64
}

// OrderEvent is published on lifecycle changes for downstream consumers
// (notifications, analytics).
type OrderEvent struct {
	Type           string             `json:"type"`
	OrderID        string             `json:"orderId"`
	OrderNumber    string             `json:"orderNumber"`
	CustomerID     string             `json:"customerId"`
	VendorID       string             `json:"vendorId"`
	Status         domain.OrderStatus `json:"status"`
	PreviousStatus domain.OrderStatus `json:"previousStatus,omitempty"`
	ActorID        string             `json:"actorId,omitempty"`
	OccurredAt     time.Time          `json:"occurredAt"`
	Metadata       map[string]string  `json:"metadata,omitempty"`
}

// Event types carried on OrderEvent.Type.
const (
	EventOrderCreated     = "order.created"
	EventOrderStatus      = "order.status_changed"
	EventOrderCancelled   = "order.cancelled"
	EventPaymentCompleted = "order.payment_completed"
	EventRefundProcessed  = "order.refund_processed"
)

// OrderEventPublisher delivers order events to the message bus. Publishing is
// best effort; failures are logged, never surfaced to callers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) (string, error)
}
