package domain

import "time"

// OrderStatus enumerates the order lifecycle states.
type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "pending"
	OrderStatusConfirmed      OrderStatus = "confirmed"
	OrderStatusPreparing      OrderStatus = "preparing"
	OrderStatusReady          OrderStatus = "ready"
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

// PaymentStatus enumerates payment sub-record states. Valid moves are
// pending→{completed,failed} and completed→refunded; both ends are terminal.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// PaymentMethod identifies how the customer pays for an order.
type PaymentMethod string

const (
	PaymentMethodRazorpay PaymentMethod = "razorpay"
	PaymentMethodStripe   PaymentMethod = "stripe"
	PaymentMethodCOD      PaymentMethod = "cod"
)

// IsOnline reports whether the method settles through the payment gateway.
func (m PaymentMethod) IsOnline() bool {
	return m == PaymentMethodRazorpay || m == PaymentMethodStripe
}

// RefundStatus tracks the refund sub-record.
type RefundStatus string

const (
	RefundStatusNone      RefundStatus = "none"
	RefundStatusRequested RefundStatus = "requested"
	RefundStatusProcessed RefundStatus = "processed"
)

// Role identifies the pre-verified caller category supplied by the routing layer.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleVendor   Role = "vendor"
	RoleAdmin    Role = "admin"
	// RoleSystem is reserved for internally driven transitions such as the
	// payment confirmation path; it is never accepted from a request header.
	RoleSystem Role = "system"
)

// VariantSelection is the price-stamped variant chosen for a line item.
type VariantSelection struct {
	Name  string  `firestore:"name"`
	Price float64 `firestore:"price"`
}

// AddOnSelection is one price-stamped add-on attached to a line item.
type AddOnSelection struct {
	Name  string  `firestore:"name"`
	Price float64 `firestore:"price"`
}

// OrderItem is one line of an order. UnitPrice and the selections are stamped
// at pricing time and never recomputed from the live catalog.
type OrderItem struct {
	FoodItemID string            `firestore:"foodItemId"`
	Name       string            `firestore:"name"`
	Quantity   int               `firestore:"quantity"`
	UnitPrice  float64           `firestore:"unitPrice"`
	Variant    *VariantSelection `firestore:"variant,omitempty"`
	AddOns     []AddOnSelection  `firestore:"addOns,omitempty"`
	Note       string            `firestore:"note,omitempty"`
}

// LineTotal returns the stamped line subtotal: (unit + add-ons) × quantity.
func (i OrderItem) LineTotal() float64 {
	addOns := 0.0
	for _, a := range i.AddOns {
		addOns += a.Price
	}
	return (i.UnitPrice + addOns) * float64(i.Quantity)
}

// DeliveryAddress is the address snapshot captured at order creation.
type DeliveryAddress struct {
	Label    string `firestore:"label,omitempty"`
	Name     string `firestore:"name"`
	Address  string `firestore:"address"`
	City     string `firestore:"city"`
	State    string `firestore:"state"`
	Pincode  string `firestore:"pincode"`
	Landmark string `firestore:"landmark,omitempty"`
	Phone    string `firestore:"phone,omitempty"`
}

// OrderPayment is the payment sub-record of an order.
type OrderPayment struct {
	Method    PaymentMethod `firestore:"method"`
	Status    PaymentStatus `firestore:"status"`
	IntentID  string        `firestore:"intentId,omitempty"`
	PaymentID string        `firestore:"paymentId,omitempty"`
	Signature string        `firestore:"signature,omitempty"`
	Amount    float64       `firestore:"amount"`
}

// OrderPricing is the immutable price snapshot fixed at order creation.
type OrderPricing struct {
	Subtotal    float64 `firestore:"subtotal"`
	DeliveryFee float64 `firestore:"deliveryFee"`
	Tax         float64 `firestore:"tax"`
	Discount    float64 `firestore:"discount"`
	Total       float64 `firestore:"total"`
}

// TimelineEntry is one immutable entry of the order's append-only audit log.
type TimelineEntry struct {
	Status    OrderStatus `firestore:"status"`
	Timestamp time.Time   `firestore:"timestamp"`
	Note      string      `firestore:"note,omitempty"`
}

// TrackingUpdate is a vendor-supplied delivery progress note. It never
// affects order.Status.
type TrackingUpdate struct {
	Timestamp time.Time `firestore:"timestamp"`
	Location  string    `firestore:"location,omitempty"`
	Status    string    `firestore:"status,omitempty"`
	Note      string    `firestore:"note,omitempty"`
}

// OrderDelivery carries the delivery estimate and the tracking log.
type OrderDelivery struct {
	EstimatedMinutes int              `firestore:"estimatedMinutes"`
	DeliveredAt      *time.Time       `firestore:"deliveredAt,omitempty"`
	Tracking         []TrackingUpdate `firestore:"tracking,omitempty"`
}

// OrderRefund is the refund sub-record. Amount never exceeds Pricing.Total.
type OrderRefund struct {
	Amount float64      `firestore:"amount"`
	Reason string       `firestore:"reason,omitempty"`
	Status RefundStatus `firestore:"status"`
}

// Order is the persisted order record. Orders are never physically deleted;
// cancellation is a status.
type Order struct {
	ID              string          `firestore:"-"`
	OrderNumber     string          `firestore:"orderNumber"`
	CustomerID      string          `firestore:"customerId"`
	VendorID        string          `firestore:"vendorId"`
	Items           []OrderItem     `firestore:"items"`
	DeliveryAddress DeliveryAddress `firestore:"deliveryAddress"`
	Payment         OrderPayment    `firestore:"payment"`
	Pricing         OrderPricing    `firestore:"pricing"`
	Status          OrderStatus     `firestore:"status"`
	Timeline        []TimelineEntry `firestore:"timeline"`
	Delivery        OrderDelivery   `firestore:"delivery"`
	Refund          OrderRefund     `firestore:"refund"`
	// StatsRecorded guards the delivered-stats side effect so a retried
	// transition or crash recovery cannot double-count vendor earnings.
	StatsRecorded bool      `firestore:"statsRecorded"`
	Note          string    `firestore:"note,omitempty"`
	CreatedAt     time.Time `firestore:"createdAt"`
	UpdatedAt     time.Time `firestore:"updatedAt"`
}

// CurrentTimelineStatus returns the status of the last timeline entry, which
// by invariant always equals Order.Status.
func (o Order) CurrentTimelineStatus() (OrderStatus, bool) {
	if len(o.Timeline) == 0 {
		return "", false
	}
	return o.Timeline[len(o.Timeline)-1].Status, true
}

// StatusBeforeCancellation reports the most recent non-cancelled status in the
// timeline. Extra cancellation notes appended after the cancelling entry do
// not change the answer.
func (o Order) StatusBeforeCancellation() (OrderStatus, bool) {
	for i := len(o.Timeline) - 1; i >= 0; i-- {
		if o.Timeline[i].Status != OrderStatusCancelled {
			return o.Timeline[i].Status, true
		}
	}
	return "", false
}

// FoodItemVariant is a named, separately priced alternative of a food item.
type FoodItemVariant struct {
	Name        string  `firestore:"name"`
	Price       float64 `firestore:"price"`
	IsAvailable bool    `firestore:"isAvailable"`
}

// FoodItemAddOn is an optional priced extra attachable to a line.
type FoodItemAddOn struct {
	Name        string  `firestore:"name"`
	Price       float64 `firestore:"price"`
	IsAvailable bool    `firestore:"isAvailable"`
}

// FoodItem is the catalog record consumed by the pricing engine.
type FoodItem struct {
	ID          string            `firestore:"-"`
	VendorID    string            `firestore:"vendorId"`
	Name        string            `firestore:"name"`
	Price       float64           `firestore:"price"`
	IsAvailable bool              `firestore:"isAvailable"`
	Variants    []FoodItemVariant `firestore:"variants,omitempty"`
	AddOns      []FoodItemAddOn   `firestore:"addOns,omitempty"`
	// TotalOrders is a popularity counter incremented when orders containing
	// the item reach delivered.
	TotalOrders int64 `firestore:"totalOrders"`
}

// Variant returns the named variant when present.
func (f FoodItem) Variant(name string) (FoodItemVariant, bool) {
	for _, v := range f.Variants {
		if v.Name == name {
			return v, true
		}
	}
	return FoodItemVariant{}, false
}

// AddOn returns the named add-on when present.
func (f FoodItem) AddOn(name string) (FoodItemAddOn, bool) {
	for _, a := range f.AddOns {
		if a.Name == name {
			return a, true
		}
	}
	return FoodItemAddOn{}, false
}

// Vendor is the catalog record for a marketplace vendor.
type Vendor struct {
	ID               string  `firestore:"-"`
	UserID           string  `firestore:"userId"`
	BusinessName     string  `firestore:"businessName"`
	IsActive         bool    `firestore:"isActive"`
	IsOpen           bool    `firestore:"isOpen"`
	DeliveryFee      float64 `firestore:"deliveryFee"`
	EstimatedMinutes int     `firestore:"estimatedMinutes"`
	TotalOrders      int64   `firestore:"totalOrders"`
	TotalEarnings    float64 `firestore:"totalEarnings"`
}

// AcceptsOrders reports whether the vendor can currently be ordered from.
func (v Vendor) AcceptsOrders() bool {
	return v.IsActive && v.IsOpen
}
