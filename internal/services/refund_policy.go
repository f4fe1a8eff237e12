package services

import (
	"github.com/feastline/api/internal/domain"
)

// timelineRefundPolicy grants refunds to cancelled, fully paid orders. The
// refund fraction depends on how far the kitchen had progressed before the
// cancellation, read from the order timeline.
type timelineRefundPolicy struct {
	partialFraction float64
}

// NewTimelineRefundPolicy constructs the standard refund policy: full refund
// when cancelled before preparation started, half refund afterwards.
func NewTimelineRefundPolicy() RefundPolicy {
	return &timelineRefundPolicy{partialFraction: 0.5}
}

// Eligible reports whether the order qualifies for a refund at all: it must be
// cancelled and the gateway payment must have completed.
func (p *timelineRefundPolicy) Eligible(order domain.Order) bool {
	if order.Status != domain.OrderStatusCancelled {
		return false
	}
	return order.Payment.Status == domain.PaymentStatusCompleted ||
		order.Payment.Status == domain.PaymentStatusRefunded
}

// Amount returns the refundable amount for a cancelled order. Orders cancelled
// while still pending or confirmed refund in full; once preparation started
// only half the total is returned.
func (p *timelineRefundPolicy) Amount(order domain.Order) float64 {
	if !p.Eligible(order) {
		return 0
	}
	basis, ok := order.StatusBeforeCancellation()
	if !ok {
		basis = domain.OrderStatusPending
	}
	switch basis {
	case domain.OrderStatusPending, domain.OrderStatusConfirmed:
		return domain.RoundMoney(order.Pricing.Total)
	default:
		return domain.RoundMoney(order.Pricing.Total * p.partialFraction)
	}
}
