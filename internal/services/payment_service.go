package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/feastline/api/internal/domain"
	"github.com/feastline/api/internal/payments"
	"github.com/feastline/api/internal/repositories"
)

// Payment service errors.
var (
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	ErrPaymentForbidden    = errors.New("payment: forbidden")
	ErrPaymentInvalidState = errors.New("payment: invalid order state")
	ErrSignatureMismatch   = errors.New("payment: signature mismatch")
	ErrPaymentNotCaptured  = errors.New("payment: not captured by gateway")
)

// PaymentGateway is the slice of the gateway manager the payment service
// needs. Satisfied by *payments.Manager.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, method string, req payments.IntentRequest) (payments.Intent, error)
	FetchPayment(ctx context.Context, method, paymentID string) (payments.PaymentDetails, error)
	Refund(ctx context.Context, method string, req payments.RefundRequest) (payments.RefundDetails, error)
}

// PaymentServiceDeps lists the collaborators required by the payment service.
type PaymentServiceDeps struct {
	Orders     repositories.OrderRepository
	Vendors    repositories.VendorRepository
	UnitOfWork repositories.UnitOfWork
	Gateway    PaymentGateway

	// SigningSecret verifies gateway callback signatures.
	SigningSecret []byte
	Currency      string

	// Publisher is optional; events are best effort.
	Publisher OrderEventPublisher

	Clock          func() time.Time
	IdempotencyKey func() string
	Logger         func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	orders         repositories.OrderRepository
	vendors        repositories.VendorRepository
	uow            repositories.UnitOfWork
	gateway        PaymentGateway
	signingSecret  []byte
	currency       string
	publisher      OrderEventPublisher
	clock          func() time.Time
	idempotencyKey func() string
	logger         func(ctx context.Context, event string, fields map[string]any)
}

// NewPaymentService constructs the gateway-backed payment service.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment service requires order repository")
	}
	if deps.Vendors == nil {
		return nil, errors.New("payment service requires vendor repository")
	}
	if deps.Gateway == nil {
		return nil, errors.New("payment service requires payment gateway")
	}
	if len(deps.SigningSecret) == 0 {
		return nil, errors.New("payment service requires signing secret")
	}

	currency := strings.TrimSpace(deps.Currency)
	if currency == "" {
		currency = domain.Currency
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idempotencyKey := deps.IdempotencyKey
	if idempotencyKey == nil {
		idempotencyKey = uuid.NewString
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	uow := deps.UnitOfWork
	if uow == nil {
		uow = noopUnitOfWork{}
	}

	return &paymentService{
		orders:         deps.Orders,
		vendors:        deps.Vendors,
		uow:            uow,
		gateway:        deps.Gateway,
		signingSecret:  deps.SigningSecret,
		currency:       currency,
		publisher:      deps.Publisher,
		clock:          func() time.Time { return clock().UTC() },
		idempotencyKey: idempotencyKey,
		logger:         logger,
	}, nil
}

// Initiate opens a gateway payment intent for a pending online order and
// stores the intent id on the order. Calling it again replaces the intent.
func (s *paymentService) Initiate(ctx context.Context, customerID, orderID string) (PaymentIntentResult, error) {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return PaymentIntentResult{}, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return PaymentIntentResult{}, s.mapRepositoryError(err)
	}
	if order.CustomerID != strings.TrimSpace(customerID) {
		return PaymentIntentResult{}, fmt.Errorf("%w: order belongs to another customer", ErrPaymentForbidden)
	}
	if !order.Payment.Method.IsOnline() {
		return PaymentIntentResult{}, fmt.Errorf("%w: %s orders settle offline", ErrPaymentInvalidInput, order.Payment.Method)
	}
	if order.Status != domain.OrderStatusPending {
		return PaymentIntentResult{}, fmt.Errorf("%w: order is %s", ErrPaymentInvalidState, order.Status)
	}
	if order.Payment.Status != domain.PaymentStatusPending {
		return PaymentIntentResult{}, fmt.Errorf("%w: payment is %s", ErrPaymentInvalidState, order.Payment.Status)
	}

	intent, err := s.gateway.CreateIntent(ctx, string(order.Payment.Method), payments.IntentRequest{
		Amount:         domain.ToMinorUnits(order.Pricing.Total),
		Currency:       s.currency,
		Receipt:        order.OrderNumber,
		CustomerID:     order.CustomerID,
		IdempotencyKey: s.idempotencyKey(),
		Metadata: map[string]string{
			"orderId":     order.ID,
			"orderNumber": order.OrderNumber,
		},
	})
	if err != nil {
		return PaymentIntentResult{}, err
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		current, err := s.orders.FindByID(txCtx, id)
		if err != nil {
			return err
		}
		if current.Payment.Status != domain.PaymentStatusPending {
			return fmt.Errorf("%w: payment is %s", ErrPaymentInvalidState, current.Payment.Status)
		}
		current.Payment.IntentID = intent.ID
		current.Payment.Amount = current.Pricing.Total
		current.UpdatedAt = s.clock()
		return s.orders.Update(txCtx, current)
	})
	if err != nil {
		return PaymentIntentResult{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "payment.intent_created", map[string]any{
		"order_id":  order.ID,
		"intent_id": intent.ID,
		"provider":  intent.Provider,
		"amount":    intent.Amount,
	})
	return PaymentIntentResult{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		IntentID:    intent.ID,
		Provider:    intent.Provider,
		Amount:      domain.ToMinorUnits(order.Pricing.Total),
		Currency:    s.currency,
	}, nil
}

// Verify checks the gateway callback signature, confirms capture with the
// gateway, then atomically marks the payment completed and confirms the
// order. A repeat call for an already completed payment is a no-op.
func (s *paymentService) Verify(ctx context.Context, cmd VerifyPaymentCommand) (domain.Order, error) {
	id := strings.TrimSpace(cmd.OrderID)
	if id == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}
	if strings.TrimSpace(cmd.GatewayPaymentID) == "" || strings.TrimSpace(cmd.Signature) == "" {
		return domain.Order{}, fmt.Errorf("%w: payment id and signature are required", ErrPaymentInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	if order.CustomerID != strings.TrimSpace(cmd.CustomerID) {
		return domain.Order{}, fmt.Errorf("%w: order belongs to another customer", ErrPaymentForbidden)
	}
	if order.Payment.Status == domain.PaymentStatusCompleted {
		return order, nil
	}
	if order.Payment.IntentID == "" {
		return domain.Order{}, fmt.Errorf("%w: no payment intent on order", ErrPaymentInvalidState)
	}

	// The signature covers the application order id, not the gateway intent.
	if !payments.VerifyPaymentSignature(order.ID, cmd.GatewayPaymentID, cmd.Signature, s.signingSecret) {
		s.logger(ctx, "payment.signature_rejected", map[string]any{"order_id": order.ID})
		return domain.Order{}, ErrSignatureMismatch
	}

	details, err := s.gateway.FetchPayment(ctx, string(order.Payment.Method), cmd.GatewayPaymentID)
	if err != nil {
		return domain.Order{}, err
	}
	if details.Status != payments.StatusCaptured {
		return domain.Order{}, fmt.Errorf("%w: gateway reports %s", ErrPaymentNotCaptured, details.Status)
	}

	var (
		updated          domain.Order
		alreadyCompleted bool
	)
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		current, err := s.orders.FindByID(txCtx, id)
		if err != nil {
			return err
		}
		if current.Payment.Status == domain.PaymentStatusCompleted {
			updated = current
			alreadyCompleted = true
			return nil
		}
		if current.Status != domain.OrderStatusPending {
			return fmt.Errorf("%w: order is %s", ErrPaymentInvalidState, current.Status)
		}

		now := s.clock()
		current.Payment.Status = domain.PaymentStatusCompleted
		current.Payment.PaymentID = cmd.GatewayPaymentID
		current.Payment.Signature = cmd.Signature
		current.Status = domain.OrderStatusConfirmed
		current.Timeline = append(current.Timeline, domain.TimelineEntry{
			Status:    domain.OrderStatusConfirmed,
			Timestamp: now,
			Note:      "Payment verified",
		})
		current.UpdatedAt = now

		if err := s.orders.Update(txCtx, current); err != nil {
			return err
		}
		updated = current
		return nil
	})
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	// A concurrent verification won the race; it already announced completion.
	if alreadyCompleted {
		return updated, nil
	}

	s.logger(ctx, "payment.completed", map[string]any{
		"order_id":   updated.ID,
		"payment_id": cmd.GatewayPaymentID,
	})
	s.publishEvent(ctx, OrderEvent{
		Type:           EventPaymentCompleted,
		OrderID:        updated.ID,
		OrderNumber:    updated.OrderNumber,
		CustomerID:     updated.CustomerID,
		VendorID:       updated.VendorID,
		Status:         updated.Status,
		PreviousStatus: domain.OrderStatusPending,
		OccurredAt:     updated.UpdatedAt,
	})
	return updated, nil
}

// Refund pushes a refund through the gateway for a completed payment. The
// refund is recorded as requested before the gateway call, so a gateway
// outage leaves a retryable requested refund behind.
func (s *paymentService) Refund(ctx context.Context, cmd RefundCommand) (domain.Order, error) {
	id := strings.TrimSpace(cmd.OrderID)
	if id == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	if err := s.authorizeRefund(ctx, order, cmd); err != nil {
		return domain.Order{}, err
	}
	if order.Refund.Status == domain.RefundStatusProcessed {
		return order, nil
	}
	if order.Payment.Status != domain.PaymentStatusCompleted {
		return domain.Order{}, fmt.Errorf("%w: payment is %s", ErrPaymentInvalidState, order.Payment.Status)
	}
	if !order.Payment.Method.IsOnline() {
		return domain.Order{}, fmt.Errorf("%w: %s orders settle offline", ErrPaymentInvalidInput, order.Payment.Method)
	}

	amount := domain.RoundMoney(cmd.Amount)
	if amount <= 0 {
		amount = order.Refund.Amount
	}
	if amount <= 0 {
		return domain.Order{}, fmt.Errorf("%w: refund amount is required", ErrPaymentInvalidInput)
	}
	if amount > order.Pricing.Total {
		return domain.Order{}, fmt.Errorf("%w: refund exceeds order total", ErrPaymentInvalidInput)
	}
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		reason = order.Refund.Reason
	}

	// Record the request first: if the gateway call fails the refund stays
	// requested and the operation can be retried.
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		current, err := s.orders.FindByID(txCtx, id)
		if err != nil {
			return err
		}
		if current.Refund.Status == domain.RefundStatusProcessed {
			order = current
			return nil
		}
		current.Refund = domain.OrderRefund{
			Amount: amount,
			Reason: reason,
			Status: domain.RefundStatusRequested,
		}
		current.UpdatedAt = s.clock()
		if err := s.orders.Update(txCtx, current); err != nil {
			return err
		}
		order = current
		return nil
	})
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	if order.Refund.Status == domain.RefundStatusProcessed {
		return order, nil
	}

	// The key is derived from the order so a retry after a crash between the
	// gateway call and the processed write dedupes at the gateway.
	refund, err := s.gateway.Refund(ctx, string(order.Payment.Method), payments.RefundRequest{
		PaymentID:      order.Payment.PaymentID,
		Amount:         domain.ToMinorUnits(amount),
		Reason:         reason,
		IdempotencyKey: "refund-" + order.ID,
		Metadata: map[string]string{
			"orderId":     order.ID,
			"orderNumber": order.OrderNumber,
		},
	})
	if err != nil {
		s.logger(ctx, "payment.refund_failed", map[string]any{
			"order_id": order.ID,
			"error":    err.Error(),
		})
		return domain.Order{}, err
	}

	var updated domain.Order
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		current, err := s.orders.FindByID(txCtx, id)
		if err != nil {
			return err
		}
		now := s.clock()
		current.Refund.Status = domain.RefundStatusProcessed
		current.Payment.Status = domain.PaymentStatusRefunded
		current.UpdatedAt = now
		if err := s.orders.Update(txCtx, current); err != nil {
			return err
		}
		updated = current
		return nil
	})
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "payment.refund_processed", map[string]any{
		"order_id":  updated.ID,
		"refund_id": refund.ID,
		"amount":    amount,
	})
	s.publishEvent(ctx, OrderEvent{
		Type:        EventRefundProcessed,
		OrderID:     updated.ID,
		OrderNumber: updated.OrderNumber,
		CustomerID:  updated.CustomerID,
		VendorID:    updated.VendorID,
		Status:      updated.Status,
		ActorID:     cmd.ActorID,
		OccurredAt:  updated.UpdatedAt,
	})
	return updated, nil
}

// authorizeRefund limits refund execution to admins and the order's vendor.
func (s *paymentService) authorizeRefund(ctx context.Context, order domain.Order, cmd RefundCommand) error {
	switch cmd.Role {
	case domain.RoleAdmin, domain.RoleSystem:
		return nil
	case domain.RoleVendor:
		vendor, err := s.vendors.FindByUserID(ctx, strings.TrimSpace(cmd.ActorID))
		if err != nil {
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				return fmt.Errorf("%w: no vendor record for caller", ErrPaymentForbidden)
			}
			return s.mapRepositoryError(err)
		}
		if vendor.ID == order.VendorID {
			return nil
		}
	}
	return fmt.Errorf("%w: role %s may not refund this order", ErrPaymentForbidden, cmd.Role)
}

func (s *paymentService) runInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.uow.RunInTx(ctx, fn)
}

// mapRepositoryError reuses the order sentinels so handlers translate both
// services uniformly.
func (s *paymentService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPaymentInvalidInput) || errors.Is(err, ErrPaymentForbidden) ||
		errors.Is(err, ErrPaymentInvalidState) {
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

func (s *paymentService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.publisher == nil {
		return
	}
	if _, err := s.publisher.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "payment.event_publish_failed", map[string]any{
			"order_id": event.OrderID,
			"type":     event.Type,
			"error":    err.Error(),
		})
	}
}
