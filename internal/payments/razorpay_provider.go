package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	razorpay "github.com/razorpay/razorpay-go"
)

// RazorpayLogger defines the logging contract for Razorpay provider operations.
type RazorpayLogger func(ctx context.Context, event string, fields map[string]any)

type razorpayOrderAPI interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type razorpayPaymentAPI interface {
	Fetch(paymentID string, queryParams map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
	Refund(paymentID string, refundAmount int, data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type razorpayClients struct {
	orders   razorpayOrderAPI
	payments razorpayPaymentAPI
}

// RazorpayProviderConfig configures the RazorpayProvider.
type RazorpayProviderConfig struct {
	KeyID       string
	KeySecret   string
	CallTimeout time.Duration
	Logger      RazorpayLogger
	Clients     *razorpayClients
}

// RazorpayProvider implements the Provider interface using the Razorpay SDK.
// The SDK has no context support, so every call runs under callWithContext to
// keep gateway RPCs bounded.
type RazorpayProvider struct {
	api     razorpayClients
	timeout time.Duration
	logger  RazorpayLogger
}

// NewRazorpayProvider constructs a Razorpay Provider using the given configuration.
func NewRazorpayProvider(cfg RazorpayProviderConfig) (*RazorpayProvider, error) {
	keyID := strings.TrimSpace(cfg.KeyID)
	keySecret := strings.TrimSpace(cfg.KeySecret)
	if (keyID == "" || keySecret == "") && cfg.Clients == nil {
		return nil, errors.New("razorpay: key id and secret are required")
	}

	var clients razorpayClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		rc := razorpay.NewClient(keyID, keySecret)
		clients = razorpayClients{
			orders:   rc.Order,
			payments: rc.Payment,
		}
	}
	if clients.orders == nil || clients.payments == nil {
		return nil, errors.New("razorpay: incomplete client configuration")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &RazorpayProvider{
		api:     clients,
		timeout: cfg.CallTimeout,
		logger:  logger,
	}, nil
}

// CreateIntent opens a Razorpay order for the requested amount.
func (p *RazorpayProvider) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if p == nil {
		return Intent{}, errors.New("razorpay: provider is nil")
	}

	data := map[string]interface{}{
		"amount":   req.Amount,
		"currency": strings.ToUpper(req.Currency),
	}
	if receipt := strings.TrimSpace(req.Receipt); receipt != "" {
		data["receipt"] = receipt
	}
	if len(req.Metadata) > 0 {
		notes := make(map[string]interface{}, len(req.Metadata))
		for k, v := range req.Metadata {
			notes[k] = v
		}
		data["notes"] = notes
	}

	headers := map[string]string{}
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		headers["X-Razorpay-Idempotency"] = key
	}

	body, err := callWithContext(ctx, p.timeout, func() (map[string]interface{}, error) {
		return p.api.orders.Create(data, headers)
	})
	if err != nil {
		return Intent{}, fmt.Errorf("razorpay: create order: %w", err)
	}

	intent := Intent{
		ID:       mapString(body, "id"),
		Provider: "razorpay",
		Amount:   mapInt64(body, "amount"),
		Currency: strings.ToUpper(mapString(body, "currency")),
		Raw:      body,
	}
	if intent.ID == "" {
		return Intent{}, errors.New("razorpay: create order: response missing id")
	}

	p.logger(ctx, "payments.razorpay.order.created", map[string]any{
		"gatewayOrderId": intent.ID,
		"amount":         intent.Amount,
		"currency":       intent.Currency,
	})
	return intent, nil
}

// FetchPayment retrieves and normalises a Razorpay payment.
func (p *RazorpayProvider) FetchPayment(ctx context.Context, paymentID string) (PaymentDetails, error) {
	if p == nil {
		return PaymentDetails{}, errors.New("razorpay: provider is nil")
	}
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return PaymentDetails{}, errors.New("razorpay: payment id is required")
	}

	body, err := callWithContext(ctx, p.timeout, func() (map[string]interface{}, error) {
		return p.api.payments.Fetch(paymentID, nil, nil)
	})
	if err != nil {
		return PaymentDetails{}, fmt.Errorf("razorpay: fetch payment: %w", err)
	}

	return razorpayPaymentDetails(body), nil
}

// Refund issues a refund against a captured Razorpay payment.
func (p *RazorpayProvider) Refund(ctx context.Context, req RefundRequest) (RefundDetails, error) {
	if p == nil {
		return RefundDetails{}, errors.New("razorpay: provider is nil")
	}
	paymentID := strings.TrimSpace(req.PaymentID)
	if paymentID == "" {
		return RefundDetails{}, errors.New("razorpay: payment id is required")
	}

	data := map[string]interface{}{}
	if reason := strings.TrimSpace(req.Reason); reason != "" {
		data["notes"] = map[string]interface{}{"reason": reason}
	}
	for k, v := range req.Metadata {
		notes, _ := data["notes"].(map[string]interface{})
		if notes == nil {
			notes = map[string]interface{}{}
			data["notes"] = notes
		}
		notes[k] = v
	}

	headers := map[string]string{}
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		headers["X-Razorpay-Idempotency"] = key
	}

	body, err := callWithContext(ctx, p.timeout, func() (map[string]interface{}, error) {
		return p.api.payments.Refund(paymentID, int(req.Amount), data, headers)
	})
	if err != nil {
		return RefundDetails{}, fmt.Errorf("razorpay: refund payment: %w", err)
	}

	details := RefundDetails{
		ID:        mapString(body, "id"),
		Provider:  "razorpay",
		PaymentID: paymentID,
		Amount:    mapInt64(body, "amount"),
		Status:    razorpayRefundStatus(mapString(body, "status")),
		Raw:       body,
	}

	p.logger(ctx, "payments.razorpay.payment.refunded", map[string]any{
		"paymentId": paymentID,
		"refundId":  details.ID,
		"amount":    details.Amount,
	})
	return details, nil
}

func razorpayPaymentDetails(body map[string]interface{}) PaymentDetails {
	status := StatusPending
	switch strings.ToLower(mapString(body, "status")) {
	case "captured":
		status = StatusCaptured
	case "failed":
		status = StatusFailed
	case "refunded":
		status = StatusRefunded
	case "created", "authorized":
		status = StatusPending
	}

	return PaymentDetails{
		Provider:  "razorpay",
		PaymentID: mapString(body, "id"),
		IntentID:  mapString(body, "order_id"),
		Status:    status,
		Amount:    mapInt64(body, "amount"),
		Currency:  strings.ToUpper(mapString(body, "currency")),
		Captured:  status == StatusCaptured || status == StatusRefunded,
		Raw:       body,
	}
}

func razorpayRefundStatus(value string) Status {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "processed":
		return StatusRefunded
	case "failed":
		return StatusFailed
	default:
		return StatusPending
	}
}

func mapString(body map[string]interface{}, key string) string {
	if body == nil {
		return ""
	}
	if value, ok := body[key].(string); ok {
		return value
	}
	return ""
}

func mapInt64(body map[string]interface{}, key string) int64 {
	if body == nil {
		return 0
	}
	switch value := body[key].(type) {
	case int64:
		return value
	case int:
		return int64(value)
	case float64:
		return int64(value)
	default:
		return 0
	}
}
