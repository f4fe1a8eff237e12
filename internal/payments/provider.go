package payments

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// Status enumerates the normalised payment states shared across gateways.
type Status string

const (
	// StatusPending indicates the payment is awaiting customer action or gateway confirmation.
	StatusPending Status = "pending"
	// StatusCaptured indicates the gateway reports the funds as captured.
	StatusCaptured Status = "captured"
	// StatusFailed indicates the gateway reports a failure and no further action is possible.
	StatusFailed Status = "failed"
	// StatusRefunded indicates the payment has been refunded.
	StatusRefunded Status = "refunded"
)

var (
	// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
	ErrUnsupportedProvider = errors.New("payments: unsupported provider")
	// ErrGatewayUnavailable marks transport failures and timeouts talking to
	// the gateway. Callers may retry; no order state changes on this error.
	ErrGatewayUnavailable = errors.New("payments: gateway unavailable")
)

// IntentRequest captures the payload required to open a payment intent with
// the gateway. Amount is in minor units (paise).
type IntentRequest struct {
	Amount         int64
	Currency       string
	Receipt        string
	CustomerID     string
	IdempotencyKey string
	Metadata       map[string]string
}

// Intent represents the gateway-side payment intent returned to the client.
type Intent struct {
	ID       string
	Provider string
	Amount   int64
	Currency string
	Raw      map[string]any
}

// PaymentDetails normalises gateway specific payment fields.
type PaymentDetails struct {
	Provider  string
	PaymentID string
	IntentID  string
	Status    Status
	Amount    int64
	Currency  string
	Captured  bool
	Raw       map[string]any
}

// RefundRequest defines a gateway refund attempt. Amount is in minor units.
type RefundRequest struct {
	PaymentID      string
	Amount         int64
	Reason         string
	IdempotencyKey string
	Metadata       map[string]string
}

// RefundDetails describes the gateway refund outcome.
type RefundDetails struct {
	ID        string
	Provider  string
	PaymentID string
	Amount    int64
	Status    Status
	Raw       map[string]any
}

// Provider defines the contract gateway adapters implement.
type Provider interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	FetchPayment(ctx context.Context, paymentID string) (PaymentDetails, error)
	Refund(ctx context.Context, req RefundRequest) (RefundDetails, error)
}

// Manager coordinates provider selection keyed by payment method.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider overrides the provider used when no method matches.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = strings.TrimSpace(strings.ToLower(provider))
	}
}

// NewManager constructs a Manager over the supplied providers.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	copyMap := make(map[string]Provider, len(providers))
	for k, v := range providers {
		key := strings.TrimSpace(strings.ToLower(k))
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", k)
		}
		copyMap[key] = v
	}
	m := &Manager{providers: copyMap}
	if _, ok := copyMap["razorpay"]; ok {
		m.defaultProvider = "razorpay"
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

// ProviderFor resolves the adapter registered for the payment method.
func (m *Manager) ProviderFor(method string) (string, Provider, error) {
	if m == nil || len(m.providers) == 0 {
		return "", nil, errors.New("payments: no providers registered")
	}
	if key := strings.TrimSpace(strings.ToLower(method)); key != "" {
		if p, ok := m.providers[key]; ok {
			return key, p, nil
		}
	}
	if m.defaultProvider != "" {
		if p, ok := m.providers[m.defaultProvider]; ok {
			return m.defaultProvider, p, nil
		}
	}
	if len(m.providers) == 1 {
		for key, p := range m.providers {
			return key, p, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

// CreateIntent delegates to the provider registered for the method.
func (m *Manager) CreateIntent(ctx context.Context, method string, req IntentRequest) (Intent, error) {
	key, provider, err := m.ProviderFor(method)
	if err != nil {
		return Intent{}, err
	}
	intent, err := provider.CreateIntent(ctx, req)
	if err != nil {
		return Intent{}, err
	}
	intent.Provider = key
	return intent, nil
}

// FetchPayment delegates to the provider registered for the method.
func (m *Manager) FetchPayment(ctx context.Context, method, paymentID string) (PaymentDetails, error) {
	_, provider, err := m.ProviderFor(method)
	if err != nil {
		return PaymentDetails{}, err
	}
	return provider.FetchPayment(ctx, paymentID)
}

// Refund delegates to the provider registered for the method.
func (m *Manager) Refund(ctx context.Context, method string, req RefundRequest) (RefundDetails, error) {
	_, provider, err := m.ProviderFor(method)
	if err != nil {
		return RefundDetails{}, err
	}
	return provider.Refund(ctx, req)
}

// callWithContext bounds a gateway SDK call that has no native context
// support. When the context expires before the call returns the result is
// discarded and the failure is reported as a gateway outage.
func callWithContext[T any](ctx context.Context, timeout time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		value T
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		value, err := fn()
		ch <- result{value: value, err: err}
	}()

	select {
	case <-ctx.Done():
		return zero, fmt.Errorf("%w: %v", ErrGatewayUnavailable, ctx.Err())
	case res := <-ch:
		if res.err != nil {
			return zero, normalizeTransportError(res.err)
		}
		return res.value, nil
	}
}

// normalizeTransportError maps network-level failures onto ErrGatewayUnavailable
// while leaving gateway-side rejections intact.
func normalizeTransportError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	return err
}
