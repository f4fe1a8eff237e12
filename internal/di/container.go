package di

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/feastline/api/internal/platform/config"
	"github.com/feastline/api/internal/platform/requestctx"
	"github.com/feastline/api/internal/repositories"
	"github.com/feastline/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
// Concrete implementations are assembled in NewContainer.
type Services struct {
	Pricing      services.PricingEngine
	Orders       services.OrderService
	Payments     services.PaymentService
	RefundPolicy services.RefundPolicy
}

// Deps carries the externally constructed collaborators: configuration, the
// repository registry, the payment gateway manager and the optional event
// publisher.
type Deps struct {
	Config    config.Config
	Registry  repositories.Registry
	Gateway   services.PaymentGateway
	Publisher services.OrderEventPublisher
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring supplies
// Firestore-backed registries; tests can provide in-memory ones.
func NewContainer(ctx context.Context, deps Deps) (*Container, error) {
	if deps.Registry == nil {
		return nil, errors.New("repositories registry is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("payment gateway is required")
	}

	logger := serviceLogger()

	pricing, err := services.NewPricingEngine(services.PricingEngineDeps{
		FoodItems: deps.Registry.FoodItems(),
		Vendors:   deps.Registry.Vendors(),
		TaxRate:   deps.Config.Pricing.TaxRate,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build pricing engine: %w", err)
	}

	refundPolicy := services.NewTimelineRefundPolicy()

	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:       deps.Registry.Orders(),
		Vendors:      deps.Registry.Vendors(),
		FoodItems:    deps.Registry.FoodItems(),
		Counters:     deps.Registry.Counters(),
		Pricing:      pricing,
		RefundPolicy: refundPolicy,
		UnitOfWork:   deps.Registry,
		Publisher:    deps.Publisher,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build order service: %w", err)
	}

	payments, err := services.NewPaymentService(services.PaymentServiceDeps{
		Orders:        deps.Registry.Orders(),
		Vendors:       deps.Registry.Vendors(),
		UnitOfWork:    deps.Registry,
		Gateway:       deps.Gateway,
		SigningSecret: []byte(deps.Config.Gateway.SigningSecret),
		Currency:      deps.Config.Pricing.Currency,
		Publisher:     deps.Publisher,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build payment service: %w", err)
	}

	return &Container{
		Config:       deps.Config,
		Repositories: deps.Registry,
		Services: Services{
			Pricing:      pricing,
			Orders:       orders,
			Payments:     payments,
			RefundPolicy: refundPolicy,
		},
	}, nil
}

// Close releases repository clients.
func (c *Container) Close() error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close()
}

// serviceLogger adapts the context-carried zap logger to the callback shape
// the services log through.
func serviceLogger() func(ctx context.Context, event string, fields map[string]any) {
	return func(ctx context.Context, event string, fields map[string]any) {
		logger := requestctx.Logger(ctx)
		zapFields := make([]zap.Field, 0, len(fields))
		for k, v := range fields {
			zapFields = append(zapFields, zap.Any(k, v))
		}
		logger.Info(event, zapFields...)
	}
}
