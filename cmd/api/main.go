package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/feastline/api/internal/di"
	"github.com/feastline/api/internal/handlers"
	"github.com/feastline/api/internal/payments"
	"github.com/feastline/api/internal/platform/auth"
	"github.com/feastline/api/internal/platform/config"
	pfirestore "github.com/feastline/api/internal/platform/firestore"
	"github.com/feastline/api/internal/platform/jobs"
	"github.com/feastline/api/internal/platform/observability"
	"github.com/feastline/api/internal/platform/secrets"
	firestoreRepo "github.com/feastline/api/internal/repositories/firestore"
	"github.com/feastline/api/internal/services"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	fetcher, err := secrets.NewFetcher(ctx,
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithProject(os.Getenv("API_FIRESTORE_PROJECT_ID")),
	)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(fetcher))
	if err != nil {
		var validation *config.ValidationError
		if errors.As(err, &validation) {
			logger.Fatal("invalid configuration", zap.Strings("fields", validation.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	if _, err := firestoreProvider.Client(ctx); err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}

	registry, err := firestoreRepo.NewRegistry(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}
	defer func() {
		if err := registry.Close(); err != nil {
			logger.Warn("repository close error", zap.Error(err))
		}
	}()

	gateway, err := buildPaymentGateway(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise payment gateway", zap.Error(err))
	}

	publisher, pubsubClient, err := buildEventPublisher(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise event publisher", zap.Error(err))
	}
	if pubsubClient != nil {
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
	}

	container, err := di.NewContainer(ctx, di.Deps{
		Config:    cfg,
		Registry:  registry,
		Gateway:   gateway,
		Publisher: publisher,
	})
	if err != nil {
		logger.Fatal("failed to assemble container", zap.Error(err))
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.RequestLoggerMiddleware(),
			observability.RecoveryMiddleware(logger),
		),
		handlers.WithAPIMiddlewares(auth.Middleware()),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(registry.Health().Ping)),
		handlers.WithOrderRoutes(handlers.NewOrderHandlers(container.Services.Orders).Routes),
		handlers.WithPaymentRoutes(handlers.NewPaymentHandlers(container.Services.Payments).Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.String("addr", server.Addr),
			zap.String("environment", cfg.Security.Environment),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	case sig := <-stop:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
}

// buildPaymentGateway registers the gateway adapters named by configuration.
// Razorpay is the default when both are configured.
func buildPaymentGateway(cfg config.Config, logger *zap.Logger) (*payments.Manager, error) {
	providers := make(map[string]payments.Provider)

	if strings.TrimSpace(cfg.Gateway.RazorpayKeyID) != "" {
		razorpay, err := payments.NewRazorpayProvider(payments.RazorpayProviderConfig{
			KeyID:       cfg.Gateway.RazorpayKeyID,
			KeySecret:   cfg.Gateway.RazorpayKeySecret,
			CallTimeout: cfg.Gateway.CallTimeout,
			Logger:      zapEventLogger(logger.Named("razorpay")),
		})
		if err != nil {
			return nil, err
		}
		providers["razorpay"] = razorpay
	}

	if strings.TrimSpace(cfg.Gateway.StripeAPIKey) != "" {
		stripe, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey: cfg.Gateway.StripeAPIKey,
			Logger: zapEventLogger(logger.Named("stripe")),
		})
		if err != nil {
			return nil, err
		}
		providers["stripe"] = stripe
	}

	if len(providers) == 0 {
		return nil, errors.New("no payment gateway configured")
	}
	return payments.NewManager(providers)
}

// buildEventPublisher wires the Pub/Sub order event stream when enabled. The
// returned client must be closed by the caller.
func buildEventPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (services.OrderEventPublisher, *pubsub.Client, error) {
	if !cfg.Events.Enabled {
		logger.Info("order events disabled")
		return nil, nil, nil
	}

	client, err := pubsub.NewClient(ctx, cfg.Events.ProjectID)
	if err != nil {
		return nil, nil, err
	}

	topic := client.Topic(cfg.Events.Topic)
	publisher, err := jobs.NewPubSubOrderEventPublisher(topic)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return publisher, client, nil
}

func zapEventLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	return func(ctx context.Context, event string, fields map[string]any) {
		zapFields := make([]zap.Field, 0, len(fields))
		for k, v := range fields {
			zapFields = append(zapFields, zap.Any(k, v))
		}
		logger.Info(event, zapFields...)
	}
}
