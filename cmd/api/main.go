package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"commerceflow/internal/collaborator"
	"commerceflow/internal/config"
	"commerceflow/internal/consumer"
	"commerceflow/internal/database"
	"commerceflow/internal/gateway"
	"commerceflow/internal/handler"
	"commerceflow/internal/messaging"
	"commerceflow/internal/promotion"
	"commerceflow/internal/repository"
	"commerceflow/internal/router"
	"commerceflow/internal/search"
	"commerceflow/internal/service"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := config.NewLogger(cfg.Logger, "api")
	logger.Info().Msg("starting commerceflow API server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Database.MigrateOnStart {
		if err := database.Migrate(cfg.Database.ConnectionString(), logger); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	pool, err := database.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer pool.Close()

	bus, inbox := newBroker(cfg.Messaging, pool, logger)

	orderRepo := repository.NewOrderRepository(pool, logger)
	productRepo := repository.NewProductRepository(pool, logger)
	promotionRepo := repository.NewPromotionRepository(pool, logger)
	searchRepo := repository.NewSearchDocumentRepository(pool, logger)
	transactionRepo := repository.NewTransactionRepository(pool, logger)
	userRepo := repository.NewUserRepository(pool, logger)

	localOrders := collaborator.NewLocalOrders(orderRepo)
	localCatalog := collaborator.NewLocalCatalog(productRepo)
	localUsers := collaborator.NewLocalUsers(userRepo)
	orders, catalog, users := remoteCollaborators(cfg.Collaborators, localOrders, localCatalog, localUsers, logger)

	gateways, defaultGateway := newGateways(cfg.Gateway, logger)

	loader := newPromotionLoader(ctx, cfg.S3, logger)
	validator := promotion.NewValidator(promotionRepo, logger)

	paymentService := service.NewPaymentService(service.PaymentDeps{
		Orders:       orders,
		Transactions: transactionRepo,
		Gateways:     gateways,
		Publisher:    bus,
		ReturnURL:    cfg.Gateway.ReturnURL,
		CancelURL:    cfg.Gateway.CancelURL,
	}, logger)
	orderService := service.NewOrderService(service.OrderDeps{
		Orders:         orderRepo,
		Promotions:     promotionRepo,
		Catalog:        catalog,
		Users:          users,
		Validator:      validator,
		Publisher:      bus,
		Payments:       paymentService,
		DefaultGateway: defaultGateway,
	}, logger)
	catalogService := service.NewCatalogService(productRepo, bus, logger)
	promotionService := service.NewPromotionService(promotionRepo, validator, loader, logger)

	indexer := search.NewIndexer(searchRepo, search.Config{
		BatchSize:    cfg.Search.BatchSize,
		Parallelism:  cfg.Search.Parallelism,
		MaxAttempts:  cfg.Search.MaxAttempts,
		RetryBackoff: cfg.Search.RetryBackoff,
	}, bus, consumer.GroupSearch, logger)

	if err := consumer.Register(ctx, bus, consumer.Deps{
		Orders:  orderService,
		Catalog: catalogService,
		Search:  indexer,
		Inbox:   inbox,
	}, logger); err != nil {
		return fmt.Errorf("failed to register consumers: %w", err)
	}

	if len(cfg.Promotions.ImportFiles) > 0 {
		report, err := promotionService.Import(ctx, cfg.Promotions.ImportFiles)
		if err != nil {
			// The server still starts; promotions can be imported later by an admin.
			logger.Error().Err(err).Strs("files", cfg.Promotions.ImportFiles).Msg("startup promotion import failed")
		} else {
			logger.Info().
				Int("loaded", report.Loaded).
				Int("created", report.Created).
				Int("skipped", report.Skipped).
				Int("rejected", report.Rejected).
				Msg("startup promotion import completed")
		}
	}

	mux := router.New(router.Handlers{
		Orders: handler.NewOrderHandler(orderService, logger),
		Payments: handler.NewPaymentHandler(paymentService, defaultGateway, handler.PaymentViews{
			SuccessURL: "/payments/success",
			FailureURL: "/payments/failure",
		}, logger),
		Products:   handler.NewProductHandler(catalogService, logger),
		Promotions: handler.NewPromotionHandler(promotionService, logger),
		Search:     handler.NewSearchHandler(searchRepo, logger),
		Admin:      handler.NewAdminHandler(bus, logger),
		Internal:   handler.NewInternalHandler(localOrders, localCatalog, localUsers, logger),
	}, router.Options{
		JWTSecret:   cfg.Auth.JWTSecret,
		CORSOrigins: cfg.Server.CORSOrigins,
		Users:       userRepo,
	}, pool, logger)

	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("address", cfg.Server.Address()).Msg("HTTP server started")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := bus.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("message bus stopped: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutdown signal received, starting graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown server gracefully")
			if closeErr := server.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close server")
			}
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info().Msg("server shutdown completed")
	return nil
}

// broker is what the process needs from a message bus: publishing,
// consumer dispatch and dead-letter maintenance.
type broker interface {
	messaging.Bus
	messaging.DeadLetterSink
	handler.DeadLetterStore
}

// newBroker selects the bus and consumer inbox for cfg.Driver. The memory
// driver keeps everything in the process and loses undelivered messages on
// restart.
func newBroker(cfg config.MessagingConfig, pool *pgxpool.Pool, logger zerolog.Logger) (broker, messaging.Inbox) {
	busCfg := messaging.Config{
		PollInterval:    cfg.PollInterval,
		RedeliveryDelay: cfg.RedeliveryDelay,
		MaxAttempts:     cfg.MaxAttempts,
		BatchSize:       cfg.BatchSize,
	}
	if cfg.Driver == "memory" {
		logger.Warn().Msg("using the in-memory message bus, undelivered messages are lost on restart")
		return messaging.NewMemoryBus(busCfg, logger), messaging.NewMemoryInbox()
	}
	return messaging.NewPostgresBus(pool, busCfg, logger), messaging.NewPostgresInbox(pool)
}

// remoteCollaborators swaps a local collaborator for the HTTP client when
// its service URL is configured.
func remoteCollaborators(
	cfg config.CollaboratorConfig,
	orders collaborator.OrderReader,
	catalog collaborator.ProductCatalog,
	users collaborator.UserDirectory,
	logger zerolog.Logger,
) (collaborator.OrderReader, collaborator.ProductCatalog, collaborator.UserDirectory) {
	if cfg.OrdersURL == "" && cfg.ProductsURL == "" && cfg.UsersURL == "" {
		return orders, catalog, users
	}

	client := collaborator.NewHTTPClient(collaborator.HTTPConfig{
		OrdersURL:   cfg.OrdersURL,
		ProductsURL: cfg.ProductsURL,
		UsersURL:    cfg.UsersURL,
		Timeout:     cfg.Timeout,
	}, logger)

	if cfg.OrdersURL != "" {
		orders = client
	}
	if cfg.ProductsURL != "" {
		catalog = client
	}
	if cfg.UsersURL != "" {
		users = client
	}
	return orders, catalog, users
}

// newGateways always registers the sandbox. A configured base URL adds the
// REST gateway and makes it the default.
func newGateways(cfg config.GatewayConfig, logger zerolog.Logger) (*gateway.Registry, string) {
	sandbox := gateway.NewSandbox(logger)
	if cfg.BaseURL == "" {
		logger.Info().Msg("no gateway base URL configured, using the sandbox gateway")
		return gateway.NewRegistry(sandbox), gateway.SandboxName
	}

	rest := gateway.NewRESTGateway(gateway.RESTConfig{
		Name:         cfg.Name,
		BaseURL:      cfg.BaseURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Timeout:      cfg.Timeout,
	}, logger)
	return gateway.NewRegistry(sandbox, rest), cfg.Name
}

func newPromotionLoader(ctx context.Context, cfg config.S3Config, logger zerolog.Logger) promotion.Loader {
	fileLoader := promotion.NewFileLoader(logger)
	if !cfg.Enabled {
		logger.Info().Msg("using local file system for promotion files (S3 disabled)")
		return fileLoader
	}

	s3Loader, err := promotion.NewS3Loader(ctx, cfg.Bucket, cfg.Region, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to initialise S3 loader, falling back to local file system only")
		return fileLoader
	}
	return promotion.NewFallbackLoader(s3Loader, fileLoader, cfg.Prefix, true, logger)
}
