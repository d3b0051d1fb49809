// Package integration runs the whole service against a PostgreSQL container:
// HTTP API, message bus and consumers wired the way cmd/api wires them.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"commerceflow/internal/collaborator"
	"commerceflow/internal/consumer"
	"commerceflow/internal/database/dbtest"
	"commerceflow/internal/gateway"
	"commerceflow/internal/handler"
	"commerceflow/internal/messaging"
	"commerceflow/internal/middleware"
	"commerceflow/internal/promotion"
	"commerceflow/internal/repository"
	"commerceflow/internal/router"
	"commerceflow/internal/search"
	"commerceflow/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const jwtSecret = "integration-secret"

// Stack is a running service.
type Stack struct {
	DB      *dbtest.DB
	Handler http.Handler
	Bus     *messaging.PostgresBus
	Sandbox *gateway.Sandbox
}

// NewStack migrates a fresh database, registers every consumer and starts
// the bus dispatcher until the test ends.
func NewStack(t *testing.T) *Stack {
	t.Helper()

	db := dbtest.New(t)
	logger := zerolog.Nop()

	bus := messaging.NewPostgresBus(db.Pool, messaging.Config{
		PollInterval:    20 * time.Millisecond,
		RedeliveryDelay: 50 * time.Millisecond,
		MaxAttempts:     3,
		BatchSize:       50,
	}, logger)

	orderRepo := repository.NewOrderRepository(db.Pool, logger)
	productRepo := repository.NewProductRepository(db.Pool, logger)
	promotionRepo := repository.NewPromotionRepository(db.Pool, logger)
	searchRepo := repository.NewSearchDocumentRepository(db.Pool, logger)
	transactionRepo := repository.NewTransactionRepository(db.Pool, logger)
	userRepo := repository.NewUserRepository(db.Pool, logger)

	orders := collaborator.NewLocalOrders(orderRepo)
	catalog := collaborator.NewLocalCatalog(productRepo)
	users := collaborator.NewLocalUsers(userRepo)

	sandbox := gateway.NewSandbox(logger)
	validator := promotion.NewValidator(promotionRepo, logger)

	paymentService := service.NewPaymentService(service.PaymentDeps{
		Orders:       orders,
		Transactions: transactionRepo,
		Gateways:     gateway.NewRegistry(sandbox),
		Publisher:    bus,
		ReturnURL:    "http://localhost/payments/return",
		CancelURL:    "http://localhost/payments/failure",
	}, logger)
	orderService := service.NewOrderService(service.OrderDeps{
		Orders:         orderRepo,
		Promotions:     promotionRepo,
		Catalog:        catalog,
		Users:          users,
		Validator:      validator,
		Publisher:      bus,
		Payments:       paymentService,
		DefaultGateway: gateway.SandboxName,
	}, logger)
	catalogService := service.NewCatalogService(productRepo, bus, logger)
	promotionService := service.NewPromotionService(promotionRepo, validator, promotion.NewFileLoader(logger), logger)

	cfg := search.DefaultConfig()
	cfg.RetryBackoff = 10 * time.Millisecond
	indexer := search.NewIndexer(searchRepo, cfg, bus, consumer.GroupSearch, logger)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, consumer.Register(ctx, bus, consumer.Deps{
		Orders:  orderService,
		Catalog: catalogService,
		Search:  indexer,
		Inbox:   messaging.NewPostgresInbox(db.Pool),
	}, logger))

	done := make(chan error, 1)
	go func() { done <- bus.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("bus stopped with error: %v", err)
		}
	})

	h := router.New(router.Handlers{
		Orders: handler.NewOrderHandler(orderService, logger),
		Payments: handler.NewPaymentHandler(paymentService, gateway.SandboxName, handler.PaymentViews{
			SuccessURL: "/payments/success",
			FailureURL: "/payments/failure",
		}, logger),
		Products:   handler.NewProductHandler(catalogService, logger),
		Promotions: handler.NewPromotionHandler(promotionService, logger),
		Search:     handler.NewSearchHandler(searchRepo, logger),
		Admin:      handler.NewAdminHandler(bus, logger),
		Internal:   handler.NewInternalHandler(orders, catalog, users, logger),
	}, router.Options{JWTSecret: jwtSecret, Users: userRepo}, db.Pool, logger)

	return &Stack{DB: db, Handler: h, Bus: bus, Sandbox: sandbox}
}

// Token issues a bearer token for userID.
func Token(t *testing.T, userID, role string) string {
	t.Helper()
	token, err := middleware.IssueToken(jwtSecret, userID, role, time.Hour)
	require.NoError(t, err)
	return token
}

// Do sends a JSON request through the router. A nil body sends no body; a
// non-nil out decodes the response.
func (s *Stack) Do(t *testing.T, method, path, token string, body, out any) int {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.Handler.ServeHTTP(w, req)

	if out != nil && w.Code < http.StatusMultipleChoices {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
	}
	return w.Code
}
