package service

import (
	"context"

	"commerceflow/internal/contracts"
	"commerceflow/internal/model"
	"commerceflow/internal/promotion"

	"github.com/google/uuid"
)

// OrderService defines the order lifecycle.
type OrderService interface {
	// Checkout prices the cart, applies an optional promotion, stores a
	// Pending order and publishes OrderCreated. When the order is paid
	// through a gateway a payment is opened as well.
	Checkout(ctx context.Context, userID string, req *model.CheckoutRequest) (*model.CheckoutResponse, error)

	// GetOrder retrieves an order with its items.
	GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error)

	// HandlePaymentSucceeded moves a Pending order to Paid.
	HandlePaymentSucceeded(ctx context.Context, msg contracts.PaymentSucceeded) error

	// HandlePaymentFailed records a failed payment. The order stays Pending.
	HandlePaymentFailed(ctx context.Context, msg contracts.PaymentFailed) error

	// SetShippingAddress records where the order should be delivered.
	SetShippingAddress(ctx context.Context, userID string, orderID uuid.UUID, address string) (*model.Order, error)

	// Ship marks the order Shipped and publishes OrderShipped.
	Ship(ctx context.Context, orderID uuid.UUID) (*model.Order, error)

	// Cancel cancels the order of userID and publishes OrderCancelled.
	Cancel(ctx context.Context, userID string, orderID uuid.UUID) (*model.Order, error)

	// UpdateStatus sets the status without checking transitions.
	UpdateStatus(ctx context.Context, orderID uuid.UUID, status model.OrderStatus) (*model.Order, error)

	// ListOrderSummaries lists orders newest first with the owner's username.
	ListOrderSummaries(ctx context.Context, limit, offset int) ([]model.OrderSummary, error)
}

// PaymentService defines payment orchestration against external gateways.
type PaymentService interface {
	// CreatePaymentOrder opens a payment at gateway for an order owned by userID.
	CreatePaymentOrder(ctx context.Context, userID string, orderID uuid.UUID, gateway string) (*model.PaymentOrder, error)

	// CaptureOrder captures an approved payment and publishes its outcome.
	CaptureOrder(ctx context.Context, gatewayTransactionID string) (*model.CaptureResult, error)

	// ListTransactions returns the payment attempts of an order, oldest first.
	ListTransactions(ctx context.Context, orderID uuid.UUID) ([]model.Transaction, error)
}

// CatalogService defines product management and the stock ledger.
type CatalogService interface {
	// GetAll retrieves products with pagination.
	GetAll(ctx context.Context, limit, offset int) ([]model.Product, error)

	// GetByID retrieves a single product by ID.
	GetByID(ctx context.Context, id string) (*model.Product, error)

	// GetByIDs retrieves multiple products by their IDs.
	GetByIDs(ctx context.Context, ids []string) ([]model.Product, error)

	CreateProduct(ctx context.Context, req *model.ProductRequest) (*model.Product, error)
	UpdateProduct(ctx context.Context, req *model.ProductRequest) (*model.Product, error)

	// RequestReindex publishes every product for a full search rebuild.
	RequestReindex(ctx context.Context) (int, error)

	// ApplyOrderCreated decrements stock for each line item.
	ApplyOrderCreated(ctx context.Context, msg contracts.OrderCreated) (*model.StockReport, error)

	// ApplyOrderCancelled restores stock for each line item.
	ApplyOrderCancelled(ctx context.Context, msg contracts.OrderCancelled) (*model.StockReport, error)
}

// PromotionService defines promotion administration and validation.
type PromotionService interface {
	Create(ctx context.Context, p *model.Promotion) (*model.Promotion, error)
	List(ctx context.Context) ([]model.Promotion, error)
	Validate(ctx context.Context, code string, cart model.CartContext) (*model.ValidationResult, error)
	Import(ctx context.Context, files []string) (promotion.ImportReport, error)
}
