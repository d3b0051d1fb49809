package repository

import (
	"context"

	"commerceflow/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ProductRepository defines the interface for product data access operations.
type ProductRepository interface {
	// GetAll retrieves products ordered by id with pagination support.
	GetAll(ctx context.Context, limit, offset int) ([]model.Product, error)

	// GetByID retrieves a single product by its ID. It returns nil when the product does not exist.
	GetByID(ctx context.Context, id string) (*model.Product, error)

	// GetByIDs retrieves multiple products by their IDs. Unknown IDs are left out of the result.
	GetByIDs(ctx context.Context, ids []string) ([]model.Product, error)

	// Create inserts a new product.
	Create(ctx context.Context, product *model.Product) error

	// Update overwrites the mutable fields of an existing product.
	Update(ctx context.Context, product *model.Product) error

	// ReserveStock atomically lowers stock by quantity if enough stock is
	// available and records the movement against the order.
	ReserveStock(ctx context.Context, orderID uuid.UUID, id string, quantity int) (int, error)

	// ReleaseStock returns all stock recorded against the order and forgets it.
	ReleaseStock(ctx context.Context, orderID uuid.UUID) ([]model.StockMovement, error)
}

// OrderRepository defines the interface for order data access operations.
type OrderRepository interface {
	// BeginTx starts a new database transaction.
	BeginTx(ctx context.Context) (pgx.Tx, error)

	// CreateOrder inserts a new order within the provided transaction.
	CreateOrder(ctx context.Context, tx pgx.Tx, order *model.Order) error

	// CreateOrderItems inserts multiple order items within the provided transaction.
	CreateOrderItems(ctx context.Context, tx pgx.Tx, items []model.OrderItem) error

	// GetByID retrieves an order by its ID along with its items. It returns nil when the order does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error)

	// Update persists the mutable fields of order if its version is unchanged
	// and bumps the version.
	Update(ctx context.Context, order *model.Order) error

	// List retrieves orders newest first, without items.
	List(ctx context.Context, limit, offset int) ([]model.Order, error)
}

// TransactionRepository defines the interface for payment transaction data access.
type TransactionRepository interface {
	Create(ctx context.Context, txn *model.Transaction) error

	// GetByGatewayID returns nil when no transaction has that gateway id.
	GetByGatewayID(ctx context.Context, gatewayTransactionID string) (*model.Transaction, error)

	// CompleteIfPending moves a Pending transaction to status. It reports false
	// when the transaction was no longer Pending.
	CompleteIfPending(ctx context.Context, gatewayTransactionID string, status model.TransactionStatus, reason *string) (bool, error)

	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]model.Transaction, error)
}

// PromotionRepository defines the interface for promotion data access.
type PromotionRepository interface {
	Create(ctx context.Context, promotion *model.Promotion) error

	// GetByCode returns nil when the code is unknown.
	GetByCode(ctx context.Context, code string) (*model.Promotion, error)

	ExistsByCode(ctx context.Context, code string) (bool, error)

	// Redeem increments usage within tx while usage is below the limit.
	Redeem(ctx context.Context, tx pgx.Tx, code string) error

	List(ctx context.Context) ([]model.Promotion, error)
}

// UserRepository defines the interface for the local user directory.
type UserRepository interface {
	GetByIDs(ctx context.Context, ids []string) ([]model.User, error)
	Upsert(ctx context.Context, user model.User) error
}

// SearchDocumentRepository stores search documents and the derived full-text index.
type SearchDocumentRepository interface {
	// Upsert replaces the whole document.
	Upsert(ctx context.Context, doc model.SearchDocument) error

	// Merge overwrites the fields present in doc and keeps the rest. A missing
	// document is created.
	Merge(ctx context.Context, doc model.SearchDocument) error

	// BulkUpsert replaces all docs in one round trip.
	BulkUpsert(ctx context.Context, docs []model.SearchDocument) error

	GetByID(ctx context.Context, id string) (*model.SearchDocument, error)

	// Refresh makes written documents visible to Search.
	Refresh(ctx context.Context) error

	Search(ctx context.Context, query string, limit int) ([]model.SearchDocument, error)
}
