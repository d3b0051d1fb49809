package service

import (
	"context"
	"sort"
	"sync"

	"commerceflow/internal/contracts"
	"commerceflow/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/mock"
)

// MockOrderRepository is a mock implementation of OrderRepository.
type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	args := m.Called(ctx)
	// Return a MockTx interface value, not a pointer
	if tx, ok := args.Get(0).(pgx.Tx); ok {
		return tx, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockOrderRepository) CreateOrder(ctx context.Context, tx pgx.Tx, order *model.Order) error {
	args := m.Called(ctx, tx, order)
	return args.Error(0)
}

func (m *MockOrderRepository) CreateOrderItems(ctx context.Context, tx pgx.Tx, items []model.OrderItem) error {
	args := m.Called(ctx, tx, items)
	return args.Error(0)
}

func (m *MockOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderRepository) Update(ctx context.Context, order *model.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *MockOrderRepository) List(ctx context.Context, limit, offset int) ([]model.Order, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Order), args.Error(1)
}

// MockPromotionRepository is a mock implementation of PromotionRepository.
type MockPromotionRepository struct {
	mock.Mock
}

func (m *MockPromotionRepository) Create(ctx context.Context, p *model.Promotion) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockPromotionRepository) GetByCode(ctx context.Context, code string) (*model.Promotion, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Promotion), args.Error(1)
}

func (m *MockPromotionRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	args := m.Called(ctx, code)
	return args.Bool(0), args.Error(1)
}

func (m *MockPromotionRepository) Redeem(ctx context.Context, tx pgx.Tx, code string) error {
	args := m.Called(ctx, tx, code)
	return args.Error(0)
}

func (m *MockPromotionRepository) List(ctx context.Context) ([]model.Promotion, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Promotion), args.Error(1)
}

// MockCatalog is a mock implementation of collaborator.ProductCatalog.
type MockCatalog struct {
	mock.Mock
}

func (m *MockCatalog) GetProductPrices(ctx context.Context, ids []string) ([]model.ProductPrice, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ProductPrice), args.Error(1)
}

// MockUsers is a mock implementation of collaborator.UserDirectory.
type MockUsers struct {
	mock.Mock
}

func (m *MockUsers) GetUsers(ctx context.Context, ids []string) ([]model.User, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.User), args.Error(1)
}

// MockValidator is a mock implementation of promotion.Validator.
type MockValidator struct {
	mock.Mock
}

func (m *MockValidator) Validate(ctx context.Context, code string, cart model.CartContext) (*model.ValidationResult, error) {
	args := m.Called(ctx, code, cart)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ValidationResult), args.Error(1)
}

// MockPaymentOpener is a mock implementation of PaymentOpener.
type MockPaymentOpener struct {
	mock.Mock
}

func (m *MockPaymentOpener) CreatePaymentOrder(ctx context.Context, userID string, orderID uuid.UUID, gateway string) (*model.PaymentOrder, error) {
	args := m.Called(ctx, userID, orderID, gateway)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PaymentOrder), args.Error(1)
}

// MockTx is a minimal mock implementation of pgx.Tx for testing.
type MockTx struct {
	mock.Mock
}

func (m *MockTx) Commit(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockTx) Rollback(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Stub methods to satisfy pgx.Tx interface - these are not used in our tests
func (m *MockTx) Begin(ctx context.Context) (pgx.Tx, error) { return nil, nil }
func (m *MockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (m *MockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (m *MockTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (m *MockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (m *MockTx) Exec(ctx context.Context, sql string, arguments ...any) (commandTag pgconn.CommandTag, err error) {
	return
}
func (m *MockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (m *MockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (m *MockTx) Conn() *pgx.Conn                                               { return nil }

// recordingPublisher keeps every published message.
type recordingPublisher struct {
	mu   sync.Mutex
	msgs []contracts.Message
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, msgs ...contracts.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msgs...)
	return nil
}

func (p *recordingPublisher) messages() []contracts.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]contracts.Message(nil), p.msgs...)
}

// memProducts is an in-memory ProductRepository.
type memProducts struct {
	mu       sync.Mutex
	products map[string]model.Product
	reserved map[uuid.UUID][]model.StockMovement
}

func newMemProducts(products ...model.Product) *memProducts {
	m := &memProducts{products: make(map[string]model.Product)}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

func (m *memProducts) GetAll(_ context.Context, limit, offset int) ([]model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.products))
	for id := range m.products {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []model.Product
	for i := offset; i < len(ids) && len(out) < limit; i++ {
		out = append(out, m.products[ids[i]])
	}
	return out, nil
}

func (m *memProducts) GetByID(_ context.Context, id string) (*model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *memProducts) GetByIDs(_ context.Context, ids []string) ([]model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Product
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memProducts) Create(_ context.Context, p *model.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[p.ID]; ok {
		return model.ErrProductExists
	}
	m.products[p.ID] = *p
	return nil
}

func (m *memProducts) Update(_ context.Context, p *model.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[p.ID]; !ok {
		return model.ErrProductNotFound
	}
	m.products[p.ID] = *p
	return nil
}

func (m *memProducts) ReserveStock(_ context.Context, orderID uuid.UUID, id string, quantity int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return 0, model.ErrProductNotFound
	}
	if p.Stock < quantity {
		return p.Stock, model.ErrInsufficientStock
	}
	p.Stock -= quantity
	m.products[id] = p
	if m.reserved == nil {
		m.reserved = make(map[uuid.UUID][]model.StockMovement)
	}
	m.reserved[orderID] = append(m.reserved[orderID], model.StockMovement{ProductID: id, Quantity: quantity})
	return p.Stock, nil
}

func (m *memProducts) ReleaseStock(_ context.Context, orderID uuid.UUID) ([]model.StockMovement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var released []model.StockMovement
	for _, r := range m.reserved[orderID] {
		p, ok := m.products[r.ProductID]
		if !ok {
			continue
		}
		p.Stock += r.Quantity
		m.products[r.ProductID] = p
		released = append(released, model.StockMovement{ProductID: r.ProductID, Quantity: r.Quantity, Stock: p.Stock})
	}
	delete(m.reserved, orderID)
	return released, nil
}

func (m *memProducts) stock(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[id].Stock
}

// memTransactions is an in-memory TransactionRepository with the same
// conditional completion as the database.
type memTransactions struct {
	mu   sync.Mutex
	byGW map[string]model.Transaction
}

func newMemTransactions(txns ...model.Transaction) *memTransactions {
	m := &memTransactions{byGW: make(map[string]model.Transaction)}
	for _, t := range txns {
		m.byGW[t.GatewayTransactionID] = t
	}
	return m
}

func (m *memTransactions) Create(_ context.Context, t *model.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byGW[t.GatewayTransactionID]; ok {
		return model.ErrDuplicateTransaction
	}
	m.byGW[t.GatewayTransactionID] = *t
	return nil
}

func (m *memTransactions) GetByGatewayID(_ context.Context, id string) (*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byGW[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *memTransactions) CompleteIfPending(_ context.Context, id string, status model.TransactionStatus, reason *string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byGW[id]
	if !ok || t.Status != model.TransactionStatusPending {
		return false, nil
	}
	t.Status = status
	t.FailureReason = reason
	m.byGW[id] = t
	return true, nil
}

func (m *memTransactions) ListByOrder(_ context.Context, orderID uuid.UUID) ([]model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Transaction
	for _, t := range m.byGW {
		if t.OrderID == orderID {
			out = append(out, t)
		}
	}
	return out, nil
}
