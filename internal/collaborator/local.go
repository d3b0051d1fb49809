package collaborator

import (
	"context"
	"fmt"

	"commerceflow/internal/model"
	"commerceflow/internal/repository"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// LocalOrders reads order amounts from the order repository.
type LocalOrders struct {
	orders repository.OrderRepository
}

// NewLocalOrders creates an OrderReader backed by orders.
func NewLocalOrders(orders repository.OrderRepository) *LocalOrders {
	return &LocalOrders{orders: orders}
}

func (l *LocalOrders) GetOrderAmount(ctx context.Context, orderID uuid.UUID) (*model.OrderAmount, error) {
	order, err := l.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order amount: %w", err)
	}
	if order == nil {
		return nil, model.ErrOrderNotFound
	}
	return &model.OrderAmount{OrderID: order.ID, UserID: order.UserID, Amount: order.ChargeAmount(), Currency: order.Currency}, nil
}

// LocalCatalog reads product prices from the product repository.
type LocalCatalog struct {
	products repository.ProductRepository
}

// NewLocalCatalog creates a ProductCatalog backed by products.
func NewLocalCatalog(products repository.ProductRepository) *LocalCatalog {
	return &LocalCatalog{products: products}
}

func (l *LocalCatalog) GetProductPrices(ctx context.Context, ids []string) ([]model.ProductPrice, error) {
	products, err := l.products.GetByIDs(ctx, lo.Uniq(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to get product prices: %w", err)
	}
	return lo.Map(products, func(p model.Product, _ int) model.ProductPrice {
		return model.ProductPrice{ID: p.ID, Price: p.Price, VendorID: p.VendorID, Category: p.Category}
	}), nil
}

// LocalUsers reads usernames from the user repository.
type LocalUsers struct {
	users repository.UserRepository
}

// NewLocalUsers creates a UserDirectory backed by users.
func NewLocalUsers(users repository.UserRepository) *LocalUsers {
	return &LocalUsers{users: users}
}

func (l *LocalUsers) GetUsers(ctx context.Context, ids []string) ([]model.User, error) {
	users, err := l.users.GetByIDs(ctx, lo.Uniq(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}
	return users, nil
}
