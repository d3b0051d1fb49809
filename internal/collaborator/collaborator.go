// Package collaborator holds the synchronous calls one service makes to
// another: order amounts for payments, product prices for checkout and
// usernames for the admin order listing.
//
// HTTP implementations forward the caller's bearer credential unchanged.
// Local implementations read the repositories directly and are used when
// every service runs in one process.
package collaborator

import (
	"context"

	"commerceflow/internal/model"

	"github.com/google/uuid"
)

// OrderReader answers how much an order costs. It returns
// model.ErrOrderNotFound for unknown orders.
type OrderReader interface {
	GetOrderAmount(ctx context.Context, orderID uuid.UUID) (*model.OrderAmount, error)
}

// ProductCatalog returns prices for the given products. Unknown ids are
// left out of the result.
type ProductCatalog interface {
	GetProductPrices(ctx context.Context, ids []string) ([]model.ProductPrice, error)
}

// UserDirectory resolves user ids to usernames. Unknown ids are left out of
// the result.
type UserDirectory interface {
	GetUsers(ctx context.Context, ids []string) ([]model.User, error)
}

type bearerKey struct{}

// WithBearerToken stores the caller's raw bearer credential in ctx.
func WithBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, bearerKey{}, token)
}

// BearerToken returns the credential stored by WithBearerToken.
func BearerToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(bearerKey{}).(string)
	return token, ok && token != ""
}
