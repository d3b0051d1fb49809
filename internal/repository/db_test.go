package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"commerceflow/internal/database/dbtest"
	"commerceflow/internal/model"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeProduct(stock int) *model.Product {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &model.Product{
		ID:          gofakeit.UUID(),
		Name:        gofakeit.ProductName(),
		Description: gofakeit.ProductDescription(),
		Price:       decimal.NewFromFloat(gofakeit.Price(1, 500)).Round(2),
		Category:    gofakeit.ProductCategory(),
		VendorID:    gofakeit.UUID(),
		Stock:       stock,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func fakeOrder(items ...model.OrderItem) *model.Order {
	now := time.Now().UTC().Truncate(time.Microsecond)
	id := uuid.New()
	for i := range items {
		items[i].ID = uuid.New()
		items[i].OrderID = id
	}
	return &model.Order{
		ID:             id,
		UserID:         gofakeit.UUID(),
		Status:         model.OrderStatusPending,
		Items:          items,
		TotalAmount:    model.ComputeTotal(items, decimal.Zero),
		Currency:       "USD",
		PaymentMethod:  model.PaymentMethodGateway,
		ShippingCost:   decimal.Zero,
		DiscountAmount: decimal.Zero,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestWithTx(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	repo := NewOrderRepository(db.Pool, zerolog.Nop())

	t.Run("commits when fn succeeds", func(t *testing.T) {
		order := fakeOrder(model.OrderItem{ProductID: "p1", Quantity: 1, UnitPrice: decimal.NewFromInt(10)})

		err := WithTx(ctx, repo, func(tx pgx.Tx) error {
			return repo.CreateOrder(ctx, tx, order)
		})
		require.NoError(t, err)

		got, err := repo.GetByID(ctx, order.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
	})

	t.Run("rolls back when fn fails", func(t *testing.T) {
		order := fakeOrder()
		boom := errors.New("boom")

		err := WithTx(ctx, repo, func(tx pgx.Tx) error {
			if err := repo.CreateOrder(ctx, tx, order); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		got, err := repo.GetByID(ctx, order.ID)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}
