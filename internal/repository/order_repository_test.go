package repository

import (
	"context"
	"testing"
	"time"

	"commerceflow/internal/database/dbtest"
	"commerceflow/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createOrder(t *testing.T, repo OrderRepository, order *model.Order) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, WithTx(ctx, repo, func(tx pgx.Tx) error {
		return repo.CreateOrder(ctx, tx, order)
	}))
}

func TestOrderRepository(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	repo := NewOrderRepository(db.Pool, zerolog.Nop())

	t.Run("create and get with items", func(t *testing.T) {
		code := "SAVE10"
		order := fakeOrder(
			model.OrderItem{ProductID: "a", Quantity: 2, UnitPrice: decimal.NewFromInt(50)},
			model.OrderItem{ProductID: "b", Quantity: 1, UnitPrice: decimal.NewFromInt(30)},
		)
		order.PromotionCode = &code
		order.Shipping = &model.ShippingRecord{Address: "1 Main St"}
		createOrder(t, repo, order)

		got, err := repo.GetByID(ctx, order.ID)
		require.NoError(t, err)
		require.NotNil(t, got)

		assert.Equal(t, order.UserID, got.UserID)
		assert.Equal(t, model.OrderStatusPending, got.Status)
		assert.Equal(t, "130", got.TotalAmount.String())
		assert.Equal(t, &code, got.PromotionCode)
		require.NotNil(t, got.Shipping)
		assert.Equal(t, "1 Main St", got.Shipping.Address)
		assert.Nil(t, got.Shipping.TrackingNumber)
		require.Len(t, got.Items, 2)
		assert.Equal(t, "a", got.Items[0].ProductID)
		assert.Equal(t, 2, got.Items[0].Quantity)
		assert.Equal(t, 1, got.Version)
	})

	t.Run("get missing order returns nil", func(t *testing.T) {
		got, err := repo.GetByID(ctx, uuid.New())
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("update bumps version and stores shipping", func(t *testing.T) {
		order := fakeOrder(model.OrderItem{ProductID: "a", Quantity: 1, UnitPrice: decimal.NewFromInt(5)})
		createOrder(t, repo, order)

		now := time.Now().UTC().Truncate(time.Microsecond)
		tracking := "TRK-1"
		order.Status = model.OrderStatusShipped
		order.Shipping = &model.ShippingRecord{Address: "2 Side St", TrackingNumber: &tracking, ShippedAt: &now}
		order.UpdatedAt = now
		require.NoError(t, repo.Update(ctx, order))
		assert.Equal(t, 2, order.Version)

		got, err := repo.GetByID(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, model.OrderStatusShipped, got.Status)
		assert.Equal(t, &tracking, got.Shipping.TrackingNumber)
		assert.WithinDuration(t, now, *got.Shipping.ShippedAt, time.Millisecond)
		assert.Equal(t, 2, got.Version)
	})

	t.Run("stale version is a concurrent update", func(t *testing.T) {
		order := fakeOrder()
		createOrder(t, repo, order)

		first, err := repo.GetByID(ctx, order.ID)
		require.NoError(t, err)
		second, err := repo.GetByID(ctx, order.ID)
		require.NoError(t, err)

		first.Status = model.OrderStatusPaid
		require.NoError(t, repo.Update(ctx, first))

		second.Status = model.OrderStatusCancelled
		assert.ErrorIs(t, repo.Update(ctx, second), model.ErrConcurrentUpdate)

		got, err := repo.GetByID(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, model.OrderStatusPaid, got.Status)
	})

	t.Run("list newest first", func(t *testing.T) {
		db.Truncate(t, "orders")
		older := fakeOrder()
		older.CreatedAt = older.CreatedAt.Add(-time.Hour)
		newer := fakeOrder()
		createOrder(t, repo, older)
		createOrder(t, repo, newer)

		orders, err := repo.List(ctx, 10, 0)
		require.NoError(t, err)
		require.Len(t, orders, 2)
		assert.Equal(t, newer.ID, orders[0].ID)
		assert.Equal(t, older.ID, orders[1].ID)
	})
}
