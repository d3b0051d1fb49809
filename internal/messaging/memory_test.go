package messaging

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"commerceflow/internal/contracts"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newTestBus(maxAttempts int) *MemoryBus {
	return NewMemoryBus(Config{
		PollInterval:    5 * time.Millisecond,
		RedeliveryDelay: 0,
		MaxAttempts:     maxAttempts,
	}, zerolog.Nop())
}

func TestMemoryBus_FansOutToEveryGroup(t *testing.T) {
	ctx := context.Background()
	bus := newTestBus(5)

	var catalog, search []uuid.UUID
	require.NoError(t, bus.Subscribe(ctx, "catalog", contracts.TypeOrderCreated,
		Handle(func(_ context.Context, _ Envelope, msg contracts.OrderCreated) error {
			catalog = append(catalog, msg.OrderID)
			return nil
		})))
	require.NoError(t, bus.Subscribe(ctx, "search", contracts.TypeOrderCreated,
		Handle(func(_ context.Context, _ Envelope, msg contracts.OrderCreated) error {
			search = append(search, msg.OrderID)
			return nil
		})))

	orderID := uuid.New()
	require.NoError(t, bus.Publish(ctx, contracts.OrderCreated{OrderID: orderID, Currency: "USD"}))
	require.NoError(t, bus.Drain(ctx))

	assert.Equal(t, []uuid.UUID{orderID}, catalog)
	assert.Equal(t, []uuid.UUID{orderID}, search)
	assert.Zero(t, bus.Pending())
}

func TestMemoryBus_NoSubscribersDropsMessage(t *testing.T) {
	ctx := context.Background()
	bus := newTestBus(5)

	require.NoError(t, bus.Publish(ctx, contracts.PaymentSucceeded{OrderID: uuid.New()}))
	assert.Zero(t, bus.Pending())
}

func TestMemoryBus_RetriesThenSucceeds(t *testing.T) {
	ctx := context.Background()
	bus := newTestBus(5)

	var attempts []int
	require.NoError(t, bus.Subscribe(ctx, "orders", contracts.TypePaymentSucceeded, func(_ context.Context, env Envelope) error {
		attempts = append(attempts, env.Attempts)
		if env.Attempts < 3 {
			return errors.New("temporary failure")
		}
		return nil
	}))

	require.NoError(t, bus.Publish(ctx, contracts.PaymentSucceeded{OrderID: uuid.New()}))
	require.NoError(t, bus.Drain(ctx))

	assert.Equal(t, []int{1, 2, 3}, attempts)
	assert.Empty(t, bus.DeadLetters())
}

func TestMemoryBus_DeadLettersAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	bus := newTestBus(3)

	var calls int
	require.NoError(t, bus.Subscribe(ctx, "orders", contracts.TypePaymentFailed, func(context.Context, Envelope) error {
		calls++
		return errors.New("poison")
	}))

	require.NoError(t, bus.Publish(ctx, contracts.PaymentFailed{OrderID: uuid.New(), Reason: "declined"}))
	require.NoError(t, bus.Drain(ctx))

	assert.Equal(t, 3, calls)
	dead := bus.DeadLetters()
	require.Len(t, dead, 1)
	assert.Equal(t, "orders", dead[0].Group)
	assert.Equal(t, "poison", dead[0].LastError)
	assert.Equal(t, 3, dead[0].Attempts)
	assert.Equal(t, contracts.TypePaymentFailed, dead[0].Type)
}

func TestMemoryBus_ReplayDeadLetter(t *testing.T) {
	ctx := context.Background()
	bus := newTestBus(1)

	var healthy atomic.Bool
	var processed []uuid.UUID
	require.NoError(t, bus.Subscribe(ctx, "orders", contracts.TypePaymentFailed, func(_ context.Context, env Envelope) error {
		if !healthy.Load() {
			return errors.New("database down")
		}
		processed = append(processed, env.ID)
		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx, "audit", contracts.TypePaymentFailed, func(context.Context, Envelope) error {
		return nil
	}))

	require.NoError(t, bus.Publish(ctx, contracts.PaymentFailed{OrderID: uuid.New(), Reason: "declined"}))
	require.NoError(t, bus.Drain(ctx))

	stored, err := bus.ListDeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "orders", stored[0].Group)

	healthy.Store(true)
	require.NoError(t, bus.Replay(ctx, stored[0].StorageID))
	assert.Equal(t, 1, bus.Pending(), "only the dead group is queued again")
	require.NoError(t, bus.Drain(ctx))

	assert.Equal(t, []uuid.UUID{stored[0].ID}, processed)
	assert.Empty(t, bus.DeadLetters())
	assert.ErrorIs(t, bus.Replay(ctx, stored[0].StorageID), ErrDeadLetterNotFound)
}

func TestMemoryBus_DeadLetterStoredOncePerGroup(t *testing.T) {
	ctx := context.Background()
	bus := newTestBus(1)

	dl := DeadLetter{Envelope: Envelope{ID: uuid.New(), Type: contracts.TypeProductsReindexRequested}, Group: "search"}
	require.NoError(t, bus.DeadLetter(ctx, dl))
	require.NoError(t, bus.DeadLetter(ctx, dl))

	assert.Len(t, bus.DeadLetters(), 1)
}

func TestMemoryBus_PanicIsTreatedAsFailure(t *testing.T) {
	ctx := context.Background()
	bus := newTestBus(1)

	require.NoError(t, bus.Subscribe(ctx, "orders", contracts.TypeOrderShipped, func(context.Context, Envelope) error {
		panic("boom")
	}))

	require.NoError(t, bus.Publish(ctx, contracts.OrderShipped{OrderID: uuid.New()}))
	require.NoError(t, bus.Drain(ctx))

	dead := bus.DeadLetters()
	require.Len(t, dead, 1)
	assert.Contains(t, dead[0].LastError, "boom")
}

func TestMemoryBus_UndecodablePayloadIsDeadLettered(t *testing.T) {
	ctx := context.Background()
	bus := newTestBus(2)

	require.NoError(t, bus.Subscribe(ctx, "orders", contracts.TypePaymentSucceeded,
		Handle(func(context.Context, Envelope, contracts.PaymentSucceeded) error { return nil })))

	bus.Redeliver(Envelope{ID: uuid.New(), Type: contracts.TypePaymentSucceeded, Payload: []byte(`{"orderId": 42}`)})
	require.NoError(t, bus.Drain(ctx))

	assert.Len(t, bus.DeadLetters(), 1)
}

func TestMemoryBus_HandlerCanPublish(t *testing.T) {
	ctx := context.Background()
	bus := newTestBus(5)

	var shipped atomic.Int32
	require.NoError(t, bus.Subscribe(ctx, "orders", contracts.TypePaymentSucceeded,
		Handle(func(ctx context.Context, _ Envelope, msg contracts.PaymentSucceeded) error {
			return bus.Publish(ctx, contracts.OrderShipped{OrderID: msg.OrderID})
		})))
	require.NoError(t, bus.Subscribe(ctx, "notifications", contracts.TypeOrderShipped, func(context.Context, Envelope) error {
		shipped.Add(1)
		return nil
	}))

	require.NoError(t, bus.Publish(ctx, contracts.PaymentSucceeded{OrderID: uuid.New()}))
	require.NoError(t, bus.Drain(ctx))

	assert.Equal(t, int32(1), shipped.Load())
}

func TestMemoryBus_RunDispatchesUntilCancelled(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithCancel(context.Background())
	bus := newTestBus(5)

	delivered := make(chan uuid.UUID, 1)
	require.NoError(t, bus.Subscribe(ctx, "orders", contracts.TypePaymentSucceeded,
		Handle(func(_ context.Context, _ Envelope, msg contracts.PaymentSucceeded) error {
			delivered <- msg.OrderID
			return nil
		})))

	done := make(chan error, 1)
	go func() { done <- bus.Run(ctx) }()

	orderID := uuid.New()
	require.NoError(t, bus.Publish(ctx, contracts.PaymentSucceeded{OrderID: orderID}))

	select {
	case got := <-delivered:
		assert.Equal(t, orderID, got)
	case <-time.After(2 * time.Second):
		t.Fatal("message was not delivered")
	}

	cancel()
	require.NoError(t, <-done)
}
