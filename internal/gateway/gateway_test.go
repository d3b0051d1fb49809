package gateway

import (
	"context"
	"strings"
	"testing"

	"commerceflow/internal/model"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	sandbox := NewSandbox(zerolog.Nop())
	rest := NewRESTGateway(RESTConfig{Name: "paypal"}, zerolog.Nop())
	registry := NewRegistry(sandbox, rest)

	gw, err := registry.Get("sandbox")
	require.NoError(t, err)
	assert.Same(t, sandbox, gw)

	_, err = registry.Get("stripe")
	assert.ErrorIs(t, err, model.ErrGatewayNotFound)
	assert.ErrorIs(t, err, model.ErrNotFound)

	assert.Equal(t, []string{"paypal", "sandbox"}, registry.Names())
}

func TestSandbox(t *testing.T) {
	ctx := context.Background()
	sandbox := NewSandbox(zerolog.Nop())

	created, err := sandbox.CreateOrder(ctx, CreateOrderRequest{
		OrderID:   "o1",
		Amount:    decimal.NewFromInt(10),
		Currency:  "USD",
		ReturnURL: "http://localhost/payments/return",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(created.GatewayTransactionID, "SBX-"))
	assert.Equal(t, "http://localhost/payments/return?token="+created.GatewayTransactionID, created.ApprovalURL)

	outcome, err := sandbox.Capture(ctx, created.GatewayTransactionID)
	require.NoError(t, err)
	assert.True(t, outcome.Succeeded)

	sandbox.Decline(created.GatewayTransactionID, "INSTRUMENT_DECLINED")
	outcome, err = sandbox.Capture(ctx, created.GatewayTransactionID)
	require.NoError(t, err)
	assert.False(t, outcome.Succeeded)
	assert.Equal(t, "INSTRUMENT_DECLINED", outcome.Reason)

	outcome, err = sandbox.Capture(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, outcome.Succeeded)

	assert.Equal(t, 2, sandbox.Captures(created.GatewayTransactionID))
}
