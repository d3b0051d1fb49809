package model

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrder(status OrderStatus, method PaymentMethod, address string) *Order {
	o := &Order{
		Status:        status,
		PaymentMethod: method,
		Currency:      "USD",
	}
	if address != "" {
		o.Shipping = &ShippingRecord{Address: address}
	}
	return o
}

func TestComputeTotal(t *testing.T) {
	items := []OrderItem{
		{ProductID: "P001", Quantity: 2, UnitPrice: decimal.NewFromInt(50)},
		{ProductID: "P002", Quantity: 1, UnitPrice: decimal.NewFromInt(30)},
	}

	assert.True(t, decimal.NewFromInt(130).Equal(ComputeTotal(items, decimal.Zero)))
	assert.True(t, decimal.NewFromInt(117).Equal(ComputeTotal(items, decimal.NewFromInt(13))))
	assert.True(t, decimal.NewFromInt(130).Equal(Subtotal(items)))
}

func TestOrder_MarkPaid(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name        string
		status      OrderStatus
		wantChanged bool
		wantStatus  OrderStatus
	}{
		{name: "Pending becomes Paid", status: OrderStatusPending, wantChanged: true, wantStatus: OrderStatusPaid},
		{name: "Duplicate delivery on Paid is a no-op", status: OrderStatusPaid, wantChanged: false, wantStatus: OrderStatusPaid},
		{name: "Shipped stays Shipped", status: OrderStatusShipped, wantChanged: false, wantStatus: OrderStatusShipped},
		{name: "Cancelled stays Cancelled", status: OrderStatusCancelled, wantChanged: false, wantStatus: OrderStatusCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newTestOrder(tt.status, PaymentMethodGateway, "")
			changed := o.MarkPaid(now)
			assert.Equal(t, tt.wantChanged, changed)
			assert.Equal(t, tt.wantStatus, o.Status)
		})
	}
}

func TestOrder_Ship(t *testing.T) {
	now := time.Now()
	eta := now.Add(72 * time.Hour)

	tests := []struct {
		name      string
		order     *Order
		expectErr error
	}{
		{
			name:  "Paid with address",
			order: newTestOrder(OrderStatusPaid, PaymentMethodGateway, "1 Main St"),
		},
		{
			name:  "Pending pay on delivery with address",
			order: newTestOrder(OrderStatusPending, PaymentMethodPayOnDelivery, "1 Main St"),
		},
		{
			name:      "Pending gateway payment",
			order:     newTestOrder(OrderStatusPending, PaymentMethodGateway, "1 Main St"),
			expectErr: ErrOrderNotShippable,
		},
		{
			name:      "Paid without shipping record",
			order:     newTestOrder(OrderStatusPaid, PaymentMethodGateway, ""),
			expectErr: ErrMissingShipping,
		},
		{
			name: "Paid with blank address",
			order: func() *Order {
				o := newTestOrder(OrderStatusPaid, PaymentMethodGateway, "")
				o.Shipping = &ShippingRecord{Address: "   "}
				return o
			}(),
			expectErr: ErrMissingShipping,
		},
		{
			name:      "Cancelled",
			order:     newTestOrder(OrderStatusCancelled, PaymentMethodPayOnDelivery, "1 Main St"),
			expectErr: ErrOrderNotShippable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tt.order.Status
			err := tt.order.Ship("TRK-1", now, eta)

			if tt.expectErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.expectErr))
				assert.True(t, errors.Is(err, ErrInvalidOperation))
				assert.Equal(t, before, tt.order.Status)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, OrderStatusShipped, tt.order.Status)
			require.NotNil(t, tt.order.Shipping.TrackingNumber)
			assert.Equal(t, "TRK-1", *tt.order.Shipping.TrackingNumber)
			assert.Equal(t, eta, *tt.order.Shipping.EstimatedDelivery)
		})
	}
}

func TestOrder_Cancel(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name        string
		status      OrderStatus
		wantChanged bool
		expectErr   bool
		wantStatus  OrderStatus
	}{
		{name: "Pending", status: OrderStatusPending, wantChanged: true, wantStatus: OrderStatusCancelled},
		{name: "Paid", status: OrderStatusPaid, wantChanged: true, wantStatus: OrderStatusCancelled},
		{name: "Already cancelled is a no-op", status: OrderStatusCancelled, wantChanged: false, wantStatus: OrderStatusCancelled},
		{name: "Shipped fails", status: OrderStatusShipped, expectErr: true, wantStatus: OrderStatusShipped},
		{name: "Delivered fails", status: OrderStatusDelivered, expectErr: true, wantStatus: OrderStatusDelivered},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newTestOrder(tt.status, PaymentMethodGateway, "")
			changed, err := o.Cancel(now)

			if tt.expectErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidOperation))
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantChanged, changed)
			assert.Equal(t, tt.wantStatus, o.Status)
		})
	}
}

func TestOrder_SetShippingAddress(t *testing.T) {
	now := time.Now()

	o := newTestOrder(OrderStatusPaid, PaymentMethodGateway, "")
	require.NoError(t, o.SetShippingAddress(" 42 Harbour Rd ", now))
	assert.Equal(t, "42 Harbour Rd", o.Shipping.Address)

	err := o.SetShippingAddress("", now)
	require.Error(t, err)
	assert.Equal(t, ErrCodeValidation, ErrorCode(err))

	shipped := newTestOrder(OrderStatusShipped, PaymentMethodGateway, "old")
	assert.ErrorIs(t, shipped.SetShippingAddress("new", now), ErrShippingLocked)
	assert.Equal(t, "old", shipped.Shipping.Address)
}

func TestOrder_OverrideStatus(t *testing.T) {
	o := newTestOrder(OrderStatusDelivered, PaymentMethodGateway, "")
	o.OverrideStatus(OrderStatusPending, time.Now())
	assert.Equal(t, OrderStatusPending, o.Status)
}

func TestParseOrderStatus(t *testing.T) {
	status, err := ParseOrderStatus("Shipped")
	require.NoError(t, err)
	assert.Equal(t, OrderStatusShipped, status)

	_, err = ParseOrderStatus("Lost")
	require.Error(t, err)
}

func TestNormalizeCurrency(t *testing.T) {
	code, err := NormalizeCurrency("eur")
	require.NoError(t, err)
	assert.Equal(t, "EUR", code)

	code, err = NormalizeCurrency("")
	require.NoError(t, err)
	assert.Equal(t, DefaultCurrency, code)

	_, err = NormalizeCurrency("XYZQ")
	require.Error(t, err)
}

func TestDomainError_IsByCode(t *testing.T) {
	assert.ErrorIs(t, ErrOrderNotFound, ErrNotFound)
	assert.ErrorIs(t, ErrPromotionCodeExists, ErrConflict)
	assert.NotErrorIs(t, ErrOrderNotFound, ErrConflict)
	assert.Equal(t, ErrCodeNotFound, ErrorCode(ErrTransactionNotFound))
	assert.Equal(t, ErrCodeInternalError, ErrorCode(errors.New("boom")))
}
