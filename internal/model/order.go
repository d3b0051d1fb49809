package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

// remember to add new statuses to validOrderStatuses
const (
	OrderStatusPending   OrderStatus = "Pending"
	OrderStatusPaid      OrderStatus = "Paid"
	OrderStatusShipped   OrderStatus = "Shipped"
	OrderStatusDelivered OrderStatus = "Delivered"
	OrderStatusCancelled OrderStatus = "Cancelled"
	OrderStatusRefunded  OrderStatus = "Refunded"
)

var validOrderStatuses = map[OrderStatus]struct{}{
	OrderStatusPending:   {},
	OrderStatusPaid:      {},
	OrderStatusShipped:   {},
	OrderStatusDelivered: {},
	OrderStatusCancelled: {},
	OrderStatusRefunded:  {},
}

// ParseOrderStatus converts s into an OrderStatus.
func ParseOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(s)
	if _, ok := validOrderStatuses[status]; ok {
		return status, nil
	}
	return "", NewDomainError(ErrCodeValidation, "invalid order status: "+s)
}

// PaymentMethod is how the customer pays for an order.
type PaymentMethod string

const (
	PaymentMethodGateway       PaymentMethod = "gateway"
	PaymentMethodPayOnDelivery PaymentMethod = "pay_on_delivery"
)

// Order represents a customer order.
type Order struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	UserID         string          `json:"userId" db:"user_id"`
	Status         OrderStatus     `json:"status" db:"status"`
	Items          []OrderItem     `json:"items"`
	TotalAmount    decimal.Decimal `json:"totalAmount" db:"total_amount"`
	Currency       string          `json:"currency" db:"currency"`
	PaymentMethod  PaymentMethod   `json:"paymentMethod" db:"payment_method"`
	ShippingCost   decimal.Decimal `json:"shippingCost" db:"shipping_cost"`
	PromotionCode  *string         `json:"promotionCode,omitempty" db:"promotion_code"`
	DiscountAmount decimal.Decimal `json:"discountAmount" db:"discount_amount"`
	Shipping       *ShippingRecord `json:"shipping,omitempty"`
	Version        int             `json:"-" db:"version"`
	CreatedAt      time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time       `json:"updatedAt" db:"updated_at"`
}

// OrderItem represents a line item in an order.
type OrderItem struct {
	ID        uuid.UUID       `json:"-" db:"id"`
	OrderID   uuid.UUID       `json:"-" db:"order_id"`
	ProductID string          `json:"productId" db:"product_id"`
	Quantity  int             `json:"quantity" db:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice" db:"unit_price"`
}

// ShippingRecord holds delivery details once an address is known.
type ShippingRecord struct {
	Address           string     `json:"address" db:"shipping_address"`
	TrackingNumber    *string    `json:"trackingNumber,omitempty" db:"tracking_number"`
	EstimatedDelivery *time.Time `json:"estimatedDelivery,omitempty" db:"estimated_delivery"`
	ShippedAt         *time.Time `json:"shippedAt,omitempty" db:"shipped_at"`
}

// ComputeTotal returns sum(price x quantity) - discount.
func ComputeTotal(items []OrderItem, discount decimal.Decimal) decimal.Decimal {
	subtotal := Subtotal(items)
	return subtotal.Sub(discount)
}

// ChargeAmount is what the customer pays: the total plus shipping.
func (o *Order) ChargeAmount() decimal.Decimal {
	return o.TotalAmount.Add(o.ShippingCost)
}

// Subtotal returns sum(price x quantity).
func Subtotal(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// CheckoutRequest represents the request payload for placing an order.
type CheckoutRequest struct {
	Items           []OrderItemRequest `json:"items"`
	Currency        string             `json:"currency"`
	PaymentMethod   PaymentMethod      `json:"paymentMethod"`
	ShippingCost    decimal.Decimal    `json:"shippingCost"`
	ShippingAddress string             `json:"shippingAddress,omitempty"`
	PromotionCode   *string            `json:"promotionCode,omitempty"`
	Gateway         string             `json:"gateway,omitempty"`
}

// OrderItemRequest represents a single item in a checkout request.
type OrderItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// CheckoutResponse is returned after a successful checkout.
type CheckoutResponse struct {
	Order   *Order        `json:"order"`
	Payment *PaymentOrder `json:"payment,omitempty"`
}

// OrderSummary is the admin listing row for an order.
type OrderSummary struct {
	ID          uuid.UUID       `json:"id"`
	UserID      string          `json:"userId"`
	Username    string          `json:"username,omitempty"`
	Status      OrderStatus     `json:"status"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Currency    string          `json:"currency"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// OrderAmount is what the payment orchestrator needs to know about an order.
type OrderAmount struct {
	OrderID  uuid.UUID       `json:"orderId"`
	UserID   string          `json:"userId"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}
