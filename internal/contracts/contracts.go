// Package contracts holds the message payloads exchanged between services.
//
// JSON field names are part of the wire contract. A breaking change gets a new
// type name with a bumped version suffix instead of editing an existing struct.
package contracts

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Message types.
const (
	TypeOrderCreated             = "order.created.v1"
	TypeOrderCancelled           = "order.cancelled.v1"
	TypeOrderShipped             = "order.shipped.v1"
	TypePaymentSucceeded         = "payment.succeeded.v1"
	TypePaymentFailed            = "payment.failed.v1"
	TypeProductCreated           = "product.created.v1"
	TypeProductUpdated           = "product.updated.v1"
	TypeProductsReindexRequested = "products.reindex_requested.v1"
)

// Message is implemented by every payload that can be published.
type Message interface {
	MessageType() string
}

// LineItem is an order line as carried by order messages.
type LineItem struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// OrderCreated is published by the order service after checkout.
type OrderCreated struct {
	OrderID     uuid.UUID       `json:"orderId"`
	UserID      string          `json:"userId"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Currency    string          `json:"currency"`
	Items       []LineItem      `json:"items"`
}

// OrderCancelled carries the original items so consumers can compensate.
type OrderCancelled struct {
	OrderID uuid.UUID  `json:"orderId"`
	UserID  string     `json:"userId"`
	Items   []LineItem `json:"items"`
}

// OrderShipped is published when an order leaves the warehouse.
type OrderShipped struct {
	OrderID        uuid.UUID `json:"orderId"`
	UserID         string    `json:"userId"`
	TrackingNumber string    `json:"trackingNumber"`
	ShippedAt      time.Time `json:"shippedAt"`
}

// PaymentSucceeded is published once per successfully captured transaction.
type PaymentSucceeded struct {
	OrderID uuid.UUID `json:"orderId"`
}

// PaymentFailed is published when the gateway rejects a capture.
type PaymentFailed struct {
	OrderID uuid.UUID `json:"orderId"`
	Reason  string    `json:"reason"`
}

// ProductSnapshot is the product projection shared by catalog messages.
type ProductSnapshot struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    *string         `json:"imageUrl"`
}

// ProductCreated is published by the catalog when a product is added.
type ProductCreated struct {
	ProductSnapshot
}

// ProductUpdated is published by the catalog when a product changes.
type ProductUpdated struct {
	ProductSnapshot
}

// ProductsReindexRequested carries the full product list to rebuild the search index from.
type ProductsReindexRequested struct {
	Products []ProductSnapshot `json:"products"`
}

func (OrderCreated) MessageType() string             { return TypeOrderCreated }
func (OrderCancelled) MessageType() string           { return TypeOrderCancelled }
func (OrderShipped) MessageType() string             { return TypeOrderShipped }
func (PaymentSucceeded) MessageType() string         { return TypePaymentSucceeded }
func (PaymentFailed) MessageType() string            { return TypePaymentFailed }
func (ProductCreated) MessageType() string           { return TypeProductCreated }
func (ProductUpdated) MessageType() string           { return TypeProductUpdated }
func (ProductsReindexRequested) MessageType() string { return TypeProductsReindexRequested }

// Encode serialises a message payload.
func Encode(msg Message) (json.RawMessage, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", msg.MessageType(), err)
	}
	return payload, nil
}

// Decode deserialises a payload into the message type T.
func Decode[T Message](payload []byte) (T, error) {
	var msg T
	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, fmt.Errorf("failed to decode %s: %w", msg.MessageType(), err)
	}
	return msg, nil
}
