package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionStatus is the state of a payment transaction.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "Pending"
	TransactionStatusSucceeded TransactionStatus = "Succeeded"
	TransactionStatusFailed    TransactionStatus = "Failed"
)

// Transaction records one payment attempt at a gateway.
type Transaction struct {
	ID                   uuid.UUID         `json:"id" db:"id"`
	OrderID              uuid.UUID         `json:"orderId" db:"order_id"`
	Amount               decimal.Decimal   `json:"amount" db:"amount"`
	Currency             string            `json:"currency" db:"currency"`
	Status               TransactionStatus `json:"status" db:"status"`
	Gateway              string            `json:"gateway" db:"gateway"`
	GatewayTransactionID string            `json:"gatewayTransactionId" db:"gateway_transaction_id"`
	FailureReason        *string           `json:"failureReason,omitempty" db:"failure_reason"`
	CreatedAt            time.Time         `json:"createdAt" db:"created_at"`
	UpdatedAt            time.Time         `json:"updatedAt" db:"updated_at"`
}

// PaymentOrder is returned when a payment is opened at a gateway.
type PaymentOrder struct {
	ApprovalURL          string `json:"approvalUrl"`
	GatewayTransactionID string `json:"gatewayTransactionId"`
}

// CaptureResult is returned by a capture attempt.
type CaptureResult struct {
	OrderID              uuid.UUID         `json:"orderId"`
	GatewayTransactionID string            `json:"gatewayTransactionId"`
	Status               TransactionStatus `json:"status"`
	Reason               string            `json:"reason,omitempty"`
}
