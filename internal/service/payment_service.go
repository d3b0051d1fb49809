package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"commerceflow/internal/collaborator"
	"commerceflow/internal/contracts"
	"commerceflow/internal/gateway"
	"commerceflow/internal/messaging"
	"commerceflow/internal/model"
	"commerceflow/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// GatewayResolver finds a payment gateway by name.
type GatewayResolver interface {
	Get(name string) (gateway.Gateway, error)
}

// PaymentDeps are the collaborators of the payment service.
type PaymentDeps struct {
	Orders       collaborator.OrderReader
	Transactions repository.TransactionRepository
	Gateways     GatewayResolver
	Publisher    messaging.Publisher
	ReturnURL    string
	CancelURL    string
}

// paymentService implements PaymentService.
type paymentService struct {
	orders       collaborator.OrderReader
	transactions repository.TransactionRepository
	gateways     GatewayResolver
	publisher    messaging.Publisher
	returnURL    string
	cancelURL    string
	now          func() time.Time
	logger       zerolog.Logger
}

// NewPaymentService creates a new payment service.
func NewPaymentService(deps PaymentDeps, logger zerolog.Logger) PaymentService {
	return &paymentService{
		orders:       deps.Orders,
		transactions: deps.Transactions,
		gateways:     deps.Gateways,
		publisher:    deps.Publisher,
		returnURL:    deps.ReturnURL,
		cancelURL:    deps.CancelURL,
		now:          time.Now,
		logger:       logger.With().Str("service", "payment").Logger(),
	}
}

// CreatePaymentOrder reads the order amount from the order service and opens
// a payment for it. Nothing is stored when the order cannot be read.
func (s *paymentService) CreatePaymentOrder(ctx context.Context, userID string, orderID uuid.UUID, gatewayName string) (*model.PaymentOrder, error) {
	gw, err := s.gateways.Get(gatewayName)
	if err != nil {
		s.logger.Warn().Str("gateway", gatewayName).Msg("unknown payment gateway")
		return nil, err
	}

	amount, err := s.orders.GetOrderAmount(ctx, orderID)
	if err != nil {
		var de *model.DomainError
		if errors.As(err, &de) {
			s.logger.Warn().Err(err).Str("order_id", orderID.String()).Msg("order lookup rejected")
			return nil, err
		}
		s.logger.Error().Err(err).Str("order_id", orderID.String()).Msg("failed to read order amount")
		return nil, fmt.Errorf("failed to read order amount: %w", err)
	}
	if userID == "" || amount.UserID != userID {
		s.logger.Warn().Str("order_id", orderID.String()).Str("user_id", userID).Msg("payment requested for another user's order")
		return nil, model.ErrOrderNotFound
	}

	created, err := gw.CreateOrder(ctx, gateway.CreateOrderRequest{
		OrderID:   orderID.String(),
		Amount:    amount.Amount,
		Currency:  amount.Currency,
		ReturnURL: s.returnURL,
		CancelURL: s.cancelURL,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("order_id", orderID.String()).Str("gateway", gw.Name()).Msg("failed to create gateway order")
		return nil, fmt.Errorf("%w: %w", model.ErrGatewayFailure, err)
	}

	now := s.now().UTC()
	txn := &model.Transaction{
		ID:                   uuid.New(),
		OrderID:              orderID,
		Amount:               amount.Amount,
		Currency:             amount.Currency,
		Status:               model.TransactionStatusPending,
		Gateway:              gw.Name(),
		GatewayTransactionID: created.GatewayTransactionID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.transactions.Create(ctx, txn); err != nil {
		s.logger.Error().Err(err).Str("gateway_transaction_id", created.GatewayTransactionID).Msg("failed to store transaction")
		return nil, fmt.Errorf("failed to store transaction: %w", err)
	}

	s.logger.Info().
		Str("order_id", orderID.String()).
		Str("gateway", gw.Name()).
		Str("gateway_transaction_id", created.GatewayTransactionID).
		Str("amount", amount.Amount.String()).
		Msg("payment opened")

	return &model.PaymentOrder{
		ApprovalURL:          created.ApprovalURL,
		GatewayTransactionID: created.GatewayTransactionID,
	}, nil
}

func (s *paymentService) ListTransactions(ctx context.Context, orderID uuid.UUID) ([]model.Transaction, error) {
	txns, err := s.transactions.ListByOrder(ctx, orderID)
	if err != nil {
		s.logger.Error().Err(err).Str("order_id", orderID.String()).Msg("failed to list transactions")
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txns, nil
}

// CaptureOrder is idempotent for succeeded transactions: they are reported
// as succeeded without contacting the gateway. Only the caller whose status
// change is applied publishes the outcome message.
func (s *paymentService) CaptureOrder(ctx context.Context, gatewayTransactionID string) (*model.CaptureResult, error) {
	txn, err := s.loadTransaction(ctx, gatewayTransactionID)
	if err != nil {
		return nil, err
	}

	switch txn.Status {
	case model.TransactionStatusSucceeded:
		s.logger.Debug().Str("gateway_transaction_id", gatewayTransactionID).Msg("transaction already captured")
		return captureResult(txn), nil
	case model.TransactionStatusFailed:
		return nil, failedCapture(txn)
	}

	gw, err := s.gateways.Get(txn.Gateway)
	if err != nil {
		return nil, err
	}

	outcome, err := gw.Capture(ctx, gatewayTransactionID)
	if err != nil {
		// The transaction stays Pending so the capture can be retried.
		s.logger.Error().Err(err).Str("gateway_transaction_id", gatewayTransactionID).Msg("gateway capture call failed")
		return nil, fmt.Errorf("%w: %w", model.ErrGatewayFailure, err)
	}

	status := model.TransactionStatusSucceeded
	var reason *string
	if !outcome.Succeeded {
		status = model.TransactionStatusFailed
		reason = &outcome.Reason
	}

	applied, err := s.transactions.CompleteIfPending(ctx, gatewayTransactionID, status, reason)
	if err != nil {
		s.logger.Error().Err(err).Str("gateway_transaction_id", gatewayTransactionID).Msg("failed to complete transaction")
		return nil, fmt.Errorf("failed to complete transaction: %w", err)
	}

	if !applied {
		// A concurrent capture finished first; report what it stored.
		txn, err = s.loadTransaction(ctx, gatewayTransactionID)
		if err != nil {
			return nil, err
		}
		if txn.Status == model.TransactionStatusSucceeded {
			return captureResult(txn), nil
		}
		return nil, failedCapture(txn)
	}

	txn.Status = status
	txn.FailureReason = reason

	var msg contracts.Message = contracts.PaymentSucceeded{OrderID: txn.OrderID}
	if status == model.TransactionStatusFailed {
		msg = contracts.PaymentFailed{OrderID: txn.OrderID, Reason: outcome.Reason}
	}
	if err := s.publisher.Publish(ctx, msg); err != nil {
		s.logger.Error().Err(err).
			Str("order_id", txn.OrderID.String()).
			Str("message_type", msg.MessageType()).
			Msg("failed to publish payment outcome")
	}

	s.logger.Info().
		Str("order_id", txn.OrderID.String()).
		Str("gateway_transaction_id", gatewayTransactionID).
		Str("status", string(status)).
		Msg("payment captured")

	if status == model.TransactionStatusFailed {
		return nil, failedCapture(txn)
	}
	return captureResult(txn), nil
}

func (s *paymentService) loadTransaction(ctx context.Context, gatewayTransactionID string) (*model.Transaction, error) {
	txn, err := s.transactions.GetByGatewayID(ctx, gatewayTransactionID)
	if err != nil {
		s.logger.Error().Err(err).Str("gateway_transaction_id", gatewayTransactionID).Msg("failed to get transaction")
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	if txn == nil {
		s.logger.Warn().Str("gateway_transaction_id", gatewayTransactionID).Msg("transaction not found")
		return nil, model.ErrTransactionNotFound
	}
	return txn, nil
}

func captureResult(txn *model.Transaction) *model.CaptureResult {
	result := &model.CaptureResult{
		OrderID:              txn.OrderID,
		GatewayTransactionID: txn.GatewayTransactionID,
		Status:               txn.Status,
	}
	if txn.FailureReason != nil {
		result.Reason = *txn.FailureReason
	}
	return result
}

func failedCapture(txn *model.Transaction) error {
	reason := "capture declined"
	if txn.FailureReason != nil && *txn.FailureReason != "" {
		reason = *txn.FailureReason
	}
	return fmt.Errorf("%w: %s", model.ErrGatewayFailure, reason)
}
