package repository

import (
	"context"
	"errors"
	"fmt"

	"commerceflow/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const transactionColumns = `id, order_id, amount, currency, status, gateway, gateway_transaction_id,
	failure_reason, created_at, updated_at`

type transactionRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewTransactionRepository creates a new PostgreSQL-backed payment transaction repository.
func NewTransactionRepository(pool *pgxpool.Pool, logger zerolog.Logger) TransactionRepository {
	return &transactionRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "transaction").Logger(),
	}
}

func scanTransaction(row pgx.Row) (model.Transaction, error) {
	var t model.Transaction
	err := row.Scan(&t.ID, &t.OrderID, &t.Amount, &t.Currency, &t.Status, &t.Gateway,
		&t.GatewayTransactionID, &t.FailureReason, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (r *transactionRepository) Create(ctx context.Context, t *model.Transaction) error {
	query := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.pool.Exec(ctx, query, t.ID, t.OrderID, t.Amount, t.Currency, t.Status, t.Gateway,
		t.GatewayTransactionID, t.FailureReason, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return model.ErrDuplicateTransaction
		}
		r.logger.Error().Err(err).Str("gateway_transaction_id", t.GatewayTransactionID).Msg("failed to create transaction")
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	r.logger.Debug().
		Str("order_id", t.OrderID.String()).
		Str("gateway_transaction_id", t.GatewayTransactionID).
		Msg("transaction created successfully")
	return nil
}

func (r *transactionRepository) GetByGatewayID(ctx context.Context, gatewayTransactionID string) (*model.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE gateway_transaction_id = $1
	`

	t, err := scanTransaction(r.pool.QueryRow(ctx, query, gatewayTransactionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error().Err(err).Str("gateway_transaction_id", gatewayTransactionID).Msg("failed to query transaction")
		return nil, fmt.Errorf("failed to query transaction: %w", err)
	}
	return &t, nil
}

func (r *transactionRepository) CompleteIfPending(ctx context.Context, gatewayTransactionID string, status model.TransactionStatus, reason *string) (bool, error) {
	query := `
		UPDATE transactions
		SET status = $2, failure_reason = $3, updated_at = NOW()
		WHERE gateway_transaction_id = $1 AND status = $4
	`

	tag, err := r.pool.Exec(ctx, query, gatewayTransactionID, status, reason, model.TransactionStatusPending)
	if err != nil {
		r.logger.Error().Err(err).Str("gateway_transaction_id", gatewayTransactionID).Msg("failed to complete transaction")
		return false, fmt.Errorf("failed to complete transaction: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *transactionRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]model.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE order_id = $1
		ORDER BY created_at
	`

	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	txns := []model.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return txns, nil
}
