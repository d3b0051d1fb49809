package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"commerceflow/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const promotionColumns = `id, code, discount_type, value, usage_limit, times_used, is_active,
	starts_at, ends_at, rules, created_at`

type promotionRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPromotionRepository creates a new PostgreSQL-backed promotion repository.
func NewPromotionRepository(pool *pgxpool.Pool, logger zerolog.Logger) PromotionRepository {
	return &promotionRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "promotion").Logger(),
	}
}

func scanPromotion(row pgx.Row) (model.Promotion, error) {
	var (
		p     model.Promotion
		rules []byte
	)
	err := row.Scan(&p.ID, &p.Code, &p.DiscountType, &p.Value, &p.UsageLimit, &p.TimesUsed,
		&p.IsActive, &p.StartsAt, &p.EndsAt, &rules, &p.CreatedAt)
	if err != nil {
		return p, err
	}
	if len(rules) > 0 {
		if err := json.Unmarshal(rules, &p.Rules); err != nil {
			return p, fmt.Errorf("failed to decode promotion rules: %w", err)
		}
	}
	return p, nil
}

func (r *promotionRepository) Create(ctx context.Context, p *model.Promotion) error {
	rules, err := json.Marshal(p.Rules)
	if err != nil {
		return fmt.Errorf("failed to encode promotion rules: %w", err)
	}

	query := `
		INSERT INTO promotions (` + promotionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = r.pool.Exec(ctx, query, p.ID, p.Code, p.DiscountType, p.Value, p.UsageLimit, p.TimesUsed,
		p.IsActive, p.StartsAt, p.EndsAt, rules, p.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return model.ErrPromotionCodeExists
		}
		r.logger.Error().Err(err).Str("code", p.Code).Msg("failed to create promotion")
		return fmt.Errorf("failed to create promotion: %w", err)
	}

	r.logger.Debug().Str("code", p.Code).Msg("promotion created successfully")
	return nil
}

func (r *promotionRepository) GetByCode(ctx context.Context, code string) (*model.Promotion, error) {
	query := `SELECT ` + promotionColumns + `
		FROM promotions
		WHERE code = $1
	`

	p, err := scanPromotion(r.pool.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error().Err(err).Str("code", code).Msg("failed to query promotion")
		return nil, fmt.Errorf("failed to query promotion: %w", err)
	}
	return &p, nil
}

func (r *promotionRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM promotions WHERE code = $1)`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check promotion code: %w", err)
	}
	return exists, nil
}

// Redeem increments times_used within tx. The guard makes concurrent
// redemptions of the last use race-free.
func (r *promotionRepository) Redeem(ctx context.Context, tx pgx.Tx, code string) error {
	query := `
		UPDATE promotions
		SET times_used = times_used + 1
		WHERE code = $1 AND times_used < usage_limit
	`

	tag, err := tx.Exec(ctx, query, code)
	if err != nil {
		r.logger.Error().Err(err).Str("code", code).Msg("failed to redeem promotion")
		return fmt.Errorf("failed to redeem promotion: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM promotions WHERE code = $1)`, code).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check promotion code: %w", err)
	}
	if !exists {
		return model.ErrPromotionNotFound
	}
	return model.ErrPromotionExhausted
}

func (r *promotionRepository) List(ctx context.Context) ([]model.Promotion, error) {
	query := `SELECT ` + promotionColumns + `
		FROM promotions
		ORDER BY created_at DESC, code
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query promotions: %w", err)
	}
	defer rows.Close()

	promotions := []model.Promotion{}
	for rows.Next() {
		p, err := scanPromotion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan promotion: %w", err)
		}
		promotions = append(promotions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating promotions: %w", err)
	}
	return promotions, nil
}
