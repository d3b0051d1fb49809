package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"commerceflow/internal/model"
	"commerceflow/internal/promotion"
	"commerceflow/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// promotionService implements PromotionService.
type promotionService struct {
	promotions repository.PromotionRepository
	validator  promotion.Validator
	importer   *promotion.Importer
	now        func() time.Time
	logger     zerolog.Logger
}

// NewPromotionService creates a new promotion service. Imports read files
// through loader.
func NewPromotionService(
	promotions repository.PromotionRepository,
	validator promotion.Validator,
	loader promotion.Loader,
	logger zerolog.Logger,
) PromotionService {
	return &promotionService{
		promotions: promotions,
		validator:  validator,
		importer:   promotion.NewImporter(loader, promotions, logger),
		now:        time.Now,
		logger:     logger.With().Str("service", "promotion").Logger(),
	}
}

// Create rejects a duplicate code before anything is written.
func (s *promotionService) Create(ctx context.Context, p *model.Promotion) (*model.Promotion, error) {
	p.Code = strings.TrimSpace(p.Code)
	if err := p.Validate(); err != nil {
		return nil, err
	}

	exists, err := s.promotions.ExistsByCode(ctx, p.Code)
	if err != nil {
		return nil, fmt.Errorf("failed to check promotion code: %w", err)
	}
	if exists {
		s.logger.Warn().Str("promo_code", p.Code).Msg("promotion code already exists")
		return nil, model.ErrPromotionCodeExists
	}

	p.ID = uuid.New()
	p.TimesUsed = 0
	p.CreatedAt = s.now().UTC()

	if err := s.promotions.Create(ctx, p); err != nil {
		if errors.Is(err, model.ErrPromotionCodeExists) {
			return nil, err
		}
		s.logger.Error().Err(err).Str("promo_code", p.Code).Msg("failed to create promotion")
		return nil, fmt.Errorf("failed to create promotion: %w", err)
	}

	s.logger.Info().Str("promo_code", p.Code).Str("discount_type", string(p.DiscountType)).Msg("promotion created")
	return p, nil
}

func (s *promotionService) List(ctx context.Context) ([]model.Promotion, error) {
	promotions, err := s.promotions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list promotions: %w", err)
	}
	return promotions, nil
}

func (s *promotionService) Validate(ctx context.Context, code string, cart model.CartContext) (*model.ValidationResult, error) {
	return s.validator.Validate(ctx, strings.TrimSpace(code), cart)
}

func (s *promotionService) Import(ctx context.Context, files []string) (promotion.ImportReport, error) {
	return s.importer.Import(ctx, files)
}
