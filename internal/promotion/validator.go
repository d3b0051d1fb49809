package promotion

import (
	"context"
	"fmt"
	"time"

	"commerceflow/internal/model"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// validator implements Validator against a Store.
type validator struct {
	store  Store
	now    func() time.Time
	logger zerolog.Logger
}

// NewValidator creates a promotion validator.
func NewValidator(store Store, logger zerolog.Logger) Validator {
	return &validator{
		store:  store,
		now:    time.Now,
		logger: logger.With().Str("component", "promotion-validator").Logger(),
	}
}

// Validate looks code up and evaluates it against cart. Rejections are
// returned as an invalid result, not an error; errors are storage failures.
func (v *validator) Validate(ctx context.Context, code string, cart model.CartContext) (*model.ValidationResult, error) {
	p, err := v.store.GetByCode(ctx, code)
	if err != nil {
		v.logger.Error().Err(err).Str("promo_code", code).Msg("failed to load promotion")
		return nil, fmt.Errorf("failed to load promotion: %w", err)
	}
	if p == nil {
		v.logger.Debug().Str("promo_code", code).Msg("promotion code not found")
		return reject("promotion code not found"), nil
	}

	result := Evaluate(p, cart, v.now())

	v.logger.Debug().
		Str("promo_code", code).
		Bool("valid", result.IsValid).
		Str("discount", result.DiscountAmount.String()).
		Str("reason", result.Message).
		Msg("promotion evaluated")

	return result, nil
}

func reject(message string) *model.ValidationResult {
	return &model.ValidationResult{IsValid: false, DiscountAmount: decimal.Zero, Message: message}
}

// Evaluate applies p's rules to cart at instant now. The active window is
// half-open: [StartsAt, EndsAt).
func Evaluate(p *model.Promotion, cart model.CartContext, now time.Time) *model.ValidationResult {
	switch {
	case !p.IsActive:
		return reject("promotion is not active")
	case now.Before(p.StartsAt) || !now.Before(p.EndsAt):
		return reject("promotion is not valid at this time")
	case p.TimesUsed >= p.UsageLimit:
		return reject("promotion usage limit reached")
	case cart.Subtotal.LessThan(p.Rules.MinimumPurchaseAmount):
		return reject(fmt.Sprintf("minimum purchase amount of %s not met", p.Rules.MinimumPurchaseAmount.StringFixed(2)))
	case !appliesToCart(p.Rules, cart):
		return reject("promotion does not apply to any item in the cart")
	case len(p.Rules.ExclusiveUserIDs) > 0 && !lo.Contains(p.Rules.ExclusiveUserIDs, cart.UserID):
		return reject("promotion is not available for this user")
	}

	discount := Discount(p, cart.Subtotal)
	return &model.ValidationResult{
		IsValid:        true,
		DiscountAmount: discount,
		Message:        "promotion applied",
	}
}

// Discount computes the discount p grants on subtotal. A fixed discount is
// its flat value whatever the subtotal; checkout caps what it applies.
func Discount(p *model.Promotion, subtotal decimal.Decimal) decimal.Decimal {
	switch p.DiscountType {
	case model.DiscountTypePercentage:
		return subtotal.Mul(p.Value).Div(hundred).Round(2)
	case model.DiscountTypeFixedAmount:
		return p.Value
	default:
		return decimal.Zero
	}
}

func appliesToCart(rules model.PromotionRules, cart model.CartContext) bool {
	if len(rules.ApplicableProductIDs) == 0 && len(rules.ApplicableCategoryIDs) == 0 {
		return true
	}
	matchesProduct := lo.ContainsBy(cart.ProductIDs, func(id string) bool {
		return lo.Contains(rules.ApplicableProductIDs, id)
	})
	matchesCategory := lo.ContainsBy(cart.CategoryIDs, func(id string) bool {
		return lo.Contains(rules.ApplicableCategoryIDs, id)
	})
	return matchesProduct || matchesCategory
}
