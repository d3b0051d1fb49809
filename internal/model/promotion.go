package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DiscountType selects how a promotion value is applied.
type DiscountType string

const (
	DiscountTypePercentage  DiscountType = "percentage"
	DiscountTypeFixedAmount DiscountType = "fixed_amount"
)

// PromotionRules is persisted as a JSON blob next to the promotion.
type PromotionRules struct {
	MinimumPurchaseAmount decimal.Decimal `json:"minimumPurchaseAmount"`
	ApplicableProductIDs  []string        `json:"applicableProductIds,omitempty"`
	ApplicableCategoryIDs []string        `json:"applicableCategoryIds,omitempty"`
	ExclusiveUserIDs      []string        `json:"exclusiveUserIds,omitempty"`
}

// Promotion is a discount code.
type Promotion struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	Code         string          `json:"code" db:"code"`
	DiscountType DiscountType    `json:"discountType" db:"discount_type"`
	Value        decimal.Decimal `json:"value" db:"value"`
	UsageLimit   int             `json:"usageLimit" db:"usage_limit"`
	TimesUsed    int             `json:"timesUsed" db:"times_used"`
	IsActive     bool            `json:"isActive" db:"is_active"`
	StartsAt     time.Time       `json:"startsAt" db:"starts_at"`
	EndsAt       time.Time       `json:"endsAt" db:"ends_at"`
	Rules        PromotionRules  `json:"rules" db:"rules"`
	CreatedAt    time.Time       `json:"createdAt" db:"created_at"`
}

// Validate checks an admin-supplied promotion.
func (p *Promotion) Validate() error {
	verr := &ValidationError{}
	if p.Code == "" {
		verr.Add("code", "is required")
	}
	switch p.DiscountType {
	case DiscountTypePercentage:
		if p.Value.GreaterThan(decimal.NewFromInt(100)) {
			verr.Add("value", "percentage must not exceed 100")
		}
	case DiscountTypeFixedAmount:
	default:
		verr.Add("discountType", "must be percentage or fixed_amount")
	}
	if !p.Value.IsPositive() {
		verr.Add("value", "must be greater than zero")
	}
	if p.UsageLimit < 1 {
		verr.Add("usageLimit", "must be at least 1")
	}
	if !p.EndsAt.After(p.StartsAt) {
		verr.Add("endsAt", "must be after startsAt")
	}
	if p.Rules.MinimumPurchaseAmount.IsNegative() {
		verr.Add("rules.minimumPurchaseAmount", "must not be negative")
	}
	return verr.OrNil()
}

// CartContext is the cart state a promotion is evaluated against.
type CartContext struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	ProductIDs  []string        `json:"productIds"`
	CategoryIDs []string        `json:"categoryIds"`
	UserID      string          `json:"userId,omitempty"`
}

// ValidationResult is the outcome of evaluating a promotion code.
type ValidationResult struct {
	IsValid        bool            `json:"isValid"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	Message        string          `json:"message"`
}
