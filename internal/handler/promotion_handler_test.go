package handler

import (
	"context"
	"net/http"
	"testing"

	"commerceflow/internal/model"
	"commerceflow/internal/promotion"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPromotionService struct {
	mock.Mock
}

func (m *MockPromotionService) Create(ctx context.Context, p *model.Promotion) (*model.Promotion, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Promotion), args.Error(1)
}

func (m *MockPromotionService) List(ctx context.Context) ([]model.Promotion, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.Promotion), args.Error(1)
}

func (m *MockPromotionService) Validate(ctx context.Context, code string, cart model.CartContext) (*model.ValidationResult, error) {
	args := m.Called(ctx, code, cart)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ValidationResult), args.Error(1)
}

func (m *MockPromotionService) Import(ctx context.Context, files []string) (promotion.ImportReport, error) {
	args := m.Called(ctx, files)
	return args.Get(0).(promotion.ImportReport), args.Error(1)
}

func TestPromotionHandler_Validate(t *testing.T) {
	tests := []struct {
		name   string
		result *model.ValidationResult
		want   string
	}{
		{
			name:   "percentage discount",
			result: &model.ValidationResult{IsValid: true, DiscountAmount: decimal.NewFromInt(100)},
			want:   `{"isValid":true,"discountAmount":"100","message":""}`,
		},
		{
			name:   "unknown code is not an error",
			result: &model.ValidationResult{IsValid: false, DiscountAmount: decimal.Zero, Message: "promotion not found"},
			want:   `{"isValid":false,"discountAmount":"0","message":"promotion not found"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockPromotionService{}
			svc.On("Validate", mock.Anything, "TEN", mock.MatchedBy(func(c model.CartContext) bool {
				return c.Subtotal.Equal(decimal.NewFromInt(1000)) && c.UserID == "user-1"
			})).Return(tt.result, nil)
			h := NewPromotionHandler(svc, zerolog.Nop())

			w := serve(t, http.MethodPost, "/api/promotions/validate", "/api/promotions/validate", h.Validate,
				ValidateRequest{Code: "TEN", Subtotal: decimal.NewFromInt(1000)}, customer)

			require.Equal(t, http.StatusOK, w.Code)
			assert.JSONEq(t, tt.want, w.Body.String())
		})
	}
}

func TestPromotionHandler_Create(t *testing.T) {
	svc := &MockPromotionService{}
	svc.On("Create", mock.Anything, mock.AnythingOfType("*model.Promotion")).Return(nil, model.ErrPromotionCodeExists)
	h := NewPromotionHandler(svc, zerolog.Nop())

	w := serve(t, http.MethodPost, "/api/admin/promotions", "/api/admin/promotions", h.Create,
		model.Promotion{Code: "SPRING", DiscountType: model.DiscountTypeFixedAmount, Value: decimal.NewFromInt(50)}, admin)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestPromotionHandler_Import(t *testing.T) {
	t.Run("reports counts", func(t *testing.T) {
		svc := &MockPromotionService{}
		svc.On("Import", mock.Anything, []string{"promotions/spring.csv.gz"}).
			Return(promotion.ImportReport{Loaded: 3, Created: 2, Skipped: 1}, nil)
		h := NewPromotionHandler(svc, zerolog.Nop())

		w := serve(t, http.MethodPost, "/api/admin/promotions/import", "/api/admin/promotions/import", h.Import,
			ImportRequest{Files: []string{"promotions/spring.csv.gz"}}, admin)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"loaded":3,"created":2,"skipped":1,"rejected":0}`, w.Body.String())
	})

	t.Run("no files", func(t *testing.T) {
		h := NewPromotionHandler(&MockPromotionService{}, zerolog.Nop())

		w := serve(t, http.MethodPost, "/api/admin/promotions/import", "/api/admin/promotions/import", h.Import, ImportRequest{}, admin)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
