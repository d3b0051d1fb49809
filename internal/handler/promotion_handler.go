package handler

import (
	"net/http"

	"commerceflow/internal/middleware"
	"commerceflow/internal/model"
	"commerceflow/internal/service"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// PromotionHandler handles promotion requests.
type PromotionHandler struct {
	service service.PromotionService
	logger  zerolog.Logger
}

// NewPromotionHandler creates a new promotion handler.
func NewPromotionHandler(service service.PromotionService, logger zerolog.Logger) *PromotionHandler {
	return &PromotionHandler{
		service: service,
		logger:  logger.With().Str("handler", "promotion").Logger(),
	}
}

// ValidateRequest is the body of POST /api/promotions/validate.
type ValidateRequest struct {
	Code        string          `json:"code"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	ProductIDs  []string        `json:"productIds"`
	CategoryIDs []string        `json:"categoryIds"`
}

// ImportRequest is the body of POST /api/admin/promotions/import.
type ImportRequest struct {
	Files []string `json:"files"`
}

// Validate handles POST /api/promotions/validate. An unusable code is a 200
// with isValid false.
func (h *PromotionHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	result, err := h.service.Validate(r.Context(), req.Code, model.CartContext{
		Subtotal:    req.Subtotal,
		ProductIDs:  req.ProductIDs,
		CategoryIDs: req.CategoryIDs,
		UserID:      middleware.UserID(r.Context()),
	})
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Create handles POST /api/admin/promotions.
func (h *PromotionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.Promotion
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	created, err := h.service.Create(r.Context(), &req)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// List handles GET /api/admin/promotions.
func (h *PromotionHandler) List(w http.ResponseWriter, r *http.Request) {
	promotions, err := h.service.List(r.Context())
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, promotions)
}

// Import handles POST /api/admin/promotions/import.
func (h *PromotionHandler) Import(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	if len(req.Files) == 0 {
		writeError(w, r, badRequest(model.ErrCodeMissingField, "files is required"), h.logger)
		return
	}

	report, err := h.service.Import(r.Context(), req.Files)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, report)
}
