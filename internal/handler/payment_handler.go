package handler

import (
	"net/http"
	"net/url"

	"commerceflow/internal/middleware"
	"commerceflow/internal/model"
	"commerceflow/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PaymentHandler handles payment orchestration requests and the gateway
// redirect views.
type PaymentHandler struct {
	service        service.PaymentService
	defaultGateway string
	successURL     string
	failureURL     string
	logger         zerolog.Logger
}

// PaymentViews are the pages a buyer lands on after approving a payment at
// the gateway.
type PaymentViews struct {
	SuccessURL string
	FailureURL string
}

// NewPaymentHandler creates a new payment handler.
func NewPaymentHandler(service service.PaymentService, defaultGateway string, views PaymentViews, logger zerolog.Logger) *PaymentHandler {
	return &PaymentHandler{
		service:        service,
		defaultGateway: defaultGateway,
		successURL:     views.SuccessURL,
		failureURL:     views.FailureURL,
		logger:         logger.With().Str("handler", "payment").Logger(),
	}
}

// CreatePaymentRequest is the body of POST /api/payments.
type CreatePaymentRequest struct {
	OrderID uuid.UUID `json:"orderId"`
	Gateway string    `json:"gateway,omitempty"`
}

// Create handles POST /api/payments.
func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	if req.OrderID == uuid.Nil {
		writeError(w, r, badRequest(model.ErrCodeMissingField, "orderId is required"), h.logger)
		return
	}
	if req.Gateway == "" {
		req.Gateway = h.defaultGateway
	}

	payment, err := h.service.CreatePaymentOrder(r.Context(), middleware.UserID(r.Context()), req.OrderID, req.Gateway)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, payment)
}

// Capture handles POST /api/payments/{gatewayTransactionId}/capture.
func (h *PaymentHandler) Capture(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.CaptureOrder(r.Context(), chi.URLParam(r, "gatewayTransactionId"))
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Transactions handles GET /api/admin/orders/{id}/transactions.
func (h *PaymentHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	txns, err := h.service.ListTransactions(r.Context(), orderID)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, txns)
}

// Return handles GET /payments/return?token=..., the URL the gateway sends
// the buyer back to after approval. The payment is captured and the buyer is
// redirected to the success or failure view.
func (h *PaymentHandler) Return(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, r, badRequest(model.ErrCodeMissingField, "token is required"), h.logger)
		return
	}

	result, err := h.service.CaptureOrder(r.Context(), token)
	if err != nil {
		h.logger.Warn().Err(err).Str("gateway_transaction_id", token).Msg("capture on return failed")
		http.Redirect(w, r, withQuery(h.failureURL, "token", token), http.StatusSeeOther)
		return
	}

	http.Redirect(w, r, withQuery(h.successURL, "orderId", result.OrderID.String()), http.StatusSeeOther)
}

// Success handles GET /payments/success.
func (h *PaymentHandler) Success(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"orderId": r.URL.Query().Get("orderId"),
		"message": "payment captured",
	})
}

// Failure handles GET /payments/failure.
func (h *PaymentHandler) Failure(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "failure",
		"token":   r.URL.Query().Get("token"),
		"message": "payment was not completed",
	})
}

func withQuery(base, key, value string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
