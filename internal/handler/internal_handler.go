package handler

import (
	"net/http"
	"strings"

	"commerceflow/internal/collaborator"
	"commerceflow/internal/model"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// maxLookupIDs bounds the ids accepted by one batch lookup.
const maxLookupIDs = 500

// InternalHandler serves the service-to-service lookups that the
// collaborator HTTP client calls.
type InternalHandler struct {
	orders   collaborator.OrderReader
	products collaborator.ProductCatalog
	users    collaborator.UserDirectory
	logger   zerolog.Logger
}

// NewInternalHandler creates a handler over in-process collaborators.
func NewInternalHandler(
	orders collaborator.OrderReader,
	products collaborator.ProductCatalog,
	users collaborator.UserDirectory,
	logger zerolog.Logger,
) *InternalHandler {
	return &InternalHandler{
		orders:   orders,
		products: products,
		users:    users,
		logger:   logger.With().Str("handler", "internal").Logger(),
	}
}

// OrderAmount handles GET /internal/orders/{id}/amount.
func (h *InternalHandler) OrderAmount(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	amount, err := h.orders.GetOrderAmount(r.Context(), orderID)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, amount)
}

// ProductPrices handles GET /internal/products/prices?ids=a,b.
func (h *InternalHandler) ProductPrices(w http.ResponseWriter, r *http.Request) {
	ids, err := idsQuery(r)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	prices, err := h.products.GetProductPrices(r.Context(), ids)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	if prices == nil {
		prices = []model.ProductPrice{}
	}

	writeJSON(w, http.StatusOK, prices)
}

// Users handles GET /internal/users?ids=a,b.
func (h *InternalHandler) Users(w http.ResponseWriter, r *http.Request) {
	ids, err := idsQuery(r)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	users, err := h.users.GetUsers(r.Context(), ids)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	if users == nil {
		users = []model.User{}
	}

	writeJSON(w, http.StatusOK, users)
}

func idsQuery(r *http.Request) ([]string, error) {
	ids := lo.Uniq(lo.Compact(lo.Map(strings.Split(r.URL.Query().Get("ids"), ","), func(s string, _ int) string {
		return strings.TrimSpace(s)
	})))
	if len(ids) == 0 {
		return nil, badRequest(model.ErrCodeMissingField, "ids is required")
	}
	if len(ids) > maxLookupIDs {
		return nil, badRequest(model.ErrCodeValidation, "too many ids")
	}
	return ids, nil
}
