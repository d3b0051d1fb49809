package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"commerceflow/internal/collaborator"
	"commerceflow/internal/messaging"
	"commerceflow/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDeadLetters struct {
	letters  []messaging.StoredDeadLetter
	replayed []int64
}

func (f *fakeDeadLetters) ListDeadLetters(_ context.Context, limit int) ([]messaging.StoredDeadLetter, error) {
	return f.letters[:min(limit, len(f.letters))], nil
}

func (f *fakeDeadLetters) Replay(_ context.Context, id int64) error {
	for _, l := range f.letters {
		if l.StorageID == id {
			f.replayed = append(f.replayed, id)
			return nil
		}
	}
	return messaging.ErrDeadLetterNotFound
}

func TestAdminHandler_DeadLetters(t *testing.T) {
	store := &fakeDeadLetters{letters: []messaging.StoredDeadLetter{
		{StorageID: 7, DeadLetter: messaging.DeadLetter{Group: "search", LastError: "bulk write rejected"}},
		{StorageID: 6, DeadLetter: messaging.DeadLetter{Group: "orders", LastError: "order not found"}},
	}}
	h := NewAdminHandler(store, zerolog.Nop())

	w := serve(t, http.MethodGet, "/api/admin/dead-letters", "/api/admin/dead-letters?limit=1", h.ListDeadLetters, nil, admin)
	require.Equal(t, http.StatusOK, w.Code)
	var got []messaging.StoredDeadLetter
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, int64(7), got[0].StorageID)

	w = serve(t, http.MethodPost, "/api/admin/dead-letters/{id}/replay", "/api/admin/dead-letters/6/replay", h.Replay, nil, admin)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []int64{6}, store.replayed)

	w = serve(t, http.MethodPost, "/api/admin/dead-letters/{id}/replay", "/api/admin/dead-letters/99/replay", h.Replay, nil, admin)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(t, http.MethodPost, "/api/admin/dead-letters/{id}/replay", "/api/admin/dead-letters/x/replay", h.Replay, nil, admin)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type stubIndex struct {
	gotQuery string
	gotLimit int
	err      error
}

func (s *stubIndex) Search(_ context.Context, query string, limit int) ([]model.SearchDocument, error) {
	s.gotQuery, s.gotLimit = query, limit
	return nil, s.err
}

func TestSearchHandler_Search(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		err        error
		wantStatus int
		wantLimit  int
	}{
		{name: "default limit", target: "/api/search?q=lamp", wantStatus: http.StatusOK, wantLimit: 20},
		{name: "limit is capped", target: "/api/search?q=lamp&limit=1000", wantStatus: http.StatusOK, wantLimit: 100},
		{name: "missing query", target: "/api/search?q=%20", wantStatus: http.StatusBadRequest},
		{name: "index down", target: "/api/search?q=lamp", err: errors.New("conn refused"), wantStatus: http.StatusInternalServerError, wantLimit: 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			index := &stubIndex{err: tt.err}
			h := NewSearchHandler(index, zerolog.Nop())

			w := serve(t, http.MethodGet, "/api/search", tt.target, h.Search, nil, customer)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantLimit, index.gotLimit)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "lamp", index.gotQuery)
				assert.JSONEq(t, `[]`, w.Body.String())
			}
		})
	}
}

type stubCollaborators struct {
	amount *model.OrderAmount
	gotIDs []string
}

func (s *stubCollaborators) GetOrderAmount(_ context.Context, id uuid.UUID) (*model.OrderAmount, error) {
	if s.amount == nil || s.amount.OrderID != id {
		return nil, model.ErrOrderNotFound
	}
	return s.amount, nil
}

func (s *stubCollaborators) GetProductPrices(_ context.Context, ids []string) ([]model.ProductPrice, error) {
	s.gotIDs = ids
	return []model.ProductPrice{{ID: ids[0], Price: decimal.NewFromInt(50), VendorID: "V1"}}, nil
}

func (s *stubCollaborators) GetUsers(_ context.Context, ids []string) ([]model.User, error) {
	s.gotIDs = ids
	return nil, nil
}

func TestInternalHandler(t *testing.T) {
	orderID := uuid.New()
	stub := &stubCollaborators{amount: &model.OrderAmount{OrderID: orderID, Amount: decimal.NewFromInt(130), Currency: "USD"}}
	h := NewInternalHandler(stub, stub, stub, zerolog.Nop())

	t.Run("order amount", func(t *testing.T) {
		w := serve(t, http.MethodGet, collaborator.OrderAmountPath, "/internal/orders/"+orderID.String()+"/amount", h.OrderAmount, nil, customer)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"amount":"130"`)

		w = serve(t, http.MethodGet, collaborator.OrderAmountPath, "/internal/orders/"+uuid.NewString()+"/amount", h.OrderAmount, nil, customer)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("product prices dedupes ids", func(t *testing.T) {
		w := serve(t, http.MethodGet, collaborator.ProductPricesPath, "/internal/products/prices?ids=P1,%20P2,P1,", h.ProductPrices, nil, customer)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []string{"P1", "P2"}, stub.gotIDs)
	})

	t.Run("users without ids", func(t *testing.T) {
		w := serve(t, http.MethodGet, collaborator.UsersPath, "/internal/users", h.Users, nil, customer)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("empty user list is an array", func(t *testing.T) {
		w := serve(t, http.MethodGet, collaborator.UsersPath, "/internal/users?ids=u1", h.Users, nil, customer)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `[]`, w.Body.String())
	})
}
