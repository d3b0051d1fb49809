package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"commerceflow/internal/middleware"
	"commerceflow/internal/model"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

var customer = middleware.Identity{UserID: "user-1"}

var admin = middleware.Identity{UserID: "staff-1", Role: middleware.RoleAdmin}

// serve routes one request through a chi router holding a single route, as
// the caller identified by id.
func serve(t *testing.T, method, pattern, target string, h http.HandlerFunc, body interface{}, id middleware.Identity) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	r := chi.NewRouter()
	r.Method(method, pattern, h)

	req := httptest.NewRequest(method, target, reader)
	req = req.WithContext(middleware.WithIdentity(context.Background(), id))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) model.ErrorResponse {
	t.Helper()
	var resp model.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}
