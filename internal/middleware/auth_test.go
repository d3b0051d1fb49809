package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"commerceflow/internal/collaborator"

	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func mustToken(t *testing.T, secret, userID, role string, ttl time.Duration) string {
	t.Helper()
	token, err := IssueToken(secret, userID, role, ttl)
	require.NoError(t, err)
	return token
}

func TestAuth(t *testing.T) {
	valid := mustToken(t, testSecret, "user-1", "", time.Hour)

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name          string
		header        string
		wantStatus    int
		expectHandler bool
	}{
		{name: "valid token", header: "Bearer " + valid, wantStatus: http.StatusOK, expectHandler: true},
		{name: "lower-case scheme", header: "bearer " + valid, wantStatus: http.StatusOK, expectHandler: true},
		{name: "missing header", header: "", wantStatus: http.StatusUnauthorized},
		{name: "basic scheme", header: "Basic dXNlcjpwYXNz", wantStatus: http.StatusUnauthorized},
		{name: "wrong secret", header: "Bearer " + mustToken(t, "other", "user-1", "", time.Hour), wantStatus: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + mustToken(t, testSecret, "user-1", "", -time.Minute), wantStatus: http.StatusUnauthorized},
		{name: "no subject", header: "Bearer " + mustToken(t, testSecret, "", "", time.Hour), wantStatus: http.StatusUnauthorized},
		{name: "unsigned", header: "Bearer " + noneToken, wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				called    bool
				gotUser   string
				gotBearer string
			)
			handler := Auth(testSecret, zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				gotUser = UserID(r.Context())
				gotBearer, _ = collaborator.BearerToken(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.expectHandler, called)
			if tt.expectHandler {
				assert.Equal(t, "user-1", gotUser)
				assert.Equal(t, valid, gotBearer, "raw token is forwarded unchanged")
			} else {
				assert.Contains(t, w.Body.String(), "UNAUTHORIZED")
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	tests := []struct {
		name       string
		role       string
		wantStatus int
	}{
		{name: "admin", role: RoleAdmin, wantStatus: http.StatusOK},
		{name: "customer", role: "", wantStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := Auth(testSecret, zerolog.Nop())(RequireAdmin(zerolog.Nop())(
				http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }),
			))

			req := httptest.NewRequest(http.MethodPost, "/api/admin/products/reindex", nil)
			req.Header.Set("Authorization", "Bearer "+mustToken(t, testSecret, "staff", tt.role, time.Hour))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}

	t.Run("without auth", func(t *testing.T) {
		handler := RequireAdmin(zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestParseToken_ReturnsClaims(t *testing.T) {
	claims, err := ParseToken(testSecret, mustToken(t, testSecret, "user-9", RoleAdmin, time.Hour))

	require.NoError(t, err)
	assert.Equal(t, "user-9", claims.Subject)
	assert.Equal(t, RoleAdmin, claims.Role)
}
