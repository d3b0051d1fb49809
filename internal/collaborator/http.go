package collaborator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"commerceflow/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Paths served by the internal API. The handler package registers the same
// paths.
const (
	OrderAmountPath   = "/internal/orders/{id}/amount"
	ProductPricesPath = "/internal/products/prices"
	UsersPath         = "/internal/users"
)

// HTTPClient calls collaborator services over HTTP. One value implements
// all three collaborator interfaces; each call goes to its own base URL.
type HTTPClient struct {
	ordersURL   string
	productsURL string
	usersURL    string
	client      *http.Client
	logger      zerolog.Logger
}

// HTTPConfig configures an HTTPClient.
type HTTPConfig struct {
	OrdersURL   string
	ProductsURL string
	UsersURL    string
	Timeout     time.Duration
}

// NewHTTPClient creates a collaborator client.
func NewHTTPClient(cfg HTTPConfig, logger zerolog.Logger) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &HTTPClient{
		ordersURL:   cfg.OrdersURL,
		productsURL: cfg.ProductsURL,
		usersURL:    cfg.UsersURL,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.With().Str("component", "collaborator").Logger(),
	}
}

// GetOrderAmount calls GET /internal/orders/{id}/amount.
// 200 - the amount.
// 404 - the order does not exist.
func (c *HTTPClient) GetOrderAmount(ctx context.Context, orderID uuid.UUID) (*model.OrderAmount, error) {
	endpoint, err := url.JoinPath(c.ordersURL, "internal", "orders", orderID.String(), "amount")
	if err != nil {
		return nil, err
	}

	var amount model.OrderAmount
	status, err := c.get(ctx, endpoint, &amount)
	if err != nil {
		return nil, fmt.Errorf("failed to get order amount: %w", err)
	}

	switch status {
	case http.StatusOK:
		return &amount, nil
	case http.StatusNotFound:
		return nil, model.ErrOrderNotFound
	case http.StatusUnauthorized:
		return nil, model.ErrUnauthorized
	default:
		return nil, fmt.Errorf("failed to get order amount: unexpected status %d", status)
	}
}

// GetProductPrices calls GET /internal/products/prices?ids=a,b.
func (c *HTTPClient) GetProductPrices(ctx context.Context, ids []string) ([]model.ProductPrice, error) {
	if len(ids) == 0 {
		return []model.ProductPrice{}, nil
	}

	endpoint, err := withIDs(c.productsURL, ProductPricesPath, ids)
	if err != nil {
		return nil, err
	}

	var prices []model.ProductPrice
	status, err := c.get(ctx, endpoint, &prices)
	if err != nil {
		return nil, fmt.Errorf("failed to get product prices: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("failed to get product prices: unexpected status %d", status)
	}
	return prices, nil
}

// GetUsers calls GET /internal/users?ids=a,b.
func (c *HTTPClient) GetUsers(ctx context.Context, ids []string) ([]model.User, error) {
	if len(ids) == 0 {
		return []model.User{}, nil
	}

	endpoint, err := withIDs(c.usersURL, UsersPath, ids)
	if err != nil {
		return nil, err
	}

	var users []model.User
	status, err := c.get(ctx, endpoint, &users)
	if err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("failed to get users: unexpected status %d", status)
	}
	return users, nil
}

func withIDs(base, path string, ids []string) (string, error) {
	endpoint, err := url.JoinPath(base, path)
	if err != nil {
		return "", err
	}
	return endpoint + "?" + url.Values{"ids": {strings.Join(ids, ",")}}.Encode(), nil
}

// get sends a GET with the caller's bearer credential and decodes a 200
// answer into out.
func (c *HTTPClient) get(ctx context.Context, endpoint string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}
	if token, ok := BearerToken(ctx); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("url", endpoint).Msg("collaborator call failed")
		return 0, err
	}

	c.logger.Debug().
		Str("url", endpoint).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("collaborator call")

	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return 0, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
