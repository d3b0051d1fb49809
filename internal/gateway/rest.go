package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// tokenExpirySlack renews the access token a little before the provider expires it.
const tokenExpirySlack = 30 * time.Second

// RESTConfig configures a RESTGateway.
type RESTConfig struct {
	Name         string
	BaseURL      string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// RESTGateway is a client for checkout-orders style REST payment APIs:
// client-credentials OAuth, then create and capture calls carrying the
// access token as a bearer credential.
type RESTGateway struct {
	cfg    RESTConfig
	client *http.Client
	now    func() time.Time
	logger zerolog.Logger

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewRESTGateway creates a REST gateway client.
func NewRESTGateway(cfg RESTConfig, logger zerolog.Logger) *RESTGateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &RESTGateway{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		now:    time.Now,
		logger: logger.With().Str("component", "gateway").Str("gateway", cfg.Name).Logger(),
	}
}

// Name returns the configured gateway name.
func (g *RESTGateway) Name() string {
	return g.cfg.Name
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type amount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type purchaseUnit struct {
	ReferenceID string `json:"reference_id"`
	Amount      amount `json:"amount"`
}

type applicationContext struct {
	ReturnURL string `json:"return_url"`
	CancelURL string `json:"cancel_url"`
}

type createOrderBody struct {
	Intent             string             `json:"intent"`
	PurchaseUnits      []purchaseUnit     `json:"purchase_units"`
	ApplicationContext applicationContext `json:"application_context"`
}

type link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type orderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []link `json:"links"`
}

type errorResponse struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Details []struct {
		Issue       string `json:"issue"`
		Description string `json:"description"`
	} `json:"details"`
}

func (e errorResponse) reason() string {
	if len(e.Details) > 0 && e.Details[0].Issue != "" {
		return e.Details[0].Issue
	}
	if e.Name != "" {
		return e.Name
	}
	return e.Message
}

// CreateOrder opens a payment and returns the approval link the customer
// must visit.
func (g *RESTGateway) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreatedOrder, error) {
	body := createOrderBody{
		Intent: "CAPTURE",
		PurchaseUnits: []purchaseUnit{{
			ReferenceID: req.OrderID,
			Amount: amount{
				CurrencyCode: req.Currency,
				Value:        req.Amount.StringFixed(2),
			},
		}},
		ApplicationContext: applicationContext{
			ReturnURL: req.ReturnURL,
			CancelURL: req.CancelURL,
		},
	}

	var created orderResponse
	status, err := g.call(ctx, http.MethodPost, []string{"v2", "checkout", "orders"}, body, &created)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return nil, fmt.Errorf("failed to create gateway order: unexpected status %d", status)
	}

	approval, ok := lo.Find(created.Links, func(l link) bool {
		return l.Rel == "approve" || l.Rel == "payer-action"
	})
	if !ok {
		return nil, fmt.Errorf("failed to create gateway order: response for %s has no approval link", created.ID)
	}

	g.logger.Info().
		Str("order_id", req.OrderID).
		Str("gateway_transaction_id", created.ID).
		Msg("gateway order created")

	return &CreatedOrder{GatewayTransactionID: created.ID, ApprovalURL: approval.Href}, nil
}

// Capture captures an approved payment.
// 201 - captured, the order status tells whether it completed.
// 422 - the provider declined the capture.
// anything else is treated as a transport failure.
func (g *RESTGateway) Capture(ctx context.Context, gatewayTransactionID string) (*CaptureOutcome, error) {
	var captured orderResponse
	var declined errorResponse

	status, err := g.call(ctx, http.MethodPost, []string{"v2", "checkout", "orders", gatewayTransactionID, "capture"}, struct{}{}, &captured, &declined)
	if err != nil {
		return nil, err
	}

	switch status {
	case http.StatusOK, http.StatusCreated:
		if captured.Status == "COMPLETED" {
			return &CaptureOutcome{Succeeded: true}, nil
		}
		return &CaptureOutcome{Reason: "capture status " + captured.Status}, nil
	case http.StatusUnprocessableEntity:
		g.logger.Warn().
			Str("gateway_transaction_id", gatewayTransactionID).
			Str("reason", declined.reason()).
			Msg("gateway declined capture")
		return &CaptureOutcome{Reason: declined.reason()}, nil
	default:
		return nil, fmt.Errorf("failed to capture gateway order %s: unexpected status %d", gatewayTransactionID, status)
	}
}

// call sends a JSON request. The body of a 2xx answer is decoded into out,
// the body of a 4xx answer into errOut when given.
func (g *RESTGateway) call(ctx context.Context, method string, path []string, in, out any, errOut ...any) (int, error) {
	token, err := g.accessToken(ctx)
	if err != nil {
		return 0, err
	}

	endpoint, err := url.JoinPath(g.cfg.BaseURL, path...)
	if err != nil {
		return 0, fmt.Errorf("failed to build gateway url: %w", err)
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return 0, fmt.Errorf("failed to encode gateway request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return 0, fmt.Errorf("failed to call gateway: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		g.resetToken()
	}

	var target any
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		target = out
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && len(errOut) > 0:
		target = errOut[0]
	}
	if target != nil {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil && err != io.EOF {
			return 0, fmt.Errorf("failed to decode gateway response: %w", err)
		}
	}

	return resp.StatusCode, nil
}

func (g *RESTGateway) accessToken(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.token != "" && g.now().Before(g.expiresAt) {
		return g.token, nil
	}

	endpoint, err := url.JoinPath(g.cfg.BaseURL, "v1", "oauth2", "token")
	if err != nil {
		return "", fmt.Errorf("failed to build gateway url: %w", err)
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(g.cfg.ClientID, g.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return "", fmt.Errorf("failed to request gateway token: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to request gateway token: unexpected status %d", resp.StatusCode)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("failed to decode gateway token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("failed to request gateway token: empty access token")
	}

	g.token = tok.AccessToken
	g.expiresAt = g.now().Add(time.Duration(tok.ExpiresIn)*time.Second - tokenExpirySlack)

	g.logger.Debug().Int("expires_in", tok.ExpiresIn).Msg("gateway token refreshed")

	return g.token, nil
}

func (g *RESTGateway) resetToken() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.token = ""
}
