package gateway

import (
	"context"
	"net/url"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SandboxName is the registry name of the sandbox gateway.
const SandboxName = "sandbox"

// Sandbox is an in-process gateway for local runs and tests. Every capture
// of a known order succeeds unless Decline was called for it.
type Sandbox struct {
	mu       sync.Mutex
	orders   map[string]CreateOrderRequest
	declines map[string]string
	captures map[string]int
	logger   zerolog.Logger
}

// NewSandbox creates a sandbox gateway.
func NewSandbox(logger zerolog.Logger) *Sandbox {
	return &Sandbox{
		orders:   make(map[string]CreateOrderRequest),
		declines: make(map[string]string),
		captures: make(map[string]int),
		logger:   logger.With().Str("component", "gateway").Str("gateway", SandboxName).Logger(),
	}
}

func (s *Sandbox) Name() string {
	return SandboxName
}

// CreateOrder records req and returns an approval link pointing straight
// back at the return URL with the token appended.
func (s *Sandbox) CreateOrder(_ context.Context, req CreateOrderRequest) (*CreatedOrder, error) {
	id := "SBX-" + uuid.NewString()

	s.mu.Lock()
	s.orders[id] = req
	s.mu.Unlock()

	approval := req.ReturnURL
	if u, err := url.Parse(req.ReturnURL); err == nil && req.ReturnURL != "" {
		q := u.Query()
		q.Set("token", id)
		u.RawQuery = q.Encode()
		approval = u.String()
	}

	s.logger.Debug().Str("order_id", req.OrderID).Str("gateway_transaction_id", id).Msg("sandbox order created")

	return &CreatedOrder{GatewayTransactionID: id, ApprovalURL: approval}, nil
}

// Capture succeeds for known orders that were not declined.
func (s *Sandbox) Capture(_ context.Context, gatewayTransactionID string) (*CaptureOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.captures[gatewayTransactionID]++

	if _, ok := s.orders[gatewayTransactionID]; !ok {
		return &CaptureOutcome{Reason: "RESOURCE_NOT_FOUND"}, nil
	}
	if reason, ok := s.declines[gatewayTransactionID]; ok {
		return &CaptureOutcome{Reason: reason}, nil
	}
	return &CaptureOutcome{Succeeded: true}, nil
}

// Decline makes every later capture of gatewayTransactionID fail with reason.
func (s *Sandbox) Decline(gatewayTransactionID, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.declines[gatewayTransactionID] = reason
}

// Captures reports how many times gatewayTransactionID was captured.
func (s *Sandbox) Captures(gatewayTransactionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.captures[gatewayTransactionID]
}
