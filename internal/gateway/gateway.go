// Package gateway talks to external payment providers.
package gateway

import (
	"context"
	"sort"
	"sync"

	"commerceflow/internal/model"

	"github.com/shopspring/decimal"
)

// CreateOrderRequest opens a payment at the provider.
type CreateOrderRequest struct {
	OrderID   string
	Amount    decimal.Decimal
	Currency  string
	ReturnURL string
	CancelURL string
}

// CreatedOrder is the provider's answer to CreateOrder.
type CreatedOrder struct {
	GatewayTransactionID string
	ApprovalURL          string
}

// CaptureOutcome is the provider's answer to Capture. A declined capture is
// an outcome, not an error: errors mean the provider could not be reached
// or answered something unexpected, and the capture may be retried.
type CaptureOutcome struct {
	Succeeded bool
	Reason    string
}

// Gateway is a payment provider.
type Gateway interface {
	Name() string
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreatedOrder, error)
	Capture(ctx context.Context, gatewayTransactionID string) (*CaptureOutcome, error)
}

// Registry resolves gateways by name.
type Registry struct {
	mu       sync.RWMutex
	gateways map[string]Gateway
}

// NewRegistry creates a registry holding gws.
func NewRegistry(gws ...Gateway) *Registry {
	r := &Registry{gateways: make(map[string]Gateway, len(gws))}
	for _, gw := range gws {
		r.Register(gw)
	}
	return r
}

// Register adds gw, replacing any gateway with the same name.
func (r *Registry) Register(gw Gateway) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateways[gw.Name()] = gw
}

// Get returns the gateway called name.
func (r *Registry) Get(name string) (Gateway, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	gw, ok := r.gateways[name]
	if !ok {
		return nil, model.ErrGatewayNotFound
	}
	return gw, nil
}

// Names lists the registered gateways in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.gateways))
	for name := range r.gateways {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
