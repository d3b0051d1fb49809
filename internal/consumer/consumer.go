// Package consumer subscribes each service to the messages it reacts to.
package consumer

import (
	"context"
	"fmt"

	"commerceflow/internal/contracts"
	"commerceflow/internal/messaging"
	"commerceflow/internal/search"
	"commerceflow/internal/service"

	"github.com/rs/zerolog"
)

// Consumer group names. Every group receives its own copy of a message.
const (
	GroupOrders  = "orders"
	GroupCatalog = "catalog"
	GroupSearch  = "search"
)

// Deps holds the services behind each consumer group. A nil service leaves
// its group unsubscribed.
type Deps struct {
	Orders  service.OrderService
	Catalog service.CatalogService
	Search  *search.Indexer
	// Inbox makes every handler idempotent per group. Without it a
	// redelivered message is applied again.
	Inbox messaging.Inbox
}

type route struct {
	group       string
	messageType string
	handler     messaging.Handler
}

// Register subscribes the configured services to sub.
func Register(ctx context.Context, sub messaging.Subscriber, deps Deps, logger zerolog.Logger) error {
	var routes []route

	if deps.Orders != nil {
		routes = append(routes, orderRoutes(deps.Orders)...)
	}
	if deps.Catalog != nil {
		routes = append(routes, catalogRoutes(deps.Catalog, logger)...)
	}
	if deps.Search != nil {
		routes = append(routes, searchRoutes(deps.Search)...)
	}

	for _, r := range routes {
		h := logged(r.group, r.handler, logger)
		if deps.Inbox != nil {
			h = messaging.Deduplicate(deps.Inbox, r.group, h, logger)
		}
		if err := sub.Subscribe(ctx, r.group, r.messageType, h); err != nil {
			return fmt.Errorf("failed to subscribe %s to %s: %w", r.group, r.messageType, err)
		}
		logger.Debug().Str("group", r.group).Str("message_type", r.messageType).Msg("consumer registered")
	}
	return nil
}

func orderRoutes(orders service.OrderService) []route {
	return []route{
		{GroupOrders, contracts.TypePaymentSucceeded, messaging.Handle(
			func(ctx context.Context, _ messaging.Envelope, msg contracts.PaymentSucceeded) error {
				return orders.HandlePaymentSucceeded(ctx, msg)
			})},
		{GroupOrders, contracts.TypePaymentFailed, messaging.Handle(
			func(ctx context.Context, _ messaging.Envelope, msg contracts.PaymentFailed) error {
				return orders.HandlePaymentFailed(ctx, msg)
			})},
	}
}

func catalogRoutes(catalog service.CatalogService, logger zerolog.Logger) []route {
	return []route{
		{GroupCatalog, contracts.TypeOrderCreated, messaging.Handle(
			func(ctx context.Context, env messaging.Envelope, msg contracts.OrderCreated) error {
				report, err := catalog.ApplyOrderCreated(ctx, msg)
				if err != nil {
					return err
				}
				logger.Info().
					Str("message_id", env.ID.String()).
					Str("order_id", msg.OrderID.String()).
					Int("applied", report.Applied).
					Strs("missing", report.Missing).
					Strs("insufficient", report.Insufficient).
					Msg("stock reserved")
				return nil
			})},
		{GroupCatalog, contracts.TypeOrderCancelled, messaging.Handle(
			func(ctx context.Context, env messaging.Envelope, msg contracts.OrderCancelled) error {
				report, err := catalog.ApplyOrderCancelled(ctx, msg)
				if err != nil {
					return err
				}
				logger.Info().
					Str("message_id", env.ID.String()).
					Str("order_id", msg.OrderID.String()).
					Int("applied", report.Applied).
					Msg("stock released")
				return nil
			})},
	}
}

func searchRoutes(ix *search.Indexer) []route {
	return []route{
		{GroupSearch, contracts.TypeProductCreated, messaging.Handle(
			func(ctx context.Context, _ messaging.Envelope, msg contracts.ProductCreated) error {
				return ix.ProductCreated(ctx, msg)
			})},
		{GroupSearch, contracts.TypeProductUpdated, messaging.Handle(
			func(ctx context.Context, _ messaging.Envelope, msg contracts.ProductUpdated) error {
				return ix.ProductUpdated(ctx, msg)
			})},
		{GroupSearch, contracts.TypeProductsReindexRequested, messaging.Handle(ix.Reindex)},
	}
}

// logged reports handler failures with the delivery attempt.
func logged(group string, next messaging.Handler, logger zerolog.Logger) messaging.Handler {
	return func(ctx context.Context, env messaging.Envelope) error {
		err := next(ctx, env)
		if err != nil {
			logger.Warn().Err(err).
				Str("group", group).
				Str("message_id", env.ID.String()).
				Str("message_type", env.Type).
				Int("attempt", env.Attempts).
				Msg("message handling failed")
		}
		return err
	}
}
