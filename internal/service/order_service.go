package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"commerceflow/internal/collaborator"
	"commerceflow/internal/contracts"
	"commerceflow/internal/messaging"
	"commerceflow/internal/model"
	"commerceflow/internal/promotion"
	"commerceflow/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// estimatedShippingTime is added to the ship date for the delivery estimate.
const estimatedShippingTime = 5 * 24 * time.Hour

// PaymentOpener opens a gateway payment for a freshly created order.
type PaymentOpener interface {
	CreatePaymentOrder(ctx context.Context, userID string, orderID uuid.UUID, gateway string) (*model.PaymentOrder, error)
}

// OrderDeps are the collaborators of the order service.
type OrderDeps struct {
	Orders     repository.OrderRepository
	Promotions repository.PromotionRepository
	Catalog    collaborator.ProductCatalog
	Users      collaborator.UserDirectory
	Validator  promotion.Validator
	Publisher  messaging.Publisher
	// Payments is optional. When nil, checkout never opens a payment.
	Payments       PaymentOpener
	DefaultGateway string
}

// orderService implements OrderService.
type orderService struct {
	orders         repository.OrderRepository
	promotions     repository.PromotionRepository
	catalog        collaborator.ProductCatalog
	users          collaborator.UserDirectory
	validator      promotion.Validator
	publisher      messaging.Publisher
	payments       PaymentOpener
	defaultGateway string
	now            func() time.Time
	logger         zerolog.Logger
}

// NewOrderService creates a new order service.
func NewOrderService(deps OrderDeps, logger zerolog.Logger) OrderService {
	return &orderService{
		orders:         deps.Orders,
		promotions:     deps.Promotions,
		catalog:        deps.Catalog,
		users:          deps.Users,
		validator:      deps.Validator,
		publisher:      deps.Publisher,
		payments:       deps.Payments,
		defaultGateway: deps.DefaultGateway,
		now:            time.Now,
		logger:         logger.With().Str("service", "order").Logger(),
	}
}

// Checkout creates a Pending order. The total is computed once here and
// never recomputed.
func (s *orderService) Checkout(ctx context.Context, userID string, req *model.CheckoutRequest) (*model.CheckoutResponse, error) {
	if userID == "" {
		return nil, model.ErrUnauthorized
	}

	// Validate request
	if err := s.validateCheckoutRequest(req); err != nil {
		return nil, err
	}

	currency, err := model.NormalizeCurrency(req.Currency)
	if err != nil {
		return nil, err
	}

	method := req.PaymentMethod
	if method == "" {
		method = model.PaymentMethodGateway
	}

	productIDs := lo.Uniq(lo.Map(req.Items, func(item model.OrderItemRequest, _ int) string {
		return item.ProductID
	}))

	prices, err := s.catalog.GetProductPrices(ctx, productIDs)
	if err != nil {
		s.logger.Error().Err(err).Int("product_count", len(productIDs)).Msg("failed to fetch product prices")
		return nil, fmt.Errorf("failed to fetch product prices: %w", err)
	}

	priceByID := lo.KeyBy(prices, func(p model.ProductPrice) string { return p.ID })
	if missing := lo.Filter(productIDs, func(id string, _ int) bool {
		_, ok := priceByID[id]
		return !ok
	}); len(missing) > 0 {
		s.logger.Warn().Strs("product_ids", missing).Msg("checkout references unknown products")
		return nil, model.ErrProductNotFound
	}

	now := s.now().UTC()
	order := &model.Order{
		ID:            uuid.New(),
		UserID:        userID,
		Status:        model.OrderStatusPending,
		Currency:      currency,
		PaymentMethod: method,
		ShippingCost:  req.ShippingCost,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	order.Items = lo.Map(req.Items, func(item model.OrderItemRequest, _ int) model.OrderItem {
		return model.OrderItem{
			ID:        uuid.New(),
			OrderID:   order.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: priceByID[item.ProductID].Price,
		}
	})
	if address := strings.TrimSpace(req.ShippingAddress); address != "" {
		order.Shipping = &model.ShippingRecord{Address: address}
	}

	discount := decimal.Zero
	if req.PromotionCode != nil && strings.TrimSpace(*req.PromotionCode) != "" {
		code := strings.TrimSpace(*req.PromotionCode)
		cart := model.CartContext{
			Subtotal:    model.Subtotal(order.Items),
			ProductIDs:  productIDs,
			CategoryIDs: lo.Uniq(lo.Compact(lo.Map(productIDs, func(id string, _ int) string { return priceByID[id].Category }))),
			UserID:      userID,
		}

		result, err := s.validator.Validate(ctx, code, cart)
		if err != nil {
			return nil, fmt.Errorf("failed to validate promotion: %w", err)
		}
		if !result.IsValid {
			s.logger.Warn().Str("promo_code", code).Str("reason", result.Message).Msg("promotion rejected at checkout")
			return nil, model.NewDomainError(model.ErrCodeValidation, result.Message)
		}

		// A fixed discount larger than the cart only brings the total to zero.
		discount = decimal.Min(result.DiscountAmount, cart.Subtotal)
		order.PromotionCode = &code
	}
	order.DiscountAmount = discount
	order.TotalAmount = model.ComputeTotal(order.Items, discount)

	err = repository.WithTx(ctx, s.orders, func(tx pgx.Tx) error {
		if err := s.orders.CreateOrder(ctx, tx, order); err != nil {
			return err
		}
		if order.PromotionCode != nil {
			return s.promotions.Redeem(ctx, tx, *order.PromotionCode)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, model.ErrPromotionExhausted) || errors.Is(err, model.ErrPromotionNotFound) {
			s.logger.Warn().Err(err).Str("order_id", order.ID.String()).Msg("promotion could not be redeemed")
			return nil, err
		}
		s.logger.Error().Err(err).Str("order_id", order.ID.String()).Msg("failed to create order")
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	s.publish(ctx, order.ID, contracts.OrderCreated{
		OrderID:     order.ID,
		UserID:      order.UserID,
		TotalAmount: order.TotalAmount,
		Currency:    order.Currency,
		Items:       lineItems(order.Items),
	})

	s.logger.Info().
		Str("order_id", order.ID.String()).
		Str("user_id", userID).
		Int("item_count", len(order.Items)).
		Str("total", order.TotalAmount.String()).
		Msg("order created successfully")

	resp := &model.CheckoutResponse{Order: order}
	if method == model.PaymentMethodGateway && s.payments != nil {
		gatewayName := lo.Ternary(req.Gateway != "", req.Gateway, s.defaultGateway)
		payment, err := s.payments.CreatePaymentOrder(ctx, userID, order.ID, gatewayName)
		if err != nil {
			// The order stands; the client can open the payment again.
			s.logger.Warn().Err(err).Str("order_id", order.ID.String()).Msg("failed to open payment at checkout")
		} else {
			resp.Payment = payment
		}
	}

	return resp, nil
}

// GetOrder retrieves an order with its items.
func (s *orderService) GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	return s.loadOrder(ctx, id)
}

// HandlePaymentSucceeded is idempotent: an order already past Pending is
// left alone. A payment for a cancelled order does not revive it.
func (s *orderService) HandlePaymentSucceeded(ctx context.Context, msg contracts.PaymentSucceeded) error {
	order, err := s.loadOrder(ctx, msg.OrderID)
	if err != nil {
		return err
	}

	if order.Status == model.OrderStatusCancelled {
		s.logger.Warn().Str("order_id", order.ID.String()).Msg("payment received for cancelled order, manual refund required")
		return nil
	}

	if !order.MarkPaid(s.now().UTC()) {
		s.logger.Debug().
			Str("order_id", order.ID.String()).
			Str("status", string(order.Status)).
			Msg("order already past pending, payment ignored")
		return nil
	}

	if err := s.orders.Update(ctx, order); err != nil {
		return fmt.Errorf("failed to mark order paid: %w", err)
	}

	s.logger.Info().Str("order_id", order.ID.String()).Msg("order paid")
	return nil
}

// HandlePaymentFailed leaves the order Pending so the customer can retry.
func (s *orderService) HandlePaymentFailed(ctx context.Context, msg contracts.PaymentFailed) error {
	order, err := s.loadOrder(ctx, msg.OrderID)
	if err != nil {
		return err
	}

	s.logger.Warn().
		Str("order_id", order.ID.String()).
		Str("status", string(order.Status)).
		Str("reason", msg.Reason).
		Msg("payment failed")
	return nil
}

func (s *orderService) SetShippingAddress(ctx context.Context, userID string, orderID uuid.UUID, address string) (*model.Order, error) {
	order, err := s.loadOwnedOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}

	if err := order.SetShippingAddress(address, s.now().UTC()); err != nil {
		return nil, err
	}

	if err := s.orders.Update(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to update shipping address: %w", err)
	}
	return order, nil
}

// Ship requires a paid order, or a pending pay-on-delivery order, with a
// shipping address.
func (s *orderService) Ship(ctx context.Context, orderID uuid.UUID) (*model.Order, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	tracking := newTrackingNumber()
	if err := order.Ship(tracking, now, now.Add(estimatedShippingTime)); err != nil {
		s.logger.Warn().Err(err).Str("order_id", orderID.String()).Str("status", string(order.Status)).Msg("order cannot be shipped")
		return nil, err
	}

	if err := s.orders.Update(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to ship order: %w", err)
	}

	s.publish(ctx, order.ID, contracts.OrderShipped{
		OrderID:        order.ID,
		UserID:         order.UserID,
		TrackingNumber: tracking,
		ShippedAt:      now,
	})

	s.logger.Info().Str("order_id", order.ID.String()).Str("tracking_number", tracking).Msg("order shipped")
	return order, nil
}

// Cancel is a no-op for an order that is already cancelled.
func (s *orderService) Cancel(ctx context.Context, userID string, orderID uuid.UUID) (*model.Order, error) {
	order, err := s.loadOwnedOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}

	changed, err := order.Cancel(s.now().UTC())
	if err != nil {
		s.logger.Warn().Err(err).Str("order_id", orderID.String()).Str("status", string(order.Status)).Msg("order cannot be cancelled")
		return nil, err
	}
	if !changed {
		return order, nil
	}

	if err := s.orders.Update(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to cancel order: %w", err)
	}

	s.publish(ctx, order.ID, contracts.OrderCancelled{
		OrderID: order.ID,
		UserID:  order.UserID,
		Items:   lineItems(order.Items),
	})

	s.logger.Info().Str("order_id", order.ID.String()).Msg("order cancelled")
	return order, nil
}

// UpdateStatus is an administrative override; no transition is checked
// and no message is published.
func (s *orderService) UpdateStatus(ctx context.Context, orderID uuid.UUID, status model.OrderStatus) (*model.Order, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	previous := order.Status
	order.OverrideStatus(status, s.now().UTC())

	if err := s.orders.Update(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}

	s.logger.Info().
		Str("order_id", order.ID.String()).
		Str("from", string(previous)).
		Str("to", string(status)).
		Msg("order status overridden")
	return order, nil
}

// ListOrderSummaries degrades to summaries without usernames when the user
// directory is unavailable.
func (s *orderService) ListOrderSummaries(ctx context.Context, limit, offset int) ([]model.OrderSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	orders, err := s.orders.List(ctx, limit, offset)
	if err != nil {
		s.logger.Error().Err(err).Int("limit", limit).Int("offset", offset).Msg("failed to list orders")
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	usernames := map[string]string{}
	userIDs := lo.Uniq(lo.Map(orders, func(o model.Order, _ int) string { return o.UserID }))
	if len(userIDs) > 0 {
		users, err := s.users.GetUsers(ctx, userIDs)
		if err != nil {
			s.logger.Warn().Err(err).Int("user_count", len(userIDs)).Msg("failed to resolve usernames")
		} else {
			usernames = lo.SliceToMap(users, func(u model.User) (string, string) { return u.ID, u.Username })
		}
	}

	return lo.Map(orders, func(o model.Order, _ int) model.OrderSummary {
		return model.OrderSummary{
			ID:          o.ID,
			UserID:      o.UserID,
			Username:    usernames[o.UserID],
			Status:      o.Status,
			TotalAmount: o.TotalAmount,
			Currency:    o.Currency,
			CreatedAt:   o.CreatedAt,
		}
	}), nil
}

func (s *orderService) loadOrder(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to get order")
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if order == nil {
		s.logger.Debug().Str("order_id", id.String()).Msg("order not found")
		return nil, model.ErrOrderNotFound
	}
	return order, nil
}

func (s *orderService) loadOwnedOrder(ctx context.Context, userID string, id uuid.UUID) (*model.Order, error) {
	order, err := s.loadOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if userID == "" || order.UserID != userID {
		s.logger.Warn().Str("order_id", id.String()).Str("user_id", userID).Msg("order belongs to another user")
		return nil, model.ErrUnauthorized
	}
	return order, nil
}

// publish runs after the database commit. A failure is logged and not
// returned: the state change already happened.
func (s *orderService) publish(ctx context.Context, orderID uuid.UUID, msg contracts.Message) {
	if err := s.publisher.Publish(ctx, msg); err != nil {
		s.logger.Error().Err(err).
			Str("order_id", orderID.String()).
			Str("message_type", msg.MessageType()).
			Msg("failed to publish order message")
	}
}

// validateCheckoutRequest validates the checkout request.
func (s *orderService) validateCheckoutRequest(req *model.CheckoutRequest) error {
	if req == nil {
		return model.NewDomainError(model.ErrCodeValidation, "checkout request is nil")
	}

	if len(req.Items) == 0 {
		return model.NewDomainError(model.ErrCodeValidation, "order must contain at least one item")
	}

	// Validate each item
	for i, item := range req.Items {
		if item.ProductID == "" {
			return model.NewDomainError(model.ErrCodeMissingField, fmt.Sprintf("item %d: product ID is required", i))
		}

		if item.Quantity <= 0 {
			s.logger.Warn().
				Int("item_index", i).
				Str("product_id", item.ProductID).
				Int("quantity", item.Quantity).
				Msg("invalid quantity")
			return model.ErrInvalidQuantity
		}
	}

	switch req.PaymentMethod {
	case "", model.PaymentMethodGateway, model.PaymentMethodPayOnDelivery:
	default:
		return model.NewDomainError(model.ErrCodeValidation, "unsupported payment method: "+string(req.PaymentMethod))
	}

	if req.ShippingCost.IsNegative() {
		return model.NewDomainError(model.ErrCodeValidation, "shipping cost must not be negative")
	}

	return nil
}

func lineItems(items []model.OrderItem) []contracts.LineItem {
	return lo.Map(items, func(item model.OrderItem, _ int) contracts.LineItem {
		return contracts.LineItem{ProductID: item.ProductID, Quantity: item.Quantity, Price: item.UnitPrice}
	})
}

func newTrackingNumber() string {
	return "TRK-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}
