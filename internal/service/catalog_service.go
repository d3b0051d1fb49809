package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"commerceflow/internal/contracts"
	"commerceflow/internal/messaging"
	"commerceflow/internal/model"
	"commerceflow/internal/repository"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// reindexPageSize is how many products RequestReindex reads per query.
const reindexPageSize = 500

// catalogService implements CatalogService.
type catalogService struct {
	productRepo repository.ProductRepository
	publisher   messaging.Publisher
	now         func() time.Time
	logger      zerolog.Logger
}

// NewCatalogService creates a new catalog service.
func NewCatalogService(productRepo repository.ProductRepository, publisher messaging.Publisher, logger zerolog.Logger) CatalogService {
	return &catalogService{
		productRepo: productRepo,
		publisher:   publisher,
		now:         time.Now,
		logger:      logger.With().Str("service", "catalog").Logger(),
	}
}

// GetAll retrieves all products with pagination.
func (s *catalogService) GetAll(ctx context.Context, limit, offset int) ([]model.Product, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	products, err := s.productRepo.GetAll(ctx, limit, offset)
	if err != nil {
		s.logger.Error().Err(err).
			Int("limit", limit).
			Int("offset", offset).
			Msg("failed to get all products")
		return nil, fmt.Errorf("failed to get products: %w", err)
	}

	s.logger.Debug().
		Int("count", len(products)).
		Int("limit", limit).
		Int("offset", offset).
		Msg("retrieved products")

	return products, nil
}

// GetByID retrieves a single product by ID.
func (s *catalogService) GetByID(ctx context.Context, id string) (*model.Product, error) {
	if id == "" {
		s.logger.Warn().Msg("product ID is empty")
		return nil, model.ErrProductNotFound
	}

	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Str("product_id", id).Msg("failed to get product by ID")
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	if product == nil {
		s.logger.Debug().Str("product_id", id).Msg("product not found")
		return nil, model.ErrProductNotFound
	}

	return product, nil
}

// GetByIDs retrieves multiple products by their IDs.
func (s *catalogService) GetByIDs(ctx context.Context, ids []string) ([]model.Product, error) {
	if len(ids) == 0 {
		return []model.Product{}, nil
	}

	products, err := s.productRepo.GetByIDs(ctx, ids)
	if err != nil {
		s.logger.Error().Err(err).Int("count", len(ids)).Msg("failed to get products by IDs")
		return nil, fmt.Errorf("failed to get products: %w", err)
	}

	s.logger.Debug().
		Int("requested", len(ids)).
		Int("found", len(products)).
		Msg("retrieved products by IDs")

	return products, nil
}

// CreateProduct stores a new product and publishes ProductCreated.
func (s *catalogService) CreateProduct(ctx context.Context, req *model.ProductRequest) (*model.Product, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	product := &model.Product{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		ImageURL:    req.ImageURL,
		Category:    req.Category,
		VendorID:    req.VendorID,
		Stock:       req.Stock,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.productRepo.Create(ctx, product); err != nil {
		if errors.Is(err, model.ErrProductExists) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	s.publish(ctx, contracts.ProductCreated{ProductSnapshot: snapshot(*product)})

	s.logger.Info().Str("product_id", product.ID).Msg("product created")
	return product, nil
}

// UpdateProduct overwrites an existing product and publishes ProductUpdated.
// Stock is managed by the order messages and is not changed here.
func (s *catalogService) UpdateProduct(ctx context.Context, req *model.ProductRequest) (*model.Product, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	product, err := s.GetByID(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	product.Name = req.Name
	product.Description = req.Description
	product.Price = req.Price
	product.ImageURL = req.ImageURL
	product.Category = req.Category
	product.VendorID = req.VendorID
	product.UpdatedAt = s.now().UTC()

	if err := s.productRepo.Update(ctx, product); err != nil {
		if errors.Is(err, model.ErrProductNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update product: %w", err)
	}

	s.publish(ctx, contracts.ProductUpdated{ProductSnapshot: snapshot(*product)})

	s.logger.Info().Str("product_id", product.ID).Msg("product updated")
	return product, nil
}

// RequestReindex publishes every product in one ProductsReindexRequested
// message and returns how many were included.
func (s *catalogService) RequestReindex(ctx context.Context) (int, error) {
	var snapshots []contracts.ProductSnapshot

	for offset := 0; ; offset += reindexPageSize {
		page, err := s.productRepo.GetAll(ctx, reindexPageSize, offset)
		if err != nil {
			return 0, fmt.Errorf("failed to read products for reindex: %w", err)
		}
		snapshots = append(snapshots, lo.Map(page, func(p model.Product, _ int) contracts.ProductSnapshot {
			return snapshot(p)
		})...)
		if len(page) < reindexPageSize {
			break
		}
	}

	if err := s.publisher.Publish(ctx, contracts.ProductsReindexRequested{Products: snapshots}); err != nil {
		return 0, fmt.Errorf("failed to publish reindex request: %w", err)
	}

	s.logger.Info().Int("product_count", len(snapshots)).Msg("reindex requested")
	return len(snapshots), nil
}

// ApplyOrderCreated decrements stock for every line item and records each
// decrement against the order. Unknown products and items without enough
// stock are skipped with a warning; the rest of the order is still applied.
func (s *catalogService) ApplyOrderCreated(ctx context.Context, msg contracts.OrderCreated) (*model.StockReport, error) {
	known, err := s.knownProducts(ctx, msg.Items)
	if err != nil {
		return nil, err
	}

	report := &model.StockReport{}
	for _, item := range msg.Items {
		if !s.applicable(msg.OrderID.String(), item, known, report) {
			continue
		}

		remaining, err := s.productRepo.ReserveStock(ctx, msg.OrderID, item.ProductID, item.Quantity)
		switch {
		case errors.Is(err, model.ErrInsufficientStock):
			s.logger.Warn().
				Str("order_id", msg.OrderID.String()).
				Str("product_id", item.ProductID).
				Int("quantity", item.Quantity).
				Int("stock", remaining).
				Msg("insufficient stock, line item skipped")
			report.Insufficient = append(report.Insufficient, item.ProductID)
			continue
		case errors.Is(err, model.ErrProductNotFound):
			s.logger.Warn().Str("order_id", msg.OrderID.String()).Str("product_id", item.ProductID).Msg("product disappeared, line item skipped")
			report.Missing = append(report.Missing, item.ProductID)
			continue
		case err != nil:
			return report, fmt.Errorf("failed to decrement stock for %s: %w", item.ProductID, err)
		}

		report.Applied++
		s.logger.Debug().Str("product_id", item.ProductID).Int("stock", remaining).Msg("stock decremented")
	}

	s.logger.Info().
		Str("order_id", msg.OrderID.String()).
		Int("applied", report.Applied).
		Int("missing", len(report.Missing)).
		Int("insufficient", len(report.Insufficient)).
		Msg("order stock applied")

	return report, nil
}

// ApplyOrderCancelled gives back the stock that ApplyOrderCreated actually
// took for the order. Skipped line items were never taken and are not
// restored; a repeated cancellation restores nothing.
func (s *catalogService) ApplyOrderCancelled(ctx context.Context, msg contracts.OrderCancelled) (*model.StockReport, error) {
	released, err := s.productRepo.ReleaseStock(ctx, msg.OrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to restore stock for order %s: %w", msg.OrderID, err)
	}

	for _, m := range released {
		s.logger.Debug().Str("product_id", m.ProductID).Int("quantity", m.Quantity).Int("stock", m.Stock).Msg("stock restored")
	}

	report := &model.StockReport{Applied: len(released)}
	s.logger.Info().
		Str("order_id", msg.OrderID.String()).
		Int("line_items", len(msg.Items)).
		Int("restored", report.Applied).
		Msg("cancelled order stock restored")

	return report, nil
}

func (s *catalogService) knownProducts(ctx context.Context, items []contracts.LineItem) (map[string]struct{}, error) {
	ids := lo.Uniq(lo.Map(items, func(item contracts.LineItem, _ int) string { return item.ProductID }))

	products, err := s.productRepo.GetByIDs(ctx, ids)
	if err != nil {
		s.logger.Error().Err(err).Int("count", len(ids)).Msg("failed to get products for stock update")
		return nil, fmt.Errorf("failed to get products: %w", err)
	}

	return lo.SliceToMap(products, func(p model.Product) (string, struct{}) { return p.ID, struct{}{} }), nil
}

func (s *catalogService) applicable(orderID string, item contracts.LineItem, known map[string]struct{}, report *model.StockReport) bool {
	if _, ok := known[item.ProductID]; !ok {
		s.logger.Warn().Str("order_id", orderID).Str("product_id", item.ProductID).Msg("unknown product, line item skipped")
		report.Missing = append(report.Missing, item.ProductID)
		return false
	}
	if item.Quantity <= 0 {
		s.logger.Warn().Str("order_id", orderID).Str("product_id", item.ProductID).Int("quantity", item.Quantity).Msg("invalid quantity, line item skipped")
		return false
	}
	return true
}

func (s *catalogService) publish(ctx context.Context, msg contracts.Message) {
	if err := s.publisher.Publish(ctx, msg); err != nil {
		s.logger.Error().Err(err).Str("message_type", msg.MessageType()).Msg("failed to publish catalog message")
	}
}

func snapshot(p model.Product) contracts.ProductSnapshot {
	return contracts.ProductSnapshot{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		ImageURL:    p.ImageURL,
	}
}
