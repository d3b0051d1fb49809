package repository

import (
	"context"
	"errors"
	"fmt"

	"commerceflow/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const productColumns = `id, name, description, price, image_url, category, vendor_id, stock, created_at, updated_at`

// productRepository implements the ProductRepository interface using PostgreSQL.
type productRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewProductRepository creates a new PostgreSQL-backed product repository.
func NewProductRepository(pool *pgxpool.Pool, logger zerolog.Logger) ProductRepository {
	return &productRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "product").Logger(),
	}
}

func scanProduct(row pgx.Row) (model.Product, error) {
	var p model.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.ImageURL,
		&p.Category, &p.VendorID, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *productRepository) queryProducts(ctx context.Context, query string, args ...any) ([]model.Product, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to query products")
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := []model.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			r.logger.Error().Err(err).Msg("failed to scan product row")
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error().Err(err).Msg("error iterating product rows")
		return nil, fmt.Errorf("error iterating products: %w", err)
	}

	return products, nil
}

// GetAll retrieves products ordered by id with pagination support.
func (r *productRepository) GetAll(ctx context.Context, limit, offset int) ([]model.Product, error) {
	query := `SELECT ` + productColumns + `
		FROM products
		ORDER BY id
		LIMIT $1 OFFSET $2
	`
	return r.queryProducts(ctx, query, limit, offset)
}

// GetByID retrieves a single product by its ID.
func (r *productRepository) GetByID(ctx context.Context, id string) (*model.Product, error) {
	query := `SELECT ` + productColumns + `
		FROM products
		WHERE id = $1
	`

	p, err := scanProduct(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug().Str("product_id", id).Msg("product not found")
			return nil, nil
		}
		r.logger.Error().Err(err).Str("product_id", id).Msg("failed to query product")
		return nil, fmt.Errorf("failed to query product: %w", err)
	}

	return &p, nil
}

// GetByIDs retrieves multiple products by their IDs.
func (r *productRepository) GetByIDs(ctx context.Context, ids []string) ([]model.Product, error) {
	if len(ids) == 0 {
		return []model.Product{}, nil
	}

	query := `SELECT ` + productColumns + `
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
	`
	return r.queryProducts(ctx, query, ids)
}

// Create inserts a new product.
func (r *productRepository) Create(ctx context.Context, p *model.Product) error {
	query := `
		INSERT INTO products (id, name, description, price, image_url, category, vendor_id, stock, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.pool.Exec(ctx, query, p.ID, p.Name, p.Description, p.Price, p.ImageURL,
		p.Category, p.VendorID, p.Stock, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return model.ErrProductExists
		}
		r.logger.Error().Err(err).Str("product_id", p.ID).Msg("failed to create product")
		return fmt.Errorf("failed to create product: %w", err)
	}

	r.logger.Debug().Str("product_id", p.ID).Msg("product created successfully")
	return nil
}

// Update overwrites the mutable fields of an existing product.
func (r *productRepository) Update(ctx context.Context, p *model.Product) error {
	query := `
		UPDATE products
		SET name = $2, description = $3, price = $4, image_url = $5, category = $6,
		    vendor_id = $7, stock = $8, updated_at = $9
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, p.ID, p.Name, p.Description, p.Price, p.ImageURL,
		p.Category, p.VendorID, p.Stock, p.UpdatedAt)
	if err != nil {
		r.logger.Error().Err(err).Str("product_id", p.ID).Msg("failed to update product")
		return fmt.Errorf("failed to update product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrProductNotFound
	}

	return nil
}

// ReserveStock lowers stock by quantity if enough is available and records
// the movement against orderID in the same statement. It returns the new
// stock, or ErrProductNotFound / ErrInsufficientStock without changing anything.
func (r *productRepository) ReserveStock(ctx context.Context, orderID uuid.UUID, id string, quantity int) (int, error) {
	query := `
		WITH decremented AS (
			UPDATE products
			SET stock = stock - $3, updated_at = NOW()
			WHERE id = $2 AND stock >= $3
			RETURNING id, stock
		), recorded AS (
			INSERT INTO stock_movements (order_id, product_id, quantity)
			SELECT $1, id, $3 FROM decremented
		)
		SELECT stock FROM decremented
	`

	var stock int
	err := r.pool.QueryRow(ctx, query, orderID, id, quantity).Scan(&stock)
	if err == nil {
		return stock, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		r.logger.Error().Err(err).Str("product_id", id).Msg("failed to reserve stock")
		return 0, fmt.Errorf("failed to reserve stock: %w", err)
	}

	p, err := r.GetByID(ctx, id)
	if err != nil {
		return 0, err
	}
	if p == nil {
		return 0, model.ErrProductNotFound
	}
	return p.Stock, model.ErrInsufficientStock
}

// ReleaseStock gives back every movement recorded for orderID and deletes
// them, so a second release returns nothing.
func (r *productRepository) ReleaseStock(ctx context.Context, orderID uuid.UUID) ([]model.StockMovement, error) {
	query := `
		WITH released AS (
			DELETE FROM stock_movements
			WHERE order_id = $1
			RETURNING product_id, quantity
		), totals AS (
			SELECT product_id, SUM(quantity)::INTEGER AS quantity
			FROM released
			GROUP BY product_id
		)
		UPDATE products p
		SET stock = p.stock + t.quantity, updated_at = NOW()
		FROM totals t
		WHERE p.id = t.product_id
		RETURNING p.id, t.quantity, p.stock
	`

	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", orderID.String()).Msg("failed to release stock")
		return nil, fmt.Errorf("failed to release stock: %w", err)
	}

	movements, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.StockMovement, error) {
		var m model.StockMovement
		err := row.Scan(&m.ProductID, &m.Quantity, &m.Stock)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan released stock: %w", err)
	}
	return movements, nil
}
