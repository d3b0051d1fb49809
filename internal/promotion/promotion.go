// Package promotion evaluates discount codes against a cart and imports
// promotion catalogues from gzipped JSON-lines files on disk or in S3.
package promotion

import (
	"context"

	"commerceflow/internal/model"
)

// Store is the persistence the promotion package needs.
type Store interface {
	GetByCode(ctx context.Context, code string) (*model.Promotion, error)
	ExistsByCode(ctx context.Context, code string) (bool, error)
	Create(ctx context.Context, promotion *model.Promotion) error
}

// Validator evaluates a code against a cart. It never redeems the code.
type Validator interface {
	Validate(ctx context.Context, code string, cart model.CartContext) (*model.ValidationResult, error)
}

// Loader reads a promotion file and returns the promotions it contains.
type Loader interface {
	Load(ctx context.Context, filePath string) ([]model.Promotion, error)
}
