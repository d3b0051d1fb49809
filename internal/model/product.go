package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a catalogue product together with its stock count.
type Product struct {
	ID          string          `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	Description string          `json:"description" db:"description"`
	Price       decimal.Decimal `json:"price" db:"price"`
	ImageURL    *string         `json:"imageUrl,omitempty" db:"image_url"`
	Category    string          `json:"category" db:"category"`
	VendorID    string          `json:"vendorId" db:"vendor_id"`
	Stock       int             `json:"stock" db:"stock"`
	CreatedAt   time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time       `json:"updatedAt" db:"updated_at"`
}

// ProductPrice is what checkout needs to know about a product.
// Category comes from the catalog and decides promotion eligibility.
type ProductPrice struct {
	ID       string          `json:"id"`
	Price    decimal.Decimal `json:"price"`
	VendorID string          `json:"vendorId"`
	Category string          `json:"category"`
}

// ProductRequest is the admin payload to create or update a product.
type ProductRequest struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    *string         `json:"imageUrl,omitempty"`
	Category    string          `json:"category"`
	VendorID    string          `json:"vendorId"`
	Stock       int             `json:"stock"`
}

// Validate checks the request fields.
func (r *ProductRequest) Validate() error {
	verr := &ValidationError{}
	if r.ID == "" {
		verr.Add("id", "is required")
	}
	if r.Name == "" {
		verr.Add("name", "is required")
	}
	if r.Price.IsNegative() {
		verr.Add("price", "must not be negative")
	}
	if r.Stock < 0 {
		verr.Add("stock", "must not be negative")
	}
	return verr.OrNil()
}

// StockReport summarises how an order message was applied to stock.
type StockReport struct {
	Applied      int      `json:"applied"`
	Missing      []string `json:"missing,omitempty"`
	Insufficient []string `json:"insufficient,omitempty"`
}

// StockMovement is stock returned to a product, with the stock it left behind.
type StockMovement struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Stock     int    `json:"stock"`
}

// User is the directory view of a user.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}
