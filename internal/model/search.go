package model

import "github.com/shopspring/decimal"

// SearchDocument is the denormalised product projection held by the search index.
type SearchDocument struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    *string         `json:"imageUrl,omitempty"`
}
