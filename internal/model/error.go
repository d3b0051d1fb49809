package model

import "errors"

// ErrorResponse represents a standardised error response.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Standard error codes for API responses
const (
	ErrCodeInvalidJSON      = "INVALID_JSON"
	ErrCodeMissingField     = "MISSING_FIELD"
	ErrCodeInvalidQuantity  = "INVALID_QUANTITY"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeInvalidOperation = "INVALID_OPERATION"
	ErrCodeConflict         = "CONFLICT"
	ErrCodeUnauthorised     = "UNAUTHORIZED"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeGatewayFailure   = "GATEWAY_FAILURE"
	ErrCodeValidation       = "VALIDATION_FAILED"
	ErrCodeInternalError    = "INTERNAL_ERROR"
)

// DomainError is a business-logic error carrying a stable code.
// Two domain errors match under errors.Is when their codes are equal.
type DomainError struct {
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

// Is reports whether target is a DomainError with the same code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// ErrorCode returns the domain code of err, or ErrCodeInternalError.
func ErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ErrCodeInternalError
}

// Taxonomy roots. Use errors.Is(err, model.ErrNotFound) to match any not-found error.
var (
	ErrNotFound         = NewDomainError(ErrCodeNotFound, "resource not found")
	ErrInvalidOperation = NewDomainError(ErrCodeInvalidOperation, "operation not allowed in current state")
	ErrConflict         = NewDomainError(ErrCodeConflict, "conflicting resource state")
	ErrUnauthorized     = NewDomainError(ErrCodeUnauthorised, "missing or invalid identity")
	ErrForbidden        = NewDomainError(ErrCodeForbidden, "not permitted")
	ErrGatewayFailure   = NewDomainError(ErrCodeGatewayFailure, "payment gateway rejected the request")
)

// Common domain errors
var (
	ErrOrderNotFound       = NewDomainError(ErrCodeNotFound, "order not found")
	ErrProductNotFound     = NewDomainError(ErrCodeNotFound, "one or more products not found")
	ErrTransactionNotFound = NewDomainError(ErrCodeNotFound, "transaction not found")
	ErrPromotionNotFound   = NewDomainError(ErrCodeNotFound, "promotion not found")
	ErrGatewayNotFound     = NewDomainError(ErrCodeNotFound, "payment gateway not configured")

	ErrInvalidQuantity     = NewDomainError(ErrCodeInvalidQuantity, "Quantity must be greater than zero")
	ErrOrderNotShippable   = NewDomainError(ErrCodeInvalidOperation, "order must be paid, or pending with pay on delivery, before shipping")
	ErrMissingShipping     = NewDomainError(ErrCodeInvalidOperation, "order has no shipping address")
	ErrOrderNotCancellable = NewDomainError(ErrCodeInvalidOperation, "shipped or delivered orders cannot be cancelled")
	ErrShippingLocked      = NewDomainError(ErrCodeInvalidOperation, "shipping address can no longer be changed")
	ErrInsufficientStock   = NewDomainError(ErrCodeInvalidOperation, "insufficient stock")

	ErrConcurrentUpdate     = NewDomainError(ErrCodeConflict, "resource was modified concurrently")
	ErrPromotionCodeExists  = NewDomainError(ErrCodeConflict, "promotion code already exists")
	ErrProductExists        = NewDomainError(ErrCodeConflict, "product already exists")
	ErrDuplicateTransaction = NewDomainError(ErrCodeConflict, "gateway transaction already recorded")
	ErrPromotionExhausted   = NewDomainError(ErrCodeConflict, "promotion usage limit reached")
)

// ValidationError collects per-field problems for admin operations.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return "validation failed"
}

// Is matches any ValidationError.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// Add records a problem for field.
func (e *ValidationError) Add(field, problem string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = problem
}

// OrNil returns e when at least one field was recorded.
func (e *ValidationError) OrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}
