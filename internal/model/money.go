package model

import (
	"strings"

	"golang.org/x/text/currency"
)

// DefaultCurrency is used when a checkout does not name one.
const DefaultCurrency = "USD"

// NormalizeCurrency validates an ISO 4217 code and returns its canonical form.
func NormalizeCurrency(code string) (string, error) {
	if strings.TrimSpace(code) == "" {
		return DefaultCurrency, nil
	}

	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return "", NewDomainError(ErrCodeValidation, "unsupported currency: "+code)
	}

	return unit.String(), nil
}
