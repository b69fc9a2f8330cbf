package domain

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	MaxOrderIDLength     = 50
	MaxDescriptionLength = 100
)

// SupportedCurrencies lists the currencies the gateway accepts.
var SupportedCurrencies = []string{"KES", "TZS", "UGX", "RWF", "USD"}

var orderIDRe = regexp.MustCompile(`^[a-zA-Z0-9_\-\.]+$`)

// IsSupportedCurrency reports whether code is accepted by the gateway.
func IsSupportedCurrency(code string) bool {
	for _, c := range SupportedCurrencies {
		if c == strings.ToUpper(code) {
			return true
		}
	}
	return false
}

// ValidateNewPayment checks the caller-supplied fields of a payment order.
func ValidateNewPayment(orderID string, amount decimal.Decimal, currency, description string) error {
	switch {
	case orderID == "" || len(orderID) > MaxOrderIDLength:
		return fmt.Errorf("order_id must be 1-%d characters", MaxOrderIDLength)
	case !orderIDRe.MatchString(orderID):
		return fmt.Errorf("order_id may only contain letters, digits, '_', '-' and '.'")
	case !amount.IsPositive():
		return fmt.Errorf("amount must be greater than zero")
	case !amount.Equal(amount.Round(2)):
		return fmt.Errorf("amount supports at most two decimal places")
	case !IsSupportedCurrency(currency):
		return fmt.Errorf("currency must be one of %s", strings.Join(SupportedCurrencies, ", "))
	case strings.TrimSpace(description) == "" || len(description) > MaxDescriptionLength:
		return fmt.Errorf("description must be 1-%d characters", MaxDescriptionLength)
	}
	return nil
}
