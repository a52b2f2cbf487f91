package conversation

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/yelena0000/fish-store/core"
)

// Accepted weight range in kilograms.
var (
	MinQuantity = decimal.RequireFromString("0.1")
	MaxQuantity = decimal.NewFromInt(50)
)

// ParseQuantity reads a weight typed by the user. Both "1.5" and "1,5" are
// accepted, with an optional "kg" suffix.
func ParseQuantity(raw string) (decimal.Decimal, error) {
	const op = "conversation.ParseQuantity"

	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimSpace(strings.TrimSuffix(s, "kg"))
	s = strings.ReplaceAll(s, ",", ".")

	q, err := decimal.NewFromString(s)
	if err != nil || s == "" {
		return decimal.Zero, core.NewValidationError(op, "Please enter the weight as a number, for example 1.5")
	}
	if !q.IsPositive() {
		return decimal.Zero, core.NewValidationError(op, "The weight must be greater than zero.")
	}
	if q.LessThan(MinQuantity) {
		return decimal.Zero, core.NewValidationError(op, "The minimum order is "+MinQuantity.String()+" kg.")
	}
	if q.GreaterThan(MaxQuantity) {
		return decimal.Zero, core.NewValidationError(op, "The maximum order is "+MaxQuantity.String()+" kg.")
	}
	return q, nil
}
