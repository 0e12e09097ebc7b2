// Package market implements the order books, the taker-matching algorithm and
// the market registry that owns one book per currency pair.
package market

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/orbitex/exchange/internal/currency"
	"github.com/orbitex/exchange/pkg/models"
)

// cloneMatched builds the matched leg for one side of a match. The clone gets
// its own id and points back at the source order's lock operation so
// settlement can complete the right pending op.
func cloneMatched(o *models.Order, owning, requesting decimal.Decimal) *models.Order {
	origin := o.LockOpID()
	return &models.Order{
		ID:                 uuid.New(),
		UserID:             o.UserID,
		Pair:               o.Pair,
		Status:             models.OrderStatusMatched,
		OwningCurrency:     o.OwningCurrency,
		OwningAmount:       owning,
		RequestingCurrency: o.RequestingCurrency,
		RequestingAmount:   requesting,
		OriginalOrderID:    &origin,
		CreatedAt:          o.CreatedAt,
	}
}

// proportionalRequesting scales an order's requesting amount to a reduced
// owning amount, truncated to the requesting currency's precision. A zero
// result means the remainder is dust below the currency's smallest unit.
func proportionalRequesting(o *models.Order, owning decimal.Decimal, currencies *currency.Registry) (decimal.Decimal, error) {
	requesting := o.RequestingAmount.Mul(owning).Div(o.OwningAmount)
	return currencies.Truncate(o.RequestingCurrency, requesting)
}
