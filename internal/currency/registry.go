// Package currency provides the static currency-metadata registry consumed
// by the ledger and the matching engine.
package currency

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/orbitex/exchange/pkg/errors"
)

// Currency holds the metadata for one supported currency.
type Currency struct {
	Name     string
	Decimals int32
	Fee      decimal.Decimal
}

// Registry is a closed mapping of supported currencies, resolved at startup.
type Registry struct {
	currencies map[string]Currency
}

// NewRegistry creates a registry from the given currency list
func NewRegistry(currencies []Currency) *Registry {
	m := make(map[string]Currency, len(currencies))
	for _, c := range currencies {
		m[c.Name] = c
	}
	return &Registry{currencies: m}
}

// DefaultRegistry returns the registry used when no currencies are configured.
func DefaultRegistry() *Registry {
	return NewRegistry([]Currency{
		{Name: "bitcoin", Decimals: 8, Fee: decimal.Zero},
		{Name: "litecoin", Decimals: 8, Fee: decimal.Zero},
		{Name: "dogecoin", Decimals: 8, Fee: decimal.Zero},
		{Name: "nano", Decimals: 6, Fee: decimal.Zero},
	})
}

// Lookup returns the metadata for a currency name
func (r *Registry) Lookup(name string) (Currency, error) {
	c, ok := r.currencies[name]
	if !ok {
		return Currency{}, fmt.Errorf("%w: %s", errors.ErrCurrencyNotFound, name)
	}
	return c, nil
}

// Truncate truncates an amount to the currency's supported decimal precision.
func (r *Registry) Truncate(name string, amount decimal.Decimal) (decimal.Decimal, error) {
	c, ok := r.currencies[name]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", errors.ErrCurrencyNotFound, name)
	}
	return amount.Truncate(c.Decimals), nil
}
