package currency

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/orbitex/exchange/pkg/errors"
)

func TestLookup(t *testing.T) {
	r := DefaultRegistry()

	c, err := r.Lookup("bitcoin")
	require.NoError(t, err)
	require.Equal(t, int32(8), c.Decimals)

	_, err = r.Lookup("plutonium")
	require.ErrorIs(t, err, errors.ErrCurrencyNotFound)
}

func TestTruncate(t *testing.T) {
	r := NewRegistry([]Currency{{Name: "nano", Decimals: 6}})

	got, err := r.Truncate("nano", decimal.RequireFromString("1.23456789"))
	require.NoError(t, err)
	require.True(t, got.Equal(decimal.RequireFromString("1.234567")))

	// Truncation never rounds up
	got, err = r.Truncate("nano", decimal.RequireFromString("0.9999999"))
	require.NoError(t, err)
	require.True(t, got.Equal(decimal.RequireFromString("0.999999")))

	_, err = r.Truncate("plutonium", decimal.RequireFromString("1"))
	require.ErrorIs(t, err, errors.ErrCurrencyNotFound)
}
