package market

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/orbitex/exchange/pkg/models"
)

func TestPartialFillSplitsMaker(t *testing.T) {
	b := newTestBook()
	maker := newTestOrder("bitcoin", "3", "nano", "6") // buy 6 nano for 3 btc at 0.5
	b.insertMaker(maker, false)

	taker := newTestOrder("nano", "2", "bitcoin", "1") // sell 2 nano for 1 btc at 0.5
	require.True(t, b.crosses(taker))

	res, err := b.matchTaker(taker)
	require.NoError(t, err)
	require.Len(t, res.pairs, 1)
	require.Nil(t, res.dust)

	// The matched leg mirrors the taker exactly
	leg := res.pairs[0].Maker
	require.True(t, leg.OwningAmount.Equal(decimal.RequireFromString("1")))
	require.True(t, leg.RequestingAmount.Equal(decimal.RequireFromString("2")))
	require.Equal(t, maker.ID, *leg.OriginalOrderID)
	require.Equal(t, taker, res.pairs[0].Taker)
	require.Equal(t, models.OrderStatusMatched, taker.Status)

	// The maker rests with proportionally reduced amounts and keeps its id
	require.Len(t, res.resting, 1)
	require.Equal(t, maker, res.resting[0])
	require.True(t, maker.OwningAmount.Equal(decimal.RequireFromString("2")))
	require.True(t, maker.RequestingAmount.Equal(decimal.RequireFromString("4")))
	require.Equal(t, models.OrderStatusReady, maker.Status)
	require.True(t, b.buyPrice.Equal(decimal.RequireFromString("0.5")))
}

func TestExactFill(t *testing.T) {
	b := newTestBook()
	maker := newTestOrder("bitcoin", "1", "nano", "2")
	b.insertMaker(maker, false)

	taker := newTestOrder("nano", "2", "bitcoin", "1")
	res, err := b.matchTaker(taker)
	require.NoError(t, err)
	require.Len(t, res.pairs, 1)
	require.Empty(t, res.resting)
	require.Empty(t, res.created)

	require.Equal(t, maker, res.pairs[0].Maker)
	require.Equal(t, taker, res.pairs[0].Taker)
	require.Equal(t, models.OrderStatusMatched, maker.Status)
	require.Equal(t, models.OrderStatusMatched, taker.Status)

	// Book fully drained
	require.True(t, b.buyPrice.IsZero())
	require.Empty(t, b.byID)
}

func TestTakerConsumesMultipleMakers(t *testing.T) {
	b := newTestBook()
	cheap := newTestOrder("nano", "2", "bitcoin", "1")    // sell at 0.5
	pricey := newTestOrder("nano", "2", "bitcoin", "1.5") // sell at 0.75
	b.insertMaker(pricey, false)
	b.insertMaker(cheap, false)

	// Buy 4 nano for 3 btc, limit 0.75: walks the cheaper level first
	taker := newTestOrder("bitcoin", "3", "nano", "4")
	res, err := b.matchTaker(taker)
	require.NoError(t, err)
	require.Len(t, res.pairs, 2)

	// First leg settles at the better price, at the maker's amounts
	first := res.pairs[0]
	require.Equal(t, cheap, first.Maker)
	require.True(t, first.Taker.OwningAmount.Equal(decimal.RequireFromString("1")))
	require.True(t, first.Taker.RequestingAmount.Equal(decimal.RequireFromString("2")))
	require.Equal(t, taker.ID, *first.Taker.OriginalOrderID)

	// Second leg walks up to the pricier level
	second := res.pairs[1]
	require.Equal(t, pricey, second.Maker)

	// 3 btc limit: 1 to the cheap maker, 1.5 to the pricier one, and the
	// 0.5 btc remainder rests as a maker
	require.Len(t, res.resting, 1)
	require.Equal(t, taker, res.resting[0])
	require.Equal(t, models.OrderStatusReady, taker.Status)
	require.True(t, taker.OwningAmount.Equal(decimal.RequireFromString("0.5")))
	require.False(t, b.hasSell)
	require.True(t, b.buyPrice.Equal(taker.Price()))
}

func TestTakerRespectsLimitPrice(t *testing.T) {
	b := newTestBook()
	cheap := newTestOrder("nano", "2", "bitcoin", "1")  // sell at 0.5
	pricey := newTestOrder("nano", "1", "bitcoin", "1") // sell at 1
	b.insertMaker(cheap, false)
	b.insertMaker(pricey, false)

	// Limit 0.5: only the cheap level qualifies, the rest rests
	taker := newTestOrder("bitcoin", "2", "nano", "4")
	res, err := b.matchTaker(taker)
	require.NoError(t, err)
	require.Len(t, res.pairs, 1)
	require.Equal(t, cheap, res.pairs[0].Maker)

	require.Len(t, res.resting, 1)
	require.True(t, taker.OwningAmount.Equal(decimal.RequireFromString("1")))
	require.True(t, taker.RequestingAmount.Equal(decimal.RequireFromString("2")))

	// The pricier sell is untouched and the book is not crossed
	require.True(t, b.sellPrice.Equal(decimal.RequireFromString("1")))
	require.True(t, b.buyPrice.LessThan(b.sellPrice))
}

func TestFIFOWithinLevel(t *testing.T) {
	b := newTestBook()
	first := newTestOrder("nano", "2", "bitcoin", "1")
	second := newTestOrder("nano", "2", "bitcoin", "1")
	b.insertMaker(first, false)
	b.insertMaker(second, false)

	taker := newTestOrder("bitcoin", "1", "nano", "2")
	res, err := b.matchTaker(taker)
	require.NoError(t, err)
	require.Len(t, res.pairs, 1)
	require.Equal(t, first, res.pairs[0].Maker)

	// The younger maker is still resting
	_, ok := b.byID[second.ID]
	require.True(t, ok)
}

func TestSplitMakerKeepsTimePriority(t *testing.T) {
	b := newTestBook()
	older := newTestOrder("nano", "4", "bitcoin", "2")
	younger := newTestOrder("nano", "4", "bitcoin", "2")
	b.insertMaker(older, false)
	b.insertMaker(younger, false)

	// Consumes half of the older maker, which is re-inserted at the front
	taker := newTestOrder("bitcoin", "1", "nano", "2")
	res, err := b.matchTaker(taker)
	require.NoError(t, err)
	require.Len(t, res.pairs, 1)
	require.True(t, older.OwningAmount.Equal(decimal.RequireFromString("2")))

	level := b.index[priceKey(older.Price())]
	require.NotNil(t, level)
	require.Equal(t, older.ID, level.orders[0].ID)
	require.Equal(t, younger.ID, level.orders[1].ID)
}

func TestTakerRestsWhenNothingCrosses(t *testing.T) {
	b := newTestBook()
	b.insertMaker(newTestOrder("nano", "1", "bitcoin", "1"), false) // sell at 1

	taker := newTestOrder("bitcoin", "1", "nano", "2") // buy at 0.5
	require.False(t, b.crosses(taker))
}

func TestDustRemainderIsCancelled(t *testing.T) {
	b := newTestBook()
	// Maker sells 1 btc for 1 nano
	maker := newTestOrder("nano", "1", "bitcoin", "1")
	b.insertMaker(maker, false)

	// Taker pays 1.00000001 btc for 1 nano: the first leg consumes the
	// maker, the 1e-8 btc remainder cannot buy a whole nano unit
	taker := newTestOrder("bitcoin", "1.00000001", "nano", "1")
	res, err := b.matchTaker(taker)
	require.NoError(t, err)
	require.Len(t, res.pairs, 1)
	require.NotNil(t, res.dust)
	require.Equal(t, taker, res.dust)
	require.True(t, res.dust.OwningAmount.Equal(decimal.RequireFromString("0.00000001")))

	// The remainder must not rest in the book
	_, ok := b.byID[taker.ID]
	require.False(t, ok)
}
