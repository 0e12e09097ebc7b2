package market

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/orbitex/exchange/internal/currency"
	"github.com/orbitex/exchange/pkg/errors"
	"github.com/orbitex/exchange/pkg/models"
)

func newTestOrder(ownCur, owning, reqCur, requesting string) *models.Order {
	return &models.Order{
		ID:                 uuid.New(),
		UserID:             uuid.New(),
		Pair:               models.PairKey(ownCur, reqCur),
		Status:             models.OrderStatusReady,
		OwningCurrency:     ownCur,
		OwningAmount:       decimal.RequireFromString(owning),
		RequestingCurrency: reqCur,
		RequestingAmount:   decimal.RequireFromString(requesting),
		CreatedAt:          time.Now(),
	}
}

func newTestBook() *Book {
	return newBook(models.PairKey("bitcoin", "nano"), currency.DefaultRegistry())
}

func TestOrderSideAndPrice(t *testing.T) {
	// bitcoin sorts before nano, so owning bitcoin means buy
	buy := newTestOrder("bitcoin", "3", "nano", "6")
	require.Equal(t, models.OrderSideBuy, buy.Side())
	require.True(t, buy.Price().Equal(decimal.RequireFromString("0.5")))

	sell := newTestOrder("nano", "2", "bitcoin", "1")
	require.Equal(t, models.OrderSideSell, sell.Side())
	require.True(t, sell.Price().Equal(decimal.RequireFromString("0.5")))
}

func TestInsertMakerTracksBestPrices(t *testing.T) {
	b := newTestBook()

	b.insertMaker(newTestOrder("bitcoin", "1", "nano", "4"), false) // buy at 0.25
	require.True(t, b.buyPrice.Equal(decimal.RequireFromString("0.25")))

	b.insertMaker(newTestOrder("bitcoin", "1", "nano", "2"), false) // buy at 0.5
	require.True(t, b.buyPrice.Equal(decimal.RequireFromString("0.5")))

	b.insertMaker(newTestOrder("nano", "1", "bitcoin", "1"), false) // sell at 1
	require.True(t, b.hasSell)
	require.True(t, b.sellPrice.Equal(decimal.RequireFromString("1")))

	b.insertMaker(newTestOrder("nano", "4", "bitcoin", "3"), false) // sell at 0.75
	require.True(t, b.sellPrice.Equal(decimal.RequireFromString("0.75")))

	// No crossed book
	require.True(t, b.buyPrice.LessThan(b.sellPrice))
}

func TestRemoveErrors(t *testing.T) {
	b := newTestBook()
	resting := newTestOrder("bitcoin", "1", "nano", "2")
	b.insertMaker(resting, false)

	// No level at this price
	err := b.remove(newTestOrder("bitcoin", "1", "nano", "4"))
	require.ErrorIs(t, err, errors.ErrPriceNotFound)

	// Level exists but the order is not in it
	err = b.remove(newTestOrder("bitcoin", "2", "nano", "4"))
	require.ErrorIs(t, err, errors.ErrOrderNotFound)

	require.NoError(t, b.remove(resting))
	require.ErrorIs(t, b.remove(resting), errors.ErrPriceNotFound)
}

func TestRemoveAdvancesBestPrice(t *testing.T) {
	b := newTestBook()
	low := newTestOrder("bitcoin", "1", "nano", "4")  // buy at 0.25
	high := newTestOrder("bitcoin", "1", "nano", "2") // buy at 0.5
	b.insertMaker(low, false)
	b.insertMaker(high, false)

	require.NoError(t, b.remove(high))
	require.True(t, b.buyPrice.Equal(decimal.RequireFromString("0.25")))

	require.NoError(t, b.remove(low))
	require.True(t, b.buyPrice.IsZero())

	sellNear := newTestOrder("nano", "4", "bitcoin", "3") // sell at 0.75
	sellFar := newTestOrder("nano", "1", "bitcoin", "1")  // sell at 1
	b.insertMaker(sellNear, false)
	b.insertMaker(sellFar, false)

	require.NoError(t, b.remove(sellNear))
	require.True(t, b.sellPrice.Equal(decimal.RequireFromString("1")))

	require.NoError(t, b.remove(sellFar))
	require.False(t, b.hasSell)
}

func TestCrosses(t *testing.T) {
	b := newTestBook()
	b.insertMaker(newTestOrder("bitcoin", "1", "nano", "2"), false) // buy at 0.5
	b.insertMaker(newTestOrder("nano", "1", "bitcoin", "1"), false) // sell at 1

	require.True(t, b.crosses(newTestOrder("bitcoin", "1", "nano", "1")))  // buy at 1 meets sell
	require.False(t, b.crosses(newTestOrder("bitcoin", "1", "nano", "2"))) // buy at 0.5 rests
	require.True(t, b.crosses(newTestOrder("nano", "2", "bitcoin", "1")))  // sell at 0.5 meets buy
	require.False(t, b.crosses(newTestOrder("nano", "1", "bitcoin", "1"))) // sell at 1 rests
}

func TestEquivalentPricesShareALevel(t *testing.T) {
	b := newTestBook()
	// 1/2 and 2/4 are the same price with different decimal exponents
	b.insertMaker(newTestOrder("bitcoin", "1", "nano", "2"), false)
	b.insertMaker(newTestOrder("bitcoin", "2", "nano", "4"), false)

	depth := b.depth()
	require.Len(t, depth, 1)
	require.Equal(t, 2, depth[0].Orders)
	require.True(t, depth[0].Amount.Equal(decimal.RequireFromString("3")))
}

func TestDepthSnapshot(t *testing.T) {
	b := newTestBook()
	b.insertMaker(newTestOrder("bitcoin", "1", "nano", "4"), false) // buy at 0.25
	b.insertMaker(newTestOrder("bitcoin", "2", "nano", "4"), false) // buy at 0.5
	b.insertMaker(newTestOrder("nano", "1", "bitcoin", "1"), false) // sell at 1

	depth := b.depth()
	require.Len(t, depth, 3)
	// Ascending by price
	require.True(t, depth[0].Price.Equal(decimal.RequireFromString("0.25")))
	require.Equal(t, models.OrderSideBuy, depth[0].Side)
	require.True(t, depth[2].Price.Equal(decimal.RequireFromString("1")))
	require.Equal(t, models.OrderSideSell, depth[2].Side)

	buys, sells := b.sideCounts()
	require.Equal(t, 2, buys)
	require.Equal(t, 1, sells)
}
