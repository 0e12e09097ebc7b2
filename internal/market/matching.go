package market

import (
	"github.com/orbitex/exchange/pkg/models"
)

// matchPair is one settled leg: a maker and a taker order with exactly
// crossed amounts (maker.owning == taker.requesting and vice versa).
type matchPair struct {
	Maker *models.Order
	Taker *models.Order
}

// matchResult is everything a taker execution produced. created orders are
// new clone legs to insert, updated orders are existing documents whose
// status or amounts changed, resting orders were re-inserted into the book
// and stay ready. dust, if set, is an unmatchable sub-precision remainder
// whose document is deleted and residual lock cancelled by the registry.
type matchResult struct {
	pairs   []matchPair
	created []*models.Order
	updated []*models.Order
	resting []*models.Order
	dust    *models.Order
}

// matchTaker executes a crossing order against the book. It walks price
// levels from the opposing best outward while the level price stays within
// the taker's limit, popping makers FIFO. Matches always settle at the
// resting maker's price, so the taker never does worse than its limit and
// may do better.
func (b *Book) matchTaker(taker *models.Order) (*matchResult, error) {
	res := &matchResult{}
	side := taker.Side()
	limit := taker.Price()
	remaining := taker.OwningAmount

	for remaining.IsPositive() {
		level := b.bestOpposing(side)
		if level == nil {
			break
		}
		if side == models.OrderSideBuy {
			if level.price.GreaterThan(limit) {
				break
			}
		} else if level.price.LessThan(limit) {
			break
		}

		maker := b.popFront(level)

		// The maker's requesting currency is the taker's owning currency,
		// so the two amounts compare directly.
		switch remaining.Cmp(maker.RequestingAmount) {
		case 1:
			// Consume the maker fully; a taker clone sized to the maker
			// stands in for this leg and the walk continues.
			leg := cloneMatched(taker, maker.RequestingAmount, maker.OwningAmount)
			maker.Status = models.OrderStatusMatched
			res.pairs = append(res.pairs, matchPair{Maker: maker, Taker: leg})
			res.created = append(res.created, leg)
			res.updated = append(res.updated, maker)
			remaining = remaining.Sub(maker.RequestingAmount)

		case 0:
			// Exact fill. The maker's own owning amount is authoritative,
			// which can only favor the taker.
			taker.OwningAmount = remaining
			taker.RequestingAmount = maker.OwningAmount
			taker.Status = models.OrderStatusMatched
			maker.Status = models.OrderStatusMatched
			res.pairs = append(res.pairs, matchPair{Maker: maker, Taker: taker})
			res.updated = append(res.updated, maker, taker)
			return res, nil

		case -1:
			// The taker's remainder is smaller than the maker: split the
			// maker. The matched leg mirrors the taker's final amounts and
			// the reduced maker re-enters at the front of its level,
			// keeping its time priority.
			requesting, err := proportionalRequesting(taker, remaining, b.currencies)
			if err != nil {
				return nil, err
			}
			if requesting.IsZero() {
				b.insertMaker(maker, true)
				taker.OwningAmount = remaining
				res.dust = taker
				return res, nil
			}
			taker.OwningAmount = remaining
			taker.RequestingAmount = requesting
			taker.Status = models.OrderStatusMatched

			leg := cloneMatched(maker, taker.RequestingAmount, taker.OwningAmount)
			maker.OwningAmount = maker.OwningAmount.Sub(leg.OwningAmount)
			maker.RequestingAmount = maker.RequestingAmount.Sub(leg.RequestingAmount)

			res.pairs = append(res.pairs, matchPair{Maker: leg, Taker: taker})
			res.created = append(res.created, leg)
			res.updated = append(res.updated, taker)
			res.resting = append(res.resting, maker)
			b.insertMaker(maker, true)
			return res, nil
		}
	}

	if remaining.IsPositive() {
		if remaining.LessThan(taker.OwningAmount) {
			requesting, err := proportionalRequesting(taker, remaining, b.currencies)
			if err != nil {
				return nil, err
			}
			if requesting.IsZero() {
				taker.OwningAmount = remaining
				res.dust = taker
				return res, nil
			}
			taker.OwningAmount = remaining
			taker.RequestingAmount = requesting
		}
		res.resting = append(res.resting, taker)
		b.insertMaker(taker, false)
	}
	return res, nil
}
