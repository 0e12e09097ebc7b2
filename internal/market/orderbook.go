package market

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"

	"github.com/orbitex/exchange/internal/currency"
	"github.com/orbitex/exchange/pkg/errors"
	"github.com/orbitex/exchange/pkg/models"
)

// priceLevel is the FIFO queue of resting orders sharing one price. A level
// only ever holds one side: a crossing order of the opposite side is matched
// as a taker, never stored.
type priceLevel struct {
	price  decimal.Decimal
	side   string
	orders []*models.Order
}

// Book is the in-memory order book for one currency pair: a btree over price
// levels ascending by price plus a hash index for O(1) level lookup. Buys
// occupy the low end of the tree, sells the high end. The book holds no
// durable state; the registry rebuilds it from persisted ready orders.
//
// The book is not safe for concurrent use; the registry serializes access
// through a per-pair mutex.
type Book struct {
	pair       string
	currencies *currency.Registry
	levels     *btree.BTreeG[*priceLevel]
	index      map[string]*priceLevel
	byID       map[uuid.UUID]*models.Order

	buyPrice  decimal.Decimal // highest resting buy, zero if none
	sellPrice decimal.Decimal // lowest resting sell, valid only when hasSell
	hasSell   bool
}

func newBook(pair string, currencies *currency.Registry) *Book {
	return &Book{
		pair:       pair,
		currencies: currencies,
		levels: btree.NewBTreeG(func(a, b *priceLevel) bool {
			return a.price.LessThan(b.price)
		}),
		index: make(map[string]*priceLevel),
		byID:  make(map[uuid.UUID]*models.Order),
	}
}

// priceKey normalizes a price to a canonical string so that decimals with
// different exponents hash to the same level.
func priceKey(p decimal.Decimal) string {
	s := p.String()
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimRight(s, ".")
	}
	return s
}

// crosses reports whether an incoming order would match immediately: a buy
// priced at or above the lowest sell, or a sell priced at or below the
// highest buy.
func (b *Book) crosses(o *models.Order) bool {
	price := o.Price()
	if o.Side() == models.OrderSideBuy {
		return b.hasSell && price.Cmp(b.sellPrice) >= 0
	}
	return b.buyPrice.IsPositive() && price.Cmp(b.buyPrice) <= 0
}

// insertMaker rests an order in the book. front puts it at the head of its
// level's queue, used when a partially filled order keeps its time priority.
func (b *Book) insertMaker(o *models.Order, front bool) {
	price := o.Price()
	key := priceKey(price)
	level, ok := b.index[key]
	if !ok {
		level = &priceLevel{price: price, side: o.Side()}
		b.index[key] = level
		b.levels.Set(level)
	}
	if front {
		level.orders = append([]*models.Order{o}, level.orders...)
	} else {
		level.orders = append(level.orders, o)
	}
	b.byID[o.ID] = o

	if o.Side() == models.OrderSideBuy {
		if price.GreaterThan(b.buyPrice) {
			b.buyPrice = price
		}
	} else if !b.hasSell || price.LessThan(b.sellPrice) {
		b.sellPrice = price
		b.hasSell = true
	}
}

// remove takes a resting order out of the book
func (b *Book) remove(o *models.Order) error {
	level, ok := b.index[priceKey(o.Price())]
	if !ok {
		return fmt.Errorf("%w: %s in %s", errors.ErrPriceNotFound, o.Price(), b.pair)
	}
	found := -1
	for i, resting := range level.orders {
		if resting.ID == o.ID {
			found = i
			break
		}
	}
	if found < 0 {
		return fmt.Errorf("%w: %s", errors.ErrOrderNotFound, o.ID)
	}
	level.orders = append(level.orders[:found], level.orders[found+1:]...)
	delete(b.byID, o.ID)
	if len(level.orders) == 0 {
		b.dropLevel(level)
	}
	return nil
}

// popFront removes and returns the oldest order at a level
func (b *Book) popFront(level *priceLevel) *models.Order {
	o := level.orders[0]
	level.orders = level.orders[1:]
	delete(b.byID, o.ID)
	if len(level.orders) == 0 {
		b.dropLevel(level)
	}
	return o
}

// dropLevel unlinks an emptied level and advances the best price on its side
// to the neighboring level.
func (b *Book) dropLevel(level *priceLevel) {
	delete(b.index, priceKey(level.price))
	b.levels.Delete(level)

	if level.side == models.OrderSideBuy {
		if level.price.Equal(b.buyPrice) {
			b.buyPrice = decimal.Zero
			b.levels.Descend(level, func(next *priceLevel) bool {
				if next.side == models.OrderSideBuy {
					b.buyPrice = next.price
				}
				return false
			})
		}
	} else if b.hasSell && level.price.Equal(b.sellPrice) {
		b.hasSell = false
		b.sellPrice = decimal.Zero
		b.levels.Ascend(level, func(next *priceLevel) bool {
			if next.side == models.OrderSideSell {
				b.sellPrice = next.price
				b.hasSell = true
			}
			return false
		})
	}
}

// bestOpposing returns the level a taker of the given side matches first
func (b *Book) bestOpposing(side string) *priceLevel {
	if side == models.OrderSideBuy {
		if !b.hasSell {
			return nil
		}
		return b.index[priceKey(b.sellPrice)]
	}
	if !b.buyPrice.IsPositive() {
		return nil
	}
	return b.index[priceKey(b.buyPrice)]
}

// DepthLevel is one row of a book depth snapshot.
type DepthLevel struct {
	Price  decimal.Decimal `json:"price"`
	Side   string          `json:"side"`
	Orders int             `json:"orders"`
	Amount decimal.Decimal `json:"amount"`
}

// depth returns a snapshot of all price levels ascending by price, with the
// total owning amount resting at each.
func (b *Book) depth() []DepthLevel {
	snapshot := make([]DepthLevel, 0, b.levels.Len())
	b.levels.Scan(func(level *priceLevel) bool {
		total := decimal.Zero
		for _, o := range level.orders {
			total = total.Add(o.OwningAmount)
		}
		snapshot = append(snapshot, DepthLevel{
			Price:  level.price,
			Side:   level.side,
			Orders: len(level.orders),
			Amount: total,
		})
		return true
	})
	return snapshot
}

// sideCounts returns the number of resting orders per side
func (b *Book) sideCounts() (buys, sells int) {
	b.levels.Scan(func(level *priceLevel) bool {
		if level.side == models.OrderSideBuy {
			buys += len(level.orders)
		} else {
			sells += len(level.orders)
		}
		return true
	})
	return buys, sells
}
