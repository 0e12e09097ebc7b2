package market

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/orbitex/exchange/internal/currency"
	"github.com/orbitex/exchange/internal/ledger"
	"github.com/orbitex/exchange/pkg/errors"
	"github.com/orbitex/exchange/pkg/metrics"
	"github.com/orbitex/exchange/pkg/models"
)

// TradeSettler settles one matched maker/taker pair atomically.
type TradeSettler interface {
	Settle(ctx context.Context, maker, taker *models.Order) error
}

// bookEntry pairs a book with the mutex that serializes all access to it.
// First-come-first-matched within a pair is defined by lock acquisition order.
type bookEntry struct {
	mu   sync.Mutex
	book *Book
}

// Registry owns one order book per currency pair and is the single entry
// point for submitting and cancelling orders. It wraps the balance-lock step
// around book insertion and hands match pairs to the settler.
type Registry struct {
	logger     *zap.Logger
	db         *gorm.DB
	ledger     *ledger.Service
	currencies *currency.Registry
	settler    TradeSettler
	validate   *validator.Validate

	mu    sync.Mutex
	books map[string]*bookEntry
}

// NewRegistry creates a new market registry
func NewRegistry(logger *zap.Logger, db *gorm.DB, ledgerSvc *ledger.Service, currencies *currency.Registry, settler TradeSettler) *Registry {
	return &Registry{
		logger:     logger,
		db:         db,
		ledger:     ledgerSvc,
		currencies: currencies,
		settler:    settler,
		validate:   validator.New(),
		books:      make(map[string]*bookEntry),
	}
}

// book returns the entry for a pair, bootstrapping the in-memory book from
// persisted ready orders on first use.
func (r *Registry) book(ctx context.Context, pair string) (*bookEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.books[pair]; ok {
		return entry, nil
	}

	book := newBook(pair, r.currencies)
	var orders []*models.Order
	err := r.db.WithContext(ctx).
		Where("pair = ? AND status = ?", pair, models.OrderStatusReady).
		Order("created_at ASC").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load resting orders for %s: %w", pair, err)
	}
	for _, o := range orders {
		if book.crosses(o) {
			r.logger.Warn("crossing order found during bootstrap",
				zap.String("pair", pair),
				zap.String("order_id", o.ID.String()))
		}
		book.insertMaker(o, false)
	}
	r.logger.Info("order book bootstrapped",
		zap.String("pair", pair),
		zap.Int("orders", len(orders)))

	entry := &bookEntry{book: book}
	r.books[pair] = entry
	return entry, nil
}

// Warm bootstraps books for every pair that has persisted ready orders, so
// the first order after a restart does not pay the bootstrap cost.
func (r *Registry) Warm(ctx context.Context) error {
	var pairs []string
	err := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("status = ?", models.OrderStatusReady).
		Distinct().Pluck("pair", &pairs).Error
	if err != nil {
		return fmt.Errorf("failed to list pairs: %w", err)
	}
	for _, pair := range pairs {
		if _, err := r.book(ctx, pair); err != nil {
			return err
		}
	}
	return nil
}

// Submit validates an order request, locks the owning funds and executes the
// order against its pair's book: crossing orders match immediately, the rest
// rest as makers. Settlement failures propagate to the caller.
func (r *Registry) Submit(ctx context.Context, req *models.OrderRequest) (*models.Order, error) {
	if err := r.validate.Struct(req); err != nil {
		metrics.OrdersRejected.WithLabelValues("validation").Inc()
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidOrder, err)
	}
	owning, err := r.currencies.Truncate(req.OwningCurrency, req.OwningAmount)
	if err != nil {
		metrics.OrdersRejected.WithLabelValues("currency").Inc()
		return nil, err
	}
	requesting, err := r.currencies.Truncate(req.RequestingCurrency, req.RequestingAmount)
	if err != nil {
		metrics.OrdersRejected.WithLabelValues("currency").Inc()
		return nil, err
	}
	if !owning.IsPositive() || !requesting.IsPositive() {
		metrics.OrdersRejected.WithLabelValues("amount").Inc()
		return nil, fmt.Errorf("%w: amounts must be positive after truncation", errors.ErrInvalidOrder)
	}

	order := &models.Order{
		ID:                 uuid.New(),
		UserID:             req.UserID,
		Pair:               models.PairKey(req.OwningCurrency, req.RequestingCurrency),
		Status:             models.OrderStatusPreparing,
		OwningCurrency:     req.OwningCurrency,
		OwningAmount:       owning,
		RequestingCurrency: req.RequestingCurrency,
		RequestingAmount:   requesting,
	}
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	// Lock the owning funds; an insufficient balance rolls the document back
	err = r.ledger.Add(ctx, order.UserID, order.OwningCurrency, ledger.Op{
		OpID:   order.ID,
		Type:   models.OpTypeTrade,
		Amount: owning.Neg(),
	})
	if err != nil {
		if delErr := r.db.WithContext(ctx).Delete(order).Error; delErr != nil {
			r.logger.Error("failed to roll back unfunded order",
				zap.String("order_id", order.ID.String()),
				zap.Error(delErr))
		}
		if errors.Is(err, errors.ErrNotEnoughFunds) {
			metrics.OrdersRejected.WithLabelValues("funds").Inc()
		}
		return nil, err
	}

	// Resolve the book before the order turns ready: a first-use bootstrap
	// reads all ready orders for the pair and must not see this one, or it
	// would rest both the bootstrapped copy and the one inserted below.
	entry, err := r.book(ctx, order.Pair)
	if err != nil {
		if cancelErr := r.ledger.Cancel(ctx, order.UserID, order.OwningCurrency, order.ID); cancelErr != nil {
			r.logger.Error("failed to release lock of unbooked order",
				zap.String("order_id", order.ID.String()),
				zap.Error(cancelErr))
		}
		if delErr := r.db.WithContext(ctx).Delete(order).Error; delErr != nil {
			r.logger.Error("failed to roll back unbooked order",
				zap.String("order_id", order.ID.String()),
				zap.Error(delErr))
		}
		return nil, err
	}

	order.Status = models.OrderStatusReady
	if err := r.db.WithContext(ctx).Model(order).Update("status", order.Status).Error; err != nil {
		return nil, fmt.Errorf("failed to mark order ready: %w", err)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	metrics.OrdersAccepted.WithLabelValues(order.Side()).Inc()

	if !entry.book.crosses(order) {
		entry.book.insertMaker(order, false)
		r.observeDepth(entry.book)
		return order, nil
	}

	start := time.Now()
	res, err := entry.book.matchTaker(order)
	if err != nil {
		return nil, err
	}
	metrics.MatchLatency.Observe(time.Since(start).Seconds())

	if err := r.persistMatch(ctx, res); err != nil {
		return nil, err
	}
	for _, pair := range res.pairs {
		if err := r.settler.Settle(ctx, pair.Maker, pair.Taker); err != nil {
			r.logger.Error("settlement failed",
				zap.String("maker_id", pair.Maker.ID.String()),
				zap.String("taker_id", pair.Taker.ID.String()),
				zap.Error(err))
			return nil, err
		}
	}
	if res.dust != nil {
		if err := r.cancelDust(ctx, res.dust); err != nil {
			return nil, err
		}
	}
	r.observeDepth(entry.book)
	return order, nil
}

// persistMatch writes all order documents a match produced in one unit of
// work: new clone legs, matched originals and reduced resting remainders.
func (r *Registry) persistMatch(ctx context.Context, res *matchResult) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, o := range res.created {
			if err := tx.Create(o).Error; err != nil {
				return fmt.Errorf("failed to create matched order leg: %w", err)
			}
		}
		changed := make([]*models.Order, 0, len(res.updated)+len(res.resting))
		changed = append(changed, res.updated...)
		changed = append(changed, res.resting...)
		for _, o := range changed {
			if err := tx.Save(o).Error; err != nil {
				return fmt.Errorf("failed to update order %s: %w", o.ID, err)
			}
		}
		return nil
	})
}

// cancelDust removes a sub-precision taker remainder: the document is
// deleted and whatever is left of its balance lock returns to available.
func (r *Registry) cancelDust(ctx context.Context, o *models.Order) error {
	if err := r.db.WithContext(ctx).Delete(&models.Order{}, "id = ?", o.ID).Error; err != nil {
		return fmt.Errorf("failed to delete dust remainder: %w", err)
	}
	if err := r.ledger.Cancel(ctx, o.UserID, o.OwningCurrency, o.LockOpID()); err != nil {
		return fmt.Errorf("failed to cancel dust lock: %w", err)
	}
	r.logger.Warn("cancelled dust order remainder",
		zap.String("order_id", o.ID.String()),
		zap.String("amount", o.OwningAmount.String()),
		zap.String("currency", o.OwningCurrency))
	return nil
}

// Cancel withdraws a still-ready order: removes it from the book and
// storage and returns its locked funds. An order already consumed by a
// match yields ErrOrderNotFound.
func (r *Registry) Cancel(ctx context.Context, userID, orderID uuid.UUID) error {
	var order models.Order
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", orderID, userID).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", errors.ErrOrderNotFound, orderID)
		}
		return fmt.Errorf("failed to find order: %w", err)
	}
	if order.Status != models.OrderStatusReady {
		return fmt.Errorf("%w: %s is not ready", errors.ErrOrderNotFound, orderID)
	}

	entry, err := r.book(ctx, order.Pair)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	// The conditional delete resolves a race against an in-flight match:
	// an order no longer ready is already consumed.
	result := r.db.WithContext(ctx).
		Where("id = ? AND status = ?", orderID, models.OrderStatusReady).
		Delete(&models.Order{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete order: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", errors.ErrOrderNotFound, orderID)
	}

	if resting, ok := entry.book.byID[orderID]; ok {
		if err := entry.book.remove(resting); err != nil {
			return err
		}
	} else {
		r.logger.Warn("cancelled order was not resting in book",
			zap.String("order_id", orderID.String()))
	}

	if err := r.ledger.Cancel(ctx, userID, order.OwningCurrency, order.LockOpID()); err != nil {
		return err
	}
	r.observeDepth(entry.book)
	r.logger.Info("order cancelled",
		zap.String("order_id", orderID.String()),
		zap.String("pair", order.Pair))
	return nil
}

// Depth returns a price-ascending snapshot of the book for a currency pair
func (r *Registry) Depth(ctx context.Context, currencyA, currencyB string) ([]DepthLevel, error) {
	if currencyA == currencyB {
		return nil, fmt.Errorf("%w: identical currencies", errors.ErrMarketNotFound)
	}
	if _, err := r.currencies.Lookup(currencyA); err != nil {
		return nil, err
	}
	if _, err := r.currencies.Lookup(currencyB); err != nil {
		return nil, err
	}
	entry, err := r.book(ctx, models.PairKey(currencyA, currencyB))
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.book.depth(), nil
}

func (r *Registry) observeDepth(b *Book) {
	buys, sells := b.sideCounts()
	metrics.BookDepth.WithLabelValues(b.pair, models.OrderSideBuy).Set(float64(buys))
	metrics.BookDepth.WithLabelValues(b.pair, models.OrderSideSell).Set(float64(sells))
}
