// Package settlement turns matched order pairs into trades: one transaction
// per pair moves the locked funds, credits both parties and records the
// trade, so a trade is never partially settled.
package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/orbitex/exchange/internal/ledger"
	"github.com/orbitex/exchange/pkg/errors"
	"github.com/orbitex/exchange/pkg/metrics"
	"github.com/orbitex/exchange/pkg/models"
)

// Settler settles matched order pairs against the ledger.
type Settler struct {
	logger *zap.Logger
	db     *gorm.DB
	ledger *ledger.Service
	events chan TradeEvent
}

// NewSettler creates a new settler
func NewSettler(logger *zap.Logger, db *gorm.DB, ledgerSvc *ledger.Service) *Settler {
	return &Settler{
		logger: logger,
		db:     db,
		ledger: ledgerSvc,
		events: make(chan TradeEvent, 256),
	}
}

// Events returns the channel trade events are emitted on
func (s *Settler) Events() <-chan TradeEvent {
	return s.events
}

// Settle atomically settles one maker/taker pair: creates the trade record,
// credits each party's requesting currency, completes both owning-currency
// locks and deletes the order documents. Amount or side mismatches indicate
// a matching bug and fail with ErrInvariantViolation before any mutation.
func (s *Settler) Settle(ctx context.Context, maker, taker *models.Order) error {
	if maker.Side() == taker.Side() {
		return fmt.Errorf("%w: maker and taker are both %s orders", errors.ErrInvariantViolation, maker.Side())
	}
	if !maker.OwningAmount.Equal(taker.RequestingAmount) || !maker.RequestingAmount.Equal(taker.OwningAmount) {
		return fmt.Errorf("%w: maker %s/%s and taker %s/%s amounts do not cross",
			errors.ErrInvariantViolation,
			maker.OwningAmount, maker.RequestingAmount,
			taker.OwningAmount, taker.RequestingAmount)
	}

	start := time.Now()
	trade := &models.Trade{
		ID:            uuid.New(),
		Status:        models.TradeStatusClosed,
		Pair:          maker.Pair,
		MakerOrderID:  maker.ID,
		TakerOrderID:  taker.ID,
		MakerUserID:   maker.UserID,
		TakerUserID:   taker.UserID,
		MakerCurrency: maker.RequestingCurrency,
		MakerAmount:   maker.RequestingAmount,
		MakerFee:      decimal.Zero,
		TakerCurrency: taker.RequestingCurrency,
		TakerAmount:   taker.RequestingAmount,
		TakerFee:      decimal.Zero,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lsvc := s.ledger.WithTx(tx)

		if err := tx.Create(trade).Error; err != nil {
			return fmt.Errorf("failed to create trade: %w", err)
		}
		if err := s.settleSide(ctx, lsvc, "maker", maker); err != nil {
			return err
		}
		if err := s.settleSide(ctx, lsvc, "taker", taker); err != nil {
			return err
		}
		result := tx.Where("id IN ?", []uuid.UUID{maker.ID, taker.ID}).Delete(&models.Order{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete settled orders: %w", result.Error)
		}
		return nil
	})
	if err != nil {
		return err
	}

	metrics.TradesSettled.Inc()
	metrics.SettlementLatency.Observe(time.Since(start).Seconds())
	s.logger.Info("trade settled",
		zap.String("trade_id", trade.ID.String()),
		zap.String("pair", trade.Pair),
		zap.String("maker_amount", trade.MakerAmount.String()),
		zap.String("taker_amount", trade.TakerAmount.String()))

	event := TradeEvent{
		TradeID:       trade.ID,
		Pair:          trade.Pair,
		MakerUserID:   trade.MakerUserID,
		TakerUserID:   trade.TakerUserID,
		MakerCurrency: trade.MakerCurrency,
		MakerAmount:   trade.MakerAmount,
		TakerCurrency: trade.TakerCurrency,
		TakerAmount:   trade.TakerAmount,
		Timestamp:     time.Now(),
	}
	select {
	case s.events <- event:
	default:
		s.logger.Warn("trade event channel full, dropping event",
			zap.String("trade_id", trade.ID.String()))
	}
	return nil
}

// settleSide moves one party's funds: credits the requesting currency,
// completes the owning-currency lock (partially when the order is a split
// leg of a larger lock) and releases the credit to available.
func (s *Settler) settleSide(ctx context.Context, lsvc *ledger.Service, role string, order *models.Order) error {
	// Credit what this party receives; the order id keys the credit op
	err := lsvc.Add(ctx, order.UserID, order.RequestingCurrency, ledger.Op{
		OpID:   order.ID,
		Type:   models.OpTypeTrade,
		Amount: order.RequestingAmount,
	})
	if err != nil {
		return fmt.Errorf("failed to credit %s: %w", role, err)
	}

	lockOpID := order.LockOpID()
	op, err := lsvc.Get(ctx, order.UserID, order.OwningCurrency, lockOpID)
	if err != nil {
		if errors.Is(err, errors.ErrOperationNotFound) {
			return fmt.Errorf("%w: %s order does not have a locked balance for order %s",
				errors.ErrInvariantViolation, role, order.ID)
		}
		return err
	}

	if op.Amount.Abs().Equal(order.OwningAmount) {
		if err := lsvc.Complete(ctx, order.UserID, order.OwningCurrency, lockOpID, nil, nil); err != nil {
			return fmt.Errorf("failed to complete %s lock: %w", role, err)
		}
	} else {
		ref := order.ID
		if err := lsvc.Complete(ctx, order.UserID, order.OwningCurrency, lockOpID, &ref, &order.OwningAmount); err != nil {
			return fmt.Errorf("failed to complete %s lock: %w", role, err)
		}
	}

	if err := lsvc.Complete(ctx, order.UserID, order.RequestingCurrency, order.ID, nil, nil); err != nil {
		return fmt.Errorf("failed to complete %s credit: %w", role, err)
	}
	return nil
}
