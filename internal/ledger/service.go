// Package ledger implements the balance ledger: per (user, currency)
// available/locked balances with a pending-operations log. Every mutation is
// either a single conditional UPDATE or a transaction, so concurrent callers
// on the same account cannot race each other into a double-spend.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/orbitex/exchange/internal/currency"
	"github.com/orbitex/exchange/pkg/errors"
	"github.com/orbitex/exchange/pkg/models"
)

// Op describes a pending operation to be added to an account.
// A positive amount credits funds (held in locked until completed); a
// negative amount debits funds (moved from available into locked).
type Op struct {
	OpID   uuid.UUID
	Type   string
	Amount decimal.Decimal
}

// Service provides balance ledger operations
type Service struct {
	logger     *zap.Logger
	db         *gorm.DB
	currencies *currency.Registry
}

// NewService creates a new ledger service
func NewService(logger *zap.Logger, db *gorm.DB, currencies *currency.Registry) *Service {
	return &Service{
		logger:     logger,
		db:         db,
		currencies: currencies,
	}
}

// WithTx returns a copy of the service bound to an enclosing transaction, so
// settlement can run ledger operations inside its own unit of work.
func (s *Service) WithTx(tx *gorm.DB) *Service {
	return &Service{
		logger:     s.logger,
		db:         tx,
		currencies: s.currencies,
	}
}

// Add appends a pending operation to an account and adjusts its balances.
// For a negative amount the available-balance check is embedded in the
// conditional UPDATE itself; on failure nothing is mutated and
// ErrNotEnoughFunds is returned.
func (s *Service) Add(ctx context.Context, userID uuid.UUID, cur string, op Op) error {
	amount, err := s.currencies.Truncate(cur, op.Amount)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Ensure the account row exists
		var account models.Account
		if err := tx.Where("user_id = ? AND currency = ?", userID, cur).
			Attrs(models.Account{ID: uuid.New(), UserID: userID, Currency: cur}).
			FirstOrCreate(&account).Error; err != nil {
			return fmt.Errorf("failed to find account: %w", err)
		}

		if amount.IsNegative() {
			// Move |amount| from available to locked, only if available covers it
			debit := amount.Neg()
			result := tx.Model(&models.Account{}).
				Where("user_id = ? AND currency = ? AND available >= ?", userID, cur, debit).
				Updates(map[string]interface{}{
					"available":  gorm.Expr("available - ?", debit),
					"locked":     gorm.Expr("locked + ?", debit),
					"updated_at": time.Now(),
				})
			if result.Error != nil {
				return fmt.Errorf("failed to debit account: %w", result.Error)
			}
			if result.RowsAffected == 0 {
				return fmt.Errorf("%w: %s %s for user %s", errors.ErrNotEnoughFunds, debit, cur, userID)
			}
		} else {
			result := tx.Model(&models.Account{}).
				Where("user_id = ? AND currency = ?", userID, cur).
				Updates(map[string]interface{}{
					"locked":     gorm.Expr("locked + ?", amount),
					"updated_at": time.Now(),
				})
			if result.Error != nil {
				return fmt.Errorf("failed to credit account: %w", result.Error)
			}
		}

		pending := models.PendingOperation{
			ID:       op.OpID,
			Currency: cur,
			UserID:   userID,
			Type:     op.Type,
			Amount:   amount,
		}
		if err := tx.Create(&pending).Error; err != nil {
			return fmt.Errorf("failed to create pending operation: %w", err)
		}
		return nil
	})
}

// Get returns the pending operation with the given opid
func (s *Service) Get(ctx context.Context, userID uuid.UUID, cur string, opID uuid.UUID) (*models.PendingOperation, error) {
	var op models.PendingOperation
	err := s.db.WithContext(ctx).
		Where("id = ? AND currency = ? AND user_id = ?", opID, cur, userID).
		First(&op).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", errors.ErrOperationNotFound, opID)
		}
		return nil, fmt.Errorf("failed to find pending operation: %w", err)
	}
	return &op, nil
}

// Lock stamps a pending operation with a locker id so that two concurrent
// settlement attempts cannot act on the same operation.
func (s *Service) Lock(ctx context.Context, userID uuid.UUID, cur string, opID, lockerID uuid.UUID) error {
	now := time.Now()
	result := s.db.WithContext(ctx).Model(&models.PendingOperation{}).
		Where("id = ? AND currency = ? AND user_id = ? AND locked_by IS NULL", opID, cur, userID).
		Updates(map[string]interface{}{
			"locked_by": lockerID,
			"locked_at": now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to lock pending operation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", errors.ErrOperationNotFound, opID)
	}
	return nil
}

// Unlock clears the lock marker. Without force the caller must hold the lock.
func (s *Service) Unlock(ctx context.Context, userID uuid.UUID, cur string, opID, lockerID uuid.UUID, force bool) error {
	query := s.db.WithContext(ctx).Model(&models.PendingOperation{}).
		Where("id = ? AND currency = ? AND user_id = ?", opID, cur, userID)
	if !force {
		query = query.Where("locked_by = ?", lockerID)
	}
	result := query.Updates(map[string]interface{}{
		"locked_by": nil,
		"locked_at": nil,
	})
	if result.Error != nil {
		return fmt.Errorf("failed to unlock pending operation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", errors.ErrOperationNotFound, opID)
	}
	return nil
}

// Complete finalizes a pending operation, fully or partially.
//
// Full completion removes the operation: a positive amount moves from locked
// to available, a negative amount only releases locked (the funds already
// left available at Add time). Partial completion must be strictly smaller
// than the remaining amount, requires a reference id, and leaves the
// operation pending with reduced magnitude.
func (s *Service) Complete(ctx context.Context, userID uuid.UUID, cur string, opID uuid.UUID, lockerID *uuid.UUID, partial *decimal.Decimal) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var op models.PendingOperation
		err := tx.Where("id = ? AND currency = ? AND user_id = ?", opID, cur, userID).First(&op).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", errors.ErrOperationNotFound, opID)
			}
			return fmt.Errorf("failed to find pending operation: %w", err)
		}

		// The op must be unlocked or locked by the caller
		if op.LockedBy != nil && (lockerID == nil || *op.LockedBy != *lockerID) {
			return fmt.Errorf("%w: %s is locked by another operation", errors.ErrOperationNotFound, opID)
		}

		if partial == nil {
			// The delete asserts the amount we read: a racing completion
			// either takes the row first or shrinks it, and this caller
			// must not release funds it did not observe.
			result := tx.Where("id = ? AND currency = ? AND amount = ?", op.ID, op.Currency, op.Amount).
				Delete(&models.PendingOperation{})
			if result.Error != nil {
				return fmt.Errorf("failed to delete pending operation: %w", result.Error)
			}
			if result.RowsAffected == 0 {
				return fmt.Errorf("%w: %s", errors.ErrOperationNotFound, opID)
			}
			return s.release(tx, userID, cur, op.Amount)
		}

		amount, err := s.currencies.Truncate(cur, *partial)
		if err != nil {
			return err
		}
		remaining := op.Amount.Abs()
		if lockerID == nil {
			return fmt.Errorf("%w: partial completion requires a reference id", errors.ErrInvalidPartialAmount)
		}
		if !amount.IsPositive() || amount.Cmp(remaining) >= 0 {
			return fmt.Errorf("%w: %s of %s remaining", errors.ErrInvalidPartialAmount, amount, remaining)
		}

		completions, err := appendCompletion(op.Completions, *lockerID)
		if err != nil {
			return err
		}

		// Reduce the remaining amount toward zero
		newAmount := op.Amount.Sub(amount)
		if op.Amount.IsNegative() {
			newAmount = op.Amount.Add(amount)
		}
		result := tx.Model(&models.PendingOperation{}).
			Where("id = ? AND currency = ? AND amount = ?", op.ID, op.Currency, op.Amount).
			Updates(map[string]interface{}{
				"amount":      newAmount,
				"completions": completions,
				"updated_at":  time.Now(),
			})
		if result.Error != nil {
			return fmt.Errorf("failed to update pending operation: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", errors.ErrOperationNotFound, opID)
		}

		if op.Amount.IsNegative() {
			return s.release(tx, userID, cur, amount.Neg())
		}
		return s.release(tx, userID, cur, amount)
	})
}

// release applies the completion of the given (signed) pending amount to the
// account's balances. Positive amounts move locked to available; negative
// amounts only decrement locked.
func (s *Service) release(tx *gorm.DB, userID uuid.UUID, cur string, amount decimal.Decimal) error {
	magnitude := amount.Abs()
	updates := map[string]interface{}{
		"locked":     gorm.Expr("locked - ?", magnitude),
		"updated_at": time.Now(),
	}
	if amount.IsPositive() {
		updates["available"] = gorm.Expr("available + ?", magnitude)
	}
	result := tx.Model(&models.Account{}).
		Where("user_id = ? AND currency = ? AND locked >= ?", userID, cur, magnitude).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to release locked funds: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: locked balance below pending amount %s %s for user %s",
			errors.ErrInvariantViolation, magnitude, cur, userID)
	}
	return nil
}

// Cancel removes a pending operation, reversing its effect symmetrically to
// Add: a positive amount decrements locked, a negative amount restores the
// funds to available.
func (s *Service) Cancel(ctx context.Context, userID uuid.UUID, cur string, opID uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var op models.PendingOperation
		err := tx.Where("id = ? AND currency = ? AND user_id = ?", opID, cur, userID).First(&op).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", errors.ErrOperationNotFound, opID)
			}
			return fmt.Errorf("failed to find pending operation: %w", err)
		}
		result := tx.Where("id = ? AND currency = ? AND amount = ?", op.ID, op.Currency, op.Amount).
			Delete(&models.PendingOperation{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete pending operation: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", errors.ErrOperationNotFound, opID)
		}

		magnitude := op.Amount.Abs()
		updates := map[string]interface{}{
			"locked":     gorm.Expr("locked - ?", magnitude),
			"updated_at": time.Now(),
		}
		if op.Amount.IsNegative() {
			updates["available"] = gorm.Expr("available + ?", magnitude)
		}
		result = tx.Model(&models.Account{}).
			Where("user_id = ? AND currency = ? AND locked >= ?", userID, cur, magnitude).
			Updates(updates)
		if result.Error != nil {
			return fmt.Errorf("failed to restore balances: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: locked balance below pending amount %s %s for user %s",
				errors.ErrInvariantViolation, magnitude, cur, userID)
		}
		return nil
	})
}

// Balance returns the available and locked balance of an account. A missing
// account reads as zero.
func (s *Service) Balance(ctx context.Context, userID uuid.UUID, cur string) (available, locked decimal.Decimal, err error) {
	var account models.Account
	err = s.db.WithContext(ctx).
		Where("user_id = ? AND currency = ?", userID, cur).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, decimal.Zero, nil
		}
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to find account: %w", err)
	}
	return account.Available, account.Locked, nil
}

// Deposit credits funds to an account as an immediately-completed
// transaction operation.
func (s *Service) Deposit(ctx context.Context, userID uuid.UUID, cur string, amount decimal.Decimal) error {
	opID := uuid.New()
	if err := s.Add(ctx, userID, cur, Op{OpID: opID, Type: models.OpTypeTransaction, Amount: amount}); err != nil {
		return err
	}
	if err := s.Complete(ctx, userID, cur, opID, nil, nil); err != nil {
		return err
	}
	s.logger.Info("deposit completed",
		zap.String("user_id", userID.String()),
		zap.String("currency", cur),
		zap.String("amount", amount.String()))
	return nil
}

// Withdraw reserves funds for an outgoing transfer and returns the pending
// operation id. The external connector completes or cancels the operation
// once the transfer is confirmed or abandoned.
func (s *Service) Withdraw(ctx context.Context, userID uuid.UUID, cur string, amount decimal.Decimal) (uuid.UUID, error) {
	opID := uuid.New()
	err := s.Add(ctx, userID, cur, Op{OpID: opID, Type: models.OpTypeTransaction, Amount: amount.Neg()})
	if err != nil {
		return uuid.Nil, err
	}
	s.logger.Info("withdrawal reserved",
		zap.String("user_id", userID.String()),
		zap.String("currency", cur),
		zap.String("amount", amount.String()),
		zap.String("opid", opID.String()))
	return opID, nil
}

func appendCompletion(existing string, ref uuid.UUID) (string, error) {
	var refs []string
	if existing != "" {
		if err := json.Unmarshal([]byte(existing), &refs); err != nil {
			return "", fmt.Errorf("failed to decode completion references: %w", err)
		}
	}
	refs = append(refs, ref.String())
	encoded, err := json.Marshal(refs)
	if err != nil {
		return "", fmt.Errorf("failed to encode completion references: %w", err)
	}
	return string(encoded), nil
}
