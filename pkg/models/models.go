package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order statuses. Only ready orders are live in a book.
const (
	OrderStatusPreparing = "preparing"
	OrderStatusReady     = "ready"
	OrderStatusMatched   = "matched"
	OrderStatusCancelled = "cancelled"
)

// Order sides. The side is derived from the currency pair, never stored.
const (
	OrderSideBuy  = "buy"
	OrderSideSell = "sell"
)

// Pending operation types
const (
	OpTypeTransaction = "transaction"
	OpTypeTrade       = "trade"
)

// Trade statuses
const (
	TradeStatusProcessing = "processing"
	TradeStatusClosed     = "closed"
)

// Order represents a resting or in-flight intent to exchange the owning
// currency for the requesting currency.
type Order struct {
	ID                 uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid" validate:"required"`
	UserID             uuid.UUID       `json:"user_id" gorm:"type:uuid;index" validate:"required"`
	Pair               string          `json:"pair" gorm:"index" validate:"required"`
	Status             string          `json:"status" gorm:"index" validate:"required,oneof=preparing ready matched cancelled"`
	OwningCurrency     string          `json:"owning_currency" validate:"required"`
	OwningAmount       decimal.Decimal `json:"owning_amount" gorm:"type:decimal(36,18)"`
	RequestingCurrency string          `json:"requesting_currency" validate:"required"`
	RequestingAmount   decimal.Decimal `json:"requesting_amount" gorm:"type:decimal(36,18)"`
	OriginalOrderID    *uuid.UUID      `json:"original_order_id,omitempty" gorm:"type:uuid"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// PairKey returns the canonical key for an unordered currency pair: both
// currency names sorted ascending and joined with a slash.
func PairKey(a, b string) string {
	if a < b {
		return a + "/" + b
	}
	return b + "/" + a
}

// Side returns buy when the owning currency is the alphabetically first of
// the pair, sell otherwise.
func (o *Order) Side() string {
	if o.OwningCurrency < o.RequestingCurrency {
		return OrderSideBuy
	}
	return OrderSideSell
}

// Price is the amount of the alphabetically first currency of the pair
// divided by the amount of the other.
func (o *Order) Price() decimal.Decimal {
	if o.Side() == OrderSideBuy {
		return o.OwningAmount.Div(o.RequestingAmount)
	}
	return o.RequestingAmount.Div(o.OwningAmount)
}

// LockOpID returns the id of the pending operation holding this order's
// owning-currency lock: the original order id for a split leg, the order's
// own id otherwise.
func (o *Order) LockOpID() uuid.UUID {
	if o.OriginalOrderID != nil {
		return *o.OriginalOrderID
	}
	return o.ID
}

// Account represents a user's balance for a specific currency.
// available + locked is the total spendable amount; both are always >= 0.
type Account struct {
	ID        uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid" validate:"required"`
	UserID    uuid.UUID       `json:"user_id" gorm:"type:uuid;uniqueIndex:idx_accounts_user_currency" validate:"required"`
	Currency  string          `json:"currency" gorm:"uniqueIndex:idx_accounts_user_currency" validate:"required"`
	Available decimal.Decimal `json:"available" gorm:"type:decimal(36,18)"`
	Locked    decimal.Decimal `json:"locked" gorm:"type:decimal(36,18)"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// PendingOperation represents an in-flight ledger operation on an account.
// A positive amount is funds arriving (held in locked until completed); a
// negative amount is funds leaving (moved from available into locked at add
// time). The opid is unique per currency, so the same order id can key both
// its owning-currency lock and its requesting-currency credit.
type PendingOperation struct {
	ID          uuid.UUID       `json:"opid" gorm:"primaryKey;type:uuid" validate:"required"`
	Currency    string          `json:"currency" gorm:"primaryKey" validate:"required"`
	UserID      uuid.UUID       `json:"user_id" gorm:"type:uuid;index" validate:"required"`
	Type        string          `json:"type" validate:"required,oneof=transaction trade"`
	Amount      decimal.Decimal `json:"amount" gorm:"type:decimal(36,18)"`
	LockedBy    *uuid.UUID      `json:"locked_by,omitempty" gorm:"type:uuid"`
	LockedAt    *time.Time      `json:"locked_at,omitempty"`
	Completions string          `json:"completions,omitempty" gorm:"type:text"` // JSON array of completion-reference ids
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Trade is an immutable settlement record linking a maker and a taker order.
// Each leg carries what that party receives (its requesting side).
type Trade struct {
	ID            uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid" validate:"required"`
	Status        string          `json:"status" validate:"required,oneof=processing closed"`
	Pair          string          `json:"pair" gorm:"index" validate:"required"`
	MakerOrderID  uuid.UUID       `json:"maker_order_id" gorm:"type:uuid;index" validate:"required"`
	TakerOrderID  uuid.UUID       `json:"taker_order_id" gorm:"type:uuid;index" validate:"required"`
	MakerUserID   uuid.UUID       `json:"maker_user_id" gorm:"type:uuid;index" validate:"required"`
	TakerUserID   uuid.UUID       `json:"taker_user_id" gorm:"type:uuid;index" validate:"required"`
	MakerCurrency string          `json:"maker_currency" validate:"required"`
	MakerAmount   decimal.Decimal `json:"maker_amount" gorm:"type:decimal(36,18)"`
	MakerFee      decimal.Decimal `json:"maker_fee" gorm:"type:decimal(36,18)"`
	TakerCurrency string          `json:"taker_currency" validate:"required"`
	TakerAmount   decimal.Decimal `json:"taker_amount" gorm:"type:decimal(36,18)"`
	TakerFee      decimal.Decimal `json:"taker_fee" gorm:"type:decimal(36,18)"`
	CreatedAt     time.Time       `json:"created_at"`
}

// OrderRequest represents an order submission
type OrderRequest struct {
	UserID             uuid.UUID       `json:"user_id" validate:"required"`
	OwningCurrency     string          `json:"owning_currency" validate:"required,lowercase"`
	OwningAmount       decimal.Decimal `json:"owning_amount"`
	RequestingCurrency string          `json:"requesting_currency" validate:"required,lowercase,nefield=OwningCurrency"`
	RequestingAmount   decimal.Decimal `json:"requesting_amount"`
}
