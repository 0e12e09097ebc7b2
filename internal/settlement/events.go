package settlement

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TradeEvent is emitted on the settler's event channel after a trade commits.
// Transport adapters subscribe to the channel; the core never blocks on them.
type TradeEvent struct {
	TradeID       uuid.UUID       `json:"trade_id"`
	Pair          string          `json:"pair"`
	MakerUserID   uuid.UUID       `json:"maker_user_id"`
	TakerUserID   uuid.UUID       `json:"taker_user_id"`
	MakerCurrency string          `json:"maker_currency"`
	MakerAmount   decimal.Decimal `json:"maker_amount"`
	TakerCurrency string          `json:"taker_currency"`
	TakerAmount   decimal.Decimal `json:"taker_amount"`
	Timestamp     time.Time       `json:"timestamp"`
}
