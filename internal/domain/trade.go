// internal/domain/trade.go
package domain

import (
	"github.com/shopspring/decimal"
)

type TradeSide string

const (
	SideBuy  TradeSide = "buy"
	SideSell TradeSide = "sell"
)

func (s TradeSide) Valid() bool {
	return s == SideBuy || s == SideSell
}

type TradeStatus string

const (
	StatusFilled    TradeStatus = "filled"
	StatusPending   TradeStatus = "pending"
	StatusCancelled TradeStatus = "cancelled"
	StatusRejected  TradeStatus = "rejected"
	StatusPartial   TradeStatus = "partial"
)

func (s TradeStatus) Valid() bool {
	switch s {
	case StatusFilled, StatusPending, StatusCancelled, StatusRejected, StatusPartial:
		return true
	}
	return false
}

// Known strategy tags. The set is open: unknown tags are kept as-is.
const (
	StrategyMomentum      = "momentum"
	StrategyMeanReversion = "mean_reversion"
	StrategyBreakout      = "breakout"
	StrategyAISignal      = "ai_signal"
)

// Trade is one row of the trade history. List order is the server's order.
type Trade struct {
	ID              int64            `json:"id"`
	Symbol          string           `json:"symbol"`
	Side            TradeSide        `json:"side"`
	Quantity        decimal.Decimal  `json:"quantity"`
	Price           decimal.Decimal  `json:"price"`
	TotalAmount     decimal.Decimal  `json:"total_amount"`
	Status          TradeStatus      `json:"status"`
	Strategy        *string          `json:"strategy,omitempty"`
	ConfidenceScore *decimal.Decimal `json:"confidence_score,omitempty"`
	ExecutedAt      *Timestamp       `json:"executed_at,omitempty"`
	CreatedAt       Timestamp        `json:"created_at"`
}

// Validate reports the first broken invariant of a trade, if any.
func (t Trade) Validate() error {
	if t.Symbol == "" {
		return &ValidationError{Field: "symbol", Reason: "empty symbol"}
	}
	if !t.Quantity.IsPositive() {
		return &ValidationError{Field: "quantity", Reason: "quantity must be positive"}
	}
	if t.Price.IsNegative() {
		return &ValidationError{Field: "price", Reason: "negative price"}
	}
	return nil
}
