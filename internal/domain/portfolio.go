// internal/domain/portfolio.go
package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PortfolioSnapshot is the portfolio state returned by one successful fetch.
// It is replaced wholesale on every poll and never mutated in place.
type PortfolioSnapshot struct {
	TotalValue    decimal.Decimal `json:"total_value"`
	CashBalance   decimal.Decimal `json:"cash_balance"`
	InvestedValue decimal.Decimal `json:"invested_value"`
	Positions     []Position      `json:"positions"`
	Performance   Performance     `json:"performance"`
}

// Position is a single holding. Shares are whole units upstream but arrive as
// JSON floats (10.0), so they are kept as decimals.
type Position struct {
	Symbol        string          `json:"symbol"`
	Shares        decimal.Decimal `json:"shares"`
	AvgCost       decimal.Decimal `json:"avg_cost"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	MarketValue   decimal.Decimal `json:"market_value"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
}

// Performance holds daily and total PnL figures.
type Performance struct {
	DailyPnL        decimal.Decimal `json:"daily_pnl"`
	DailyPnLPercent decimal.Decimal `json:"daily_pnl_percent"`
	TotalPnL        decimal.Decimal `json:"total_pnl"`
	TotalPnLPercent decimal.Decimal `json:"total_pnl_percent"`
}

// Clone returns a deep copy so that callers can't reach into store-owned slices.
func (p *PortfolioSnapshot) Clone() *PortfolioSnapshot {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Positions = append([]Position(nil), p.Positions...)
	return &cp
}

// Validate checks the invariants the dashboard relies on.
func (p *PortfolioSnapshot) Validate() error {
	for i, pos := range p.Positions {
		if pos.Symbol == "" {
			return &ValidationError{Field: fmt.Sprintf("positions[%d].symbol", i), Reason: "empty symbol"}
		}
		if pos.Shares.IsNegative() {
			return &ValidationError{Field: fmt.Sprintf("positions[%d].shares", i), Reason: "negative shares"}
		}
	}
	return nil
}

// ExpectedMarketValue is shares × current price. Display code may use it to
// flag rows where the upstream market value drifted; nothing reconciles it.
func (p Position) ExpectedMarketValue() decimal.Decimal {
	return p.Shares.Mul(p.CurrentPrice)
}
