// internal/domain/market.go
package domain

import (
	"github.com/shopspring/decimal"
)

// Account is a linked brokerage account descriptor.
type Account struct {
	HashValue     string `json:"hashValue"`
	AccountNumber string `json:"accountNumber"`
}

// PricePoint is one sample of the captured real-time series.
type PricePoint struct {
	ID        int64           `json:"id,omitempty"`
	Timestamp Timestamp       `json:"timestamp"`
	Price     decimal.Decimal `json:"price"`
	Volume    int64           `json:"volume,omitempty"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
}

// Signal is a trading signal recorded by the remote service.
type Signal struct {
	ID         int64           `json:"id"`
	Symbol     string          `json:"symbol"`
	SignalType string          `json:"signal_type"`
	Strength   decimal.Decimal `json:"strength"`
	Price      decimal.Decimal `json:"price"`
	Timestamp  Timestamp       `json:"timestamp"`
	Metadata   map[string]any  `json:"metadata,omitempty"`
}
