// internal/market/desk.go
package market

import (
	"context"
	"time"

	"github.com/rovshanmuradov/dashsync/internal/api"
	"github.com/rovshanmuradov/dashsync/internal/domain"
	"github.com/rovshanmuradov/dashsync/internal/quote"
	"github.com/rovshanmuradov/dashsync/internal/ui/state"
	"github.com/rovshanmuradov/dashsync/internal/utils/logger"
	"go.uber.org/zap"
)

const (
	QuotesFailedMessage   = "Failed to get quotes"
	AccountsFailedMessage = "Failed to get accounts"
	RecentFailedMessage   = "Failed to get recent data"
	SignalsFailedMessage  = "Failed to get signals"

	DefaultTimeout = 15 * time.Second
)

// Source is the market-data API.
type Source interface {
	Quotes(ctx context.Context, symbols []string) (map[string]any, error)
	Accounts(ctx context.Context) ([]domain.Account, error)
	RecentData(ctx context.Context, symbol string, hours int) ([]domain.PricePoint, error)
	RecentSignals(ctx context.Context, limit int) ([]domain.Signal, error)
}

// Sink is the part of the store the desk writes to.
type Sink interface {
	BeginMarketFetch() bool
	ApplyQuotes(records []quote.Record, errMsg string) bool
	ApplyAccounts(accounts []domain.Account, errMsg string) bool
	ApplyRecent(series state.RecentSeries, errMsg string) bool
	ApplySignals(signals []domain.Signal, errMsg string) bool
}

// Desk runs on-demand market-data fetches and stores their results.
type Desk struct {
	source     Source
	sink       Sink
	normalizer *quote.Normalizer
	logger     *zap.Logger
	timeout    time.Duration
}

// NewDesk creates a desk. A nil normalizer uses the default field table.
func NewDesk(source Source, sink Sink, normalizer *quote.Normalizer, log *zap.Logger) *Desk {
	if normalizer == nil {
		normalizer = quote.MustNormalizer(nil)
	}
	return &Desk{
		source:     source,
		sink:       sink,
		normalizer: normalizer,
		logger:     log.Named("market"),
		timeout:    DefaultTimeout,
	}
}

// FetchQuotes fetches and normalizes quotes for symbols, in the requested
// order. On failure the stored quotes are cleared.
func (d *Desk) FetchQuotes(ctx context.Context, symbols []string) ([]quote.Record, error) {
	symbols, err := domain.RequireSymbols(symbols)
	if err != nil {
		return nil, err
	}
	log := logger.Operation(d.logger, "quotes")
	d.sink.BeginMarketFetch()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	raw, err := d.source.Quotes(ctx, symbols)
	if err != nil {
		log.Warn("Quote fetch failed", zap.Strings("symbols", symbols), zap.Error(err))
		d.sink.ApplyQuotes(nil, api.Message(err, QuotesFailedMessage))
		return nil, err
	}

	records := d.normalizer.Normalize(raw, symbols)
	log.Debug("Quotes fetched", zap.Int("requested", len(symbols)), zap.Int("received", len(records)))
	d.sink.ApplyQuotes(records, "")
	return records, nil
}

// FetchAccounts lists linked accounts.
func (d *Desk) FetchAccounts(ctx context.Context) ([]domain.Account, error) {
	log := logger.Operation(d.logger, "accounts")
	d.sink.BeginMarketFetch()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	accounts, err := d.source.Accounts(ctx)
	if err != nil {
		log.Warn("Account fetch failed", zap.Error(err))
		d.sink.ApplyAccounts(nil, api.Message(err, AccountsFailedMessage))
		return nil, err
	}
	log.Debug("Accounts fetched", zap.Int("count", len(accounts)))
	d.sink.ApplyAccounts(accounts, "")
	return accounts, nil
}

// FetchRecent fetches the captured series for symbol. Non-positive hours
// means api.DefaultRecentHours.
func (d *Desk) FetchRecent(ctx context.Context, symbol string, hours int) (state.RecentSeries, error) {
	normalized, err := domain.RequireSymbols([]string{symbol})
	if err != nil {
		return state.RecentSeries{}, err
	}
	symbol = normalized[0]
	if hours <= 0 {
		hours = api.DefaultRecentHours
	}
	log := logger.Operation(d.logger, "recent_data")
	d.sink.BeginMarketFetch()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	points, err := d.source.RecentData(ctx, symbol, hours)
	if err != nil {
		log.Warn("Recent data fetch failed", zap.String("symbol", symbol), zap.Error(err))
		d.sink.ApplyRecent(state.RecentSeries{}, api.Message(err, RecentFailedMessage))
		return state.RecentSeries{}, err
	}

	series := state.RecentSeries{Symbol: symbol, Hours: hours, Points: points}
	log.Debug("Recent data fetched", zap.String("symbol", series.Symbol), zap.Int("points", len(points)))
	d.sink.ApplyRecent(series, "")
	return series, nil
}

// FetchSignals fetches the most recent trading signals.
func (d *Desk) FetchSignals(ctx context.Context, limit int) ([]domain.Signal, error) {
	log := logger.Operation(d.logger, "signals")
	d.sink.BeginMarketFetch()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	signals, err := d.source.RecentSignals(ctx, limit)
	if err != nil {
		log.Warn("Signal fetch failed", zap.Error(err))
		d.sink.ApplySignals(nil, api.Message(err, SignalsFailedMessage))
		return nil, err
	}
	log.Debug("Signals fetched", zap.Int("count", len(signals)))
	d.sink.ApplySignals(signals, "")
	return signals, nil
}
