// internal/ui/state/store_test.go
package state

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rovshanmuradov/dashsync/internal/domain"
	"github.com/rovshanmuradov/dashsync/internal/events"
	"github.com/rovshanmuradov/dashsync/internal/quote"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.ViewChangedEvent
}

func (p *recordingPublisher) Publish(e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e.(events.ViewChangedEvent))
	return nil
}

func portfolio(total string) *domain.PortfolioSnapshot {
	return &domain.PortfolioSnapshot{
		TotalValue: decimal.RequireFromString(total),
		Positions:  []domain.Position{{Symbol: "AAPL", Shares: decimal.NewFromInt(10)}},
	}
}

func TestNewStoreInitialView(t *testing.T) {
	s := NewStore(zap.NewNop(), nil)
	v := s.Snapshot()

	assert.Nil(t, v.Portfolio)
	assert.Equal(t, domain.ConnectionUnknown, v.Connection.Status)
	assert.Equal(t, domain.StreamingStopped, v.Streaming.Status)
	assert.Zero(t, v.Revision)
}

func TestApplyRefreshReplacesBothSlots(t *testing.T) {
	pub := &recordingPublisher{}
	s := NewStore(zaptest.NewLogger(t), pub)

	require.True(t, s.BeginRefresh())
	assert.True(t, s.Snapshot().Loading)

	trades := []domain.Trade{{ID: 1, Symbol: "AAPL"}}
	require.True(t, s.ApplyRefresh(Refresh{Portfolio: portfolio("102345.67"), Trades: trades, HasTrades: true}))

	v := s.Snapshot()
	assert.False(t, v.Loading)
	assert.Equal(t, "102345.67", v.Portfolio.TotalValue.String())
	assert.Len(t, v.Trades, 1)
	assert.Empty(t, v.TradingError)
	assert.Equal(t, uint64(2), v.Revision)
	assert.Equal(t, v.PortfolioUpdatedAt, v.TradesUpdatedAt)

	require.Len(t, pub.events, 2)
	last := pub.events[1]
	assert.Equal(t, uint64(2), last.Revision)
	assert.True(t, last.Has(events.SlotPortfolio))
	assert.True(t, last.Has(events.SlotTrades))
}

func TestApplyRefreshPartialKeepsFailedSlot(t *testing.T) {
	s := NewStore(zap.NewNop(), nil)
	oldTrades := []domain.Trade{{ID: 7, Symbol: "MSFT"}}
	s.ApplyRefresh(Refresh{Portfolio: portfolio("1"), Trades: oldTrades, HasTrades: true})
	before := s.Snapshot()

	s.ApplyRefresh(Refresh{Portfolio: portfolio("2"), Error: "Failed to load trading data. Please check your connection."})

	v := s.Snapshot()
	assert.Equal(t, "2", v.Portfolio.TotalValue.String())
	assert.Equal(t, oldTrades, v.Trades)
	assert.Equal(t, before.TradesUpdatedAt, v.TradesUpdatedAt)
	assert.Equal(t, "Failed to load trading data. Please check your connection.", v.TradingError)
	assert.Equal(t, uint64(2), s.Stats().Refreshes)
}

func TestApplyRefreshEmptyTradeList(t *testing.T) {
	s := NewStore(zap.NewNop(), nil)
	s.ApplyRefresh(Refresh{Trades: []domain.Trade{{ID: 1}}, HasTrades: true})
	s.ApplyRefresh(Refresh{Trades: []domain.Trade{}, HasTrades: true})

	v := s.Snapshot()
	assert.NotNil(t, v.Trades)
	assert.Empty(t, v.Trades)

	out, err := json.Marshal(struct{ Trades []domain.Trade }{v.Trades})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Trades":[]}`, string(out))

	// A nil page from the client still means "loaded, zero trades".
	s.ApplyRefresh(Refresh{Trades: nil, HasTrades: true})
	assert.NotNil(t, s.Snapshot().Trades)
}

func TestSnapshotKeepsEmptyMarketSlots(t *testing.T) {
	s := NewStore(zap.NewNop(), nil)
	v := s.Snapshot()
	assert.Nil(t, v.Trades)
	assert.Nil(t, v.Quotes)

	s.ApplyQuotes([]quote.Record{}, "")
	s.ApplyAccounts([]domain.Account{}, "")
	s.ApplyRecent(RecentSeries{Symbol: "AAPL", Hours: 24, Points: []domain.PricePoint{}}, "")
	s.ApplySignals([]domain.Signal{}, "")

	v = s.Snapshot()
	assert.NotNil(t, v.Quotes)
	assert.NotNil(t, v.Accounts)
	assert.NotNil(t, v.Recent.Points)
	assert.NotNil(t, v.Signals)
}

func TestSnapshotIsolation(t *testing.T) {
	s := NewStore(zap.NewNop(), nil)
	s.ApplyRefresh(Refresh{Portfolio: portfolio("10"), Trades: []domain.Trade{{ID: 1, Symbol: "AAPL"}}, HasTrades: true})

	v := s.Snapshot()
	v.Trades[0].Symbol = "HACK"
	v.Portfolio.Positions[0].Symbol = "HACK"
	v.Portfolio.TotalValue = decimal.Zero

	again := s.Snapshot()
	assert.Equal(t, "AAPL", again.Trades[0].Symbol)
	assert.Equal(t, "AAPL", again.Portfolio.Positions[0].Symbol)
	assert.Equal(t, "10", again.Portfolio.TotalValue.String())
}

func TestCallerSliceNotRetained(t *testing.T) {
	s := NewStore(zap.NewNop(), nil)
	trades := []domain.Trade{{ID: 1, Symbol: "AAPL"}}
	s.ApplyRefresh(Refresh{Trades: trades, HasTrades: true})
	trades[0].Symbol = "HACK"

	assert.Equal(t, "AAPL", s.Snapshot().Trades[0].Symbol)
}

func TestClosedStoreDiscardsMutations(t *testing.T) {
	pub := &recordingPublisher{}
	s := NewStore(zap.NewNop(), pub)
	s.Close()

	assert.True(t, s.Closed())
	assert.False(t, s.ApplyRefresh(Refresh{Portfolio: portfolio("1")}))
	assert.False(t, s.SetConnection(domain.ConnectionState{Status: domain.ConnectionConnected}))
	assert.Nil(t, s.Snapshot().Portfolio)
	assert.Empty(t, pub.events)
	assert.Zero(t, s.Stats().Refreshes)
}

func TestConnectionAndStreamingErrors(t *testing.T) {
	s := NewStore(zap.NewNop(), nil)

	s.SetConnection(domain.ConnectionState{Status: domain.ConnectionError, Error: "Connection failed"})
	assert.Equal(t, "Connection failed", s.Snapshot().MarketError)

	s.SetConnection(domain.ConnectionState{Status: domain.ConnectionConnected})
	assert.Empty(t, s.Snapshot().MarketError)

	symbols := []string{"AAPL"}
	s.SetStreaming(domain.StreamingState{Status: domain.StreamingError, Symbols: symbols, Error: "Failed to start streaming"})
	symbols[0] = "HACK"

	v := s.Snapshot()
	assert.Equal(t, domain.StreamingError, v.Streaming.Status)
	assert.Equal(t, []string{"AAPL"}, v.Streaming.Symbols)
	assert.Equal(t, "Failed to start streaming", v.MarketError)
	assert.Empty(t, v.TradingError)
}

func TestTradingAndMarketErrorsAreIndependent(t *testing.T) {
	s := NewStore(zap.NewNop(), nil)
	const loadFailed = "Failed to load trading data. Please check your connection."

	s.ApplyRefresh(Refresh{Error: loadFailed})
	s.SetConnection(domain.ConnectionState{Status: domain.ConnectionConnected})
	s.ApplyQuotes(nil, "")

	v := s.Snapshot()
	assert.Equal(t, loadFailed, v.TradingError)
	assert.Empty(t, v.MarketError)

	s.SetConnection(domain.ConnectionState{Status: domain.ConnectionError, Error: "Connection failed"})
	s.ApplyRefresh(Refresh{Portfolio: portfolio("3"), Trades: []domain.Trade{}, HasTrades: true})

	v = s.Snapshot()
	assert.Empty(t, v.TradingError)
	assert.Equal(t, domain.ConnectionError, v.Connection.Status)
	assert.Equal(t, "Connection failed", v.MarketError)
	assert.Equal(t, []string{"Connection failed"}, v.Errors())
}

func TestMarketLoadingWaitsForEveryFetch(t *testing.T) {
	s := NewStore(zap.NewNop(), nil)
	s.BeginMarketFetch()
	s.BeginMarketFetch()

	s.ApplyQuotes(nil, "")
	assert.True(t, s.Snapshot().MarketLoading)

	s.ApplyRecent(RecentSeries{Symbol: "AAPL"}, "")
	assert.False(t, s.Snapshot().MarketLoading)

	// An unmatched apply never drives the counter negative.
	s.ApplySignals(nil, "")
	s.BeginMarketFetch()
	assert.True(t, s.Snapshot().MarketLoading)
	s.ApplyAccounts(nil, "")
	assert.False(t, s.Snapshot().MarketLoading)
}

func TestQuotesFailureClearsOnlyQuotes(t *testing.T) {
	s := NewStore(zap.NewNop(), nil)
	s.ApplyRefresh(Refresh{Portfolio: portfolio("5")})
	s.BeginMarketFetch()
	assert.True(t, s.Snapshot().MarketLoading)

	s.ApplyQuotes([]quote.Record{{Symbol: "AAPL", Price: quote.NumberValue(decimal.NewFromInt(1))}}, "")
	_, ok := s.Snapshot().Quote("AAPL")
	assert.True(t, ok)

	s.ApplyQuotes(nil, "Failed to get quotes")
	v := s.Snapshot()
	assert.Empty(t, v.Quotes)
	assert.False(t, v.MarketLoading)
	assert.Equal(t, "Failed to get quotes", v.MarketError)
	require.NotNil(t, v.Portfolio)
	assert.Equal(t, "5", v.Portfolio.TotalValue.String())
}

func TestAccountsFailureKeepsPrevious(t *testing.T) {
	s := NewStore(zap.NewNop(), nil)
	s.ApplyAccounts([]domain.Account{{AccountNumber: "123"}}, "")
	s.ApplyAccounts(nil, "Failed to get accounts")

	v := s.Snapshot()
	assert.Len(t, v.Accounts, 1)
	assert.Equal(t, "Failed to get accounts", v.MarketError)
}

func TestApplyRecentKeepsNewestPoints(t *testing.T) {
	s := NewStore(zap.NewNop(), nil)
	points := make([]domain.PricePoint, 80)
	for i := range points {
		points[i].ID = int64(i)
	}
	s.ApplyRecent(RecentSeries{Symbol: "AAPL", Hours: 24, Points: points}, "")

	v := s.Snapshot()
	require.Len(t, v.Recent.Points, MaxRecentPoints)
	assert.Equal(t, int64(30), v.Recent.Points[0].ID)
	assert.Equal(t, int64(79), v.Recent.Points[MaxRecentPoints-1].ID)
}

func TestApplySignals(t *testing.T) {
	s := NewStore(zap.NewNop(), nil)
	s.ApplySignals([]domain.Signal{{ID: 1, Symbol: "AAPL"}}, "")
	assert.Len(t, s.Snapshot().Signals, 1)

	s.ApplySignals(nil, "boom")
	assert.Len(t, s.Snapshot().Signals, 1)
	assert.Equal(t, "boom", s.Snapshot().MarketError)

	s.ApplySignals([]domain.Signal{}, "")
	assert.Empty(t, s.Snapshot().Signals)
	assert.Empty(t, s.Snapshot().MarketError)
}

// Readers must never see a portfolio from one generation together with the
// trades of another.
func TestConcurrentReadersSeeWholeGenerations(t *testing.T) {
	s := NewStore(zap.NewNop(), nil)
	const readers = 4

	var (
		wg       sync.WaitGroup
		ready    sync.WaitGroup
		observed atomic.Uint64
	)
	stop := make(chan struct{})
	ready.Add(readers)
	for r := 0; r < readers; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			first := true
			for {
				select {
				case <-stop:
					return
				default:
				}
				v := s.Snapshot()
				if first {
					ready.Done()
					first = false
				}
				if v.Portfolio == nil {
					continue
				}
				observed.Add(1)
				id := v.Portfolio.TotalValue.IntPart()
				if assert.Len(t, v.Trades, 1) {
					assert.Equal(t, id, v.Trades[0].ID)
				}
			}
		}()
	}

	ready.Wait()
	var writes uint64
	for i := int64(1); i <= 500 || observed.Load() < 200; i++ {
		s.ApplyRefresh(Refresh{
			Portfolio: &domain.PortfolioSnapshot{TotalValue: decimal.NewFromInt(i)},
			Trades:    []domain.Trade{{ID: i}},
			HasTrades: true,
		})
		writes++
	}
	close(stop)
	wg.Wait()

	stats := s.Stats()
	assert.Equal(t, writes, stats.Writes)
	assert.Equal(t, writes, stats.Revision)
	assert.GreaterOrEqual(t, observed.Load(), uint64(200))
}

func TestSubscribeDeliversSnapshots(t *testing.T) {
	bus := events.NewBus(zaptest.NewLogger(t), 16)
	defer bus.Close()
	s := NewStore(zap.NewNop(), bus)

	got := make(chan View, 4)
	sub := s.Subscribe(bus, func(v View, _ events.ViewChangedEvent) {
		got <- v
	})
	defer sub.Unsubscribe()

	s.ApplyRefresh(Refresh{Portfolio: portfolio("42")})

	select {
	case v := <-got:
		require.NotNil(t, v.Portfolio)
		assert.Equal(t, "42", v.Portfolio.TotalValue.String())
	case <-time.After(2 * time.Second):
		t.Fatal("no view delivered")
	}
}
