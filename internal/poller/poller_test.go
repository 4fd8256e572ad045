// internal/poller/poller_test.go
package poller

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rovshanmuradov/dashsync/internal/api"
	"github.com/rovshanmuradov/dashsync/internal/domain"
	"github.com/rovshanmuradov/dashsync/internal/events"
	"github.com/rovshanmuradov/dashsync/internal/ui/state"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type fakeSource struct {
	portfolioCalls atomic.Int32
	tradesCalls    atomic.Int32
	lastLimit      atomic.Int32

	release chan struct{}
	entered chan struct{}

	mu        sync.Mutex
	portfolio *domain.PortfolioSnapshot
	trades    []domain.Trade
	perr      error
	terr      error
}

func (s *fakeSource) wait() {
	if s.entered != nil {
		select {
		case s.entered <- struct{}{}:
		default:
		}
	}
	if s.release != nil {
		<-s.release
	}
}

func (s *fakeSource) Portfolio(ctx context.Context) (*domain.PortfolioSnapshot, error) {
	s.portfolioCalls.Add(1)
	s.wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.portfolio, s.perr
}

func (s *fakeSource) Trades(ctx context.Context, limit int) ([]domain.Trade, error) {
	s.tradesCalls.Add(1)
	s.lastLimit.Store(int32(limit))
	s.wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trades, s.terr
}

func snapshot(total string) *domain.PortfolioSnapshot {
	return &domain.PortfolioSnapshot{TotalValue: decimal.RequireFromString(total)}
}

type refreshCounter struct {
	mu       sync.Mutex
	outcomes []string
}

func (c *refreshCounter) RecordRefresh(outcome string, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes = append(c.outcomes, outcome)
}

func TestRefreshSuccess(t *testing.T) {
	src := &fakeSource{portfolio: snapshot("100"), trades: []domain.Trade{{ID: 1, Symbol: "AAPL"}}}
	store := state.NewStore(zap.NewNop(), nil)
	counter := &refreshCounter{}
	p := New(src, store, zaptest.NewLogger(t), Config{}, WithRecorder(counter))

	res, err := p.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.True(t, res.Applied)

	v := store.Snapshot()
	assert.Equal(t, "100", v.Portfolio.TotalValue.String())
	assert.Len(t, v.Trades, 1)
	assert.False(t, v.Loading)
	assert.Empty(t, v.TradingError)
	assert.Equal(t, int32(api.DefaultTradeLimit), src.lastLimit.Load())
	assert.Equal(t, []string{OutcomeSuccess}, counter.outcomes)
}

func TestRefreshTradesFailureKeepsTrades(t *testing.T) {
	old := []domain.Trade{{ID: 9, Symbol: "MSFT"}}
	src := &fakeSource{portfolio: snapshot("1"), trades: old}
	store := state.NewStore(zap.NewNop(), nil)
	p := New(src, store, zap.NewNop(), Config{})
	_, err := p.Refresh(context.Background())
	require.NoError(t, err)

	src.mu.Lock()
	src.portfolio = snapshot("2")
	src.trades = nil
	src.terr = &api.NetworkError{Endpoint: "trades", Err: errors.New("timeout")}
	src.mu.Unlock()

	res, err := p.Refresh(context.Background())
	var pf *api.PartialFailure
	require.ErrorAs(t, err, &pf)
	assert.Nil(t, pf.PortfolioErr)
	assert.ErrorIs(t, pf.TradesErr, api.ErrNetwork)
	assert.Equal(t, OutcomePartial, res.Outcome)

	v := store.Snapshot()
	assert.Equal(t, "2", v.Portfolio.TotalValue.String())
	assert.Equal(t, old, v.Trades)
	assert.Equal(t, LoadFailedMessage, v.TradingError)
}

func TestRefreshFullFailureKeepsEverything(t *testing.T) {
	src := &fakeSource{portfolio: snapshot("5"), trades: []domain.Trade{{ID: 1}}}
	store := state.NewStore(zap.NewNop(), nil)
	p := New(src, store, zap.NewNop(), Config{})
	_, _ = p.Refresh(context.Background())
	before := store.Snapshot()

	src.mu.Lock()
	src.perr = &api.ServerError{Endpoint: "portfolio", StatusCode: 503, Detail: "Broker unavailable"}
	src.terr = &api.NetworkError{Endpoint: "trades", Err: errors.New("refused")}
	src.mu.Unlock()

	res, err := p.Refresh(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrServer)
	assert.ErrorIs(t, err, api.ErrNetwork)
	assert.Equal(t, OutcomeFailure, res.Outcome)

	v := store.Snapshot()
	assert.Equal(t, before.Portfolio, v.Portfolio)
	assert.Equal(t, before.Trades, v.Trades)
	assert.Equal(t, "Broker unavailable", v.TradingError)
	assert.False(t, v.Loading)

	// A later success clears the error.
	src.mu.Lock()
	src.perr, src.terr = nil, nil
	src.mu.Unlock()
	_, err = p.Refresh(context.Background())
	require.NoError(t, err)
	assert.Empty(t, store.Snapshot().TradingError)
}

func TestConcurrentRefreshesCoalesce(t *testing.T) {
	src := &fakeSource{
		portfolio: snapshot("1"),
		trades:    []domain.Trade{},
		release:   make(chan struct{}),
		entered:   make(chan struct{}, 1),
	}
	store := state.NewStore(zap.NewNop(), nil)
	p := New(src, store, zap.NewNop(), Config{})

	const n = 8
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = p.Refresh(context.Background())
	}()
	<-src.entered
	assert.True(t, store.Snapshot().Loading)

	for i := 1; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = p.Refresh(context.Background())
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(src.release)
	wg.Wait()

	assert.Equal(t, int32(1), src.portfolioCalls.Load())
	assert.Equal(t, int32(1), src.tradesCalls.Load())
	assert.Equal(t, uint64(1), store.Stats().Refreshes)
	assert.Equal(t, uint64(1), p.Cycles())
	assert.False(t, store.Snapshot().Loading)
}

func TestRefreshWaitsForBothFetches(t *testing.T) {
	src := &fakeSource{portfolio: snapshot("1"), trades: []domain.Trade{{ID: 1}}, perr: errors.New("fast failure")}
	slow := &slowTrades{fakeSource: src, delay: 30 * time.Millisecond}
	store := state.NewStore(zap.NewNop(), nil)
	p := New(slow, store, zap.NewNop(), Config{})

	_, err := p.Refresh(context.Background())
	require.Error(t, err)
	assert.Len(t, store.Snapshot().Trades, 1)
	assert.Equal(t, int32(1), src.tradesCalls.Load())
}

type slowTrades struct {
	*fakeSource
	delay time.Duration
}

func (s *slowTrades) Trades(ctx context.Context, limit int) ([]domain.Trade, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.fakeSource.Trades(ctx, limit)
}

func TestStopDiscardsInFlightResult(t *testing.T) {
	src := &fakeSource{
		portfolio: snapshot("1"),
		trades:    []domain.Trade{},
		release:   make(chan struct{}),
		entered:   make(chan struct{}, 1),
	}
	store := state.NewStore(zap.NewNop(), nil)
	p := New(src, store, zap.NewNop(), Config{Interval: time.Hour})

	require.NoError(t, p.Start(context.Background()))
	<-src.entered
	p.Stop()
	close(src.release)

	require.Eventually(t, func() bool { return !store.Snapshot().Loading }, time.Second, 5*time.Millisecond)
	assert.Nil(t, store.Snapshot().Portfolio)
	assert.Zero(t, store.Stats().Refreshes)

	_, err := p.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
	assert.ErrorIs(t, p.Start(context.Background()), ErrStopped)
}

func TestTimerDrivesRefreshes(t *testing.T) {
	src := &fakeSource{portfolio: snapshot("1"), trades: []domain.Trade{}}
	store := state.NewStore(zap.NewNop(), nil)
	p := New(src, store, zap.NewNop(), Config{Interval: 10 * time.Millisecond})

	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, p.Start(context.Background()))
	require.Eventually(t, func() bool { return p.Cycles() >= 3 }, 2*time.Second, 5*time.Millisecond)
	p.Stop()

	n := src.portfolioCalls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, src.portfolioCalls.Load())
}

func TestRefreshPublishesEvent(t *testing.T) {
	bus := events.NewBus(zaptest.NewLogger(t), 8)
	defer bus.Close()
	ch, sub := bus.Watch(events.RefreshCompleted, 1)
	defer sub.Unsubscribe()

	src := &fakeSource{portfolio: snapshot("1"), terr: errors.New("boom")}
	p := New(src, state.NewStore(zap.NewNop(), nil), zap.NewNop(), Config{}, WithPublisher(bus))
	_, _ = p.Refresh(context.Background())

	select {
	case e := <-ch:
		done := e.(events.RefreshCompletedEvent)
		assert.Equal(t, OutcomePartial, done.Outcome)
		assert.True(t, done.PortfolioFresh)
		assert.False(t, done.TradesFresh)
		assert.Equal(t, LoadFailedMessage, done.Error)
	case <-time.After(2 * time.Second):
		t.Fatal("no refresh event")
	}
}

func TestRefreshScenarioOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/portfolio":
			_, _ = io.WriteString(w, `{"total_value": 102345.67, "cash_balance": 5000, "positions": [
				{"symbol":"AAPL","shares":10,"avg_cost":150,"current_price":180,"market_value":1800,"unrealized_pnl":300}]}`)
		case "/api/v1/trades":
			assert.Equal(t, "20", r.URL.Query().Get("limit"))
			_, _ = io.WriteString(w, `[{"id":1,"symbol":"AAPL","side":"buy","quantity":10,"price":150,"total_amount":1500,"status":"filled"}]`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := api.NewClient(api.Config{APIBaseURL: srv.URL, MarketBaseURL: srv.URL + "/api/market"}, zap.NewNop())
	store := state.NewStore(zap.NewNop(), nil)
	p := New(client, store, zap.NewNop(), Config{TradeLimit: 20})

	_, err := p.Refresh(context.Background())
	require.NoError(t, err)

	v := store.Snapshot()
	require.NotNil(t, v.Portfolio)
	assert.True(t, v.Portfolio.TotalValue.Equal(decimal.RequireFromString("102345.67")))
	assert.Len(t, v.Trades, 1)
}
