// internal/ui/state/store.go
package state

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rovshanmuradov/dashsync/internal/domain"
	"github.com/rovshanmuradov/dashsync/internal/events"
	"github.com/rovshanmuradov/dashsync/internal/quote"
	"go.uber.org/zap"
)

// MaxRecentPoints bounds the recent series kept for display.
const MaxRecentPoints = 50

// RecentSeries is the time series shown for one symbol.
type RecentSeries struct {
	Symbol string
	Hours  int
	Points []domain.PricePoint
}

// View is one generation of the view model. A View is never modified after
// it has been published; every mutation produces a new one.
type View struct {
	Portfolio *domain.PortfolioSnapshot
	Trades    []domain.Trade
	Quotes    []quote.Record
	Accounts  []domain.Account
	Recent    RecentSeries
	Signals   []domain.Signal

	Connection domain.ConnectionState
	Streaming  domain.StreamingState

	Loading       bool
	MarketLoading bool

	// TradingError belongs to the polling cycle, MarketError to the
	// connection, streaming and market-data operations. Each writer only
	// sets or clears its own.
	TradingError string
	MarketError  string

	PortfolioUpdatedAt time.Time
	TradesUpdatedAt    time.Time
	QuotesUpdatedAt    time.Time
	UpdatedAt          time.Time
	Revision           uint64

	marketPending int
}

// clone deep-copies every slice so callers may keep or modify the result.
// A nil slice (never loaded) stays nil and an empty one stays empty.
func (v View) clone() View {
	v.Portfolio = v.Portfolio.Clone()
	v.Trades = slices.Clone(v.Trades)
	v.Quotes = slices.Clone(v.Quotes)
	v.Accounts = slices.Clone(v.Accounts)
	v.Recent.Points = slices.Clone(v.Recent.Points)
	v.Signals = slices.Clone(v.Signals)
	v.Streaming = v.Streaming.Clone()
	return v
}

// Errors returns the non-empty error messages, trading first.
func (v View) Errors() []string {
	var out []string
	for _, msg := range []string{v.TradingError, v.MarketError} {
		if msg != "" {
			out = append(out, msg)
		}
	}
	return out
}

// Quote returns the record for symbol, if present.
func (v View) Quote(symbol string) (quote.Record, bool) {
	for _, r := range v.Quotes {
		if r.Symbol == symbol {
			return r, true
		}
	}
	return quote.Record{}, false
}

// Refresh is the outcome of one polling cycle. A nil Portfolio or
// HasTrades=false leaves the corresponding slot untouched.
type Refresh struct {
	Portfolio *domain.PortfolioSnapshot
	Trades    []domain.Trade
	HasTrades bool
	Error     string
}

// Stats are store counters.
type Stats struct {
	Revision  uint64
	Reads     uint64
	Writes    uint64
	Refreshes uint64
}

// Store owns the view model. Writers are serialized; readers load the
// current View without locking and always see a complete generation.
type Store struct {
	mu        sync.Mutex
	current   atomic.Pointer[View]
	closed    bool
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time

	// Statistics (accessed atomically)
	reads     atomic.Uint64
	writes    atomic.Uint64
	refreshes atomic.Uint64
}

// NewStore creates an empty store. publisher may be nil.
func NewStore(logger *zap.Logger, publisher events.Publisher) *Store {
	s := &Store{
		publisher: publisher,
		logger:    logger.Named("store"),
		now:       time.Now,
	}
	s.current.Store(&View{
		Connection: domain.ConnectionState{Status: domain.ConnectionUnknown},
		Streaming:  domain.StreamingState{Status: domain.StreamingStopped},
	})
	return s
}

// Snapshot returns a private copy of the current view.
func (s *Store) Snapshot() View {
	s.reads.Add(1)
	return s.current.Load().clone()
}

// Revision returns the generation number of the current view.
func (s *Store) Revision() uint64 {
	return s.current.Load().Revision
}

// Stats returns store counters.
func (s *Store) Stats() Stats {
	return Stats{
		Revision:  s.Revision(),
		Reads:     s.reads.Load(),
		Writes:    s.writes.Load(),
		Refreshes: s.refreshes.Load(),
	}
}

// Close tears the store down. Later mutations are discarded.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// Closed reports whether Close has been called.
func (s *Store) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// update applies fn to a copy of the current view and publishes the result
// as the next generation. It reports false when the store is closed.
// fn must replace slices, never write into them.
func (s *Store) update(slots []events.Slot, fn func(*View)) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Debug("Mutation discarded on closed store")
		return false
	}
	next := *s.current.Load()
	fn(&next)
	next.Revision++
	next.UpdatedAt = s.now()
	s.current.Store(&next)
	s.writes.Add(1)
	s.mu.Unlock()

	if s.publisher != nil {
		err := s.publisher.Publish(events.ViewChangedEvent{
			BaseEvent: events.NewBase(events.ViewChanged),
			Revision:  next.Revision,
			Slots:     slots,
		})
		if err != nil {
			s.logger.Debug("View change not published",
				zap.Uint64("revision", next.Revision),
				zap.Error(err))
		}
	}
	return true
}

// BeginRefresh raises the loading flag.
func (s *Store) BeginRefresh() bool {
	return s.update([]events.Slot{events.SlotLoading}, func(v *View) {
		v.Loading = true
	})
}

// ApplyRefresh records a completed polling cycle in a single generation:
// fetched slots are replaced, the others keep their last good data, the
// trading error is set (or cleared when empty) and loading is lowered.
func (s *Store) ApplyRefresh(r Refresh) bool {
	slots := []events.Slot{events.SlotLoading, events.SlotError}
	if r.Portfolio != nil {
		slots = append(slots, events.SlotPortfolio)
	}
	if r.HasTrades {
		slots = append(slots, events.SlotTrades)
	}

	portfolio := r.Portfolio.Clone()
	var trades []domain.Trade
	if r.HasTrades {
		trades = append([]domain.Trade{}, r.Trades...)
	}

	ok := s.update(slots, func(v *View) {
		now := s.now()
		if portfolio != nil {
			v.Portfolio = portfolio
			v.PortfolioUpdatedAt = now
		}
		if r.HasTrades {
			v.Trades = trades
			v.TradesUpdatedAt = now
		}
		v.TradingError = r.Error
		v.Loading = false
	})
	if ok {
		s.refreshes.Add(1)
	}
	return ok
}

// EndRefresh lowers the loading flag without touching data.
func (s *Store) EndRefresh() bool {
	return s.update([]events.Slot{events.SlotLoading}, func(v *View) {
		v.Loading = false
	})
}

// SetConnection records the connection state. An error state also becomes
// the market error; a connected state clears it.
func (s *Store) SetConnection(c domain.ConnectionState) bool {
	return s.update([]events.Slot{events.SlotConnection, events.SlotError}, func(v *View) {
		v.Connection = c
		switch c.Status {
		case domain.ConnectionError:
			v.MarketError = c.Error
		case domain.ConnectionConnected:
			v.MarketError = ""
		}
	})
}

// SetStreaming records the streaming state. An error state also becomes
// the market error.
func (s *Store) SetStreaming(st domain.StreamingState) bool {
	st = st.Clone()
	return s.update([]events.Slot{events.SlotStreaming, events.SlotError}, func(v *View) {
		v.Streaming = st
		if st.Status == domain.StreamingError {
			v.MarketError = st.Error
		}
	})
}

// BeginMarketFetch raises the market loading flag. It stays up until every
// fetch begun this way has been applied.
func (s *Store) BeginMarketFetch() bool {
	return s.update([]events.Slot{events.SlotLoading}, func(v *View) {
		v.marketPending++
		v.MarketLoading = true
	})
}

// endMarketFetch must run inside update.
func endMarketFetch(v *View, errMsg string) {
	if v.marketPending > 0 {
		v.marketPending--
	}
	v.MarketLoading = v.marketPending > 0
	v.MarketError = errMsg
}

// ApplyQuotes replaces the quotes. A non-empty errMsg clears them instead
// and records the error.
func (s *Store) ApplyQuotes(records []quote.Record, errMsg string) bool {
	records = append([]quote.Record{}, records...)
	return s.update([]events.Slot{events.SlotQuotes, events.SlotLoading, events.SlotError}, func(v *View) {
		endMarketFetch(v, errMsg)
		v.QuotesUpdatedAt = s.now()
		if errMsg != "" {
			v.Quotes = nil
			return
		}
		v.Quotes = records
	})
}

// ApplyAccounts replaces the accounts on success; on failure the previous
// list stays and the error is recorded.
func (s *Store) ApplyAccounts(accounts []domain.Account, errMsg string) bool {
	accounts = append([]domain.Account{}, accounts...)
	return s.update([]events.Slot{events.SlotAccounts, events.SlotLoading, events.SlotError}, func(v *View) {
		endMarketFetch(v, errMsg)
		if errMsg != "" {
			return
		}
		v.Accounts = accounts
	})
}

// ApplyRecent replaces the recent series, keeping the newest MaxRecentPoints.
func (s *Store) ApplyRecent(series RecentSeries, errMsg string) bool {
	if n := len(series.Points); n > MaxRecentPoints {
		series.Points = series.Points[n-MaxRecentPoints:]
	}
	series.Points = append([]domain.PricePoint{}, series.Points...)
	return s.update([]events.Slot{events.SlotRecent, events.SlotLoading, events.SlotError}, func(v *View) {
		endMarketFetch(v, errMsg)
		if errMsg != "" {
			return
		}
		v.Recent = series
	})
}

// ApplySignals replaces the signal list on success.
func (s *Store) ApplySignals(signals []domain.Signal, errMsg string) bool {
	signals = append([]domain.Signal{}, signals...)
	return s.update([]events.Slot{events.SlotSignals, events.SlotLoading, events.SlotError}, func(v *View) {
		endMarketFetch(v, errMsg)
		if errMsg != "" {
			return
		}
		v.Signals = signals
	})
}
