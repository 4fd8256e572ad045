// internal/poller/poller.go
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rovshanmuradov/dashsync/internal/api"
	"github.com/rovshanmuradov/dashsync/internal/domain"
	"github.com/rovshanmuradov/dashsync/internal/events"
	"github.com/rovshanmuradov/dashsync/internal/ui/state"
	"github.com/rovshanmuradov/dashsync/internal/utils/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// LoadFailedMessage is recorded when a refresh fails without a server detail.
const LoadFailedMessage = "Failed to load trading data. Please check your connection."

const (
	DefaultInterval = 30 * time.Second
	DefaultTimeout  = 20 * time.Second
)

const (
	OutcomeSuccess = "success"
	OutcomePartial = "partial"
	OutcomeFailure = "failure"
)

// ErrStopped is returned by Refresh once the poller has been stopped.
var ErrStopped = errors.New("poller stopped")

// Source fetches the trading data refreshed on every cycle.
type Source interface {
	Portfolio(ctx context.Context) (*domain.PortfolioSnapshot, error)
	Trades(ctx context.Context, limit int) ([]domain.Trade, error)
}

// Sink is the part of the view model store the poller writes to.
type Sink interface {
	BeginRefresh() bool
	ApplyRefresh(r state.Refresh) bool
	EndRefresh() bool
}

// Recorder records refresh outcomes.
type Recorder interface {
	RecordRefresh(outcome string, duration time.Duration)
}

// Config tunes the poller.
type Config struct {
	Interval   time.Duration
	TradeLimit int
	Timeout    time.Duration
}

// Result describes one completed cycle.
type Result struct {
	Outcome  string
	Applied  bool
	Duration time.Duration
	Message  string
}

// Poller keeps the portfolio and trade list fresh. Timer and manual
// refreshes share one in-flight guard, so at most one pair of requests is
// outstanding and cycles are applied in the order they were issued.
type Poller struct {
	source    Source
	sink      Sink
	metrics   Recorder
	publisher events.Publisher
	logger    *zap.Logger
	cfg       Config

	group   singleflight.Group
	stopped atomic.Bool
	cycles  atomic.Uint64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Poller.
type Option func(*Poller)

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(p *Poller) { p.metrics = r }
}

// WithPublisher publishes a RefreshCompleted event per applied cycle.
func WithPublisher(pub events.Publisher) Option {
	return func(p *Poller) { p.publisher = pub }
}

// New creates a poller. Zero config values take the defaults.
func New(source Source, sink Sink, log *zap.Logger, cfg Config, opts ...Option) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.TradeLimit <= 0 {
		cfg.TradeLimit = api.DefaultTradeLimit
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	p := &Poller{
		source: source,
		sink:   sink,
		logger: log.Named("poller"),
		cfg:    cfg,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Refresh fetches the portfolio and the trades concurrently and applies
// both outcomes to the store in one mutation. A call made while a cycle
// is outstanding waits for that cycle instead of starting another.
//
// Failures never discard data already shown: a failed slot keeps its
// previous value and one message is recorded. The returned error is a
// *api.PartialFailure when exactly one fetch failed. Cancelling ctx stops
// the wait, not the cycle.
func (p *Poller) Refresh(ctx context.Context) (Result, error) {
	if p.stopped.Load() {
		return Result{}, ErrStopped
	}
	ch := p.group.DoChan("refresh", func() (interface{}, error) {
		return p.cycle(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		return res.Val.(Result), res.Err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (p *Poller) cycle(ctx context.Context) (Result, error) {
	log := logger.Operation(p.logger, "refresh")
	start := time.Now()
	p.sink.BeginRefresh()

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	var (
		portfolio *domain.PortfolioSnapshot
		trades    []domain.Trade
		perr      error
		terr      error
	)
	// Both fetches run to completion; neither failure cancels the other.
	var g errgroup.Group
	g.Go(func() error {
		portfolio, perr = p.source.Portfolio(ctx)
		return nil
	})
	g.Go(func() error {
		trades, terr = p.source.Trades(ctx, p.cfg.TradeLimit)
		return nil
	})
	_ = g.Wait()

	res := Result{Duration: time.Since(start)}
	if p.stopped.Load() {
		log.Debug("Discarding refresh after stop")
		p.sink.EndRefresh()
		return res, ErrStopped
	}

	update := state.Refresh{}
	if perr == nil {
		update.Portfolio = portfolio
	}
	if terr == nil {
		update.Trades = trades
		update.HasTrades = true
	}

	var err error
	switch {
	case perr == nil && terr == nil:
		res.Outcome = OutcomeSuccess
	case perr != nil && terr != nil:
		res.Outcome = OutcomeFailure
		err = fmt.Errorf("refresh failed: %w", errors.Join(perr, terr))
	default:
		res.Outcome = OutcomePartial
		err = &api.PartialFailure{PortfolioErr: perr, TradesErr: terr}
	}
	if err != nil {
		update.Error = api.Message(err, LoadFailedMessage)
		res.Message = update.Error
	}

	res.Applied = p.sink.ApplyRefresh(update)
	p.cycles.Add(1)
	if p.metrics != nil {
		p.metrics.RecordRefresh(res.Outcome, res.Duration)
	}
	p.publish(res, perr == nil, terr == nil)

	fields := []zap.Field{
		zap.String("outcome", res.Outcome),
		zap.Duration("duration", res.Duration),
		zap.Bool("applied", res.Applied),
		zap.Int("trades", len(trades)),
	}
	if err != nil {
		log.Warn("Refresh completed with errors", append(fields, zap.Error(err))...)
	} else {
		log.Debug("Refresh completed", fields...)
	}
	return res, err
}

func (p *Poller) publish(res Result, portfolioFresh, tradesFresh bool) {
	if p.publisher == nil || !res.Applied {
		return
	}
	err := p.publisher.Publish(events.RefreshCompletedEvent{
		BaseEvent:      events.NewBase(events.RefreshCompleted),
		Outcome:        res.Outcome,
		PortfolioFresh: portfolioFresh,
		TradesFresh:    tradesFresh,
		Duration:       res.Duration,
		Error:          res.Message,
	})
	if err != nil {
		p.logger.Debug("Refresh event not published", zap.Error(err))
	}
}

// Start launches the timer loop: one refresh immediately, then one per
// interval. It returns at once; Stop ends the loop.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped.Load() {
		return ErrStopped
	}
	if p.cancel != nil {
		return nil
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go p.run(ctx, p.done)

	p.logger.Info("Polling started", zap.Duration("interval", p.cfg.Interval))
	return nil
}

func (p *Poller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	// Errors are already in the store and the log.
	_, _ = p.Refresh(ctx)
}

// Stop ends timer-driven refreshes. A cycle still in flight completes but
// its result is discarded. A stopped poller cannot be restarted.
func (p *Poller) Stop() {
	p.stopped.Store(true)

	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
		p.logger.Info("Polling stopped", zap.Uint64("cycles", p.cycles.Load()))
	}
}

// Cycles returns how many completed cycles were handed to the store.
func (p *Poller) Cycles() uint64 {
	return p.cycles.Load()
}
