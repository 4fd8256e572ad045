// internal/dashboard/session.go
package dashboard

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/dashsync/internal/api"
	"github.com/rovshanmuradov/dashsync/internal/config"
	"github.com/rovshanmuradov/dashsync/internal/events"
	"github.com/rovshanmuradov/dashsync/internal/market"
	"github.com/rovshanmuradov/dashsync/internal/monitor"
	"github.com/rovshanmuradov/dashsync/internal/poller"
	"github.com/rovshanmuradov/dashsync/internal/quote"
	"github.com/rovshanmuradov/dashsync/internal/stream"
	"github.com/rovshanmuradov/dashsync/internal/ui/state"
	"github.com/rovshanmuradov/dashsync/internal/utils/logger"
	"github.com/rovshanmuradov/dashsync/internal/utils/metrics"
)

const eventBufferSize = 256

// Session owns every component of one dashboard lifetime. Components are
// created together and torn down together; nothing is global.
type Session struct {
	Config  *config.Config
	Bus     *events.Bus
	Store   *state.Store
	Client  *api.Client
	Metrics *metrics.Collector
	Monitor *monitor.ConnectionMonitor
	Stream  *stream.Controller
	Poller  *poller.Poller
	Desk    *market.Desk

	logger   *zap.Logger
	shutdown *ShutdownHandler
	server   *http.Server
}

// NewSession wires the components from cfg. Nothing talks to the network
// until Start.
func NewSession(cfg *config.Config, logger *zap.Logger) (*Session, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	normalizer, err := quote.NewNormalizer(nil)
	if err != nil {
		return nil, err
	}

	collector := metrics.NewCollector()
	bus := events.NewBus(logger, eventBufferSize)
	store := state.NewStore(logger, bus)

	client := api.NewClient(api.Config{
		APIBaseURL:    cfg.APIBaseURL,
		MarketBaseURL: cfg.MarketBaseURL,
		PortfolioPath: cfg.PortfolioPath,
		TradesPath:    cfg.TradesPath,
		PositionsPath: cfg.PositionsPath,
		Timeout:       cfg.RequestTimeout,
		Retries:       cfg.Retries,
	}, logger, api.WithObserver(collector))

	s := &Session{
		Config:  cfg,
		Bus:     bus,
		Store:   store,
		Client:  client,
		Metrics: collector,
		Monitor: monitor.NewConnectionMonitor(client, store, logger,
			monitor.WithProbeRecorder(collector), monitor.WithConnectionPublisher(bus)),
		Stream:  stream.NewController(client, store, logger,
			stream.WithCommandRecorder(collector), stream.WithPublisher(bus)),
		Poller: poller.New(client, store, logger, poller.Config{
			Interval:   cfg.PollInterval,
			TradeLimit: cfg.TradeLimit,
			Timeout:    2 * cfg.RequestTimeout,
		}, poller.WithRecorder(collector), poller.WithPublisher(bus)),
		Desk:     market.NewDesk(client, store, normalizer, logger),
		logger:   logger.Named("session"),
		shutdown: NewShutdownHandler(logger, 10*time.Second),
	}

	// Closed in reverse: poller first, bus last.
	s.shutdown.Add("event_bus", bus)
	s.shutdown.AddFunc("store", func() error {
		store.Close()
		return nil
	})
	s.shutdown.AddFunc("poller", func() error {
		s.Poller.Stop()
		return nil
	})
	return s, nil
}

// Start probes the connection, loads quotes, accounts, signals and recent
// data, then starts polling. Failures are recorded in the store; Start only fails when the
// session cannot run at all.
func (s *Session) Start(ctx context.Context) error {
	if s.Config.MetricsAddr != "" {
		s.serveMetrics(s.Config.MetricsAddr)
	}

	end := logger.TrackPerformance(s.logger, "initial_load")
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := s.Monitor.Probe(gctx)
		return ignoreUpstream(err)
	})
	g.Go(func() error {
		_, err := s.Desk.FetchQuotes(gctx, s.Config.DefaultSymbols)
		return ignoreUpstream(err)
	})
	g.Go(func() error {
		_, err := s.Desk.FetchAccounts(gctx)
		return ignoreUpstream(err)
	})
	g.Go(func() error {
		_, err := s.Desk.FetchSignals(gctx, s.Config.SignalLimit)
		return ignoreUpstream(err)
	})
	if s.Config.RecentSymbol != "" {
		g.Go(func() error {
			_, err := s.Desk.FetchRecent(gctx, s.Config.RecentSymbol, s.Config.RecentHours)
			return ignoreUpstream(err)
		})
	}
	err := g.Wait()
	end()
	if err != nil {
		return err
	}

	return s.Poller.Start(ctx)
}

// ignoreUpstream drops errors that are already recorded in the store.
func ignoreUpstream(err error) error {
	if err == nil || errors.Is(err, api.ErrNetwork) || errors.Is(err, api.ErrServer) ||
		errors.Is(err, api.ErrDecode) || errors.Is(err, monitor.ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (s *Session) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.Metrics.Registry(), promhttp.HandlerOpts{}))
	s.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
	s.shutdown.AddFunc("metrics_server", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(ctx)
	})
	s.logger.Info("Serving metrics", zap.String("addr", addr))
}

// Watch calls fn with every new view generation until the session closes.
func (s *Session) Watch(fn func(state.View, events.ViewChangedEvent)) events.Subscription {
	return s.Store.Subscribe(s.Bus, fn)
}

// OnShutdown registers an extra closer, run before the session's own components.
func (s *Session) OnShutdown(name string, fn func() error) {
	s.shutdown.AddFunc(name, fn)
}

// Wait blocks until a shutdown signal or ctx is done, then closes the session.
func (s *Session) Wait(ctx context.Context) error {
	return s.shutdown.WaitForSignal(ctx)
}

// Close tears the session down. In-flight refreshes complete but their
// results are discarded.
func (s *Session) Close(ctx context.Context) error {
	return s.shutdown.Shutdown(ctx)
}
