// cmd/dashsync/commands.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/subcommands"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/dashsync/internal/config"
	"github.com/rovshanmuradov/dashsync/internal/dashboard"
	"github.com/rovshanmuradov/dashsync/internal/domain"
	"github.com/rovshanmuradov/dashsync/internal/events"
	"github.com/rovshanmuradov/dashsync/internal/tracing"
	"github.com/rovshanmuradov/dashsync/internal/ui/state"
	"github.com/rovshanmuradov/dashsync/internal/utils/logger"
)

// env is what every command needs before doing anything.
type env struct {
	cfg         *config.Config
	log         *logger.Logger
	session     *dashboard.Session
	closeTracer func()
}

func setup(withFile bool) (*env, error) {
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return nil, err
	}

	logCfg := logger.DefaultConfig()
	logCfg.Development = cfg.DebugLogging
	logCfg.LogFile = ""
	if withFile {
		logCfg.LogFile = cfg.LogFile
	}
	log, err := logger.New(logCfg)
	if err != nil {
		return nil, err
	}

	_, closeTracer, err := tracing.Init(tracing.Config{Host: cfg.TracingHost, Port: cfg.TracingPort}, log.Logger)
	if err != nil {
		log.Warn("Tracing disabled", zap.Error(err))
		closeTracer = func() {}
	}

	session, err := dashboard.NewSession(cfg, log.WithComponent("dashboard"))
	if err != nil {
		closeTracer()
		return nil, err
	}
	return &env{cfg: cfg, log: log, session: session, closeTracer: closeTracer}, nil
}

// close tears the session down, then flushes the tracer and the logger.
func (e *env) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = e.session.Close(ctx)
	e.closeTracer()
	_ = e.log.Close()
}

func fail(err error) subcommands.ExitStatus {
	fmt.Fprintln(os.Stderr, err)
	return subcommands.ExitFailure
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type runCmd struct {
	throttle time.Duration
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "run the dashboard session until interrupted" }
func (*runCmd) Usage() string {
	return `dashsync run [-throttle <duration>]

  Probes the market-data connection, loads quotes and recent data for the
  configured symbols, then polls the portfolio and trade history on the
  configured interval. Every view change is logged.
`
}

func (c *runCmd) SetFlags(f *flag.FlagSet) {
	f.DurationVar(&c.throttle, "throttle", time.Second, "minimum time between two rendered views")
}

func (c *runCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	e, err := setup(true)
	if err != nil {
		return fail(err)
	}
	e.log.WithOperation("run").Info("Starting dashsync",
		zap.String("api", e.cfg.APIBaseURL),
		zap.String("market", e.cfg.MarketBaseURL),
		zap.Duration("poll_interval", e.cfg.PollInterval))

	renderCtx, stopRender := context.WithCancel(ctx)
	views := make(chan state.View, 1)
	th := dashboard.NewViewThrottler(c.throttle, views, e.log.Logger)
	sub := e.session.Watch(func(v state.View, _ events.ViewChangedEvent) { th.Offer(v) })
	go dashboard.Render(renderCtx, views, th, e.log.Logger)
	e.session.OnShutdown("render", func() error {
		sub.Unsubscribe()
		stopRender()
		return nil
	})

	if err := e.session.Start(ctx); err != nil {
		e.log.LogError("Session start failed", err)
		e.close()
		return fail(err)
	}
	err = e.session.Wait(ctx)
	if err != nil {
		e.log.LogError("Shutdown incomplete", err)
	}
	e.close()
	if err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}

type refreshCmd struct{}

func (*refreshCmd) Name() string     { return "refresh" }
func (*refreshCmd) Synopsis() string { return "fetch the portfolio and trades once and print them" }
func (*refreshCmd) Usage() string    { return "dashsync refresh\n" }
func (*refreshCmd) SetFlags(*flag.FlagSet) {}

func (*refreshCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	e, err := setup(false)
	if err != nil {
		return fail(err)
	}
	defer e.close()

	res, err := e.session.Poller.Refresh(ctx)
	if err != nil {
		e.log.Warn("Refresh incomplete", zap.String("outcome", res.Outcome), zap.Error(err))
	}
	v := e.session.Store.Snapshot()
	if perr := printJSON(struct {
		Portfolio *domain.PortfolioSnapshot `json:"portfolio"`
		Trades    []domain.Trade            `json:"trades"`
		Error     string                    `json:"error,omitempty"`
	}{v.Portfolio, v.Trades, v.TradingError}); perr != nil {
		return fail(perr)
	}
	if err != nil {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type probeCmd struct{}

func (*probeCmd) Name() string     { return "probe" }
func (*probeCmd) Synopsis() string { return "test the market-data connection" }
func (*probeCmd) Usage() string    { return "dashsync probe\n" }
func (*probeCmd) SetFlags(*flag.FlagSet) {}

func (*probeCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	e, err := setup(false)
	if err != nil {
		return fail(err)
	}
	defer e.close()

	st, err := e.session.Monitor.Probe(ctx)
	if err != nil {
		fmt.Printf("%s: %s\n", st.Status, st.Error)
		return subcommands.ExitFailure
	}
	fmt.Println(st.Status)
	return subcommands.ExitSuccess
}

type quotesCmd struct{}

func (*quotesCmd) Name() string     { return "quotes" }
func (*quotesCmd) Synopsis() string { return "print normalized quotes" }
func (*quotesCmd) Usage() string {
	return `dashsync quotes [SYMBOL...]

  Prints one normalized record per symbol. Without arguments the
  configured default symbols are used.
`
}
func (*quotesCmd) SetFlags(*flag.FlagSet) {}

func (*quotesCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	e, err := setup(false)
	if err != nil {
		return fail(err)
	}
	defer e.close()

	symbols := f.Args()
	if len(symbols) == 0 {
		symbols = e.cfg.DefaultSymbols
	}
	records, err := e.session.Desk.FetchQuotes(ctx, symbols)
	if err != nil {
		return fail(err)
	}
	if err := printJSON(records); err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}

type positionsCmd struct{}

func (*positionsCmd) Name() string     { return "positions" }
func (*positionsCmd) Synopsis() string { return "print open positions" }
func (*positionsCmd) Usage() string {
	return `dashsync positions [SYMBOL]

  Prints every open position, or only the one for SYMBOL.
`
}
func (*positionsCmd) SetFlags(*flag.FlagSet) {}

func (*positionsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	e, err := setup(false)
	if err != nil {
		return fail(err)
	}
	defer e.close()

	var out any
	if f.NArg() > 0 {
		out, err = e.session.Client.Position(ctx, f.Arg(0))
	} else {
		out, err = e.session.Client.Positions(ctx)
	}
	if err != nil {
		return fail(err)
	}
	if err := printJSON(out); err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}

type streamCmd struct {
	start   bool
	retries int
}

func (c *streamCmd) Name() string {
	if c.start {
		return "stream-start"
	}
	return "stream-stop"
}

func (c *streamCmd) Synopsis() string {
	if c.start {
		return "ask the market-data service to capture SYMBOL... in real time"
	}
	return "ask the market-data service to stop capturing"
}

func (c *streamCmd) Usage() string {
	if c.start {
		return "dashsync stream-start [-retries <n>] SYMBOL...\n"
	}
	return "dashsync stream-stop [-retries <n>]\n"
}

func (c *streamCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.retries, "retries", 0, "repeat a failed command up to n times with backoff")
}

func (c *streamCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	e, err := setup(false)
	if err != nil {
		return fail(err)
	}
	defer e.close()

	var st domain.StreamingState
	if c.start {
		st, err = e.session.Stream.Start(ctx, f.Args())
	} else {
		// This process never started the capture it is stopping.
		e.session.Stream.Adopt(nil)
		st, err = e.session.Stream.Stop(ctx)
	}
	if err != nil && c.retries > 0 {
		e.log.Warn("Streaming command failed, retrying", zap.Int("retries", c.retries), zap.Error(err))
		st, err = e.session.Stream.RetryFailed(ctx, uint(c.retries), time.Second)
	}
	if err != nil {
		return fail(err)
	}
	fmt.Printf("%s %v %s\n", st.Status, st.Symbols, st.Message)
	return subcommands.ExitSuccess
}

type accountsCmd struct{}

func (*accountsCmd) Name() string     { return "accounts" }
func (*accountsCmd) Synopsis() string { return "list the brokerage accounts the market-data service sees" }
func (*accountsCmd) Usage() string    { return "dashsync accounts\n" }
func (*accountsCmd) SetFlags(*flag.FlagSet) {}

func (*accountsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	e, err := setup(false)
	if err != nil {
		return fail(err)
	}
	defer e.close()

	accounts, err := e.session.Desk.FetchAccounts(ctx)
	if err != nil {
		return fail(err)
	}
	if err := printJSON(accounts); err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}

type signalsCmd struct {
	limit int
}

func (*signalsCmd) Name() string     { return "signals" }
func (*signalsCmd) Synopsis() string { return "print the most recent trading signals" }
func (*signalsCmd) Usage() string {
	return `dashsync signals [-limit <n>]

  Without -limit the configured signal_limit is used.
`
}

func (c *signalsCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.limit, "limit", 0, "number of signals to fetch (0 = configured limit)")
}

func (c *signalsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	e, err := setup(false)
	if err != nil {
		return fail(err)
	}
	defer e.close()

	limit := c.limit
	if limit <= 0 {
		limit = e.cfg.SignalLimit
	}
	signals, err := e.session.Desk.FetchSignals(ctx, limit)
	if err != nil {
		return fail(err)
	}
	if err := printJSON(signals); err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}

type recentCmd struct {
	hours int
}

func (*recentCmd) Name() string     { return "recent" }
func (*recentCmd) Synopsis() string { return "print recent price points for one symbol" }
func (*recentCmd) Usage() string {
	return `dashsync recent [-hours <h>] [SYMBOL]

  Without SYMBOL the configured recent_symbol is used, without -hours
  the configured recent_hours.
`
}

func (c *recentCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.hours, "hours", 0, "look-back window in hours (0 = configured window)")
}

func (c *recentCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	e, err := setup(false)
	if err != nil {
		return fail(err)
	}
	defer e.close()

	symbol := e.cfg.RecentSymbol
	if f.NArg() > 0 {
		symbol = f.Arg(0)
	}
	hours := c.hours
	if hours <= 0 {
		hours = e.cfg.RecentHours
	}
	series, err := e.session.Desk.FetchRecent(ctx, symbol, hours)
	if err != nil {
		return fail(err)
	}
	if err := printJSON(series); err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}
