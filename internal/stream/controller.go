// internal/stream/controller.go
package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/rovshanmuradov/dashsync/internal/api"
	"github.com/rovshanmuradov/dashsync/internal/domain"
	"github.com/rovshanmuradov/dashsync/internal/events"
	"github.com/rovshanmuradov/dashsync/internal/utils/logger"
	"go.uber.org/zap"
)

const (
	StartFailedMessage = "Failed to start streaming"
	StopFailedMessage  = "Failed to stop streaming"

	// DefaultCommandTimeout bounds one start/stop request.
	DefaultCommandTimeout = 15 * time.Second
)

// ErrNothingToRetry is returned by Retry outside the error state.
var ErrNothingToRetry = errors.New("streaming is not in error state")

type command string

const (
	cmdStart command = "start"
	cmdStop  command = "stop"
)

// Commander sends capture commands to the remote service.
type Commander interface {
	StartStream(ctx context.Context, symbols []string) (*api.Ack, error)
	StopStream(ctx context.Context) (*api.Ack, error)
}

// StreamingSink receives streaming state transitions.
type StreamingSink interface {
	SetStreaming(state domain.StreamingState) bool
}

// CommandRecorder records command outcomes.
type CommandRecorder interface {
	RecordStreamCommand(command string, ok bool)
}

// Controller drives server-side capture through start/stop commands and
// reflects their acknowledgement. It never sees the ticks themselves.
type Controller struct {
	mu      sync.Mutex
	state   domain.StreamingState
	last    command
	remote  Commander
	sink    StreamingSink
	metrics CommandRecorder
	pub     events.Publisher
	logger  *zap.Logger
	timeout time.Duration
}

// Option configures a Controller.
type Option func(*Controller)

// WithCommandTimeout overrides DefaultCommandTimeout.
func WithCommandTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithCommandRecorder attaches a metrics recorder.
func WithCommandRecorder(r CommandRecorder) Option {
	return func(c *Controller) { c.metrics = r }
}

// WithPublisher publishes a StreamingChanged event on every transition.
func WithPublisher(pub events.Publisher) Option {
	return func(c *Controller) { c.pub = pub }
}

// NewController creates a stopped controller.
func NewController(remote Commander, sink StreamingSink, log *zap.Logger, opts ...Option) *Controller {
	c := &Controller{
		state:   domain.StreamingState{Status: domain.StreamingStopped},
		remote:  remote,
		sink:    sink,
		logger:  log.Named("stream"),
		timeout: DefaultCommandTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns a copy of the current state.
func (c *Controller) State() domain.StreamingState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// Start asks the remote service to capture symbols. Symbols are trimmed,
// upper-cased and de-duplicated; an empty set fails with
// domain.ErrInvalidInput and leaves the state alone. A call while a start
// or stop is outstanding, or while already running, is a no-op that
// returns the current state.
func (c *Controller) Start(ctx context.Context, symbols []string) (domain.StreamingState, error) {
	symbols, err := domain.RequireSymbols(symbols)
	if err != nil {
		return c.State(), err
	}

	c.mu.Lock()
	switch c.state.Status {
	case domain.StreamingStarting, domain.StreamingRunning, domain.StreamingStopping:
		st := c.state.Clone()
		c.mu.Unlock()
		c.logger.Debug("Start ignored", zap.String("status", string(st.Status)))
		return st, nil
	}
	c.transition(cmdStart, domain.StreamingState{Status: domain.StreamingStarting, Symbols: symbols})
	c.mu.Unlock()

	log := logger.Operation(c.logger, "stream_start")
	log.Info("Starting streaming", zap.Strings("symbols", symbols))

	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	ack, err := c.remote.StartStream(cctx, symbols)

	next := domain.StreamingState{Status: domain.StreamingRunning, Symbols: symbols}
	if err != nil {
		next.Status = domain.StreamingError
		next.Error = api.Message(err, StartFailedMessage)
		log.Warn("Start streaming failed", zap.Error(err))
	} else {
		next.Message = ack.Message
		log.Info("Streaming started", zap.String("ack", ack.Message))
	}
	c.finish(cmdStart, next, err == nil)
	return next.Clone(), err
}

// Stop asks the remote service to stop capturing. It is a no-op while
// stopped or while a command is outstanding.
func (c *Controller) Stop(ctx context.Context) (domain.StreamingState, error) {
	c.mu.Lock()
	switch c.state.Status {
	case domain.StreamingStopped, domain.StreamingStopping, domain.StreamingStarting:
		st := c.state.Clone()
		c.mu.Unlock()
		c.logger.Debug("Stop ignored", zap.String("status", string(st.Status)))
		return st, nil
	}
	symbols := c.state.Clone().Symbols
	c.transition(cmdStop, domain.StreamingState{Status: domain.StreamingStopping, Symbols: symbols})
	c.mu.Unlock()

	log := logger.Operation(c.logger, "stream_stop")
	log.Info("Stopping streaming", zap.Strings("symbols", symbols))

	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	ack, err := c.remote.StopStream(cctx)

	next := domain.StreamingState{Status: domain.StreamingStopped}
	if err != nil {
		next = domain.StreamingState{
			Status:  domain.StreamingError,
			Symbols: symbols,
			Error:   api.Message(err, StopFailedMessage),
		}
		log.Warn("Stop streaming failed", zap.Error(err))
	} else {
		next.Message = ack.Message
		log.Info("Streaming stopped", zap.String("ack", ack.Message))
	}
	c.finish(cmdStop, next, err == nil)
	return next.Clone(), err
}

// Adopt records a capture already running on the remote service, started
// elsewhere, so that Stop will act on it. It only applies while stopped
// or in error.
func (c *Controller) Adopt(symbols []string) domain.StreamingState {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state.Status {
	case domain.StreamingStopped, domain.StreamingError:
		c.transition(cmdStart, domain.StreamingState{
			Status:  domain.StreamingRunning,
			Symbols: domain.NormalizeSymbols(symbols),
		})
	}
	return c.state.Clone()
}

// Retry repeats the command that failed, using the retained symbols.
func (c *Controller) Retry(ctx context.Context) (domain.StreamingState, error) {
	c.mu.Lock()
	st := c.state.Clone()
	last := c.last
	c.mu.Unlock()

	if st.Status != domain.StreamingError {
		return st, ErrNothingToRetry
	}
	if last == cmdStop {
		return c.Stop(ctx)
	}
	return c.Start(ctx, st.Symbols)
}

// RetryFailed calls Retry with exponential backoff until the command goes
// through, maxTries attempts are spent or ctx ends. Outside the error state
// it returns ErrNothingToRetry without sending anything.
func (c *Controller) RetryFailed(ctx context.Context, maxTries uint, delay time.Duration) (domain.StreamingState, error) {
	if st := c.State(); st.Status != domain.StreamingError {
		return st, ErrNothingToRetry
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = delay
	policy.MaxInterval = delay * 10

	attempt := 0
	return backoff.Retry(ctx, func() (domain.StreamingState, error) {
		attempt++
		st, err := c.Retry(ctx)
		if errors.Is(err, ErrNothingToRetry) || errors.Is(err, domain.ErrInvalidInput) {
			return st, backoff.Permanent(err)
		}
		if err != nil {
			c.logger.Info("Streaming command retry failed", zap.Int("attempt", attempt), zap.Error(err))
		}
		return st, err
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(maxTries))
}

// transition must be called with c.mu held.
func (c *Controller) transition(cmd command, next domain.StreamingState) {
	c.last = cmd
	c.state = next
	c.sink.SetStreaming(next.Clone())
	if c.pub == nil {
		return
	}
	// Publish never blocks, so holding c.mu keeps events in transition order.
	err := c.pub.Publish(events.StreamingChangedEvent{
		BaseEvent: events.NewBase(events.StreamingChanged),
		Status:    string(next.Status),
		Symbols:   append([]string(nil), next.Symbols...),
		Error:     next.Error,
	})
	if err != nil {
		c.logger.Debug("Streaming change not published", zap.Error(err))
	}
}

func (c *Controller) finish(cmd command, next domain.StreamingState, ok bool) {
	c.mu.Lock()
	c.transition(cmd, next)
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.RecordStreamCommand(string(cmd), ok)
	}
}
