// internal/monitor/connection.go
package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/rovshanmuradov/dashsync/internal/api"
	"github.com/rovshanmuradov/dashsync/internal/domain"
	"github.com/rovshanmuradov/dashsync/internal/events"
	"github.com/rovshanmuradov/dashsync/internal/utils/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ConnectionFailedMessage is shown when the server gave no detail.
const ConnectionFailedMessage = "Connection failed"

// DefaultProbeTimeout bounds one test-connection request.
const DefaultProbeTimeout = 15 * time.Second

// ErrUnavailable is returned when the backend answers but reports that the
// market-data client is not configured.
var ErrUnavailable = errors.New("market data unavailable")

// Prober issues the test-connection request.
type Prober interface {
	TestConnection(ctx context.Context) (*api.ConnectionReport, error)
}

// ConnectionSink receives connection state transitions.
type ConnectionSink interface {
	SetConnection(state domain.ConnectionState) bool
}

// ProbeRecorder records probe outcomes.
type ProbeRecorder interface {
	RecordProbe(status string, ok bool)
}

// ConnectionMonitor tracks reachability of the market-data backend.
// At most one probe is in flight; callers arriving meanwhile share its result.
type ConnectionMonitor struct {
	prober  Prober
	sink    ConnectionSink
	metrics ProbeRecorder
	pub     events.Publisher
	logger  *zap.Logger
	timeout time.Duration
	group   singleflight.Group
}

// MonitorOption configures a ConnectionMonitor.
type MonitorOption func(*ConnectionMonitor)

// WithProbeTimeout overrides DefaultProbeTimeout.
func WithProbeTimeout(d time.Duration) MonitorOption {
	return func(m *ConnectionMonitor) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithProbeRecorder attaches a metrics recorder.
func WithProbeRecorder(r ProbeRecorder) MonitorOption {
	return func(m *ConnectionMonitor) { m.metrics = r }
}

// WithConnectionPublisher publishes a ConnectionChanged event on every transition.
func WithConnectionPublisher(pub events.Publisher) MonitorOption {
	return func(m *ConnectionMonitor) { m.pub = pub }
}

// NewConnectionMonitor creates a monitor writing its state to sink.
func NewConnectionMonitor(prober Prober, sink ConnectionSink, log *zap.Logger, opts ...MonitorOption) *ConnectionMonitor {
	m := &ConnectionMonitor{
		prober:  prober,
		sink:    sink,
		logger:  log.Named("connection_monitor"),
		timeout: DefaultProbeTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Probe tests the connection. The state goes to testing first, then to
// connected or error. A call made while a probe is outstanding joins it.
// The returned error is the probe failure, if any; the state carries the
// user-facing message.
func (m *ConnectionMonitor) Probe(ctx context.Context) (domain.ConnectionState, error) {
	ch := m.group.DoChan("probe", func() (interface{}, error) {
		// One caller going away must not fail the others.
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
		defer cancel()
		st, err := m.probe(pctx)
		return st, err
	})

	select {
	case res := <-ch:
		return res.Val.(domain.ConnectionState), res.Err
	case <-ctx.Done():
		return domain.ConnectionState{Status: domain.ConnectionTesting}, ctx.Err()
	}
}

func (m *ConnectionMonitor) probe(ctx context.Context) (domain.ConnectionState, error) {
	log := logger.Operation(m.logger, "probe")
	m.set(domain.ConnectionState{Status: domain.ConnectionTesting})

	report, err := m.prober.TestConnection(ctx)
	if err == nil && report.Status == api.StatusUnavailable {
		err = ErrUnavailable
	}

	var st domain.ConnectionState
	if err != nil {
		msg := api.Message(err, ConnectionFailedMessage)
		if errors.Is(err, ErrUnavailable) && report.Message != "" {
			msg = report.Message
		}
		st = domain.ConnectionState{Status: domain.ConnectionError, Error: msg}
		log.Warn("Connection probe failed", zap.Error(err), zap.String("message", msg))
	} else {
		st = domain.ConnectionState{Status: domain.ConnectionConnected}
		log.Info("Connection probe succeeded",
			zap.String("status", report.Status),
			zap.Int("accounts_found", report.AccountsFound))
	}

	m.set(st)
	if m.metrics != nil {
		m.metrics.RecordProbe(string(st.Status), err == nil)
	}
	return st, err
}

func (m *ConnectionMonitor) set(st domain.ConnectionState) {
	m.sink.SetConnection(st)
	if m.pub == nil {
		return
	}
	err := m.pub.Publish(events.ConnectionChangedEvent{
		BaseEvent: events.NewBase(events.ConnectionChanged),
		Status:    string(st.Status),
		Error:     st.Error,
	})
	if err != nil {
		m.logger.Debug("Connection change not published", zap.Error(err))
	}
}
