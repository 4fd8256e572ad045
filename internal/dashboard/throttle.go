// internal/dashboard/throttle.go
package dashboard

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/dashsync/internal/ui/state"
)

// ViewThrottler limits how often views reach a display consumer. Views
// offered too soon replace a single pending view, which FlushPending
// delivers later; intermediate generations are skipped, never reordered.
type ViewThrottler struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	lastRev  uint64
	pending  *state.View
	out      chan state.View
	logger   *zap.Logger
	now      func() time.Time

	sent    uint64
	skipped uint64
}

// NewViewThrottler creates a throttler delivering on out.
func NewViewThrottler(interval time.Duration, out chan state.View, logger *zap.Logger) *ViewThrottler {
	return &ViewThrottler{
		interval: interval,
		out:      out,
		logger:   logger.Named("throttle"),
		now:      time.Now,
	}
}

// Offer delivers v now if the interval has passed, or keeps it pending.
func (t *ViewThrottler) Offer(v state.View) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if v.Revision < t.lastRev || (t.pending != nil && t.pending.Revision > v.Revision) {
		return
	}
	now := t.now()
	if now.Sub(t.last) < t.interval {
		if t.pending != nil {
			t.skipped++
		}
		t.pending = &v
		return
	}
	t.send(v, now)
}

// FlushPending delivers the pending view if the interval has passed.
func (t *ViewThrottler) FlushPending() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pending == nil {
		return
	}
	now := t.now()
	if now.Sub(t.last) >= t.interval {
		t.send(*t.pending, now)
	}
}

// send must be called with t.mu held.
func (t *ViewThrottler) send(v state.View, now time.Time) {
	select {
	case t.out <- v:
		t.last = now
		t.lastRev = v.Revision
		t.sent++
		t.pending = nil
	default:
		// Consumer is behind; keep the newest view for the next flush.
		t.pending = &v
		t.logger.Debug("View channel full, keeping view pending", zap.Uint64("revision", v.Revision))
	}
}

// Stats returns how many views were delivered and skipped.
func (t *ViewThrottler) Stats() (sent, skipped uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sent, t.skipped
}

// HasPending reports whether a view is waiting for the next flush.
func (t *ViewThrottler) HasPending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending != nil
}
