// internal/ui/state/subscribe.go
package state

import (
	"context"

	"github.com/rovshanmuradov/dashsync/internal/events"
)

// Subscribe calls fn with a fresh snapshot after each view change published
// on bus. Changes that arrive faster than fn returns may be observed
// once, at their latest revision.
func (s *Store) Subscribe(bus *events.Bus, fn func(View, events.ViewChangedEvent)) events.Subscription {
	var last uint64
	return bus.SubscribeFunc(events.ViewChanged, func(_ context.Context, e events.Event) error {
		change, ok := e.(events.ViewChangedEvent)
		if !ok {
			return nil
		}
		view := s.Snapshot()
		if view.Revision <= last {
			return nil
		}
		last = view.Revision
		fn(view, change)
		return nil
	})
}
