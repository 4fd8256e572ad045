// internal/events/handler.go
package events

import (
	"context"
	"sync"
)

// Handler reacts to one event. Handlers run on the dispatcher goroutine, so
// a slow handler delays every later event.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc lets a plain function act as a Handler.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Subscription is returned by Subscribe. Unsubscribe may be called more than once.
type Subscription interface {
	Unsubscribe()
}

type subscription struct {
	bus  *Bus
	id   string
	typ  EventType
	once sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() { s.bus.remove(s.typ, s.id) })
}
