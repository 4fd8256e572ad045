// internal/events/bus.go
package events

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultQueueSize = 64

var (
	// ErrBusClosed is returned by Publish after Shutdown.
	ErrBusClosed = errors.New("event bus is shutting down")

	// ErrBusFull is returned when the queue is full and the event was dropped.
	ErrBusFull = errors.New("event queue full")
)

// Publisher is the write side of the bus. Components depend on this, not on *Bus.
type Publisher interface {
	Publish(event Event) error
}

type entry struct {
	id      string
	handler Handler
}

// Bus is an in-memory event bus. One dispatcher goroutine delivers queued
// events in publish order, and handlers of a type run in registration order.
type Bus struct {
	mu     sync.RWMutex
	routes map[EventType][]entry

	queue chan Event
	stop  chan struct{}
	done  chan struct{}

	log       *zap.Logger
	published atomic.Uint64
	dropped   atomic.Uint64
	closed    atomic.Bool
}

// NewBus creates a bus with room for queueSize undelivered events and
// starts its dispatcher.
func NewBus(logger *zap.Logger, queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	b := &Bus{
		routes: make(map[EventType][]entry),
		queue:  make(chan Event, queueSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		log:    logger.Named("event_bus"),
	}
	go b.dispatch()
	return b
}

// Subscribe adds handler to the delivery list of eventType.
func (b *Bus) Subscribe(eventType EventType, handler Handler) Subscription {
	id := uuid.NewString()

	b.mu.Lock()
	b.routes[eventType] = append(b.routes[eventType], entry{id: id, handler: handler})
	b.mu.Unlock()

	b.log.Debug("Subscribed", zap.String("event_type", string(eventType)), zap.String("id", id))
	return &subscription{bus: b, id: id, typ: eventType}
}

// SubscribeFunc subscribes a plain function.
func (b *Bus) SubscribeFunc(eventType EventType, fn func(context.Context, Event) error) Subscription {
	return b.Subscribe(eventType, HandlerFunc(fn))
}

// Watch returns a channel that receives events of eventType. When the
// channel is full, new events for this watcher are skipped rather than
// stalling the dispatcher. The channel is never closed; stop receiving
// after calling Unsubscribe.
func (b *Bus) Watch(eventType EventType, buffer int) (<-chan Event, Subscription) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Event, buffer)
	sub := b.SubscribeFunc(eventType, func(_ context.Context, e Event) error {
		select {
		case ch <- e:
		default:
		}
		return nil
	})
	return ch, sub
}

// Publish queues an event for asynchronous delivery. It never blocks:
// a full queue drops the event.
func (b *Bus) Publish(event Event) error {
	if b.closed.Load() {
		return ErrBusClosed
	}
	select {
	case b.queue <- event:
		b.published.Add(1)
		return nil
	default:
		b.dropped.Add(1)
		b.log.Warn("Queue full, event dropped", zap.String("event_type", string(event.Type())))
		return ErrBusFull
	}
}

// PublishSync runs every handler of the event's type on the caller's
// goroutine and joins their errors.
func (b *Bus) PublishSync(ctx context.Context, event Event) error {
	b.mu.RLock()
	targets := slices.Clone(b.routes[event.Type()])
	b.mu.RUnlock()

	var errs []error
	for _, t := range targets {
		if err := t.handler.Handle(ctx, event); err != nil {
			b.log.Error("Event handler failed",
				zap.String("event_type", string(event.Type())),
				zap.String("id", t.id),
				zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Bus) dispatch() {
	defer close(b.done)
	ctx := context.Background()
	for {
		select {
		case e := <-b.queue:
			_ = b.PublishSync(ctx, e)
		case <-b.stop:
			// Deliver whatever was accepted before the stop.
			for {
				select {
				case e := <-b.queue:
					_ = b.PublishSync(ctx, e)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) remove(eventType EventType, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := slices.DeleteFunc(b.routes[eventType], func(e entry) bool { return e.id == id })
	if len(list) == 0 {
		delete(b.routes, eventType)
	} else {
		b.routes[eventType] = list
	}
	b.log.Debug("Unsubscribed", zap.String("event_type", string(eventType)), zap.String("id", id))
}

// Shutdown stops accepting events and waits until queued ones are delivered.
func (b *Bus) Shutdown(ctx context.Context) error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(b.stop)

	select {
	case <-b.done:
		b.log.Info("Event bus stopped",
			zap.Uint64("published", b.published.Load()),
			zap.Uint64("dropped", b.dropped.Load()))
		return nil
	case <-ctx.Done():
		b.log.Warn("Event bus stop timed out", zap.Int("pending", len(b.queue)))
		return ctx.Err()
	}
}

// Close shuts the bus down with a bounded wait.
func (b *Bus) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return b.Shutdown(ctx)
}

// Stats describes the bus at a point in time.
type Stats struct {
	BufferSize      int
	PendingEvents   int
	Published       uint64
	Dropped         uint64
	HandlersPerType map[EventType]int
}

func (b *Bus) Stats() Stats {
	b.mu.RLock()
	counts := make(map[EventType]int, len(b.routes))
	for t, list := range b.routes {
		counts[t] = len(list)
	}
	b.mu.RUnlock()

	return Stats{
		BufferSize:      cap(b.queue),
		PendingEvents:   len(b.queue),
		Published:       b.published.Load(),
		Dropped:         b.dropped.Load(),
		HandlersPerType: counts,
	}
}
