// Package messaging provides event bus implementations that connect the
// core services to their subscribers. The in-memory bus serves a single
// process; the Redis bus layers cross-instance fan-out on top of it.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwallxyz/guild-activity-hub/internal/domain/shared"
)

// ErrEventBusClosed is returned when publishing to a closed bus.
var ErrEventBusClosed = errors.New("event bus is closed")

// defaultWorkerPoolSize bounds concurrent async handler invocations.
const defaultWorkerPoolSize = 10

// defaultHandlerTimeout bounds a single handler invocation.
const defaultHandlerTimeout = 10 * time.Second

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// InMemoryEventBus delivers events to subscribers within one process.
// In async mode (the default) handlers run on a bounded worker pool and
// Publish returns as soon as the deliveries are scheduled. Handler errors
// are logged, never propagated to the publisher: an XP write that already
// committed must not be failed by a broken announcement.
type InMemoryEventBus struct {
	mu          sync.RWMutex
	handlers    map[shared.EventType][]shared.EventHandler
	allHandlers []shared.EventHandler

	workers        chan struct{}
	wg             sync.WaitGroup
	closed         bool
	closeCh        chan struct{}
	async          bool
	handlerTimeout time.Duration
	log            *slog.Logger
}

// BusOption configures an InMemoryEventBus.
type BusOption func(*InMemoryEventBus)

// WithWorkerPoolSize sets the max number of concurrent handler invocations.
func WithWorkerPoolSize(size int) BusOption {
	return func(b *InMemoryEventBus) {
		if size > 0 {
			b.workers = make(chan struct{}, size)
		}
	}
}

// WithSyncMode makes Publish run handlers inline. Used in tests.
func WithSyncMode() BusOption {
	return func(b *InMemoryEventBus) {
		b.async = false
	}
}

// WithHandlerTimeout bounds how long a single handler may run.
func WithHandlerTimeout(d time.Duration) BusOption {
	return func(b *InMemoryEventBus) {
		if d > 0 {
			b.handlerTimeout = d
		}
	}
}

// WithBusLogger sets the logger used for handler failures.
func WithBusLogger(log *slog.Logger) BusOption {
	return func(b *InMemoryEventBus) {
		if log != nil {
			b.log = log
		}
	}
}

// NewInMemoryEventBus creates a new in-memory event bus.
func NewInMemoryEventBus(opts ...BusOption) *InMemoryEventBus {
	bus := &InMemoryEventBus{
		handlers:       make(map[shared.EventType][]shared.EventHandler),
		workers:        make(chan struct{}, defaultWorkerPoolSize),
		closeCh:        make(chan struct{}),
		async:          true,
		handlerTimeout: defaultHandlerTimeout,
		log:            slog.Default(),
	}
	for _, opt := range opts {
		opt(bus)
	}
	return bus
}

// Subscribe registers a handler for a specific event type.
func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeAll registers a handler for every event type.
func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allHandlers = append(b.allHandlers, handler)
}

// Publish delivers an event to all matching handlers. In async mode the
// call returns once deliveries are scheduled; in sync mode it returns
// after every handler has run.
func (b *InMemoryEventBus) Publish(ctx context.Context, event shared.Event) error {
	if event == nil {
		return errors.New("cannot publish nil event")
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	matched := make([]shared.EventHandler, 0, len(b.handlers[event.EventType()])+len(b.allHandlers))
	matched = append(matched, b.handlers[event.EventType()]...)
	matched = append(matched, b.allHandlers...)
	b.mu.RUnlock()

	for _, handler := range matched {
		if b.async {
			b.dispatchAsync(handler, event)
		} else {
			b.dispatch(ctx, handler, event)
		}
	}
	return nil
}

func (b *InMemoryEventBus) dispatchAsync(handler shared.EventHandler, event shared.Event) {
	select {
	case b.workers <- struct{}{}:
	case <-b.closeCh:
		return
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() { <-b.workers }()
		b.dispatch(context.Background(), handler, event)
	}()
}

func (b *InMemoryEventBus) dispatch(ctx context.Context, handler shared.EventHandler, event shared.Event) {
	ctx, cancel := context.WithTimeout(ctx, b.handlerTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler panicked",
				slog.String("handler", handler.Name()),
				slog.String("event_type", string(event.EventType())),
				slog.Any("panic", r),
			)
		}
	}()

	if err := handler.Handle(ctx, event); err != nil {
		b.log.Error("event handler failed",
			slog.String("handler", handler.Name()),
			slog.String("event_type", string(event.EventType())),
			slog.String("aggregate_id", event.AggregateID()),
			slog.String("error", err.Error()),
		)
	}
}

// Close shuts the bus down and waits for in-flight deliveries.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.closeCh)
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

// HandlerFunc adapts a plain function to the EventHandler interface.
type HandlerFunc struct {
	HandlerName string
	Fn          func(ctx context.Context, event shared.Event) error
}

// Name implements shared.EventHandler.
func (h HandlerFunc) Name() string { return h.HandlerName }

// Handle implements shared.EventHandler.
func (h HandlerFunc) Handle(ctx context.Context, event shared.Event) error {
	if h.Fn == nil {
		return fmt.Errorf("handler %s has no function", h.HandlerName)
	}
	return h.Fn(ctx, event)
}
