// Package messaging delivers domain events to in-process handlers and, when
// Redis is configured, to the other instances of the service.
package messaging

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alphawulf/alphawulf-hub/internal/domain/shared"
)

var (
	ErrEventBusClosed = errors.New("messaging: bus closed")
	errNilHandler     = errors.New("messaging: nil handler")
	errNilEvent       = errors.New("messaging: nil event")
)

// HandledHook observes every handler run. Metrics implement it.
type HandledHook func(eventType shared.EventType, took time.Duration, err error)

// anyType is the subscription key of SubscribeAll.
const anyType shared.EventType = "*"

type InMemoryEventBusConfig struct {
	// AsyncMode hands deliveries to WorkerPoolSize workers through a queue.
	// Otherwise handlers run on the publisher's goroutine.
	AsyncMode      bool
	WorkerPoolSize int
	QueueSize      int

	Logger    *slog.Logger
	OnHandled HandledHook
}

func DefaultInMemoryEventBusConfig() InMemoryEventBusConfig {
	return InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 10, QueueSize: 256}
}

type delivery struct {
	event   shared.Event
	handler shared.EventHandler
}

// InMemoryEventBus fans events out to local handlers. A failing or panicking
// handler is logged and reported to OnHandled, never to the publisher.
type InMemoryEventBus struct {
	mu     sync.RWMutex
	subs   map[shared.EventType][]shared.EventHandler
	closed bool

	queue   chan delivery // nil in sync mode
	workers sync.WaitGroup

	log       *slog.Logger
	onHandled HandledHook
}

func NewInMemoryEventBus(cfg InMemoryEventBusConfig) *InMemoryEventBus {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	b := &InMemoryEventBus{
		subs:      make(map[shared.EventType][]shared.EventHandler),
		log:       cfg.Logger.With("component", "event_bus"),
		onHandled: cfg.OnHandled,
	}
	if cfg.AsyncMode {
		workers := max(cfg.WorkerPoolSize, 1)
		b.queue = make(chan delivery, max(cfg.QueueSize, workers))
		for range workers {
			b.workers.Add(1)
			go func() {
				defer b.workers.Done()
				for d := range b.queue {
					b.run(d)
				}
			}()
		}
	}
	return b
}

func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	if handler == nil {
		return errNilHandler
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrEventBusClosed
	}
	b.subs[eventType] = append(b.subs[eventType], handler)
	return nil
}

// SubscribeAll registers handler for every event type.
func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.Subscribe(anyType, handler)
}

// Publish never reports handler failures. When the async queue is full the
// delivery runs on the caller's goroutine instead of blocking.
func (b *InMemoryEventBus) Publish(event shared.Event) error {
	if event == nil {
		return errNilEvent
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	var inline []delivery
	for _, key := range [...]shared.EventType{event.EventType(), anyType} {
		for _, h := range b.subs[key] {
			d := delivery{event: event, handler: h}
			if b.queue == nil {
				inline = append(inline, d)
				continue
			}
			select {
			case b.queue <- d:
			default:
				inline = append(inline, d)
			}
		}
	}
	b.mu.RUnlock()

	for _, d := range inline {
		b.run(d)
	}
	return nil
}

func (b *InMemoryEventBus) run(d delivery) {
	start := time.Now()
	err := safeCall(d.handler, d.event)
	took := time.Since(start)

	if b.onHandled != nil {
		b.onHandled(d.event.EventType(), took, err)
	}
	if err != nil {
		b.log.Error("event handler failed",
			slog.String("event_type", string(d.event.EventType())),
			slog.String("account_id", d.event.AggregateID()),
			slog.Duration("took", took),
			slog.Any("error", err),
		)
	}
}

func safeCall(h shared.EventHandler, e shared.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(e)
}

// Close rejects new events, lets the workers drain what is queued and waits
// for them. Calling it again is a no-op.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	if b.queue != nil {
		close(b.queue)
	}
	b.mu.Unlock()

	b.workers.Wait()
	return nil
}
