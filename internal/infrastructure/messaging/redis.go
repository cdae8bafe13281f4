package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alphawulf/alphawulf-hub/internal/domain/shared"
)

// PubSub is the transport the Redis bus needs. *redis.Cache implements it.
type PubSub interface {
	Publish(ctx context.Context, channel string, message string) error
	Subscribe(ctx context.Context, channel string) (<-chan string, func() error, error)
}

const DefaultChannel = "alphawulf:events"

type RedisEventBusConfig struct {
	Transport PubSub
	Channel   string
	// InstanceID marks our own messages so they are not replayed twice.
	InstanceID string
	Local      InMemoryEventBusConfig
	Logger     *slog.Logger
}

// envelope is the message format on the channel.
type envelope struct {
	Origin  string           `json:"origin"`
	Type    shared.EventType `json:"type"`
	Account string           `json:"account_id"`
	At      time.Time        `json:"at"`
	Body    map[string]any   `json:"body"`
}

// RedisEventBus delivers every event locally and mirrors it to a Redis
// channel. Events from other instances are replayed into the local bus.
type RedisEventBus struct {
	*InMemoryEventBus

	transport PubSub
	channel   string
	origin    string
	log       *slog.Logger

	stop   context.CancelFunc
	unsub  func() error
	recv   sync.WaitGroup
	closed sync.Once
}

func NewRedisEventBus(cfg RedisEventBusConfig) (*RedisEventBus, error) {
	if cfg.Transport == nil {
		return nil, errors.New("messaging: redis transport is required")
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Local.Logger == nil {
		cfg.Local.Logger = cfg.Logger
	}

	ctx, stop := context.WithCancel(context.Background())
	messages, unsub, err := cfg.Transport.Subscribe(ctx, cfg.Channel)
	if err != nil {
		stop()
		return nil, err
	}

	b := &RedisEventBus{
		InMemoryEventBus: NewInMemoryEventBus(cfg.Local),
		transport:        cfg.Transport,
		channel:          cfg.Channel,
		origin:           cfg.InstanceID,
		log:              cfg.Logger.With("component", "redis_event_bus", "instance", cfg.InstanceID),
		stop:             stop,
		unsub:            unsub,
	}
	b.recv.Add(1)
	go b.receive(ctx, messages)
	return b, nil
}

// Publish runs local handlers even when the mirror to Redis fails.
func (b *RedisEventBus) Publish(event shared.Event) error {
	if event == nil {
		return errNilEvent
	}
	if err := b.InMemoryEventBus.Publish(event); err != nil {
		return err
	}

	raw, err := json.Marshal(envelope{
		Origin:  b.origin,
		Type:    event.EventType(),
		Account: event.AggregateID(),
		At:      event.OccurredAt(),
		Body:    event.Payload(),
	})
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = b.transport.Publish(ctx, b.channel, string(raw))
		cancel()
	}
	if err != nil {
		b.log.Warn("event not mirrored to redis", slog.String("event_type", string(event.EventType())), slog.Any("error", err))
	}
	return nil
}

func (b *RedisEventBus) receive(ctx context.Context, messages <-chan string) {
	defer b.recv.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg), &env); err != nil {
				b.log.Warn("malformed event dropped", slog.Any("error", err))
				continue
			}
			if env.Origin == b.origin {
				continue
			}
			if err := b.InMemoryEventBus.Publish(&remoteEvent{env}); err != nil && !errors.Is(err, ErrEventBusClosed) {
				b.log.Warn("remote event not replayed", slog.Any("error", err))
			}
		}
	}
}

// Close stops the receiver first, then drains the local bus.
func (b *RedisEventBus) Close() error {
	b.closed.Do(func() {
		b.stop()
		if b.unsub != nil {
			if err := b.unsub(); err != nil {
				b.log.Warn("redis unsubscribe failed", slog.Any("error", err))
			}
		}
		b.recv.Wait()
	})
	return b.InMemoryEventBus.Close()
}

// remoteEvent is an event published by another instance.
type remoteEvent struct{ env envelope }

func (e *remoteEvent) EventType() shared.EventType { return e.env.Type }
func (e *remoteEvent) AggregateID() string         { return e.env.Account }
func (e *remoteEvent) OccurredAt() time.Time       { return e.env.At }
func (e *remoteEvent) Payload() map[string]any     { return e.env.Body }

// ══════════════════════════════════════════════════════════════════════════════
// LOCAL-ONLY DELIVERY
// ══════════════════════════════════════════════════════════════════════════════

// IsRemote reports whether event was replayed from another instance.
func IsRemote(event shared.Event) bool {
	_, ok := event.(*remoteEvent)
	return ok
}

// LocalOnly drops replayed events before they reach handler. Side effects
// that must happen once per event (chat notifications) are wrapped with it.
func LocalOnly(handler shared.EventHandler) shared.EventHandler {
	return func(event shared.Event) error {
		if IsRemote(event) {
			return nil
		}
		return handler(event)
	}
}

type localSubscriber struct{ next shared.EventSubscriber }

// LocalSubscriber wraps every handler registered through it with LocalOnly.
func LocalSubscriber(next shared.EventSubscriber) shared.EventSubscriber {
	return localSubscriber{next: next}
}

func (s localSubscriber) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return s.next.Subscribe(eventType, LocalOnly(handler))
}
