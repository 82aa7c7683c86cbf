package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/bwallxyz/guild-activity-hub/internal/domain/shared"
)

// DefaultEventsChannel is the Redis pub/sub channel events are relayed on.
const DefaultEventsChannel = "guild-activity:events"

// ══════════════════════════════════════════════════════════════════════════════
// REDIS EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// RedisEventBus fans events out across bot instances via Redis pub/sub.
// Local delivery goes through an embedded in-memory bus; published events
// are additionally relayed to the channel, and events received from other
// instances are replayed into the local bus. Envelopes carry the producing
// instance ID so a bus never re-delivers its own events.
type RedisEventBus struct {
	local      *InMemoryEventBus
	client     *redis.Client
	channel    string
	instanceID string
	log        *slog.Logger

	mu       sync.RWMutex
	decoders map[shared.EventType]func() shared.Event

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// envelope is the wire format on the pub/sub channel.
type envelope struct {
	InstanceID string           `json:"instance_id"`
	Type       shared.EventType `json:"type"`
	Payload    json.RawMessage  `json:"payload"`
}

// NewRedisEventBus creates a Redis-backed event bus. The channel may be
// empty, in which case DefaultEventsChannel is used.
func NewRedisEventBus(client *redis.Client, channel string, log *slog.Logger, opts ...BusOption) *RedisEventBus {
	if channel == "" {
		channel = DefaultEventsChannel
	}
	if log == nil {
		log = slog.Default()
	}

	bus := &RedisEventBus{
		local:      NewInMemoryEventBus(append(opts, WithBusLogger(log))...),
		client:     client,
		channel:    channel,
		instanceID: uuid.NewString(),
		log:        log,
		decoders:   make(map[shared.EventType]func() shared.Event),
	}
	bus.registerDefaultDecoders()
	return bus
}

// RegisterDecoder registers a factory used to decode events of a given
// type received from other instances. Unregistered types are dropped.
func (b *RedisEventBus) RegisterDecoder(eventType shared.EventType, factory func() shared.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.decoders[eventType] = factory
}

func (b *RedisEventBus) registerDefaultDecoders() {
	b.decoders[shared.EventSessionClosed] = func() shared.Event { return &shared.SessionClosedEvent{} }
	b.decoders[shared.EventLevelUp] = func() shared.Event { return &shared.LevelUpEvent{} }
	b.decoders[shared.EventModerationStateSet] = func() shared.Event { return &shared.ModerationStateEvent{} }
	b.decoders[shared.EventModerationStateCleared] = func() shared.Event { return &shared.ModerationStateEvent{} }
}

// Subscribe registers a handler for a specific event type.
func (b *RedisEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) {
	b.local.Subscribe(eventType, handler)
}

// SubscribeAll registers a handler for every event type.
func (b *RedisEventBus) SubscribeAll(handler shared.EventHandler) {
	b.local.SubscribeAll(handler)
}

// Publish delivers the event locally and relays it to other instances.
// Relay failures are logged, not returned: local subscribers already got
// the event.
func (b *RedisEventBus) Publish(ctx context.Context, event shared.Event) error {
	if err := b.local.Publish(ctx, event); err != nil {
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		b.log.Error("failed to marshal event for relay",
			slog.String("event_type", string(event.EventType())),
			slog.String("error", err.Error()),
		)
		return nil
	}

	data, err := json.Marshal(envelope{
		InstanceID: b.instanceID,
		Type:       event.EventType(),
		Payload:    payload,
	})
	if err != nil {
		return nil
	}

	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		b.log.Error("failed to relay event",
			slog.String("event_type", string(event.EventType())),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// Start begins consuming relayed events from other instances. It returns
// once the subscription is established; consumption continues until the
// context is cancelled or Close is called.
func (b *RedisEventBus) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	sub := b.client.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		cancel()
		return fmt.Errorf("failed to subscribe to events channel: %w", err)
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer sub.Close()

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				b.handleRelayed(ctx, msg.Payload)
			}
		}
	}()
	return nil
}

func (b *RedisEventBus) handleRelayed(ctx context.Context, raw string) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		b.log.Warn("dropping malformed relayed event", slog.String("error", err.Error()))
		return
	}
	if env.InstanceID == b.instanceID {
		return
	}

	b.mu.RLock()
	factory, ok := b.decoders[env.Type]
	b.mu.RUnlock()
	if !ok {
		b.log.Debug("no decoder for relayed event", slog.String("event_type", string(env.Type)))
		return
	}

	event := factory()
	if err := json.Unmarshal(env.Payload, event); err != nil {
		b.log.Warn("dropping undecodable relayed event",
			slog.String("event_type", string(env.Type)),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := b.local.Publish(ctx, event); err != nil {
		b.log.Error("failed to deliver relayed event", slog.String("error", err.Error()))
	}
}

// Close stops the relay consumer and shuts down the local bus.
func (b *RedisEventBus) Close() error {
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
	return b.local.Close()
}
