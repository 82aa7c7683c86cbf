// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"context"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Events decouple the core services from notification
// delivery: services return typed results, the interface layer publishes
// events, and subscribers (e.g. the Discord notifier) react to them.
const (
	// Session events
	EventSessionStarted EventType = "session.started"
	EventSessionClosed  EventType = "session.closed"

	// Leveling events
	EventXPAwarded EventType = "level.xp_awarded"
	EventLevelUp   EventType = "level.level_up"

	// Moderation events
	EventModerationStateSet     EventType = "moderation.state_set"
	EventModerationStateCleared EventType = "moderation.state_cleared"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string
}

// EventHandler processes a published event. Handlers must be safe for
// concurrent use; the bus may invoke them from multiple workers.
type EventHandler interface {
	// Name returns a unique handler name for logging.
	Name() string

	// Handle processes the event. Errors are logged by the bus, never
	// propagated to the publisher.
	Handle(ctx context.Context, event Event) error
}

// EventBus publishes domain events to subscribed handlers.
type EventBus interface {
	// Subscribe registers a handler for a specific event type.
	Subscribe(eventType EventType, handler EventHandler)

	// SubscribeAll registers a handler for every event type.
	SubscribeAll(handler EventHandler)

	// Publish delivers an event to all matching handlers.
	Publish(ctx context.Context, event Event) error

	// Close shuts the bus down and waits for in-flight deliveries.
	Close() error
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	AggregateId string    `json:"aggregate_id"`
}

// EventType implements Event.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event stamped with the current time.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Concrete Events
// ═══════════════════════════════════════════════════════════════════════════

// SessionClosedEvent is published when a voice session is closed by a leave
// or switch transition.
type SessionClosedEvent struct {
	BaseEvent
	Guild       GuildID       `json:"guild_id"`
	User        UserID        `json:"user_id"`
	Channel     ChannelID     `json:"channel_id"`
	ChannelName string        `json:"channel_name"`
	Duration    time.Duration `json:"duration"`
}

// NewSessionClosedEvent creates a session-closed event.
func NewSessionClosedEvent(guild GuildID, user UserID, channel ChannelID, channelName string, duration time.Duration) *SessionClosedEvent {
	return &SessionClosedEvent{
		BaseEvent:   NewBaseEvent(EventSessionClosed, MemberKey{Guild: guild, User: user}.String()),
		Guild:       guild,
		User:        user,
		Channel:     channel,
		ChannelName: channelName,
		Duration:    duration,
	}
}

// LevelUpEvent is published when an XP write moves a user across a level
// threshold. The XP write has already been persisted when this fires;
// delivery failures must not roll it back.
type LevelUpEvent struct {
	BaseEvent
	Guild      GuildID   `json:"guild_id"`
	User       UserID    `json:"user_id"`
	Channel    ChannelID `json:"channel_id,omitempty"` // channel the triggering activity happened in
	OldLevel   int       `json:"old_level"`
	NewLevel   int       `json:"new_level"`
	XP         XP        `json:"xp"`
	XPToNext   XP        `json:"xp_to_next"`
	RewardRole RoleID    `json:"reward_role,omitempty"`
}

// NewLevelUpEvent creates a level-up event.
func NewLevelUpEvent(guild GuildID, user UserID, channel ChannelID, oldLevel, newLevel int, xp, xpToNext XP, rewardRole RoleID) *LevelUpEvent {
	return &LevelUpEvent{
		BaseEvent:  NewBaseEvent(EventLevelUp, MemberKey{Guild: guild, User: user}.String()),
		Guild:      guild,
		User:       user,
		Channel:    channel,
		OldLevel:   oldLevel,
		NewLevel:   newLevel,
		XP:         xp,
		XPToNext:   xpToNext,
		RewardRole: rewardRole,
	}
}

// ModerationStateEvent is published when a moderation state is set or cleared.
type ModerationStateEvent struct {
	BaseEvent
	Guild     GuildID   `json:"guild_id"`
	Room      ChannelID `json:"room_id"`
	User      UserID    `json:"user_id"`
	StateKind string    `json:"state_kind"`
	AppliedBy UserID    `json:"applied_by,omitempty"`
}

// NewModerationStateEvent creates a moderation state change event.
func NewModerationStateEvent(eventType EventType, guild GuildID, room ChannelID, user UserID, kind string, appliedBy UserID) *ModerationStateEvent {
	return &ModerationStateEvent{
		BaseEvent: NewBaseEvent(eventType, MemberKey{Guild: guild, User: user}.String()),
		Guild:     guild,
		Room:      room,
		User:      user,
		StateKind: kind,
		AppliedBy: appliedBy,
	}
}
