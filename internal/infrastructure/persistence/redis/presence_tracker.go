package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bwallxyz/guild-activity-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PRESENCE TRACKER
// ══════════════════════════════════════════════════════════════════════════════

// PresenceTracker mirrors live voice membership per guild using Redis.
// It answers "who is in voice right now" without touching the activity
// store. Best-effort by design: the durable session records are the source
// of truth, the mirror just serves hot reads.
//
// Architecture:
//   - Hash "presence:{guild}" maps userID -> PresenceEntry JSON
//   - Each hash carries a TTL refreshed on every write, so a guild the
//     gateway stopped reporting on ages out
type PresenceTracker struct {
	cache *Cache
}

// PresenceEntry describes one user currently in voice.
type PresenceEntry struct {
	UserID    string    `json:"user_id"`
	ChannelID string    `json:"channel_id"`
	JoinedAt  time.Time `json:"joined_at"`
}

// NewPresenceTracker creates a new PresenceTracker instance.
func NewPresenceTracker(cache *Cache) *PresenceTracker {
	return &PresenceTracker{cache: cache}
}

// RecordJoin marks a user as present in a voice channel.
func (t *PresenceTracker) RecordJoin(ctx context.Context, guild shared.GuildID, user shared.UserID, channel shared.ChannelID) error {
	if !user.IsValid() {
		return ErrMemberIDEmpty
	}

	entry := PresenceEntry{
		UserID:    user.String(),
		ChannelID: channel.String(),
		JoinedAt:  time.Now().UTC(),
	}
	return t.cache.HSet(ctx, PresenceKey(guild.String()), user.String(), entry, TTLPresence)
}

// RecordLeave removes a user from the guild's presence mirror.
func (t *PresenceTracker) RecordLeave(ctx context.Context, guild shared.GuildID, user shared.UserID) error {
	if !user.IsValid() {
		return ErrMemberIDEmpty
	}

	return t.cache.HDel(ctx, PresenceKey(guild.String()), user.String())
}

// InVoice returns the presence entry for a user, or nil when not in voice.
func (t *PresenceTracker) InVoice(ctx context.Context, guild shared.GuildID, user shared.UserID) (*PresenceEntry, error) {
	if !user.IsValid() {
		return nil, ErrMemberIDEmpty
	}

	var entry PresenceEntry
	err := t.cache.HGet(ctx, PresenceKey(guild.String()), user.String(), &entry)
	if errors.Is(err, ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// GuildPresence returns every user currently in voice in a guild.
func (t *PresenceTracker) GuildPresence(ctx context.Context, guild shared.GuildID) ([]PresenceEntry, error) {
	fields, err := t.cache.HGetAll(ctx, PresenceKey(guild.String()))
	if err != nil {
		return nil, err
	}

	out := make([]PresenceEntry, 0, len(fields))
	for _, raw := range fields {
		var entry PresenceEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

// ChannelPresence returns the users currently in one voice channel.
func (t *PresenceTracker) ChannelPresence(ctx context.Context, guild shared.GuildID, channel shared.ChannelID) ([]PresenceEntry, error) {
	all, err := t.GuildPresence(ctx, guild)
	if err != nil {
		return nil, err
	}

	out := make([]PresenceEntry, 0, len(all))
	for _, entry := range all {
		if entry.ChannelID == channel.String() {
			out = append(out, entry)
		}
	}
	return out, nil
}

// PresenceCount returns the number of users in voice in a guild.
func (t *PresenceTracker) PresenceCount(ctx context.Context, guild shared.GuildID) (int64, error) {
	return t.cache.HLen(ctx, PresenceKey(guild.String()))
}

// ClearGuild drops the presence mirror for a guild. Used on reconnect,
// before re-seeding from gateway state.
func (t *PresenceTracker) ClearGuild(ctx context.Context, guild shared.GuildID) error {
	return t.cache.Delete(ctx, PresenceKey(guild.String()))
}
