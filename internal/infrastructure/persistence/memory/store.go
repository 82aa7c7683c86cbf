// Package memory provides in-memory implementations of the domain
// repositories. Used in tests and for running the bot without external
// storage; semantics (deep copies, optimistic version checks, ordering)
// match the Postgres implementations exactly.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/bwallxyz/guild-activity-hub/internal/domain/level"
	"github.com/bwallxyz/guild-activity-hub/internal/domain/moderation"
	"github.com/bwallxyz/guild-activity-hub/internal/domain/session"
	"github.com/bwallxyz/guild-activity-hub/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// Activity store
// ═══════════════════════════════════════════════════════════════════════════

// ActivityStore is an in-memory session.Repository.
type ActivityStore struct {
	mu   sync.RWMutex
	data map[shared.MemberKey]*session.UserActivity
}

// NewActivityStore creates an empty activity store.
func NewActivityStore() *ActivityStore {
	return &ActivityStore{data: make(map[shared.MemberKey]*session.UserActivity)}
}

// Get returns a deep copy of the aggregate for a member.
func (s *ActivityStore) Get(_ context.Context, key shared.MemberKey) (*session.UserActivity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.data[key]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return a.Clone(), nil
}

// Save stores the aggregate if its version matches the stored one, then
// increments the version. A stale version yields ErrConcurrentModification.
func (s *ActivityStore) Save(_ context.Context, activity *session.UserActivity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := shared.MemberKey{Guild: activity.GuildID, User: activity.UserID}
	if existing, ok := s.data[key]; ok && existing.Version != activity.Version {
		return shared.ErrConcurrentModification
	}

	stored := activity.Clone()
	stored.Version++
	s.data[key] = stored
	activity.Version = stored.Version
	return nil
}

// WithOpenSessions returns every aggregate with an open session.
func (s *ActivityStore) WithOpenSessions(_ context.Context) ([]*session.UserActivity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*session.UserActivity
	for _, a := range s.data {
		if a.HasOpenSession() {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GuildID != out[j].GuildID {
			return out[i].GuildID < out[j].GuildID
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

// GuildMembers returns the member keys tracked for a guild.
func (s *ActivityStore) GuildMembers(_ context.Context, guild shared.GuildID) ([]shared.MemberKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []shared.MemberKey
	for key := range s.data {
		if key.Guild == guild {
			out = append(out, key)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].User < out[j].User })
	return out, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Level store
// ═══════════════════════════════════════════════════════════════════════════

// LevelStore is an in-memory level.Repository.
type LevelStore struct {
	mu   sync.RWMutex
	data map[shared.MemberKey]*level.UserLevel
}

// NewLevelStore creates an empty level store.
func NewLevelStore() *LevelStore {
	return &LevelStore{data: make(map[shared.MemberKey]*level.UserLevel)}
}

// Get returns a deep copy of the level record for a member.
func (s *LevelStore) Get(_ context.Context, key shared.MemberKey) (*level.UserLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.data[key]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return rec.Clone(), nil
}

// Save stores the record under the same optimistic contract as Activity
// Save.
func (s *LevelStore) Save(_ context.Context, record *level.UserLevel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := shared.MemberKey{Guild: record.GuildID, User: record.UserID}
	if existing, ok := s.data[key]; ok && existing.Version != record.Version {
		return shared.ErrConcurrentModification
	}

	stored := record.Clone()
	stored.Version++
	s.data[key] = stored
	record.Version = stored.Version
	return nil
}

// TopByXP returns up to limit records ordered by XP descending, ties by
// earliest UpdatedAt, then by user ID ascending.
func (s *LevelStore) TopByXP(_ context.Context, guild shared.GuildID, limit int) ([]*level.UserLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*level.UserLevel
	for key, rec := range s.data {
		if key.Guild == guild {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].XP != out[j].XP {
			return out[i].XP > out[j].XP
		}
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Settings store
// ═══════════════════════════════════════════════════════════════════════════

// SettingsStore is an in-memory level.SettingsRepository.
type SettingsStore struct {
	mu   sync.RWMutex
	data map[shared.GuildID]level.Settings
}

// NewSettingsStore creates an empty settings store.
func NewSettingsStore() *SettingsStore {
	return &SettingsStore{data: make(map[shared.GuildID]level.Settings)}
}

// Get returns the settings for a guild, or shared.ErrNotFound.
func (s *SettingsStore) Get(_ context.Context, guild shared.GuildID) (level.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.data[guild]
	if !ok {
		return level.Settings{}, shared.ErrNotFound
	}
	return cfg.Clone(), nil
}

// Save stores settings for a guild.
func (s *SettingsStore) Save(_ context.Context, settings level.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[settings.GuildID] = settings.Clone()
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Moderation store
// ═══════════════════════════════════════════════════════════════════════════

type modKey struct {
	guild shared.GuildID
	room  shared.ChannelID
	user  shared.UserID
	kind  moderation.Kind
}

// ModerationStore is an in-memory moderation.Repository.
type ModerationStore struct {
	mu   sync.RWMutex
	data map[modKey]*moderation.Record
}

// NewModerationStore creates an empty moderation store.
func NewModerationStore() *ModerationStore {
	return &ModerationStore{data: make(map[modKey]*moderation.Record)}
}

// Upsert creates or replaces the record for its tuple.
func (s *ModerationStore) Upsert(_ context.Context, record *moderation.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := modKey{record.GuildID, record.RoomID, record.UserID, record.Kind}
	s.data[key] = record.Clone()
	return nil
}

// Get returns the active record for a tuple, or shared.ErrNotFound.
func (s *ModerationStore) Get(_ context.Context, guild shared.GuildID, room shared.ChannelID, user shared.UserID, kind moderation.Kind) (*moderation.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.data[modKey{guild, room, user, kind}]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return rec.Clone(), nil
}

// Delete removes the record for a tuple, or returns shared.ErrNotFound.
func (s *ModerationStore) Delete(_ context.Context, guild shared.GuildID, room shared.ChannelID, user shared.UserID, kind moderation.Kind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := modKey{guild, room, user, kind}
	if _, ok := s.data[key]; !ok {
		return shared.ErrNotFound
	}
	delete(s.data, key)
	return nil
}

// DeleteRoom removes every record for a room and returns the count.
func (s *ModerationStore) DeleteRoom(_ context.Context, guild shared.GuildID, room shared.ChannelID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	for key := range s.data {
		if key.guild == guild && key.room == room {
			delete(s.data, key)
			n++
		}
	}
	return n, nil
}

// UsersWithState returns the users holding the given state in a room,
// ordered by user ID.
func (s *ModerationStore) UsersWithState(_ context.Context, guild shared.GuildID, room shared.ChannelID, kind moderation.Kind) ([]shared.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []shared.UserID
	for key := range s.data {
		if key.guild == guild && key.room == room && key.kind == kind {
			out = append(out, key.user)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// UserStates returns every record for a user in a room, ordered by kind.
func (s *ModerationStore) UserStates(_ context.Context, guild shared.GuildID, user shared.UserID, room shared.ChannelID) ([]*moderation.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*moderation.Record
	for key, rec := range s.data {
		if key.guild == guild && key.room == room && key.user == user {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out, nil
}

// CountByKind returns active record counts per kind for a room.
func (s *ModerationStore) CountByKind(_ context.Context, guild shared.GuildID, room shared.ChannelID) (map[moderation.Kind]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[moderation.Kind]int)
	for key := range s.data {
		if key.guild == guild && key.room == room {
			out[key.kind]++
		}
	}
	return out, nil
}
