package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bwallxyz/guild-activity-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD CACHE ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrMemberIDEmpty is returned when a member ID is empty.
	ErrMemberIDEmpty = errors.New("leaderboard_cache: member ID cannot be empty")

	// ErrNotInLeaderboard is returned when the member is not ranked.
	ErrNotInLeaderboard = errors.New("leaderboard_cache: member not in leaderboard")

	// ErrInvalidRange is returned when invalid range parameters are provided.
	ErrInvalidRange = errors.New("leaderboard_cache: invalid range parameters")
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD CACHE
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardCache mirrors XP totals into a per-guild Redis sorted set.
//
// Architecture:
//   - Sorted set "leaderboard:{guild}" stores userID -> XP mapping
//
// The sorted set is a ranking accelerator, not the source of truth: the
// XP store's TopByXP ordering is authoritative, and cached scores expire
// so drift heals itself. O(log N) rank lookups, O(log N + M) ranges.
type LeaderboardCache struct {
	cache *Cache
}

// NewLeaderboardCache creates a new LeaderboardCache instance.
func NewLeaderboardCache(cache *Cache) *LeaderboardCache {
	return &LeaderboardCache{cache: cache}
}

// UpdateScore updates or adds a member's XP score. Implements the scorer
// collaborator of the XP engine.
func (l *LeaderboardCache) UpdateScore(ctx context.Context, guild shared.GuildID, user shared.UserID, xp shared.XP) error {
	if !user.IsValid() {
		return ErrMemberIDEmpty
	}

	return l.cache.ZAdd(ctx, LeaderboardKey(guild.String()), TTLLeaderboardCache, redis.Z{
		Score:  float64(xp.Int64()),
		Member: user.String(),
	})
}

// RemoveMember removes a member from the cached ranking.
func (l *LeaderboardCache) RemoveMember(ctx context.Context, guild shared.GuildID, user shared.UserID) error {
	if !user.IsValid() {
		return ErrMemberIDEmpty
	}

	return l.cache.ZRem(ctx, LeaderboardKey(guild.String()), user.String())
}

// TopUsers returns the top N user IDs by XP, highest first.
func (l *LeaderboardCache) TopUsers(ctx context.Context, guild shared.GuildID, count int) ([]shared.UserID, error) {
	if count <= 0 {
		return nil, ErrInvalidRange
	}

	ids, err := l.cache.ZRevRange(ctx, LeaderboardKey(guild.String()), 0, int64(count-1))
	if err != nil {
		return nil, err
	}

	out := make([]shared.UserID, len(ids))
	for i, id := range ids {
		out[i] = shared.UserID(id)
	}
	return out, nil
}

// Rank returns the 1-based cached rank of a member.
func (l *LeaderboardCache) Rank(ctx context.Context, guild shared.GuildID, user shared.UserID) (int64, error) {
	if !user.IsValid() {
		return 0, ErrMemberIDEmpty
	}

	rank, err := l.cache.ZRevRank(ctx, LeaderboardKey(guild.String()), user.String())
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return 0, ErrNotInLeaderboard
		}
		return 0, err
	}
	return rank + 1, nil
}

// Score returns the cached XP score of a member.
func (l *LeaderboardCache) Score(ctx context.Context, guild shared.GuildID, user shared.UserID) (shared.XP, error) {
	if !user.IsValid() {
		return 0, ErrMemberIDEmpty
	}

	score, err := l.cache.ZScore(ctx, LeaderboardKey(guild.String()), user.String())
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return 0, ErrNotInLeaderboard
		}
		return 0, err
	}
	return shared.XP(score), nil
}

// Count returns the number of ranked members for a guild.
func (l *LeaderboardCache) Count(ctx context.Context, guild shared.GuildID) (int64, error) {
	return l.cache.ZCard(ctx, LeaderboardKey(guild.String()))
}

// Rebuild atomically replaces the cached ranking for a guild.
func (l *LeaderboardCache) Rebuild(ctx context.Context, guild shared.GuildID, scores map[shared.UserID]shared.XP) error {
	members := make([]redis.Z, 0, len(scores))
	for user, xp := range scores {
		members = append(members, redis.Z{
			Score:  float64(xp.Int64()),
			Member: user.String(),
		})
	}

	return l.cache.ZReplace(ctx, LeaderboardKey(guild.String()), TTLLeaderboardCache, members...)
}

// Invalidate removes the cached ranking for a guild.
func (l *LeaderboardCache) Invalidate(ctx context.Context, guild shared.GuildID) error {
	return l.cache.Delete(ctx, LeaderboardKey(guild.String()))
}

// RefreshTTL extends the TTL of the cached ranking.
func (l *LeaderboardCache) RefreshTTL(ctx context.Context, guild shared.GuildID, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = TTLLeaderboardCache
	}
	return l.cache.Expire(ctx, LeaderboardKey(guild.String()), ttl)
}
