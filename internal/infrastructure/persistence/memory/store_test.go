package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bwallxyz/guild-activity-hub/internal/domain/level"
	"github.com/bwallxyz/guild-activity-hub/internal/domain/moderation"
	"github.com/bwallxyz/guild-activity-hub/internal/domain/session"
	"github.com/bwallxyz/guild-activity-hub/internal/domain/shared"
)

const (
	testGuild = shared.GuildID("guild-1")
	testUser  = shared.UserID("user-1")
)

func TestActivityStore_SaveBumpsVersionAndDetectsConflicts(t *testing.T) {
	store := NewActivityStore()
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	a := session.NewUserActivity(testGuild, testUser, now)
	require.NoError(t, store.Save(ctx, a))
	assert.Equal(t, int64(1), a.Version)

	// Two readers load the same version; only the first write lands.
	first, err := store.Get(ctx, shared.MemberKey{Guild: testGuild, User: testUser})
	require.NoError(t, err)
	second, err := store.Get(ctx, shared.MemberKey{Guild: testGuild, User: testUser})
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, first))
	err = store.Save(ctx, second)
	assert.ErrorIs(t, err, shared.ErrConcurrentModification)
}

func TestActivityStore_GetReturnsCopies(t *testing.T) {
	store := NewActivityStore()
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	a := session.NewUserActivity(testGuild, testUser, now)
	a.Username = "original"
	require.NoError(t, store.Save(ctx, a))

	got, err := store.Get(ctx, shared.MemberKey{Guild: testGuild, User: testUser})
	require.NoError(t, err)
	got.Username = "mutated"

	again, err := store.Get(ctx, shared.MemberKey{Guild: testGuild, User: testUser})
	require.NoError(t, err)
	assert.Equal(t, "original", again.Username)
}

func TestActivityStore_GetMissing(t *testing.T) {
	store := NewActivityStore()

	_, err := store.Get(context.Background(), shared.MemberKey{Guild: testGuild, User: "ghost"})
	assert.True(t, shared.IsNotFound(err))
}

func TestActivityStore_WithOpenSessions(t *testing.T) {
	store := NewActivityStore()
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	closed := session.NewUserActivity(testGuild, "user-a", now)
	s1, err := session.NewSession("s1", testGuild, "user-a", "channel-1", "", now, false)
	require.NoError(t, err)
	require.NoError(t, closed.StartSession(s1))
	_, err = closed.CloseSession(now.Add(time.Minute))
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, closed))

	open := session.NewUserActivity(testGuild, "user-b", now)
	s2, err := session.NewSession("s2", testGuild, "user-b", "channel-1", "", now, false)
	require.NoError(t, err)
	require.NoError(t, open.StartSession(s2))
	require.NoError(t, store.Save(ctx, open))

	got, err := store.WithOpenSessions(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, shared.UserID("user-b"), got[0].UserID)
}

func TestLevelStore_TopByXPOrdering(t *testing.T) {
	store := NewLevelStore()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	save := func(user shared.UserID, xp shared.XP, at time.Time) {
		rec := level.NewUserLevel(testGuild, user, at)
		require.NoError(t, rec.AddVoiceXP(xp, at))
		require.NoError(t, store.Save(ctx, rec))
	}

	save("user-b", 100, base.Add(time.Hour)) // tied, later update
	save("user-a", 100, base)                // tied, earlier update
	save("user-c", 300, base)

	got, err := store.TopByXP(ctx, testGuild, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, shared.UserID("user-c"), got[0].UserID)
	assert.Equal(t, shared.UserID("user-a"), got[1].UserID)
	assert.Equal(t, shared.UserID("user-b"), got[2].UserID)

	// Limit truncates.
	got, err = store.TopByXP(ctx, testGuild, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSettingsStore_RoundTrip(t *testing.T) {
	store := NewSettingsStore()
	ctx := context.Background()

	_, err := store.Get(ctx, testGuild)
	assert.True(t, shared.IsNotFound(err))

	cfg := level.DefaultSettings(testGuild)
	cfg.VoiceXPPerMinute = 7
	require.NoError(t, store.Save(ctx, cfg))

	got, err := store.Get(ctx, testGuild)
	require.NoError(t, err)
	assert.Equal(t, shared.XP(7), got.VoiceXPPerMinute)

	// Stored settings are isolated from later mutation of the original.
	cfg.LevelRoles[3] = "role-3"
	got, err = store.Get(ctx, testGuild)
	require.NoError(t, err)
	assert.Empty(t, got.LevelRoles)
}

func TestModerationStore_UpsertIsKeyedByTuple(t *testing.T) {
	store := NewModerationStore()
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	rec, err := moderation.NewRecord("r1", testGuild, "room-1", testUser, moderation.KindMuted, "one", "mod-1", now)
	require.NoError(t, err)
	require.NoError(t, store.Upsert(ctx, rec))

	// Same tuple replaces.
	rec2, err := moderation.NewRecord("r2", testGuild, "room-1", testUser, moderation.KindMuted, "two", "mod-1", now)
	require.NoError(t, err)
	require.NoError(t, store.Upsert(ctx, rec2))

	got, err := store.Get(ctx, testGuild, "room-1", testUser, moderation.KindMuted)
	require.NoError(t, err)
	assert.Equal(t, "two", got.Reason)

	users, err := store.UsersWithState(ctx, testGuild, "room-1", moderation.KindMuted)
	require.NoError(t, err)
	assert.Equal(t, []shared.UserID{testUser}, users)
}

func TestModerationStore_DeleteAndDeleteRoom(t *testing.T) {
	store := NewModerationStore()
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	add := func(id string, room shared.ChannelID, user shared.UserID, kind moderation.Kind) {
		rec, err := moderation.NewRecord(id, testGuild, room, user, kind, "", "mod-1", now)
		require.NoError(t, err)
		require.NoError(t, store.Upsert(ctx, rec))
	}

	add("r1", "room-1", testUser, moderation.KindMuted)
	add("r2", "room-1", "user-2", moderation.KindBanned)
	add("r3", "room-2", testUser, moderation.KindMuted)

	assert.True(t, shared.IsNotFound(store.Delete(ctx, testGuild, "room-1", "ghost", moderation.KindMuted)))
	require.NoError(t, store.Delete(ctx, testGuild, "room-1", testUser, moderation.KindMuted))

	n, err := store.DeleteRoom(ctx, testGuild, "room-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	counts, err := store.CountByKind(ctx, testGuild, "room-2")
	require.NoError(t, err)
	assert.Equal(t, 1, counts[moderation.KindMuted])
}
