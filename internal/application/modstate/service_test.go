package modstate

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bwallxyz/guild-activity-hub/internal/domain/moderation"
	"github.com/bwallxyz/guild-activity-hub/internal/domain/shared"
	"github.com/bwallxyz/guild-activity-hub/internal/infrastructure/persistence/memory"
	"github.com/bwallxyz/guild-activity-hub/pkg/logger"
)

const (
	testGuild = shared.GuildID("guild-1")
	testRoom  = shared.ChannelID("room-1")
	testUser  = shared.UserID("user-1")
	testMod   = shared.UserID("mod-1")
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	calls := 0
	n := 0
	return New(memory.NewModerationStore(), logger.Default(),
		WithClock(func() time.Time {
			calls++
			return base.Add(time.Duration(calls) * time.Minute)
		}),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("rec-%d", n) }),
	)
}

func TestSetState_CreatesRecord(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	res, err := svc.SetState(ctx, testGuild, testRoom, testUser, moderation.KindMuted, "noise", testMod)
	require.NoError(t, err)

	assert.False(t, res.Replaced)
	assert.Equal(t, moderation.KindMuted, res.Record.Kind)
	assert.Equal(t, "noise", res.Record.Reason)
	assert.Equal(t, testMod, res.Record.AppliedBy)

	active, err := svc.IsStateActive(ctx, testGuild, testRoom, testUser, moderation.KindMuted)
	require.NoError(t, err)
	assert.True(t, active)
}

func TestSetState_ReapplyReplacesInPlace(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	first, err := svc.SetState(ctx, testGuild, testRoom, testUser, moderation.KindBanned, "spamming", testMod)
	require.NoError(t, err)

	second, err := svc.SetState(ctx, testGuild, testRoom, testUser, moderation.KindBanned, "still spamming", "mod-2")
	require.NoError(t, err)

	assert.True(t, second.Replaced)
	// Same record identity, refreshed metadata.
	assert.Equal(t, first.Record.ID, second.Record.ID)
	assert.Equal(t, "still spamming", second.Record.Reason)
	assert.Equal(t, shared.UserID("mod-2"), second.Record.AppliedBy)
	assert.True(t, second.Record.AppliedAt.After(first.Record.AppliedAt))

	// Still exactly one record for the tuple.
	users, err := svc.UsersWithState(ctx, testGuild, testRoom, moderation.KindBanned)
	require.NoError(t, err)
	assert.Equal(t, []shared.UserID{testUser}, users)
}

func TestSetState_Validation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.SetState(ctx, testGuild, testRoom, testUser, moderation.Kind("frozen"), "", testMod)
	assert.ErrorIs(t, err, moderation.ErrInvalidKind)

	_, err = svc.SetState(ctx, testGuild, testRoom, testUser, moderation.KindMuted, "", "")
	assert.ErrorIs(t, err, moderation.ErrMissingAppliedBy)
}

func TestStatesAreIndependentPerKindAndRoom(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.SetState(ctx, testGuild, testRoom, testUser, moderation.KindMuted, "", testMod)
	require.NoError(t, err)

	// Muting does not ban.
	banned, err := svc.IsStateActive(ctx, testGuild, testRoom, testUser, moderation.KindBanned)
	require.NoError(t, err)
	assert.False(t, banned)

	// States are scoped to the room they were set in.
	mutedElsewhere, err := svc.IsStateActive(ctx, testGuild, "room-2", testUser, moderation.KindMuted)
	require.NoError(t, err)
	assert.False(t, mutedElsewhere)
}

func TestClearState(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.SetState(ctx, testGuild, testRoom, testUser, moderation.KindMuted, "", testMod)
	require.NoError(t, err)

	res, err := svc.ClearState(ctx, testGuild, testRoom, testUser, moderation.KindMuted)
	require.NoError(t, err)
	assert.False(t, res.NoOp)

	active, err := svc.IsStateActive(ctx, testGuild, testRoom, testUser, moderation.KindMuted)
	require.NoError(t, err)
	assert.False(t, active)

	// Clearing again is a no-op, not an error.
	res, err = svc.ClearState(ctx, testGuild, testRoom, testUser, moderation.KindMuted)
	require.NoError(t, err)
	assert.True(t, res.NoOp)

	_, err = svc.ClearState(ctx, testGuild, testRoom, testUser, moderation.Kind("frozen"))
	assert.ErrorIs(t, err, moderation.ErrInvalidKind)
}

func TestUserStatesAndRoomStats(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.SetState(ctx, testGuild, testRoom, testUser, moderation.KindMuted, "", testMod)
	require.NoError(t, err)
	_, err = svc.SetState(ctx, testGuild, testRoom, testUser, moderation.KindBanned, "", testMod)
	require.NoError(t, err)
	_, err = svc.SetState(ctx, testGuild, testRoom, "user-2", moderation.KindMuted, "", testMod)
	require.NoError(t, err)

	states, err := svc.UserStates(ctx, testGuild, testUser, testRoom)
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, moderation.KindBanned, states[0].Kind)
	assert.Equal(t, moderation.KindMuted, states[1].Kind)

	stats, err := svc.RoomStats(ctx, testGuild, testRoom)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Counts[moderation.KindMuted])
	assert.Equal(t, 1, stats.Counts[moderation.KindBanned])
	assert.Equal(t, 3, stats.Total())
}

func TestPurgeRoom(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.SetState(ctx, testGuild, testRoom, testUser, moderation.KindMuted, "", testMod)
	require.NoError(t, err)
	_, err = svc.SetState(ctx, testGuild, testRoom, "user-2", moderation.KindBanned, "", testMod)
	require.NoError(t, err)
	_, err = svc.SetState(ctx, testGuild, "room-2", testUser, moderation.KindMuted, "", testMod)
	require.NoError(t, err)

	n, err := svc.PurgeRoom(ctx, testGuild, testRoom)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// The other room is untouched.
	active, err := svc.IsStateActive(ctx, testGuild, "room-2", testUser, moderation.KindMuted)
	require.NoError(t, err)
	assert.True(t, active)
}

func TestActiveSince(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	old := &moderation.Record{AppliedAt: base}
	recent := &moderation.Record{AppliedAt: base.Add(time.Hour)}

	got := ActiveSince([]*moderation.Record{old, recent}, base.Add(30*time.Minute))
	require.Len(t, got, 1)
	assert.Equal(t, recent, got[0])
}
