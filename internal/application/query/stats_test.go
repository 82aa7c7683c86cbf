package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bwallxyz/guild-activity-hub/internal/domain/level"
	"github.com/bwallxyz/guild-activity-hub/internal/domain/session"
	"github.com/bwallxyz/guild-activity-hub/internal/domain/shared"
	"github.com/bwallxyz/guild-activity-hub/internal/infrastructure/persistence/memory"
	"github.com/bwallxyz/guild-activity-hub/pkg/logger"
)

const testGuild = shared.GuildID("guild-1")

type fixture struct {
	svc      *Service
	activity *memory.ActivityStore
	levels   *memory.LevelStore
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		activity: memory.NewActivityStore(),
		levels:   memory.NewLevelStore(),
		now:      time.Date(2026, 1, 10, 15, 0, 0, 0, time.UTC),
	}
	f.svc = New(f.activity, f.levels, memory.NewSettingsStore(), logger.Default(),
		WithClock(func() time.Time { return f.now }))
	return f
}

// addClosedSession records one closed session for the user.
func (f *fixture) addClosedSession(t *testing.T, user shared.UserID, joined time.Time, d time.Duration) {
	t.Helper()
	ctx := context.Background()

	a, err := f.activity.Get(ctx, shared.MemberKey{Guild: testGuild, User: user})
	if shared.IsNotFound(err) {
		a = session.NewUserActivity(testGuild, user, joined)
	} else {
		require.NoError(t, err)
	}

	s, err := session.NewSession(string(user)+joined.String(), testGuild, user, "channel-1", "Lounge", joined, false)
	require.NoError(t, err)
	require.NoError(t, a.StartSession(s))
	_, err = a.CloseSession(joined.Add(d))
	require.NoError(t, err)
	a.RefreshNames("name-"+string(user), "")
	require.NoError(t, f.activity.Save(ctx, a))
}

// openSession leaves the user with an open session started at joined.
func (f *fixture) openSession(t *testing.T, user shared.UserID, joined time.Time) {
	t.Helper()
	ctx := context.Background()

	a, err := f.activity.Get(ctx, shared.MemberKey{Guild: testGuild, User: user})
	if shared.IsNotFound(err) {
		a = session.NewUserActivity(testGuild, user, joined)
	} else {
		require.NoError(t, err)
	}

	s, err := session.NewSession("open-"+string(user), testGuild, user, "channel-2", "Stage", joined, false)
	require.NoError(t, err)
	require.NoError(t, a.StartSession(s))
	require.NoError(t, f.activity.Save(ctx, a))
}

// addXP writes a level record directly with a given XP total.
func (f *fixture) addXP(t *testing.T, user shared.UserID, xp shared.XP, updatedAt time.Time) {
	t.Helper()
	lv, err := f.levels.Get(context.Background(), shared.MemberKey{Guild: testGuild, User: user})
	if shared.IsNotFound(err) {
		lv = level.NewUserLevel(testGuild, user, updatedAt)
	} else {
		require.NoError(t, err)
	}
	require.NoError(t, lv.AddVoiceXP(xp, updatedAt))
	require.NoError(t, f.levels.Save(context.Background(), lv))
}

func TestUserStats_UnknownMemberGetsZeroCard(t *testing.T) {
	f := newFixture(t)

	stats, err := f.svc.UserStats(context.Background(), testGuild, "ghost")
	require.NoError(t, err)

	assert.Equal(t, 0, stats.TotalSessions)
	assert.Equal(t, shared.XP(0), stats.XP)
	assert.False(t, stats.InVoice)
	assert.Equal(t, "0 seconds", stats.TotalTimeHuman)
	// Progress still reflects the default curve.
	assert.Equal(t, shared.XP(100), stats.ProgressNeeded)
}

func TestUserStats_OpenSessionReportedSeparately(t *testing.T) {
	f := newFixture(t)
	user := shared.UserID("user-1")

	f.addClosedSession(t, user, f.now.Add(-3*time.Hour), time.Hour)
	f.openSession(t, user, f.now.Add(-20*time.Minute))

	stats, err := f.svc.UserStats(context.Background(), testGuild, user)
	require.NoError(t, err)

	assert.True(t, stats.InVoice)
	assert.Equal(t, shared.ChannelID("channel-2"), stats.CurrentChannel)
	assert.Equal(t, 20*time.Minute, stats.CurrentDuration)
	// The open session lives in CurrentDuration; TotalTime stays the sum
	// of closed session durations.
	assert.Equal(t, time.Hour, stats.TotalTime)
	assert.Equal(t, "1 hour", stats.TotalTimeHuman)
	assert.Equal(t, 1, stats.TotalSessions)
}

func TestLeaderboard_OrderAndTieBreak(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	earlier := f.now.Add(-2 * time.Hour)
	later := f.now.Add(-time.Hour)

	f.addXP(t, "user-a", 300, later)
	f.addXP(t, "user-b", 500, later)
	// Same XP as user-a but earlier update: ranks ahead of it.
	f.addXP(t, "user-c", 300, earlier)

	entries, err := f.svc.Leaderboard(ctx, testGuild, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, shared.UserID("user-b"), entries[0].UserID)
	assert.Equal(t, shared.UserID("user-c"), entries[1].UserID)
	assert.Equal(t, shared.UserID("user-a"), entries[2].UserID)

	// Ranks are dense, starting at 1, no sharing on ties.
	for i, e := range entries {
		assert.Equal(t, i+1, e.Rank)
	}

	// Repeated queries over unchanged data return the identical page.
	again, err := f.svc.Leaderboard(ctx, testGuild, 10)
	require.NoError(t, err)
	assert.Equal(t, entries, again)
}

func TestLeaderboard_LimitAndNames(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addXP(t, "user-a", 100, f.now)
	f.addXP(t, "user-b", 200, f.now)
	f.addClosedSession(t, "user-b", f.now.Add(-time.Hour), time.Minute)

	entries, err := f.svc.Leaderboard(ctx, testGuild, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, shared.UserID("user-b"), entries[0].UserID)
	assert.Equal(t, "name-user-b", entries[0].Username)
}

func TestRank(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addXP(t, "user-a", 100, f.now)
	f.addXP(t, "user-b", 200, f.now)

	rank, err := f.svc.Rank(ctx, testGuild, "user-a", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, rank)

	// Absent member ranks 0.
	rank, err = f.svc.Rank(ctx, testGuild, "ghost", 0)
	require.NoError(t, err)
	assert.Equal(t, 0, rank)
}

func TestActivityByDay_SplitsAtMidnight(t *testing.T) {
	f := newFixture(t)
	user := shared.UserID("user-1")

	// 23:00 two days ago until 01:00 the next day: one hour in each bucket.
	dayBefore := time.Date(2026, 1, 8, 23, 0, 0, 0, time.UTC)
	f.addClosedSession(t, user, dayBefore, 2*time.Hour)

	days, err := f.svc.ActivityByDay(context.Background(), testGuild, user, 3)
	require.NoError(t, err)
	require.Len(t, days, 3)

	assert.Equal(t, time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC), days[0].Day)
	assert.Equal(t, time.Hour, days[0].Total)
	assert.Equal(t, time.Hour, days[1].Total)
	assert.Equal(t, time.Duration(0), days[2].Total)
}

func TestActivityByDay_OpenSessionCountsUpToNow(t *testing.T) {
	f := newFixture(t)
	user := shared.UserID("user-1")

	f.openSession(t, user, f.now.Add(-90*time.Minute))

	days, err := f.svc.ActivityByDay(context.Background(), testGuild, user, 1)
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.Equal(t, 90*time.Minute, days[0].Total)
}

func TestActivityByDay_UnknownMemberGetsEmptyBuckets(t *testing.T) {
	f := newFixture(t)

	days, err := f.svc.ActivityByDay(context.Background(), testGuild, "ghost", 7)
	require.NoError(t, err)
	require.Len(t, days, 7)
	for _, d := range days {
		assert.Equal(t, time.Duration(0), d.Total)
	}
}

func TestGuildVoiceTotals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addClosedSession(t, "user-a", f.now.Add(-5*time.Hour), time.Hour)
	f.addClosedSession(t, "user-b", f.now.Add(-5*time.Hour), 2*time.Hour)
	// A long-running open session does not outrank closed totals.
	f.openSession(t, "user-c", f.now.Add(-3*time.Hour))

	totals, err := f.svc.GuildVoiceTotals(ctx, testGuild, 10)
	require.NoError(t, err)
	require.Len(t, totals, 3)
	assert.Equal(t, shared.UserID("user-b"), totals[0].UserID)
	assert.Equal(t, 2*time.Hour, totals[0].TotalTime)
	assert.Equal(t, shared.UserID("user-a"), totals[1].UserID)

	assert.Equal(t, shared.UserID("user-c"), totals[2].UserID)
	assert.Equal(t, time.Duration(0), totals[2].TotalTime)
	assert.Equal(t, 3*time.Hour, totals[2].CurrentDuration)
}
