package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bwallxyz/guild-activity-hub/internal/domain/shared"
)

var (
	testGuild   = shared.GuildID("guild-1")
	testUser    = shared.UserID("user-1")
	testChannel = shared.ChannelID("channel-1")
)

func newOpenSession(t *testing.T, joinedAt time.Time) *Session {
	t.Helper()
	s, err := NewSession("sess-1", testGuild, testUser, testChannel, "Lounge", joinedAt, false)
	require.NoError(t, err)
	return s
}

func TestNewSession_Validation(t *testing.T) {
	now := time.Now()

	_, err := NewSession("", testGuild, testUser, testChannel, "Lounge", now, false)
	assert.ErrorIs(t, err, ErrInvalidSession)

	_, err = NewSession("id", "", testUser, testChannel, "Lounge", now, false)
	assert.ErrorIs(t, err, shared.ErrInvalidGuildID)

	_, err = NewSession("id", testGuild, "", testChannel, "Lounge", now, false)
	assert.ErrorIs(t, err, shared.ErrInvalidUserID)

	_, err = NewSession("id", testGuild, testUser, "", "Lounge", now, false)
	assert.ErrorIs(t, err, shared.ErrInvalidChannelID)
}

func TestSession_Close(t *testing.T) {
	joined := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := newOpenSession(t, joined)
	assert.True(t, s.IsOpen())

	left := joined.Add(45 * time.Minute)
	require.NoError(t, s.Close(left))

	assert.False(t, s.IsOpen())
	assert.Equal(t, 45*time.Minute, s.Duration)
	require.NotNil(t, s.LeftAt)
	assert.Equal(t, left, *s.LeftAt)

	// Closing twice is an error.
	assert.ErrorIs(t, s.Close(left.Add(time.Minute)), ErrSessionAlreadyClosed)
}

func TestSession_CloseBeforeJoin(t *testing.T) {
	joined := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := newOpenSession(t, joined)

	assert.ErrorIs(t, s.Close(joined.Add(-time.Second)), ErrEndBeforeStart)
	assert.True(t, s.IsOpen())
}

func TestSession_DurationAt(t *testing.T) {
	joined := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := newOpenSession(t, joined)

	assert.Equal(t, 10*time.Minute, s.DurationAt(joined.Add(10*time.Minute)))
	assert.Equal(t, time.Duration(0), s.DurationAt(joined.Add(-time.Minute)))

	require.NoError(t, s.Close(joined.Add(30*time.Minute)))
	// Closed sessions report their fixed duration regardless of now.
	assert.Equal(t, 30*time.Minute, s.DurationAt(joined.Add(2*time.Hour)))
}

func TestUserActivity_StartAndCloseSession(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	a := NewUserActivity(testGuild, testUser, now)

	s := newOpenSession(t, now)
	require.NoError(t, a.StartSession(s))
	assert.True(t, a.HasOpenSession())

	// Second open session is rejected.
	s2 := newOpenSession(t, now.Add(time.Minute))
	assert.ErrorIs(t, a.StartSession(s2), ErrSessionAlreadyOpen)

	closed, err := a.CloseSession(now.Add(20 * time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 20*time.Minute, closed.Duration)

	assert.False(t, a.HasOpenSession())
	assert.Equal(t, 1, a.TotalSessions)
	assert.Equal(t, 20*time.Minute, a.TotalTime)
	assert.Len(t, a.History, 1)
	assert.Nil(t, a.LastXPUpdate)

	_, err = a.CloseSession(now.Add(time.Hour))
	assert.ErrorIs(t, err, ErrNoOpenSession)
}

func TestUserActivity_StartSessionMismatch(t *testing.T) {
	now := time.Now()
	a := NewUserActivity(testGuild, testUser, now)

	other, err := NewSession("sess-2", testGuild, shared.UserID("someone-else"), testChannel, "Lounge", now, false)
	require.NoError(t, err)

	assert.ErrorIs(t, a.StartSession(other), ErrSessionMismatch)
}

func TestUserActivity_XPBasis(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	a := NewUserActivity(testGuild, testUser, now)

	// No open session: no basis.
	_, ok := a.XPBasis()
	assert.False(t, ok)

	require.NoError(t, a.StartSession(newOpenSession(t, now)))

	// Fresh session: basis is the join time.
	basis, ok := a.XPBasis()
	require.True(t, ok)
	assert.Equal(t, now, basis)

	// After an accrual the mark takes over.
	mark := now.Add(3 * time.Minute)
	require.NoError(t, a.MarkXPAccrued(mark))
	basis, ok = a.XPBasis()
	require.True(t, ok)
	assert.Equal(t, mark, basis)

	// Closing resets the mark.
	_, err := a.CloseSession(now.Add(10 * time.Minute))
	require.NoError(t, err)
	assert.Nil(t, a.LastXPUpdate)
}

func TestUserActivity_MarkXPAccruedWithoutSession(t *testing.T) {
	a := NewUserActivity(testGuild, testUser, time.Now())
	assert.ErrorIs(t, a.MarkXPAccrued(time.Now()), ErrNoOpenSession)
}

func TestUserActivity_SessionsOverlapping(t *testing.T) {
	day := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := NewUserActivity(testGuild, testUser, day)

	// Closed session entirely on day one.
	s1 := newOpenSession(t, day.Add(10*time.Hour))
	require.NoError(t, a.StartSession(s1))
	_, err := a.CloseSession(day.Add(11 * time.Hour))
	require.NoError(t, err)

	// Closed session spanning midnight into day two.
	s2, err := NewSession("sess-2", testGuild, testUser, testChannel, "Lounge", day.Add(23*time.Hour), false)
	require.NoError(t, err)
	require.NoError(t, a.StartSession(s2))
	_, err = a.CloseSession(day.Add(25 * time.Hour))
	require.NoError(t, err)

	dayTwo := day.AddDate(0, 0, 1)

	within := a.SessionsOverlapping(day, dayTwo)
	assert.Len(t, within, 2)

	within = a.SessionsOverlapping(dayTwo, dayTwo.AddDate(0, 0, 1))
	assert.Len(t, within, 1)
	assert.Equal(t, "sess-2", within[0].ID)
}

func TestUserActivity_Clone(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	a := NewUserActivity(testGuild, testUser, now)
	require.NoError(t, a.StartSession(newOpenSession(t, now)))
	require.NoError(t, a.MarkXPAccrued(now.Add(time.Minute)))

	clone := a.Clone()
	clone.CurrentSession.ChannelName = "Renamed"
	*clone.LastXPUpdate = now.Add(time.Hour)

	assert.Equal(t, "Lounge", a.CurrentSession.ChannelName)
	assert.Equal(t, now.Add(time.Minute), *a.LastXPUpdate)
}
