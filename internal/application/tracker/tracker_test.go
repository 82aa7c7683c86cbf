package tracker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bwallxyz/guild-activity-hub/internal/domain/shared"
	"github.com/bwallxyz/guild-activity-hub/internal/infrastructure/persistence/memory"
	"github.com/bwallxyz/guild-activity-hub/pkg/logger"
)

const (
	testGuild = shared.GuildID("guild-1")
	testUser  = shared.UserID("user-1")
)

type stubOwnership struct {
	owner bool
	err   error
}

func (s stubOwnership) IsRoomOwner(context.Context, shared.ChannelID, shared.UserID) (bool, error) {
	return s.owner, s.err
}

type recordingPresence struct {
	joins  []shared.ChannelID
	leaves int
}

func (p *recordingPresence) RecordJoin(_ context.Context, _ shared.GuildID, _ shared.UserID, ch shared.ChannelID) error {
	p.joins = append(p.joins, ch)
	return nil
}

func (p *recordingPresence) RecordLeave(context.Context, shared.GuildID, shared.UserID) error {
	p.leaves++
	return nil
}

// testClock steps forward a minute per call so transitions get distinct
// timestamps.
func testClock() shared.Clock {
	t := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Minute)
		return t
	}
}

func newTestTracker(t *testing.T, ownership RoomOwnership, opts ...Option) (*Tracker, *memory.ActivityStore) {
	t.Helper()
	store := memory.NewActivityStore()
	n := 0
	base := []Option{
		WithClock(testClock()),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("sess-%d", n) }),
	}
	tr := New(store, ownership, logger.Default(), append(base, opts...)...)
	return tr, store
}

func joinEvent(channel shared.ChannelID) JoinEvent {
	return JoinEvent{
		Guild:       testGuild,
		User:        testUser,
		Channel:     channel,
		ChannelName: "Lounge",
		Username:    "tester",
		DisplayName: "Tester",
	}
}

func TestHandleJoin_OpensSession(t *testing.T) {
	tr, store := newTestTracker(t, stubOwnership{})

	res, err := tr.HandleJoin(context.Background(), joinEvent("channel-1"))
	require.NoError(t, err)

	assert.False(t, res.Duplicate)
	assert.Nil(t, res.Closed)
	require.NotNil(t, res.Opened)
	assert.Equal(t, shared.ChannelID("channel-1"), res.Opened.ChannelID)

	a, err := store.Get(context.Background(), shared.MemberKey{Guild: testGuild, User: testUser})
	require.NoError(t, err)
	assert.True(t, a.HasOpenSession())
	assert.Equal(t, "tester", a.Username)
}

func TestHandleJoin_Validation(t *testing.T) {
	tr, _ := newTestTracker(t, stubOwnership{})

	ev := joinEvent("channel-1")
	ev.Guild = ""
	_, err := tr.HandleJoin(context.Background(), ev)
	assert.ErrorIs(t, err, shared.ErrInvalidGuildID)

	ev = joinEvent("")
	_, err = tr.HandleJoin(context.Background(), ev)
	assert.ErrorIs(t, err, shared.ErrInvalidChannelID)
}

func TestHandleJoin_DuplicateIsNoOp(t *testing.T) {
	tr, store := newTestTracker(t, stubOwnership{})
	ctx := context.Background()

	first, err := tr.HandleJoin(ctx, joinEvent("channel-1"))
	require.NoError(t, err)

	second, err := tr.HandleJoin(ctx, joinEvent("channel-1"))
	require.NoError(t, err)

	assert.True(t, second.Duplicate)
	assert.Nil(t, second.Closed)
	assert.Equal(t, first.Opened.ID, second.Opened.ID)

	a, err := store.Get(ctx, shared.MemberKey{Guild: testGuild, User: testUser})
	require.NoError(t, err)
	assert.Equal(t, 0, a.TotalSessions)
}

func TestHandleJoin_ImplicitSwitchClosesOldSession(t *testing.T) {
	tr, store := newTestTracker(t, stubOwnership{})
	ctx := context.Background()

	_, err := tr.HandleJoin(ctx, joinEvent("channel-1"))
	require.NoError(t, err)

	res, err := tr.HandleJoin(ctx, joinEvent("channel-2"))
	require.NoError(t, err)

	require.NotNil(t, res.Closed)
	assert.Equal(t, shared.ChannelID("channel-1"), res.Closed.ChannelID)
	assert.False(t, res.ClosedXPBasis.IsZero())
	require.NotNil(t, res.Opened)
	assert.Equal(t, shared.ChannelID("channel-2"), res.Opened.ChannelID)

	a, err := store.Get(ctx, shared.MemberKey{Guild: testGuild, User: testUser})
	require.NoError(t, err)
	assert.Equal(t, 1, a.TotalSessions)
	assert.True(t, a.HasOpenSession())
	assert.Equal(t, shared.ChannelID("channel-2"), a.CurrentSession.ChannelID)
}

func TestHandleLeave_ClosesSession(t *testing.T) {
	tr, store := newTestTracker(t, stubOwnership{})
	ctx := context.Background()

	_, err := tr.HandleJoin(ctx, joinEvent("channel-1"))
	require.NoError(t, err)

	res, err := tr.HandleLeave(ctx, testGuild, testUser)
	require.NoError(t, err)

	assert.False(t, res.NoOp)
	require.NotNil(t, res.Closed)
	assert.Equal(t, time.Minute, res.Closed.Duration)
	assert.Equal(t, res.Closed.JoinedAt, res.XPBasis)

	a, err := store.Get(ctx, shared.MemberKey{Guild: testGuild, User: testUser})
	require.NoError(t, err)
	assert.False(t, a.HasOpenSession())
	assert.Equal(t, time.Minute, a.TotalTime)
}

func TestHandleLeave_NoOpenSessionIsNoOp(t *testing.T) {
	tr, _ := newTestTracker(t, stubOwnership{})

	res, err := tr.HandleLeave(context.Background(), testGuild, testUser)
	require.NoError(t, err)
	assert.True(t, res.NoOp)
	assert.Nil(t, res.Closed)
}

func TestHandleSwitch(t *testing.T) {
	tr, _ := newTestTracker(t, stubOwnership{})
	ctx := context.Background()

	_, err := tr.HandleJoin(ctx, joinEvent("channel-1"))
	require.NoError(t, err)

	res, err := tr.HandleSwitch(ctx, joinEvent("channel-2"))
	require.NoError(t, err)

	require.NotNil(t, res.Closed)
	assert.Equal(t, shared.ChannelID("channel-1"), res.Closed.ChannelID)
	require.NotNil(t, res.Opened)
	assert.Equal(t, shared.ChannelID("channel-2"), res.Opened.ChannelID)
}

func TestHandleJoin_OwnershipFlagAndFailOpen(t *testing.T) {
	tr, _ := newTestTracker(t, stubOwnership{owner: true})
	res, err := tr.HandleJoin(context.Background(), joinEvent("channel-1"))
	require.NoError(t, err)
	assert.True(t, res.Opened.IsOwner)

	// Lookup failures degrade to "not owner" instead of failing the join.
	tr2, _ := newTestTracker(t, stubOwnership{err: errors.New("api down")})
	res, err = tr2.HandleJoin(context.Background(), joinEvent("channel-1"))
	require.NoError(t, err)
	assert.False(t, res.Opened.IsOwner)
}

func TestTracker_PresenceMirror(t *testing.T) {
	presence := &recordingPresence{}
	tr, _ := newTestTracker(t, stubOwnership{}, WithPresenceRecorder(presence))
	ctx := context.Background()

	_, err := tr.HandleJoin(ctx, joinEvent("channel-1"))
	require.NoError(t, err)
	_, err = tr.HandleJoin(ctx, joinEvent("channel-1")) // duplicate, not mirrored
	require.NoError(t, err)
	_, err = tr.HandleLeave(ctx, testGuild, testUser)
	require.NoError(t, err)
	_, err = tr.HandleLeave(ctx, testGuild, testUser) // no-op, not mirrored
	require.NoError(t, err)

	assert.Equal(t, []shared.ChannelID{"channel-1"}, presence.joins)
	assert.Equal(t, 1, presence.leaves)
}

func TestActivity_UntrackedMemberGetsZeroAggregate(t *testing.T) {
	tr, _ := newTestTracker(t, stubOwnership{})

	a, err := tr.Activity(context.Background(), testGuild, testUser)
	require.NoError(t, err)
	assert.Equal(t, 0, a.TotalSessions)
	assert.False(t, a.HasOpenSession())
}

func TestUpdate_RetriesOnVersionConflict(t *testing.T) {
	store := memory.NewActivityStore()
	ctx := context.Background()

	clock := testClock()
	n := 0
	tr := New(store, stubOwnership{}, logger.Default(),
		WithClock(clock),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("sess-%d", n) }),
	)

	_, err := tr.HandleJoin(ctx, joinEvent("channel-1"))
	require.NoError(t, err)

	// Simulate the accrual poller bumping the version between the
	// tracker's read and write: the leave must re-read and still land.
	key := shared.MemberKey{Guild: testGuild, User: testUser}
	a, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.NoError(t, a.MarkXPAccrued(clock()))
	require.NoError(t, store.Save(ctx, a))

	res, err := tr.HandleLeave(ctx, testGuild, testUser)
	require.NoError(t, err)
	require.NotNil(t, res.Closed)
}
