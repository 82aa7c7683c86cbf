package moderation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bwallxyz/guild-activity-hub/internal/domain/shared"
)

func TestKind_IsValid(t *testing.T) {
	assert.True(t, KindMuted.IsValid())
	assert.True(t, KindBanned.IsValid())
	assert.False(t, Kind("frozen").IsValid())
	assert.False(t, Kind("").IsValid())
}

func TestNewRecord_Validation(t *testing.T) {
	now := time.Now()

	_, err := NewRecord("id", "", "room-1", "user-1", KindMuted, "", "mod-1", now)
	assert.ErrorIs(t, err, shared.ErrInvalidGuildID)

	_, err = NewRecord("id", "guild-1", "", "user-1", KindMuted, "", "mod-1", now)
	assert.ErrorIs(t, err, shared.ErrInvalidChannelID)

	_, err = NewRecord("id", "guild-1", "room-1", "", KindMuted, "", "mod-1", now)
	assert.ErrorIs(t, err, shared.ErrInvalidUserID)

	_, err = NewRecord("id", "guild-1", "room-1", "user-1", Kind("frozen"), "", "mod-1", now)
	assert.ErrorIs(t, err, ErrInvalidKind)

	_, err = NewRecord("id", "guild-1", "room-1", "user-1", KindBanned, "", "", now)
	assert.ErrorIs(t, err, ErrMissingAppliedBy)

	rec, err := NewRecord("id", "guild-1", "room-1", "user-1", KindBanned, "spamming", "mod-1", now)
	require.NoError(t, err)
	assert.Equal(t, KindBanned, rec.Kind)
	assert.Equal(t, "spamming", rec.Reason)
	assert.Equal(t, shared.UserID("mod-1"), rec.AppliedBy)
}

func TestRecord_Refresh(t *testing.T) {
	first := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rec, err := NewRecord("id", "guild-1", "room-1", "user-1", KindMuted, "noise", "mod-1", first)
	require.NoError(t, err)

	second := first.Add(time.Hour)
	rec.Refresh("still noisy", "mod-2", second)

	assert.Equal(t, "still noisy", rec.Reason)
	assert.Equal(t, shared.UserID("mod-2"), rec.AppliedBy)
	assert.Equal(t, second, rec.AppliedAt)
	// Identity fields never change on a re-apply.
	assert.Equal(t, "id", rec.ID)
	assert.Equal(t, KindMuted, rec.Kind)
}

func TestRoomStats_Total(t *testing.T) {
	stats := RoomStats{
		GuildID: "guild-1",
		RoomID:  "room-1",
		Counts:  map[Kind]int{KindMuted: 2, KindBanned: 3},
	}
	assert.Equal(t, 5, stats.Total())

	assert.Equal(t, 0, RoomStats{}.Total())
}
