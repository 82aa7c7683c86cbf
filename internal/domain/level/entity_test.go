package level

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bwallxyz/guild-activity-hub/internal/domain/shared"
)

func TestUserLevel_AddXPKeepsSplitInvariant(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	u := NewUserLevel("guild-1", "user-1", now)

	require.NoError(t, u.AddVoiceXP(20, now))
	require.NoError(t, u.AddMessageXP(5, now.Add(time.Minute)))
	require.NoError(t, u.AddVoiceXP(10, now.Add(2*time.Minute)))

	assert.Equal(t, shared.XP(30), u.VoiceXP)
	assert.Equal(t, shared.XP(5), u.MessageXP)
	assert.Equal(t, u.VoiceXP+u.MessageXP, u.XP)

	assert.ErrorIs(t, u.AddVoiceXP(0, now), ErrInvalidAmount)
	assert.ErrorIs(t, u.AddMessageXP(-5, now), ErrInvalidAmount)
}

func TestUserLevel_MessageCooldown(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	u := NewUserLevel("guild-1", "user-1", now)
	cooldown := 60 * time.Second

	// No anchor yet: always eligible.
	assert.True(t, u.CanEarnMessageXP(now, cooldown))

	require.NoError(t, u.AddMessageXP(5, now))
	assert.False(t, u.CanEarnMessageXP(now.Add(30*time.Second), cooldown))
	assert.True(t, u.CanEarnMessageXP(now.Add(60*time.Second), cooldown))
}

func TestUserLevel_AdjustXP(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	u := NewUserLevel("guild-1", "user-1", now)
	require.NoError(t, u.AddVoiceXP(40, now))
	require.NoError(t, u.AddMessageXP(10, now))

	// Positive delta lands in message XP.
	u.AdjustXP(25, now)
	assert.Equal(t, shared.XP(75), u.XP)
	assert.Equal(t, shared.XP(35), u.MessageXP)
	assert.Equal(t, shared.XP(40), u.VoiceXP)

	// Negative delta drains message XP first, then voice.
	u.AdjustXP(-50, now)
	assert.Equal(t, shared.XP(25), u.XP)
	assert.Equal(t, shared.XP(0), u.MessageXP)
	assert.Equal(t, shared.XP(25), u.VoiceXP)

	// Over-subtraction clamps at zero.
	u.AdjustXP(-1000, now)
	assert.Equal(t, shared.XP(0), u.XP)
	assert.Equal(t, shared.XP(0), u.VoiceXP)
	assert.Equal(t, shared.XP(0), u.MessageXP)
}

func TestUserLevel_Recalculate(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := DefaultSettings("guild-1")
	u := NewUserLevel("guild-1", "user-1", now)

	require.NoError(t, u.AddVoiceXP(260, now))
	oldLevel, newLevel := u.Recalculate(s)
	assert.Equal(t, 0, oldLevel)
	assert.Equal(t, 2, newLevel)
	assert.Equal(t, 2, u.Level)
}

func TestSettings_Validate(t *testing.T) {
	s := DefaultSettings("guild-1")
	require.NoError(t, s.Validate())

	bad := s
	bad.VoiceXPPerMinute = 0
	assert.ErrorIs(t, bad.Validate(), ErrInvalidVoiceRate)

	bad = s
	bad.MessageXPPerMessage = -1
	assert.ErrorIs(t, bad.Validate(), ErrInvalidMessageRate)

	bad = s
	bad.MessageXPCooldown = 5 * time.Second
	assert.ErrorIs(t, bad.Validate(), ErrCooldownTooShort)

	bad = s
	bad.ScalingMultiplier = 1
	assert.ErrorIs(t, bad.Validate(), ErrInvalidScaling)

	bad = s.Clone()
	bad.LevelRoles[0] = "role-1"
	assert.ErrorIs(t, bad.Validate(), ErrInvalidLevelRole)
}

func TestSettings_RoleForLevel(t *testing.T) {
	s := DefaultSettings("guild-1")
	s.LevelRoles[5] = "role-5"

	role, ok := s.RoleForLevel(5)
	assert.True(t, ok)
	assert.Equal(t, shared.RoleID("role-5"), role)

	_, ok = s.RoleForLevel(4)
	assert.False(t, ok)
}
