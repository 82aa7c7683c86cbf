package level

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bwallxyz/guild-activity-hub/internal/domain/shared"
)

func defaultTestSettings() Settings {
	return DefaultSettings(shared.GuildID("guild-1"))
}

func TestXPRequiredForLevel_DefaultCurve(t *testing.T) {
	s := defaultTestSettings()

	// base=100, scale=1.5: deltas are 100, 150, 225, 338 (rounded).
	assert.Equal(t, shared.XP(0), XPRequiredForLevel(0, s))
	assert.Equal(t, shared.XP(100), XPRequiredForLevel(1, s))
	assert.Equal(t, shared.XP(250), XPRequiredForLevel(2, s))
	assert.Equal(t, shared.XP(475), XPRequiredForLevel(3, s))
	assert.Equal(t, shared.XP(813), XPRequiredForLevel(4, s))

	assert.Equal(t, shared.XP(0), XPRequiredForLevel(-3, s))
}

func TestLevelForXP_InvertsThresholds(t *testing.T) {
	s := defaultTestSettings()

	for l := 0; l <= 20; l++ {
		threshold := XPRequiredForLevel(l, s)
		assert.Equal(t, l, LevelForXP(threshold, s), "at threshold of level %d", l)
		if l > 0 {
			assert.Equal(t, l-1, LevelForXP(threshold-1, s), "one below threshold of level %d", l)
		}
	}
}

func TestLevelForXP_Monotonic(t *testing.T) {
	s := defaultTestSettings()

	prev := 0
	for xp := shared.XP(0); xp <= 2000; xp += 7 {
		l := LevelForXP(xp, s)
		require.GreaterOrEqual(t, l, prev)
		prev = l
	}
}

func TestLevelForXP_ZeroAndNegative(t *testing.T) {
	s := defaultTestSettings()

	assert.Equal(t, 0, LevelForXP(0, s))
	assert.Equal(t, 0, LevelForXP(-50, s))
}

func TestXPToNextLevel(t *testing.T) {
	s := defaultTestSettings()

	assert.Equal(t, shared.XP(100), XPToNextLevel(0, s))
	assert.Equal(t, shared.XP(60), XPToNextLevel(40, s))
	// Exactly at the level 1 threshold: next target is 250.
	assert.Equal(t, shared.XP(150), XPToNextLevel(100, s))
}

func TestProgressToNextLevel(t *testing.T) {
	s := defaultTestSettings()

	earned, needed := ProgressToNextLevel(160, s)
	assert.Equal(t, shared.XP(60), earned)
	assert.Equal(t, shared.XP(150), needed)

	earned, needed = ProgressToNextLevel(0, s)
	assert.Equal(t, shared.XP(0), earned)
	assert.Equal(t, shared.XP(100), needed)
}

func TestCurve_DegenerateSettingsStillTerminate(t *testing.T) {
	s := defaultTestSettings()
	s.BaseMultiplier = 0.001
	s.ScalingMultiplier = 1.0000001

	// Deltas floor at 1 XP, so thresholds keep increasing and the walk
	// caps out instead of spinning.
	assert.Equal(t, shared.XP(5), XPRequiredForLevel(5, s))
	assert.Equal(t, maxLevel, LevelForXP(shared.XP(maxLevel*10), s))
}
