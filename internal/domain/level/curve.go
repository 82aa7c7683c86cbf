package level

import (
	"math"

	"github.com/bwallxyz/guild-activity-hub/internal/domain/shared"
)

// The curve uses the per-level-delta convention: the cost of advancing from
// level L-1 to L is round(BaseMultiplier × ScalingMultiplier^(L-1)), floored
// at 1 XP, and the total required to reach L is the sum of those deltas.
// Deltas are strictly positive, so thresholds are strictly increasing and
// LevelForXP / XPRequiredForLevel invert each other exactly.

// maxLevel caps curve walks so pathological settings can never loop forever.
const maxLevel = 10000

// levelDelta returns the XP cost of advancing from level l-1 to level l.
func levelDelta(l int, s Settings) shared.XP {
	raw := s.BaseMultiplier * math.Pow(s.ScalingMultiplier, float64(l-1))
	delta := shared.XP(math.Round(raw))
	if delta < 1 {
		delta = 1
	}
	return delta
}

// XPRequiredForLevel returns the total XP needed to reach level l.
// Level 0 requires 0 XP.
func XPRequiredForLevel(l int, s Settings) shared.XP {
	if l <= 0 {
		return 0
	}
	if l > maxLevel {
		l = maxLevel
	}
	var total shared.XP
	for i := 1; i <= l; i++ {
		total += levelDelta(i, s)
	}
	return total
}

// LevelForXP returns the highest level whose cumulative threshold is at most
// xp. Monotonic non-decreasing in xp.
func LevelForXP(xp shared.XP, s Settings) int {
	if xp <= 0 {
		return 0
	}
	var total shared.XP
	for l := 1; l <= maxLevel; l++ {
		total += levelDelta(l, s)
		if total > xp {
			return l - 1
		}
	}
	return maxLevel
}

// XPToNextLevel returns how much XP is missing to reach the next level from
// the given total.
func XPToNextLevel(xp shared.XP, s Settings) shared.XP {
	current := LevelForXP(xp, s)
	next := XPRequiredForLevel(current+1, s)
	return next - xp
}

// ProgressToNextLevel returns (earned, needed) XP within the current level,
// for progress displays.
func ProgressToNextLevel(xp shared.XP, s Settings) (earned, needed shared.XP) {
	current := LevelForXP(xp, s)
	floor := XPRequiredForLevel(current, s)
	ceil := XPRequiredForLevel(current+1, s)
	return xp - floor, ceil - floor
}
