// Package level contains the leveling domain: per-member XP records, guild
// level settings, and the deterministic level curve. Pure domain layer with
// zero external dependencies.
package level

import (
	"time"

	"github.com/bwallxyz/guild-activity-hub/internal/domain/shared"
)

// Domain errors for the level package.
var (
	ErrInvalidAmount  = shared.NewDomainError("level", "Award", shared.ErrInvalidInput, "XP amount must be positive")
	ErrInvalidLevel   = shared.NewDomainError("level", "Curve", shared.ErrInvalidInput, "level must be non-negative")
	ErrLevelNotFound  = shared.NewDomainError("level", "Get", shared.ErrNotFound, "level record not found")
	ErrRecordMismatch = shared.NewDomainError("level", "Save", shared.ErrInvalidInput, "record belongs to a different member")
)

// UserLevel is the aggregate holding a member's accumulated XP.
// Invariants: VoiceXP + MessageXP == XP; Level always equals
// LevelForXP(XP, settings) after any XP write.
type UserLevel struct {
	GuildID shared.GuildID
	UserID  shared.UserID

	XP        shared.XP
	VoiceXP   shared.XP
	MessageXP shared.XP
	Level     int

	LastMessageXPAt *time.Time // message cooldown anchor
	UpdatedAt       time.Time

	// Version guards optimistic writes, same scheme as UserActivity.
	Version int64
}

// NewUserLevel creates a zeroed level record. Records are created lazily on
// the first XP-earning event and never deleted by the core.
func NewUserLevel(guild shared.GuildID, user shared.UserID, now time.Time) *UserLevel {
	return &UserLevel{
		GuildID:   guild,
		UserID:    user,
		UpdatedAt: now,
	}
}

// CanEarnMessageXP reports whether the message cooldown has elapsed.
func (u *UserLevel) CanEarnMessageXP(at time.Time, cooldown time.Duration) bool {
	if u.LastMessageXPAt == nil {
		return true
	}
	return at.Sub(*u.LastMessageXPAt) >= cooldown
}

// AddMessageXP adds message XP and stamps the cooldown anchor.
// The caller is responsible for the cooldown check.
func (u *UserLevel) AddMessageXP(amount shared.XP, at time.Time) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	u.MessageXP = u.MessageXP.Add(amount)
	u.XP = u.XP.Add(amount)
	anchor := at
	u.LastMessageXPAt = &anchor
	u.UpdatedAt = at
	return nil
}

// AddVoiceXP adds voice XP.
func (u *UserLevel) AddVoiceXP(amount shared.XP, at time.Time) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	u.VoiceXP = u.VoiceXP.Add(amount)
	u.XP = u.XP.Add(amount)
	u.UpdatedAt = at
	return nil
}

// AdjustXP applies an administrative delta to total XP. Negative deltas
// clamp at zero; the voice/message split absorbs the change in message XP
// first so the subtotals invariant holds.
func (u *UserLevel) AdjustXP(delta shared.XP, at time.Time) {
	newXP := u.XP.Add(delta)
	if newXP < 0 {
		delta = -u.XP
		newXP = 0
	}
	u.MessageXP = u.MessageXP.Add(delta)
	if u.MessageXP < 0 {
		u.VoiceXP = u.VoiceXP.Add(u.MessageXP)
		u.MessageXP = 0
	}
	if u.VoiceXP < 0 {
		u.VoiceXP = 0
	}
	u.XP = newXP
	u.UpdatedAt = at
}

// Recalculate refreshes the cached level from the curve and returns the
// previous and current values.
func (u *UserLevel) Recalculate(settings Settings) (oldLevel, newLevel int) {
	oldLevel = u.Level
	u.Level = LevelForXP(u.XP, settings)
	return oldLevel, u.Level
}

// Clone returns a deep copy of the record.
func (u *UserLevel) Clone() *UserLevel {
	if u == nil {
		return nil
	}
	clone := *u
	if u.LastMessageXPAt != nil {
		anchor := *u.LastMessageXPAt
		clone.LastMessageXPAt = &anchor
	}
	return &clone
}
