package level

import (
	"time"

	"github.com/bwallxyz/guild-activity-hub/internal/domain/shared"
)

// Settings validation errors.
var (
	ErrInvalidVoiceRate   = shared.NewDomainError("level", "Validate", shared.ErrInvalidInput, "voice XP rate must be positive")
	ErrInvalidMessageRate = shared.NewDomainError("level", "Validate", shared.ErrInvalidInput, "message XP rate must be positive")
	ErrCooldownTooShort   = shared.NewDomainError("level", "Validate", shared.ErrInvalidInput, "message cooldown must be at least 10 seconds")
	ErrInvalidMultiplier  = shared.NewDomainError("level", "Validate", shared.ErrInvalidInput, "base multiplier must be positive")
	ErrInvalidScaling     = shared.NewDomainError("level", "Validate", shared.ErrInvalidInput, "scaling multiplier must be greater than 1")
	ErrInvalidLevelRole   = shared.NewDomainError("level", "Validate", shared.ErrInvalidInput, "level role mapping requires a positive level and a role ID")
)

// MinMessageCooldown is the lowest allowed message XP cooldown.
const MinMessageCooldown = 10 * time.Second

// NotifySettings controls how level-up notifications are delivered.
type NotifySettings struct {
	Enabled           bool
	ChannelID         shared.ChannelID // dedicated announcement channel, if set
	DMUser            bool
	AnnounceInChannel bool // fall back to the channel the activity happened in
}

// Settings is the per-guild leveling configuration. Mutated only through an
// explicit administrative update; read on every XP award.
type Settings struct {
	GuildID shared.GuildID

	VoiceXPPerMinute    shared.XP
	MessageXPPerMessage shared.XP
	MessageXPCooldown   time.Duration

	// Curve parameters, see curve.go for the convention.
	BaseMultiplier    float64
	ScalingMultiplier float64

	// LevelRoles maps a level to the role granted on reaching it.
	LevelRoles map[int]shared.RoleID

	Notify NotifySettings
}

// DefaultSettings returns the configuration used for guilds that have never
// been configured.
func DefaultSettings(guild shared.GuildID) Settings {
	return Settings{
		GuildID:             guild,
		VoiceXPPerMinute:    2,
		MessageXPPerMessage: 5,
		MessageXPCooldown:   60 * time.Second,
		BaseMultiplier:      100,
		ScalingMultiplier:   1.5,
		LevelRoles:          map[int]shared.RoleID{},
		Notify: NotifySettings{
			Enabled:           true,
			AnnounceInChannel: true,
		},
	}
}

// Validate rejects invalid settings before any state mutation.
func (s Settings) Validate() error {
	if !s.GuildID.IsValid() {
		return shared.ErrInvalidGuildID
	}
	if s.VoiceXPPerMinute <= 0 {
		return ErrInvalidVoiceRate
	}
	if s.MessageXPPerMessage <= 0 {
		return ErrInvalidMessageRate
	}
	if s.MessageXPCooldown < MinMessageCooldown {
		return ErrCooldownTooShort
	}
	if s.BaseMultiplier <= 0 {
		return ErrInvalidMultiplier
	}
	if s.ScalingMultiplier <= 1 {
		return ErrInvalidScaling
	}
	for lvl, role := range s.LevelRoles {
		if lvl <= 0 || !role.IsValid() {
			return ErrInvalidLevelRole
		}
	}
	return nil
}

// RoleForLevel returns the reward role for a level, if one is configured.
func (s Settings) RoleForLevel(lvl int) (shared.RoleID, bool) {
	role, ok := s.LevelRoles[lvl]
	return role, ok
}

// Clone returns a deep copy of the settings.
func (s Settings) Clone() Settings {
	clone := s
	clone.LevelRoles = make(map[int]shared.RoleID, len(s.LevelRoles))
	for k, v := range s.LevelRoles {
		clone.LevelRoles[k] = v
	}
	return clone
}
