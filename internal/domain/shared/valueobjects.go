// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"fmt"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// GuildID represents a unique Discord guild (server) identifier.
// Every core operation is explicitly guild-scoped; there is no ambient
// "current guild".
type GuildID string

// IsValid checks if the guild ID is non-empty.
func (g GuildID) IsValid() bool {
	return g != ""
}

// String returns the string representation.
func (g GuildID) String() string {
	return string(g)
}

// UserID represents a unique Discord user identifier.
type UserID string

// IsValid checks if the user ID is non-empty.
func (u UserID) IsValid() bool {
	return u != ""
}

// String returns the string representation.
func (u UserID) String() string {
	return string(u)
}

// ChannelID represents a unique Discord channel identifier.
// Voice rooms and text channels share the same identifier space.
type ChannelID string

// IsValid checks if the channel ID is non-empty.
func (c ChannelID) IsValid() bool {
	return c != ""
}

// String returns the string representation.
func (c ChannelID) String() string {
	return string(c)
}

// RoleID represents a unique Discord role identifier, used for level rewards.
type RoleID string

// IsValid checks if the role ID is non-empty.
func (r RoleID) IsValid() bool {
	return r != ""
}

// String returns the string representation.
func (r RoleID) String() string {
	return string(r)
}

// ═══════════════════════════════════════════════════════════════════════════
// Composite Keys
// ═══════════════════════════════════════════════════════════════════════════

// MemberKey identifies a user within a guild. UserActivity and UserLevel
// aggregates are both keyed by it.
type MemberKey struct {
	Guild GuildID
	User  UserID
}

// NewMemberKey creates a MemberKey with validation.
func NewMemberKey(guild GuildID, user UserID) (MemberKey, error) {
	if !guild.IsValid() {
		return MemberKey{}, ErrInvalidGuildID
	}
	if !user.IsValid() {
		return MemberKey{}, ErrInvalidUserID
	}
	return MemberKey{Guild: guild, User: user}, nil
}

// IsValid checks both components.
func (k MemberKey) IsValid() bool {
	return k.Guild.IsValid() && k.User.IsValid()
}

// String returns "guild/user" for logging.
func (k MemberKey) String() string {
	return fmt.Sprintf("%s/%s", k.Guild, k.User)
}

// ═══════════════════════════════════════════════════════════════════════════
// XP Value Object
// ═══════════════════════════════════════════════════════════════════════════

// XP represents accumulated experience points.
type XP int64

// IsValid checks that XP is non-negative.
func (x XP) IsValid() bool {
	return x >= 0
}

// Add returns the sum of two XP amounts.
func (x XP) Add(delta XP) XP {
	return x + delta
}

// Int64 returns the underlying value.
func (x XP) Int64() int64 {
	return int64(x)
}

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

// SystemClock returns the current UTC time.
func SystemClock() time.Time {
	return time.Now().UTC()
}
