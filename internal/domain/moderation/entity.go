// Package moderation contains the room moderation domain: per-room,
// per-user state records (muted, banned) with reason, author, and timestamp.
// Independent of session tracking and leveling; keyed by room, not guild.
package moderation

import (
	"time"

	"github.com/bwallxyz/guild-activity-hub/internal/domain/shared"
)

// Domain errors for the moderation package.
var (
	ErrInvalidKind      = shared.NewDomainError("moderation", "Validate", shared.ErrInvalidInput, "invalid moderation state kind")
	ErrMissingAppliedBy = shared.NewDomainError("moderation", "Validate", shared.ErrInvalidInput, "applied-by moderator is required")
	ErrRecordNotFound   = shared.NewDomainError("moderation", "Get", shared.ErrNotFound, "moderation record not found")
)

// Kind identifies a moderation state. The set is extensible; the store
// enforces uniqueness per (guild, room, user, kind).
type Kind string

const (
	// KindMuted means the user cannot speak in the room.
	KindMuted Kind = "muted"

	// KindBanned means the user cannot enter the room.
	KindBanned Kind = "banned"
)

// IsValid checks that the kind is one of the known states.
func (k Kind) IsValid() bool {
	switch k {
	case KindMuted, KindBanned:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (k Kind) String() string {
	return string(k)
}

// Record is one active moderation state for a user in a room.
// At most one record exists per (guild, room, user, kind).
type Record struct {
	ID        string
	GuildID   shared.GuildID
	RoomID    shared.ChannelID
	UserID    shared.UserID
	Kind      Kind
	Reason    string // optional
	AppliedBy shared.UserID
	AppliedAt time.Time
}

// NewRecord creates a moderation record with validation. All mutation-path
// validation happens here, before any store write.
func NewRecord(id string, guild shared.GuildID, room shared.ChannelID, user shared.UserID, kind Kind, reason string, appliedBy shared.UserID, at time.Time) (*Record, error) {
	if !guild.IsValid() {
		return nil, shared.ErrInvalidGuildID
	}
	if !room.IsValid() {
		return nil, shared.ErrInvalidChannelID
	}
	if !user.IsValid() {
		return nil, shared.ErrInvalidUserID
	}
	if !kind.IsValid() {
		return nil, ErrInvalidKind
	}
	if !appliedBy.IsValid() {
		return nil, ErrMissingAppliedBy
	}

	return &Record{
		ID:        id,
		GuildID:   guild,
		RoomID:    room,
		UserID:    user,
		Kind:      kind,
		Reason:    reason,
		AppliedBy: appliedBy,
		AppliedAt: at,
	}, nil
}

// Refresh replaces the mutable fields on an idempotent re-apply: the same
// tuple keeps one record, with reason/author/timestamp from the latest set.
func (r *Record) Refresh(reason string, appliedBy shared.UserID, at time.Time) {
	r.Reason = reason
	r.AppliedBy = appliedBy
	r.AppliedAt = at
}

// Clone returns a copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}

// RoomStats aggregates active record counts per state kind for one room.
type RoomStats struct {
	GuildID shared.GuildID
	RoomID  shared.ChannelID
	Counts  map[Kind]int
}

// Total returns the total number of active records in the room.
func (s RoomStats) Total() int {
	var n int
	for _, c := range s.Counts {
		n += c
	}
	return n
}
