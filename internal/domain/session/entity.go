// Package session contains domain entities and business logic for tracking
// voice presence: individual voice sessions and the per-member activity
// aggregate. This is a pure domain layer with zero external dependencies.
package session

import (
	"time"

	"github.com/bwallxyz/guild-activity-hub/internal/domain/shared"
)

// Domain errors for the session package.
var (
	ErrSessionAlreadyClosed = shared.NewDomainError("session", "Close", shared.ErrInvalidState, "session already closed")
	ErrSessionAlreadyOpen   = shared.NewDomainError("session", "Start", shared.ErrStateTransition, "another session is already open")
	ErrNoOpenSession        = shared.NewDomainError("session", "Close", shared.ErrNotFound, "no open session")
	ErrEndBeforeStart       = shared.NewDomainError("session", "Close", shared.ErrInvalidInput, "end time cannot be before start time")
	ErrSessionMismatch      = shared.NewDomainError("session", "Start", shared.ErrInvalidInput, "session belongs to a different member")
	ErrInvalidSession       = shared.NewDomainError("session", "Validate", shared.ErrInvalidInput, "invalid session")
)

// Session represents one contiguous period a user spent connected to one
// voice channel. A session is open while LeftAt is nil.
type Session struct {
	ID          string
	GuildID     shared.GuildID
	UserID      shared.UserID
	ChannelID   shared.ChannelID
	ChannelName string
	JoinedAt    time.Time
	LeftAt      *time.Time // nil while the session is open
	Duration    time.Duration
	IsOwner     bool // user owns the room they joined
}

// NewSession creates a new open session.
func NewSession(id string, guild shared.GuildID, user shared.UserID, channel shared.ChannelID, channelName string, joinedAt time.Time, isOwner bool) (*Session, error) {
	if id == "" {
		return nil, ErrInvalidSession
	}
	if !guild.IsValid() {
		return nil, shared.ErrInvalidGuildID
	}
	if !user.IsValid() {
		return nil, shared.ErrInvalidUserID
	}
	if !channel.IsValid() {
		return nil, shared.ErrInvalidChannelID
	}

	return &Session{
		ID:          id,
		GuildID:     guild,
		UserID:      user,
		ChannelID:   channel,
		ChannelName: channelName,
		JoinedAt:    joinedAt,
		IsOwner:     isOwner,
	}, nil
}

// IsOpen returns true while the session has not been closed.
func (s *Session) IsOpen() bool {
	return s.LeftAt == nil
}

// Close marks the session as left and computes its duration.
func (s *Session) Close(at time.Time) error {
	if !s.IsOpen() {
		return ErrSessionAlreadyClosed
	}
	if at.Before(s.JoinedAt) {
		return ErrEndBeforeStart
	}

	left := at
	s.LeftAt = &left
	s.Duration = at.Sub(s.JoinedAt)
	return nil
}

// DurationAt returns the session duration, clipping open sessions to now.
func (s *Session) DurationAt(now time.Time) time.Duration {
	if s.LeftAt != nil {
		return s.Duration
	}
	if now.Before(s.JoinedAt) {
		return 0
	}
	return now.Sub(s.JoinedAt)
}

// Clone returns a copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	clone := *s
	if s.LeftAt != nil {
		left := *s.LeftAt
		clone.LeftAt = &left
	}
	return &clone
}

// UserActivity is the aggregate root for a member's tracked presence.
// Invariants: at most one open session at a time; TotalTime equals the sum
// of all closed session durations; TotalSessions equals len(History).
type UserActivity struct {
	GuildID     shared.GuildID
	UserID      shared.UserID
	Username    string // cached, refreshed on every event
	DisplayName string

	TotalSessions int
	TotalTime     time.Duration
	FirstSeen     time.Time
	LastActive    time.Time

	CurrentSession *Session
	LastXPUpdate   *time.Time // high-water mark for voice XP accrual on the open session

	History []Session // closed sessions, most-recent-last

	// Version guards optimistic writes: a concurrent voice-XP poll and a
	// leave event must not clobber each other.
	Version int64
}

// NewUserActivity creates an empty activity aggregate for a member.
func NewUserActivity(guild shared.GuildID, user shared.UserID, now time.Time) *UserActivity {
	return &UserActivity{
		GuildID:    guild,
		UserID:     user,
		FirstSeen:  now,
		LastActive: now,
		History:    make([]Session, 0),
	}
}

// HasOpenSession returns true if a session is currently open.
func (a *UserActivity) HasOpenSession() bool {
	return a.CurrentSession != nil && a.CurrentSession.IsOpen()
}

// StartSession opens a new session. Fails if one is already open.
func (a *UserActivity) StartSession(s *Session) error {
	if s == nil {
		return ErrInvalidSession
	}
	if s.GuildID != a.GuildID || s.UserID != a.UserID {
		return ErrSessionMismatch
	}
	if a.HasOpenSession() {
		return ErrSessionAlreadyOpen
	}

	a.CurrentSession = s
	a.LastXPUpdate = nil
	a.LastActive = s.JoinedAt
	if a.FirstSeen.IsZero() || s.JoinedAt.Before(a.FirstSeen) {
		a.FirstSeen = s.JoinedAt
	}
	return nil
}

// CloseSession closes the open session, appends it to history, and updates
// the aggregate totals in the same step. Returns the closed session.
func (a *UserActivity) CloseSession(at time.Time) (*Session, error) {
	if !a.HasOpenSession() {
		return nil, ErrNoOpenSession
	}

	if err := a.CurrentSession.Close(at); err != nil {
		return nil, err
	}

	closed := a.CurrentSession.Clone()
	a.History = append(a.History, *closed)
	a.TotalSessions++
	a.TotalTime += closed.Duration
	a.LastActive = at
	a.CurrentSession = nil
	a.LastXPUpdate = nil

	return closed, nil
}

// XPBasis returns the timestamp voice-XP accrual should be computed from:
// the last accrual high-water mark, falling back to the open session's join
// time. Returns false when no session is open.
func (a *UserActivity) XPBasis() (time.Time, bool) {
	if !a.HasOpenSession() {
		return time.Time{}, false
	}
	if a.LastXPUpdate != nil {
		return *a.LastXPUpdate, true
	}
	return a.CurrentSession.JoinedAt, true
}

// MarkXPAccrued advances the accrual high-water mark. The mark moves by
// whole minutes only, so the fractional remainder is carried into the next
// accrual instead of being lost or double-counted.
func (a *UserActivity) MarkXPAccrued(upTo time.Time) error {
	if !a.HasOpenSession() {
		return ErrNoOpenSession
	}
	mark := upTo
	a.LastXPUpdate = &mark
	return nil
}

// RefreshNames updates the cached username/display name.
func (a *UserActivity) RefreshNames(username, displayName string) {
	if username != "" {
		a.Username = username
	}
	if displayName != "" {
		a.DisplayName = displayName
	}
}

// SessionsOverlapping returns the closed sessions (plus the open one, if
// any) that overlap the [from, to) interval. Used for day bucketing.
func (a *UserActivity) SessionsOverlapping(from, to time.Time) []Session {
	var out []Session
	for _, s := range a.History {
		if s.LeftAt != nil && s.LeftAt.After(from) && s.JoinedAt.Before(to) {
			out = append(out, s)
		}
	}
	if a.HasOpenSession() && a.CurrentSession.JoinedAt.Before(to) {
		out = append(out, *a.CurrentSession.Clone())
	}
	return out
}

// Clone returns a deep copy of the aggregate.
func (a *UserActivity) Clone() *UserActivity {
	if a == nil {
		return nil
	}
	clone := *a
	clone.CurrentSession = a.CurrentSession.Clone()
	if a.LastXPUpdate != nil {
		mark := *a.LastXPUpdate
		clone.LastXPUpdate = &mark
	}
	clone.History = make([]Session, len(a.History))
	copy(clone.History, a.History)
	return &clone
}
