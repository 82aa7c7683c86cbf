// Package tracker implements the voice presence state machine: it turns the
// ordered per-member stream of join/leave/switch events into session records
// and aggregate time totals.
package tracker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bwallxyz/guild-activity-hub/internal/domain/session"
	"github.com/bwallxyz/guild-activity-hub/internal/domain/shared"
	"github.com/bwallxyz/guild-activity-hub/pkg/logger"
)

// RoomOwnership is the external collaborator that answers whether a user
// owns a voice room. Lookup failures are logged and treated as "not owner";
// they never fail the triggering transition.
type RoomOwnership interface {
	IsRoomOwner(ctx context.Context, channel shared.ChannelID, user shared.UserID) (bool, error)
}

// PresenceRecorder mirrors live voice membership into a fast store (Redis)
// for "who is in voice now" queries. Best-effort: failures are logged.
type PresenceRecorder interface {
	RecordJoin(ctx context.Context, guild shared.GuildID, user shared.UserID, channel shared.ChannelID) error
	RecordLeave(ctx context.Context, guild shared.GuildID, user shared.UserID) error
}

// saveRetries bounds re-read-and-re-apply attempts when a transition races
// the voice-XP poller for the same aggregate.
const saveRetries = 3

// errNoChange signals that a mutation left the aggregate untouched and the
// write should be skipped.
var errNoChange = shared.NewDomainError("tracker", "Update", shared.ErrInvalidState, "no change")

// JoinEvent carries the inputs of a join transition.
type JoinEvent struct {
	Guild       shared.GuildID
	User        shared.UserID
	Channel     shared.ChannelID
	ChannelName string
	Username    string
	DisplayName string
}

// JoinResult is the typed outcome of a join transition. Closed is non-nil
// when the member already had an open session on another channel and the
// join was applied as an implicit switch.
type JoinResult struct {
	Opened *session.Session
	Closed *session.Session

	// ClosedXPBasis is the voice-XP accrual basis of the closed session,
	// captured before the close so the caller can award the final minutes.
	ClosedXPBasis time.Time

	// Duplicate is true when the member was already in the same channel;
	// the event was a no-op.
	Duplicate bool
}

// LeaveResult is the typed outcome of a leave transition. NoOp is true for
// leave events with no open session (duplicate or already-terminated).
type LeaveResult struct {
	Closed  *session.Session
	XPBasis time.Time
	NoOp    bool
}

// SwitchResult is the typed outcome of a channel switch: the old session is
// closed first, then the new one is opened, in a single aggregate update.
type SwitchResult struct {
	Closed  *session.Session
	XPBasis time.Time
	Opened  *session.Session
}

// Tracker owns the presence state machine per (guild, user).
type Tracker struct {
	repo      session.Repository
	ownership RoomOwnership
	presence  PresenceRecorder // optional
	log       *logger.Logger
	now       shared.Clock
	newID     func() string
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source (tests).
func WithClock(clock shared.Clock) Option {
	return func(t *Tracker) { t.now = clock }
}

// WithPresenceRecorder attaches a live presence mirror.
func WithPresenceRecorder(p PresenceRecorder) Option {
	return func(t *Tracker) { t.presence = p }
}

// WithIDGenerator overrides session ID generation (tests).
func WithIDGenerator(gen func() string) Option {
	return func(t *Tracker) { t.newID = gen }
}

// New creates a Tracker.
func New(repo session.Repository, ownership RoomOwnership, log *logger.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		repo:      repo,
		ownership: ownership,
		log:       log.With(logger.Component("tracker")),
		now:       shared.SystemClock,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// HandleJoin applies an Idle → Active(channel) transition. A join while a
// session is open on a different channel is applied as leave-then-join; a
// join for the channel already occupied is a logged no-op.
func (t *Tracker) HandleJoin(ctx context.Context, ev JoinEvent) (*JoinResult, error) {
	if !ev.Guild.IsValid() {
		return nil, shared.ErrInvalidGuildID
	}
	if !ev.User.IsValid() {
		return nil, shared.ErrInvalidUserID
	}
	if !ev.Channel.IsValid() {
		return nil, shared.ErrInvalidChannelID
	}

	key := shared.MemberKey{Guild: ev.Guild, User: ev.User}
	result := &JoinResult{}

	err := t.update(ctx, key, func(a *session.UserActivity) error {
		*result = JoinResult{}
		a.RefreshNames(ev.Username, ev.DisplayName)
		now := t.now()

		if a.HasOpenSession() {
			if a.CurrentSession.ChannelID == ev.Channel {
				t.log.Debug("duplicate join ignored",
					logger.GuildID(ev.Guild.String()),
					logger.UserID(ev.User.String()),
					logger.ChannelID(ev.Channel.String()),
				)
				result.Duplicate = true
				result.Opened = a.CurrentSession.Clone()
				return nil
			}

			// Implicit switch: close the old session before opening the
			// new one so downstream XP accrual sees the final duration.
			basis, _ := a.XPBasis()
			closed, err := a.CloseSession(now)
			if err != nil {
				return err
			}
			result.Closed = closed
			result.ClosedXPBasis = basis
		}

		opened, err := t.openSession(ctx, a, ev, now)
		if err != nil {
			return err
		}
		result.Opened = opened
		return nil
	})
	if err != nil {
		return nil, err
	}

	if t.presence != nil && !result.Duplicate {
		if perr := t.presence.RecordJoin(ctx, ev.Guild, ev.User, ev.Channel); perr != nil {
			t.log.Warn("presence record failed", logger.Err(perr), logger.UserID(ev.User.String()))
		}
	}

	return result, nil
}

// HandleLeave applies an Active(channel) → Idle transition. Leave with no
// open session is a logged no-op, not an error.
func (t *Tracker) HandleLeave(ctx context.Context, guild shared.GuildID, user shared.UserID) (*LeaveResult, error) {
	if !guild.IsValid() {
		return nil, shared.ErrInvalidGuildID
	}
	if !user.IsValid() {
		return nil, shared.ErrInvalidUserID
	}

	key := shared.MemberKey{Guild: guild, User: user}
	result := &LeaveResult{}

	err := t.update(ctx, key, func(a *session.UserActivity) error {
		*result = LeaveResult{}
		if !a.HasOpenSession() {
			t.log.Debug("leave with no open session ignored",
				logger.GuildID(guild.String()),
				logger.UserID(user.String()),
			)
			result.NoOp = true
			return errNoChange
		}

		basis, _ := a.XPBasis()
		closed, err := a.CloseSession(t.now())
		if err != nil {
			return err
		}
		result.Closed = closed
		result.XPBasis = basis
		return nil
	})
	if err != nil {
		return nil, err
	}

	if t.presence != nil && !result.NoOp {
		if perr := t.presence.RecordLeave(ctx, guild, user); perr != nil {
			t.log.Warn("presence record failed", logger.Err(perr), logger.UserID(user.String()))
		}
	}

	return result, nil
}

// HandleSwitch applies Active(c) → Active(c'): the session on the old
// channel is closed, totals updated, and the new session opened, all within
// one aggregate write.
func (t *Tracker) HandleSwitch(ctx context.Context, ev JoinEvent) (*SwitchResult, error) {
	join, err := t.HandleJoin(ctx, ev)
	if err != nil {
		return nil, err
	}
	if join.Duplicate {
		return &SwitchResult{Opened: join.Opened}, nil
	}
	return &SwitchResult{
		Closed:  join.Closed,
		XPBasis: join.ClosedXPBasis,
		Opened:  join.Opened,
	}, nil
}

// Activity returns the current aggregate for a member, or a zeroed one when
// the member has never been tracked (read paths degrade to defaults).
func (t *Tracker) Activity(ctx context.Context, guild shared.GuildID, user shared.UserID) (*session.UserActivity, error) {
	key := shared.MemberKey{Guild: guild, User: user}
	a, err := t.repo.Get(ctx, key)
	if shared.IsNotFound(err) {
		return session.NewUserActivity(guild, user, t.now()), nil
	}
	return a, err
}

func (t *Tracker) openSession(ctx context.Context, a *session.UserActivity, ev JoinEvent, now time.Time) (*session.Session, error) {
	isOwner, err := t.ownership.IsRoomOwner(ctx, ev.Channel, ev.User)
	if err != nil {
		t.log.Warn("room ownership lookup failed",
			logger.Err(err),
			logger.ChannelID(ev.Channel.String()),
			logger.UserID(ev.User.String()),
		)
		isOwner = false
	}

	s, err := session.NewSession(t.newID(), ev.Guild, ev.User, ev.Channel, ev.ChannelName, now, isOwner)
	if err != nil {
		return nil, err
	}
	if err := a.StartSession(s); err != nil {
		return nil, err
	}
	return s.Clone(), nil
}

// update runs a read-modify-write cycle against the aggregate, re-reading
// and re-applying on version conflicts. Events for one member arrive in
// order, so the only competing writer is the voice-XP poller.
func (t *Tracker) update(ctx context.Context, key shared.MemberKey, mutate func(*session.UserActivity) error) error {
	for attempt := 0; attempt < saveRetries; attempt++ {
		a, err := t.repo.Get(ctx, key)
		if shared.IsNotFound(err) {
			a = session.NewUserActivity(key.Guild, key.User, t.now())
		} else if err != nil {
			return err
		}

		if err := mutate(a); err != nil {
			if err == errNoChange {
				return nil
			}
			return err
		}

		err = t.repo.Save(ctx, a)
		if err == nil {
			return nil
		}
		if !shared.IsConflict(err) {
			return err
		}
		t.log.Debug("aggregate conflict, retrying", logger.String("member", key.String()))
	}
	return shared.WrapError("tracker", "Update", shared.ErrConcurrentModification, "gave up after retries", nil)
}
