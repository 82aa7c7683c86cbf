// Package leveling implements the XP engine: message XP with per-user
// cooldown, minute-quantized voice XP accrual against open sessions, level
// recomputation through the curve, and level-up detection.
//
// The engine returns typed results and publishes level-up events to the
// bus; subscribers decide whether and how to deliver notifications.
package leveling

import (
	"context"
	"time"

	"github.com/bwallxyz/guild-activity-hub/internal/domain/level"
	"github.com/bwallxyz/guild-activity-hub/internal/domain/session"
	"github.com/bwallxyz/guild-activity-hub/internal/domain/shared"
	"github.com/bwallxyz/guild-activity-hub/pkg/logger"
	"github.com/bwallxyz/guild-activity-hub/pkg/timeutil"
)

// NoOpReason explains why an award call changed nothing.
type NoOpReason string

const (
	// NoOpCooldown - the message XP cooldown has not elapsed.
	NoOpCooldown NoOpReason = "cooldown"

	// NoOpBelowMinute - less than one whole minute has accrued.
	NoOpBelowMinute NoOpReason = "below_minute"

	// NoOpNoSession - the member has no open voice session.
	NoOpNoSession NoOpReason = "no_open_session"

	// NoOpConflict - a competing writer already accounted this interval.
	NoOpConflict NoOpReason = "conflict"
)

// Result is the typed outcome of an XP award.
type Result struct {
	Awarded shared.XP // 0 for no-ops

	XP        shared.XP
	VoiceXP   shared.XP
	MessageXP shared.XP

	OldLevel  int
	NewLevel  int
	LeveledUp bool
	XPToNext  shared.XP

	// RewardRole is the configured role for NewLevel, when leveling up.
	RewardRole shared.RoleID

	// Notify carries the guild's notification settings so the caller can
	// decide on delivery without a second settings read.
	Notify level.NotifySettings

	NoOp       bool
	NoOpReason NoOpReason
}

// LeaderboardScorer mirrors XP totals into a fast ranking store (Redis
// sorted set). Best-effort: failures are logged and never fail the award.
type LeaderboardScorer interface {
	UpdateScore(ctx context.Context, guild shared.GuildID, user shared.UserID, xp shared.XP) error
}

const saveRetries = 3

// Engine converts activity signals into persisted XP.
type Engine struct {
	levels   level.Repository
	settings level.SettingsRepository
	activity session.Repository
	scorer   LeaderboardScorer // optional
	bus      shared.EventBus   // optional
	log      *logger.Logger
	now      shared.Clock
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source (tests).
func WithClock(clock shared.Clock) Option {
	return func(e *Engine) { e.now = clock }
}

// WithLeaderboardScorer attaches a ranking mirror.
func WithLeaderboardScorer(s LeaderboardScorer) Option {
	return func(e *Engine) { e.scorer = s }
}

// WithEventBus attaches the bus level-up events are published to.
func WithEventBus(bus shared.EventBus) Option {
	return func(e *Engine) { e.bus = bus }
}

// New creates an Engine.
func New(levels level.Repository, settings level.SettingsRepository, activity session.Repository, log *logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		levels:   levels,
		settings: settings,
		activity: activity,
		log:      log.With(logger.Component("leveling")),
		now:      shared.SystemClock,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// GuildSettings returns the guild's leveling settings, falling back to
// defaults when the guild was never configured.
func (e *Engine) GuildSettings(ctx context.Context, guild shared.GuildID) (level.Settings, error) {
	s, err := e.settings.Get(ctx, guild)
	if shared.IsNotFound(err) {
		return level.DefaultSettings(guild), nil
	}
	if err != nil {
		return level.Settings{}, err
	}
	return s, nil
}

// UpdateGuildSettings validates and stores settings (administrative path).
func (e *Engine) UpdateGuildSettings(ctx context.Context, s level.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if err := e.settings.Save(ctx, s); err != nil {
		return err
	}
	e.log.Info("guild level settings updated", logger.GuildID(s.GuildID.String()))
	return nil
}

// AwardMessageXP awards XP for one message, enforcing the per-user
// cooldown. A call inside the cooldown window returns a no-op result, not
// an error. channel is where the message was posted; it rides on the
// level-up event so announcements can land in the same channel.
func (e *Engine) AwardMessageXP(ctx context.Context, guild shared.GuildID, user shared.UserID, channel shared.ChannelID) (*Result, error) {
	settings, err := e.GuildSettings(ctx, guild)
	if err != nil {
		return nil, err
	}

	return e.award(ctx, guild, user, channel, settings, func(rec *level.UserLevel, at time.Time) (shared.XP, NoOpReason, error) {
		if !rec.CanEarnMessageXP(at, settings.MessageXPCooldown) {
			return 0, NoOpCooldown, nil
		}
		if err := rec.AddMessageXP(settings.MessageXPPerMessage, at); err != nil {
			return 0, "", err
		}
		return settings.MessageXPPerMessage, "", nil
	})
}

// AwardVoiceXP awards XP for whole minutes of voice activity in channel.
// The caller is responsible for minute quantization; minutes must be
// positive.
func (e *Engine) AwardVoiceXP(ctx context.Context, guild shared.GuildID, user shared.UserID, channel shared.ChannelID, minutes int) (*Result, error) {
	if minutes <= 0 {
		return nil, level.ErrInvalidAmount
	}

	settings, err := e.GuildSettings(ctx, guild)
	if err != nil {
		return nil, err
	}

	amount := settings.VoiceXPPerMinute * shared.XP(minutes)
	return e.award(ctx, guild, user, channel, settings, func(rec *level.UserLevel, at time.Time) (shared.XP, NoOpReason, error) {
		if err := rec.AddVoiceXP(amount, at); err != nil {
			return 0, "", err
		}
		return amount, "", nil
	})
}

// AccrueOpenSession awards voice XP for the whole minutes elapsed on a
// member's open session since the last accrual high-water mark (falling
// back to the session's join time). The mark is advanced by exactly the
// awarded minutes under an optimistic write, so a poll racing a leave event
// cannot account the same interval twice: whichever writer loses the
// version check drops its accrual.
func (e *Engine) AccrueOpenSession(ctx context.Context, guild shared.GuildID, user shared.UserID) (*Result, error) {
	key := shared.MemberKey{Guild: guild, User: user}

	a, err := e.activity.Get(ctx, key)
	if shared.IsNotFound(err) {
		return &Result{NoOp: true, NoOpReason: NoOpNoSession}, nil
	}
	if err != nil {
		return nil, err
	}

	basis, ok := a.XPBasis()
	if !ok {
		return &Result{NoOp: true, NoOpReason: NoOpNoSession}, nil
	}
	channel := a.CurrentSession.ChannelID

	minutes := timeutil.WholeMinutes(e.now().Sub(basis))
	if minutes < 1 {
		return &Result{NoOp: true, NoOpReason: NoOpBelowMinute}, nil
	}

	if err := a.MarkXPAccrued(basis.Add(time.Duration(minutes) * time.Minute)); err != nil {
		return &Result{NoOp: true, NoOpReason: NoOpNoSession}, nil
	}

	if err := e.activity.Save(ctx, a); err != nil {
		if shared.IsConflict(err) {
			// The session changed under us (leave/switch landed first).
			// That writer accounts the interval; drop this accrual.
			e.log.Debug("voice accrual dropped on conflict", logger.String("member", key.String()))
			return &Result{NoOp: true, NoOpReason: NoOpConflict}, nil
		}
		return nil, err
	}

	return e.AwardVoiceXP(ctx, guild, user, channel, minutes)
}

// AccrueClosedSession awards the final whole minutes of a session that was
// just closed in channel, measured from the accrual basis captured at
// close time. Returns a below-minute no-op when the remainder is under one
// minute.
func (e *Engine) AccrueClosedSession(ctx context.Context, guild shared.GuildID, user shared.UserID, channel shared.ChannelID, basis, leftAt time.Time) (*Result, error) {
	minutes := timeutil.WholeMinutes(leftAt.Sub(basis))
	if minutes < 1 {
		return &Result{NoOp: true, NoOpReason: NoOpBelowMinute}, nil
	}
	return e.AwardVoiceXP(ctx, guild, user, channel, minutes)
}

// AccrueAllOpenSessions runs one poll cycle: voice XP accrual for every
// member with an open session, across all guilds. Returns the number of
// members that received XP. Per-member failures are logged, not fatal.
func (e *Engine) AccrueAllOpenSessions(ctx context.Context) (int, error) {
	open, err := e.activity.WithOpenSessions(ctx)
	if err != nil {
		return 0, err
	}

	var awarded int
	for _, a := range open {
		res, err := e.AccrueOpenSession(ctx, a.GuildID, a.UserID)
		if err != nil {
			e.log.Error("voice accrual failed",
				logger.Err(err),
				logger.GuildID(a.GuildID.String()),
				logger.UserID(a.UserID.String()),
			)
			continue
		}
		if !res.NoOp {
			awarded++
		}
	}
	return awarded, nil
}

// AdjustXP applies an administrative XP delta. Unlike the award paths, the
// member must already have a level record; adjusting a nonexistent user
// fails with NotFound.
func (e *Engine) AdjustXP(ctx context.Context, guild shared.GuildID, user shared.UserID, delta shared.XP) (*Result, error) {
	if delta == 0 {
		return nil, level.ErrInvalidAmount
	}

	settings, err := e.GuildSettings(ctx, guild)
	if err != nil {
		return nil, err
	}

	key := shared.MemberKey{Guild: guild, User: user}
	for attempt := 0; attempt < saveRetries; attempt++ {
		rec, err := e.levels.Get(ctx, key)
		if err != nil {
			return nil, err // NotFound is a hard error here
		}

		before := rec.XP
		rec.AdjustXP(delta, e.now())
		oldLevel, newLevel := rec.Recalculate(settings)

		if err := e.levels.Save(ctx, rec); err != nil {
			if shared.IsConflict(err) {
				continue
			}
			return nil, err
		}

		res := e.buildResult(rec, rec.XP-before, oldLevel, newLevel, settings)
		e.mirrorScore(ctx, rec)
		// Administrative adjustments have no triggering channel.
		e.publishLevelUp(ctx, rec, res, "")
		return res, nil
	}
	return nil, shared.WrapError("leveling", "AdjustXP", shared.ErrConcurrentModification, "gave up after retries", nil)
}

// award runs the lazy-create read-modify-write cycle shared by the message
// and voice paths.
func (e *Engine) award(ctx context.Context, guild shared.GuildID, user shared.UserID, channel shared.ChannelID, settings level.Settings, apply func(*level.UserLevel, time.Time) (shared.XP, NoOpReason, error)) (*Result, error) {
	key := shared.MemberKey{Guild: guild, User: user}

	for attempt := 0; attempt < saveRetries; attempt++ {
		rec, err := e.levels.Get(ctx, key)
		if shared.IsNotFound(err) {
			rec = level.NewUserLevel(guild, user, e.now())
		} else if err != nil {
			return nil, err
		}

		amount, reason, err := apply(rec, e.now())
		if err != nil {
			return nil, err
		}
		if amount == 0 {
			res := e.buildResult(rec, 0, rec.Level, rec.Level, settings)
			res.NoOp = true
			res.NoOpReason = reason
			return res, nil
		}

		oldLevel, newLevel := rec.Recalculate(settings)

		if err := e.levels.Save(ctx, rec); err != nil {
			if shared.IsConflict(err) {
				continue
			}
			return nil, err
		}

		res := e.buildResult(rec, amount, oldLevel, newLevel, settings)
		if res.LeveledUp {
			e.log.Info("level up",
				logger.GuildID(guild.String()),
				logger.UserID(user.String()),
				logger.LevelValue(newLevel),
				logger.XPAmount(rec.XP.Int64()),
			)
		}
		e.mirrorScore(ctx, rec)
		e.publishLevelUp(ctx, rec, res, channel)
		return res, nil
	}
	return nil, shared.WrapError("leveling", "Award", shared.ErrConcurrentModification, "gave up after retries", nil)
}

func (e *Engine) buildResult(rec *level.UserLevel, amount shared.XP, oldLevel, newLevel int, settings level.Settings) *Result {
	res := &Result{
		Awarded:   amount,
		XP:        rec.XP,
		VoiceXP:   rec.VoiceXP,
		MessageXP: rec.MessageXP,
		OldLevel:  oldLevel,
		NewLevel:  newLevel,
		LeveledUp: newLevel > oldLevel,
		XPToNext:  level.XPToNextLevel(rec.XP, settings),
		Notify:    settings.Notify,
	}
	if res.LeveledUp {
		if role, ok := settings.RoleForLevel(newLevel); ok {
			res.RewardRole = role
		}
	}
	return res
}

// publishLevelUp emits the level-up event after the XP write committed.
// channel is where the triggering activity happened; the notifier uses it
// when no dedicated announcement channel is configured. Publish failures
// only cost the announcement, never the XP.
func (e *Engine) publishLevelUp(ctx context.Context, rec *level.UserLevel, res *Result, channel shared.ChannelID) {
	if e.bus == nil || !res.LeveledUp {
		return
	}
	event := shared.NewLevelUpEvent(rec.GuildID, rec.UserID, channel, res.OldLevel, res.NewLevel, rec.XP, res.XPToNext, res.RewardRole)
	if err := e.bus.Publish(ctx, event); err != nil {
		e.log.Warn("level-up event publish failed",
			logger.Err(err),
			logger.GuildID(rec.GuildID.String()),
			logger.UserID(rec.UserID.String()),
		)
	}
}

func (e *Engine) mirrorScore(ctx context.Context, rec *level.UserLevel) {
	if e.scorer == nil {
		return
	}
	if err := e.scorer.UpdateScore(ctx, rec.GuildID, rec.UserID, rec.XP); err != nil {
		e.log.Warn("leaderboard score mirror failed",
			logger.Err(err),
			logger.GuildID(rec.GuildID.String()),
			logger.UserID(rec.UserID.String()),
		)
	}
}
