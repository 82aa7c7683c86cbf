// Package query implements the read side: per-member stat cards, guild
// leaderboards, and activity-by-day histograms. Queries never mutate state
// and degrade missing records to zero values instead of failing.
package query

import (
	"context"
	"sort"
	"time"

	"github.com/bwallxyz/guild-activity-hub/internal/domain/level"
	"github.com/bwallxyz/guild-activity-hub/internal/domain/session"
	"github.com/bwallxyz/guild-activity-hub/internal/domain/shared"
	"github.com/bwallxyz/guild-activity-hub/pkg/logger"
	"github.com/bwallxyz/guild-activity-hub/pkg/timeutil"
)

// UserStats is the combined stat card for one member.
type UserStats struct {
	GuildID     shared.GuildID
	UserID      shared.UserID
	Username    string
	DisplayName string

	TotalSessions int
	TotalTime     time.Duration
	// TotalTimeHuman is TotalTime rendered as "2 hours, 5 minutes".
	TotalTimeHuman string
	FirstSeen      time.Time
	LastActive     time.Time

	// InVoice is true when the member has an open session right now;
	// CurrentDuration is that session's elapsed time at query time.
	InVoice         bool
	CurrentChannel  shared.ChannelID
	CurrentDuration time.Duration

	XP        shared.XP
	VoiceXP   shared.XP
	MessageXP shared.XP
	Level     int

	// Progress within the current level, for progress bars.
	ProgressEarned shared.XP
	ProgressNeeded shared.XP
}

// LeaderboardEntry is one ranked row of a guild leaderboard.
type LeaderboardEntry struct {
	Rank        int // 1-based, strictly increasing, no rank sharing
	UserID      shared.UserID
	Username    string
	DisplayName string
	XP          shared.XP
	Level       int
}

// DayActivity is one UTC-day bucket of voice time.
type DayActivity struct {
	Day   time.Time // midnight UTC
	Total time.Duration
}

// Service answers read queries by joining the activity and level stores.
type Service struct {
	activity session.Repository
	levels   level.Repository
	settings level.SettingsRepository
	log      *logger.Logger
	now      shared.Clock
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source (tests).
func WithClock(clock shared.Clock) Option {
	return func(s *Service) { s.now = clock }
}

// New creates a query Service.
func New(activity session.Repository, levels level.Repository, settings level.SettingsRepository, log *logger.Logger, opts ...Option) *Service {
	s := &Service{
		activity: activity,
		levels:   levels,
		settings: settings,
		log:      log.With(logger.Component("query")),
		now:      shared.SystemClock,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UserStats returns the stat card for a member. Members with no recorded
// activity or XP get a zeroed card, not an error. TotalTime counts closed
// sessions only; an open session is reported separately through InVoice
// and CurrentDuration, measured against the query clock.
func (s *Service) UserStats(ctx context.Context, guild shared.GuildID, user shared.UserID) (*UserStats, error) {
	key := shared.MemberKey{Guild: guild, User: user}
	now := s.now()

	stats := &UserStats{GuildID: guild, UserID: user}

	a, err := s.activity.Get(ctx, key)
	if err != nil && !shared.IsNotFound(err) {
		return nil, err
	}
	if a != nil {
		stats.Username = a.Username
		stats.DisplayName = a.DisplayName
		stats.TotalSessions = a.TotalSessions
		stats.TotalTime = a.TotalTime
		stats.FirstSeen = a.FirstSeen
		stats.LastActive = a.LastActive
		if a.HasOpenSession() {
			stats.InVoice = true
			stats.CurrentChannel = a.CurrentSession.ChannelID
			stats.CurrentDuration = a.CurrentSession.DurationAt(now)
		}
	}
	stats.TotalTimeHuman = timeutil.FormatDuration(stats.TotalTime)

	rec, err := s.levels.Get(ctx, key)
	if err != nil && !shared.IsNotFound(err) {
		return nil, err
	}

	cfg, err := s.guildSettings(ctx, guild)
	if err != nil {
		return nil, err
	}

	if rec != nil {
		stats.XP = rec.XP
		stats.VoiceXP = rec.VoiceXP
		stats.MessageXP = rec.MessageXP
		stats.Level = rec.Level
	}
	stats.ProgressEarned, stats.ProgressNeeded = level.ProgressToNextLevel(stats.XP, cfg)

	return stats, nil
}

// Leaderboard returns the top members of a guild by XP. Ranks are dense and
// strictly increasing from 1; ties on XP order by earliest update then by
// user ID, so repeated queries over unchanged data return identical pages.
func (s *Service) Leaderboard(ctx context.Context, guild shared.GuildID, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}

	records, err := s.levels.TopByXP(ctx, guild, limit)
	if err != nil {
		return nil, err
	}

	entries := make([]LeaderboardEntry, 0, len(records))
	for i, rec := range records {
		entry := LeaderboardEntry{
			Rank:   i + 1,
			UserID: rec.UserID,
			XP:     rec.XP,
			Level:  rec.Level,
		}

		// Names live on the activity aggregate; a missing one just leaves
		// the name blank rather than dropping the row.
		a, err := s.activity.Get(ctx, shared.MemberKey{Guild: guild, User: rec.UserID})
		if err != nil && !shared.IsNotFound(err) {
			return nil, err
		}
		if a != nil {
			entry.Username = a.Username
			entry.DisplayName = a.DisplayName
		}

		entries = append(entries, entry)
	}
	return entries, nil
}

// Rank returns a member's 1-based leaderboard position, or 0 when the
// member holds no XP in the guild.
func (s *Service) Rank(ctx context.Context, guild shared.GuildID, user shared.UserID, searchDepth int) (int, error) {
	if searchDepth <= 0 {
		searchDepth = 1000
	}
	records, err := s.levels.TopByXP(ctx, guild, searchDepth)
	if err != nil {
		return 0, err
	}
	for i, rec := range records {
		if rec.UserID == user {
			return i + 1, nil
		}
	}
	return 0, nil
}

// ActivityByDay returns per-day voice totals for the last days UTC days,
// oldest first, including today. Sessions spanning midnight are split
// across the buckets they overlap; an open session contributes up to the
// query clock.
func (s *Service) ActivityByDay(ctx context.Context, guild shared.GuildID, user shared.UserID, days int) ([]DayActivity, error) {
	if days <= 0 {
		days = 7
	}

	now := s.now()
	windowStart := timeutil.DaysBack(now, days-1)

	a, err := s.activity.Get(ctx, shared.MemberKey{Guild: guild, User: user})
	if shared.IsNotFound(err) {
		return emptyDays(windowStart, days), nil
	}
	if err != nil {
		return nil, err
	}

	buckets := emptyDays(windowStart, days)
	for _, sess := range a.SessionsOverlapping(windowStart, now) {
		end := now
		if sess.LeftAt != nil {
			end = *sess.LeftAt
		}
		for i := range buckets {
			bucketStart := buckets[i].Day
			buckets[i].Total += timeutil.OverlapWithin(sess.JoinedAt, end, bucketStart, bucketStart.AddDate(0, 0, 1))
		}
	}
	return buckets, nil
}

// GuildVoiceTotals returns per-member total voice time for a guild, largest
// first. Totals cover closed sessions only; a live session shows up in
// CurrentDuration without inflating the ordering.
func (s *Service) GuildVoiceTotals(ctx context.Context, guild shared.GuildID, limit int) ([]UserStats, error) {
	if limit <= 0 {
		limit = 10
	}

	keys, err := s.activity.GuildMembers(ctx, guild)
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := make([]UserStats, 0, len(keys))
	for _, key := range keys {
		a, err := s.activity.Get(ctx, key)
		if shared.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}

		stats := UserStats{
			GuildID:       guild,
			UserID:        key.User,
			Username:      a.Username,
			DisplayName:   a.DisplayName,
			TotalSessions: a.TotalSessions,
			TotalTime:     a.TotalTime,
			FirstSeen:     a.FirstSeen,
			LastActive:    a.LastActive,
		}
		if a.HasOpenSession() {
			stats.InVoice = true
			stats.CurrentChannel = a.CurrentSession.ChannelID
			stats.CurrentDuration = a.CurrentSession.DurationAt(now)
		}
		stats.TotalTimeHuman = timeutil.FormatDuration(stats.TotalTime)
		out = append(out, stats)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalTime != out[j].TotalTime {
			return out[i].TotalTime > out[j].TotalTime
		}
		return out[i].UserID < out[j].UserID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Service) guildSettings(ctx context.Context, guild shared.GuildID) (level.Settings, error) {
	cfg, err := s.settings.Get(ctx, guild)
	if shared.IsNotFound(err) {
		return level.DefaultSettings(guild), nil
	}
	if err != nil {
		return level.Settings{}, err
	}
	return cfg, nil
}

func emptyDays(start time.Time, days int) []DayActivity {
	out := make([]DayActivity, days)
	for i := range out {
		out[i] = DayActivity{Day: start.AddDate(0, 0, i)}
	}
	return out
}
