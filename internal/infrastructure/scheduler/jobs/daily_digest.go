package jobs

import (
	"context"
	"log/slog"

	"github.com/bwallxyz/guild-activity-hub/internal/application/query"
	"github.com/bwallxyz/guild-activity-hub/internal/domain/shared"
)

// digestSize is how many members the daily digest lists per guild.
const digestSize = 10

// DigestPublisher delivers a guild's daily leaderboard digest. Implemented
// by the Discord interface layer; a nil or failing publisher only costs
// the announcement.
type DigestPublisher interface {
	PublishDigest(ctx context.Context, guild shared.GuildID, entries []query.LeaderboardEntry) error
}

// DailyDigestJob posts each guild's top members once a day.
type DailyDigestJob struct {
	guilds    GuildLister
	stats     *query.Service
	publisher DigestPublisher
	log       *slog.Logger
}

// NewDailyDigestJob creates the daily digest job.
func NewDailyDigestJob(guilds GuildLister, stats *query.Service, publisher DigestPublisher, log *slog.Logger) *DailyDigestJob {
	if log == nil {
		log = slog.Default()
	}
	return &DailyDigestJob{guilds: guilds, stats: stats, publisher: publisher, log: log}
}

// Name implements scheduler.Job.
func (j *DailyDigestJob) Name() string { return "daily_digest" }

// Description implements scheduler.Job.
func (j *DailyDigestJob) Description() string {
	return "posts each guild's top members leaderboard"
}

// Run implements scheduler.Job.
func (j *DailyDigestJob) Run(ctx context.Context) error {
	if j.publisher == nil {
		return nil
	}

	guilds, err := j.guilds.Guilds(ctx)
	if err != nil {
		return err
	}

	for _, guild := range guilds {
		entries, err := j.stats.Leaderboard(ctx, guild, digestSize)
		if err != nil {
			j.log.Warn("daily digest query failed",
				slog.String("guild_id", guild.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		if len(entries) == 0 {
			continue
		}

		if err := j.publisher.PublishDigest(ctx, guild, entries); err != nil {
			j.log.Warn("daily digest publish failed",
				slog.String("guild_id", guild.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}
