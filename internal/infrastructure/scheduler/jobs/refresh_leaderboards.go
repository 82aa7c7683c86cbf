package jobs

import (
	"context"
	"log/slog"

	"github.com/bwallxyz/guild-activity-hub/internal/domain/level"
	"github.com/bwallxyz/guild-activity-hub/internal/domain/shared"
)

// rebuildDepth is how many ranked members each guild mirror keeps.
const rebuildDepth = 500

// RankingMirror rebuilds a guild's cached ranking from authoritative
// scores. Implemented by the Redis leaderboard cache.
type RankingMirror interface {
	Rebuild(ctx context.Context, guild shared.GuildID, scores map[shared.UserID]shared.XP) error
}

// RefreshLeaderboardsJob periodically rebuilds the Redis ranking mirrors
// from the durable XP store. The mirrors are updated incrementally on
// every award, so this sweep only heals drift (missed updates, restored
// backups, expired keys).
type RefreshLeaderboardsJob struct {
	guilds GuildLister
	levels level.Repository
	mirror RankingMirror
	log    *slog.Logger
}

// NewRefreshLeaderboardsJob creates the leaderboard refresh job.
func NewRefreshLeaderboardsJob(guilds GuildLister, levels level.Repository, mirror RankingMirror, log *slog.Logger) *RefreshLeaderboardsJob {
	if log == nil {
		log = slog.Default()
	}
	return &RefreshLeaderboardsJob{guilds: guilds, levels: levels, mirror: mirror, log: log}
}

// Name implements scheduler.Job.
func (j *RefreshLeaderboardsJob) Name() string { return "refresh_leaderboards" }

// Description implements scheduler.Job.
func (j *RefreshLeaderboardsJob) Description() string {
	return "rebuilds cached guild rankings from the XP store"
}

// Run implements scheduler.Job. Per-guild failures are logged and the
// sweep continues; one broken guild must not starve the rest.
func (j *RefreshLeaderboardsJob) Run(ctx context.Context) error {
	guilds, err := j.guilds.Guilds(ctx)
	if err != nil {
		return err
	}

	for _, guild := range guilds {
		if err := j.refreshGuild(ctx, guild); err != nil {
			j.log.Warn("leaderboard refresh failed",
				slog.String("guild_id", guild.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

func (j *RefreshLeaderboardsJob) refreshGuild(ctx context.Context, guild shared.GuildID) error {
	records, err := j.levels.TopByXP(ctx, guild, rebuildDepth)
	if err != nil {
		return err
	}

	scores := make(map[shared.UserID]shared.XP, len(records))
	for _, rec := range records {
		scores[rec.UserID] = rec.XP
	}
	return j.mirror.Rebuild(ctx, guild, scores)
}
