// Package jobs contains the scheduled background jobs of the activity hub.
package jobs

import (
	"context"
	"log/slog"

	"github.com/bwallxyz/guild-activity-hub/internal/application/leveling"
	"github.com/bwallxyz/guild-activity-hub/internal/domain/shared"
)

// GuildLister enumerates the guilds the bot currently serves. Implemented
// by the Discord interface layer from gateway state.
type GuildLister interface {
	Guilds(ctx context.Context) ([]shared.GuildID, error)
}

// AccrueVoiceXPJob sweeps every open voice session and awards the XP for
// minutes elapsed since each session's accrual mark. Runs every minute so
// users earn XP while still in voice, not only on leave.
type AccrueVoiceXPJob struct {
	engine *leveling.Engine
	log    *slog.Logger
}

// NewAccrueVoiceXPJob creates the voice-XP accrual job.
func NewAccrueVoiceXPJob(engine *leveling.Engine, log *slog.Logger) *AccrueVoiceXPJob {
	if log == nil {
		log = slog.Default()
	}
	return &AccrueVoiceXPJob{engine: engine, log: log}
}

// Name implements scheduler.Job.
func (j *AccrueVoiceXPJob) Name() string { return "accrue_voice_xp" }

// Description implements scheduler.Job.
func (j *AccrueVoiceXPJob) Description() string {
	return "awards voice XP for minutes elapsed in open sessions"
}

// Run implements scheduler.Job.
func (j *AccrueVoiceXPJob) Run(ctx context.Context) error {
	awarded, err := j.engine.AccrueAllOpenSessions(ctx)
	if err != nil {
		return err
	}
	if awarded > 0 {
		j.log.Debug("voice XP accrual sweep", slog.Int("members_awarded", awarded))
	}
	return nil
}
