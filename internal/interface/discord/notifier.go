package discord

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/bwallxyz/guild-activity-hub/internal/application/leveling"
	"github.com/bwallxyz/guild-activity-hub/internal/application/query"
	"github.com/bwallxyz/guild-activity-hub/internal/domain/level"
	"github.com/bwallxyz/guild-activity-hub/internal/domain/shared"
	"github.com/bwallxyz/guild-activity-hub/pkg/circuitbreaker"
	"github.com/bwallxyz/guild-activity-hub/pkg/logger"
	"github.com/bwallxyz/guild-activity-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFIER
// ══════════════════════════════════════════════════════════════════════════════

// Notifier subscribes to level-up events and delivers announcements, DMs
// and role rewards. All Discord REST calls go through a retrier and a
// circuit breaker; delivery failures are logged and never ripple back into
// the XP write that triggered them.
type Notifier struct {
	session *discordgo.Session
	engine  *leveling.Engine
	log     *logger.Logger

	retrier *retry.Retrier
	breaker *circuitbreaker.CircuitBreaker
}

// NewNotifier creates the level-up notifier.
func NewNotifier(session *discordgo.Session, engine *leveling.Engine, log *logger.Logger) *Notifier {
	n := &Notifier{
		session: session,
		engine:  engine,
		log:     log.With(logger.Component("notifier")),
		retrier: retry.DiscordRetrier(),
	}
	n.breaker = circuitbreaker.DiscordAPIBreaker(func(name string, from, to circuitbreaker.State) {
		n.log.Warn("circuit breaker state change",
			logger.String("breaker", name),
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	})
	return n
}

// Name implements shared.EventHandler.
func (n *Notifier) Name() string { return "discord_notifier" }

// Handle implements shared.EventHandler.
func (n *Notifier) Handle(ctx context.Context, event shared.Event) error {
	up, ok := event.(*shared.LevelUpEvent)
	if !ok {
		return nil
	}
	return n.handleLevelUp(ctx, up)
}

func (n *Notifier) handleLevelUp(ctx context.Context, event *shared.LevelUpEvent) error {
	settings, err := n.engine.GuildSettings(ctx, event.Guild)
	if err != nil {
		return fmt.Errorf("failed to load notify settings: %w", err)
	}

	n.grantRewardRole(ctx, event)

	if !settings.Notify.Enabled {
		return nil
	}

	message := fmt.Sprintf("<@%s> reached level %d! (%d XP)", event.User, event.NewLevel, event.XP)

	if target := announceChannel(settings.Notify, event.Channel); target.IsValid() {
		n.send(ctx, target.String(), message, "level-up announcement")
	}

	if settings.Notify.DMUser {
		dm, err := n.session.UserChannelCreate(event.User.String())
		if err != nil {
			n.log.Warn("failed to open DM channel",
				logger.Err(err),
				logger.UserID(event.User.String()),
			)
			return nil
		}
		n.send(ctx, dm.ID, fmt.Sprintf("You reached level %d! (%d XP)", event.NewLevel, event.XP), "level-up DM")
	}
	return nil
}

// announceChannel picks where a level-up announcement is posted: the
// dedicated announcement channel when one is configured, otherwise the
// channel the triggering activity happened in.
func announceChannel(cfg level.NotifySettings, activity shared.ChannelID) shared.ChannelID {
	if !cfg.AnnounceInChannel {
		return ""
	}
	if cfg.ChannelID.IsValid() {
		return cfg.ChannelID
	}
	return activity
}

// grantRewardRole assigns the configured role for the reached level.
func (n *Notifier) grantRewardRole(ctx context.Context, event *shared.LevelUpEvent) {
	if !event.RewardRole.IsValid() {
		return
	}

	err := n.call(ctx, func(context.Context) error {
		return n.session.GuildMemberRoleAdd(event.Guild.String(), event.User.String(), event.RewardRole.String())
	})
	if err != nil {
		n.log.Error("failed to grant reward role",
			logger.Err(err),
			logger.GuildID(event.Guild.String()),
			logger.UserID(event.User.String()),
			logger.String("role_id", event.RewardRole.String()),
		)
		return
	}

	n.log.Info("reward role granted",
		logger.GuildID(event.Guild.String()),
		logger.UserID(event.User.String()),
		logger.LevelValue(event.NewLevel),
	)
}

// PublishDigest posts a guild's leaderboard digest to its announcement
// channel. Implements the digest delivery of the daily job.
func (n *Notifier) PublishDigest(ctx context.Context, guild shared.GuildID, entries []query.LeaderboardEntry) error {
	settings, err := n.engine.GuildSettings(ctx, guild)
	if err != nil {
		return err
	}
	if !settings.Notify.Enabled || !settings.Notify.ChannelID.IsValid() {
		return nil
	}

	var sb strings.Builder
	for _, e := range entries {
		name := e.DisplayName
		if name == "" {
			name = e.Username
		}
		if name == "" {
			name = fmt.Sprintf("<@%s>", e.UserID)
		}
		fmt.Fprintf(&sb, "**#%d** %s — level %d, %d XP\n", e.Rank, name, e.Level, e.XP)
	}

	embed := &discordgo.MessageEmbed{
		Title:       "Daily leaderboard",
		Color:       embedColor,
		Description: sb.String(),
	}

	return n.call(ctx, func(context.Context) error {
		_, err := n.session.ChannelMessageSendEmbed(settings.Notify.ChannelID.String(), embed)
		return err
	})
}

func (n *Notifier) send(ctx context.Context, channelID, content, what string) {
	err := n.call(ctx, func(context.Context) error {
		_, err := n.session.ChannelMessageSend(channelID, content)
		return err
	})
	if err != nil {
		n.log.Warn("delivery failed",
			logger.Err(err),
			logger.String("what", what),
			logger.ChannelID(channelID),
		)
	}
}

// call wraps a REST call in the breaker and retrier.
func (n *Notifier) call(ctx context.Context, fn func(context.Context) error) error {
	return n.breaker.Execute(ctx, func(ctx context.Context) error {
		return n.retrier.Do(ctx, fn)
	})
}
