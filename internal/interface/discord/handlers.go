package discord

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/bwallxyz/guild-activity-hub/internal/application/tracker"
	"github.com/bwallxyz/guild-activity-hub/internal/domain/moderation"
	"github.com/bwallxyz/guild-activity-hub/internal/domain/session"
	"github.com/bwallxyz/guild-activity-hub/internal/domain/shared"
	"github.com/bwallxyz/guild-activity-hub/pkg/logger"
)

// handlerTimeout bounds the work done for one gateway event.
const handlerTimeout = 15 * time.Second

func (b *Bot) ready(s *discordgo.Session, _ *discordgo.Ready) {
	b.log.Info("gateway ready", logger.Int("guilds", len(s.State.Guilds)))

	if err := s.UpdateWatchStatus(0, "voice channels"); err != nil {
		b.log.Warn("failed to update status", logger.Err(err))
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// VOICE STATE
// ══════════════════════════════════════════════════════════════════════════════

// voiceStateUpdate classifies the raw gateway update into a join, leave or
// switch and feeds the tracker. Updates that only change mute/deafen flags
// keep the same channel and are ignored.
func (b *Bot) voiceStateUpdate(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	if vs.Member != nil && vs.Member.User != nil && vs.Member.User.Bot {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	var before string
	if vs.BeforeUpdate != nil {
		before = vs.BeforeUpdate.ChannelID
	}
	after := vs.ChannelID

	switch {
	case before == after:
		return
	case before == "":
		b.handleVoiceJoin(ctx, vs)
	case after == "":
		b.handleVoiceLeave(ctx, vs)
	default:
		b.handleVoiceSwitch(ctx, vs)
	}
}

func (b *Bot) handleVoiceJoin(ctx context.Context, vs *discordgo.VoiceStateUpdate) {
	guild := shared.GuildID(vs.GuildID)
	user := shared.UserID(vs.UserID)
	channel := shared.ChannelID(vs.ChannelID)

	if !b.enforceRoomStates(ctx, guild, channel, user) {
		return
	}

	res, err := b.deps.Tracker.HandleJoin(ctx, b.joinEvent(vs))
	if err != nil {
		b.log.Error("voice join failed",
			logger.Err(err),
			logger.GuildID(vs.GuildID),
			logger.UserID(vs.UserID),
		)
		return
	}

	if res.Closed != nil {
		b.finishClosedSession(ctx, guild, user, res.Closed, res.ClosedXPBasis)
	}
}

func (b *Bot) handleVoiceLeave(ctx context.Context, vs *discordgo.VoiceStateUpdate) {
	guild := shared.GuildID(vs.GuildID)
	user := shared.UserID(vs.UserID)

	res, err := b.deps.Tracker.HandleLeave(ctx, guild, user)
	if err != nil {
		b.log.Error("voice leave failed",
			logger.Err(err),
			logger.GuildID(vs.GuildID),
			logger.UserID(vs.UserID),
		)
		return
	}

	if res.Closed != nil {
		b.finishClosedSession(ctx, guild, user, res.Closed, res.XPBasis)
	}
}

func (b *Bot) handleVoiceSwitch(ctx context.Context, vs *discordgo.VoiceStateUpdate) {
	guild := shared.GuildID(vs.GuildID)
	user := shared.UserID(vs.UserID)
	channel := shared.ChannelID(vs.ChannelID)

	if !b.enforceRoomStates(ctx, guild, channel, user) {
		// The ban enforcement disconnected them; the resulting update
		// closes the old session through the leave path.
		return
	}

	res, err := b.deps.Tracker.HandleSwitch(ctx, b.joinEvent(vs))
	if err != nil {
		b.log.Error("voice switch failed",
			logger.Err(err),
			logger.GuildID(vs.GuildID),
			logger.UserID(vs.UserID),
		)
		return
	}

	if res.Closed != nil {
		b.finishClosedSession(ctx, guild, user, res.Closed, res.XPBasis)
	}
}

func (b *Bot) joinEvent(vs *discordgo.VoiceStateUpdate) tracker.JoinEvent {
	ev := tracker.JoinEvent{
		Guild:       shared.GuildID(vs.GuildID),
		User:        shared.UserID(vs.UserID),
		Channel:     shared.ChannelID(vs.ChannelID),
		ChannelName: b.channelName(vs.ChannelID),
	}
	if vs.Member != nil {
		ev.DisplayName = vs.Member.Nick
		if vs.Member.User != nil {
			ev.Username = vs.Member.User.Username
			if ev.DisplayName == "" {
				ev.DisplayName = vs.Member.User.GlobalName
			}
		}
	}
	return ev
}

// enforceRoomStates applies active moderation states when a user enters a
// room: banned users are disconnected, muted users are server-muted.
// Returns false when the user was removed and must not be tracked. State
// lookups failing open: a broken moderation store never locks voice
// tracking.
func (b *Bot) enforceRoomStates(ctx context.Context, guild shared.GuildID, room shared.ChannelID, user shared.UserID) bool {
	banned, err := b.deps.ModState.IsStateActive(ctx, guild, room, user, moderation.KindBanned)
	if err != nil {
		b.log.Warn("ban state lookup failed", logger.Err(err), logger.UserID(user.String()))
	}
	if banned {
		if err := b.session.GuildMemberMove(guild.String(), user.String(), nil); err != nil {
			b.log.Error("failed to disconnect banned user",
				logger.Err(err),
				logger.GuildID(guild.String()),
				logger.UserID(user.String()),
			)
		}
		return false
	}

	muted, err := b.deps.ModState.IsStateActive(ctx, guild, room, user, moderation.KindMuted)
	if err != nil {
		b.log.Warn("mute state lookup failed", logger.Err(err), logger.UserID(user.String()))
	}
	if muted {
		if err := b.session.GuildMemberMute(guild.String(), user.String(), true); err != nil {
			b.log.Warn("failed to mute user on join",
				logger.Err(err),
				logger.GuildID(guild.String()),
				logger.UserID(user.String()),
			)
		}
	}
	return true
}

// finishClosedSession publishes the session-closed event and awards the
// final voice minutes of the closed session.
func (b *Bot) finishClosedSession(ctx context.Context, guild shared.GuildID, user shared.UserID, closed *session.Session, basis time.Time) {
	if b.deps.Bus != nil {
		event := shared.NewSessionClosedEvent(guild, user, closed.ChannelID, closed.ChannelName, closed.Duration)
		if err := b.deps.Bus.Publish(ctx, event); err != nil {
			b.log.Warn("session-closed event publish failed", logger.Err(err))
		}
	}

	if basis.IsZero() || closed.LeftAt == nil {
		return
	}
	if _, err := b.deps.Engine.AccrueClosedSession(ctx, guild, user, closed.ChannelID, basis, *closed.LeftAt); err != nil {
		b.log.Error("final voice accrual failed",
			logger.Err(err),
			logger.GuildID(guild.String()),
			logger.UserID(user.String()),
		)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MESSAGES
// ══════════════════════════════════════════════════════════════════════════════

// messageCreate awards message XP. The engine enforces the cooldown and
// publishes level-up events itself.
func (b *Bot) messageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	_, err := b.deps.Engine.AwardMessageXP(ctx, shared.GuildID(m.GuildID), shared.UserID(m.Author.ID), shared.ChannelID(m.ChannelID))
	if err != nil {
		b.log.Error("message XP award failed",
			logger.Err(err),
			logger.GuildID(m.GuildID),
			logger.UserID(m.Author.ID),
		)
	}
}
