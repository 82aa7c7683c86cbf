// Package discord implements the Discord gateway interface: voice state
// and message handlers feeding the core services, slash commands for stats
// and room moderation, and the level-up notifier.
package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/bwallxyz/guild-activity-hub/internal/application/leveling"
	"github.com/bwallxyz/guild-activity-hub/internal/application/modstate"
	"github.com/bwallxyz/guild-activity-hub/internal/application/query"
	"github.com/bwallxyz/guild-activity-hub/internal/application/tracker"
	"github.com/bwallxyz/guild-activity-hub/internal/domain/shared"
	"github.com/bwallxyz/guild-activity-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// BOT CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains configuration for the Discord bot.
type Config struct {
	// Token is the Discord bot token.
	Token string

	// CommandGuildID scopes slash command registration to one guild for
	// fast iteration. Empty registers commands globally.
	CommandGuildID string

	// Logger for structured logging.
	Logger *logger.Logger
}

// Dependencies aggregates the core services the handlers call into.
type Dependencies struct {
	Tracker  *tracker.Tracker
	Engine   *leveling.Engine
	ModState *modstate.Service
	Stats    *query.Service
	Bus      shared.EventBus
}

// ══════════════════════════════════════════════════════════════════════════════
// BOT
// ══════════════════════════════════════════════════════════════════════════════

// Bot owns the gateway session and routes events to the core services.
type Bot struct {
	session *discordgo.Session
	deps    Dependencies
	log     *logger.Logger

	commandGuildID string
	registered     []*discordgo.ApplicationCommand
}

// New creates the bot and registers its gateway handlers. The session is
// not opened until Start.
func New(cfg Config, deps Dependencies) (*Bot, error) {
	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers

	// Voice state cache is needed to resolve "which room is the invoker
	// in" for moderation commands.
	s.State.TrackVoice = true

	bot := &Bot{
		session:        s,
		deps:           deps,
		log:            cfg.Logger.With(logger.Component("discord")),
		commandGuildID: cfg.CommandGuildID,
	}

	s.AddHandler(bot.ready)
	s.AddHandler(bot.voiceStateUpdate)
	s.AddHandler(bot.messageCreate)
	s.AddHandler(bot.interactionCreate)

	return bot, nil
}

// Start opens the gateway connection and registers slash commands.
func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	if err := b.registerCommands(); err != nil {
		b.session.Close()
		return err
	}

	b.log.Info("discord bot started")
	return nil
}

// Stop closes the gateway connection.
func (b *Bot) Stop() error {
	err := b.session.Close()
	b.log.Info("discord bot stopped")
	return err
}

// Session exposes the underlying gateway session for collaborators that
// need REST access (notifier).
func (b *Bot) Session() *discordgo.Session {
	return b.session
}

// Guilds returns the guilds currently known to the gateway. Implements the
// guild enumeration the background jobs need.
func (b *Bot) Guilds(_ context.Context) ([]shared.GuildID, error) {
	state := b.session.State
	state.RLock()
	defer state.RUnlock()

	out := make([]shared.GuildID, 0, len(state.Guilds))
	for _, g := range state.Guilds {
		out = append(out, shared.GuildID(g.ID))
	}
	return out, nil
}

// IsRoomOwner reports whether a user owns a voice room. Dynamic rooms
// grant their creator a Manage Channels overwrite on the channel, so
// ownership is read from the channel's permission overwrites.
func (b *Bot) IsRoomOwner(_ context.Context, channel shared.ChannelID, user shared.UserID) (bool, error) {
	ch, err := b.session.State.Channel(channel.String())
	if err != nil {
		ch, err = b.session.Channel(channel.String())
		if err != nil {
			return false, fmt.Errorf("failed to resolve channel %s: %w", channel, err)
		}
	}

	for _, overwrite := range ch.PermissionOverwrites {
		if overwrite.Type != discordgo.PermissionOverwriteTypeMember {
			continue
		}
		if overwrite.ID == user.String() && overwrite.Allow&discordgo.PermissionManageChannels != 0 {
			return true, nil
		}
	}
	return false, nil
}

func (b *Bot) channelName(channelID string) string {
	ch, err := b.session.State.Channel(channelID)
	if err != nil {
		ch, err = b.session.Channel(channelID)
		if err != nil {
			return ""
		}
	}
	return ch.Name
}
