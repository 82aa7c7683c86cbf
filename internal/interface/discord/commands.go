package discord

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/bwallxyz/guild-activity-hub/internal/domain/level"
	"github.com/bwallxyz/guild-activity-hub/internal/domain/moderation"
	"github.com/bwallxyz/guild-activity-hub/internal/domain/shared"
	"github.com/bwallxyz/guild-activity-hub/pkg/logger"
	"github.com/bwallxyz/guild-activity-hub/pkg/timeutil"
)

const embedColor = 0x5865F2

// ══════════════════════════════════════════════════════════════════════════════
// COMMAND DEFINITIONS
// ══════════════════════════════════════════════════════════════════════════════

func commandDefinitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "rank",
			Description: "Show level, XP and voice stats for a member",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "Member to look up (defaults to you)",
					Required:    false,
				},
			},
		},
		{
			Name:        "top",
			Description: "Show the guild XP leaderboard",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "limit",
					Description: "Number of entries (default 10, max 25)",
					Required:    false,
				},
			},
		},
		{
			Name:        "activity",
			Description: "Show voice activity per day",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "Member to look up (defaults to you)",
					Required:    false,
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "days",
					Description: "Window in days (default 7, max 30)",
					Required:    false,
				},
			},
		},
		{
			Name:        "mute",
			Description: "Mute a member in your voice room",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "Member to mute",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "reason",
					Description: "Reason for the mute",
					Required:    false,
				},
			},
		},
		{
			Name:        "unmute",
			Description: "Unmute a member in your voice room",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "Member to unmute",
					Required:    true,
				},
			},
		},
		{
			Name:        "roomban",
			Description: "Ban a member from your voice room",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "Member to ban from the room",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "reason",
					Description: "Reason for the ban",
					Required:    false,
				},
			},
		},
		{
			Name:        "roomunban",
			Description: "Lift a room ban for a member",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "Member to unban",
					Required:    true,
				},
			},
		},
		{
			Name:        "modlist",
			Description: "List active moderation states in your voice room",
		},
		{
			Name:        "adjustxp",
			Description: "Add or remove XP for a member (admin)",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "Member to adjust",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "amount",
					Description: "XP delta, negative to remove",
					Required:    true,
				},
			},
		},
		{
			Name:        "levelconfig",
			Description: "Configure XP rates and level-up announcements (admin)",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "voice_xp",
					Description: "XP per whole voice minute",
					Required:    false,
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "message_xp",
					Description: "XP per message",
					Required:    false,
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "cooldown_seconds",
					Description: "Message XP cooldown in seconds",
					Required:    false,
				},
				{
					Type:        discordgo.ApplicationCommandOptionChannel,
					Name:        "announce_channel",
					Description: "Channel for level-up announcements",
					Required:    false,
				},
			},
		},
	}
}

func (b *Bot) registerCommands() error {
	appID := b.session.State.User.ID

	for _, def := range commandDefinitions() {
		cmd, err := b.session.ApplicationCommandCreate(appID, b.commandGuildID, def)
		if err != nil {
			return fmt.Errorf("failed to register command %s: %w", def.Name, err)
		}
		b.registered = append(b.registered, cmd)
	}

	b.log.Info("slash commands registered", logger.Int("count", len(b.registered)))
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCH
// ══════════════════════════════════════════════════════════════════════════════

func (b *Bot) interactionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	name := i.ApplicationCommandData().Name
	switch name {
	case "rank":
		b.handleRank(ctx, i)
	case "top":
		b.handleTop(ctx, i)
	case "activity":
		b.handleActivity(ctx, i)
	case "mute":
		b.handleSetState(ctx, i, moderation.KindMuted)
	case "unmute":
		b.handleClearState(ctx, i, moderation.KindMuted)
	case "roomban":
		b.handleSetState(ctx, i, moderation.KindBanned)
	case "roomunban":
		b.handleClearState(ctx, i, moderation.KindBanned)
	case "modlist":
		b.handleModList(ctx, i)
	case "adjustxp":
		b.handleAdjustXP(ctx, i)
	case "levelconfig":
		b.handleLevelConfig(ctx, i)
	default:
		b.log.Warn("unknown command", logger.String("command", name))
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// STATS COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

func (b *Bot) handleRank(ctx context.Context, i *discordgo.InteractionCreate) {
	guild := shared.GuildID(i.GuildID)
	target := b.targetUser(i)

	stats, err := b.deps.Stats.UserStats(ctx, guild, shared.UserID(target.ID))
	if err != nil {
		b.respondError(i, "rank", err)
		return
	}
	rank, err := b.deps.Stats.Rank(ctx, guild, shared.UserID(target.ID), 0)
	if err != nil {
		b.respondError(i, "rank", err)
		return
	}

	rankText := "unranked"
	if rank > 0 {
		rankText = fmt.Sprintf("#%d", rank)
	}
	voiceNow := "no"
	if stats.InVoice {
		voiceNow = fmt.Sprintf("yes, for %s", timeutil.FormatDuration(stats.CurrentDuration))
	}

	embed := &discordgo.MessageEmbed{
		Title: fmt.Sprintf("Stats for %s", displayName(target, stats.DisplayName)),
		Color: embedColor,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Level", Value: fmt.Sprintf("%d", stats.Level), Inline: true},
			{Name: "Rank", Value: rankText, Inline: true},
			{Name: "XP", Value: fmt.Sprintf("%d (%d voice / %d message)", stats.XP, stats.VoiceXP, stats.MessageXP), Inline: false},
			{Name: "Progress", Value: fmt.Sprintf("%d / %d to next level", stats.ProgressEarned, stats.ProgressNeeded), Inline: false},
			{Name: "Voice time", Value: stats.TotalTimeHuman, Inline: true},
			{Name: "Sessions", Value: fmt.Sprintf("%d", stats.TotalSessions), Inline: true},
			{Name: "In voice now", Value: voiceNow, Inline: true},
		},
	}
	b.respondEmbed(i, embed, false)
}

func (b *Bot) handleTop(ctx context.Context, i *discordgo.InteractionCreate) {
	limit := int(b.intOption(i, "limit", 10))
	if limit > 25 {
		limit = 25
	}

	entries, err := b.deps.Stats.Leaderboard(ctx, shared.GuildID(i.GuildID), limit)
	if err != nil {
		b.respondError(i, "top", err)
		return
	}
	if len(entries) == 0 {
		b.respondText(i, "Nobody has earned XP yet.", false)
		return
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

	b.respondEmbed(i, &discordgo.MessageEmbed{
		Title:       "Leaderboard",
		Color:       embedColor,
		Description: sb.String(),
	}, false)
}

func (b *Bot) handleActivity(ctx context.Context, i *discordgo.InteractionCreate) {
	target := b.targetUser(i)
	days := int(b.intOption(i, "days", 7))
	if days > 30 {
		days = 30
	}

	buckets, err := b.deps.Stats.ActivityByDay(ctx, shared.GuildID(i.GuildID), shared.UserID(target.ID), days)
	if err != nil {
		b.respondError(i, "activity", err)
		return
	}

	var sb strings.Builder
	for _, bucket := range buckets {
		fmt.Fprintf(&sb, "`%s` %s\n", bucket.Day.Format("Jan 02"), timeutil.FormatDuration(bucket.Total))
	}

	b.respondEmbed(i, &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Voice activity — %s", displayName(target, "")),
		Color:       embedColor,
		Description: sb.String(),
	}, false)
}

// ══════════════════════════════════════════════════════════════════════════════
// MODERATION COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

func (b *Bot) handleSetState(ctx context.Context, i *discordgo.InteractionCreate, kind moderation.Kind) {
	guild := shared.GuildID(i.GuildID)
	invoker := shared.UserID(i.Member.User.ID)
	target := b.targetUser(i)
	reason := b.stringOption(i, "reason")

	room, ok := b.invokerRoom(i)
	if !ok {
		b.respondText(i, "Join a voice room first.", true)
		return
	}
	if !b.canModerate(ctx, i, room) {
		b.respondText(i, "You need to own this room or have moderation permissions.", true)
		return
	}

	res, err := b.deps.ModState.SetState(ctx, guild, room, shared.UserID(target.ID), kind, reason, invoker)
	if err != nil {
		b.respondError(i, string(kind), err)
		return
	}

	b.enforceNewState(guild, room, shared.UserID(target.ID), kind)
	b.publishModerationEvent(ctx, shared.EventModerationStateSet, guild, room, shared.UserID(target.ID), kind, invoker)

	verb := "muted in"
	if kind == moderation.KindBanned {
		verb = "banned from"
	}
	msg := fmt.Sprintf("%s is now %s this room.", target.Mention(), verb)
	if res.Replaced {
		msg += " (updated existing state)"
	}
	b.respondText(i, msg, false)
}

func (b *Bot) handleClearState(ctx context.Context, i *discordgo.InteractionCreate, kind moderation.Kind) {
	guild := shared.GuildID(i.GuildID)
	invoker := shared.UserID(i.Member.User.ID)
	target := b.targetUser(i)

	room, ok := b.invokerRoom(i)
	if !ok {
		b.respondText(i, "Join a voice room first.", true)
		return
	}
	if !b.canModerate(ctx, i, room) {
		b.respondText(i, "You need to own this room or have moderation permissions.", true)
		return
	}

	res, err := b.deps.ModState.ClearState(ctx, guild, room, shared.UserID(target.ID), kind)
	if err != nil {
		b.respondError(i, string(kind), err)
		return
	}
	if res.NoOp {
		b.respondText(i, fmt.Sprintf("%s has no active %s state here.", target.Mention(), kind), true)
		return
	}

	if kind == moderation.KindMuted {
		if err := b.session.GuildMemberMute(guild.String(), target.ID, false); err != nil {
			b.log.Warn("failed to unmute user", logger.Err(err), logger.UserID(target.ID))
		}
	}
	b.publishModerationEvent(ctx, shared.EventModerationStateCleared, guild, room, shared.UserID(target.ID), kind, invoker)

	b.respondText(i, fmt.Sprintf("Cleared %s state for %s.", kind, target.Mention()), false)
}

func (b *Bot) handleModList(ctx context.Context, i *discordgo.InteractionCreate) {
	guild := shared.GuildID(i.GuildID)

	room, ok := b.invokerRoom(i)
	if !ok {
		b.respondText(i, "Join a voice room first.", true)
		return
	}

	var sb strings.Builder
	for _, kind := range []moderation.Kind{moderation.KindMuted, moderation.KindBanned} {
		users, err := b.deps.ModState.UsersWithState(ctx, guild, room, kind)
		if err != nil {
			b.respondError(i, "modlist", err)
			return
		}
		if len(users) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "**%s**\n", kind)
		for _, u := range users {
			fmt.Fprintf(&sb, "<@%s>\n", u)
		}
	}
	if sb.Len() == 0 {
		b.respondText(i, "No active moderation states in this room.", true)
		return
	}

	b.respondEmbed(i, &discordgo.MessageEmbed{
		Title:       "Room moderation states",
		Color:       embedColor,
		Description: sb.String(),
	}, true)
}

// enforceNewState applies a freshly set state to the target if they are in
// the room right now.
func (b *Bot) enforceNewState(guild shared.GuildID, room shared.ChannelID, user shared.UserID, kind moderation.Kind) {
	vs, err := b.session.State.VoiceState(guild.String(), user.String())
	if err != nil || vs == nil || vs.ChannelID != room.String() {
		return
	}

	switch kind {
	case moderation.KindMuted:
		if err := b.session.GuildMemberMute(guild.String(), user.String(), true); err != nil {
			b.log.Warn("failed to mute user", logger.Err(err), logger.UserID(user.String()))
		}
	case moderation.KindBanned:
		if err := b.session.GuildMemberMove(guild.String(), user.String(), nil); err != nil {
			b.log.Warn("failed to disconnect banned user", logger.Err(err), logger.UserID(user.String()))
		}
	}
}

func (b *Bot) publishModerationEvent(ctx context.Context, eventType shared.EventType, guild shared.GuildID, room shared.ChannelID, user shared.UserID, kind moderation.Kind, appliedBy shared.UserID) {
	if b.deps.Bus == nil {
		return
	}
	event := shared.NewModerationStateEvent(eventType, guild, room, user, kind.String(), appliedBy)
	if err := b.deps.Bus.Publish(ctx, event); err != nil {
		b.log.Warn("moderation event publish failed", logger.Err(err))
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

func (b *Bot) handleAdjustXP(ctx context.Context, i *discordgo.InteractionCreate) {
	if !b.isAdmin(i) {
		b.respondText(i, "You need Manage Server permission for this.", true)
		return
	}

	target := b.targetUser(i)
	amount := b.intOption(i, "amount", 0)
	if amount == 0 {
		b.respondText(i, "Amount must be non-zero.", true)
		return
	}

	res, err := b.deps.Engine.AdjustXP(ctx, shared.GuildID(i.GuildID), shared.UserID(target.ID), shared.XP(amount))
	if shared.IsNotFound(err) {
		b.respondText(i, fmt.Sprintf("%s has no XP record yet.", target.Mention()), true)
		return
	}
	if err != nil {
		b.respondError(i, "adjustxp", err)
		return
	}

	b.respondText(i, fmt.Sprintf("%s now has %d XP (level %d).", target.Mention(), res.XP, res.NewLevel), false)
}

func (b *Bot) handleLevelConfig(ctx context.Context, i *discordgo.InteractionCreate) {
	if !b.isAdmin(i) {
		b.respondText(i, "You need Manage Server permission for this.", true)
		return
	}

	guild := shared.GuildID(i.GuildID)
	settings, err := b.deps.Engine.GuildSettings(ctx, guild)
	if err != nil {
		b.respondError(i, "levelconfig", err)
		return
	}

	opts := optionMap(i)
	if v, ok := opts["voice_xp"]; ok {
		settings.VoiceXPPerMinute = shared.XP(v.IntValue())
	}
	if v, ok := opts["message_xp"]; ok {
		settings.MessageXPPerMessage = shared.XP(v.IntValue())
	}
	if v, ok := opts["cooldown_seconds"]; ok {
		settings.MessageXPCooldown = time.Duration(v.IntValue()) * time.Second
	}
	if v, ok := opts["announce_channel"]; ok {
		settings.Notify.Enabled = true
		settings.Notify.AnnounceInChannel = true
		settings.Notify.ChannelID = shared.ChannelID(v.ChannelValue(nil).ID)
	}

	if err := b.deps.Engine.UpdateGuildSettings(ctx, settings); err != nil {
		if shared.IsValidation(err) {
			b.respondText(i, fmt.Sprintf("Invalid settings: %v", err), true)
			return
		}
		b.respondError(i, "levelconfig", err)
		return
	}

	b.respondText(i, formatSettings(settings), true)
}

func formatSettings(s level.Settings) string {
	return fmt.Sprintf(
		"Settings updated: %d XP/voice minute, %d XP/message, %s cooldown.",
		s.VoiceXPPerMinute, s.MessageXPPerMessage, s.MessageXPCooldown,
	)
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func (b *Bot) targetUser(i *discordgo.InteractionCreate) *discordgo.User {
	if opt, ok := optionMap(i)["user"]; ok {
		return opt.UserValue(b.session)
	}
	if i.Member != nil {
		return i.Member.User
	}
	return i.User
}

func (b *Bot) intOption(i *discordgo.InteractionCreate, name string, def int64) int64 {
	if opt, ok := optionMap(i)[name]; ok {
		return opt.IntValue()
	}
	return def
}

func (b *Bot) stringOption(i *discordgo.InteractionCreate, name string) string {
	if opt, ok := optionMap(i)[name]; ok {
		return opt.StringValue()
	}
	return ""
}

func optionMap(i *discordgo.InteractionCreate) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	options := i.ApplicationCommandData().Options
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, opt := range options {
		m[opt.Name] = opt
	}
	return m
}

func (b *Bot) invokerRoom(i *discordgo.InteractionCreate) (shared.ChannelID, bool) {
	vs, err := b.session.State.VoiceState(i.GuildID, i.Member.User.ID)
	if err != nil || vs == nil || vs.ChannelID == "" {
		return "", false
	}
	return shared.ChannelID(vs.ChannelID), true
}

func (b *Bot) canModerate(ctx context.Context, i *discordgo.InteractionCreate, room shared.ChannelID) bool {
	if i.Member.Permissions&(discordgo.PermissionModerateMembers|discordgo.PermissionAdministrator) != 0 {
		return true
	}
	owner, err := b.IsRoomOwner(ctx, room, shared.UserID(i.Member.User.ID))
	if err != nil {
		b.log.Warn("ownership check failed", logger.Err(err), logger.ChannelID(room.String()))
		return false
	}
	return owner
}

func (b *Bot) isAdmin(i *discordgo.InteractionCreate) bool {
	return i.Member != nil && i.Member.Permissions&(discordgo.PermissionManageGuild|discordgo.PermissionAdministrator) != 0
}

func displayName(user *discordgo.User, preferred string) string {
	if preferred != "" {
		return preferred
	}
	if user.GlobalName != "" {
		return user.GlobalName
	}
	return user.Username
}

func (b *Bot) respondText(i *discordgo.InteractionCreate, content string, ephemeral bool) {
	data := &discordgo.InteractionResponseData{Content: content}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	b.respond(i, data)
}

func (b *Bot) respondEmbed(i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, ephemeral bool) {
	data := &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{embed}}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	b.respond(i, data)
}

func (b *Bot) respondError(i *discordgo.InteractionCreate, command string, err error) {
	b.log.Error("command failed", logger.Err(err), logger.String("command", command))
	b.respondText(i, "Something went wrong, try again later.", true)
}

func (b *Bot) respond(i *discordgo.InteractionCreate, data *discordgo.InteractionResponseData) {
	err := b.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
	if err != nil {
		b.log.Error("interaction response failed", logger.Err(err))
	}
}
