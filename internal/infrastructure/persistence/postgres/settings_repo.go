package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/bwallxyz/guild-activity-hub/internal/domain/level"
	"github.com/bwallxyz/guild-activity-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SETTINGS REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// SettingsRepository implements level.SettingsRepository for PostgreSQL.
// Settings are a plain upsert: administrative updates are rare and
// last-write-wins is acceptable.
type SettingsRepository struct {
	conn *Connection
}

// NewSettingsRepository creates a new SettingsRepository.
func NewSettingsRepository(conn *Connection) *SettingsRepository {
	return &SettingsRepository{conn: conn}
}

// Get returns the settings for a guild.
func (r *SettingsRepository) Get(ctx context.Context, guild shared.GuildID) (level.Settings, error) {
	query := `
		SELECT voice_xp_per_minute, message_xp_per_message, message_cooldown_ms,
		       base_multiplier, scaling_multiplier, level_roles,
		       notify_enabled, notify_channel_id, notify_dm, notify_in_channel
		FROM guild_level_settings
		WHERE guild_id = $1
	`

	s := level.Settings{GuildID: guild}
	var cooldownMS int64
	var rolesJSON []byte
	var notifyChannel string

	err := r.conn.QueryRow(ctx, query, guild.String()).Scan(
		&s.VoiceXPPerMinute,
		&s.MessageXPPerMessage,
		&cooldownMS,
		&s.BaseMultiplier,
		&s.ScalingMultiplier,
		&rolesJSON,
		&s.Notify.Enabled,
		&notifyChannel,
		&s.Notify.DMUser,
		&s.Notify.AnnounceInChannel,
	)
	if IsNoRows(err) {
		return level.Settings{}, shared.WrapError("postgres", "Get", shared.ErrNotFound, "guild has no level settings", nil)
	}
	if err != nil {
		return level.Settings{}, fmt.Errorf("failed to load guild settings: %w", err)
	}

	s.MessageXPCooldown = time.Duration(cooldownMS) * time.Millisecond
	s.Notify.ChannelID = shared.ChannelID(notifyChannel)

	s.LevelRoles, err = decodeLevelRoles(rolesJSON)
	if err != nil {
		return level.Settings{}, err
	}
	return s, nil
}

// Save upserts the settings row.
func (r *SettingsRepository) Save(ctx context.Context, s level.Settings) error {
	rolesJSON, err := encodeLevelRoles(s.LevelRoles)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO guild_level_settings (
			guild_id, voice_xp_per_minute, message_xp_per_message,
			message_cooldown_ms, base_multiplier, scaling_multiplier,
			level_roles, notify_enabled, notify_channel_id, notify_dm,
			notify_in_channel, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		ON CONFLICT (guild_id) DO UPDATE SET
			voice_xp_per_minute = EXCLUDED.voice_xp_per_minute,
			message_xp_per_message = EXCLUDED.message_xp_per_message,
			message_cooldown_ms = EXCLUDED.message_cooldown_ms,
			base_multiplier = EXCLUDED.base_multiplier,
			scaling_multiplier = EXCLUDED.scaling_multiplier,
			level_roles = EXCLUDED.level_roles,
			notify_enabled = EXCLUDED.notify_enabled,
			notify_channel_id = EXCLUDED.notify_channel_id,
			notify_dm = EXCLUDED.notify_dm,
			notify_in_channel = EXCLUDED.notify_in_channel,
			updated_at = NOW()
	`

	_, err = r.conn.Exec(ctx, query,
		s.GuildID.String(),
		s.VoiceXPPerMinute.Int64(),
		s.MessageXPPerMessage.Int64(),
		s.MessageXPCooldown.Milliseconds(),
		s.BaseMultiplier,
		s.ScalingMultiplier,
		rolesJSON,
		s.Notify.Enabled,
		s.Notify.ChannelID.String(),
		s.Notify.DMUser,
		s.Notify.AnnounceInChannel,
	)
	if err != nil {
		return fmt.Errorf("failed to save guild settings: %w", err)
	}
	return nil
}

// JSONB object keys are strings, so level numbers round-trip through
// strconv.

func encodeLevelRoles(roles map[int]shared.RoleID) ([]byte, error) {
	doc := make(map[string]string, len(roles))
	for lvl, role := range roles {
		doc[strconv.Itoa(lvl)] = role.String()
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode level roles: %w", err)
	}
	return data, nil
}

func decodeLevelRoles(data []byte) (map[int]shared.RoleID, error) {
	roles := make(map[int]shared.RoleID)
	if len(data) == 0 {
		return roles, nil
	}

	var doc map[string]string
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode level roles: %w", err)
	}
	for key, role := range doc {
		lvl, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("failed to decode level roles: bad level %q: %w", key, err)
		}
		roles[lvl] = shared.RoleID(role)
	}
	return roles, nil
}
