package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: ACTIVITY TRACKING
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS user_activity (
	guild_id        TEXT NOT NULL,
	user_id         TEXT NOT NULL,
	username        TEXT NOT NULL DEFAULT '',
	display_name    TEXT NOT NULL DEFAULT '',
	total_sessions  INTEGER NOT NULL DEFAULT 0,
	total_time_ms   BIGINT NOT NULL DEFAULT 0,
	first_seen      TIMESTAMP WITH TIME ZONE NOT NULL,
	last_active     TIMESTAMP WITH TIME ZONE NOT NULL,
	current_session JSONB,
	last_xp_update  TIMESTAMP WITH TIME ZONE,
	version         BIGINT NOT NULL DEFAULT 0,
	PRIMARY KEY (guild_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_user_activity_open
	ON user_activity (guild_id, user_id)
	WHERE current_session IS NOT NULL;

CREATE TABLE IF NOT EXISTS voice_sessions (
	id           TEXT PRIMARY KEY,
	guild_id     TEXT NOT NULL,
	user_id      TEXT NOT NULL,
	channel_id   TEXT NOT NULL,
	channel_name TEXT NOT NULL DEFAULT '',
	joined_at    TIMESTAMP WITH TIME ZONE NOT NULL,
	left_at      TIMESTAMP WITH TIME ZONE NOT NULL,
	duration_ms  BIGINT NOT NULL,
	is_owner     BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_voice_sessions_member
	ON voice_sessions (guild_id, user_id, joined_at);
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: LEVELING
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS user_levels (
	guild_id           TEXT NOT NULL,
	user_id            TEXT NOT NULL,
	xp                 BIGINT NOT NULL DEFAULT 0,
	voice_xp           BIGINT NOT NULL DEFAULT 0,
	message_xp         BIGINT NOT NULL DEFAULT 0,
	level              INTEGER NOT NULL DEFAULT 0,
	last_message_xp_at TIMESTAMP WITH TIME ZONE,
	updated_at         TIMESTAMP WITH TIME ZONE NOT NULL,
	version            BIGINT NOT NULL DEFAULT 0,
	PRIMARY KEY (guild_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_user_levels_leaderboard
	ON user_levels (guild_id, xp DESC, updated_at ASC, user_id ASC);

CREATE TABLE IF NOT EXISTS guild_level_settings (
	guild_id               TEXT PRIMARY KEY,
	voice_xp_per_minute    BIGINT NOT NULL,
	message_xp_per_message BIGINT NOT NULL,
	message_cooldown_ms    BIGINT NOT NULL,
	base_multiplier        DOUBLE PRECISION NOT NULL,
	scaling_multiplier     DOUBLE PRECISION NOT NULL,
	level_roles            JSONB NOT NULL DEFAULT '{}',
	notify_enabled         BOOLEAN NOT NULL DEFAULT TRUE,
	notify_channel_id      TEXT NOT NULL DEFAULT '',
	notify_dm              BOOLEAN NOT NULL DEFAULT FALSE,
	notify_in_channel      BOOLEAN NOT NULL DEFAULT TRUE,
	updated_at             TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: ROOM MODERATION
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS room_moderation_states (
	id         TEXT PRIMARY KEY,
	guild_id   TEXT NOT NULL,
	room_id    TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	kind       TEXT NOT NULL,
	reason     TEXT NOT NULL DEFAULT '',
	applied_by TEXT NOT NULL,
	applied_at TIMESTAMP WITH TIME ZONE NOT NULL,
	UNIQUE (guild_id, room_id, user_id, kind)
);

CREATE INDEX IF NOT EXISTS idx_moderation_room
	ON room_moderation_states (guild_id, room_id, kind);

CREATE INDEX IF NOT EXISTS idx_moderation_user
	ON room_moderation_states (guild_id, room_id, user_id);
`
