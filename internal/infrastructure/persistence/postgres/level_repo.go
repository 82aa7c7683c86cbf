package postgres

import (
	"context"
	"fmt"

	"github.com/bwallxyz/guild-activity-hub/internal/domain/level"
	"github.com/bwallxyz/guild-activity-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEVEL REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// LevelRepository implements level.Repository for PostgreSQL, under the same
// optimistic version contract as ActivityRepository.
type LevelRepository struct {
	conn *Connection
}

// NewLevelRepository creates a new LevelRepository.
func NewLevelRepository(conn *Connection) *LevelRepository {
	return &LevelRepository{conn: conn}
}

// Get returns the level record for a member.
func (r *LevelRepository) Get(ctx context.Context, key shared.MemberKey) (*level.UserLevel, error) {
	query := `
		SELECT xp, voice_xp, message_xp, level, last_message_xp_at, updated_at, version
		FROM user_levels
		WHERE guild_id = $1 AND user_id = $2
	`

	rec := &level.UserLevel{GuildID: key.Guild, UserID: key.User}
	err := r.conn.QueryRow(ctx, query, key.Guild.String(), key.User.String()).Scan(
		&rec.XP,
		&rec.VoiceXP,
		&rec.MessageXP,
		&rec.Level,
		&rec.LastMessageXPAt,
		&rec.UpdatedAt,
		&rec.Version,
	)
	if IsNoRows(err) {
		return nil, shared.WrapError("postgres", "Get", shared.ErrNotFound, "member has no level record", nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load level record: %w", err)
	}
	return rec, nil
}

// Save persists the record with the optimistic version check.
func (r *LevelRepository) Save(ctx context.Context, rec *level.UserLevel) error {
	if rec.Version == 0 {
		insert := `
			INSERT INTO user_levels (
				guild_id, user_id, xp, voice_xp, message_xp, level,
				last_message_xp_at, updated_at, version
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1)
			ON CONFLICT (guild_id, user_id) DO NOTHING
		`
		tag, err := r.conn.Exec(ctx, insert,
			rec.GuildID.String(),
			rec.UserID.String(),
			rec.XP.Int64(),
			rec.VoiceXP.Int64(),
			rec.MessageXP.Int64(),
			rec.Level,
			rec.LastMessageXPAt,
			rec.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert level record: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return shared.WrapError("postgres", "Save", shared.ErrConcurrentModification, "level record was created concurrently", nil)
		}
		rec.Version = 1
		return nil
	}

	update := `
		UPDATE user_levels SET
			xp = $1,
			voice_xp = $2,
			message_xp = $3,
			level = $4,
			last_message_xp_at = $5,
			updated_at = $6,
			version = version + 1
		WHERE guild_id = $7 AND user_id = $8 AND version = $9
	`
	tag, err := r.conn.Exec(ctx, update,
		rec.XP.Int64(),
		rec.VoiceXP.Int64(),
		rec.MessageXP.Int64(),
		rec.Level,
		rec.LastMessageXPAt,
		rec.UpdatedAt,
		rec.GuildID.String(),
		rec.UserID.String(),
		rec.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update level record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.WrapError("postgres", "Save", shared.ErrConcurrentModification, "level version moved since read", nil)
	}
	rec.Version++
	return nil
}

// TopByXP returns the guild leaderboard page. The ordering matches the
// idx_user_levels_leaderboard index exactly.
func (r *LevelRepository) TopByXP(ctx context.Context, guild shared.GuildID, limit int) ([]*level.UserLevel, error) {
	query := `
		SELECT user_id, xp, voice_xp, message_xp, level,
		       last_message_xp_at, updated_at, version
		FROM user_levels
		WHERE guild_id = $1
		ORDER BY xp DESC, updated_at ASC, user_id ASC
		LIMIT $2
	`

	rows, err := r.conn.Query(ctx, query, guild.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	var out []*level.UserLevel
	for rows.Next() {
		rec := &level.UserLevel{GuildID: guild}
		var userID string
		if err := rows.Scan(
			&userID,
			&rec.XP,
			&rec.VoiceXP,
			&rec.MessageXP,
			&rec.Level,
			&rec.LastMessageXPAt,
			&rec.UpdatedAt,
			&rec.Version,
		); err != nil {
			return nil, fmt.Errorf("failed to scan level row: %w", err)
		}
		rec.UserID = shared.UserID(userID)
		out = append(out, rec)
	}
	return out, rows.Err()
}
