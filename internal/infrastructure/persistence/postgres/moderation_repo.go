package postgres

import (
	"context"
	"fmt"

	"github.com/bwallxyz/guild-activity-hub/internal/domain/moderation"
	"github.com/bwallxyz/guild-activity-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MODERATION REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ModerationRepository implements moderation.Repository for PostgreSQL.
// The UNIQUE (guild_id, room_id, user_id, kind) constraint backs the
// idempotent upsert: re-applying a state updates the existing row in place.
type ModerationRepository struct {
	conn *Connection
}

// NewModerationRepository creates a new ModerationRepository.
func NewModerationRepository(conn *Connection) *ModerationRepository {
	return &ModerationRepository{conn: conn}
}

// Upsert creates or replaces the record for its tuple.
func (r *ModerationRepository) Upsert(ctx context.Context, record *moderation.Record) error {
	query := `
		INSERT INTO room_moderation_states (
			id, guild_id, room_id, user_id, kind, reason, applied_by, applied_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (guild_id, room_id, user_id, kind) DO UPDATE SET
			reason = EXCLUDED.reason,
			applied_by = EXCLUDED.applied_by,
			applied_at = EXCLUDED.applied_at
	`

	_, err := r.conn.Exec(ctx, query,
		record.ID,
		record.GuildID.String(),
		record.RoomID.String(),
		record.UserID.String(),
		record.Kind.String(),
		record.Reason,
		record.AppliedBy.String(),
		record.AppliedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert moderation record: %w", err)
	}
	return nil
}

// Get returns the active record for a tuple.
func (r *ModerationRepository) Get(ctx context.Context, guild shared.GuildID, room shared.ChannelID, user shared.UserID, kind moderation.Kind) (*moderation.Record, error) {
	query := `
		SELECT id, reason, applied_by, applied_at
		FROM room_moderation_states
		WHERE guild_id = $1 AND room_id = $2 AND user_id = $3 AND kind = $4
	`

	rec := &moderation.Record{GuildID: guild, RoomID: room, UserID: user, Kind: kind}
	var appliedBy string

	err := r.conn.QueryRow(ctx, query, guild.String(), room.String(), user.String(), kind.String()).Scan(
		&rec.ID,
		&rec.Reason,
		&appliedBy,
		&rec.AppliedAt,
	)
	if IsNoRows(err) {
		return nil, shared.WrapError("postgres", "Get", shared.ErrNotFound, "no active moderation record", nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load moderation record: %w", err)
	}

	rec.AppliedBy = shared.UserID(appliedBy)
	return rec, nil
}

// Delete removes the record for a tuple.
func (r *ModerationRepository) Delete(ctx context.Context, guild shared.GuildID, room shared.ChannelID, user shared.UserID, kind moderation.Kind) error {
	query := `
		DELETE FROM room_moderation_states
		WHERE guild_id = $1 AND room_id = $2 AND user_id = $3 AND kind = $4
	`

	tag, err := r.conn.Exec(ctx, query, guild.String(), room.String(), user.String(), kind.String())
	if err != nil {
		return fmt.Errorf("failed to delete moderation record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.WrapError("postgres", "Delete", shared.ErrNotFound, "no active moderation record", nil)
	}
	return nil
}

// DeleteRoom removes every record for a room and returns the count.
func (r *ModerationRepository) DeleteRoom(ctx context.Context, guild shared.GuildID, room shared.ChannelID) (int, error) {
	query := `DELETE FROM room_moderation_states WHERE guild_id = $1 AND room_id = $2`

	tag, err := r.conn.Exec(ctx, query, guild.String(), room.String())
	if err != nil {
		return 0, fmt.Errorf("failed to purge room moderation records: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// UsersWithState returns the users holding the given state in a room.
func (r *ModerationRepository) UsersWithState(ctx context.Context, guild shared.GuildID, room shared.ChannelID, kind moderation.Kind) ([]shared.UserID, error) {
	query := `
		SELECT user_id
		FROM room_moderation_states
		WHERE guild_id = $1 AND room_id = $2 AND kind = $3
		ORDER BY user_id
	`

	rows, err := r.conn.Query(ctx, query, guild.String(), room.String(), kind.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query moderated users: %w", err)
	}
	defer rows.Close()

	var out []shared.UserID
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		out = append(out, shared.UserID(userID))
	}
	return out, rows.Err()
}

// UserStates returns every record for a user in a room.
func (r *ModerationRepository) UserStates(ctx context.Context, guild shared.GuildID, user shared.UserID, room shared.ChannelID) ([]*moderation.Record, error) {
	query := `
		SELECT id, kind, reason, applied_by, applied_at
		FROM room_moderation_states
		WHERE guild_id = $1 AND room_id = $2 AND user_id = $3
		ORDER BY kind
	`

	rows, err := r.conn.Query(ctx, query, guild.String(), room.String(), user.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query user states: %w", err)
	}
	defer rows.Close()

	var out []*moderation.Record
	for rows.Next() {
		rec := &moderation.Record{GuildID: guild, RoomID: room, UserID: user}
		var kind, appliedBy string
		if err := rows.Scan(&rec.ID, &kind, &rec.Reason, &appliedBy, &rec.AppliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan moderation row: %w", err)
		}
		rec.Kind = moderation.Kind(kind)
		rec.AppliedBy = shared.UserID(appliedBy)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CountByKind returns active record counts per kind for a room.
func (r *ModerationRepository) CountByKind(ctx context.Context, guild shared.GuildID, room shared.ChannelID) (map[moderation.Kind]int, error) {
	query := `
		SELECT kind, COUNT(*)
		FROM room_moderation_states
		WHERE guild_id = $1 AND room_id = $2
		GROUP BY kind
	`

	rows, err := r.conn.Query(ctx, query, guild.String(), room.String())
	if err != nil {
		return nil, fmt.Errorf("failed to count moderation records: %w", err)
	}
	defer rows.Close()

	out := make(map[moderation.Kind]int)
	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count row: %w", err)
		}
		out[moderation.Kind(kind)] = count
	}
	return out, rows.Err()
}
