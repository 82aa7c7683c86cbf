package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bwallxyz/guild-activity-hub/internal/domain/session"
	"github.com/bwallxyz/guild-activity-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ActivityRepository implements session.Repository for PostgreSQL.
//
// The aggregate row lives in user_activity; closed sessions are kept in
// voice_sessions and joined in on Get. Saves are guarded by the version
// column: the UPDATE only applies when the stored version matches the one
// the aggregate was read at.
type ActivityRepository struct {
	conn *Connection
}

// NewActivityRepository creates a new ActivityRepository.
func NewActivityRepository(conn *Connection) *ActivityRepository {
	return &ActivityRepository{conn: conn}
}

// currentSessionDoc is the JSONB shape of the open session column.
type currentSessionDoc struct {
	ID          string    `json:"id"`
	ChannelID   string    `json:"channel_id"`
	ChannelName string    `json:"channel_name"`
	JoinedAt    time.Time `json:"joined_at"`
	IsOwner     bool      `json:"is_owner"`
}

// Get returns the activity aggregate for a member, including history.
func (r *ActivityRepository) Get(ctx context.Context, key shared.MemberKey) (*session.UserActivity, error) {
	query := `
		SELECT username, display_name, total_sessions, total_time_ms,
		       first_seen, last_active, current_session, last_xp_update, version
		FROM user_activity
		WHERE guild_id = $1 AND user_id = $2
	`

	a := &session.UserActivity{GuildID: key.Guild, UserID: key.User}
	var totalTimeMS int64
	var currentJSON []byte

	err := r.conn.QueryRow(ctx, query, key.Guild.String(), key.User.String()).Scan(
		&a.Username,
		&a.DisplayName,
		&a.TotalSessions,
		&totalTimeMS,
		&a.FirstSeen,
		&a.LastActive,
		&currentJSON,
		&a.LastXPUpdate,
		&a.Version,
	)
	if IsNoRows(err) {
		return nil, shared.WrapError("postgres", "Get", shared.ErrNotFound, "member has no activity record", nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load activity: %w", err)
	}

	a.TotalTime = time.Duration(totalTimeMS) * time.Millisecond
	if currentJSON != nil {
		var doc currentSessionDoc
		if err := json.Unmarshal(currentJSON, &doc); err != nil {
			return nil, fmt.Errorf("failed to decode current session: %w", err)
		}
		a.CurrentSession = &session.Session{
			ID:          doc.ID,
			GuildID:     key.Guild,
			UserID:      key.User,
			ChannelID:   shared.ChannelID(doc.ChannelID),
			ChannelName: doc.ChannelName,
			JoinedAt:    doc.JoinedAt,
			IsOwner:     doc.IsOwner,
		}
	}

	history, err := r.loadHistory(ctx, key)
	if err != nil {
		return nil, err
	}
	a.History = history

	return a, nil
}

// Save persists the aggregate. The version check makes the write optimistic:
// when the stored version moved since the read, no row matches and the
// caller gets ErrConcurrentModification.
func (r *ActivityRepository) Save(ctx context.Context, a *session.UserActivity) error {
	currentJSON, err := encodeCurrentSession(a.CurrentSession)
	if err != nil {
		return err
	}

	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if a.Version == 0 {
			insert := `
				INSERT INTO user_activity (
					guild_id, user_id, username, display_name, total_sessions,
					total_time_ms, first_seen, last_active, current_session,
					last_xp_update, version
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1)
				ON CONFLICT (guild_id, user_id) DO NOTHING
			`
			tag, err := tx.Exec(ctx, insert,
				a.GuildID.String(),
				a.UserID.String(),
				a.Username,
				a.DisplayName,
				a.TotalSessions,
				a.TotalTime.Milliseconds(),
				a.FirstSeen,
				a.LastActive,
				currentJSON,
				a.LastXPUpdate,
			)
			if err != nil {
				return fmt.Errorf("failed to insert activity: %w", err)
			}
			if tag.RowsAffected() == 0 {
				return shared.WrapError("postgres", "Save", shared.ErrConcurrentModification, "activity record was created concurrently", nil)
			}
			a.Version = 1
			return r.persistClosedSessions(ctx, tx, a)
		}

		update := `
			UPDATE user_activity SET
				username = $1,
				display_name = $2,
				total_sessions = $3,
				total_time_ms = $4,
				last_active = $5,
				current_session = $6,
				last_xp_update = $7,
				version = version + 1
			WHERE guild_id = $8 AND user_id = $9 AND version = $10
		`
		tag, err := tx.Exec(ctx, update,
			a.Username,
			a.DisplayName,
			a.TotalSessions,
			a.TotalTime.Milliseconds(),
			a.LastActive,
			currentJSON,
			a.LastXPUpdate,
			a.GuildID.String(),
			a.UserID.String(),
			a.Version,
		)
		if err != nil {
			return fmt.Errorf("failed to update activity: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return shared.WrapError("postgres", "Save", shared.ErrConcurrentModification, "activity version moved since read", nil)
		}
		a.Version++
		return r.persistClosedSessions(ctx, tx, a)
	})
}

// WithOpenSessions returns every aggregate with an open session. History is
// not loaded: the voice-XP poll only needs the open session and the accrual
// mark, and saving an aggregate never rewrites stored history rows.
func (r *ActivityRepository) WithOpenSessions(ctx context.Context) ([]*session.UserActivity, error) {
	query := `
		SELECT guild_id, user_id, username, display_name, total_sessions,
		       total_time_ms, first_seen, last_active, current_session,
		       last_xp_update, version
		FROM user_activity
		WHERE current_session IS NOT NULL
		ORDER BY guild_id, user_id
	`

	rows, err := r.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query open sessions: %w", err)
	}
	defer rows.Close()

	var out []*session.UserActivity
	for rows.Next() {
		a := &session.UserActivity{}
		var guildID, userID string
		var totalTimeMS int64
		var currentJSON []byte

		if err := rows.Scan(
			&guildID,
			&userID,
			&a.Username,
			&a.DisplayName,
			&a.TotalSessions,
			&totalTimeMS,
			&a.FirstSeen,
			&a.LastActive,
			&currentJSON,
			&a.LastXPUpdate,
			&a.Version,
		); err != nil {
			return nil, fmt.Errorf("failed to scan activity row: %w", err)
		}

		a.GuildID = shared.GuildID(guildID)
		a.UserID = shared.UserID(userID)
		a.TotalTime = time.Duration(totalTimeMS) * time.Millisecond

		var doc currentSessionDoc
		if err := json.Unmarshal(currentJSON, &doc); err != nil {
			return nil, fmt.Errorf("failed to decode current session: %w", err)
		}
		a.CurrentSession = &session.Session{
			ID:          doc.ID,
			GuildID:     a.GuildID,
			UserID:      a.UserID,
			ChannelID:   shared.ChannelID(doc.ChannelID),
			ChannelName: doc.ChannelName,
			JoinedAt:    doc.JoinedAt,
			IsOwner:     doc.IsOwner,
		}

		out = append(out, a)
	}
	return out, rows.Err()
}

// GuildMembers returns the member keys tracked for a guild.
func (r *ActivityRepository) GuildMembers(ctx context.Context, guild shared.GuildID) ([]shared.MemberKey, error) {
	query := `SELECT user_id FROM user_activity WHERE guild_id = $1 ORDER BY user_id`

	rows, err := r.conn.Query(ctx, query, guild.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query guild members: %w", err)
	}
	defer rows.Close()

	var out []shared.MemberKey
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("failed to scan member row: %w", err)
		}
		out = append(out, shared.MemberKey{Guild: guild, User: shared.UserID(userID)})
	}
	return out, rows.Err()
}

func (r *ActivityRepository) loadHistory(ctx context.Context, key shared.MemberKey) ([]session.Session, error) {
	query := `
		SELECT id, channel_id, channel_name, joined_at, left_at, duration_ms, is_owner
		FROM voice_sessions
		WHERE guild_id = $1 AND user_id = $2
		ORDER BY joined_at
	`

	rows, err := r.conn.Query(ctx, query, key.Guild.String(), key.User.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query session history: %w", err)
	}
	defer rows.Close()

	history := make([]session.Session, 0)
	for rows.Next() {
		s := session.Session{GuildID: key.Guild, UserID: key.User}
		var channelID string
		var leftAt time.Time
		var durationMS int64

		if err := rows.Scan(&s.ID, &channelID, &s.ChannelName, &s.JoinedAt, &leftAt, &durationMS, &s.IsOwner); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}

		s.ChannelID = shared.ChannelID(channelID)
		s.LeftAt = &leftAt
		s.Duration = time.Duration(durationMS) * time.Millisecond
		history = append(history, s)
	}
	return history, rows.Err()
}

// persistClosedSessions inserts history entries not yet stored. Session IDs
// are unique, so re-inserting already stored entries is a no-op.
func (r *ActivityRepository) persistClosedSessions(ctx context.Context, tx pgx.Tx, a *session.UserActivity) error {
	insert := `
		INSERT INTO voice_sessions (
			id, guild_id, user_id, channel_id, channel_name,
			joined_at, left_at, duration_ms, is_owner
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`

	for i := range a.History {
		s := &a.History[i]
		if s.LeftAt == nil {
			continue
		}
		if _, err := tx.Exec(ctx, insert,
			s.ID,
			a.GuildID.String(),
			a.UserID.String(),
			s.ChannelID.String(),
			s.ChannelName,
			s.JoinedAt,
			*s.LeftAt,
			s.Duration.Milliseconds(),
			s.IsOwner,
		); err != nil {
			return fmt.Errorf("failed to persist closed session: %w", err)
		}
	}
	return nil
}

func encodeCurrentSession(s *session.Session) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	data, err := json.Marshal(currentSessionDoc{
		ID:          s.ID,
		ChannelID:   s.ChannelID.String(),
		ChannelName: s.ChannelName,
		JoinedAt:    s.JoinedAt,
		IsOwner:     s.IsOwner,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode current session: %w", err)
	}
	return data, nil
}
