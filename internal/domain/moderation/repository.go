package moderation

import (
	"context"

	"github.com/bwallxyz/guild-activity-hub/internal/domain/shared"
)

// Repository defines the interface for moderation record persistence.
// The store enforces uniqueness on (guild, room, user, kind).
type Repository interface {
	// Upsert creates the record, or replaces the existing record for the
	// same (guild, room, user, kind) tuple.
	Upsert(ctx context.Context, record *Record) error

	// Get returns the active record for a tuple, or shared.ErrNotFound.
	Get(ctx context.Context, guild shared.GuildID, room shared.ChannelID, user shared.UserID, kind Kind) (*Record, error)

	// Delete removes the record for a tuple. Returns shared.ErrNotFound
	// when no record exists; callers treat that as a no-op.
	Delete(ctx context.Context, guild shared.GuildID, room shared.ChannelID, user shared.UserID, kind Kind) error

	// DeleteRoom removes every record for a room (room deletion cleanup).
	// Returns the number of records removed.
	DeleteRoom(ctx context.Context, guild shared.GuildID, room shared.ChannelID) (int, error)

	// UsersWithState returns the user IDs with an active record of the
	// given kind in the room.
	UsersWithState(ctx context.Context, guild shared.GuildID, room shared.ChannelID, kind Kind) ([]shared.UserID, error)

	// UserStates returns all active records for a user in a room. A user
	// may hold several states of distinct kinds at once.
	UserStates(ctx context.Context, guild shared.GuildID, user shared.UserID, room shared.ChannelID) ([]*Record, error)

	// CountByKind returns active record counts per kind for a room.
	CountByKind(ctx context.Context, guild shared.GuildID, room shared.ChannelID) (map[Kind]int, error)
}
