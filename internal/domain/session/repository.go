package session

import (
	"context"

	"github.com/bwallxyz/guild-activity-hub/internal/domain/shared"
)

// Repository defines the interface for activity persistence.
// Implemented by the infrastructure layer; the domain has no knowledge of
// the actual storage mechanism.
type Repository interface {
	// Get returns the activity aggregate for a member, including its
	// session history and open session. Returns shared.ErrNotFound when
	// the member has never been tracked.
	Get(ctx context.Context, key shared.MemberKey) (*UserActivity, error)

	// Save persists the aggregate with an optimistic version check.
	// Returns shared.ErrConcurrentModification when the stored version no
	// longer matches; callers must re-read and re-apply, never overwrite.
	// On success the stored version is incremented.
	Save(ctx context.Context, activity *UserActivity) error

	// WithOpenSessions returns every aggregate that currently has an open
	// session, across all guilds. Drives the periodic voice-XP poll.
	WithOpenSessions(ctx context.Context) ([]*UserActivity, error)

	// GuildMembers returns the member keys tracked for a guild.
	GuildMembers(ctx context.Context, guild shared.GuildID) ([]shared.MemberKey, error)
}
