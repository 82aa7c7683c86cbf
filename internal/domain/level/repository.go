package level

import (
	"context"

	"github.com/bwallxyz/guild-activity-hub/internal/domain/shared"
)

// Repository defines the interface for level record persistence.
type Repository interface {
	// Get returns the level record for a member.
	// Returns shared.ErrNotFound when the member has never earned XP.
	Get(ctx context.Context, key shared.MemberKey) (*UserLevel, error)

	// Save persists the record with an optimistic version check, same
	// contract as session.Repository.Save.
	Save(ctx context.Context, record *UserLevel) error

	// TopByXP returns up to limit records for a guild ordered by XP
	// descending; ties break by earliest UpdatedAt, then by user ID
	// ascending. The ordering is part of the contract so leaderboards are
	// reproducible across stores.
	TopByXP(ctx context.Context, guild shared.GuildID, limit int) ([]*UserLevel, error)
}

// SettingsRepository persists per-guild leveling configuration.
type SettingsRepository interface {
	// Get returns the settings for a guild, or shared.ErrNotFound when the
	// guild was never configured. Callers fall back to DefaultSettings.
	Get(ctx context.Context, guild shared.GuildID) (Settings, error)

	// Save stores validated settings (administrative update path).
	Save(ctx context.Context, settings Settings) error
}
