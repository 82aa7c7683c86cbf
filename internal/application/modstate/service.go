// Package modstate implements the room moderation state service: idempotent
// set/clear of per-room, per-user states and the room-level queries built on
// them.
package modstate

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bwallxyz/guild-activity-hub/internal/domain/moderation"
	"github.com/bwallxyz/guild-activity-hub/internal/domain/shared"
	"github.com/bwallxyz/guild-activity-hub/pkg/logger"
)

// SetResult reports the outcome of a SetState call.
type SetResult struct {
	Record *moderation.Record

	// Replaced is true when an existing record for the same tuple was
	// refreshed rather than a new one created.
	Replaced bool
}

// ClearResult reports the outcome of a ClearState call. NoOp is true when
// there was no active record to clear.
type ClearResult struct {
	NoOp bool
}

// Service owns moderation state transitions and queries.
type Service struct {
	repo  moderation.Repository
	log   *logger.Logger
	now   shared.Clock
	newID func() string
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source (tests).
func WithClock(clock shared.Clock) Option {
	return func(s *Service) { s.now = clock }
}

// WithIDGenerator overrides record ID generation (tests).
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) { s.newID = gen }
}

// New creates a Service.
func New(repo moderation.Repository, log *logger.Logger, opts ...Option) *Service {
	s := &Service{
		repo:  repo,
		log:   log.With(logger.Component("modstate")),
		now:   shared.SystemClock,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetState applies a moderation state to a user in a room. Setting a state
// that is already active replaces the record's reason, author, and timestamp
// in place; the (guild, room, user, kind) tuple never holds two records.
func (s *Service) SetState(ctx context.Context, guild shared.GuildID, room shared.ChannelID, user shared.UserID, kind moderation.Kind, reason string, appliedBy shared.UserID) (*SetResult, error) {
	at := s.now()

	// Validate through the constructor even on the replace path, so invalid
	// input never reaches the store.
	fresh, err := moderation.NewRecord(s.newID(), guild, room, user, kind, reason, appliedBy, at)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.Get(ctx, guild, room, user, kind)
	if err != nil && !shared.IsNotFound(err) {
		return nil, err
	}

	record := fresh
	replaced := false
	if existing != nil {
		existing.Refresh(reason, appliedBy, at)
		record = existing
		replaced = true
	}

	if err := s.repo.Upsert(ctx, record); err != nil {
		return nil, err
	}

	s.log.Info("moderation state set",
		logger.GuildID(guild.String()),
		logger.RoomID(room.String()),
		logger.UserID(user.String()),
		logger.StateKind(kind.String()),
		logger.Bool("replaced", replaced),
	)

	return &SetResult{Record: record.Clone(), Replaced: replaced}, nil
}

// ClearState removes a moderation state. Clearing a state that is not
// active is a logged no-op, not an error.
func (s *Service) ClearState(ctx context.Context, guild shared.GuildID, room shared.ChannelID, user shared.UserID, kind moderation.Kind) (*ClearResult, error) {
	if !kind.IsValid() {
		return nil, moderation.ErrInvalidKind
	}

	err := s.repo.Delete(ctx, guild, room, user, kind)
	if shared.IsNotFound(err) {
		s.log.Debug("clear of inactive moderation state ignored",
			logger.GuildID(guild.String()),
			logger.RoomID(room.String()),
			logger.UserID(user.String()),
			logger.StateKind(kind.String()),
		)
		return &ClearResult{NoOp: true}, nil
	}
	if err != nil {
		return nil, err
	}

	s.log.Info("moderation state cleared",
		logger.GuildID(guild.String()),
		logger.RoomID(room.String()),
		logger.UserID(user.String()),
		logger.StateKind(kind.String()),
	)
	return &ClearResult{}, nil
}

// IsStateActive reports whether a user currently holds the given state in
// the room.
func (s *Service) IsStateActive(ctx context.Context, guild shared.GuildID, room shared.ChannelID, user shared.UserID, kind moderation.Kind) (bool, error) {
	_, err := s.repo.Get(ctx, guild, room, user, kind)
	if shared.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// UsersWithState lists the users holding the given state in a room.
func (s *Service) UsersWithState(ctx context.Context, guild shared.GuildID, room shared.ChannelID, kind moderation.Kind) ([]shared.UserID, error) {
	if !kind.IsValid() {
		return nil, moderation.ErrInvalidKind
	}
	return s.repo.UsersWithState(ctx, guild, room, kind)
}

// UserStates lists every state a user holds in a room.
func (s *Service) UserStates(ctx context.Context, guild shared.GuildID, user shared.UserID, room shared.ChannelID) ([]*moderation.Record, error) {
	return s.repo.UserStates(ctx, guild, user, room)
}

// RoomStats returns active record counts per kind for a room.
func (s *Service) RoomStats(ctx context.Context, guild shared.GuildID, room shared.ChannelID) (*moderation.RoomStats, error) {
	counts, err := s.repo.CountByKind(ctx, guild, room)
	if err != nil {
		return nil, err
	}
	return &moderation.RoomStats{GuildID: guild, RoomID: room, Counts: counts}, nil
}

// PurgeRoom removes every moderation record for a room. Used when the room
// itself is deleted.
func (s *Service) PurgeRoom(ctx context.Context, guild shared.GuildID, room shared.ChannelID) (int, error) {
	n, err := s.repo.DeleteRoom(ctx, guild, room)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("room moderation records purged",
			logger.GuildID(guild.String()),
			logger.RoomID(room.String()),
			logger.Int("removed", n),
		)
	}
	return n, nil
}

// ActiveSince is a convenience filter for records applied at or after a
// cutoff, used by audit views.
func ActiveSince(records []*moderation.Record, cutoff time.Time) []*moderation.Record {
	out := make([]*moderation.Record, 0, len(records))
	for _, r := range records {
		if !r.AppliedAt.Before(cutoff) {
			out = append(out, r)
		}
	}
	return out
}
