package discord

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bwallxyz/guild-activity-hub/internal/domain/level"
	"github.com/bwallxyz/guild-activity-hub/internal/domain/shared"
)

func TestAnnounceChannel(t *testing.T) {
	activity := shared.ChannelID("voice-1")

	// Default settings configure no dedicated channel: the announcement
	// lands where the activity happened.
	cfg := level.DefaultSettings("guild-1").Notify
	assert.Equal(t, activity, announceChannel(cfg, activity))

	// A dedicated channel wins over the activity channel.
	cfg.ChannelID = "announcements"
	assert.Equal(t, shared.ChannelID("announcements"), announceChannel(cfg, activity))

	// Announcements disabled entirely.
	cfg.AnnounceInChannel = false
	assert.False(t, announceChannel(cfg, activity).IsValid())

	// No dedicated channel and no activity channel: nothing to post to.
	cfg = level.DefaultSettings("guild-1").Notify
	assert.False(t, announceChannel(cfg, "").IsValid())
}
