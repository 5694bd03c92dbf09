package discord

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestGateway() *Gateway {
	return &Gateway{
		logger:       zap.NewNop(),
		channelIDs:   make(map[string]string),
		channelNames: make(map[string]string),
	}
}

func textChannel(id, name string) *discordgo.Channel {
	return &discordgo.Channel{ID: id, Name: name, Type: discordgo.ChannelTypeGuildText}
}

func TestChannelByNameIsCaseInsensitive(t *testing.T) {
	g := newTestGateway()
	g.cacheChannel(textChannel("100", "General"))

	id, ok := g.ChannelByName("general")
	assert.True(t, ok)
	assert.Equal(t, "100", id)

	_, ok = g.ChannelByName("random")
	assert.False(t, ok)
}

func TestRenameDropsOldChannelName(t *testing.T) {
	g := newTestGateway()
	g.cacheChannel(textChannel("100", "general"))
	g.cacheChannel(textChannel("100", "lobby"))

	_, ok := g.ChannelByName("general")
	assert.False(t, ok, "the old name no longer resolves after a rename")

	id, ok := g.ChannelByName("lobby")
	assert.True(t, ok)
	assert.Equal(t, "100", id)
}

func TestNonTextChannelsAreNotCached(t *testing.T) {
	g := newTestGateway()
	g.cacheChannel(&discordgo.Channel{ID: "200", Name: "voice-chat", Type: discordgo.ChannelTypeGuildVoice})

	_, ok := g.ChannelByName("voice-chat")
	assert.False(t, ok)
}

func TestChannelDeleteRemovesBothIndexes(t *testing.T) {
	g := newTestGateway()
	g.cacheChannel(textChannel("100", "general"))
	g.onChannelDelete(nil, &discordgo.ChannelDelete{Channel: textChannel("100", "general")})

	_, ok := g.ChannelByName("general")
	assert.False(t, ok)
	assert.Empty(t, g.channelName("100"))
}
