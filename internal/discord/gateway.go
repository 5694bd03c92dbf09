// Package discord adapts the Discord gateway to the platform-neutral chat
// interfaces the rest of the bot works against.
package discord

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/cumodsquad/squadbot/internal/command"
)

// Gateway owns the Discord session. It feeds inbound messages to the
// command registry and exposes sending and channel resolution to the
// announcement side.
type Gateway struct {
	session      *discordgo.Session
	registry     *command.Registry
	elevatedRole string
	logger       *zap.Logger

	mu           sync.RWMutex
	channelIDs   map[string]string // lowercased channel name -> ID
	channelNames map[string]string // ID -> channel name
}

// NewGateway creates an unopened gateway for the given bot token. Messages
// authored by users holding elevatedRole dispatch with the elevated flag
// set. The command registry is attached separately, after its dependencies
// (which include this gateway) have been bound.
func NewGateway(token, elevatedRole string, logger *zap.Logger) (*Gateway, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	g := &Gateway{
		session:      session,
		elevatedRole: elevatedRole,
		logger:       logger,
		channelIDs:   make(map[string]string),
		channelNames: make(map[string]string),
	}

	session.AddHandler(g.onGuildCreate)
	session.AddHandler(g.onChannelCreate)
	session.AddHandler(g.onChannelUpdate)
	session.AddHandler(g.onChannelDelete)
	session.AddHandler(g.onMessageCreate)

	return g, nil
}

// AttachRegistry sets the registry inbound messages dispatch to. Must be
// called before Open.
func (g *Gateway) AttachRegistry(r *command.Registry) {
	g.registry = r
}

// Open connects to the gateway and starts receiving events.
func (g *Gateway) Open() error {
	if err := g.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	return nil
}

// Close disconnects from the gateway.
func (g *Gateway) Close() error {
	return g.session.Close()
}

func (g *Gateway) onGuildCreate(_ *discordgo.Session, ev *discordgo.GuildCreate) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, ch := range ev.Channels {
		if ch.Type != discordgo.ChannelTypeGuildText {
			continue
		}
		g.channelIDs[strings.ToLower(ch.Name)] = ch.ID
		g.channelNames[ch.ID] = ch.Name
	}
}

func (g *Gateway) onChannelCreate(_ *discordgo.Session, ev *discordgo.ChannelCreate) {
	g.cacheChannel(ev.Channel)
}

func (g *Gateway) onChannelUpdate(_ *discordgo.Session, ev *discordgo.ChannelUpdate) {
	g.cacheChannel(ev.Channel)
}

func (g *Gateway) onChannelDelete(_ *discordgo.Session, ev *discordgo.ChannelDelete) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.channelIDs, strings.ToLower(ev.Name))
	delete(g.channelNames, ev.ID)
}

func (g *Gateway) cacheChannel(ch *discordgo.Channel) {
	if ch.Type != discordgo.ChannelTypeGuildText {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if old, ok := g.channelNames[ch.ID]; ok && !strings.EqualFold(old, ch.Name) {
		delete(g.channelIDs, strings.ToLower(old))
	}
	g.channelIDs[strings.ToLower(ch.Name)] = ch.ID
	g.channelNames[ch.ID] = ch.Name
}

func (g *Gateway) onMessageCreate(s *discordgo.Session, ev *discordgo.MessageCreate) {
	if g.registry == nil {
		return
	}
	if s.State.User != nil && ev.Author.ID == s.State.User.ID {
		return
	}

	g.registry.Dispatch(context.Background(), command.IncomingMessage{
		Author:          ev.Author.Username,
		AuthorID:        ev.Author.ID,
		ChannelID:       ev.ChannelID,
		ChannelName:     g.channelName(ev.ChannelID),
		Content:         ev.Content,
		IsDirect:        ev.GuildID == "",
		HasElevatedRole: g.hasElevatedRole(s, ev),
	})
}

func (g *Gateway) channelName(id string) string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.channelNames[id]
}

// hasElevatedRole reports whether the author of ev carries the configured
// elevated role in the originating guild.
func (g *Gateway) hasElevatedRole(s *discordgo.Session, ev *discordgo.MessageCreate) bool {
	if g.elevatedRole == "" || ev.GuildID == "" || ev.Member == nil {
		return false
	}
	for _, roleID := range ev.Member.Roles {
		role, err := s.State.Role(ev.GuildID, roleID)
		if err != nil {
			continue
		}
		if strings.EqualFold(role.Name, g.elevatedRole) {
			return true
		}
	}
	return false
}

// ChannelByName resolves a channel name to its ID. Names are matched
// case-insensitively.
func (g *Gateway) ChannelByName(name string) (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	id, ok := g.channelIDs[strings.ToLower(name)]
	return id, ok
}

// Send posts text to a channel by ID.
func (g *Gateway) Send(channelID, text string) error {
	if _, err := g.session.ChannelMessageSend(channelID, text); err != nil {
		return fmt.Errorf("failed to send message to channel %s: %w", channelID, err)
	}
	return nil
}

// Reply posts text to the channel the message came from.
func (g *Gateway) Reply(msg command.IncomingMessage, text string) error {
	return g.Send(msg.ChannelID, text)
}

// ReplyDirect posts text to the author's DM channel, creating it if needed.
func (g *Gateway) ReplyDirect(msg command.IncomingMessage, text string) error {
	ch, err := g.session.UserChannelCreate(msg.AuthorID)
	if err != nil {
		return fmt.Errorf("failed to open DM channel for %s: %w", msg.Author, err)
	}
	return g.Send(ch.ID, text)
}
