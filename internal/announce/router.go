// Package announce fans classified events out to the configured chat rooms.
package announce

import (
	"go.uber.org/zap"

	"github.com/cumodsquad/squadbot/pkg/types"
)

// Sender posts a message to a chat channel.
type Sender interface {
	Send(channelID, text string) error
}

// Resolver maps a channel name to its platform identifier. Channels that
// have not been seen yet resolve to false.
type Resolver interface {
	ChannelByName(name string) (string, bool)
}

// Router delivers announcements best-effort. Each source group has its own
// room list; rooms that cannot be resolved are skipped, never queued.
type Router struct {
	sender      Sender
	resolver    Resolver
	githubRooms []string
	trelloRooms []string
	logger      *zap.Logger
}

// NewRouter creates an announcement router.
func NewRouter(sender Sender, resolver Resolver, githubRooms, trelloRooms []string, logger *zap.Logger) *Router {
	return &Router{
		sender:      sender,
		resolver:    resolver,
		githubRooms: githubRooms,
		trelloRooms: trelloRooms,
		logger:      logger,
	}
}

// Announce sends the event's text to every room configured for its source.
func (r *Router) Announce(ev types.ClassifiedEvent) {
	var rooms []string
	var prefix string
	switch ev.Source {
	case types.SourceGithub:
		rooms = r.githubRooms
		prefix = ":floppy_disk: "
	case types.SourceTrello:
		rooms = r.trelloRooms
		prefix = ":card_box: "
	default:
		return
	}

	for _, room := range rooms {
		channelID, ok := r.resolver.ChannelByName(room)
		if !ok {
			r.logger.Debug("announce room not resolved, skipping",
				zap.String("room", room),
				zap.String("category", string(ev.Category)),
			)
			continue
		}
		if err := r.sender.Send(channelID, prefix+ev.DisplayText); err != nil {
			r.logger.Error("failed to send announcement",
				zap.String("room", room),
				zap.Error(err),
			)
		}
	}
}
