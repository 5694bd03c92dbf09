// Package command implements the chat command registry and dispatch.
package command

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cumodsquad/squadbot/internal/members"
)

// Capability names a dependency a command declares needing. Every declared
// capability must have a binding at startup; a missing binding is a
// configuration error, never a runtime one.
type Capability string

const (
	CapReplySender      Capability = "reply-sender"
	CapMemberDirectory  Capability = "member-directory"
	CapQueryOpenIssues  Capability = "query-open-issues"
	CapQueryOpenPRs     Capability = "query-open-prs"
	CapQueryRepos       Capability = "query-repos"
	CapQueryContribs    Capability = "query-contributors"
	CapQueryAssists     Capability = "query-assists"
	CapLookupGithubUser Capability = "lookup-github-user"
	CapLookupTrelloUser Capability = "lookup-trello-user"
	CapServerStatus     Capability = "server-status"
)

// Link is a named URL returned by the query capabilities.
type Link struct {
	Name string
	URL  string
}

// Replier sends replies bound to the message being handled.
type Replier interface {
	Reply(msg IncomingMessage, text string) error
	ReplyDirect(msg IncomingMessage, text string) error
}

// Deps holds the concrete bindings for every capability. Fields are typed;
// the registry checks at startup that each command's declared needs map to a
// non-nil binding.
type Deps struct {
	Replier      Replier
	Members      *members.Directory
	OpenIssues   func(ctx context.Context, filter string) ([]Link, error)
	OpenPRs      func(ctx context.Context, filter string) ([]Link, error)
	Repos        func(ctx context.Context, org string) ([]Link, error)
	Contributors func(ctx context.Context) ([]string, error)
	Assists      func(ctx context.Context) ([]Link, error)
	GithubUser   func(ctx context.Context, handle string) error
	TrelloUser   func(ctx context.Context, handle string) (string, error)
	ServerUp     func(ctx context.Context, name string) (bool, error)
}

func (d Deps) satisfies(c Capability) bool {
	switch c {
	case CapReplySender:
		return d.Replier != nil
	case CapMemberDirectory:
		return d.Members != nil
	case CapQueryOpenIssues:
		return d.OpenIssues != nil
	case CapQueryOpenPRs:
		return d.OpenPRs != nil
	case CapQueryRepos:
		return d.Repos != nil
	case CapQueryContribs:
		return d.Contributors != nil
	case CapQueryAssists:
		return d.Assists != nil
	case CapLookupGithubUser:
		return d.GithubUser != nil
	case CapLookupTrelloUser:
		return d.TrelloUser != nil
	case CapServerStatus:
		return d.ServerUp != nil
	default:
		return false
	}
}

// IncomingMessage is the platform-neutral view of one chat message. The
// platform adapter fills HasElevatedRole from the author's roles in the
// originating room.
type IncomingMessage struct {
	Author          string
	AuthorID        string
	ChannelID       string
	ChannelName     string
	Content         string
	IsDirect        bool
	HasElevatedRole bool
}

// Command is a named, statically registered unit of chat behavior.
type Command struct {
	Name  string
	Help  string
	Needs []Capability
	Exec  func(inv *Invocation)
}

// Invocation carries everything a handler gets for one dispatch. It is
// built fresh per message and discarded when the handler returns.
type Invocation struct {
	Ctx          context.Context
	Args         []string
	IsAuthorized bool
	Message      IncomingMessage
	Deps         Deps

	logger *zap.Logger
}

// Reply sends one reply to where the message came from. Send failures are
// logged, not propagated; a handler's reply is best-effort.
func (inv *Invocation) Reply(text string) {
	if err := inv.Deps.Replier.Reply(inv.Message, text); err != nil {
		inv.logger.Error("failed to send reply",
			zap.String("author", inv.Message.Author),
			zap.Error(err),
		)
	}
}

// ReplyDirect sends one private reply to the message author.
func (inv *Invocation) ReplyDirect(text string) {
	if err := inv.Deps.Replier.ReplyDirect(inv.Message, text); err != nil {
		inv.logger.Error("failed to send direct reply",
			zap.String("author", inv.Message.Author),
			zap.Error(err),
		)
	}
}

// Registry resolves incoming messages to commands and dispatches them.
type Registry struct {
	prefix       string
	commandRooms map[string]bool
	admins       map[string]bool
	deps         Deps
	logger       *zap.Logger

	commands map[string]*Command
	order    []string
}

// NewRegistry creates a command registry. prefix is the command character,
// commandRooms lists the room names where commands are accepted (direct
// messages are always accepted), admins is the static allow-list.
func NewRegistry(prefix string, commandRooms, admins []string, deps Deps, logger *zap.Logger) *Registry {
	rooms := make(map[string]bool, len(commandRooms))
	for _, room := range commandRooms {
		rooms[strings.ToLower(room)] = true
	}
	adminSet := make(map[string]bool, len(admins))
	for _, name := range admins {
		adminSet[strings.ToLower(name)] = true
	}

	return &Registry{
		prefix:       prefix,
		commandRooms: rooms,
		admins:       adminSet,
		deps:         deps,
		logger:       logger,
		commands:     make(map[string]*Command),
	}
}

// Register adds a command. Names are unique, ignoring case, and fixed for
// the life of the process.
func (r *Registry) Register(cmd *Command) error {
	name := strings.ToLower(cmd.Name)
	if name == "" {
		return fmt.Errorf("command name must not be empty")
	}
	if _, exists := r.commands[name]; exists {
		return fmt.Errorf("command %q registered twice", name)
	}
	r.commands[name] = cmd
	r.order = append(r.order, name)
	return nil
}

// Validate checks that every registered command's declared needs have a
// binding. Called once at startup; a failure is fatal configuration.
func (r *Registry) Validate() error {
	for _, name := range r.order {
		for _, need := range r.commands[name].Needs {
			if !r.deps.satisfies(need) {
				return fmt.Errorf("command %q needs unbound capability %q", name, need)
			}
		}
	}
	return nil
}

// Names returns the registered command names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Lookup returns the command registered under name, ignoring case.
func (r *Registry) Lookup(name string) (*Command, bool) {
	cmd, ok := r.commands[strings.ToLower(name)]
	return cmd, ok
}

// Dispatch routes one incoming message. Messages that are not commands, come
// from unauthorized rooms, or name no registered command are dropped without
// a reply. Matching handlers run on their own goroutine so dispatch never
// blocks on handler I/O.
func (r *Registry) Dispatch(ctx context.Context, msg IncomingMessage) {
	if !strings.HasPrefix(msg.Content, r.prefix) {
		return
	}
	if !msg.IsDirect && !r.commandRooms[strings.ToLower(msg.ChannelName)] {
		return
	}

	fields := strings.Fields(strings.TrimPrefix(msg.Content, r.prefix))
	if len(fields) == 0 {
		return
	}
	cmd, ok := r.commands[strings.ToLower(fields[0])]
	if !ok {
		return
	}

	inv := &Invocation{
		Ctx:          ctx,
		Args:         fields[1:],
		IsAuthorized: r.isAuthorized(msg),
		Message:      msg,
		Deps:         r.deps,
		logger:       r.logger,
	}

	dispatchedTotal.WithLabelValues(strings.ToLower(cmd.Name)).Inc()
	r.logger.Info("dispatching command",
		zap.String("command", strings.ToLower(cmd.Name)),
		zap.String("author", msg.Author),
	)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("command handler panicked",
					zap.String("command", strings.ToLower(cmd.Name)),
					zap.Any("panic", rec),
				)
			}
		}()
		cmd.Exec(inv)
	}()
}

// isAuthorized computes the context flag handlers consult for admin-only
// behavior. Authorization is not a gate here: public commands with admin
// sub-behaviors still dispatch.
func (r *Registry) isAuthorized(msg IncomingMessage) bool {
	return r.admins[strings.ToLower(msg.Author)] || msg.HasElevatedRole
}
