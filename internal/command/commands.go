package command

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cumodsquad/squadbot/internal/members"
	"github.com/cumodsquad/squadbot/pkg/types"
)

const maxUnfilteredResults = 5

// RegisterAll registers the full command set on r.
func RegisterAll(r *Registry) error {
	cmds := []*Command{
		helpCommand(r),
		assistCommand(r.prefix),
		botinfoCommand(),
		contribsCommand(),
		issuesCommand(r.prefix),
		prsCommand(r.prefix),
		reposCommand(r.prefix),
		statusCommand(r.prefix),
		tipsCommand(r.prefix),
		useraddCommand(r.prefix),
		userdelCommand(r.prefix),
		usermodCommand(r.prefix),
		userlistCommand(r.prefix),
		whoisCommand(r.prefix),
	}
	for _, cmd := range cmds {
		if err := r.Register(cmd); err != nil {
			return err
		}
	}
	return nil
}

func helpCommand(r *Registry) *Command {
	return &Command{
		Name: "help",
		Help: "The command " + r.prefix + "help displays help for using the various available bot commands.\n" +
			"\nUsage: " + r.prefix + "help [command]",
		Needs: []Capability{CapReplySender},
		Exec: func(inv *Invocation) {
			if len(inv.Args) > 0 {
				if cmd, ok := r.Lookup(inv.Args[0]); ok {
					inv.Reply(cmd.Help)
				}
				return
			}
			inv.Reply(r.commands["help"].Help + "\n\nAvailable commands: " + strings.Join(r.Names(), ", "))
		},
	}
}

func assistCommand(prefix string) *Command {
	return &Command{
		Name: "assist",
		Help: "The command " + prefix + "assist displays current Trello cards in the 'Need Assistance' list.\n" +
			"\nUsage: " + prefix + "assist",
		Needs: []Capability{CapReplySender, CapQueryAssists},
		Exec: func(inv *Invocation) {
			assists, err := inv.Deps.Assists(inv.Ctx)
			if err != nil {
				inv.Reply(err.Error())
				return
			}
			if len(assists) == 0 {
				inv.Reply("No Trello cards currently marked as needing assistance.")
				return
			}
			var sb strings.Builder
			fmt.Fprintf(&sb, "There are currently %d Trello cards marked as needing assistance:", len(assists))
			for i, card := range assists {
				fmt.Fprintf(&sb, "\n   %d: %s", i+1, card.URL)
			}
			inv.Reply(sb.String())
		},
	}
}

func botinfoCommand() *Command {
	return &Command{
		Name:  "botinfo",
		Help:  "The command displays information about this chatbot.",
		Needs: []Capability{CapReplySender},
		Exec: func(inv *Invocation) {
			inv.Reply("SquadBot is written in Go. Source code for the bot can be found here: " +
				"https://github.com/cumodsquad/squadbot\n\nMuch thanks to the CU Mod Squad for their help.")
		},
	}
}

func contribsCommand() *Command {
	return &Command{
		Name:  "contribs",
		Help:  "The command displays all contributors to monitored GitHub organizations.",
		Needs: []Capability{CapReplySender, CapQueryContribs},
		Exec: func(inv *Invocation) {
			contribs, err := inv.Deps.Contributors(inv.Ctx)
			if err != nil {
				inv.Reply(err.Error())
				return
			}
			if len(contribs) == 0 {
				inv.Reply("No contributors found for monitored GitHub organizations.")
				return
			}
			inv.Reply("Contributing users to all monitored GitHub organizations: " + strings.Join(contribs, ", "))
		},
	}
}

// listQueryExec is the shared handler shape of the issues and prs commands:
// optional filter, first five results when unfiltered, full list otherwise.
func listQueryExec(
	noun string,
	query func(inv *Invocation, filter string) ([]Link, error),
) func(inv *Invocation) {
	return func(inv *Invocation) {
		filter := ""
		targetText := "all monitored GitHub organizations"
		if len(inv.Args) > 0 {
			filter = inv.Args[0]
			targetText = "the GitHub filter '" + filter + "'"
		}

		items, err := query(inv, filter)
		if err != nil {
			inv.Reply(err.Error())
			return
		}
		if len(items) == 0 {
			inv.Reply(fmt.Sprintf("No %ss found for %s.", noun, targetText))
			return
		}

		truncated := filter == "" && len(items) > maxUnfilteredResults
		shown := items
		if truncated {
			shown = items[:maxUnfilteredResults]
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "There are currently %d %ss open against %s:", len(items), noun, targetText)
		for i, item := range shown {
			fmt.Fprintf(&sb, "\n   %d: %s", i+1, item.URL)
		}
		if truncated {
			fmt.Fprintf(&sb, "\n To display more than the first %d %ss, include a filter in your command.",
				maxUnfilteredResults, noun)
		}
		inv.Reply(sb.String())
	}
}

func issuesCommand(prefix string) *Command {
	return &Command{
		Name: "issues",
		Help: "The command " + prefix + "issues displays current issues for all monitored GitHub organizations.\n" +
			"\nUsage: " + prefix + "issues [filter]" +
			"\nIf [filter] is specified, displayed issues will be filtered. Otherwise, issues for all monitored organizations will be displayed.",
		Needs: []Capability{CapReplySender, CapQueryOpenIssues},
		Exec: listQueryExec("issue", func(inv *Invocation, filter string) ([]Link, error) {
			return inv.Deps.OpenIssues(inv.Ctx, filter)
		}),
	}
}

func prsCommand(prefix string) *Command {
	return &Command{
		Name: "prs",
		Help: "The command " + prefix + "prs displays current pull requests for all monitored GitHub organizations.\n" +
			"\nUsage: " + prefix + "prs [filter]" +
			"\nIf [filter] is specified, displayed pull requests will be filtered. Otherwise, pull requests for all monitored organizations will be displayed.",
		Needs: []Capability{CapReplySender, CapQueryOpenPRs},
		Exec: listQueryExec("pull request", func(inv *Invocation, filter string) ([]Link, error) {
			return inv.Deps.OpenPRs(inv.Ctx, filter)
		}),
	}
}

func reposCommand(prefix string) *Command {
	return &Command{
		Name: "repos",
		Help: "The command " + prefix + "repos displays current repositories for monitored GitHub organizations.\n" +
			"\nUsage: " + prefix + "repos [organization]" +
			"\nIf [organization] is specified, displayed repositories will be filtered. Otherwise, repositories for all monitored organizations will be displayed.",
		Needs: []Capability{CapReplySender, CapQueryRepos},
		Exec: func(inv *Invocation) {
			org := ""
			targetText := "all monitored GitHub organizations"
			if len(inv.Args) > 0 {
				org = inv.Args[0]
				targetText = "the GitHub organization '" + org + "'"
			}

			repos, err := inv.Deps.Repos(inv.Ctx, org)
			if err != nil {
				inv.Reply(err.Error())
				return
			}
			if len(repos) == 0 {
				inv.Reply("No repositories found for " + targetText + ".")
				return
			}
			var sb strings.Builder
			fmt.Fprintf(&sb, "There are currently %d repositories within %s:", len(repos), targetText)
			for i, repo := range repos {
				fmt.Fprintf(&sb, "\n   %d: %s - %s", i+1, repo.Name, repo.URL)
			}
			inv.Reply(sb.String())
		},
	}
}

func statusCommand(prefix string) *Command {
	return &Command{
		Name: "status",
		Help: "The command " + prefix + "status checks whether a game server is currently online.\n" +
			"\nUsage: " + prefix + "status <server>",
		Needs: []Capability{CapReplySender, CapServerStatus},
		Exec: func(inv *Invocation) {
			if len(inv.Args) < 1 {
				inv.Reply("Usage: " + prefix + "status <server>")
				return
			}
			name := inv.Args[0]
			up, err := inv.Deps.ServerUp(inv.Ctx, name)
			if err != nil || !up {
				inv.Reply("The server '" + name + "' appears to be offline.")
				return
			}
			inv.Reply("The server '" + name + "' is currently online.")
		},
	}
}

func tipsCommand(prefix string) *Command {
	return &Command{
		Name: "tips",
		Help: "The command " + prefix + "tips displays tips for new Mod Squad members.\n" +
			"\nUsage: " + prefix + "tips [user|chat]" +
			"\nIf [user] is specified, tips will be sent to that user. If 'chat' is specified as the user, tips will be sent to chat.",
		Needs: []Capability{CapReplySender},
		Exec: func(inv *Invocation) {
			const tipsText = "Quick Tips: Welcome to the Mod Squad. Read the pinned messages, " +
				"introduce yourself, and ask in chat if you get stuck."

			wasPublic := !inv.Message.IsDirect
			if len(inv.Args) > 0 && strings.EqualFold(inv.Args[0], "chat") {
				inv.Reply(tipsText)
				return
			}
			if wasPublic {
				// Tips requested in a room go to the requester privately to
				// avoid spamming the channel.
				inv.Reply("Tips sent to " + inv.Message.Author + ".")
				inv.ReplyDirect(tipsText)
				return
			}
			inv.Reply(tipsText)
		},
	}
}

func useraddCommand(prefix string) *Command {
	usage := "Usage: " + prefix + "useradd <Chat User Name> <GitHub User Name> <Trello User Name>"
	return &Command{
		Name: "useradd",
		Help: "The command " + prefix + "useradd adds a user to the Mod Squad member list.\n" +
			"\n" + usage + "\n" +
			"\nIf a GitHub user name or Trello user name is unknown, enter 'none' for that item.",
		Needs: []Capability{CapReplySender, CapMemberDirectory, CapLookupGithubUser, CapLookupTrelloUser},
		Exec: func(inv *Invocation) {
			if !inv.IsAuthorized {
				inv.Reply("You do not have permission to add a user.")
				return
			}
			if len(inv.Args) != 3 {
				inv.Reply(usage)
				return
			}

			chatName := inv.Args[0]
			githubName := inv.Args[1]
			trelloName := strings.TrimPrefix(inv.Args[2], "@")

			if _, exists := inv.Deps.Members.Get(chatName); exists {
				inv.Reply("The user '" + chatName + "' already exists.")
				return
			}

			// Validate both service handles before recording anything.
			var trelloFullName string
			g, ctx := errgroup.WithContext(inv.Ctx)
			g.Go(func() error {
				return inv.Deps.GithubUser(ctx, githubName)
			})
			g.Go(func() error {
				name, err := inv.Deps.TrelloUser(ctx, trelloName)
				trelloFullName = name
				return err
			})
			if err := g.Wait(); err != nil {
				inv.Reply(err.Error())
				return
			}

			err := inv.Deps.Members.Add(types.MemberRecord{
				ChatHandle:   chatName,
				GithubHandle: githubName,
				TrelloHandle: trelloName,
				TrelloName:   trelloFullName,
				AddedAt:      time.Now().UTC(),
			})
			if errors.Is(err, members.ErrExists) {
				inv.Reply("The user '" + chatName + "' already exists.")
				return
			}
			if err != nil {
				inv.logger.Error("failed to persist member list", zap.Error(err))
				return
			}
			inv.Reply("User '" + chatName + "' added to the Mod Squad member list.")
		},
	}
}

func userdelCommand(prefix string) *Command {
	return &Command{
		Name: "userdel",
		Help: "The command " + prefix + "userdel removes a user from the Mod Squad member list.\n" +
			"\nUsage: " + prefix + "userdel <Chat User Name>",
		Needs: []Capability{CapReplySender, CapMemberDirectory},
		Exec: func(inv *Invocation) {
			if !inv.IsAuthorized {
				inv.Reply("You do not have permission to delete a user.")
				return
			}
			if len(inv.Args) < 1 {
				inv.Reply("You must supply a user name to delete. Type " + prefix + "help userdel for information.")
				return
			}

			name := inv.Args[0]
			err := inv.Deps.Members.Remove(name)
			if errors.Is(err, members.ErrNotFound) {
				inv.Reply("The user '" + name + "' does not exist in the Mod Squad member list.")
				return
			}
			if err != nil {
				inv.logger.Error("failed to persist member list", zap.Error(err))
				return
			}
			inv.Reply("The user '" + name + "' has been deleted from the Mod Squad member list.")
		},
	}
}

func usermodCommand(prefix string) *Command {
	return &Command{
		Name: "usermod",
		Help: "The command " + prefix + "usermod modifies a user in the Mod Squad member list.\n" +
			"\nUsage: " + prefix + "usermod <Chat User Name> <parameters>\n" +
			"\nAvailable Parameters:" +
			"\n  -g <GitHub User Name> = Specify a new GitHub user name for the Mod Squad member" +
			"\n  -t <Trello User Name> = Specify a new Trello user name for the Mod Squad member",
		Needs: []Capability{CapReplySender, CapMemberDirectory, CapLookupGithubUser, CapLookupTrelloUser},
		Exec: func(inv *Invocation) {
			if !inv.IsAuthorized {
				inv.Reply("You do not have permission to modify a user.")
				return
			}
			if len(inv.Args) < 1 {
				inv.Reply("You must provide a user name to modify. Type `" + prefix + "help usermod` for help.")
				return
			}

			name := inv.Args[0]
			if _, exists := inv.Deps.Members.Get(name); !exists {
				inv.Reply("The user '" + name + "' does not exist in the Mod Squad member list.")
				return
			}

			var newGithub, newTrello string
			for i := 1; i < len(inv.Args); i++ {
				switch inv.Args[i] {
				case "-g":
					if i+1 >= len(inv.Args) || strings.HasPrefix(inv.Args[i+1], "-") {
						inv.Reply("The value following '-g' must be a user name.")
						return
					}
					newGithub = inv.Args[i+1]
					i++
				case "-t":
					if i+1 >= len(inv.Args) || strings.HasPrefix(inv.Args[i+1], "-") {
						inv.Reply("The value following '-t' must be a user name.")
						return
					}
					newTrello = strings.TrimPrefix(inv.Args[i+1], "@")
					i++
				}
			}
			if newGithub == "" && newTrello == "" {
				inv.Reply("No parameters specified. Type `" + prefix + "help usermod` for help.")
				return
			}

			var trelloFullName string
			g, ctx := errgroup.WithContext(inv.Ctx)
			if newGithub != "" {
				g.Go(func() error {
					return inv.Deps.GithubUser(ctx, newGithub)
				})
			}
			if newTrello != "" {
				g.Go(func() error {
					fullName, err := inv.Deps.TrelloUser(ctx, newTrello)
					trelloFullName = fullName
					return err
				})
			}
			if err := g.Wait(); err != nil {
				inv.Reply(err.Error())
				return
			}

			err := inv.Deps.Members.Update(name, newGithub, newTrello, trelloFullName)
			if errors.Is(err, members.ErrNotFound) {
				inv.Reply("The user '" + name + "' does not exist in the Mod Squad member list.")
				return
			}
			if err != nil {
				inv.logger.Error("failed to persist member list", zap.Error(err))
				return
			}
			inv.Reply("User '" + name + "' has been modified.")
		},
	}
}

func userlistCommand(prefix string) *Command {
	return &Command{
		Name: "userlist",
		Help: "The command " + prefix + "userlist displays all users in the Mod Squad member list.\n" +
			"\nUsage: " + prefix + "userlist",
		Needs: []Capability{CapReplySender, CapMemberDirectory},
		Exec: func(inv *Invocation) {
			wasPublic := !inv.Message.IsDirect
			if wasPublic {
				inv.Reply("Mod Squad member list sent to " + inv.Message.Author + ".")
			}

			var sb strings.Builder
			sb.WriteString("The following users are members of the Mod Squad:")
			for i, rec := range inv.Deps.Members.List() {
				fmt.Fprintf(&sb, "\n #%d) %s", i+1, memberSummary(rec))
			}

			if wasPublic {
				inv.ReplyDirect(sb.String())
			} else {
				inv.Reply(sb.String())
			}
		},
	}
}

func whoisCommand(prefix string) *Command {
	return &Command{
		Name: "whois",
		Help: "The command " + prefix + "whois displays information about a particular Mod Squad member.\n" +
			"\nUsage: " + prefix + "whois <username>",
		Needs: []Capability{CapReplySender, CapMemberDirectory},
		Exec: func(inv *Invocation) {
			if len(inv.Args) < 1 {
				inv.Reply("You must supply a user name.")
				return
			}
			name := inv.Args[0]
			matches := inv.Deps.Members.Find(name)
			if len(matches) == 0 {
				inv.Reply("No user named '" + name + "' exists in the Mod Squad member list.")
				return
			}
			lines := make([]string, 0, len(matches))
			for _, rec := range matches {
				lines = append(lines, memberSummary(rec))
			}
			inv.Reply(strings.Join(lines, "\n"))
		},
	}
}

func memberSummary(rec types.MemberRecord) string {
	return fmt.Sprintf("%s is known as %s on GitHub and %s (@%s) on Trello.",
		rec.ChatHandle, rec.GithubHandle, rec.TrelloName, rec.TrelloHandle)
}
