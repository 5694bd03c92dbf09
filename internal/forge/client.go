// Package forge wraps the GitHub API with the capabilities the bot consumes:
// bulk activity for the poller and the query surface behind chat commands.
package forge

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/cumodsquad/squadbot/internal/command"
	"github.com/cumodsquad/squadbot/pkg/types"
)

// Client wraps the GitHub API for a fixed set of monitored organizations.
type Client struct {
	apiClient *github.Client
	orgs      []string
	logger    *zap.Logger
}

// NewClient creates a GitHub client authenticated with accessToken. Every
// request shares the given timeout.
func NewClient(accessToken string, orgs []string, timeout time.Duration, logger *zap.Logger) *Client {
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: accessToken},
	)
	tc := oauth2.NewClient(context.Background(), ts)
	tc.Timeout = timeout

	return &Client{
		apiClient: github.NewClient(tc),
		orgs:      orgs,
		logger:    logger,
	}
}

// Orgs returns the monitored organization names.
func (c *Client) Orgs() []string {
	out := make([]string, len(c.orgs))
	copy(out, c.orgs)
	return out
}

// OrgActivity fetches the recent event stream for one organization and
// normalizes the event types the bot announces. Unhandled event types are
// skipped.
func (c *Client) OrgActivity(ctx context.Context, org string) ([]types.RawActivityRecord, error) {
	events, _, err := c.apiClient.Activity.ListEventsForOrganization(ctx, org, &github.ListOptions{PerPage: 100})
	if err != nil {
		return nil, fmt.Errorf("failed to list events for org %s: %w", org, err)
	}

	records := make([]types.RawActivityRecord, 0, len(events))
	for _, ev := range events {
		payload, err := ev.ParsePayload()
		if err != nil {
			continue
		}

		rec := types.RawActivityRecord{
			Source:   types.SourceGithub,
			Actor:    ev.GetActor().GetLogin(),
			RepoName: ev.GetRepo().GetName(),
		}

		switch p := payload.(type) {
		case *github.IssuesEvent:
			issue := p.GetIssue()
			rec.Action = p.GetAction()
			rec.SubjectID = issue.GetHTMLURL()
			rec.URL = issue.GetHTMLURL()
			rec.CreatedAt = issue.GetCreatedAt().Time
			rec.UpdatedAt = issue.GetUpdatedAt().Time
		case *github.PullRequestEvent:
			pr := p.GetPullRequest()
			rec.IsPullRequest = true
			rec.Action = p.GetAction()
			rec.SubjectID = pr.GetHTMLURL()
			rec.URL = pr.GetHTMLURL()
			rec.CreatedAt = pr.GetCreatedAt().Time
			rec.UpdatedAt = pr.GetUpdatedAt().Time
		case *github.IssueCommentEvent:
			issue := p.GetIssue()
			rec.IsComment = true
			rec.IsPullRequest = issue.IsPullRequest()
			rec.Action = p.GetAction()
			rec.SubjectID = issue.GetHTMLURL()
			rec.URL = issue.GetHTMLURL()
			rec.CreatedAt = issue.GetCreatedAt().Time
			rec.UpdatedAt = issue.GetUpdatedAt().Time
		default:
			continue
		}

		records = append(records, rec)
	}

	return records, nil
}

// User verifies that handle names a real GitHub account. The sentinel value
// "none" is accepted without a lookup; the returned error text is meant to
// be shown to the requesting user.
func (c *Client) User(ctx context.Context, handle string) error {
	if handle == "" {
		return fmt.Errorf("No GitHub username specified.")
	}
	if strings.EqualFold(handle, "none") {
		return nil
	}

	_, _, err := c.apiClient.Users.Get(ctx, handle)
	if err != nil {
		c.logger.Error("failed to look up github user", zap.String("handle", handle), zap.Error(err))
		return fmt.Errorf("The name '%s' is not a valid GitHub user name.", handle)
	}
	return nil
}

// Repos returns the repositories of one monitored organization, or of all of
// them when org is empty. Naming an unmonitored organization is a user
// error.
func (c *Client) Repos(ctx context.Context, org string) ([]command.Link, error) {
	repos, err := c.repoList(ctx, org)
	if err != nil {
		return nil, err
	}

	links := make([]command.Link, 0, len(repos))
	for _, repo := range repos {
		links = append(links, command.Link{
			Name: repo.GetFullName(),
			URL:  repo.GetHTMLURL(),
		})
	}
	return links, nil
}

// OpenIssues returns the open issues across the monitored organizations.
// filter is empty, an organization name, a repository name, or "org/repo".
func (c *Client) OpenIssues(ctx context.Context, filter string) ([]command.Link, error) {
	return c.searchOpen(ctx, filter, func(ctx context.Context, owner, name string) ([]command.Link, error) {
		query := fmt.Sprintf("user:%s repo:%s state:open is:issue", owner, name)
		result, _, err := c.apiClient.Search.Issues(ctx, query, nil)
		if err != nil {
			return nil, err
		}
		links := make([]command.Link, 0, len(result.Issues))
		for _, issue := range result.Issues {
			links = append(links, command.Link{Name: issue.GetTitle(), URL: issue.GetHTMLURL()})
		}
		return links, nil
	})
}

// OpenPullRequests returns the open pull requests across the monitored
// organizations, with the same filter grammar as OpenIssues.
func (c *Client) OpenPullRequests(ctx context.Context, filter string) ([]command.Link, error) {
	return c.searchOpen(ctx, filter, func(ctx context.Context, owner, name string) ([]command.Link, error) {
		prs, _, err := c.apiClient.PullRequests.List(ctx, owner, name, &github.PullRequestListOptions{State: "open"})
		if err != nil {
			return nil, err
		}
		links := make([]command.Link, 0, len(prs))
		for _, pr := range prs {
			links = append(links, command.Link{Name: pr.GetTitle(), URL: pr.GetHTMLURL()})
		}
		return links, nil
	})
}

// Contributors returns the contributor logins across every monitored
// repository, deduplicated, in first-seen order.
func (c *Client) Contributors(ctx context.Context) ([]string, error) {
	repos, err := c.repoList(ctx, "")
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	logins := make([][]string, len(repos))
	g := new(errgroup.Group)
	for i, repo := range repos {
		i, repo := i, repo
		g.Go(func() error {
			contribs, _, err := c.apiClient.Repositories.ListContributors(ctx, repo.GetOwner().GetLogin(), repo.GetName(), nil)
			if err != nil {
				c.logger.Error("failed to list contributors",
					zap.String("repo", repo.GetFullName()),
					zap.Error(err),
				)
				return nil
			}
			names := make([]string, 0, len(contribs))
			for _, contrib := range contribs {
				names = append(names, contrib.GetLogin())
			}
			mu.Lock()
			logins[i] = names
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	seen := make(map[string]bool)
	var out []string
	for _, names := range logins {
		for _, name := range names {
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	return out, nil
}

// parseFilter splits the issues/prs filter grammar into an optional org and
// an optional repo name. An explicit org must be monitored.
func (c *Client) parseFilter(filter string) (org, repo string, err error) {
	if filter == "" {
		return "", "", nil
	}
	if strings.Contains(filter, "/") {
		parts := strings.SplitN(filter, "/", 2)
		if !c.isMonitoredOrg(parts[0]) {
			return "", "", fmt.Errorf("The organization named '%s' is not a monitored GitHub organization.", parts[0])
		}
		return parts[0], parts[1], nil
	}
	if c.isMonitoredOrg(filter) {
		return filter, "", nil
	}
	return "", filter, nil
}

func (c *Client) isMonitoredOrg(name string) bool {
	for _, org := range c.orgs {
		if strings.EqualFold(org, name) {
			return true
		}
	}
	return false
}

// searchOpen runs query against every repository matching filter, fanning
// out per repo. A failing repo is logged and excluded from the result.
func (c *Client) searchOpen(
	ctx context.Context,
	filter string,
	query func(ctx context.Context, owner, name string) ([]command.Link, error),
) ([]command.Link, error) {
	org, repoName, err := c.parseFilter(filter)
	if err != nil {
		return nil, err
	}

	repos, err := c.repoList(ctx, org)
	if err != nil {
		return nil, err
	}
	if repoName != "" {
		filtered := repos[:0]
		for _, repo := range repos {
			if strings.EqualFold(repo.GetName(), repoName) {
				filtered = append(filtered, repo)
			}
		}
		repos = filtered
	}

	var mu sync.Mutex
	results := make([][]command.Link, len(repos))
	g := new(errgroup.Group)
	for i, repo := range repos {
		i, repo := i, repo
		g.Go(func() error {
			links, err := query(ctx, repo.GetOwner().GetLogin(), repo.GetName())
			if err != nil {
				c.logger.Error("failed to query repository",
					zap.String("repo", repo.GetFullName()),
					zap.Error(err),
				)
				return nil
			}
			mu.Lock()
			results[i] = links
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	var out []command.Link
	for _, links := range results {
		out = append(out, links...)
	}
	return out, nil
}

// repoList fetches the repositories of org, or of every monitored org when
// org is empty. A failing org is logged and excluded; naming an unmonitored
// org is a user error.
func (c *Client) repoList(ctx context.Context, org string) ([]*github.Repository, error) {
	orgs := c.orgs
	if org != "" {
		if !c.isMonitoredOrg(org) {
			return nil, fmt.Errorf("Not currently monitoring an organization named '%s'.", org)
		}
		orgs = []string{org}
	}

	var (
		mu    sync.Mutex
		repos []*github.Repository
	)
	g := new(errgroup.Group)
	for _, name := range orgs {
		name := name
		g.Go(func() error {
			list, _, err := c.apiClient.Repositories.ListByOrg(ctx, name, &github.RepositoryListByOrgOptions{
				ListOptions: github.ListOptions{PerPage: 100},
			})
			if err != nil {
				c.logger.Error("failed to list repositories", zap.String("org", name), zap.Error(err))
				return nil
			}
			mu.Lock()
			repos = append(repos, list...)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	return repos, nil
}
