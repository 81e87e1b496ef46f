// Package github talks to the GitHub API and converts its wire types
// into the engine's domain types.
package github

import (
	"context"
	"fmt"
	"sort"

	gh "github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"

	"github.com/hochfrequenz/triagebot/internal/domain"
)

// API is the subset of GitHub the engine needs. Satisfied by *Client;
// tests substitute fakes.
type API interface {
	ListOpenItems(ctx context.Context, repo domain.Repo) ([]domain.Item, error)
	ListComments(ctx context.Context, repo domain.Repo, number int) ([]domain.Comment, error)
	CreateComment(ctx context.Context, repo domain.Repo, number int, body string) error
	AddLabels(ctx context.Context, repo domain.Repo, number int, labels ...string) error
	GetPullRequest(ctx context.Context, repo domain.Repo, number int) (domain.Item, error)
	CreatePullRequest(ctx context.Context, repo domain.Repo, title, body, head, base string) (domain.Item, error)
	FindPullRequestForBranch(ctx context.Context, repo domain.Repo, branch string) (domain.Item, bool, error)
}

// Client wraps the REST API with an authenticated HTTP transport.
type Client struct {
	api *gh.Client
}

func NewClient(ctx context.Context, token string) *Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return &Client{api: gh.NewClient(oauth2.NewClient(ctx, ts))}
}

// ListOpenItems fetches all open issues and pull requests, oldest
// first. The issues endpoint returns both; PRs are identified by their
// pull request link and enriched with head/base refs.
func (c *Client) ListOpenItems(ctx context.Context, repo domain.Repo) ([]domain.Item, error) {
	opts := &gh.IssueListByRepoOptions{
		State:       "open",
		Sort:        "created",
		Direction:   "asc",
		ListOptions: gh.ListOptions{PerPage: 100},
	}
	var items []domain.Item
	for {
		page, resp, err := c.api.Issues.ListByRepo(ctx, repo.Owner, repo.Name, opts)
		if err != nil {
			return nil, fmt.Errorf("list issues for %s: %w", repo, err)
		}
		for _, is := range page {
			item := issueToItem(is)
			if item.IsPR {
				pr, _, err := c.api.PullRequests.Get(ctx, repo.Owner, repo.Name, item.Number)
				if err != nil {
					return nil, fmt.Errorf("get PR #%d in %s: %w", item.Number, repo, err)
				}
				item.HeadRef = pr.GetHead().GetRef()
				item.BaseRef = pr.GetBase().GetRef()
			}
			items = append(items, item)
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return items, nil
}

// ListComments returns the item's comments in chronological order.
func (c *Client) ListComments(ctx context.Context, repo domain.Repo, number int) ([]domain.Comment, error) {
	opts := &gh.IssueListCommentsOptions{ListOptions: gh.ListOptions{PerPage: 100}}
	var comments []domain.Comment
	for {
		page, resp, err := c.api.Issues.ListComments(ctx, repo.Owner, repo.Name, number, opts)
		if err != nil {
			return nil, fmt.Errorf("list comments for %s#%d: %w", repo, number, err)
		}
		for _, cm := range page {
			comments = append(comments, domain.Comment{
				ID:        cm.GetID(),
				Author:    cm.GetUser().GetLogin(),
				Body:      cm.GetBody(),
				CreatedAt: cm.GetCreatedAt().Time,
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	sort.SliceStable(comments, func(i, j int) bool {
		return comments[i].CreatedAt.Before(comments[j].CreatedAt)
	})
	return comments, nil
}

func (c *Client) CreateComment(ctx context.Context, repo domain.Repo, number int, body string) error {
	_, _, err := c.api.Issues.CreateComment(ctx, repo.Owner, repo.Name, number, &gh.IssueComment{Body: gh.Ptr(body)})
	if err != nil {
		return fmt.Errorf("comment on %s#%d: %w", repo, number, err)
	}
	return nil
}

func (c *Client) AddLabels(ctx context.Context, repo domain.Repo, number int, labels ...string) error {
	_, _, err := c.api.Issues.AddLabelsToIssue(ctx, repo.Owner, repo.Name, number, labels)
	if err != nil {
		return fmt.Errorf("label %s#%d: %w", repo, number, err)
	}
	return nil
}

func (c *Client) GetPullRequest(ctx context.Context, repo domain.Repo, number int) (domain.Item, error) {
	pr, _, err := c.api.PullRequests.Get(ctx, repo.Owner, repo.Name, number)
	if err != nil {
		return domain.Item{}, fmt.Errorf("get PR #%d in %s: %w", number, repo, err)
	}
	return prToItem(pr), nil
}

func (c *Client) CreatePullRequest(ctx context.Context, repo domain.Repo, title, body, head, base string) (domain.Item, error) {
	pr, _, err := c.api.PullRequests.Create(ctx, repo.Owner, repo.Name, &gh.NewPullRequest{
		Title: gh.Ptr(title),
		Body:  gh.Ptr(body),
		Head:  gh.Ptr(head),
		Base:  gh.Ptr(base),
	})
	if err != nil {
		return domain.Item{}, fmt.Errorf("create PR %s in %s: %w", head, repo, err)
	}
	return prToItem(pr), nil
}

// FindPullRequestForBranch looks for an open PR whose head is branch.
func (c *Client) FindPullRequestForBranch(ctx context.Context, repo domain.Repo, branch string) (domain.Item, bool, error) {
	prs, _, err := c.api.PullRequests.List(ctx, repo.Owner, repo.Name, &gh.PullRequestListOptions{
		State: "open",
		Head:  repo.Owner + ":" + branch,
	})
	if err != nil {
		return domain.Item{}, false, fmt.Errorf("list PRs for branch %s in %s: %w", branch, repo, err)
	}
	if len(prs) == 0 {
		return domain.Item{}, false, nil
	}
	return prToItem(prs[0]), true, nil
}

// CloneURL returns the https clone URL for a repository.
func CloneURL(repo domain.Repo) string {
	return fmt.Sprintf("https://github.com/%s/%s.git", repo.Owner, repo.Name)
}

func issueToItem(is *gh.Issue) domain.Item {
	labels := make([]string, 0, len(is.Labels))
	for _, l := range is.Labels {
		labels = append(labels, l.GetName())
	}
	return domain.Item{
		Number:    is.GetNumber(),
		Title:     is.GetTitle(),
		Body:      is.GetBody(),
		Author:    is.GetUser().GetLogin(),
		State:     is.GetState(),
		Labels:    labels,
		IsPR:      is.IsPullRequest(),
		URL:       is.GetHTMLURL(),
		CreatedAt: is.GetCreatedAt().Time,
		UpdatedAt: is.GetUpdatedAt().Time,
	}
}

func prToItem(pr *gh.PullRequest) domain.Item {
	labels := make([]string, 0, len(pr.Labels))
	for _, l := range pr.Labels {
		labels = append(labels, l.GetName())
	}
	return domain.Item{
		Number:    pr.GetNumber(),
		Title:     pr.GetTitle(),
		Body:      pr.GetBody(),
		Author:    pr.GetUser().GetLogin(),
		State:     pr.GetState(),
		Labels:    labels,
		IsPR:      true,
		HeadRef:   pr.GetHead().GetRef(),
		BaseRef:   pr.GetBase().GetRef(),
		URL:       pr.GetHTMLURL(),
		CreatedAt: pr.GetCreatedAt().Time,
		UpdatedAt: pr.GetUpdatedAt().Time,
	}
}
