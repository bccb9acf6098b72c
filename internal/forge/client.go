package forge

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	github_ratelimit "github.com/gofri/go-github-ratelimit/v2/github_ratelimit"
	gh "github.com/google/go-github/v82/github"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"
)

// Client is the direct GitHub API client used where gh is a poor fit:
// resolving review threads needs a GraphQL mutation, and reaction
// lookups are cheap enough to skip the subprocess. All polling reads
// stay on the gh boundary.
type Client struct {
	rest      *gh.Client
	token     string
	gqlOnce   sync.Once
	gqlClient *githubv4.Client
}

// NewClient builds a client with rate-limit-aware transport.
func NewClient(token string) *Client {
	rateLimiter := github_ratelimit.NewClient(nil)
	rest := gh.NewClient(rateLimiter).WithAuthToken(token)
	return &Client{rest: rest, token: token}
}

// NewClientFromEnv resolves a token from config, the environment, or
// `gh auth token`, in that order. Returns nil when no token is
// available; callers fall back to gh for the affected operations.
func NewClientFromEnv(configToken, ghPath string) *Client {
	token := configToken
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}
	if token == "" {
		token = os.Getenv("GH_TOKEN")
	}
	if token == "" {
		if ghPath == "" {
			ghPath = "gh"
		}
		if out, err := exec.Command(ghPath, "auth", "token").Output(); err == nil {
			token = strings.TrimSpace(string(out))
		}
	}
	if token == "" {
		return nil
	}
	return NewClient(token)
}

// graphQL returns (and lazily creates) the GraphQL client.
// Thread-safe via sync.Once.
func (c *Client) graphQL(ctx context.Context) *githubv4.Client {
	c.gqlOnce.Do(func() {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: c.token})
		httpClient := oauth2.NewClient(ctx, ts)
		c.gqlClient = githubv4.NewClient(httpClient)
	})
	return c.gqlClient
}

// ResolveThread resolves a review thread by node ID ("PRRT_...").
// The REST API cannot resolve threads; GraphQL is required.
func (c *Client) ResolveThread(ctx context.Context, threadID string) error {
	gql := c.graphQL(ctx)

	var mutation struct {
		ResolveReviewThread struct {
			Thread struct {
				IsResolved bool
			}
		} `graphql:"resolveReviewThread(input: $input)"`
	}

	input := githubv4.ResolveReviewThreadInput{
		ThreadID: githubv4.ID(threadID),
	}

	if err := gql.Mutate(ctx, &mutation, input, nil); err != nil {
		return fmt.Errorf("resolving review thread: %w", err)
	}
	return nil
}

// EyesReaction reports whether an issue comment carries a 👀 reaction.
func (c *Client) EyesReaction(ctx context.Context, owner, repo string, commentID int64) (bool, error) {
	opts := &gh.ListReactionOptions{
		ListOptions: gh.ListOptions{PerPage: 100},
	}
	for {
		reactions, resp, err := c.rest.Reactions.ListIssueCommentReactions(ctx, owner, repo, commentID, opts)
		if err != nil {
			return false, fmt.Errorf("listing comment reactions: %w", err)
		}
		for _, r := range reactions {
			if r.GetContent() == "eyes" {
				return true, nil
			}
		}
		if resp.NextPage == 0 {
			return false, nil
		}
		opts.Page = resp.NextPage
	}
}
