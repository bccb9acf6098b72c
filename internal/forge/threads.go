package forge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	gh "github.com/google/go-github/v82/github"

	"github.com/alanmeadows/shepherd/internal/runner"
)

// ReviewComment is one inline review comment.
type ReviewComment struct {
	ID     string
	Path   string
	Line   int
	Body   string
	Author string
}

// ReviewThread is a resolvable conversation owning one or more
// comments. The first comment anchors the thread.
type ReviewThread struct {
	ID         string
	IsResolved bool
	Comments   []ReviewComment
}

// reviewThreadsQuery fetches the PR's review threads with their
// comments. Thread node IDs are required for the resolve mutation;
// REST cannot provide them.
const reviewThreadsQuery = `query($owner: String!, $name: String!, $pr: Int!) {
  repository(owner: $owner, name: $name) {
    pullRequest(number: $pr) {
      reviewThreads(first: 100) {
        nodes {
          id
          isResolved
          comments(first: 50) {
            nodes {
              databaseId
              path
              line
              body
              author { login }
            }
          }
        }
      }
    }
  }
}`

type gqlThreadsResponse struct {
	Data struct {
		Repository struct {
			PullRequest struct {
				ReviewThreads struct {
					Nodes []struct {
						ID         string `json:"id"`
						IsResolved bool   `json:"isResolved"`
						Comments   struct {
							Nodes []struct {
								DatabaseID int64  `json:"databaseId"`
								Path       string `json:"path"`
								Line       int    `json:"line"`
								Body       string `json:"body"`
								Author     struct {
									Login string `json:"login"`
								} `json:"author"`
							} `json:"nodes"`
						} `json:"comments"`
					} `json:"nodes"`
				} `json:"reviewThreads"`
			} `json:"pullRequest"`
		} `json:"repository"`
	} `json:"data"`
}

// ReviewThreads fetches all review threads on the PR. The GraphQL
// thread API is primary; flat REST comments are synthesized into
// thread shape when it is unavailable. Any failure on both paths
// yields an empty slice.
func (s *Service) ReviewThreads(ctx context.Context, prNumber int) []ReviewThread {
	if threads, ok := s.fetchThreadsGraphQL(ctx, prNumber); ok {
		return threads
	}
	slog.Debug("review thread query failed, falling back to REST", "pr", prNumber)
	comments, ok := s.fetchReviewCommentsREST(ctx, prNumber)
	if !ok {
		return nil
	}
	return threadsFromRESTComments(comments)
}

// ReviewComments returns every comment across all threads, flattened.
func (s *Service) ReviewComments(ctx context.Context, prNumber int) []ReviewComment {
	var comments []ReviewComment
	for _, th := range s.ReviewThreads(ctx, prNumber) {
		comments = append(comments, th.Comments...)
	}
	return comments
}

func (s *Service) fetchThreadsGraphQL(ctx context.Context, prNumber int) ([]ReviewThread, bool) {
	owner, name := s.repoIdentity(ctx)
	if owner == "" || name == "" {
		return nil, false
	}

	res := s.run.Run(ctx, runner.Medium, s.gh, "api", "graphql",
		"-f", "query="+reviewThreadsQuery,
		"-f", "owner="+owner,
		"-f", "name="+name,
		"-F", "pr="+strconv.Itoa(prNumber))
	if !res.OK {
		return nil, false
	}

	var parsed gqlThreadsResponse
	if err := json.Unmarshal([]byte(res.Stdout), &parsed); err != nil {
		slog.Warn("parsing review threads response", "error", err)
		return nil, false
	}

	var threads []ReviewThread
	for _, node := range parsed.Data.Repository.PullRequest.ReviewThreads.Nodes {
		th := ReviewThread{ID: node.ID, IsResolved: node.IsResolved}
		for _, c := range node.Comments.Nodes {
			th.Comments = append(th.Comments, ReviewComment{
				ID:     strconv.FormatInt(c.DatabaseID, 10),
				Path:   c.Path,
				Line:   c.Line,
				Body:   c.Body,
				Author: c.Author.Login,
			})
		}
		threads = append(threads, th)
	}
	return threads, true
}

// fetchReviewCommentsREST lists flat inline comments from the REST
// API, decoded with go-github types.
func (s *Service) fetchReviewCommentsREST(ctx context.Context, prNumber int) ([]*gh.PullRequestComment, bool) {
	res := s.run.Run(ctx, runner.Medium, s.gh, "api",
		fmt.Sprintf("repos/{owner}/{repo}/pulls/%d/comments?per_page=100", prNumber))
	if !res.OK {
		return nil, false
	}
	var comments []*gh.PullRequestComment
	if err := json.Unmarshal([]byte(res.Stdout), &comments); err != nil {
		slog.Warn("parsing REST review comments", "error", err)
		return nil, false
	}
	return comments, true
}

// threadsFromRESTComments synthesizes one single-comment thread per
// flat REST comment so downstream code sees a uniform shape. REST
// cannot report resolution, so every synthesized thread is unresolved
// and carries a "rest-" prefixed ID that the resolve mutation will
// reject rather than silently misroute.
func threadsFromRESTComments(comments []*gh.PullRequestComment) []ReviewThread {
	var threads []ReviewThread
	for _, c := range comments {
		threads = append(threads, ReviewThread{
			ID:         fmt.Sprintf("rest-%d", c.GetID()),
			IsResolved: false,
			Comments: []ReviewComment{{
				ID:     strconv.FormatInt(c.GetID(), 10),
				Path:   c.GetPath(),
				Line:   c.GetLine(),
				Body:   c.GetBody(),
				Author: c.GetUser().GetLogin(),
			}},
		})
	}
	return threads
}

// ChangedFiles returns the set of file paths the PR touches. A result
// that exactly fills the page is ambiguous (more files may exist), so
// nil is returned instead of a possibly truncated set; callers must
// treat nil as "scope unknown". Fetch failures also yield nil.
func (s *Service) ChangedFiles(ctx context.Context, prNumber int) map[string]struct{} {
	limit := s.review.ChangedFilesLimit
	res := s.run.Run(ctx, runner.Medium, s.gh, "api",
		fmt.Sprintf("repos/{owner}/{repo}/pulls/%d/files?per_page=%d", prNumber, limit))
	if !res.OK {
		return nil
	}
	var files []*gh.CommitFile
	if err := json.Unmarshal([]byte(res.Stdout), &files); err != nil {
		slog.Warn("parsing changed files", "error", err)
		return nil
	}
	if len(files) >= limit {
		slog.Debug("changed files hit pagination ceiling", "pr", prNumber, "count", len(files))
		return nil
	}
	set := make(map[string]struct{}, len(files))
	for _, f := range files {
		set[f.GetFilename()] = struct{}{}
	}
	return set
}

// ClassifyComments partitions the PR's review comments into those
// touching changed files and the rest. With an unknown changed-file
// set every comment counts as in scope.
func (s *Service) ClassifyComments(ctx context.Context, prNumber int) (inScope, outOfScope []ReviewComment) {
	comments := s.ReviewComments(ctx, prNumber)
	changed := s.ChangedFiles(ctx, prNumber)
	if changed == nil {
		return comments, nil
	}
	for _, c := range comments {
		if _, ok := changed[c.Path]; ok {
			inScope = append(inScope, c)
		} else {
			outOfScope = append(outOfScope, c)
		}
	}
	return inScope, outOfScope
}

var (
	lineRefPattern    = regexp.MustCompile(`(?i)\blines?\s+\d+(?:\s*[-–]\s*\d+)?`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// NormalizeCommentBody strips line-number references and collapses
// whitespace so a comment re-posted after a rebase (where line numbers
// shift) normalizes to the same string. Idempotent.
func NormalizeCommentBody(body string) string {
	out := lineRefPattern.ReplaceAllString(body, "")
	out = whitespacePattern.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// DuplicateHash fingerprints a comment by path and normalized body.
// IDs never participate: the same text re-posted under a new comment
// ID after a rebase must hash identically.
func DuplicateHash(path, body string) string {
	sum := sha256.Sum256([]byte(path + ":" + NormalizeCommentBody(body)))
	return hex.EncodeToString(sum[:])[:32]
}

// CommentHashes returns the duplicate hashes of all given comments.
func CommentHashes(comments []ReviewComment) map[string]struct{} {
	hashes := make(map[string]struct{}, len(comments))
	for _, c := range comments {
		hashes[DuplicateHash(c.Path, c.Body)] = struct{}{}
	}
	return hashes
}

// FilterDuplicateComments drops AI-authored comments whose hash is
// already known. Human comments always pass, hash match or not.
func (s *Service) FilterDuplicateComments(comments []ReviewComment, duplicates map[string]struct{}) []ReviewComment {
	var kept []ReviewComment
	for _, c := range comments {
		if s.IsAIAuthor(c.Author) {
			if _, dup := duplicates[DuplicateHash(c.Path, c.Body)]; dup {
				slog.Debug("dropping duplicate bot comment", "path", c.Path, "author", c.Author)
				continue
			}
		}
		kept = append(kept, c)
	}
	return kept
}

// AutoResolveDuplicateThreads resolves unresolved AI-authored threads
// whose anchor comment matches a hash captured before a rebase: the
// bot already said this and the human already saw it. Returns the
// number of threads resolved and the updated hash set, which is the
// pre-rebase set plus the hash of every thread seen in this pass so
// the next rebase dedupes against everything known.
func (s *Service) AutoResolveDuplicateThreads(ctx context.Context, prNumber int, preRebaseHashes map[string]struct{}) (int, map[string]struct{}) {
	updated := make(map[string]struct{}, len(preRebaseHashes))
	for h := range preRebaseHashes {
		updated[h] = struct{}{}
	}

	resolved := 0
	for _, th := range s.ReviewThreads(ctx, prNumber) {
		if len(th.Comments) == 0 {
			continue
		}
		top := th.Comments[0]
		hash := DuplicateHash(top.Path, top.Body)
		updated[hash] = struct{}{}

		if th.IsResolved {
			continue
		}
		if _, dup := preRebaseHashes[hash]; !dup {
			continue
		}
		if !s.IsAIAuthor(top.Author) {
			continue
		}
		if s.resolveThread(ctx, th.ID) {
			resolved++
			slog.Info("auto-resolved duplicate review thread",
				"pr", prNumber, "thread", th.ID, "path", top.Path, "author", top.Author)
		}
	}
	return resolved, updated
}

// resolveThreadMutation is the gh fallback for the resolve mutation.
const resolveThreadMutation = `mutation($thread: ID!) {
  resolveReviewThread(input: {threadId: $thread}) {
    thread { id isResolved }
  }
}`

// resolveThread marks one thread resolved, via the direct GraphQL
// client when available and gh otherwise. Synthesized "rest-" IDs are
// not resolvable and are skipped outright.
func (s *Service) resolveThread(ctx context.Context, threadID string) bool {
	if strings.HasPrefix(threadID, "rest-") {
		slog.Debug("cannot resolve thread without a node ID", "thread", threadID)
		return false
	}

	if s.api != nil {
		err := s.api.ResolveThread(ctx, threadID)
		if err == nil {
			return true
		}
		slog.Warn("direct thread resolution failed, falling back to gh", "thread", threadID, "error", err)
	}

	res := s.run.Run(ctx, runner.Medium, s.gh, "api", "graphql",
		"-f", "query="+resolveThreadMutation,
		"-f", "thread="+threadID)
	if !res.OK {
		slog.Warn("resolving review thread failed", "thread", threadID,
			"stderr", runner.SanitizeForLog(res.Stderr))
		return false
	}
	return true
}
