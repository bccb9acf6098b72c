package forge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	gh "github.com/google/go-github/v82/github"

	"github.com/alanmeadows/shepherd/internal/runner"
)

// CodexReviewRequest is a user comment that invoked the reaction-based
// cloud reviewer. HasEyesReaction records whether the bot acknowledged
// receipt; it is a progress signal only and never decides completion.
type CodexReviewRequest struct {
	CommentID       int64
	CreatedAt       time.Time
	HasEyesReaction bool
}

// IsAIAuthor reports whether a handle belongs to an AI reviewer:
// either a configured handle or any "[bot]" suffixed account.
func (s *Service) IsAIAuthor(handle string) bool {
	if handle == "" {
		return false
	}
	if strings.HasSuffix(handle, "[bot]") {
		return true
	}
	for _, known := range s.review.AIReviewers {
		if strings.EqualFold(handle, known) {
			return true
		}
	}
	return strings.EqualFold(handle, s.review.CodexBot)
}

// HasAIReviewPending reports whether any AI reviewer still has
// outstanding work on the PR: a bot handle among the pending
// reviewers, or an unanswered cloud-review request.
func (s *Service) HasAIReviewPending(ctx context.Context, prNumber int, pendingReviewers []string) bool {
	for _, handle := range pendingReviewers {
		if s.IsAIAuthor(handle) {
			return true
		}
	}
	return s.IsCodexReviewPending(ctx, prNumber)
}

// CodexReviewRequests returns the PR comments that invoked the cloud
// reviewer ("@<bot> review"), newest first, each annotated with its
// acknowledgement reaction. Fetch failures yield an empty slice.
func (s *Service) CodexReviewRequests(ctx context.Context, prNumber int) []CodexReviewRequest {
	bot := s.review.CodexBot
	if bot == "" {
		return nil
	}

	comments, ok := s.issueComments(ctx, prNumber)
	if !ok {
		return nil
	}

	mention := regexp.MustCompile(`(?i)(?:^|\s)@` + regexp.QuoteMeta(bot) + `\s+review\b`)

	var requests []CodexReviewRequest
	for _, c := range comments {
		if !mention.MatchString(c.GetBody()) {
			continue
		}
		requests = append(requests, CodexReviewRequest{
			CommentID:       c.GetID(),
			CreatedAt:       c.GetCreatedAt().Time,
			HasEyesReaction: s.checkEyesReaction(ctx, c.GetID()),
		})
	}

	sort.Slice(requests, func(i, j int) bool {
		return requests[i].CreatedAt.After(requests[j].CreatedAt)
	})
	return requests
}

// IsCodexReviewPending reports whether the most recent cloud-review
// request is still awaiting its review. A review authored by the bot
// and submitted after the request comment is authoritative completion,
// whether or not the acknowledgement reaction was ever observed. With
// no later review the request stays pending, eyes or no eyes.
func (s *Service) IsCodexReviewPending(ctx context.Context, prNumber int) bool {
	requests := s.CodexReviewRequests(ctx, prNumber)
	if len(requests) == 0 {
		return false
	}
	latest := requests[0]

	reviews, ok := s.prReviews(ctx, prNumber)
	if !ok {
		// Cannot prove a review landed; keep waiting.
		return true
	}

	for _, rv := range reviews {
		if !s.isCodexLogin(rv.GetUser().GetLogin()) {
			continue
		}
		if rv.GetSubmittedAt().After(latest.CreatedAt) {
			slog.Debug("cloud review complete",
				"pr", prNumber, "request_comment", latest.CommentID,
				"submitted_at", rv.GetSubmittedAt().Format(time.RFC3339))
			return false
		}
	}
	return true
}

func (s *Service) isCodexLogin(login string) bool {
	if login == "" {
		return false
	}
	trimmed := strings.TrimSuffix(login, "[bot]")
	if strings.EqualFold(trimmed, s.review.CodexBot) {
		return true
	}
	// Cloud reviews may arrive from a connector account rather than
	// the mention handle itself.
	for _, known := range s.review.AIReviewers {
		if strings.EqualFold(trimmed, known) {
			return true
		}
	}
	return false
}

// checkEyesReaction reports whether the bot left a 👀 reaction on the
// request comment. Secondary signal for progress reporting only.
func (s *Service) checkEyesReaction(ctx context.Context, commentID int64) bool {
	if s.api != nil {
		owner, name := s.repoIdentity(ctx)
		if owner != "" && name != "" {
			has, err := s.api.EyesReaction(ctx, owner, name, commentID)
			if err == nil {
				return has
			}
			slog.Debug("direct reaction lookup failed, falling back to gh", "comment", commentID, "error", err)
		}
	}

	res := s.run.Run(ctx, runner.Light, s.gh, "api",
		fmt.Sprintf("repos/{owner}/{repo}/issues/comments/%d/reactions?per_page=100", commentID))
	if !res.OK {
		return false
	}
	var reactions []*gh.Reaction
	if err := json.Unmarshal([]byte(res.Stdout), &reactions); err != nil {
		return false
	}
	for _, r := range reactions {
		if r.GetContent() == "eyes" {
			return true
		}
	}
	return false
}

// issueComments lists the PR's conversation comments.
func (s *Service) issueComments(ctx context.Context, prNumber int) ([]*gh.IssueComment, bool) {
	res := s.run.Run(ctx, runner.Medium, s.gh, "api",
		fmt.Sprintf("repos/{owner}/{repo}/issues/%d/comments?per_page=100", prNumber))
	if !res.OK {
		return nil, false
	}
	var comments []*gh.IssueComment
	if err := json.Unmarshal([]byte(res.Stdout), &comments); err != nil {
		slog.Warn("parsing issue comments", "error", err)
		return nil, false
	}
	return comments, true
}

// prReviews lists submitted reviews on the PR.
func (s *Service) prReviews(ctx context.Context, prNumber int) ([]*gh.PullRequestReview, bool) {
	res := s.run.Run(ctx, runner.Medium, s.gh, "api",
		fmt.Sprintf("repos/{owner}/{repo}/pulls/%d/reviews?per_page=100", prNumber))
	if !res.OK {
		return nil, false
	}
	var reviews []*gh.PullRequestReview
	if err := json.Unmarshal([]byte(res.Stdout), &reviews); err != nil {
		slog.Warn("parsing PR reviews", "error", err)
		return nil, false
	}
	return reviews, true
}
