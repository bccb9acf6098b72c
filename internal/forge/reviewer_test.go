package forge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanmeadows/shepherd/internal/config"
	"github.com/alanmeadows/shepherd/internal/runner"
)

func TestIsAIAuthor(t *testing.T) {
	svc, _ := newTestService(t)

	tests := []struct {
		handle string
		want   bool
	}{
		{"chatgpt-codex-connector", true},
		{"ChatGPT-Codex-Connector", true},
		{"copilot-pull-request-reviewer", true},
		{"codex", true},
		{"anything[bot]", true},
		{"dependabot[bot]", true},
		{"alice", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.handle, func(t *testing.T) {
			assert.Equal(t, tt.want, svc.IsAIAuthor(tt.handle))
		})
	}
}

func TestHasAIReviewPending_BotReviewer(t *testing.T) {
	svc, mock := newTestService(t)

	pending := svc.HasAIReviewPending(t.Context(), 9, []string{"alice", "copilot-pull-request-reviewer[bot]"})
	assert.True(t, pending)
	// A bot among the pending reviewers answers without any fetch.
	assert.Empty(t, mock.Calls)
}

func TestHasAIReviewPending_HumansOnly(t *testing.T) {
	svc, mock := newTestService(t)
	mock.Script("gh api repos/{owner}/{repo}/issues/9/comments?per_page=100", runner.Result{
		OK:     true,
		Stdout: `[]`,
	})

	assert.False(t, svc.HasAIReviewPending(t.Context(), 9, []string{"alice"}))
}

func TestCodexReviewRequests(t *testing.T) {
	svc, mock := newTestService(t)
	mock.Script("gh api repos/{owner}/{repo}/issues/9/comments?per_page=100", runner.Result{
		OK: true,
		Stdout: `[
			{"id": 101, "body": "@codex review", "created_at": "2025-01-01T10:00:00Z", "user": {"login": "alice"}},
			{"id": 102, "body": "please @codex review again", "created_at": "2025-01-01T11:00:00Z", "user": {"login": "bob"}},
			{"id": 103, "body": "@codex reviewed it already", "created_at": "2025-01-01T12:00:00Z", "user": {"login": "carol"}},
			{"id": 104, "body": "mail@codex review", "created_at": "2025-01-01T13:00:00Z", "user": {"login": "dave"}}
		]`,
	})
	mock.Script("gh api repos/{owner}/{repo}/issues/comments/102/reactions?per_page=100", runner.Result{
		OK:     true,
		Stdout: `[{"content": "eyes"}, {"content": "+1"}]`,
	})

	requests := svc.CodexReviewRequests(t.Context(), 9)
	require.Len(t, requests, 2)

	// Newest first.
	assert.Equal(t, int64(102), requests[0].CommentID)
	assert.True(t, requests[0].HasEyesReaction)
	assert.Equal(t, int64(101), requests[1].CommentID)
	assert.False(t, requests[1].HasEyesReaction)
}

func TestCodexReviewRequests_NoBotConfigured(t *testing.T) {
	review := config.DefaultConfig().Review
	review.CodexBot = ""
	mock := runner.NewMock()
	svc := NewService(mock, "gh", review, nil)

	assert.Nil(t, svc.CodexReviewRequests(t.Context(), 9))
	assert.Empty(t, mock.Calls)
}

func TestIsCodexReviewPending_NoRequests(t *testing.T) {
	svc, mock := newTestService(t)
	mock.Script("gh api repos/{owner}/{repo}/issues/9/comments?per_page=100", runner.Result{
		OK:     true,
		Stdout: `[{"id": 1, "body": "looks good", "created_at": "2025-01-01T10:00:00Z", "user": {"login": "alice"}}]`,
	})

	assert.False(t, svc.IsCodexReviewPending(t.Context(), 9))
}

func TestIsCodexReviewPending_ReviewLanded(t *testing.T) {
	svc, mock := newTestService(t)
	mock.Script("gh api repos/{owner}/{repo}/issues/9/comments?per_page=100", runner.Result{
		OK:     true,
		Stdout: `[{"id": 101, "body": "@codex review", "created_at": "2025-01-01T10:00:00Z", "user": {"login": "alice"}}]`,
	})
	mock.Script("gh api repos/{owner}/{repo}/pulls/9/reviews?per_page=100", runner.Result{
		OK: true,
		Stdout: `[
			{"id": 900, "user": {"login": "chatgpt-codex-connector[bot]"}, "submitted_at": "2025-01-01T10:30:00Z", "state": "COMMENTED"}
		]`,
	})

	// The bot's review postdates the request, so the request is
	// complete even though no acknowledgement reaction was ever seen.
	assert.False(t, svc.IsCodexReviewPending(t.Context(), 9))
}

func TestIsCodexReviewPending_OnlyStaleReview(t *testing.T) {
	svc, mock := newTestService(t)
	mock.Script("gh api repos/{owner}/{repo}/issues/9/comments?per_page=100", runner.Result{
		OK:     true,
		Stdout: `[{"id": 101, "body": "@codex review", "created_at": "2025-01-01T10:00:00Z", "user": {"login": "alice"}}]`,
	})
	mock.Script("gh api repos/{owner}/{repo}/pulls/9/reviews?per_page=100", runner.Result{
		OK: true,
		Stdout: `[
			{"id": 900, "user": {"login": "chatgpt-codex-connector[bot]"}, "submitted_at": "2025-01-01T09:00:00Z", "state": "COMMENTED"}
		]`,
	})

	// The only bot review predates the request: still waiting.
	assert.True(t, svc.IsCodexReviewPending(t.Context(), 9))
}

func TestIsCodexReviewPending_UnrelatedReviewer(t *testing.T) {
	svc, mock := newTestService(t)
	mock.Script("gh api repos/{owner}/{repo}/issues/9/comments?per_page=100", runner.Result{
		OK:     true,
		Stdout: `[{"id": 101, "body": "@codex review", "created_at": "2025-01-01T10:00:00Z", "user": {"login": "alice"}}]`,
	})
	mock.Script("gh api repos/{owner}/{repo}/pulls/9/reviews?per_page=100", runner.Result{
		OK: true,
		Stdout: `[
			{"id": 901, "user": {"login": "bob"}, "submitted_at": "2025-01-01T11:00:00Z", "state": "APPROVED"}
		]`,
	})

	assert.True(t, svc.IsCodexReviewPending(t.Context(), 9))
}

func TestIsCodexReviewPending_ReviewsFetchFails(t *testing.T) {
	svc, mock := newTestService(t)
	mock.Script("gh api repos/{owner}/{repo}/issues/9/comments?per_page=100", runner.Result{
		OK:     true,
		Stdout: `[{"id": 101, "body": "@codex review", "created_at": "2025-01-01T10:00:00Z", "user": {"login": "alice"}}]`,
	})
	mock.Script("gh api repos/{owner}/{repo}/pulls/9/reviews?per_page=100", runner.Result{
		OK:     false,
		Stderr: "HTTP 502",
	})

	// Completion cannot be proven, so the request stays pending.
	assert.True(t, svc.IsCodexReviewPending(t.Context(), 9))
}

func TestIsCodexLogin(t *testing.T) {
	svc, _ := newTestService(t)

	assert.True(t, svc.isCodexLogin("codex"))
	assert.True(t, svc.isCodexLogin("codex[bot]"))
	assert.True(t, svc.isCodexLogin("chatgpt-codex-connector[bot]"))
	assert.True(t, svc.isCodexLogin("Copilot-Pull-Request-Reviewer"))
	assert.False(t, svc.isCodexLogin("alice"))
	assert.False(t, svc.isCodexLogin(""))
}
