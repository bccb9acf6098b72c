package forge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanmeadows/shepherd/internal/runner"
)

func TestIncompleteCriteria(t *testing.T) {
	body := "## Acceptance criteria\n" +
		"- [x] Done thing\n" +
		"- [ ] Not done\n" +
		"- [ ] ~~Dropped from scope~~\n" +
		"```\n" +
		"- [ ] inside a code block\n" +
		"```\n" +
		"* [ ] Also not done\n" +
		"some prose in between\n" +
		"- [X] Uppercase check also counts\n"

	got := incompleteCriteria(body)
	assert.Equal(t, []string{"「Not done」", "「Also not done」"}, got)
}

func TestIncompleteCriteria_Empty(t *testing.T) {
	assert.Empty(t, incompleteCriteria(""))
	assert.Empty(t, incompleteCriteria("no checkboxes here\njust text"))
	assert.Empty(t, incompleteCriteria("- [x] everything finished"))
}

func TestIncompleteCriteria_TildeFence(t *testing.T) {
	body := "~~~\n- [ ] hidden\n~~~\n- [ ] visible"
	assert.Equal(t, []string{"「visible」"}, incompleteCriteria(body))
}

func TestIssueIncompleteCriteria(t *testing.T) {
	svc, mock := newTestService(t)
	mock.Script("gh issue view 77 --json state,body", runner.Result{
		OK:     true,
		Stdout: `{"state": "OPEN", "body": "- [ ] write docs\n- [x] write code"}`,
	})

	got := svc.IssueIncompleteCriteria(t.Context(), 77)
	assert.Equal(t, []string{"「write docs」"}, got)
}

func TestIssueIncompleteCriteria_ClosedIssue(t *testing.T) {
	svc, mock := newTestService(t)
	mock.Script("gh issue view 77 --json state,body", runner.Result{
		OK:     true,
		Stdout: `{"state": "CLOSED", "body": "- [ ] write docs"}`,
	})

	// A closed issue has no outstanding criteria regardless of body.
	assert.Empty(t, svc.IssueIncompleteCriteria(t.Context(), 77))
}

func TestIssueIncompleteCriteria_FetchFailure(t *testing.T) {
	svc, mock := newTestService(t)
	mock.Script("gh issue view 77 --json state,body", runner.Result{OK: false, Stderr: "no issue"})

	assert.Empty(t, svc.IssueIncompleteCriteria(t.Context(), 77))
}

func TestPRClosesIssues(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{"comma list", "Closes #123, #456", []string{"123", "456"}},
		{"and form", "Fixes #12 and #34", []string{"12", "34"}},
		{"colon form", "Resolved: #7", []string{"7"}},
		{"dedup across keywords", "Closes #5\n\nResolves #5", []string{"5"}},
		{"mixed keywords", "fixes #1\ncloses #2", []string{"1", "2"}},
		{"bare reference ignored", "see #99 for background", nil},
		{"no references", "just a description", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PRClosesIssues(tt.body))
		})
	}
}

func TestLinkedIssues(t *testing.T) {
	svc, mock := newTestService(t)
	mock.Script("gh pr view 12 --json body", runner.Result{
		OK:     true,
		Stdout: `{"body": "Implements the thing.\n\nCloses #123, #456"}`,
	})

	assert.Equal(t, []string{"123", "456"}, svc.LinkedIssues(t.Context(), 12))
}

func TestLinkedIssues_NoBody(t *testing.T) {
	svc, mock := newTestService(t)
	mock.Script("gh pr view 12 --json body", runner.Result{OK: true, Stdout: `{"body": ""}`})

	assert.Nil(t, svc.LinkedIssues(t.Context(), 12))
	require.Len(t, mock.Calls, 1)
}
