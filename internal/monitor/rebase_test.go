package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanmeadows/shepherd/internal/runner"
)

func TestRebase(t *testing.T) {
	mock := runner.NewMock()
	r := NewRebaser(mock, "git")

	require.NoError(t, r.Rebase(t.Context(), "issue-42", "main"))

	assert.Equal(t, []string{
		"git fetch origin",
		"git rebase origin/main",
		"git push --force-with-lease origin HEAD:issue-42",
	}, mock.CallLines())
}

func TestRebase_StripsRefPrefix(t *testing.T) {
	mock := runner.NewMock()
	r := NewRebaser(mock, "git")

	require.NoError(t, r.Rebase(t.Context(), "issue-42", "refs/heads/release-1.2"))

	assert.Contains(t, mock.CallLines(), "git rebase origin/release-1.2")
	assert.Contains(t, mock.CallLines(), "git push --force-with-lease origin HEAD:issue-42")
}

func TestRebase_FetchFailureStopsEarly(t *testing.T) {
	mock := runner.NewMock()
	mock.Script("git fetch origin", runner.Result{OK: false, Stderr: "could not resolve host"})
	r := NewRebaser(mock, "git")

	err := r.Rebase(t.Context(), "issue-42", "main")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "git fetch")
	assert.Contains(t, err.Error(), "could not resolve host")
	assert.Len(t, mock.CallLines(), 1)
}

func TestRebase_ConflictAbortsAndSkipsPush(t *testing.T) {
	mock := runner.NewMock()
	mock.Script("git rebase origin/main", runner.Result{OK: false, Stderr: "CONFLICT (content): merge conflict in main.go"})
	r := NewRebaser(mock, "git")

	err := r.Rebase(t.Context(), "issue-42", "main")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "git rebase onto origin/main")
	assert.Contains(t, err.Error(), "CONFLICT")

	lines := mock.CallLines()
	assert.Contains(t, lines, "git rebase --abort")
	for _, line := range lines {
		assert.NotContains(t, line, "push")
	}
}

func TestRebase_PushFailure(t *testing.T) {
	mock := runner.NewMock()
	mock.Script("git push --force-with-lease origin HEAD:issue-42", runner.Result{OK: false, Stderr: "stale info"})
	r := NewRebaser(mock, "git")

	err := r.Rebase(t.Context(), "issue-42", "main")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "git push")
}

func TestRebase_DefaultsGitPath(t *testing.T) {
	mock := runner.NewMock()
	r := NewRebaser(mock, "")

	require.NoError(t, r.Rebase(t.Context(), "issue-1", "main"))
	assert.Contains(t, mock.CallLines(), "git fetch origin")
}
