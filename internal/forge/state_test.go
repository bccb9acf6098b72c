package forge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanmeadows/shepherd/internal/config"
	"github.com/alanmeadows/shepherd/internal/runner"
)

// newTestService creates a Service over a scripted runner with the
// default review configuration and no direct API client.
func newTestService(t *testing.T) (*Service, *runner.Mock) {
	t.Helper()
	mock := runner.NewMock()
	return NewService(mock, "gh", config.DefaultConfig().Review, nil), mock
}

func TestMergeStateFrom(t *testing.T) {
	tests := []struct {
		name        string
		mergeable   string
		stateStatus string
		want        MergeState
	}{
		{"clean", "MERGEABLE", "CLEAN", MergeStateClean},
		{"behind", "MERGEABLE", "BEHIND", MergeStateBehind},
		{"blocked", "MERGEABLE", "BLOCKED", MergeStateBlocked},
		{"dirty status", "MERGEABLE", "DIRTY", MergeStateDirty},
		{"has hooks counts as clean", "MERGEABLE", "HAS_HOOKS", MergeStateClean},
		{"unstable counts as clean", "MERGEABLE", "UNSTABLE", MergeStateClean},
		{"conflicting dominates behind", "CONFLICTING", "BEHIND", MergeStateDirty},
		{"conflicting dominates clean", "CONFLICTING", "CLEAN", MergeStateDirty},
		{"unknown status", "MERGEABLE", "DRAFT", MergeStateUnknown},
		{"empty", "", "", MergeStateUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mergeStateFrom(tt.mergeable, tt.stateStatus))
		})
	}
}

func TestCheckDetailFrom(t *testing.T) {
	tests := []struct {
		name     string
		node     ghStatusCheck
		wantName string
		want     CheckStatus
	}{
		{
			name:     "completed success",
			node:     ghStatusCheck{TypeName: "CheckRun", Name: "build", Status: "COMPLETED", Conclusion: "SUCCESS"},
			wantName: "build",
			want:     CheckSuccess,
		},
		{
			name:     "completed failure",
			node:     ghStatusCheck{TypeName: "CheckRun", Name: "test", Status: "COMPLETED", Conclusion: "FAILURE"},
			wantName: "test",
			want:     CheckFailure,
		},
		{
			name:     "cancelled counts as failure",
			node:     ghStatusCheck{TypeName: "CheckRun", Name: "lint", Status: "COMPLETED", Conclusion: "CANCELLED"},
			wantName: "lint",
			want:     CheckFailure,
		},
		{
			name:     "skipped counts as success",
			node:     ghStatusCheck{TypeName: "CheckRun", Name: "docs", Status: "COMPLETED", Conclusion: "SKIPPED"},
			wantName: "docs",
			want:     CheckSuccess,
		},
		{
			name:     "neutral counts as success",
			node:     ghStatusCheck{TypeName: "CheckRun", Name: "scan", Status: "COMPLETED", Conclusion: "NEUTRAL"},
			wantName: "scan",
			want:     CheckSuccess,
		},
		{
			name:     "in progress",
			node:     ghStatusCheck{TypeName: "CheckRun", Name: "e2e", Status: "IN_PROGRESS"},
			wantName: "e2e",
			want:     CheckPending,
		},
		{
			name:     "queued",
			node:     ghStatusCheck{TypeName: "CheckRun", Name: "deploy", Status: "QUEUED"},
			wantName: "deploy",
			want:     CheckPending,
		},
		{
			name:     "status context success",
			node:     ghStatusCheck{TypeName: "StatusContext", Context: "ci/legacy", State: "SUCCESS"},
			wantName: "ci/legacy",
			want:     CheckSuccess,
		},
		{
			name:     "status context error",
			node:     ghStatusCheck{TypeName: "StatusContext", Context: "ci/legacy", State: "ERROR"},
			wantName: "ci/legacy",
			want:     CheckFailure,
		},
		{
			name:     "status context pending",
			node:     ghStatusCheck{TypeName: "StatusContext", Context: "ci/legacy", State: "PENDING"},
			wantName: "ci/legacy",
			want:     CheckPending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, st := checkDetailFrom(tt.node)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.want, st)
		})
	}
}

func TestAggregateChecks(t *testing.T) {
	tests := []struct {
		name    string
		details []CheckDetail
		want    CheckStatus
	}{
		{"no checks counts as success", nil, CheckSuccess},
		{"all success", []CheckDetail{{State: CheckSuccess}, {State: CheckSuccess}}, CheckSuccess},
		{"one pending", []CheckDetail{{State: CheckSuccess}, {State: CheckPending}}, CheckPending},
		{"failure wins over pending", []CheckDetail{{State: CheckPending}, {State: CheckFailure}}, CheckFailure},
		{"failure wins over success", []CheckDetail{{State: CheckFailure}, {State: CheckSuccess}}, CheckFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, aggregateChecks(tt.details))
		})
	}
}

func TestPRState(t *testing.T) {
	svc, mock := newTestService(t)
	mock.Script("gh pr view 42 --json mergeable,mergeStateStatus,reviewRequests,statusCheckRollup", runner.Result{
		OK: true,
		Stdout: `{
			"mergeable": "MERGEABLE",
			"mergeStateStatus": "BLOCKED",
			"reviewRequests": [
				{"login": "alice"},
				{"slug": "platform-team"},
				{"login": "copilot-pull-request-reviewer[bot]"}
			],
			"statusCheckRollup": [
				{"__typename": "CheckRun", "name": "build", "status": "COMPLETED", "conclusion": "SUCCESS"},
				{"__typename": "CheckRun", "name": "test", "status": "IN_PROGRESS"},
				{"__typename": "StatusContext", "context": "ci/legacy", "state": "SUCCESS"}
			]
		}`,
	})

	state, errMsg := svc.PRState(t.Context(), 42)
	require.Empty(t, errMsg)
	require.NotNil(t, state)

	assert.Equal(t, MergeStateBlocked, state.MergeState)
	assert.Equal(t, []string{"alice", "platform-team", "copilot-pull-request-reviewer[bot]"}, state.PendingReviewers)
	assert.Equal(t, CheckPending, state.CheckStatus)
	require.Len(t, state.CheckDetails, 3)
	assert.Equal(t, "build", state.CheckDetails[0].Name)
	assert.Equal(t, CheckSuccess, state.CheckDetails[0].State)
	assert.Equal(t, "test", state.CheckDetails[1].Name)
	assert.Equal(t, CheckPending, state.CheckDetails[1].State)
	assert.Equal(t, "ci/legacy", state.CheckDetails[2].Name)
}

func TestPRState_CommandFailure(t *testing.T) {
	svc, mock := newTestService(t)
	mock.Script("gh pr view 42 --json mergeable,mergeStateStatus,reviewRequests,statusCheckRollup", runner.Result{
		OK:     false,
		Stderr: "GraphQL: Could not resolve to a PullRequest\n",
	})

	state, errMsg := svc.PRState(t.Context(), 42)
	assert.Nil(t, state)
	assert.Equal(t, "GraphQL: Could not resolve to a PullRequest", errMsg)
}

func TestPRState_EmptyStderr(t *testing.T) {
	svc, mock := newTestService(t)
	mock.Script("gh pr view 7 --json mergeable,mergeStateStatus,reviewRequests,statusCheckRollup", runner.Result{OK: false})

	state, errMsg := svc.PRState(t.Context(), 7)
	assert.Nil(t, state)
	assert.Equal(t, "fetching PR state failed", errMsg)
}

func TestPRState_MalformedJSON(t *testing.T) {
	svc, mock := newTestService(t)
	mock.Script("gh pr view 42 --json mergeable,mergeStateStatus,reviewRequests,statusCheckRollup", runner.Result{
		OK:     true,
		Stdout: "not json",
	})

	state, errMsg := svc.PRState(t.Context(), 42)
	assert.Nil(t, state)
	assert.Contains(t, errMsg, "parsing PR state")
}

func TestPRState_NoChecks(t *testing.T) {
	svc, mock := newTestService(t)
	mock.Script("gh pr view 9 --json mergeable,mergeStateStatus,reviewRequests,statusCheckRollup", runner.Result{
		OK:     true,
		Stdout: `{"mergeable": "MERGEABLE", "mergeStateStatus": "CLEAN", "reviewRequests": [], "statusCheckRollup": []}`,
	})

	state, errMsg := svc.PRState(t.Context(), 9)
	require.Empty(t, errMsg)
	assert.Equal(t, MergeStateClean, state.MergeState)
	assert.Equal(t, CheckSuccess, state.CheckStatus)
	assert.Empty(t, state.PendingReviewers)
}

func TestPRBody(t *testing.T) {
	svc, mock := newTestService(t)
	mock.Script("gh pr view 12 --json body", runner.Result{
		OK:     true,
		Stdout: `{"body": "Closes #99"}`,
	})

	assert.Equal(t, "Closes #99", svc.PRBody(t.Context(), 12))
}

func TestPRBody_Failure(t *testing.T) {
	svc, mock := newTestService(t)
	mock.Script("gh pr view 12 --json body", runner.Result{OK: false, Stderr: "no pr"})

	assert.Empty(t, svc.PRBody(t.Context(), 12))
}

func TestBranchRefs(t *testing.T) {
	svc, mock := newTestService(t)
	mock.Script("gh pr view 12 --json headRefName,baseRefName", runner.Result{
		OK:     true,
		Stdout: `{"headRefName": "issue-42", "baseRefName": "main"}`,
	})

	head, base, ok := svc.BranchRefs(t.Context(), 12)
	require.True(t, ok)
	assert.Equal(t, "issue-42", head)
	assert.Equal(t, "main", base)
}

func TestBranchRefs_Failure(t *testing.T) {
	svc, mock := newTestService(t)
	mock.Script("gh pr view 12 --json headRefName,baseRefName", runner.Result{OK: false, Stderr: "boom"})

	_, _, ok := svc.BranchRefs(t.Context(), 12)
	assert.False(t, ok)
}

func TestBranchRefs_EmptyHead(t *testing.T) {
	svc, mock := newTestService(t)
	mock.Script("gh pr view 12 --json headRefName,baseRefName", runner.Result{
		OK:     true,
		Stdout: `{"headRefName": "", "baseRefName": "main"}`,
	})

	_, _, ok := svc.BranchRefs(t.Context(), 12)
	assert.False(t, ok)
}

func TestRepoIdentityCached(t *testing.T) {
	svc, mock := newTestService(t)
	mock.Script("gh repo view --json owner,name", runner.Result{
		OK:     true,
		Stdout: `{"name": "shepherd", "owner": {"login": "acme"}}`,
	})

	owner, name := svc.repoIdentity(t.Context())
	assert.Equal(t, "acme", owner)
	assert.Equal(t, "shepherd", name)

	// Second call must not re-run the command.
	svc.repoIdentity(t.Context())
	assert.Len(t, mock.Calls, 1)
}

func TestMergeStateString(t *testing.T) {
	assert.Equal(t, "clean", MergeStateClean.String())
	assert.Equal(t, "dirty", MergeStateDirty.String())
	assert.Equal(t, "behind", MergeStateBehind.String())
	assert.Equal(t, "blocked", MergeStateBlocked.String())
	assert.Equal(t, "unknown", MergeStateUnknown.String())
}

func TestCheckStatusString(t *testing.T) {
	assert.Equal(t, "success", CheckSuccess.String())
	assert.Equal(t, "failure", CheckFailure.String())
	assert.Equal(t, "pending", CheckPending.String())
}
