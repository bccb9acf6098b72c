// Package forge reads and mutates pull-request state on GitHub. All
// polling goes through the gh CLI via the runner boundary; thread
// resolution and reaction lookups prefer the direct API client when a
// token is available.
package forge

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/alanmeadows/shepherd/internal/config"
	"github.com/alanmeadows/shepherd/internal/runner"
)

// MergeState classifies a PR's forge-reported mergeability.
type MergeState int

const (
	MergeStateUnknown MergeState = iota
	MergeStateClean
	MergeStateDirty
	MergeStateBehind
	MergeStateBlocked
)

// String returns the state name.
func (s MergeState) String() string {
	switch s {
	case MergeStateClean:
		return "clean"
	case MergeStateDirty:
		return "dirty"
	case MergeStateBehind:
		return "behind"
	case MergeStateBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// CheckStatus is the aggregated (or per-check) CI result.
type CheckStatus int

const (
	CheckPending CheckStatus = iota
	CheckSuccess
	CheckFailure
)

// String returns the status name.
func (s CheckStatus) String() string {
	switch s {
	case CheckSuccess:
		return "success"
	case CheckFailure:
		return "failure"
	default:
		return "pending"
	}
}

// CheckDetail is one CI check run on the head commit.
type CheckDetail struct {
	Name  string
	State CheckStatus
}

// PRState is an immutable snapshot of a pull request, fetched fresh on
// every poll iteration and never mutated afterwards.
type PRState struct {
	MergeState       MergeState
	PendingReviewers []string
	CheckStatus      CheckStatus
	CheckDetails     []CheckDetail
}

// Service issues forge operations for one repository checkout.
type Service struct {
	run    runner.Runner
	gh     string
	review config.ReviewConfig
	api    *Client // nil when no token could be resolved

	repoOnce sync.Once
	owner    string
	name     string
}

// NewService creates a Service over the given runner. api may be nil;
// affected operations then go through gh instead.
func NewService(run runner.Runner, ghPath string, review config.ReviewConfig, api *Client) *Service {
	if ghPath == "" {
		ghPath = "gh"
	}
	if review.ChangedFilesLimit <= 0 {
		review.ChangedFilesLimit = 100
	}
	return &Service{run: run, gh: ghPath, review: review, api: api}
}

// ghPRView is the shape of `gh pr view --json` output for the fields
// the poller requests.
type ghPRView struct {
	Mergeable         string            `json:"mergeable"`
	MergeStateStatus  string            `json:"mergeStateStatus"`
	ReviewRequests    []ghReviewRequest `json:"reviewRequests"`
	StatusCheckRollup []ghStatusCheck   `json:"statusCheckRollup"`
}

// ghReviewRequest is one requested reviewer; users carry a login,
// teams a slug.
type ghReviewRequest struct {
	Login string `json:"login"`
	Slug  string `json:"slug"`
}

// ghStatusCheck is one statusCheckRollup node: either a CheckRun
// (name/status/conclusion) or a legacy StatusContext (context/state).
type ghStatusCheck struct {
	TypeName   string `json:"__typename"`
	Name       string `json:"name"`
	Context    string `json:"context"`
	Status     string `json:"status"`
	Conclusion string `json:"conclusion"`
	State      string `json:"state"`
}

// PRState fetches a fresh snapshot of the PR. The second return is an
// error string; empty means the snapshot is valid. Command failures are
// reported as strings rather than errors so the caller can surface them
// as monitor events without unwrapping.
func (s *Service) PRState(ctx context.Context, prNumber int) (*PRState, string) {
	res := s.run.Run(ctx, runner.Light, s.gh, "pr", "view", strconv.Itoa(prNumber),
		"--json", "mergeable,mergeStateStatus,reviewRequests,statusCheckRollup")
	if !res.OK {
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" {
			msg = "fetching PR state failed"
		}
		return nil, msg
	}

	var view ghPRView
	if err := json.Unmarshal([]byte(res.Stdout), &view); err != nil {
		return nil, fmt.Sprintf("parsing PR state: %v", err)
	}

	state := &PRState{
		MergeState: mergeStateFrom(view.Mergeable, view.MergeStateStatus),
	}
	for _, rr := range view.ReviewRequests {
		handle := rr.Login
		if handle == "" {
			handle = rr.Slug
		}
		if handle != "" {
			state.PendingReviewers = append(state.PendingReviewers, handle)
		}
	}
	for _, node := range view.StatusCheckRollup {
		name, st := checkDetailFrom(node)
		state.CheckDetails = append(state.CheckDetails, CheckDetail{Name: name, State: st})
	}
	state.CheckStatus = aggregateChecks(state.CheckDetails)

	return state, ""
}

// mergeStateFrom maps gh's mergeable/mergeStateStatus pair onto
// MergeState. Conflicts dominate: a CONFLICTING PR is dirty no matter
// what the state status says.
func mergeStateFrom(mergeable, stateStatus string) MergeState {
	if strings.EqualFold(mergeable, "CONFLICTING") {
		return MergeStateDirty
	}
	switch strings.ToUpper(stateStatus) {
	case "BEHIND":
		return MergeStateBehind
	case "BLOCKED":
		return MergeStateBlocked
	case "DIRTY":
		return MergeStateDirty
	case "CLEAN", "HAS_HOOKS", "UNSTABLE":
		return MergeStateClean
	default:
		return MergeStateUnknown
	}
}

// checkDetailFrom maps one rollup node to a named check state.
func checkDetailFrom(node ghStatusCheck) (string, CheckStatus) {
	if node.TypeName == "StatusContext" || (node.Name == "" && node.Context != "") {
		st := CheckPending
		switch strings.ToUpper(node.State) {
		case "SUCCESS":
			st = CheckSuccess
		case "FAILURE", "ERROR":
			st = CheckFailure
		}
		return node.Context, st
	}

	st := CheckPending
	if strings.EqualFold(node.Status, "COMPLETED") {
		switch strings.ToUpper(node.Conclusion) {
		case "SUCCESS", "NEUTRAL", "SKIPPED":
			st = CheckSuccess
		default:
			// failure, timed_out, cancelled, action_required,
			// startup_failure, stale
			st = CheckFailure
		}
	}
	return node.Name, st
}

// aggregateChecks folds per-check states into one status: any failure
// wins, then any pending, else success. No checks at all counts as
// success so unchecked repositories are mergeable.
func aggregateChecks(details []CheckDetail) CheckStatus {
	agg := CheckSuccess
	for _, d := range details {
		switch d.State {
		case CheckFailure:
			return CheckFailure
		case CheckPending:
			agg = CheckPending
		}
	}
	return agg
}

// BranchRefs returns the PR's head and base branch names. ok is false
// when the lookup fails, in which case a caller should skip any git
// operation that depends on them.
func (s *Service) BranchRefs(ctx context.Context, prNumber int) (head, base string, ok bool) {
	res := s.run.Run(ctx, runner.Light, s.gh, "pr", "view", strconv.Itoa(prNumber), "--json", "headRefName,baseRefName")
	if !res.OK {
		return "", "", false
	}
	var out struct {
		HeadRefName string `json:"headRefName"`
		BaseRefName string `json:"baseRefName"`
	}
	if err := json.Unmarshal([]byte(res.Stdout), &out); err != nil {
		return "", "", false
	}
	if out.HeadRefName == "" || out.BaseRefName == "" {
		return "", "", false
	}
	return out.HeadRefName, out.BaseRefName, true
}

// PRBody returns the PR description, or "" on any failure.
func (s *Service) PRBody(ctx context.Context, prNumber int) string {
	res := s.run.Run(ctx, runner.Light, s.gh, "pr", "view", strconv.Itoa(prNumber), "--json", "body")
	if !res.OK {
		return ""
	}
	var out struct {
		Body string `json:"body"`
	}
	if err := json.Unmarshal([]byte(res.Stdout), &out); err != nil {
		return ""
	}
	return out.Body
}

// repoIdentity resolves and caches the owner/name of the current
// repository, needed for GraphQL variables and the direct API client.
func (s *Service) repoIdentity(ctx context.Context) (string, string) {
	s.repoOnce.Do(func() {
		res := s.run.Run(ctx, runner.Light, s.gh, "repo", "view", "--json", "owner,name")
		if !res.OK {
			return
		}
		var out struct {
			Name  string `json:"name"`
			Owner struct {
				Login string `json:"login"`
			} `json:"owner"`
		}
		if err := json.Unmarshal([]byte(res.Stdout), &out); err != nil {
			return
		}
		s.owner, s.name = out.Owner.Login, out.Name
	})
	return s.owner, s.name
}
