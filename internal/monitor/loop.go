package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alanmeadows/shepherd/internal/forge"
	"github.com/alanmeadows/shepherd/internal/runner"
	"github.com/alanmeadows/shepherd/internal/worktree"
)

// Outcome is the disposition of a monitor run.
type Outcome int

const (
	OutcomePolling Outcome = iota
	OutcomeSucceeded
	OutcomeFailed
	OutcomeTimedOut
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	case OutcomeTimedOut:
		return "timed_out"
	default:
		return "polling"
	}
}

// Options configure one monitor run.
type Options struct {
	// PollInterval is the sleep between poll iterations.
	PollInterval time.Duration
	// Timeout is the overall wall-clock budget for the run.
	Timeout time.Duration
	// HintEvery is the number of iterations between wait-time hints.
	// Zero or negative disables them.
	HintEvery int
	// Merge squash-merges the PR once it is ready.
	Merge bool
	// WorktreePath, when set together with Merge, is removed after the
	// merge lands. MainRepoPath is where the process moves first if it
	// is standing inside the worktree.
	WorktreePath string
	MainRepoPath string

	GHPath  string
	GitPath string
}

// Monitor drives the polling loop for one pull request.
type Monitor struct {
	forge    *forge.Service
	detector *Detector
	rebaser  *Rebaser
	run      runner.Runner
	opts     Options

	// Injected clocks keep the loop testable without real sleeps.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)

	out io.Writer
}

// New creates a Monitor over the given forge service and runner. Both
// must be rooted at the same checkout so polls and git operations
// agree on which repository they are looking at.
func New(svc *forge.Service, run runner.Runner, opts Options) *Monitor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 30 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 45 * time.Minute
	}
	if opts.GHPath == "" {
		opts.GHPath = "gh"
	}
	return &Monitor{
		forge:    svc,
		detector: NewDetector(svc),
		rebaser:  NewRebaser(run, opts.GitPath),
		run:      run,
		opts:     opts,
		now:      time.Now,
		sleep:    sleepContext,
		out:      os.Stdout,
	}
}

func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Run polls until a terminal outcome: rebases when the branch falls
// behind, stops on conflicts or failed checks, and keeps waiting after
// green checks while an AI review is still pending. Poll errors are
// treated as transient and retried until the budget runs out. The
// returned event is the one that ended the run; nil on timeout.
func (m *Monitor) Run(ctx context.Context, prNumber int) (Outcome, *Event) {
	session, release, err := NewSession(prNumber, m.now())
	if err != nil {
		slog.Error("monitor cannot start", "pr", prNumber, "error", err)
		return OutcomeFailed, &Event{
			Type:      EventError,
			PRNumber:  prNumber,
			Timestamp: m.now(),
			Message:   err.Error(),
		}
	}
	defer release()
	m.saveSession(session)

	start := m.now()
	knownAI := make(map[string]struct{})
	duplicates := make(map[string]struct{})
	extendSleep := false

	for iteration := 0; ; iteration++ {
		if ctx.Err() != nil || m.now().Sub(start) > m.opts.Timeout {
			slog.Warn("monitoring budget exhausted", "pr", prNumber, "elapsed", m.now().Sub(start))
			return m.finish(session, OutcomeTimedOut, nil)
		}

		event, state := m.detector.CheckOnce(ctx, prNumber, knownAI, duplicates)
		rememberAIReviewers(m.forge, state, knownAI)
		session.Iterations = iteration + 1

		if event != nil {
			session.RecordEvent(event)
			m.saveSession(session)

			switch event.Type {
			case EventError:
				// Transient until the budget says otherwise.
				slog.Warn("poll failed", "pr", prNumber, "error", event.Message)
				if runner.RateLimitedMessage(event.Message) {
					extendSleep = true
				}
			case EventBehindDetected:
				duplicates = m.handleBehind(ctx, prNumber, session, duplicates)
			case EventDirtyDetected, EventCIFailed:
				return m.finish(session, OutcomeFailed, event)
			case EventCIPassed:
				if m.forge.HasAIReviewPending(ctx, prNumber, state.PendingReviewers) {
					slog.Info("checks green, waiting for AI review", "pr", prNumber)
				} else {
					return m.finishSuccess(ctx, session, prNumber, event)
				}
			case EventReviewCompleted:
				return m.finishSuccess(ctx, session, prNumber, event)
			}
		}

		if m.opts.HintEvery > 0 && iteration != 0 && iteration%m.opts.HintEvery == 0 {
			m.emitHints(ctx, prNumber)
		}

		interval := m.opts.PollInterval
		if extendSleep {
			// Back off one extra interval after a rate-limited poll.
			interval += m.opts.PollInterval
			extendSleep = false
		}
		m.sleep(ctx, interval)
	}
}

// NotifyOnly polls with no side effects and reports the first event as
// a JSON line on stdout. Unlike Run, a poll error ends the run
// immediately; the caller owns any retry policy. Returns nil when the
// budget expires without an event.
func (m *Monitor) NotifyOnly(ctx context.Context, prNumber int) *Event {
	start := m.now()
	knownAI := make(map[string]struct{})

	for iteration := 0; ; iteration++ {
		if ctx.Err() != nil || m.now().Sub(start) > m.opts.Timeout {
			return nil
		}

		event, state := m.detector.CheckOnce(ctx, prNumber, knownAI, nil)
		rememberAIReviewers(m.forge, state, knownAI)

		if event != nil {
			fmt.Fprintln(m.out, event.JSONLine())
			return event
		}

		if m.opts.HintEvery > 0 && iteration != 0 && iteration%m.opts.HintEvery == 0 {
			fmt.Fprintln(m.out, newStatusLine(prNumber, m.now(), stateMessage(state)))
		}

		m.sleep(ctx, m.opts.PollInterval)
	}
}

// handleBehind rebases the branch and resolves review threads the
// rebase duplicated. Any failure leaves the PR as it was; the next
// poll sees BEHIND again and retries from scratch.
func (m *Monitor) handleBehind(ctx context.Context, prNumber int, session *Session, duplicates map[string]struct{}) map[string]struct{} {
	pre := forge.CommentHashes(m.forge.ReviewComments(ctx, prNumber))
	for h := range duplicates {
		pre[h] = struct{}{}
	}

	head, base, ok := m.forge.BranchRefs(ctx, prNumber)
	if !ok {
		slog.Warn("cannot resolve branch names, skipping rebase", "pr", prNumber)
		return duplicates
	}
	if err := m.rebaser.Rebase(ctx, head, base); err != nil {
		slog.Warn("auto-rebase failed", "pr", prNumber, "error", err)
		return duplicates
	}

	resolved, updated := m.forge.AutoResolveDuplicateThreads(ctx, prNumber, pre)
	session.ResolvedDuplicates += resolved
	if resolved > 0 {
		slog.Info("resolved duplicate review threads", "pr", prNumber, "count", resolved)
	}
	return updated
}

// finishSuccess optionally merges and cleans up before recording the
// terminal outcome. A merge that does not land turns the success into
// a failure; worktree cleanup is best-effort either way.
func (m *Monitor) finishSuccess(ctx context.Context, session *Session, prNumber int, event *Event) (Outcome, *Event) {
	if m.opts.Merge {
		if err := m.mergeAndCleanup(ctx, prNumber); err != nil {
			failure := &Event{
				Type:      EventError,
				PRNumber:  prNumber,
				Timestamp: m.now(),
				Message:   err.Error(),
			}
			session.RecordEvent(failure)
			return m.finish(session, OutcomeFailed, failure)
		}
	}
	return m.finish(session, OutcomeSucceeded, event)
}

func (m *Monitor) finish(session *Session, outcome Outcome, event *Event) (Outcome, *Event) {
	session.Outcome = outcome
	m.saveSession(session)
	slog.Info("monitor finished",
		"pr", session.PR,
		"outcome", outcome.String(),
		"iterations", session.Iterations)
	return outcome, event
}

// saveSession persists the record. Persistence is observability, not
// control flow, so failures are logged and the loop moves on.
func (m *Monitor) saveSession(session *Session) {
	if err := session.Save(m.now()); err != nil {
		slog.Warn("session record write failed", "pr", session.PR, "error", err)
	}
}

// mergeConfirmDelays spaces the polls that verify a merge landed.
var mergeConfirmDelays = []time.Duration{2 * time.Second, 5 * time.Second, 10 * time.Second}

// mergeAndCleanup squash-merges the PR, waits for the forge to report
// it merged, and removes the configured worktree.
func (m *Monitor) mergeAndCleanup(ctx context.Context, prNumber int) error {
	res := m.run.Run(ctx, runner.Heavy, m.opts.GHPath, "pr", "merge", strconv.Itoa(prNumber), "--squash")
	if !res.OK {
		return fmt.Errorf("gh pr merge: %s", strings.TrimSpace(res.Stderr))
	}
	if !m.confirmMerged(ctx, prNumber) {
		return fmt.Errorf("merge of PR %d was accepted but never reported merged", prNumber)
	}
	slog.Info("merged", "pr", prNumber)

	if m.opts.WorktreePath != "" {
		if !worktree.CleanupAfterMerge(ctx, m.run, m.opts.GitPath, m.opts.WorktreePath, m.opts.MainRepoPath) {
			slog.Warn("worktree cleanup incomplete", "path", m.opts.WorktreePath)
		}
	}
	return nil
}

func (m *Monitor) confirmMerged(ctx context.Context, prNumber int) bool {
	for _, delay := range mergeConfirmDelays {
		m.sleep(ctx, delay)
		res := m.run.Run(ctx, runner.Light, m.opts.GHPath, "pr", "view", strconv.Itoa(prNumber), "--json", "state")
		if !res.OK {
			continue
		}
		var out struct {
			State string `json:"state"`
		}
		if err := json.Unmarshal([]byte(res.Stdout), &out); err != nil {
			continue
		}
		if strings.EqualFold(out.State, "MERGED") {
			return true
		}
	}
	return false
}

// emitHints logs wait-time context: unresolved thread counts, the
// newest cloud-review request, and unchecked criteria on linked
// issues. Hints are operator feedback only; nothing here feeds back
// into the loop.
func (m *Monitor) emitHints(ctx context.Context, prNumber int) {
	unresolved := 0
	for _, th := range m.forge.ReviewThreads(ctx, prNumber) {
		if !th.IsResolved {
			unresolved++
		}
	}
	inScope, outOfScope := m.forge.ClassifyComments(ctx, prNumber)
	slog.Info("still waiting",
		"pr", prNumber,
		"unresolved_threads", unresolved,
		"comments_in_scope", len(inScope),
		"comments_out_of_scope", len(outOfScope))

	if requests := m.forge.CodexReviewRequests(ctx, prNumber); len(requests) > 0 {
		newest := requests[0]
		slog.Info("cloud review request",
			"pr", prNumber,
			"comment_id", newest.CommentID,
			"acknowledged", newest.HasEyesReaction)
	}

	for _, issue := range m.forge.LinkedIssues(ctx, prNumber) {
		number, err := strconv.Atoi(issue)
		if err != nil {
			continue
		}
		if criteria := m.forge.IssueIncompleteCriteria(ctx, number); len(criteria) > 0 {
			slog.Info("linked issue has unchecked criteria",
				"issue", issue, "count", len(criteria))
		}
	}
}

// rememberAIReviewers adds any pending AI reviewer to the known set so
// its later disappearance reads as a completed review.
func rememberAIReviewers(svc *forge.Service, state *forge.PRState, known map[string]struct{}) {
	if state == nil {
		return
	}
	for _, handle := range state.PendingReviewers {
		if svc.IsAIAuthor(handle) {
			known[handle] = struct{}{}
		}
	}
}

func stateMessage(state *forge.PRState) string {
	if state == nil {
		return "polling"
	}
	return fmt.Sprintf("polling; merge_state=%s checks=%s pending_reviewers=%d",
		state.MergeState, state.CheckStatus, len(state.PendingReviewers))
}
