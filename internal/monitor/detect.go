package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/alanmeadows/shepherd/internal/forge"
	"github.com/alanmeadows/shepherd/internal/runner"
)

// Detector classifies one fresh PR snapshot into at most one event.
type Detector struct {
	forge *forge.Service
	now   func() time.Time
}

// NewDetector creates a Detector over the given forge service.
func NewDetector(svc *forge.Service) *Detector {
	return &Detector{forge: svc, now: time.Now}
}

// snapshot bundles everything one detection pass looks at. state is
// nil exactly when errMsg is non-empty.
type snapshot struct {
	state   *forge.PRState
	errMsg  string
	knownAI map[string]struct{}
}

// detectRule pairs a predicate with the event it produces. Rules are
// walked strictly in order and the first match wins, so the priority
// contract lives in one place instead of an if/else chain.
type detectRule struct {
	name  string
	match func(snap snapshot) bool
	build func(snap snapshot) (EventType, string)
}

var detectRules = []detectRule{
	{
		name:  "poll error",
		match: func(s snapshot) bool { return s.errMsg != "" },
		build: func(s snapshot) (EventType, string) { return EventError, s.errMsg },
	},
	{
		name:  "behind base",
		match: func(s snapshot) bool { return s.state.MergeState == forge.MergeStateBehind },
		build: func(s snapshot) (EventType, string) {
			return EventBehindDetected, "branch is behind its base and can be rebased"
		},
	},
	{
		name:  "merge conflicts",
		match: func(s snapshot) bool { return s.state.MergeState == forge.MergeStateDirty },
		build: func(s snapshot) (EventType, string) {
			return EventDirtyDetected, "merge conflicts need manual resolution"
		},
	},
	{
		name:  "checks passed",
		match: func(s snapshot) bool { return s.state.CheckStatus == forge.CheckSuccess },
		build: func(s snapshot) (EventType, string) {
			if n := len(s.state.CheckDetails); n > 0 {
				return EventCIPassed, fmt.Sprintf("all %d checks passed", n)
			}
			return EventCIPassed, "no checks configured"
		},
	},
	{
		name:  "checks failed",
		match: func(s snapshot) bool { return s.state.CheckStatus == forge.CheckFailure },
		build: func(s snapshot) (EventType, string) {
			return EventCIFailed, failedChecksMessage(s.state.CheckDetails)
		},
	},
	{
		name:  "ai review completed",
		match: func(s snapshot) bool { return completedReviewer(s) != "" },
		build: func(s snapshot) (EventType, string) {
			return EventReviewCompleted, completedReviewer(s) + " finished reviewing"
		},
	},
}

// CheckOnce fetches a fresh snapshot and walks the rule table. It
// returns the first matching event, or nil when nothing actionable
// changed, plus the snapshot itself so the caller can track reviewers
// without a second fetch. duplicates filters already-seen bot comments
// out of the review log written on a completed review.
func (d *Detector) CheckOnce(ctx context.Context, prNumber int, knownAI map[string]struct{}, duplicates map[string]struct{}) (*Event, *forge.PRState) {
	state, errMsg := d.forge.PRState(ctx, prNumber)
	snap := snapshot{state: state, errMsg: errMsg, knownAI: knownAI}

	for _, rule := range detectRules {
		if !rule.match(snap) {
			continue
		}
		eventType, message := rule.build(snap)
		slog.Debug("event detected", "pr", prNumber, "rule", rule.name, "type", eventType.String())
		if eventType == EventReviewCompleted {
			d.logReviewComments(ctx, prNumber, duplicates)
		}
		return &Event{
			Type:      eventType,
			PRNumber:  prNumber,
			Timestamp: d.now(),
			Message:   message,
		}, state
	}
	return nil, state
}

// logReviewComments surfaces what the reviewer left behind, minus
// comments already recognized as rebase duplicates.
func (d *Detector) logReviewComments(ctx context.Context, prNumber int, duplicates map[string]struct{}) {
	comments := d.forge.FilterDuplicateComments(d.forge.ReviewComments(ctx, prNumber), duplicates)
	slog.Info("review completed", "pr", prNumber, "comments", len(comments))
	for _, c := range comments {
		slog.Info("review comment",
			"pr", prNumber,
			"author", c.Author,
			"path", c.Path,
			"line", c.Line,
			"body", runner.SanitizeForLog(c.Body))
	}
}

// completedReviewer returns a previously-known AI reviewer that is no
// longer in the pending set, or "" when every known reviewer is still
// pending. Handles are compared case-insensitively and walked in
// sorted order so the result is stable across calls.
func completedReviewer(s snapshot) string {
	if len(s.knownAI) == 0 {
		return ""
	}
	pending := make(map[string]struct{}, len(s.state.PendingReviewers))
	for _, r := range s.state.PendingReviewers {
		pending[strings.ToLower(r)] = struct{}{}
	}
	handles := make([]string, 0, len(s.knownAI))
	for h := range s.knownAI {
		handles = append(handles, h)
	}
	sort.Strings(handles)
	for _, h := range handles {
		if _, still := pending[strings.ToLower(h)]; !still {
			return h
		}
	}
	return ""
}

func failedChecksMessage(details []forge.CheckDetail) string {
	var failed []string
	for _, d := range details {
		if d.State == forge.CheckFailure {
			failed = append(failed, d.Name)
		}
	}
	if len(failed) == 0 {
		return "checks failed"
	}
	return "failing checks: " + strings.Join(failed, ", ")
}
