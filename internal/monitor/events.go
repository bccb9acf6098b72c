// Package monitor drives a pull request toward a mergeable state: it
// polls the forge, classifies each snapshot into at most one event,
// rebases when the branch falls behind, waits out AI reviewers, and
// optionally merges and cleans up the worktree at the end.
package monitor

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType classifies what a poll iteration observed.
type EventType int

const (
	EventError EventType = iota
	EventBehindDetected
	EventDirtyDetected
	EventCIPassed
	EventCIFailed
	EventReviewCompleted
)

// String returns the wire name of the event type.
func (t EventType) String() string {
	switch t {
	case EventBehindDetected:
		return "behind_detected"
	case EventDirtyDetected:
		return "dirty_detected"
	case EventCIPassed:
		return "ci_passed"
	case EventCIFailed:
		return "ci_failed"
	case EventReviewCompleted:
		return "review_completed"
	default:
		return "error"
	}
}

// MarshalJSON encodes the type as its wire name so event lines stay
// readable for the process consuming them.
func (t EventType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// Event is the single actionable observation of one poll iteration.
// At most one event exists per snapshot.
type Event struct {
	Type      EventType `json:"type"`
	PRNumber  int       `json:"pr_number"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// JSONLine renders the event as one line for notify-only stdout.
func (e *Event) JSONLine() string {
	data, err := json.Marshal(e)
	if err != nil {
		// Event fields are plain values; Marshal cannot fail on them.
		return fmt.Sprintf(`{"type":%q,"pr_number":%d}`, e.Type.String(), e.PRNumber)
	}
	return string(data)
}

// statusLine is the periodic heartbeat notify-only mode emits between
// events so a consumer can tell a quiet PR from a dead monitor.
type statusLine struct {
	Type      string    `json:"type"`
	PRNumber  int       `json:"pr_number"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

func newStatusLine(prNumber int, now time.Time, message string) string {
	data, _ := json.Marshal(statusLine{
		Type:      "status",
		PRNumber:  prNumber,
		Timestamp: now,
		Message:   message,
	})
	return string(data)
}
