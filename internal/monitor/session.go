package monitor

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/alanmeadows/shepherd/internal/store"
)

// SessionDir returns the directory monitor session records live in,
// honoring XDG_DATA_HOME.
func SessionDir() (string, error) {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		dataHome = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataHome, "shepherd", "sessions"), nil
}

// Session is the durable record of one monitor run, persisted as
// markdown with YAML frontmatter. The monitor is its only writer; the
// status command reads it under a shared lock.
type Session struct {
	PR                 int
	Started            time.Time
	Updated            time.Time
	Outcome            Outcome
	Iterations         int
	ResolvedDuplicates int

	events []string
	path   string
}

// NewSession creates the record for one run and takes the
// single-instance run lock for the PR. The returned release must be
// called when the monitor stops; holding it keeps a second monitor on
// the same PR from starting.
func NewSession(prNumber int, started time.Time) (*Session, func(), error) {
	dir, err := SessionDir()
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, nil, fmt.Errorf("creating session directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("pr-%d.md", prNumber))

	// The run lock lives on its own path so it never collides with the
	// short-lived write lock Save takes on the record itself.
	release, err := store.Acquire(path + ".run")
	if err != nil {
		return nil, nil, fmt.Errorf("another monitor is already watching PR %d: %w", prNumber, err)
	}

	return &Session{
		PR:      prNumber,
		Started: started,
		Updated: started,
		Outcome: OutcomePolling,
		path:    path,
	}, release, nil
}

// RecordEvent appends one event to the session log. Consecutive
// repeats of the same type and message collapse into the first
// occurrence, so a green PR waiting out an AI review does not fill
// the record with identical lines.
func (s *Session) RecordEvent(ev *Event) {
	line := fmt.Sprintf("`%s` %s", ev.Type, ev.Message)
	if n := len(s.events); n > 0 && strings.HasSuffix(s.events[n-1], line) {
		return
	}
	s.events = append(s.events, fmt.Sprintf("- %s %s",
		ev.Timestamp.UTC().Format(time.RFC3339), line))
}

// Save writes the record under a short-lived file lock so concurrent
// status reads never see a half-written document.
func (s *Session) Save(now time.Time) error {
	s.Updated = now
	doc := &store.Document{
		Frontmatter: map[string]any{
			"pr":                  s.PR,
			"started":             store.FormatTime(s.Started),
			"updated":             store.FormatTime(s.Updated),
			"outcome":             s.Outcome.String(),
			"iterations":          s.Iterations,
			"resolved_duplicates": s.ResolvedDuplicates,
		},
		Body: s.renderBody(),
	}
	return store.WithLock(s.path, store.DefaultLockTimeout, func() error {
		return store.WriteDocument(s.path, doc)
	})
}

func (s *Session) renderBody() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# PR %d\n\n", s.PR)
	if len(s.events) == 0 {
		b.WriteString("No events recorded.\n")
		return b.String()
	}
	for _, line := range s.events {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// SessionSummary is one row of the status listing.
type SessionSummary struct {
	PR         int
	Outcome    string
	Started    time.Time
	Updated    time.Time
	Iterations int
}

// ListSessions reads every session record under the data directory,
// most recently updated first. A missing directory means no sessions
// have ever run; unreadable records are skipped with a warning.
func ListSessions() ([]SessionSummary, error) {
	dir, err := SessionDir()
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading session directory: %w", err)
	}

	var sessions []SessionSummary
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		var doc *store.Document
		readErr := store.WithReadLock(path, store.DefaultLockTimeout, func() error {
			var e error
			doc, e = store.ReadDocument(path)
			return e
		})
		if readErr != nil {
			slog.Warn("skipping unreadable session record", "path", path, "error", readErr)
			continue
		}

		sessions = append(sessions, SessionSummary{
			PR:         store.GetInt(doc.Frontmatter, "pr"),
			Outcome:    store.GetString(doc.Frontmatter, "outcome"),
			Started:    store.GetTime(doc.Frontmatter, "started"),
			Updated:    store.GetTime(doc.Frontmatter, "updated"),
			Iterations: store.GetInt(doc.Frontmatter, "iterations"),
		})
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Updated.After(sessions[j].Updated)
	})
	return sessions, nil
}
