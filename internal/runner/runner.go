// Package runner is the single subprocess boundary for the gh and git
// command-line tools. Every external invocation goes through Run, which
// never returns an error: callers branch on the Result triple instead.
package runner

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Class selects the timeout applied to a command.
type Class int

const (
	// Light covers single metadata lookups (gh pr view, gh repo view).
	Light Class = iota
	// Medium covers paginated lists and GraphQL queries.
	Medium
	// Heavy covers mutating git operations (fetch, rebase, push, merge).
	Heavy
)

// Timeouts holds the per-class command deadlines.
type Timeouts struct {
	Light  time.Duration
	Medium time.Duration
	Heavy  time.Duration
}

// DefaultTimeouts returns the standard light/medium/heavy deadlines.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Light:  5 * time.Second,
		Medium: 10 * time.Second,
		Heavy:  30 * time.Second,
	}
}

// Result is the complete outcome of one command invocation.
// OK is true only when the process started and exited zero.
type Result struct {
	OK     bool
	Stdout string
	Stderr string
}

// timedOutMessage is returned in Stderr when a command exceeds its
// class deadline.
const timedOutMessage = "Command timed out"

// RateLimited reports whether the command failed against the forge's
// API rate limit. gh surfaces this as a "rate limit" phrase on stderr.
func (r Result) RateLimited() bool {
	return RateLimitedMessage(r.Stderr)
}

// RateLimitedMessage reports whether s carries gh's rate-limit phrase.
// Callers that only kept the error text can still classify it.
func RateLimitedMessage(s string) bool {
	return strings.Contains(strings.ToLower(s), "rate limit")
}

// TimedOut reports whether the command was killed by its deadline.
func (r Result) TimedOut() bool {
	return !r.OK && r.Stderr == timedOutMessage
}

// Runner runs external commands. The concrete implementation is CLI;
// tests substitute a Mock.
type Runner interface {
	Run(ctx context.Context, class Class, name string, args ...string) Result
}

// CLI invokes commands as subprocesses rooted at Dir.
type CLI struct {
	// Dir is the working directory for every command. Empty means the
	// process working directory, which is where gh resolves the
	// current repository from.
	Dir      string
	Timeouts Timeouts
}

var _ Runner = (*CLI)(nil)

// New returns a CLI runner rooted at dir with default timeouts.
func New(dir string) *CLI {
	return &CLI{Dir: dir, Timeouts: DefaultTimeouts()}
}

func (c *CLI) timeout(class Class) time.Duration {
	switch class {
	case Heavy:
		return c.Timeouts.Heavy
	case Medium:
		return c.Timeouts.Medium
	default:
		return c.Timeouts.Light
	}
}

// Run executes name with args and waits for completion or the class
// deadline. A non-zero exit keeps both output streams so callers can
// inspect stderr (rate-limit detection depends on this). A deadline
// kill yields the fixed timed-out message; any other failure to run
// the process yields the error text. Run never panics and never
// returns an error value.
func (c *CLI) Run(ctx context.Context, class Class, name string, args ...string) Result {
	runCtx, cancel := context.WithTimeout(ctx, c.timeout(class))
	defer cancel()

	cmd := exec.CommandContext(runCtx, name, args...)
	cmd.Dir = c.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	slog.Debug("running command", "name", name, "args", SanitizeForLog(args))

	err := cmd.Run()
	if err == nil {
		return Result{OK: true, Stdout: stdout.String(), Stderr: stderr.String()}
	}

	if runCtx.Err() == context.DeadlineExceeded {
		slog.Warn("command timed out", "name", name, "args", SanitizeForLog(args), "timeout", c.timeout(class))
		return Result{OK: false, Stdout: "", Stderr: timedOutMessage}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return Result{OK: false, Stdout: stdout.String(), Stderr: stderr.String()}
	}

	// The process never ran (binary missing, ctx canceled before start).
	return Result{OK: false, Stdout: "", Stderr: err.Error()}
}
