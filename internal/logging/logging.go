// Package logging wires the process-wide slog logger to a
// charmbracelet/log backend. All diagnostics go to stderr so that
// notify-only mode can stream machine-readable events on stdout.
package logging

import (
	"log/slog"
	"os"

	charmlog "github.com/charmbracelet/log"
	"golang.org/x/term"
)

// Setup initializes the global slog logger using charmbracelet/log as the backend.
// If the output is a terminal, uses colored text format. Otherwise, uses JSON format.
// Quiet wins over verbose: notify-only consumers usually want warnings only.
func Setup(verbose, quiet bool) {
	handler := charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		ReportTimestamp: true,
	})

	switch {
	case quiet:
		handler.SetLevel(charmlog.WarnLevel)
	case verbose:
		handler.SetLevel(charmlog.DebugLevel)
	default:
		handler.SetLevel(charmlog.InfoLevel)
	}

	// Use plain format for non-TTY output
	if !isTerminal() {
		handler.SetFormatter(charmlog.JSONFormatter)
	}

	slog.SetDefault(slog.New(handler))
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}
