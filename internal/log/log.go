// Package log is the logging layer of caspar, a thin construction layer over
// log/slog. Loggers are injected, never global: every component takes a
// log.Logger in its constructor and scopes it with With("component", ...).
//
//	logger := log.New(log.Config{JSON: true})
//	a, err := agent.New(store, decider, det, registry, retriever, queue, cfg,
//		logger.With("component", "agent"))
package log

import (
	"io"
	"log/slog"
	"os"
)

// Logger aliases *slog.Logger so components depend on the standard type and
// keep the full slog API, With and friends included.
type Logger = *slog.Logger

// Config controls handler construction.
type Config struct {
	// Level is the minimum level emitted. Zero value is slog.LevelInfo.
	Level slog.Level

	// JSON selects the JSON handler over the text handler.
	JSON bool

	// AddSource annotates records with the file and line of the call site.
	AddSource bool
}

// New creates a logger writing to stderr.
func New(cfg Config) Logger {
	return NewWithWriter(os.Stderr, cfg)
}

// NewWithWriter creates a logger writing to w. Tests pass a bytes.Buffer to
// inspect output.
func NewWithWriter(w io.Writer, cfg Config) Logger {
	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}
	if cfg.JSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// NewNop returns a logger that discards everything. Test-only: production
// call sites always get a real logger from New or NewWithWriter.
func NewNop() Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
