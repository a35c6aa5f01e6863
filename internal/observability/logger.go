// Package observability implements logging, HTTP access-log middleware,
// and Prometheus metrics: a slog JSON logger, request middleware, and
// the named gauges/counters/histograms of the admin metrics surface.
package observability

import (
	"log/slog"
	"os"
)

// Config controls logger construction.
type Config struct {
	// Level is the minimum level that will be logged.
	Level slog.Level
	// JSON selects the JSON handler over the text handler. Servers and
	// workers both default to JSON; text is useful for local debugging.
	JSON bool
}

// NewLogger returns a slog.Logger writing to stderr per cfg. No trace
// context is injected: tablejohn is a two-hop system whose requests
// already carry their own correlation (worker name, run id), so there
// is no span tree worth attaching log lines to.
func NewLogger(cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
