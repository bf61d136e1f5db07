package dbg

import (
	"context"
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// componentLogger returns a logger tagged with "component" so that a
// multi-handler fan-out (console + optional file) can be filtered or
// routed per component without every package constructing its own
// handler chain.
func componentLogger(base *slog.Logger, component string) *slog.Logger {
	return base.With(slog.String("component", component))
}

// NewLogger builds the module's default structured logger: a console
// text handler, and, when logFile is non-nil, a second JSON handler
// fanned out via slog-multi so both sinks see every record.
func NewLogger(level slog.Level, logFile io.Writer) *slog.Logger {
	handlers := []slog.Handler{
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
	}

	if logFile != nil {
		handlers = append(handlers, slog.NewJSONHandler(logFile, &slog.HandlerOptions{Level: level}))
	}

	return slog.New(slogmulti.Fanout(handlers...))
}

// discardLogger is used when a Handle is constructed without an
// explicit logger (e.g. in tests), so component code never has to
// nil-check.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// warnOnce emits a single warning for a repeated condition, matching
// §7 "a warning is emitted once per malformed unit, not per query".
type warnOnce struct {
	seen map[string]struct{}
}

func newWarnOnce() *warnOnce {
	return &warnOnce{seen: make(map[string]struct{})}
}

func (w *warnOnce) warn(ctx context.Context, logger *slog.Logger, key, msg string, args ...any) {
	if _, ok := w.seen[key]; ok {
		return
	}
	w.seen[key] = struct{}{}
	logger.WarnContext(ctx, msg, args...)
}
