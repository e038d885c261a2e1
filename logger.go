package neosample

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with sampler-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, nil))
}

// WithSampleID tags every record with the id of one sample call.
func (l *Logger) WithSampleID(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("sample_id", id),
	}
}

// WithHop adds a hop field to the logger.
func (l *Logger) WithHop(hop int) *Logger {
	return &Logger{
		Logger: l.Logger.With("hop", hop),
	}
}

// LogHop logs the outcome of one hop expansion.
func (l *Logger) LogHop(ctx context.Context, hop, edgeTypes, edges int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "hop expansion failed",
			"hop", hop,
			"edge_types", edgeTypes,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "hop expanded",
		"hop", hop,
		"edge_types", edgeTypes,
		"edges", edges,
	)
}

// LogSample logs a completed or aborted sample call.
func (l *Logger) LogSample(ctx context.Context, seeds, hops int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "sample failed",
			"seeds", seeds,
			"hops", hops,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "sample completed",
		"seeds", seeds,
		"hops", hops,
	)
}

// LogEarlyStop logs that expansion ended before the configured depth.
func (l *Logger) LogEarlyStop(ctx context.Context, hop, requested int) {
	l.InfoContext(ctx, "expansion stopped early, hop found no neighbors",
		"hop", hop,
		"requested_hops", requested,
	)
}
