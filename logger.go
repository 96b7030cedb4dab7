package strpool

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger and reports pool events as structured log records.
// It implements Observer, so it can be handed to WithObserver directly.
type Logger struct {
	*slog.Logger
}

// NewLogger wraps handler. A nil handler writes text records at info level to stderr
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, nil)
	}
	return &Logger{slog.New(handler)}
}

// NoopLogger drops every record
func NoopLogger() *Logger {
	return &Logger{slog.New(slog.DiscardHandler)}
}

// WithPool adds a pool name field to the logger (useful with a Registry).
func (l *Logger) WithPool(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("pool", name),
	}
}

// Observe logs a pool event. Growth is debug level, a failed placement is a warning.
func (l *Logger) Observe(e Event) {
	ctx := context.Background()
	switch e.Kind {
	case EventRehash:
		l.LogRehash(ctx, e.OldCapacity, e.NewCapacity, e.Size)
	case EventBufferGrow:
		l.DebugContext(ctx, "buffer grown",
			"old_capacity", e.OldCapacity,
			"new_capacity", e.NewCapacity,
			"size", e.Size,
		)
	case EventPlacementFailed:
		l.WarnContext(ctx, "no free slot for new entry, resetting load factor",
			"load_factor", e.LoadFactor,
			"default_load_factor", DefaultLoadFactor,
			"capacity", e.OldCapacity,
			"size", e.Size,
		)
	}
}

// LogRehash logs a completed rehash.
func (l *Logger) LogRehash(ctx context.Context, oldCapacity, newCapacity, size int) {
	l.DebugContext(ctx, "set rehashed",
		"old_capacity", oldCapacity,
		"new_capacity", newCapacity,
		"size", size,
	)
}

// LogIntern logs a failed insert.
func (l *Logger) LogIntern(ctx context.Context, length int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "intern failed",
			"length", length,
			"error", err,
		)
	}
}
