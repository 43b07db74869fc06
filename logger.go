package tat

import (
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with tat-specific context.
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
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithRank adds a rank field to the logger.
func (l *Logger) WithRank(rank int) *Logger {
	return &Logger{
		Logger: l.Logger.With("rank", rank),
	}
}

// WithBlocks adds a block-count field to the logger.
func (l *Logger) WithBlocks(blocks int) *Logger {
	return &Logger{
		Logger: l.Logger.With("blocks", blocks),
	}
}

// LogCopyOnWrite logs a mutation that had to clone a shared core.
func (l *Logger) LogCopyOnWrite(op string, elements int) {
	l.Debug("tensor core shared, copy happened",
		"op", op,
		"elements", elements,
	)
}

// LogContract logs a contraction dispatch.
func (l *Logger) LogContract(pairs, blockPairs int, err error) {
	if err != nil {
		l.Error("contract failed",
			"pairs", pairs,
			"error", err,
		)
	} else {
		l.Debug("contract completed",
			"pairs", pairs,
			"block_pairs", blockPairs,
		)
	}
}

// LogDecompose logs an SVD or QR dispatch.
func (l *Logger) LogDecompose(op string, blocks int, err error) {
	if err != nil {
		l.Error("decomposition failed",
			"op", op,
			"error", err,
		)
	} else {
		l.Debug("decomposition completed",
			"op", op,
			"blocks", blocks,
		)
	}
}

// LogSave logs a serialization operation.
func (l *Logger) LogSave(elements int, compression Compression, err error) {
	if err != nil {
		l.Error("save failed",
			"error", err,
		)
	} else {
		l.Debug("save completed",
			"elements", elements,
			"compression", compression,
		)
	}
}

var defaultLogger = NoopLogger()

// SetDefaultLogger replaces the package-level logger used by operations that
// are not given one explicitly via WithLogger.
func SetDefaultLogger(l *Logger) {
	if l == nil {
		l = NoopLogger()
	}
	defaultLogger = l
}
