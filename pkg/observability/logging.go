package observability

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is a structured logger for engine components
type Logger struct {
	*slog.Logger
}

// ParseLevel maps a config string onto a slog level. Unknown values fall
// back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a new structured logger writing JSON to stderr.
func NewLogger(component string, level slog.Level) *Logger {
	return NewLoggerTo(os.Stderr, component, level, true)
}

// NewLoggerTo creates a logger writing to w. JSON when json is set,
// human-readable text otherwise.
func NewLoggerTo(w io.Writer, component string, level slog.Level, json bool) *Logger {
	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler).With(
		slog.String("component", component),
		slog.String("system", "overseer"),
	)

	return &Logger{Logger: logger}
}

// WithComponent returns a child logger scoped to a sub-component.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger: l.Logger.With(
			slog.String("component", component),
		),
	}
}

// WithWorkspace returns a logger with workspace-specific fields
func (l *Logger) WithWorkspace(workspaceID string) *Logger {
	return &Logger{
		Logger: l.Logger.With(
			slog.String("workspace_id", workspaceID),
		),
	}
}

// WithThread returns a logger with thread-specific fields
func (l *Logger) WithThread(workspaceID, threadID string) *Logger {
	return &Logger{
		Logger: l.Logger.With(
			slog.String("workspace_id", workspaceID),
			slog.String("thread_id", threadID),
		),
	}
}

// EventDispatched logs one backend event applied to the store
func (l *Logger) EventDispatched(method, workspaceID, threadID string) {
	l.Debug("event dispatched",
		slog.String("method", method),
		slog.String("workspace_id", workspaceID),
		slog.String("thread_id", threadID),
	)
}

// EventDropped logs a backend payload that did not match any known shape
func (l *Logger) EventDropped(method, reason string) {
	l.Debug("event dropped",
		slog.String("method", method),
		slog.String("reason", reason),
	)
}

// RPCFailed logs a backend RPC failure
func (l *Logger) RPCFailed(op, workspaceID string, err error) {
	l.Error("backend rpc failed",
		slog.String("op", op),
		slog.String("workspace_id", workspaceID),
		slog.String("error", err.Error()),
	)
}

// ThreadArchived logs a thread archive
func (l *Logger) ThreadArchived(workspaceID, threadID string) {
	l.Info("thread archived",
		slog.String("workspace_id", workspaceID),
		slog.String("thread_id", threadID),
	)
}

// ApprovalDecided logs an approval decision submission
func (l *Logger) ApprovalDecided(workspaceID, requestID string, approved bool) {
	l.Info("approval decided",
		slog.String("workspace_id", workspaceID),
		slog.String("request_id", requestID),
		slog.Bool("approved", approved),
	)
}

// NotificationSent logs an outbound notification
func (l *Logger) NotificationSent(adapter, workspaceID, threadID string) {
	l.Info("notification sent",
		slog.String("adapter", adapter),
		slog.String("workspace_id", workspaceID),
		slog.String("thread_id", threadID),
	)
}
