// Package logsvc pairs a structured slog line with a persisted
// SystemLog row, mirroring the repeated slog.Error(...) +
// SystemLog.objects.create(...) idiom seen throughout the original
// gateway and alert code. Every engine that needs to surface a
// recoverable failure (malformed input, unknown referent, transient
// bus error) goes through here instead of calling the store directly.
package logsvc

import (
	"log/slog"

	"github.com/homehub/core/internal/model"
	"github.com/homehub/core/internal/store"
)

// Logger writes to both slog.Default() and the SystemLog table.
type Logger struct {
	store *store.Store
}

func New(s *store.Store) *Logger {
	return &Logger{store: s}
}

func (l *Logger) log(level model.LogLevel, source, msg string, data model.State, userID *uint) {
	attrs := []any{"source", source}
	for k, v := range data {
		attrs = append(attrs, k, v)
	}
	switch level {
	case model.LevelError:
		slog.Error(msg, attrs...)
	case model.LevelWarn:
		slog.Warn(msg, attrs...)
	default:
		slog.Info(msg, attrs...)
	}

	if l.store == nil {
		return
	}
	row := &model.SystemLog{
		Level:   level,
		Source:  source,
		Message: msg,
		Data:    data,
		UserID:  userID,
	}
	if err := l.store.AppendLog(row); err != nil {
		slog.Error("logsvc: failed to persist system log", "error", err)
	}
}

func (l *Logger) Info(source, msg string, data model.State)  { l.log(model.LevelInfo, source, msg, data, nil) }
func (l *Logger) Warn(source, msg string, data model.State)  { l.log(model.LevelWarn, source, msg, data, nil) }
func (l *Logger) Error(source, msg string, data model.State) { l.log(model.LevelError, source, msg, data, nil) }
