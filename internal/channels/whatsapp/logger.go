package whatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	waLog "go.mau.fi/whatsmeow/util/log"
)

// slogLogger bridges whatsmeow's printf-style logger into slog.
type slogLogger struct {
	module string
	min    slog.Level
}

var _ waLog.Logger = slogLogger{}

func newLogger(module, level string) waLog.Logger {
	return slogLogger{module: module, min: ParseLevel(level)}
}

// ParseLevel maps a config level name to a slog level. Unknown names mean warn,
// since whatsmeow is chatty at info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

func (l slogLogger) Debugf(msg string, args ...any) { l.log(slog.LevelDebug, msg, args) }
func (l slogLogger) Infof(msg string, args ...any)  { l.log(slog.LevelInfo, msg, args) }
func (l slogLogger) Warnf(msg string, args ...any)  { l.log(slog.LevelWarn, msg, args) }
func (l slogLogger) Errorf(msg string, args ...any) { l.log(slog.LevelError, msg, args) }

func (l slogLogger) Sub(module string) waLog.Logger {
	return slogLogger{module: l.module + "/" + module, min: l.min}
}

func (l slogLogger) log(level slog.Level, format string, args []any) {
	if level < l.min {
		return
	}
	slog.Log(context.Background(), level, fmt.Sprintf(format, args...), "module", l.module)
}
