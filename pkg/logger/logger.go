package logger

import (
	"log/slog"
)

// CronLogger adapts a *slog.Logger to the logging interface of robfig/cron.
// Info messages are demoted to debug so routine scheduler chatter stays quiet.
type CronLogger struct {
	l *slog.Logger
}

// NewCronLogger wraps l; a nil logger discards everything.
func NewCronLogger(l *slog.Logger) *CronLogger {
	return &CronLogger{l: l}
}

// Info logs scheduler bookkeeping such as wakeups and scheduled runs.
func (c *CronLogger) Info(msg string, keysAndValues ...interface{}) {
	if c.l == nil {
		return
	}
	c.l.Debug("cron: "+msg, keysAndValues...)
}

// Error logs a scheduler failure, including recovered job panics.
func (c *CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	if c.l == nil {
		return
	}
	args := append([]any{"error", err}, keysAndValues...)
	c.l.Error("cron: "+msg, args...)
}
