// Package logger provides the structured logger used across the rewards
// engine. It is a thin wrapper around logrus so call sites can carry a
// component field without repeating it.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is a component-scoped structured logger.
type Logger struct {
	*logrus.Entry
}

// New creates a logger for the given component writing to out at the given
// level. Unknown levels fall back to info.
func New(component string, level string, out io.Writer) *Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	parsed, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		parsed = logrus.InfoLevel
	}
	l.SetLevel(parsed)

	return &Logger{Entry: l.WithField("component", component)}
}

// NewDefault creates an info-level logger for the given component writing to
// stderr.
func NewDefault(component string) *Logger {
	return New(component, "info", os.Stderr)
}

// WithField returns a logger carrying an additional field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{Entry: l.Entry.WithField(key, value)}
}

// WithError returns a logger carrying the error as a field.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{Entry: l.Entry.WithError(err)}
}
