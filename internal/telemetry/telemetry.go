// Package telemetry wraps github.com/sirupsen/logrus with the small
// component/chain field convention used across this module, matching
// the structured-field logging style the retrieval pack's k3s-io/k3s
// source uses throughout (e.g. agent/config/config.go,
// cli/cmd/server/server.go) in place of the teacher's plain fmt/"log"
// calls, which have no place left once this module runs as a
// long-lived agent rather than an interactive shell.
package telemetry

import "github.com/sirupsen/logrus"

// Logger is the narrow logging surface the rest of this module depends
// on, so call sites never import logrus directly.
type Logger interface {
	With(key string, value any) Logger
	Debug(msg string)
	Warn(msg string)
	Error(msg string)
}

type logrusLogger struct {
	entry *logrus.Entry
}

// New wraps a *logrus.Logger, defaulting to logrus.StandardLogger() when
// l is nil.
func New(l *logrus.Logger) Logger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return &logrusLogger{entry: logrus.NewEntry(l)}
}

// NewNop returns a Logger that discards everything, for call sites
// (tests, library defaults) that don't want a logging dependency forced
// on them.
func NewNop() Logger {
	l := logrus.New()
	l.SetOutput(discard{})
	return New(l)
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func (l *logrusLogger) With(key string, value any) Logger {
	return &logrusLogger{entry: l.entry.WithField(key, value)}
}

func (l *logrusLogger) Debug(msg string) { l.entry.Debug(msg) }
func (l *logrusLogger) Warn(msg string)  { l.entry.Warn(msg) }
func (l *logrusLogger) Error(msg string) { l.entry.Error(msg) }
