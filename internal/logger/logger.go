// Package logger provides per-component named loggers backed by logrus.
package logger

import (
	"github.com/sirupsen/logrus"
)

// Logger is the logging surface used throughout the engine. Every
// long-lived component (a session, a torrent, a peer connection) gets its
// own named instance via New so log lines can be attributed at a glance.
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Debugln(args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Infoln(args ...interface{})
	Warning(args ...interface{})
	Warningf(format string, args ...interface{})
	Warningln(args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Errorln(args ...interface{})
}

var std = logrus.New()

// SetLevel controls the verbosity of every logger returned by New.
func SetLevel(level logrus.Level) {
	std.SetLevel(level)
}

type entry struct {
	*logrus.Entry
}

func (e *entry) Warning(args ...interface{})                 { e.Entry.Warn(args...) }
func (e *entry) Warningf(format string, args ...interface{}) { e.Entry.Warnf(format, args...) }
func (e *entry) Warningln(args ...interface{})               { e.Entry.Warnln(args...) }

// New returns a Logger tagged with name, e.g. "peer <- 1.2.3.4:6881" or
// "torrent abcd1234".
func New(name string) Logger {
	return &entry{std.WithField("component", name)}
}
