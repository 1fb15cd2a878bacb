package definition

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the logging surface every syncmesh package logs through. Same
// method set as the teacher's definition.Logger: callers never reach for
// fmt.Println or the stdlib log package directly.
type Logger interface {
	Info(v ...interface{})
	Infof(format string, v ...interface{})
	Warn(v ...interface{})
	Warnf(format string, v ...interface{})
	Error(v ...interface{})
	Errorf(format string, v ...interface{})
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})
	Fatal(v ...interface{})
	Fatalf(format string, v ...interface{})
	Panic(v ...interface{})
	Panicf(format string, v ...interface{})
	ToggleDebug(value bool) bool
}

// LogrusLogger is the default Logger implementation, backed by
// sirupsen/logrus instead of the teacher's raw stdlib log.Logger wrapper.
type LogrusLogger struct {
	base  *logrus.Logger
	entry *logrus.Entry
}

// NewDefaultLogger builds a Logger writing to stderr at info level, with
// every line tagged with a "component" field set to name.
func NewDefaultLogger(name string) *LogrusLogger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return &LogrusLogger{base: l, entry: l.WithField("component", name)}
}

func (l *LogrusLogger) Info(v ...interface{})                   { l.entry.Info(v...) }
func (l *LogrusLogger) Infof(format string, v ...interface{})   { l.entry.Infof(format, v...) }
func (l *LogrusLogger) Warn(v ...interface{})                   { l.entry.Warn(v...) }
func (l *LogrusLogger) Warnf(format string, v ...interface{})   { l.entry.Warnf(format, v...) }
func (l *LogrusLogger) Error(v ...interface{})                  { l.entry.Error(v...) }
func (l *LogrusLogger) Errorf(format string, v ...interface{})  { l.entry.Errorf(format, v...) }
func (l *LogrusLogger) Fatal(v ...interface{})                  { l.entry.Fatal(v...) }
func (l *LogrusLogger) Fatalf(format string, v ...interface{})  { l.entry.Fatalf(format, v...) }
func (l *LogrusLogger) Panic(v ...interface{})                  { l.entry.Panic(v...) }
func (l *LogrusLogger) Panicf(format string, v ...interface{})  { l.entry.Panicf(format, v...) }

func (l *LogrusLogger) Debug(v ...interface{}) {
	l.entry.Debug(v...)
}

func (l *LogrusLogger) Debugf(format string, v ...interface{}) {
	l.entry.Debugf(format, v...)
}

func (l *LogrusLogger) ToggleDebug(value bool) bool {
	if value {
		l.base.SetLevel(logrus.DebugLevel)
	} else {
		l.base.SetLevel(logrus.InfoLevel)
	}
	return value
}
