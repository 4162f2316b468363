// Package evlog is the logging facade used by the monitor and its pollers.
// It is silent until SetLogger installs a logrus-backed logger.
package evlog

import "github.com/sirupsen/logrus"

type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warningf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

var logger = NewNoneLogger()

func SetLogger(l Logger) {
	if l == nil {
		l = NewNoneLogger()
	}
	logger = l
}

func GetLogger() Logger {
	return logger
}

func Debugf(format string, args ...interface{}) {
	logger.Debugf(format, args...)
}

func Infof(format string, args ...interface{}) {
	logger.Infof(format, args...)
}

func Warningf(format string, args ...interface{}) {
	logger.Warningf(format, args...)
}

func Errorf(format string, args ...interface{}) {
	logger.Errorf(format, args...)
}

func NewDebugLogger() Logger {
	l := logrus.New()
	l.SetLevel(logrus.DebugLevel)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return NewLoggerWith(l)
}

func NewLogger() Logger {
	return NewLoggerWith(logrus.New())
}

// NewLoggerWith routes monitor diagnostics to an existing logrus logger,
// tagged with component=stream.
func NewLoggerWith(l *logrus.Logger) Logger {
	return &stdLogger{l.WithField("component", "stream")}
}

type stdLogger struct {
	entry *logrus.Entry
}

func (l *stdLogger) Debugf(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

func (l *stdLogger) Infof(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

func (l *stdLogger) Warningf(format string, args ...interface{}) {
	l.entry.Warningf(format, args...)
}

func (l *stdLogger) Errorf(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}

func NewNoneLogger() Logger {
	return &noneLogger{}
}

type noneLogger struct{}

func (l *noneLogger) Debugf(format string, args ...interface{}) {}

func (l *noneLogger) Infof(format string, args ...interface{}) {}

func (l *noneLogger) Warningf(format string, args ...interface{}) {}

func (l *noneLogger) Errorf(format string, args ...interface{}) {}
