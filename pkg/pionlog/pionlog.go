// Package pionlog routes the log output of the pion media stack through
// logrus.
package pionlog

import (
	"github.com/pion/logging"
	"github.com/sirupsen/logrus"
)

var _ logging.LoggerFactory = (*Factory)(nil)

// Factory creates leveled loggers that write to a logrus logger with a
// "scope" field. Levels map one-to-one, except that logrus' trace level is
// only reached when the logger is configured for it.
type Factory struct {
	Logger *logrus.Logger
}

func NewFactory(logger *logrus.Logger) *Factory {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Factory{Logger: logger}
}

func (f *Factory) NewLogger(scope string) logging.LeveledLogger {
	return &Logger{
		entry: f.Logger.WithField("scope", scope),
	}
}

type Logger struct {
	entry *logrus.Entry
}

func (l *Logger) Trace(msg string)                          { l.entry.Trace(msg) }
func (l *Logger) Tracef(format string, args ...interface{}) { l.entry.Tracef(format, args...) }
func (l *Logger) Debug(msg string)                          { l.entry.Debug(msg) }
func (l *Logger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *Logger) Info(msg string)                           { l.entry.Info(msg) }
func (l *Logger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *Logger) Warn(msg string)                           { l.entry.Warn(msg) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *Logger) Error(msg string)                          { l.entry.Error(msg) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }
