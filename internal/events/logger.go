package events

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/sirupsen/logrus"
)

// logrusAdapter routes watermill logs through logrus.
type logrusAdapter struct {
	entry *logrus.Entry
}

func NewLoggerAdapter(logger *logrus.Logger) watermill.LoggerAdapter {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &logrusAdapter{entry: logger.WithField("component", "event-bus")}
}

func (l *logrusAdapter) Error(msg string, err error, fields watermill.LogFields) {
	l.with(fields).WithError(err).Error(msg)
}

func (l *logrusAdapter) Info(msg string, fields watermill.LogFields) {
	l.with(fields).Info(msg)
}

func (l *logrusAdapter) Debug(msg string, fields watermill.LogFields) {
	l.with(fields).Debug(msg)
}

func (l *logrusAdapter) Trace(msg string, fields watermill.LogFields) {
	l.with(fields).Trace(msg)
}

func (l *logrusAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &logrusAdapter{entry: l.with(fields)}
}

func (l *logrusAdapter) with(fields watermill.LogFields) *logrus.Entry {
	if len(fields) == 0 {
		return l.entry
	}
	return l.entry.WithFields(logrus.Fields(fields))
}
