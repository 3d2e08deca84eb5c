package apiclient

import "github.com/sirupsen/logrus"

// leveledLogger adapts logrus to retryablehttp.LeveledLogger
type leveledLogger struct {
	entry *logrus.Entry
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.with(keysAndValues).Error(msg)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.with(keysAndValues).Debug(msg)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.with(keysAndValues).Debug(msg)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.with(keysAndValues).Warn(msg)
}

func (l leveledLogger) with(keysAndValues []interface{}) *logrus.Entry {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields[key] = keysAndValues[i+1]
	}
	return l.entry.WithFields(fields)
}
