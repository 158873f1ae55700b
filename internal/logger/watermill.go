package logger

import "github.com/ThreeDotsLabs/watermill"

// watermillLogger adapts our Logger to watermill's logging interface
type watermillLogger struct {
	logger *Logger
}

// GetWatermillLogger returns a watermill-compatible logger
func (l *Logger) GetWatermillLogger() watermill.LoggerAdapter {
	return &watermillLogger{logger: l}
}

func (w *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	w.logger.Errorw(msg, append(flatten(fields), "error", err)...)
}

func (w *watermillLogger) Info(msg string, fields watermill.LogFields) {
	w.logger.Infow(msg, flatten(fields)...)
}

func (w *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	w.logger.Debugw(msg, flatten(fields)...)
}

func (w *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	w.logger.Debugw(msg, flatten(fields)...)
}

func (w *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillLogger{logger: w.logger.With(flatten(fields)...)}
}

func flatten(fields watermill.LogFields) []interface{} {
	out := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		out = append(out, k, v)
	}
	return out
}
