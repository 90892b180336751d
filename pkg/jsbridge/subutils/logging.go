package subutils

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tsarna/jsbridge/pkg/jsbridge/bus"
)

// LoggingSubscriber logs every call it receives and then delegates to an
// optional wrapped subscriber. With no wrapped subscriber it is a plain
// event logger.
type LoggingSubscriber struct {
	wrapped bus.Subscriber
	logger  *zap.Logger
	level   zapcore.Level
	name    string
}

func NewLoggingSubscriber(wrapped bus.Subscriber, logger *zap.Logger, level zapcore.Level) *LoggingSubscriber {
	return NewNamedLoggingSubscriber(wrapped, logger, level, "observer")
}

func NewNamedLoggingSubscriber(wrapped bus.Subscriber, logger *zap.Logger, level zapcore.Level, name string) *LoggingSubscriber {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &LoggingSubscriber{
		wrapped: wrapped,
		logger:  logger,
		level:   level,
		name:    name,
	}
}

func (l *LoggingSubscriber) OnSubscribe(ctx context.Context, pattern string) error {
	l.logger.Log(l.level, "Subscribed",
		zap.String("subscriber", l.name),
		zap.String("pattern", pattern),
	)

	if l.wrapped != nil {
		return l.wrapped.OnSubscribe(ctx, pattern)
	}
	return nil
}

func (l *LoggingSubscriber) OnUnsubscribe(ctx context.Context, pattern string) error {
	l.logger.Log(l.level, "Unsubscribed",
		zap.String("subscriber", l.name),
		zap.String("pattern", pattern),
	)

	if l.wrapped != nil {
		return l.wrapped.OnUnsubscribe(ctx, pattern)
	}
	return nil
}

func (l *LoggingSubscriber) OnEvent(ctx context.Context, eventType string, data any, fields map[string]string) error {
	l.logger.Log(l.level, "Event observed",
		zap.String("subscriber", l.name),
		zap.String("event_type", eventType),
		zap.String("data", describe(data)),
		zap.Any("fields", fields),
	)

	if l.wrapped != nil {
		return l.wrapped.OnEvent(ctx, eventType, data, fields)
	}
	return nil
}

// describe renders event data compactly for the log line.
func describe(data any) string {
	switch v := data.(type) {
	case nil:
		return "null"
	case string:
		return v
	case []byte:
		return string(v)
	case json.RawMessage:
		return string(v)
	}

	if b, err := json.Marshal(data); err == nil {
		return string(b)
	}
	return fmt.Sprintf("%v", data)
}
