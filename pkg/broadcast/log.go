package broadcast

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig configures the log sink.
type LogConfig struct {
	Level string `mapstructure:"level"` // zap level name, default info
}

// LogSink writes messages to a zap logger.
type LogSink struct {
	logger *zap.Logger
	level  zapcore.Level
}

func NewLogSink(cfg map[string]any, logger *zap.Logger) (Sink, error) {
	var c LogConfig
	if err := DecodeConfig(cfg, &c); err != nil {
		return nil, err
	}
	level := zapcore.InfoLevel
	if c.Level != "" {
		var err error
		if level, err = zapcore.ParseLevel(c.Level); err != nil {
			return nil, err
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger, level: level}, nil
}

func (s *LogSink) Publish(_ context.Context, m Message) error {
	s.logger.Log(s.level, "event",
		zap.String("name", m.Name),
		zap.String("service", m.Service),
		zap.String("resource", m.Resource),
		zap.String("method", m.Method),
		zap.Any("request", m.Request),
		zap.Any("response", m.Response),
	)
	return nil
}

func (s *LogSink) Close() error { return nil }

func init() {
	Register("log", NewLogSink)
}
