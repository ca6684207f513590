package sink

import (
	"context"

	"go.uber.org/zap"
)

// LogSink 把每条消息写入日志（调试/未配置下游时使用）
type LogSink struct {
	logger *zap.Logger
	level  zap.AtomicLevel
}

// NewLogSink level 为空时使用 debug
func NewLogSink(logger *zap.Logger, level string) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	lvl := zap.NewAtomicLevelAt(zap.DebugLevel)
	if level != "" {
		if l, err := zap.ParseAtomicLevel(level); err == nil {
			lvl = l
		}
	}
	return &LogSink{logger: logger.With(zap.String("component", "sink_log")), level: lvl}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Publish(_ context.Context, topic string, payload []byte) error {
	if ce := s.logger.Check(s.level.Level(), "publish"); ce != nil {
		ce.Write(zap.String("topic", topic), zap.ByteString("value", payload))
	}
	return nil
}

func (s *LogSink) Close() error { return nil }
