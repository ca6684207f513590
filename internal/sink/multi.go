package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/taoyao-code/bms-bridge/internal/metrics"
)

// Multi 扇出到多个 sink；每个 sink 都会被尝试
type Multi struct {
	sinks []Sink
}

// NewMulti 创建扇出 sink
func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

func (m *Multi) Name() string { return "multi" }

// Sinks 返回成员
func (m *Multi) Sinks() []Sink { return m.sinks }

func (m *Multi) Publish(ctx context.Context, topic string, payload []byte) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Publish(ctx, topic, payload); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// instrumented 按 sink 名称统计发布结果
type instrumented struct {
	Sink
	m *metrics.AppMetrics
}

// Instrument 为 sink 增加发布计数；m 为 nil 时原样返回
func Instrument(s Sink, m *metrics.AppMetrics) Sink {
	if m == nil {
		return s
	}
	return &instrumented{Sink: s, m: m}
}

func (i *instrumented) Publish(ctx context.Context, topic string, payload []byte) error {
	err := i.Sink.Publish(ctx, topic, payload)
	result := "ok"
	if err != nil {
		result = "error"
	}
	i.m.SinkPublishTotal.WithLabelValues(i.Name(), result).Inc()
	return err
}
