package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/taoyao-code/bms-bridge/internal/protocol/vestwoods"
)

// DefaultTopicPrefix 默认主题前缀
const DefaultTopicPrefix = "vestwoods_bms"

// Publisher 把一条遥测展开为逐字段消息：<prefix>/<device>/<key>
type Publisher struct {
	sink   Sink
	prefix string
}

// NewPublisher 创建发布器
func NewPublisher(s Sink, prefix string) *Publisher {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return &Publisher{sink: s, prefix: strings.TrimRight(prefix, "/")}
}

// Topic 生成字段主题；设备标识中的 ':' 替换为 '_'
func Topic(prefix, deviceID, key string) string {
	return prefix + "/" + DeviceSegment(deviceID) + "/" + key
}

// DeviceSegment 设备标识在主题中的形式
func DeviceSegment(deviceID string) string {
	return strings.ReplaceAll(deviceID, ":", "_")
}

// SplitTopic 拆分主题为设备段与字段名
func SplitTopic(topic string) (device, key string, ok bool) {
	i := strings.LastIndexByte(topic, '/')
	if i <= 0 {
		return "", "", false
	}
	j := strings.LastIndexByte(topic[:i], '/')
	return topic[j+1 : i], topic[i+1:], true
}

// PublishTelemetry 逐字段发布；单个字段失败不影响其余字段
func (p *Publisher) PublishTelemetry(ctx context.Context, deviceID string, t *vestwoods.Telemetry) error {
	if t == nil {
		return nil
	}
	var errs []error
	for _, f := range t.Fields() {
		payload, err := json.Marshal(f.Value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.Key, err))
			continue
		}
		if err := p.sink.Publish(ctx, Topic(p.prefix, deviceID, f.Key), payload); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.Key, err))
		}
	}
	return errors.Join(errs...)
}
