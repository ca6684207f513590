package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics 自定义业务指标
type AppMetrics struct {
	FramesTotal        *prometheus.CounterVec   // labels: device, result=ok|<reject reason>
	NotificationBytes  *prometheus.CounterVec   // labels: device
	LinkState          *prometheus.GaugeVec     // labels: device；值为驱动状态序号
	ReconnectTotal     *prometheus.CounterVec   // labels: device
	PollDuration       *prometheus.HistogramVec // labels: device
	BufferDesyncTotal  *prometheus.CounterVec   // labels: device
	SinkPublishTotal   *prometheus.CounterVec   // labels: sink, result=ok|error
	SinkDroppedTotal   prometheus.Counter       // 队列满丢弃
	SinkQueueDepth     prometheus.Gauge
	DevicesOnlineGauge prometheus.Gauge // 当前在线设备数
}

// NewAppMetrics 注册并返回业务指标
func NewAppMetrics(reg *prometheus.Registry) *AppMetrics {
	m := &AppMetrics{
		FramesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bms_frames_total",
			Help: "Candidate frames extracted from notifications by result.",
		}, []string{"device", "result"}),
		NotificationBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bms_notification_bytes_total",
			Help: "Total notification bytes captured.",
		}, []string{"device"}),
		LinkState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bms_link_state",
			Help: "Poll driver state (0=disconnected 1=connecting 2=connected 3=polling 4=idle).",
		}, []string{"device"}),
		ReconnectTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bms_reconnect_total",
			Help: "Connection attempts after a failure or disconnect.",
		}, []string{"device"}),
		PollDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bms_poll_duration_seconds",
			Help:    "Duration of one poll cycle (subscribe to drain).",
			Buckets: []float64{0.5, 1, 2, 2.5, 3, 5, 10},
		}, []string{"device"}),
		BufferDesyncTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bms_buffer_desync_total",
			Help: "Reassembly buffer clears caused by missing start sentinel or overflow.",
		}, []string{"device"}),
		SinkPublishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bms_sink_publish_total",
			Help: "Sink publish attempts by result.",
		}, []string{"sink", "result"}),
		SinkDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bms_sink_dropped_total",
			Help: "Messages dropped because the sink queue was full.",
		}),
		SinkQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bms_sink_queue_depth",
			Help: "Messages waiting in the sink queue.",
		}),
		DevicesOnlineGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bms_devices_online",
			Help: "Current number of online devices.",
		}),
	}
	reg.MustRegister(
		m.FramesTotal, m.NotificationBytes, m.LinkState, m.ReconnectTotal, m.PollDuration,
		m.BufferDesyncTotal, m.SinkPublishTotal, m.SinkDroppedTotal, m.SinkQueueDepth, m.DevicesOnlineGauge,
	)
	return m
}
