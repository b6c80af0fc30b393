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
	MessagesRouted  *prometheus.CounterVec // labels: kind
	DecodeTotal     *prometheus.CounterVec // labels: kind, result=ok|error
	AppMessageTotal *prometheus.CounterVec // labels: app_uuid, result=decoded|forwarded|nack
	DatalogTotal    *prometheus.CounterVec // labels: result=ack|nack
	DispatchTotal   *prometheus.CounterVec // labels: event_type, result=ok|error
	SignalTotal     *prometheus.CounterVec // labels: type
	OutboundDropped prometheus.Counter     // 下行重试耗尽丢弃数
	OutboundQueue   prometheus.Gauge       // 当前下行队列长度
	OnlineGauge     prometheus.Gauge       // 当前在线设备数
	SessionsOpen    prometheus.Gauge       // 当前打开的数据日志会话数
}

// NewAppMetrics 注册并返回业务指标
func NewAppMetrics(reg *prometheus.Registry) *AppMetrics {
	m := &AppMetrics{
		MessagesRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wearable_messages_routed_total",
			Help: "Inbound device messages routed by kind.",
		}, []string{"kind"}),
		DecodeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wearable_decode_total",
			Help: "System message decode attempts.",
		}, []string{"kind", "result"}),
		AppMessageTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wearable_appmessage_total",
			Help: "App message pushes by owning app and outcome.",
		}, []string{"app_uuid", "result"}),
		DatalogTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wearable_datalog_total",
			Help: "Datalog messages by reply outcome.",
		}, []string{"result"}),
		DispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wearable_dispatch_total",
			Help: "Device events dispatched by type and outcome.",
		}, []string{"event_type", "result"}),
		SignalTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wearable_signal_total",
			Help: "Host signals published by type.",
		}, []string{"type"}),
		OutboundDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wearable_outbound_dropped_total",
			Help: "Outbound messages dropped after retry exhaustion.",
		}),
		OutboundQueue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wearable_outbound_queue_length",
			Help: "Current outbound queue length.",
		}),
		OnlineGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wearable_online_count",
			Help: "Current number of online devices.",
		}),
		SessionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wearable_datalog_sessions_open",
			Help: "Currently open datalog sessions.",
		}),
	}
	reg.MustRegister(
		m.MessagesRouted, m.DecodeTotal, m.AppMessageTotal, m.DatalogTotal,
		m.DispatchTotal, m.SignalTotal, m.OutboundDropped, m.OutboundQueue,
		m.OnlineGauge, m.SessionsOpen,
	)
	return m
}
