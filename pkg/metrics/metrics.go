// Package metrics 定义服务暴露的 Prometheus 指标。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 持有所有 collector，注册在独立的 Registry 上。
type Metrics struct {
	Registry      *prometheus.Registry
	Turns         *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	ToolCalls     *prometheus.CounterVec
	RetrievalHits prometheus.Histogram
	HTTPRequests  *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
}

// New 创建并注册全部指标。
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		Turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hotel_rag_turns_total",
			Help: "Chat turns by outcome.",
		}, []string{"outcome"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hotel_rag_stage_duration_seconds",
			Help:    "Latency of each pipeline stage.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"stage"}),
		ToolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hotel_rag_tool_calls_total",
			Help: "Tool invocations requested by the model.",
		}, []string{"tool", "status"}),
		RetrievalHits: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hotel_rag_retrieval_hits",
			Help:    "Number of hotels returned per retrieval.",
			Buckets: []float64{0, 1, 2, 3, 5, 10, 20},
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hotel_rag_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hotel_rag_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Turns, m.StageDuration, m.ToolCalls, m.RetrievalHits, m.HTTPRequests, m.HTTPDuration,
	)
	return m
}

// Handler 返回 /metrics 的 HTTP handler。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// ObserveStage 记录一个阶段的耗时（秒）。nil 接收者安全。
func (m *Metrics) ObserveStage(stage string, seconds float64) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(seconds)
}

// TurnDone 按结果计数一个轮次。
func (m *Metrics) TurnDone(outcome string) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(outcome).Inc()
}

// ToolCalled 计数一次工具调用。
func (m *Metrics) ToolCalled(tool, status string) {
	if m == nil {
		return
	}
	m.ToolCalls.WithLabelValues(tool, status).Inc()
}

// Retrieved 记录检索命中的数量。
func (m *Metrics) Retrieved(n int) {
	if m == nil {
		return
	}
	m.RetrievalHits.Observe(float64(n))
}
