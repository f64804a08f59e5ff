package service

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 流水线各阶段的计数器
type Metrics struct {
	registry *prometheus.Registry

	ChunksReceived   prometheus.Counter
	BytesReceived    prometheus.Counter
	DecodeErrors     prometheus.Counter
	LinesAssembled   prometheus.Counter
	MalformedRecords prometheus.Counter
	UnknownWindows   prometheus.Counter
	RecordsAccepted  *prometheus.CounterVec // label: window
	LoudEvents       *prometheus.CounterVec // label: window
	Redraws          prometheus.Counter
	RenderErrors     prometheus.Counter
}

// NewMetrics 在独立的 registry 上注册所有计数器
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	counter := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{Namespace: "loudplot", Name: name, Help: help})
		reg.MustRegister(c)
		return c
	}
	counterVec := func(name, help string) *prometheus.CounterVec {
		c := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "loudplot", Name: name, Help: help}, []string{"window"})
		reg.MustRegister(c)
		return c
	}

	return &Metrics{
		registry:         reg,
		ChunksReceived:   counter("chunks_received_total", "Chunks returned by the transport."),
		BytesReceived:    counter("bytes_received_total", "Bytes returned by the transport."),
		DecodeErrors:     counter("decode_errors_total", "Chunks dropped because they were not valid UTF-8."),
		LinesAssembled:   counter("lines_assembled_total", "Complete lines produced by the assembler."),
		MalformedRecords: counter("malformed_records_total", "Lines dropped because they did not hold exactly three integers."),
		UnknownWindows:   counter("unknown_window_records_total", "Records dropped because their window is not tracked."),
		RecordsAccepted:  counterVec("records_accepted_total", "Records appended to a bucket."),
		LoudEvents:       counterVec("loud_events_total", "Records whose raw value exceeds the firmware threshold."),
		Redraws:          counter("redraws_total", "Successful chart redraws."),
		RenderErrors:     counter("render_errors_total", "Failed chart redraws."),
	}
}

// Registry 用于测试读取计数
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 返回 /metrics 的 HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
