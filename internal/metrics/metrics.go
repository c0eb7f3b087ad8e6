// Package metrics provides Prometheus metrics for the relay.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the relay
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Chat relay metrics
	ChatOutcomesTotal   *prometheus.CounterVec
	ChannelAttempts     *prometheus.CounterVec
	ChannelOpenDuration *prometheus.HistogramVec
	AudioBytesStreamed  *prometheus.CounterVec

	WebhookEventsTotal *prometheus.CounterVec
}

// New creates the metrics on a private registry so several instances can
// coexist (tests build more than one router).
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mirror_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mirror_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		ChatOutcomesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mirror_chat_outcomes_total",
				Help: "Chat requests by terminal outcome",
			},
			[]string{"outcome"},
		),
		ChannelAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mirror_voice_channel_attempts_total",
				Help: "Upstream voice channel attempts by channel and result",
			},
			[]string{"channel", "result"},
		),
		ChannelOpenDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mirror_voice_channel_open_seconds",
				Help:    "Time until an upstream voice channel produced a stream or failed",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"channel"},
		),
		AudioBytesStreamed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mirror_audio_bytes_streamed_total",
				Help: "Audio bytes forwarded to callers",
			},
			[]string{"channel"},
		),
		WebhookEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mirror_webhook_events_total",
				Help: "Provider webhook events by type and verification result",
			},
			[]string{"type", "result"},
		),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records one served HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordChannel records a single attempt against an upstream voice channel.
func (m *Metrics) RecordChannel(channel string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.ChannelAttempts.WithLabelValues(channel, result).Inc()
	m.ChannelOpenDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// RecordOutcome records the terminal state of a chat request.
func (m *Metrics) RecordOutcome(outcome string) {
	if m == nil {
		return
	}
	m.ChatOutcomesTotal.WithLabelValues(outcome).Inc()
}

// RecordStreamed adds forwarded audio bytes for a channel.
func (m *Metrics) RecordStreamed(channel string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.AudioBytesStreamed.WithLabelValues(channel).Add(float64(n))
}

// RecordWebhook records a received provider event.
func (m *Metrics) RecordWebhook(eventType, result string) {
	if m == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	m.WebhookEventsTotal.WithLabelValues(eventType, result).Inc()
}
