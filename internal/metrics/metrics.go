// Package metrics описывает prometheus-метрики шлюза: обращения к API
// провайдера, повторы, проверки записи и состояние кешей.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mmeshcher/isp-mcp-gateway/internal/cache"
)

// Metrics хранит инструменты шлюза. Нулевой указатель допустим: все методы
// в этом случае ничего не делают.
type Metrics struct {
	upstreamRequests *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	upstreamRetries  *prometheus.CounterVec
	verifications    *prometheus.CounterVec
	fieldMismatches  *prometheus.CounterVec
	registerer       prometheus.Registerer
}

// New создаёт и регистрирует инструменты в registerer.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "isp_upstream_requests_total",
			Help: "Requests sent to the ISP API by method and response code.",
		}, []string{"method", "code"}),
		upstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "isp_upstream_request_duration_seconds",
			Help:    "ISP API request latency.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"method"}),
		upstreamRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "isp_upstream_retries_total",
			Help: "Retried ISP API requests by method.",
		}, []string{"method"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "isp_write_verifications_total",
			Help: "Write verifications by operation and final state.",
		}, []string{"operation", "state"}),
		fieldMismatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "isp_write_field_mismatches_total",
			Help: "Fields whose re-read value differs from the written one.",
		}, []string{"operation", "field"}),
		registerer: registerer,
	}

	registerer.MustRegister(
		m.upstreamRequests,
		m.upstreamDuration,
		m.upstreamRetries,
		m.verifications,
		m.fieldMismatches,
	)

	return m
}

// ObserveUpstream фиксирует завершённый запрос. Код 0 означает отсутствие ответа.
func (m *Metrics) ObserveUpstream(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	code := "none"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	m.upstreamRequests.WithLabelValues(method, code).Inc()
	m.upstreamDuration.WithLabelValues(method).Observe(d.Seconds())
}

// IncRetry фиксирует повтор запроса.
func (m *Metrics) IncRetry(method string) {
	if m == nil {
		return
	}
	m.upstreamRetries.WithLabelValues(method).Inc()
}

// ObserveVerification фиксирует итог проверки записи и несовпавшие поля.
func (m *Metrics) ObserveVerification(operation, state string, mismatches []string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(operation, state).Inc()
	for _, field := range mismatches {
		m.fieldMismatches.WithLabelValues(operation, field).Inc()
	}
}

// RegisterCache публикует статистику кеша в виде gauge-функций.
func (m *Metrics) RegisterCache(name string, stats func() cache.Stats) {
	if m == nil || stats == nil {
		return
	}
	labels := prometheus.Labels{"cache": name}
	m.registerer.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "isp_cache_entries",
			Help:        "Entries currently stored in the cache.",
			ConstLabels: labels,
		}, func() float64 { return float64(stats().Size) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name:        "isp_cache_hits_total",
			Help:        "Cache reads served from memory.",
			ConstLabels: labels,
		}, func() float64 { return float64(stats().Hits) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name:        "isp_cache_misses_total",
			Help:        "Cache reads that missed or found an expired entry.",
			ConstLabels: labels,
		}, func() float64 { return float64(stats().Misses) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "isp_cache_hit_ratio",
			Help:        "Cache hit ratio since start.",
			ConstLabels: labels,
		}, func() float64 { return stats().HitRate }),
	)
}
