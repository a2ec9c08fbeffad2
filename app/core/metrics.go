package core

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/quka-ai/supportchat/pkg/metrics"
)

type Metrics struct {
	apiResponseTime    *prometheus.HistogramVec
	apiErrorCounter    *prometheus.CounterVec
	llmRequestTime     *prometheus.HistogramVec
	llmError           *prometheus.CounterVec
	rateLimitRejected  *prometheus.CounterVec
	knowledgeCache     *prometheus.CounterVec
	eventHandlerErrors *prometheus.CounterVec
	chatFailed         *prometheus.CounterVec
}

func NewMetrics(ns, system string) *Metrics {
	metrics.SetupMetricsManager(ns, system, prometheus.DefaultRegisterer.(*prometheus.Registry))

	return &Metrics{
		apiResponseTime:    metrics.NewHistogramVec("api_response_seconds", []string{"api"}),
		apiErrorCounter:    metrics.NewCounterVec("api_error", []string{"api", "code"}),
		llmRequestTime:     metrics.NewHistogramVec("llm_request_seconds", []string{"provider"}),
		llmError:           metrics.NewCounterVec("llm_error_total", []string{"provider", "reason"}),
		rateLimitRejected:  metrics.NewCounterVec("rate_limit_rejected_total", []string{"scope"}),
		knowledgeCache:     metrics.NewCounterVec("knowledge_cache_total", []string{"tier", "result"}),
		eventHandlerErrors: metrics.NewCounterVec("event_handler_error_total", []string{"event"}),
		chatFailed:         metrics.NewCounterVec("chat_request_failed_total", nil),
	}
}

func (m *Metrics) ApiResponseTimer(api string) *prometheus.Timer {
	return prometheus.NewTimer(m.apiResponseTime.WithLabelValues(api))
}

func (m *Metrics) ApiErrorInc(api, code string) {
	m.apiErrorCounter.WithLabelValues(api, code).Inc()
}

func (m *Metrics) ObserveLLMRequest(provider string, d time.Duration) {
	m.llmRequestTime.WithLabelValues(provider).Observe(d.Seconds())
}

func (m *Metrics) LLMErrorInc(provider, reason string) {
	m.llmError.WithLabelValues(provider, reason).Inc()
}

func (m *Metrics) RateLimitRejectedInc(scope string) {
	m.rateLimitRejected.WithLabelValues(scope).Inc()
}

func (m *Metrics) KnowledgeCacheInc(tier, result string) {
	m.knowledgeCache.WithLabelValues(tier, result).Inc()
}

func (m *Metrics) EventHandlerErrorInc(event string) {
	m.eventHandlerErrors.WithLabelValues(event).Inc()
}

func (m *Metrics) ChatFailedInc() {
	m.chatFailed.WithLabelValues().Inc()
}
