package metrics

import "github.com/prometheus/client_golang/prometheus"

// ConciergeMetrics exposes counters/histograms for the messaging bridge.
type ConciergeMetrics struct {
	inboundTotal  *prometheus.CounterVec
	outboundTotal *prometheus.CounterVec
	runLatency    *prometheus.HistogramVec
}

func NewConciergeMetrics(reg prometheus.Registerer) *ConciergeMetrics {
	m := &ConciergeMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concierge",
			Subsystem: "webhook",
			Name:      "inbound_total",
			Help:      "Total inbound WhatsApp webhook messages",
		}, []string{"message_type", "status"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concierge",
			Subsystem: "whatsapp",
			Name:      "outbound_total",
			Help:      "Total outbound WhatsApp sends",
		}, []string{"kind", "status"}),
		runLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "concierge",
			Subsystem: "assistant",
			Name:      "run_latency_seconds",
			Help:      "Latency of assistant runs from message to reply",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.outboundTotal, m.runLatency)
	return m
}

func (m *ConciergeMetrics) ObserveInbound(messageType, status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(messageType, status).Inc()
}

func (m *ConciergeMetrics) ObserveOutbound(kind, status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(kind, status).Inc()
}

func (m *ConciergeMetrics) ObserveRunLatency(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.runLatency.WithLabelValues(outcome).Observe(seconds)
}
