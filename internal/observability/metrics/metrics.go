package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// WinbackMetrics exposes counters/histograms for win-back runs.
type WinbackMetrics struct {
	customersTotal   *prometheus.CounterVec
	sendsTotal       *prometheus.CounterVec
	conversionsTotal *prometheus.CounterVec
	revenueCents     *prometheus.CounterVec
	runDuration      *prometheus.HistogramVec
}

func NewWinbackMetrics(reg prometheus.Registerer) *WinbackMetrics {
	m := &WinbackMetrics{
		customersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medspa",
			Subsystem: "winback",
			Name:      "customers_total",
			Help:      "Customers handled by the step processor",
		}, []string{"outcome", "reason"}),
		sendsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medspa",
			Subsystem: "winback",
			Name:      "gateway_sends_total",
			Help:      "Gateway sends by channel and status",
		}, []string{"channel", "status"}),
		conversionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medspa",
			Subsystem: "winback",
			Name:      "conversions_total",
			Help:      "Attempts attributed a conversion",
		}, []string{"step_offset"}),
		revenueCents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medspa",
			Subsystem: "winback",
			Name:      "attributed_revenue_cents_total",
			Help:      "Booking revenue attributed to win-back attempts",
		}, []string{"step_offset"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "medspa",
			Subsystem: "winback",
			Name:      "run_duration_seconds",
			Help:      "Duration of processing and attribution runs",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"job"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.customersTotal, m.sendsTotal, m.conversionsTotal, m.revenueCents, m.runDuration)
	return m
}

func (m *WinbackMetrics) ObserveCustomer(outcome, reason string) {
	if m == nil {
		return
	}
	m.customersTotal.WithLabelValues(outcome, reason).Inc()
}

func (m *WinbackMetrics) ObserveSend(channel, status string) {
	if m == nil {
		return
	}
	m.sendsTotal.WithLabelValues(channel, status).Inc()
}

func (m *WinbackMetrics) ObserveConversion(stepOffset int, revenueCents int64) {
	if m == nil {
		return
	}
	label := strconv.Itoa(stepOffset)
	m.conversionsTotal.WithLabelValues(label).Inc()
	if revenueCents > 0 {
		m.revenueCents.WithLabelValues(label).Add(float64(revenueCents))
	}
}

func (m *WinbackMetrics) ObserveRun(job string, seconds float64) {
	if m == nil {
		return
	}
	m.runDuration.WithLabelValues(job).Observe(seconds)
}
