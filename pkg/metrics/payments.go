package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics records payment initiation and callback outcomes.
type PaymentMetrics struct {
	initiations *prometheus.CounterVec
	callbacks   *prometheus.CounterVec
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	initiations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_initiations_total",
		Help: "Payment initiation attempts by outcome.",
	}, []string{"outcome"})
	callbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_callbacks_total",
		Help: "Gateway callback deliveries by reconciliation result.",
	}, []string{"result"})
	reg.MustRegister(initiations, callbacks)
	return &PaymentMetrics{
		initiations: initiations,
		callbacks:   callbacks,
	}
}

// IncInitiation counts one initiation attempt with the given outcome.
func (m *PaymentMetrics) IncInitiation(outcome string) {
	if m == nil || m.initiations == nil {
		return
	}
	m.initiations.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncCallback counts one callback delivery with the given result.
func (m *PaymentMetrics) IncCallback(result string) {
	if m == nil || m.callbacks == nil {
		return
	}
	m.callbacks.WithLabelValues(normalizeLabel(result)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
