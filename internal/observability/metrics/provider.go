package metrics

import "github.com/prometheus/client_golang/prometheus"

var breakerStateValues = map[string]float64{
	"closed":    0,
	"half_open": 1,
	"open":      2,
}

// providerMetrics tracks calls to the document store, the summarizer and the
// broker. Both API and worker processes embed it.
type providerMetrics struct {
	providerRetries *prometheus.CounterVec
	breakerState    *prometheus.GaugeVec
}

func newProviderMetrics(registry *prometheus.Registry) providerMetrics {
	m := providerMetrics{
		providerRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "docsum",
				Subsystem: "provider",
				Name:      "retries_total",
				Help:      "Provider call retries by operation.",
			},
			[]string{"service", "operation"},
		),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "docsum",
				Subsystem: "provider",
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state by operation: 0 closed, 1 half-open, 2 open.",
			},
			[]string{"service", "operation"},
		),
	}
	registry.MustRegister(m.providerRetries, m.breakerState)
	return m
}

// RetryObserver returns a callback for resilience.Hooks.OnRetry.
func (m providerMetrics) RetryObserver(service string) func(operation string, attempt int, err error) {
	return func(operation string, _ int, _ error) {
		m.providerRetries.WithLabelValues(service, operation).Inc()
	}
}

// BreakerObserver returns a callback for resilience.Hooks.OnBreakerChange.
func (m providerMetrics) BreakerObserver(service string) func(operation, state string) {
	return func(operation, state string) {
		value, ok := breakerStateValues[state]
		if !ok {
			return
		}
		m.breakerState.WithLabelValues(service, operation).Set(value)
	}
}
