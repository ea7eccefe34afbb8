package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/doc-summarizer/internal/core/domain"
)

// Job outcomes as seen by the queue.
const (
	OutcomeCompleted = "completed"
	OutcomeRetry     = "retry"
	OutcomeDropped   = "dropped"
)

type WorkerMetrics struct {
	registry *prometheus.Registry
	providerMetrics

	processTotal    *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	processInFlight prometheus.Gauge
	queueLag        *prometheus.HistogramVec
	deliveryAttempt *prometheus.HistogramVec
	pollAttempts    *prometheus.CounterVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	processTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docsum",
			Subsystem: "worker",
			Name:      "jobs_total",
			Help:      "Processed jobs by outcome.",
		},
		[]string{"service", "outcome"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docsum",
			Subsystem: "worker",
			Name:      "job_duration_seconds",
			Help:      "Job processing duration in seconds by outcome.",
			Buckets:   []float64{1, 5, 10, 20, 30, 60, 90, 120, 180, 300},
		},
		[]string{"service", "outcome"},
	)
	processInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docsum",
			Subsystem: "worker",
			Name:      "jobs_in_flight",
			Help:      "Number of jobs being processed.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docsum",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between job enqueue and processing start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)
	deliveryAttempt := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docsum",
			Subsystem: "worker",
			Name:      "delivery_attempt",
			Help:      "Broker delivery counter of started jobs.",
			Buckets:   []float64{1, 2, 3, 4, 5, 8},
		},
		[]string{"service"},
	)
	pollAttempts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docsum",
			Subsystem: "ocr",
			Name:      "poll_attempts_total",
			Help:      "OCR text poll attempts by result.",
		},
		[]string{"service", "result"},
	)

	registry.MustRegister(processTotal, processDuration, processInFlight, queueLag, deliveryAttempt, pollAttempts)

	return &WorkerMetrics{
		registry:        registry,
		providerMetrics: newProviderMetrics(registry),
		processTotal:    processTotal,
		processDuration: processDuration,
		processInFlight: processInFlight,
		queueLag:        queueLag,
		deliveryAttempt: deliveryAttempt,
		pollAttempts:    pollAttempts,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartJob(service string, attempt int) {
	m.processInFlight.Inc()
	if attempt > 0 {
		m.deliveryAttempt.WithLabelValues(service).Observe(float64(attempt))
	}
}

func (m *WorkerMetrics) FinishJob(service string, duration time.Duration, err error) {
	m.processInFlight.Dec()

	outcome := JobOutcome(err)
	m.processTotal.WithLabelValues(service, outcome).Inc()
	m.processDuration.WithLabelValues(service, outcome).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service).Observe(lag.Seconds())
}

// PollObserver returns a callback for resilience.Poller.OnAttempt.
func (m *WorkerMetrics) PollObserver(service string) func(attempt int, ready bool, err error) {
	return func(_ int, ready bool, err error) {
		result := "not_ready"
		switch {
		case ready:
			result = "ready"
		case err != nil && !domain.IsNotReady(err):
			result = "error"
		}
		m.pollAttempts.WithLabelValues(service, result).Inc()
	}
}

// JobOutcome maps a handler result to the queue's view of it.
func JobOutcome(err error) string {
	switch {
	case err == nil:
		return OutcomeCompleted
	case domain.IsKind(err, domain.ErrPermanent):
		return OutcomeDropped
	default:
		return OutcomeRetry
	}
}
