package main

import (
	"context"
	"time"

	"github.com/kirillkom/doc-summarizer/internal/core/ports"
	"github.com/kirillkom/doc-summarizer/internal/observability/metrics"
)

// newJobHandler runs one delivery under its own deadline and records it.
func newJobHandler(processor ports.DocumentProcessor, m *metrics.WorkerMetrics, timeout time.Duration) ports.DeliveryHandler {
	return func(ctx context.Context, delivery ports.Delivery) error {
		start := time.Now()
		m.StartJob(serviceName, delivery.Attempt)
		if !delivery.Job.EnqueuedAt.IsZero() && !delivery.ReceivedAt.IsZero() {
			m.ObserveQueueLag(serviceName, delivery.ReceivedAt.Sub(delivery.Job.EnqueuedAt))
		}

		processCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		err := processor.Process(processCtx, delivery.Job)

		m.FinishJob(serviceName, time.Since(start), err)
		return err
	}
}
