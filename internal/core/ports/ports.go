package ports

import (
	"context"
	"time"

	"github.com/kirillkom/doc-summarizer/internal/core/domain"
)

// Delivery is one at-least-once delivery of a processing job.
type Delivery struct {
	Job domain.ProcessingJob
	// Attempt is the broker's delivery counter, starting at 1.
	Attempt    int
	ReceivedAt time.Time
}

type DeliveryHandler func(ctx context.Context, delivery Delivery) error

// JobQueue delivers processing jobs at least once. A handler error leads to
// redelivery unless it is of kind domain.ErrPermanent.
type JobQueue interface {
	EnqueueProcessing(ctx context.Context, job domain.ProcessingJob) error
	Consume(ctx context.Context, handler DeliveryHandler) error
	Close()
}
