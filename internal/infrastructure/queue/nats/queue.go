package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/doc-summarizer/internal/core/domain"
	"github.com/kirillkom/doc-summarizer/internal/core/ports"
	"github.com/kirillkom/doc-summarizer/internal/infrastructure/queue"
	"github.com/kirillkom/doc-summarizer/internal/infrastructure/resilience"
)

// Queue is a JetStream work queue with one durable pull consumer.
type Queue struct {
	conn     *nats.Conn
	js       nats.JetStreamContext
	subject  string
	stream   string
	durable  string
	executor *resilience.Executor
	logger   *slog.Logger

	fetchBatch  int
	fetchWait   time.Duration
	nakDelay    time.Duration
	concurrency int
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger

	Stream  string
	Durable string
	// MaxDeliver bounds redeliveries of a job; AckWait must exceed the
	// worst-case processing time of one job.
	MaxDeliver  int
	AckWait     time.Duration
	NakDelay    time.Duration
	FetchBatch  int
	FetchWait   time.Duration
	Concurrency int
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "nats")

	conn, err := nats.Connect(
		url,
		nats.Name("doc-summarizer"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("nats jetstream context: %w", err)
	}

	q := &Queue{
		conn:        conn,
		js:          js,
		subject:     subject,
		stream:      valueOr(options.Stream, "DOCUMENTS"),
		durable:     valueOr(options.Durable, "document-processor"),
		executor:    options.ResilienceExecutor,
		logger:      logger,
		fetchBatch:  positiveOr(options.FetchBatch, 1),
		fetchWait:   durationOr(options.FetchWait, 5*time.Second),
		nakDelay:    durationOr(options.NakDelay, 30*time.Second),
		concurrency: positiveOr(options.Concurrency, 1),
	}
	maxDeliver := positiveOr(options.MaxDeliver, 5)
	ackWait := durationOr(options.AckWait, 5*time.Minute)
	if err := q.ensureTopology(maxDeliver, ackWait); err != nil {
		conn.Close()
		return nil, err
	}
	return q, nil
}

func (q *Queue) ensureTopology(maxDeliver int, ackWait time.Duration) error {
	if _, err := q.js.StreamInfo(q.stream); err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			return fmt.Errorf("nats stream info %s: %w", q.stream, err)
		}
		if _, err := q.js.AddStream(&nats.StreamConfig{
			Name:       q.stream,
			Subjects:   []string{q.subject},
			Storage:    nats.FileStorage,
			Retention:  nats.WorkQueuePolicy,
			Duplicates: 2 * time.Minute,
		}); err != nil {
			return fmt.Errorf("nats add stream %s: %w", q.stream, err)
		}
		q.logger.Info("nats_stream_created", "stream", q.stream, "subject", q.subject)
	}

	if _, err := q.js.ConsumerInfo(q.stream, q.durable); err != nil {
		if !errors.Is(err, nats.ErrConsumerNotFound) {
			return fmt.Errorf("nats consumer info %s: %w", q.durable, err)
		}
		if _, err := q.js.AddConsumer(q.stream, &nats.ConsumerConfig{
			Durable:       q.durable,
			AckPolicy:     nats.AckExplicitPolicy,
			AckWait:       ackWait,
			MaxDeliver:    maxDeliver,
			FilterSubject: q.subject,
		}); err != nil {
			return fmt.Errorf("nats add consumer %s: %w", q.durable, err)
		}
		q.logger.Info("nats_consumer_created", "consumer", q.durable, "max_deliver", maxDeliver, "ack_wait", ackWait.String())
	}
	return nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) EnqueueProcessing(ctx context.Context, job domain.ProcessingJob) error {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	payload, err := queue.EncodeJob(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	msgID := queue.DeduplicationID(job)

	call := func(ctx context.Context) error {
		if _, err := q.js.Publish(q.subject, payload, nats.MsgId(msgID), nats.Context(ctx)); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return publishError(err)
	}
	q.logger.Info("job_enqueued", "document_id", job.DocumentID, "msg_id", msgID)
	return nil
}

// Consume pulls jobs until ctx is cancelled. Up to the configured concurrency
// jobs of one fetched batch run in parallel.
func (q *Queue) Consume(ctx context.Context, handler ports.DeliveryHandler) error {
	sub, err := q.js.PullSubscribe(q.subject, q.durable, nats.Bind(q.stream, q.durable))
	if err != nil {
		return fmt.Errorf("nats pull subscribe: %w", err)
	}
	defer func() {
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			q.logger.Warn("nats_unsubscribe_failed", "error", err)
		}
	}()

	batch := max(q.fetchBatch, q.concurrency)
	for ctx.Err() == nil {
		fetchCtx, cancel := context.WithTimeout(ctx, q.fetchWait)
		msgs, err := sub.Fetch(batch, nats.Context(fetchCtx))
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			q.logger.Warn("nats_fetch_failed", "error", err)
			if sleepErr := resilience.SleepContext(ctx, time.Second); sleepErr != nil {
				break
			}
			continue
		}

		group := new(errgroup.Group)
		group.SetLimit(q.concurrency)
		for _, msg := range msgs {
			group.Go(func() error {
				q.handleMessage(ctx, msg, msg.Data, handler)
				return nil
			})
		}
		_ = group.Wait()
	}
	return nil
}

type message interface {
	Ack(opts ...nats.AckOpt) error
	NakWithDelay(delay time.Duration, opts ...nats.AckOpt) error
	Term(opts ...nats.AckOpt) error
	Metadata() (*nats.MsgMetadata, error)
}

func (q *Queue) handleMessage(ctx context.Context, msg message, data []byte, handler ports.DeliveryHandler) {
	job, err := queue.DecodeJob(data)
	if err != nil {
		q.logger.Error("job_rejected", "error", err)
		q.settle(msg.Term(), "term", "")
		return
	}

	attempt := 1
	if meta, err := msg.Metadata(); err == nil && meta.NumDelivered > 0 {
		attempt = int(meta.NumDelivered)
	}

	err = handler(ctx, ports.Delivery{Job: job, Attempt: attempt, ReceivedAt: time.Now().UTC()})
	switch {
	case err == nil:
		q.settle(msg.Ack(), "ack", job.DocumentID)
	case domain.IsKind(err, domain.ErrPermanent):
		q.logger.Warn("job_terminated", "document_id", job.DocumentID, "attempt", attempt, "error", err)
		q.settle(msg.Term(), "term", job.DocumentID)
	default:
		q.logger.Warn("job_redelivery_requested", "document_id", job.DocumentID, "attempt", attempt, "delay", q.nakDelay.String(), "error", err)
		q.settle(msg.NakWithDelay(q.nakDelay), "nak", job.DocumentID)
	}
}

func (q *Queue) settle(err error, action, documentID string) {
	if err != nil {
		q.logger.Error("nats_settle_failed", "action", action, "document_id", documentID, "error", err)
	}
}

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func positiveOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func durationOr(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}
