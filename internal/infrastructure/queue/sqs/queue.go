package sqs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/doc-summarizer/internal/core/domain"
	"github.com/kirillkom/doc-summarizer/internal/core/ports"
	"github.com/kirillkom/doc-summarizer/internal/infrastructure/queue"
	"github.com/kirillkom/doc-summarizer/internal/infrastructure/resilience"
)

// API is the subset of the SQS client used by Queue.
type API interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

type Options struct {
	Region   string
	Endpoint string
	// FIFO enables group and deduplication ids; the queue URL must end in .fifo.
	FIFO              bool
	VisibilityTimeout time.Duration
	WaitTime          time.Duration
	// RetryDelay is the visibility timeout applied to a failed delivery.
	// Dead-lettering after repeated failures belongs to the queue's redrive policy.
	RetryDelay  time.Duration
	Concurrency int
	Logger      *slog.Logger
}

// Queue is an SQS-backed job queue.
type Queue struct {
	client   API
	queueURL string
	opts     Options
	logger   *slog.Logger
}

func New(ctx context.Context, queueURL string, options Options) (*Queue, error) {
	if strings.TrimSpace(queueURL) == "" {
		return nil, fmt.Errorf("sqs queue url is required")
	}
	region := options.Region
	if region == "" {
		region = "us-east-1"
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := sqs.NewFromConfig(cfg, func(o *sqs.Options) {
		if options.Endpoint != "" {
			o.BaseEndpoint = aws.String(options.Endpoint)
		}
	})
	return NewWithClient(client, queueURL, options), nil
}

func NewWithClient(client API, queueURL string, options Options) *Queue {
	if options.VisibilityTimeout <= 0 {
		options.VisibilityTimeout = 5 * time.Minute
	}
	if options.WaitTime <= 0 || options.WaitTime > 20*time.Second {
		options.WaitTime = 20 * time.Second
	}
	if options.RetryDelay <= 0 {
		options.RetryDelay = 30 * time.Second
	}
	if options.Concurrency <= 0 {
		options.Concurrency = 1
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		client:   client,
		queueURL: queueURL,
		opts:     options,
		logger:   logger.With("component", "sqs"),
	}
}

func (q *Queue) Close() {}

func (q *Queue) EnqueueProcessing(ctx context.Context, job domain.ProcessingJob) error {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	payload, err := queue.EncodeJob(job)
	if err != nil {
		return fmt.Errorf("encode sqs message: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(payload)),
	}
	if q.opts.FIFO {
		input.MessageGroupId = aws.String(job.DocumentID)
		input.MessageDeduplicationId = aws.String(queue.DeduplicationID(job))
	}
	if _, err := q.client.SendMessage(ctx, input); err != nil {
		return domain.WrapError(domain.ErrTemporary, "sqs send message", err)
	}
	q.logger.Info("job_enqueued", "document_id", job.DocumentID)
	return nil
}

// Consume long-polls the queue until ctx is cancelled.
func (q *Queue) Consume(ctx context.Context, handler ports.DeliveryHandler) error {
	for ctx.Err() == nil {
		resp, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(q.queueURL),
			MaxNumberOfMessages: int32(min(q.opts.Concurrency, 10)),
			WaitTimeSeconds:     int32(q.opts.WaitTime / time.Second),
			VisibilityTimeout:   int32(q.opts.VisibilityTimeout / time.Second),
			AttributeNames:      []sqstypes.QueueAttributeName{sqstypes.QueueAttributeName("ApproximateReceiveCount")},
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				break
			}
			q.logger.Warn("sqs_receive_failed", "error", err)
			if sleepErr := resilience.SleepContext(ctx, time.Second); sleepErr != nil {
				break
			}
			continue
		}

		group := new(errgroup.Group)
		group.SetLimit(q.opts.Concurrency)
		for _, msg := range resp.Messages {
			group.Go(func() error {
				q.handleMessage(ctx, msg, handler)
				return nil
			})
		}
		_ = group.Wait()
	}
	return nil
}

func (q *Queue) handleMessage(ctx context.Context, msg sqstypes.Message, handler ports.DeliveryHandler) {
	job, err := queue.DecodeJob([]byte(aws.ToString(msg.Body)))
	if err != nil {
		q.logger.Error("job_rejected", "sqs_message_id", aws.ToString(msg.MessageId), "error", err)
		q.deleteMessage(ctx, msg, "")
		return
	}

	attempt := max(receiveCount(msg), 1)
	err = handler(ctx, ports.Delivery{Job: job, Attempt: attempt, ReceivedAt: time.Now().UTC()})
	switch {
	case err == nil:
		q.deleteMessage(ctx, msg, job.DocumentID)
	case domain.IsKind(err, domain.ErrPermanent):
		q.logger.Warn("job_terminated", "document_id", job.DocumentID, "attempt", attempt, "error", err)
		q.deleteMessage(ctx, msg, job.DocumentID)
	default:
		q.logger.Warn("job_redelivery_requested", "document_id", job.DocumentID, "attempt", attempt, "error", err)
		q.delayRedelivery(ctx, msg, job.DocumentID)
	}
}

func (q *Queue) deleteMessage(ctx context.Context, msg sqstypes.Message, documentID string) {
	receipt := aws.ToString(msg.ReceiptHandle)
	if receipt == "" {
		q.logger.Error("sqs_delete_failed", "document_id", documentID, "error", "missing receipt handle")
		return
	}
	if _, err := q.client.DeleteMessage(context.WithoutCancel(ctx), &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(receipt),
	}); err != nil {
		q.logger.Error("sqs_delete_failed", "document_id", documentID, "error", err)
	}
}

func (q *Queue) delayRedelivery(ctx context.Context, msg sqstypes.Message, documentID string) {
	receipt := aws.ToString(msg.ReceiptHandle)
	if receipt == "" {
		return
	}
	if _, err := q.client.ChangeMessageVisibility(context.WithoutCancel(ctx), &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(q.queueURL),
		ReceiptHandle:     aws.String(receipt),
		VisibilityTimeout: int32(q.opts.RetryDelay / time.Second),
	}); err != nil {
		q.logger.Warn("sqs_visibility_change_failed", "document_id", documentID, "error", err)
	}
}

func receiveCount(msg sqstypes.Message) int {
	if msg.Attributes == nil {
		return 0
	}
	raw := msg.Attributes["ApproximateReceiveCount"]
	if raw == "" {
		return 0
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return parsed
}
