package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/kirillkom/doc-summarizer/internal/config"
	"github.com/kirillkom/doc-summarizer/internal/core/domain"
	"github.com/kirillkom/doc-summarizer/internal/core/ports"
	"github.com/kirillkom/doc-summarizer/internal/core/usecase"
	"github.com/kirillkom/doc-summarizer/internal/infrastructure/docstore/mayan"
	"github.com/kirillkom/doc-summarizer/internal/infrastructure/inspector"
	natsqueue "github.com/kirillkom/doc-summarizer/internal/infrastructure/queue/nats"
	sqsqueue "github.com/kirillkom/doc-summarizer/internal/infrastructure/queue/sqs"
	"github.com/kirillkom/doc-summarizer/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/doc-summarizer/internal/infrastructure/resilience"
	"github.com/kirillkom/doc-summarizer/internal/infrastructure/summarizer/aiservice"
)

type App struct {
	Config config.Config

	DB    *sql.DB
	Queue ports.JobQueue

	IngestUC  *usecase.IngestDocumentUseCase
	ProcessUC *usecase.ProcessDocumentUseCase
	Documents *usecase.DocumentService
	Access    *usecase.AccessUseCase

	closeFn func()
}

type Options struct {
	Logger *slog.Logger
	// OnPollAttempt observes every OCR poll attempt.
	OnPollAttempt func(attempt int, ready bool, err error)
	// Resilience observes provider retries and breaker transitions.
	Resilience resilience.Hooks
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	db, err := postgres.OpenDBWithPool(cfg.PostgresDSN, postgres.PoolConfig{
		MaxOpenConns:    cfg.PostgresMaxOpenConns,
		ConnMaxLifetime: cfg.PostgresConnLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if cfg.MigrateOnStart {
		if err := postgres.RunMigrations(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	docRepo := postgres.NewDocumentRepository(db)
	grantRepo := postgres.NewAccessGrantRepository(db)

	executor := resilience.NewExecutor(resilienceConfig(cfg)).
		WithLogger(logger.With("component", "resilience")).
		WithHooks(opts.Resilience)

	queue, err := newQueue(ctx, cfg, executor, logger)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init job queue: %w", err)
	}

	poller := resilience.NewPoller()
	poller.OnAttempt = opts.OnPollAttempt

	store := mayan.NewWithOptions(mayan.Config{
		BaseURL:           cfg.MayanURL,
		Token:             cfg.MayanToken,
		AuthScheme:        cfg.MayanAuthScheme,
		DocumentTypeID:    cfg.MayanDocumentTypeID,
		HTTPTimeout:       cfg.MayanHTTPTimeout,
		RequestsPerSecond: cfg.MayanRequestsPerSec,
		Burst:             cfg.MayanPageConcurrency,
		PageConcurrency:   cfg.MayanPageConcurrency,
	}, mayan.Options{
		Executor: executor,
		Poller:   poller,
		Logger:   logger,
	})

	summarizer := aiservice.NewWithOptions(aiservice.Config{
		BaseURL:     cfg.AIServiceURL,
		Language:    cfg.AIServiceLanguage,
		HTTPTimeout: cfg.AIServiceTimeout,
	}, aiservice.Options{
		Executor: executor,
		Logger:   logger,
	})

	accessUC := usecase.NewAccessUseCase(grantRepo)
	ingestUC := usecase.NewIngestDocumentUseCase(docRepo, store, queue, inspector.New(), accessUC)
	processUC := usecase.NewProcessDocumentUseCase(docRepo, store, summarizer, usecase.ProcessConfig{
		PollPolicy:    PollPolicy(cfg),
		SkipCompleted: cfg.WorkerSkipCompleted,
	})
	documents := usecase.NewDocumentService(docRepo, store, ingestUC, accessUC)

	return &App{
		Config: cfg,
		DB:     db,
		Queue:  queue,

		IngestUC:  ingestUC,
		ProcessUC: processUC,
		Documents: documents,
		Access:    accessUC,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func PollPolicy(cfg config.Config) domain.PollPolicy {
	return domain.PollPolicy{
		InitialDelay: cfg.OCRInitialDelay,
		Interval:     cfg.OCRPollInterval,
		MaxAttempts:  cfg.OCRMaxAttempts,
	}
}

func resilienceConfig(cfg config.Config) resilience.Config {
	out := resilience.DefaultConfig()
	if cfg.ResilienceRetryAttempts > 0 {
		out.Retry.MaxAttempts = cfg.ResilienceRetryAttempts
	}
	if cfg.ResilienceBreakerOpen > 0 {
		out.Breaker.OpenTimeout = cfg.ResilienceBreakerOpen
	}
	return out
}

func newQueue(ctx context.Context, cfg config.Config, executor *resilience.Executor, logger *slog.Logger) (ports.JobQueue, error) {
	switch cfg.QueueBackend {
	case config.QueueBackendSQS:
		return sqsqueue.New(ctx, cfg.SQSQueueURL, sqsqueue.Options{
			Region:            cfg.SQSRegion,
			Endpoint:          cfg.SQSEndpoint,
			FIFO:              cfg.SQSFIFO,
			VisibilityTimeout: cfg.SQSVisibilityTimeout,
			Concurrency:       cfg.WorkerConcurrency,
			Logger:            logger,
		})
	default:
		return natsqueue.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, natsqueue.Options{
			ResilienceExecutor: executor,
			Logger:             logger,
			Stream:             cfg.NATSStream,
			Durable:            cfg.NATSDurable,
			MaxDeliver:         cfg.NATSMaxDeliver,
			AckWait:            cfg.NATSAckWait,
			NakDelay:           cfg.NATSNakDelay,
			Concurrency:        cfg.WorkerConcurrency,
		})
	}
}
