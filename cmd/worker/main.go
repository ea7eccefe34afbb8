package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/doc-summarizer/internal/bootstrap"
	"github.com/kirillkom/doc-summarizer/internal/config"
	"github.com/kirillkom/doc-summarizer/internal/infrastructure/resilience"
	"github.com/kirillkom/doc-summarizer/internal/observability/logging"
	"github.com/kirillkom/doc-summarizer/internal/observability/metrics"
)

const serviceName = "worker"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Logger:        logger,
		OnPollAttempt: workerMetrics.PollObserver(serviceName),
		Resilience: resilience.Hooks{
			OnRetry:         workerMetrics.RetryObserver(serviceName),
			OnBreakerChange: workerMetrics.BreakerObserver(serviceName),
		},
	})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", workerMetrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	jobTimeout := cfg.JobTimeout()
	handler := newJobHandler(app.ProcessUC, workerMetrics, jobTimeout)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("worker_metrics_listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})
	group.Go(func() error {
		logger.Info("worker_consuming",
			"queue_backend", cfg.QueueBackend,
			"concurrency", cfg.WorkerConcurrency,
			"job_timeout", jobTimeout.String(),
		)
		return app.Queue.Consume(groupCtx, handler)
	})

	if err := group.Wait(); err != nil {
		logger.Error("worker_stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("worker_stopped")
}
