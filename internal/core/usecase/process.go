package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/doc-summarizer/internal/core/domain"
	"github.com/kirillkom/doc-summarizer/internal/core/ports"
)

type ProcessConfig struct {
	PollPolicy domain.PollPolicy
	// SkipCompleted acks redelivered jobs of completed documents without re-running them.
	SkipCompleted bool
}

func DefaultProcessConfig() ProcessConfig {
	return ProcessConfig{
		PollPolicy:    domain.DefaultOCRPollPolicy(),
		SkipCompleted: true,
	}
}

type ProcessDocumentUseCase struct {
	repo       ports.DocumentRepository
	store      ports.DocumentStore
	summarizer ports.Summarizer
	cfg        ProcessConfig
	logger     *slog.Logger
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	store ports.DocumentStore,
	summarizer ports.Summarizer,
	cfg ProcessConfig,
) *ProcessDocumentUseCase {
	if cfg.PollPolicy.MaxAttempts <= 0 {
		cfg.PollPolicy = domain.DefaultOCRPollPolicy()
	}
	return &ProcessDocumentUseCase{
		repo:       repo,
		store:      store,
		summarizer: summarizer,
		cfg:        cfg,
		logger:     slog.Default(),
	}
}

// Process runs one attempt of PENDING/PROCESSING -> PROCESSING -> COMPLETED|FAILED.
// Every failure after the PROCESSING write ends in a FAILED write, and a stored
// FAILED is returned as permanent so the broker does not redeliver the job.
// Only Resubmit moves a FAILED document back to PENDING.
func (uc *ProcessDocumentUseCase) Process(ctx context.Context, job domain.ProcessingJob) error {
	documentID := job.DocumentID
	logger := uc.logger.With("document_id", documentID)

	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		if domain.IsKind(err, domain.ErrDocumentNotFound) {
			logger.Warn("job_for_missing_document")
			return domain.WrapError(domain.ErrPermanent, "process document", err)
		}
		return fmt.Errorf("fetch document by id: %w", err)
	}
	if doc.Status == domain.StatusCompleted && uc.cfg.SkipCompleted {
		logger.Info("job_skipped_completed")
		return nil
	}
	if doc.Status == domain.StatusFailed {
		logger.Info("job_skipped_failed")
		return nil
	}

	externalID := job.ExternalID
	if externalID == "" {
		externalID = doc.ExternalID
	}

	if err := uc.markStatus(ctx, documentID, domain.StatusProcessing); err != nil {
		if domain.IsKind(err, domain.ErrDocumentNotFound) {
			return domain.WrapError(domain.ErrPermanent, "process document", err)
		}
		return fmt.Errorf("set status=processing: %w", err)
	}
	logger.Info("processing_started", "external_id", externalID)

	summary, err := uc.processPipeline(ctx, externalID)
	if err != nil {
		return uc.fail(ctx, logger, documentID, err)
	}

	if err := uc.repo.SaveSummary(ctx, documentID, summary); err != nil {
		if domain.IsKind(err, domain.ErrDocumentNotFound) {
			logger.Warn("document_deleted_during_processing")
			return domain.WrapError(domain.ErrPermanent, "save summary", err)
		}
		return uc.fail(ctx, logger, documentID, fmt.Errorf("save summary: %w", err))
	}

	logger.Info("processing_completed",
		"summary_chars", len(summary.Text),
		"key_points", len(summary.KeyPoints),
		"keywords", len(summary.Keywords),
	)
	return nil
}

func (uc *ProcessDocumentUseCase) processPipeline(ctx context.Context, externalID string) (domain.Summary, error) {
	text, err := uc.extractText(ctx, externalID)
	if err != nil {
		return domain.Summary{}, err
	}
	return uc.summarize(ctx, text)
}

func (uc *ProcessDocumentUseCase) extractText(ctx context.Context, externalID string) (string, error) {
	text, err := uc.store.FetchExtractedTextWithRetry(ctx, externalID, uc.cfg.PollPolicy)
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", domain.WrapError(domain.ErrEmptyExtraction, "extract text", errors.New("empty extracted text"))
	}
	return text, nil
}

func (uc *ProcessDocumentUseCase) summarize(ctx context.Context, text string) (domain.Summary, error) {
	summary, err := uc.summarizer.Summarize(ctx, text)
	if err != nil {
		return domain.Summary{}, fmt.Errorf("summarize document: %w", err)
	}
	return summary, nil
}

func (uc *ProcessDocumentUseCase) markStatus(ctx context.Context, documentID string, status domain.DocumentStatus) error {
	return uc.repo.UpdateStatus(ctx, documentID, status)
}

// fail writes FAILED even when ctx has already expired.
func (uc *ProcessDocumentUseCase) fail(ctx context.Context, logger *slog.Logger, documentID string, cause error) error {
	logger.Error("processing_failed", "error", cause)

	err := uc.markStatus(context.WithoutCancel(ctx), documentID, domain.StatusFailed)
	switch {
	case err == nil:
		return domain.WrapError(domain.ErrPermanent, "process document", cause)
	case domain.IsKind(err, domain.ErrDocumentNotFound):
		logger.Warn("document_deleted_during_processing")
		return domain.WrapError(domain.ErrPermanent, "mark failed", errors.Join(cause, err))
	default:
		return fmt.Errorf("%w; mark failed status: %v", cause, err)
	}
}
