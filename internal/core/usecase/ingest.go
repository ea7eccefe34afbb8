package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/doc-summarizer/internal/core/domain"
	"github.com/kirillkom/doc-summarizer/internal/core/ports"
)

type IngestDocumentUseCase struct {
	repo      ports.DocumentRepository
	store     ports.DocumentStore
	queue     ports.JobQueue
	inspector ports.UploadInspector
	access    ports.AccessChecker
	now       func() time.Time
	logger    *slog.Logger
}

// NewIngestDocumentUseCase wires the upload path. inspector and access may be nil.
func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	store ports.DocumentStore,
	queue ports.JobQueue,
	inspector ports.UploadInspector,
	access ports.AccessChecker,
) *IngestDocumentUseCase {
	return &IngestDocumentUseCase{
		repo:      repo,
		store:     store,
		queue:     queue,
		inspector: inspector,
		access:    access,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    slog.Default(),
	}
}

// Upload validates the file, hands it to the document store, records it as
// pending and enqueues processing. Validation failures create no state.
func (uc *IngestDocumentUseCase) Upload(ctx context.Context, req ports.UploadRequest) (*domain.Document, error) {
	if uc.access != nil {
		if err := uc.access.Authorize(ctx, req.Owner); err != nil {
			return nil, err
		}
	}

	filename := strings.TrimSpace(filepath.Base(req.Filename))
	if filename == "" || filename == "." || filename == "/" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("filename is required"))
	}
	mimeType := domain.NormalizeMimeType(req.MimeType)
	if !domain.IsAllowedUploadType(mimeType) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", fmt.Errorf("unsupported file type %q", req.MimeType))
	}
	if req.SizeBytes > domain.MaxUploadBytes {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", fmt.Errorf("file exceeds %d bytes", domain.MaxUploadBytes))
	}
	data, err := readLimited(req.Body, domain.MaxUploadBytes)
	if err != nil {
		return nil, err
	}
	if uc.inspector != nil {
		if err := uc.inspector.Inspect(ctx, mimeType, data); err != nil {
			return nil, err
		}
	}

	externalID, err := uc.store.Upload(ctx, sanitizeFilename(filename), data)
	if err != nil {
		return nil, fmt.Errorf("upload to document store: %w", err)
	}

	now := uc.now()
	doc := &domain.Document{
		ID:         uuid.NewString(),
		OwnerID:    req.Owner.UserID,
		ExternalID: externalID,
		Filename:   filename,
		SizeBytes:  int64(len(data)),
		MimeType:   mimeType,
		Status:     domain.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := uc.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document record: %w", err)
	}

	if err := uc.EnqueueProcessing(ctx, doc.ID, externalID); err != nil {
		if statusErr := uc.repo.UpdateStatus(context.WithoutCancel(ctx), doc.ID, domain.StatusFailed); statusErr != nil {
			uc.logger.Error("mark_failed_after_enqueue_error", "document_id", doc.ID, "error", statusErr)
		}
		return nil, err
	}

	uc.logger.Info("document_ingested",
		"document_id", doc.ID,
		"external_id", externalID,
		"owner_id", doc.OwnerID,
		"mime_type", mimeType,
		"bytes", doc.SizeBytes,
	)
	return doc, nil
}

// EnqueueProcessing publishes a processing job. The document row must already
// be committed.
func (uc *IngestDocumentUseCase) EnqueueProcessing(ctx context.Context, documentID, externalID string) error {
	job := domain.ProcessingJob{
		DocumentID: documentID,
		ExternalID: externalID,
		EnqueuedAt: uc.now(),
	}
	if err := uc.queue.EnqueueProcessing(ctx, job); err != nil {
		return fmt.Errorf("enqueue processing job: %w", err)
	}
	return nil
}

func readLimited(body io.Reader, limit int64) ([]byte, error) {
	if body == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("file is required"))
	}
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", fmt.Errorf("file exceeds %d bytes", limit))
	}
	if len(data) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("file is empty"))
	}
	return data, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		return "document.bin"
	}
	return base
}
