package ports

import (
	"context"
	"time"

	"github.com/kirillkom/doc-summarizer/internal/core/domain"
)

// DocumentRepository persists per-document processing state. Every write is a
// single statement keyed by document id.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	ListByOwner(ctx context.Context, ownerID string, filter domain.ListFilter) ([]domain.Document, int, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus) error
	// SaveSummary stores the summary and sets status=completed atomically.
	SaveSummary(ctx context.Context, id string, summary domain.Summary) error
	Delete(ctx context.Context, id string) error
}

// AccessGrantRepository persists administrator-issued access grants.
type AccessGrantRepository interface {
	Create(ctx context.Context, grant *domain.AccessGrant) error
	GetByID(ctx context.Context, id string) (*domain.AccessGrant, error)
	List(ctx context.Context) ([]domain.AccessGrant, error)
	Update(ctx context.Context, grant *domain.AccessGrant) error
	Delete(ctx context.Context, id string) error
	// ListCovering returns active grants of userID whose window contains at.
	ListCovering(ctx context.Context, userID string, at time.Time) ([]domain.AccessGrant, error)
}

// DocumentStore is the external document/OCR provider.
type DocumentStore interface {
	Upload(ctx context.Context, filename string, data []byte) (string, error)
	FetchExtractedText(ctx context.Context, externalID string) (string, error)
	FetchExtractedTextWithRetry(ctx context.Context, externalID string, policy domain.PollPolicy) (string, error)
	FetchFile(ctx context.Context, externalID string) ([]byte, error)
	Remove(ctx context.Context, externalID string) error
}

// Summarizer turns extracted text into a structured summary.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (domain.Summary, error)
}

// UploadInspector rejects malformed payloads before they reach the provider.
type UploadInspector interface {
	Inspect(ctx context.Context, mimeType string, data []byte) error
}
