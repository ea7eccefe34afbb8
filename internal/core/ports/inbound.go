package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/doc-summarizer/internal/core/domain"
)

// UploadRequest describes a file submitted through the ingestion gateway.
type UploadRequest struct {
	Owner     domain.Principal
	Filename  string
	MimeType  string
	SizeBytes int64
	Body      io.Reader
}

// DocumentIngestor is the inbound contract for document upload orchestration.
type DocumentIngestor interface {
	Upload(ctx context.Context, req UploadRequest) (*domain.Document, error)
	EnqueueProcessing(ctx context.Context, documentID, externalID string) error
}

// DocumentReader is the inbound read model for document state, gated by the access window.
type DocumentReader interface {
	List(ctx context.Context, principal domain.Principal, filter domain.ListFilter) (*domain.DocumentPage, error)
	Get(ctx context.Context, principal domain.Principal, documentID string) (*domain.Document, error)
	GetStatus(ctx context.Context, principal domain.Principal, documentID string) (domain.DocumentStatus, error)
	GetSummary(ctx context.Context, principal domain.Principal, documentID string) (*domain.SummaryView, error)
}

// DocumentManager covers the mutating and file-serving document operations.
type DocumentManager interface {
	DocumentReader
	Download(ctx context.Context, principal domain.Principal, documentID string) (*domain.Document, []byte, error)
	Delete(ctx context.Context, principal domain.Principal, documentID string) error
	Resubmit(ctx context.Context, principal domain.Principal, documentID string) (*domain.Document, error)
}

// DocumentProcessor is the inbound contract for asynchronous document processing.
type DocumentProcessor interface {
	Process(ctx context.Context, job domain.ProcessingJob) error
}

// AccessChecker evaluates time-bounded access grants.
type AccessChecker interface {
	HasActiveAccess(ctx context.Context, userID string) (bool, error)
	CheckAccess(ctx context.Context, userID string) (domain.AccessStatus, error)
	// StatusFor is CheckAccess with the administrator bypass applied.
	StatusFor(ctx context.Context, principal domain.Principal) (domain.AccessStatus, error)
	Authorize(ctx context.Context, principal domain.Principal) error
}

// AccessAdministrator manages grants on behalf of an administrator.
type AccessAdministrator interface {
	AccessChecker
	Grant(ctx context.Context, admin domain.Principal, userID string, startsAt, endsAt time.Time) (*domain.AccessGrant, error)
	ListGrants(ctx context.Context, admin domain.Principal) ([]domain.AccessGrant, error)
	UpdateGrant(ctx context.Context, admin domain.Principal, grantID string, update domain.GrantUpdate) (*domain.AccessGrant, error)
	RevokeGrant(ctx context.Context, admin domain.Principal, grantID string) error
}
