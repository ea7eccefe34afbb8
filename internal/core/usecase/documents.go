package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/doc-summarizer/internal/core/domain"
	"github.com/kirillkom/doc-summarizer/internal/core/ports"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// DocumentService serves document reads and management. Every operation first
// passes the access window check.
type DocumentService struct {
	repo     ports.DocumentRepository
	store    ports.DocumentStore
	ingestor ports.DocumentIngestor
	access   ports.AccessChecker
	logger   *slog.Logger
}

func NewDocumentService(
	repo ports.DocumentRepository,
	store ports.DocumentStore,
	ingestor ports.DocumentIngestor,
	access ports.AccessChecker,
) *DocumentService {
	return &DocumentService{
		repo:     repo,
		store:    store,
		ingestor: ingestor,
		access:   access,
		logger:   slog.Default(),
	}
}

func (s *DocumentService) List(ctx context.Context, principal domain.Principal, filter domain.ListFilter) (*domain.DocumentPage, error) {
	if err := s.access.Authorize(ctx, principal); err != nil {
		return nil, err
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = defaultPageLimit
	}
	filter.Limit = min(filter.Limit, maxPageLimit)

	docs, total, err := s.repo.ListByOwner(ctx, principal.UserID, filter)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return &domain.DocumentPage{
		Documents: docs,
		Total:     total,
		Page:      filter.Page,
		Pages:     (total + filter.Limit - 1) / filter.Limit,
	}, nil
}

func (s *DocumentService) Get(ctx context.Context, principal domain.Principal, documentID string) (*domain.Document, error) {
	if err := s.access.Authorize(ctx, principal); err != nil {
		return nil, err
	}
	doc, err := s.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.OwnerID != principal.UserID && !principal.IsAdmin() {
		return nil, domain.WrapError(domain.ErrForbidden, "get document", fmt.Errorf("document %s", documentID))
	}
	return doc, nil
}

func (s *DocumentService) GetStatus(ctx context.Context, principal domain.Principal, documentID string) (domain.DocumentStatus, error) {
	doc, err := s.Get(ctx, principal, documentID)
	if err != nil {
		return "", err
	}
	return doc.Status, nil
}

func (s *DocumentService) GetSummary(ctx context.Context, principal domain.Principal, documentID string) (*domain.SummaryView, error) {
	doc, err := s.Get(ctx, principal, documentID)
	if err != nil {
		return nil, err
	}
	view := doc.SummaryView()
	return &view, nil
}

func (s *DocumentService) Download(ctx context.Context, principal domain.Principal, documentID string) (*domain.Document, []byte, error) {
	doc, err := s.Get(ctx, principal, documentID)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.store.FetchFile(ctx, doc.ExternalID)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch original file: %w", err)
	}
	return doc, data, nil
}

// Delete removes the document from the provider, then its row. An in-flight
// processing attempt notices the missing row on its next write and stops.
func (s *DocumentService) Delete(ctx context.Context, principal domain.Principal, documentID string) error {
	doc, err := s.Get(ctx, principal, documentID)
	if err != nil {
		return err
	}
	if err := s.store.Remove(ctx, doc.ExternalID); err != nil {
		return fmt.Errorf("remove from document store: %w", err)
	}
	if err := s.repo.Delete(ctx, doc.ID); err != nil {
		return fmt.Errorf("delete document record: %w", err)
	}
	s.logger.Info("document_deleted", "document_id", doc.ID, "external_id", doc.ExternalID, "by", principal.UserID)
	return nil
}

// Resubmit moves a FAILED document back to PENDING and enqueues a new job.
func (s *DocumentService) Resubmit(ctx context.Context, principal domain.Principal, documentID string) (*domain.Document, error) {
	doc, err := s.Get(ctx, principal, documentID)
	if err != nil {
		return nil, err
	}
	if doc.Status != domain.StatusFailed {
		return nil, domain.WrapError(domain.ErrInvalidInput, "resubmit document", fmt.Errorf("status is %s, only failed documents can be resubmitted", doc.Status))
	}
	if err := s.repo.UpdateStatus(ctx, doc.ID, domain.StatusPending); err != nil {
		return nil, fmt.Errorf("set status=pending: %w", err)
	}
	if err := s.ingestor.EnqueueProcessing(ctx, doc.ID, doc.ExternalID); err != nil {
		if statusErr := s.repo.UpdateStatus(context.WithoutCancel(ctx), doc.ID, domain.StatusFailed); statusErr != nil {
			s.logger.Error("restore_failed_status", "document_id", doc.ID, "error", statusErr)
		}
		return nil, err
	}
	doc.Status = domain.StatusPending
	s.logger.Info("document_resubmitted", "document_id", doc.ID, "by", principal.UserID)
	return doc, nil
}
