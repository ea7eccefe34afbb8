package httpadapter

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/kirillkom/doc-summarizer/internal/config"
	"github.com/kirillkom/doc-summarizer/internal/core/domain"
	"github.com/kirillkom/doc-summarizer/internal/core/ports"
	"github.com/kirillkom/doc-summarizer/internal/observability/metrics"
)

const testSecret = "test-secret"

type ingestFake struct {
	req  ports.UploadRequest
	body []byte
	err  error
}

func (f *ingestFake) Upload(_ context.Context, req ports.UploadRequest) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.req = req
	raw, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	f.body = raw
	now := time.Date(2024, 12, 15, 10, 0, 0, 0, time.UTC)
	return &domain.Document{
		ID:         "doc-1",
		OwnerID:    req.Owner.UserID,
		ExternalID: "42",
		Filename:   req.Filename,
		SizeBytes:  int64(len(raw)),
		MimeType:   domain.NormalizeMimeType(req.MimeType),
		Status:     domain.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (f *ingestFake) EnqueueProcessing(context.Context, string, string) error { return nil }

type docsFake struct {
	err       error
	doc       *domain.Document
	file      []byte
	filter    domain.ListFilter
	principal domain.Principal
	deleted   string
}

func (f *docsFake) List(_ context.Context, principal domain.Principal, filter domain.ListFilter) (*domain.DocumentPage, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.principal = principal
	f.filter = filter
	return &domain.DocumentPage{Documents: []domain.Document{*f.doc}, Total: 1, Page: 1, Pages: 1}, nil
}

func (f *docsFake) Get(_ context.Context, principal domain.Principal, _ string) (*domain.Document, error) {
	f.principal = principal
	if f.err != nil {
		return nil, f.err
	}
	return f.doc, nil
}

func (f *docsFake) GetStatus(ctx context.Context, principal domain.Principal, id string) (domain.DocumentStatus, error) {
	doc, err := f.Get(ctx, principal, id)
	if err != nil {
		return "", err
	}
	return doc.Status, nil
}

func (f *docsFake) GetSummary(ctx context.Context, principal domain.Principal, id string) (*domain.SummaryView, error) {
	doc, err := f.Get(ctx, principal, id)
	if err != nil {
		return nil, err
	}
	view := doc.SummaryView()
	return &view, nil
}

func (f *docsFake) Download(ctx context.Context, principal domain.Principal, id string) (*domain.Document, []byte, error) {
	doc, err := f.Get(ctx, principal, id)
	if err != nil {
		return nil, nil, err
	}
	return doc, f.file, nil
}

func (f *docsFake) Delete(_ context.Context, _ domain.Principal, id string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = id
	return nil
}

func (f *docsFake) Resubmit(ctx context.Context, principal domain.Principal, id string) (*domain.Document, error) {
	return f.Get(ctx, principal, id)
}

type accessAdminFake struct {
	status  domain.AccessStatus
	err     error
	granted *domain.AccessGrant
	update  domain.GrantUpdate
}

func (f *accessAdminFake) HasActiveAccess(context.Context, string) (bool, error) {
	return f.status.HasAccess, nil
}

func (f *accessAdminFake) CheckAccess(context.Context, string) (domain.AccessStatus, error) {
	return f.status, nil
}

func (f *accessAdminFake) StatusFor(context.Context, domain.Principal) (domain.AccessStatus, error) {
	return f.status, f.err
}

func (f *accessAdminFake) Authorize(context.Context, domain.Principal) error { return f.err }

func (f *accessAdminFake) Grant(_ context.Context, admin domain.Principal, userID string, startsAt, endsAt time.Time) (*domain.AccessGrant, error) {
	if !admin.IsAdmin() {
		return nil, domain.WrapError(domain.ErrForbidden, "grant", io.EOF)
	}
	f.granted = &domain.AccessGrant{ID: "g-1", UserID: userID, StartsAt: startsAt, EndsAt: endsAt, Active: true, CreatedBy: admin.UserID}
	return f.granted, nil
}

func (f *accessAdminFake) ListGrants(context.Context, domain.Principal) ([]domain.AccessGrant, error) {
	return []domain.AccessGrant{}, f.err
}

func (f *accessAdminFake) UpdateGrant(_ context.Context, _ domain.Principal, id string, update domain.GrantUpdate) (*domain.AccessGrant, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.update = update
	return &domain.AccessGrant{ID: id}, nil
}

func (f *accessAdminFake) RevokeGrant(context.Context, domain.Principal, string) error { return f.err }

type fixture struct {
	handler http.Handler
	ingest  *ingestFake
	docs    *docsFake
	access  *accessAdminFake
	metrics *metrics.HTTPServerMetrics
}

func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()
	cfg := config.Defaults()
	cfg.JWTSecret = testSecret
	cfg.APIRateLimitRPS = 0
	if mutate != nil {
		mutate(&cfg)
	}
	f := &fixture{
		ingest: &ingestFake{},
		docs: &docsFake{
			doc:  &domain.Document{ID: "doc-1", OwnerID: "u-1", Filename: "invoice.pdf", MimeType: domain.MimePDF, Status: domain.StatusPending},
			file: []byte("%PDF-1.4"),
		},
		access:  &accessAdminFake{},
		metrics: metrics.NewHTTPServerMetrics(serviceName),
	}
	f.handler = NewRouter(cfg, f.ingest, f.docs, f.access, f.metrics).Handler()
	return f
}

func bearer(t *testing.T, userID string, role domain.Role) string {
	t.Helper()
	token, err := SignToken(testSecret, userID, role, time.Hour)
	if err != nil {
		t.Fatalf("SignToken() error = %v", err)
	}
	return "Bearer " + token
}
