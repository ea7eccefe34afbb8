package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/kirillkom/doc-summarizer/internal/core/domain"
	"github.com/kirillkom/doc-summarizer/internal/core/ports"
)

var errNoRow = errors.New("no row")

type docRepoFake struct {
	mu          sync.Mutex
	docs        map[string]*domain.Document
	statusCalls []domain.DocumentStatus
	statusCtx   []error
	getErr      error
	createErr   error
	statusErr   func(status domain.DocumentStatus) error
	saveErr     error
	saved       map[string]domain.Summary
	listFilter  domain.ListFilter
	listTotal   int
}

func newDocRepoFake(docs ...*domain.Document) *docRepoFake {
	f := &docRepoFake{docs: map[string]*domain.Document{}, saved: map[string]domain.Summary{}}
	for _, doc := range docs {
		f.docs[doc.ID] = doc
	}
	return f
}

func (f *docRepoFake) Create(_ context.Context, doc *domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	copyDoc := *doc
	f.docs[doc.ID] = &copyDoc
	return nil
}

func (f *docRepoFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", errNoRow)
	}
	copyDoc := *doc
	return &copyDoc, nil
}

func (f *docRepoFake) ListByOwner(_ context.Context, ownerID string, filter domain.ListFilter) ([]domain.Document, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listFilter = filter
	out := make([]domain.Document, 0)
	for _, doc := range f.docs {
		if doc.OwnerID == ownerID {
			out = append(out, *doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := len(out)
	if f.listTotal > 0 {
		total = f.listTotal
	}
	return out, total, nil
}

func (f *docRepoFake) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls = append(f.statusCalls, status)
	f.statusCtx = append(f.statusCtx, ctx.Err())
	if f.statusErr != nil {
		if err := f.statusErr(status); err != nil {
			return err
		}
	}
	doc, ok := f.docs[id]
	if !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "update document status", errNoRow)
	}
	doc.Status = status
	return nil
}

func (f *docRepoFake) SaveSummary(_ context.Context, id string, summary domain.Summary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	doc, ok := f.docs[id]
	if !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "save summary", errNoRow)
	}
	text := summary.Text
	doc.SummaryText = &text
	doc.KeyPoints = summary.KeyPoints
	doc.Keywords = summary.Keywords
	doc.Status = domain.StatusCompleted
	f.saved[id] = summary
	return nil
}

func (f *docRepoFake) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[id]; !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "delete document", errNoRow)
	}
	delete(f.docs, id)
	return nil
}

func (f *docRepoFake) doc(id string) *domain.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs[id]
}

type storeFake struct {
	uploadedName string
	uploadedData []byte
	uploadID     string
	uploadErr    error
	uploadCalls  int

	text       string
	textErr    error
	textCalls  int
	textPolicy domain.PollPolicy
	textID     string
	onFetch    func()

	file      []byte
	fileErr   error
	removeErr error
	removed   []string
}

func (f *storeFake) Upload(_ context.Context, filename string, data []byte) (string, error) {
	f.uploadCalls++
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.uploadedName = filename
	f.uploadedData = data
	return f.uploadID, nil
}

func (f *storeFake) FetchExtractedText(context.Context, string) (string, error) {
	return f.text, f.textErr
}

func (f *storeFake) FetchExtractedTextWithRetry(_ context.Context, externalID string, policy domain.PollPolicy) (string, error) {
	f.textCalls++
	f.textID = externalID
	f.textPolicy = policy
	if f.onFetch != nil {
		f.onFetch()
	}
	if f.textErr != nil {
		return "", f.textErr
	}
	return f.text, nil
}

func (f *storeFake) FetchFile(context.Context, string) ([]byte, error) {
	return f.file, f.fileErr
}

func (f *storeFake) Remove(_ context.Context, externalID string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = append(f.removed, externalID)
	return nil
}

type summarizerFake struct {
	summary domain.Summary
	err     error
	calls   int
	input   string
}

func (f *summarizerFake) Summarize(_ context.Context, text string) (domain.Summary, error) {
	f.calls++
	f.input = text
	if f.err != nil {
		return domain.Summary{}, f.err
	}
	return f.summary, nil
}

type queueFake struct {
	jobs []domain.ProcessingJob
	err  error
}

func (f *queueFake) EnqueueProcessing(_ context.Context, job domain.ProcessingJob) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *queueFake) Consume(context.Context, ports.DeliveryHandler) error { return nil }

func (f *queueFake) Close() {}

type inspectorFake struct {
	err   error
	calls int
}

func (f *inspectorFake) Inspect(context.Context, string, []byte) error {
	f.calls++
	return f.err
}

type accessFake struct {
	err error
}

func (f *accessFake) HasActiveAccess(context.Context, string) (bool, error) { return f.err == nil, nil }

func (f *accessFake) CheckAccess(context.Context, string) (domain.AccessStatus, error) {
	return domain.AccessStatus{HasAccess: f.err == nil}, nil
}

func (f *accessFake) StatusFor(context.Context, domain.Principal) (domain.AccessStatus, error) {
	return domain.AccessStatus{HasAccess: f.err == nil}, nil
}

func (f *accessFake) Authorize(context.Context, domain.Principal) error { return f.err }

type grantRepoFake struct {
	grants  []domain.AccessGrant
	listErr error
}

func (f *grantRepoFake) Create(_ context.Context, grant *domain.AccessGrant) error {
	f.grants = append(f.grants, *grant)
	return nil
}

func (f *grantRepoFake) GetByID(_ context.Context, id string) (*domain.AccessGrant, error) {
	for _, grant := range f.grants {
		if grant.ID == id {
			copyGrant := grant
			return &copyGrant, nil
		}
	}
	return nil, domain.WrapError(domain.ErrGrantNotFound, "get access grant", errNoRow)
}

func (f *grantRepoFake) List(context.Context) ([]domain.AccessGrant, error) {
	return append([]domain.AccessGrant(nil), f.grants...), nil
}

func (f *grantRepoFake) Update(_ context.Context, grant *domain.AccessGrant) error {
	for i := range f.grants {
		if f.grants[i].ID == grant.ID {
			f.grants[i] = *grant
			return nil
		}
	}
	return domain.WrapError(domain.ErrGrantNotFound, "update access grant", errNoRow)
}

func (f *grantRepoFake) Delete(_ context.Context, id string) error {
	for i := range f.grants {
		if f.grants[i].ID == id {
			f.grants = append(f.grants[:i], f.grants[i+1:]...)
			return nil
		}
	}
	return domain.WrapError(domain.ErrGrantNotFound, "delete access grant", errNoRow)
}

func (f *grantRepoFake) ListCovering(_ context.Context, userID string, at time.Time) ([]domain.AccessGrant, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.AccessGrant, 0)
	for _, grant := range f.grants {
		if grant.UserID == userID && grant.Covers(at) {
			out = append(out, grant)
		}
	}
	return out, nil
}
