package mayan

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/doc-summarizer/internal/core/domain"
	"github.com/kirillkom/doc-summarizer/internal/infrastructure/resilience"
)

func newTestClient(serverURL string) *Client {
	return NewWithOptions(Config{
		BaseURL:        serverURL,
		Token:          "secret",
		DocumentTypeID: 7,
	}, Options{
		Poller: &resilience.Poller{Sleep: func(ctx context.Context, _ time.Duration) error { return ctx.Err() }},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func testPolicy(maxAttempts int) domain.PollPolicy {
	return domain.PollPolicy{InitialDelay: time.Second, Interval: time.Second, MaxAttempts: maxAttempts}
}

func TestFetchExtractedTextWithRetryReturnsTextOnThirdPoll(t *testing.T) {
	var versionCalls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Token secret" {
			t.Errorf("Authorization = %q", got)
		}
		switch r.URL.Path {
		case "/api/v4/documents/ext-1/versions/":
			if versionCalls.Add(1) < 3 {
				_, _ = w.Write([]byte(`{"results":[]}`))
				return
			}
			_, _ = w.Write([]byte(`{"results":[{"id":1},{"id":2}]}`))
		case "/api/v4/documents/ext-1/versions/2/pages/":
			_, _ = w.Write([]byte(`{"results":[{"id":11,"page_number":1}]}`))
		case "/api/v4/documents/ext-1/versions/2/pages/11/ocr/":
			_, _ = w.Write([]byte(`{"content":"Invoice #42 total $100"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	text, err := client.FetchExtractedTextWithRetry(context.Background(), "ext-1", testPolicy(20))
	if err != nil {
		t.Fatalf("FetchExtractedTextWithRetry() error = %v", err)
	}
	if text != "Invoice #42 total $100" {
		t.Fatalf("unexpected text %q", text)
	}
	if got := versionCalls.Load(); got != 3 {
		t.Fatalf("expected 3 polls, got %d", got)
	}
}

func TestFetchExtractedTextWithRetryTimesOut(t *testing.T) {
	var versionCalls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v4/documents/ext-1/versions/":
			versionCalls.Add(1)
			_, _ = w.Write([]byte(`{"results":[{"id":"v1"}]}`))
		case "/api/v4/documents/ext-1/versions/v1/pages/":
			_, _ = w.Write([]byte(`{"results":[{"id":1,"page_number":1}]}`))
		case "/api/v4/documents/ext-1/versions/v1/pages/1/ocr/":
			_, _ = w.Write([]byte(`{"content":"   "}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.FetchExtractedTextWithRetry(context.Background(), "ext-1", testPolicy(4))
	if !errors.Is(err, domain.ErrOCRTimeout) {
		t.Fatalf("expected ErrOCRTimeout, got %v", err)
	}
	if got := versionCalls.Load(); got != 4 {
		t.Fatalf("expected 4 polls, got %d", got)
	}
}

func TestFetchExtractedTextWithRetryReturnsFinalAttemptError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not authorised", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.FetchExtractedTextWithRetry(context.Background(), "ext-1", testPolicy(2))
	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 status error, got %v", err)
	}
	if errors.Is(err, domain.ErrOCRTimeout) {
		t.Fatalf("final attempt error must not be reported as timeout: %v", err)
	}
}

func TestFetchExtractedTextReportsMissingPages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v4/documents/ext-1/versions/":
			_, _ = w.Write([]byte(`{"results":[{"id":1}]}`))
		case "/api/v4/documents/ext-1/versions/1/pages/":
			_, _ = w.Write([]byte(`{"results":[]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).FetchExtractedText(context.Background(), "ext-1")
	if !errors.Is(err, domain.ErrNoPages) || !domain.IsNotReady(err) {
		t.Fatalf("expected ErrNoPages, got %v", err)
	}
}

func TestFetchExtractedTextSkipsFailedPagesAndKeepsOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v4/documents/ext-1/versions/":
			_, _ = w.Write([]byte(`{"results":[{"id":1}]}`))
		case "/api/v4/documents/ext-1/versions/1/pages/":
			_, _ = w.Write([]byte(`{"results":[{"id":3,"page_number":3},{"id":1,"page_number":1},{"id":2,"page_number":2}]}`))
		case "/api/v4/documents/ext-1/versions/1/pages/1/ocr/":
			_, _ = w.Write([]byte(`{"content":"one"}`))
		case "/api/v4/documents/ext-1/versions/1/pages/2/ocr/":
			http.Error(w, "boom", http.StatusInternalServerError)
		case "/api/v4/documents/ext-1/versions/1/pages/3/ocr/":
			_, _ = w.Write([]byte(`{"content":"three"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	text, err := newTestClient(server.URL).FetchExtractedText(context.Background(), "ext-1")
	if err != nil {
		t.Fatalf("FetchExtractedText() error = %v", err)
	}
	if text != "one\n\nthree" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestUploadSendsMultipartFormAndSubmitsOCR(t *testing.T) {
	var submitted atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v4/documents/upload/":
			if r.Method != http.MethodPost {
				t.Errorf("method = %s", r.Method)
			}
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Errorf("parse multipart: %v", err)
			}
			if got := r.FormValue("document_type_id"); got != "7" {
				t.Errorf("document_type_id = %q", got)
			}
			if got := r.FormValue("label"); got != "invoice.pdf" {
				t.Errorf("label = %q", got)
			}
			file, header, err := r.FormFile("file")
			if err != nil {
				t.Errorf("form file: %v", err)
			} else {
				defer file.Close()
				body, _ := io.ReadAll(file)
				if header.Filename != "invoice.pdf" || string(body) != "%PDF-1.4" {
					t.Errorf("unexpected file %q %q", header.Filename, body)
				}
			}
			_, _ = w.Write([]byte(`{"id":42,"label":"invoice.pdf"}`))
		case "/api/v4/documents/42/versions/":
			_, _ = w.Write([]byte(`{"results":[{"id":5}]}`))
		case "/api/v4/documents/42/versions/5/ocr/submit/":
			submitted.Store(true)
			w.WriteHeader(http.StatusAccepted)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	externalID, err := newTestClient(server.URL).Upload(context.Background(), "invoice.pdf", []byte("%PDF-1.4"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if externalID != "42" {
		t.Fatalf("externalID = %q", externalID)
	}
	if !submitted.Load() {
		t.Fatalf("expected ocr submit call")
	}
}

func TestUploadIgnoresOCRSubmitFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v4/documents/upload/" {
			_, _ = w.Write([]byte(`{"id":"abc"}`))
			return
		}
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	externalID, err := newTestClient(server.URL).Upload(context.Background(), "scan.png", []byte("png"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if externalID != "abc" {
		t.Fatalf("externalID = %q", externalID)
	}
}

func TestUploadFailureIsUploadError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad document type", http.StatusBadRequest)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Upload(context.Background(), "scan.png", []byte("png"))
	if !errors.Is(err, domain.ErrUpload) {
		t.Fatalf("expected ErrUpload, got %v", err)
	}
	if !strings.Contains(err.Error(), "bad document type") {
		t.Fatalf("expected response body in error, got %v", err)
	}
}

func TestFetchFileDownloadsLatestFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v4/documents/9/files/":
			_, _ = w.Write([]byte(`{"results":[{"id":1},{"id":2}]}`))
		case "/api/v4/documents/9/files/2/download/":
			_, _ = w.Write([]byte("original bytes"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	data, err := newTestClient(server.URL).FetchFile(context.Background(), "9")
	if err != nil {
		t.Fatalf("FetchFile() error = %v", err)
	}
	if string(data) != "original bytes" {
		t.Fatalf("unexpected data %q", data)
	}
}

func TestRemoveMapsServerErrorsToTemporaryDeleteError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/api/v4/documents/9/" {
			http.NotFound(w, r)
			return
		}
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer server.Close()

	err := newTestClient(server.URL).Remove(context.Background(), "9")
	if !errors.Is(err, domain.ErrDelete) {
		t.Fatalf("expected ErrDelete, got %v", err)
	}
	if !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
}

func TestExecutorRetriesIdempotentCalls(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	cfg := resilience.DefaultConfig()
	cfg.Retry.InitialBackoff = time.Millisecond
	cfg.Retry.MaxBackoff = time.Millisecond
	client := NewWithOptions(Config{BaseURL: server.URL, Token: "t"}, Options{
		Executor: resilience.NewExecutor(cfg),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	if err := client.Remove(context.Background(), "1"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected 2 calls, got %d", got)
	}
}

func TestRemoveTreatsMissingDocumentAsRemoved(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	if err := newTestClient(server.URL).Remove(context.Background(), "9"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
}
