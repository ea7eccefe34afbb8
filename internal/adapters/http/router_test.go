package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/doc-summarizer/internal/config"
	"github.com/kirillkom/doc-summarizer/internal/core/domain"
)

func do(t *testing.T, handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func decodeBody(t *testing.T, res *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func multipartUpload(t *testing.T, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("CreatePart() error = %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return &body, writer.FormDataContentType()
}

func TestHealthzIsPublic(t *testing.T) {
	f := newFixture(t, nil)
	res := do(t, f.handler, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}
}

func TestDocumentRoutesRequireBearerToken(t *testing.T) {
	f := newFixture(t, nil)

	res := do(t, f.handler, httptest.NewRequest(http.MethodGet, "/v1/documents", nil))
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}

	expired, err := SignToken(testSecret, "u-1", domain.RoleUser, -time.Minute)
	if err != nil {
		t.Fatalf("SignToken() error = %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/v1/documents", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	if res := do(t, f.handler, req); res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired token, got %d", res.Code)
	}

	forged, err := SignToken("other-secret", "u-1", domain.RoleAdmin, time.Hour)
	if err != nil {
		t.Fatalf("SignToken() error = %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/v1/documents", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	if res := do(t, f.handler, req); res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for forged token, got %d", res.Code)
	}
}

func TestUploadDocumentAccepted(t *testing.T) {
	f := newFixture(t, nil)
	body, contentType := multipartUpload(t, "invoice.pdf", "application/pdf", []byte("%PDF-1.4 data"))

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", bearer(t, "u-1", domain.RoleUser))
	res := do(t, f.handler, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}
	doc := decodeBody(t, res)
	if doc["id"] != "doc-1" || doc["status"] != "pending" || doc["summary_text"] != nil {
		t.Fatalf("unexpected response %+v", doc)
	}
	if f.ingest.req.Owner.UserID != "u-1" || f.ingest.req.MimeType != "application/pdf" || string(f.ingest.body) != "%PDF-1.4 data" {
		t.Fatalf("unexpected upload request %+v", f.ingest.req)
	}
}

func TestUploadDetectsMimeTypeFromExtension(t *testing.T) {
	f := newFixture(t, nil)
	body, contentType := multipartUpload(t, "scan.png", "", []byte("png"))

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", bearer(t, "u-1", domain.RoleUser))
	if res := do(t, f.handler, req); res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", res.Code)
	}
	if f.ingest.req.MimeType != "image/png" {
		t.Fatalf("expected image/png, got %q", f.ingest.req.MimeType)
	}
}

func TestUploadMissingMultipartField(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", bytes.NewBufferString("plain-text"))
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Authorization", bearer(t, "u-1", domain.RoleUser))
	res := do(t, f.handler, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if decodeBody(t, res)["code"] != "invalid_input" {
		t.Fatalf("expected invalid_input code")
	}
}

func TestExpiredAccessMapsTo403WithCode(t *testing.T) {
	f := newFixture(t, nil)
	f.docs.err = domain.WrapError(domain.ErrAccessExpired, "authorize", errors.New("user u-1"))

	req := httptest.NewRequest(http.MethodGet, "/v1/documents/doc-1/summary", nil)
	req.Header.Set("Authorization", bearer(t, "u-1", domain.RoleUser))
	res := do(t, f.handler, req)

	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", res.Code)
	}
	if body := decodeBody(t, res); body["code"] != "access_expired" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestProviderErrorBodyIsNotEchoed(t *testing.T) {
	f := newFixture(t, nil)
	f.docs.err = domain.WrapError(domain.ErrDownload, "mayan fetch file", errors.New(`status 500: {"detail":"internal token abc123"}`))

	req := httptest.NewRequest(http.MethodGet, "/v1/documents/doc-1/file", nil)
	req.Header.Set("Authorization", bearer(t, "u-1", domain.RoleUser))
	res := do(t, f.handler, req)

	if res.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", res.Code)
	}
	if strings.Contains(res.Body.String(), "abc123") {
		t.Fatalf("provider body leaked: %s", res.Body.String())
	}
}

func TestDocumentNotFoundMapsTo404(t *testing.T) {
	f := newFixture(t, nil)
	f.docs.err = domain.WrapError(domain.ErrDocumentNotFound, "get document", errors.New("id=missing"))

	req := httptest.NewRequest(http.MethodGet, "/v1/documents/missing", nil)
	req.Header.Set("Authorization", bearer(t, "u-1", domain.RoleUser))
	if res := do(t, f.handler, req); res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestListDocumentsPassesPaging(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/documents?page=2&limit=5&search=inv", nil)
	req.Header.Set("Authorization", bearer(t, "u-1", domain.RoleUser))
	res := do(t, f.handler, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if f.docs.filter != (domain.ListFilter{Page: 2, Limit: 5, Search: "inv"}) {
		t.Fatalf("unexpected filter %+v", f.docs.filter)
	}
	if f.docs.principal.UserID != "u-1" || f.docs.principal.Role != domain.RoleUser {
		t.Fatalf("unexpected principal %+v", f.docs.principal)
	}
}

func TestDownloadServesOriginalFile(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/documents/doc-1/file", nil)
	req.Header.Set("Authorization", bearer(t, "u-1", domain.RoleUser))
	res := do(t, f.handler, req)

	if res.Code != http.StatusOK || res.Body.String() != "%PDF-1.4" {
		t.Fatalf("unexpected response %d %q", res.Code, res.Body.String())
	}
	if res.Header().Get("Content-Type") != domain.MimePDF {
		t.Fatalf("unexpected content type %q", res.Header().Get("Content-Type"))
	}
	if !strings.Contains(res.Header().Get("Content-Disposition"), "invoice.pdf") {
		t.Fatalf("unexpected disposition %q", res.Header().Get("Content-Disposition"))
	}
}

func TestDeleteDocumentReturns204(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodDelete, "/v1/documents/doc-1", nil)
	req.Header.Set("Authorization", bearer(t, "u-1", domain.RoleUser))
	if res := do(t, f.handler, req); res.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", res.Code)
	}
	if f.docs.deleted != "doc-1" {
		t.Fatalf("expected delete of doc-1, got %q", f.docs.deleted)
	}
}

func TestCheckAccessReportsExpiry(t *testing.T) {
	f := newFixture(t, nil)
	expires := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	f.access.status = domain.AccessStatus{HasAccess: true, ExpiresAt: &expires}

	req := httptest.NewRequest(http.MethodGet, "/v1/access/check", nil)
	req.Header.Set("Authorization", bearer(t, "u-1", domain.RoleUser))
	res := do(t, f.handler, req)

	body := decodeBody(t, res)
	if body["has_access"] != true || body["expires_at"] != "2024-12-31T00:00:00Z" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestCreateGrantParsesDates(t *testing.T) {
	f := newFixture(t, nil)
	payload := `{"user_id":"u-1","start_date":"2024-12-01","end_date":"2024-12-31T23:59:59Z"}`

	req := httptest.NewRequest(http.MethodPost, "/v1/access/grants", strings.NewReader(payload))
	req.Header.Set("Authorization", bearer(t, "root", domain.RoleAdmin))
	res := do(t, f.handler, req)

	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", res.Code, res.Body.String())
	}
	if !f.access.granted.StartsAt.Equal(time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)) ||
		!f.access.granted.EndsAt.Equal(time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC)) {
		t.Fatalf("unexpected window %+v", f.access.granted)
	}
}

func TestCreateGrantRejectsNonAdmin(t *testing.T) {
	f := newFixture(t, nil)
	payload := `{"user_id":"u-2","start_date":"2024-12-01","end_date":"2024-12-31"}`

	req := httptest.NewRequest(http.MethodPost, "/v1/access/grants", strings.NewReader(payload))
	req.Header.Set("Authorization", bearer(t, "u-1", domain.RoleUser))
	res := do(t, f.handler, req)

	if res.Code != http.StatusForbidden || decodeBody(t, res)["code"] != "forbidden" {
		t.Fatalf("expected 403 forbidden, got %d", res.Code)
	}
}

func TestCreateGrantRejectsBadDate(t *testing.T) {
	f := newFixture(t, nil)
	payload := `{"user_id":"u-2","start_date":"yesterday","end_date":"2024-12-31"}`

	req := httptest.NewRequest(http.MethodPost, "/v1/access/grants", strings.NewReader(payload))
	req.Header.Set("Authorization", bearer(t, "root", domain.RoleAdmin))
	if res := do(t, f.handler, req); res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestUpdateGrantAppliesPartialFields(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodPatch, "/v1/access/grants/g-1", strings.NewReader(`{"is_active":false}`))
	req.Header.Set("Authorization", bearer(t, "root", domain.RoleAdmin))
	if res := do(t, f.handler, req); res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if f.access.update.Active == nil || *f.access.update.Active || f.access.update.StartsAt != nil || f.access.update.EndsAt != nil {
		t.Fatalf("unexpected update %+v", f.access.update)
	}
}

func TestRateLimitMiddlewareReturns429(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.APIRateLimitRPS = 1
		cfg.APIRateLimitBurst = 1
	})

	res1 := do(t, f.handler, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res1.Code != http.StatusOK {
		t.Fatalf("first request expected 200, got %d", res1.Code)
	}

	res2 := do(t, f.handler, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res2.Code != http.StatusTooManyRequests {
		t.Fatalf("second request expected 429, got %d", res2.Code)
	}
	if res2.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header for 429 response")
	}
}

func TestBackpressureMiddlewareReturns503WhenSaturated(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan int, 1)

	base := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-release
		w.WriteHeader(http.StatusNoContent)
	})
	handler := backpressureMiddleware(base, 1, 20*time.Millisecond)

	go func() {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		done <- res.Code
	}()

	<-started

	res2 := do(t, handler, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res2.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for saturated backpressure gate, got %d", res2.Code)
	}
	if decodeBody(t, res2)["error"] == "" {
		t.Fatalf("expected overload error message in response")
	}

	close(release)

	select {
	case code := <-done:
		if code != http.StatusNoContent {
			t.Fatalf("first request expected 204, got %d", code)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for first request completion")
	}
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	cases := map[error]int{
		domain.ErrInvalidInput:     http.StatusBadRequest,
		domain.ErrUnauthorized:     http.StatusUnauthorized,
		domain.ErrAccessExpired:    http.StatusForbidden,
		domain.ErrForbidden:        http.StatusForbidden,
		domain.ErrDocumentNotFound: http.StatusNotFound,
		domain.ErrGrantNotFound:    http.StatusNotFound,
		domain.ErrUpload:           http.StatusBadGateway,
		domain.ErrTemporary:        http.StatusServiceUnavailable,
		errors.New("boom"):         http.StatusInternalServerError,
	}
	for kind, want := range cases {
		err := domain.WrapError(kind, "op", errors.New("detail"))
		if got := mapErrorToHTTPStatus(err); got != want {
			t.Fatalf("%v: got %d, want %d", kind, got, want)
		}
	}
}
