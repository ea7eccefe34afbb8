package mayan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/doc-summarizer/internal/core/domain"
	"github.com/kirillkom/doc-summarizer/internal/infrastructure/resilience"
)

const apiPrefix = "/api/v4"

type Config struct {
	BaseURL string
	Token   string
	// AuthScheme prefixes the token in the Authorization header ("Token" for Mayan).
	AuthScheme     string
	DocumentTypeID int
	HTTPTimeout    time.Duration
	// RequestsPerSecond paces calls to the provider; zero disables pacing.
	RequestsPerSecond float64
	Burst             int
	PageConcurrency   int
}

type Options struct {
	HTTPClient *http.Client
	Executor   *resilience.Executor
	Poller     *resilience.Poller
	Logger     *slog.Logger
}

// Client talks to a Mayan EDMS compatible document store. OCR readiness is
// inferred from page-level OCR content since the provider has no completion signal.
type Client struct {
	baseURL         string
	authHeader      string
	documentTypeID  int
	pageConcurrency int

	httpClient *http.Client
	executor   *resilience.Executor
	limiter    *rate.Limiter
	poller     *resilience.Poller
	logger     *slog.Logger
}

func New(cfg Config) *Client {
	return NewWithOptions(cfg, Options{})
}

func NewWithOptions(cfg Config, options Options) *Client {
	scheme := strings.TrimSpace(cfg.AuthScheme)
	if scheme == "" {
		scheme = "Token"
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	docType := cfg.DocumentTypeID
	if docType <= 0 {
		docType = 1
	}
	pageConcurrency := cfg.PageConcurrency
	if pageConcurrency <= 0 {
		pageConcurrency = 4
	}

	httpClient := options.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	poller := options.Poller
	if poller == nil {
		poller = resilience.NewPoller()
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		authHeader:      scheme + " " + cfg.Token,
		documentTypeID:  docType,
		pageConcurrency: pageConcurrency,
		httpClient:      httpClient,
		executor:        options.Executor,
		limiter:         limiter,
		poller:          poller,
		logger:          logger.With("component", "mayan"),
	}
}

type uploadResponse struct {
	ID    resourceID `json:"id"`
	Label string     `json:"label"`
}

// Upload creates a document from data and asks the provider to OCR it.
// A failed OCR submission is logged only: the provider may auto-trigger OCR and
// the extraction loop keeps polling either way.
func (c *Client) Upload(ctx context.Context, filename string, data []byte) (string, error) {
	body, contentType, err := c.buildUploadForm(filename, data)
	if err != nil {
		return "", domain.WrapError(domain.ErrUpload, "mayan upload", err)
	}

	var created uploadResponse
	err = c.do(ctx, request{
		operation:   "mayan.upload",
		method:      http.MethodPost,
		path:        "/documents/upload/",
		body:        body,
		contentType: contentType,
		idempotent:  false,
	}, func(resp *http.Response) error {
		return json.NewDecoder(resp.Body).Decode(&created)
	})
	if err != nil {
		return "", domain.WrapError(domain.ErrUpload, "mayan upload", err)
	}
	externalID := string(created.ID)
	if externalID == "" {
		return "", domain.WrapError(domain.ErrUpload, "mayan upload", fmt.Errorf("response carries no document id"))
	}
	c.logger.Info("document_uploaded", "external_id", externalID, "filename", filename, "bytes", len(data))

	if err := c.SubmitForOCR(ctx, externalID); err != nil {
		c.logger.Warn("ocr_submit_failed", "external_id", externalID, "error", err)
	}
	return externalID, nil
}

// SubmitForOCR queues the latest version of the document for OCR.
func (c *Client) SubmitForOCR(ctx context.Context, externalID string) error {
	version, err := c.latestVersion(ctx, externalID)
	if err != nil {
		return err
	}
	path := fmt.Sprintf("/documents/%s/versions/%s/ocr/submit/", externalID, version.ID)
	err = c.do(ctx, request{
		operation:   "mayan.ocr_submit",
		method:      http.MethodPost,
		path:        path,
		body:        []byte("{}"),
		contentType: "application/json",
		idempotent:  true,
	}, nil)
	if err != nil {
		return fmt.Errorf("submit version %s for ocr: %w", version.ID, err)
	}
	c.logger.Info("ocr_submitted", "external_id", externalID, "version_id", string(version.ID))
	return nil
}

func (c *Client) buildUploadForm(filename string, data []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("write form file: %w", err)
	}
	if err := writer.WriteField("document_type_id", strconv.Itoa(c.documentTypeID)); err != nil {
		return nil, "", fmt.Errorf("write document type: %w", err)
	}
	if err := writer.WriteField("label", filename); err != nil {
		return nil, "", fmt.Errorf("write label: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return buf.Bytes(), writer.FormDataContentType(), nil
}

// resourceID accepts both numeric and string identifiers.
type resourceID string

func (id *resourceID) UnmarshalJSON(raw []byte) error {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "null" {
		*id = ""
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		*id = resourceID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return err
	}
	*id = resourceID(n.String())
	return nil
}
