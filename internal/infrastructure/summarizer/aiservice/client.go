package aiservice

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/doc-summarizer/internal/core/domain"
	"github.com/kirillkom/doc-summarizer/internal/infrastructure/resilience"
)

const analyzePath = "/api/analyze"

type Config struct {
	BaseURL     string
	Language    string
	HTTPTimeout time.Duration
	// RequestsPerSecond paces calls to the service; zero disables pacing.
	RequestsPerSecond float64
}

type Options struct {
	HTTPClient *http.Client
	Executor   *resilience.Executor
	Logger     *slog.Logger
}

type Client struct {
	baseURL    string
	language   string
	timeout    time.Duration
	httpClient *http.Client
	executor   *resilience.Executor
	limiter    *rate.Limiter
	logger     *slog.Logger
}

func New(cfg Config) *Client {
	return NewWithOptions(cfg, Options{})
}

func NewWithOptions(cfg Config, options Options) *Client {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	language := strings.TrimSpace(cfg.Language)
	if language == "" {
		language = "en"
	}
	httpClient := options.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		language:   language,
		timeout:    timeout,
		httpClient: httpClient,
		executor:   options.Executor,
		limiter:    limiter,
		logger:     logger.With("component", "aiservice"),
	}
}

type analyzeRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

type analyzeResponse struct {
	Summary        string   `json:"summary"`
	KeyPoints      []string `json:"key_points"`
	Keywords       []string `json:"keywords"`
	ModelUsed      string   `json:"model_used"`
	ProcessingTime float64  `json:"processing_time"`
}

// Summarize sends text to the analysis service. Missing response fields
// become empty values.
func (c *Client) Summarize(ctx context.Context, text string) (domain.Summary, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var response analyzeResponse
	if err := c.postJSON(ctx, analyzePath, analyzeRequest{Text: text, Language: c.language}, &response, "analyze"); err != nil {
		return domain.Summary{}, domain.WrapError(domain.ErrSummarization, "aiservice analyze", err)
	}

	summary := domain.Summary{
		Text:      strings.TrimSpace(response.Summary),
		KeyPoints: nonNil(response.KeyPoints),
		Keywords:  nonNil(response.Keywords),
	}
	c.logger.Info("summary_generated",
		"input_chars", len(text),
		"summary_chars", len(summary.Text),
		"key_points", len(summary.KeyPoints),
		"keywords", len(summary.Keywords),
		"model", response.ModelUsed,
		"service_seconds", response.ProcessingTime,
	)
	return summary, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
