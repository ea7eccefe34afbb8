package mayan

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/doc-summarizer/internal/core/domain"
	"github.com/kirillkom/doc-summarizer/internal/infrastructure/resilience"
)

const pageSeparator = "\n\n"

type listResponse[T any] struct {
	Results []T `json:"results"`
}

type versionResource struct {
	ID resourceID `json:"id"`
}

type pageResource struct {
	ID         resourceID `json:"id"`
	PageNumber int        `json:"page_number"`
}

type pageOCRResource struct {
	Content string `json:"content"`
}

// FetchExtractedText makes a single best-effort read of the OCR output of the
// latest version. Pages that fail are skipped.
func (c *Client) FetchExtractedText(ctx context.Context, externalID string) (string, error) {
	version, err := c.latestVersion(ctx, externalID)
	if err != nil {
		return "", err
	}

	pages, err := c.listPages(ctx, externalID, version.ID)
	if err != nil {
		return "", err
	}

	contents := make([]string, len(pages))
	group := new(errgroup.Group)
	group.SetLimit(c.pageConcurrency)
	for i, page := range pages {
		group.Go(func() error {
			content, err := c.pageOCR(ctx, externalID, version.ID, page.ID)
			if err != nil {
				c.logger.Warn("page_ocr_failed",
					"external_id", externalID,
					"page_id", string(page.ID),
					"page_number", page.PageNumber,
					"error", err,
				)
				return nil
			}
			contents[i] = content
			return nil
		})
	}
	_ = group.Wait()

	texts := make([]string, 0, len(contents))
	for _, content := range contents {
		if content != "" {
			texts = append(texts, content)
		}
	}
	fullText := strings.Join(texts, pageSeparator)
	c.logger.Debug("ocr_text_read",
		"external_id", externalID,
		"pages", len(pages),
		"pages_with_text", len(texts),
		"chars", len(fullText),
	)
	return fullText, nil
}

// FetchExtractedTextWithRetry polls FetchExtractedText until it yields
// non-blank text. Missing versions, missing pages and blank text count as
// "not ready"; a transport error on the final attempt is returned as is.
func (c *Client) FetchExtractedTextWithRetry(ctx context.Context, externalID string, policy domain.PollPolicy) (string, error) {
	c.logger.Info("ocr_poll_started",
		"external_id", externalID,
		"initial_delay", policy.InitialDelay.String(),
		"interval", policy.Interval.String(),
		"max_attempts", policy.MaxAttempts,
	)

	text, attempts, err := resilience.Poll(ctx, c.poller, policy, func(ctx context.Context, attempt int) (string, bool, error) {
		text, err := c.FetchExtractedText(ctx, externalID)
		switch {
		case domain.IsNotReady(err):
			c.logger.Info("ocr_not_ready", "external_id", externalID, "attempt", attempt, "reason", err.Error())
			return "", false, nil
		case err != nil:
			c.logger.Warn("ocr_attempt_failed", "external_id", externalID, "attempt", attempt, "error", err)
			return "", false, err
		case strings.TrimSpace(text) == "":
			c.logger.Info("ocr_not_ready", "external_id", externalID, "attempt", attempt, "reason", "empty content")
			return "", false, nil
		}
		return text, true, nil
	})
	if err != nil {
		if errors.Is(err, resilience.ErrPollExhausted) {
			return "", domain.WrapError(domain.ErrOCRTimeout, "mayan extract text", fmt.Errorf("%d attempts for document %s", attempts, externalID))
		}
		return "", fmt.Errorf("mayan extract text after %d attempts: %w", attempts, err)
	}

	c.logger.Info("ocr_text_ready", "external_id", externalID, "attempt", attempts, "chars", len(text))
	return text, nil
}

func (c *Client) latestVersion(ctx context.Context, externalID string) (versionResource, error) {
	var versions listResponse[versionResource]
	err := c.getJSON(ctx, "mayan.versions", fmt.Sprintf("/documents/%s/versions/", externalID), &versions)
	if err != nil {
		return versionResource{}, fmt.Errorf("list versions of %s: %w", externalID, err)
	}
	if len(versions.Results) == 0 {
		return versionResource{}, domain.WrapError(domain.ErrNoVersions, "mayan versions", fmt.Errorf("document %s", externalID))
	}
	return versions.Results[len(versions.Results)-1], nil
}

func (c *Client) listPages(ctx context.Context, externalID string, versionID resourceID) ([]pageResource, error) {
	var pages listResponse[pageResource]
	path := fmt.Sprintf("/documents/%s/versions/%s/pages/", externalID, versionID)
	if err := c.getJSON(ctx, "mayan.pages", path, &pages); err != nil {
		return nil, fmt.Errorf("list pages of %s/%s: %w", externalID, versionID, err)
	}
	if len(pages.Results) == 0 {
		return nil, domain.WrapError(domain.ErrNoPages, "mayan pages", fmt.Errorf("document %s version %s", externalID, versionID))
	}
	sort.SliceStable(pages.Results, func(i, j int) bool {
		return pages.Results[i].PageNumber < pages.Results[j].PageNumber
	})
	return pages.Results, nil
}

func (c *Client) pageOCR(ctx context.Context, externalID string, versionID, pageID resourceID) (string, error) {
	var ocr pageOCRResource
	path := fmt.Sprintf("/documents/%s/versions/%s/pages/%s/ocr/", externalID, versionID, pageID)
	if err := c.getJSON(ctx, "mayan.page_ocr", path, &ocr); err != nil {
		return "", err
	}
	return ocr.Content, nil
}

func (c *Client) getJSON(ctx context.Context, operation, path string, out any) error {
	return c.do(ctx, request{
		operation:  operation,
		method:     http.MethodGet,
		path:       path,
		idempotent: true,
	}, decodeJSONInto(out))
}
