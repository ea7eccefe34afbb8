package mayan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type request struct {
	operation   string
	method      string
	path        string
	body        []byte
	contentType string
	idempotent  bool
}

type responseHandler func(resp *http.Response) error

func decodeJSONInto(out any) responseHandler {
	return func(resp *http.Response) error {
		return json.NewDecoder(resp.Body).Decode(out)
	}
}

// do sends req through the rate limiter and, when configured, the resilience
// executor. Non-idempotent requests are never retried.
func (c *Client) do(ctx context.Context, req request, handle responseHandler) error {
	call := func(ctx context.Context) error {
		return c.roundTrip(ctx, req, handle)
	}
	if c.executor == nil {
		return wrapTemporaryIfNeeded(req.operation, call(ctx))
	}
	classifier := classifyMayanError
	if !req.idempotent {
		classifier = classifyNonIdempotent
	}
	return wrapTemporaryIfNeeded(req.operation, c.executor.Execute(ctx, req.operation, call, classifier))
}

func (c *Client) roundTrip(ctx context.Context, req request, handle responseHandler) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s rate limit wait: %w", req.operation, err)
	}

	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+apiPrefix+req.path, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", req.operation, err)
	}
	httpReq.Header.Set("Authorization", c.authHeader)
	httpReq.Header.Set("Accept", "application/json")
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("mayan %s request: %w", req.operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return newHTTPStatusError(req.operation, resp)
	}
	if handle == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := handle(resp); err != nil {
		return fmt.Errorf("decode %s response: %w", req.operation, err)
	}
	return nil
}

func newHTTPStatusError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &HTTPStatusError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       strings.TrimSpace(string(body)),
	}
}
