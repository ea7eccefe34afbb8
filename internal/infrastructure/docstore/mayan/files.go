package mayan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/kirillkom/doc-summarizer/internal/core/domain"
)

type fileResource struct {
	ID resourceID `json:"id"`
}

// FetchFile downloads the most recent file revision of the document.
func (c *Client) FetchFile(ctx context.Context, externalID string) ([]byte, error) {
	var files listResponse[fileResource]
	if err := c.getJSON(ctx, "mayan.files", fmt.Sprintf("/documents/%s/files/", externalID), &files); err != nil {
		return nil, domain.WrapError(domain.ErrDownload, "mayan list files", err)
	}
	if len(files.Results) == 0 {
		return nil, domain.WrapError(domain.ErrDownload, "mayan list files", fmt.Errorf("document %s has no files", externalID))
	}
	latest := files.Results[len(files.Results)-1]

	var data []byte
	err := c.do(ctx, request{
		operation:  "mayan.download",
		method:     http.MethodGet,
		path:       fmt.Sprintf("/documents/%s/files/%s/download/", externalID, latest.ID),
		idempotent: true,
	}, func(resp *http.Response) error {
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		data = raw
		return nil
	})
	if err != nil {
		return nil, domain.WrapError(domain.ErrDownload, "mayan download file", err)
	}
	return data, nil
}

// Remove deletes the document on the provider. A document the provider no
// longer knows counts as removed. On other errors the remote document may or
// may not still exist.
func (c *Client) Remove(ctx context.Context, externalID string) error {
	err := c.do(ctx, request{
		operation:  "mayan.delete",
		method:     http.MethodDelete,
		path:       fmt.Sprintf("/documents/%s/", externalID),
		idempotent: true,
	}, nil)
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		c.logger.Info("document_already_absent", "external_id", externalID)
		return nil
	}
	if err != nil {
		return domain.WrapError(domain.ErrDelete, "mayan delete document", err)
	}
	c.logger.Info("document_deleted", "external_id", externalID)
	return nil
}
