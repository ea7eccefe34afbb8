package aiservice

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/doc-summarizer/internal/core/domain"
	"github.com/kirillkom/doc-summarizer/internal/infrastructure/resilience"
)

type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "aiservice status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("aiservice %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("aiservice %s status: %s: %s", e.Operation, e.Status, strings.TrimSpace(e.Body))
}

func classifyServiceError(err error) resilience.ErrorClassification {
	return resilience.ClassifyHTTP(err, func(err error) (int, bool) {
		var statusErr *HTTPStatusError
		if errors.As(err, &statusErr) {
			return statusErr.StatusCode, true
		}
		return 0, false
	})
}

func wrapTemporaryIfNeeded(operation string, err error) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifyServiceError(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}
