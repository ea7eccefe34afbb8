package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrGrantNotFound    = errors.New("access grant not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")
	ErrAccessExpired    = errors.New("access period has expired")
	ErrTemporary        = errors.New("temporary failure")
	// ErrPermanent marks a job failure that redelivery cannot fix.
	ErrPermanent = errors.New("permanent failure")
)

// External document store failures.
var (
	ErrUpload     = errors.New("document upload failed")
	ErrNoVersions = errors.New("document has no versions yet")
	ErrNoPages    = errors.New("document version has no pages yet")
	ErrOCRTimeout = errors.New("ocr text not available within attempt budget")
	ErrDownload   = errors.New("document download failed")
	ErrDelete     = errors.New("document delete failed")
)

var (
	ErrSummarization   = errors.New("summarization failed")
	ErrEmptyExtraction = errors.New("no text extracted from document")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// IsNotReady reports whether err only means the provider has not produced OCR output yet.
func IsNotReady(err error) bool {
	return errors.Is(err, ErrNoVersions) || errors.Is(err, ErrNoPages)
}
