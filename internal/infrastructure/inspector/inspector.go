package inspector

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/doc-summarizer/internal/core/domain"
)

// Inspector checks that an upload's bytes match its declared type before the
// file is sent to the document store.
type Inspector struct{}

func New() *Inspector {
	return &Inspector{}
}

func (i *Inspector) Inspect(_ context.Context, mimeType string, data []byte) error {
	if len(data) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "inspect upload", fmt.Errorf("empty file"))
	}
	var err error
	switch domain.NormalizeMimeType(mimeType) {
	case domain.MimePDF:
		err = inspectPDF(data)
	case domain.MimeDOCX:
		err = inspectDOCX(data)
	case domain.MimeJPEG, domain.MimePNG:
		err = inspectImage(domain.NormalizeMimeType(mimeType), data)
	default:
		err = fmt.Errorf("unsupported file type %q", mimeType)
	}
	if err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "inspect upload", err)
	}
	return nil
}

func inspectPDF(data []byte) (err error) {
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return fmt.Errorf("missing pdf header")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("malformed pdf: %w", err)
	}
	if reader.NumPage() == 0 {
		return fmt.Errorf("pdf has no pages")
	}
	return nil
}

func inspectDOCX(data []byte) error {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("malformed docx: %w", err)
	}
	for _, f := range zr.File {
		if strings.ReplaceAll(f.Name, "\\", "/") == "word/document.xml" {
			return nil
		}
	}
	return fmt.Errorf("docx is missing word/document.xml")
}

func inspectImage(mimeType string, data []byte) error {
	detected := domain.NormalizeMimeType(http.DetectContentType(data))
	if detected != mimeType {
		return fmt.Errorf("content looks like %s, declared %s", detected, mimeType)
	}
	return nil
}
