package domain

import "strings"

// MaxUploadBytes caps a single uploaded file.
const MaxUploadBytes int64 = 10 << 20

const (
	MimePDF  = "application/pdf"
	MimeJPEG = "image/jpeg"
	MimePNG  = "image/png"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

var allowedUploadTypes = map[string]struct{}{
	MimePDF:  {},
	MimeJPEG: {},
	MimePNG:  {},
	MimeDOCX: {},
}

func IsAllowedUploadType(mimeType string) bool {
	_, ok := allowedUploadTypes[mimeType]
	return ok
}

// NormalizeMimeType drops parameters and case from a Content-Type value.
func NormalizeMimeType(mimeType string) string {
	return strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
}
