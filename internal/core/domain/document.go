package domain

import "time"

type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
)

func (s DocumentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether a processing attempt has ended in s.
func (s DocumentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type Document struct {
	ID          string         `json:"id"`
	OwnerID     string         `json:"owner_id"`
	ExternalID  string         `json:"external_id"`
	Filename    string         `json:"filename"`
	SizeBytes   int64          `json:"size_bytes"`
	MimeType    string         `json:"mime_type"`
	SummaryText *string        `json:"summary_text"`
	KeyPoints   []string       `json:"key_points"`
	Keywords    []string       `json:"keywords"`
	Status      DocumentStatus `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Summary is the structured output of the summarization service.
type Summary struct {
	Text      string   `json:"summary_text"`
	KeyPoints []string `json:"key_points"`
	Keywords  []string `json:"keywords"`
}

// SummaryView is the read model served to clients polling for a result.
type SummaryView struct {
	SummaryText *string        `json:"summary_text"`
	KeyPoints   []string       `json:"key_points"`
	Keywords    []string       `json:"keywords"`
	Status      DocumentStatus `json:"status"`
}

func (d *Document) SummaryView() SummaryView {
	return SummaryView{
		SummaryText: d.SummaryText,
		KeyPoints:   d.KeyPoints,
		Keywords:    d.Keywords,
		Status:      d.Status,
	}
}

type ListFilter struct {
	Page   int
	Limit  int
	Search string
}

type DocumentPage struct {
	Documents []Document `json:"documents"`
	Total     int        `json:"total"`
	Page      int        `json:"page"`
	Pages     int        `json:"pages"`
}
