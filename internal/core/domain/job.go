package domain

import "time"

// JobKindProcessDocument is the only job kind the worker understands.
const JobKindProcessDocument = "process-document"

type ProcessingJob struct {
	DocumentID string    `json:"documentId"`
	ExternalID string    `json:"externalDocumentId"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}
