package queue

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/doc-summarizer/internal/core/domain"
)

const messageVersion = 1

// Message is the wire payload of a processing job.
type Message struct {
	Kind       string `json:"kind"`
	DocumentID string `json:"documentId"`
	ExternalID string `json:"externalDocumentId"`
	EnqueuedAt string `json:"enqueuedAt"`
	Version    int    `json:"version"`
}

func EncodeJob(job domain.ProcessingJob) ([]byte, error) {
	enqueuedAt := job.EnqueuedAt
	if enqueuedAt.IsZero() {
		enqueuedAt = time.Now().UTC()
	}
	return json.Marshal(Message{
		Kind:       domain.JobKindProcessDocument,
		DocumentID: job.DocumentID,
		ExternalID: job.ExternalID,
		EnqueuedAt: enqueuedAt.UTC().Format(time.RFC3339Nano),
		Version:    messageVersion,
	})
}

// DecodeJob parses a payload. Unknown kinds and payloads without a document
// id are rejected; redelivering them cannot help.
func DecodeJob(payload []byte) (domain.ProcessingJob, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return domain.ProcessingJob{}, domain.WrapError(domain.ErrPermanent, "decode job", err)
	}
	if msg.Kind != "" && msg.Kind != domain.JobKindProcessDocument {
		return domain.ProcessingJob{}, domain.WrapError(domain.ErrPermanent, "decode job", fmt.Errorf("unknown job kind %q", msg.Kind))
	}
	if strings.TrimSpace(msg.DocumentID) == "" {
		return domain.ProcessingJob{}, domain.WrapError(domain.ErrPermanent, "decode job", fmt.Errorf("missing document id"))
	}

	job := domain.ProcessingJob{DocumentID: msg.DocumentID, ExternalID: msg.ExternalID}
	if msg.EnqueuedAt != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, msg.EnqueuedAt); err == nil {
			job.EnqueuedAt = parsed
		}
	}
	return job, nil
}

// DeduplicationID identifies one enqueue of a job. A resubmission gets a new id.
func DeduplicationID(job domain.ProcessingJob) string {
	return fmt.Sprintf("%s:%d", job.DocumentID, job.EnqueuedAt.UnixNano())
}
