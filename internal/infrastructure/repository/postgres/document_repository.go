package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/doc-summarizer/internal/core/domain"
)

const documentColumns = `id, owner_id, external_id, filename, size_bytes, mime_type, summary_text, key_points, keywords, status, created_at, updated_at`

type DocumentRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	keyPoints, err := marshalNullableList(doc.KeyPoints)
	if err != nil {
		return fmt.Errorf("marshal key points: %w", err)
	}
	keywords, err := marshalNullableList(doc.Keywords)
	if err != nil {
		return fmt.Errorf("marshal keywords: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO documents (`+documentColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`,
		doc.ID, doc.OwnerID, doc.ExternalID, doc.Filename, doc.SizeBytes, doc.MimeType,
		doc.SummaryText, keyPoints, keywords, string(doc.Status), doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE id = $1
`, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return &doc, nil
}

// ListByOwner returns one page of the owner's documents, newest first, and
// the total number of matches.
func (r *DocumentRepository) ListByOwner(ctx context.Context, ownerID string, filter domain.ListFilter) ([]domain.Document, int, error) {
	pattern := "%" + escapeLike(strings.TrimSpace(filter.Search)) + "%"

	var total int
	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*)
FROM documents
WHERE owner_id = $1 AND filename ILIKE $2
`, ownerID, pattern).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count documents: %w", err)
	}

	limit := max(filter.Limit, 1)
	offset := (max(filter.Page, 1) - 1) * limit
	rows, err := r.db.QueryContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE owner_id = $1 AND filename ILIKE $2
ORDER BY created_at DESC
LIMIT $3 OFFSET $4
`, ownerID, pattern, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Document, 0, limit)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate documents: %w", err)
	}
	return out, total, nil
}

func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, updated_at = $3
WHERE id = $1
`, id, string(status), r.now())
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	return requireAffected(result, "update document status", id)
}

// SaveSummary writes the summary and the completed status in one statement,
// so readers never see a completed document without its summary.
func (r *DocumentRepository) SaveSummary(ctx context.Context, id string, summary domain.Summary) error {
	keyPoints, err := marshalList(summary.KeyPoints)
	if err != nil {
		return fmt.Errorf("marshal key points: %w", err)
	}
	keywords, err := marshalList(summary.Keywords)
	if err != nil {
		return fmt.Errorf("marshal keywords: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET summary_text = $2, key_points = $3, keywords = $4, status = $5, updated_at = $6
WHERE id = $1
`, id, summary.Text, keyPoints, keywords, string(domain.StatusCompleted), r.now())
	if err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	return requireAffected(result, "save summary", id)
}

func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return requireAffected(result, "delete document", id)
}

func requireAffected(result sql.Result, operation, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, operation, fmt.Errorf("id=%s", id))
	}
	return nil
}

func scanDocument(row rowScanner) (domain.Document, error) {
	var doc domain.Document
	var summary sql.NullString
	var keyPointsRaw, keywordsRaw []byte
	var status string

	err := row.Scan(
		&doc.ID, &doc.OwnerID, &doc.ExternalID, &doc.Filename, &doc.SizeBytes, &doc.MimeType,
		&summary, &keyPointsRaw, &keywordsRaw, &status, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return domain.Document{}, err
	}
	if summary.Valid {
		doc.SummaryText = &summary.String
	}
	if doc.KeyPoints, err = unmarshalList(keyPointsRaw); err != nil {
		return domain.Document{}, fmt.Errorf("unmarshal key points: %w", err)
	}
	if doc.Keywords, err = unmarshalList(keywordsRaw); err != nil {
		return domain.Document{}, fmt.Errorf("unmarshal keywords: %w", err)
	}
	doc.Status = domain.DocumentStatus(status)
	return doc, nil
}

func marshalList(values []string) ([]byte, error) {
	if values == nil {
		values = []string{}
	}
	return json.Marshal(values)
}

// marshalNullableList keeps a nil list as SQL NULL.
func marshalNullableList(values []string) (any, error) {
	if values == nil {
		return nil, nil
	}
	return marshalList(values)
}

// unmarshalList maps SQL NULL to a nil list; a stored [] stays empty.
func unmarshalList(raw []byte) ([]string, error) {
	if raw == nil {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
