package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/doc-summarizer/internal/core/domain"
)

const grantColumns = `id, user_id, starts_at, ends_at, is_active, created_by, created_at`

type AccessGrantRepository struct {
	db *sql.DB
}

func NewAccessGrantRepository(db *sql.DB) *AccessGrantRepository {
	return &AccessGrantRepository{db: db}
}

func (r *AccessGrantRepository) Create(ctx context.Context, grant *domain.AccessGrant) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO access_grants (`+grantColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`, grant.ID, grant.UserID, grant.StartsAt, grant.EndsAt, grant.Active, grant.CreatedBy, grant.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert access grant: %w", err)
	}
	return nil
}

func (r *AccessGrantRepository) GetByID(ctx context.Context, id string) (*domain.AccessGrant, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+grantColumns+`
FROM access_grants
WHERE id = $1
`, id)

	grant, err := scanGrant(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrGrantNotFound, "get access grant", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan access grant: %w", err)
	}
	return &grant, nil
}

func (r *AccessGrantRepository) List(ctx context.Context) ([]domain.AccessGrant, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+grantColumns+`
FROM access_grants
ORDER BY created_at DESC
`)
	if err != nil {
		return nil, fmt.Errorf("list access grants: %w", err)
	}
	return collectGrants(rows)
}

// ListCovering returns the active grants of userID whose inclusive window contains at.
func (r *AccessGrantRepository) ListCovering(ctx context.Context, userID string, at time.Time) ([]domain.AccessGrant, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+grantColumns+`
FROM access_grants
WHERE user_id = $1 AND is_active AND starts_at <= $2 AND ends_at >= $2
ORDER BY ends_at DESC
`, userID, at)
	if err != nil {
		return nil, fmt.Errorf("list covering grants: %w", err)
	}
	return collectGrants(rows)
}

func (r *AccessGrantRepository) Update(ctx context.Context, grant *domain.AccessGrant) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE access_grants
SET starts_at = $2, ends_at = $3, is_active = $4
WHERE id = $1
`, grant.ID, grant.StartsAt, grant.EndsAt, grant.Active)
	if err != nil {
		return fmt.Errorf("update access grant: %w", err)
	}
	return requireGrantAffected(result, "update access grant", grant.ID)
}

func (r *AccessGrantRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM access_grants WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete access grant: %w", err)
	}
	return requireGrantAffected(result, "delete access grant", id)
}

func requireGrantAffected(result sql.Result, operation, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrGrantNotFound, operation, fmt.Errorf("id=%s", id))
	}
	return nil
}

func collectGrants(rows *sql.Rows) ([]domain.AccessGrant, error) {
	defer rows.Close()

	out := make([]domain.AccessGrant, 0)
	for rows.Next() {
		grant, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan access grant: %w", err)
		}
		out = append(out, grant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate access grants: %w", err)
	}
	return out, nil
}

func scanGrant(row rowScanner) (domain.AccessGrant, error) {
	var grant domain.AccessGrant
	err := row.Scan(
		&grant.ID,
		&grant.UserID,
		&grant.StartsAt,
		&grant.EndsAt,
		&grant.Active,
		&grant.CreatedBy,
		&grant.CreatedAt,
	)
	return grant, err
}
