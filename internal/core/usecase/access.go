package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/doc-summarizer/internal/core/domain"
	"github.com/kirillkom/doc-summarizer/internal/core/ports"
)

// AccessUseCase evaluates and administers time-bounded access grants.
type AccessUseCase struct {
	grants ports.AccessGrantRepository
	now    func() time.Time
	logger *slog.Logger
}

func NewAccessUseCase(grants ports.AccessGrantRepository) *AccessUseCase {
	return &AccessUseCase{
		grants: grants,
		now:    func() time.Time { return time.Now().UTC() },
		logger: slog.Default(),
	}
}

// WithClock replaces the time source used for evaluation.
func (uc *AccessUseCase) WithClock(now func() time.Time) *AccessUseCase {
	if now != nil {
		uc.now = now
	}
	return uc
}

func (uc *AccessUseCase) HasActiveAccess(ctx context.Context, userID string) (bool, error) {
	status, err := uc.CheckAccess(ctx, userID)
	if err != nil {
		return false, err
	}
	return status.HasAccess, nil
}

// CheckAccess reports whether any active grant covers now and, if so, the
// latest end among the covering grants.
func (uc *AccessUseCase) CheckAccess(ctx context.Context, userID string) (domain.AccessStatus, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.AccessStatus{}, nil
	}
	now := uc.now()
	grants, err := uc.grants.ListCovering(ctx, userID, now)
	if err != nil {
		return domain.AccessStatus{}, fmt.Errorf("list covering grants: %w", err)
	}

	var status domain.AccessStatus
	for _, grant := range grants {
		if !grant.Covers(now) {
			continue
		}
		if status.ExpiresAt == nil || grant.EndsAt.After(*status.ExpiresAt) {
			endsAt := grant.EndsAt
			status.ExpiresAt = &endsAt
		}
		status.HasAccess = true
	}
	return status, nil
}

func (uc *AccessUseCase) StatusFor(ctx context.Context, principal domain.Principal) (domain.AccessStatus, error) {
	if principal.IsAdmin() {
		return domain.AccessStatus{HasAccess: true}, nil
	}
	return uc.CheckAccess(ctx, principal.UserID)
}

// Authorize returns domain.ErrAccessExpired when a non-admin caller has no
// covering grant.
func (uc *AccessUseCase) Authorize(ctx context.Context, principal domain.Principal) error {
	if strings.TrimSpace(principal.UserID) == "" {
		return domain.WrapError(domain.ErrUnauthorized, "authorize", errors.New("missing principal"))
	}
	if principal.IsAdmin() {
		return nil
	}
	ok, err := uc.HasActiveAccess(ctx, principal.UserID)
	if err != nil {
		return err
	}
	if !ok {
		uc.logger.Info("access_denied", "user_id", principal.UserID)
		return domain.WrapError(domain.ErrAccessExpired, "authorize", fmt.Errorf("user %s", principal.UserID))
	}
	return nil
}

func (uc *AccessUseCase) Grant(ctx context.Context, admin domain.Principal, userID string, startsAt, endsAt time.Time) (*domain.AccessGrant, error) {
	if err := requireAdmin(admin); err != nil {
		return nil, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "grant access", errors.New("user id is required"))
	}
	if err := validateWindow(startsAt, endsAt); err != nil {
		return nil, err
	}

	grant := &domain.AccessGrant{
		ID:        uuid.NewString(),
		UserID:    userID,
		StartsAt:  startsAt.UTC(),
		EndsAt:    endsAt.UTC(),
		Active:    true,
		CreatedBy: admin.UserID,
		CreatedAt: uc.now(),
	}
	if err := uc.grants.Create(ctx, grant); err != nil {
		return nil, fmt.Errorf("create access grant: %w", err)
	}
	uc.logger.Info("access_granted",
		"grant_id", grant.ID,
		"user_id", userID,
		"starts_at", grant.StartsAt,
		"ends_at", grant.EndsAt,
		"created_by", admin.UserID,
	)
	return grant, nil
}

func (uc *AccessUseCase) ListGrants(ctx context.Context, admin domain.Principal) ([]domain.AccessGrant, error) {
	if err := requireAdmin(admin); err != nil {
		return nil, err
	}
	grants, err := uc.grants.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list access grants: %w", err)
	}
	return grants, nil
}

func (uc *AccessUseCase) UpdateGrant(ctx context.Context, admin domain.Principal, grantID string, update domain.GrantUpdate) (*domain.AccessGrant, error) {
	if err := requireAdmin(admin); err != nil {
		return nil, err
	}
	grant, err := uc.grants.GetByID(ctx, grantID)
	if err != nil {
		return nil, err
	}
	if update.StartsAt != nil {
		grant.StartsAt = update.StartsAt.UTC()
	}
	if update.EndsAt != nil {
		grant.EndsAt = update.EndsAt.UTC()
	}
	if update.Active != nil {
		grant.Active = *update.Active
	}
	if err := validateWindow(grant.StartsAt, grant.EndsAt); err != nil {
		return nil, err
	}
	if err := uc.grants.Update(ctx, grant); err != nil {
		return nil, fmt.Errorf("update access grant: %w", err)
	}
	uc.logger.Info("access_grant_updated", "grant_id", grant.ID, "active", grant.Active, "updated_by", admin.UserID)
	return grant, nil
}

func (uc *AccessUseCase) RevokeGrant(ctx context.Context, admin domain.Principal, grantID string) error {
	if err := requireAdmin(admin); err != nil {
		return err
	}
	if err := uc.grants.Delete(ctx, grantID); err != nil {
		return err
	}
	uc.logger.Info("access_grant_revoked", "grant_id", grantID, "revoked_by", admin.UserID)
	return nil
}

func requireAdmin(principal domain.Principal) error {
	if !principal.IsAdmin() {
		return domain.WrapError(domain.ErrForbidden, "manage access grants", errors.New("administrator role required"))
	}
	return nil
}

func validateWindow(startsAt, endsAt time.Time) error {
	if startsAt.IsZero() || endsAt.IsZero() {
		return domain.WrapError(domain.ErrInvalidInput, "validate grant window", errors.New("start and end dates are required"))
	}
	if !endsAt.After(startsAt) {
		return domain.WrapError(domain.ErrInvalidInput, "validate grant window", errors.New("end date must be after start date"))
	}
	return nil
}
