package domain

import "time"

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Principal is the authenticated caller of a core operation.
type Principal struct {
	UserID string
	Role   Role
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

type AccessGrant struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	StartsAt  time.Time `json:"start_date"`
	EndsAt    time.Time `json:"end_date"`
	Active    bool      `json:"is_active"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// Covers reports whether the grant authorizes access at t. Both bounds are inclusive.
func (g AccessGrant) Covers(t time.Time) bool {
	return g.Active && !t.Before(g.StartsAt) && !t.After(g.EndsAt)
}

type AccessStatus struct {
	HasAccess bool       `json:"has_access"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type GrantUpdate struct {
	StartsAt *time.Time
	EndsAt   *time.Time
	Active   *bool
}
