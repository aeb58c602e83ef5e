package models

import "github.com/google/uuid"

type Role string

const (
	AdminRole Role = "admin"
	UserRole  Role = "user"
)

// Caller is the authenticated principal behind a gateway request, taken from JWT claims.
type Caller struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
	Role   Role      `json:"role"`
}

func (c *Caller) CanAccess(run *Run) bool {
	if c == nil || run == nil {
		return false
	}
	return c.Role == AdminRole || c.UserID == run.UserID
}
