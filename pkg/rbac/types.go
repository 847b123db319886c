package rbac

import (
	"time"
)

// Built-in role names seeded by Migrate
const (
	RoleAdmin      = "admin"
	RolePublisher  = "publisher"
	RoleCreator    = "creator"
	RoleSubscriber = "subscriber"
)

// Role is a named role that can be granted to users and teams. Role names
// are matched against API visible roles and group permissions.
type Role struct {
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Grant gives a role to a user or team, optionally until ExpiresAt
type Grant struct {
	Subject   string     `json:"subject"` // user identity or team name
	RoleName  string     `json:"role_name"`
	GrantedAt time.Time  `json:"granted_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Active reports whether the grant is in effect at t
func (g Grant) Active(t time.Time) bool {
	return g.ExpiresAt == nil || g.ExpiresAt.After(t)
}

// Team groups users that share role grants
type Team struct {
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
