package rbac

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/platinummonkey/apistore/pkg/search"
)

// Store handles role, team and grant persistence
type Store struct {
	db      *sql.DB
	dialect search.Dialect
	now     func() time.Time
}

// NewStore creates a new role store. Queries are written with `?`
// placeholders and rebound for the dialect.
func NewStore(db *sql.DB, dialect search.Dialect) *Store {
	return &Store{
		db:      db,
		dialect: dialect,
		now:     time.Now,
	}
}

func (s *Store) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.dialect.Rebind(query), args...)
}

// CreateRole creates a new role
func (s *Store) CreateRole(ctx context.Context, role *Role) error {
	if role.Name == "" {
		return fmt.Errorf("role name is required")
	}
	if role.DisplayName == "" {
		role.DisplayName = role.Name
	}

	now := s.now().UTC()
	_, err := s.exec(ctx, `
		INSERT INTO roles (name, display_name, description, created_at)
		VALUES (?, ?, ?, ?)`,
		role.Name, role.DisplayName, role.Description, now)
	if err != nil {
		return fmt.Errorf("failed to create role: %w", err)
	}

	role.CreatedAt = now
	return nil
}

// GetRole retrieves a role by name
func (s *Store) GetRole(ctx context.Context, name string) (*Role, error) {
	var role Role
	var description sql.NullString

	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(`
		SELECT name, display_name, description, created_at
		FROM roles
		WHERE name = ?`), name).Scan(&role.Name, &role.DisplayName, &description, &role.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("role not found: %s", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	role.Description = description.String
	return &role, nil
}

// DeleteRole deletes a role and every grant of it
func (s *Store) DeleteRole(ctx context.Context, name string) error {
	for _, query := range []string{
		"DELETE FROM user_roles WHERE role_name = ?",
		"DELETE FROM team_roles WHERE role_name = ?",
		"DELETE FROM roles WHERE name = ?",
	} {
		if _, err := s.exec(ctx, query, name); err != nil {
			return fmt.Errorf("failed to delete role: %w", err)
		}
	}
	return nil
}

// GrantUserRole grants a role to a user, replacing an earlier grant of the same role
func (s *Store) GrantUserRole(ctx context.Context, identity, roleName string, expiresAt *time.Time) error {
	if identity == "" || roleName == "" {
		return fmt.Errorf("identity and role name are required")
	}

	_, err := s.exec(ctx, `
		INSERT INTO user_roles (identity, role_name, granted_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (identity, role_name) DO UPDATE SET
			granted_at = excluded.granted_at,
			expires_at = excluded.expires_at`,
		identity, roleName, s.now().UTC(), utcTime(expiresAt))
	if err != nil {
		return fmt.Errorf("failed to grant role to user: %w", err)
	}
	return nil
}

// RevokeUserRole revokes a role from a user
func (s *Store) RevokeUserRole(ctx context.Context, identity, roleName string) error {
	_, err := s.exec(ctx, "DELETE FROM user_roles WHERE identity = ? AND role_name = ?", identity, roleName)
	if err != nil {
		return fmt.Errorf("failed to revoke role from user: %w", err)
	}
	return nil
}

// CreateTeam creates a new team
func (s *Store) CreateTeam(ctx context.Context, team *Team) error {
	if team.Name == "" {
		return fmt.Errorf("team name is required")
	}
	if team.DisplayName == "" {
		team.DisplayName = team.Name
	}

	now := s.now().UTC()
	_, err := s.exec(ctx, `
		INSERT INTO teams (name, display_name, description, created_at)
		VALUES (?, ?, ?, ?)`,
		team.Name, team.DisplayName, team.Description, now)
	if err != nil {
		return fmt.Errorf("failed to create team: %w", err)
	}

	team.CreatedAt = now
	return nil
}

// AddTeamMember adds a user to a team
func (s *Store) AddTeamMember(ctx context.Context, teamName, identity string) error {
	_, err := s.exec(ctx, `
		INSERT INTO team_members (team_name, identity, added_at)
		VALUES (?, ?, ?)
		ON CONFLICT (team_name, identity) DO NOTHING`,
		teamName, identity, s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to add team member: %w", err)
	}
	return nil
}

// RemoveTeamMember removes a user from a team
func (s *Store) RemoveTeamMember(ctx context.Context, teamName, identity string) error {
	_, err := s.exec(ctx, "DELETE FROM team_members WHERE team_name = ? AND identity = ?", teamName, identity)
	if err != nil {
		return fmt.Errorf("failed to remove team member: %w", err)
	}
	return nil
}

// GrantTeamRole grants a role to every member of a team
func (s *Store) GrantTeamRole(ctx context.Context, teamName, roleName string, expiresAt *time.Time) error {
	_, err := s.exec(ctx, `
		INSERT INTO team_roles (team_name, role_name, granted_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (team_name, role_name) DO UPDATE SET
			granted_at = excluded.granted_at,
			expires_at = excluded.expires_at`,
		teamName, roleName, s.now().UTC(), utcTime(expiresAt))
	if err != nil {
		return fmt.Errorf("failed to grant role to team: %w", err)
	}
	return nil
}

// GetUserGrants returns the roles granted directly to a user, including expired grants
func (s *Store) GetUserGrants(ctx context.Context, identity string) ([]Grant, error) {
	return s.queryGrants(ctx, `
		SELECT identity, role_name, granted_at, expires_at
		FROM user_roles
		WHERE identity = ?
		ORDER BY role_name`, identity)
}

// GetTeamGrants returns the roles a user holds through team membership,
// including expired grants. Subject is the team name.
func (s *Store) GetTeamGrants(ctx context.Context, identity string) ([]Grant, error) {
	return s.queryGrants(ctx, `
		SELECT tr.team_name, tr.role_name, tr.granted_at, tr.expires_at
		FROM team_roles tr
		JOIN team_members tm ON tr.team_name = tm.team_name
		WHERE tm.identity = ?
		ORDER BY tr.role_name`, identity)
}

func (s *Store) queryGrants(ctx context.Context, query string, identity string) ([]Grant, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(query), identity)
	if err != nil {
		return nil, fmt.Errorf("failed to query grants: %w", err)
	}
	defer rows.Close()

	var grants []Grant
	for rows.Next() {
		var g Grant
		var expiresAt sql.NullTime
		if err := rows.Scan(&g.Subject, &g.RoleName, &g.GrantedAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		if expiresAt.Valid {
			t := expiresAt.Time
			g.ExpiresAt = &t
		}
		grants = append(grants, g)
	}

	return grants, rows.Err()
}

// ResolveRoles returns the names of the roles an identity holds directly or
// through its teams. Expired grants are skipped; the result is sorted and
// free of duplicates.
func (s *Store) ResolveRoles(ctx context.Context, identity string) ([]string, error) {
	direct, err := s.GetUserGrants(ctx, identity)
	if err != nil {
		return nil, err
	}
	inherited, err := s.GetTeamGrants(ctx, identity)
	if err != nil {
		return nil, err
	}

	now := s.now()
	seen := make(map[string]bool)
	roles := make([]string, 0, len(direct)+len(inherited))
	for _, g := range append(direct, inherited...) {
		if !g.Active(now) || seen[g.RoleName] {
			continue
		}
		seen[g.RoleName] = true
		roles = append(roles, g.RoleName)
	}

	sort.Strings(roles)
	return roles, nil
}

func utcTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}
