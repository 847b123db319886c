package rbac

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/apistore/pkg/search"
)

// Migration is one versioned step of the role schema
type Migration struct {
	Version     int
	Description string
	SQL         []string
}

// GetMigrations returns the role schema migrations in order. The DDL is
// portable between PostgreSQL and SQLite.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create roles table",
			SQL: []string{
				`CREATE TABLE IF NOT EXISTS roles (
					name VARCHAR(255) PRIMARY KEY,
					display_name VARCHAR(255) NOT NULL,
					description TEXT,
					created_at TIMESTAMP NOT NULL
				)`,
			},
		},
		{
			Version:     2,
			Description: "Create user_roles table",
			SQL: []string{
				`CREATE TABLE IF NOT EXISTS user_roles (
					identity VARCHAR(255) NOT NULL,
					role_name VARCHAR(255) NOT NULL REFERENCES roles(name) ON DELETE CASCADE,
					granted_at TIMESTAMP NOT NULL,
					expires_at TIMESTAMP,
					PRIMARY KEY (identity, role_name)
				)`,
				`CREATE INDEX IF NOT EXISTS idx_user_roles_identity ON user_roles(identity)`,
			},
		},
		{
			Version:     3,
			Description: "Create teams tables",
			SQL: []string{
				`CREATE TABLE IF NOT EXISTS teams (
					name VARCHAR(255) PRIMARY KEY,
					display_name VARCHAR(255) NOT NULL,
					description TEXT,
					created_at TIMESTAMP NOT NULL
				)`,
				`CREATE TABLE IF NOT EXISTS team_members (
					team_name VARCHAR(255) NOT NULL REFERENCES teams(name) ON DELETE CASCADE,
					identity VARCHAR(255) NOT NULL,
					added_at TIMESTAMP NOT NULL,
					PRIMARY KEY (team_name, identity)
				)`,
				`CREATE INDEX IF NOT EXISTS idx_team_members_identity ON team_members(identity)`,
				`CREATE TABLE IF NOT EXISTS team_roles (
					team_name VARCHAR(255) NOT NULL REFERENCES teams(name) ON DELETE CASCADE,
					role_name VARCHAR(255) NOT NULL REFERENCES roles(name) ON DELETE CASCADE,
					granted_at TIMESTAMP NOT NULL,
					expires_at TIMESTAMP,
					PRIMARY KEY (team_name, role_name)
				)`,
			},
		},
		{
			Version:     4,
			Description: "Seed built-in roles",
			SQL: []string{
				`INSERT INTO roles (name, display_name, description, created_at) VALUES
					('admin', 'Administrator', 'Full access to the store', CURRENT_TIMESTAMP),
					('publisher', 'Publisher', 'Publishes and retires APIs', CURRENT_TIMESTAMP),
					('creator', 'Creator', 'Designs and creates APIs', CURRENT_TIMESTAMP),
					('subscriber', 'Subscriber', 'Discovers and subscribes to APIs', CURRENT_TIMESTAMP)
				ON CONFLICT (name) DO NOTHING`,
			},
		},
	}
}

// Migrate applies every migration. Migrations are idempotent, so running
// them against an up-to-date schema is a no-op.
func Migrate(ctx context.Context, db *sql.DB, d search.Dialect) error {
	if d == nil {
		return fmt.Errorf("dialect is required")
	}

	for _, m := range GetMigrations() {
		for _, stmt := range m.SQL {
			if _, err := db.ExecContext(ctx, d.Rebind(stmt)); err != nil {
				return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, err)
			}
		}
	}
	return nil
}
