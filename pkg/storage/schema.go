package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/apistore/pkg/search"
)

// API type ids seeded into AM_API_TYPES
const (
	APITypeIDStandard  = 1
	APITypeIDComposite = 2
)

// catalogTables are shared by both dialects
var catalogTables = []string{
	`CREATE TABLE IF NOT EXISTS AM_API_TYPES (
		TYPE_ID INTEGER PRIMARY KEY,
		TYPE_NAME VARCHAR(255) NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS AM_API (
		UUID VARCHAR(255) PRIMARY KEY,
		PROVIDER VARCHAR(255) NOT NULL,
		NAME VARCHAR(255) NOT NULL,
		CONTEXT VARCHAR(255) NOT NULL,
		VERSION VARCHAR(30) NOT NULL,
		DESCRIPTION VARCHAR(1024),
		VISIBILITY VARCHAR(30) NOT NULL DEFAULT 'PUBLIC',
		API_TYPE_ID INTEGER NOT NULL REFERENCES AM_API_TYPES(TYPE_ID),
		CURRENT_LC_STATUS VARCHAR(255) NOT NULL,
		LIFECYCLE_INSTANCE_ID VARCHAR(255),
		LC_WORKFLOW_STATUS VARCHAR(255),
		UNIQUE (PROVIDER, NAME, VERSION)
	)`,
	`CREATE TABLE IF NOT EXISTS AM_API_GROUP_PERMISSION (
		API_ID VARCHAR(255) NOT NULL REFERENCES AM_API(UUID) ON DELETE CASCADE,
		GROUP_ID VARCHAR(255) NOT NULL,
		PERMISSION INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (API_ID, GROUP_ID)
	)`,
	`CREATE TABLE IF NOT EXISTS AM_API_VISIBLE_ROLES (
		API_ID VARCHAR(255) NOT NULL REFERENCES AM_API(UUID) ON DELETE CASCADE,
		ROLE VARCHAR(255) NOT NULL,
		PRIMARY KEY (API_ID, ROLE)
	)`,
	`CREATE TABLE IF NOT EXISTS AM_API_TAG_MAPPING (
		API_ID VARCHAR(255) NOT NULL REFERENCES AM_API(UUID) ON DELETE CASCADE,
		TAG_ID INTEGER NOT NULL REFERENCES AM_TAGS(TAG_ID) ON DELETE CASCADE,
		PRIMARY KEY (API_ID, TAG_ID)
	)`,
	`CREATE TABLE IF NOT EXISTS AM_API_OPERATION_MAPPING (
		API_ID VARCHAR(255) NOT NULL REFERENCES AM_API(UUID) ON DELETE CASCADE,
		HTTP_METHOD VARCHAR(32) NOT NULL,
		URL_PATTERN VARCHAR(512) NOT NULL,
		PRIMARY KEY (API_ID, HTTP_METHOD, URL_PATTERN)
	)`,
	`CREATE INDEX IF NOT EXISTS IDX_AM_API_VISIBILITY ON AM_API (VISIBILITY, CURRENT_LC_STATUS)`,
	`CREATE INDEX IF NOT EXISTS IDX_AM_API_VISIBLE_ROLES_ROLE ON AM_API_VISIBLE_ROLES (ROLE)`,
	`CREATE INDEX IF NOT EXISTS IDX_AM_API_GROUP_PERMISSION_GROUP ON AM_API_GROUP_PERMISSION (GROUP_ID)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS AM_TAGS (
		TAG_ID INTEGER PRIMARY KEY AUTOINCREMENT,
		NAME VARCHAR(255) NOT NULL UNIQUE
	)`,
	// API_ID is stored but not tokenized so ids never match search terms
	`CREATE VIRTUAL TABLE IF NOT EXISTS AM_API_FTS USING fts4(API_ID, CONTENT, notindexed=API_ID)`,
	`INSERT OR IGNORE INTO AM_API_TYPES (TYPE_ID, TYPE_NAME) VALUES (1, 'STANDARD'), (2, 'COMPOSITE')`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS AM_TAGS (
		TAG_ID SERIAL PRIMARY KEY,
		NAME VARCHAR(255) NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS AM_API_FTS (
		API_ID VARCHAR(255) PRIMARY KEY REFERENCES AM_API(UUID) ON DELETE CASCADE,
		SEARCH_VECTOR TSVECTOR NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS IDX_AM_API_FTS_VECTOR ON AM_API_FTS USING GIN (SEARCH_VECTOR)`,
	`INSERT INTO AM_API_TYPES (TYPE_ID, TYPE_NAME) VALUES (1, 'STANDARD'), (2, 'COMPOSITE') ON CONFLICT DO NOTHING`,
}

// Schema returns the catalog DDL for a dialect, in execution order
func Schema(d search.Dialect) ([]string, error) {
	var specific []string
	switch d.(type) {
	case search.SQLite:
		specific = sqliteSchema
	case search.Postgres:
		specific = postgresSchema
	default:
		return nil, fmt.Errorf("no catalog schema for dialect %T", d)
	}

	// AM_TAGS is referenced by AM_API_TAG_MAPPING; create it first
	stmts := make([]string, 0, len(catalogTables)+len(specific))
	stmts = append(stmts, specific[0])
	stmts = append(stmts, catalogTables...)
	stmts = append(stmts, specific[1:]...)
	return stmts, nil
}

// ApplySchema creates the catalog tables if they do not exist
func ApplySchema(ctx context.Context, db *sql.DB, d search.Dialect) error {
	stmts, err := Schema(d)
	if err != nil {
		return err
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	return nil
}
