package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/apistore/pkg/search"
)

// Operation is one resource of an API, searchable through the subcontext key
type Operation struct {
	Method     string
	URLPattern string
}

// APIRecord is everything the catalog stores about one API
type APIRecord struct {
	search.APISummary

	Type       search.APIType
	Visibility string // PUBLIC or RESTRICTED

	// VisibleRoles may see a RESTRICTED API in attribute searches
	VisibleRoles []string
	// Groups are granted access for full-text searches
	Groups     []string
	Tags       []string
	Operations []Operation
}

// Validate checks the fields the catalog requires
func (r *APIRecord) Validate() error {
	switch {
	case r.ID == "":
		return fmt.Errorf("api id is required")
	case r.Provider == "" || r.Name == "" || r.Version == "":
		return fmt.Errorf("api %s: provider, name and version are required", r.ID)
	case r.Context == "":
		return fmt.Errorf("api %s: context is required", r.ID)
	case r.LifecycleStatus == "":
		return fmt.Errorf("api %s: lifecycle status is required", r.ID)
	}
	if r.Visibility != search.VisibilityPublic.String() && r.Visibility != search.VisibilityRestricted.String() {
		return fmt.Errorf("api %s: unknown visibility %q", r.ID, r.Visibility)
	}
	return r.Type.Validate()
}

// Catalog writes APIs and keeps the full-text index in step with them.
// All writes go to the primary.
type Catalog struct {
	conns *ConnectionManager
}

// NewCatalog creates a catalog writer
func NewCatalog(conns *ConnectionManager) *Catalog {
	return &Catalog{conns: conns}
}

// PutAPI inserts or replaces an API together with its tags, roles, group
// permissions, operations and index document
func (c *Catalog) PutAPI(ctx context.Context, api *APIRecord) error {
	ctx, span := storageTracer.Start(ctx, "PutAPI",
		trace.WithAttributes(
			attribute.String("api.id", api.ID),
			attribute.String("api.name", api.Name),
		),
	)
	defer span.End()

	if api.Type == "" {
		api.Type = search.APITypeStandard
	}
	if api.Visibility == "" {
		api.Visibility = search.VisibilityPublic.String()
	}
	if err := api.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid api")
		return err
	}

	err := c.withTx(ctx, func(tx *sql.Tx) error {
		if err := c.upsertAPI(ctx, tx, api); err != nil {
			return err
		}
		if err := c.clearChildren(ctx, tx, api.ID); err != nil {
			return err
		}
		if err := c.insertChildren(ctx, tx, api); err != nil {
			return err
		}
		return c.indexDocument(ctx, tx, api.ID, document(api.APISummary, api.Tags))
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to put api")
		return err
	}

	span.SetStatus(codes.Ok, "api stored")
	return nil
}

// DeleteAPI removes an API and everything attached to it
func (c *Catalog) DeleteAPI(ctx context.Context, id string) error {
	ctx, span := storageTracer.Start(ctx, "DeleteAPI",
		trace.WithAttributes(attribute.String("api.id", id)),
	)
	defer span.End()

	err := c.withTx(ctx, func(tx *sql.Tx) error {
		if err := c.clearChildren(ctx, tx, id); err != nil {
			return err
		}
		if err := c.exec(ctx, tx, "DELETE FROM AM_API_FTS WHERE API_ID = ?", id); err != nil {
			return fmt.Errorf("failed to clear index: %w", err)
		}
		if err := c.exec(ctx, tx, "DELETE FROM AM_API WHERE UUID = ?", id); err != nil {
			return fmt.Errorf("failed to delete api: %w", err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to delete api")
		return err
	}

	return nil
}

// Reindex rebuilds the full-text document of every API
func (c *Catalog) Reindex(ctx context.Context) (int, error) {
	ctx, span := storageTracer.Start(ctx, "Reindex")
	defer span.End()

	indexed := 0
	err := c.withTx(ctx, func(tx *sql.Tx) error {
		docs, err := c.loadDocuments(ctx, tx)
		if err != nil {
			return err
		}

		for _, id := range sortedKeys(docs) {
			if err := c.indexDocument(ctx, tx, id, docs[id]); err != nil {
				return err
			}
			indexed++
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to reindex")
		return 0, err
	}

	span.SetStatus(codes.Ok, fmt.Sprintf("indexed %d apis", indexed))
	return indexed, nil
}

func (c *Catalog) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.conns.Primary().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (c *Catalog) exec(ctx context.Context, tx *sql.Tx, query string, args ...interface{}) error {
	_, err := tx.ExecContext(ctx, c.conns.Dialect().Rebind(query), args...)
	return err
}

func (c *Catalog) upsertAPI(ctx context.Context, tx *sql.Tx, api *APIRecord) error {
	err := c.exec(ctx, tx, `
		INSERT INTO AM_API (UUID, PROVIDER, NAME, CONTEXT, VERSION, DESCRIPTION, VISIBILITY,
			API_TYPE_ID, CURRENT_LC_STATUS, LIFECYCLE_INSTANCE_ID, LC_WORKFLOW_STATUS)
		VALUES (?, ?, ?, ?, ?, ?, ?, (SELECT TYPE_ID FROM AM_API_TYPES WHERE TYPE_NAME = ?), ?, ?, ?)
		ON CONFLICT (UUID) DO UPDATE SET
			PROVIDER = excluded.PROVIDER,
			NAME = excluded.NAME,
			CONTEXT = excluded.CONTEXT,
			VERSION = excluded.VERSION,
			DESCRIPTION = excluded.DESCRIPTION,
			VISIBILITY = excluded.VISIBILITY,
			API_TYPE_ID = excluded.API_TYPE_ID,
			CURRENT_LC_STATUS = excluded.CURRENT_LC_STATUS,
			LIFECYCLE_INSTANCE_ID = excluded.LIFECYCLE_INSTANCE_ID,
			LC_WORKFLOW_STATUS = excluded.LC_WORKFLOW_STATUS`,
		api.ID,
		api.Provider,
		api.Name,
		api.Context,
		api.Version,
		nullString(api.Description),
		api.Visibility,
		string(api.Type),
		api.LifecycleStatus,
		nullString(api.LifecycleInstanceID),
		nullString(api.WorkflowStatus),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert api: %w", err)
	}
	return nil
}

func (c *Catalog) clearChildren(ctx context.Context, tx *sql.Tx, id string) error {
	for _, table := range []string{
		"AM_API_TAG_MAPPING",
		"AM_API_VISIBLE_ROLES",
		"AM_API_GROUP_PERMISSION",
		"AM_API_OPERATION_MAPPING",
	} {
		if err := c.exec(ctx, tx, "DELETE FROM "+table+" WHERE API_ID = ?", id); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

func (c *Catalog) insertChildren(ctx context.Context, tx *sql.Tx, api *APIRecord) error {
	for _, tag := range uniqueFolded(api.Tags) {
		if err := c.exec(ctx, tx, "INSERT INTO AM_TAGS (NAME) VALUES (?) ON CONFLICT (NAME) DO NOTHING", tag); err != nil {
			return fmt.Errorf("failed to insert tag %s: %w", tag, err)
		}
		err := c.exec(ctx, tx, `
			INSERT INTO AM_API_TAG_MAPPING (API_ID, TAG_ID)
			SELECT CAST(? AS VARCHAR(255)), TAG_ID FROM AM_TAGS WHERE NAME = ?`, api.ID, tag)
		if err != nil {
			return fmt.Errorf("failed to map tag %s: %w", tag, err)
		}
	}

	for _, role := range unique(api.VisibleRoles) {
		if err := c.exec(ctx, tx, "INSERT INTO AM_API_VISIBLE_ROLES (API_ID, ROLE) VALUES (?, ?)", api.ID, role); err != nil {
			return fmt.Errorf("failed to insert visible role %s: %w", role, err)
		}
	}

	for _, group := range unique(api.Groups) {
		if err := c.exec(ctx, tx, "INSERT INTO AM_API_GROUP_PERMISSION (API_ID, GROUP_ID) VALUES (?, ?)", api.ID, group); err != nil {
			return fmt.Errorf("failed to insert group permission %s: %w", group, err)
		}
	}

	seen := make(map[Operation]bool, len(api.Operations))
	for _, op := range api.Operations {
		op.Method = strings.ToUpper(op.Method)
		if seen[op] {
			continue
		}
		seen[op] = true
		err := c.exec(ctx, tx, "INSERT INTO AM_API_OPERATION_MAPPING (API_ID, HTTP_METHOD, URL_PATTERN) VALUES (?, ?, ?)",
			api.ID, op.Method, op.URLPattern)
		if err != nil {
			return fmt.Errorf("failed to insert operation %s %s: %w", op.Method, op.URLPattern, err)
		}
	}

	return nil
}

// indexDocument replaces the index row of one API
func (c *Catalog) indexDocument(ctx context.Context, tx *sql.Tx, id, content string) error {
	var err error
	switch c.conns.Dialect().(type) {
	case search.Postgres:
		err = c.exec(ctx, tx, `
			INSERT INTO AM_API_FTS (API_ID, SEARCH_VECTOR) VALUES (?, to_tsvector('simple', ?))
			ON CONFLICT (API_ID) DO UPDATE SET SEARCH_VECTOR = excluded.SEARCH_VECTOR`, id, content)
	default:
		if err = c.exec(ctx, tx, "DELETE FROM AM_API_FTS WHERE API_ID = ?", id); err == nil {
			err = c.exec(ctx, tx, "INSERT INTO AM_API_FTS (API_ID, CONTENT) VALUES (?, ?)", id, content)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to index api %s: %w", id, err)
	}
	return nil
}

// loadDocuments builds the index document of every API. Rows are fully read
// before any index write so a single-connection pool never has two statements open.
func (c *Catalog) loadDocuments(ctx context.Context, tx *sql.Tx) (map[string]string, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT UUID, PROVIDER, NAME, CONTEXT, VERSION, DESCRIPTION
		FROM AM_API`)
	if err != nil {
		return nil, fmt.Errorf("failed to list apis: %w", err)
	}

	apis := make(map[string]search.APISummary)
	for rows.Next() {
		var s search.APISummary
		var description sql.NullString
		if err := rows.Scan(&s.ID, &s.Provider, &s.Name, &s.Context, &s.Version, &description); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan api: %w", err)
		}
		s.Description = description.String
		apis[s.ID] = s
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating apis: %w", err)
	}

	tags, err := c.loadTags(ctx, tx)
	if err != nil {
		return nil, err
	}

	docs := make(map[string]string, len(apis))
	for id, s := range apis {
		docs[id] = document(s, tags[id])
	}
	return docs, nil
}

func (c *Catalog) loadTags(ctx context.Context, tx *sql.Tx) (map[string][]string, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT M.API_ID, T.NAME
		FROM AM_API_TAG_MAPPING M
		JOIN AM_TAGS T ON T.TAG_ID = M.TAG_ID
		ORDER BY T.NAME`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	defer rows.Close()

	tags := make(map[string][]string)
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags[id] = append(tags[id], name)
	}
	return tags, rows.Err()
}

// document is the lowercased text indexed for an API
func document(s search.APISummary, tags []string) string {
	parts := []string{s.Name, s.Provider, s.Context, s.Version, s.Description}
	parts = append(parts, tags...)

	var b strings.Builder
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strings.ToLower(p))
	}
	return b.String()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func unique(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// uniqueFolded dedupes tags case-insensitively; tags are stored lowercase
func uniqueFolded(values []string) []string {
	folded := make([]string, len(values))
	for i, v := range values {
		folded[i] = strings.ToLower(v)
	}
	return unique(folded)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
