package search

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect holds the engine-specific parts of the generated SQL.
// All dialects generate `?` placeholders; Rebind converts them for the driver.
type Dialect interface {
	// Name returns the dialect name
	Name() string

	// FullTextSource returns a subquery selecting API_ID for index rows that
	// match the sanitized term bound to its single placeholder
	FullTextSource() string

	// OffsetLimit returns the pagination clause binding offset then limit
	OffsetLimit() string

	// Rebind rewrites `?` placeholders into the driver's placeholder syntax
	Rebind(query string) string
}

// SQLite targets mattn/go-sqlite3 with an FTS4 index table
type SQLite struct{}

func (SQLite) Name() string { return "sqlite3" }

func (SQLite) FullTextSource() string {
	return "SELECT API_ID FROM AM_API_FTS WHERE AM_API_FTS MATCH ?"
}

// OffsetLimit uses the "LIMIT offset, count" form, the only SQLite form that
// binds offset before limit
func (SQLite) OffsetLimit() string {
	return "LIMIT ?, ?"
}

func (SQLite) Rebind(query string) string { return query }

// Postgres targets lib/pq with a tsvector index table
type Postgres struct{}

func (Postgres) Name() string { return "postgres" }

// FullTextSource turns "pet store*" into the prefix tsquery 'pet & store:*'.
// The wildcard is folded onto the last word before spaces become '&', so
// "pet store *" also yields 'pet & store:*'.
func (Postgres) FullTextSource() string {
	return `SELECT API_ID FROM AM_API_FTS WHERE SEARCH_VECTOR @@ to_tsquery('simple', ` +
		`regexp_replace(regexp_replace(btrim(?), '\s*\*$', ':*'), '\s+', ' & ', 'g'))`
}

func (Postgres) OffsetLimit() string {
	return "OFFSET ? LIMIT ?"
}

// Rebind numbers placeholders as $1..$n, skipping quoted literals
func (Postgres) Rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 16)

	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// DialectFor returns the dialect for a driver name
func DialectFor(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return SQLite{}, nil
	case "postgres", "postgresql", "pq":
		return Postgres{}, nil
	default:
		return nil, fmt.Errorf("unsupported SQL dialect: %s (must be sqlite3 or postgres)", name)
	}
}

// CountPlaceholders counts `?` placeholders outside quoted literals
func CountPlaceholders(query string) int {
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		switch query[i] {
		case '\'':
			inQuote = !inQuote
		case '?':
			if !inQuote {
				n++
			}
		}
	}
	return n
}
