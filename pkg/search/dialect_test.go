package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialectFor(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{name: "sqlite", want: "sqlite3"},
		{name: "sqlite3", want: "sqlite3"},
		{name: "postgres", want: "postgres"},
		{name: "PostgreSQL", want: "postgres"},
		{name: "pq", want: "postgres"},
		{name: "mysql", wantErr: true},
		{name: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := DialectFor(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Name())
		})
	}
}

func TestPostgres_FullTextSource(t *testing.T) {
	src := Postgres{}.FullTextSource()

	// Wildcard folding runs before whitespace becomes '&'
	assert.Contains(t, src, `regexp_replace(regexp_replace(btrim(?), '\s*\*$', ':*'), '\s+', ' & ', 'g')`)
	assert.Equal(t, 1, CountPlaceholders(src))

	// A term whose trailing punctuation was stripped still ends in the wildcard
	assert.Equal(t, "pet store *", SanitizeFreeText("Pet Store !!"))
}

func TestRebind(t *testing.T) {
	query := "SELECT * FROM AM_API WHERE NAME = ? AND DESCRIPTION = 'why?' AND PROVIDER = ? OFFSET ? LIMIT ?"

	assert.Equal(t, query, SQLite{}.Rebind(query))
	assert.Equal(t,
		"SELECT * FROM AM_API WHERE NAME = $1 AND DESCRIPTION = 'why?' AND PROVIDER = $2 OFFSET $3 LIMIT $4",
		Postgres{}.Rebind(query))
}

func TestCountPlaceholders(t *testing.T) {
	assert.Equal(t, 0, CountPlaceholders("SELECT 1"))
	assert.Equal(t, 2, CountPlaceholders("SELECT ? FROM T WHERE A = ?"))
	assert.Equal(t, 1, CountPlaceholders("SELECT '?' , ?"))
	assert.Equal(t, 1, CountPlaceholders(SQLite{}.FullTextSource()))
	assert.Equal(t, 1, CountPlaceholders(Postgres{}.FullTextSource()))
	assert.Equal(t, 2, CountPlaceholders(SQLite{}.OffsetLimit()))
	assert.Equal(t, 2, CountPlaceholders(Postgres{}.OffsetLimit()))
}
