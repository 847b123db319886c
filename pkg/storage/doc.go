// Package storage holds the SQL side of the API catalog.
//
// ConnectionManager owns the primary pool and a round-robin set of read
// replicas for either PostgreSQL (lib/pq) or SQLite (mattn/go-sqlite3).
// SQLExecutor implements search.Executor on the replicas, rebinding the
// generated `?` placeholders through the configured search.Dialect:
//
//	conns, err := storage.NewConnectionManager(storage.ConnectionConfig{
//		Driver:     "postgres",
//		PrimaryURL: "postgres://localhost/apistore",
//	}, logger)
//	service, err := search.NewService(storage.NewSQLExecutor(conns, metrics))
//
// Catalog writes APIs to the primary and maintains the full-text index
// table (an FTS4 virtual table on SQLite, a tsvector column with a GIN
// index on PostgreSQL). Schema and ApplySchema create the catalog tables.
//
// NewRedisClient builds the Redis client shared by the role cache and the
// health checker.
package storage
