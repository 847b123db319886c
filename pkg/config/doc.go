// Package config loads and validates apistore configuration.
//
// # Overview
//
// Configuration comes from APISTORE_* environment variables with defaults for
// every setting. The search section may additionally be read from a YAML file
// named by APISTORE_CONFIG_FILE; environment variables override the file.
//
// # Configuration Structure
//
// Server settings:
//
//	APISTORE_HOST="0.0.0.0"
//	APISTORE_PORT="8080"
//	APISTORE_HEALTH_PORT="9090"
//	APISTORE_READ_TIMEOUT="15s"
//	APISTORE_WRITE_TIMEOUT="15s"
//	APISTORE_SHUTDOWN_TIMEOUT="30s"
//	APISTORE_CORS_ORIGINS="https://portal.example.com"
//	APISTORE_TRUST_ROLE_HEADER="false"  # take roles from X-Roles (gateway must overwrite it)
//
// Database settings:
//
//	APISTORE_DB_DRIVER="postgres"  # postgres or sqlite3
//	APISTORE_DB_URL="postgres://localhost/apistore?sslmode=disable"
//	APISTORE_DB_REPLICA_URLS="postgres://replica1/apistore,postgres://replica2/apistore"
//	APISTORE_DB_MAX_CONNS="25"
//	APISTORE_DB_INIT_SCHEMA="false"
//
// Role cache settings:
//
//	APISTORE_ROLE_CACHE_SIZE="10000"
//	APISTORE_ROLE_CACHE_TTL="5m"
//	APISTORE_REDIS_URL="redis://localhost:6379/0"  # optional shared cache
//
// Search settings:
//
//	APISTORE_SEARCH_DEFAULT_API_TYPE="STANDARD"
//	APISTORE_SEARCH_MAX_LIMIT="1000"
//
// Extra searchable columns are only read from the file:
//
//	search:
//	  extra_columns:
//	    status: CURRENT_LC_STATUS
//
// Replica URLs may also come from the file. On SIGHUP the server re-reads them
// (see ReplicaURLs) and opens any replica it does not already use:
//
//	database:
//	  replica_urls:
//	    - postgres://replica3/apistore
//
// Rate limit settings (shared through Redis when APISTORE_REDIS_URL is set):
//
//	APISTORE_RATE_LIMIT_ENABLED="false"
//	APISTORE_RATE_LIMIT_USER_REQUESTS="1000"
//	APISTORE_RATE_LIMIT_ANONYMOUS_REQUESTS="100"
//	APISTORE_RATE_LIMIT_WINDOW="1m"
//
// Observability settings:
//
//	APISTORE_LOG_LEVEL="info"
//	APISTORE_METRICS_ENABLED="true"
//	APISTORE_OTEL_ENABLED="false"
//	APISTORE_OTEL_ENDPOINT="localhost:4317"
//	APISTORE_OTEL_SAMPLE_RATIO="1.0"
//
// # Usage
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	conns, err := storage.NewConnectionManager(cfg.Database.ConnectionConfig(), logger)
package config
