package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/platinummonkey/apistore/pkg/observability"
	"github.com/platinummonkey/apistore/pkg/search"
)

// ConnectionManager manages the catalog primary and read replica connections.
// Searches read from replicas; the primary is used for writes and as the read
// fallback when no replica is available.
type ConnectionManager struct {
	primary  *sql.DB
	replicas []*sql.DB
	urls     map[*sql.DB]string // replica URL by pool, for reloads
	current  uint32             // Atomic counter for round-robin selection
	mu       sync.RWMutex
	config   ConnectionConfig
	dialect  search.Dialect
	logger   *observability.Logger
}

// ConnectionConfig holds database connection configuration
type ConnectionConfig struct {
	Driver      string // postgres or sqlite3
	PrimaryURL  string
	ReplicaURLs []string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// Validate checks the connection configuration
func (c ConnectionConfig) Validate() error {
	if _, err := search.DialectFor(c.Driver); err != nil {
		return err
	}
	if c.PrimaryURL == "" {
		return fmt.Errorf("primary database URL is required")
	}
	if c.MaxConns < 0 || c.MinConns < 0 {
		return fmt.Errorf("connection pool sizes must not be negative")
	}
	if c.MaxConns > 0 && c.MinConns > c.MaxConns {
		return fmt.Errorf("min connections (%d) exceeds max connections (%d)", c.MinConns, c.MaxConns)
	}
	return nil
}

// NewConnectionManager opens the primary and any reachable replicas. The primary
// must be reachable; replicas that fail to open or ping are skipped.
func NewConnectionManager(config ConnectionConfig, logger *observability.Logger) (*ConnectionManager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid connection config: %w", err)
	}
	dialect, err := search.DialectFor(config.Driver)
	if err != nil {
		return nil, err
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, io.Discard)
	}

	cm := &ConnectionManager{
		config:   config,
		replicas: make([]*sql.DB, 0),
		urls:     make(map[*sql.DB]string),
		dialect:  dialect,
		logger:   logger.WithField("driver", dialect.Name()),
	}

	primary, err := cm.open(config.PrimaryURL, config.MaxConns)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to primary: %w", err)
	}
	cm.primary = primary

	for i, replicaURL := range config.ReplicaURLs {
		replica, err := cm.open(replicaURL, replicaPoolSize(config.MaxConns))
		if err != nil {
			// Replicas are optional
			cm.logger.WithError(err).WithField("replica", i).Warn("Skipping unreachable replica")
			continue
		}
		cm.replicas = append(cm.replicas, replica)
		cm.urls[replica] = replicaURL
	}

	cm.logger.WithField("replicas", len(cm.replicas)).Info("Connection manager initialized")

	return cm, nil
}

// NewConnectionManagerFromDB wraps already opened connections, for callers that
// manage their own pools
func NewConnectionManagerFromDB(dialect search.Dialect, primary *sql.DB, replicas ...*sql.DB) *ConnectionManager {
	return &ConnectionManager{
		primary:  primary,
		replicas: append([]*sql.DB(nil), replicas...),
		urls:     make(map[*sql.DB]string),
		dialect:  dialect,
		logger:   observability.NewLogger(observability.InfoLevel, io.Discard),
	}
}

// open opens and pings one pool
func (cm *ConnectionManager) open(url string, maxConns int) (*sql.DB, error) {
	db, err := sql.Open(cm.dialect.Name(), url)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}

	if _, ok := cm.dialect.(search.SQLite); ok {
		// In-memory SQLite databases exist per connection
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(maxConns)
		db.SetMaxIdleConns(cm.config.MinConns)
	}
	db.SetConnMaxLifetime(cm.config.MaxLifetime)
	db.SetConnMaxIdleTime(cm.config.MaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), cm.config.Timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping: %w", err)
	}

	return db, nil
}

// replicaPoolSize sizes replica pools slightly smaller than the primary
func replicaPoolSize(maxConns int) int {
	n := maxConns / 2
	if n < 2 {
		n = 2
	}
	return n
}

// Dialect returns the SQL dialect of the managed connections
func (cm *ConnectionManager) Dialect() search.Dialect {
	return cm.dialect
}

// Primary returns the primary database connection (for writes)
func (cm *ConnectionManager) Primary() *sql.DB {
	return cm.primary
}

// Replica returns a read replica using round-robin selection
// Falls back to primary if no replicas are available
func (cm *ConnectionManager) Replica() *sql.DB {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if len(cm.replicas) == 0 {
		return cm.primary
	}

	index := atomic.AddUint32(&cm.current, 1)
	return cm.replicas[int(index%uint32(len(cm.replicas)))]
}

// ReplicaCount returns the number of replicas in the pool
func (cm *ConnectionManager) ReplicaCount() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.replicas)
}

// HealthCheck checks the health of primary and all replicas
func (cm *ConnectionManager) HealthCheck(ctx context.Context) error {
	if err := cm.primary.PingContext(ctx); err != nil {
		return fmt.Errorf("primary unhealthy: %w", err)
	}

	cm.mu.RLock()
	replicas := make([]*sql.DB, len(cm.replicas))
	copy(replicas, cm.replicas)
	cm.mu.RUnlock()

	var unhealthy []string
	for i, replica := range replicas {
		if err := replica.PingContext(ctx); err != nil {
			unhealthy = append(unhealthy, fmt.Sprintf("replica-%d", i))
		}
	}

	if len(unhealthy) > 0 && len(unhealthy) == len(replicas) {
		// All replicas are down, but primary is up (degraded state)
		return fmt.Errorf("all replicas unhealthy: %s", strings.Join(unhealthy, ", "))
	}

	return nil
}

// ConnectionStats holds statistics for all database connections
type ConnectionStats struct {
	Primary  sql.DBStats
	Replicas []sql.DBStats
}

// Total sums the statistics of all pools
func (s ConnectionStats) Total() sql.DBStats {
	total := s.Primary
	for _, r := range s.Replicas {
		total.OpenConnections += r.OpenConnections
		total.InUse += r.InUse
		total.Idle += r.Idle
		total.WaitCount += r.WaitCount
		total.WaitDuration += r.WaitDuration
	}
	return total
}

// Stats returns connection pool statistics for primary and replicas
func (cm *ConnectionManager) Stats() ConnectionStats {
	stats := ConnectionStats{
		Primary: cm.primary.Stats(),
	}

	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats.Replicas = make([]sql.DBStats, len(cm.replicas))
	for i, replica := range cm.replicas {
		stats.Replicas[i] = replica.Stats()
	}

	return stats
}

// RemoveUnhealthyReplicas closes and removes replicas that fail a ping
func (cm *ConnectionManager) RemoveUnhealthyReplicas(ctx context.Context) int {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	healthy := make([]*sql.DB, 0, len(cm.replicas))
	removed := 0

	for _, replica := range cm.replicas {
		if err := replica.PingContext(ctx); err != nil {
			replica.Close()
			delete(cm.urls, replica)
			removed++
		} else {
			healthy = append(healthy, replica)
		}
	}

	cm.replicas = healthy
	return removed
}

// AddReplica adds a new replica connection at runtime
func (cm *ConnectionManager) AddReplica(replicaURL string) error {
	replica, err := cm.open(replicaURL, replicaPoolSize(cm.config.MaxConns))
	if err != nil {
		return fmt.Errorf("failed to add replica: %w", err)
	}

	cm.mu.Lock()
	cm.replicas = append(cm.replicas, replica)
	cm.urls[replica] = replicaURL
	cm.mu.Unlock()

	return nil
}

// SyncReplicas adds every URL that is not already in the pool. Replicas are
// never removed here; the health check drops the ones that stop answering.
// It returns the number of replicas added and the errors of those that failed.
func (cm *ConnectionManager) SyncReplicas(replicaURLs []string) (int, error) {
	cm.mu.RLock()
	known := make(map[string]bool, len(cm.urls))
	for _, url := range cm.urls {
		known[url] = true
	}
	cm.mu.RUnlock()

	added := 0
	var errs []error
	for _, url := range replicaURLs {
		if known[url] {
			continue
		}
		known[url] = true
		if err := cm.AddReplica(url); err != nil {
			errs = append(errs, err)
			continue
		}
		added++
	}
	return added, errors.Join(errs...)
}

// WatchReplicaReload calls load on every value received from trigger and adds
// the replicas it returns, until ctx is done
func (cm *ConnectionManager) WatchReplicaReload(ctx context.Context, trigger <-chan os.Signal, load func() ([]string, error)) {
	go func() {
		defer observability.RecoverPanic(cm.logger, "replica reload")

		for {
			select {
			case sig := <-trigger:
				logger := cm.logger.WithField("signal", sig.String())
				urls, err := load()
				if err != nil {
					logger.WithError(err).Error("Failed to reload replica configuration")
					continue
				}
				added, err := cm.SyncReplicas(urls)
				if err != nil {
					logger.WithError(err).Warn("Some replicas could not be added")
				}
				logger.WithFields(map[string]interface{}{
					"added":    added,
					"replicas": cm.ReplicaCount(),
				}).Info("Replica configuration reloaded")

			case <-ctx.Done():
				return
			}
		}
	}()
}

// Close closes all database connections
func (cm *ConnectionManager) Close() error {
	var errs []error

	if err := cm.primary.Close(); err != nil {
		errs = append(errs, fmt.Errorf("primary close error: %w", err))
	}

	cm.mu.Lock()
	replicas := cm.replicas
	cm.replicas = nil
	cm.urls = make(map[*sql.DB]string)
	cm.mu.Unlock()

	for i, replica := range replicas {
		if err := replica.Close(); err != nil {
			errs = append(errs, fmt.Errorf("replica-%d close error: %w", i, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("connection close errors: %w", errors.Join(errs...))
	}

	return nil
}

// StartHealthCheckRoutine removes unhealthy replicas every interval and reports
// pool statistics to metrics (which may be nil) until ctx is done
func (cm *ConnectionManager) StartHealthCheckRoutine(ctx context.Context, interval time.Duration, metrics *observability.Metrics) {
	if interval == 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		defer observability.RecoverPanic(cm.logger, "replica health check")

		for {
			select {
			case <-ticker.C:
				checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				removed := cm.RemoveUnhealthyReplicas(checkCtx)
				cancel()

				if removed > 0 {
					cm.logger.WithField("removed", removed).Warn("Removed unhealthy replicas")
				}
				if metrics != nil {
					metrics.UpdateDBStats(cm.Stats().Total(), cm.ReplicaCount())
				}

			case <-ctx.Done():
				return
			}
		}
	}()
}

// ParseReplicaURLs parses a comma-separated list of replica URLs
func ParseReplicaURLs(replicaURLsStr string) []string {
	if replicaURLsStr == "" {
		return nil
	}

	urls := strings.Split(replicaURLsStr, ",")
	result := make([]string, 0, len(urls))

	for _, url := range urls {
		trimmed := strings.TrimSpace(url)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
