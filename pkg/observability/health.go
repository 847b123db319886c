package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

const readinessTimeout = 5 * time.Second

// probe checks one dependency. Search cannot run without a critical dependency;
// the others only degrade it.
type probe struct {
	name     string
	critical bool
	check    func(ctx context.Context) error
}

// HealthChecker reports the health of the catalog database and the role cache
type HealthChecker struct {
	version string
	probes  []probe
}

// NewHealthChecker creates a new health checker. db or redis may be nil.
func NewHealthChecker(version string, db *sql.DB, redis *redis.Client) *HealthChecker {
	h := &HealthChecker{version: version}
	if db != nil {
		h.probes = append(h.probes, probe{name: "database", critical: true, check: databaseProbe(db)})
	}
	if redis != nil {
		// Role lookups fall back to the database without the shared cache
		h.probes = append(h.probes, probe{name: "redis", check: func(ctx context.Context) error {
			return redis.Ping(ctx).Err()
		}})
	}
	return h
}

// HealthStatus is the readiness report
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus is the result of one probe
type DependencyStatus struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// Check runs every probe and folds the results into one status
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now(),
		Version:      h.version,
		Dependencies: make(map[string]DependencyStatus, len(h.probes)),
	}

	for _, p := range h.probes {
		dep := runProbe(ctx, p)
		status.Dependencies[p.name] = dep

		switch {
		case dep.Status == StatusUnhealthy && p.critical:
			status.Status = StatusUnhealthy
		case dep.Status != StatusHealthy && status.Status == StatusHealthy:
			status.Status = StatusDegraded
		}
	}

	return status
}

func runProbe(ctx context.Context, p probe) DependencyStatus {
	start := time.Now()
	err := p.check(ctx)
	dep := DependencyStatus{Status: StatusHealthy, LatencyMS: time.Since(start).Milliseconds()}

	var d *degradedError
	switch {
	case errors.As(err, &d):
		dep.Status = StatusDegraded
		dep.Message = d.msg
	case err != nil:
		dep.Status = StatusUnhealthy
		dep.Message = err.Error()
	}
	return dep
}

// databaseProbe pings the catalog database, runs a trivial query and flags an
// exhausted pool. MaxOpenConnections is 0 when the pool is unlimited.
func databaseProbe(db *sql.DB) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return err
		}

		var one int
		if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
			return errors.New("query failed: " + err.Error())
		}

		stats := db.Stats()
		if stats.MaxOpenConnections > 0 && stats.InUse >= stats.MaxOpenConnections {
			return degraded("connection pool exhausted")
		}
		return nil
	}
}

// degradedError marks a dependency that answers but should not take full load
type degradedError struct{ msg string }

func degraded(msg string) error { return &degradedError{msg: msg} }

func (e *degradedError) Error() string { return e.msg }

// Liveness answers 200 while the process is serving
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, http.StatusOK, map[string]interface{}{
		"status":    StatusHealthy,
		"timestamp": time.Now(),
	})
}

// Readiness answers 503 only when a critical dependency is down
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	status := h.Check(ctx)
	code := http.StatusOK
	if status.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeHealth(w, code, status)
}

func writeHealth(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

// RegisterHealthRoutes registers health check endpoints
func RegisterHealthRoutes(mux *http.ServeMux, checker *HealthChecker) {
	mux.HandleFunc("/health", checker.Readiness)
	mux.HandleFunc("/health/live", checker.Liveness)
	mux.HandleFunc("/health/ready", checker.Readiness)
}
