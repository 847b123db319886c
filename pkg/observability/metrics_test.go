package observability

import (
	"database/sql"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	require.NotNil(t, metrics)

	assert.NotNil(t, metrics.HTTPRequestsTotal)
	assert.NotNil(t, metrics.SearchRequestsTotal)
	assert.NotNil(t, metrics.SearchDuration)
	assert.NotNil(t, metrics.CacheHitsTotal)
	assert.NotNil(t, metrics.DBQueriesTotal)
	assert.NotNil(t, metrics.DBReplicasHealthy)

	t.Run("double registration panics", func(t *testing.T) {
		assert.Panics(t, func() { NewMetrics(registry) })
	})
}

func TestMetrics_RecordSearch(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.RecordSearch("ATTRIBUTE", "ok", 20*time.Millisecond, 3)
	metrics.RecordSearch("ATTRIBUTE", "ok", 10*time.Millisecond, 0)
	metrics.RecordSearch("FULL_TEXT", "invalid", time.Millisecond, 0)

	expected := `
# HELP apistore_search_requests_total Total number of catalog searches
# TYPE apistore_search_requests_total counter
apistore_search_requests_total{outcome="invalid",type="FULL_TEXT"} 1
apistore_search_requests_total{outcome="ok",type="ATTRIBUTE"} 2
`
	require.NoError(t, testutil.CollectAndCompare(metrics.SearchRequestsTotal, strings.NewReader(expected)))

	// Result counts are only observed for successful searches
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.SearchResults))
	assert.Equal(t, 2, testutil.CollectAndCount(metrics.SearchDuration))
}

func TestMetrics_Cache(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.RecordCacheHit("roles_l1")
	metrics.RecordCacheHit("roles_l1")
	metrics.RecordCacheMiss("roles_l2")

	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.CacheHitsTotal.WithLabelValues("roles_l1")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CacheMissesTotal.WithLabelValues("roles_l2")))
}

func TestMetrics_Database(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.RecordDBQuery("search_query", 5*time.Millisecond, nil)
	metrics.RecordDBQuery("search_count", 5*time.Millisecond, errors.New("boom"))

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.DBQueriesTotal.WithLabelValues("search_query", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.DBQueriesTotal.WithLabelValues("search_count", "error")))

	metrics.UpdateDBStats(sql.DBStats{OpenConnections: 7, InUse: 2, Idle: 5, WaitCount: 11}, 2)

	assert.Equal(t, float64(7), testutil.ToFloat64(metrics.DBConnectionsOpen))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.DBConnectionsInUse))
	assert.Equal(t, float64(5), testutil.ToFloat64(metrics.DBConnectionsIdle))
	assert.Equal(t, float64(11), testutil.ToFloat64(metrics.DBConnectionsWaitCount))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.DBReplicasHealthy))
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	handler := HTTPMetricsMiddleware(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("hello"))
	}))

	for _, path := range []string{"/api/v1/apis/search", "/api/v1/apis/search", "/missing"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", path, nil))
	}

	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/apis/search", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/missing", "404")))
	assert.Equal(t, 2, testutil.CollectAndCount(metrics.HTTPResponseSize))
}

func TestResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	rw.WriteHeader(http.StatusCreated)
	n, err := rw.Write([]byte("abc"))

	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, http.StatusCreated, rw.statusCode)
	assert.Equal(t, 3, rw.bytesWritten)
}

func TestRegisterMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	metrics.RecordSearch("FULL_TEXT", "ok", time.Millisecond, 1)

	mux := http.NewServeMux()
	RegisterMetricsEndpoint(mux, registry)

	server := httptest.NewServer(mux)
	defer server.Close()

	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "apistore_search_requests_total")
}
