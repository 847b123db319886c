package httputil

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/apistore/pkg/observability"
)

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLogger(observability.InfoLevel, &buf)

	handler := Chain(RequestIDMiddleware(logger), LoggingMiddleware(logger))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}))

	req := httptest.NewRequest(http.MethodGet, "/apis/search?query=pets", nil)
	req.Header.Set(HeaderRequestID, "req-123")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTeapot, w.Code)
	out := buf.String()
	assert.Contains(t, out, `"message":"http request"`)
	assert.Contains(t, out, `"status":418`)
	assert.Contains(t, out, `"path":"/apis/search"`)
	assert.Contains(t, out, `"request_id":"req-123"`)
}

func TestRequestIDMiddleware(t *testing.T) {
	logger := observability.NewLogger(observability.InfoLevel, &bytes.Buffer{})

	var seen string
	handler := RequestIDMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = observability.GetRequestID(r.Context())
		assert.Same(t, logger, observability.GetLogger(r.Context()))
	}))

	t.Run("generated", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		require.NotEmpty(t, seen)
		assert.Len(t, seen, 36)
		assert.Equal(t, seen, w.Header().Get(HeaderRequestID))
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderRequestID, "upstream-id")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, "upstream-id", seen)
		assert.Equal(t, "upstream-id", w.Header().Get(HeaderRequestID))
	})
}

func TestRecoveryMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLogger(observability.InfoLevel, &buf)

	handler := RecoveryMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/apis/search", nil))
	})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, w.Body.String())
	assert.Contains(t, buf.String(), "PANIC recovered")
	assert.Contains(t, buf.String(), "GET /apis/search")
}

func TestCORSMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name        string
		origins     []string
		origin      string
		method      string
		wantStatus  int
		wantAllowed bool
	}{
		{name: "allowed origin", origins: []string{"https://portal.example.com"}, origin: "https://portal.example.com", method: http.MethodGet, wantStatus: http.StatusNoContent, wantAllowed: true},
		{name: "wildcard", origins: []string{"*"}, origin: "https://other.example.com", method: http.MethodGet, wantStatus: http.StatusNoContent, wantAllowed: true},
		{name: "unknown origin", origins: []string{"https://portal.example.com"}, origin: "https://evil.example.com", method: http.MethodGet, wantStatus: http.StatusNoContent},
		{name: "preflight", origins: []string{"*"}, origin: "https://portal.example.com", method: http.MethodOptions, wantStatus: http.StatusOK, wantAllowed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/apis/search", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()

			CORSMiddleware(tt.origins)(next).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantAllowed {
				assert.Equal(t, tt.origin, w.Header().Get("Access-Control-Allow-Origin"))
				assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-Roles")
			} else {
				assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
			}
		})
	}
}

func TestChain(t *testing.T) {
	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	handler := Chain(mark("first"), mark("second"), mark("third"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"first", "second", "third", "handler"}, order)
}
