package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, exec Executor, opts ...Option) *mux.Router {
	t.Helper()
	router := mux.NewRouter()
	NewSearchHandlers(newTestService(t, exec, opts...), WithTrustedRoleHeader(true)).RegisterRoutes(router)
	return router
}

func TestHandlers_Search(t *testing.T) {
	exec := &fakeExecutor{
		items: []APISummary{{ID: "1", Name: "PetStore", Provider: "alice", LifecycleStatus: StatusPublished}},
		total: 3,
	}
	router := newTestRouter(t, exec)

	req := httptest.NewRequest(http.MethodGet, "/apis/search?query=pet+store&offset=0&limit=1", nil)
	req.Header.Set(HeaderUser, "alice")
	req.Header.Set(HeaderRoles, "dev, qa")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var result PaginatedResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Count)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, "PetStore", result.Items[0].Name)
	require.True(t, result.Pagination.HasNext())
	assert.Equal(t, 1, *result.Pagination.NextOffset)

	assert.Equal(t, []any{"pet store*", "STANDARD", "dev", "qa", "alice", 0, 1}, exec.data.Args())
}

func TestHandlers_AttributeSearch(t *testing.T) {
	exec := &fakeExecutor{}
	router := newTestRouter(t, exec)

	req := httptest.NewRequest(http.MethodGet, `/apis/search?query=tag:finance&limit=20`, nil)
	req.Header.Set(HeaderRoles, "admin")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"list":[]`)
	assert.Equal(t, []any{"%finance%", "admin", "%finance%", 0, 20}, exec.data.Args())
}

func TestHandlers_UntrustedRoleHeader(t *testing.T) {
	exec := &fakeExecutor{}
	roles := &fakeRoles{roles: map[string][]string{"alice": {"viewer"}}}
	router := mux.NewRouter()
	NewSearchHandlers(newTestService(t, exec, WithRoleResolver(roles))).RegisterRoutes(router)

	t.Run("anonymous caller gets public results only", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, `/apis/search?query=tag:finance&limit=20`, nil)
		req.Header.Set(HeaderRoles, "admin")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []any{"%finance%", "%finance%", 0, 20}, exec.data.Args())
		assert.Contains(t, exec.data.SQL, "WHERE 1 = 0")
	})

	t.Run("identified caller gets resolved roles", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, `/apis/search?query=tag:finance&limit=20`, nil)
		req.Header.Set(HeaderUser, "alice")
		req.Header.Set(HeaderRoles, "admin")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []any{"%finance%", "viewer", "%finance%", 0, 20}, exec.data.Args())
		assert.Equal(t, 1, roles.calls)
	})
}

func TestHandlers_PublisherScope(t *testing.T) {
	exec := &fakeExecutor{}
	router := newTestRouter(t, exec)

	req := httptest.NewRequest(http.MethodGet, `/apis/search?query=tag:finance&scope=publisher&api_type=composite&limit=20`, nil)
	req.Header.Set(HeaderUser, "bob")
	req.Header.Set(HeaderRoles, "publisher")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"%finance%", "COMPOSITE", "publisher", "bob", 0, 20}, exec.data.Args())
}

func TestHandlers_FullTextKeepsColons(t *testing.T) {
	exec := &fakeExecutor{}
	router := newTestRouter(t, exec)

	req := httptest.NewRequest(http.MethodGet, "/apis/search?type=full_text&query=error:404+error:500+handling&limit=10", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, exec.data)
	assert.Equal(t, "error404 error500 handling*", exec.data.Args()[0])
}

func TestHandlers_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{name: "unknown type", url: "/apis/search?query=pets&type=fuzzy"},
		{name: "bad offset", url: "/apis/search?query=pets&offset=abc"},
		{name: "bad limit", url: "/apis/search?query=pets&limit=ten"},
		{name: "limit too large", url: "/apis/search?query=pets&limit=5000"},
		{name: "empty query", url: "/apis/search"},
		{name: "free text in attribute search", url: "/apis/search?type=attribute&query=pets"},
		{name: "unknown attribute", url: "/apis/search?query=owner:alice"},
		{name: "unknown api type", url: "/apis/search?query=pets&api_type=soap"},
		{name: "unknown scope", url: "/apis/search?query=tag:finance&scope=admin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &fakeExecutor{}
			router := newTestRouter(t, exec)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.url, nil))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), `"error"`)
			assert.Nil(t, exec.data)
		})
	}
}

func TestHandlers_InternalErrorHidesSQL(t *testing.T) {
	router := newTestRouter(t, &fakeExecutor{queryErr: errors.New(`pq: syntax error at or near "AM_API"`)})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/apis/search?query=pets", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"search failed"}`, w.Body.String())
}

func TestHandlers_ValidationDetails(t *testing.T) {
	router := newTestRouter(t, &fakeExecutor{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/apis/search?query=pets&limit=5000", nil))

	require.Equal(t, http.StatusBadRequest, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, map[string]any{"field": "limit"}, body["details"])
}

func TestHandlers_Timeout(t *testing.T) {
	router := newTestRouter(t, &fakeExecutor{queryErr: context.DeadlineExceeded})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/apis/search?query=pets", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"error":"search timed out"}`, w.Body.String())
}

func TestHandlers_Keys(t *testing.T) {
	router := newTestRouter(t, &fakeExecutor{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/apis/search/keys", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string][]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, DefaultKeyResolver().Keys(), body["keys"])
}

func TestHandlers_MethodNotAllowed(t *testing.T) {
	router := newTestRouter(t, &fakeExecutor{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/apis/search", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
