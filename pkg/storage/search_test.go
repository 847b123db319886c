package storage

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/apistore/pkg/search"
)

// seedCatalog stores a small catalog covering every visibility arm
func seedCatalog(t *testing.T, catalog *Catalog) {
	t.Helper()

	records := []*APIRecord{
		petStore(),
		{
			APISummary: search.APISummary{
				ID: "bank", Provider: "bob", Name: "Bank Ledger", Context: "/bank", Version: "2.0.0",
				LifecycleStatus: search.StatusPublished,
			},
			Visibility:   "RESTRICTED",
			VisibleRoles: []string{"admin"},
			Groups:       []string{"admin"},
			Tags:         []string{"finance"},
		},
		{
			APISummary: search.APISummary{
				ID: "draft", Provider: "carol", Name: "Draft Budget", Context: "/budget", Version: "0.1.0",
				LifecycleStatus: "CREATED",
			},
			Visibility: "PUBLIC",
			Tags:       []string{"finance"},
		},
		{
			APISummary: search.APISummary{
				ID: "secret", Provider: "dave", Name: "Secret Ledger", Context: "/secret", Version: "1.0.0",
				LifecycleStatus: search.StatusPrototyped,
			},
			Visibility:   "RESTRICTED",
			VisibleRoles: []string{"auditor"},
			Tags:         []string{"finance"},
		},
		{
			APISummary: search.APISummary{
				ID: "mashup", Provider: "alice", Name: "Pet Mashup", Context: "/mashup", Version: "1.0.0",
				LifecycleStatus: search.StatusPublished,
			},
			Type:   search.APITypeComposite,
			Groups: []string{"dev"},
		},
	}

	for _, r := range records {
		require.NoError(t, catalog.PutAPI(context.Background(), r))
	}
}

func newCatalogService(t *testing.T) *search.Service {
	t.Helper()

	conns, catalog := newSQLiteCatalog(t)
	seedCatalog(t, catalog)

	service, err := search.NewService(NewSQLExecutor(conns, nil), search.WithConfig(search.Config{
		Dialect:      conns.Dialect(),
		ExtraColumns: map[string]string{"status": "CURRENT_LC_STATUS"},
	}))
	require.NoError(t, err)
	return service
}

func ids(items []search.APISummary) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.ID
	}
	sort.Strings(out)
	return out
}

func TestSearch_Attribute(t *testing.T) {
	service := newCatalogService(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		attrs search.Attributes
		roles []string
		want  []string
	}{
		{
			name:  "public and role restricted",
			attrs: search.Attributes{{Key: "tag", Value: "finance"}},
			roles: []string{"admin"},
			want:  []string{"bank", "pets"},
		},
		{
			name:  "no roles only sees public",
			attrs: search.Attributes{{Key: "tag", Value: "FINANCE"}},
			want:  []string{"pets"},
		},
		{
			name:  "prototyped restricted",
			attrs: search.Attributes{{Key: "tag", Value: "fin"}},
			roles: []string{"auditor", "auditor"},
			want:  []string{"pets", "secret"},
		},
		{
			name:  "subcontext",
			attrs: search.Attributes{{Key: "subcontext", Value: "/pets/"}},
			want:  []string{"pets"},
		},
		{
			name:  "all attributes must match",
			attrs: search.Attributes{{Key: "name", Value: "ledger"}, {Key: "provider", Value: "bob"}},
			roles: []string{"admin", "auditor"},
			want:  []string{"bank"},
		},
		{
			name:  "extra column",
			attrs: search.Attributes{{Key: "status", Value: "prototyped"}},
			roles: []string{"auditor"},
			want:  []string{"secret"},
		},
		{
			name:  "values are not interpreted as SQL",
			attrs: search.Attributes{{Key: "name", Value: "' OR '1'='1"}},
			roles: []string{"admin"},
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := service.Search(ctx, search.Request{
				Type:       search.TypeAttribute,
				Attributes: tt.attrs,
				Roles:      tt.roles,
				Limit:      20,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(result.Items))
			assert.Equal(t, len(tt.want), result.Total)
		})
	}
}

func TestSearch_AttributePagination(t *testing.T) {
	service := newCatalogService(t)
	ctx := context.Background()

	req := search.Request{
		Type:       search.TypeAttribute,
		Attributes: search.Attributes{{Key: "tag", Value: "finance"}},
		Roles:      []string{"admin"},
		Limit:      1,
	}

	first, err := service.Search(ctx, req)
	require.NoError(t, err)
	require.Len(t, first.Items, 1)
	assert.Equal(t, 2, first.Total)
	require.True(t, first.Pagination.HasNext())
	assert.Equal(t, 1, *first.Pagination.NextOffset)
	assert.False(t, first.Pagination.HasPrevious())

	req.Offset = *first.Pagination.NextOffset
	second, err := service.Search(ctx, req)
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.False(t, second.Pagination.HasNext())
	assert.True(t, second.Pagination.HasPrevious())

	assert.Equal(t, []string{"bank", "pets"}, ids(append(first.Items, second.Items...)))
}

func TestSearch_FullText(t *testing.T) {
	service := newCatalogService(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		query    string
		apiType  search.APIType
		roles    []string
		identity string
		want     []string
	}{
		{name: "group grant", query: "Pet Store!!", roles: []string{"dev", "qa"}, identity: "zed", want: []string{"pets"}},
		{name: "provider sees own api", query: "pet", identity: "alice", want: []string{"pets"}},
		{name: "no grant", query: "ledger", roles: []string{"dev"}, identity: "zed", want: []string{}},
		{name: "restricted group", query: "ledger", roles: []string{"admin"}, identity: "zed", want: []string{"bank"}},
		{name: "composite type", query: "pet", apiType: search.APITypeComposite, roles: []string{"dev"}, want: []string{"mashup"}},
		{name: "tags are indexed", query: "animals", roles: []string{"dev"}, want: []string{"pets"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := service.Search(ctx, search.Request{
				Type:     search.TypeFullText,
				Query:    tt.query,
				APIType:  tt.apiType,
				Roles:    tt.roles,
				Identity: tt.identity,
				Limit:    10,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(result.Items))
			assert.Equal(t, len(tt.want), result.Total)
		})
	}
}

func TestSearch_RoleResolver(t *testing.T) {
	conns, catalog := newSQLiteCatalog(t)
	seedCatalog(t, catalog)

	resolver := roleResolverFunc(func(ctx context.Context, identity string) ([]string, error) {
		if identity == "erin" {
			return []string{"admin"}, nil
		}
		return nil, errors.New("directory unavailable")
	})

	service, err := search.NewService(NewSQLExecutor(conns, nil),
		search.WithConfig(search.Config{Dialect: conns.Dialect()}),
		search.WithRoleResolver(resolver),
	)
	require.NoError(t, err)

	result, err := service.Search(context.Background(), search.Request{
		Type:       search.TypeAttribute,
		Attributes: search.Attributes{{Key: "tag", Value: "finance"}},
		Identity:   "erin",
		Limit:      10,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"bank", "pets"}, ids(result.Items))

	_, err = service.Search(context.Background(), search.Request{
		Type:       search.TypeAttribute,
		Attributes: search.Attributes{{Key: "tag", Value: "finance"}},
		Identity:   "frank",
		Limit:      10,
	})
	assert.ErrorIs(t, err, search.ErrQueryExecution)
}

type roleResolverFunc func(ctx context.Context, identity string) ([]string, error)

func (f roleResolverFunc) ResolveRoles(ctx context.Context, identity string) ([]string, error) {
	return f(ctx, identity)
}
