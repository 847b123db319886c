// Package search provides role-aware search over the API catalog.
//
// # Overview
//
// This package turns a search request into a parameterized, access-control-filtered
// SQL statement over the denormalized API catalog tables (AM_API and friends) and
// executes it through a caller-supplied Executor. Query construction is pure: no
// package level state, no I/O, safe for concurrent use.
//
// # Search Modes
//
// Full-Text: free text matched against the catalog full-text index
// Attribute: partial matches against named fields (name, provider, version, ...)
// Tag: attribute search against tag names (key "tag")
// Subcontext: attribute search against resource URL patterns (key "subcontext")
//
// # Visibility
//
// Attribute searches are the UNION of two branches. The PUBLIC branch returns
// published or prototyped APIs with public visibility. The RESTRICTED branch
// returns published or prototyped APIs whose visible roles intersect the caller's
// roles. Full-text searches filter by group permission or provider instead.
//
// LIMIT/OFFSET is applied to the UNION result, and rows are unordered across
// branches. Callers that need a stable order across pages must not rely on it.
//
// # Query Syntax
//
// Full-text search:
//
//	/apis/search?type=full_text&query=pet store
//
// Attribute search:
//
//	/apis/search?type=attribute&query=tag:finance
//	/apis/search?type=attribute&query=name:"pet store" provider:alice
//
// Publisher view (APIs the caller provides or whose groups may manage them):
//
//	/apis/search?type=attribute&scope=publisher&query=tag:finance
//
// # Usage Example
//
//	svc, err := search.NewService(executor,
//		search.WithConfig(search.Config{Dialect: search.SQLite{}}),
//		search.WithRoleResolver(resolver),
//	)
//	if err != nil {
//		return err
//	}
//
//	result, err := svc.Search(ctx, search.Request{
//		Type:       search.TypeAttribute,
//		Attributes: search.Attributes{{Key: "tag", Value: "finance"}},
//		Roles:      []string{"admin"},
//		Limit:      20,
//	})
//
// # Related Packages
//
//   - pkg/storage: Executor implementation and catalog schema
//   - pkg/rbac: Role resolution for callers without explicit roles
package search
