// Package rbac resolves the roles of a caller for catalog searches.
//
// # Roles, Teams and Grants
//
// Roles are granted to users directly (user_roles) or to teams (team_roles)
// whose members inherit them (team_members). A grant may carry an expiry;
// expired grants are ignored. Role names are the values matched against an
// API's visible roles and group permissions, so the resolved set is what a
// search binds into its role placeholders.
//
//	store := rbac.NewStore(db, search.Postgres{})
//	if err := rbac.Migrate(ctx, db, search.Postgres{}); err != nil {
//		return err
//	}
//	roles, err := store.ResolveRoles(ctx, "alice")
//
// # Caching
//
// CachedResolver puts an expiring in-process LRU in front of any Resolver and
// optionally a Redis cache shared between service replicas:
//
//	resolver := rbac.NewCachedResolver(store, rbac.DefaultCacheConfig(),
//		rbac.WithRedisCache(rbac.NewRedisRoleCache(client, 5*time.Minute)),
//		rbac.WithCacheMetrics(metrics),
//	)
//
// Redis errors never fail a lookup; the resolver falls through to the store.
// Call Invalidate after changing the grants of an identity.
package rbac
