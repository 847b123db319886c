// Package middleware provides per-caller rate limiting for the search API.
//
// # Limiters
//
// RateLimiter: in-process token bucket
//
//	limiter := middleware.NewRateLimiter(middleware.PerUserRateLimitConfig())
//	limiter.StartCleanup(ctx)
//
// DistributedRateLimiter: Redis fixed window shared by every replica
//
//	limiter := middleware.NewDistributedRateLimiter(redisClient, middleware.PerUserRateLimitConfig(), "apistore:ratelimit:user")
//
// # Middleware
//
//	rl := middleware.NewRateLimitMiddleware(userLimiter, anonLimiter, search.HeaderUser, logger)
//	router.Use(rl.Handler)
//
// Callers with an X-User header are keyed by identity, others by client IP.
// Limiter errors fail open. Rejected requests get 429 with Retry-After and
// X-RateLimit-* headers.
//
// # Defaults
//
// Anonymous: 100 req/min, 10 burst
// Per-User: 1000 req/min, 50 burst
package middleware
