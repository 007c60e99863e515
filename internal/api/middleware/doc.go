// Package middleware provides HTTP middleware for the diagnostics API.
//
// Middleware stack includes:
//   - CORS: read-only cross-origin access for local dashboards
//   - RateLimit: per-IP token bucket rate limiting with idle cleanup
//   - GlobalRateLimit: one token bucket shared by every client
//
// Example Usage:
//
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.GlobalRateLimit(middleware.DefaultRateLimitConfig()))
package middleware
