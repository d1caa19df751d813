// Package backend provides the Common Groundz API server.

// This package contains no code of its own; the implementation is
// organized into subpackages:

// - cmd/server: API server entry point
// - cmd/cli: admin CLI for maintenance tasks
// - internal/handlers: HTTP request handlers for all API endpoints
// - internal/models: Data models and database schemas
// - internal/hashtag: Hashtag extraction and normalization
// - internal/tags: Hashtag persistence and the related/trending ranker
// - internal/querycache: Query result cache and invalidation policy
// - internal/social: Follow graph and follower/following counts
// - internal/events: Typed event bus wiring mutations to invalidation
// - internal/database: Database connection and migrations
// - internal/cache: Redis client wrapper
// - internal/middleware: HTTP middleware (auth, rate limiting, metrics)
// - internal/logger: Structured logging
// - internal/metrics: Prometheus metrics
// - internal/telemetry: OpenTelemetry tracing

// See the individual package documentation for detailed reference.
package backend
