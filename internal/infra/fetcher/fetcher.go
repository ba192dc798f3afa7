// Package fetcher provides the concrete resource fetchers used to build
// batch handles: local files, HTTP endpoints (REST and JSON-RPC 2.0) and
// gRPC health checks, plus decorators that bound or delay a fetch.
package fetcher

import "errors"

var (
	// ErrThrottled is returned while a host is rate limiting this client
	ErrThrottled = errors.New("throttled")

	// ErrBlocked is returned while a host is refusing this client
	ErrBlocked = errors.New("blocked")

	// ErrTimeout is returned when a fetch exceeds its time limit
	ErrTimeout = errors.New("fetch timed out")
)
