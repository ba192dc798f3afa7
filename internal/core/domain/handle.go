package domain

import "context"

// FetchFunc retrieves one resource. The context carries cooperative
// cancellation; implementations that cannot observe it may run to completion.
type FetchFunc func(ctx context.Context) (any, error)

// Handle identifies one unit of work in a batch.
// IDs are not required to be unique; duplicate handles are fetched independently.
type Handle struct {
	ID    string
	Fetch FetchFunc
}

// NewHandle creates a handle for the given fetch function.
func NewHandle(id string, fetch FetchFunc) Handle {
	return Handle{ID: id, Fetch: fetch}
}
