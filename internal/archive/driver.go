// Package archive implements the durable side of the marketplace: completed
// auctions and their bids are flattened into keyed records with tags and a
// retention window, and the history is mined for recurring marketplace
// patterns and analytics rollups.
//
// Persistence goes through the Driver interface, an opaque keyed store with
// TTL and tag-based grouping. Backends: in-memory (tests, single node),
// PostgreSQL, and MongoDB. Driver failures are surfaced to the caller and
// never roll back an already-decided auction.
package archive

import (
	"context"
	"time"
)

// SetOptions carries the retention and grouping metadata for a write.
type SetOptions struct {
	// TTL is the retention window; zero means keep forever.
	TTL time.Duration

	// Tags group records for ListTag queries, e.g. "workspace:acme".
	Tags []string
}

// Driver is an opaque durable key-value service with TTL and tags.
type Driver interface {
	// Kind identifies the backend ("memory", "postgres", "mongo").
	Kind() string

	// Set upserts a record. An existing key's value, tags, and retention
	// are replaced.
	Set(ctx context.Context, key string, value []byte, opts SetOptions) error

	// Get returns the record, or *ErrKeyNotFound if absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// ListTag returns all live records carrying the tag, oldest write first.
	ListTag(ctx context.Context, tag string) ([][]byte, error)

	// Incr atomically increments a named counter and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)

	// Close releases backend resources.
	Close(ctx context.Context) error
}

// ErrKeyNotFound is returned when a key is absent or past its retention.
type ErrKeyNotFound struct {
	Key string
}

func (e *ErrKeyNotFound) Error() string {
	return "archive key not found: " + e.Key
}
