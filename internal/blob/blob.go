// Package blob defines the object storage port shared by the record store and
// the worker pipeline, with an S3 implementation and an in-memory one for
// tests and local runs.
package blob

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates no object exists at the requested key.
	ErrNotFound = errors.New("object not found")
	// ErrPreconditionFailed indicates a conditional write lost to a
	// concurrent writer (the stored ETag no longer matches).
	ErrPreconditionFailed = errors.New("precondition failed")
)

// Store is a content-addressable key/bytes store with list-by-prefix.
// Every write is a whole-object replace.
type Store interface {
	// Get returns the object body and its current ETag.
	Get(ctx context.Context, key string) ([]byte, string, error)

	// Put replaces the object unconditionally.
	Put(ctx context.Context, key string, body []byte, contentType string) error

	// PutIfMatch replaces the object only while its ETag still equals
	// ifMatch, returning ErrPreconditionFailed otherwise.
	PutIfMatch(ctx context.Context, key string, body []byte, contentType, ifMatch string) error

	// Delete removes the object; deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// ListKeys returns every key under the prefix.
	ListKeys(ctx context.Context, prefix string) ([]string, error)

	// PublicURL returns the externally reachable URL for a key.
	PublicURL(key string) string
}
