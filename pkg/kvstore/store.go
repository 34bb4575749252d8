// Package kvstore provides the persistent key-value port used to
// remember session state across runs: cached fixtures, completed
// matchdays, and serialized predictions. Values are opaque JSON blobs;
// the key scheme lives in keys.go.
package kvstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key has no value.
var ErrNotFound = errors.New("kvstore: key not found")

// Store is a string-keyed blob store with read/overwrite semantics.
// No transactional guarantees are assumed.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
