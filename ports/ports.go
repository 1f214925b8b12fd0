// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/artpar/shellgate/core/contract"
	"github.com/artpar/shellgate/core/store"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// Hasher hashes and verifies secrets such as the admin token.
type Hasher interface {
	Hash(plaintext string) ([]byte, error)
	Compare(hash []byte, plaintext string) bool
}

// TokenSource generates new secret tokens.
type TokenSource interface {
	Token() (string, error)
}

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// ErrNotFound is returned by KVStore.Get when a key is absent.
var ErrNotFound = errors.New("not found")

// KVStore is a persistent key-value store backing the override blob.
type KVStore interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
}

// -----------------------------------------------------------------------------
// Module Loading Ports
// -----------------------------------------------------------------------------

// ModuleExports is what a loaded pluggable module exposes to the host.
type ModuleExports struct {
	// Tab is the module's contract shape, validated before the module is trusted.
	Tab contract.Candidate

	// Slices are state namespaces injected while the module is mounted.
	Slices map[string]store.Reducer
}

// ModuleLoader fetches a pluggable module from a resolved address.
type ModuleLoader interface {
	Load(ctx context.Context, address string) (ModuleExports, error)
}

// ModuleLoaderFunc adapts a function to ModuleLoader.
type ModuleLoaderFunc func(ctx context.Context, address string) (ModuleExports, error)

// Load calls f.
func (f ModuleLoaderFunc) Load(ctx context.Context, address string) (ModuleExports, error) {
	return f(ctx, address)
}
