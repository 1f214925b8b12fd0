// Package idgen provides ports.IDGenerator implementations.
package idgen

import (
	"strconv"
	"sync/atomic"

	"github.com/artpar/shellgate/ports"
	"github.com/google/uuid"
)

// UUID generates random v4 UUIDs, optionally prefixed ("tab-3f2a...").
type UUID struct {
	Prefix string
}

// New returns a fresh identifier.
func (g UUID) New() string {
	id := uuid.NewString()
	if g.Prefix == "" {
		return id
	}
	return g.Prefix + "-" + id
}

// Sequential yields prefix1, prefix2, ... and is meant for tests.
type Sequential struct {
	prefix string
	n      atomic.Uint64
}

// NewSequential creates a sequential generator.
func NewSequential(prefix string) *Sequential {
	return &Sequential{prefix: prefix}
}

// New returns the next identifier.
func (s *Sequential) New() string {
	return s.prefix + strconv.FormatUint(s.n.Add(1), 10)
}

var (
	_ ports.IDGenerator = UUID{}
	_ ports.IDGenerator = (*Sequential)(nil)
)
