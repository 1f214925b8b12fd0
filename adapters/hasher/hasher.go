// Package hasher hashes and verifies admin tokens.
package hasher

import (
	"github.com/artpar/shellgate/ports"
	"golang.org/x/crypto/bcrypt"
)

// Bcrypt hashes tokens with bcrypt.
type Bcrypt struct {
	cost int
}

// NewBcrypt creates a bcrypt hasher. Out-of-range costs fall back to the default.
func NewBcrypt(cost int) *Bcrypt {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Bcrypt{cost: cost}
}

// Hash returns the bcrypt hash of token.
func (h *Bcrypt) Hash(token string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(token), h.cost)
}

// Compare reports whether token matches hash. A malformed hash never matches.
func (h *Bcrypt) Compare(hash []byte, token string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(token)) == nil
}

// IsHash reports whether s looks like a bcrypt hash.
func IsHash(s string) bool {
	_, err := bcrypt.Cost([]byte(s))
	return err == nil
}

var _ ports.Hasher = (*Bcrypt)(nil)
