// Package random generates admin tokens.
package random

import (
	"crypto/rand"
	"encoding/hex"
	"sync"

	"github.com/artpar/shellgate/ports"
)

// TokenPrefix marks shellgate admin tokens so they are easy to spot in logs
// and secret scanners.
const TokenPrefix = "sg_"

// tokenBytes is the entropy of a generated token.
const tokenBytes = 24

// Real uses crypto/rand.
type Real struct{}

// Bytes generates n cryptographically secure random bytes.
func (Real) Bytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// Token returns a new prefixed admin token.
func (r Real) Token() (string, error) {
	return token(r)
}

// Fake produces deterministic bytes for tests.
type Fake struct {
	mu      sync.Mutex
	counter int
}

// NewFake creates a fake source.
func NewFake() *Fake {
	return &Fake{}
}

// Bytes returns bytes derived from a call counter.
func (f *Fake) Bytes(n int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.counter++
	b := make([]byte, n)
	for i := range b {
		b[i] = byte((f.counter + i) % 256)
	}
	return b, nil
}

// Token returns a deterministic prefixed token.
func (f *Fake) Token() (string, error) {
	return token(f)
}

func token(src interface{ Bytes(int) ([]byte, error) }) (string, error) {
	b, err := src.Bytes(tokenBytes)
	if err != nil {
		return "", err
	}
	return TokenPrefix + hex.EncodeToString(b), nil
}

var (
	_ ports.TokenSource = Real{}
	_ ports.TokenSource = (*Fake)(nil)
)
