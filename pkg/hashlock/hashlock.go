// Package hashlock provides the secret hashing functions used to lock swap
// escrows on both chains.
package hashlock

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

const (
	// SecretSize is the length in bytes of every swap secret.
	SecretSize = 32

	Sha256    = "sha256"
	Keccak256 = "keccak256"
)

// Oracle hashes secrets with a fixed hash function.
type Oracle struct {
	name string
	hash func([]byte) []byte
}

// NewOracle returns the oracle for the given hash function name.
func NewOracle(name string) (*Oracle, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case Sha256, "":
		return &Oracle{Sha256, sha256Sum}, nil
	case Keccak256:
		return &Oracle{Keccak256, keccak256Sum}, nil
	default:
		return nil, fmt.Errorf("unsupported hash function %q", name)
	}
}

// Name returns the hash function name.
func (o *Oracle) Name() string {
	return o.name
}

// Hash returns the hash of the secret.
func (o *Oracle) Hash(secret []byte) []byte {
	return o.hash(secret)
}

// Verify returns whether the secret is the preimage of secretHash. The
// comparison runs in constant time.
func (o *Oracle) Verify(secret, secretHash []byte) bool {
	if len(secret) != SecretSize || len(secretHash) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(o.hash(secret), secretHash) == 1
}

// NewSecret returns a fresh random secret.
func NewSecret() ([]byte, error) {
	secret := make([]byte, SecretSize)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate secret: %w", err)
	}
	return secret, nil
}

func sha256Sum(buf []byte) []byte {
	h := sha256.Sum256(buf)
	return h[:]
}

func keccak256Sum(buf []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(buf)
	return h.Sum(nil)
}
