package types

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// HashSize is the size in bytes of every hash in the data model.
const HashSize = sha256.Size

// Hash is a SHA-256 digest identifying transactions, headers and scripts.
type Hash [HashSize]byte

// Sum returns the SHA-256 digest of b.
func Sum(b []byte) Hash {
	return sha256.Sum256(b)
}

// HashFromBytes copies b into a Hash. b must be exactly HashSize long.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, fmt.Errorf("invalid hash length: want %d, got %d", HashSize, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// HashFromHex parses a 0x-prefixed or bare hex string.
func HashFromHex(s string) (Hash, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return Hash{}, fmt.Errorf("invalid hash %q: %w", s, err)
	}
	return HashFromBytes(b)
}

func (h Hash) Bytes() []byte {
	return h[:]
}

func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Compare orders hashes bytewise.
func (h Hash) Compare(o Hash) int {
	return bytes.Compare(h[:], o[:])
}

func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// Short returns the first four bytes in hex, for log lines.
func (h Hash) Short() string {
	return hex.EncodeToString(h[:4])
}
