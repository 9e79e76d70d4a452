package narstore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/aweris/narstore/internal/nixbase32"
)

// Hash is a fixed-width SHA-256 digest. Other algorithms are rejected at
// the query boundary, so a Hash is always exactly sha256.Size bytes.
type Hash [sha256.Size]byte

// NewHash copies a raw 32-byte digest into a Hash.
func NewHash(raw []byte) (Hash, error) {
	var h Hash
	if len(raw) != sha256.Size {
		return h, fmt.Errorf("%w: digest is %d bytes, want %d", ErrUnsupportedHash, len(raw), sha256.Size)
	}
	copy(h[:], raw)
	return h, nil
}

// Sum256 hashes data and returns the digest.
func Sum256(data []byte) Hash {
	return Hash(sha256.Sum256(data))
}

// Bytes returns the raw digest.
func (h Hash) Bytes() []byte { return h[:] }

// String renders the hash in the typed base-32 form used by store tooling,
// e.g. "sha256:1b4sb93wp679q4zx9k1ignby1yna3z7c4c2ri3wphylbc6dwdpc3".
func (h Hash) String() string {
	return "sha256:" + nixbase32.Encode(h[:])
}

// Hex renders the hash as "sha256:<lowercase hex>".
func (h Hash) Hex() string {
	return "sha256:" + hex.EncodeToString(h[:])
}

// ParseHash parses either rendering produced by String or Hex. The "sha256:"
// prefix is required; any other algorithm prefix is ErrUnsupportedHash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	algo, rest, ok := strings.Cut(s, ":")
	if !ok {
		return h, fmt.Errorf("%w: %q: missing algorithm prefix", ErrUnsupportedHash, s)
	}
	if algo != "sha256" {
		return h, fmt.Errorf("%w: %q", ErrUnsupportedHash, algo)
	}
	switch len(rest) {
	case hex.EncodedLen(sha256.Size):
		raw, err := hex.DecodeString(rest)
		if err != nil {
			return h, fmt.Errorf("%w: %q: bad hex digest", ErrUnsupportedHash, s)
		}
		copy(h[:], raw)
		return h, nil
	case nixbase32.EncodedLen(sha256.Size):
		raw, err := nixbase32.Decode(rest, sha256.Size)
		if err != nil {
			return h, fmt.Errorf("%w: %v", ErrUnsupportedHash, err)
		}
		copy(h[:], raw)
		return h, nil
	default:
		return h, fmt.Errorf("%w: %q: bad digest length", ErrUnsupportedHash, s)
	}
}
