// Package nixbase32 implements the base-32 scheme used for store path
// hashes and NAR digests: alphabet "0123456789abcdfghijklmnpqrsvwxyz"
// ('e', 'o', 'u', 't' banned), little-endian bit order, most significant
// character first.
package nixbase32

import (
	"fmt"
	"strings"
)

const Alphabet = "0123456789abcdfghijklmnpqrsvwxyz"

// EncodedLen returns the number of characters needed for n raw bytes.
func EncodedLen(n int) int { return (n*8 + 4) / 5 }

// Encode encodes raw bytes.
func Encode(raw []byte) string {
	n := EncodedLen(len(raw))
	var sb strings.Builder
	sb.Grow(n)
	for i := n - 1; i >= 0; i-- {
		b := i * 5
		j := b / 8
		k := b % 8
		c := raw[j] >> k
		if j+1 < len(raw) {
			c |= raw[j+1] << (8 - k)
		}
		sb.WriteByte(Alphabet[c&0x1f])
	}
	return sb.String()
}

// Decode decodes s into size raw bytes.
func Decode(s string, size int) ([]byte, error) {
	if len(s) != EncodedLen(size) {
		return nil, fmt.Errorf("nixbase32: digest %q has length %d, want %d", s, len(s), EncodedLen(size))
	}
	raw := make([]byte, size)
	for i := 0; i < len(s); i++ {
		c := s[len(s)-i-1]
		d := strings.IndexByte(Alphabet, c)
		if d < 0 {
			return nil, fmt.Errorf("nixbase32: invalid character %q", c)
		}
		b := i * 5
		j := b / 8
		k := b % 8
		raw[j] |= byte(d) << k
		if k > 3 {
			if j+1 < size {
				raw[j+1] |= byte(d) >> (8 - k)
			} else if byte(d)>>(8-k) != 0 {
				return nil, fmt.Errorf("nixbase32: invalid digest %q", s)
			}
		}
	}
	return raw, nil
}

// CompressHash folds a digest down to size bytes by XOR, the scheme used
// to derive the 20-byte store path hash from a full 32-byte digest.
func CompressHash(raw []byte, size int) []byte {
	out := make([]byte, size)
	for i, b := range raw {
		out[i%size] ^= b
	}
	return out
}
