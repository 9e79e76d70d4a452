package narstore

import (
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
)

// HashPartLen is the length of the hash portion of a store path base name.
const HashPartLen = 32

// Store path hashes use a special base-32 alphabet ('e', 'o', 'u', 't'
// are banned).
var (
	hashPartRegexp = regexp.MustCompile(`^[0123456789abcdfghijklmnpqrsvwxyz]{32}$`)
	baseNameRegexp = regexp.MustCompile(`^[0123456789abcdfghijklmnpqrsvwxyz]{32}-[A-Za-z0-9+\-._?=]+$`)
)

// StorePath identifies one immutable object in the store by its base name,
// e.g. "ia70ss13m22znbl8khrf2hq72qmh5drr-ruby-2.7.5". The zero value is not
// a valid store path; construct via ParseStorePath. Two StorePaths are equal
// iff their base names are byte-identical, so the type is usable as a map key.
type StorePath struct {
	baseName string
}

// ParseStorePath validates a base name and returns the StorePath for it.
// The path may or may not actually exist in any store.
func ParseStorePath(baseName string) (StorePath, error) {
	if !baseNameRegexp.MatchString(baseName) {
		return StorePath{}, fmt.Errorf("%w: %q: malformed base name", ErrInvalidStorePath, baseName)
	}
	return StorePath{baseName: baseName}, nil
}

// MustParseStorePath is ParseStorePath for known-good literals. Panics on
// invalid input; intended for tests and constants.
func MustParseStorePath(baseName string) StorePath {
	sp, err := ParseStorePath(baseName)
	if err != nil {
		panic(err)
	}
	return sp
}

// BaseName returns the store-relative identifier of the path.
func (sp StorePath) BaseName() string { return sp.baseName }

// String returns the canonical encoding, which is the base name.
func (sp StorePath) String() string { return sp.baseName }

// IsZero reports whether sp is the zero (invalid) StorePath.
func (sp StorePath) IsZero() bool { return sp.baseName == "" }

// HashPart returns the 32-character hash portion of the base name.
func (sp StorePath) HashPart() StorePathHash {
	return StorePathHash(sp.baseName[:HashPartLen])
}

// Name returns the human-readable portion of the base name.
func (sp StorePath) Name() string {
	return sp.baseName[HashPartLen+1:]
}

// StorePathHash is the fixed-length hash portion of a store path,
// e.g. "ia70ss13m22znbl8khrf2hq72qmh5drr".
type StorePathHash string

// ParseStorePathHash validates a standalone store path hash.
func ParseStorePathHash(s string) (StorePathHash, error) {
	if !hashPartRegexp.MatchString(s) {
		return "", fmt.Errorf("%w: %q: malformed path hash", ErrInvalidStorePath, s)
	}
	return StorePathHash(s), nil
}

func (h StorePathHash) String() string { return string(h) }

// toBaseName strips the store directory from a full path and returns the
// base name of the first component below it. The path does not need to
// exist; it just needs to be lexically inside the store.
func toBaseName(storeDir, path string) (string, error) {
	rel, err := filepath.Rel(storeDir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%w: %q: path is not in store directory", ErrInvalidStorePath, path)
	}
	if rel == "." {
		return "", fmt.Errorf("%w: %q: path is store directory itself", ErrInvalidStorePath, path)
	}
	first := rel
	if i := strings.IndexByte(rel, filepath.Separator); i >= 0 {
		first = rel[:i]
	}
	if len(first) < HashPartLen {
		return "", fmt.Errorf("%w: %q: path is too short", ErrInvalidStorePath, path)
	}
	return first, nil
}

// sortStorePaths orders paths by canonical encoding, in place.
func sortStorePaths(paths []StorePath) {
	slices.SortFunc(paths, func(a, b StorePath) int {
		return strings.Compare(a.baseName, b.baseName)
	})
}
