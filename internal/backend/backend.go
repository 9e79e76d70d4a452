// Package backend defines the opaque store capability the public layer
// operates through, plus two implementations: a local store (on-disk object
// trees with a sqlite metadata database) and an in-memory store for tests.
//
// Backend errors stay package-local; the public layer translates them into
// its typed taxonomy at the boundary.
package backend

import (
	"context"
	"errors"
	"io/fs"
)

var (
	ErrNotFound    = errors.New("backend: path not found")
	ErrUnavailable = errors.New("backend: store unavailable")
)

// Info is the raw per-path metadata record as the backend stores it. The
// hash algorithm is carried verbatim; the public layer decides which
// algorithms it accepts.
type Info struct {
	BaseName   string
	HashAlgo   string // e.g. "sha256"
	NarHash    []byte // raw digest bytes
	NarSize    int64
	References []string // base names of direct dependencies
	Sigs       []string
	CA         string // rendered content address, "" if none
	Deriver    string // base name of the deriving object, "" if unknown
}

// Backend is one live connection to a store. Implementations must be safe
// for concurrent readers.
type Backend interface {
	// StoreDir returns the canonical store root path.
	StoreDir() string

	// PathInfo returns the metadata record for a base name, or ErrNotFound.
	PathInfo(ctx context.Context, baseName string) (*Info, error)

	// Referrers returns the base names of paths that directly reference
	// baseName (the inverse reference index).
	Referrers(ctx context.Context, baseName string) ([]string, error)

	// Outputs returns the build outputs registered for a derivation path.
	// Empty for non-derivation paths.
	Outputs(ctx context.Context, baseName string) ([]string, error)

	// Derivers returns the derivation paths known to produce baseName,
	// filtered to those present in the store.
	Derivers(ctx context.Context, baseName string) ([]string, error)

	// Object returns a filesystem for serializing the object's tree. The
	// object (which may be a bare file or symlink rather than a directory)
	// is the entry named baseName at the root of the returned fs.FS.
	Object(baseName string) (fs.FS, error)

	Close() error
}
