package narstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aweris/narstore/internal/backend"
)

// Backend is the opaque store capability a Store operates through.
// Re-exported from internal/backend for callers that inject their own.
type Backend = backend.Backend

// Process-wide ambient configuration, resolved exactly once. Concurrent
// first callers block on the same guard; later callers reuse the result.
var (
	initOnce sync.Once
	ambient  struct {
		storeDir string
		database string
	}
)

func initAmbient() {
	dataDir := defaultDataDir()
	ambient.storeDir = filepath.Join(dataDir, "store")
	ambient.database = filepath.Join(dataDir, "db", "db.sqlite")
	if dir := os.Getenv("NARSTORE_STORE_DIR"); dir != "" {
		ambient.storeDir = dir
	}
	if db := os.Getenv("NARSTORE_DATABASE"); db != "" {
		ambient.database = db
	}
}

func defaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "narstore")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "narstore")
	}
	return ".narstore"
}

// Store is a handle on one live store connection. All queries, closure
// computations, and exports go through it. Safe for concurrent use.
type Store struct {
	backend      Backend
	storeDir     string
	chunkSize    int
	exportBuffer int
}

// Open resolves ambient configuration (once per process) and connects to
// the store. Fails with ErrStoreUnavailable when the backend cannot be
// opened. Multiple independent Stores may coexist.
func Open(opts ...Option) (*Store, error) {
	initOnce.Do(initAmbient)

	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	be := options.Backend
	if be == nil {
		var err error
		be, err = backend.OpenLocal(options.StoreDir, options.Database)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	return &Store{
		backend:      be,
		storeDir:     be.StoreDir(),
		chunkSize:    options.ChunkSize,
		exportBuffer: options.ExportBuffer,
	}, nil
}

// Close releases the backend connection. The Store must not be used after.
func (s *Store) Close() error {
	return s.backend.Close()
}

// StoreDir returns the canonical store root path.
func (s *Store) StoreDir() string { return s.storeDir }

// FullPath returns the absolute path of a store path on disk.
func (s *Store) FullPath(sp StorePath) string {
	return filepath.Join(s.storeDir, sp.BaseName())
}

// ParseStorePath parses a full path under the store directory into its
// base StorePath. The path is not checked for existence.
func (s *Store) ParseStorePath(path string) (StorePath, error) {
	base, err := toBaseName(s.storeDir, path)
	if err != nil {
		return StorePath{}, err
	}
	return ParseStorePath(base)
}

// FollowStorePath parses a path into its base StorePath, resolving
// symlinks first when the path is outside the store. Paths already inside
// the store are stripped directly, symlink or not.
func (s *Store) FollowStorePath(path string) (StorePath, error) {
	if rel, err := filepath.Rel(s.storeDir, path); err == nil && rel != ".." && !strings.HasPrefix(rel, "../") {
		return s.ParseStorePath(path)
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return StorePath{}, fmt.Errorf("%w: %q: %v", ErrInvalidStorePath, path, err)
	}
	return s.ParseStorePath(resolved)
}

// QueryPathInfo returns the frozen metadata snapshot for a path. Fails
// with ErrPathNotFound if the path is not in the store, and with
// ErrUnsupportedHash if the recorded NAR hash is not SHA-256.
func (s *Store) QueryPathInfo(ctx context.Context, sp StorePath) (*PathInfo, error) {
	raw, err := s.backend.PathInfo(ctx, sp.BaseName())
	if err != nil {
		return nil, s.wrapBackendErr(err)
	}

	if raw.HashAlgo != "sha256" {
		return nil, fmt.Errorf("%w: %s records %q", ErrUnsupportedHash, sp, raw.HashAlgo)
	}
	narHash, err := NewHash(raw.NarHash)
	if err != nil {
		return nil, err
	}

	refs := make([]StorePath, 0, len(raw.References))
	for _, ref := range raw.References {
		rp, err := ParseStorePath(ref)
		if err != nil {
			return nil, err
		}
		refs = append(refs, rp)
	}
	sortStorePaths(refs)

	info := &PathInfo{
		Path:       sp,
		NarHash:    narHash,
		NarSize:    raw.NarSize,
		References: refs,
		CA:         raw.CA,
	}
	if len(raw.Sigs) > 0 {
		info.Sigs = append([]string(nil), raw.Sigs...)
	}
	return info, nil
}

// wrapBackendErr converts backend failures into the typed taxonomy.
// Nothing crosses this boundary untyped.
func (s *Store) wrapBackendErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrPathNotFound), errors.Is(err, ErrUnsupportedHash),
		errors.Is(err, ErrCancelled), errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, ErrIO), errors.Is(err, ErrInvalidStorePath):
		return err
	case errors.Is(err, backend.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrPathNotFound, trimBackendPrefix(err))
	case errors.Is(err, backend.ErrUnavailable):
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, trimBackendPrefix(err))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
}

func trimBackendPrefix(err error) string {
	return strings.TrimPrefix(err.Error(), "backend: ")
}
