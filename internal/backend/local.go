package backend

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/aweris/narstore/internal/nar"
	"github.com/aweris/narstore/internal/nixbase32"
)

const defaultCacheSize = 1024

// Same charset the store path grammar allows for the name portion.
var nameRegexp = regexp.MustCompile(`^[A-Za-z0-9+\-._?=]+$`)

// Metadata schema. References may only point at registered paths, so the
// reference set of any valid path always resolves within the same store.
const schema = `
CREATE TABLE IF NOT EXISTS ValidPaths (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	path     TEXT UNIQUE NOT NULL,
	hashAlgo TEXT NOT NULL DEFAULT 'sha256',
	hash     BLOB NOT NULL,
	narSize  INTEGER NOT NULL,
	sigs     TEXT NOT NULL DEFAULT '',
	ca       TEXT NOT NULL DEFAULT '',
	deriver  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS Refs (
	referrer  INTEGER NOT NULL REFERENCES ValidPaths(id) ON DELETE CASCADE,
	reference INTEGER NOT NULL REFERENCES ValidPaths(id),
	PRIMARY KEY (referrer, reference)
);

CREATE INDEX IF NOT EXISTS IndexReference ON Refs(reference);

CREATE TABLE IF NOT EXISTS DerivationOutputs (
	drv    INTEGER NOT NULL REFERENCES ValidPaths(id) ON DELETE CASCADE,
	output TEXT NOT NULL,
	path   TEXT NOT NULL,
	PRIMARY KEY (drv, output)
);

CREATE INDEX IF NOT EXISTS IndexDerivationOutputPath ON DerivationOutputs(path);
`

// LocalBackend serves a store rooted at a local directory, with path
// metadata in a sqlite database. Safe for concurrent readers; writes are
// serialized by sqlite itself.
type LocalBackend struct {
	storeDir string
	db       *sql.DB
	cache    *infoCache
	logger   *slog.Logger
}

// OpenLocal opens (creating if necessary) a local store. dbPath is the
// sqlite database file; storeDir holds the object trees.
func OpenLocal(storeDir, dbPath string) (*LocalBackend, error) {
	if err := os.MkdirAll(storeDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create store dir: %v", ErrUnavailable, err)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create db dir: %v", ErrUnavailable, err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", ErrUnavailable, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: init schema: %v", ErrUnavailable, err)
	}

	b := &LocalBackend{
		storeDir: filepath.Clean(storeDir),
		db:       db,
		cache:    newInfoCache(defaultCacheSize),
		logger:   slog.Default().With("component", "backend", "store", storeDir),
	}
	b.logger.Debug("opened local store", "db", dbPath)
	return b, nil
}

func (b *LocalBackend) StoreDir() string { return b.storeDir }

func (b *LocalBackend) Close() error { return b.db.Close() }

// PathInfo returns the metadata record for baseName, or ErrNotFound.
func (b *LocalBackend) PathInfo(ctx context.Context, baseName string) (*Info, error) {
	if info, ok := b.cache.get(baseName); ok {
		return info, nil
	}

	var (
		id      int64
		info    = Info{BaseName: baseName}
		sigs    string
		deriver string
	)
	row := b.db.QueryRowContext(ctx,
		`SELECT id, hashAlgo, hash, narSize, sigs, ca, deriver FROM ValidPaths WHERE path = ?`,
		baseName)
	err := row.Scan(&id, &info.HashAlgo, &info.NarHash, &info.NarSize, &sigs, &info.CA, &deriver)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, baseName)
	}
	if err != nil {
		return nil, fmt.Errorf("query path info %s: %w", baseName, err)
	}
	if sigs != "" {
		info.Sigs = strings.Split(sigs, " ")
	}
	info.Deriver = deriver

	rows, err := b.db.QueryContext(ctx,
		`SELECT v.path FROM Refs r JOIN ValidPaths v ON v.id = r.reference
		 WHERE r.referrer = ? ORDER BY v.path`, id)
	if err != nil {
		return nil, fmt.Errorf("query references %s: %w", baseName, err)
	}
	defer rows.Close()
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, fmt.Errorf("scan reference: %w", err)
		}
		info.References = append(info.References, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query references %s: %w", baseName, err)
	}

	b.cache.add(baseName, &info)
	return &info, nil
}

// Referrers returns the base names of paths directly referencing baseName.
func (b *LocalBackend) Referrers(ctx context.Context, baseName string) ([]string, error) {
	if _, err := b.pathID(ctx, baseName); err != nil {
		return nil, err
	}
	return b.queryStrings(ctx,
		`SELECT v.path FROM Refs r
		 JOIN ValidPaths v ON v.id = r.referrer
		 JOIN ValidPaths t ON t.id = r.reference
		 WHERE t.path = ? ORDER BY v.path`, baseName)
}

// Outputs returns the registered build outputs of a derivation path that
// are themselves valid, in output-name order.
func (b *LocalBackend) Outputs(ctx context.Context, baseName string) ([]string, error) {
	id, err := b.pathID(ctx, baseName)
	if err != nil {
		return nil, err
	}
	return b.queryStrings(ctx,
		`SELECT d.path FROM DerivationOutputs d
		 JOIN ValidPaths v ON v.path = d.path
		 WHERE d.drv = ? ORDER BY d.output`, id)
}

// Derivers returns the valid derivation paths known to produce baseName:
// the recorded deriver plus any derivation with a matching registered output.
func (b *LocalBackend) Derivers(ctx context.Context, baseName string) ([]string, error) {
	if _, err := b.pathID(ctx, baseName); err != nil {
		return nil, err
	}
	return b.queryStrings(ctx,
		`SELECT DISTINCT p.path FROM ValidPaths p
		 WHERE p.path IN (SELECT deriver FROM ValidPaths WHERE path = ?1)
		    OR p.id IN (SELECT drv FROM DerivationOutputs WHERE path = ?1)
		 ORDER BY p.path`, baseName)
}

// Object returns the on-disk tree of the object. The returned fs.FS
// supports symlinks via fs.ReadLinkFS.
func (b *LocalBackend) Object(baseName string) (fs.FS, error) {
	full := filepath.Join(b.storeDir, baseName)
	if _, err := os.Lstat(full); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, baseName)
		}
		return nil, err
	}
	// Root the FS at the parent so the object itself (which may be a bare
	// file or symlink, not a directory) is addressable as a name.
	return os.DirFS(b.storeDir), nil
}

func (b *LocalBackend) pathID(ctx context.Context, baseName string) (int64, error) {
	var id int64
	err := b.db.QueryRowContext(ctx, `SELECT id FROM ValidPaths WHERE path = ?`, baseName).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, baseName)
	}
	if err != nil {
		return 0, fmt.Errorf("query path id %s: %w", baseName, err)
	}
	return id, nil
}

func (b *LocalBackend) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Register records metadata for a path whose content already sits under the
// store directory. References must already be registered, except for a
// self-reference. outputs maps output names to store paths for derivations.
func (b *LocalBackend) Register(ctx context.Context, info *Info, outputs map[string]string) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("register %s: %w", info.BaseName, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO ValidPaths (path, hashAlgo, hash, narSize, sigs, ca, deriver)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		info.BaseName, info.HashAlgo, info.NarHash, info.NarSize,
		strings.Join(info.Sigs, " "), info.CA, info.Deriver)
	if err != nil {
		return fmt.Errorf("register %s: %w", info.BaseName, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("register %s: %w", info.BaseName, err)
	}

	for _, ref := range info.References {
		refID := id
		if ref != info.BaseName {
			err := tx.QueryRowContext(ctx, `SELECT id FROM ValidPaths WHERE path = ?`, ref).Scan(&refID)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: reference %s of %s", ErrNotFound, ref, info.BaseName)
			}
			if err != nil {
				return fmt.Errorf("register %s: %w", info.BaseName, err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO Refs (referrer, reference) VALUES (?, ?)`, id, refID); err != nil {
			return fmt.Errorf("register %s: %w", info.BaseName, err)
		}
	}

	for output, path := range outputs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO DerivationOutputs (drv, output, path) VALUES (?, ?, ?)`,
			id, output, path); err != nil {
			return fmt.Errorf("register %s: %w", info.BaseName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("register %s: %w", info.BaseName, err)
	}
	b.cache.remove(info.BaseName)
	b.logger.Debug("registered path", "path", info.BaseName, "narSize", info.NarSize)
	return nil
}

// AddOptions controls ingestion of a source tree.
type AddOptions struct {
	Name       string   // object name; defaults to the source base name
	References []string // base names of direct dependencies
	Sigs       []string
	Deriver    string
	Outputs    map[string]string
}

// Add ingests a file or tree into the store: computes its NAR hash and
// size, derives the store path, copies the content under the store dir,
// and registers its metadata. Returns the resulting record.
func (b *LocalBackend) Add(ctx context.Context, src string, opts AddOptions) (*Info, error) {
	src = filepath.Clean(src)
	name := opts.Name
	if name == "" {
		name = filepath.Base(src)
	}
	if !nameRegexp.MatchString(name) {
		return nil, fmt.Errorf("invalid object name %q", name)
	}

	h := sha256.New()
	counter := &countingWriter{w: h}
	parent, base := filepath.Split(src)
	if parent == "" {
		parent = "."
	}
	if err := nar.Dump(counter, os.DirFS(parent), base); err != nil {
		return nil, fmt.Errorf("dump %s: %w", src, err)
	}
	narHash := h.Sum(nil)

	baseName := makeStorePath(b.storeDir, narHash, name, opts.References)
	dst := filepath.Join(b.storeDir, baseName)
	if _, err := os.Lstat(dst); err == nil {
		// Same content and name already present: nothing to copy.
		if info, err := b.PathInfo(ctx, baseName); err == nil {
			return info, nil
		}
	} else if err := copyPath(src, dst); err != nil {
		return nil, fmt.Errorf("copy %s: %w", src, err)
	}

	info := &Info{
		BaseName:   baseName,
		HashAlgo:   "sha256",
		NarHash:    narHash,
		NarSize:    counter.n,
		References: opts.References,
		Sigs:       opts.Sigs,
		Deriver:    opts.Deriver,
	}
	if err := b.Register(ctx, info, opts.Outputs); err != nil {
		return nil, err
	}
	return info, nil
}

// makeStorePath derives the base name for an ingested object: the full
// digest of a fingerprint over the NAR hash, store dir, name, and sorted
// references, folded to 20 bytes and base-32 encoded.
func makeStorePath(storeDir string, narHash []byte, name string, refs []string) string {
	fingerprint := fmt.Sprintf("source:sha256:%x:%s:%s:%s",
		narHash, storeDir, strings.Join(refs, ","), name)
	digest := sha256.Sum256([]byte(fingerprint))
	return nixbase32.Encode(nixbase32.CompressHash(digest[:], 20)) + "-" + name
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// copyPath copies a file, symlink, or directory tree. Regular files keep
// only their executable bit, matching what the NAR encoding preserves.
func copyPath(src, dst string) error {
	fi, err := os.Lstat(src)
	if err != nil {
		return err
	}
	switch {
	case fi.Mode().IsRegular():
		return copyFile(src, dst, fi)
	case fi.Mode()&os.ModeSymlink != 0:
		target, err := os.Readlink(src)
		if err != nil {
			return err
		}
		return os.Symlink(target, dst)
	case fi.IsDir():
		if err := os.Mkdir(dst, 0o755); err != nil {
			return err
		}
		entries, err := os.ReadDir(src)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if err := copyPath(filepath.Join(src, entry.Name()), filepath.Join(dst, entry.Name())); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported file type %s: %s", fi.Mode().Type(), src)
	}
}

func copyFile(src, dst string, fi os.FileInfo) error {
	mode := os.FileMode(0o644)
	if fi.Mode()&0o111 != 0 {
		mode = 0o755
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
