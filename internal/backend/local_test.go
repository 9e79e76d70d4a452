package backend

import (
	"bytes"
	"crypto/sha256"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aweris/narstore/internal/nar"
)

func newLocal(t *testing.T) *LocalBackend {
	t.Helper()
	dir := t.TempDir()
	be, err := OpenLocal(filepath.Join(dir, "store"), filepath.Join(dir, "db", "narstore.db"))
	require.NoError(t, err)
	t.Cleanup(func() { be.Close() })
	return be
}

func writeFile(t *testing.T, dir, name, content string, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), mode))
	return path
}

func TestOpenLocal_CreatesDirectories(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	be, err := OpenLocal(filepath.Join(dir, "deep", "store"), filepath.Join(dir, "deep", "db", "meta.db"))
	require.NoError(t, err)
	defer be.Close()

	fi, err := os.Stat(filepath.Join(dir, "deep", "store"))
	require.NoError(t, err)
	assert.True(t, fi.IsDir())
	assert.Equal(t, filepath.Join(dir, "deep", "store"), be.StoreDir())
}

func TestAdd_RegularFile(t *testing.T) {
	t.Parallel()
	be := newLocal(t)
	src := writeFile(t, t.TempDir(), "hello.txt", "hello store\n", 0o644)

	info, err := be.Add(t.Context(), src, AddOptions{})
	require.NoError(t, err)

	assert.Equal(t, "sha256", info.HashAlgo)
	assert.Len(t, info.NarHash, sha256.Size)
	assert.Positive(t, info.NarSize)
	hashPart, name, ok := strings.Cut(info.BaseName, "-")
	require.True(t, ok)
	assert.Len(t, hashPart, 32)
	assert.Equal(t, "hello.txt", name)

	// The object lands under the store directory.
	data, err := os.ReadFile(filepath.Join(be.StoreDir(), info.BaseName))
	require.NoError(t, err)
	assert.Equal(t, "hello store\n", string(data))
}

func TestAdd_DirectoryTreeWithReferences(t *testing.T) {
	t.Parallel()
	be := newLocal(t)
	work := t.TempDir()

	depSrc := writeFile(t, work, "libdep", "dependency", 0o644)
	dep, err := be.Add(t.Context(), depSrc, AddOptions{})
	require.NoError(t, err)

	writeFile(t, work, "pkg/bin/app", "#!/bin/sh\nexit 0\n", 0o755)
	writeFile(t, work, "pkg/share/readme", "docs", 0o644)
	info, err := be.Add(t.Context(), filepath.Join(work, "pkg"), AddOptions{
		References: []string{dep.BaseName},
		Sigs:       []string{"cache-1:c2ln"},
	})
	require.NoError(t, err)

	got, err := be.PathInfo(t.Context(), info.BaseName)
	require.NoError(t, err)
	assert.Equal(t, info.NarHash, got.NarHash)
	assert.Equal(t, info.NarSize, got.NarSize)
	assert.Equal(t, []string{dep.BaseName}, got.References)
	assert.Equal(t, []string{"cache-1:c2ln"}, got.Sigs)

	// Executable bit survives ingestion.
	fi, err := os.Stat(filepath.Join(be.StoreDir(), info.BaseName, "bin", "app"))
	require.NoError(t, err)
	assert.NotZero(t, fi.Mode()&0o111)
}

func TestAdd_Idempotent(t *testing.T) {
	t.Parallel()
	be := newLocal(t)
	src := writeFile(t, t.TempDir(), "stable", "same bytes", 0o644)

	first, err := be.Add(t.Context(), src, AddOptions{})
	require.NoError(t, err)
	second, err := be.Add(t.Context(), src, AddOptions{})
	require.NoError(t, err)

	assert.Equal(t, first.BaseName, second.BaseName)
	assert.Equal(t, first.NarHash, second.NarHash)
}

func TestAdd_DifferentNamesDifferentPaths(t *testing.T) {
	t.Parallel()
	be := newLocal(t)
	src := writeFile(t, t.TempDir(), "orig", "same bytes", 0o644)

	a, err := be.Add(t.Context(), src, AddOptions{Name: "first"})
	require.NoError(t, err)
	b, err := be.Add(t.Context(), src, AddOptions{Name: "second"})
	require.NoError(t, err)
	assert.NotEqual(t, a.BaseName, b.BaseName)
}

func TestAdd_RejectsInvalidName(t *testing.T) {
	t.Parallel()
	be := newLocal(t)
	src := writeFile(t, t.TempDir(), "f", "x", 0o644)

	_, err := be.Add(t.Context(), src, AddOptions{Name: "bad name with spaces"})
	assert.ErrorContains(t, err, "invalid object name")
}

func TestPathInfo_Missing(t *testing.T) {
	t.Parallel()
	be := newLocal(t)
	_, err := be.PathInfo(t.Context(), "0000000000000000000000000000000a-ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegister_UnknownReferenceFails(t *testing.T) {
	t.Parallel()
	be := newLocal(t)
	err := be.Register(t.Context(), &Info{
		BaseName: "1111111111111111111111111111111a-pkg",
		HashAlgo: "sha256",
		NarHash:  make([]byte, sha256.Size),
		NarSize:  1,
		References: []string{
			"2222222222222222222222222222222a-missing",
		},
	}, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegister_SelfReference(t *testing.T) {
	t.Parallel()
	be := newLocal(t)
	self := "3333333333333333333333333333333a-self"
	err := be.Register(t.Context(), &Info{
		BaseName:   self,
		HashAlgo:   "sha256",
		NarHash:    make([]byte, sha256.Size),
		NarSize:    1,
		References: []string{self},
	}, nil)
	require.NoError(t, err)

	info, err := be.PathInfo(t.Context(), self)
	require.NoError(t, err)
	assert.Equal(t, []string{self}, info.References)
}

func TestReferrers(t *testing.T) {
	t.Parallel()
	be := newLocal(t)
	work := t.TempDir()

	lib, err := be.Add(t.Context(), writeFile(t, work, "lib", "lib", 0o644), AddOptions{})
	require.NoError(t, err)
	app1, err := be.Add(t.Context(), writeFile(t, work, "app1", "a1", 0o644),
		AddOptions{References: []string{lib.BaseName}})
	require.NoError(t, err)
	app2, err := be.Add(t.Context(), writeFile(t, work, "app2", "a2", 0o644),
		AddOptions{References: []string{lib.BaseName}})
	require.NoError(t, err)

	got, err := be.Referrers(t.Context(), lib.BaseName)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{app1.BaseName, app2.BaseName}, got)

	none, err := be.Referrers(t.Context(), app1.BaseName)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = be.Referrers(t.Context(), "4444444444444444444444444444444a-ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOutputsAndDerivers(t *testing.T) {
	t.Parallel()
	be := newLocal(t)
	work := t.TempDir()

	out, err := be.Add(t.Context(), writeFile(t, work, "pkg", "built", 0o644), AddOptions{})
	require.NoError(t, err)
	drv, err := be.Add(t.Context(), writeFile(t, work, "pkg.drv", "Derive(...)", 0o644),
		AddOptions{Outputs: map[string]string{"out": out.BaseName}})
	require.NoError(t, err)

	outputs, err := be.Outputs(t.Context(), drv.BaseName)
	require.NoError(t, err)
	assert.Equal(t, []string{out.BaseName}, outputs)

	derivers, err := be.Derivers(t.Context(), out.BaseName)
	require.NoError(t, err)
	assert.Equal(t, []string{drv.BaseName}, derivers)

	// A non-derivation path has no outputs, and a path with no known
	// producer has no derivers. Neither is an error.
	outputs, err = be.Outputs(t.Context(), out.BaseName)
	require.NoError(t, err)
	assert.Empty(t, outputs)
	derivers, err = be.Derivers(t.Context(), drv.BaseName)
	require.NoError(t, err)
	assert.Empty(t, derivers)
}

func TestDerivers_FromDeriverField(t *testing.T) {
	t.Parallel()
	be := newLocal(t)
	work := t.TempDir()

	drv, err := be.Add(t.Context(), writeFile(t, work, "gen.drv", "Derive(...)", 0o644), AddOptions{})
	require.NoError(t, err)
	out, err := be.Add(t.Context(), writeFile(t, work, "gen-out", "output", 0o644),
		AddOptions{Deriver: drv.BaseName})
	require.NoError(t, err)

	derivers, err := be.Derivers(t.Context(), out.BaseName)
	require.NoError(t, err)
	assert.Equal(t, []string{drv.BaseName}, derivers)
}

func TestObject_DumpMatchesRegisteredHash(t *testing.T) {
	t.Parallel()
	be := newLocal(t)
	work := t.TempDir()
	writeFile(t, work, "tree/a", "alpha", 0o644)
	writeFile(t, work, "tree/b/c", "nested", 0o755)

	info, err := be.Add(t.Context(), filepath.Join(work, "tree"), AddOptions{})
	require.NoError(t, err)

	fsys, err := be.Object(info.BaseName)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, nar.Dump(&buf, fsys, info.BaseName))

	sum := sha256.Sum256(buf.Bytes())
	assert.Equal(t, info.NarHash, []byte(sum[:]))
	assert.Equal(t, int64(buf.Len()), info.NarSize)
}

func TestObject_Missing(t *testing.T) {
	t.Parallel()
	be := newLocal(t)
	_, err := be.Object("5555555555555555555555555555555a-ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAdd_SymlinkObject(t *testing.T) {
	t.Parallel()
	be := newLocal(t)
	work := t.TempDir()
	link := filepath.Join(work, "link")
	require.NoError(t, os.Symlink("/somewhere/else", link))

	info, err := be.Add(t.Context(), link, AddOptions{})
	require.NoError(t, err)

	target, err := os.Readlink(filepath.Join(be.StoreDir(), info.BaseName))
	require.NoError(t, err)
	assert.Equal(t, "/somewhere/else", target)
}
