package nar

import (
	"bytes"
	"encoding/binary"
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// narStr builds one length-prefixed padded string, mirroring the wire rules.
func narStr(s string) []byte {
	var buf bytes.Buffer
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(s)))
	buf.Write(lenBuf[:])
	buf.WriteString(s)
	if rem := len(s) % 8; rem != 0 {
		buf.Write(make([]byte, 8-rem))
	}
	return buf.Bytes()
}

func narBytes(parts ...string) []byte {
	var buf bytes.Buffer
	for _, p := range parts {
		buf.Write(narStr(p))
	}
	return buf.Bytes()
}

func dump(t *testing.T, fsys fs.FS, root string) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Dump(&buf, fsys, root))
	return buf.Bytes()
}

func TestDump_RegularFile(t *testing.T) {
	t.Parallel()
	fsys := fstest.MapFS{
		"obj": &fstest.MapFile{Data: []byte("hi"), Mode: 0o644},
	}

	got := dump(t, fsys, "obj")
	want := narBytes("nix-archive-1", "(", "type", "regular", "contents", "hi", ")")
	assert.Equal(t, want, got)
}

func TestDump_ExecutableFile(t *testing.T) {
	t.Parallel()
	fsys := fstest.MapFS{
		"obj": &fstest.MapFile{Data: []byte("#!/bin/sh\n"), Mode: 0o755},
	}

	got := dump(t, fsys, "obj")
	want := narBytes("nix-archive-1", "(", "type", "regular", "executable", "",
		"contents", "#!/bin/sh\n", ")")
	assert.Equal(t, want, got)
}

func TestDump_Symlink(t *testing.T) {
	t.Parallel()
	fsys := fstest.MapFS{
		"obj": &fstest.MapFile{Data: []byte("../target"), Mode: fs.ModeSymlink},
	}

	got := dump(t, fsys, "obj")
	want := narBytes("nix-archive-1", "(", "type", "symlink", "target", "../target", ")")
	assert.Equal(t, want, got)
}

func TestDump_DirectoryEntriesSorted(t *testing.T) {
	t.Parallel()
	fsys := fstest.MapFS{
		"obj/zeta":  &fstest.MapFile{Data: []byte("z"), Mode: 0o644},
		"obj/alpha": &fstest.MapFile{Data: []byte("a"), Mode: 0o644},
	}

	got := dump(t, fsys, "obj")
	want := narBytes("nix-archive-1", "(", "type", "directory",
		"entry", "(", "name", "alpha", "node",
		"(", "type", "regular", "contents", "a", ")", ")",
		"entry", "(", "name", "zeta", "node",
		"(", "type", "regular", "contents", "z", ")", ")",
		")")
	assert.Equal(t, want, got)
}

func TestDump_NestedTree(t *testing.T) {
	t.Parallel()
	fsys := fstest.MapFS{
		"obj/bin/hello": &fstest.MapFile{Data: []byte("hello"), Mode: 0o755},
		"obj/share/doc": &fstest.MapFile{Data: []byte("docs"), Mode: 0o644},
	}

	got := dump(t, fsys, "obj")
	want := narBytes("nix-archive-1", "(", "type", "directory",
		"entry", "(", "name", "bin", "node",
		"(", "type", "directory",
		"entry", "(", "name", "hello", "node",
		"(", "type", "regular", "executable", "", "contents", "hello", ")", ")",
		")", ")",
		"entry", "(", "name", "share", "node",
		"(", "type", "directory",
		"entry", "(", "name", "doc", "node",
		"(", "type", "regular", "contents", "docs", ")", ")",
		")", ")",
		")")
	assert.Equal(t, want, got)
}

func TestDump_Deterministic(t *testing.T) {
	t.Parallel()
	fsys := fstest.MapFS{
		"obj/a": &fstest.MapFile{Data: []byte("one"), Mode: 0o644},
		"obj/b": &fstest.MapFile{Data: []byte("two"), Mode: 0o755},
		"obj/c": &fstest.MapFile{Data: []byte("../a"), Mode: fs.ModeSymlink},
	}

	first := dump(t, fsys, "obj")
	second := dump(t, fsys, "obj")
	assert.Equal(t, first, second)
}

func TestDump_PaddingAlignsTo8Bytes(t *testing.T) {
	t.Parallel()
	for _, size := range []int{0, 1, 7, 8, 9, 63, 64, 65} {
		fsys := fstest.MapFS{
			"obj": &fstest.MapFile{Data: bytes.Repeat([]byte{'x'}, size), Mode: 0o644},
		}
		got := dump(t, fsys, "obj")
		assert.Zerof(t, len(got)%8, "archive of %d-byte file should be 8-aligned", size)
	}
}

func TestDump_UnsupportedNodeType(t *testing.T) {
	t.Parallel()
	fsys := fstest.MapFS{
		"obj": &fstest.MapFile{Mode: fs.ModeNamedPipe},
	}

	var buf bytes.Buffer
	err := Dump(&buf, fsys, "obj")
	assert.ErrorContains(t, err, "unsupported file type")
}

func TestDump_MissingRoot(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	err := Dump(&buf, fstest.MapFS{}, "missing")
	assert.Error(t, err)
}
