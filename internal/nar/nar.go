// Package nar encodes filesystem trees in the canonical NAR (Nix ARchive)
// format: a self-describing, order-significant serialization of regular
// files, symlinks, and directories. Directory entries are emitted in
// byte-sorted order, so the encoding of a tree is deterministic.
package nar

import (
	"fmt"
	"io"
	"io/fs"
	"slices"
	"strings"
)

const versionMagic = "nix-archive-1"

// padding to an 8-byte boundary, shared by all serialized strings
var zeroPad [8]byte

// Dump writes the NAR encoding of the tree rooted at root within fsys.
// Symlinks are encoded when fsys implements fs.ReadLinkFS; otherwise a
// symlink in the tree is an error rather than a silently-followed edge.
func Dump(w io.Writer, fsys fs.FS, root string) error {
	e := &encoder{w: w, fsys: fsys}
	if err := e.str(versionMagic); err != nil {
		return err
	}
	return e.node(root)
}

type encoder struct {
	w    io.Writer
	fsys fs.FS
}

// str writes a length-prefixed string padded to 8 bytes.
func (e *encoder) str(s string) error {
	if err := e.length(uint64(len(s))); err != nil {
		return err
	}
	if _, err := io.WriteString(e.w, s); err != nil {
		return err
	}
	return e.pad(uint64(len(s)))
}

func (e *encoder) length(n uint64) error {
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(n >> (8 * i))
	}
	_, err := e.w.Write(buf[:])
	return err
}

func (e *encoder) pad(n uint64) error {
	if rem := n % 8; rem != 0 {
		_, err := e.w.Write(zeroPad[:8-rem])
		return err
	}
	return nil
}

func (e *encoder) node(name string) error {
	fi, err := e.lstat(name)
	if err != nil {
		return err
	}

	if err := e.str("("); err != nil {
		return err
	}

	switch {
	case fi.Mode().IsRegular():
		if err := e.regular(name, fi); err != nil {
			return err
		}
	case fi.IsDir():
		if err := e.directory(name); err != nil {
			return err
		}
	case fi.Mode()&fs.ModeSymlink != 0:
		if err := e.symlink(name); err != nil {
			return err
		}
	default:
		return fmt.Errorf("nar: %s: unsupported file type %s", name, fi.Mode().Type())
	}

	return e.str(")")
}

func (e *encoder) regular(name string, fi fs.FileInfo) error {
	if err := e.str("type"); err != nil {
		return err
	}
	if err := e.str("regular"); err != nil {
		return err
	}
	if fi.Mode()&0o111 != 0 {
		if err := e.str("executable"); err != nil {
			return err
		}
		if err := e.str(""); err != nil {
			return err
		}
	}
	if err := e.str("contents"); err != nil {
		return err
	}
	if err := e.length(uint64(fi.Size())); err != nil {
		return err
	}

	f, err := e.fsys.Open(name)
	if err != nil {
		return err
	}
	n, err := io.Copy(e.w, f)
	f.Close()
	if err != nil {
		return err
	}
	if n != fi.Size() {
		return fmt.Errorf("nar: %s: size changed during dump (stat %d, read %d)", name, fi.Size(), n)
	}
	return e.pad(uint64(n))
}

func (e *encoder) directory(name string) error {
	if err := e.str("type"); err != nil {
		return err
	}
	if err := e.str("directory"); err != nil {
		return err
	}

	entries, err := fs.ReadDir(e.fsys, name)
	if err != nil {
		return err
	}
	slices.SortFunc(entries, func(a, b fs.DirEntry) int {
		return strings.Compare(a.Name(), b.Name())
	})

	for _, entry := range entries {
		if err := e.str("entry"); err != nil {
			return err
		}
		if err := e.str("("); err != nil {
			return err
		}
		if err := e.str("name"); err != nil {
			return err
		}
		if err := e.str(entry.Name()); err != nil {
			return err
		}
		if err := e.str("node"); err != nil {
			return err
		}
		child := entry.Name()
		if name != "." {
			child = name + "/" + entry.Name()
		}
		if err := e.node(child); err != nil {
			return err
		}
		if err := e.str(")"); err != nil {
			return err
		}
	}
	return nil
}

func (e *encoder) symlink(name string) error {
	rfs, ok := e.fsys.(fs.ReadLinkFS)
	if !ok {
		return fmt.Errorf("nar: %s: filesystem does not expose symlink targets", name)
	}
	target, err := rfs.ReadLink(name)
	if err != nil {
		return err
	}
	if err := e.str("type"); err != nil {
		return err
	}
	if err := e.str("symlink"); err != nil {
		return err
	}
	if err := e.str("target"); err != nil {
		return err
	}
	return e.str(target)
}

// lstat prefers Lstat so symlinks are seen as symlinks.
func (e *encoder) lstat(name string) (fs.FileInfo, error) {
	if rfs, ok := e.fsys.(fs.ReadLinkFS); ok {
		return rfs.Lstat(name)
	}
	return fs.Stat(e.fsys, name)
}
