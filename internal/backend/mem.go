package backend

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"sync"
	"testing/fstest"
)

// MemBackend is an in-memory Backend for tests and ephemeral stores. The
// object trees are fstest.MapFS values keyed by base name.
type MemBackend struct {
	storeDir string

	mu      sync.RWMutex
	infos   map[string]*Info
	objects map[string]fstest.MapFS
	outputs map[string][]string
	drvOf   map[string][]string
}

func NewMem(storeDir string) *MemBackend {
	return &MemBackend{
		storeDir: storeDir,
		infos:    make(map[string]*Info),
		objects:  make(map[string]fstest.MapFS),
		outputs:  make(map[string][]string),
		drvOf:    make(map[string][]string),
	}
}

func (b *MemBackend) StoreDir() string { return b.storeDir }

func (b *MemBackend) Close() error { return nil }

// Put registers a path with its metadata and (optional) object tree.
func (b *MemBackend) Put(info *Info, tree fstest.MapFS) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.infos[info.BaseName] = info
	if tree != nil {
		b.objects[info.BaseName] = tree
	}
}

// PutOutputs registers drv's build outputs and the reverse deriver edges.
func (b *MemBackend) PutOutputs(drv string, outputs ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outputs[drv] = append(b.outputs[drv], outputs...)
	for _, out := range outputs {
		b.drvOf[out] = append(b.drvOf[out], drv)
	}
}

func (b *MemBackend) PathInfo(ctx context.Context, baseName string) (*Info, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	info, ok := b.infos[baseName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, baseName)
	}
	return info, nil
}

func (b *MemBackend) Referrers(ctx context.Context, baseName string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if _, ok := b.infos[baseName]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, baseName)
	}
	var out []string
	for name, info := range b.infos {
		for _, ref := range info.References {
			if ref == baseName {
				out = append(out, name)
				break
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func (b *MemBackend) Outputs(ctx context.Context, baseName string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if _, ok := b.infos[baseName]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, baseName)
	}
	var out []string
	for _, o := range b.outputs[baseName] {
		if _, ok := b.infos[o]; ok {
			out = append(out, o)
		}
	}
	return out, nil
}

func (b *MemBackend) Derivers(ctx context.Context, baseName string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	info, ok := b.infos[baseName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, baseName)
	}
	seen := make(map[string]bool)
	var out []string
	add := func(drv string) {
		if drv == "" || seen[drv] {
			return
		}
		if _, ok := b.infos[drv]; ok {
			seen[drv] = true
			out = append(out, drv)
		}
	}
	add(info.Deriver)
	for _, drv := range b.drvOf[baseName] {
		add(drv)
	}
	sort.Strings(out)
	return out, nil
}

func (b *MemBackend) Object(baseName string) (fs.FS, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	tree, ok := b.objects[baseName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, baseName)
	}
	// Rebase the tree so the object sits at baseName, matching the
	// Backend.Object contract.
	rooted := make(fstest.MapFS, len(tree))
	for name, file := range tree {
		if name == "." {
			rooted[baseName] = file
			continue
		}
		rooted[baseName+"/"+name] = file
	}
	return rooted, nil
}
