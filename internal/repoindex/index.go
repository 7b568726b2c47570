// Package repoindex enumerates the tracked files of a repository and
// exposes them as the static snapshot the matcher sweeps against.
package repoindex

import (
	"context"
	"io/fs"
	"os"
	"path"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Enumerator discovers every file path the ownership manifest should be
// evaluated against. The default implementation walks the working tree;
// a forge-backed implementation could instead list a git tree object.
type Enumerator interface {
	Enumerate(ctx context.Context) ([]string, error)
}

// maxWalkConcurrency bounds how many fs.ReadDir calls DirEnumerator has in
// flight at once, so a very wide tree doesn't open thousands of file
// descriptors at the same instant.
const maxWalkConcurrency = 8

// DirEnumerator walks an fs.FS concurrently, skipping the directories in
// Ignore (matched by base name, e.g. ".git", "node_modules").
type DirEnumerator struct {
	FS     fs.FS
	Ignore map[string]bool
}

// NewDirEnumerator returns a DirEnumerator rooted at dir with the usual VCS
// and dependency directories pre-ignored.
func NewDirEnumerator(dir string) *DirEnumerator {
	return &DirEnumerator{
		FS: os.DirFS(dir),
		Ignore: map[string]bool{
			".git":         true,
			"node_modules": true,
			".hg":          true,
			".svn":         true,
		},
	}
}

// Enumerate lists every regular file under the tree, relative to its root,
// with forward slashes. Every subdirectory gets its own goroutine so the
// walk recurses without waiting on siblings, but only maxWalkConcurrency of
// them may be inside fs.ReadDir at once — the semaphore is acquired and
// released around that call alone, never held while a goroutine spawns its
// children, so a wide-and-deep tree can't wedge every slot on goroutines
// that are themselves waiting for a slot to recurse into.
func (e *DirEnumerator) Enumerate(ctx context.Context) ([]string, error) {
	var mu sync.Mutex
	var files []string

	sem := semaphore.NewWeighted(maxWalkConcurrency)
	g, ctx := errgroup.WithContext(ctx)

	var walkDir func(dir string) error
	walkDir = func(dir string) error {
		if err := sem.Acquire(ctx, 1); err != nil {
			return err
		}
		entries, err := fs.ReadDir(e.FS, dir)
		sem.Release(1)
		if err != nil {
			return err
		}

		var subdirs []string
		var found []string
		for _, ent := range entries {
			if e.Ignore[ent.Name()] {
				continue
			}
			p := ent.Name()
			if dir != "." {
				p = path.Join(dir, ent.Name())
			}
			if ent.IsDir() {
				subdirs = append(subdirs, p)
				continue
			}
			found = append(found, p)
		}

		if len(found) > 0 {
			mu.Lock()
			files = append(files, found...)
			mu.Unlock()
		}

		for _, sd := range subdirs {
			sd := sd
			g.Go(func() error { return walkDir(sd) })
		}
		return nil
	}

	g.Go(func() error { return walkDir(".") })

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// Index is an immutable, queryable snapshot of a repository's file set,
// built by sweeping an Enumerator once. Concurrent reads are safe; building
// a fresh Index (on invalidation) is the caller's job, not this type's.
type Index struct {
	files  []string
	lookup map[string]struct{}
}

// Build enumerates files via e and returns a queryable Index.
func Build(ctx context.Context, e Enumerator) (*Index, error) {
	files, err := e.Enumerate(ctx)
	if err != nil {
		return nil, err
	}
	idx := &Index{files: files, lookup: make(map[string]struct{}, len(files))}
	for _, f := range files {
		idx.lookup[f] = struct{}{}
	}
	return idx, nil
}

// Files returns every indexed file path, in sorted order. The returned
// slice must not be mutated by callers.
func (idx *Index) Files() []string {
	return idx.files
}

// Exists reports whether path is present in the index.
func (idx *Index) Exists(path string) bool {
	_, ok := idx.lookup[path]
	return ok
}

// Len returns the number of indexed files.
func (idx *Index) Len() int {
	return len(idx.files)
}

// Under returns every indexed file path nested under prefix, in sorted
// order. prefix is matched as a whole path segment: "cmd" matches
// "cmd/main.go" but not "cmdline/main.go".
func (idx *Index) Under(prefix string) []string {
	if prefix == "" || prefix == "." {
		return idx.files
	}
	want := prefix + "/"
	var out []string
	for _, f := range idx.files {
		if len(f) > len(want) && f[:len(want)] == want {
			out = append(out, f)
		}
	}
	return out
}
