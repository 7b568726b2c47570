package repoindex

import (
	"context"
	"fmt"
	"testing"
	"testing/fstest"
	"time"
)

func mapEnumerator(files ...string) *DirEnumerator {
	mapFS := make(fstest.MapFS, len(files))
	for _, f := range files {
		mapFS[f] = &fstest.MapFile{Data: []byte("x")}
	}
	return &DirEnumerator{FS: mapFS, Ignore: map[string]bool{}}
}

func TestDirEnumeratorEnumerate(t *testing.T) {
	t.Parallel()

	e := mapEnumerator("README.md", "cmd/main.go", "cmd/sub/helper.go", "docs/guide.md")
	files, err := e.Enumerate(context.Background())
	if err != nil {
		t.Fatalf("Enumerate() error: %v", err)
	}

	want := map[string]bool{
		"README.md":           true,
		"cmd/main.go":         true,
		"cmd/sub/helper.go":   true,
		"docs/guide.md":       true,
	}
	if len(files) != len(want) {
		t.Fatalf("Enumerate() = %v, want %d entries", files, len(want))
	}
	for _, f := range files {
		if !want[f] {
			t.Errorf("Enumerate() produced unexpected file %q", f)
		}
	}
}

func TestDirEnumeratorIgnoresConfiguredDirs(t *testing.T) {
	t.Parallel()

	e := mapEnumerator("README.md", ".git/HEAD", "node_modules/pkg/index.js")
	e.Ignore = map[string]bool{".git": true, "node_modules": true}

	files, err := e.Enumerate(context.Background())
	if err != nil {
		t.Fatalf("Enumerate() error: %v", err)
	}
	if len(files) != 1 || files[0] != "README.md" {
		t.Errorf("Enumerate() = %v, want only README.md", files)
	}
}

func TestIndexQueries(t *testing.T) {
	t.Parallel()

	e := mapEnumerator("README.md", "cmd/main.go", "cmd/sub/helper.go")
	idx, err := Build(context.Background(), e)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	if idx.Len() != 3 {
		t.Errorf("Len() = %d, want 3", idx.Len())
	}
	if !idx.Exists("cmd/main.go") {
		t.Error("Exists(cmd/main.go) = false, want true")
	}
	if idx.Exists("cmd/missing.go") {
		t.Error("Exists(cmd/missing.go) = true, want false")
	}
	under := idx.Under("cmd")
	if len(under) != 2 {
		t.Errorf("Under(cmd) = %v, want 2 entries", under)
	}
}

// TestDirEnumeratorWideAndDeepTreeDoesNotDeadlock guards against the
// errgroup recursive-fan-out hazard: a frontier wider than
// maxWalkConcurrency, where every directory on it still has unwalked
// subdirectories, must not wedge every concurrency slot on goroutines that
// are themselves waiting to recurse.
func TestDirEnumeratorWideAndDeepTreeDoesNotDeadlock(t *testing.T) {
	t.Parallel()

	var files []string
	for i := 0; i < 4*maxWalkConcurrency; i++ {
		files = append(files, fmt.Sprintf("d%d/sub/leaf/file.go", i))
	}
	e := mapEnumerator(files...)

	done := make(chan struct{})
	var got []string
	var enumErr error
	go func() {
		got, enumErr = e.Enumerate(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Enumerate() did not return; want it to complete on a wide-and-deep tree instead of deadlocking")
	}
	if enumErr != nil {
		t.Fatalf("Enumerate() error: %v", enumErr)
	}
	if len(got) != len(files) {
		t.Errorf("Enumerate() = %d files, want %d", len(got), len(files))
	}
}

func TestWatcherInvalidateRebuilds(t *testing.T) {
	t.Parallel()

	e := mapEnumerator("a.go")
	w, err := NewWatcher(context.Background(), e)
	if err != nil {
		t.Fatalf("NewWatcher() error: %v", err)
	}
	if w.Current().Len() != 1 {
		t.Fatalf("initial Current().Len() = %d, want 1", w.Current().Len())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	e.FS.(fstest.MapFS)["b.go"] = &fstest.MapFile{Data: []byte("y")}
	w.Invalidate()

	deadline := make(chan struct{})
	go func() {
		for w.Current().Len() != 2 {
		}
		close(deadline)
	}()
	select {
	case <-deadline:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not rebuild index after Invalidate()")
	}
}
