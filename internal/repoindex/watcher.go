package repoindex

import (
	"context"
	"log"
	"sync"
)

// Watcher holds the current Index for a workspace and rebuilds it on
// explicit invalidation, mirroring the background-refresh worker idiom
// used elsewhere in this codebase: a running flag guarded by a mutex, a
// stop channel, and a done channel to join on.
type Watcher struct {
	enum Enumerator

	mu      sync.RWMutex
	current *Index
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	invalidateCh chan struct{}
}

// NewWatcher builds an initial Index from enum and returns a Watcher ready
// to serve it. The initial build is synchronous so callers never observe a
// nil Index.
func NewWatcher(ctx context.Context, enum Enumerator) (*Watcher, error) {
	idx, err := Build(ctx, enum)
	if err != nil {
		return nil, err
	}
	return &Watcher{
		enum:         enum,
		current:      idx,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
		invalidateCh: make(chan struct{}, 1),
	}, nil
}

// Current returns the most recently built Index.
func (w *Watcher) Current() *Index {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Invalidate requests a rebuild of the index. It is non-blocking: if a
// rebuild is already pending, this is a no-op.
func (w *Watcher) Invalidate() {
	select {
	case w.invalidateCh <- struct{}{}:
	default:
	}
}

// Start begins processing invalidation requests in the background.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	go w.run(ctx)
}

// Stop halts background processing and waits for it to finish.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
}

func (w *Watcher) run(ctx context.Context) {
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		close(w.doneCh)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-w.invalidateCh:
			idx, err := Build(ctx, w.enum)
			if err != nil {
				log.Printf("[repoindex] rebuild failed: %v", err)
				continue
			}
			w.mu.Lock()
			w.current = idx
			w.mu.Unlock()
		}
	}
}
