package validator

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const refreshConcurrency = 5

// Config holds worker tuning parameters.
type Config struct {
	// Interval between refresh cycles.
	Interval time.Duration
	// TTL is how long a Record stays fresh before it's due for refresh.
	TTL time.Duration
}

// DefaultConfig returns reasonable tuning for the refresh loop.
func DefaultConfig() Config {
	return Config{
		Interval: 2 * time.Minute,
		TTL:      60 * time.Minute,
	}
}

// Worker periodically refreshes stale owner Records from the Forge and
// keeps both the in-memory cache and the persistent Store in sync.
type Worker struct {
	forge Forge
	store *Store
	cache *memCache
	cfg   Config

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWorker constructs a Worker. store may be nil to run purely in-memory
// (the session does this when the cache database cannot be opened).
func NewWorker(forge Forge, store *Store, cfg Config) *Worker {
	if cfg.Interval == 0 {
		cfg = DefaultConfig()
	}
	return &Worker{
		forge:  forge,
		store:  store,
		cache:  newMemCache(),
		cfg:    cfg,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Lookup returns the cached Record for a canonical owner token.
func (w *Worker) Lookup(owner string) Record {
	return w.cache.Get(owner)
}

// Hydrate loads persisted Records into the in-memory cache, typically
// called once at startup before Start.
func (w *Worker) Hydrate(ctx context.Context) error {
	if w.store == nil {
		return nil
	}
	records, err := w.store.LoadAll(ctx)
	if err != nil {
		return err
	}
	w.cache.Load(records)
	return nil
}

// Start begins the periodic refresh loop in the background.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	go w.run(ctx)
}

// Stop halts the refresh loop and waits for the in-flight cycle to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
}

// Running reports whether the background loop is active.
func (w *Worker) Running() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// Close stops the refresh loop, if running, and closes the persistent
// store, if one was configured.
func (w *Worker) Close() error {
	w.Stop()
	if w.store != nil {
		return w.store.Close()
	}
	return nil
}

func (w *Worker) run(ctx context.Context) {
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		close(w.doneCh)
	}()

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.RefreshNow(ctx, w.staleOwners())
		}
	}
}

// staleOwners returns every owner in the cache whose record has aged past
// the configured TTL.
func (w *Worker) staleOwners() []string {
	cutoff := time.Now().Add(-w.cfg.TTL)
	var stale []string
	for _, r := range w.cache.Snapshot() {
		if r.Stale(cutoff) {
			stale = append(stale, r.Owner)
		}
	}
	return stale
}

// RefreshNow resolves owners against the forge immediately, bypassing the
// ticker. Each owner kind (user/team/email) is resolved concurrently,
// bounded by refreshConcurrency, and the batch is tagged with a
// correlation ID for the persisted refresh_runs log.
func (w *Worker) RefreshNow(ctx context.Context, owners []string) {
	if len(owners) == 0 {
		return
	}

	batchID := uuid.NewString()
	started := time.Now()
	users, teams, emails := classify(owners)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(refreshConcurrency)

	var mu sync.Mutex
	var resolved []Record

	if len(users) > 0 {
		g.Go(func() error {
			recs, err := w.forge.ResolveUsers(gctx, users)
			mu.Lock()
			for _, r := range recs {
				resolved = append(resolved, r)
			}
			mu.Unlock()
			return err
		})
	}
	if len(teams) > 0 {
		g.Go(func() error {
			recs, err := w.forge.ResolveTeams(gctx, teams)
			mu.Lock()
			for _, r := range recs {
				resolved = append(resolved, r)
			}
			mu.Unlock()
			return err
		})
	}
	for _, email := range emails {
		email := email
		g.Go(func() error {
			r, err := w.forge.ResolveEmail(gctx, email)
			if err != nil {
				return err
			}
			mu.Lock()
			resolved = append(resolved, r)
			mu.Unlock()
			return nil
		})
	}

	err := g.Wait()
	if err != nil {
		log.Printf("[validator] batch %s: refresh of %d owners failed: %v", batchID, len(owners), err)
	}

	for _, r := range resolved {
		w.cache.Set(r)
	}

	if w.store != nil {
		if len(resolved) > 0 {
			if werr := w.store.UpsertBatch(ctx, resolved); werr != nil {
				log.Printf("[validator] batch %s: persist failed: %v", batchID, werr)
			}
		}
		if rerr := w.store.RecordRefreshRun(ctx, batchID, started, len(resolved), err); rerr != nil {
			log.Printf("[validator] batch %s: record refresh run failed: %v", batchID, rerr)
		}
	}

	log.Printf("[validator] batch %s: refreshed %d/%d owners in %s",
		batchID, len(resolved), len(owners), time.Since(started).Round(time.Millisecond))
}
