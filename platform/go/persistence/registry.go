package persistence

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ConnectFunc creates a pooled client for a fully-qualified database URL.
// The production implementation is NewPool; tests inject fakes.
type ConnectFunc func(ctx context.Context, databaseURL string) (*pgxpool.Pool, error)

// Registry maps database URLs to live pooled clients so that the process
// holds at most one pool per distinct URL. Opening a pool per request would
// multiply connection slots by the request rate and exhaust the server's
// max_connections under multi-tenant load.
//
// Entries are append-only: a key is added on first lookup and never replaced.
// Rotation produces a new URL, so the old key simply goes cold and is removed
// by the idle sweep once no request holds a connection from it.
type Registry struct {
	connect     ConnectFunc
	idleTimeout time.Duration
	logger      *zap.Logger
	now         func() time.Time

	mu      sync.RWMutex
	entries map[string]*registryEntry
	group   singleflight.Group
}

type registryEntry struct {
	pool     *pgxpool.Pool
	lastUsed atomic.Int64 // unix nanoseconds
}

func (e *registryEntry) touch(t time.Time) {
	e.lastUsed.Store(t.UnixNano())
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	// Connect creates pools on lookup miss. Required.
	Connect ConnectFunc
	// IdleTimeout is the minimum idle duration before an entry becomes an
	// eviction candidate. Zero disables eviction entirely.
	IdleTimeout time.Duration
	Logger      *zap.Logger
}

// NewRegistry constructs a Registry. The registry is owned by the startup
// sequence and passed by handle to request handlers; it is not a package
// singleton.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Connect == nil {
		panic("registry requires a connect func")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		connect:     cfg.Connect,
		idleTimeout: cfg.IdleTimeout,
		logger:      logger,
		now:         time.Now,
		entries:     make(map[string]*registryEntry),
	}
}

// Get returns the pooled client for databaseURL, creating it on first use.
//
// The hit path takes only the read lock, so concurrent lookups for different
// (or the same) warm keys never block each other. Creation is serialized per
// key through singleflight: a burst of first-time requests for one new tenant
// results in exactly one pool. A creation failure is returned to every waiter
// and is NOT cached; the next request retries from scratch.
func (r *Registry) Get(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, errors.New("database url is required")
	}

	r.mu.RLock()
	entry, ok := r.entries[databaseURL]
	r.mu.RUnlock()
	if ok {
		entry.touch(r.now())
		return entry.pool, nil
	}

	v, err, _ := r.group.Do(databaseURL, func() (any, error) {
		// A sweep may have run between the miss and this flight, or a
		// previous flight may have populated the entry already.
		r.mu.RLock()
		existing, ok := r.entries[databaseURL]
		r.mu.RUnlock()
		if ok {
			return existing, nil
		}

		pool, err := r.connect(ctx, databaseURL)
		if err != nil {
			return nil, err
		}

		created := &registryEntry{pool: pool}
		created.touch(r.now())

		r.mu.Lock()
		r.entries[databaseURL] = created
		r.mu.Unlock()

		r.logger.Info("registry pool created", zap.String("database_url", redactURL(databaseURL)))
		return created, nil
	})
	if err != nil {
		return nil, err
	}

	entry = v.(*registryEntry)
	entry.touch(r.now())
	return entry.pool, nil
}

// Len reports the number of live entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Sweep closes and removes entries idle beyond the configured timeout. An
// entry is only evicted when its pool has zero acquired connections, so a
// client handed out to an in-flight request is never closed underneath it.
// Returns the number of entries evicted.
func (r *Registry) Sweep() int {
	if r.idleTimeout <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.idleTimeout).UnixNano()

	var victims []*registryEntry
	r.mu.Lock()
	for url, entry := range r.entries {
		if entry.lastUsed.Load() > cutoff {
			continue
		}
		if entry.pool.Stat().AcquiredConns() != 0 {
			continue
		}
		delete(r.entries, url)
		victims = append(victims, entry)
		r.logger.Info("registry pool evicted", zap.String("database_url", redactURL(url)))
	}
	r.mu.Unlock()

	for _, entry := range victims {
		entry.pool.Close()
	}
	return len(victims)
}

// StartSweeper runs Sweep on a ticker until ctx is cancelled. It runs off the
// request-serving path; the sweep itself holds the write lock only while
// unlinking entries, never while closing pools.
func (r *Registry) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 || r.idleTimeout <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Sweep()
			}
		}
	}()
}

// CloseAll closes every pool and empties the registry. Intended for process
// shutdown only.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*registryEntry)
	r.mu.Unlock()

	for _, entry := range entries {
		entry.pool.Close()
	}
}
