// Package hydrate turns a published index into an in-memory vector index at most once per
// fingerprint and keeps it for the life of the process.
package hydrate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hyperjump/storyfind/internal/blob"
	"github.com/hyperjump/storyfind/internal/store"
	"github.com/hyperjump/storyfind/internal/vector"
)

// ErrHydrationFailed wraps every failure to produce an index for a fingerprint.
var ErrHydrationFailed = errors.New("hydration failed")

// DefaultTimeout bounds a single build when no timeout is configured.
const DefaultTimeout = 2 * time.Minute

// Cache maps fingerprints to built indexes. Entries are never evicted. Create one per
// process and share it through the Hydrator.
type Cache struct {
	entries sync.Map // string -> *vector.FlatIndex
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{}
}

func (c *Cache) load(key string) (*vector.FlatIndex, bool) {
	v, ok := c.entries.Load(key)
	if !ok {
		return nil, false
	}
	return v.(*vector.FlatIndex), true
}

func (c *Cache) store(key string, idx *vector.FlatIndex) {
	c.entries.Store(key, idx)
}

// Len returns the number of cached indexes.
func (c *Cache) Len() int {
	n := 0
	c.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Hydrator builds indexes into a Cache. Concurrent Get calls for the same fingerprint share
// one build; different fingerprints build independently.
type Hydrator struct {
	cache      *Cache
	group      singleflight.Group
	stagingDir string
	timeout    time.Duration
	logger     *zap.Logger
}

// Option configures a Hydrator.
type Option func(*Hydrator)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Hydrator) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithStagingDir sets the parent of per-build staging directories. Empty uses os.TempDir.
func WithStagingDir(dir string) Option {
	return func(h *Hydrator) { h.stagingDir = dir }
}

// WithTimeout bounds each build.
func WithTimeout(d time.Duration) Option {
	return func(h *Hydrator) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// New returns a Hydrator filling cache.
func New(cache *Cache, opts ...Option) *Hydrator {
	h := &Hydrator{
		cache:   cache,
		timeout: DefaultTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Get returns the index for fp, building it through resolver on first use. A failed build
// is not cached, so the next call retries. Cancelling ctx stops this caller waiting but does
// not cancel a build other callers may be sharing.
func (h *Hydrator) Get(ctx context.Context, fp blob.Fingerprint, resolver blob.Resolver) (*vector.FlatIndex, error) {
	key := fp.String()
	if idx, ok := h.cache.load(key); ok {
		return idx, nil
	}

	ch := h.group.DoChan(key, func() (any, error) {
		if idx, ok := h.cache.load(key); ok {
			return idx, nil
		}
		buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.timeout)
		defer cancel()
		idx, err := h.build(buildCtx, fp, resolver)
		if err != nil {
			return nil, err
		}
		h.cache.store(key, idx)
		return idx, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*vector.FlatIndex), nil
	}
}

// Warm hydrates fp ahead of the first request.
func (h *Hydrator) Warm(ctx context.Context, fp blob.Fingerprint, resolver blob.Resolver) error {
	_, err := h.Get(ctx, fp, resolver)
	return err
}

// Cached returns the index for fp without building it.
func (h *Hydrator) Cached(fp blob.Fingerprint) (*vector.FlatIndex, bool) {
	return h.cache.load(fp.String())
}

// Len returns the number of hydrated indexes.
func (h *Hydrator) Len() int {
	return h.cache.Len()
}

func (h *Hydrator) build(ctx context.Context, fp blob.Fingerprint, resolver blob.Resolver) (*vector.FlatIndex, error) {
	start := time.Now()
	log := h.logger.With(zap.String("fingerprint", fp.String()))

	if h.stagingDir != "" {
		if err := os.MkdirAll(h.stagingDir, 0755); err != nil {
			return nil, fmt.Errorf("%w: %s: create staging root: %w", ErrHydrationFailed, fp, err)
		}
	}
	staging, err := os.MkdirTemp(h.stagingDir, "storyfind-hydrate-*")
	if err != nil {
		return nil, fmt.Errorf("%w: %s: create staging dir: %w", ErrHydrationFailed, fp, err)
	}
	defer func() {
		if err := os.RemoveAll(staging); err != nil {
			log.Warn("Failed to remove staging dir", zap.String("dir", staging), zap.Error(err))
		}
	}()

	log.Info("Hydrating index", zap.String("staging", staging))
	if err := resolver.Resolve(ctx, fp, staging); err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			log.Error("Published index artifact is missing", zap.Error(err))
		} else {
			log.Warn("Resolver failed", zap.Error(err))
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrHydrationFailed, fp, err)
	}

	idx, err := store.Load(staging)
	if err != nil {
		if errors.Is(err, store.ErrCorruptIndex) || errors.Is(err, store.ErrMissingArtifact) {
			log.Error("Published index is unusable", zap.Error(err))
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrHydrationFailed, fp, err)
	}

	log.Info("Index hydrated",
		zap.Int("entries", idx.Len()),
		zap.Int("dimensions", idx.Dimensions()),
		zap.String("metric", idx.Metric().String()),
		zap.Duration("elapsed", time.Since(start)))
	return idx, nil
}
