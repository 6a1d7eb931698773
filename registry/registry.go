// Package registry materializes catalog rows into selectable tool
// descriptors for an external selector.
//
// A Registry instance binds exactly one source: it is constructed from a
// tenant-scoped catalog query at session start, never from process-wide
// mutable state, so multiple isolated sessions can coexist in one process.
// Two sources exposing an identical (resource, action) pair never collide
// because each session's registry only sees its own source's rows.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/apibridge/catalog"
	"github.com/BaSui01/apibridge/internal/cache"
	"github.com/BaSui01/apibridge/internal/metrics"
)

// Filter narrows SelectCandidates. The predicates map one-to-one onto the
// store's supported filters and are pushed down, which is what turns an
// ambiguous free-text query into a small candidate set.
type Filter struct {
	Resource      string
	Action        catalog.Action
	HasPathParams *bool
}

// Options configures a Registry.
type Options struct {
	// Cache enables a read-through descriptor cache keyed by source name.
	Cache    *cache.Manager
	CacheTTL time.Duration
	Metrics  *metrics.Collector
	Logger   *zap.Logger
}

// Registry exposes one source's operations as invocation descriptors. The
// registry never chooses an operation itself; selection is external.
type Registry struct {
	store      *catalog.Store
	sourceName string
	opts       Options
	logger     *zap.Logger

	mu       sync.RWMutex
	sourceID uint
	snapshot []Descriptor
	byName   map[string]catalog.Operation
}

// New creates a registry bound to one source. Call Load before use.
func New(store *catalog.Store, sourceName string, opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		store:      store,
		sourceName: sourceName,
		opts:       opts,
		logger:     logger.With(zap.String("component", "tool_registry"), zap.String("source", sourceName)),
	}
}

// Load reads the bound source's operations and materializes descriptors. It
// is called at process start and again on explicit reloads; the runtime only
// ever sees the last-good snapshot.
func (r *Registry) Load(ctx context.Context) error {
	src, err := r.store.GetSourceByName(ctx, r.sourceName)
	if err != nil {
		return fmt.Errorf("failed to bind registry to source %q: %w", r.sourceName, err)
	}

	ops, err := r.store.ListOperations(ctx, catalog.OperationQuery{SourceID: src.ID})
	if err != nil {
		return fmt.Errorf("failed to load operations for %q: %w", r.sourceName, err)
	}

	descriptors, err := r.materializeAll(ctx, ops)
	if err != nil {
		return err
	}

	byName := make(map[string]catalog.Operation, len(ops))
	for _, op := range ops {
		byName[op.OperationID] = op
	}

	r.mu.Lock()
	r.sourceID = src.ID
	r.snapshot = descriptors
	r.byName = byName
	r.mu.Unlock()

	r.logger.Info("tool registry loaded", zap.Int("operations", len(ops)))
	return nil
}

// Reload refreshes the snapshot, dropping any cached descriptors first.
func (r *Registry) Reload(ctx context.Context) error {
	if r.opts.Cache != nil {
		if err := r.opts.Cache.Delete(ctx, r.cacheKey()); err != nil {
			r.logger.Warn("failed to drop cached descriptors", zap.Error(err))
		}
	}
	return r.Load(ctx)
}

// SourceID returns the bound source's row id. Zero before Load.
func (r *Registry) SourceID() uint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sourceID
}

// Descriptors returns the full loaded descriptor set.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, len(r.snapshot))
	copy(out, r.snapshot)
	return out
}

// Operation returns the backing catalog row for a descriptor name. This is
// the dispatch table: one generic invocation path parameterized by the stored
// row, not one hand-written function per endpoint.
func (r *Registry) Operation(name string) (*catalog.Operation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return &op, true
}

// SelectCandidates returns descriptors matching the filter, in stable
// (tag, operation_id) order. An empty filter returns the full set. Predicates
// are pushed down to the store rather than filtered in memory so selection
// shares the store's indexes.
func (r *Registry) SelectCandidates(ctx context.Context, f Filter) ([]Descriptor, error) {
	r.mu.RLock()
	sourceID := r.sourceID
	r.mu.RUnlock()

	if sourceID == 0 {
		return nil, fmt.Errorf("registry not loaded")
	}

	if f == (Filter{}) {
		return r.Descriptors(), nil
	}

	ops, err := r.store.ListOperations(ctx, catalog.OperationQuery{
		SourceID:      sourceID,
		Resource:      f.Resource,
		Action:        f.Action,
		HasPathParams: f.HasPathParams,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to select candidates: %w", err)
	}

	descriptors := make([]Descriptor, 0, len(ops))
	for i := range ops {
		d, err := Materialize(&ops[i])
		if err != nil {
			return nil, err
		}
		descriptors = append(descriptors, d)
	}
	return descriptors, nil
}

// cachedSnapshot is the cache envelope. The fingerprint ties the cached
// descriptors to the catalog rows they were built from, so an entry left
// over from before a sync updated rows in place is treated as a miss.
type cachedSnapshot struct {
	Fingerprint string       `json:"fingerprint"`
	Descriptors []Descriptor `json:"descriptors"`
}

// snapshotFingerprint identifies a row set by its size and newest updated_at.
// Every sync touches updated_at on each row it writes, so any catalog change
// moves the fingerprint.
func snapshotFingerprint(ops []catalog.Operation) string {
	var latest int64
	for i := range ops {
		if ts := ops[i].UpdatedAt.UnixNano(); ts > latest {
			latest = ts
		}
	}
	return fmt.Sprintf("%d:%d", len(ops), latest)
}

// materializeAll builds the full descriptor snapshot, consulting the
// read-through cache when one is configured.
func (r *Registry) materializeAll(ctx context.Context, ops []catalog.Operation) ([]Descriptor, error) {
	fingerprint := snapshotFingerprint(ops)

	if r.opts.Cache != nil {
		var cached cachedSnapshot
		err := r.opts.Cache.GetJSON(ctx, r.cacheKey(), &cached)
		if err == nil && cached.Fingerprint == fingerprint {
			r.recordCache(true)
			return cached.Descriptors, nil
		}
		if err != nil && !cache.IsCacheMiss(err) {
			r.logger.Warn("descriptor cache read failed", zap.Error(err))
		}
		r.recordCache(false)
	}

	descriptors := make([]Descriptor, 0, len(ops))
	for i := range ops {
		d, err := Materialize(&ops[i])
		if err != nil {
			return nil, err
		}
		descriptors = append(descriptors, d)
	}

	if r.opts.Cache != nil {
		envelope := cachedSnapshot{Fingerprint: fingerprint, Descriptors: descriptors}
		if err := r.opts.Cache.SetJSON(ctx, r.cacheKey(), envelope, r.opts.CacheTTL); err != nil {
			r.logger.Warn("descriptor cache write failed", zap.Error(err))
		}
	}

	return descriptors, nil
}

func (r *Registry) cacheKey() string {
	return "registry:descriptors:" + r.sourceName
}

func (r *Registry) recordCache(hit bool) {
	if r.opts.Metrics == nil {
		return
	}
	if hit {
		r.opts.Metrics.RecordCacheHit("descriptors")
	} else {
		r.opts.Metrics.RecordCacheMiss("descriptors")
	}
}
