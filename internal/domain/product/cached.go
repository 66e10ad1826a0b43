package product

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

var _ Repository = (*CachedRepository)(nil)

// CachedRepository serves catalog reads through a Cache, falling back to the
// underlying repository on miss. Cache failures degrade to direct reads.
type CachedRepository struct {
	repo  Repository
	cache Cache
}

// NewCachedRepository wraps repo with cache.
func NewCachedRepository(repo Repository, cache Cache) *CachedRepository {
	return &CachedRepository{repo: repo, cache: cache}
}

// GetByID returns the product with the given id.
func (r *CachedRepository) GetByID(ctx context.Context, id string) (*Product, error) {
	lg := zctx.From(ctx)

	p, ok, err := r.cache.Get(ctx, id)
	if err != nil {
		lg.Warn("Product cache read failed", zap.String("product_id", id), zap.Error(err))
	}
	if ok {
		return p, nil
	}

	p, err = r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.cache.Set(ctx, p); err != nil {
		lg.Warn("Product cache write failed", zap.String("product_id", id), zap.Error(err))
	}
	return p, nil
}

var _ Writer = (*InvalidatingWriter)(nil)

// InvalidatingWriter drops every written product from a Cache. Cache
// failures are logged, the write itself stands.
type InvalidatingWriter struct {
	w     Writer
	cache Cache
}

// NewInvalidatingWriter wraps w with cache invalidation.
func NewInvalidatingWriter(w Writer, cache Cache) *InvalidatingWriter {
	return &InvalidatingWriter{w: w, cache: cache}
}

// Upsert writes p and invalidates its cache entry.
func (w *InvalidatingWriter) Upsert(ctx context.Context, p *Product) error {
	if err := w.w.Upsert(ctx, p); err != nil {
		return err
	}
	if err := w.cache.Invalidate(ctx, p.ID); err != nil {
		zctx.From(ctx).Warn("Invalidate product cache", zap.String("product_id", p.ID), zap.Error(err))
	}
	return nil
}

// RepeatingCache repeats every invalidation once after a delay. A read that
// missed before a mutation committed can store the old record after the
// first invalidation; the repeat drops it, so such an entry lives at most
// the delay instead of the full TTL.
type RepeatingCache struct {
	Cache
	delay time.Duration
	after func(d time.Duration, f func())
}

// NewRepeatingCache wraps c. A non-positive delay disables the repeat.
func NewRepeatingCache(c Cache, delay time.Duration) *RepeatingCache {
	return &RepeatingCache{
		Cache: c,
		delay: delay,
		after: func(d time.Duration, f func()) { time.AfterFunc(d, f) },
	}
}

// Invalidate drops ids now and schedules the repeat.
func (c *RepeatingCache) Invalidate(ctx context.Context, ids ...string) error {
	if err := c.Cache.Invalidate(ctx, ids...); err != nil {
		return err
	}
	if c.delay <= 0 || len(ids) == 0 {
		return nil
	}

	ids = slices.Clone(ids)
	lg := zctx.From(ctx)
	base := context.WithoutCancel(ctx)
	c.after(c.delay, func() {
		ctx, cancel := context.WithTimeout(base, time.Second)
		defer cancel()
		if err := c.Cache.Invalidate(ctx, ids...); err != nil {
			lg.Warn("Repeat product cache invalidation", zap.Strings("product_ids", ids), zap.Error(err))
		}
	})
	return nil
}
