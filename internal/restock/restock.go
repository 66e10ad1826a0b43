// Package restock applies bulk stock increments from gzip feeds.
//
// A feed is a gzip-compressed text file of "product_id,quantity" lines.
// Blank lines and lines starting with '#' are ignored. Product ids unknown
// to the catalog are dropped before they reach the database.
package restock

import (
	"bufio"
	"context"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	filterFPR     = 0.001
	progressEvery = 1_000_000
)

// Catalog lists the products that can be restocked.
type Catalog interface {
	ListActiveIDs(ctx context.Context) ([]string, error)
}

// Applier adds quantity increments to products and returns how many
// products were updated.
type Applier interface {
	Restock(ctx context.Context, increments map[string]int) (int, error)
}

// Invalidator drops cached product records.
type Invalidator interface {
	Invalidate(ctx context.Context, ids ...string) error
}

// Option configures Import.
type Option func(*options)

type options struct {
	cache Invalidator
}

// WithCache invalidates every restocked product in c after the increments
// are committed.
func WithCache(c Invalidator) Option {
	return func(o *options) { o.cache = c }
}

// Stats summarizes an import.
type Stats struct {
	Lines     int64
	Malformed int64
	Unknown   int64
	Products  int
	Updated   int
}

// ParseLine parses a "product_id,quantity" line. Quantities must be
// positive.
func ParseLine(line string) (id string, qty int, err error) {
	id, rawQty, ok := strings.Cut(line, ",")
	if !ok {
		return "", 0, errors.Errorf("missing separator in %q", line)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", 0, errors.Errorf("empty product id in %q", line)
	}
	qty, err = strconv.Atoi(strings.TrimSpace(rawQty))
	if err != nil {
		return "", 0, errors.Wrapf(err, "quantity in %q", line)
	}
	if qty < 1 {
		return "", 0, errors.Errorf("non-positive quantity in %q", line)
	}
	return id, qty, nil
}

// NewFilter builds a bloom filter of ids.
func NewFilter(ids []string) *bloom.BloomFilter {
	f := bloom.NewWithEstimates(uint(max(len(ids), 1)), filterFPR)
	for _, id := range ids {
		f.AddString(id)
	}
	return f
}

// Aggregate streams the feeds concurrently and sums the increments of ids
// passing known.
func Aggregate(ctx context.Context, paths []string, known *bloom.BloomFilter) (map[string]int, Stats, error) {
	var (
		mu     sync.Mutex
		totals = make(map[string]int)
		stats  Stats
	)

	g, ctx := errgroup.WithContext(ctx)
	for _, path := range paths {
		g.Go(func() error {
			local := make(map[string]int)
			var fs Stats
			if err := streamFeed(ctx, path, func(line string) {
				fs.Lines++
				if fs.Lines%progressEvery == 0 {
					zctx.From(ctx).Info("Feed progress", zap.String("file", path), zap.Int64("lines", fs.Lines))
				}
				id, qty, err := ParseLine(line)
				if err != nil {
					fs.Malformed++
					zctx.From(ctx).Debug("Skip malformed line", zap.String("file", path), zap.Error(err))
					return
				}
				if !known.TestString(id) {
					fs.Unknown++
					return
				}
				local[id] += qty
			}); err != nil {
				return errors.Wrapf(err, "feed %s", path)
			}

			mu.Lock()
			defer mu.Unlock()
			for id, qty := range local {
				totals[id] += qty
			}
			stats.Lines += fs.Lines
			stats.Malformed += fs.Malformed
			stats.Unknown += fs.Unknown
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Stats{}, err
	}

	stats.Products = len(totals)
	return totals, stats, nil
}

// Import aggregates the feeds and applies them in one transaction.
func Import(ctx context.Context, catalog Catalog, applier Applier, paths []string, opts ...Option) (Stats, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	ids, err := catalog.ListActiveIDs(ctx)
	if err != nil {
		return Stats{}, errors.Wrap(err, "list catalog")
	}

	totals, stats, err := Aggregate(ctx, paths, NewFilter(ids))
	if err != nil {
		return Stats{}, err
	}
	if len(totals) == 0 {
		return stats, nil
	}

	if stats.Updated, err = applier.Restock(ctx, totals); err != nil {
		return Stats{}, errors.Wrap(err, "apply increments")
	}

	if o.cache != nil {
		restocked := slices.Sorted(maps.Keys(totals))
		if err := o.cache.Invalidate(ctx, restocked...); err != nil {
			zctx.From(ctx).Warn("Invalidate product cache", zap.Int("products", len(restocked)), zap.Error(err))
		}
	}
	return stats, nil
}

// streamFeed calls fn for every meaningful line of the gzip file at path.
func streamFeed(ctx context.Context, path string, fn func(line string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrap(err, "gzip reader")
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fn(line)
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "scan")
	}
	return nil
}
