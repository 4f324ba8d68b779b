package registry

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/udisondev/spawntrack/internal/bounds"
	"github.com/udisondev/spawntrack/internal/elevation"
	"github.com/udisondev/spawntrack/internal/model"
)

// AltitudeOptions configures an AltitudeCache.
type AltitudeOptions struct {
	// Precision is the number of decimal places coordinates are rounded
	// to before keying, collapsing nearby points onto one sample.
	Precision int

	// RandomMin and RandomMax bound the plausible elevation used when a
	// fetch fails.
	RandomMin float64
	RandomMax float64

	// Rand supplies jitter and fallback randomness. Injected so tests can
	// pin the seed; nil uses the process-wide source.
	Rand *rand.Rand
}

// AltitudeCache maps rounded coordinates to ground elevation. Misses are
// fetched from the elevation service outside the cache lock; fetch
// failures return a random plausible value that is never cached, so the
// next call retries the real fetch.
type AltitudeCache struct {
	service   elevation.Service
	precision int
	randMin   float64
	randMax   float64

	// onChange is invoked after a fetched sample commits, so the owning
	// registry can mark its snapshot stale. Set by registry.New.
	onChange func()

	mu     sync.Mutex
	values map[model.Point]float64
	rng    *rand.Rand
}

// NewAltitudeCache creates an empty altitude cache.
func NewAltitudeCache(service elevation.Service, opts AltitudeOptions) *AltitudeCache {
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &AltitudeCache{
		service:   service,
		precision: opts.Precision,
		randMin:   opts.RandomMin,
		randMax:   opts.RandomMax,
		values:    make(map[model.Point]float64),
		rng:       rng,
	}
}

// Precision returns the configured rounding precision.
func (c *AltitudeCache) Precision() int {
	return c.precision
}

// Len returns the number of cached samples.
func (c *AltitudeCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.values)
}

// Empty reports whether the cache holds no samples.
func (c *AltitudeCache) Empty() bool {
	return c.Len() == 0
}

// Get returns the elevation at p, rounded to the cache precision. Cache
// hits are optionally perturbed by a uniform offset in [-jitter, +jitter].
// On a miss the service is queried; any failure is logged and resolved
// with a random plausible value without caching it.
func (c *AltitudeCache) Get(ctx context.Context, p model.Point, jitter float64) float64 {
	key := p.Round(c.precision)

	c.mu.Lock()
	if alt, ok := c.values[key]; ok {
		if jitter > 0 {
			alt = c.uniform(alt-jitter, alt+jitter)
		}
		c.mu.Unlock()
		return alt
	}
	c.mu.Unlock()

	// Network fetch happens outside the lock; only a successful result
	// is committed.
	alt, err := c.service.Fetch(ctx, key)
	switch {
	case err == nil:
		c.mu.Lock()
		c.values[key] = alt
		c.mu.Unlock()
		if c.onChange != nil {
			c.onChange()
		}
		return alt
	case errors.Is(err, elevation.ErrEmptyResult):
		slog.Warn("empty altitude response, falling back to random",
			"lat", key.Lat, "lon", key.Lon)
	case errors.Is(err, elevation.ErrMalformedResult):
		slog.Error("invalid altitude response, falling back to random",
			"lat", key.Lat, "lon", key.Lon)
	default:
		slog.Error("altitude fetch failed, falling back to random",
			"lat", key.Lat, "lon", key.Lon, "err", err)
	}
	return c.random()
}

// Seed inserts measured samples, keyed by coordinates already rounded to
// the cache precision. Used during reconciliation for store records that
// carry an elevation column.
func (c *AltitudeCache) Seed(samples map[model.Point]float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for p, alt := range samples {
		c.values[p] = alt
	}
}

// BulkSeed replaces the cache contents from a bulk elevation query over
// the boundary. A failed or empty bulk query leaves the cache as is;
// misses will then be filled one by one through Get.
func (c *AltitudeCache) BulkSeed(ctx context.Context, b *bounds.Boundary) {
	samples, err := c.service.BulkFetch(ctx, b, c.precision)
	if err != nil {
		slog.Error("bulk altitude fetch failed, filling on demand", "err", err)
		return
	}
	if len(samples) == 0 {
		return
	}

	c.mu.Lock()
	c.values = samples
	c.mu.Unlock()
	slog.Info("altitude cache seeded", "count", len(samples))
}

// random returns a plausible elevation in the configured fallback range.
func (c *AltitudeCache) random() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uniform(c.randMin, c.randMax)
}

// uniform returns a uniformly random value in [lo, hi). Callers must
// hold c.mu.
func (c *AltitudeCache) uniform(lo, hi float64) float64 {
	return lo + c.rng.Float64()*(hi-lo)
}

// snapshotValues copies the cache contents for serialization.
func (c *AltitudeCache) snapshotValues() map[model.Point]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[model.Point]float64, len(c.values))
	for p, alt := range c.values {
		out[p] = alt
	}
	return out
}

// restoreValues replaces the cache contents from a snapshot.
func (c *AltitudeCache) restoreValues(values map[model.Point]float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = values
}
