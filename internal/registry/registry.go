// Package registry holds the in-process cache of spawn points: which
// coordinates have confirmed cycle timing, which are still unknown, and
// (in the extended variant) which were merely noticed in live traffic.
// It answers despawn-instant and elevation queries without touching the
// store, and survives restarts through fingerprinted snapshots.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/udisondev/spawntrack/internal/bounds"
	"github.com/udisondev/spawntrack/internal/model"
)

// SpawnpointSource is the persistent store the registry reconciles from.
type SpawnpointSource interface {
	LoadAll(ctx context.Context, b *bounds.Boundary) ([]model.Spawnpoint, error)
}

// State describes where the registry is in its lifecycle.
type State int

const (
	// StateEmpty means neither a snapshot nor a reconciliation has
	// populated the registry yet.
	StateEmpty State = iota
	// StateRestored means the current contents came from a snapshot.
	StateRestored
	// StateReconciled means the current contents came from the store.
	StateReconciled
	// StateDirty means runtime mutations have not been persisted yet.
	StateDirty
	// StatePersisted means the last mutation has been written to a snapshot.
	StatePersisted
)

// knownEntry is one confirmed spawn point in the ordered mapping.
type knownEntry struct {
	Point model.Point
	ID    int64
	// CycleSecond is the despawn second normalized across duration
	// classes (half-hour records shifted by half a cycle).
	CycleSecond int32
}

// Options configures a Registry for the process lifetime.
type Options struct {
	// Boundary restricts tracking to an area; nil disables filtering.
	Boundary *bounds.Boundary

	// LastMigration is the freshness cutoff: store records not updated
	// after it are classified as unknown.
	LastMigration time.Time

	// TrackProvisional enables the extended variant's third bucket for
	// points seen in live traffic but not yet confirmed.
	TrackProvisional bool

	// StoreFingerprint identifies the backing store in snapshot
	// compatibility checks.
	StoreFingerprint []byte
}

// Registry tracks spawn points and their cycle timing.
//
// A single coarse mutex serializes all mutation; reads copy what they
// need under the lock and work outside it. The ordered known mapping is
// only ever replaced wholesale, never edited in place, so a reconcile
// cannot expose a partially sorted state to readers.
type Registry struct {
	source    SpawnpointSource
	altitudes *AltitudeCache

	boundary         *bounds.Boundary
	lastMigration    time.Time
	trackProvisional bool
	storeFingerprint []byte

	mu sync.Mutex
	// order is sorted ascending by CycleSecond; rebuilt on reconcile.
	order []knownEntry
	// knownPoints mirrors order for membership checks, plus placeholders
	// added by AddKnown ahead of the next reconcile.
	knownPoints map[model.Point]struct{}
	// despawnTimes maps spawn identifier to the raw despawn second.
	despawnTimes map[int64]int32
	unknown      map[model.Point]struct{}
	provisional  map[model.Point]struct{}
	state        State
}

// New creates an empty registry.
func New(source SpawnpointSource, altitudes *AltitudeCache, opts Options) *Registry {
	r := &Registry{
		source:           source,
		altitudes:        altitudes,
		boundary:         opts.Boundary,
		lastMigration:    opts.LastMigration,
		trackProvisional: opts.TrackProvisional,
		storeFingerprint: opts.StoreFingerprint,
		knownPoints:      make(map[model.Point]struct{}),
		despawnTimes:     make(map[int64]int32),
		unknown:          make(map[model.Point]struct{}),
		provisional:      make(map[model.Point]struct{}),
		state:            StateEmpty,
	}
	if altitudes != nil {
		// A committed altitude fill is snapshot state like any other
		// mutation.
		altitudes.onChange = r.markDirty
	}
	return r
}

func (r *Registry) markDirty() {
	r.mu.Lock()
	r.state = StateDirty
	r.mu.Unlock()
}

// Altitudes returns the registry's altitude cache.
func (r *Registry) Altitudes() *AltitudeCache {
	return r.altitudes
}

// State returns the registry's lifecycle state.
func (r *Registry) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Len returns the number of spawn points with confirmed timing.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.despawnTimes)
}

// TotalTracked returns the number of points in any bucket.
func (r *Registry) TotalTracked() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.despawnTimes) + len(r.unknown) + len(r.provisional)
}

// UnconfirmedCount returns the number of points without confirmed timing.
// Computed on demand, never stored.
func (r *Registry) UnconfirmedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.unknown) + len(r.provisional)
}

// AddKnown records a confirmed despawn second for a spawn identifier and
// promotes the point out of the unknown (and provisional) buckets. The
// extended variant also inserts a placeholder into the known membership
// set so HasSeen answers correctly before the next reconcile.
func (r *Registry) AddKnown(spawnID int64, despawnSecond int32, p model.Point) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.despawnTimes[spawnID] = despawnSecond
	delete(r.unknown, p)
	if r.trackProvisional {
		r.knownPoints[p] = struct{}{}
		delete(r.provisional, p)
	}
	r.state = StateDirty
}

// AddUnknown records a point whose timing could not be confirmed.
func (r *Registry) AddUnknown(p model.Point) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.unknown[p] = struct{}{}
	if r.trackProvisional {
		delete(r.provisional, p)
	}
	r.state = StateDirty
}

// AddProvisional records a point noticed in live traffic that may or may
// not be a real spawn point. No-op for the plain variant, and for points
// already tracked in another bucket.
func (r *Registry) AddProvisional(p model.Point) {
	if !r.trackProvisional {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.knownPoints[p]; ok {
		return
	}
	if _, ok := r.unknown[p]; ok {
		return
	}
	r.provisional[p] = struct{}{}
	r.state = StateDirty
}

// HasSeen reports whether the point is tracked in any bucket.
func (r *Registry) HasSeen(p model.Point) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.knownPoints[p]; ok {
		return true
	}
	if _, ok := r.unknown[p]; ok {
		return true
	}
	_, ok := r.provisional[p]
	return ok
}

// DespawnInstant returns the absolute time the event at spawnID ends,
// relative to an observation made at seen: the despawn second is applied
// to seen's hour, rolling into the next cycle when the observation is
// already past it. ok is false when the identifier has no confirmed
// timing.
func (r *Registry) DespawnInstant(spawnID int64, seen time.Time) (despawn time.Time, ok bool) {
	r.mu.Lock()
	seconds, ok := r.despawnTimes[spawnID]
	r.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}

	despawn = seen.Truncate(time.Hour).Add(time.Duration(seconds) * time.Second)
	if seen.After(despawn) {
		despawn = despawn.Add(model.CycleSeconds * time.Second)
	}
	return despawn, true
}

// CycleExhausted reports whether now's second-of-hour is past the latest
// despawn second among confirmed points, meaning no further despawns are
// expected this hour. False when nothing is confirmed.
func (r *Registry) CycleExhausted(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.order) == 0 {
		return false
	}
	last := r.order[len(r.order)-1].CycleSecond
	return int32(now.Unix()%model.CycleSeconds) > last
}

// ForEachKnown iterates confirmed points in ascending despawn-second
// order. fn receives the point, its spawn identifier, and its normalized
// cycle second; returning false stops the iteration.
func (r *Registry) ForEachKnown(fn func(p model.Point, spawnID int64, cycleSecond int32) bool) {
	r.mu.Lock()
	order := r.order
	r.mu.Unlock()

	// order is replaced wholesale and never edited in place, so the
	// grabbed slice stays consistent without holding the lock.
	for _, e := range order {
		if !fn(e.Point, e.ID, e.CycleSecond) {
			return
		}
	}
}

// ForEachUnconfirmed iterates a point-in-time copy of the unknown bucket
// (and the provisional bucket in the extended variant). The copy makes
// iteration safe against concurrent AddKnown/AddUnknown calls; calling
// again restarts with a fresh copy.
func (r *Registry) ForEachUnconfirmed(fn func(p model.Point) bool) {
	r.mu.Lock()
	points := make([]model.Point, 0, len(r.unknown)+len(r.provisional))
	for p := range r.unknown {
		points = append(points, p)
	}
	for p := range r.provisional {
		points = append(points, p)
	}
	r.mu.Unlock()

	for _, p := range points {
		if !fn(p) {
			return
		}
	}
}
