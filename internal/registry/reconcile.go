package registry

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/udisondev/spawntrack/internal/model"
)

// Reconcile rebuilds the registry from the persistent store. Records
// outside the boundary are discarded; records not updated since the
// migration cutoff become unknown; the rest land in the ordered known
// mapping, sorted ascending by cycle second and swapped in atomically.
//
// A store query failure is the one error that aborts a reconcile: the
// registry keeps serving whatever it held before. Elevation seeding only
// happens while the altitude cache is empty, first from store records
// that carry an elevation, then from a bulk query over the boundary.
func (r *Registry) Reconcile(ctx context.Context) error {
	records, err := r.source.LoadAll(ctx, r.boundary)
	if err != nil {
		return fmt.Errorf("loading spawnpoints from store: %w", err)
	}

	seedAltitudes := r.altitudes.Empty()
	precision := r.altitudes.Precision()

	var (
		entries      []knownEntry
		despawnTimes = make(map[int64]int32)
		unknown      []model.Point
		altSeeds     map[model.Point]float64
	)
	if seedAltitudes {
		altSeeds = make(map[model.Point]float64)
	}

	for _, sp := range records {
		// The store prefilter is only a bounding box; the polygon test
		// happens here.
		if !r.boundary.Contains(sp.Point) {
			continue
		}

		if seedAltitudes && sp.Altitude != nil {
			altSeeds[sp.Point.Round(precision)] = *sp.Altitude
		}

		if sp.Updated == nil || !sp.Updated.After(r.lastMigration) {
			unknown = append(unknown, sp.Point)
			continue
		}

		despawnTimes[sp.ID] = sp.DespawnSecond
		entries = append(entries, knownEntry{
			Point:       sp.Point,
			ID:          sp.ID,
			CycleSecond: sp.CycleSecond(),
		})
	}

	slices.SortStableFunc(entries, func(a, b knownEntry) int {
		return int(a.CycleSecond) - int(b.CycleSecond)
	})

	knownPoints := make(map[model.Point]struct{}, len(entries))
	for _, e := range entries {
		knownPoints[e.Point] = struct{}{}
	}

	r.mu.Lock()
	for id, seconds := range despawnTimes {
		r.despawnTimes[id] = seconds
	}
	for _, p := range unknown {
		r.unknown[p] = struct{}{}
	}
	r.order = entries
	r.knownPoints = knownPoints
	r.state = StateReconciled
	known, unconfirmed := len(r.despawnTimes), len(r.unknown)+len(r.provisional)
	r.mu.Unlock()

	slog.Info("spawnpoints reconciled from store",
		"known", known,
		"unconfirmed", unconfirmed)

	if seedAltitudes {
		r.altitudes.Seed(altSeeds)
		if r.altitudes.Empty() {
			r.altitudes.BulkSeed(ctx, r.boundary)
		}
	}

	return nil
}
