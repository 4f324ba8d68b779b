package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	jsoniter "github.com/json-iterator/go"

	"github.com/udisondev/spawntrack/internal/model"
	"github.com/udisondev/spawntrack/internal/snapshot"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// SnapshotVersion is the snapshot structure version. Bump it whenever the
// payload layout changes; older snapshots are then discarded on restore.
const SnapshotVersion = 3

// BlobStore persists opaque snapshot blobs.
type BlobStore interface {
	Load(key string) ([]byte, error)
	Save(key string, blob []byte) error
}

// snapshotPayload is the explicit serialization record: every persisted
// field is listed here, derived fields (unconfirmed counts) are not.
// The compatibility fields travel inside the payload, not in the key.
type snapshotPayload struct {
	Version           int       `json:"version"`
	StoreFingerprint  []byte    `json:"store_fingerprint"`
	BoundsFingerprint uint64    `json:"bounds_fingerprint"`
	LastMigration     time.Time `json:"last_migration"`
	AltPrecision      int       `json:"alt_precision"`

	Known []knownRecord `json:"known"`
	// KnownPlaceholders are points promoted by AddKnown since the last
	// reconcile: members of the known set with no ordered entry yet.
	KnownPlaceholders []pointRecord    `json:"known_placeholders,omitempty"`
	DespawnTimes      []despawnRecord  `json:"despawn_times"`
	Unknown           []pointRecord    `json:"unknown"`
	Provisional       []pointRecord    `json:"provisional,omitempty"`
	Altitudes         []altitudeRecord `json:"altitudes"`
}

type knownRecord struct {
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	ID          int64   `json:"id"`
	CycleSecond int32   `json:"cycle_second"`
}

type despawnRecord struct {
	ID      int64 `json:"id"`
	Seconds int32 `json:"seconds"`
}

type pointRecord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type altitudeRecord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	Alt float64 `json:"alt"`
}

// SaveSnapshot writes the registry's full mutable state to the blob
// store. The in-memory structures are copied under the lock and
// serialized outside it, so a slow write never blocks mutators.
func (r *Registry) SaveSnapshot(store BlobStore, key string) error {
	r.mu.Lock()
	payload := snapshotPayload{
		Version:           SnapshotVersion,
		StoreFingerprint:  r.storeFingerprint,
		BoundsFingerprint: r.boundary.Fingerprint(),
		LastMigration:     r.lastMigration,
		AltPrecision:      r.altitudes.Precision(),
		Known:             make([]knownRecord, 0, len(r.order)),
		DespawnTimes:      make([]despawnRecord, 0, len(r.despawnTimes)),
		Unknown:           make([]pointRecord, 0, len(r.unknown)),
	}
	ordered := make(map[model.Point]struct{}, len(r.order))
	for _, e := range r.order {
		payload.Known = append(payload.Known, knownRecord{
			Lat: e.Point.Lat, Lon: e.Point.Lon, ID: e.ID, CycleSecond: e.CycleSecond,
		})
		ordered[e.Point] = struct{}{}
	}
	for p := range r.knownPoints {
		if _, ok := ordered[p]; !ok {
			payload.KnownPlaceholders = append(payload.KnownPlaceholders, pointRecord{Lat: p.Lat, Lon: p.Lon})
		}
	}
	for id, seconds := range r.despawnTimes {
		payload.DespawnTimes = append(payload.DespawnTimes, despawnRecord{ID: id, Seconds: seconds})
	}
	for p := range r.unknown {
		payload.Unknown = append(payload.Unknown, pointRecord{Lat: p.Lat, Lon: p.Lon})
	}
	for p := range r.provisional {
		payload.Provisional = append(payload.Provisional, pointRecord{Lat: p.Lat, Lon: p.Lon})
	}
	r.mu.Unlock()

	for p, alt := range r.altitudes.snapshotValues() {
		payload.Altitudes = append(payload.Altitudes, altitudeRecord{Lat: p.Lat, Lon: p.Lon, Alt: alt})
	}

	blob, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := store.Save(key, blob); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}

	r.mu.Lock()
	r.state = StatePersisted
	r.mu.Unlock()

	slog.Info("snapshot written",
		"known", len(payload.Known),
		"unknown", len(payload.Unknown),
		"size", humanize.Bytes(uint64(len(blob))))
	return nil
}

// RestoreSnapshot loads the registry from a snapshot, returning true on
// success. A missing, corrupt, or configuration-mismatched snapshot is
// logged and reported as false so the caller falls back to a reconcile;
// none of those conditions is an error. When only the altitude precision
// differs, the timing state is kept and the altitude cache is replaced
// by a bulk re-seed.
func (r *Registry) RestoreSnapshot(ctx context.Context, store BlobStore, key string) bool {
	blob, err := store.Load(key)
	if errors.Is(err, snapshot.ErrNotFound) {
		slog.Warn("no snapshot found, will create one")
		return false
	}
	if err != nil {
		slog.Warn("snapshot load failed, reloading from store", "err", err)
		return false
	}

	var payload snapshotPayload
	if err := json.Unmarshal(blob, &payload); err != nil {
		slog.Warn("obsolete or invalid snapshot, reloading from store", "err", err)
		return false
	}

	if payload.Version != SnapshotVersion ||
		!bytes.Equal(payload.StoreFingerprint, r.storeFingerprint) ||
		payload.BoundsFingerprint != r.boundary.Fingerprint() ||
		!payload.LastMigration.Equal(r.lastMigration) {
		slog.Warn("configuration changed, reloading spawnpoints from store")
		return false
	}

	order := make([]knownEntry, 0, len(payload.Known))
	knownPoints := make(map[model.Point]struct{}, len(payload.Known)+len(payload.KnownPlaceholders))
	for _, rec := range payload.Known {
		p := model.NewPoint(rec.Lat, rec.Lon)
		order = append(order, knownEntry{Point: p, ID: rec.ID, CycleSecond: rec.CycleSecond})
		knownPoints[p] = struct{}{}
	}
	for _, rec := range payload.KnownPlaceholders {
		knownPoints[model.NewPoint(rec.Lat, rec.Lon)] = struct{}{}
	}
	despawnTimes := make(map[int64]int32, len(payload.DespawnTimes))
	for _, rec := range payload.DespawnTimes {
		despawnTimes[rec.ID] = rec.Seconds
	}
	unknown := make(map[model.Point]struct{}, len(payload.Unknown))
	for _, rec := range payload.Unknown {
		unknown[model.NewPoint(rec.Lat, rec.Lon)] = struct{}{}
	}
	provisional := make(map[model.Point]struct{})
	if r.trackProvisional {
		// The plain variant drops a snapshot's provisional bucket.
		for _, rec := range payload.Provisional {
			provisional[model.NewPoint(rec.Lat, rec.Lon)] = struct{}{}
		}
	}

	r.mu.Lock()
	r.order = order
	r.knownPoints = knownPoints
	r.despawnTimes = despawnTimes
	r.unknown = unknown
	r.provisional = provisional
	r.state = StateRestored
	r.mu.Unlock()

	if payload.AltPrecision != r.altitudes.Precision() {
		slog.Warn("altitude precision changed, replacing altitudes")
		r.altitudes.BulkSeed(ctx, r.boundary)
	} else {
		values := make(map[model.Point]float64, len(payload.Altitudes))
		for _, rec := range payload.Altitudes {
			values[model.NewPoint(rec.Lat, rec.Lon)] = rec.Alt
		}
		r.altitudes.restoreValues(values)
	}

	slog.Info("snapshot restored",
		"known", len(order),
		"unknown", len(unknown),
		"altitudes", len(payload.Altitudes))
	return true
}
