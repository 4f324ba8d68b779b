package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/spawntrack/internal/bounds"
	"github.com/udisondev/spawntrack/internal/model"
)

func populatedRegistry(t *testing.T, trackProvisional bool) (*Registry, *mockElevation) {
	t.Helper()

	source := &mockSource{records: []model.Spawnpoint{
		{
			ID:              1,
			Point:           model.NewPoint(1.0, 2.0),
			Updated:         freshUpdate(),
			DurationMinutes: 60,
			DespawnSecond:   100,
			Altitude:        floatPtr(42.0),
		},
		{
			ID:              2,
			Point:           model.NewPoint(3.0, 4.0),
			Updated:         freshUpdate(),
			DurationMinutes: 30,
			DespawnSecond:   200,
		},
		{
			ID:              3,
			Point:           model.NewPoint(5.0, 6.0),
			Updated:         nil,
			DurationMinutes: 60,
			DespawnSecond:   300,
		},
	}}
	service := &mockElevation{}
	r := New(source, testAltitudes(service), Options{
		LastMigration:    testMigration,
		TrackProvisional: trackProvisional,
		StoreFingerprint: []byte("test-store"),
	})
	require.NoError(t, r.Reconcile(context.Background()))
	return r, service
}

func restoreTarget(trackProvisional bool, opts Options, service *mockElevation) *Registry {
	if service == nil {
		service = &mockElevation{}
	}
	if opts.StoreFingerprint == nil {
		opts.StoreFingerprint = []byte("test-store")
	}
	if opts.LastMigration.IsZero() {
		opts.LastMigration = testMigration
	}
	opts.TrackProvisional = trackProvisional
	return New(&mockSource{}, testAltitudes(service), opts)
}

func TestSnapshot_RoundTrip(t *testing.T) {
	r, _ := populatedRegistry(t, true)
	r.AddProvisional(model.NewPoint(7.0, 8.0))

	blobs := newMemBlobStore()
	require.NoError(t, r.SaveSnapshot(blobs, "spawns"))

	restored := restoreTarget(true, Options{}, nil)
	require.True(t, restored.RestoreSnapshot(context.Background(), blobs, "spawns"))
	assert.Equal(t, StateRestored, restored.State())

	// Timing state survives: same known membership and despawn seconds.
	assert.Equal(t, r.Len(), restored.Len())
	hour := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	want, ok := r.DespawnInstant(2, hour)
	require.True(t, ok)
	got, ok := restored.DespawnInstant(2, hour)
	require.True(t, ok)
	assert.Equal(t, want, got)

	var order []int64
	restored.ForEachKnown(func(p model.Point, spawnID int64, cycleSecond int32) bool {
		order = append(order, spawnID)
		return true
	})
	assert.Equal(t, []int64{1, 2}, order, "ordering survives the round trip")

	assert.ElementsMatch(t, collectUnconfirmed(r), collectUnconfirmed(restored))
	assert.True(t, restored.HasSeen(model.NewPoint(7.0, 8.0)))

	// Altitudes survive too, without touching the service.
	alt := restored.Altitudes().Get(context.Background(), model.NewPoint(1.0, 2.0), 0)
	assert.InDelta(t, 42.0, alt, 1e-9)
}

func TestSnapshot_PlaceholderMembershipSurvives(t *testing.T) {
	r, _ := populatedRegistry(t, true)
	promoted := model.NewPoint(9.0, 10.0)
	r.AddKnown(4, 150, promoted)
	require.True(t, r.HasSeen(promoted))

	blobs := newMemBlobStore()
	require.NoError(t, r.SaveSnapshot(blobs, "spawns"))

	restored := restoreTarget(true, Options{}, nil)
	require.True(t, restored.RestoreSnapshot(context.Background(), blobs, "spawns"))

	assert.True(t, restored.HasSeen(promoted),
		"membership recorded ahead of the next reconcile survives a restart")

	// A restored point never lands in a second bucket.
	before := restored.UnconfirmedCount()
	restored.AddProvisional(promoted)
	assert.Equal(t, before, restored.UnconfirmedCount())
}

func TestSnapshot_MissingForcesReconcile(t *testing.T) {
	restored := restoreTarget(false, Options{}, nil)
	assert.False(t, restored.RestoreSnapshot(context.Background(), newMemBlobStore(), "spawns"))
	assert.Equal(t, StateEmpty, restored.State())
}

func TestSnapshot_CorruptForcesReconcile(t *testing.T) {
	blobs := newMemBlobStore()
	blobs.blobs["spawns"] = []byte("not a snapshot")

	restored := restoreTarget(false, Options{}, nil)
	assert.False(t, restored.RestoreSnapshot(context.Background(), blobs, "spawns"))
}

func TestSnapshot_CompatibilityMismatch(t *testing.T) {
	r, _ := populatedRegistry(t, false)
	blobs := newMemBlobStore()
	require.NoError(t, r.SaveSnapshot(blobs, "spawns"))

	tests := []struct {
		name string
		opts Options
	}{
		{
			name: "store fingerprint changed",
			opts: Options{StoreFingerprint: []byte("other-store")},
		},
		{
			name: "last migration changed",
			opts: Options{LastMigration: testMigration.Add(time.Hour)},
		},
		{
			name: "boundary changed",
			opts: Options{Boundary: mustBoundary(t)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			restored := restoreTarget(false, tt.opts, nil)
			assert.False(t, restored.RestoreSnapshot(context.Background(), blobs, "spawns"))
			assert.Equal(t, 0, restored.Len())
		})
	}
}

func TestSnapshot_AltPrecisionChangeReseedsAltitudes(t *testing.T) {
	r, _ := populatedRegistry(t, false)
	blobs := newMemBlobStore()
	require.NoError(t, r.SaveSnapshot(blobs, "spawns"))

	service := &mockElevation{bulk: map[model.Point]float64{
		model.NewPoint(1.0, 2.0): 500,
	}}
	altitudes := NewAltitudeCache(service, AltitudeOptions{
		Precision: 4, // differs from the snapshot's precision of 3
		RandomMin: 300,
		RandomMax: 400,
	})
	restored := New(&mockSource{}, altitudes, Options{
		LastMigration:    testMigration,
		StoreFingerprint: []byte("test-store"),
	})

	require.True(t, restored.RestoreSnapshot(context.Background(), blobs, "spawns"),
		"precision change alone does not invalidate the snapshot")
	assert.Equal(t, r.Len(), restored.Len(), "timing state is kept")
	assert.Equal(t, 1, service.bulkCalls, "altitudes are replaced from a bulk query")
}

func TestSnapshot_ProvisionalDroppedByPlainVariant(t *testing.T) {
	r, _ := populatedRegistry(t, true)
	provisional := model.NewPoint(7.0, 8.0)
	r.AddProvisional(provisional)

	blobs := newMemBlobStore()
	require.NoError(t, r.SaveSnapshot(blobs, "spawns"))

	restored := restoreTarget(false, Options{}, nil)
	require.True(t, restored.RestoreSnapshot(context.Background(), blobs, "spawns"))

	assert.False(t, restored.HasSeen(provisional), "plain variant drops the provisional bucket")
	assert.Equal(t, 1, restored.UnconfirmedCount(), "only the unknown point remains")
}

func mustBoundary(t *testing.T) *bounds.Boundary {
	t.Helper()
	b, err := bounds.New(10, 0, 10, 0, nil)
	require.NoError(t, err)
	return b
}
