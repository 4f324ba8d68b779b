package model

import "time"

// Cycle constants for spawn timing. Every spawn repeats on an hour-long
// cycle; half-hour spawns report their despawn second shifted by half a
// cycle relative to full-hour spawns.
const (
	CycleSeconds     = 3600
	HalfCycleSeconds = 1800

	// FullHourDurationMinutes marks a record whose despawn second needs
	// no shift to be comparable across the whole cycle.
	FullHourDurationMinutes = 60
)

// Spawnpoint is a single spawn record as read from the persistent store.
type Spawnpoint struct {
	// ID is the opaque identifier the store assigned to this physical
	// location. Stable across reconciliations.
	ID int64

	Point Point

	// Updated is when the store last confirmed this record, nil if never.
	Updated *time.Time

	// DurationMinutes is the event duration class (30 or 60).
	DurationMinutes int32

	// DespawnSecond is the raw second-of-hour [0, 3600) at which the
	// event ends, as encoded by the store for its duration class.
	DespawnSecond int32

	// Altitude is the ground elevation at the point, nil if the store
	// has never measured it.
	Altitude *float64
}

// CycleSecond returns the despawn second normalized to a comparable
// second-of-hour: half-hour records are shifted by half a cycle and
// wrapped, full-hour records report it directly.
func (s Spawnpoint) CycleSecond() int32 {
	if s.DurationMinutes == FullHourDurationMinutes {
		return s.DespawnSecond
	}
	return (s.DespawnSecond + HalfCycleSeconds) % CycleSeconds
}
