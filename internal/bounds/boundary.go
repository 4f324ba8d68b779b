// Package bounds restricts spawn tracking to a configured map area.
// A boundary is a lat/lon bounding box, optionally refined by a polygon
// tested with ray casting. The boundary's fingerprint participates in
// snapshot compatibility checks: a snapshot taken under a different
// boundary must not be restored.
package bounds

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/zeebo/xxh3"

	"github.com/udisondev/spawntrack/internal/model"
)

// Boundary describes the tracked area. A nil *Boundary disables filtering.
type Boundary struct {
	north, south float64
	east, west   float64
	polygon      []model.Point
}

// New creates a boundary from a bounding box and an optional polygon.
// The polygon, when present, must lie within the box; points are tested
// against the box first, then the polygon.
func New(north, south, east, west float64, polygon []model.Point) (*Boundary, error) {
	if north < south {
		return nil, fmt.Errorf("boundary north %f below south %f", north, south)
	}
	if east < west {
		return nil, fmt.Errorf("boundary east %f west of west %f", east, west)
	}
	if n := len(polygon); n > 0 && n < 3 {
		return nil, fmt.Errorf("boundary polygon needs at least 3 nodes, got %d", n)
	}
	return &Boundary{
		north:   north,
		south:   south,
		east:    east,
		west:    west,
		polygon: polygon,
	}, nil
}

// BBox returns the bounding box as (north, south, east, west), for use
// in store query prefilters.
func (b *Boundary) BBox() (north, south, east, west float64) {
	return b.north, b.south, b.east, b.west
}

// HasPolygon reports whether containment is refined beyond the box.
func (b *Boundary) HasPolygon() bool {
	return len(b.polygon) > 0
}

// Contains checks if the point is inside the boundary.
func (b *Boundary) Contains(p model.Point) bool {
	if b == nil {
		return true
	}
	if p.Lat < b.south || p.Lat > b.north || p.Lon < b.west || p.Lon > b.east {
		return false
	}
	if len(b.polygon) == 0 {
		return true
	}
	return b.containsPolygon(p)
}

// containsPolygon tests the point against the polygon with ray casting.
func (b *Boundary) containsPolygon(p model.Point) bool {
	n := len(b.polygon)
	count := 0
	j := n - 1

	for i := range n {
		pi, pj := b.polygon[i], b.polygon[j]
		if (pi.Lat > p.Lat) != (pj.Lat > p.Lat) {
			cross := (p.Lon-pi.Lon)*(pj.Lat-pi.Lat) -
				(pj.Lon-pi.Lon)*(p.Lat-pi.Lat)

			if cross == 0 {
				// Point lies on a polygon edge.
				return true
			}

			if (cross < 0) != (pj.Lat-pi.Lat < 0) {
				count++
			}
		}
		j = i
	}

	return count%2 == 1
}

// Fingerprint hashes the boundary geometry. Two boundaries with the same
// box and polygon nodes produce the same value. A nil boundary hashes to 0.
func (b *Boundary) Fingerprint() uint64 {
	if b == nil {
		return 0
	}
	buf := make([]byte, 0, 32+16*len(b.polygon))
	for _, v := range []float64{b.north, b.south, b.east, b.west} {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
	}
	for _, p := range b.polygon {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(p.Lat))
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(p.Lon))
	}
	return xxh3.Hash(buf)
}
