package model

import "math"

// Point is a geographic coordinate pair.
// Value type, passed by value (immutable). Used directly as a map key:
// timing caches key on the full-precision point, the altitude cache keys
// on a rounded copy so nearby points share one elevation sample.
type Point struct {
	Lat float64
	Lon float64
}

// NewPoint creates a Point with the given coordinates.
func NewPoint(lat, lon float64) Point {
	return Point{Lat: lat, Lon: lon}
}

// Round returns a copy of the point with both coordinates rounded to
// precision decimal places. Precision 0 rounds to whole degrees.
func (p Point) Round(precision int) Point {
	scale := math.Pow10(precision)
	return Point{
		Lat: math.Round(p.Lat*scale) / scale,
		Lon: math.Round(p.Lon*scale) / scale,
	}
}
