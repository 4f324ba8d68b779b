// Package elevation looks up ground elevation for geographic points.
// The registry's altitude cache is the only consumer; it maps every
// failure kind to a random plausible fallback, so errors here are
// classification signals, never fatal.
package elevation

import (
	"context"
	"errors"

	"github.com/udisondev/spawntrack/internal/bounds"
	"github.com/udisondev/spawntrack/internal/model"
)

// Failure kinds the altitude cache distinguishes when logging.
// Anything not matching these two is treated as "other".
var (
	// ErrEmptyResult means the provider answered but had no elevation
	// for the requested point.
	ErrEmptyResult = errors.New("elevation: empty result")

	// ErrMalformedResult means the provider's answer could not be decoded.
	ErrMalformedResult = errors.New("elevation: malformed result")
)

// Service resolves elevations for points.
type Service interface {
	// Fetch returns the elevation in meters at the given point.
	Fetch(ctx context.Context, p model.Point) (float64, error)

	// BulkFetch returns elevations for a grid of points covering the
	// boundary's bounding box, keyed by coordinates rounded to precision
	// decimal places. A nil boundary means the provider's full coverage
	// is unavailable and an empty map is returned without error.
	BulkFetch(ctx context.Context, b *bounds.Boundary, precision int) (map[model.Point]float64, error)
}
