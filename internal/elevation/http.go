package elevation

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/udisondev/spawntrack/internal/bounds"
	"github.com/udisondev/spawntrack/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// bulkBatchSize caps how many grid points go into one lookup request.
const bulkBatchSize = 256

// HTTPService queries an open-elevation compatible lookup endpoint.
type HTTPService struct {
	url    string
	client *http.Client
}

// NewHTTPService creates a client for the given lookup URL.
// A zero timeout falls back to 10 seconds.
func NewHTTPService(url string, timeout time.Duration) *HTTPService {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPService{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type lookupRequest struct {
	Locations []lookupLocation `json:"locations"`
}

type lookupLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type lookupResponse struct {
	Results []lookupResult `json:"results"`
}

type lookupResult struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Elevation *float64 `json:"elevation"`
}

// Fetch resolves the elevation of a single point.
func (s *HTTPService) Fetch(ctx context.Context, p model.Point) (float64, error) {
	results, err := s.lookup(ctx, []lookupLocation{{Latitude: p.Lat, Longitude: p.Lon}})
	if err != nil {
		return 0, err
	}
	if len(results) == 0 {
		return 0, fmt.Errorf("%w for (%f, %f)", ErrEmptyResult, p.Lat, p.Lon)
	}
	if results[0].Elevation == nil {
		return 0, fmt.Errorf("%w: missing elevation field for (%f, %f)", ErrMalformedResult, p.Lat, p.Lon)
	}
	return *results[0].Elevation, nil
}

// BulkFetch resolves a grid of elevations across the boundary's bounding
// box, stepping at the cache precision so every rounded cache key in the
// area gets a sample.
func (s *HTTPService) BulkFetch(ctx context.Context, b *bounds.Boundary, precision int) (map[model.Point]float64, error) {
	out := make(map[model.Point]float64)
	if b == nil {
		return out, nil
	}

	north, south, east, west := b.BBox()
	step := 1 / math.Pow10(precision)

	var batch []lookupLocation
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		results, err := s.lookup(ctx, batch)
		if err != nil {
			return err
		}
		for _, r := range results {
			if r.Elevation == nil {
				continue
			}
			key := model.NewPoint(r.Latitude, r.Longitude).Round(precision)
			out[key] = *r.Elevation
		}
		batch = batch[:0]
		return nil
	}

	for lat := south; lat <= north; lat += step {
		for lon := west; lon <= east; lon += step {
			batch = append(batch, lookupLocation{Latitude: lat, Longitude: lon})
			if len(batch) >= bulkBatchSize {
				if err := flush(); err != nil {
					return nil, err
				}
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}

	slog.Info("bulk elevation fetch complete", "points", len(out))
	return out, nil
}

// lookup posts a batch of locations to the provider and decodes the answer.
func (s *HTTPService) lookup(ctx context.Context, locations []lookupLocation) ([]lookupResult, error) {
	body, err := json.Marshal(lookupRequest{Locations: locations})
	if err != nil {
		return nil, fmt.Errorf("encoding lookup request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building lookup request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying elevation service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevation service returned status %d", resp.StatusCode)
	}

	var decoded lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResult, err)
	}
	return decoded.Results, nil
}
