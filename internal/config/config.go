package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/udisondev/spawntrack/internal/bounds"
	"github.com/udisondev/spawntrack/internal/model"
)

// Server holds all configuration for the spawncached daemon.
type Server struct {
	LogLevel string `yaml:"log_level"`

	// Database
	Database DatabaseConfig `yaml:"database"`

	// Snapshot persistence
	Snapshot SnapshotConfig `yaml:"snapshot"`

	// Elevation service
	Elevation ElevationConfig `yaml:"elevation"`

	// Tracked area
	Bounds BoundsConfig `yaml:"bounds"`

	// Cache behavior
	Cache CacheConfig `yaml:"cache"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// SnapshotConfig controls snapshot persistence.
type SnapshotConfig struct {
	Path            string `yaml:"path"` // pebble database directory
	Key             string `yaml:"key"`
	IntervalMinutes int    `yaml:"interval_minutes"`
}

// Interval returns the periodic snapshot interval.
func (s SnapshotConfig) Interval() time.Duration {
	return time.Duration(s.IntervalMinutes) * time.Minute
}

// ElevationConfig points at the elevation lookup service and shapes the
// altitude cache.
type ElevationConfig struct {
	URL            string  `yaml:"url"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	Precision      int     `yaml:"precision"` // decimal places for cache keys
	RandomMin      float64 `yaml:"random_min"` // fallback range, meters
	RandomMax      float64 `yaml:"random_max"`
}

// Timeout returns the per-request elevation fetch timeout.
func (e ElevationConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

// BoundsConfig describes the tracked area. Disabled means all store
// records are tracked.
type BoundsConfig struct {
	Enabled bool    `yaml:"enabled"`
	North   float64 `yaml:"north"`
	South   float64 `yaml:"south"`
	East    float64 `yaml:"east"`
	West    float64 `yaml:"west"`
	// Polygon optionally refines the box; at least 3 nodes when set.
	Polygon []PolygonNode `yaml:"polygon"`
}

// PolygonNode is one polygon vertex.
type PolygonNode struct {
	Lat float64 `yaml:"lat"`
	Lon float64 `yaml:"lon"`
}

// Boundary builds the boundary filter, nil when disabled.
func (b BoundsConfig) Boundary() (*bounds.Boundary, error) {
	if !b.Enabled {
		return nil, nil
	}
	polygon := make([]model.Point, 0, len(b.Polygon))
	for _, n := range b.Polygon {
		polygon = append(polygon, model.NewPoint(n.Lat, n.Lon))
	}
	return bounds.New(b.North, b.South, b.East, b.West, polygon)
}

// CacheConfig shapes the spawn registry.
type CacheConfig struct {
	// TrackProvisional selects the extended variant with the third
	// bucket for points seen in live traffic.
	TrackProvisional bool `yaml:"track_provisional"`

	// LastMigration is the freshness cutoff: store records not updated
	// after it are treated as unknown.
	LastMigration time.Time `yaml:"last_migration"`

	// ReconcileIntervalMinutes is how often the registry refreshes from
	// the store; 0 disables periodic refresh.
	ReconcileIntervalMinutes int `yaml:"reconcile_interval_minutes"`
}

// ReconcileInterval returns the periodic reconcile interval.
func (c CacheConfig) ReconcileInterval() time.Duration {
	return time.Duration(c.ReconcileIntervalMinutes) * time.Minute
}

// DefaultServer returns Server config with sensible defaults.
func DefaultServer() Server {
	return Server{
		LogLevel: "info",
		Database: DatabaseConfig{
			Host:     "127.0.0.1",
			Port:     5432,
			User:     "spawntrack",
			Password: "spawntrack",
			DBName:   "spawntrack",
			SSLMode:  "disable",
		},
		Snapshot: SnapshotConfig{
			Path:            "data/snapshots",
			Key:             "spawns",
			IntervalMinutes: 15,
		},
		Elevation: ElevationConfig{
			URL:            "https://api.open-elevation.com/api/v1/lookup",
			TimeoutSeconds: 10,
			Precision:      3,
			RandomMin:      300,
			RandomMax:      400,
		},
		Cache: CacheConfig{
			ReconcileIntervalMinutes: 60,
		},
	}
}

// LoadServer loads the daemon config from path, falling back to defaults
// when the file does not exist.
func LoadServer(path string) (Server, error) {
	cfg := DefaultServer()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}
