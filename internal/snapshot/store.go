// Package snapshot persists opaque cache snapshots in a Pebble key/value
// store. The payload is a versioned blob owned by the registry; this
// package only moves bytes and distinguishes "no snapshot yet" from
// real failures.
package snapshot

import (
	"errors"
	"fmt"
	"os"

	"github.com/cockroachdb/pebble"
)

// ErrNotFound is returned by Load when no snapshot exists under the key.
var ErrNotFound = errors.New("snapshot: not found")

// Store is a Pebble-backed blob store for snapshots.
type Store struct {
	db *pebble.DB
}

// Open opens or creates the snapshot database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("snapshot: database path is empty")
	}
	if info, err := os.Stat(path); err == nil {
		if !info.IsDir() {
			return nil, fmt.Errorf("snapshot: %s exists and is not a directory", path)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("snapshot: stat path: %w", err)
	}

	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("snapshot: opening pebble db: %w", err)
	}
	return &Store{db: db}, nil
}

// Load returns the blob stored under key, or ErrNotFound.
func (s *Store) Load(key string) ([]byte, error) {
	value, closer, err := s.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot: loading %q: %w", key, err)
	}
	defer closer.Close()

	blob := make([]byte, len(value))
	copy(blob, value)
	return blob, nil
}

// Save durably writes the blob under key.
func (s *Store) Save(key string, blob []byte) error {
	if err := s.db.Set([]byte(key), blob, pebble.Sync); err != nil {
		return fmt.Errorf("snapshot: saving %q: %w", key, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
