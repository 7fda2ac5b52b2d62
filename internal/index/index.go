package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"git.mills.io/prologic/bitcask"
	log "github.com/sirupsen/logrus"
)

// ErrNotFound is returned when a path has no index record.
var ErrNotFound = errors.New("path not indexed")

// Record describes one verified completed download.
type Record struct {
	URL         string    `json:"url"`
	Path        string    `json:"path"`
	Size        int64     `json:"size"`
	BLAKE3      string    `json:"blake3,omitempty"`
	CompletedAt time.Time `json:"completedAt"`
}

// DB wraps the bitcask store holding completion records, keyed by
// destination path.
type DB struct {
	db *bitcask.Bitcask
	sync.RWMutex
	closeOnce sync.Once
	closeErr  error
}

// Open initializes and returns a DB instance.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create index directory %s: %w", dir, err)
		}
	}

	db, err := bitcask.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index at %s: %w", path, err)
	}

	log.Debugf("Download index opened at %s", path)
	return &DB{db: db}, nil
}

// Put stores or replaces the record for rec.Path.
func (d *DB) Put(rec Record) error {
	if rec.Path == "" {
		return errors.New("record has no path")
	}
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal index record for %s: %w", rec.Path, err)
	}

	d.Lock()
	defer d.Unlock()
	if err := d.db.Put([]byte(rec.Path), value); err != nil {
		return fmt.Errorf("failed to write index record for %s: %w", rec.Path, err)
	}
	return nil
}

// Get returns the record for a destination path, or ErrNotFound.
func (d *DB) Get(path string) (Record, error) {
	d.RLock()
	defer d.RUnlock()

	value, err := d.db.Get([]byte(path))
	if err != nil {
		if errors.Is(err, bitcask.ErrKeyNotFound) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("failed to read index record for %s: %w", path, err)
	}

	var rec Record
	if err := json.Unmarshal(value, &rec); err != nil {
		return Record{}, fmt.Errorf("failed to unmarshal index record for %s: %w", path, err)
	}
	return rec, nil
}

// Fold calls fn for every record in the index. Unreadable records are
// logged and skipped.
func (d *DB) Fold(fn func(Record) error) error {
	d.RLock()
	defer d.RUnlock()

	return d.db.Fold(func(key []byte) error {
		value, err := d.db.Get(key)
		if err != nil {
			log.WithError(err).Warnf("Skipping unreadable index key %s", string(key))
			return nil
		}
		var rec Record
		if err := json.Unmarshal(value, &rec); err != nil {
			log.WithError(err).Warnf("Skipping corrupt index record %s", string(key))
			return nil
		}
		return fn(rec)
	})
}

// Missing returns the records whose destination file no longer exists on
// disk, so re-downloads can be scheduled.
func (d *DB) Missing() ([]Record, error) {
	var missing []Record
	err := d.Fold(func(rec Record) error {
		if _, statErr := os.Stat(rec.Path); os.IsNotExist(statErr) {
			missing = append(missing, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return missing, nil
}

// Len returns the number of indexed records.
func (d *DB) Len() int {
	d.RLock()
	defer d.RUnlock()
	return d.db.Len()
}

// Close releases the underlying store. Safe to call more than once.
func (d *DB) Close() error {
	d.closeOnce.Do(func() {
		d.closeErr = d.db.Close()
	})
	return d.closeErr
}
