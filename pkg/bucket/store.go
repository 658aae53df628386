// Package bucket implements the minimal persistent property store that the
// demo activities in cmd/wardenctl mutate while gated by a coordinator
// admission check. It stands in for the "bucket property storage" and
// "compaction scheduling" systems named as out of scope for the coordinator
// itself, and carries no leasing or quorum logic of its own.
package bucket

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketProperties = []byte("properties")
	bucketCompaction = []byte("compaction-state")
)

// CompactionRecord is the single entry kept in the compaction-state bucket,
// updated each time a compact activity runs to completion.
type CompactionRecord struct {
	RanAt        time.Time `json:"ran_at"`
	PropertyKeys int       `json:"property_keys"`
	BytesBefore  int       `json:"bytes_before"`
	BytesAfter   int       `json:"bytes_after"`
}

// Store is a tiny bbolt-backed key/value store over a single properties
// bucket, plus a fixed-key compaction-state bucket that records the
// outcome of the last compaction pass.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the bucket store file under dataDir.
func Open(dataDir string) (*Store, error) {
	dbPath := filepath.Join(dataDir, "bucket.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bucket store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketProperties, bucketCompaction} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the raw value stored under key, or (nil, false) if absent.
func (s *Store) Get(key string) ([]byte, bool, error) {
	var (
		val   []byte
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketProperties).Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		val = make([]byte, len(data))
		copy(val, data)
		return nil
	})
	return val, found, err
}

// Set upserts key to value.
func (s *Store) Set(key string, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProperties).Put([]byte(key), value)
	})
}

// Delete removes key. It is idempotent: deleting an absent key is not an
// error.
func (s *Store) Delete(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProperties).Delete([]byte(key))
	})
}

// List returns every key currently stored, in bbolt's natural (sorted)
// cursor order.
func (s *Store) List() ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketProperties).Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	return keys, err
}

// LastCompaction returns the most recently recorded compaction outcome, if
// any has run yet.
func (s *Store) LastCompaction() (CompactionRecord, bool, error) {
	var (
		rec   CompactionRecord
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketCompaction).Get([]byte("last"))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &rec)
	})
	return rec, found, err
}

// Compact drops every property whose value is empty and records the
// outcome. It is the body the demo compact activity runs under coordinator
// admission — real work a caller would not want racing against a second
// compaction on another node believing itself leader.
func (s *Store) Compact() (CompactionRecord, error) {
	var rec CompactionRecord
	err := s.db.Update(func(tx *bolt.Tx) error {
		props := tx.Bucket(bucketProperties)
		var dead [][]byte
		before := 0
		err := props.ForEach(func(k, v []byte) error {
			before += len(v)
			if len(v) == 0 {
				dead = append(dead, append([]byte{}, k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range dead {
			if err := props.Delete(k); err != nil {
				return err
			}
		}
		after := 0
		if err := props.ForEach(func(k, v []byte) error {
			after += len(v)
			return nil
		}); err != nil {
			return err
		}

		rec = CompactionRecord{
			RanAt:        time.Now(),
			PropertyKeys: props.Stats().KeyN,
			BytesBefore:  before,
			BytesAfter:   after,
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketCompaction).Put([]byte("last"), data)
	})
	return rec, err
}
