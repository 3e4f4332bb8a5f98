package blobstore

import (
	"context"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

var bucketBlobs = []byte("blobs")

// BoltStore implements RawStore using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) a BoltDB-backed raw store in dataDir
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "blobs.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketBlobs)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create blobs bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Put stores value under key. The write is atomic; re-putting the same key
// replaces the value.
func (s *BoltStore) Put(ctx context.Context, key string, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBlobs).Put([]byte(key), value)
	})
}

// Get returns the value stored under key, or nil if absent
func (s *BoltStore) Get(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketBlobs).Get([]byte(key))
		if data != nil {
			// Copy since BoltDB data is only valid during the transaction
			out = make([]byte, len(data))
			copy(out, data)
		}
		return nil
	})
	return out, err
}
