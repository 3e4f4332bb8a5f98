package xrepo

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/burrow/pkg/types"
)

// Mapping is the synced-commit mapping table. The tuple (sourceRepo,
// sourceCS, targetRepo) is unique; writes are idempotent upserts. Get
// returns nil when no row exists.
type Mapping interface {
	Get(ctx context.Context, sourceRepo types.RepoID, sourceCS types.ChangesetID, targetRepo types.RepoID) (*MappingRow, error)
	Upsert(ctx context.Context, row *MappingRow) error
	ListBySource(ctx context.Context, sourceRepo types.RepoID) ([]*MappingRow, error)
	Close() error
}

var bucketMapping = []byte("synced_commit_mapping")

// BoltMapping implements Mapping using BoltDB
type BoltMapping struct {
	db *bolt.DB
}

// NewBoltMapping opens (or creates) the mapping database in dataDir
func NewBoltMapping(dataDir string) (*BoltMapping, error) {
	dbPath := filepath.Join(dataDir, "mapping.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketMapping)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create mapping bucket: %w", err)
	}

	return &BoltMapping{db: db}, nil
}

// Close closes the database
func (m *BoltMapping) Close() error {
	return m.db.Close()
}

func mappingKey(sourceRepo types.RepoID, sourceCS types.ChangesetID, targetRepo types.RepoID) []byte {
	key := make([]byte, 0, 4+len(sourceCS)+4)
	key = binary.BigEndian.AppendUint32(key, uint32(sourceRepo))
	key = append(key, sourceCS[:]...)
	key = binary.BigEndian.AppendUint32(key, uint32(targetRepo))
	return key
}

// Get implements Mapping
func (m *BoltMapping) Get(ctx context.Context, sourceRepo types.RepoID, sourceCS types.ChangesetID, targetRepo types.RepoID) (*MappingRow, error) {
	var row *MappingRow
	err := m.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketMapping).Get(mappingKey(sourceRepo, sourceCS, targetRepo))
		if data == nil {
			return nil
		}
		row = &MappingRow{}
		return json.Unmarshal(data, row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping for %s: %w", sourceCS, err)
	}
	return row, nil
}

// Upsert implements Mapping. Re-writing an identical row is a no-op.
func (m *BoltMapping) Upsert(ctx context.Context, row *MappingRow) error {
	return m.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(row)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketMapping).Put(mappingKey(row.SourceRepo, row.SourceCS, row.TargetRepo), data)
	})
}

// ListBySource implements Mapping
func (m *BoltMapping) ListBySource(ctx context.Context, sourceRepo types.RepoID) ([]*MappingRow, error) {
	var rows []*MappingRow
	prefix := binary.BigEndian.AppendUint32(nil, uint32(sourceRepo))
	err := m.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketMapping).Cursor()
		for k, v := c.Seek(prefix); k != nil && len(k) >= 4 && string(k[:4]) == string(prefix); k, v = c.Next() {
			var row MappingRow
			if err := json.Unmarshal(v, &row); err != nil {
				return err
			}
			rows = append(rows, &row)
		}
		return nil
	})
	return rows, err
}
