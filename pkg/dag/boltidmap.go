package dag

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketNameToID = []byte("idmap_name_to_id")
	bucketIDToName = []byte("idmap_id_to_name")
)

// BoltIdMap is a BoltDB-backed IdMap. It is the server-side, non-lazy
// implementation; both directions of the mapping live in their own bucket.
type BoltIdMap struct {
	db *bolt.DB
}

// NewBoltIdMap opens (or creates) the IdMap database in dataDir
func NewBoltIdMap(dataDir string) (*BoltIdMap, error) {
	dbPath := filepath.Join(dataDir, "dag.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketNameToID, bucketIDToName} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltIdMap{db: db}, nil
}

// Close closes the database
func (m *BoltIdMap) Close() error {
	return m.db.Close()
}

func encodeID(id ID) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(id))
	return buf[:]
}

func decodeID(data []byte) ID {
	return ID(binary.BigEndian.Uint64(data))
}

// VertexIDWithMaxGroup implements IdMap
func (m *BoltIdMap) VertexIDWithMaxGroup(ctx context.Context, v Vertex, maxGroup Group) (ID, bool, error) {
	var id ID
	var found bool
	err := m.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketNameToID).Get([]byte(v))
		if data == nil {
			return nil
		}
		candidate := decodeID(data)
		if candidate.Group() <= maxGroup {
			id = candidate
			found = true
		}
		return nil
	})
	return id, found, err
}

// VertexName implements IdMap
func (m *BoltIdMap) VertexName(ctx context.Context, id ID) (Vertex, bool, error) {
	var v Vertex
	var found bool
	err := m.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketIDToName).Get(encodeID(id))
		if data != nil {
			v = Vertex(append([]byte(nil), data...))
			found = true
		}
		return nil
	})
	return v, found, err
}

// ContainsID implements IdMap
func (m *BoltIdMap) ContainsID(ctx context.Context, id ID) (bool, error) {
	var found bool
	err := m.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(bucketIDToName).Get(encodeID(id)) != nil
		return nil
	})
	return found, err
}

// Insert implements IdMapWrite. The pair is written transactionally; the
// same injectivity and group rules as MemIdMap apply.
func (m *BoltIdMap) Insert(ctx context.Context, id ID, v Vertex) error {
	return m.db.Update(func(tx *bolt.Tx) error {
		nameToID := tx.Bucket(bucketNameToID)
		idToName := tx.Bucket(bucketIDToName)

		var existingID *ID
		if data := nameToID.Get([]byte(v)); data != nil {
			old := decodeID(data)
			existingID = &old
		}
		var existingVertex *Vertex
		if data := idToName.Get(encodeID(id)); data != nil {
			old := Vertex(append([]byte(nil), data...))
			existingVertex = &old
		}
		replace, err := insertCheck(id, v, existingID, existingVertex)
		if err != nil {
			return err
		}
		if replace {
			if err := idToName.Delete(encodeID(*existingID)); err != nil {
				return err
			}
		}
		if err := nameToID.Put([]byte(v), encodeID(id)); err != nil {
			return err
		}
		return idToName.Put(encodeID(id), []byte(v))
	})
}

// RemoveRange implements IdMapWrite
func (m *BoltIdMap) RemoveRange(ctx context.Context, low, high ID) ([]Vertex, error) {
	var removed []Vertex
	err := m.db.Update(func(tx *bolt.Tx) error {
		nameToID := tx.Bucket(bucketNameToID)
		idToName := tx.Bucket(bucketIDToName)

		c := idToName.Cursor()
		var toDelete [][]byte
		for k, name := c.Seek(encodeID(low)); k != nil && bytes.Compare(k, encodeID(high)) <= 0; k, name = c.Next() {
			v := Vertex(append([]byte(nil), name...))
			removed = append(removed, v)
			toDelete = append(toDelete, append([]byte(nil), k...))
			if err := nameToID.Delete(name); err != nil {
				return err
			}
		}
		for _, k := range toDelete {
			if err := idToName.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}
