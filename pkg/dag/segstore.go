package dag

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

var bucketSegments = []byte("iddag_segments")

// segmentRecord is the stored form of one flat segment
type segmentRecord struct {
	Low     ID   `json:"low"`
	High    ID   `json:"high"`
	Parents []ID `json:"parents,omitempty"`
}

// BoltSegmentStore is the persistent segment list. Segments emitted by
// AssignHead are appended here; the union of all stored ranges is the
// covered set handed back to the next AssignHead call.
type BoltSegmentStore struct {
	db *bolt.DB
}

// NewBoltSegmentStore opens (or creates) the segment database in dataDir
func NewBoltSegmentStore(dataDir string) (*BoltSegmentStore, error) {
	dbPath := filepath.Join(dataDir, "segments.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSegments)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create segments bucket: %w", err)
	}

	return &BoltSegmentStore{db: db}, nil
}

// Close closes the database
func (s *BoltSegmentStore) Close() error {
	return s.db.Close()
}

// Append stores the segments produced by one AssignHead call. Re-appending
// a segment with the same low ID replaces it, so replaying a batch is
// harmless.
func (s *BoltSegmentStore) Append(ctx context.Context, prepared *PreparedFlatSegments) error {
	segments := prepared.Segments()
	if len(segments) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSegments)
		for _, seg := range segments {
			data, err := json.Marshal(segmentRecord(seg))
			if err != nil {
				return err
			}
			if err := b.Put(encodeID(seg.Low), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Segments returns every stored segment ordered by low ID
func (s *BoltSegmentStore) Segments(ctx context.Context) ([]FlatSegment, error) {
	var out []FlatSegment
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSegments).ForEach(func(k, v []byte) error {
			var rec segmentRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, FlatSegment(rec))
			return nil
		})
	})
	return out, err
}

// AllIDs rebuilds the covered set from the stored segments
func (s *BoltSegmentStore) AllIDs(ctx context.Context) (*IdSet, error) {
	covered := NewIdSet()
	segments, err := s.Segments(ctx)
	if err != nil {
		return nil, err
	}
	for _, seg := range segments {
		covered.PushRange(seg.Low, seg.High)
	}
	return covered, nil
}

// NextAvailableID returns the ID just past the highest stored segment in
// the group, or the group's minimum ID when it has none. Gaps below the
// highest segment are not reported.
func (s *BoltSegmentStore) NextAvailableID(ctx context.Context, group Group) (ID, error) {
	next := group.MinID()
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketSegments).Cursor()
		for k, v := c.Seek(encodeID(group.MinID())); k != nil; k, v = c.Next() {
			if binary.BigEndian.Uint64(k) > uint64(group.MaxID()) {
				break
			}
			var rec segmentRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if rec.High+1 > next {
				next = rec.High + 1
			}
		}
		return nil
	})
	return next, err
}
