package dag

import (
	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// IdSet is a set of IDs. It backs the covered and reserved sets consulted
// during assignment.
type IdSet struct {
	bm *roaring64.Bitmap
}

// NewIdSet creates an empty set
func NewIdSet() *IdSet {
	return &IdSet{bm: roaring64.New()}
}

// IdSetOf creates a set holding the given IDs
func IdSetOf(ids ...ID) *IdSet {
	s := NewIdSet()
	for _, id := range ids {
		s.Push(id)
	}
	return s
}

// Push adds an ID to the set
func (s *IdSet) Push(id ID) {
	s.bm.Add(uint64(id))
}

// PushRange adds the inclusive range low..=high
func (s *IdSet) PushRange(low, high ID) {
	s.bm.AddRange(uint64(low), uint64(high)+1)
}

// Contains reports whether the set holds id
func (s *IdSet) Contains(id ID) bool {
	return s.bm.Contains(uint64(id))
}

// IsEmpty reports whether the set is empty
func (s *IdSet) IsEmpty() bool {
	return s.bm.IsEmpty()
}

// Len returns the number of IDs in the set
func (s *IdSet) Len() uint64 {
	return s.bm.GetCardinality()
}

// NextFree returns the smallest ID >= candidate that is not in the set,
// skipping over the contiguous run that contains the candidate.
func (s *IdSet) NextFree(candidate ID) ID {
	c := uint64(candidate)
	it := s.bm.Iterator()
	it.AdvanceIfNeeded(c)
	for it.HasNext() {
		if it.Next() != c {
			break
		}
		c++
	}
	return ID(c)
}
