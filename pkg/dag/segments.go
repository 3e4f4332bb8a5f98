package dag

import "sort"

// FlatSegment is a contiguous ID range Low..=High whose first member has
// the given parents; members after the first have exactly the previous ID
// as their sole parent. This is the unit appended to the persistent
// segment list.
type FlatSegment struct {
	Low     ID
	High    ID
	Parents []ID
}

// PreparedFlatSegments collects the new edges produced by one assign-head
// call. Contiguous runs that chain through single parents are coalesced
// into one segment.
type PreparedFlatSegments struct {
	segments []FlatSegment
	byHigh   map[ID]int
}

// NewPreparedFlatSegments creates an empty collection
func NewPreparedFlatSegments() *PreparedFlatSegments {
	return &PreparedFlatSegments{byHigh: make(map[ID]int)}
}

// PushEdge records that id was assigned with the given parents. When id
// extends an existing segment (single parent, immediately preceding ID),
// the segment grows instead of a new one being added.
func (p *PreparedFlatSegments) PushEdge(id ID, parents []ID) {
	if len(parents) == 1 && parents[0]+1 == id {
		if idx, ok := p.byHigh[parents[0]]; ok {
			delete(p.byHigh, parents[0])
			p.segments[idx].High = id
			p.byHigh[id] = idx
			return
		}
	}
	p.segments = append(p.segments, FlatSegment{
		Low:     id,
		High:    id,
		Parents: append([]ID(nil), parents...),
	})
	p.byHigh[id] = len(p.segments) - 1
}

// Segments returns the collected segments ordered by Low
func (p *PreparedFlatSegments) Segments() []FlatSegment {
	out := append([]FlatSegment(nil), p.segments...)
	sort.Slice(out, func(i, j int) bool { return out[i].Low < out[j].Low })
	return out
}

// IDCount returns the total number of IDs covered by the segments
func (p *PreparedFlatSegments) IDCount() uint64 {
	var n uint64
	for _, seg := range p.segments {
		n += uint64(seg.High) - uint64(seg.Low) + 1
	}
	return n
}
