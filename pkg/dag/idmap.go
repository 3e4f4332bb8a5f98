package dag

import (
	"context"
	"fmt"
	"sync"
)

// IdMap is the injective partial mapping from vertex to ID. It may be
// backed by a remote service: every lookup carries a max-group bound so a
// lazy implementation can avoid round-trips when a local answer suffices.
// A returned ID is authoritative.
type IdMap interface {
	// VertexIDWithMaxGroup returns the vertex's ID if it is assigned in a
	// group <= maxGroup. An ID assigned only in a greater group is
	// reported as absent so the caller can re-assign it.
	VertexIDWithMaxGroup(ctx context.Context, v Vertex, maxGroup Group) (ID, bool, error)

	// VertexName returns the vertex assigned to id, if any
	VertexName(ctx context.Context, id ID) (Vertex, bool, error)

	// ContainsID reports whether id is assigned to any vertex
	ContainsID(ctx context.Context, id ID) (bool, error)
}

// IdMapWrite is the write side of an IdMap. Any path that can allocate IDs
// requires an exclusive writer lock; readers may proceed concurrently with
// other readers.
type IdMapWrite interface {
	// Insert adds the (id, vertex) pair. Both directions must stay
	// injective; re-assignment is permitted only from a greater group
	// down to a lower one, and replaces the old pair.
	Insert(ctx context.Context, id ID, v Vertex) error

	// RemoveRange deletes ids in low..=high and their vertexes, returning
	// the removed vertexes. Used for truncation and crash recovery.
	RemoveRange(ctx context.Context, low, high ID) ([]Vertex, error)
}

// AssignStore combines the read and write halves used by AssignHead
type AssignStore interface {
	IdMap
	IdMapWrite
}

// insertCheck validates an insert against existing entries. When replace
// is true, the vertex's old ID (existingIDForVertex) must be removed before
// the new pair is written.
func insertCheck(id ID, v Vertex, existingIDForVertex *ID, existingVertexForID *Vertex) (replace bool, err error) {
	if existingVertexForID != nil && *existingVertexForID != v {
		return false, fmt.Errorf("id %s is already assigned to another vertex", id)
	}
	if existingIDForVertex != nil && *existingIDForVertex != id {
		old := *existingIDForVertex
		if old.Group() <= id.Group() {
			return false, fmt.Errorf(
				"vertex %s is already assigned %s; cannot re-assign within or towards group %s",
				v, old, id.Group())
		}
		// Moving from a greater group down to a lower one replaces the
		// old pair.
		return true, nil
	}
	return false, nil
}

// MemIdMap is an in-memory IdMap used by tests and by client-local graphs
type MemIdMap struct {
	mu       sync.RWMutex
	idByName map[Vertex]ID
	nameByID map[ID]Vertex
}

// NewMemIdMap creates an empty in-memory IdMap
func NewMemIdMap() *MemIdMap {
	return &MemIdMap{
		idByName: make(map[Vertex]ID),
		nameByID: make(map[ID]Vertex),
	}
}

// VertexIDWithMaxGroup implements IdMap
func (m *MemIdMap) VertexIDWithMaxGroup(ctx context.Context, v Vertex, maxGroup Group) (ID, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.idByName[v]
	if !ok || id.Group() > maxGroup {
		return 0, false, nil
	}
	return id, true, nil
}

// VertexName implements IdMap
func (m *MemIdMap) VertexName(ctx context.Context, id ID) (Vertex, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.nameByID[id]
	return v, ok, nil
}

// ContainsID implements IdMap
func (m *MemIdMap) ContainsID(ctx context.Context, id ID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.nameByID[id]
	return ok, nil
}

// Insert implements IdMapWrite
func (m *MemIdMap) Insert(ctx context.Context, id ID, v Vertex) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var existingID *ID
	if old, ok := m.idByName[v]; ok {
		existingID = &old
	}
	var existingVertex *Vertex
	if old, ok := m.nameByID[id]; ok {
		existingVertex = &old
	}
	replace, err := insertCheck(id, v, existingID, existingVertex)
	if err != nil {
		return err
	}
	if replace {
		delete(m.nameByID, *existingID)
	}
	m.idByName[v] = id
	m.nameByID[id] = v
	return nil
}

// RemoveRange implements IdMapWrite
func (m *MemIdMap) RemoveRange(ctx context.Context, low, high ID) ([]Vertex, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed []Vertex
	for id, v := range m.nameByID {
		if id < low || id > high {
			continue
		}
		delete(m.nameByID, id)
		delete(m.idByName, v)
		removed = append(removed, v)
	}
	return removed, nil
}
