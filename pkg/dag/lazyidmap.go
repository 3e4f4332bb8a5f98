package dag

import "context"

// LazyIdMap layers a local IdMap over a remote one. Lookups are answered
// locally when possible; remote answers are authoritative and are cached
// into the local map. The max-group bound on lookups is what lets the lazy
// layer avoid round-trips: a miss within the bound is final only after the
// remote has been consulted.
//
// Writes go to the local map only; the remote side is read-only here.
type LazyIdMap struct {
	local  AssignStore
	remote IdMap
}

// NewLazyIdMap creates a lazy IdMap. remote may be nil, in which case the
// map behaves exactly like the local one.
func NewLazyIdMap(local AssignStore, remote IdMap) *LazyIdMap {
	return &LazyIdMap{local: local, remote: remote}
}

// VertexIDWithMaxGroup implements IdMap
func (m *LazyIdMap) VertexIDWithMaxGroup(ctx context.Context, v Vertex, maxGroup Group) (ID, bool, error) {
	id, ok, err := m.local.VertexIDWithMaxGroup(ctx, v, maxGroup)
	if err != nil || ok {
		return id, ok, err
	}
	if m.remote == nil {
		return 0, false, nil
	}
	id, ok, err = m.remote.VertexIDWithMaxGroup(ctx, v, maxGroup)
	if err != nil || !ok {
		return 0, false, err
	}
	if err := m.local.Insert(ctx, id, v); err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// VertexName implements IdMap
func (m *LazyIdMap) VertexName(ctx context.Context, id ID) (Vertex, bool, error) {
	v, ok, err := m.local.VertexName(ctx, id)
	if err != nil || ok {
		return v, ok, err
	}
	if m.remote == nil {
		return "", false, nil
	}
	v, ok, err = m.remote.VertexName(ctx, id)
	if err != nil || !ok {
		return "", false, err
	}
	if err := m.local.Insert(ctx, id, v); err != nil {
		return "", false, err
	}
	return v, true, nil
}

// ContainsID implements IdMap
func (m *LazyIdMap) ContainsID(ctx context.Context, id ID) (bool, error) {
	ok, err := m.local.ContainsID(ctx, id)
	if err != nil || ok {
		return ok, err
	}
	if m.remote == nil {
		return false, nil
	}
	return m.remote.ContainsID(ctx, id)
}

// Insert implements IdMapWrite
func (m *LazyIdMap) Insert(ctx context.Context, id ID, v Vertex) error {
	return m.local.Insert(ctx, id, v)
}

// RemoveRange implements IdMapWrite
func (m *LazyIdMap) RemoveRange(ctx context.Context, low, high ID) ([]Vertex, error) {
	return m.local.RemoveRange(ctx, low, high)
}
