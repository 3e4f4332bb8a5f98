package dag

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIdMapBasicOperations(t *testing.T, m AssignStore) {
	ctx := context.Background()

	require.NoError(t, m.Insert(ctx, 1, "abc"))
	require.NoError(t, m.Insert(ctx, 2, "def"))
	require.NoError(t, m.Insert(ctx, 10, "ghi"))

	// Both directions must stay injective
	assert.Error(t, m.Insert(ctx, 11, "ghi"), "ghi already maps to 10")
	assert.Error(t, m.Insert(ctx, 10, "ghi2"), "10 already maps to ghi")

	// Re-inserting the same pair is fine
	require.NoError(t, m.Insert(ctx, 10, "ghi"))

	// Non-master entries
	nid := GroupNonMaster.MinID()
	require.NoError(t, m.Insert(ctx, nid, "jkl"))
	require.NoError(t, m.Insert(ctx, nid, "jkl"))
	assert.Error(t, m.Insert(ctx, nid, "jkl2"))
	require.NoError(t, m.Insert(ctx, nid+1, "jkl2"))
	assert.Error(t, m.Insert(ctx, nid+2, "jkl2"))

	// Re-assigning towards a greater group is forbidden; a lower group
	// replaces the old pair.
	assert.Error(t, m.Insert(ctx, nid+3, "abc"), "abc cannot move up to non-master")
	require.NoError(t, m.Insert(ctx, 15, "jkl2"), "jkl2 may move down to master")
	exists, err := m.ContainsID(ctx, nid+1)
	require.NoError(t, err)
	assert.False(t, exists, "old non-master id must be released")

	// Lookups
	id, ok, err := m.VertexIDWithMaxGroup(ctx, "abc", GroupNonMaster)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ID(1), id)

	_, ok, err = m.VertexIDWithMaxGroup(ctx, "jkl", GroupMaster)
	require.NoError(t, err)
	assert.False(t, ok, "jkl is non-master, master-bounded lookup must miss")

	name, ok, err := m.VertexName(ctx, 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Vertex("def"), name)

	_, ok, err = m.VertexName(ctx, 3)
	require.NoError(t, err)
	assert.False(t, ok)
}

func testIdMapRemoveRange(t *testing.T, m AssignStore) {
	ctx := context.Background()
	nid := func(i uint64) ID { return GroupNonMaster.MinID() + ID(i) }

	pairs := []struct {
		id   ID
		name Vertex
	}{
		{0, "z"}, {1, "a"}, {2, "bbb"}, {3, "bb"}, {4, "cc"},
		{5, "ccc"}, {9, "ddd"}, {11, "e"}, {13, "ff"},
		{nid(0), "n"}, {nid(1), "n1"}, {nid(2), "n2"}, {nid(3), "n3"},
		{nid(12), "n12"}, {nid(20), "n20"},
	}
	for _, p := range pairs {
		require.NoError(t, m.Insert(ctx, p.id, p.name))
	}

	sorted := func(vs []Vertex) []string {
		out := make([]string, 0, len(vs))
		for _, v := range vs {
			out = append(out, string(v))
		}
		sort.Strings(out)
		return out
	}

	removed, err := m.RemoveRange(ctx, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "bb", "bbb"}, sorted(removed))

	removed, err = m.RemoveRange(ctx, 8, 12)
	require.NoError(t, err)
	assert.Equal(t, []string{"ddd", "e"}, sorted(removed))

	removed, err = m.RemoveRange(ctx, nid(2), nid(4))
	require.NoError(t, err)
	assert.Equal(t, []string{"n2", "n3"}, sorted(removed))

	removed, err = m.RemoveRange(ctx, nid(20), nid(10000))
	require.NoError(t, err)
	assert.Equal(t, []string{"n20"}, sorted(removed))

	// Both directions are gone
	for _, name := range []string{"a", "bb", "bbb", "ddd", "e", "n2", "n3", "n20"} {
		_, ok, err := m.VertexIDWithMaxGroup(ctx, Vertex(name), GroupNonMaster)
		require.NoError(t, err)
		assert.False(t, ok, "%s must be removed", name)
	}
	// Untouched entries survive
	_, ok, err := m.VertexIDWithMaxGroup(ctx, "z", GroupNonMaster)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemIdMap(t *testing.T) {
	t.Run("basic", func(t *testing.T) { testIdMapBasicOperations(t, NewMemIdMap()) })
	t.Run("remove_range", func(t *testing.T) { testIdMapRemoveRange(t, NewMemIdMap()) })
}

func TestBoltIdMap(t *testing.T) {
	t.Run("basic", func(t *testing.T) {
		m, err := NewBoltIdMap(t.TempDir())
		require.NoError(t, err)
		defer m.Close()
		testIdMapBasicOperations(t, m)
	})
	t.Run("remove_range", func(t *testing.T) {
		m, err := NewBoltIdMap(t.TempDir())
		require.NoError(t, err)
		defer m.Close()
		testIdMapRemoveRange(t, m)
	})
}
