package blobstore

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/pack"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(NewMemStore(), 3)
	require.NoError(t, err)
	return store
}

func TestPutGetSingle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	payload := bytes.Repeat([]byte("abcdef"), 1000)
	require.NoError(t, store.Put(ctx, "repo0001.content.xyz", payload))

	got, sizing, err := store.Get(ctx, "repo0001.content.xyz")
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	require.NotNil(t, sizing)
	assert.Greater(t, sizing.UniqueCompressedSize, uint64(0))
	assert.Less(t, sizing.UniqueCompressedSize, uint64(len(payload)))
	assert.Nil(t, sizing.Pack)
}

func TestGetAbsent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	got, sizing, err := store.Get(ctx, "no.such.key")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Nil(t, sizing)
}

func TestPutIsKeyIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Put(ctx, "k", []byte("same bytes")))
	require.NoError(t, store.Put(ctx, "k", []byte("same bytes")))

	got, _, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("same bytes"), got)
}

func TestPutPackedAndReadMembers(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	base := bytes.Repeat([]byte("base blob contents "), 500)
	v1 := append(append([]byte(nil), base...), []byte("and a little more")...)

	p, err := pack.NewEmptyPack(3).AddBaseBlob("changeset.aaa", base)
	require.NoError(t, err)
	require.NoError(t, p.AddDeltaBlob("changeset.aaa", "changeset.bbb", v1))

	packKey, members, err := store.PutPacked(ctx, p, "repo0007.")
	require.NoError(t, err)
	assert.Contains(t, packKey, "repo0007.")
	assert.Equal(t, []string{"changeset.aaa", "changeset.bbb"}, members)

	// Members resolve through their link records
	got, sizing, err := store.Get(ctx, "changeset.bbb")
	require.NoError(t, err)
	assert.Equal(t, v1, got)
	require.NotNil(t, sizing.Pack)
	assert.Equal(t, packKey, sizing.Pack.PackKey)
	assert.GreaterOrEqual(t, sizing.Pack.RelevantCompressedSize, sizing.UniqueCompressedSize)

	// A prefixed lookup reaches the same member
	got, _, err = store.Get(ctx, "repo0007.changeset.aaa")
	require.NoError(t, err)
	assert.Equal(t, base, got)
}

func TestPackReadUsesCache(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	p, err := pack.NewEmptyPack(3).AddBaseBlob("k1", bytes.Repeat([]byte("x"), 4096))
	require.NoError(t, err)
	_, _, err = store.PutPacked(ctx, p, "")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		got, _, err := store.Get(ctx, "k1")
		require.NoError(t, err)
		assert.Len(t, got, 4096)
	}
	assert.Equal(t, 1, store.packCache.Len())
}

func TestBoltStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	raw, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer raw.Close()

	store, err := New(raw, 3)
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "changeset.abc", []byte("persistent payload")))
	got, _, err := store.Get(ctx, "changeset.abc")
	require.NoError(t, err)
	assert.Equal(t, []byte("persistent payload"), got)

	absent, _, err := store.Get(ctx, "changeset.absent")
	require.NoError(t, err)
	assert.Nil(t, absent)
}
