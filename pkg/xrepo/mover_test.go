package xrepo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForwardMoverPrefix(t *testing.T) {
	config := &VersionConfig{Name: "v1", Prefix: "linear"}
	mover := config.Mover(true)

	mapped, ok, err := mover("a.txt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "linear/a.txt", mapped)

	mapped, ok, err = mover("dir/b.txt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "linear/dir/b.txt", mapped)
}

func TestForwardMoverOverrides(t *testing.T) {
	config := &VersionConfig{
		Name:   "v1",
		Prefix: "small",
		Overrides: map[string]string{
			"tools":     "shared/tools",
			"tools/sub": "other/sub",
		},
	}
	mover := config.Mover(true)

	// Longest override source wins
	mapped, _, err := mover("tools/sub/x.sh")
	require.NoError(t, err)
	assert.Equal(t, "other/sub/x.sh", mapped)

	mapped, _, err = mover("tools/build.sh")
	require.NoError(t, err)
	assert.Equal(t, "shared/tools/build.sh", mapped)

	mapped, _, err = mover("src/main.go")
	require.NoError(t, err)
	assert.Equal(t, "small/src/main.go", mapped)
}

func TestReverseMoverStripsPrefix(t *testing.T) {
	config := &VersionConfig{
		Name:   "v1",
		Prefix: "small",
		Overrides: map[string]string{
			"tools": "shared/tools",
		},
	}
	mover := config.Mover(false)

	mapped, ok, err := mover("small/src/main.go")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "src/main.go", mapped)

	mapped, ok, err = mover("shared/tools/build.sh")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "tools/build.sh", mapped)

	// Outside the projection
	_, ok, err = mover("unrelated/file.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	// A sibling that merely shares the prefix string is outside too
	_, ok, err = mover("smallish/file.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMoverConflictPath(t *testing.T) {
	config := &VersionConfig{
		Name:          "v1",
		Prefix:        "master_file",
		ConflictPaths: []string{"master_file"},
	}
	mover := config.Mover(true)

	_, _, err := mover("a.txt")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPathConflict)
}

func TestDropAllMover(t *testing.T) {
	mover := DropAllMover()
	_, ok, err := mover("anything")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEmptyPrefixMoverIsIdentity(t *testing.T) {
	config := &VersionConfig{Name: "v1"}

	mapped, ok, err := config.Mover(true)("x/y.txt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "x/y.txt", mapped)

	mapped, ok, err = config.Mover(false)("x/y.txt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "x/y.txt", mapped)
}
