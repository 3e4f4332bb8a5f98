package xrepo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/blobstore"
	"github.com/cuemby/burrow/pkg/types"
)

func cid(seed string) types.ChangesetID {
	return types.ChangesetID(types.HashContent([]byte(seed)))
}

func fileChange(content string) *types.FileChange {
	return &types.FileChange{
		Kind:      types.FileChangeKindChange,
		ContentID: types.HashContent([]byte(content)),
		FileType:  types.FileTypeRegular,
		Size:      uint64(len(content)),
	}
}

func commit(parents []types.ChangesetID, changes map[string]*types.FileChange) *types.Changeset {
	return &types.Changeset{
		Parents:     parents,
		Author:      "test author <author@example.com>",
		AuthorDate:  time.Date(2024, 5, 14, 10, 30, 0, 0, time.UTC),
		Message:     "test commit",
		FileChanges: changes,
	}
}

func smallToLargePair() RepoPair {
	return RepoPair{
		SourceRepo: 1, SourceRepoName: "small",
		TargetRepo: 0, TargetRepoName: "large",
		SmallToLarge: true,
	}
}

func largeToSmallPair() RepoPair {
	return RepoPair{
		SourceRepo: 0, SourceRepoName: "large",
		TargetRepo: 1, TargetRepoName: "small",
		SmallToLarge: false,
	}
}

func version(v VersionName) *VersionName { return &v }

func TestSyncNoParentsRequiresVersion(t *testing.T) {
	syncer := &InMemorySyncer{
		Pair:     smallToLargePair(),
		Registry: NewRegistry(&VersionConfig{Name: "v1", Prefix: "linear"}),
	}
	cs := commit(nil, map[string]*types.FileChange{"a.txt": fileChange("X")})

	_, err := syncer.SyncCommitInMemory(context.Background(), cs, ContextForwardSyncer, nil)
	assert.ErrorContains(t, err, "no version specified")
}

func TestSyncNoParentsRewrite(t *testing.T) {
	syncer := &InMemorySyncer{
		Pair:     smallToLargePair(),
		Registry: NewRegistry(&VersionConfig{Name: "v1", Prefix: "linear"}),
	}
	cs := commit(nil, map[string]*types.FileChange{"a.txt": fileChange("X")})

	plan, err := syncer.SyncCommitInMemory(context.Background(), cs, ContextForwardSyncer, version("v1"))
	require.NoError(t, err)
	assert.Equal(t, ResultRewritten, plan.Kind)
	assert.Equal(t, VersionName("v1"), plan.Version)
	require.NotNil(t, plan.Rewritten)
	assert.Contains(t, plan.Rewritten.Changeset.FileChanges, "linear/a.txt")
	assert.Empty(t, plan.Rewritten.Changeset.Parents)
}

func TestSyncSingleParentRewrite(t *testing.T) {
	// The target repo already has the parent's image M0
	m0 := cid("M0")
	p := cid("P")
	syncer := &InMemorySyncer{
		Pair:     smallToLargePair(),
		Registry: NewRegistry(&VersionConfig{Name: "v1", Prefix: "linear"}),
		MappedParents: map[types.ChangesetID]SyncOutcome{
			p: {Kind: OutcomeRewritten, Target: &m0, Version: "v1"},
		},
	}
	cs := commit([]types.ChangesetID{p}, map[string]*types.FileChange{"a.txt": fileChange("X")})

	plan, err := syncer.SyncCommitInMemory(context.Background(), cs, ContextForwardSyncer, nil)
	require.NoError(t, err)
	assert.Equal(t, ResultRewritten, plan.Kind)
	require.NotNil(t, plan.Rewritten)

	rewritten := plan.Rewritten.Changeset
	require.Len(t, rewritten.Parents, 1)
	assert.Equal(t, m0, rewritten.Parents[0])
	require.Contains(t, rewritten.FileChanges, "linear/a.txt")
	assert.Equal(t, types.HashContent([]byte("X")), rewritten.FileChanges["linear/a.txt"].ContentID)
}

func TestSyncChildOfNotSyncCandidate(t *testing.T) {
	p := cid("P")
	syncer := &InMemorySyncer{
		Pair:     largeToSmallPair(),
		Registry: NewRegistry(&VersionConfig{Name: "v1", Prefix: "small"}),
		MappedParents: map[types.ChangesetID]SyncOutcome{
			p: {Kind: OutcomeNotSyncCandidate, Version: "v1"},
		},
	}
	cs := commit([]types.ChangesetID{p}, map[string]*types.FileChange{"outside/a.txt": fileChange("X")})

	plan, err := syncer.SyncCommitInMemory(context.Background(), cs, ContextBacksyncer, nil)
	require.NoError(t, err)
	assert.Equal(t, ResultNoSyncCandidate, plan.Kind)
	assert.Equal(t, VersionName("v1"), plan.Version)
}

func TestSyncUnresolvedParent(t *testing.T) {
	p := cid("P")
	syncer := &InMemorySyncer{
		Pair:     smallToLargePair(),
		Registry: NewRegistry(&VersionConfig{Name: "v1", Prefix: "linear"}),
	}
	cs := commit([]types.ChangesetID{p}, map[string]*types.FileChange{"a.txt": fileChange("X")})

	_, err := syncer.SyncCommitInMemory(context.Background(), cs, ContextForwardSyncer, nil)
	assert.ErrorContains(t, err, "not synced yet")
}

func TestSyncUnexpectedVersion(t *testing.T) {
	m0 := cid("M0")
	p := cid("P")
	syncer := &InMemorySyncer{
		Pair: smallToLargePair(),
		Registry: NewRegistry(
			&VersionConfig{Name: "v1", Prefix: "linear"},
			&VersionConfig{Name: "v2", Prefix: "other"},
		),
		MappedParents: map[types.ChangesetID]SyncOutcome{
			p: {Kind: OutcomeRewritten, Target: &m0, Version: "v1"},
		},
	}
	cs := commit([]types.ChangesetID{p}, map[string]*types.FileChange{"a.txt": fileChange("X")})

	_, err := syncer.SyncCommitInMemory(context.Background(), cs, ContextForwardSyncer, version("v2"))
	var versionErr *UnexpectedVersionError
	require.ErrorAs(t, err, &versionErr)
	assert.Equal(t, VersionName("v2"), versionErr.Expected)
	assert.Equal(t, VersionName("v1"), versionErr.Actual)
	assert.Equal(t, cs.ID(), versionErr.CS)
}

func TestSyncMoverConflictIsFatal(t *testing.T) {
	ctx := context.Background()
	m0 := cid("M0")
	p := cid("P")
	pair := smallToLargePair()
	syncer := &InMemorySyncer{
		Pair: pair,
		Registry: NewRegistry(&VersionConfig{
			Name:          "v1",
			Prefix:        "master_file",
			ConflictPaths: []string{"master_file"},
		}),
		MappedParents: map[types.ChangesetID]SyncOutcome{
			p: {Kind: OutcomeRewritten, Target: &m0, Version: "v1"},
		},
	}
	cs := commit([]types.ChangesetID{p}, map[string]*types.FileChange{"a.txt": fileChange("X")})

	_, err := syncer.SyncCommitInMemory(ctx, cs, ContextForwardSyncer, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPathConflict))
}

func TestSyncDropChainRecordsNotSyncCandidate(t *testing.T) {
	// Nothing in these commits maps into the small repo: the whole chain
	// must come out as not-a-candidate rows.
	ctx := context.Background()
	pair := largeToSmallPair()
	registry := NewRegistry(&VersionConfig{Name: "v1", Prefix: "small"})

	mapping, err := NewBoltMapping(t.TempDir())
	require.NoError(t, err)
	defer mapping.Close()
	blobs, err := blobstore.New(blobstore.NewMemStore(), 3)
	require.NoError(t, err)
	persister := &Persister{Pair: pair, Mapping: mapping, Blobs: blobs}

	root := commit(nil, map[string]*types.FileChange{"outside/r.txt": fileChange("R")})
	c1 := commit([]types.ChangesetID{root.ID()}, map[string]*types.FileChange{"outside/c1.txt": fileChange("C1")})
	c2 := commit([]types.ChangesetID{c1.ID()}, map[string]*types.FileChange{"outside/c2.txt": fileChange("C2")})

	// Root: rewrites to empty, no working copy on the other side
	syncer := &InMemorySyncer{Pair: pair, Registry: registry}
	plan, err := syncer.SyncCommitInMemory(ctx, root, ContextBacksyncer, version("v1"))
	require.NoError(t, err)
	assert.Equal(t, ResultWcEquivalence, plan.Kind)
	assert.Nil(t, plan.RemappedID)
	_, err = plan.Write(ctx, persister)
	require.NoError(t, err)

	// Children inherit the absence
	for _, cs := range []*types.Changeset{c1, c2} {
		parentRow, err := mapping.Get(ctx, pair.SourceRepo, cs.Parents[0], pair.TargetRepo)
		require.NoError(t, err)
		require.NotNil(t, parentRow)
		syncer := &InMemorySyncer{
			Pair:          pair,
			Registry:      registry,
			MappedParents: map[types.ChangesetID]SyncOutcome{cs.Parents[0]: parentRow.SyncOutcome()},
		}
		plan, err := syncer.SyncCommitInMemory(ctx, cs, ContextBacksyncer, nil)
		require.NoError(t, err)
		assert.Equal(t, ResultNoSyncCandidate, plan.Kind)
		_, err = plan.Write(ctx, persister)
		require.NoError(t, err)
	}

	for _, cs := range []*types.Changeset{root, c1, c2} {
		row, err := mapping.Get(ctx, pair.SourceRepo, cs.ID(), pair.TargetRepo)
		require.NoError(t, err)
		require.NotNil(t, row)
		assert.Equal(t, OutcomeNotSyncCandidate, row.Outcome)
		assert.Nil(t, row.TargetCS)
		assert.Equal(t, VersionName("v1"), row.Version)
	}
}

func TestEmptyCommitDiscardedDuringBacksync(t *testing.T) {
	// Large-to-small with the discard flag: a commit that rewrites to
	// empty becomes a working-copy equivalence of its parent and no
	// target changeset is written.
	p := cid("P")
	target := cid("P-small")
	syncer := &InMemorySyncer{
		Pair:                 largeToSmallPair(),
		Registry:             NewRegistry(&VersionConfig{Name: "v1", Prefix: "small"}),
		DiscardEmptyOrdinary: true,
		MappedParents: map[types.ChangesetID]SyncOutcome{
			p: {Kind: OutcomeRewritten, Target: &target, Version: "v1"},
		},
	}
	cs := commit([]types.ChangesetID{p}, map[string]*types.FileChange{"outside/x.txt": fileChange("X")})

	plan, err := syncer.SyncCommitInMemory(context.Background(), cs, ContextBacksyncer, nil)
	require.NoError(t, err)
	assert.Equal(t, ResultWcEquivalence, plan.Kind)
	require.NotNil(t, plan.RemappedID)
	assert.Equal(t, target, *plan.RemappedID)
	assert.Nil(t, plan.Rewritten)
}

func TestEmptyCommitKeptDuringInitialImport(t *testing.T) {
	p := cid("P")
	target := cid("P-large")
	syncer := &InMemorySyncer{
		Pair:     smallToLargePair(),
		Registry: NewRegistry(&VersionConfig{Name: "v1", Prefix: "linear", SubmoduleAction: SubmoduleActionStrip}),
		MappedParents: map[types.ChangesetID]SyncOutcome{
			p: {Kind: OutcomeRewritten, Target: &target, Version: "v1"},
		},
	}
	// Stripping the submodule change empties the commit
	cs := commit([]types.ChangesetID{p}, map[string]*types.FileChange{
		"vendor/lib": {Kind: types.FileChangeKindChange, ContentID: types.HashContent([]byte("ptr")), FileType: types.FileTypeSubmodule},
	})

	plan, err := syncer.SyncCommitInMemory(context.Background(), cs, ContextForwardSyncInitialImport, nil)
	require.NoError(t, err)
	assert.Equal(t, ResultRewritten, plan.Kind)
	require.NotNil(t, plan.Rewritten)
	assert.Empty(t, plan.Rewritten.Changeset.FileChanges)
}

func TestMappingChangeCommitAlwaysKept(t *testing.T) {
	p := cid("P")
	target := cid("P-small")
	syncer := &InMemorySyncer{
		Pair: largeToSmallPair(),
		Registry: NewRegistry(
			&VersionConfig{Name: "v1", Prefix: "small"},
			&VersionConfig{Name: "v2", Prefix: "small_v2"},
		),
		DiscardEmptyOrdinary: true,
		MappedParents: map[types.ChangesetID]SyncOutcome{
			p: {Kind: OutcomeRewritten, Target: &target, Version: "v1"},
		},
	}
	cs := commit([]types.ChangesetID{p}, nil)
	cs.Extra = map[string][]byte{MappingChangeExtraKey: []byte("v2")}

	plan, err := syncer.SyncCommitInMemory(context.Background(), cs, ContextBacksyncer, nil)
	require.NoError(t, err)
	// Structurally required in the target even though it is empty
	assert.Equal(t, ResultRewritten, plan.Kind)
	assert.Equal(t, VersionName("v2"), plan.Version)
	require.NotNil(t, plan.Rewritten)
	assert.Empty(t, plan.Rewritten.Changeset.FileChanges)
}

func TestMergeForbiddenSmallToLarge(t *testing.T) {
	a, b := cid("A"), cid("B")
	aT, bT := cid("A-t"), cid("B-t")
	syncer := &InMemorySyncer{
		Pair:     smallToLargePair(),
		Registry: NewRegistry(&VersionConfig{Name: "v1", Prefix: "linear"}),
		MappedParents: map[types.ChangesetID]SyncOutcome{
			a: {Kind: OutcomeRewritten, Target: &aT, Version: "v1"},
			b: {Kind: OutcomeRewritten, Target: &bT, Version: "v1"},
		},
	}
	cs := commit([]types.ChangesetID{a, b}, nil)

	_, err := syncer.SyncCommitInMemory(context.Background(), cs, ContextForwardSyncer, nil)
	assert.ErrorContains(t, err, "large to small direction")

	// Initial import is the exception
	plan, err := syncer.SyncCommitInMemory(context.Background(), cs, ContextForwardSyncInitialImport, nil)
	require.NoError(t, err)
	assert.Equal(t, ResultRewritten, plan.Kind)
}

func TestMergeRewriteLargeToSmall(t *testing.T) {
	a, b := cid("A"), cid("B")
	aT, bT := cid("A-t"), cid("B-t")
	syncer := &InMemorySyncer{
		Pair:     largeToSmallPair(),
		Registry: NewRegistry(&VersionConfig{Name: "v1", Prefix: "small"}),
		MappedParents: map[types.ChangesetID]SyncOutcome{
			a: {Kind: OutcomeRewritten, Target: &aT, Version: "v1"},
			b: {Kind: OutcomeWcEquivalent, Target: &bT, Version: "v1"},
		},
	}
	cs := commit([]types.ChangesetID{a, b}, map[string]*types.FileChange{
		"small/merged.txt": fileChange("M"),
	})

	plan, err := syncer.SyncCommitInMemory(context.Background(), cs, ContextBacksyncer, nil)
	require.NoError(t, err)
	assert.Equal(t, ResultRewritten, plan.Kind)
	rewritten := plan.Rewritten.Changeset
	assert.ElementsMatch(t, []types.ChangesetID{aT, bT}, rewritten.Parents)
	assert.Contains(t, rewritten.FileChanges, "merged.txt")
}

func TestMergeCollapsesToSingleLiveParent(t *testing.T) {
	a, b := cid("A"), cid("B")
	aT := cid("A-t")
	syncer := &InMemorySyncer{
		Pair:     largeToSmallPair(),
		Registry: NewRegistry(&VersionConfig{Name: "v1", Prefix: "small"}),
		MappedParents: map[types.ChangesetID]SyncOutcome{
			a: {Kind: OutcomeRewritten, Target: &aT, Version: "v1"},
			b: {Kind: OutcomeNotSyncCandidate, Version: "v1"},
		},
	}
	// The merge itself brings no file changes into the small repo
	cs := commit([]types.ChangesetID{a, b}, map[string]*types.FileChange{
		"outside/x.txt": fileChange("X"),
	})

	plan, err := syncer.SyncCommitInMemory(context.Background(), cs, ContextBacksyncer, nil)
	require.NoError(t, err)
	assert.Equal(t, ResultWcEquivalence, plan.Kind)
	require.NotNil(t, plan.RemappedID)
	assert.Equal(t, aT, *plan.RemappedID)
}

func TestMergeAllParentsDropped(t *testing.T) {
	a, b := cid("A"), cid("B")
	syncer := &InMemorySyncer{
		Pair:     largeToSmallPair(),
		Registry: NewRegistry(&VersionConfig{Name: "v1", Prefix: "small"}),
		MappedParents: map[types.ChangesetID]SyncOutcome{
			a: {Kind: OutcomeNotSyncCandidate, Version: "v1"},
			b: {Kind: OutcomeNotSyncCandidate, Version: "v1"},
		},
	}
	cs := commit([]types.ChangesetID{a, b}, nil)

	plan, err := syncer.SyncCommitInMemory(context.Background(), cs, ContextBacksyncer, nil)
	require.NoError(t, err)
	assert.Equal(t, ResultNoSyncCandidate, plan.Kind)
	assert.Equal(t, VersionName("v1"), plan.Version)
}

func TestMergeDroppedParentsVersionMismatch(t *testing.T) {
	a, b := cid("A"), cid("B")
	syncer := &InMemorySyncer{
		Pair:     largeToSmallPair(),
		Registry: NewRegistry(&VersionConfig{Name: "v1", Prefix: "small"}),
		MappedParents: map[types.ChangesetID]SyncOutcome{
			a: {Kind: OutcomeNotSyncCandidate, Version: "v1"},
			b: {Kind: OutcomeNotSyncCandidate, Version: "v2"},
		},
	}
	cs := commit([]types.ChangesetID{a, b}, nil)

	_, err := syncer.SyncCommitInMemory(context.Background(), cs, ContextBacksyncer, nil)
	assert.ErrorContains(t, err, "NotSyncCandidate versions")
}

func TestMergeLiveParentsVersionDisagreement(t *testing.T) {
	a, b := cid("A"), cid("B")
	aT, bT := cid("A-t"), cid("B-t")
	syncer := &InMemorySyncer{
		Pair: largeToSmallPair(),
		Registry: NewRegistry(
			&VersionConfig{Name: "v1", Prefix: "small"},
			&VersionConfig{Name: "v2", Prefix: "small_v2"},
		),
		MappedParents: map[types.ChangesetID]SyncOutcome{
			a: {Kind: OutcomeRewritten, Target: &aT, Version: "v1"},
			b: {Kind: OutcomeRewritten, Target: &bT, Version: "v2"},
		},
	}
	cs := commit([]types.ChangesetID{a, b}, map[string]*types.FileChange{"small/x": fileChange("x")})

	_, err := syncer.SyncCommitInMemory(context.Background(), cs, ContextBacksyncer, nil)
	assert.ErrorContains(t, err, "different versions")
}

func TestCopyFromRemapping(t *testing.T) {
	m0 := cid("M0")
	p := cid("P")
	syncer := &InMemorySyncer{
		Pair:     largeToSmallPair(),
		Registry: NewRegistry(&VersionConfig{Name: "v1", Prefix: "small"}),
		MappedParents: map[types.ChangesetID]SyncOutcome{
			p: {Kind: OutcomeRewritten, Target: &m0, Version: "v1"},
		},
	}
	copied := fileChange("copied")
	copied.CopyFrom = &types.CopySource{Path: "small/origin.txt", ParentIndex: 0}
	stray := fileChange("stray")
	stray.CopyFrom = &types.CopySource{Path: "outside/origin.txt", ParentIndex: 0}
	cs := commit([]types.ChangesetID{p}, map[string]*types.FileChange{
		"small/copied.txt": copied,
		"small/stray.txt":  stray,
	})

	plan, err := syncer.SyncCommitInMemory(context.Background(), cs, ContextBacksyncer, nil)
	require.NoError(t, err)
	require.Equal(t, ResultRewritten, plan.Kind)
	changes := plan.Rewritten.Changeset.FileChanges

	// The copy source survived the mover and was remapped
	require.Contains(t, changes, "copied.txt")
	require.NotNil(t, changes["copied.txt"].CopyFrom)
	assert.Equal(t, "origin.txt", changes["copied.txt"].CopyFrom.Path)

	// The copy source dropped but the destination stayed: copy info cleared
	require.Contains(t, changes, "stray.txt")
	assert.Nil(t, changes["stray.txt"].CopyFrom)
}

func TestSyncIdempotence(t *testing.T) {
	ctx := context.Background()
	pair := smallToLargePair()
	registry := NewRegistry(&VersionConfig{Name: "v1", Prefix: "linear"})

	mapping, err := NewBoltMapping(t.TempDir())
	require.NoError(t, err)
	defer mapping.Close()
	raw := blobstore.NewMemStore()
	blobs, err := blobstore.New(raw, 3)
	require.NoError(t, err)
	persister := &Persister{Pair: pair, Mapping: mapping, Blobs: blobs}

	cs := commit(nil, map[string]*types.FileChange{"a.txt": fileChange("X")})

	var targets []types.ChangesetID
	var rows []*MappingRow
	var storeSizes []int
	for i := 0; i < 2; i++ {
		syncer := &InMemorySyncer{Pair: pair, Registry: registry}
		plan, err := syncer.SyncCommitInMemory(ctx, cs, ContextForwardSyncer, version("v1"))
		require.NoError(t, err)
		target, err := plan.Write(ctx, persister)
		require.NoError(t, err)
		require.NotNil(t, target)
		targets = append(targets, *target)

		row, err := mapping.Get(ctx, pair.SourceRepo, cs.ID(), pair.TargetRepo)
		require.NoError(t, err)
		rows = append(rows, row)
		storeSizes = append(storeSizes, raw.Len())
	}

	assert.Equal(t, targets[0], targets[1], "rewrite is deterministic")
	assert.Equal(t, rows[0], rows[1], "second run leaves the same mapping row")
	assert.Equal(t, storeSizes[0], storeSizes[1], "no additional target-side writes")
}
