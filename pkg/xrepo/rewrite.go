package xrepo

import (
	"context"
	"fmt"

	"github.com/cuemby/burrow/pkg/types"
)

// EmptyAction decides the fate of a commit whose rewritten file-changes map
// is empty.
type EmptyAction string

const (
	EmptyKeep    EmptyAction = "keep"
	EmptyDiscard EmptyAction = "discard"
)

// RewriteOpts controls the empty-commit policy of one rewrite.
// RewrittenToEmpty applies when the source had file changes but they all
// dropped out; EmptyFromLargeRepo applies when the source was empty to
// begin with.
type RewriteOpts struct {
	RewrittenToEmpty  EmptyAction
	EmptyFromLargeRepo EmptyAction
}

// RewriteResult is an in-memory rewritten changeset plus any blobs the
// rewrite manufactured (submodule metadata files) that must be stored
// alongside it.
type RewriteResult struct {
	Changeset *types.Changeset
	Blobs     map[types.ContentID][]byte
}

// rewriteCommit maps a source changeset into the target repo: every file
// change goes through the mover, parents are remapped, copy-from info is
// remapped or cleared, and submodule changes are kept, stripped or
// expanded per the version's action. A nil result with nil error means the
// commit rewrote to empty and the policy discards it.
func rewriteCommit(
	ctx context.Context,
	cs *types.Changeset,
	remappedParents map[types.ChangesetID]types.ChangesetID,
	mover Mover,
	opts RewriteOpts,
	subAction SubmoduleAction,
	subDeps SubmoduleDeps,
	metadataPrefix string,
) (*RewriteResult, error) {
	sourceHadChanges := len(cs.FileChanges) > 0
	newChanges := make(map[string]*types.FileChange)
	blobs := make(map[types.ContentID][]byte)

	for _, p := range cs.SortedPaths() {
		fc := cs.FileChanges[p]

		if fc.IsChange() && fc.FileType == types.FileTypeSubmodule {
			switch subAction {
			case SubmoduleActionStrip:
				continue
			case SubmoduleActionExpand:
				expanded, extraBlobs, err := expandSubmodule(ctx, subDeps, mover, metadataPrefix, p, fc)
				if err != nil {
					return nil, err
				}
				for mapped, change := range expanded {
					newChanges[mapped] = change
				}
				for id, content := range extraBlobs {
					blobs[id] = content
				}
				continue
			case SubmoduleActionKeep:
				// Falls through to the ordinary path handling
			default:
				return nil, fmt.Errorf("unknown submodule action %q", subAction)
			}
		}

		mapped, ok, err := mover(p)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		rewritten := *fc
		rewritten.CopyFrom = rewriteCopyFrom(cs, fc.CopyFrom, remappedParents, mover)
		newChanges[mapped] = &rewritten
	}

	// A commit with more than one parent is a merge and is never skipped;
	// only linear commits can be discarded for emptiness.
	if len(newChanges) == 0 && len(cs.Parents) <= 1 {
		action := opts.RewrittenToEmpty
		if !sourceHadChanges {
			action = opts.EmptyFromLargeRepo
		}
		if action == EmptyDiscard {
			return nil, nil
		}
	}

	newParents := make([]types.ChangesetID, 0, len(cs.Parents))
	for _, p := range cs.Parents {
		remapped, ok := remappedParents[p]
		if !ok {
			return nil, fmt.Errorf("unknown parent %s while rewriting %s", p, cs.ID())
		}
		newParents = append(newParents, remapped)
	}

	out := cs.Clone()
	out.Parents = newParents
	out.FileChanges = newChanges
	return &RewriteResult{Changeset: out, Blobs: blobs}, nil
}

// rewriteCopyFrom remaps a copy source: the source path must survive the
// mover and the named parent must survive the parent remapping, otherwise
// the copy info is cleared and the entry becomes a plain change.
func rewriteCopyFrom(
	cs *types.Changeset,
	copyFrom *types.CopySource,
	remappedParents map[types.ChangesetID]types.ChangesetID,
	mover Mover,
) *types.CopySource {
	if copyFrom == nil {
		return nil
	}
	if copyFrom.ParentIndex < 0 || copyFrom.ParentIndex >= len(cs.Parents) {
		return nil
	}
	if _, ok := remappedParents[cs.Parents[copyFrom.ParentIndex]]; !ok {
		return nil
	}
	mapped, ok, err := mover(copyFrom.Path)
	if err != nil || !ok {
		// The copy source has no image in the target; the destination
		// becomes a plain change.
		return nil
	}
	return &types.CopySource{Path: mapped, ParentIndex: copyFrom.ParentIndex}
}

// stripRemovedParents drops the parents that are not in keep, clears
// copy-from entries that referenced a dropped parent, and re-indexes the
// surviving copy-from parent references.
func stripRemovedParents(cs *types.Changeset, keep map[types.ChangesetID]bool) *types.Changeset {
	out := cs.Clone()

	newIndex := make(map[int]int, len(cs.Parents))
	var newParents []types.ChangesetID
	for i, p := range cs.Parents {
		if keep[p] {
			newIndex[i] = len(newParents)
			newParents = append(newParents, p)
		}
	}
	out.Parents = newParents

	for _, fc := range out.FileChanges {
		if fc.CopyFrom == nil {
			continue
		}
		idx, ok := newIndex[fc.CopyFrom.ParentIndex]
		if !ok {
			fc.CopyFrom = nil
			continue
		}
		fc.CopyFrom.ParentIndex = idx
	}
	return out
}
