package xrepo

import (
	"fmt"

	"github.com/cuemby/burrow/pkg/types"
)

// MappingChangeExtraKey is the distinguished extra carried by commits that
// switch the repo pair to a new sync version. Such commits are always kept
// in the target even when they rewrite to empty.
const MappingChangeExtraKey = "change-xrepo-mapping-to-version"

// mappingChangeVersion returns the version a mapping-change commit switches
// to, if the commit carries one.
func mappingChangeVersion(cs *types.Changeset) (VersionName, bool) {
	v, ok := cs.Extra[MappingChangeExtraKey]
	if !ok {
		return "", false
	}
	return VersionName(v), true
}

// versionForCommit computes the sync version for a commit: a mapping-change
// extra wins; otherwise the parents' versions must agree. The second return
// is false when neither source yields a version.
func versionForCommit(cs *types.Changeset, parentVersions []VersionName) (VersionName, bool, error) {
	if v, ok := mappingChangeVersion(cs); ok {
		return v, true, nil
	}
	if len(parentVersions) == 0 {
		return "", false, nil
	}
	v := parentVersions[0]
	for _, other := range parentVersions[1:] {
		if other != v {
			return "", false, fmt.Errorf(
				"parent versions disagree for %s: %s != %s", cs.ID(), v, other)
		}
	}
	return v, true, nil
}

// versionForMerge derives the version to use while remapping a merge:
// NotSyncCandidate parents are ignored, and all remaining parents must
// carry the same version. Two live parents with different versions are
// rejected rather than guessed about.
func versionForMerge(cs *types.Changeset, liveOutcomes []SyncOutcome) (VersionName, error) {
	if v, ok := mappingChangeVersion(cs); ok {
		return v, nil
	}
	if len(liveOutcomes) == 0 {
		return "", fmt.Errorf("cannot find parent version for merge commit %s", cs.ID())
	}
	v := liveOutcomes[0].Version
	for _, outcome := range liveOutcomes[1:] {
		if outcome.Version != v {
			return "", fmt.Errorf(
				"live parents of merge %s carry different versions: %s and %s",
				cs.ID(), v, outcome.Version)
		}
	}
	return v, nil
}
