package xrepo

import (
	"fmt"

	"github.com/cuemby/burrow/pkg/types"
)

// VersionName names an immutable commit-sync configuration: a path mover,
// a submodule action and the common pushrebase bookmarks in effect when a
// mapping entry was created. Mappings never silently span versions.
type VersionName string

// SyncContext tags who is driving a sync. It decides the empty-commit
// policy and which merge directions are legal.
type SyncContext string

const (
	ContextBacksyncer               SyncContext = "backsyncer"
	ContextForwardSyncer            SyncContext = "forward-syncer"
	ContextForwardSyncInitialImport SyncContext = "forward-syncer-initial-import"
	ContextPushRedirector           SyncContext = "push-redirector"
	ContextAdmin                    SyncContext = "admin"
)

// OutcomeKind is the mapping-table tag for a per-source-commit outcome
type OutcomeKind string

const (
	// The source rewrote to exactly this target
	OutcomeRewritten OutcomeKind = "rewritten"
	// The source rewrote to empty; its working copy equals the target's
	OutcomeWcEquivalent OutcomeKind = "wc_equivalent"
	// The source has no working copy on the other side under this version
	OutcomeNotSyncCandidate OutcomeKind = "not_sync_candidate"
)

// SyncOutcome is the durable record of what happened to a source commit in
// the target repo. Target is nil for NotSyncCandidate and for a
// WcEquivalent source with no working copy at all on the other side.
type SyncOutcome struct {
	Kind    OutcomeKind
	Target  *types.ChangesetID
	Version VersionName
}

// MappingRow is one row of the cross-repo mapping table. The tuple
// (SourceRepo, SourceCS, TargetRepo) is unique; writes are upserts.
type MappingRow struct {
	SourceRepo types.RepoID         `json:"source_repo_id"`
	SourceCS   types.ChangesetID    `json:"source_cs_id"`
	TargetRepo types.RepoID         `json:"target_repo_id"`
	TargetCS   *types.ChangesetID   `json:"target_cs_id,omitempty"`
	Version    VersionName          `json:"version_name"`
	Outcome    OutcomeKind          `json:"outcome"`
}

// SyncOutcome converts the row into the in-memory outcome form
func (r *MappingRow) SyncOutcome() SyncOutcome {
	return SyncOutcome{Kind: r.Outcome, Target: r.TargetCS, Version: r.Version}
}

// UnexpectedVersionError reports that a caller pinned a version that does
// not match the computed one.
type UnexpectedVersionError struct {
	Expected VersionName
	Actual   VersionName
	CS       types.ChangesetID
}

func (e *UnexpectedVersionError) Error() string {
	return fmt.Sprintf("computed sync config version %s for %s is not the expected version %s",
		e.Actual, e.CS, e.Expected)
}

// RepoPair identifies the two sides of a sync and their direction
type RepoPair struct {
	SourceRepo     types.RepoID
	SourceRepoName types.RepoName
	TargetRepo     types.RepoID
	TargetRepoName types.RepoName
	// SmallToLarge is true when the source is the small repo
	SmallToLarge bool
}
