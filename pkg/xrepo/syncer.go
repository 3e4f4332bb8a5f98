package xrepo

import (
	"context"
	"fmt"

	"github.com/cuemby/burrow/pkg/types"
)

// ResultKind distinguishes the in-memory sync plans
type ResultKind string

const (
	// The source commit has no corresponding working copy in the target
	ResultNoSyncCandidate ResultKind = "no_sync_candidate"
	// The source rewrote to a non-empty target changeset
	ResultRewritten ResultKind = "rewritten"
	// The source rewrote to no file changes; the target working copy
	// equivalent is RemappedID (nil when there is none at all)
	ResultWcEquivalence ResultKind = "wc_equivalence"
)

// InMemoryResult is the plan produced by SyncCommitInMemory. Nothing has
// been written yet; Write persists it.
type InMemoryResult struct {
	Kind       ResultKind
	SourceCS   types.ChangesetID
	Rewritten  *RewriteResult
	RemappedID *types.ChangesetID
	Version    VersionName
}

// InMemorySyncer plans the sync of one source commit into the target repo.
// It captures immutable references for the duration of a batch: the
// version registry, the parents' resolved outcomes and the submodule deps.
// It does not mutate persistent state.
type InMemorySyncer struct {
	Pair     RepoPair
	Registry *Registry

	// MappedParents holds the resolved sync outcome of every parent of
	// the commits being synced.
	MappedParents map[types.ChangesetID]SyncOutcome

	// SubmoduleDeps is required only when a version's submodule action is
	// expand.
	SubmoduleDeps SubmoduleDeps

	// DiscardEmptyOrdinary discards ordinary commits that arrive empty
	// from the large repo during backsync, instead of writing empty
	// commits into the small repo.
	DiscardEmptyOrdinary bool
}

// SyncCommitInMemory computes the plan for one source changeset. If
// expectedVersion is non-nil, the computed version must match it or the
// call fails with UnexpectedVersionError. The call has no side effects.
func (s *InMemorySyncer) SyncCommitInMemory(
	ctx context.Context,
	cs *types.Changeset,
	syncContext SyncContext,
	expectedVersion *VersionName,
) (*InMemoryResult, error) {
	_, isMappingChange := mappingChangeVersion(cs)
	opts := s.rewriteOpts(isMappingChange, syncContext)

	switch len(cs.Parents) {
	case 0:
		if expectedVersion == nil {
			return nil, fmt.Errorf(
				"no version specified for remapping commit %s with no parents", cs.ID())
		}
		return s.syncNoParents(ctx, cs, *expectedVersion, opts)
	case 1:
		return s.syncSingleParent(ctx, cs, expectedVersion, opts)
	default:
		// A merge that keeps two or more live parents is always rewritten;
		// one that collapses to a single live parent and rewrites to empty
		// becomes a working-copy equivalence.
		return s.syncMerge(ctx, cs, syncContext, expectedVersion)
	}
}

// rewriteOpts derives the empty-commit policy for this commit and context.
// Mapping-change commits are always kept: after a mapping change there
// must be a commit in the target carrying the new mapping. Initial imports
// keep empty commits too, because stripping submodule changes can legally
// empty them.
func (s *InMemorySyncer) rewriteOpts(isMappingChange bool, syncContext SyncContext) RewriteOpts {
	rewrittenToEmpty := EmptyDiscard
	if isMappingChange || syncContext == ContextForwardSyncInitialImport {
		rewrittenToEmpty = EmptyKeep
	}

	emptyFromLargeRepo := EmptyKeep
	if !s.Pair.SmallToLarge && !isMappingChange && s.DiscardEmptyOrdinary {
		emptyFromLargeRepo = EmptyDiscard
	}

	return RewriteOpts{
		RewrittenToEmpty:   rewrittenToEmpty,
		EmptyFromLargeRepo: emptyFromLargeRepo,
	}
}

func (s *InMemorySyncer) syncNoParents(
	ctx context.Context,
	cs *types.Changeset,
	expectedVersion VersionName,
	opts RewriteOpts,
) (*InMemoryResult, error) {
	sourceCS := cs.ID()
	if computed, ok, err := versionForCommit(cs, nil); err != nil {
		return nil, err
	} else if ok && computed != expectedVersion {
		return nil, &UnexpectedVersionError{Expected: expectedVersion, Actual: computed, CS: sourceCS}
	}

	config, err := s.Registry.Version(expectedVersion)
	if err != nil {
		return nil, err
	}
	result, err := rewriteCommit(ctx, cs, nil, config.Mover(s.Pair.SmallToLarge), opts,
		config.submoduleAction(), s.SubmoduleDeps, config.metadataPrefix())
	if err != nil {
		return nil, s.annotate(err, sourceCS)
	}
	if result == nil {
		return &InMemoryResult{
			Kind:     ResultWcEquivalence,
			SourceCS: sourceCS,
			Version:  expectedVersion,
		}, nil
	}
	return &InMemoryResult{
		Kind:      ResultRewritten,
		SourceCS:  sourceCS,
		Rewritten: result,
		Version:   expectedVersion,
	}, nil
}

func (s *InMemorySyncer) syncSingleParent(
	ctx context.Context,
	cs *types.Changeset,
	expectedVersion *VersionName,
	opts RewriteOpts,
) (*InMemoryResult, error) {
	sourceCS := cs.ID()
	p := cs.Parents[0]

	parentOutcome, ok := s.MappedParents[p]
	if !ok {
		return nil, fmt.Errorf("parent commit %s is not synced yet", p)
	}

	switch parentOutcome.Kind {
	case OutcomeNotSyncCandidate:
		// No working copy for the parent means no working copy for the
		// child either.
		return &InMemoryResult{
			Kind:     ResultNoSyncCandidate,
			SourceCS: sourceCS,
			Version:  parentOutcome.Version,
		}, nil

	case OutcomeRewritten, OutcomeWcEquivalent:
		version, ok, err := versionForCommit(cs, []VersionName{parentOutcome.Version})
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("sync config version not found for %s", sourceCS)
		}
		if expectedVersion != nil && *expectedVersion != version {
			return nil, &UnexpectedVersionError{Expected: *expectedVersion, Actual: version, CS: sourceCS}
		}
		if parentOutcome.Target == nil {
			return nil, fmt.Errorf(
				"parent %s of %s has outcome %s but no target changeset", p, sourceCS, parentOutcome.Kind)
		}

		config, err := s.Registry.Version(version)
		if err != nil {
			return nil, err
		}
		remapped := map[types.ChangesetID]types.ChangesetID{p: *parentOutcome.Target}
		result, err := rewriteCommit(ctx, cs, remapped, config.Mover(s.Pair.SmallToLarge), opts,
			config.submoduleAction(), s.SubmoduleDeps, config.metadataPrefix())
		if err != nil {
			return nil, s.annotate(err, sourceCS)
		}
		if result == nil {
			// The source commit rewrites to nothing; its working copy
			// equals the parent's target.
			return &InMemoryResult{
				Kind:       ResultWcEquivalence,
				SourceCS:   sourceCS,
				RemappedID: parentOutcome.Target,
				Version:    version,
			}, nil
		}
		return &InMemoryResult{
			Kind:      ResultRewritten,
			SourceCS:  sourceCS,
			Rewritten: result,
			Version:   version,
		}, nil

	default:
		return nil, fmt.Errorf("unknown sync outcome %q for parent %s", parentOutcome.Kind, p)
	}
}

func (s *InMemorySyncer) syncMerge(
	ctx context.Context,
	cs *types.Changeset,
	syncContext SyncContext,
	expectedVersion *VersionName,
) (*InMemoryResult, error) {
	// Merges are synced large to small only. Small-to-large is safe
	// during initial import, when no pushrebase is interleaving.
	if s.Pair.SmallToLarge && syncContext != ContextForwardSyncInitialImport {
		return nil, fmt.Errorf(
			"syncing merge commits is supported only in large to small direction (%s -> %s)",
			s.Pair.SourceRepoName, s.Pair.TargetRepoName)
	}

	sourceCS := cs.ID()

	// Partition the parents into live ones (they contribute a remapped
	// parent) and dropped ones (NotSyncCandidate: they contribute only
	// the version of their sub-history).
	newParents := make(map[types.ChangesetID]types.ChangesetID)
	var liveOutcomes []SyncOutcome
	notSyncVersions := make(map[VersionName]bool)
	for _, p := range cs.Parents {
		outcome, ok := s.MappedParents[p]
		if !ok {
			return nil, fmt.Errorf("missing parent %s of merge %s", p, sourceCS)
		}
		switch outcome.Kind {
		case OutcomeRewritten, OutcomeWcEquivalent:
			if outcome.Target == nil {
				return nil, fmt.Errorf(
					"parent %s of %s has outcome %s but no target changeset", p, sourceCS, outcome.Kind)
			}
			newParents[p] = *outcome.Target
			liveOutcomes = append(liveOutcomes, outcome)
		case OutcomeNotSyncCandidate:
			notSyncVersions[outcome.Version] = true
		default:
			return nil, fmt.Errorf("unknown sync outcome %q for parent %s", outcome.Kind, p)
		}
	}

	if len(newParents) == 0 {
		// Every parent of the merge is NotSyncCandidate, so the merge is
		// one too. The dropped sub-histories must agree on a version.
		if len(notSyncVersions) > 1 {
			return nil, fmt.Errorf(
				"too many parent NotSyncCandidate versions %v while syncing %s", keys(notSyncVersions), sourceCS)
		}
		for v := range notSyncVersions {
			return &InMemoryResult{
				Kind:     ResultNoSyncCandidate,
				SourceCS: sourceCS,
				Version:  v,
			}, nil
		}
		return nil, fmt.Errorf("cannot find parent version for merge commit %s", sourceCS)
	}

	keep := make(map[types.ChangesetID]bool, len(newParents))
	for p := range newParents {
		keep[p] = true
	}
	stripped := stripRemovedParents(cs, keep)

	version, err := versionForMerge(cs, liveOutcomes)
	if err != nil {
		return nil, fmt.Errorf("failed getting a version to use for merge rewriting: %w", err)
	}
	if expectedVersion != nil && *expectedVersion != version {
		return nil, &UnexpectedVersionError{Expected: *expectedVersion, Actual: version, CS: sourceCS}
	}

	config, err := s.Registry.Version(version)
	if err != nil {
		return nil, err
	}
	result, err := rewriteCommit(ctx, stripped, newParents, config.Mover(s.Pair.SmallToLarge),
		RewriteOpts{RewrittenToEmpty: EmptyDiscard, EmptyFromLargeRepo: EmptyDiscard},
		config.submoduleAction(), s.SubmoduleDeps, config.metadataPrefix())
	if err != nil {
		return nil, s.annotate(err, sourceCS)
	}
	if result == nil {
		// Only possible when the merge collapsed to a single live parent;
		// merges proper are never skipped during rewriting.
		if len(newParents) != 1 {
			return nil, fmt.Errorf(
				"logic error: merge %s rewrote to empty with %d live parents", sourceCS, len(newParents))
		}
		var remapped types.ChangesetID
		for _, target := range newParents {
			remapped = target
		}
		return &InMemoryResult{
			Kind:       ResultWcEquivalence,
			SourceCS:   sourceCS,
			RemappedID: &remapped,
			Version:    version,
		}, nil
	}
	return &InMemoryResult{
		Kind:      ResultRewritten,
		SourceCS:  sourceCS,
		Rewritten: result,
		Version:   version,
	}, nil
}

// annotate wraps a per-commit failure with the repo pair and changeset
func (s *InMemorySyncer) annotate(err error, cs types.ChangesetID) error {
	return fmt.Errorf("sync %s -> %s failed for %s: %w",
		s.Pair.SourceRepoName, s.Pair.TargetRepoName, cs, err)
}

func keys(m map[VersionName]bool) []VersionName {
	out := make([]VersionName, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
