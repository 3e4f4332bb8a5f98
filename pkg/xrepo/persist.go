package xrepo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cuemby/burrow/pkg/blobstore"
	"github.com/cuemby/burrow/pkg/types"
)

// Persister writes sync plans into durable state: the target repo's blob
// store and the synced-commit mapping. All writes are idempotent, so
// re-persisting an already-persisted plan is a no-op.
type Persister struct {
	Pair    RepoPair
	Mapping Mapping
	Blobs   *blobstore.Store
}

// ChangesetKey is the blob store key for a changeset body in a repo
func ChangesetKey(repo types.RepoID, cs types.ChangesetID) string {
	return fmt.Sprintf("repo%04d.changeset.%s", repo, cs)
}

// ContentKey is the blob store key for file content in a repo
func ContentKey(repo types.RepoID, id types.ContentID) string {
	return fmt.Sprintf("repo%04d.content.%s", repo, id)
}

// Write persists the plan: the mapping row always, plus the rewritten
// changeset body and any manufactured blobs for a Rewritten plan. Returns
// the target changeset ID for Rewritten plans, nil otherwise.
func (r *InMemoryResult) Write(ctx context.Context, p *Persister) (*types.ChangesetID, error) {
	switch r.Kind {
	case ResultNoSyncCandidate:
		return nil, p.setNoSyncCandidate(ctx, r.SourceCS, r.Version)
	case ResultWcEquivalence:
		return nil, p.updateWcEquivalence(ctx, r.SourceCS, r.RemappedID, r.Version)
	case ResultRewritten:
		targetCS, err := p.uploadRewrittenAndUpdateMapping(ctx, r.SourceCS, r.Rewritten, r.Version)
		if err != nil {
			return nil, err
		}
		return &targetCS, nil
	default:
		return nil, fmt.Errorf("unknown sync plan kind %q for %s", r.Kind, r.SourceCS)
	}
}

func (p *Persister) setNoSyncCandidate(ctx context.Context, sourceCS types.ChangesetID, version VersionName) error {
	return p.upsert(ctx, &MappingRow{
		SourceRepo: p.Pair.SourceRepo,
		SourceCS:   sourceCS,
		TargetRepo: p.Pair.TargetRepo,
		Version:    version,
		Outcome:    OutcomeNotSyncCandidate,
	})
}

func (p *Persister) updateWcEquivalence(ctx context.Context, sourceCS types.ChangesetID, remapped *types.ChangesetID, version VersionName) error {
	// An equivalence with no target at all means the source has no working
	// copy on the other side; descendants must treat it as not a sync
	// candidate.
	if remapped == nil {
		return p.setNoSyncCandidate(ctx, sourceCS, version)
	}
	return p.upsert(ctx, &MappingRow{
		SourceRepo: p.Pair.SourceRepo,
		SourceCS:   sourceCS,
		TargetRepo: p.Pair.TargetRepo,
		TargetCS:   remapped,
		Version:    version,
		Outcome:    OutcomeWcEquivalent,
	})
}

func (p *Persister) uploadRewrittenAndUpdateMapping(
	ctx context.Context,
	sourceCS types.ChangesetID,
	rewritten *RewriteResult,
	version VersionName,
) (types.ChangesetID, error) {
	targetCS := rewritten.Changeset.ID()

	for contentID, content := range rewritten.Blobs {
		if err := p.Blobs.Put(ctx, ContentKey(p.Pair.TargetRepo, contentID), content); err != nil {
			return targetCS, fmt.Errorf("failed to store blob %s: %w", contentID, err)
		}
	}

	body, err := json.Marshal(rewritten.Changeset)
	if err != nil {
		return targetCS, fmt.Errorf("failed to serialize changeset %s: %w", targetCS, err)
	}
	if err := p.Blobs.Put(ctx, ChangesetKey(p.Pair.TargetRepo, targetCS), body); err != nil {
		return targetCS, fmt.Errorf("failed to store changeset %s: %w", targetCS, err)
	}

	err = p.upsert(ctx, &MappingRow{
		SourceRepo: p.Pair.SourceRepo,
		SourceCS:   sourceCS,
		TargetRepo: p.Pair.TargetRepo,
		TargetCS:   &targetCS,
		Version:    version,
		Outcome:    OutcomeRewritten,
	})
	return targetCS, err
}

func (p *Persister) upsert(ctx context.Context, row *MappingRow) error {
	if err := p.Mapping.Upsert(ctx, row); err != nil {
		return fmt.Errorf("failed to update mapping %s -> %s for %s: %w",
			p.Pair.SourceRepoName, p.Pair.TargetRepoName, row.SourceCS, err)
	}
	return nil
}
