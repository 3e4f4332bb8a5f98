package xrepo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cuemby/burrow/pkg/blobstore"
	"github.com/cuemby/burrow/pkg/dag"
	"github.com/cuemby/burrow/pkg/types"
)

// BlobstoreParents is a dag.Parents oracle that reads changeset bodies out
// of a repo's blob store.
type BlobstoreParents struct {
	blobs *blobstore.Store
	repo  types.RepoID
}

// NewBlobstoreParents creates an oracle over the given repo's changesets
func NewBlobstoreParents(blobs *blobstore.Store, repo types.RepoID) *BlobstoreParents {
	return &BlobstoreParents{blobs: blobs, repo: repo}
}

// ParentNames implements dag.Parents
func (o *BlobstoreParents) ParentNames(ctx context.Context, v dag.Vertex) ([]dag.Vertex, error) {
	if len(v) != 32 {
		return nil, fmt.Errorf("vertex %s is not a changeset id", v)
	}
	var cs types.ChangesetID
	copy(cs[:], v)

	body, _, err := o.blobs.Get(ctx, ChangesetKey(o.repo, cs))
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, fmt.Errorf("changeset %s not found in repo %d", cs, o.repo)
	}
	var changeset types.Changeset
	if err := json.Unmarshal(body, &changeset); err != nil {
		return nil, fmt.Errorf("failed to decode changeset %s: %w", cs, err)
	}
	parents := make([]dag.Vertex, 0, len(changeset.Parents))
	for _, p := range changeset.Parents {
		parents = append(parents, dag.Vertex(p[:]))
	}
	return parents, nil
}
