package xrepo

import (
	"context"
	"fmt"
	"path"

	"github.com/cuemby/burrow/pkg/types"
)

// SubmoduleDeps gives the rewriter access to the repositories referenced by
// submodule pointers, so they can be expanded in place. A nil SubmoduleDeps
// means expansion is not needed for this sync.
type SubmoduleDeps interface {
	// Expand lists the file changes that materialize the submodule at the
	// given pointer, with paths relative to the submodule root.
	Expand(ctx context.Context, submodulePath string, pointer types.ContentID) (map[string]*types.FileChange, error)
}

// expandSubmodule inlines a submodule's content at the mapped path prefix
// and adds a metadata file recording the submodule's pointer. The metadata
// blob's bytes are returned so the persistence step can store them.
func expandSubmodule(
	ctx context.Context,
	deps SubmoduleDeps,
	mover Mover,
	metadataPrefix string,
	subPath string,
	fc *types.FileChange,
) (map[string]*types.FileChange, map[types.ContentID][]byte, error) {
	if deps == nil {
		return nil, nil, fmt.Errorf("submodule %s requires expansion but no submodule deps are available", subPath)
	}
	expanded, err := deps.Expand(ctx, subPath, fc.ContentID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to expand submodule %s: %w", subPath, err)
	}

	out := make(map[string]*types.FileChange, len(expanded)+1)
	for rel, change := range expanded {
		mapped, ok, err := mover(subPath + "/" + rel)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			continue
		}
		out[mapped] = change
	}

	// The metadata file sits next to the expansion and records which
	// pointer it materializes.
	metadataPath := path.Join(path.Dir(subPath), metadataPrefix+"-"+path.Base(subPath))
	mappedMetadata, ok, err := mover(metadataPath)
	if err != nil {
		return nil, nil, err
	}
	blobs := make(map[types.ContentID][]byte, 1)
	if ok {
		content := []byte(fc.ContentID.String())
		contentID := types.HashContent(content)
		blobs[contentID] = content
		out[mappedMetadata] = &types.FileChange{
			Kind:      types.FileChangeKindChange,
			ContentID: contentID,
			FileType:  types.FileTypeRegular,
			Size:      uint64(len(content)),
		}
	}
	return out, blobs, nil
}
