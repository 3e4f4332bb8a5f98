package types

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"
	"time"
)

// FileType describes how a file's content should be materialized
type FileType string

const (
	FileTypeRegular    FileType = "regular"
	FileTypeExecutable FileType = "executable"
	FileTypeSymlink    FileType = "symlink"
	FileTypeSubmodule  FileType = "submodule"
)

// FileChangeKind distinguishes the variants of a file change
type FileChangeKind string

const (
	FileChangeKindChange            FileChangeKind = "change"
	FileChangeKindDeletion          FileChangeKind = "deletion"
	FileChangeKindUntrackedChange   FileChangeKind = "untracked_change"
	FileChangeKindUntrackedDeletion FileChangeKind = "untracked_deletion"
)

// CopySource records that a changed file was copied from a path in one of
// the commit's parents. ParentIndex indexes into Changeset.Parents.
type CopySource struct {
	Path        string `json:"path"`
	ParentIndex int    `json:"parent_index"`
}

// FileChange is one entry in a changeset's file-changes map.
// Kind selects the variant; ContentID, FileType, Size and CopyFrom are
// meaningful for the change variants only.
type FileChange struct {
	Kind      FileChangeKind `json:"kind"`
	ContentID ContentID      `json:"content_id,omitempty"`
	FileType  FileType       `json:"file_type,omitempty"`
	Size      uint64         `json:"size,omitempty"`
	CopyFrom  *CopySource    `json:"copy_from,omitempty"`
}

// IsChange reports whether the entry carries content (tracked or untracked)
func (fc *FileChange) IsChange() bool {
	return fc.Kind == FileChangeKindChange || fc.Kind == FileChangeKindUntrackedChange
}

// Changeset is a commit: parents, author, dates, message, extras and the
// file-changes map. The zero, one or two parents are ordered; the first
// parent is the mainline parent.
type Changeset struct {
	Parents       []ChangesetID          `json:"parents"`
	Author        string                 `json:"author"`
	AuthorDate    time.Time              `json:"author_date"`
	Committer     string                 `json:"committer,omitempty"`
	CommitterDate *time.Time             `json:"committer_date,omitempty"`
	Message       string                 `json:"message"`
	Extra         map[string][]byte      `json:"extra,omitempty"`
	FileChanges   map[string]*FileChange `json:"file_changes"`
}

// IsMerge reports whether the changeset has more than one parent
func (cs *Changeset) IsMerge() bool {
	return len(cs.Parents) > 1
}

// SortedPaths returns the file-change paths in lexicographic order
func (cs *Changeset) SortedPaths() []string {
	paths := make([]string, 0, len(cs.FileChanges))
	for p := range cs.FileChanges {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Clone returns a deep copy of the changeset
func (cs *Changeset) Clone() *Changeset {
	out := &Changeset{
		Parents:    append([]ChangesetID(nil), cs.Parents...),
		Author:     cs.Author,
		AuthorDate: cs.AuthorDate,
		Committer:  cs.Committer,
		Message:    cs.Message,
	}
	if cs.CommitterDate != nil {
		d := *cs.CommitterDate
		out.CommitterDate = &d
	}
	if cs.Extra != nil {
		out.Extra = make(map[string][]byte, len(cs.Extra))
		for k, v := range cs.Extra {
			out.Extra[k] = append([]byte(nil), v...)
		}
	}
	out.FileChanges = make(map[string]*FileChange, len(cs.FileChanges))
	for p, fc := range cs.FileChanges {
		c := *fc
		if fc.CopyFrom != nil {
			cp := *fc.CopyFrom
			c.CopyFrom = &cp
		}
		out.FileChanges[p] = &c
	}
	return out
}

// ID computes the stable changeset identity: a digest over a canonical
// length-prefixed serialization of the changeset tuple. Map fields are
// serialized in sorted key order so the digest does not depend on
// iteration order.
func (cs *Changeset) ID() ChangesetID {
	h := sha256.New()
	h.Write([]byte("changeset\x00"))

	writeUvarint(h, uint64(len(cs.Parents)))
	for _, p := range cs.Parents {
		h.Write(p[:])
	}
	writeString(h, cs.Author)
	writeInt64(h, cs.AuthorDate.Unix())
	_, offset := cs.AuthorDate.Zone()
	writeInt64(h, int64(offset))
	writeString(h, cs.Committer)
	if cs.CommitterDate != nil {
		writeInt64(h, cs.CommitterDate.Unix())
	} else {
		writeInt64(h, 0)
	}
	writeString(h, cs.Message)

	extraKeys := make([]string, 0, len(cs.Extra))
	for k := range cs.Extra {
		extraKeys = append(extraKeys, k)
	}
	sort.Strings(extraKeys)
	writeUvarint(h, uint64(len(extraKeys)))
	for _, k := range extraKeys {
		writeString(h, k)
		writeUvarint(h, uint64(len(cs.Extra[k])))
		h.Write(cs.Extra[k])
	}

	paths := cs.SortedPaths()
	writeUvarint(h, uint64(len(paths)))
	for _, p := range paths {
		fc := cs.FileChanges[p]
		writeString(h, p)
		writeString(h, string(fc.Kind))
		if fc.IsChange() {
			h.Write(fc.ContentID[:])
			writeString(h, string(fc.FileType))
			writeUvarint(h, fc.Size)
			if fc.CopyFrom != nil {
				writeString(h, fc.CopyFrom.Path)
				writeUvarint(h, uint64(fc.CopyFrom.ParentIndex))
			}
		}
	}

	var id ChangesetID
	copy(id[:], h.Sum(nil))
	return id
}

func writeUvarint(h interface{ Write([]byte) (int, error) }, v uint64) {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	h.Write(buf[:n])
}

func writeInt64(h interface{ Write([]byte) (int, error) }, v int64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	h.Write(buf[:])
}

func writeString(h interface{ Write([]byte) (int, error) }, s string) {
	writeUvarint(h, uint64(len(s)))
	h.Write([]byte(s))
}
