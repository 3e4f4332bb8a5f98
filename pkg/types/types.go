package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// RepoID identifies a repository in a cross-repo pair
type RepoID int32

// RepoName is the human-readable repository name used in error messages
type RepoName string

// ContentID names an immutable byte string in the blob store.
// Equal IDs imply byte-equal contents.
type ContentID [32]byte

// ChangesetID names a commit object. This is the canonical ("bonsai")
// identifier; the legacy wire-format mapping is kept in a separate table.
type ChangesetID [32]byte

func (id ContentID) String() string {
	return hex.EncodeToString(id[:])
}

func (id ChangesetID) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether the ID is the all-zero placeholder
func (id ChangesetID) IsZero() bool {
	return id == ChangesetID{}
}

// ParseChangesetID parses a 64-character hex string into a ChangesetID
func ParseChangesetID(s string) (ChangesetID, error) {
	var id ChangesetID
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("invalid changeset id %q: %w", s, err)
	}
	if len(raw) != len(id) {
		return id, fmt.Errorf("invalid changeset id %q: want %d bytes, got %d", s, len(id), len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// ParseContentID parses a 64-character hex string into a ContentID
func ParseContentID(s string) (ContentID, error) {
	var id ContentID
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("invalid content id %q: %w", s, err)
	}
	if len(raw) != len(id) {
		return id, fmt.Errorf("invalid content id %q: want %d bytes, got %d", s, len(id), len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// HashContent computes the content-addressed ID for a byte string
func HashContent(data []byte) ContentID {
	return ContentID(sha256.Sum256(data))
}

// MarshalText implements encoding.TextMarshaler so IDs round-trip through JSON
func (id ChangesetID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (id *ChangesetID) UnmarshalText(text []byte) error {
	parsed, err := ParseChangesetID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (id ContentID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (id *ContentID) UnmarshalText(text []byte) error {
	parsed, err := ParseContentID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
