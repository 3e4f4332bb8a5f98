package pack

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"
)

// PackMetadata describes how a blob relates to the pack it was read from
type PackMetadata struct {
	PackKey string
	// Sizes summed over every entry traversed during decode: the blob
	// itself plus its dictionary chain.
	RelevantCompressedSize   uint64
	RelevantUncompressedSize uint64
}

// SizeMetadata is the size accounting reported with every pack read
type SizeMetadata struct {
	// Compressed size contributed by the requested key alone
	UniqueCompressedSize uint64
	Pack                 *PackMetadata
}

// SingleCompressed is a blob compressed on its own, rather than in pack form
type SingleCompressed struct {
	value SingleValue
}

// CompressSingle compresses the blob with the given zstd level; if
// compression does not shrink the blob, it is stored raw instead.
func CompressSingle(level int, blob []byte) (*SingleCompressed, error) {
	compressed, err := zstdCompress(level, blob)
	if err != nil {
		return nil, err
	}
	if len(compressed) < len(blob) {
		return &SingleCompressed{value: SingleValue{Kind: SingleZstd, Bytes: compressed}}, nil
	}
	return &SingleCompressed{value: SingleValue{Kind: SingleRaw, Bytes: blob}}, nil
}

// NewUncompressed stores the blob raw without attempting compression
func NewUncompressed(blob []byte) *SingleCompressed {
	return &SingleCompressed{value: SingleValue{Kind: SingleRaw, Bytes: blob}}
}

// CompressedSize is the stored size of the blob, minus framing overheads
func (s *SingleCompressed) CompressedSize() int {
	return len(s.value.Bytes)
}

// IntoBytes wraps the value in a storage envelope for the underlying store
func (s *SingleCompressed) IntoBytes() ([]byte, error) {
	return EncodeEnvelope(&Envelope{Single: &s.value})
}

// DecodeSingle decodes a single value, returning the plaintext and the
// stored (compressed) size.
func DecodeSingle(v *SingleValue) ([]byte, uint64, error) {
	switch v.Kind {
	case SingleRaw:
		return v.Bytes, uint64(len(v.Bytes)), nil
	case SingleZstd:
		decoded, err := zstdDecompress(v.Bytes)
		if err != nil {
			return nil, 0, err
		}
		return decoded, uint64(len(v.Bytes)), nil
	default:
		return nil, 0, fmt.Errorf("unknown single value tag %d", v.Kind)
	}
}

// EmptyPack is a pack with no data yet. It cannot be finalized; it exists
// to take the base blob that seeds the first dictionary.
type EmptyPack struct {
	level int
}

// NewEmptyPack creates an EmptyPack that compresses at the given zstd level
func NewEmptyPack(level int) *EmptyPack {
	return &EmptyPack{level: level}
}

// Pack groups multiple blobs, later entries optionally compressed using the
// plaintext of earlier entries as zstd dictionaries.
type Pack struct {
	level int
	// Plaintext of every entry added so far, usable as a dictionary for
	// later deltas. Presence in this map doubles as the duplicate-key check.
	dictionaries map[string][]byte
	entries      []PackedEntry
}

// AddBaseBlob adds the first blob to the empty pack. The blob is stored as
// plain zstd and its plaintext becomes a dictionary for future deltas.
func (e *EmptyPack) AddBaseBlob(key string, blob []byte) (*Pack, error) {
	if prefix, _ := SplitKeyPrefix(key); prefix != "" {
		return nil, fmt.Errorf("key prefix %s found in packed blob key %s", prefix, key)
	}
	compressed, err := zstdCompress(e.level, blob)
	if err != nil {
		return nil, fmt.Errorf("failed to compress base blob %s: %w", key, err)
	}
	p := &Pack{
		level:        e.level,
		dictionaries: map[string][]byte{key: blob},
		entries: []PackedEntry{{
			Key: key,
			Value: PackedValue{
				Kind:   PackedSingle,
				Single: &SingleValue{Kind: SingleZstd, Bytes: compressed},
			},
		}},
	}
	return p, nil
}

// AddDeltaBlob adds another blob, compressed against the plaintext of a
// previous entry named by dictKey. The new blob's plaintext is retained so
// it may itself serve as a base for later deltas.
func (p *Pack) AddDeltaBlob(dictKey, key string, blob []byte) error {
	if prefix, _ := SplitKeyPrefix(key); prefix != "" {
		return fmt.Errorf("key prefix %s found in packed blob key %s", prefix, key)
	}
	if _, ok := p.dictionaries[key]; ok {
		return fmt.Errorf("key %s cannot appear in the same pack twice", key)
	}
	dict, ok := p.dictionaries[dictKey]
	if !ok {
		return fmt.Errorf("cannot find dictionary for blob %s", dictKey)
	}
	compressed, err := zstdCompressWithDict(p.level, dict, blob)
	if err != nil {
		return fmt.Errorf("failed to compress delta blob %s: %w", key, err)
	}
	p.dictionaries[key] = blob
	p.entries = append(p.entries, PackedEntry{
		Key: key,
		Value: PackedValue{
			Kind:    PackedZstdFromDict,
			DictKey: dictKey,
			Zstd:    compressed,
		},
	})
	return nil
}

// CompressedSize is the compressed size of the pack contents plus keys,
// minus framing overheads.
func (p *Pack) CompressedSize() (int, error) {
	size := 0
	for i := range p.entries {
		entrySize, err := EntryCompressedSize(&p.entries[i])
		if err != nil {
			return 0, err
		}
		size += entrySize + len(p.entries[i].Key)
	}
	return size, nil
}

// Entries exposes the ordered pack entries
func (p *Pack) Entries() []PackedEntry {
	return p.entries
}

// EntryCompressedSize is the stored size of one entry's payload
func EntryCompressedSize(entry *PackedEntry) (int, error) {
	switch entry.Value.Kind {
	case PackedSingle:
		return len(entry.Value.Single.Bytes), nil
	case PackedZstdFromDict:
		return len(entry.Value.Zstd), nil
	default:
		return 0, fmt.Errorf("unknown packed value tag %d for key %s", entry.Value.Kind, entry.Key)
	}
}

// IntoBytes finalizes the pack. Member keys are sorted and domain-hashed to
// produce a deterministic pack identity: two packs with the same member set
// share a key regardless of internal delta topology.
func (p *Pack) IntoBytes(packPrefix string) (packKey string, memberKeys []string, wire []byte, err error) {
	memberKeys = make([]string, 0, len(p.entries))
	for i := range p.entries {
		memberKeys = append(memberKeys, p.entries[i].Key)
	}
	sort.Strings(memberKeys)

	packKey = packPrefix + computePackHash(memberKeys) + EnvelopeSuffix

	wire, err = EncodeEnvelope(&Envelope{Packed: &PackedFormat{
		Key:     packKey,
		Entries: p.entries,
	}})
	if err != nil {
		return "", nil, nil, err
	}
	return packKey, memberKeys, wire, nil
}

// DecodePack extracts the blob named by key from a pack, materializing its
// dictionary chain on demand. Each dependency is decoded at most once; the
// work list is bounded by the number of entries in the pack because the
// chain invariant forbids cycles.
func DecodePack(packed *PackedFormat, key string) ([]byte, SizeMetadata, error) {
	_, key = SplitKeyPrefix(key)

	entryMap := make(map[string]*PackedValue, len(packed.Entries))
	for i := range packed.Entries {
		entryMap[packed.Entries[i].Key] = &packed.Entries[i].Value
		if packed.Entries[i].Key == key {
			// Dictionaries come before their users, so the rest of the
			// pack cannot be needed.
			break
		}
	}

	decoded := make(map[string][]byte)
	toDecode := []string{key}
	var uniqueCompressedSize, relevantCompressedSize, relevantUncompressedSize uint64

	for len(toDecode) > 0 {
		nextKey := toDecode[len(toDecode)-1]
		toDecode = toDecode[:len(toDecode)-1]
		value, ok := entryMap[nextKey]
		if !ok {
			if nextKey == key {
				break // reported as missing below
			}
			return nil, SizeMetadata{}, fmt.Errorf(
				"key %s needs dictionary %s but it is not in pack %s", key, nextKey, packed.Key)
		}
		switch value.Kind {
		case PackedSingle:
			plain, compressedSize, err := DecodeSingle(value.Single)
			if err != nil {
				return nil, SizeMetadata{}, fmt.Errorf("failed decoding %s in pack %s: %w", nextKey, packed.Key, err)
			}
			relevantUncompressedSize += uint64(len(plain))
			if nextKey == key {
				uniqueCompressedSize += compressedSize
			}
			relevantCompressedSize += compressedSize
			decoded[nextKey] = plain
			delete(entryMap, nextKey)
		case PackedZstdFromDict:
			dict, ok := decoded[value.DictKey]
			if !ok {
				// Decode the dictionary first, then come back to this key.
				toDecode = append(toDecode, nextKey, value.DictKey)
				continue
			}
			plain, err := zstdDecompressWithDict(dict, value.Zstd)
			if err != nil {
				return nil, SizeMetadata{}, fmt.Errorf(
					"failed decoding %s against dictionary %s in pack %s: %w",
					nextKey, value.DictKey, packed.Key, err)
			}
			compressedSize := uint64(len(value.Zstd))
			relevantUncompressedSize += uint64(len(plain))
			if nextKey == key {
				uniqueCompressedSize += compressedSize
			}
			relevantCompressedSize += compressedSize
			decoded[nextKey] = plain
			delete(entryMap, nextKey)
		default:
			return nil, SizeMetadata{}, fmt.Errorf("unknown packed value tag %d for %s in pack %s",
				value.Kind, nextKey, packed.Key)
		}
	}

	plain, ok := decoded[key]
	if !ok {
		return nil, SizeMetadata{}, fmt.Errorf("key %s not in the pack it is pointing to %s", key, packed.Key)
	}
	sizing := SizeMetadata{
		UniqueCompressedSize: uniqueCompressedSize,
		Pack: &PackMetadata{
			PackKey:                  packed.Key,
			RelevantCompressedSize:   relevantCompressedSize,
			RelevantUncompressedSize: relevantUncompressedSize,
		},
	}
	return plain, sizing, nil
}

// computePackHash hashes the sorted member keys under a domain-separated
// context. Each key contributes its length (little-endian) and its bytes.
func computePackHash(sortedKeys []string) string {
	h := sha256.New()
	h.Write([]byte("pack"))
	var lenBuf [8]byte
	for _, key := range sortedKeys {
		binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(key)))
		h.Write(lenBuf[:])
		h.Write([]byte(key))
	}
	return hex.EncodeToString(h.Sum(nil))
}
