package blobstore

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/pack"
)

// RawStore is the underlying key/value store. Writes are atomic at the blob
// granularity and key-idempotent: concurrent writers of the same key may
// race, but any completed Put guarantees a subsequent Get returns those
// bytes. Get returns nil for an absent key.
type RawStore interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Close() error
}

const linkKeyPrefix = "link:"

// packCacheSize bounds the number of decoded pack envelopes kept in memory
const packCacheSize = 128

// Store is the content-addressed blob store: single blobs are stored
// zstd-compressed (raw when compression does not help), and related blobs
// can be grouped into packs whose members are reachable through link
// records.
type Store struct {
	inner     RawStore
	zstdLevel int
	packCache *lru.Cache[string, *pack.PackedFormat]
}

// New wraps a raw store with the pack-aware layer
func New(inner RawStore, zstdLevel int) (*Store, error) {
	cache, err := lru.New[string, *pack.PackedFormat](packCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create pack cache: %w", err)
	}
	return &Store{inner: inner, zstdLevel: zstdLevel, packCache: cache}, nil
}

// Close closes the underlying store
func (s *Store) Close() error {
	return s.inner.Close()
}

// Put stores a blob under key, compressing it on its own
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	single, err := pack.CompressSingle(s.zstdLevel, value)
	if err != nil {
		return fmt.Errorf("failed to compress blob %s: %w", key, err)
	}
	wire, err := single.IntoBytes()
	if err != nil {
		return fmt.Errorf("failed to envelope blob %s: %w", key, err)
	}
	if err := s.inner.Put(ctx, key, wire); err != nil {
		return err
	}
	metrics.BlobPutsTotal.Inc()
	metrics.BlobBytesStored.Add(float64(len(wire)))
	return nil
}

// PutPacked finalizes a pack, stores its envelope under the computed pack
// key and records a link from every member key to the pack. The pack is
// written as a single envelope, so partial packs are never observable.
func (s *Store) PutPacked(ctx context.Context, p *pack.Pack, packPrefix string) (string, []string, error) {
	packKey, memberKeys, wire, err := p.IntoBytes(packPrefix)
	if err != nil {
		return "", nil, fmt.Errorf("failed to finalize pack: %w", err)
	}
	if err := s.inner.Put(ctx, packKey, wire); err != nil {
		return "", nil, fmt.Errorf("failed to store pack %s: %w", packKey, err)
	}
	for _, member := range memberKeys {
		if err := s.inner.Put(ctx, linkKeyPrefix+member, []byte(packKey)); err != nil {
			return "", nil, fmt.Errorf("failed to link %s to pack %s: %w", member, packKey, err)
		}
	}
	metrics.PacksWrittenTotal.Inc()
	metrics.BlobBytesStored.Add(float64(len(wire)))
	return packKey, memberKeys, nil
}

// Get returns the plaintext blob stored under key, following a pack link
// and materializing the dictionary chain when the blob lives in a pack.
// A nil blob with nil error means the key is absent.
func (s *Store) Get(ctx context.Context, key string) ([]byte, *pack.SizeMetadata, error) {
	wire, err := s.inner.Get(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	if wire != nil {
		return s.decodeEnvelope(key, wire)
	}

	// The key may be a pack member: stored prefixless inside the pack,
	// linked under its full key.
	link, err := s.inner.Get(ctx, linkKeyPrefix+key)
	if err != nil {
		return nil, nil, err
	}
	if link == nil {
		_, bare := pack.SplitKeyPrefix(key)
		if bare != key {
			link, err = s.inner.Get(ctx, linkKeyPrefix+bare)
			if err != nil {
				return nil, nil, err
			}
		}
	}
	if link == nil {
		return nil, nil, nil
	}
	packed, err := s.loadPack(ctx, string(link))
	if err != nil {
		return nil, nil, err
	}
	plain, sizing, err := pack.DecodePack(packed, key)
	if err != nil {
		return nil, nil, err
	}
	metrics.PackReadsTotal.Inc()
	return plain, &sizing, nil
}

func (s *Store) decodeEnvelope(key string, wire []byte) ([]byte, *pack.SizeMetadata, error) {
	envelope, err := pack.DecodeEnvelope(wire)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode envelope for %s: %w", key, err)
	}
	switch {
	case envelope.Single != nil:
		plain, compressedSize, err := pack.DecodeSingle(envelope.Single)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to decode blob %s: %w", key, err)
		}
		return plain, &pack.SizeMetadata{UniqueCompressedSize: compressedSize}, nil
	case envelope.Packed != nil:
		// The key stores a pack; a read must name one of its members.
		plain, sizing, err := pack.DecodePack(envelope.Packed, key)
		if err != nil {
			return nil, nil, err
		}
		return plain, &sizing, nil
	default:
		return nil, nil, fmt.Errorf("empty envelope for %s", key)
	}
}

func (s *Store) loadPack(ctx context.Context, packKey string) (*pack.PackedFormat, error) {
	if cached, ok := s.packCache.Get(packKey); ok {
		return cached, nil
	}
	wire, err := s.inner.Get(ctx, packKey)
	if err != nil {
		return nil, err
	}
	if wire == nil {
		return nil, fmt.Errorf("pack %s is missing", packKey)
	}
	envelope, err := pack.DecodeEnvelope(wire)
	if err != nil {
		return nil, fmt.Errorf("failed to decode pack %s: %w", packKey, err)
	}
	if envelope.Packed == nil {
		return nil, fmt.Errorf("key %s does not hold a pack", packKey)
	}
	s.packCache.Add(packKey, envelope.Packed)
	return envelope.Packed, nil
}
