package pack

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Each call builds its own encoder or decoder. CPU-bound callers are
// expected to wrap these in a worker pool; the functions themselves run to
// completion without suspension.

func zstdCompress(level int, data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

// zstdCompressWithDict compresses data using the plaintext of another blob
// as a raw content dictionary.
func zstdCompressWithDict(level int, dict, data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)),
		zstd.WithEncoderDictRaw(0, dict),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd dictionary encoder: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

func zstdDecompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decode failed: %w", err)
	}
	return out, nil
}

func zstdDecompressWithDict(dict, data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil, zstd.WithDecoderDictRaw(0, dict))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd dictionary decoder: %w", err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd dictionary decode failed: %w", err)
	}
	return out, nil
}
