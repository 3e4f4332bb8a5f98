package pack

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// EnvelopeSuffix terminates every finalized pack key
const EnvelopeSuffix = ".pack"

// envelopeVersion tags the storage envelope framing
const envelopeVersion = 1

// Storage envelope tags
const (
	storageTagSingle = 1
	storageTagPacked = 2
)

// Packed value tags
const (
	valueTagRaw          = 0
	valueTagZstd         = 1
	valueTagZstdFromDict = 2
)

// SingleValueKind distinguishes raw from zstd-compressed single values
type SingleValueKind uint8

const (
	SingleRaw  SingleValueKind = valueTagRaw
	SingleZstd SingleValueKind = valueTagZstd
)

// SingleValue is a blob stored on its own, raw or zstd-compressed
type SingleValue struct {
	Kind  SingleValueKind
	Bytes []byte
}

// PackedValueKind distinguishes the entry variants inside a pack
type PackedValueKind uint8

const (
	PackedSingle       PackedValueKind = valueTagRaw // refined by Single.Kind
	PackedZstdFromDict PackedValueKind = valueTagZstdFromDict
)

// PackedValue is one entry payload: either a self-contained single value or
// a zstd stream whose dictionary is the plaintext of another entry.
type PackedValue struct {
	Kind    PackedValueKind
	Single  *SingleValue // set when Kind == PackedSingle
	DictKey string       // set when Kind == PackedZstdFromDict
	Zstd    []byte       // set when Kind == PackedZstdFromDict
}

// PackedEntry pairs a key with its packed payload
type PackedEntry struct {
	Key   string
	Value PackedValue
}

// PackedFormat is a finalized pack: its own key plus the ordered entries.
// Dictionary entries always precede the entries that reference them.
type PackedFormat struct {
	Key     string
	Entries []PackedEntry
}

// Envelope wraps a blob for the underlying key/value store. Exactly one of
// Single and Packed is set.
type Envelope struct {
	Single *SingleValue
	Packed *PackedFormat
}

// EncodeEnvelope serializes an envelope into the length-prefixed,
// version-tagged wire form.
func EncodeEnvelope(e *Envelope) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(envelopeVersion)
	switch {
	case e.Single != nil:
		buf.WriteByte(storageTagSingle)
		buf.WriteByte(byte(e.Single.Kind))
		writeBytes(&buf, e.Single.Bytes)
	case e.Packed != nil:
		buf.WriteByte(storageTagPacked)
		writeBytes(&buf, []byte(e.Packed.Key))
		writeUvarint(&buf, uint64(len(e.Packed.Entries)))
		for _, entry := range e.Packed.Entries {
			writeBytes(&buf, []byte(entry.Key))
			switch entry.Value.Kind {
			case PackedSingle:
				buf.WriteByte(byte(entry.Value.Single.Kind))
				writeBytes(&buf, entry.Value.Single.Bytes)
			case PackedZstdFromDict:
				buf.WriteByte(valueTagZstdFromDict)
				writeBytes(&buf, []byte(entry.Value.DictKey))
				writeBytes(&buf, entry.Value.Zstd)
			default:
				return nil, fmt.Errorf("unknown packed value tag %d for key %s", entry.Value.Kind, entry.Key)
			}
		}
	default:
		return nil, fmt.Errorf("empty storage envelope")
	}
	return buf.Bytes(), nil
}

// DecodeEnvelope parses wire bytes back into an envelope
func DecodeEnvelope(data []byte) (*Envelope, error) {
	r := &envelopeReader{data: data}
	version, err := r.byte()
	if err != nil {
		return nil, fmt.Errorf("truncated envelope: %w", err)
	}
	if version != envelopeVersion {
		return nil, fmt.Errorf("unknown envelope version %d", version)
	}
	tag, err := r.byte()
	if err != nil {
		return nil, fmt.Errorf("truncated envelope: %w", err)
	}
	switch tag {
	case storageTagSingle:
		sv, err := r.singleValue()
		if err != nil {
			return nil, err
		}
		return &Envelope{Single: sv}, nil
	case storageTagPacked:
		key, err := r.bytes()
		if err != nil {
			return nil, fmt.Errorf("truncated pack key: %w", err)
		}
		count, err := r.uvarint()
		if err != nil {
			return nil, fmt.Errorf("truncated entry count: %w", err)
		}
		packed := &PackedFormat{Key: string(key)}
		for i := uint64(0); i < count; i++ {
			entryKey, err := r.bytes()
			if err != nil {
				return nil, fmt.Errorf("truncated entry key: %w", err)
			}
			valueTag, err := r.byte()
			if err != nil {
				return nil, fmt.Errorf("truncated entry %s: %w", entryKey, err)
			}
			var value PackedValue
			switch valueTag {
			case valueTagRaw, valueTagZstd:
				payload, err := r.bytes()
				if err != nil {
					return nil, fmt.Errorf("truncated entry %s: %w", entryKey, err)
				}
				value = PackedValue{
					Kind:   PackedSingle,
					Single: &SingleValue{Kind: SingleValueKind(valueTag), Bytes: payload},
				}
			case valueTagZstdFromDict:
				dictKey, err := r.bytes()
				if err != nil {
					return nil, fmt.Errorf("truncated dict key for entry %s: %w", entryKey, err)
				}
				payload, err := r.bytes()
				if err != nil {
					return nil, fmt.Errorf("truncated entry %s: %w", entryKey, err)
				}
				value = PackedValue{
					Kind:    PackedZstdFromDict,
					DictKey: string(dictKey),
					Zstd:    payload,
				}
			default:
				return nil, fmt.Errorf("unknown value tag %d for entry %s", valueTag, entryKey)
			}
			packed.Entries = append(packed.Entries, PackedEntry{Key: string(entryKey), Value: value})
		}
		return &Envelope{Packed: packed}, nil
	default:
		return nil, fmt.Errorf("unknown storage tag %d", tag)
	}
}

func (r *envelopeReader) singleValue() (*SingleValue, error) {
	kind, err := r.byte()
	if err != nil {
		return nil, fmt.Errorf("truncated single value: %w", err)
	}
	if kind != valueTagRaw && kind != valueTagZstd {
		return nil, fmt.Errorf("unknown single value tag %d", kind)
	}
	payload, err := r.bytes()
	if err != nil {
		return nil, fmt.Errorf("truncated single value: %w", err)
	}
	return &SingleValue{Kind: SingleValueKind(kind), Bytes: payload}, nil
}

type envelopeReader struct {
	data []byte
	pos  int
}

func (r *envelopeReader) byte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, fmt.Errorf("unexpected end of data at offset %d", r.pos)
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *envelopeReader) uvarint() (uint64, error) {
	v, n := binary.Uvarint(r.data[r.pos:])
	if n <= 0 {
		return 0, fmt.Errorf("bad varint at offset %d", r.pos)
	}
	r.pos += n
	return v, nil
}

func (r *envelopeReader) bytes() ([]byte, error) {
	n, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	if uint64(r.pos)+n > uint64(len(r.data)) {
		return nil, fmt.Errorf("length %d exceeds remaining data at offset %d", n, r.pos)
	}
	out := r.data[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return out, nil
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeUvarint(buf, uint64(len(b)))
	buf.Write(b)
}
