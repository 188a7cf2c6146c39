// Package walrecord defines the typed WAL record model and its bit-exact
// on-disk encoding: a tagged union of Upsert and Delete records, each
// carrying the owning collection's identity and framed with a CRC32C trailer.
package walrecord

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"math"

	"github.com/google/uuid"

	"github.com/aifocal/akidb/internal/akidberr"
	"github.com/aifocal/akidb/internal/lsn"
)

// Magic identifies an AkiDB WAL record. "AKWR" in ASCII.
const Magic uint32 = 0x414B5752

// Kind tags the two record variants. Closed set: String renders an
// unrecognized value as "unknown(n)", and Decode rejects one as Corruption.
type Kind uint8

const (
	// KindUpsert carries a full vector document (insert or update-in-place).
	KindUpsert Kind = 1
	// KindDelete carries only the doc_id being tombstoned.
	KindDelete Kind = 2
)

// String renders the Kind's name.
func (k Kind) String() string {
	switch k {
	case KindUpsert:
		return "upsert"
	case KindDelete:
		return "delete"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// crcTable is the Castagnoli CRC32 table (CRC32C), matching the framing used
// throughout the corpus's WAL implementations.
var crcTable = crc32.MakeTable(crc32.Castagnoli)

// Record is a single WAL entry. Which payload fields are populated depends on
// Kind: KindUpsert uses Vector+Metadata, KindDelete uses neither.
type Record struct {
	Kind         Kind
	CollectionID uuid.UUID
	LSN          lsn.LSN
	DocID        uuid.UUID
	Vector       []float32      // populated for KindUpsert
	Metadata     map[string]any // populated for KindUpsert, may be nil
}

// fixedHeaderSize is magic(4) + kind(1) + collection_id(16) + lsn(8) + payload_len(4).
const fixedHeaderSize = 4 + 1 + 16 + 8 + 4

// crcSize is the trailing CRC32C field.
const crcSize = 4

// Encode serializes r into the bit-exact wire format described in the spec:
// magic u32 | kind u8 | collection_id 16B | lsn u64 | payload_len u32 | payload | crc32c u32.
func Encode(r Record) ([]byte, error) {
	payload, err := encodePayload(r)
	if err != nil {
		return nil, err
	}
	if len(payload) > math.MaxUint32 {
		return nil, akidberr.New(akidberr.Internal, "walrecord: payload too large (%d bytes)", len(payload))
	}

	buf := make([]byte, fixedHeaderSize+len(payload)+crcSize)
	binary.BigEndian.PutUint32(buf[0:4], Magic)
	buf[4] = byte(r.Kind)
	copy(buf[5:21], r.CollectionID[:])
	binary.BigEndian.PutUint64(buf[21:29], uint64(r.LSN))
	binary.BigEndian.PutUint32(buf[29:33], uint32(len(payload)))
	copy(buf[33:], payload)

	crc := crc32.Checksum(buf[:33+len(payload)], crcTable)
	binary.BigEndian.PutUint32(buf[33+len(payload):], crc)
	return buf, nil
}

func encodePayload(r Record) ([]byte, error) {
	switch r.Kind {
	case KindUpsert:
		return encodeUpsertPayload(r)
	case KindDelete:
		return r.DocID[:], nil
	default:
		return nil, akidberr.New(akidberr.Internal, "walrecord: unrecognized kind %d", r.Kind)
	}
}

// encodeUpsertPayload lays out doc_id(16) | dim u32 | floats | metadata_len u32 | JSON metadata.
func encodeUpsertPayload(r Record) ([]byte, error) {
	var metaJSON []byte
	if r.Metadata != nil {
		var err error
		metaJSON, err = json.Marshal(r.Metadata)
		if err != nil {
			return nil, akidberr.Wrap(akidberr.Internal, err, "walrecord: marshal metadata")
		}
	}

	size := 16 + 4 + len(r.Vector)*4 + 4 + len(metaJSON)
	buf := make([]byte, size)
	copy(buf[0:16], r.DocID[:])
	binary.BigEndian.PutUint32(buf[16:20], uint32(len(r.Vector)))

	off := 20
	for _, f := range r.Vector {
		binary.BigEndian.PutUint32(buf[off:off+4], math.Float32bits(f))
		off += 4
	}
	binary.BigEndian.PutUint32(buf[off:off+4], uint32(len(metaJSON)))
	off += 4
	copy(buf[off:], metaJSON)

	return buf, nil
}

// Decode parses a single framed record from buf, which must contain exactly
// one record (no trailing bytes). Returns a Corruption error on CRC mismatch,
// truncation, or an unrecognized Kind.
func Decode(buf []byte) (Record, error) {
	if len(buf) < fixedHeaderSize+crcSize {
		return Record{}, akidberr.New(akidberr.Corruption, "walrecord: buffer too short (%d bytes)", len(buf))
	}

	magic := binary.BigEndian.Uint32(buf[0:4])
	if magic != Magic {
		return Record{}, akidberr.New(akidberr.Corruption, "walrecord: bad magic %x", magic)
	}

	kind := Kind(buf[4])
	var collectionID uuid.UUID
	copy(collectionID[:], buf[5:21])
	recordLSN := lsn.LSN(binary.BigEndian.Uint64(buf[21:29]))
	payloadLen := binary.BigEndian.Uint32(buf[29:33])

	wantLen := fixedHeaderSize + int(payloadLen) + crcSize
	if len(buf) != wantLen {
		return Record{}, akidberr.New(akidberr.Corruption, "walrecord: length mismatch: have %d want %d", len(buf), wantLen)
	}

	payload := buf[33 : 33+int(payloadLen)]
	wantCRC := binary.BigEndian.Uint32(buf[33+int(payloadLen):])
	gotCRC := crc32.Checksum(buf[:33+int(payloadLen)], crcTable)
	if gotCRC != wantCRC {
		return Record{}, akidberr.New(akidberr.Corruption, "walrecord: crc mismatch: have %x want %x", gotCRC, wantCRC)
	}

	r := Record{Kind: kind, CollectionID: collectionID, LSN: recordLSN}
	switch kind {
	case KindUpsert:
		if err := decodeUpsertPayload(&r, payload); err != nil {
			return Record{}, err
		}
	case KindDelete:
		if len(payload) != 16 {
			return Record{}, akidberr.New(akidberr.Corruption, "walrecord: delete payload must be 16 bytes, got %d", len(payload))
		}
		copy(r.DocID[:], payload)
	default:
		return Record{}, akidberr.New(akidberr.Corruption, "walrecord: unrecognized kind %d", kind)
	}
	return r, nil
}

func decodeUpsertPayload(r *Record, payload []byte) error {
	if len(payload) < 16+4 {
		return akidberr.New(akidberr.Corruption, "walrecord: upsert payload too short")
	}
	copy(r.DocID[:], payload[0:16])
	dim := binary.BigEndian.Uint32(payload[16:20])

	off := 20
	wantFloatsEnd := off + int(dim)*4
	if len(payload) < wantFloatsEnd+4 {
		return akidberr.New(akidberr.Corruption, "walrecord: upsert payload truncated (dim=%d)", dim)
	}

	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.BigEndian.Uint32(payload[off : off+4]))
		off += 4
	}
	r.Vector = vec

	metaLen := binary.BigEndian.Uint32(payload[off : off+4])
	off += 4
	if len(payload) != off+int(metaLen) {
		return akidberr.New(akidberr.Corruption, "walrecord: metadata length mismatch")
	}
	if metaLen > 0 {
		var meta map[string]any
		if err := json.Unmarshal(payload[off:off+int(metaLen)], &meta); err != nil {
			return akidberr.Wrap(akidberr.Corruption, err, "walrecord: unmarshal metadata")
		}
		r.Metadata = meta
	}
	return nil
}

// SplitFrame reads exactly one framed record from the front of r, returning
// the raw framed bytes (header+payload+crc) and the number of bytes consumed.
// Returns io.ErrUnexpectedEOF-flavored errors via akidberr.Corruption if the
// buffer holds a truncated tail record (the common case after a crash).
func SplitFrame(r []byte) (frame []byte, consumed int, err error) {
	if len(r) < fixedHeaderSize {
		return nil, 0, akidberr.New(akidberr.Corruption, "walrecord: truncated header")
	}
	payloadLen := binary.BigEndian.Uint32(r[29:33])
	total := fixedHeaderSize + int(payloadLen) + crcSize
	if len(r) < total {
		return nil, 0, akidberr.New(akidberr.Corruption, "walrecord: truncated tail record")
	}
	return r[:total], total, nil
}

// EqualCollection reports whether the record's CollectionID matches want,
// used by replay to reject records that wandered into the wrong segment file.
func EqualCollection(r Record, want uuid.UUID) bool {
	return bytes.Equal(r.CollectionID[:], want[:])
}
