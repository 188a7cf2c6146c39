package walrecord

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aifocal/akidb/internal/akidberr"
	"github.com/aifocal/akidb/internal/lsn"
)

func TestEncodeDecodeUpsertRoundTrip(t *testing.T) {
	r := Record{
		Kind:         KindUpsert,
		CollectionID: uuid.New(),
		LSN:          lsn.LSN(42),
		DocID:        uuid.New(),
		Vector:       []float32{1, 0, 0},
		Metadata:     map[string]any{"tag": "a"},
	}
	buf, err := Encode(r)
	require.NoError(t, err)

	got, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, r.Kind, got.Kind)
	assert.Equal(t, r.CollectionID, got.CollectionID)
	assert.Equal(t, r.LSN, got.LSN)
	assert.Equal(t, r.DocID, got.DocID)
	assert.Equal(t, r.Vector, got.Vector)
	assert.Equal(t, "a", got.Metadata["tag"])
}

func TestEncodeDecodeDeleteRoundTrip(t *testing.T) {
	r := Record{
		Kind:         KindDelete,
		CollectionID: uuid.New(),
		LSN:          lsn.LSN(7),
		DocID:        uuid.New(),
	}
	buf, err := Encode(r)
	require.NoError(t, err)

	got, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, KindDelete, got.Kind)
	assert.Equal(t, r.DocID, got.DocID)
	assert.Nil(t, got.Vector)
}

func TestDecodeRejectsCorruptedCRC(t *testing.T) {
	r := Record{Kind: KindDelete, CollectionID: uuid.New(), LSN: lsn.LSN(1), DocID: uuid.New()}
	buf, err := Encode(r)
	require.NoError(t, err)

	buf[len(buf)-1] ^= 0xFF // flip a CRC bit

	_, err = Decode(buf)
	require.Error(t, err)
	assert.Equal(t, akidberr.Corruption, akidberr.KindOf(err))
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	r := Record{Kind: KindDelete, CollectionID: uuid.New(), LSN: lsn.LSN(1), DocID: uuid.New()}
	buf, err := Encode(r)
	require.NoError(t, err)

	buf[0] = 0

	_, err = Decode(buf)
	require.Error(t, err)
	assert.Equal(t, akidberr.Corruption, akidberr.KindOf(err))
}

func TestSplitFrameDetectsTruncation(t *testing.T) {
	r := Record{
		Kind:         KindUpsert,
		CollectionID: uuid.New(),
		LSN:          lsn.LSN(1),
		DocID:        uuid.New(),
		Vector:       []float32{1, 2, 3, 4},
	}
	buf, err := Encode(r)
	require.NoError(t, err)

	_, _, err = SplitFrame(buf[:len(buf)-3])
	require.Error(t, err)
	assert.Equal(t, akidberr.Corruption, akidberr.KindOf(err))

	frame, consumed, err := SplitFrame(buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), consumed)
	assert.Equal(t, buf, frame)
}

func TestEqualCollection(t *testing.T) {
	id := uuid.New()
	r := Record{CollectionID: id}
	assert.True(t, EqualCollection(r, id))
	assert.False(t, EqualCollection(r, uuid.New()))
}
