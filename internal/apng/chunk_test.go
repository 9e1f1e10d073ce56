package apng

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkBytes(t *testing.T) {
	c := Chunk{Type: "tEXt", Data: []byte("Comment\x00hi")}
	b := c.Bytes()

	require.Len(t, b, c.Size())
	assert.Equal(t, uint32(len(c.Data)), binary.BigEndian.Uint32(b[0:4]))
	assert.Equal(t, "tEXt", string(b[4:8]))
	assert.Equal(t, c.Data, b[8:8+len(c.Data)])
	assert.Equal(t, crc32.ChecksumIEEE(append([]byte("tEXt"), c.Data...)), binary.BigEndian.Uint32(b[len(b)-4:]))

	var buf bytes.Buffer
	n, err := c.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(len(b)), n)
	assert.Equal(t, b, buf.Bytes())
}

func TestIENDMatchesChunk(t *testing.T) {
	assert.Equal(t, IEND, Chunk{Type: TypeIEND}.Bytes())
}

func TestAnimationControlChunkCRC(t *testing.T) {
	for _, tc := range []struct{ frames, plays uint32 }{
		{0, 0}, {1, 0}, {3, 0}, {10, 1}, {255, 7}, {1 << 20, 1<<32 - 1},
	} {
		b := AnimationControlChunk(tc.frames, tc.plays).Bytes()
		require.Len(t, b, 20)
		assert.Equal(t, uint32(8), binary.BigEndian.Uint32(b[0:4]))
		assert.Equal(t, TypeACTL, string(b[4:8]))
		assert.Equal(t, tc.frames, binary.BigEndian.Uint32(b[8:12]))
		assert.Equal(t, tc.plays, binary.BigEndian.Uint32(b[12:16]))
		assert.Equal(t, crc32.ChecksumIEEE(b[4:16]), binary.BigEndian.Uint32(b[16:20]), "frames=%d plays=%d", tc.frames, tc.plays)

		frames, plays, err := ParseAnimationControl(b[8:16])
		require.NoError(t, err)
		assert.Equal(t, tc.frames, frames)
		assert.Equal(t, tc.plays, plays)
	}
}

func TestFrameControlChunk(t *testing.T) {
	d := FrameDescriptor{
		SequenceNumber: 99, // ignored
		Width:          300,
		Height:         200,
		XOffset:        12,
		YOffset:        34,
		DelayNum:       5,
		DelayDen:       100,
		DisposeOp:      DisposeOpPrevious,
		BlendOp:        BlendOpOver,
	}
	c := FrameControlChunk(d, 7)
	b := c.Bytes()
	require.Len(t, b, 38)
	assert.Equal(t, uint32(26), binary.BigEndian.Uint32(b[0:4]))
	assert.Equal(t, TypeFCTL, string(b[4:8]))
	assert.Equal(t, uint32(7), binary.BigEndian.Uint32(b[8:12]))
	assert.Equal(t, byte(2), b[32])
	assert.Equal(t, byte(1), b[33])
	assert.Equal(t, crc32.ChecksumIEEE(b[4:34]), binary.BigEndian.Uint32(b[34:38]))

	got, err := ParseFrameControl(c.Data)
	require.NoError(t, err)
	want := d
	want.SequenceNumber = 7
	assert.Equal(t, want, got)

	_, err = ParseFrameControl(c.Data[:25])
	var fe FormatError
	assert.ErrorAs(t, err, &fe)
}

func TestFrameDataChunk(t *testing.T) {
	payload := []byte{1, 2, 3, 4, 5}
	c := FrameDataChunk(42, payload)
	assert.Equal(t, TypeFDAT, c.Type)
	assert.Equal(t, len(payload)+16, c.Size())
	assert.Equal(t, uint32(42), binary.BigEndian.Uint32(c.Data[:4]))

	idat := StripFrameData(c.Data)
	assert.Equal(t, TypeIDAT, idat.Type)
	assert.Equal(t, payload, idat.Data)

	assert.Empty(t, StripFrameData([]byte{1, 2}).Data)
}

func TestDeriveFrameHeader(t *testing.T) {
	base := Chunk{Type: TypeIHDR, Data: []byte{
		0, 0, 1, 0, // width 256
		0, 0, 0, 128, // height 128
		16, 6, 0, 0, 1, // depth, color type, compression, filter, interlace
	}}.Bytes()
	require.Len(t, base, ihdrRecordSize)

	h := DeriveFrameHeader(base, FrameDescriptor{Width: 30, Height: 20})
	assert.Equal(t, TypeIHDR, h.Type)
	assert.Equal(t, []byte{0, 0, 0, 30, 0, 0, 0, 20, 16, 6, 0, 0, 1}, h.Data)
	assert.Len(t, h.Bytes(), ihdrRecordSize)
}

func TestClassifyChunk(t *testing.T) {
	tests := map[string]ChunkKind{
		"IHDR": KindIHDR,
		"IDAT": KindIDAT,
		"IEND": KindIEND,
		"acTL": KindACTL,
		"fcTL": KindFCTL,
		"fdAT": KindFDAT,
		"tRNS": KindAncillary,
		"PLTE": KindAncillary,
		"eXIf": KindAncillary,
		"sRGB": KindAncillary,
		"tEXt": KindUnknown,
		"zzzz": KindUnknown,
	}
	for tag, want := range tests {
		assert.Equal(t, want, ClassifyChunk(tag), tag)
	}
	assert.Equal(t, "ancillary", KindAncillary.String())
}

func TestSplitChunksErrors(t *testing.T) {
	_, err := splitChunks([]byte{0, 0, 0})
	assert.Error(t, err)

	b := Chunk{Type: TypeIDAT, Data: []byte{1, 2, 3}}.Bytes()
	binary.BigEndian.PutUint32(b[0:4], 100)
	_, err = splitChunks(b)
	assert.Error(t, err)
}
