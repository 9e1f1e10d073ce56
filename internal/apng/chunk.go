package apng

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
)

// Signature is the fixed 8-byte magic that starts every PNG and APNG stream.
const Signature = "\x89PNG\r\n\x1a\n"

// Chunk type tags.
const (
	TypeIHDR = "IHDR"
	TypeIDAT = "IDAT"
	TypeIEND = "IEND"
	TypeACTL = "acTL"
	TypeFCTL = "fcTL"
	TypeFDAT = "fdAT"
)

const (
	chunkHeaderSize = 8 // length + type
	chunkFooterSize = 4 // crc

	// A full IHDR record: header, 13 bytes of data and the crc.
	ihdrRecordSize = chunkHeaderSize + 13 + chunkFooterSize

	// Signature plus the IHDR record; every encoded PNG starts with this many fixed bytes.
	prefixSize = len(Signature) + ihdrRecordSize

	fcTLDataSize = 26
	acTLDataSize = 8

	maxChunkLength = 0x7fffffff
)

// IEND is the serialized, constant end-of-stream chunk.
var IEND = []byte{0, 0, 0, 0, 'I', 'E', 'N', 'D', 0xae, 0x42, 0x60, 0x82}

// FormatError reports a structurally invalid record.
type FormatError string

func (e FormatError) Error() string { return "apng: invalid format: " + string(e) }

// ChunkKind is the closed set of chunk categories the parser dispatches on.
type ChunkKind int

const (
	KindUnknown ChunkKind = iota
	KindIHDR
	KindIDAT
	KindIEND
	KindACTL
	KindFCTL
	KindFDAT
	KindAncillary
)

var ancillaryTypes = map[string]struct{}{
	"cHRM": {}, "cICP": {}, "gAMA": {}, "iCCP": {},
	"mDCv": {}, "cLLi": {}, "sBIT": {},
	"sRGB": {}, "bKGD": {}, "hIST": {},
	"tRNS": {}, "PLTE": {}, "eXIf": {},
	"pHYs": {}, "sPLT": {},
}

// ClassifyChunk maps a 4-byte type tag onto a ChunkKind. Ancillary chunks that
// affect how pixel data is interpreted are reported as KindAncillary, every
// other unrecognised tag as KindUnknown.
func ClassifyChunk(tag string) ChunkKind {
	switch tag {
	case TypeIHDR:
		return KindIHDR
	case TypeIDAT:
		return KindIDAT
	case TypeIEND:
		return KindIEND
	case TypeACTL:
		return KindACTL
	case TypeFCTL:
		return KindFCTL
	case TypeFDAT:
		return KindFDAT
	}
	if _, ok := ancillaryTypes[tag]; ok {
		return KindAncillary
	}
	return KindUnknown
}

func (k ChunkKind) String() string {
	switch k {
	case KindIHDR:
		return "IHDR"
	case KindIDAT:
		return "IDAT"
	case KindIEND:
		return "IEND"
	case KindACTL:
		return "acTL"
	case KindFCTL:
		return "fcTL"
	case KindFDAT:
		return "fdAT"
	case KindAncillary:
		return "ancillary"
	}
	return "unknown"
}

// Chunk is one length-prefixed, type-tagged, CRC-framed record.
type Chunk struct {
	Type string
	Data []byte
}

// Len is the value of the chunk's length field.
func (c Chunk) Len() uint32 {
	return uint32(len(c.Data))
}

// CRC is the IEEE CRC-32 over the type tag followed by the data.
func (c Chunk) CRC() uint32 {
	crc := crc32.ChecksumIEEE([]byte(c.Type))
	return crc32.Update(crc, crc32.IEEETable, c.Data)
}

// Size is the number of bytes the chunk occupies on the wire.
func (c Chunk) Size() int {
	return chunkHeaderSize + len(c.Data) + chunkFooterSize
}

// Bytes serializes the chunk as length ++ type ++ data ++ crc.
func (c Chunk) Bytes() []byte {
	b := make([]byte, c.Size())
	binary.BigEndian.PutUint32(b[0:4], c.Len())
	copy(b[4:8], c.Type)
	copy(b[8:], c.Data)
	binary.BigEndian.PutUint32(b[8+len(c.Data):], c.CRC())
	return b
}

// WriteTo encodes the chunk to w. This supports the io.WriterTo interface.
func (c Chunk) WriteTo(w io.Writer) (int64, error) {
	header := [chunkHeaderSize]byte{}
	footer := [chunkFooterSize]byte{}
	binary.BigEndian.PutUint32(header[:4], c.Len())
	copy(header[4:8], c.Type)
	binary.BigEndian.PutUint32(footer[:], c.CRC())

	hl, err := w.Write(header[:])
	if err != nil {
		return int64(hl), err
	}
	dl, err := w.Write(c.Data)
	if err != nil {
		return int64(hl + dl), err
	}
	fl, err := w.Write(footer[:])
	return int64(hl + dl + fl), err
}

// FrameControlChunk builds the 38-byte fcTL record for d, stamped with seq.
// The descriptor's own SequenceNumber is ignored.
func FrameControlChunk(d FrameDescriptor, seq uint32) Chunk {
	buf := make([]byte, fcTLDataSize)
	binary.BigEndian.PutUint32(buf[0:4], seq)
	binary.BigEndian.PutUint32(buf[4:8], d.Width)
	binary.BigEndian.PutUint32(buf[8:12], d.Height)
	binary.BigEndian.PutUint32(buf[12:16], d.XOffset)
	binary.BigEndian.PutUint32(buf[16:20], d.YOffset)
	binary.BigEndian.PutUint16(buf[20:22], d.DelayNum)
	binary.BigEndian.PutUint16(buf[22:24], d.DelayDen)
	buf[24] = byte(d.DisposeOp)
	buf[25] = byte(d.BlendOp)
	return Chunk{Type: TypeFCTL, Data: buf}
}

// AnimationControlChunk builds the 20-byte acTL record. plays == 0 means loop forever.
func AnimationControlChunk(frames, plays uint32) Chunk {
	buf := make([]byte, acTLDataSize)
	binary.BigEndian.PutUint32(buf[0:4], frames)
	binary.BigEndian.PutUint32(buf[4:8], plays)
	return Chunk{Type: TypeACTL, Data: buf}
}

// FrameDataChunk wraps payload (the data of one IDAT) into an fdAT stamped with seq.
func FrameDataChunk(seq uint32, payload []byte) Chunk {
	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], seq)
	copy(buf[4:], payload)
	return Chunk{Type: TypeFDAT, Data: buf}
}

// StripFrameData turns the data of an fdAT back into an IDAT by dropping the
// leading sequence number.
func StripFrameData(payload []byte) Chunk {
	if len(payload) < 4 {
		return Chunk{Type: TypeIDAT}
	}
	return Chunk{Type: TypeIDAT, Data: payload[4:]}
}

// DeriveFrameHeader synthesizes the IHDR of a standalone image holding one
// frame. base is a raw IHDR record (length, type, data, crc); its bit depth,
// color type and interlace method are inherited.
func DeriveFrameHeader(base []byte, d FrameDescriptor) Chunk {
	buf := make([]byte, 13)
	binary.BigEndian.PutUint32(buf[0:4], d.Width)
	binary.BigEndian.PutUint32(buf[4:8], d.Height)
	if len(base) >= ihdrRecordSize {
		buf[8] = base[16]  // bit depth
		buf[9] = base[17]  // color type
		buf[12] = base[20] // interlace
	}
	return Chunk{Type: TypeIHDR, Data: buf}
}

// ParseFrameControl decodes the data of an fcTL chunk.
func ParseFrameControl(data []byte) (FrameDescriptor, error) {
	if len(data) < fcTLDataSize {
		return FrameDescriptor{}, FormatError(fmt.Sprintf("fcTL data is %d bytes, want %d", len(data), fcTLDataSize))
	}
	return FrameDescriptor{
		SequenceNumber: binary.BigEndian.Uint32(data[0:4]),
		Width:          binary.BigEndian.Uint32(data[4:8]),
		Height:         binary.BigEndian.Uint32(data[8:12]),
		XOffset:        binary.BigEndian.Uint32(data[12:16]),
		YOffset:        binary.BigEndian.Uint32(data[16:20]),
		DelayNum:       binary.BigEndian.Uint16(data[20:22]),
		DelayDen:       binary.BigEndian.Uint16(data[22:24]),
		DisposeOp:      DisposeOp(data[24]),
		BlendOp:        BlendOp(data[25]),
	}, nil
}

// ParseAnimationControl decodes the data of an acTL chunk.
func ParseAnimationControl(data []byte) (frames, plays uint32, err error) {
	if len(data) < acTLDataSize {
		return 0, 0, FormatError(fmt.Sprintf("acTL data is %d bytes, want %d", len(data), acTLDataSize))
	}
	return binary.BigEndian.Uint32(data[0:4]), binary.BigEndian.Uint32(data[4:8]), nil
}

// splitChunks walks a run of serialized chunks (no signature).
func splitChunks(b []byte) ([]Chunk, error) {
	var chunks []Chunk
	for len(b) > 0 {
		if len(b) < chunkHeaderSize+chunkFooterSize {
			return nil, FormatError("truncated chunk")
		}
		length := binary.BigEndian.Uint32(b[0:4])
		if length > maxChunkLength || int(length) > len(b)-chunkHeaderSize-chunkFooterSize {
			return nil, FormatError(fmt.Sprintf("bad chunk length: %d", length))
		}
		end := chunkHeaderSize + int(length)
		chunks = append(chunks, Chunk{Type: string(b[4:8]), Data: b[chunkHeaderSize:end]})
		b = b[end+chunkFooterSize:]
	}
	return chunks, nil
}
