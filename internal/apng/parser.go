package apng

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// ErrNotPNG is returned when a stream does not start with the PNG signature.
var ErrNotPNG = errors.New("apng: not a PNG stream")

// maxRecordPrealloc bounds the buffer reserved up front for one chunk.
const maxRecordPrealloc = 64 << 10

type parser struct {
	r      *bufio.Reader
	codec  Codec
	logger *zap.Logger

	header      []byte // raw IHDR record of the stream
	frameHeader []byte // raw IHDR record derived from the latest fcTL
	ancillary   bytes.Buffer
	desc        *FrameDescriptor

	anim *Animation
}

// Decode reads an APNG (or plain PNG) stream and returns every frame it
// stores, in file order. A stream without animation chunks yields a single
// implicit frame. CRCs are not verified.
func Decode(r io.Reader, codec Codec, opts ...Option) (*Animation, error) {
	o := newOptions(opts)
	p := &parser{
		r:      bufio.NewReader(r),
		codec:  codec,
		logger: o.logger,
		anim:   &Animation{},
	}
	if err := p.parse(); err != nil {
		return nil, err
	}
	return p.anim, nil
}

func (p *parser) parse() error {
	var sig [len(Signature)]byte
	if _, err := io.ReadFull(p.r, sig[:]); err != nil {
		return fmt.Errorf("reading signature: %w", unexpected(err))
	}
	if string(sig[:]) != Signature {
		return ErrNotPNG
	}

	for {
		length, tag, err := p.readHeader()
		if err != nil {
			return err
		}

		switch kind := ClassifyChunk(tag); kind {
		case KindIHDR:
			raw, c, err := p.readRecord(length, tag)
			if err != nil {
				return err
			}
			p.header = c.Bytes()
			p.anim.Header = raw
		case KindACTL:
			_, c, err := p.readRecord(length, tag)
			if err != nil {
				return err
			}
			frames, plays, err := ParseAnimationControl(c.Data)
			if err != nil {
				return err
			}
			p.anim.Animated = true
			p.anim.NumFrames = frames
			p.anim.NumPlays = plays
		case KindAncillary:
			_, c, err := p.readRecord(length, tag)
			if err != nil {
				return err
			}
			p.ancillary.Write(c.Bytes())
		case KindFCTL:
			_, c, err := p.readRecord(length, tag)
			if err != nil {
				return err
			}
			d, err := ParseFrameControl(c.Data)
			if err != nil {
				return err
			}
			if p.header == nil {
				return FormatError("fcTL before IHDR")
			}
			p.desc = &d
			p.frameHeader = DeriveFrameHeader(p.header, d).Bytes()
		case KindIDAT, KindFDAT:
			if err := p.readRun(length, tag, kind); err != nil {
				return err
			}
		case KindIEND:
			return nil
		default:
			p.logger.Debug("skipping chunk", zap.String("type", tag), zap.Uint32("length", length))
			if _, err := p.r.Discard(int(length) + chunkFooterSize); err != nil {
				return fmt.Errorf("skipping %s: %w", tag, unexpected(err))
			}
		}
	}
}

// readRun collects consecutive chunks of one type, rebuilds them into a
// standalone image and decodes it. Frame boundaries are only visible as a
// change of chunk type, so the next header is peeked and left in the reader.
func (p *parser) readRun(length uint32, tag string, kind ChunkKind) error {
	var run bytes.Buffer
	n := 0
	for {
		_, c, err := p.readRecord(length, tag)
		if err != nil {
			return err
		}
		if kind == KindFDAT {
			c = StripFrameData(c.Data)
		}
		if _, err := c.WriteTo(&run); err != nil {
			return err
		}
		n++

		next, err := p.r.Peek(chunkHeaderSize)
		if err != nil {
			return fmt.Errorf("reading chunk header: %w", unexpected(err))
		}
		if string(next[4:8]) != tag {
			break
		}
		if length, tag, err = p.readHeader(); err != nil {
			return err
		}
	}
	p.logger.Debug("data run", zap.String("type", tag), zap.Int("chunks", n), zap.Int("frame", len(p.anim.Frames)))
	return p.emit(run.Bytes())
}

func (p *parser) emit(run []byte) error {
	header := p.header
	if p.desc != nil {
		header = p.frameHeader
	}
	if header == nil {
		return FormatError("image data before IHDR")
	}

	var img bytes.Buffer
	img.Grow(len(Signature) + len(header) + p.ancillary.Len() + len(run) + len(IEND))
	img.WriteString(Signature)
	img.Write(header)
	img.Write(p.ancillary.Bytes())
	img.Write(run)
	img.Write(IEND)

	m, err := p.codec.Decode(&img)
	if err != nil {
		return fmt.Errorf("decoding frame %d: %w", len(p.anim.Frames), err)
	}
	raster := ToNRGBA(m)

	var d FrameDescriptor
	if p.desc != nil {
		d = *p.desc
	} else {
		d.Width = uint32(raster.Rect.Dx())
		d.Height = uint32(raster.Rect.Dy())
	}
	p.anim.Frames = append(p.anim.Frames, &Frame{FrameDescriptor: d, HasControl: p.desc != nil, Image: raster})
	return nil
}

func (p *parser) readHeader() (uint32, string, error) {
	var hdr [chunkHeaderSize]byte
	if _, err := io.ReadFull(p.r, hdr[:]); err != nil {
		return 0, "", fmt.Errorf("reading chunk header: %w", unexpected(err))
	}
	length := binary.BigEndian.Uint32(hdr[:4])
	if length > maxChunkLength {
		return 0, "", FormatError(fmt.Sprintf("bad chunk length: %d", length))
	}
	return length, string(hdr[4:8]), nil
}

// readRecord reads the data and crc of a chunk whose header was already
// consumed. raw is the complete record as it appeared in the stream; c carries
// the same data and gets a fresh crc when serialized, so stored crcs are never
// checked. The buffer grows with the bytes actually read rather than the
// declared length.
func (p *parser) readRecord(length uint32, tag string) (raw []byte, c Chunk, err error) {
	var buf bytes.Buffer
	buf.Grow(chunkHeaderSize + min(int(length), maxRecordPrealloc) + chunkFooterSize)
	var hdr [chunkHeaderSize]byte
	binary.BigEndian.PutUint32(hdr[:4], length)
	copy(hdr[4:], tag)
	buf.Write(hdr[:])
	if _, err := io.CopyN(&buf, p.r, int64(length)+chunkFooterSize); err != nil {
		return nil, Chunk{}, fmt.Errorf("reading %s: %w", tag, unexpected(err))
	}
	raw = buf.Bytes()
	return raw, Chunk{Type: tag, Data: raw[chunkHeaderSize : chunkHeaderSize+int(length)]}, nil
}

func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
