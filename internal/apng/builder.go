package apng

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"

	"go.uber.org/zap"
)

// ErrFinalized is returned when frames are added to a Builder after Finalize.
var ErrFinalized = errors.New("apng: builder already finalized")

// Option configures a Builder or a decode.
type Option func(*options)

type options struct {
	logger *zap.Logger
}

// WithLogger routes debug output to logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func newOptions(opts []Option) *options {
	o := &options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Builder accumulates frames into an APNG stream.
//
// The static image given to the constructor is what non-animated decoders
// show. It becomes animation frame 0 only when built with NewAnimatedBuilder.
type Builder struct {
	codec  Codec
	logger *zap.Logger

	prefix    []byte // signature + IHDR of the static image
	chunks    bytes.Buffer
	frames    uint32
	seq       SequenceNumbers
	plays     uint32
	finalized bool
}

// NewBuilder starts an animation whose static image is not part of the animation.
func NewBuilder(codec Codec, static image.Image, plays uint32, opts ...Option) (*Builder, error) {
	encoded, err := encode(codec, static)
	if err != nil {
		return nil, fmt.Errorf("encoding static image: %w", err)
	}
	return NewBuilderFromPNG(codec, encoded, plays, nil, opts...)
}

// NewAnimatedBuilder starts an animation whose static image is also frame 0,
// drawn at offset (0,0); the offsets in fo are ignored.
func NewAnimatedBuilder(codec Codec, static image.Image, plays uint32, fo FrameOptions, opts ...Option) (*Builder, error) {
	encoded, err := encode(codec, static)
	if err != nil {
		return nil, fmt.Errorf("encoding static image: %w", err)
	}
	return NewBuilderFromPNG(codec, encoded, plays, &fo, opts...)
}

// NewBuilderFromPNG is NewBuilder for an already encoded static image. A
// non-nil fo makes the static image frame 0, as in NewAnimatedBuilder.
func NewBuilderFromPNG(codec Codec, encoded []byte, plays uint32, fo *FrameOptions, opts ...Option) (*Builder, error) {
	width, height, err := headerSize(encoded)
	if err != nil {
		return nil, err
	}
	o := newOptions(opts)
	b := &Builder{
		codec:  codec,
		logger: o.logger,
		prefix: append([]byte(nil), encoded[:prefixSize]...),
		plays:  plays,
	}
	if fo != nil {
		static := *fo
		static.XOffset, static.YOffset = 0, 0
		seq := b.seq.Next()
		if _, err := FrameControlChunk(static.descriptor(width, height), seq).WriteTo(&b.chunks); err != nil {
			return nil, err
		}
		b.frames++
		b.logger.Debug("static image is frame 0", zap.Uint32("seq", seq))
	}
	// Everything between IHDR and IEND is carried over verbatim.
	b.chunks.Write(encoded[prefixSize : len(encoded)-len(IEND)])
	return b, nil
}

// AddFrame encodes m and appends it as the next animation frame.
func (b *Builder) AddFrame(m image.Image, fo FrameOptions) error {
	if b.finalized {
		return ErrFinalized
	}
	encoded, err := encode(b.codec, m)
	if err != nil {
		return fmt.Errorf("encoding frame %d: %w", b.frames, err)
	}
	return b.AddPNGFrame(encoded, fo)
}

// AddPNGFrame appends an already encoded PNG as the next animation frame: one
// fcTL followed by one fdAT per IDAT chunk, each with its own sequence number.
func (b *Builder) AddPNGFrame(encoded []byte, fo FrameOptions) error {
	if b.finalized {
		return ErrFinalized
	}
	width, height, err := headerSize(encoded)
	if err != nil {
		return err
	}
	chunks, err := splitChunks(encoded[prefixSize:])
	if err != nil {
		return fmt.Errorf("frame %d: %w", b.frames, err)
	}

	seq := b.seq.Next()
	if _, err := FrameControlChunk(fo.descriptor(width, height), seq).WriteTo(&b.chunks); err != nil {
		return err
	}
	data := 0
	for _, c := range chunks {
		if c.Type != TypeIDAT {
			continue
		}
		if _, err := FrameDataChunk(b.seq.Next(), c.Data).WriteTo(&b.chunks); err != nil {
			return err
		}
		data++
	}
	b.frames++
	b.logger.Debug("frame added",
		zap.Uint32("frame", b.frames-1),
		zap.Uint32("fcTL_seq", seq),
		zap.Int("fdAT", data),
		zap.Uint32("width", width),
		zap.Uint32("height", height))
	return nil
}

// FrameCount is the number of fcTL chunks written so far.
func (b *Builder) FrameCount() uint32 {
	return b.frames
}

// NextSequence is the sequence number the next fcTL or fdAT will carry.
func (b *Builder) NextSequence() uint32 {
	return uint32(b.seq)
}

// Finalize returns signature ++ IHDR ++ acTL ++ chunks ++ IEND.
func (b *Builder) Finalize() []byte {
	b.finalized = true
	actl := AnimationControlChunk(b.frames, b.plays)

	out := make([]byte, 0, len(b.prefix)+actl.Size()+b.chunks.Len()+len(IEND))
	out = append(out, b.prefix...)
	out = append(out, actl.Bytes()...)
	out = append(out, b.chunks.Bytes()...)
	out = append(out, IEND...)
	return out
}

// headerSize checks the fixed prefix of an encoded PNG and returns its dimensions.
func headerSize(encoded []byte) (width, height uint32, err error) {
	if len(encoded) < prefixSize+len(IEND) {
		return 0, 0, FormatError("encoded image too short")
	}
	if string(encoded[:len(Signature)]) != Signature {
		return 0, 0, ErrNotPNG
	}
	if string(encoded[12:16]) != TypeIHDR {
		return 0, 0, FormatError("first chunk is not IHDR")
	}
	return binary.BigEndian.Uint32(encoded[16:20]), binary.BigEndian.Uint32(encoded[20:24]), nil
}
