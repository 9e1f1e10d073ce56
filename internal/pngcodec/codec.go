// Package pngcodec encodes and decodes single PNG images for the APNG
// builder and parser.
//
// The encoder always writes 8-bit truecolor with alpha, whatever the source
// image, so that every frame of an animation shares the header inherited
// from the static image. Decoding is delegated to image/png.
package pngcodec

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"io"

	"github.com/klauspost/compress/zlib"
)

const pngHeader = "\x89PNG\r\n\x1a\n"

// Maximum amount of compressed data per IDAT chunk.
const idatSize = 1 << 15

const (
	bitDepth8               = 8
	colorTypeTrueColorAlpha = 6
	bytesPerPixel           = 4
)

// CompressionLevel tells the encoder how to trade compression speed for size.
type CompressionLevel int

const (
	DefaultCompression CompressionLevel = 0
	NoCompression      CompressionLevel = -1
	BestSpeed          CompressionLevel = -2
	BestCompression    CompressionLevel = -3
)

func (l CompressionLevel) zlib() int {
	switch l {
	case NoCompression:
		return zlib.NoCompression
	case BestSpeed:
		return zlib.BestSpeed
	case BestCompression:
		return zlib.BestCompression
	default:
		return zlib.DefaultCompression
	}
}

// ParseCompressionLevel maps config names onto levels.
func ParseCompressionLevel(s string) (CompressionLevel, error) {
	switch s {
	case "", "default":
		return DefaultCompression, nil
	case "none":
		return NoCompression, nil
	case "speed":
		return BestSpeed, nil
	case "best":
		return BestCompression, nil
	}
	return DefaultCompression, fmt.Errorf("unknown compression level %q", s)
}

// Codec implements apng.Codec.
type Codec struct {
	Level CompressionLevel
}

// Decode reads one PNG image.
func (c Codec) Decode(r io.Reader) (image.Image, error) {
	return png.Decode(r)
}

// Encode writes m as signature ++ IHDR ++ IDAT... ++ IEND.
func (c Codec) Encode(w io.Writer, m image.Image) error {
	b := m.Bounds()
	mw, mh := int64(b.Dx()), int64(b.Dy())
	if mw <= 0 || mh <= 0 || mw >= 1<<32 || mh >= 1<<32 {
		return fmt.Errorf("pngcodec: invalid image size: %dx%d", mw, mh)
	}

	e := &encoder{w: w}
	if _, err := io.WriteString(w, pngHeader); err != nil {
		return err
	}
	e.writeIHDR(uint32(mw), uint32(mh))
	e.writeIDATs(m, c.Level)
	e.writeChunk(nil, "IEND")
	return e.err
}

type encoder struct {
	w      io.Writer
	err    error
	header [8]byte
	footer [4]byte
}

func (e *encoder) writeChunk(b []byte, name string) {
	if e.err != nil {
		return
	}
	n := uint32(len(b))
	if int(n) != len(b) {
		e.err = errors.New("pngcodec: " + name + " chunk is too large")
		return
	}
	binary.BigEndian.PutUint32(e.header[:4], n)
	copy(e.header[4:8], name)
	crc := crc32.NewIEEE()
	crc.Write(e.header[4:8])
	crc.Write(b)
	binary.BigEndian.PutUint32(e.footer[:4], crc.Sum32())

	_, e.err = e.w.Write(e.header[:8])
	if e.err != nil {
		return
	}
	_, e.err = e.w.Write(b)
	if e.err != nil {
		return
	}
	_, e.err = e.w.Write(e.footer[:4])
}

func (e *encoder) writeIHDR(width, height uint32) {
	var buf [13]byte
	binary.BigEndian.PutUint32(buf[0:4], width)
	binary.BigEndian.PutUint32(buf[4:8], height)
	buf[8] = bitDepth8
	buf[9] = colorTypeTrueColorAlpha
	buf[10] = 0 // default compression method
	buf[11] = 0 // default filter method
	buf[12] = 0 // non-interlaced
	e.writeChunk(buf[:], "IHDR")
}

// Write emits one IDAT per call; a bufio.Writer in front of it bounds the
// chunk size.
func (e *encoder) Write(b []byte) (int, error) {
	e.writeChunk(b, "IDAT")
	if e.err != nil {
		return 0, e.err
	}
	return len(b), nil
}

func (e *encoder) writeIDATs(m image.Image, level CompressionLevel) {
	if e.err != nil {
		return
	}
	bw := bufio.NewWriterSize(e, idatSize)
	zw, err := zlib.NewWriterLevel(bw, level.zlib())
	if err != nil {
		e.err = err
		return
	}
	if err := writeImage(zw, m, level != NoCompression); err != nil {
		e.err = err
		return
	}
	if err := zw.Close(); err != nil {
		e.err = err
		return
	}
	if err := bw.Flush(); err != nil && e.err == nil {
		e.err = err
	}
}

func writeImage(w io.Writer, m image.Image, applyFilter bool) error {
	b := m.Bounds()
	// cr[*] and pr are the bytes for the current and previous row.
	// cr[0] is unfiltered (or equivalently, filtered with the ftNone filter).
	// The +1 is for the per-row filter type, which is at cr[*][0].
	var cr [nFilter][]uint8
	for i := range cr {
		cr[i] = make([]uint8, 1+bytesPerPixel*b.Dx())
		cr[i][0] = uint8(i)
	}
	pr := make([]uint8, 1+bytesPerPixel*b.Dx())

	nrgba, _ := m.(*image.NRGBA)

	for y := b.Min.Y; y < b.Max.Y; y++ {
		if nrgba != nil {
			offset := nrgba.PixOffset(b.Min.X, y)
			copy(cr[0][1:], nrgba.Pix[offset:offset+b.Dx()*bytesPerPixel])
		} else {
			// Convert from image.Image (which is alpha-premultiplied) to PNG's non-alpha-premultiplied.
			i := 1
			for x := b.Min.X; x < b.Max.X; x++ {
				c := color.NRGBAModel.Convert(m.At(x, y)).(color.NRGBA)
				cr[0][i+0] = c.R
				cr[0][i+1] = c.G
				cr[0][i+2] = c.B
				cr[0][i+3] = c.A
				i += bytesPerPixel
			}
		}

		f := ftNone
		if applyFilter {
			f = filter(&cr, pr, bytesPerPixel)
		}

		if _, err := w.Write(cr[f]); err != nil {
			return err
		}

		// The current row for y is the previous row for y+1.
		pr, cr[0] = cr[0], pr
	}
	return nil
}
