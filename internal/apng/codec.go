package apng

import (
	"bytes"
	"image"
	"io"

	"golang.org/x/image/draw"
)

// Codec encodes and decodes single, non-animated PNG images.
//
// Encode must produce signature ++ IHDR ++ [ancillary] ++ IDAT... ++ IEND and
// every image it writes for one animation must share bit depth and color type,
// since frames inherit the header of the static image.
type Codec interface {
	Encode(w io.Writer, m image.Image) error
	Decode(r io.Reader) (image.Image, error)
}

func encode(codec Codec, m image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := codec.Encode(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ToNRGBA returns m as a zero-origin *image.NRGBA, converting when needed.
func ToNRGBA(m image.Image) *image.NRGBA {
	if n, ok := m.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	b := m.Bounds()
	n := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(n, n.Bounds(), m, b.Min, draw.Src)
	return n
}
