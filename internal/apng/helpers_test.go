package apng

import (
	"bytes"
	"image"
	"image/color"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ivlev/apngtool/internal/pngcodec"
)

var testCodec = pngcodec.Codec{}

var (
	red         = color.NRGBA{R: 255, A: 255}
	green       = color.NRGBA{G: 255, A: 255}
	blue        = color.NRGBA{B: 255, A: 255}
	transparent = color.NRGBA{}
)

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

// gradient is an opaque image whose pixel (x, y) is (x, y, 0).
func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), A: 255})
		}
	}
	return img
}

// noise is an incompressible image, large enough that its encoding spans
// several IDAT chunks.
func noise(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	var x uint32 = 2463534242
	for i := range img.Pix {
		x ^= x << 13
		x ^= x >> 17
		x ^= x << 5
		img.Pix[i] = byte(x)
	}
	return img
}

func encodePNG(t *testing.T, m image.Image) []byte {
	t.Helper()
	b, err := encode(testCodec, m)
	require.NoError(t, err)
	return b
}

// countChunks reports how many chunks of type tag a stream holds.
func countChunks(t *testing.T, stream []byte, tag string) int {
	t.Helper()
	n := 0
	for _, c := range chunksOf(t, stream) {
		if c.Type == tag {
			n++
		}
	}
	return n
}

// recordingCodec keeps every image it is asked to decode.
type recordingCodec struct {
	Codec
	decoded [][]byte
}

func (c *recordingCodec) Decode(r io.Reader) (image.Image, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	c.decoded = append(c.decoded, b)
	return c.Codec.Decode(bytes.NewReader(b))
}

// chunksOf splits a serialized stream after its signature.
func chunksOf(t *testing.T, stream []byte) []Chunk {
	t.Helper()
	require.Equal(t, Signature, string(stream[:len(Signature)]))
	chunks, err := splitChunks(stream[len(Signature):])
	require.NoError(t, err)
	return chunks
}

// scenarioA is a 100x100 static image outside the animation followed by
// three 100x100 frames.
var scenarioA = []FrameOptions{
	{XOffset: 40, YOffset: 20, DelayNum: 1, DelayDen: 10, DisposeOp: DisposeOpBackground, BlendOp: BlendOpOver},
	{XOffset: 20, YOffset: 50, DelayNum: 2, DelayDen: 10, DisposeOp: DisposeOpPrevious, BlendOp: BlendOpSource},
	{XOffset: 50, YOffset: 40, DelayNum: 3, DelayDen: 10, DisposeOp: DisposeOpNone, BlendOp: BlendOpSource},
}

var scenarioAColors = []color.NRGBA{red, green, blue}

func buildScenarioA(t *testing.T) []byte {
	t.Helper()
	b, err := NewBuilder(testCodec, gradient(100, 100), 0)
	require.NoError(t, err)
	for i, fo := range scenarioA {
		require.NoError(t, b.AddFrame(solid(100, 100, scenarioAColors[i]), fo))
	}
	return b.Finalize()
}
