package apng

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(img *image.NRGBA, x, y uint32, dispose DisposeOp, blend BlendOp) *Frame {
	return &Frame{
		FrameDescriptor: FrameDescriptor{
			Width:     uint32(img.Rect.Dx()),
			Height:    uint32(img.Rect.Dy()),
			XOffset:   x,
			YOffset:   y,
			DisposeOp: dispose,
			BlendOp:   blend,
		},
		HasControl: true,
		Image:      img,
	}
}

func TestComposeEmpty(t *testing.T) {
	_, err := Compose(nil, true)
	assert.ErrorIs(t, err, ErrEmptyAnimation)
	_, err = (&Animation{}).Render(false)
	assert.ErrorIs(t, err, ErrEmptyAnimation)
}

func TestComposeScenarioB(t *testing.T) {
	anim, err := Decode(bytes.NewReader(buildScenarioA(t)), testCodec)
	require.NoError(t, err)
	static := gradient(100, 100)

	t.Run("without first", func(t *testing.T) {
		out, err := anim.Render(false)
		require.NoError(t, err)
		require.Len(t, out, 4)
		assert.Len(t, anim.Frames, 4, "input frames are left alone")

		assert.Equal(t, static.Pix, out[0].Pix)

		// Frame 1: red over an empty canvas.
		assert.Equal(t, red, out[1].NRGBAAt(50, 50))
		assert.Equal(t, transparent, out[1].NRGBAAt(10, 10))

		// Disposed to background, so frame 2 starts from an empty canvas.
		assert.Equal(t, green, out[2].NRGBAAt(30, 60))
		assert.Equal(t, transparent, out[2].NRGBAAt(50, 30))

		// Frame 2 was disposed to previous; its green is gone again.
		assert.Equal(t, blue, out[3].NRGBAAt(60, 50))
		assert.Equal(t, transparent, out[3].NRGBAAt(30, 60))
	})

	t.Run("with first", func(t *testing.T) {
		out, err := anim.Render(true)
		require.NoError(t, err)
		require.Len(t, out, 5)

		assert.Equal(t, static.Pix, out[0].Pix)
		assert.Equal(t, static.Pix, out[1].Pix)

		assert.Equal(t, red, out[2].NRGBAAt(50, 50))
		assert.Equal(t, static.NRGBAAt(10, 10), out[2].NRGBAAt(10, 10))

		// The static image survives outside the disposed region.
		assert.Equal(t, static.NRGBAAt(10, 10), out[3].NRGBAAt(10, 10))
		assert.Equal(t, transparent, out[3].NRGBAAt(50, 30))
		assert.Equal(t, green, out[3].NRGBAAt(30, 60))

		assert.Equal(t, blue, out[4].NRGBAAt(60, 50))
		assert.Equal(t, static.NRGBAAt(30, 60), out[4].NRGBAAt(30, 60))
	})
}

func TestComposeDisposePrevious(t *testing.T) {
	frames := []*Frame{
		frame(solid(100, 100, red), 0, 0, DisposeOpNone, BlendOpSource),
		frame(solid(20, 20, green), 10, 10, DisposeOpPrevious, BlendOpSource),
		frame(solid(1, 1, blue), 99, 99, DisposeOpNone, BlendOpSource),
	}
	out, err := Compose(frames, true)
	require.NoError(t, err)
	require.Len(t, out, 4)

	// The background before frame 1 was out[1]; frame 2 must be drawn on it.
	want := image.NewNRGBA(out[1].Rect)
	copy(want.Pix, out[1].Pix)
	want.SetNRGBA(99, 99, blue)
	assert.Equal(t, want.Pix, out[3].Pix)
}

func TestComposeDisposeBackground(t *testing.T) {
	frames := []*Frame{
		frame(solid(100, 100, red), 0, 0, DisposeOpNone, BlendOpSource),
		frame(solid(20, 20, green), 10, 10, DisposeOpBackground, BlendOpSource),
		frame(solid(1, 1, blue), 99, 99, DisposeOpNone, BlendOpSource),
	}
	out, err := Compose(frames, true)
	require.NoError(t, err)
	require.Len(t, out, 4)

	disposed := image.Rect(10, 10, 30, 30)
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			p := image.Pt(x, y)
			got := out[3].NRGBAAt(x, y)
			switch {
			case p == image.Pt(99, 99):
				assert.Equal(t, blue, got)
			case p.In(disposed):
				require.Equal(t, transparent, got, "pixel %v", p)
			default:
				require.Equal(t, out[2].NRGBAAt(x, y), got, "pixel %v", p)
			}
		}
	}
}

func TestComposeBlendSourceClearsRegion(t *testing.T) {
	half := solid(10, 10, color.NRGBA{R: 10, G: 20, B: 30, A: 128})
	frames := []*Frame{
		frame(solid(10, 10, red), 0, 0, DisposeOpNone, BlendOpSource),
		frame(half, 0, 0, DisposeOpNone, BlendOpSource),
	}
	out, err := Compose(frames, true)
	require.NoError(t, err)
	assert.Equal(t, half.NRGBAAt(5, 5), out[2].NRGBAAt(5, 5))
}

// Over is drawn like Source: the frame replaces the region instead of being
// alpha composited onto it.
func TestComposeOverOverwritesRegion(t *testing.T) {
	half := solid(10, 10, color.NRGBA{G: 255, A: 128})
	frames := []*Frame{
		frame(solid(10, 10, red), 0, 0, DisposeOpNone, BlendOpSource),
		frame(half, 0, 0, DisposeOpNone, BlendOpOver),
	}
	out, err := Compose(frames, true)
	require.NoError(t, err)
	assert.Equal(t, half.NRGBAAt(3, 3), out[2].NRGBAAt(3, 3))
}

func TestComposeIsRepeatable(t *testing.T) {
	b, err := NewBuilder(testCodec, gradient(32, 32), 0)
	require.NoError(t, err)
	require.NoError(t, b.AddFrame(gradient(32, 32), FrameOptions{DisposeOp: DisposeOpNone}))
	require.NoError(t, b.AddFrame(solid(8, 8, blue), FrameOptions{XOffset: 4, YOffset: 4, DisposeOp: DisposeOpNone}))
	stream := b.Finalize()

	render := func() []*image.NRGBA {
		anim, err := Decode(bytes.NewReader(stream), testCodec)
		require.NoError(t, err)
		out, err := anim.Render(false)
		require.NoError(t, err)
		return out
	}
	first, second := render(), render()
	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Pix, second[i].Pix, "image %d", i)
	}
}

func TestComposeDoesNotAliasInput(t *testing.T) {
	img := solid(4, 4, red)
	frames := []*Frame{frame(img, 0, 0, DisposeOpNone, BlendOpSource)}
	out, err := Compose(frames, true)
	require.NoError(t, err)

	out[0].SetNRGBA(0, 0, blue)
	out[1].SetNRGBA(1, 1, blue)
	assert.Equal(t, red, img.NRGBAAt(0, 0))
	assert.Equal(t, red, img.NRGBAAt(1, 1))
}
