package apng

import (
	"errors"
	"image"

	"golang.org/x/image/draw"

	"github.com/ivlev/apngtool/internal/system"
)

// ErrEmptyAnimation is returned when there is no frame to size the canvas from.
var ErrEmptyAnimation = errors.New("apng: animation has no frames")

// Compose replays dispose and blend operations over frames and returns the
// images a viewer would show. The first element is always a copy of frame 0
// as stored. With includeFirst frame 0 is also composited as the first step
// of the animation; without it compositing starts from frame 1 on an empty
// canvas.
//
// Frames are drawn by overwriting their region. BlendOpOver does not alpha
// composite; BlendOpSource additionally clears the region first.
func Compose(frames []*Frame, includeFirst bool) ([]*image.NRGBA, error) {
	if len(frames) == 0 {
		return nil, ErrEmptyAnimation
	}
	first := frames[0].Image
	canvas := image.Rect(0, 0, first.Rect.Dx(), first.Rect.Dy())

	out := make([]*image.NRGBA, 0, len(frames)+1)
	out = append(out, clone(first, canvas))

	background := system.GetCanvas(canvas)
	defer system.PutCanvas(background)
	clear(background.Pix)

	todo := frames
	if !includeFirst {
		todo = frames[1:]
	}
	for _, f := range todo {
		region := f.region()

		result := image.NewNRGBA(canvas)
		copy(result.Pix, background.Pix)
		if f.BlendOp == BlendOpSource {
			draw.Draw(result, region, image.Transparent, image.Point{}, draw.Src)
		}
		draw.Draw(result, region, f.Image, f.Image.Rect.Min, draw.Src)
		out = append(out, result)

		switch f.DisposeOp {
		case DisposeOpNone, DisposeOpBackground:
			copy(background.Pix, result.Pix)
			if f.DisposeOp == DisposeOpBackground {
				draw.Draw(background, region, image.Transparent, image.Point{}, draw.Src)
			}
		}
		// DisposeOpPrevious keeps the background from before this frame.
	}
	return out, nil
}

// region is where the frame's raster lands on the canvas.
func (f *Frame) region() image.Rectangle {
	x, y := int(f.XOffset), int(f.YOffset)
	return image.Rect(x, y, x+f.Image.Rect.Dx(), y+f.Image.Rect.Dy())
}

func clone(m *image.NRGBA, canvas image.Rectangle) *image.NRGBA {
	c := image.NewNRGBA(canvas)
	draw.Draw(c, canvas, m, m.Rect.Min, draw.Src)
	return c
}
