package analyzer

import (
	"fmt"
	"image"
)

// DiffDetector compares frames pixel by pixel and groups changed pixels into
// 4-connected blocks.
type DiffDetector struct {
	Threshold uint8 // largest per-channel difference still treated as unchanged
}

// NewDiffDetector creates a lossless detector: any difference counts.
func NewDiffDetector() *DiffDetector {
	return &DiffDetector{}
}

func (d *DiffDetector) Detect(prev, cur *image.NRGBA) ([]Block, error) {
	if prev.Rect.Size() != cur.Rect.Size() {
		return nil, fmt.Errorf("frame size changed from %v to %v", prev.Rect.Size(), cur.Rect.Size())
	}
	mask := d.changed(prev, cur)
	return findBlocks(mask, cur.Rect.Dx(), cur.Rect.Dy()), nil
}

// changed marks every pixel whose channels differ by more than the threshold.
func (d *DiffDetector) changed(prev, cur *image.NRGBA) []bool {
	w, h := cur.Rect.Dx(), cur.Rect.Dy()
	mask := make([]bool, w*h)
	for y := 0; y < h; y++ {
		po := prev.PixOffset(prev.Rect.Min.X, prev.Rect.Min.Y+y)
		co := cur.PixOffset(cur.Rect.Min.X, cur.Rect.Min.Y+y)
		for x := 0; x < w; x++ {
			for c := 0; c < 4; c++ {
				if absDiff(prev.Pix[po+4*x+c], cur.Pix[co+4*x+c]) > d.Threshold {
					mask[y*w+x] = true
					break
				}
			}
		}
	}
	return mask
}

func absDiff(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}

// findBlocks returns the bounding rectangles of the connected regions of mask.
func findBlocks(mask []bool, w, h int) []Block {
	visited := make([]bool, len(mask))
	var blocks []Block

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if mask[y*w+x] && !visited[y*w+x] {
				blocks = append(blocks, floodFill(mask, visited, w, h, x, y))
			}
		}
	}

	return blocks
}

// floodFill performs flood fill and returns the block it covered
func floodFill(mask, visited []bool, w, h, startX, startY int) Block {
	minX, minY := startX, startY
	maxX, maxY := startX, startY
	pixels := 0

	stack := []image.Point{{X: startX, Y: startY}}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		x, y := p.X, p.Y
		if x < 0 || x >= w || y < 0 || y >= h {
			continue
		}
		i := y*w + x
		if visited[i] || !mask[i] {
			continue
		}
		visited[i] = true
		pixels++

		minX, maxX = min(minX, x), max(maxX, x)
		minY, maxY = min(minY, y), max(maxY, y)

		stack = append(stack,
			image.Point{X: x + 1, Y: y},
			image.Point{X: x - 1, Y: y},
			image.Point{X: x, Y: y + 1},
			image.Point{X: x, Y: y - 1},
		)
	}

	return Block{Rect: image.Rect(minX, minY, maxX+1, maxY+1), Pixels: pixels}
}
