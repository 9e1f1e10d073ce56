package analyzer

import "image"

// Block is a connected region where a frame differs from the one before it.
type Block struct {
	Rect   image.Rectangle
	Pixels int // changed pixels inside Rect
}

// Detector finds the regions that changed between two frames of equal size.
type Detector interface {
	Detect(prev, cur *image.NRGBA) ([]Block, error)
}

// Bounds is the smallest rectangle holding every block.
func Bounds(blocks []Block) image.Rectangle {
	var r image.Rectangle
	for _, b := range blocks {
		r = r.Union(b.Rect)
	}
	return r
}
