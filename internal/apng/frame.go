package apng

import (
	"fmt"
	"image"
	"strings"
)

// DisposeOp is the dispose operator, as per the APNG spec.
type DisposeOp uint8

const (
	DisposeOpNone       DisposeOp = 0
	DisposeOpBackground DisposeOp = 1
	DisposeOpPrevious   DisposeOp = 2
)

func (d DisposeOp) String() string {
	switch d {
	case DisposeOpNone:
		return "none"
	case DisposeOpBackground:
		return "background"
	case DisposeOpPrevious:
		return "previous"
	}
	return fmt.Sprintf("dispose(%d)", uint8(d))
}

// ParseDisposeOp accepts the names produced by DisposeOp.String.
func ParseDisposeOp(s string) (DisposeOp, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return DisposeOpNone, nil
	case "background":
		return DisposeOpBackground, nil
	case "previous":
		return DisposeOpPrevious, nil
	}
	return 0, fmt.Errorf("unknown dispose op %q", s)
}

// BlendOp is the blend operator, as per the APNG spec.
type BlendOp uint8

const (
	BlendOpSource BlendOp = 0
	BlendOpOver   BlendOp = 1
)

func (b BlendOp) String() string {
	switch b {
	case BlendOpSource:
		return "source"
	case BlendOpOver:
		return "over"
	}
	return fmt.Sprintf("blend(%d)", uint8(b))
}

// ParseBlendOp accepts the names produced by BlendOp.String.
func ParseBlendOp(s string) (BlendOp, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "source":
		return BlendOpSource, nil
	case "over":
		return BlendOpOver, nil
	}
	return 0, fmt.Errorf("unknown blend op %q", s)
}

// FrameDescriptor is the content of one fcTL chunk.
type FrameDescriptor struct {
	SequenceNumber uint32    // Sequence number of the fcTL, starting from 0
	Width          uint32    // Width of the following frame
	Height         uint32    // Height of the following frame
	XOffset        uint32    // X position at which to render the following frame
	YOffset        uint32    // Y position at which to render the following frame
	DelayNum       uint16    // Frame delay fraction numerator
	DelayDen       uint16    // Frame delay fraction denominator
	DisposeOp      DisposeOp // Type of frame area disposal to be done after rendering this frame
	BlendOp        BlendOp   // Type of frame area rendering for this frame
}

// Options returns the caller-controlled part of the descriptor.
func (d FrameDescriptor) Options() FrameOptions {
	return FrameOptions{
		XOffset:   d.XOffset,
		YOffset:   d.YOffset,
		DelayNum:  d.DelayNum,
		DelayDen:  d.DelayDen,
		DisposeOp: d.DisposeOp,
		BlendOp:   d.BlendOp,
	}
}

// Bounds is the region of the canvas the frame covers.
func (d FrameDescriptor) Bounds() image.Rectangle {
	return image.Rect(int(d.XOffset), int(d.YOffset), int(d.XOffset+d.Width), int(d.YOffset+d.Height))
}

// FrameOptions are the per-frame settings supplied when building an animation.
// Width and height always come from the encoded raster.
type FrameOptions struct {
	XOffset   uint32
	YOffset   uint32
	DelayNum  uint16
	DelayDen  uint16
	DisposeOp DisposeOp
	BlendOp   BlendOp
}

func (o FrameOptions) descriptor(width, height uint32) FrameDescriptor {
	return FrameDescriptor{
		Width:     width,
		Height:    height,
		XOffset:   o.XOffset,
		YOffset:   o.YOffset,
		DelayNum:  o.DelayNum,
		DelayDen:  o.DelayDen,
		DisposeOp: o.DisposeOp,
		BlendOp:   o.BlendOp,
	}
}

// Frame is one decoded animation frame, exactly as stored in the file.
type Frame struct {
	FrameDescriptor
	HasControl bool // the frame was introduced by an fcTL chunk
	Image      *image.NRGBA
}

// Animation is the ordered result of decoding an APNG stream.
type Animation struct {
	Frames    []*Frame // file order
	Animated  bool     // an acTL chunk was present
	NumFrames uint32   // as declared by acTL
	NumPlays  uint32   // 0 indicates infinite looping
	Header    []byte   // raw base IHDR record
}

// Render composites the frames the way an APNG viewer displays them.
func (a *Animation) Render(includeFirst bool) ([]*image.NRGBA, error) {
	return Compose(a.Frames, includeFirst)
}

// SequenceNumbers is used to track sequence numbers across all fcTL and fdAT
// chunks of one animation.
type SequenceNumbers uint32

func (s *SequenceNumbers) Next() uint32 {
	tmp := uint32(*s)
	*s++
	return tmp
}
