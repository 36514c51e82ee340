package compositor

import (
	"context"

	"cutroom/internal/timeline"
)

// Frame is one rendered picture handed to the encoder.
type Frame struct {
	TimestampMs float64
	Width       int
	Height      int
	// Data is the pixel buffer in the surface's native layout.
	Data []byte
}

// Node is a visual element attached to the render surface.
type Node struct {
	ID       string
	Kind     timeline.Kind
	URL      string
	Z        int
	Geometry timeline.Geometry
	Text     *timeline.TextStyle
	// OffsetMs is the intra-clip offset time-based media must present.
	OffsetMs int64
	Volume   float64
	Muted    bool
}

// Surface is the host rendering collaborator. Implementations accept node
// add/remove/update with position, scale, rotation, and z-order, and produce
// a pixel buffer on Render.
type Surface interface {
	Add(ctx context.Context, node *Node) error
	Update(ctx context.Context, node *Node) error
	Remove(ctx context.Context, id string) error
	Render(ctx context.Context) (Frame, error)
}
