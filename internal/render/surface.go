package render

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"cutroom/internal/compositor"
	"cutroom/internal/logging"
	"cutroom/internal/services"
	"cutroom/internal/timeline"
)

// baseFaceHeight is the pixel height of the built-in face. Text tiles are
// drawn at this size and scaled up to the requested font size.
const baseFaceHeight = 13

type surfaceNode struct {
	node *compositor.Node
	// tile is the node's current rasterized picture. Media tiles are
	// keyed by offset so playback invalidates them each frame; text and
	// image tiles survive until the style or source changes.
	tile    *image.RGBA
	tileKey string
}

// Offscreen rasterizes the node tree into RGBA frames without a host UI.
// It implements compositor.Surface.
type Offscreen struct {
	width   int
	height  int
	sampler Sampler
	logger  *slog.Logger

	mu    sync.Mutex
	nodes map[string]*surfaceNode
}

// NewOffscreen constructs a surface with a fixed canvas size.
func NewOffscreen(width, height int, sampler Sampler, logger *slog.Logger) *Offscreen {
	return &Offscreen{
		width:   width,
		height:  height,
		sampler: sampler,
		logger:  logging.WithComponent(logger, "render"),
		nodes:   make(map[string]*surfaceNode),
	}
}

// Add implements compositor.Surface.
func (s *Offscreen) Add(ctx context.Context, node *compositor.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := &surfaceNode{node: cloneNode(node)}
	if err := s.refreshTile(ctx, entry); err != nil {
		return err
	}
	s.nodes[node.ID] = entry
	return nil
}

// Update implements compositor.Surface.
func (s *Offscreen) Update(ctx context.Context, node *compositor.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.nodes[node.ID]
	if !ok {
		return services.Wrap(services.ErrNotFound, "render", "update",
			fmt.Sprintf("node %s is not attached", node.ID), nil)
	}
	entry.node = cloneNode(node)
	return s.refreshTile(ctx, entry)
}

// Remove implements compositor.Surface.
func (s *Offscreen) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.nodes, id)
	return nil
}

// Render implements compositor.Surface. Nodes paint back to front by Z.
func (s *Offscreen) Render(_ context.Context) (compositor.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	canvas := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	fill(canvas, color.RGBA{A: 0xff})

	ordered := make([]*surfaceNode, 0, len(s.nodes))
	for _, entry := range s.nodes {
		ordered = append(ordered, entry)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].node.Z != ordered[j].node.Z {
			return ordered[i].node.Z < ordered[j].node.Z
		}
		return ordered[i].node.ID < ordered[j].node.ID
	})
	for _, entry := range ordered {
		if entry.tile == nil {
			continue
		}
		drawTile(canvas, entry.tile, entry.geometry())
	}

	data := make([]byte, len(canvas.Pix))
	copy(data, canvas.Pix)
	return compositor.Frame{Width: s.width, Height: s.height, Data: data}, nil
}

func (n *surfaceNode) geometry() timeline.Geometry {
	g := n.node.Geometry
	if g.ScaleX == 0 && g.ScaleY == 0 {
		g = timeline.DefaultGeometry()
	}
	if n.node.Kind == timeline.KindText && n.node.Text != nil && n.node.Text.FontSize > 0 {
		k := n.node.Text.FontSize / baseFaceHeight
		g.ScaleX *= k
		g.ScaleY *= k
	}
	return g
}

// refreshTile re-rasterizes the node's picture when its cache key moved.
func (s *Offscreen) refreshTile(ctx context.Context, entry *surfaceNode) error {
	node := entry.node
	switch node.Kind {
	case timeline.KindVideo, timeline.KindImage:
		key := fmt.Sprintf("%s@%d", node.URL, node.OffsetMs)
		if entry.tileKey == key {
			return nil
		}
		if s.sampler == nil {
			return services.Wrap(services.ErrConfiguration, "render", "sample", "no media sampler attached", nil)
		}
		tile, err := s.sampler.Sample(ctx, node.URL, node.OffsetMs, s.width, s.height)
		if err != nil {
			return err
		}
		entry.tile, entry.tileKey = tile, key
	case timeline.KindText:
		if node.Text == nil {
			entry.tile, entry.tileKey = nil, ""
			return nil
		}
		key := fmt.Sprintf("%s/%s", node.Text.Text, node.Text.FillColor)
		if entry.tileKey == key {
			return nil
		}
		entry.tile, entry.tileKey = rasterizeText(node.Text), key
	case timeline.KindAudio:
		entry.tile, entry.tileKey = nil, ""
	}
	return nil
}

func cloneNode(node *compositor.Node) *compositor.Node {
	clone := *node
	if node.Text != nil {
		text := *node.Text
		clone.Text = &text
	}
	return &clone
}

// rasterizeText draws the styled string at the base face size; geometry
// scaling brings it to the requested font size.
func rasterizeText(style *timeline.TextStyle) *image.RGBA {
	face := basicfont.Face7x13
	text := style.Text
	width := font.MeasureString(face, text).Ceil()
	if width <= 0 {
		width = 1
	}
	tile := image.NewRGBA(image.Rect(0, 0, width, baseFaceHeight))
	drawer := &font.Drawer{
		Dst:  tile,
		Src:  image.NewUniform(parseHexColor(style.FillColor, color.RGBA{0xff, 0xff, 0xff, 0xff})),
		Face: face,
		Dot:  fixed.P(0, face.Metrics().Ascent.Ceil()),
	}
	drawer.DrawString(text)
	return tile
}

// parseHexColor reads "#rrggbb", falling back when the string is malformed.
func parseHexColor(s string, fallback color.RGBA) color.RGBA {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return fallback
	}
	var r, g, b uint8
	if _, err := fmt.Sscanf(s, "%02x%02x%02x", &r, &g, &b); err != nil {
		return fallback
	}
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}

func fill(img *image.RGBA, c color.RGBA) {
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
	}
}

// drawTile composites src over dst through the geometry transform: scale
// and rotation about the pivot, then translation. Destination pixels map
// back into the source with the inverse transform, nearest neighbor.
func drawTile(dst *image.RGBA, src *image.RGBA, g timeline.Geometry) {
	if g.ScaleX == 0 || g.ScaleY == 0 {
		return
	}
	srcW := float64(src.Bounds().Dx())
	srcH := float64(src.Bounds().Dy())
	theta := g.Rotation * math.Pi / 180
	sin, cos := math.Sin(theta), math.Cos(theta)

	// Forward-map the corners to find the destination bounding box.
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, corner := range [4][2]float64{{0, 0}, {srcW, 0}, {0, srcH}, {srcW, srcH}} {
		dx := (corner[0] - g.PivotX) * g.ScaleX
		dy := (corner[1] - g.PivotY) * g.ScaleY
		x := g.X + g.PivotX + dx*cos - dy*sin
		y := g.Y + g.PivotY + dx*sin + dy*cos
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}
	x0 := clampInt(int(math.Floor(minX)), 0, dst.Bounds().Dx())
	x1 := clampInt(int(math.Ceil(maxX))+1, 0, dst.Bounds().Dx())
	y0 := clampInt(int(math.Floor(minY)), 0, dst.Bounds().Dy())
	y1 := clampInt(int(math.Ceil(maxY))+1, 0, dst.Bounds().Dy())

	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			// Inverse transform back into source coordinates.
			dx := float64(x) - g.X - g.PivotX
			dy := float64(y) - g.Y - g.PivotY
			rx := dx*cos + dy*sin
			ry := -dx*sin + dy*cos
			sx := rx/g.ScaleX + g.PivotX
			sy := ry/g.ScaleY + g.PivotY
			if sx < 0 || sy < 0 || sx >= srcW || sy >= srcH {
				continue
			}
			blendPixel(dst, x, y, src, int(sx), int(sy))
		}
	}
}

func blendPixel(dst *image.RGBA, dx, dy int, src *image.RGBA, sx, sy int) {
	si := src.PixOffset(sx, sy)
	sa := uint32(src.Pix[si+3])
	if sa == 0 {
		return
	}
	di := dst.PixOffset(dx, dy)
	if sa == 0xff {
		copy(dst.Pix[di:di+4], src.Pix[si:si+4])
		return
	}
	inv := 0xff - sa
	for c := 0; c < 3; c++ {
		dst.Pix[di+c] = uint8((uint32(src.Pix[si+c])*sa + uint32(dst.Pix[di+c])*inv) / 0xff)
	}
	da := uint32(dst.Pix[di+3])
	dst.Pix[di+3] = uint8(sa + da*inv/0xff)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
