package render

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"testing"

	"cutroom/internal/compositor"
	"cutroom/internal/timeline"
)

type solidSampler struct {
	calls  int
	colors map[string]color.RGBA
}

func (s *solidSampler) Sample(_ context.Context, url string, _ int64, width, height int) (*image.RGBA, error) {
	s.calls++
	c, ok := s.colors[url]
	if !ok {
		c = color.RGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xff}
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	fill(img, c)
	return img, nil
}

func videoNode(id, url string, z int) *compositor.Node {
	return &compositor.Node{
		ID:       id,
		Kind:     timeline.KindVideo,
		URL:      url,
		Z:        z,
		Geometry: timeline.DefaultGeometry(),
	}
}

func pixelAt(t *testing.T, frame compositor.Frame, x, y int) color.RGBA {
	t.Helper()
	i := (y*frame.Width + x) * 4
	return color.RGBA{R: frame.Data[i], G: frame.Data[i+1], B: frame.Data[i+2], A: frame.Data[i+3]}
}

func TestRenderPaintsMediaNode(t *testing.T) {
	sampler := &solidSampler{colors: map[string]color.RGBA{"u": {R: 0xaa, A: 0xff}}}
	surface := NewOffscreen(16, 9, sampler, nil)
	ctx := context.Background()

	if err := surface.Add(ctx, videoNode("a", "u", 0)); err != nil {
		t.Fatalf("add: %v", err)
	}
	frame, err := surface.Render(ctx)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if frame.Width != 16 || frame.Height != 9 || len(frame.Data) != 16*9*4 {
		t.Fatalf("frame shape: %dx%d len=%d", frame.Width, frame.Height, len(frame.Data))
	}
	if got := pixelAt(t, frame, 8, 4); got != (color.RGBA{R: 0xaa, A: 0xff}) {
		t.Fatalf("center pixel = %v", got)
	}
}

func TestRenderOrdersByZ(t *testing.T) {
	sampler := &solidSampler{colors: map[string]color.RGBA{
		"lo": {R: 0xff, A: 0xff},
		"hi": {B: 0xff, A: 0xff},
	}}
	surface := NewOffscreen(8, 8, sampler, nil)
	ctx := context.Background()

	if err := surface.Add(ctx, videoNode("top", "hi", 2)); err != nil {
		t.Fatalf("add top: %v", err)
	}
	if err := surface.Add(ctx, videoNode("bottom", "lo", 1)); err != nil {
		t.Fatalf("add bottom: %v", err)
	}
	frame, err := surface.Render(ctx)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if got := pixelAt(t, frame, 4, 4); got != (color.RGBA{B: 0xff, A: 0xff}) {
		t.Fatalf("higher Z should win, got %v", got)
	}
}

func TestUpdateResamplesOnlyWhenOffsetMoves(t *testing.T) {
	sampler := &solidSampler{}
	surface := NewOffscreen(4, 4, sampler, nil)
	ctx := context.Background()

	node := videoNode("a", "u", 0)
	if err := surface.Add(ctx, node); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := surface.Update(ctx, node); err != nil {
		t.Fatalf("update same offset: %v", err)
	}
	if sampler.calls != 1 {
		t.Fatalf("unchanged offset must not resample, calls=%d", sampler.calls)
	}
	node.OffsetMs = 500
	if err := surface.Update(ctx, node); err != nil {
		t.Fatalf("update new offset: %v", err)
	}
	if sampler.calls != 2 {
		t.Fatalf("moved offset must resample, calls=%d", sampler.calls)
	}
}

func TestRemoveStopsPainting(t *testing.T) {
	sampler := &solidSampler{colors: map[string]color.RGBA{"u": {G: 0xff, A: 0xff}}}
	surface := NewOffscreen(4, 4, sampler, nil)
	ctx := context.Background()

	if err := surface.Add(ctx, videoNode("a", "u", 0)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := surface.Remove(ctx, "a"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	frame, err := surface.Render(ctx)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if got := pixelAt(t, frame, 2, 2); got != (color.RGBA{A: 0xff}) {
		t.Fatalf("removed node still painted: %v", got)
	}
}

func TestTextNodePaintsFillColor(t *testing.T) {
	surface := NewOffscreen(64, 32, &solidSampler{}, nil)
	ctx := context.Background()

	node := &compositor.Node{
		ID:       "title",
		Kind:     timeline.KindText,
		Geometry: timeline.DefaultGeometry(),
		Text:     &timeline.TextStyle{Text: "HI", FontSize: baseFaceHeight, FillColor: "#00ff00"},
	}
	if err := surface.Add(ctx, node); err != nil {
		t.Fatalf("add: %v", err)
	}
	frame, err := surface.Render(ctx)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	found := false
	for y := 0; y < frame.Height && !found; y++ {
		for x := 0; x < frame.Width; x++ {
			if pixelAt(t, frame, x, y) == (color.RGBA{G: 0xff, A: 0xff}) {
				found = true
				break
			}
		}
	}
	if !found {
		t.Fatal("no glyph pixel in the fill color")
	}
}

func TestGeometryTranslatesTile(t *testing.T) {
	sampler := &solidSampler{colors: map[string]color.RGBA{"u": {R: 0xff, A: 0xff}}}
	surface := NewOffscreen(8, 8, sampler, nil)
	ctx := context.Background()

	node := videoNode("a", "u", 0)
	node.Geometry.X = 4
	if err := surface.Add(ctx, node); err != nil {
		t.Fatalf("add: %v", err)
	}
	frame, err := surface.Render(ctx)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if got := pixelAt(t, frame, 1, 4); got != (color.RGBA{A: 0xff}) {
		t.Fatalf("left of the shifted tile should stay background, got %v", got)
	}
	if got := pixelAt(t, frame, 6, 4); got != (color.RGBA{R: 0xff, A: 0xff}) {
		t.Fatalf("shifted tile missing, got %v", got)
	}
}

func TestParseHexColor(t *testing.T) {
	fallback := color.RGBA{R: 1, G: 2, B: 3, A: 0xff}
	cases := []struct {
		in   string
		want color.RGBA
	}{
		{"#ffffff", color.RGBA{0xff, 0xff, 0xff, 0xff}},
		{"#102030", color.RGBA{0x10, 0x20, 0x30, 0xff}},
		{"ffffff", color.RGBA{0xff, 0xff, 0xff, 0xff}},
		{"", fallback},
		{"#fff", fallback},
		{"#zzzzzz", fallback},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%q", tc.in), func(t *testing.T) {
			if got := parseHexColor(tc.in, fallback); got != tc.want {
				t.Fatalf("parseHexColor(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}
