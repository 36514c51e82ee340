package render

import (
	"context"
	"fmt"
	"image"

	"cutroom/internal/encoder"
	"cutroom/internal/services"
)

// Sampler extracts a single decoded picture from a media source.
type Sampler interface {
	// Sample decodes the picture at offsetMs, scaled to width x height RGBA.
	Sample(ctx context.Context, url string, offsetMs int64, width, height int) (*image.RGBA, error)
}

// FFmpegSampler decodes frames by running ffmpeg one-shot per sample.
type FFmpegSampler struct {
	Binary string
	Runner encoder.Runner
}

// NewFFmpegSampler constructs a sampler against the given ffmpeg binary.
func NewFFmpegSampler(binary string, runner encoder.Runner) *FFmpegSampler {
	if binary == "" {
		binary = "ffmpeg"
	}
	if runner == nil {
		runner = encoder.NewExecRunner()
	}
	return &FFmpegSampler{Binary: binary, Runner: runner}
}

// Sample implements Sampler.
func (s *FFmpegSampler) Sample(ctx context.Context, url string, offsetMs int64, width, height int) (*image.RGBA, error) {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-ss", fmt.Sprintf("%.3f", float64(offsetMs)/1000.0),
		"-i", url,
		"-frames:v", "1",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-vf", fmt.Sprintf("scale=%d:%d", width, height),
		"pipe:1",
	}
	data, err := s.Runner.Output(ctx, s.Binary, args...)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "render", "sample",
			fmt.Sprintf("decode frame at %dms from %s", offsetMs, url), err)
	}
	want := width * height * 4
	if len(data) != want {
		return nil, services.Wrap(services.ErrExternalTool, "render", "sample",
			fmt.Sprintf("decoder returned %d bytes, want %d", len(data), want), nil)
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	copy(img.Pix, data)
	return img, nil
}
