package encoder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"cutroom/internal/compositor"
	"cutroom/internal/logging"
	"cutroom/internal/preset"
	"cutroom/internal/services"
)

// Options configures an FFmpeg encode session.
type Options struct {
	// Binary is the ffmpeg executable. Defaults to "ffmpeg".
	Binary string
	// Quality selects output dimensions, bitrate, and frame rate.
	Quality preset.Quality
	// WorkDir holds the intermediate files for this session.
	WorkDir string
	// Runner executes the commands. Defaults to NewExecRunner.
	Runner Runner
	Logger *slog.Logger
}

// FFmpeg implements Encoder by shelling out to ffmpeg. One instance owns
// one encode session and must not be reused after Flush.
type FFmpeg struct {
	binary  string
	quality preset.Quality
	workDir string
	runner  Runner
	logger  *slog.Logger

	mu        sync.Mutex
	stdin     io.WriteCloser
	wait      func() error
	videoPath string
	width     int
	height    int
	frames    int64
	flushed   bool
}

// NewFFmpeg constructs an FFmpeg encoder.
func NewFFmpeg(opts Options) *FFmpeg {
	binary := strings.TrimSpace(opts.Binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	runner := opts.Runner
	if runner == nil {
		runner = NewExecRunner()
	}
	return &FFmpeg{
		binary:  binary,
		quality: opts.Quality,
		workDir: opts.WorkDir,
		runner:  runner,
		logger:  logging.WithComponent(opts.Logger, "encoder"),
	}
}

// SubmitFrame streams one RGBA frame into the encode. The session starts
// on the first frame and locks in its dimensions.
func (f *FFmpeg) SubmitFrame(ctx context.Context, frame compositor.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.flushed {
		return services.Wrap(services.ErrValidation, "encoder", "submit-frame", "encode session already flushed", nil)
	}
	if frame.Width <= 0 || frame.Height <= 0 {
		return services.Wrap(services.ErrValidation, "encoder", "submit-frame",
			fmt.Sprintf("invalid frame dimensions %dx%d", frame.Width, frame.Height), nil)
	}
	want := frame.Width * frame.Height * 4
	if len(frame.Data) != want {
		return services.Wrap(services.ErrValidation, "encoder", "submit-frame",
			fmt.Sprintf("frame payload is %d bytes, expected %d for %dx%d rgba", len(frame.Data), want, frame.Width, frame.Height), nil)
	}
	if f.stdin == nil {
		if err := f.startLocked(ctx, frame.Width, frame.Height); err != nil {
			return err
		}
	} else if frame.Width != f.width || frame.Height != f.height {
		return services.Wrap(services.ErrValidation, "encoder", "submit-frame",
			fmt.Sprintf("frame dimensions %dx%d differ from session %dx%d", frame.Width, frame.Height, f.width, f.height), nil)
	}
	if _, err := f.stdin.Write(frame.Data); err != nil {
		return services.Wrap(services.ErrExternalTool, "encoder", "submit-frame", "write frame to ffmpeg", err)
	}
	f.frames++
	return nil
}

func (f *FFmpeg) startLocked(ctx context.Context, width, height int) error {
	f.videoPath = filepath.Join(f.workDir, "video.mp4")
	args := encodeArgs(width, height, f.quality, f.videoPath)
	f.logger.Debug("starting encode session",
		logging.String("binary", f.binary),
		logging.String("output", f.videoPath),
		logging.String(logging.FieldPreset, f.quality.Name),
	)
	stdin, wait, err := f.runner.StartStream(ctx, f.binary, args...)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "encoder", "start-encode", "launch ffmpeg", err)
	}
	f.stdin = stdin
	f.wait = wait
	f.width = width
	f.height = height
	return nil
}

// Flush closes the frame stream and waits for ffmpeg to finalize the
// video-only intermediate.
func (f *FFmpeg) Flush(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.flushed {
		return "", services.Wrap(services.ErrValidation, "encoder", "flush", "encode session already flushed", nil)
	}
	if f.stdin == nil {
		return "", services.Wrap(services.ErrValidation, "encoder", "flush", "no frames submitted", nil)
	}
	f.flushed = true
	if err := f.stdin.Close(); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "encoder", "flush", "close ffmpeg stdin", err)
	}
	if err := f.wait(); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "encoder", "flush", "finalize encode", err)
	}
	f.logger.Debug("encode session flushed",
		logging.Int64("frames", f.frames),
		logging.String("output", f.videoPath),
	)
	return f.videoPath, nil
}

// Abort closes the frame stream and reaps the ffmpeg child without
// keeping its output. Errors from the dying process are expected and only
// logged; the session is unusable afterwards.
func (f *FFmpeg) Abort() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.flushed || f.stdin == nil {
		return
	}
	f.flushed = true
	if err := f.stdin.Close(); err != nil {
		f.logger.Debug("close ffmpeg stdin on abort", logging.Error(err))
	}
	if err := f.wait(); err != nil {
		f.logger.Debug("ffmpeg exited after abort", logging.Error(err))
	}
	f.logger.Debug("encode session aborted",
		logging.Int64("frames", f.frames),
		logging.String("output", f.videoPath),
	)
}

// ExtractAudio demuxes the trimmed audio of source into dest as 48kHz
// stereo PCM, ready for mixing.
func (f *FFmpeg) ExtractAudio(ctx context.Context, source string, trimStartMs, trimEndMs int64, dest string) error {
	if trimEndMs <= trimStartMs {
		return services.Wrap(services.ErrValidation, "encoder", "extract-audio",
			fmt.Sprintf("trim window [%d,%d) is empty", trimStartMs, trimEndMs), nil)
	}
	output, err := f.runner.Run(ctx, f.binary, extractArgs(source, trimStartMs, trimEndMs, dest)...)
	if err != nil {
		if indicatesNoAudio(string(output)) || indicatesNoAudio(err.Error()) {
			return fmt.Errorf("extract %s: %w", source, ErrNoAudio)
		}
		return services.Wrap(services.ErrExternalTool, "encoder", "extract-audio", "ffmpeg audio extract", err)
	}
	return nil
}

// MixAudio delays each stream to its timeline position, applies its gain,
// and mixes everything into a single PCM track.
func (f *FFmpeg) MixAudio(ctx context.Context, inputs []DelayedStream, dest string) error {
	if len(inputs) == 0 {
		return services.Wrap(services.ErrValidation, "encoder", "mix-audio", "no audio streams to mix", nil)
	}
	if _, err := f.runner.Run(ctx, f.binary, mixArgs(inputs, dest)...); err != nil {
		return services.Wrap(services.ErrExternalTool, "encoder", "mix-audio", "ffmpeg audio mix", err)
	}
	return nil
}

// Mux combines the video intermediate and the mixed audio into dest. With
// no audio the video stream is copied into a silent container.
func (f *FFmpeg) Mux(ctx context.Context, videoPath, audioPath, dest string) error {
	if strings.TrimSpace(videoPath) == "" {
		return services.Wrap(services.ErrValidation, "encoder", "mux", "missing video intermediate", nil)
	}
	if _, err := f.runner.Run(ctx, f.binary, muxArgs(videoPath, audioPath, dest)...); err != nil {
		return services.Wrap(services.ErrExternalTool, "encoder", "mux", "ffmpeg mux", err)
	}
	return nil
}

func encodeArgs(width, height int, quality preset.Quality, dest string) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", width, height),
		"-framerate", fmt.Sprintf("%d", quality.FPS),
		"-i", "-",
		"-vf", fmt.Sprintf("scale=%d:%d", quality.Width, quality.Height),
		"-c:v", "libx264",
		"-preset", "medium",
		"-pix_fmt", "yuv420p",
		"-b:v", fmt.Sprintf("%dk", quality.BitrateKbps),
		"-movflags", "+faststart",
		dest,
	}
}

func extractArgs(source string, trimStartMs, trimEndMs int64, dest string) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-ss", msToSeconds(trimStartMs),
		"-t", msToSeconds(trimEndMs - trimStartMs),
		"-i", source,
		"-vn", "-sn", "-dn",
		"-map", "0:a:0",
		"-ac", "2",
		"-ar", "48000",
		"-c:a", "pcm_s16le",
		dest,
	}
}

func mixArgs(inputs []DelayedStream, dest string) []string {
	args := []string{"-y", "-hide_banner", "-loglevel", "error"}
	for _, input := range inputs {
		args = append(args, "-i", input.Path)
	}
	var filter strings.Builder
	labels := make([]string, 0, len(inputs))
	for i, input := range inputs {
		delay := input.DelayMs
		if delay < 0 {
			delay = 0
		}
		volume := input.Volume
		if volume <= 0 {
			volume = 1
		}
		label := fmt.Sprintf("a%d", i)
		fmt.Fprintf(&filter, "[%d:a]adelay=%d|%d,volume=%.2f[%s];", i, delay, delay, volume, label)
		labels = append(labels, "["+label+"]")
	}
	fmt.Fprintf(&filter, "%samix=inputs=%d:normalize=0[mix]", strings.Join(labels, ""), len(inputs))
	return append(args,
		"-filter_complex", filter.String(),
		"-map", "[mix]",
		"-ac", "2",
		"-ar", "48000",
		"-c:a", "pcm_s16le",
		dest,
	)
}

func muxArgs(videoPath, audioPath, dest string) []string {
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", videoPath,
	}
	if strings.TrimSpace(audioPath) == "" {
		return append(args, "-c", "copy", "-an", dest)
	}
	return append(args,
		"-i", audioPath,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "192k",
		"-shortest",
		dest,
	)
}

func msToSeconds(ms int64) string {
	return fmt.Sprintf("%.3f", float64(ms)/1000.0)
}

func indicatesNoAudio(output string) bool {
	lowered := strings.ToLower(output)
	return strings.Contains(lowered, "matches no streams") ||
		strings.Contains(lowered, "does not contain any stream")
}
