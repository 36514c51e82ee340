package encoder

import (
	"context"
	"errors"

	"cutroom/internal/compositor"
)

// ErrNoAudio reports that a source file carries no audio stream. Callers
// treat it as a skip signal rather than a failure.
var ErrNoAudio = errors.New("source has no audio stream")

// DelayedStream is one extracted audio file positioned on the output
// timeline. DelayMs shifts the stream forward so it starts where its
// effect starts; Volume applies the effect's gain before mixing.
type DelayedStream struct {
	Path    string
	DelayMs int64
	Volume  float64
}

// Encoder is the export pipeline's view of the encode toolchain. A single
// instance owns one encode session: frames stream in via SubmitFrame and
// Flush finalizes the video-only intermediate. The audio passes are
// stateless and may run concurrently with each other.
type Encoder interface {
	// SubmitFrame appends one composited frame to the encode stream.
	// Every frame must share the dimensions of the first.
	SubmitFrame(ctx context.Context, frame compositor.Frame) error

	// Flush closes the frame stream, waits for the encode to finish, and
	// returns the path of the video-only intermediate.
	Flush(ctx context.Context) (string, error)

	// Abort tears down a live encode session without finalizing it.
	// Callers that exit before Flush must invoke it so the child process
	// is reaped. No-op when no session is live.
	Abort()

	// ExtractAudio demuxes the audio of source between trimStartMs and
	// trimEndMs into dest. Returns ErrNoAudio when source has no audio
	// stream.
	ExtractAudio(ctx context.Context, source string, trimStartMs, trimEndMs int64, dest string) error

	// MixAudio delays, scales, and mixes the given streams into dest.
	MixAudio(ctx context.Context, inputs []DelayedStream, dest string) error

	// Mux combines the video intermediate with the mixed audio track into
	// dest. An empty audioPath produces a silent output via stream copy.
	Mux(ctx context.Context, videoPath, audioPath, dest string) error
}
