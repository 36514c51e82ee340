package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"cutroom/internal/compositor"
	"cutroom/internal/encoder"
	"cutroom/internal/fileutil"
	"cutroom/internal/logging"
	"cutroom/internal/media"
	"cutroom/internal/preset"
	"cutroom/internal/services"
	"cutroom/internal/timeline"
)

// ErrCancelled reports that the job's cooperative cancel flag fired. The
// pipeline discards all partial state and leaves no artifact behind.
var ErrCancelled = errors.New("export cancelled")

// Phase is the pipeline's externally visible stage.
type Phase string

const (
	PhasePreparing Phase = "preparing"
	PhaseComposing Phase = "composing"
	PhaseFlushing  Phase = "flushing"
	PhaseComplete  Phase = "complete"
	PhaseError     Phase = "error"
	PhaseCancelled Phase = "cancelled"
)

// timeEpsilon guards the frame loop's float accumulation so a timestamp
// that lands within a nanosecond of the timeline end does not emit an
// extra frame.
const timeEpsilon = 1e-6

// RenderFunc produces the composited frame at a timeline position.
type RenderFunc func(ctx context.Context, timecodeMs int64) (compositor.Frame, error)

// ProbeFunc inspects a resolved source ahead of audio extraction.
type ProbeFunc func(ctx context.Context, path string) (media.ProbeResult, error)

// Options configures one export run.
type Options struct {
	JobID        string
	ProjectName  string
	Effects      []*timeline.Effect
	Quality      preset.Quality
	IncludeAudio bool

	Resolver    media.Resolver
	RenderFrame RenderFunc
	// ProbeSource, when set, is consulted before each audio extraction so
	// sources without an audio stream are skipped up front.
	ProbeSource ProbeFunc
	// NewEncoder builds the encode session for the job workspace.
	NewEncoder func(workDir string) encoder.Encoder

	StagingDir string
	OutputDir  string

	// FrameYieldInterval is how many frames to compose between scheduler
	// yields. Zero disables yielding.
	FrameYieldInterval int

	// OnProgress, when set, receives every phase and percent change.
	OnProgress func(phase Phase, percent float64)

	Logger *slog.Logger
}

// Result describes a finished export.
type Result struct {
	Path       string
	Filename   string
	DurationMs int64
	SizeBytes  int64
}

// Pipeline runs one export job to completion. Create with New, run once
// with Run; Cancel may be called from any goroutine.
type Pipeline struct {
	opts      Options
	logger    *slog.Logger
	cancelled atomic.Bool
	progress  atomic.Int64 // percent * 100, monotonic
	phase     atomic.Value // Phase
}

// New constructs a pipeline for one job.
func New(opts Options) *Pipeline {
	logger := logging.WithComponent(opts.Logger, "export").With(
		logging.String(logging.FieldJobID, opts.JobID),
	)
	p := &Pipeline{opts: opts, logger: logger}
	p.phase.Store(PhasePreparing)
	return p
}

// Cancel requests a cooperative stop. The frame loop observes the flag on
// its next iteration.
func (p *Pipeline) Cancel() {
	p.cancelled.Store(true)
}

// Phase returns the pipeline's current stage.
func (p *Pipeline) Phase() Phase {
	return p.phase.Load().(Phase)
}

// Progress returns the monotonic completion percentage.
func (p *Pipeline) Progress() float64 {
	return float64(p.progress.Load()) / 100
}

// Run executes the export. The returned Result points at the final
// artifact in the output directory; on any error the workspace and all
// partial outputs are removed.
func (p *Pipeline) Run(ctx context.Context) (result *Result, err error) {
	defer func() {
		switch {
		case err == nil:
			p.setPhase(PhaseComplete, 100)
		case errors.Is(err, ErrCancelled):
			p.setPhase(PhaseCancelled, p.Progress())
		default:
			p.setPhase(PhaseError, p.Progress())
		}
	}()

	if err := p.validate(); err != nil {
		return nil, err
	}

	endMs := timeline.TimelineEnd(p.opts.Effects)
	workspace := filepath.Join(p.opts.StagingDir, "export-"+p.opts.JobID)
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "export", "prepare", "create job workspace", err)
	}
	defer func() {
		if removeErr := os.RemoveAll(workspace); removeErr != nil {
			p.logger.Warn("failed to remove job workspace", logging.Error(removeErr), logging.String("workspace", workspace))
		}
	}()

	enc := p.opts.NewEncoder(workspace)
	// Any exit before Flush leaves a live ffmpeg child behind the open
	// stdin pipe; reap it before the workspace defer deletes its output.
	flushing := false
	defer func() {
		if !flushing {
			enc.Abort()
		}
	}()
	p.logger.Info("export starting",
		logging.String(logging.FieldPreset, p.opts.Quality.Name),
		logging.Int64("duration_ms", endMs),
		logging.Bool("include_audio", p.opts.IncludeAudio),
	)

	// Audio extraction runs alongside the frame loop; both must finish
	// before the flush.
	group, groupCtx := errgroup.WithContext(ctx)
	streams := make([]*encoder.DelayedStream, len(p.opts.Effects))
	if p.opts.IncludeAudio {
		p.startAudioExtraction(groupCtx, group, enc, workspace, streams)
	}

	if err := p.composeFrames(ctx, enc, endMs); err != nil {
		// Let in-flight extractions drain before the workspace goes away.
		_ = group.Wait()
		return nil, err
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	if err := p.checkCancelled(ctx); err != nil {
		return nil, err
	}

	p.setPhase(PhaseFlushing, p.Progress())
	flushing = true
	videoPath, err := enc.Flush(ctx)
	if err != nil {
		return nil, err
	}

	audioPath, err := p.mixAudio(ctx, enc, workspace, streams)
	if err != nil {
		return nil, err
	}
	if err := p.checkCancelled(ctx); err != nil {
		return nil, err
	}

	finalPath := filepath.Join(workspace, "final.mp4")
	if err := enc.Mux(ctx, videoPath, audioPath, finalPath); err != nil {
		return nil, err
	}

	filename := ArtifactFilename(p.opts.ProjectName, p.opts.Quality.Name)
	outPath := filepath.Join(p.opts.OutputDir, filename)
	if err := os.MkdirAll(p.opts.OutputDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "export", "finalize", "create output directory", err)
	}
	if err := fileutil.MoveFile(finalPath, outPath); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "export", "finalize", "move artifact to output directory", err)
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "export", "finalize", "stat artifact", err)
	}
	p.logger.Info("export complete",
		logging.String("output", outPath),
		logging.Int64("size_bytes", info.Size()),
	)
	return &Result{
		Path:       outPath,
		Filename:   filename,
		DurationMs: endMs,
		SizeBytes:  info.Size(),
	}, nil
}

func (p *Pipeline) validate() error {
	if len(p.opts.Effects) == 0 {
		return services.Wrap(services.ErrValidation, "export", "prepare", "timeline has no effects", nil)
	}
	if p.opts.RenderFrame == nil || p.opts.NewEncoder == nil {
		return services.Wrap(services.ErrConfiguration, "export", "prepare", "missing render or encoder collaborator", nil)
	}
	if p.opts.Quality.FPS <= 0 {
		return services.Wrap(services.ErrValidation, "export", "prepare",
			fmt.Sprintf("preset %q has invalid frame rate", p.opts.Quality.Name), nil)
	}
	return nil
}

// composeFrames walks the timeline at the preset's frame cadence, rendering
// and submitting each frame in order.
func (p *Pipeline) composeFrames(ctx context.Context, enc encoder.Encoder, endMs int64) error {
	p.setPhase(PhaseComposing, 0)
	interval := p.opts.Quality.FrameIntervalMs()
	end := float64(endMs)
	frames := 0
	for ts := 0.0; ts+timeEpsilon < end; ts += interval {
		if err := p.checkCancelled(ctx); err != nil {
			return err
		}
		frame, err := p.opts.RenderFrame(ctx, int64(ts))
		if err != nil {
			return fmt.Errorf("render frame at %dms: %w", int64(ts), err)
		}
		if err := enc.SubmitFrame(ctx, frame); err != nil {
			return err
		}
		frames++
		p.report(PhaseComposing, ts/end*100)
		if p.opts.FrameYieldInterval > 0 && frames%p.opts.FrameYieldInterval == 0 {
			runtime.Gosched()
		}
	}
	p.logger.Debug("frame loop finished", logging.Int("frames", frames))
	return nil
}

// startAudioExtraction queues one extraction per audible effect. Results
// land in streams at the effect's index so the mix preserves timeline
// order; effects without an audio stream leave a nil slot.
func (p *Pipeline) startAudioExtraction(ctx context.Context, group *errgroup.Group, enc encoder.Encoder, workspace string, streams []*encoder.DelayedStream) {
	for i, effect := range p.opts.Effects {
		if !effect.HasAudio() {
			continue
		}
		group.Go(func() error {
			url, err := p.opts.Resolver.Resolve(ctx, effect.MediaRef)
			if err != nil {
				return fmt.Errorf("resolve audio source for effect %s: %w", effect.ID, err)
			}
			if p.opts.ProbeSource != nil {
				inspected, probeErr := p.opts.ProbeSource(ctx, url)
				switch {
				case probeErr != nil:
					// Extraction still arbitrates; a flaky probe must not
					// fail the export.
					p.logger.Warn("source probe failed, extracting anyway",
						logging.String(logging.FieldEffectID, effect.ID), logging.Error(probeErr))
				case !inspected.HasAudioStream():
					p.logger.Debug("source carries no audio stream, skipping extraction",
						logging.String(logging.FieldEffectID, effect.ID))
					return nil
				}
			}
			dest := filepath.Join(workspace, fmt.Sprintf("audio-%d.wav", i))
			err = enc.ExtractAudio(ctx, url, effect.TrimStart, effect.TrimEnd, dest)
			if errors.Is(err, encoder.ErrNoAudio) {
				p.logger.Debug("effect has no audio stream, skipping",
					logging.String(logging.FieldEffectID, effect.ID))
				return nil
			}
			if err != nil {
				return err
			}
			volume := 1.0
			if effect.Audio != nil && effect.Audio.Volume > 0 {
				volume = effect.Audio.Volume
			}
			streams[i] = &encoder.DelayedStream{Path: dest, DelayMs: effect.StartAt, Volume: volume}
			return nil
		})
	}
}

// mixAudio compacts the surviving streams and mixes them. Returns an empty
// path when nothing is audible, which makes the mux video-only.
func (p *Pipeline) mixAudio(ctx context.Context, enc encoder.Encoder, workspace string, streams []*encoder.DelayedStream) (string, error) {
	inputs := make([]encoder.DelayedStream, 0, len(streams))
	for _, stream := range streams {
		if stream != nil {
			inputs = append(inputs, *stream)
		}
	}
	if len(inputs) == 0 {
		return "", nil
	}
	sort.SliceStable(inputs, func(i, j int) bool { return inputs[i].DelayMs < inputs[j].DelayMs })
	mixPath := filepath.Join(workspace, "mix.wav")
	if err := enc.MixAudio(ctx, inputs, mixPath); err != nil {
		return "", err
	}
	return mixPath, nil
}

func (p *Pipeline) checkCancelled(ctx context.Context) error {
	if p.cancelled.Load() {
		return ErrCancelled
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	return nil
}

func (p *Pipeline) setPhase(phase Phase, percent float64) {
	p.phase.Store(phase)
	p.report(phase, percent)
}

// report publishes progress, keeping the percentage monotonic.
func (p *Pipeline) report(phase Phase, percent float64) {
	scaled := int64(percent * 100)
	if scaled > 10000 {
		scaled = 10000
	}
	for {
		current := p.progress.Load()
		if scaled <= current {
			scaled = current
			break
		}
		if p.progress.CompareAndSwap(current, scaled) {
			break
		}
	}
	if p.opts.OnProgress != nil {
		p.opts.OnProgress(phase, float64(scaled)/100)
	}
}

// ArtifactFilename derives the output filename from the project name and
// preset, sanitized for the filesystem.
func ArtifactFilename(projectName, presetName string) string {
	base := sanitizeBaseName(projectName)
	if base == "" {
		base = "Export"
	}
	return fmt.Sprintf("%s-%s.mp4", base, presetName)
}

func sanitizeBaseName(name string) string {
	fields := strings.FieldsFunc(name, func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return false
		default:
			return true
		}
	})
	if len(fields) == 0 {
		return ""
	}
	caser := titleCaser()
	for i, field := range fields {
		fields[i] = caser.String(field)
	}
	return strings.Join(fields, "-")
}
