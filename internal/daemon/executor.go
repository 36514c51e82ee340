package daemon

import (
	"context"
	"time"

	"cutroom/internal/compositor"
	"cutroom/internal/deps"
	"cutroom/internal/encoder"
	"cutroom/internal/export"
	"cutroom/internal/logging"
	"cutroom/internal/media"
	"cutroom/internal/preset"
	"cutroom/internal/queue"
	"cutroom/internal/render"
	"cutroom/internal/scheduler"
)

// executeJob runs one claimed export to completion. The scheduler calls it
// on its own goroutine; cancellation arrives through ctx.
func (d *Daemon) executeJob(ctx context.Context, job *queue.ExportJob) (*scheduler.Outcome, error) {
	project, err := d.store.GetProject(ctx, job.ProjectID)
	if err != nil {
		return nil, err
	}
	effects, err := d.store.ListEffects(ctx, job.ProjectID)
	if err != nil {
		return nil, err
	}
	quality, err := preset.Lookup(job.Preset)
	if err != nil {
		return nil, err
	}

	resolver := media.NewHTTPResolver(
		d.cfg.Media.ResolverBaseURL,
		d.cfg.Media.ResolverToken,
		time.Duration(d.cfg.Media.RequestTimeout)*time.Second,
	)
	runner := encoder.NewExecRunner()
	ffmpegBinary := deps.ResolveFFmpegPath(d.cfg.FFmpeg.FFmpegBinary)
	ffprobeBinary := deps.ResolveFFprobePath(d.cfg.FFmpeg.FFprobeBinary)
	surface := render.NewOffscreen(
		quality.Width,
		quality.Height,
		render.NewFFmpegSampler(ffmpegBinary, runner),
		d.logger,
	)

	comp := compositor.New(compositor.Options{
		Surface:         surface,
		Resolver:        resolver,
		Logger:          d.logger,
		MetadataTimeout: time.Duration(d.cfg.Media.MetadataTimeout) * time.Second,
	})
	comp.SetEffects(effects)
	defer func() {
		if err := comp.Close(); err != nil {
			d.logger.Warn("compositor teardown failed",
				logging.String(logging.FieldJobID, job.ID), logging.Error(err))
		}
	}()

	hbCtx, hbCancel := context.WithCancel(ctx)
	defer hbCancel()
	go d.heartbeat.StartLoop(hbCtx, job.ID)

	pipeline := export.New(export.Options{
		JobID:        job.ID,
		ProjectName:  project.Name,
		Effects:      effects,
		Quality:      quality,
		IncludeAudio: job.IncludeAudio,
		Resolver:     resolver,
		RenderFrame:  comp.RenderAt,
		ProbeSource: func(ctx context.Context, path string) (media.ProbeResult, error) {
			return media.Probe(ctx, ffprobeBinary, path)
		},
		NewEncoder: func(workDir string) encoder.Encoder {
			return encoder.NewFFmpeg(encoder.Options{
				Binary:  ffmpegBinary,
				Quality: quality,
				WorkDir: workDir,
				Runner:  runner,
				Logger:  d.logger,
			})
		},
		StagingDir:         d.cfg.Paths.StagingDir,
		OutputDir:          d.cfg.Paths.OutputDir,
		FrameYieldInterval: d.cfg.Export.FrameYieldInterval,
		OnProgress: func(phase export.Phase, percent float64) {
			if err := d.store.UpdateJobProgress(ctx, job.ID, string(phase), percent); err != nil {
				d.logger.Debug("progress persist failed",
					logging.String(logging.FieldJobID, job.ID), logging.Error(err))
			}
		},
		Logger: d.logger,
	})

	result, err := pipeline.Run(ctx)
	if err != nil {
		return nil, err
	}
	return &scheduler.Outcome{Path: result.Path, Filename: result.Filename}, nil
}
