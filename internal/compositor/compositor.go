package compositor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"cutroom/internal/logging"
	"cutroom/internal/media"
	"cutroom/internal/timeline"
)

// State is the playback lifecycle of the compositor.
type State string

const (
	StateIdle    State = "idle"
	StatePlaying State = "playing"
	StatePaused  State = "paused"
)

// Options configures a Compositor.
type Options struct {
	Surface  Surface
	Resolver media.Resolver
	Logger   *slog.Logger
	// MetadataTimeout bounds how long a media resolve may take before the
	// load fails instead of stalling the compose diff.
	MetadataTimeout time.Duration
	// Scheduler drives the playback loop; nil selects a 60Hz ticker.
	Scheduler FrameScheduler
}

type materializedEffect struct {
	effect *timeline.Effect
	node   *Node
}

// Compositor holds the current timecode, the effect list, and the
// materialized subset visible at that timecode.
type Compositor struct {
	surface Surface
	logger  *slog.Logger
	sched   FrameScheduler

	cache *resolveCache
	video kindManager
	image kindManager
	audio kindManager
	text  kindManager

	mu           sync.Mutex
	state        State
	timecode     time.Duration
	effects      []*timeline.Effect
	materialized map[string]*materializedEffect
	// degraded holds effects whose load failed; they are skipped by the
	// visibility diff until a seek retries them.
	degraded map[string]struct{}
	closed   bool

	loopCancel context.CancelFunc
	loopDone   chan struct{}
	fps        fpsWindow
}

// New constructs an idle compositor.
func New(opts Options) *Compositor {
	cache := newResolveCache(opts.Resolver, opts.MetadataTimeout)
	sched := opts.Scheduler
	if sched == nil {
		sched = NewTickerScheduler(time.Second / 60)
	}
	return &Compositor{
		surface:      opts.Surface,
		logger:       logging.WithComponent(opts.Logger, "compositor"),
		sched:        sched,
		cache:        cache,
		video:        &videoManager{cache: cache},
		image:        &imageManager{cache: cache},
		audio:        &audioManager{cache: cache},
		text:         &textManager{},
		state:        StateIdle,
		materialized: make(map[string]*materializedEffect),
		degraded:     make(map[string]struct{}),
	}
}

// SetEffects replaces the effect list. Effects that are no longer present
// tear down on the next compose.
func (c *Compositor) SetEffects(effects []*timeline.Effect) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.effects = effects
}

// State returns the current playback state.
func (c *Compositor) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Timecode returns the current position in milliseconds.
func (c *Compositor) Timecode() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timecode.Milliseconds()
}

// FPS returns the rolling measured frame rate. Diagnostics only.
func (c *Compositor) FPS() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fps.rate()
}

// ComposeAt materializes the effect set visible at timecode, diffing against
// the previously materialized set: effects leaving scope are torn down,
// effects entering scope are loaded and attached, effects already visible
// are left untouched. Returns the number of added and removed effects.
func (c *Compositor) ComposeAt(ctx context.Context, timecodeMs int64) (added, removed int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timecode = time.Duration(timecodeMs) * time.Millisecond
	return c.composeLocked(ctx, false)
}

// composeLocked runs the visibility diff. strict mode (export) fails on any
// load error; interactive mode logs, marks the effect degraded, and keeps
// going so one broken clip does not black out the preview.
func (c *Compositor) composeLocked(ctx context.Context, strict bool) (added, removed int, err error) {
	if c.closed {
		return 0, 0, errors.New("compositor is closed")
	}
	timecodeMs := c.timecode.Milliseconds()
	visible := timeline.VisibleAt(c.effects, timecodeMs)
	painted := timeline.SortForPaint(visible)

	want := make(map[string]int, len(painted))
	for z, effect := range painted {
		want[effect.ID] = z
	}

	for id := range c.materialized {
		if _, ok := want[id]; ok {
			continue
		}
		if removeErr := c.surface.Remove(ctx, id); removeErr != nil {
			c.logger.Warn("surface remove failed",
				logging.String(logging.FieldEffectID, id),
				logging.Error(removeErr),
			)
		}
		delete(c.materialized, id)
		removed++
	}

	for _, effect := range painted {
		z := want[effect.ID]
		if mat, ok := c.materialized[effect.ID]; ok {
			if mat.node.Z != z {
				mat.node.Z = z
				if updateErr := c.surface.Update(ctx, mat.node); updateErr != nil {
					c.logger.Warn("surface update failed",
						logging.String(logging.FieldEffectID, effect.ID),
						logging.Error(updateErr),
					)
				}
			}
			continue
		}
		if _, bad := c.degraded[effect.ID]; bad && !strict {
			continue
		}

		manager, mgrErr := c.managerFor(effect.Kind)
		if mgrErr != nil {
			return added, removed, mgrErr
		}
		offset := timecodeMs - effect.StartAt + effect.TrimStart
		node, loadErr := manager.Materialize(ctx, effect, offset, z)
		if loadErr != nil {
			if strict {
				return added, removed, loadErr
			}
			c.degraded[effect.ID] = struct{}{}
			c.logger.Warn("effect load failed; continuing without it",
				logging.String(logging.FieldEffectID, effect.ID),
				logging.String("kind", string(effect.Kind)),
				logging.Error(loadErr),
			)
			continue
		}
		if addErr := c.surface.Add(ctx, node); addErr != nil {
			if strict {
				return added, removed, addErr
			}
			c.degraded[effect.ID] = struct{}{}
			c.logger.Warn("surface add failed; continuing without effect",
				logging.String(logging.FieldEffectID, effect.ID),
				logging.Error(addErr),
			)
			continue
		}
		c.materialized[effect.ID] = &materializedEffect{effect: effect, node: node}
		added++
	}

	return added, removed, nil
}

// Seek moves the timecode to t (clamped to the timeline span), composes the
// target frame before returning, and re-syncs every materialized time-based
// media to its correct intra-clip offset. Degraded effects get retried.
func (c *Compositor) Seek(ctx context.Context, t int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	end := timeline.TimelineEnd(c.effects)
	if t < 0 {
		t = 0
	}
	if t > end {
		t = end
	}
	c.timecode = time.Duration(t) * time.Millisecond
	for id := range c.degraded {
		delete(c.degraded, id)
	}
	c.cache.forgetFailures()

	if _, _, err := c.composeLocked(ctx, false); err != nil {
		return err
	}
	return c.resyncLocked(ctx, t)
}

func (c *Compositor) resyncLocked(ctx context.Context, t int64) error {
	for _, mat := range c.materialized {
		if !mat.effect.TimeBased() {
			continue
		}
		manager, err := c.managerFor(mat.effect.Kind)
		if err != nil {
			return err
		}
		offset := t - mat.effect.StartAt + mat.effect.TrimStart
		if manager.Resync(mat.node, offset) {
			if err := c.surface.Update(ctx, mat.node); err != nil {
				c.logger.Warn("resync update failed",
					logging.String(logging.FieldEffectID, mat.effect.ID),
					logging.Error(err),
				)
			}
		}
	}
	return nil
}

// RenderAt composes and renders the frame at timestamp t for export. Live
// playback, if any, is paused first so the compose is deterministic; the
// returned frame is byte-identical to what the preview would show at t.
func (c *Compositor) RenderAt(ctx context.Context, t int64) (Frame, error) {
	c.Pause()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.timecode = time.Duration(t) * time.Millisecond
	if _, _, err := c.composeLocked(ctx, true); err != nil {
		return Frame{}, err
	}
	if err := c.resyncLocked(ctx, t); err != nil {
		return Frame{}, err
	}
	frame, err := c.surface.Render(ctx)
	if err != nil {
		return Frame{}, err
	}
	frame.TimestampMs = float64(t)
	return frame, nil
}

// Close tears down every materialized resource exactly once. Safe to call
// repeatedly; UI lifecycles tend to fire teardown more than once.
func (c *Compositor) Close() error {
	c.Pause()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	ctx := context.Background()
	for id := range c.materialized {
		if err := c.surface.Remove(ctx, id); err != nil {
			c.logger.Debug("teardown remove failed",
				logging.String(logging.FieldEffectID, id),
				logging.Error(err),
			)
		}
		delete(c.materialized, id)
	}
	return nil
}
