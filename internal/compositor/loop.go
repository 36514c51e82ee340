package compositor

import (
	"context"
	"time"

	"cutroom/internal/logging"
	"cutroom/internal/timeline"
)

// FrameScheduler is the scheduling contract for the playback loop: it runs
// at the host's display refresh cadence, the loop suspends between frames,
// and cancellation stops future scheduling without interrupting a frame
// already in flight.
type FrameScheduler interface {
	// Next blocks until the host grants the next frame and returns the
	// current wall-clock time, or false once ctx is cancelled.
	Next(ctx context.Context) (time.Time, bool)
}

type tickerScheduler struct {
	interval time.Duration
}

// NewTickerScheduler schedules frames on a fixed wall-clock interval.
func NewTickerScheduler(interval time.Duration) FrameScheduler {
	if interval <= 0 {
		interval = time.Second / 60
	}
	return &tickerScheduler{interval: interval}
}

func (s *tickerScheduler) Next(ctx context.Context) (time.Time, bool) {
	timer := time.NewTimer(s.interval)
	defer timer.Stop()
	select {
	case now := <-timer.C:
		return now, true
	case <-ctx.Done():
		return time.Time{}, false
	}
}

// Play enters the Playing state and starts the continuous-time loop. A
// no-op when already playing or closed.
func (c *Compositor) Play(ctx context.Context) {
	c.mu.Lock()
	if c.closed || c.state == StatePlaying {
		c.mu.Unlock()
		return
	}
	c.state = StatePlaying
	loopCtx, cancel := context.WithCancel(ctx)
	c.loopCancel = cancel
	done := make(chan struct{})
	c.loopDone = done
	c.mu.Unlock()

	go c.run(loopCtx, done)
}

// Pause suspends playback, keeping the timecode. A no-op unless playing.
func (c *Compositor) Pause() {
	c.stopLoop(StatePaused)
}

// Stop halts playback and resets the timecode to zero.
func (c *Compositor) Stop() {
	c.stopLoop(StateIdle)
	c.mu.Lock()
	c.timecode = 0
	c.mu.Unlock()
}

func (c *Compositor) stopLoop(next State) {
	c.mu.Lock()
	cancel := c.loopCancel
	done := c.loopDone
	c.loopCancel = nil
	c.loopDone = nil
	if c.state != StateIdle || next == StateIdle {
		c.state = next
	}
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// run is the continuous-time playback loop: each granted frame advances the
// timecode by the elapsed wall-clock time, recomposes only when the visible
// set actually changed, and requests a render of the current frame.
func (c *Compositor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	last, ok := c.sched.Next(ctx)
	if !ok {
		return
	}
	for {
		now, ok := c.sched.Next(ctx)
		if !ok {
			return
		}
		elapsed := now.Sub(last)
		last = now

		c.mu.Lock()
		if c.state != StatePlaying || c.closed {
			c.mu.Unlock()
			return
		}
		c.timecode += elapsed
		end := time.Duration(timeline.TimelineEnd(c.effects)) * time.Millisecond
		reachedEnd := end > 0 && c.timecode >= end
		if reachedEnd {
			c.timecode = end
		}
		c.fps.sample(elapsed)
		if c.visibleSetChangedLocked() {
			if _, _, err := c.composeLocked(ctx, false); err != nil {
				c.logger.Error("compose during playback failed", logging.Error(err))
			}
		}
		surface := c.surface
		c.mu.Unlock()

		if _, err := surface.Render(ctx); err != nil {
			c.logger.Debug("render request failed", logging.Error(err))
		}
		if reachedEnd {
			c.finishPlayback()
			return
		}
	}
}

// finishPlayback transitions to Paused from inside the loop goroutine.
// Routing through stopLoop here would block on the loop's own done channel.
func (c *Compositor) finishPlayback() {
	c.mu.Lock()
	cancel := c.loopCancel
	c.loopCancel = nil
	c.loopDone = nil
	if c.state == StatePlaying {
		c.state = StatePaused
	}
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// visibleSetChangedLocked reports whether the visible set at the current
// timecode differs from the materialized set, ignoring degraded effects.
func (c *Compositor) visibleSetChangedLocked() bool {
	timecodeMs := c.timecode.Milliseconds()
	count := 0
	for _, effect := range c.effects {
		if effect.StartAt > timecodeMs || timecodeMs >= effect.End() {
			continue
		}
		if _, bad := c.degraded[effect.ID]; bad {
			continue
		}
		if _, ok := c.materialized[effect.ID]; !ok {
			return true
		}
		count++
	}
	return count != len(c.materialized)
}

// fpsWindow measures the frame rate over a rolling window of at most 60
// samples. Diagnostics only; it never feeds back into timing.
type fpsWindow struct {
	samples []time.Duration
	next    int
	filled  bool
}

func (w *fpsWindow) sample(elapsed time.Duration) {
	if elapsed <= 0 {
		return
	}
	if w.samples == nil {
		w.samples = make([]time.Duration, 60)
	}
	w.samples[w.next] = elapsed
	w.next = (w.next + 1) % len(w.samples)
	if w.next == 0 {
		w.filled = true
	}
}

func (w *fpsWindow) rate() float64 {
	if w.samples == nil {
		return 0
	}
	n := w.next
	if w.filled {
		n = len(w.samples)
	}
	if n == 0 {
		return 0
	}
	var total time.Duration
	for i := 0; i < n; i++ {
		total += w.samples[i]
	}
	if total <= 0 {
		return 0
	}
	return float64(n) / total.Seconds()
}
