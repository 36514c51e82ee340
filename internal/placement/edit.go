package placement

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"cutroom/internal/timeline"
)

// ErrInvalidSplit signals a split timecode outside the effect's open interval.
var ErrInvalidSplit = errors.New("placement: split point outside effect")

// TrimStartBy moves the effect's start edge by deltaMs. Positive deltas trim
// material away, negative ones reveal it; StartAt, TrimStart, and Duration
// co-vary by the same amount. The delta is clamped so the result keeps at
// least MinDurationMs, TrimStart stays within [0, RawDuration], and the
// effect never starts before the timeline origin. Returns a modified clone.
func TrimStartBy(effect *timeline.Effect, deltaMs int64) *timeline.Effect {
	delta := deltaMs
	if max := effect.Duration - MinDurationMs; delta > max {
		delta = max
	}
	if min := -effect.TrimStart; delta < min {
		delta = min
	}
	if min := -effect.StartAt; delta < min {
		delta = min
	}
	cp := effect.Clone()
	cp.StartAt += delta
	cp.TrimStart += delta
	cp.Duration -= delta
	return cp
}

// TrimEndBy moves the effect's end edge by deltaMs. Positive deltas reveal
// material, negative ones trim it; only TrimEnd and Duration change. The
// delta is clamped to keep at least MinDurationMs and TrimEnd within
// RawDuration. Returns a modified clone.
func TrimEndBy(effect *timeline.Effect, deltaMs int64) *timeline.Effect {
	delta := deltaMs
	if effect.RawDuration > 0 {
		if max := effect.RawDuration - effect.TrimEnd; delta > max {
			delta = max
		}
	}
	if min := MinDurationMs - effect.Duration; delta < min {
		delta = min
	}
	cp := effect.Clone()
	cp.TrimEnd += delta
	cp.Duration += delta
	return cp
}

// Split cuts the effect at timeline position t. The left half keeps the
// original identity; the right half is a new effect starting at t whose trim
// window continues where the left half's ends. The split is rejected unless
// t lies strictly inside the effect's span.
func Split(effect *timeline.Effect, t int64) (left, right *timeline.Effect, err error) {
	if t <= effect.StartAt || t >= effect.End() {
		return nil, nil, fmt.Errorf("%w: t=%d span=[%d,%d)", ErrInvalidSplit, t, effect.StartAt, effect.End())
	}

	left = effect.Clone()
	left.Duration = t - effect.StartAt
	left.TrimEnd = left.TrimStart + left.Duration

	right = effect.Clone()
	right.ID = uuid.NewString()
	right.StartAt = t
	right.Duration = effect.End() - t
	right.TrimStart = left.TrimEnd
	right.TrimEnd = effect.TrimEnd

	return left, right, nil
}
