package placement

import (
	"errors"
	"sort"

	"cutroom/internal/timeline"
)

// ErrNoRoom signals that the requested drop cannot fit on its track.
var ErrNoRoom = errors.New("placement: no room on track")

// MinDurationMs is the smallest duration any trim may leave behind.
const MinDurationMs = 100

// Placement is the engine's answer to a drop request. When AdjustedDuration
// is non-zero the candidate must shrink to it; when RequiresPush is
// non-empty the drop only fits if the listed effects (the next neighbor and
// everything downstream on the track) shift right by PushDelta first.
type Placement struct {
	Position         int64
	Track            int
	AdjustedDuration int64
	RequiresPush     []string
	PushDelta        int64
}

// Propose resolves a drop of effect at (position, track) against the
// existing effects. The engine is magnetic: landing between two neighbors
// pulls the candidate flush against the end of the preceding effect.
func Propose(effect *timeline.Effect, position int64, track int, existing []*timeline.Effect) (Placement, error) {
	if position < 0 {
		position = 0
	}
	result := Placement{Position: position, Track: track}

	before, after := neighbors(effect.ID, position, track, existing)

	switch {
	case before == nil && after == nil:
		return result, nil

	case after == nil:
		// Target inside the preceding effect snaps flush against its end.
		if position < before.End() {
			result.Position = before.End()
		}
		return result, nil

	case before == nil:
		if position+effect.Duration > after.StartAt {
			adjusted := after.StartAt - position
			if adjusted <= 0 {
				return Placement{}, ErrNoRoom
			}
			result.AdjustedDuration = adjusted
		}
		return result, nil

	default:
		gap := after.StartAt - before.End()
		switch {
		case gap >= effect.Duration:
			result.Position = before.End()
		case gap > 0:
			result.Position = before.End()
			result.AdjustedDuration = gap
		default:
			// No gap at all. Shrinking is impossible; report the push the
			// caller would have to request explicitly.
			result.Position = before.End()
			result.PushDelta = effect.Duration
			result.RequiresPush = downstreamIDs(existing, track, after.StartAt)
		}
		return result, nil
	}
}

// PushForward shifts every effect on the track starting at or after position
// right by delta, preserving the gaps between them. It returns shifted
// clones; the originals are untouched.
func PushForward(existing []*timeline.Effect, track int, position, delta int64) []*timeline.Effect {
	if delta <= 0 {
		return nil
	}
	var shifted []*timeline.Effect
	for _, effect := range timeline.OnTrack(existing, track) {
		if effect.StartAt < position {
			continue
		}
		cp := effect.Clone()
		cp.StartAt += delta
		shifted = append(shifted, cp)
	}
	return shifted
}

// FindOptimalNewEffectPlacement returns the position and track for an
// auto-placed effect: the first completely empty track at position 0, else
// the track whose last effect ends earliest (lowest index wins ties), placed
// immediately after that effect.
func FindOptimalNewEffectPlacement(existing []*timeline.Effect, trackCount int) (int64, int) {
	if trackCount < 1 {
		trackCount = 1
	}
	bestTrack := 0
	bestEnd := int64(-1)
	for track := 0; track < trackCount; track++ {
		onTrack := timeline.OnTrack(existing, track)
		if len(onTrack) == 0 {
			return 0, track
		}
		end := onTrack[len(onTrack)-1].End()
		if bestEnd < 0 || end < bestEnd {
			bestEnd = end
			bestTrack = track
		}
	}
	return bestEnd, bestTrack
}

// DetectCollision reports whether the effect's half-open interval intersects
// any other effect on the same track. Touching endpoints do not collide.
func DetectCollision(effect *timeline.Effect, others []*timeline.Effect) bool {
	for _, other := range others {
		if other.ID == effect.ID {
			continue
		}
		if effect.Overlaps(other) {
			return true
		}
	}
	return false
}

// SnapPosition returns the effect boundary point (0, or any effect's start
// or end on any track) closest to position within thresholdMs, else the
// unmodified position. Ties resolve to the earlier boundary.
func SnapPosition(position int64, allEffects []*timeline.Effect, thresholdMs int64) int64 {
	if thresholdMs <= 0 {
		return position
	}
	boundaries := make([]int64, 0, len(allEffects)*2+1)
	boundaries = append(boundaries, 0)
	for _, effect := range allEffects {
		boundaries = append(boundaries, effect.StartAt, effect.End())
	}
	sort.Slice(boundaries, func(i, j int) bool { return boundaries[i] < boundaries[j] })

	best := position
	bestDist := thresholdMs + 1
	for _, boundary := range boundaries {
		dist := boundary - position
		if dist < 0 {
			dist = -dist
		}
		if dist < bestDist {
			bestDist = dist
			best = boundary
		}
	}
	if bestDist > thresholdMs {
		return position
	}
	return best
}

// neighbors finds the nearest effects flanking position on the track. The
// preceding neighbor is the one with the greatest start strictly before the
// position; the following neighbor is the first starting at or after it.
// The candidate itself is excluded so re-proposing an existing effect works.
func neighbors(selfID string, position int64, track int, existing []*timeline.Effect) (before, after *timeline.Effect) {
	for _, effect := range timeline.OnTrack(existing, track) {
		if effect.ID == selfID {
			continue
		}
		if effect.StartAt < position {
			before = effect
			continue
		}
		after = effect
		break
	}
	return before, after
}

func downstreamIDs(existing []*timeline.Effect, track int, from int64) []string {
	var ids []string
	for _, effect := range timeline.OnTrack(existing, track) {
		if effect.StartAt >= from {
			ids = append(ids, effect.ID)
		}
	}
	return ids
}
