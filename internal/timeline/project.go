package timeline

import (
	"sort"
	"time"
)

// Settings carries the project-level render configuration.
type Settings struct {
	Width       int `json:"width"`
	Height      int `json:"height"`
	FPS         int `json:"fps"`
	BitrateKbps int `json:"bitrate_kbps"`
	TrackCount  int `json:"track_count"`
}

// Project owns a set of effects and the global render settings. UpdatedAt is
// the conflict-detection clock: every effect mutation bumps it, and writers
// carrying an older timestamp lose (last writer wins, with a signal).
type Project struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Settings  Settings  `json:"settings"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StaleWrite reports whether a mutation based on the given snapshot time
// would overwrite a newer revision of the project.
func (p *Project) StaleWrite(snapshot time.Time) bool {
	return p.UpdatedAt.After(snapshot)
}

// Touch advances the conflict clock.
func (p *Project) Touch() {
	p.UpdatedAt = time.Now().UTC()
}

// TimelineEnd returns the exclusive end of the last effect, which is the
// total duration of the composition in milliseconds.
func TimelineEnd(effects []*Effect) int64 {
	var end int64
	for _, effect := range effects {
		if effect.End() > end {
			end = effect.End()
		}
	}
	return end
}

// SortForPaint orders effects by track (higher tracks paint on top) with
// insertion order as the stable tie-break. The input slice is not modified.
func SortForPaint(effects []*Effect) []*Effect {
	sorted := make([]*Effect, len(effects))
	copy(sorted, effects)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Track != sorted[j].Track {
			return sorted[i].Track < sorted[j].Track
		}
		return sorted[i].Seq < sorted[j].Seq
	})
	return sorted
}

// OnTrack filters effects placed on the given track, ordered by start time.
func OnTrack(effects []*Effect, track int) []*Effect {
	var out []*Effect
	for _, effect := range effects {
		if effect.Track == track {
			out = append(out, effect)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartAt < out[j].StartAt
	})
	return out
}

// VisibleAt returns the effects whose interval contains the timecode.
func VisibleAt(effects []*Effect, timecode int64) []*Effect {
	var out []*Effect
	for _, effect := range effects {
		if effect.StartAt <= timecode && timecode < effect.End() {
			out = append(out, effect)
		}
	}
	return out
}
