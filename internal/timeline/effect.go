package timeline

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Kind discriminates the effect variants placed on the timeline.
type Kind string

const (
	KindVideo Kind = "video"
	KindImage Kind = "image"
	KindAudio Kind = "audio"
	KindText  Kind = "text"
)

var allKinds = []Kind{KindVideo, KindImage, KindAudio, KindText}

// ParseKind converts a string into a known Kind.
func ParseKind(value string) (Kind, bool) {
	for _, kind := range allKinds {
		if string(kind) == value {
			return kind, true
		}
	}
	return "", false
}

// Geometry positions a visual effect on the render surface.
type Geometry struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	ScaleX   float64 `json:"scale_x"`
	ScaleY   float64 `json:"scale_y"`
	Rotation float64 `json:"rotation"`
	PivotX   float64 `json:"pivot_x"`
	PivotY   float64 `json:"pivot_y"`
}

// DefaultGeometry returns an identity transform at the surface origin.
func DefaultGeometry() Geometry {
	return Geometry{ScaleX: 1, ScaleY: 1}
}

// AudioProps carries the audio mix settings for audio and video effects.
type AudioProps struct {
	Volume float64 `json:"volume"`
	Muted  bool    `json:"muted"`
}

// TextStyle is the full style block for text effects.
type TextStyle struct {
	Text          string  `json:"text"`
	FontFamily    string  `json:"font_family"`
	FontSize      float64 `json:"font_size"`
	FillColor     string  `json:"fill_color"`
	StrokeColor   string  `json:"stroke_color"`
	StrokeWidth   float64 `json:"stroke_width"`
	ShadowColor   string  `json:"shadow_color"`
	ShadowBlur    float64 `json:"shadow_blur"`
	ShadowOffsetX float64 `json:"shadow_offset_x"`
	ShadowOffsetY float64 `json:"shadow_offset_y"`
	WrapWidth     float64 `json:"wrap_width"`
}

// Effect is a time-bounded item placed on a track. Exactly one of the
// kind-specific property blocks is meaningful, selected by Kind; every
// consumer switches exhaustively on Kind rather than sniffing fields.
//
// All times are integer milliseconds. StartAt positions the effect on the
// global timeline; TrimStart/TrimEnd select the slice of the raw source
// media the effect displays, and Duration always equals TrimEnd-TrimStart.
type Effect struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Kind      Kind   `json:"kind"`
	Track     int    `json:"track"`
	StartAt   int64  `json:"start_at_position"`
	Duration  int64  `json:"duration"`
	TrimStart int64  `json:"trim_start"`
	TrimEnd   int64  `json:"trim_end"`
	// RawDuration is the total duration of the underlying source media.
	// Image and text effects use their Duration as RawDuration.
	RawDuration int64 `json:"raw_duration"`
	// MediaRef is the opaque handle the media resolver understands.
	// Empty for text effects.
	MediaRef string `json:"media_reference,omitempty"`

	Geometry *Geometry   `json:"geometry,omitempty"`
	Audio    *AudioProps `json:"audio,omitempty"`
	Text     *TextStyle  `json:"text_style,omitempty"`

	// Seq is the insertion sequence used as the stable tie-break when
	// effects on different tracks sort for paint order.
	Seq int64 `json:"seq"`
}

// NewEffect constructs an effect with a fresh identity and the trim window
// covering the full raw duration.
func NewEffect(projectID string, kind Kind, mediaRef string, rawDurationMs int64) *Effect {
	e := &Effect{
		ID:          uuid.NewString(),
		ProjectID:   projectID,
		Kind:        kind,
		MediaRef:    mediaRef,
		Duration:    rawDurationMs,
		TrimStart:   0,
		TrimEnd:     rawDurationMs,
		RawDuration: rawDurationMs,
	}
	switch kind {
	case KindVideo:
		geo := DefaultGeometry()
		e.Geometry = &geo
		e.Audio = &AudioProps{Volume: 1}
	case KindImage:
		geo := DefaultGeometry()
		e.Geometry = &geo
	case KindAudio:
		e.Audio = &AudioProps{Volume: 1}
	case KindText:
		e.Text = &TextStyle{FontSize: 48, FillColor: "#ffffff"}
	}
	return e
}

// End returns the exclusive end of the effect's timeline interval.
func (e *Effect) End() int64 {
	return e.StartAt + e.Duration
}

// Overlaps reports whether two effects on the same track intersect in time.
// Intervals are half-open, so touching endpoints do not overlap.
func (e *Effect) Overlaps(other *Effect) bool {
	if e.Track != other.Track {
		return false
	}
	return e.StartAt < other.End() && other.StartAt < e.End()
}

// HasAudio reports whether the effect contributes to the export audio mix.
func (e *Effect) HasAudio() bool {
	switch e.Kind {
	case KindVideo:
		return e.Audio == nil || !e.Audio.Muted
	case KindAudio:
		return e.Audio == nil || !e.Audio.Muted
	case KindImage, KindText:
		return false
	default:
		return false
	}
}

// TimeBased reports whether the effect plays continuous source media and
// therefore needs intra-clip seeking when the timeline position jumps.
func (e *Effect) TimeBased() bool {
	switch e.Kind {
	case KindVideo, KindAudio:
		return true
	case KindImage, KindText:
		return false
	default:
		return false
	}
}

// Clone returns a deep copy of the effect.
func (e *Effect) Clone() *Effect {
	cp := *e
	if e.Geometry != nil {
		geo := *e.Geometry
		cp.Geometry = &geo
	}
	if e.Audio != nil {
		audio := *e.Audio
		cp.Audio = &audio
	}
	if e.Text != nil {
		text := *e.Text
		cp.Text = &text
	}
	return &cp
}

// Validate checks the structural invariants every persisted effect must hold.
func (e *Effect) Validate() error {
	if e.ID == "" {
		return errors.New("effect id is empty")
	}
	if _, ok := ParseKind(string(e.Kind)); !ok {
		return fmt.Errorf("unknown effect kind %q", e.Kind)
	}
	if e.Track < 0 {
		return fmt.Errorf("track %d is negative", e.Track)
	}
	if e.StartAt < 0 {
		return fmt.Errorf("start position %d is negative", e.StartAt)
	}
	if e.Duration <= 0 {
		return fmt.Errorf("duration %d is not positive", e.Duration)
	}
	if e.TrimStart < 0 || e.TrimStart >= e.TrimEnd {
		return fmt.Errorf("trim window [%d, %d) is invalid", e.TrimStart, e.TrimEnd)
	}
	if e.RawDuration > 0 && e.TrimEnd > e.RawDuration {
		return fmt.Errorf("trim end %d exceeds raw duration %d", e.TrimEnd, e.RawDuration)
	}
	if e.Duration != e.TrimEnd-e.TrimStart {
		return fmt.Errorf("duration %d does not match trim window %d", e.Duration, e.TrimEnd-e.TrimStart)
	}
	switch e.Kind {
	case KindVideo, KindImage, KindAudio:
		if e.MediaRef == "" {
			return fmt.Errorf("%s effect requires a media reference", e.Kind)
		}
	case KindText:
		if e.Text == nil {
			return errors.New("text effect requires a style block")
		}
	}
	return nil
}
