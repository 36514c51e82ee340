package timeline

import "testing"

func TestNewEffectCoversRawDuration(t *testing.T) {
	effect := NewEffect("proj", KindVideo, "media-1", 4000)
	if effect.ID == "" {
		t.Fatalf("expected generated id")
	}
	if effect.Duration != 4000 || effect.TrimStart != 0 || effect.TrimEnd != 4000 {
		t.Fatalf("unexpected trim window: dur=%d trim=[%d,%d)", effect.Duration, effect.TrimStart, effect.TrimEnd)
	}
	if err := effect.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if effect.Geometry == nil || effect.Audio == nil {
		t.Fatalf("video effect missing kind props")
	}
}

func TestValidateRejectsBrokenTrimWindow(t *testing.T) {
	effect := NewEffect("proj", KindAudio, "media-2", 2000)
	effect.TrimEnd = effect.TrimStart
	if err := effect.Validate(); err == nil {
		t.Fatalf("expected error for empty trim window")
	}

	effect = NewEffect("proj", KindAudio, "media-2", 2000)
	effect.Duration = 1500 // no longer TrimEnd-TrimStart
	if err := effect.Validate(); err == nil {
		t.Fatalf("expected error for duration/trim mismatch")
	}
}

func TestValidateRequiresMediaRefExceptText(t *testing.T) {
	effect := NewEffect("proj", KindImage, "", 1000)
	if err := effect.Validate(); err == nil {
		t.Fatalf("expected error for missing media reference")
	}
	text := NewEffect("proj", KindText, "", 1000)
	if err := text.Validate(); err != nil {
		t.Fatalf("text effect should not need media: %v", err)
	}
}

func TestOverlapsHalfOpenIntervals(t *testing.T) {
	a := NewEffect("proj", KindVideo, "m", 1000)
	a.StartAt = 0
	b := NewEffect("proj", KindVideo, "m", 1000)
	b.StartAt = 1000

	if a.Overlaps(b) {
		t.Fatalf("touching endpoints must not overlap")
	}
	b.StartAt = 999
	if !a.Overlaps(b) {
		t.Fatalf("expected overlap at 999")
	}
	b.Track = 1
	if a.Overlaps(b) {
		t.Fatalf("different tracks must not overlap")
	}
}

func TestHasAudio(t *testing.T) {
	video := NewEffect("proj", KindVideo, "m", 1000)
	if !video.HasAudio() {
		t.Fatalf("unmuted video carries audio")
	}
	video.Audio.Muted = true
	if video.HasAudio() {
		t.Fatalf("muted video carries no audio")
	}
	if NewEffect("proj", KindImage, "m", 1000).HasAudio() {
		t.Fatalf("image carries no audio")
	}
	if NewEffect("proj", KindText, "", 1000).HasAudio() {
		t.Fatalf("text carries no audio")
	}
}

func TestSortForPaintStable(t *testing.T) {
	first := NewEffect("proj", KindVideo, "m", 1000)
	first.Track = 1
	first.Seq = 1
	second := NewEffect("proj", KindImage, "m", 1000)
	second.Track = 0
	second.Seq = 2
	third := NewEffect("proj", KindText, "", 1000)
	third.Track = 1
	third.Seq = 3

	sorted := SortForPaint([]*Effect{first, second, third})
	if sorted[0] != second || sorted[1] != first || sorted[2] != third {
		t.Fatalf("unexpected paint order: %v %v %v", sorted[0].Track, sorted[1].Track, sorted[2].Track)
	}
}

func TestTimelineEnd(t *testing.T) {
	a := NewEffect("proj", KindVideo, "m", 3000)
	a.StartAt = 1000
	b := NewEffect("proj", KindAudio, "m", 500)
	b.StartAt = 5000
	if end := TimelineEnd([]*Effect{a, b}); end != 5500 {
		t.Fatalf("expected 5500, got %d", end)
	}
	if end := TimelineEnd(nil); end != 0 {
		t.Fatalf("empty timeline ends at 0, got %d", end)
	}
}
