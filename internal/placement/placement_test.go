package placement

import (
	"errors"
	"testing"

	"cutroom/internal/timeline"
)

func makeEffect(t *testing.T, track int, startAt, duration int64) *timeline.Effect {
	t.Helper()
	effect := timeline.NewEffect("proj", timeline.KindVideo, "media", duration)
	effect.Track = track
	effect.StartAt = startAt
	if err := effect.Validate(); err != nil {
		t.Fatalf("fixture effect invalid: %v", err)
	}
	return effect
}

func TestProposeEmptyTrackPlacesExactly(t *testing.T) {
	candidate := makeEffect(t, 0, 0, 1000)
	got, err := Propose(candidate, 2500, 0, nil)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if got.Position != 2500 || got.Track != 0 || got.AdjustedDuration != 0 || len(got.RequiresPush) != 0 {
		t.Fatalf("unexpected placement: %+v", got)
	}
}

func TestProposeSnapsOutOfPrecedingEffect(t *testing.T) {
	existing := []*timeline.Effect{makeEffect(t, 0, 0, 2000)}
	candidate := makeEffect(t, 0, 0, 1000)

	got, err := Propose(candidate, 1500, 0, existing)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if got.Position != 2000 {
		t.Fatalf("expected snap to 2000, got %d", got.Position)
	}
}

func TestProposeShrinksAgainstFollowingEffect(t *testing.T) {
	existing := []*timeline.Effect{makeEffect(t, 0, 3000, 1000)}
	candidate := makeEffect(t, 0, 0, 2000)

	got, err := Propose(candidate, 1500, 0, existing)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if got.Position != 1500 || got.AdjustedDuration != 1500 {
		t.Fatalf("expected shrink to 1500 at 1500, got %+v", got)
	}
}

func TestProposeBetweenNeighbors(t *testing.T) {
	existing := []*timeline.Effect{
		makeEffect(t, 0, 0, 1000),
		makeEffect(t, 0, 4000, 1000),
	}

	// Gap (3000ms) fits the candidate: place flush after the first effect.
	candidate := makeEffect(t, 0, 0, 2000)
	got, err := Propose(candidate, 1800, 0, existing)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if got.Position != 1000 || got.AdjustedDuration != 0 {
		t.Fatalf("expected flush placement at 1000, got %+v", got)
	}

	// Candidate larger than the gap shrinks to the gap.
	wide := makeEffect(t, 0, 0, 5000)
	got, err = Propose(wide, 1800, 0, existing)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if got.Position != 1000 || got.AdjustedDuration != 3000 {
		t.Fatalf("expected shrink to 3000 at 1000, got %+v", got)
	}
}

func TestProposeZeroGapReportsPush(t *testing.T) {
	second := makeEffect(t, 0, 1000, 1000)
	third := makeEffect(t, 0, 2000, 500)
	existing := []*timeline.Effect{makeEffect(t, 0, 0, 1000), second, third}

	candidate := makeEffect(t, 0, 0, 700)
	got, err := Propose(candidate, 500, 0, existing)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if got.Position != 1000 {
		t.Fatalf("expected position 1000, got %d", got.Position)
	}
	if got.PushDelta != 700 {
		t.Fatalf("expected push delta 700, got %d", got.PushDelta)
	}
	if len(got.RequiresPush) != 2 || got.RequiresPush[0] != second.ID || got.RequiresPush[1] != third.ID {
		t.Fatalf("expected downstream effects to require push, got %v", got.RequiresPush)
	}
}

func TestProposeIdempotent(t *testing.T) {
	existing := []*timeline.Effect{
		makeEffect(t, 0, 0, 1000),
		makeEffect(t, 0, 4000, 1000),
	}
	candidate := makeEffect(t, 0, 0, 2000)

	first, err := Propose(candidate, 1800, 0, existing)
	if err != nil {
		t.Fatalf("first propose: %v", err)
	}
	second, err := Propose(candidate, first.Position, first.Track, existing)
	if err != nil {
		t.Fatalf("second propose: %v", err)
	}
	if first.Position != second.Position || first.Track != second.Track || first.AdjustedDuration != second.AdjustedDuration {
		t.Fatalf("propose oscillated: %+v then %+v", first, second)
	}
}

func TestProposeNoRoomRejected(t *testing.T) {
	// An effect starting exactly at the target with nothing before it
	// leaves zero width for the candidate.
	existing := []*timeline.Effect{makeEffect(t, 1, 500, 500)}
	candidate := makeEffect(t, 1, 0, 400)
	_, err := Propose(candidate, 500, 1, existing)
	if !errors.Is(err, ErrNoRoom) {
		t.Fatalf("expected ErrNoRoom, got %v", err)
	}
}

func TestProposeCollisionInvariantAfterApply(t *testing.T) {
	existing := []*timeline.Effect{
		makeEffect(t, 0, 0, 1000),
		makeEffect(t, 0, 2500, 1000),
	}
	candidate := makeEffect(t, 0, 0, 2000)
	got, err := Propose(candidate, 600, 0, existing)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if len(got.RequiresPush) != 0 {
		t.Fatalf("expected direct placement, got %+v", got)
	}

	applied := candidate.Clone()
	applied.StartAt = got.Position
	applied.Track = got.Track
	if got.AdjustedDuration > 0 {
		applied.Duration = got.AdjustedDuration
		applied.TrimEnd = applied.TrimStart + applied.Duration
	}
	if DetectCollision(applied, existing) {
		t.Fatalf("placement result collides: %+v", got)
	}
}

func TestPushForwardCascades(t *testing.T) {
	a := makeEffect(t, 0, 1000, 1000)
	b := makeEffect(t, 0, 2000, 500)
	c := makeEffect(t, 0, 3500, 500)
	other := makeEffect(t, 1, 1000, 500)

	shifted := PushForward([]*timeline.Effect{a, b, c, other}, 0, 1000, 700)
	if len(shifted) != 3 {
		t.Fatalf("expected 3 shifted effects, got %d", len(shifted))
	}
	if shifted[0].StartAt != 1700 || shifted[1].StartAt != 2700 || shifted[2].StartAt != 4200 {
		t.Fatalf("unexpected shifts: %d %d %d", shifted[0].StartAt, shifted[1].StartAt, shifted[2].StartAt)
	}
	// Originals untouched; other tracks untouched.
	if a.StartAt != 1000 {
		t.Fatalf("push mutated input")
	}
	for _, s := range shifted {
		if s.ID == other.ID {
			t.Fatalf("push crossed tracks")
		}
	}
}

func TestFindOptimalNewEffectPlacement(t *testing.T) {
	// Empty project: first track at origin.
	pos, track := FindOptimalNewEffectPlacement(nil, 3)
	if pos != 0 || track != 0 {
		t.Fatalf("expected (0, 0), got (%d, %d)", pos, track)
	}

	// Track 1 empty: use it.
	existing := []*timeline.Effect{makeEffect(t, 0, 0, 1000)}
	pos, track = FindOptimalNewEffectPlacement(existing, 3)
	if pos != 0 || track != 1 {
		t.Fatalf("expected (0, 1), got (%d, %d)", pos, track)
	}

	// All tracks busy: earliest-ending last effect wins, lowest index ties.
	existing = []*timeline.Effect{
		makeEffect(t, 0, 0, 3000),
		makeEffect(t, 1, 0, 1000),
		makeEffect(t, 2, 0, 1000),
	}
	pos, track = FindOptimalNewEffectPlacement(existing, 3)
	if pos != 1000 || track != 1 {
		t.Fatalf("expected (1000, 1), got (%d, %d)", pos, track)
	}
}

func TestDetectCollisionIgnoresSelf(t *testing.T) {
	effect := makeEffect(t, 0, 0, 1000)
	if DetectCollision(effect, []*timeline.Effect{effect}) {
		t.Fatalf("effect must not collide with itself")
	}
}

func TestSnapPosition(t *testing.T) {
	effects := []*timeline.Effect{
		makeEffect(t, 0, 1000, 500),
		makeEffect(t, 2, 4000, 1000),
	}
	// Boundaries: 0, 1000, 1500, 4000, 5000.
	if got := SnapPosition(1480, effects, 150); got != 1500 {
		t.Fatalf("expected snap to 1500, got %d", got)
	}
	if got := SnapPosition(60, effects, 150); got != 0 {
		t.Fatalf("expected snap to 0, got %d", got)
	}
	if got := SnapPosition(2700, effects, 150); got != 2700 {
		t.Fatalf("expected no snap, got %d", got)
	}
	// Boundaries on any track apply.
	if got := SnapPosition(3990, effects, 150); got != 4000 {
		t.Fatalf("expected cross-track snap to 4000, got %d", got)
	}
}
