package api

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"cutroom/internal/queue"
	"cutroom/internal/services"
	"cutroom/internal/timeline"
)

type fakeController struct {
	enqueued  []string
	cancelled []string
}

func (c *fakeController) Enqueue(job *queue.ExportJob) {
	c.enqueued = append(c.enqueued, job.ID)
}

func (c *fakeController) Cancel(ctx context.Context, jobID string) error {
	c.cancelled = append(c.cancelled, jobID)
	return nil
}

func (c *fakeController) Snapshot() (int, int) { return 0, 0 }

func newTestService(t *testing.T) (*Service, *queue.Store, *fakeController) {
	t.Helper()
	store, err := queue.OpenPath(filepath.Join(t.TempDir(), "cutroom.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	controller := &fakeController{}
	return NewService(store, controller), store, controller
}

func createProject(t *testing.T, svc *Service) *ProjectResponse {
	t.Helper()
	resp, err := svc.CreateProject(context.Background(), CreateProjectRequest{
		UserID: "alice",
		Name:   "Holiday Reel",
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return resp
}

func TestCreateProjectValidatesAndDefaults(t *testing.T) {
	svc, _, _ := newTestService(t)

	if _, err := svc.CreateProject(context.Background(), CreateProjectRequest{Name: "x"}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("missing user_id should fail validation, got %v", err)
	}

	resp := createProject(t, svc)
	if resp.Project.Settings.Width != 1920 || resp.Project.Settings.FPS != 30 {
		t.Fatalf("defaults not applied: %+v", resp.Project.Settings)
	}
}

func TestSaveTimelineRejectsStaleRevision(t *testing.T) {
	svc, _, _ := newTestService(t)
	project := createProject(t, svc)

	effect := timeline.NewEffect(project.Project.ID, timeline.KindVideo, "clip", 1000)
	saved, err := svc.SaveTimeline(context.Background(), project.Project.ID, SaveTimelineRequest{
		BaseRevision: project.Project.UpdatedAt,
		Effects:      []*timeline.Effect{effect},
	})
	if err != nil {
		t.Fatalf("save timeline: %v", err)
	}

	// Writing again with the original revision must lose.
	_, err = svc.SaveTimeline(context.Background(), project.Project.ID, SaveTimelineRequest{
		BaseRevision: project.Project.UpdatedAt,
		Effects:      nil,
	})
	if !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	// The fresh revision wins.
	if _, err := svc.SaveTimeline(context.Background(), project.Project.ID, SaveTimelineRequest{
		BaseRevision: saved.Project.UpdatedAt,
		Effects:      []*timeline.Effect{effect},
	}); err != nil {
		t.Fatalf("save with fresh revision: %v", err)
	}
}

func TestSaveTimelineRejectsOverlap(t *testing.T) {
	svc, _, _ := newTestService(t)
	project := createProject(t, svc)

	a := timeline.NewEffect(project.Project.ID, timeline.KindVideo, "a", 2000)
	b := timeline.NewEffect(project.Project.ID, timeline.KindVideo, "b", 2000)
	b.StartAt = 1000

	_, err := svc.SaveTimeline(context.Background(), project.Project.ID, SaveTimelineRequest{
		BaseRevision: project.Project.UpdatedAt,
		Effects:      []*timeline.Effect{a, b},
	})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("overlapping effects must be rejected, got %v", err)
	}
}

func TestAddEffectAutoPlaces(t *testing.T) {
	svc, _, _ := newTestService(t)
	project := createProject(t, svc)

	first := timeline.NewEffect(project.Project.ID, timeline.KindVideo, "clip-1", 2000)
	resp, err := svc.AddEffect(context.Background(), project.Project.ID, AddEffectRequest{
		BaseRevision: project.Project.UpdatedAt,
		Effect:       first,
	})
	if err != nil {
		t.Fatalf("add first effect: %v", err)
	}
	if len(resp.Effects) != 1 || resp.Effects[0].StartAt != 0 || resp.Effects[0].Track != 0 {
		t.Fatalf("first effect should land at 0 on track 0: %+v", resp.Effects)
	}

	// The next auto-placed effect goes to the first empty track.
	second := timeline.NewEffect(project.Project.ID, timeline.KindImage, "logo", 1000)
	resp, err = svc.AddEffect(context.Background(), project.Project.ID, AddEffectRequest{
		BaseRevision: resp.Project.UpdatedAt,
		Effect:       second,
	})
	if err != nil {
		t.Fatalf("add second effect: %v", err)
	}
	if len(resp.Effects) != 2 {
		t.Fatalf("expected 2 effects, got %d", len(resp.Effects))
	}
	for _, effect := range resp.Effects {
		if effect.ID == second.ID && (effect.StartAt != 0 || effect.Track != 1) {
			t.Fatalf("second effect should auto-place on empty track 1: %+v", effect)
		}
	}
}

func TestAddEffectSnapsIntoGap(t *testing.T) {
	svc, _, _ := newTestService(t)
	project := createProject(t, svc)

	anchor := timeline.NewEffect(project.Project.ID, timeline.KindVideo, "clip-1", 2000)
	resp, err := svc.AddEffect(context.Background(), project.Project.ID, AddEffectRequest{
		BaseRevision: project.Project.UpdatedAt,
		Effect:       anchor,
	})
	if err != nil {
		t.Fatalf("add anchor: %v", err)
	}

	// Dropping just past the anchor's end snaps flush against it.
	position := int64(2150)
	candidate := timeline.NewEffect(project.Project.ID, timeline.KindVideo, "clip-2", 1000)
	resp, err = svc.AddEffect(context.Background(), project.Project.ID, AddEffectRequest{
		BaseRevision:    resp.Project.UpdatedAt,
		Effect:          candidate,
		Position:        &position,
		Track:           0,
		SnapThresholdMs: 200,
	})
	if err != nil {
		t.Fatalf("add candidate: %v", err)
	}
	for _, effect := range resp.Effects {
		if effect.ID == candidate.ID && effect.StartAt != 2000 {
			t.Fatalf("candidate should snap flush at 2000, got %d", effect.StartAt)
		}
	}
}

func TestAddEffectRequiresPushWhenNoGap(t *testing.T) {
	svc, _, _ := newTestService(t)
	project := createProject(t, svc)

	left := timeline.NewEffect(project.Project.ID, timeline.KindVideo, "left", 2000)
	resp, err := svc.AddEffect(context.Background(), project.Project.ID, AddEffectRequest{
		BaseRevision: project.Project.UpdatedAt,
		Effect:       left,
	})
	if err != nil {
		t.Fatalf("add left: %v", err)
	}
	right := timeline.NewEffect(project.Project.ID, timeline.KindVideo, "right", 2000)
	position := int64(2000)
	resp, err = svc.AddEffect(context.Background(), project.Project.ID, AddEffectRequest{
		BaseRevision: resp.Project.UpdatedAt,
		Effect:       right,
		Position:     &position,
		Track:        0,
	})
	if err != nil {
		t.Fatalf("add right: %v", err)
	}

	// No gap between left and right: dropping in the middle without Push
	// is rejected, with Push the downstream effect shifts.
	middle := timeline.NewEffect(project.Project.ID, timeline.KindVideo, "middle", 1000)
	midPos := int64(1500)
	_, err = svc.AddEffect(context.Background(), project.Project.ID, AddEffectRequest{
		BaseRevision: resp.Project.UpdatedAt,
		Effect:       middle,
		Position:     &midPos,
		Track:        0,
	})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("drop without push must be rejected, got %v", err)
	}

	resp, err = svc.AddEffect(context.Background(), project.Project.ID, AddEffectRequest{
		BaseRevision: resp.Project.UpdatedAt,
		Effect:       middle,
		Position:     &midPos,
		Track:        0,
		Push:         true,
	})
	if err != nil {
		t.Fatalf("add middle with push: %v", err)
	}
	starts := map[string]int64{}
	for _, effect := range resp.Effects {
		starts[effect.MediaRef] = effect.StartAt
	}
	if starts["middle"] != 2000 {
		t.Fatalf("middle should land flush at 2000, got %d", starts["middle"])
	}
	if starts["right"] != 3000 {
		t.Fatalf("right should shift to 3000, got %d", starts["right"])
	}
}

func TestAddEffectRejectsTrackBeyondProject(t *testing.T) {
	svc, _, _ := newTestService(t)
	project := createProject(t, svc)

	effect := timeline.NewEffect(project.Project.ID, timeline.KindVideo, "clip", 1000)
	position := int64(0)
	_, err := svc.AddEffect(context.Background(), project.Project.ID, AddEffectRequest{
		BaseRevision: project.Project.UpdatedAt,
		Effect:       effect,
		Position:     &position,
		Track:        7,
	})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("track beyond project must be rejected, got %v", err)
	}
}

func TestStartExportEnqueues(t *testing.T) {
	svc, _, controller := newTestService(t)
	project := createProject(t, svc)

	effect := timeline.NewEffect(project.Project.ID, timeline.KindVideo, "clip", 1000)
	if _, err := svc.SaveTimeline(context.Background(), project.Project.ID, SaveTimelineRequest{
		BaseRevision: project.Project.UpdatedAt,
		Effects:      []*timeline.Effect{effect},
	}); err != nil {
		t.Fatalf("save timeline: %v", err)
	}

	if _, err := svc.StartExport(context.Background(), project.Project.ID, ExportRequest{Preset: "8k"}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("unknown preset should fail, got %v", err)
	}

	resp, err := svc.StartExport(context.Background(), project.Project.ID, ExportRequest{Preset: "720p"})
	if err != nil {
		t.Fatalf("start export: %v", err)
	}
	if resp.Job.Status != string(queue.StatusPending) || resp.Job.Preset != "720p" {
		t.Fatalf("job view: %+v", resp.Job)
	}
	if len(controller.enqueued) != 1 || controller.enqueued[0] != resp.Job.ID {
		t.Fatalf("job not handed to scheduler: %v", controller.enqueued)
	}
	if resp.Job.UserID != "alice" {
		t.Fatalf("user should default to project owner, got %q", resp.Job.UserID)
	}
}

func TestStartExportEmptyTimelineRejected(t *testing.T) {
	svc, _, _ := newTestService(t)
	project := createProject(t, svc)
	if _, err := svc.StartExport(context.Background(), project.Project.ID, ExportRequest{}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("empty timeline should fail, got %v", err)
	}
}

func TestCancelJobRoutesThroughController(t *testing.T) {
	svc, store, controller := newTestService(t)
	project := createProject(t, svc)
	job, err := store.NewJob(context.Background(), project.Project.ID, "alice", "720p", false)
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if _, err := svc.CancelJob(context.Background(), job.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if len(controller.cancelled) != 1 || controller.cancelled[0] != job.ID {
		t.Fatalf("controller not invoked: %v", controller.cancelled)
	}
	if _, err := svc.CancelJob(context.Background(), "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
