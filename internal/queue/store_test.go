package queue

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"cutroom/internal/timeline"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenPath(filepath.Join(t.TempDir(), "cutroom.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestProject(t *testing.T, store *Store) *timeline.Project {
	t.Helper()
	project := &timeline.Project{
		ID:     "proj-" + t.Name(),
		UserID: "user-1",
		Name:   "Holiday Reel",
		Settings: timeline.Settings{
			Width: 1920, Height: 1080, FPS: 30, BitrateKbps: 6000, TrackCount: 3,
		},
	}
	if err := store.CreateProject(context.Background(), project); err != nil {
		t.Fatalf("create project: %v", err)
	}
	return project
}

func TestOpenPathIdempotentMigrations(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cutroom.db")
	store, err := OpenPath(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	store, err = OpenPath(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if err := store.Healthy(context.Background()); err != nil {
		t.Fatalf("healthy: %v", err)
	}
	_ = store.Close()
}

func TestProjectRoundTrip(t *testing.T) {
	store := newTestStore(t)
	project := newTestProject(t, store)

	loaded, err := store.GetProject(context.Background(), project.ID)
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	if loaded.Name != "Holiday Reel" || loaded.Settings.Width != 1920 {
		t.Fatalf("unexpected project %+v", loaded)
	}

	projects, err := store.ListProjects(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("list projects: %v", err)
	}
	if len(projects) != 1 {
		t.Fatalf("expected 1 project, got %d", len(projects))
	}

	if _, err := store.GetProject(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveProjectDetectsStaleWrite(t *testing.T) {
	store := newTestStore(t)
	project := newTestProject(t, store)

	base := project.UpdatedAt
	project.Name = "First Writer"
	if err := store.SaveProject(context.Background(), project, base); err != nil {
		t.Fatalf("first save: %v", err)
	}

	// Second writer still holds the original snapshot.
	stale := &timeline.Project{ID: project.ID, UserID: project.UserID, Name: "Second Writer"}
	err := store.SaveProject(context.Background(), stale, base)
	if !errors.Is(err, ErrStaleWrite) {
		t.Fatalf("expected ErrStaleWrite, got %v", err)
	}

	loaded, err := store.GetProject(context.Background(), project.ID)
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	if loaded.Name != "First Writer" {
		t.Fatalf("stale writer overwrote: %q", loaded.Name)
	}
}

func TestReplaceEffectsRoundTripAndTouch(t *testing.T) {
	store := newTestStore(t)
	project := newTestProject(t, store)
	before := project.UpdatedAt

	video := timeline.NewEffect(project.ID, timeline.KindVideo, "clip-1", 4000)
	video.StartAt = 1000
	video.Audio = &timeline.AudioProps{Volume: 0.8}
	text := timeline.NewEffect(project.ID, timeline.KindText, "", 2000)
	text.Track = 2
	text.Text.Text = "Title Card"
	text.Seq = 1

	time.Sleep(5 * time.Millisecond)
	if err := store.ReplaceEffects(context.Background(), project.ID, before, []*timeline.Effect{video, text}); err != nil {
		t.Fatalf("replace effects: %v", err)
	}

	effects, err := store.ListEffects(context.Background(), project.ID)
	if err != nil {
		t.Fatalf("list effects: %v", err)
	}
	if len(effects) != 2 {
		t.Fatalf("expected 2 effects, got %d", len(effects))
	}
	byID := map[string]*timeline.Effect{}
	for _, effect := range effects {
		byID[effect.ID] = effect
	}
	gotVideo := byID[video.ID]
	if gotVideo == nil || gotVideo.StartAt != 1000 || gotVideo.TrimEnd != 4000 {
		t.Fatalf("video effect mangled: %+v", gotVideo)
	}
	if gotVideo.Audio == nil || gotVideo.Audio.Volume != 0.8 {
		t.Fatalf("audio props lost: %+v", gotVideo.Audio)
	}
	gotText := byID[text.ID]
	if gotText == nil || gotText.Text == nil || gotText.Text.Text != "Title Card" {
		t.Fatalf("text style lost: %+v", gotText)
	}

	loaded, err := store.GetProject(context.Background(), project.ID)
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	if !loaded.UpdatedAt.After(before) {
		t.Fatalf("effect write must bump the conflict clock: %s vs %s", loaded.UpdatedAt, before)
	}
}

func TestReplaceEffectsRejectsStaleRevision(t *testing.T) {
	store := newTestStore(t)
	project := newTestProject(t, store)
	base := project.UpdatedAt

	first := timeline.NewEffect(project.ID, timeline.KindVideo, "clip-1", 2000)
	if err := store.ReplaceEffects(context.Background(), project.ID, base, []*timeline.Effect{first}); err != nil {
		t.Fatalf("first write: %v", err)
	}

	// A second writer holding the same snapshot must lose, and the
	// winner's effects must survive intact.
	second := timeline.NewEffect(project.ID, timeline.KindImage, "logo", 1000)
	err := store.ReplaceEffects(context.Background(), project.ID, base, []*timeline.Effect{second})
	if !errors.Is(err, ErrStaleWrite) {
		t.Fatalf("expected ErrStaleWrite, got %v", err)
	}

	effects, err := store.ListEffects(context.Background(), project.ID)
	if err != nil {
		t.Fatalf("list effects: %v", err)
	}
	if len(effects) != 1 || effects[0].ID != first.ID {
		t.Fatalf("loser clobbered the winning revision: %+v", effects)
	}

	missingErr := store.ReplaceEffects(context.Background(), "no-such-project", base, nil)
	if !errors.Is(missingErr, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing project, got %v", missingErr)
	}
}

func TestDeleteProjectCascadesEffects(t *testing.T) {
	store := newTestStore(t)
	project := newTestProject(t, store)
	effect := timeline.NewEffect(project.ID, timeline.KindImage, "logo", 1000)
	if err := store.ReplaceEffects(context.Background(), project.ID, project.UpdatedAt, []*timeline.Effect{effect}); err != nil {
		t.Fatalf("replace effects: %v", err)
	}

	if err := store.DeleteProject(context.Background(), project.ID); err != nil {
		t.Fatalf("delete project: %v", err)
	}
	effects, err := store.ListEffects(context.Background(), project.ID)
	if err != nil {
		t.Fatalf("list effects: %v", err)
	}
	if len(effects) != 0 {
		t.Fatalf("effects survived project delete: %d", len(effects))
	}
}

func TestJobLifecycle(t *testing.T) {
	store := newTestStore(t)
	project := newTestProject(t, store)

	job, err := store.NewJob(context.Background(), project.ID, project.UserID, "1080p", true)
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if job.Status != StatusPending || job.Progress != 0 {
		t.Fatalf("fresh job: %+v", job)
	}

	if err := store.MarkProcessing(context.Background(), job.ID); err != nil {
		t.Fatalf("mark processing: %v", err)
	}
	if err := store.UpdateJobProgress(context.Background(), job.ID, "composing", 42.5); err != nil {
		t.Fatalf("update progress: %v", err)
	}
	current, err := store.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if current.Status != StatusProcessing || current.Progress != 42.5 || current.Phase != "composing" {
		t.Fatalf("in-flight job: %+v", current)
	}
	if current.StartedAt == nil || current.LastHeartbeat == nil {
		t.Fatalf("processing job missing started/heartbeat: %+v", current)
	}

	if err := store.MarkCompleted(context.Background(), job.ID, "/out/Reel-1080p.mp4", "Reel-1080p.mp4"); err != nil {
		t.Fatalf("mark completed: %v", err)
	}
	done, err := store.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if done.Status != StatusCompleted || done.Progress != 100 || done.OutputFilename != "Reel-1080p.mp4" {
		t.Fatalf("completed job: %+v", done)
	}
	if done.FinishedAt == nil {
		t.Fatalf("completed job missing finished_at")
	}

	// Completed is terminal.
	if err := store.MarkProcessing(context.Background(), job.ID); !errors.Is(err, ErrBadTransition) {
		t.Fatalf("expected ErrBadTransition, got %v", err)
	}
}

func TestJobDoubleClaimRejected(t *testing.T) {
	store := newTestStore(t)
	project := newTestProject(t, store)
	job, err := store.NewJob(context.Background(), project.ID, project.UserID, "720p", false)
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if err := store.MarkProcessing(context.Background(), job.ID); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if err := store.MarkProcessing(context.Background(), job.ID); !errors.Is(err, ErrBadTransition) {
		t.Fatalf("second claim should fail, got %v", err)
	}
}

func TestCancelPendingAndProcessing(t *testing.T) {
	store := newTestStore(t)
	project := newTestProject(t, store)

	pending, err := store.NewJob(context.Background(), project.ID, project.UserID, "720p", false)
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if err := store.MarkCancelled(context.Background(), pending.ID); err != nil {
		t.Fatalf("cancel pending: %v", err)
	}

	active, err := store.NewJob(context.Background(), project.ID, project.UserID, "720p", false)
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if err := store.MarkProcessing(context.Background(), active.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.MarkCancelled(context.Background(), active.ID); err != nil {
		t.Fatalf("cancel processing: %v", err)
	}

	// Cancelled is terminal.
	if err := store.MarkCancelled(context.Background(), pending.ID); !errors.Is(err, ErrBadTransition) {
		t.Fatalf("expected ErrBadTransition, got %v", err)
	}
}

func TestRetryFailed(t *testing.T) {
	store := newTestStore(t)
	project := newTestProject(t, store)

	job, err := store.NewJob(context.Background(), project.ID, project.UserID, "720p", false)
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if err := store.MarkProcessing(context.Background(), job.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.MarkFailed(context.Background(), job.ID, "encoder exploded"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	count, err := store.RetryFailed(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 retried job, got %d", count)
	}
	retried, err := store.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if retried.Status != StatusPending || retried.ErrorMessage != "" || retried.Progress != 0 {
		t.Fatalf("retried job not reset: %+v", retried)
	}
}

func TestReclaimStale(t *testing.T) {
	store := newTestStore(t)
	project := newTestProject(t, store)

	stale, err := store.NewJob(context.Background(), project.ID, project.UserID, "720p", false)
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if err := store.MarkProcessing(context.Background(), stale.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}

	// Nothing is stale yet.
	count, err := store.ReclaimStale(context.Background(), time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if count != 0 {
		t.Fatalf("reclaimed a live job")
	}

	count, err = store.ReclaimStale(context.Background(), time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 reclaimed job, got %d", count)
	}
	reclaimed, err := store.GetJob(context.Background(), stale.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if reclaimed.Status != StatusPending || reclaimed.LastHeartbeat != nil {
		t.Fatalf("reclaimed job not reset: %+v", reclaimed)
	}
}

func TestListJobsFiltersAndOrders(t *testing.T) {
	store := newTestStore(t)
	project := newTestProject(t, store)

	first, err := store.NewJob(context.Background(), project.ID, "user-1", "720p", false)
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	second, err := store.NewJob(context.Background(), project.ID, "user-2", "1080p", true)
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if err := store.MarkProcessing(context.Background(), second.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}

	pending, err := store.ListJobs(context.Background(), StatusPending)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != first.ID {
		t.Fatalf("pending filter wrong: %+v", pending)
	}

	all, err := store.ListJobs(context.Background())
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 || all[0].ID != first.ID {
		t.Fatalf("submission order not preserved: %+v", all)
	}

	mine, err := store.ListUserJobs(context.Background(), "user-2")
	if err != nil {
		t.Fatalf("list user jobs: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != second.ID {
		t.Fatalf("user filter wrong: %+v", mine)
	}
}
