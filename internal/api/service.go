package api

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"cutroom/internal/placement"
	"cutroom/internal/preset"
	"cutroom/internal/queue"
	"cutroom/internal/services"
	"cutroom/internal/timeline"
)

// JobController is the scheduler surface the service drives.
type JobController interface {
	Enqueue(job *queue.ExportJob)
	Cancel(ctx context.Context, jobID string) error
	Snapshot() (active, pending int)
}

// Service implements the project and export operations shared by the
// HTTP handlers and the CLI.
type Service struct {
	store *queue.Store
	jobs  JobController
}

// NewService constructs the service layer.
func NewService(store *queue.Store, jobs JobController) *Service {
	return &Service{store: store, jobs: jobs}
}

// CreateProject validates and persists a new project.
func (s *Service) CreateProject(ctx context.Context, req CreateProjectRequest) (*ProjectResponse, error) {
	userID := strings.TrimSpace(req.UserID)
	name := strings.TrimSpace(req.Name)
	if userID == "" {
		return nil, services.Wrap(services.ErrValidation, "api", "create-project", "user_id is required", nil)
	}
	if name == "" {
		return nil, services.Wrap(services.ErrValidation, "api", "create-project", "name is required", nil)
	}
	settings := req.Settings
	if settings.Width <= 0 || settings.Height <= 0 {
		settings.Width, settings.Height = 1920, 1080
	}
	if settings.FPS <= 0 {
		settings.FPS = 30
	}
	if settings.TrackCount <= 0 {
		settings.TrackCount = 3
	}
	project := &timeline.Project{
		ID:       uuid.NewString(),
		UserID:   userID,
		Name:     name,
		Settings: settings,
	}
	if err := s.store.CreateProject(ctx, project); err != nil {
		return nil, err
	}
	view := ProjectViewFrom(project)
	return &ProjectResponse{Project: view}, nil
}

// GetProject loads a project and its effects.
func (s *Service) GetProject(ctx context.Context, id string) (*ProjectResponse, error) {
	project, err := s.store.GetProject(ctx, id)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	effects, err := s.store.ListEffects(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ProjectResponse{Project: ProjectViewFrom(project), Effects: effects}, nil
}

// SaveTimeline replaces a project's effect set under the last-write-wins
// conflict check. Every effect must validate and belong to the project.
func (s *Service) SaveTimeline(ctx context.Context, projectID string, req SaveTimelineRequest) (*ProjectResponse, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	base, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(req.BaseRevision))
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "api", "save-timeline", "base_revision must be an RFC3339 timestamp", err)
	}
	if project.StaleWrite(base) {
		return nil, services.Wrap(services.ErrConflict, "api", "save-timeline",
			fmt.Sprintf("project revised at %s, reload before writing", project.UpdatedAt.Format(time.RFC3339Nano)), nil)
	}
	for _, effect := range req.Effects {
		if effect.ProjectID != projectID {
			return nil, services.Wrap(services.ErrValidation, "api", "save-timeline",
				fmt.Sprintf("effect %s belongs to another project", effect.ID), nil)
		}
		if err := effect.Validate(); err != nil {
			return nil, services.Wrap(services.ErrValidation, "api", "save-timeline",
				fmt.Sprintf("effect %s invalid", effect.ID), err)
		}
	}
	if err := collisionCheck(req.Effects); err != nil {
		return nil, err
	}
	if err := s.store.ReplaceEffects(ctx, projectID, base, req.Effects); err != nil {
		return nil, translateStoreErr(err)
	}
	return s.GetProject(ctx, projectID)
}

// AddEffect places one new effect on the timeline through the placement
// engine. With no requested position the effect is auto-placed; otherwise
// the drop is resolved against its track neighbors, optionally snapping to
// the nearest boundary and pushing downstream effects right when the
// caller allows it.
func (s *Service) AddEffect(ctx context.Context, projectID string, req AddEffectRequest) (*ProjectResponse, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	base, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(req.BaseRevision))
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "api", "add-effect", "base_revision must be an RFC3339 timestamp", err)
	}
	if req.Effect == nil {
		return nil, services.Wrap(services.ErrValidation, "api", "add-effect", "effect is required", nil)
	}
	effect := req.Effect.Clone()
	if effect.ID == "" {
		effect.ID = uuid.NewString()
	}
	effect.ProjectID = projectID

	existing, err := s.store.ListEffects(ctx, projectID)
	if err != nil {
		return nil, err
	}

	if req.Position == nil {
		effect.StartAt, effect.Track = placement.FindOptimalNewEffectPlacement(existing, project.Settings.TrackCount)
	} else {
		position := *req.Position
		if req.SnapThresholdMs > 0 {
			position = placement.SnapPosition(position, existing, req.SnapThresholdMs)
		}
		effect.Track = req.Track
		plan, err := placement.Propose(effect, position, req.Track, existing)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "api", "add-effect", "no room for effect", err)
		}
		effect.StartAt = plan.Position
		if plan.AdjustedDuration > 0 {
			effect.TrimEnd -= effect.Duration - plan.AdjustedDuration
			effect.Duration = plan.AdjustedDuration
		}
		if len(plan.RequiresPush) > 0 {
			if !req.Push {
				return nil, services.Wrap(services.ErrValidation, "api", "add-effect",
					fmt.Sprintf("no room at %dms on track %d without pushing %d effect(s)",
						plan.Position, req.Track, len(plan.RequiresPush)), nil)
			}
			existing = applyShifts(existing, placement.PushForward(existing, req.Track, plan.Position, plan.PushDelta))
		}
	}

	if project.Settings.TrackCount > 0 && effect.Track >= project.Settings.TrackCount {
		return nil, services.Wrap(services.ErrValidation, "api", "add-effect",
			fmt.Sprintf("track %d exceeds the project's %d tracks", effect.Track, project.Settings.TrackCount), nil)
	}
	if err := effect.Validate(); err != nil {
		return nil, services.Wrap(services.ErrValidation, "api", "add-effect", "effect invalid", err)
	}
	if placement.DetectCollision(effect, existing) {
		return nil, services.Wrap(services.ErrValidation, "api", "add-effect",
			fmt.Sprintf("effect overlaps an existing effect on track %d", effect.Track), nil)
	}

	next := append(existing, effect)
	if err := s.store.ReplaceEffects(ctx, projectID, base, next); err != nil {
		return nil, translateStoreErr(err)
	}
	return s.GetProject(ctx, projectID)
}

// applyShifts substitutes pushed clones for their originals by id.
func applyShifts(existing, shifted []*timeline.Effect) []*timeline.Effect {
	if len(shifted) == 0 {
		return existing
	}
	byID := make(map[string]*timeline.Effect, len(shifted))
	for _, effect := range shifted {
		byID[effect.ID] = effect
	}
	merged := make([]*timeline.Effect, 0, len(existing))
	for _, effect := range existing {
		if moved, ok := byID[effect.ID]; ok {
			merged = append(merged, moved)
			continue
		}
		merged = append(merged, effect)
	}
	return merged
}

// StartExport creates a pending job and hands it to the scheduler.
func (s *Service) StartExport(ctx context.Context, projectID string, req ExportRequest) (*JobResponse, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	effects, err := s.store.ListEffects(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if len(effects) == 0 {
		return nil, services.Wrap(services.ErrValidation, "api", "start-export", "timeline has no effects", nil)
	}
	presetName := strings.TrimSpace(req.Preset)
	if presetName == "" {
		presetName = "1080p"
	}
	if _, err := preset.Lookup(presetName); err != nil {
		return nil, services.Wrap(services.ErrValidation, "api", "start-export", "unknown preset", err)
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = project.UserID
	}
	includeAudio := true
	if req.IncludeAudio != nil {
		includeAudio = *req.IncludeAudio
	}
	job, err := s.store.NewJob(ctx, projectID, userID, presetName, includeAudio)
	if err != nil {
		return nil, err
	}
	s.jobs.Enqueue(job)
	view := JobViewFrom(job)
	return &JobResponse{Job: view}, nil
}

// DescribeJob loads one job.
func (s *Service) DescribeJob(ctx context.Context, id string) (*JobResponse, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	view := JobViewFrom(job)
	return &JobResponse{Job: view}, nil
}

// ListJobs returns jobs, optionally filtered by status or user.
func (s *Service) ListJobs(ctx context.Context, userID string, statuses ...queue.Status) (*JobListResponse, error) {
	var (
		jobs []*queue.ExportJob
		err  error
	)
	if strings.TrimSpace(userID) != "" {
		jobs, err = s.store.ListUserJobs(ctx, userID)
	} else {
		jobs, err = s.store.ListJobs(ctx, statuses...)
	}
	if err != nil {
		return nil, err
	}
	return &JobListResponse{Jobs: JobViewsFrom(jobs)}, nil
}

// CancelJob stops a pending or running job.
func (s *Service) CancelJob(ctx context.Context, id string) (*JobResponse, error) {
	if _, err := s.store.GetJob(ctx, id); err != nil {
		return nil, translateStoreErr(err)
	}
	if err := s.jobs.Cancel(ctx, id); err != nil {
		return nil, translateStoreErr(err)
	}
	return s.DescribeJob(ctx, id)
}

// RetryJobs returns failed jobs to pending and re-enqueues them.
func (s *Service) RetryJobs(ctx context.Context, ids ...string) (*JobListResponse, error) {
	if _, err := s.store.RetryFailed(ctx, ids...); err != nil {
		return nil, err
	}
	pending, err := s.store.ListJobs(ctx, queue.StatusPending)
	if err != nil {
		return nil, err
	}
	for _, job := range pending {
		s.jobs.Enqueue(job)
	}
	return s.ListJobs(ctx, "")
}

// collisionCheck rejects effect sets with overlapping intervals on one
// track.
func collisionCheck(effects []*timeline.Effect) error {
	for _, effect := range effects {
		if placement.DetectCollision(effect, effects) {
			return services.Wrap(services.ErrValidation, "api", "save-timeline",
				fmt.Sprintf("effect %s overlaps another effect on track %d", effect.ID, effect.Track), nil)
		}
	}
	return nil
}

func translateStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, queue.ErrNotFound):
		return services.Wrap(services.ErrNotFound, "api", "lookup", "not found", err)
	case errors.Is(err, queue.ErrStaleWrite):
		return services.Wrap(services.ErrConflict, "api", "save", "stale write", err)
	case errors.Is(err, queue.ErrBadTransition):
		return services.Wrap(services.ErrConflict, "api", "transition", "job is not in a cancellable state", err)
	default:
		return err
	}
}
