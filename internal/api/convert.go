package api

import (
	"time"

	"cutroom/internal/queue"
	"cutroom/internal/timeline"
)

// JobViewFrom converts a stored job to its transport shape.
func JobViewFrom(job *queue.ExportJob) JobView {
	view := JobView{
		ID:             job.ID,
		ProjectID:      job.ProjectID,
		UserID:         job.UserID,
		Status:         string(job.Status),
		Phase:          job.Phase,
		Progress:       job.Progress,
		Preset:         job.Preset,
		IncludeAudio:   job.IncludeAudio,
		OutputPath:     job.OutputPath,
		OutputFilename: job.OutputFilename,
		Error:          job.ErrorMessage,
		CreatedAt:      job.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:      job.UpdatedAt.Format(time.RFC3339Nano),
	}
	view.StartedAt = optionalTimestamp(job.StartedAt)
	view.FinishedAt = optionalTimestamp(job.FinishedAt)
	return view
}

// JobViewsFrom converts a job slice.
func JobViewsFrom(jobs []*queue.ExportJob) []JobView {
	views := make([]JobView, len(jobs))
	for i, job := range jobs {
		views[i] = JobViewFrom(job)
	}
	return views
}

// ProjectViewFrom converts a stored project to its transport shape.
func ProjectViewFrom(project *timeline.Project) ProjectView {
	return ProjectView{
		ID:        project.ID,
		UserID:    project.UserID,
		Name:      project.Name,
		Settings:  project.Settings,
		UpdatedAt: project.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func optionalTimestamp(t *time.Time) *string {
	if t == nil {
		return nil
	}
	formatted := t.Format(time.RFC3339Nano)
	return &formatted
}
