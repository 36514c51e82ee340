package api

import "cutroom/internal/timeline"

// JobView is the transport shape of an export job.
type JobView struct {
	ID             string   `json:"id"`
	ProjectID      string   `json:"project_id"`
	UserID         string   `json:"user_id"`
	Status         string   `json:"status"`
	Phase          string   `json:"phase,omitempty"`
	Progress       float64  `json:"progress"`
	Preset         string   `json:"preset"`
	IncludeAudio   bool     `json:"include_audio"`
	OutputPath     string   `json:"output_path,omitempty"`
	OutputFilename string   `json:"output_filename,omitempty"`
	Error          string   `json:"error,omitempty"`
	CreatedAt      string   `json:"created_at"`
	UpdatedAt      string   `json:"updated_at"`
	StartedAt      *string  `json:"started_at,omitempty"`
	FinishedAt     *string  `json:"finished_at,omitempty"`
}

// ProjectView is the transport shape of a project.
type ProjectView struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Name      string            `json:"name"`
	Settings  timeline.Settings `json:"settings"`
	UpdatedAt string            `json:"updated_at"`
}

// CreateProjectRequest creates a project.
type CreateProjectRequest struct {
	UserID   string            `json:"user_id"`
	Name     string            `json:"name"`
	Settings timeline.Settings `json:"settings"`
}

// SaveTimelineRequest replaces a project's effect set. BaseRevision is
// the updated_at the client last read; a newer stored revision rejects
// the write.
type SaveTimelineRequest struct {
	BaseRevision string             `json:"base_revision"`
	Effects      []*timeline.Effect `json:"effects"`
}

// AddEffectRequest places one new effect on a project's timeline. A nil
// Position asks the placement engine to auto-place the effect; otherwise
// the drop lands at Position on Track, optionally snapped to the nearest
// effect boundary. Push allows shifting downstream effects right when the
// drop does not fit otherwise.
type AddEffectRequest struct {
	BaseRevision    string           `json:"base_revision"`
	Effect          *timeline.Effect `json:"effect"`
	Position        *int64           `json:"position,omitempty"`
	Track           int              `json:"track"`
	SnapThresholdMs int64            `json:"snap_threshold_ms,omitempty"`
	Push            bool             `json:"push,omitempty"`
}

// ExportRequest starts an export for a project.
type ExportRequest struct {
	UserID       string `json:"user_id"`
	Preset       string `json:"preset"`
	IncludeAudio *bool  `json:"include_audio,omitempty"`
}

// JobListResponse wraps a job listing.
type JobListResponse struct {
	Jobs []JobView `json:"jobs"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job JobView `json:"job"`
}

// ProjectResponse wraps a single project and its effects.
type ProjectResponse struct {
	Project ProjectView        `json:"project"`
	Effects []*timeline.Effect `json:"effects,omitempty"`
}

// DaemonStatus reports daemon health for the status endpoint.
type DaemonStatus struct {
	Running    bool             `json:"running"`
	PID        int              `json:"pid"`
	DBPath     string           `json:"db_path"`
	LockPath   string           `json:"lock_path"`
	ActiveJobs int              `json:"active_jobs"`
	QueuedJobs int              `json:"queued_jobs"`
	Checks     []PreflightCheck `json:"checks,omitempty"`
}

// PreflightCheck is one startup dependency's availability.
type PreflightCheck struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Detail    string `json:"detail,omitempty"`
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
