package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewJob inserts a pending export job and returns the stored row.
func (s *Store) NewJob(ctx context.Context, projectID, userID, presetName string, includeAudio bool) (*ExportJob, error) {
	id := uuid.NewString()
	now := formatTime(time.Now().UTC())
	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO export_jobs (
            id, project_id, user_id, status, progress, preset, include_audio,
            created_at, updated_at
        ) VALUES (?, ?, ?, ?, 0, ?, ?, ?, ?)`,
		id,
		projectID,
		userID,
		StatusPending,
		presetName,
		boolToInt(includeAudio),
		now,
		now,
	); err != nil {
		return nil, fmt.Errorf("insert export job: %w", err)
	}
	return s.GetJob(ctx, id)
}

// GetJob loads a job by id.
func (s *Store) GetJob(ctx context.Context, id string) (*ExportJob, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+jobColumns+` FROM export_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs filtered by the given statuses (all when empty),
// oldest first so callers see submission order.
func (s *Store) ListJobs(ctx context.Context, statuses ...Status) ([]*ExportJob, error) {
	query := `SELECT ` + jobColumns + ` FROM export_jobs`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, string(status))
		}
	}
	query += ` ORDER BY created_at, id`
	return s.queryJobs(ctx, query, args...)
}

// ListUserJobs returns a user's jobs, oldest first.
func (s *Store) ListUserJobs(ctx context.Context, userID string) ([]*ExportJob, error) {
	return s.queryJobs(ctx,
		`SELECT `+jobColumns+` FROM export_jobs WHERE user_id = ? ORDER BY created_at, id`,
		userID)
}

func (s *Store) queryJobs(ctx context.Context, query string, args ...any) ([]*ExportJob, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*ExportJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// transition moves a job between statuses, enforcing the lifecycle. The
// extra set clauses apply only when the transition lands.
func (s *Store) transition(ctx context.Context, id string, from, to Status, set string, args ...any) error {
	if !transitionAllowed(from, to) {
		return badTransition(id, from, to)
	}
	query := `UPDATE export_jobs SET status = ?, updated_at = ?` + set + ` WHERE id = ? AND status = ?`
	full := make([]any, 0, len(args)+4)
	full = append(full, string(to), formatTime(time.Now().UTC()))
	full = append(full, args...)
	full = append(full, id, string(from))
	res, err := s.execWithRetry(ctx, query, full...)
	if err != nil {
		return fmt.Errorf("transition job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}
	current, getErr := s.GetJob(ctx, id)
	if getErr != nil {
		return getErr
	}
	return badTransition(id, current.Status, to)
}

// MarkProcessing claims a pending job for execution.
func (s *Store) MarkProcessing(ctx context.Context, id string) error {
	now := formatTime(time.Now().UTC())
	return s.transition(ctx, id, StatusPending, StatusProcessing,
		`, started_at = ?, last_heartbeat = ?, error_message = NULL`, now, now)
}

// MarkCompleted finishes a processing job with its artifact location.
func (s *Store) MarkCompleted(ctx context.Context, id, outputPath, outputFilename string) error {
	return s.transition(ctx, id, StatusProcessing, StatusCompleted,
		`, progress = 100, phase = 'complete', output_path = ?, output_filename = ?, finished_at = ?, last_heartbeat = NULL`,
		outputPath, outputFilename, formatTime(time.Now().UTC()))
}

// MarkFailed finishes a processing job with an error message.
func (s *Store) MarkFailed(ctx context.Context, id, message string) error {
	return s.transition(ctx, id, StatusProcessing, StatusFailed,
		`, phase = 'error', error_message = ?, finished_at = ?, last_heartbeat = NULL`,
		nullableString(message), formatTime(time.Now().UTC()))
}

// MarkCancelled cancels a job. Pending jobs cancel directly; processing
// jobs are recorded cancelled once the pipeline observes its flag.
func (s *Store) MarkCancelled(ctx context.Context, id string) error {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}
	switch job.Status {
	case StatusPending:
		return s.transition(ctx, id, StatusPending, StatusCancelled,
			`, phase = 'cancelled', finished_at = ?`, formatTime(time.Now().UTC()))
	case StatusProcessing:
		return s.transition(ctx, id, StatusProcessing, StatusCancelled,
			`, phase = 'cancelled', finished_at = ?, last_heartbeat = NULL`, formatTime(time.Now().UTC()))
	default:
		return badTransition(id, job.Status, StatusCancelled)
	}
}

// RetryFailed returns failed jobs to pending. With no ids every failed
// job retries; otherwise only the listed ones.
func (s *Store) RetryFailed(ctx context.Context, ids ...string) (int64, error) {
	now := formatTime(time.Now().UTC())
	if len(ids) == 0 {
		res, err := s.execWithRetry(ctx,
			`UPDATE export_jobs
             SET status = ?, progress = 0, phase = NULL, error_message = NULL,
                 output_path = NULL, output_filename = NULL, started_at = NULL,
                 finished_at = NULL, updated_at = ?
             WHERE status = ?`,
			StatusPending, now, StatusFailed)
		if err != nil {
			return 0, fmt.Errorf("retry failed jobs: %w", err)
		}
		return res.RowsAffected()
	}

	args := make([]any, 0, len(ids)+3)
	args = append(args, StatusPending, now)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, StatusFailed)
	res, err := s.execWithRetry(ctx,
		`UPDATE export_jobs
         SET status = ?, progress = 0, phase = NULL, error_message = NULL,
             output_path = NULL, output_filename = NULL, started_at = NULL,
             finished_at = NULL, updated_at = ?
         WHERE id IN (`+makePlaceholders(len(ids))+`) AND status = ?`,
		args...)
	if err != nil {
		return 0, fmt.Errorf("retry selected jobs: %w", err)
	}
	return res.RowsAffected()
}

// UpdateJobProgress records the pipeline's phase and percentage for an
// in-flight job.
func (s *Store) UpdateJobProgress(ctx context.Context, id, phase string, percent float64) error {
	if err := s.execWithoutResultRetry(ctx,
		`UPDATE export_jobs SET phase = ?, progress = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		phase, percent, formatTime(time.Now().UTC()), id, StatusProcessing,
	); err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	return nil
}

// UpdateHeartbeat refreshes the liveness timestamp for an in-flight job.
func (s *Store) UpdateHeartbeat(ctx context.Context, id string) error {
	now := formatTime(time.Now().UTC())
	if err := s.execWithoutResultRetry(ctx,
		`UPDATE export_jobs SET last_heartbeat = ?, updated_at = ? WHERE id = ? AND status = ?`,
		now, now, id, StatusProcessing,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStale returns processing jobs whose heartbeat expired before
// cutoff back to pending so the scheduler can pick them up again.
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE export_jobs
         SET status = ?, progress = 0, phase = NULL, started_at = NULL,
             last_heartbeat = NULL, updated_at = ?
         WHERE status = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		StatusPending,
		formatTime(time.Now().UTC()),
		StatusProcessing,
		formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	return res.RowsAffected()
}
