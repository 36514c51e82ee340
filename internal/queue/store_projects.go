package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cutroom/internal/timeline"
)

// CreateProject inserts a new project owned by userID.
func (s *Store) CreateProject(ctx context.Context, project *timeline.Project) error {
	settings, err := json.Marshal(project.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	now := time.Now().UTC()
	if project.UpdatedAt.IsZero() {
		project.UpdatedAt = now
	}
	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO projects (id, user_id, name, settings_json, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		project.ID,
		project.UserID,
		project.Name,
		string(settings),
		formatTime(now),
		formatTime(project.UpdatedAt),
	); err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

// GetProject loads a project by id.
func (s *Store) GetProject(ctx context.Context, id string) (*timeline.Project, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT id, user_id, name, settings_json, updated_at FROM projects WHERE id = ?`, id)
	return scanProject(row)
}

// ListProjects returns every project owned by userID, newest first.
func (s *Store) ListProjects(ctx context.Context, userID string) ([]*timeline.Project, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT id, user_id, name, settings_json, updated_at FROM projects
         WHERE user_id = ? ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []*timeline.Project
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, project)
	}
	return projects, rows.Err()
}

// SaveProject updates the project row with a last-write-wins conflict
// check: the write only lands when baseRevision matches the stored
// updated_at, and the winner gets a fresh timestamp. ErrStaleWrite tells
// the caller their snapshot lost the race.
func (s *Store) SaveProject(ctx context.Context, project *timeline.Project, baseRevision time.Time) error {
	settings, err := json.Marshal(project.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	now := time.Now().UTC()
	res, err := s.execWithRetry(
		ctx,
		`UPDATE projects SET name = ?, settings_json = ?, updated_at = ?
         WHERE id = ? AND updated_at = ?`,
		project.Name,
		string(settings),
		formatTime(now),
		project.ID,
		formatTime(baseRevision),
	)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		current, getErr := s.GetProject(ctx, project.ID)
		if getErr != nil {
			return getErr
		}
		return fmt.Errorf("project %s modified at %s: %w",
			project.ID, current.UpdatedAt.Format(time.RFC3339Nano), ErrStaleWrite)
	}
	project.UpdatedAt = now
	return nil
}

// DeleteProject removes the project and, via cascade, its effects.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	res, err := s.execWithRetry(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	return nil
}

// ReplaceEffects atomically swaps the project's effect set and bumps the
// conflict clock. This is the write path for every timeline mutation; the
// placement engine computes the new set in memory and the store persists
// it as one revision. The write only lands when baseRevision still matches
// the stored updated_at, so two writers racing from the same snapshot
// cannot both win: the loser gets ErrStaleWrite and must reload.
func (s *Store) ReplaceEffects(ctx context.Context, projectID string, baseRevision time.Time, effects []*timeline.Effect) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin effects tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		// Claim the revision before touching effects so a lost race never
		// clears the winner's rows.
		res, err := tx.ExecContext(ctx,
			`UPDATE projects SET updated_at = ? WHERE id = ? AND updated_at = ?`,
			formatTime(time.Now().UTC()), projectID, formatTime(baseRevision))
		if err != nil {
			return fmt.Errorf("touch project: %w", err)
		}
		if affected, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("rows affected: %w", err)
		} else if affected == 0 {
			var current string
			scanErr := tx.QueryRowContext(ctx,
				`SELECT updated_at FROM projects WHERE id = ?`, projectID).Scan(&current)
			if errors.Is(scanErr, sql.ErrNoRows) {
				return fmt.Errorf("project %s: %w", projectID, ErrNotFound)
			}
			if scanErr != nil {
				return fmt.Errorf("read project revision: %w", scanErr)
			}
			return fmt.Errorf("project %s revised at %s: %w", projectID, current, ErrStaleWrite)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM effects WHERE project_id = ?`, projectID); err != nil {
			return fmt.Errorf("clear effects: %w", err)
		}
		for _, effect := range effects {
			if err := insertEffect(ctx, tx, effect); err != nil {
				return err
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit effects: %w", err)
		}
		return nil
	})
}

// ListEffects loads the project's effects ordered by track and position.
func (s *Store) ListEffects(ctx context.Context, projectID string) ([]*timeline.Effect, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT id, project_id, kind, track, start_at, duration, trim_start, trim_end,
                raw_duration, media_ref, geometry_json, audio_json, text_json, seq
         FROM effects WHERE project_id = ? ORDER BY track, start_at, seq`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list effects: %w", err)
	}
	defer rows.Close()

	var effects []*timeline.Effect
	for rows.Next() {
		effect, err := scanEffect(rows)
		if err != nil {
			return nil, err
		}
		effects = append(effects, effect)
	}
	return effects, rows.Err()
}

func insertEffect(ctx context.Context, tx *sql.Tx, effect *timeline.Effect) error {
	geometry, audio, text, err := marshalEffectProps(effect)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO effects (
            id, project_id, kind, track, start_at, duration, trim_start, trim_end,
            raw_duration, media_ref, geometry_json, audio_json, text_json, seq
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		effect.ID,
		effect.ProjectID,
		string(effect.Kind),
		effect.Track,
		effect.StartAt,
		effect.Duration,
		effect.TrimStart,
		effect.TrimEnd,
		effect.RawDuration,
		nullableString(effect.MediaRef),
		geometry,
		audio,
		text,
		effect.Seq,
	); err != nil {
		return fmt.Errorf("insert effect %s: %w", effect.ID, err)
	}
	return nil
}

func marshalEffectProps(effect *timeline.Effect) (geometry, audio, text any, err error) {
	if effect.Geometry != nil {
		raw, marshalErr := json.Marshal(effect.Geometry)
		if marshalErr != nil {
			return nil, nil, nil, fmt.Errorf("marshal geometry: %w", marshalErr)
		}
		geometry = string(raw)
	}
	if effect.Audio != nil {
		raw, marshalErr := json.Marshal(effect.Audio)
		if marshalErr != nil {
			return nil, nil, nil, fmt.Errorf("marshal audio props: %w", marshalErr)
		}
		audio = string(raw)
	}
	if effect.Text != nil {
		raw, marshalErr := json.Marshal(effect.Text)
		if marshalErr != nil {
			return nil, nil, nil, fmt.Errorf("marshal text style: %w", marshalErr)
		}
		text = string(raw)
	}
	return geometry, audio, text, nil
}

func scanProject(scanner rowScanner) (*timeline.Project, error) {
	var (
		id         string
		userID     string
		name       string
		settings   sql.NullString
		updatedRaw string
	)
	if err := scanner.Scan(&id, &userID, &name, &settings, &updatedRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("project: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("scan project: %w", err)
	}
	project := &timeline.Project{ID: id, UserID: userID, Name: name}
	if settings.Valid && settings.String != "" {
		if err := json.Unmarshal([]byte(settings.String), &project.Settings); err != nil {
			return nil, fmt.Errorf("unmarshal settings: %w", err)
		}
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		project.UpdatedAt = updated
	}
	return project, nil
}

func scanEffect(scanner rowScanner) (*timeline.Effect, error) {
	var (
		id          string
		projectID   string
		kind        string
		track       int
		startAt     int64
		duration    int64
		trimStart   int64
		trimEnd     int64
		rawDuration int64
		mediaRef    sql.NullString
		geometry    sql.NullString
		audio       sql.NullString
		text        sql.NullString
		seq         int64
	)
	if err := scanner.Scan(
		&id, &projectID, &kind, &track, &startAt, &duration, &trimStart, &trimEnd,
		&rawDuration, &mediaRef, &geometry, &audio, &text, &seq,
	); err != nil {
		return nil, fmt.Errorf("scan effect: %w", err)
	}
	effect := &timeline.Effect{
		ID:          id,
		ProjectID:   projectID,
		Kind:        timeline.Kind(kind),
		Track:       track,
		StartAt:     startAt,
		Duration:    duration,
		TrimStart:   trimStart,
		TrimEnd:     trimEnd,
		RawDuration: rawDuration,
		MediaRef:    mediaRef.String,
		Seq:         seq,
	}
	if geometry.Valid && geometry.String != "" {
		effect.Geometry = &timeline.Geometry{}
		if err := json.Unmarshal([]byte(geometry.String), effect.Geometry); err != nil {
			return nil, fmt.Errorf("unmarshal geometry: %w", err)
		}
	}
	if audio.Valid && audio.String != "" {
		effect.Audio = &timeline.AudioProps{}
		if err := json.Unmarshal([]byte(audio.String), effect.Audio); err != nil {
			return nil, fmt.Errorf("unmarshal audio props: %w", err)
		}
	}
	if text.Valid && text.String != "" {
		effect.Text = &timeline.TextStyle{}
		if err := json.Unmarshal([]byte(text.String), effect.Text); err != nil {
			return nil, fmt.Errorf("unmarshal text style: %w", err)
		}
	}
	return effect, nil
}
