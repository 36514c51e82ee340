package queue

import (
	"database/sql"
	"errors"
	"time"
)

type rowScanner interface {
	Scan(dest ...any) error
}

const jobColumns = "id, project_id, user_id, status, phase, progress, preset, include_audio, output_path, output_filename, error_message, created_at, updated_at, started_at, finished_at, last_heartbeat"

func scanJob(scanner rowScanner) (*ExportJob, error) {
	var (
		id           string
		projectID    string
		userID       string
		statusStr    string
		phase        sql.NullString
		progress     sql.NullFloat64
		presetName   string
		includeAudio sql.NullInt64
		outputPath   sql.NullString
		outputName   sql.NullString
		errorMessage sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
		startedRaw   sql.NullString
		finishedRaw  sql.NullString
		heartbeatRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&projectID,
		&userID,
		&statusStr,
		&phase,
		&progress,
		&presetName,
		&includeAudio,
		&outputPath,
		&outputName,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&finishedRaw,
		&heartbeatRaw,
	); err != nil {
		return nil, err
	}

	job := &ExportJob{
		ID:             id,
		ProjectID:      projectID,
		UserID:         userID,
		Status:         Status(statusStr),
		Phase:          phase.String,
		Progress:       progress.Float64,
		Preset:         presetName,
		IncludeAudio:   includeAudio.Valid && includeAudio.Int64 != 0,
		OutputPath:     outputPath.String,
		OutputFilename: outputName.String,
		ErrorMessage:   errorMessage.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	job.StartedAt = parseOptionalTime(startedRaw)
	job.FinishedAt = parseOptionalTime(finishedRaw)
	job.LastHeartbeat = parseOptionalTime(heartbeatRaw)
	return job, nil
}

func parseOptionalTime(raw sql.NullString) *time.Time {
	if !raw.Valid {
		return nil
	}
	if t, err := parseTimeString(raw.String); err == nil {
		return &t
	}
	return nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
