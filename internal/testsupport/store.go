package testsupport

import (
	"context"
	"testing"

	"cutroom/internal/config"
	"cutroom/internal/queue"
	"cutroom/internal/timeline"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewProject persists a fresh project for tests using the provided store.
func NewProject(t testing.TB, store *queue.Store, userID, name string) *timeline.Project {
	t.Helper()

	project := &timeline.Project{
		ID:     name + "-id",
		UserID: userID,
		Name:   name,
		Settings: timeline.Settings{
			Width:      1920,
			Height:     1080,
			FPS:        30,
			TrackCount: 3,
		},
	}
	if err := store.CreateProject(context.Background(), project); err != nil {
		t.Fatalf("store.CreateProject: %v", err)
	}
	return project
}
