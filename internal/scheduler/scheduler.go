package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"cutroom/internal/export"
	"cutroom/internal/logging"
	"cutroom/internal/queue"
	"cutroom/internal/services"
)

// Outcome is what a finished job leaves behind.
type Outcome struct {
	Path     string
	Filename string
}

// ExecuteFunc runs one claimed job to completion. Cancellation arrives
// through the context; a cancelled run returns export.ErrCancelled.
type ExecuteFunc func(ctx context.Context, job *queue.ExportJob) (*Outcome, error)

// Options configures a Scheduler.
type Options struct {
	Store   *queue.Store
	Execute ExecuteFunc
	// MaxConcurrent is the global slot count.
	MaxConcurrent int
	// MaxConcurrentPerUser bounds how many slots one user may hold.
	MaxConcurrentPerUser int
	Logger               *slog.Logger
}

type activeJob struct {
	job           *queue.ExportJob
	cancel        context.CancelFunc
	userCancelled bool
}

// Scheduler owns the admission state. All fields behind mu; job execution
// happens outside the lock.
type Scheduler struct {
	store         *queue.Store
	execute       ExecuteFunc
	logger        *slog.Logger
	maxConcurrent int
	maxPerUser    int

	mu       sync.Mutex
	baseCtx  context.Context
	pending  []*queue.ExportJob
	active   map[string]*activeJob
	perUser  map[string]int
	enqueued map[string]struct{}
	stopped  bool

	wg sync.WaitGroup
}

// New constructs a stopped scheduler. Call Start before enqueueing.
func New(opts Options) *Scheduler {
	maxConcurrent := opts.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	maxPerUser := opts.MaxConcurrentPerUser
	if maxPerUser < 1 || maxPerUser > maxConcurrent {
		maxPerUser = maxConcurrent
	}
	return &Scheduler{
		store:         opts.Store,
		execute:       opts.Execute,
		logger:        logging.WithComponent(opts.Logger, "scheduler"),
		maxConcurrent: maxConcurrent,
		maxPerUser:    maxPerUser,
		active:        make(map[string]*activeJob),
		perUser:       make(map[string]int),
		enqueued:      make(map[string]struct{}),
	}
}

// Start binds the scheduler to its lifetime context and recovers the
// persisted pending queue.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.stopped = false
	s.mu.Unlock()

	pending, err := s.store.ListJobs(ctx, queue.StatusPending)
	if err != nil {
		return fmt.Errorf("load pending jobs: %w", err)
	}
	for _, job := range pending {
		s.Enqueue(job)
	}
	return nil
}

// Stop cancels every active job and waits for their completion handlers.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for _, entry := range s.active {
		entry.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Enqueue admits a job for execution. Submitting a job id that is already
// pending or active is a no-op, so callers can retry safely.
func (s *Scheduler) Enqueue(job *queue.ExportJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.baseCtx == nil {
		return
	}
	if _, ok := s.enqueued[job.ID]; ok {
		return
	}
	s.enqueued[job.ID] = struct{}{}
	s.pending = append(s.pending, job)
	s.logger.Info("job enqueued",
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldUserID, job.UserID),
		logging.Int("queue_depth", len(s.pending)),
	)
	s.promoteLocked()
}

// Cancel stops a job. Pending jobs cancel immediately; active jobs get
// their context cancelled and finish through the completion handler.
func (s *Scheduler) Cancel(ctx context.Context, jobID string) error {
	s.mu.Lock()
	if entry, ok := s.active[jobID]; ok {
		entry.userCancelled = true
		entry.cancel()
		s.mu.Unlock()
		return nil
	}
	for i, job := range s.pending {
		if job.ID != jobID {
			continue
		}
		s.pending = append(s.pending[:i], s.pending[i+1:]...)
		delete(s.enqueued, jobID)
		s.mu.Unlock()
		return s.store.MarkCancelled(ctx, jobID)
	}
	s.mu.Unlock()
	// Not tracked here; let the store arbitrate (covers jobs that are
	// already terminal, or pending rows from before a restart).
	return s.store.MarkCancelled(ctx, jobID)
}

// Snapshot reports the current slot usage for status surfaces.
func (s *Scheduler) Snapshot() (active, pending int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active), len(s.pending)
}

// promoteLocked fills free slots from the pending queue in submission
// order, skipping jobs whose user is at the per-user cap.
func (s *Scheduler) promoteLocked() {
	for len(s.active) < s.maxConcurrent {
		idx := -1
		for i, job := range s.pending {
			if s.perUser[job.UserID] < s.maxPerUser {
				idx = i
				break
			}
		}
		if idx < 0 {
			return
		}
		job := s.pending[idx]
		s.pending = append(s.pending[:idx], s.pending[idx+1:]...)

		if err := s.store.MarkProcessing(s.baseCtx, job.ID); err != nil {
			// Claimed elsewhere or cancelled while queued; drop it.
			delete(s.enqueued, job.ID)
			if !errors.Is(err, queue.ErrBadTransition) {
				s.logger.Warn("failed to claim job",
					logging.String(logging.FieldJobID, job.ID), logging.Error(err))
			}
			continue
		}

		jobCtx, cancel := context.WithCancel(s.baseCtx)
		s.active[job.ID] = &activeJob{job: job, cancel: cancel}
		s.perUser[job.UserID]++
		s.wg.Add(1)
		go s.run(jobCtx, job)
	}
}

// run executes one claimed job. The deferred completion handler releases
// the slot, persists the terminal status, and refills the freed slot
// before the goroutine exits.
func (s *Scheduler) run(ctx context.Context, job *queue.ExportJob) {
	defer s.wg.Done()

	var (
		outcome *Outcome
		runErr  error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				runErr = fmt.Errorf("job panicked: %v", r)
			}
		}()
		outcome, runErr = s.execute(ctx, job)
	}()

	s.mu.Lock()
	userCancelled := false
	if entry, ok := s.active[job.ID]; ok {
		userCancelled = entry.userCancelled
		entry.cancel()
		delete(s.active, job.ID)
	}
	if s.perUser[job.UserID] > 0 {
		s.perUser[job.UserID]--
	}
	if s.perUser[job.UserID] == 0 {
		delete(s.perUser, job.UserID)
	}
	delete(s.enqueued, job.ID)
	if !s.stopped {
		s.promoteLocked()
	}
	s.mu.Unlock()

	s.persistOutcome(job, outcome, runErr, userCancelled)
}

// persistOutcome writes the terminal status. Only an explicit user cancel
// is persisted as cancelled; a context killed any other way means the
// daemon is going down, and the job becomes a retryable failure so it can
// be revived after a restart.
func (s *Scheduler) persistOutcome(job *queue.ExportJob, outcome *Outcome, runErr error, userCancelled bool) {
	// The job's own context may already be cancelled; terminal writes use
	// a fresh one.
	ctx := context.Background()
	logger := s.logger.With(logging.String(logging.FieldJobID, job.ID))
	switch {
	case runErr == nil:
		var path, filename string
		if outcome != nil {
			path, filename = outcome.Path, outcome.Filename
		}
		if err := s.store.MarkCompleted(ctx, job.ID, path, filename); err != nil {
			logger.Error("failed to persist completion", logging.Error(err))
			return
		}
		logger.Info("job completed", logging.String("output", path))
	case errors.Is(runErr, export.ErrCancelled) || errors.Is(runErr, context.Canceled):
		if !userCancelled {
			if err := s.store.MarkFailed(ctx, job.ID, "daemon stopped"); err != nil && !errors.Is(err, queue.ErrBadTransition) {
				logger.Error("failed to persist shutdown interruption", logging.Error(err))
			}
			logger.Info("job interrupted by shutdown")
			return
		}
		if err := s.store.MarkCancelled(ctx, job.ID); err != nil && !errors.Is(err, queue.ErrBadTransition) {
			logger.Error("failed to persist cancellation", logging.Error(err))
		}
		logger.Info("job cancelled")
	default:
		if err := s.store.MarkFailed(ctx, job.ID, runErr.Error()); err != nil {
			logger.Error("failed to persist failure", logging.Error(err))
		}
		if services.Fatal(runErr) {
			logger.Error("job failed", logging.Error(runErr))
		} else {
			logger.Warn("job failed, retryable", logging.Error(runErr))
		}
	}
}
