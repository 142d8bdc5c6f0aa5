package classifiers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the state of a background training job.
type JobStatus string

const (
	JobQueued   JobStatus = "queued"
	JobRunning  JobStatus = "running"
	JobComplete JobStatus = "complete"
	JobFailed   JobStatus = "failed"
)

// maxRetainedJobs bounds the finished jobs kept for status lookups.
const maxRetainedJobs = 256

// Job tracks one enqueued training request.
type Job struct {
	ID           uuid.UUID `json:"id"`
	ExpID        string    `json:"exp_id"`
	StateName    string    `json:"state_name"`
	AlgorithmID  string    `json:"algorithm_id,omitempty"`
	Status       JobStatus `json:"status"`
	ClassifierID string    `json:"classifier_id,omitempty"`
	Error        string    `json:"error,omitempty"`
	QueuedAt     time.Time `json:"queued_at"`
	FinishedAt   time.Time `json:"finished_at,omitzero"`
}

type trainer struct {
	sys    System
	queue  chan uuid.UUID
	logger *slog.Logger

	mu       sync.Mutex
	jobs     map[uuid.UUID]*Job
	finished []uuid.UUID
}

func newTrainer(sys System, size int, logger *slog.Logger) *trainer {
	return &trainer{
		sys:    sys,
		queue:  make(chan uuid.UUID, size),
		logger: logger.With("worker", "trainer"),
		jobs:   make(map[uuid.UUID]*Job),
	}
}

func (t *trainer) enqueue(expID, stateName, algorithmID string) (*Job, error) {
	job := &Job{
		ID:          uuid.New(),
		ExpID:       expID,
		StateName:   stateName,
		AlgorithmID: algorithmID,
		Status:      JobQueued,
		QueuedAt:    time.Now().UTC(),
	}
	snapshot := *job

	t.mu.Lock()
	t.jobs[job.ID] = job
	t.mu.Unlock()

	select {
	case t.queue <- job.ID:
	default:
		t.mu.Lock()
		delete(t.jobs, job.ID)
		t.mu.Unlock()
		return nil, ErrQueueFull
	}

	t.logger.Info("training job queued", "job_id", snapshot.ID, "exp_id", expID, "state_name", stateName)
	return &snapshot, nil
}

func (t *trainer) job(id uuid.UUID) (*Job, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: job %s", ErrNotFound, id)
	}
	snapshot := *job
	return &snapshot, nil
}

func (t *trainer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-t.queue:
			t.process(ctx, id)
		}
	}
}

func (t *trainer) process(ctx context.Context, id uuid.UUID) {
	t.mu.Lock()
	job := t.jobs[id]
	job.Status = JobRunning
	expID, stateName, algorithmID := job.ExpID, job.StateName, job.AlgorithmID
	t.mu.Unlock()

	r, err := t.sys.Train(ctx, expID, stateName, algorithmID)

	t.mu.Lock()
	defer t.mu.Unlock()

	job.FinishedAt = time.Now().UTC()
	if err != nil {
		job.Status = JobFailed
		job.Error = err.Error()
		t.logger.Error("training job failed",
			"job_id", id,
			"exp_id", expID,
			"state_name", stateName,
			"error", err,
		)
	} else {
		job.Status = JobComplete
		job.ClassifierID = r.ClassifierID
	}

	t.finished = append(t.finished, id)
	if len(t.finished) > maxRetainedJobs {
		delete(t.jobs, t.finished[0])
		t.finished = t.finished[1:]
	}
}
