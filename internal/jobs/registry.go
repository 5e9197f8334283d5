// Package jobs tracks asynchronous batch runs submitted through the HTTP API.
// Jobs live in memory for the lifetime of the process and are removed only by
// explicit delete.
package jobs

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/goodnatureofminers/txbatch7000-backend/internal/model"
)

// ErrJobNotFound is returned for lookups and deletes of unknown job ids.
var ErrJobNotFound = errors.New("job not found")

// ErrRegistryClosed is returned for creates after Close.
var ErrRegistryClosed = errors.New("job registry closed")

// RunFunc executes one configured batch and reports progress through the
// observer. The registry supplies the context; cancellation on shutdown stops
// in-flight runs.
type RunFunc func(ctx context.Context, cfg model.BatchConfig, observer Observer) (*model.BatchRunSummary, error)

// Observer receives progress events while a run executes.
type Observer interface {
	WalletResolved(address common.Address)
	ItemSettled(result *model.SubmissionResult, failure *model.FailureRecord)
}

// Metrics records job lifecycle transitions.
type Metrics interface {
	JobStarted(mode model.Mode)
	JobFinished(mode model.Mode, status model.JobStatus, started time.Time)
}

// Registry owns the in-memory job table and the goroutines executing queued
// jobs. One goroutine runs per job; there is no queueing beyond the scheduler.
type Registry struct {
	run     RunFunc
	metrics Metrics
	logger  *zap.Logger
	now     func() time.Time
	newID   func() string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
	jobs   map[string]*model.Job
}

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// WithJobMetrics attaches lifecycle metrics.
func WithJobMetrics(metrics Metrics) RegistryOption {
	return func(r *Registry) {
		r.metrics = metrics
	}
}

func withClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.now = now
	}
}

// NewRegistry constructs a Registry executing jobs with run.
func NewRegistry(run RunFunc, logger *zap.Logger, opts ...RegistryOption) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		run:    run,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*model.Job),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create registers a new job for the configuration and starts executing it in
// the background. The returned job is a snapshot in the queued state.
func (r *Registry) Create(cfg model.BatchConfig) (model.Job, error) {
	if err := cfg.Validate(); err != nil {
		return model.Job{}, err
	}
	if cfg.DryRun {
		return model.Job{}, errors.New("dry-run configurations cannot be submitted as jobs")
	}

	now := r.now()
	job := &model.Job{
		ID:        r.newID(),
		Status:    model.JobQueued,
		Config:    cfg,
		CreatedAt: now,
		UpdatedAt: now,
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return model.Job{}, ErrRegistryClosed
	}
	r.jobs[job.ID] = job
	r.wg.Add(1)
	// Snapshot before the run goroutine starts mutating the job, so the
	// caller always sees the queued state.
	queued := snapshot(job)
	r.mu.Unlock()

	go r.execute(job.ID, cfg)

	r.logger.Info("batch job queued",
		zap.String("jobId", job.ID),
		zap.String("mode", string(cfg.Mode)),
	)
	return queued, nil
}

// Get returns a snapshot of the job, or ErrJobNotFound.
func (r *Registry) Get(id string) (model.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return model.Job{}, ErrJobNotFound
	}
	return snapshot(job), nil
}

// List returns summaries of all known jobs, oldest first.
func (r *Registry) List() []model.JobSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	summaries := make([]model.JobSummary, 0, len(r.jobs))
	for _, job := range r.jobs {
		summaries = append(summaries, model.JobSummary{
			ID:        job.ID,
			Status:    job.Status,
			Mode:      job.Config.Mode,
			Progress:  job.Progress,
			CreatedAt: job.CreatedAt,
			UpdatedAt: job.UpdatedAt,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].CreatedAt.Equal(summaries[j].CreatedAt) {
			return summaries[i].ID < summaries[j].ID
		}
		return summaries[i].CreatedAt.Before(summaries[j].CreatedAt)
	})
	return summaries
}

// Delete removes the job from the table. A running job keeps executing but
// its later updates are discarded; there is no cancellation.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[id]; !ok {
		return ErrJobNotFound
	}
	delete(r.jobs, id)
	return nil
}

// Close stops accepting jobs, cancels in-flight runs and waits for their
// goroutines to drain.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
}

func (r *Registry) execute(id string, cfg model.BatchConfig) {
	defer r.wg.Done()

	started := r.now()
	r.update(id, func(job *model.Job) {
		job.Status = model.JobRunning
	})
	if r.metrics != nil {
		r.metrics.JobStarted(cfg.Mode)
	}

	summary, err := r.run(r.ctx, cfg, &jobObserver{registry: r, id: id})

	status := model.JobCompleted
	if err != nil {
		status = model.JobFailed
	}
	r.update(id, func(job *model.Job) {
		job.Status = status
		job.Summary = summary
		if err != nil {
			job.Error = err.Error()
		}
	})
	if r.metrics != nil {
		r.metrics.JobFinished(cfg.Mode, status, started)
	}

	if err != nil {
		r.logger.Error("batch job failed", zap.String("jobId", id), zap.Error(err))
		return
	}
	r.logger.Info("batch job completed",
		zap.String("jobId", id),
		zap.Int("total", summary.Total),
		zap.Int("successful", summary.Successful),
		zap.Int("failed", summary.Failed),
	)
}

// update applies fn to the job under the table lock. Updates for deleted jobs
// are dropped.
func (r *Registry) update(id string, fn func(job *model.Job)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return
	}
	fn(job)
	job.UpdatedAt = r.now()
}

// snapshot copies a job so callers never share slices with the running
// goroutine. Callers hold at least a read lock.
func snapshot(job *model.Job) model.Job {
	copied := *job
	if job.Results != nil {
		copied.Results = append([]model.SubmissionResult(nil), job.Results...)
	}
	if job.Failures != nil {
		copied.Failures = append([]model.FailureRecord(nil), job.Failures...)
	}
	return copied
}

// jobObserver forwards orchestrator progress into the job table.
type jobObserver struct {
	registry *Registry
	id       string
}

func (o *jobObserver) WalletResolved(address common.Address) {
	o.registry.update(o.id, func(job *model.Job) {
		job.Wallet = address.Hex()
	})
}

func (o *jobObserver) ItemSettled(result *model.SubmissionResult, failure *model.FailureRecord) {
	o.registry.update(o.id, func(job *model.Job) {
		job.Progress++
		if result != nil {
			job.Results = append(job.Results, *result)
		}
		if failure != nil {
			job.Failures = append(job.Failures, *failure)
		}
	})
}
