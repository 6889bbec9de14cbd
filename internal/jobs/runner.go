package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/douglasnoga/editor-ia/internal/logging"
	"github.com/douglasnoga/editor-ia/internal/orchestrator"
)

// Pipeline runs one job to a terminal state.
type Pipeline interface {
	Run(ctx context.Context, job orchestrator.Job) (*orchestrator.Result, error)
}

// Runner polls for pending jobs and runs up to maxConcurrent of them at a
// time. It is also the pipeline's progress sink.
type Runner struct {
	repo          Repository
	pipeline      Pipeline
	broker        *Broker
	logger        *slog.Logger
	pollInterval  time.Duration
	maxConcurrent int
	running       atomic.Bool
	paused        atomic.Bool

	mu       sync.Mutex
	inflight map[string]context.CancelFunc
	canceled map[string]bool
}

func NewRunner(repo Repository, broker *Broker, maxConcurrent int, logger *slog.Logger) *Runner {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if broker == nil {
		broker = NewBroker()
	}
	return &Runner{
		repo:          repo,
		broker:        broker,
		logger:        logging.WithComponent(logging.OrDiscard(logger), "runner"),
		pollInterval:  2 * time.Second,
		maxConcurrent: maxConcurrent,
		inflight:      make(map[string]context.CancelFunc),
		canceled:      make(map[string]bool),
	}
}

// SetPipeline wires the pipeline. The pipeline usually reports to the runner,
// so it is built after the runner.
func (r *Runner) SetPipeline(p Pipeline) {
	r.pipeline = p
}

func (r *Runner) SetPollInterval(d time.Duration) {
	if d > 0 {
		r.pollInterval = d
	}
}

// Start blocks until ctx is done, then waits for in-flight jobs to stop.
func (r *Runner) Start(ctx context.Context) {
	if r.running.Swap(true) {
		return
	}
	defer r.running.Store(false)

	r.logger.Info("job runner started", "max_concurrent", r.maxConcurrent)

	var g errgroup.Group
	g.SetLimit(r.maxConcurrent)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		r.dispatch(ctx, &g)
		select {
		case <-ctx.Done():
			r.logger.Info("job runner stopping")
			g.Wait()
			return
		case <-ticker.C:
		}
	}
}

func (r *Runner) dispatch(ctx context.Context, g *errgroup.Group) {
	if r.paused.Load() || ctx.Err() != nil {
		return
	}
	pending, err := r.repo.ListPendingJobs(ctx)
	if err != nil {
		r.logger.Error("failed to list pending jobs", "error", err)
		return
	}

	for _, job := range pending {
		if r.isInflight(job.ID) {
			continue
		}
		jobCtx, cancel := context.WithCancel(ctx)
		r.track(job.ID, cancel)
		if !g.TryGo(func() error {
			defer r.untrack(job.ID)
			r.process(jobCtx, job)
			return nil
		}) {
			r.untrack(job.ID)
			return
		}
	}
}

func (r *Runner) isInflight(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.inflight[id]
	return ok
}

func (r *Runner) track(id string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inflight[id] = cancel
}

func (r *Runner) untrack(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cancel, ok := r.inflight[id]; ok {
		cancel()
		delete(r.inflight, id)
	}
	delete(r.canceled, id)
}

// Cancel stops a running job. It reports false when the job is not running
// in this process.
func (r *Runner) Cancel(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cancel, ok := r.inflight[id]
	if !ok {
		return false
	}
	r.canceled[id] = true
	cancel()
	return true
}

func (r *Runner) wasCanceled(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.canceled[id]
}

func (r *Runner) process(ctx context.Context, job *Job) {
	logger := logging.WithJobID(r.logger, job.ID)
	// Bookkeeping writes outlive a canceled job.
	bg := context.WithoutCancel(ctx)

	if r.pipeline == nil {
		r.finish(bg, job.ID, StatusFailed, "pipeline not configured", 0)
		return
	}
	if current, err := r.repo.GetJob(bg, job.ID); err != nil || current == nil || current.Status != StatusPending {
		logger.Debug("job no longer pending, skipping")
		return
	}
	if err := r.repo.UpdateJobStatus(bg, job.ID, StatusRunning, ""); err != nil {
		logger.Error("failed to mark job running", "error", err)
		return
	}
	logger.Info("processing job", "path", logging.SanitizePath(job.SourcePath), "profile", job.Profile)

	start := time.Now()
	res, err := r.pipeline.Run(ctx, orchestrator.Job{
		ID:             job.ID,
		SourcePath:     job.SourcePath,
		WorkDir:        job.WorkDir,
		Profile:        job.Profile,
		TranscriptPath: job.TranscriptPath,
	})

	percent := 0
	if res != nil {
		if data, mErr := json.Marshal(res); mErr == nil {
			if uErr := r.repo.UpdateJobResult(bg, job.ID, data); uErr != nil {
				logger.Warn("failed to store job result", "error", uErr)
			}
		}
		if aErr := r.repo.UpdateJobArtifacts(bg, job.ID, Artifacts{
			GuidePath:      res.GuidePath,
			TimelinePath:   res.TimelinePath,
			EDLPath:        res.EDLPath,
			TranscriptPath: res.TranscriptPath,
		}); aErr != nil {
			logger.Warn("failed to store artifact paths", "error", aErr)
		}
	}
	if current, gErr := r.repo.GetJob(bg, job.ID); gErr == nil && current != nil {
		percent = current.Progress
	}

	switch {
	case err == nil:
		r.finish(bg, job.ID, StatusCompleted, "", 100)
		logger.Info("job completed", "duration_ms", time.Since(start).Milliseconds())
	case r.wasCanceled(job.ID):
		r.finish(bg, job.ID, StatusCanceled, "canceled", percent)
		logger.Info("job canceled")
	default:
		r.finish(bg, job.ID, StatusFailed, err.Error(), percent)
		logger.Error("job failed", "error", err)
	}
}

// finish records the terminal status and then tells subscribers.
func (r *Runner) finish(ctx context.Context, id, status, errMsg string, percent int) {
	if err := r.repo.UpdateJobStatus(ctx, id, status, errMsg); err != nil {
		r.logger.Error("failed to update job status", "job_id", id, "status", status, "error", err)
	}
	msg := "Job " + status
	if errMsg != "" && status == StatusFailed {
		msg = errMsg
	}
	r.broker.Publish(Event{
		JobID:     id,
		Message:   msg,
		Percent:   percent,
		Status:    status,
		Terminal:  true,
		CreatedAt: time.Now(),
	})
}

// Report persists a progress report and fans it out to subscribers. It
// satisfies orchestrator.ProgressSink.
func (r *Runner) Report(jobID, message string, percent int, extras map[string]any) {
	ctx := context.Background()
	ev := &Event{JobID: jobID, Message: message, Percent: percent, Extras: extras, CreatedAt: time.Now()}

	stage := string(orchestrator.StageAt(percent))
	if s, ok := extras[orchestrator.ExtraStage].(string); ok && s != "" {
		stage = s
	}
	if err := r.repo.UpdateJobProgress(ctx, jobID, stage, percent, message); err != nil {
		r.logger.Warn("failed to persist progress", "job_id", jobID, "error", err)
	}
	if err := r.repo.AppendEvent(ctx, ev); err != nil {
		r.logger.Warn("failed to persist event", "job_id", jobID, "error", err)
	}
	r.broker.Publish(*ev)
}

func (r *Runner) Broker() *Broker {
	return r.broker
}

func (r *Runner) Pause() {
	r.paused.Store(true)
	r.logger.Info("job runner paused")
}

func (r *Runner) Resume() {
	r.paused.Store(false)
	r.logger.Info("job runner resumed")
}

func (r *Runner) IsPaused() bool {
	return r.paused.Load()
}

func (r *Runner) IsRunning() bool {
	return r.running.Load()
}

// ActiveJobs returns the number of jobs running in this process.
func (r *Runner) ActiveJobs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inflight)
}
