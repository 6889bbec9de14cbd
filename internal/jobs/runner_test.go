package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/douglasnoga/editor-ia/internal/orchestrator"
)

// fakePipeline reports through the runner the way the orchestrator does.
type fakePipeline struct {
	sink  orchestrator.ProgressSink
	calls atomic.Int32
	runFn func(ctx context.Context, job orchestrator.Job) (*orchestrator.Result, error)
}

func (f *fakePipeline) Run(ctx context.Context, job orchestrator.Job) (*orchestrator.Result, error) {
	f.calls.Add(1)
	if f.runFn != nil {
		return f.runFn(ctx, job)
	}
	f.sink.Report(job.ID, "Extracting audio", 5, nil)
	f.sink.Report(job.ID, "Timeline written", 90, map[string]any{orchestrator.ExtraTimelinePath: job.WorkDir + "/t.xml"})
	f.sink.Report(job.ID, "Timeline ready", 100, nil)
	return &orchestrator.Result{
		State:        orchestrator.StateCompleted,
		LastStage:    orchestrator.StateExporting,
		GuidePath:    job.WorkDir + "/g.json",
		TimelinePath: job.WorkDir + "/t.xml",
	}, nil
}

func setupRunnerTest(t *testing.T, maxConcurrent int) (*Runner, *fakePipeline, Repository) {
	t.Helper()
	repo := setupTestDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	runner := NewRunner(repo, NewBroker(), maxConcurrent, logger)
	fake := &fakePipeline{sink: runner}
	runner.SetPipeline(fake)
	return runner, fake, repo
}

func TestRunner_ProcessCompletes(t *testing.T) {
	runner, fake, repo := setupRunnerTest(t, 1)
	ctx := context.Background()
	job := createJob(t, repo, "j1", time.Now())

	events, unsubscribe := runner.Broker().Subscribe(job.ID)
	defer unsubscribe()

	runner.process(ctx, job)

	if fake.calls.Load() != 1 {
		t.Fatalf("pipeline calls = %d", fake.calls.Load())
	}
	got, _ := repo.GetJob(ctx, job.ID)
	if got.Status != StatusCompleted || got.Progress != 100 || got.Stage != "completed" {
		t.Errorf("job = %+v", got)
	}
	if got.TimelinePath != "/work/j1/t.xml" || got.GuidePath != "/work/j1/g.json" {
		t.Errorf("artifacts = %q %q", got.GuidePath, got.TimelinePath)
	}
	if len(got.Result) == 0 {
		t.Error("result JSON not stored")
	}

	stored, _ := repo.ListEvents(ctx, job.ID, 0)
	if len(stored) != 3 {
		t.Errorf("stored events = %d, want 3", len(stored))
	}

	var last Event
	n := 0
	for len(events) > 0 {
		last = <-events
		n++
	}
	if n != 4 || !last.Terminal || last.Status != StatusCompleted {
		t.Errorf("published %d events, last = %+v", n, last)
	}
}

func TestRunner_ProcessFailureKeepsProgress(t *testing.T) {
	runner, fake, repo := setupRunnerTest(t, 1)
	ctx := context.Background()
	job := createJob(t, repo, "j1", time.Now())

	fake.runFn = func(ctx context.Context, j orchestrator.Job) (*orchestrator.Result, error) {
		fake.sink.Report(j.ID, "Generating cutting guide", 30, nil)
		fake.sink.Report(j.ID, "Failed while generating the guide: boom", 30,
			map[string]any{orchestrator.ExtraStage: string(orchestrator.StateTranscribing)})
		return &orchestrator.Result{State: orchestrator.StateFailed, LastStage: orchestrator.StateTranscribing},
			&orchestrator.StageError{Stage: orchestrator.StateGeneratingGuide, Kind: orchestrator.KindGeneration, Err: errors.New("boom")}
	}

	runner.process(ctx, job)

	got, _ := repo.GetJob(ctx, job.ID)
	if got.Status != StatusFailed || got.Progress != 30 || got.Stage != "transcribing" {
		t.Errorf("job = %+v", got)
	}
	if got.Error == "" {
		t.Error("error message not stored")
	}
}

func TestRunner_PassesTranscriptPath(t *testing.T) {
	runner, fake, repo := setupRunnerTest(t, 1)
	job := createJob(t, repo, "j1", time.Now())
	job.TranscriptPath = "/media/j1_transcript.json"

	var got string
	fake.runFn = func(ctx context.Context, j orchestrator.Job) (*orchestrator.Result, error) {
		got = j.TranscriptPath
		return &orchestrator.Result{State: orchestrator.StateCompleted, LastStage: orchestrator.StateExporting}, nil
	}

	runner.process(context.Background(), job)

	if got != job.TranscriptPath {
		t.Errorf("pipeline TranscriptPath = %q, want %q", got, job.TranscriptPath)
	}
}

func TestRunner_SkipsJobsNoLongerPending(t *testing.T) {
	runner, fake, repo := setupRunnerTest(t, 1)
	ctx := context.Background()
	job := createJob(t, repo, "j1", time.Now())
	if err := repo.UpdateJobStatus(ctx, job.ID, StatusCompleted, ""); err != nil {
		t.Fatal(err)
	}

	runner.process(ctx, job)

	if fake.calls.Load() != 0 {
		t.Error("pipeline ran for a job that is not pending")
	}
}

func TestRunner_Cancel(t *testing.T) {
	runner, fake, repo := setupRunnerTest(t, 1)
	job := createJob(t, repo, "j1", time.Now())

	started := make(chan struct{})
	fake.runFn = func(ctx context.Context, j orchestrator.Job) (*orchestrator.Result, error) {
		close(started)
		<-ctx.Done()
		return &orchestrator.Result{State: orchestrator.StateFailed},
			&orchestrator.StageError{Stage: orchestrator.StateTranscribing, Kind: orchestrator.KindCanceled, Err: ctx.Err()}
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	done := make(chan struct{})
	go func() {
		runner.Start(ctx)
		close(done)
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("job never started")
	}
	if !runner.Cancel(job.ID) {
		t.Fatal("Cancel() = false for a running job")
	}
	waitForStatus(t, repo, job.ID, StatusCanceled)

	if runner.Cancel("unknown") {
		t.Error("Cancel() = true for an unknown job")
	}
	stop()
	<-done
}

func TestRunner_CancelDuringSubprocess(t *testing.T) {
	runner, fake, repo := setupRunnerTest(t, 1)
	job := createJob(t, repo, "j1", time.Now())

	started := make(chan struct{})
	fake.runFn = func(ctx context.Context, j orchestrator.Job) (*orchestrator.Result, error) {
		close(started)
		<-ctx.Done()
		// A killed ffmpeg surfaces as an exec error, not context.Canceled.
		return &orchestrator.Result{State: orchestrator.StateFailed},
			&orchestrator.StageError{Stage: orchestrator.StateExtracting, Kind: orchestrator.KindMediaIO, Err: errors.New("signal: killed")}
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	done := make(chan struct{})
	go func() {
		runner.Start(ctx)
		close(done)
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("job never started")
	}
	if !runner.Cancel(job.ID) {
		t.Fatal("Cancel() = false for a running job")
	}
	waitForStatus(t, repo, job.ID, StatusCanceled)

	stop()
	<-done
}

func TestRunner_StartRunsPendingConcurrently(t *testing.T) {
	runner, fake, repo := setupRunnerTest(t, 2)
	runner.SetPollInterval(10 * time.Millisecond)

	var active, peak atomic.Int32
	release := make(chan struct{})
	fake.runFn = func(ctx context.Context, j orchestrator.Job) (*orchestrator.Result, error) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		active.Add(-1)
		return &orchestrator.Result{State: orchestrator.StateCompleted}, nil
	}

	base := time.Now()
	for i, id := range []string{"a", "b", "c"} {
		createJob(t, repo, id, base.Add(time.Duration(i)*time.Second))
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	done := make(chan struct{})
	go func() {
		runner.Start(ctx)
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for peak.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("peak concurrency = %d, want 2", peak.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	if runner.ActiveJobs() > 2 {
		t.Errorf("ActiveJobs = %d, limit is 2", runner.ActiveJobs())
	}
	close(release)

	for _, id := range []string{"a", "b", "c"} {
		waitForStatus(t, repo, id, StatusCompleted)
	}
	if peak.Load() != 2 {
		t.Errorf("peak concurrency = %d, want 2", peak.Load())
	}
	stop()
	<-done
	if runner.IsRunning() {
		t.Error("runner still marked running after stop")
	}
}

func TestRunner_PausedDoesNotDispatch(t *testing.T) {
	runner, fake, repo := setupRunnerTest(t, 1)
	runner.SetPollInterval(10 * time.Millisecond)
	runner.Pause()
	createJob(t, repo, "j1", time.Now())

	ctx, stop := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer stop()
	runner.Start(ctx)

	if fake.calls.Load() != 0 {
		t.Error("paused runner dispatched a job")
	}
	if !runner.IsPaused() {
		t.Error("IsPaused() = false")
	}
}

func waitForStatus(t *testing.T, repo Repository, id, status string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := repo.GetJob(context.Background(), id)
		if err == nil && job != nil && job.Status == status {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	job, _ := repo.GetJob(context.Background(), id)
	t.Fatalf("job %s status = %+v, want %s", id, job, status)
}
