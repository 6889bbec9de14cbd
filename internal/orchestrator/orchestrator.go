// Package orchestrator drives one recording through extraction,
// transcription, guide generation, alignment verification and export.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/douglasnoga/editor-ia/internal/alignment"
	"github.com/douglasnoga/editor-ia/internal/export"
	"github.com/douglasnoga/editor-ia/internal/guide"
	"github.com/douglasnoga/editor-ia/internal/transcript"
)

// Extractor pulls a speech-ready audio track out of a media container.
type Extractor interface {
	ExtractAudio(ctx context.Context, sourcePath, workDir string) (string, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (*transcript.Transcript, error)
}

// Generator returns a raw guide document in one of the shapes guide.Normalize
// recognizes.
type Generator interface {
	GenerateGuide(ctx context.Context, t *transcript.Transcript, profile string) ([]byte, error)
}

type Prober interface {
	Probe(ctx context.Context, sourcePath string) (export.MediaInfo, error)
}

// ProgressSink receives fire-and-forget progress reports.
type ProgressSink interface {
	Report(jobID, message string, percent int, extras map[string]any)
}

// ProgressFunc adapts a function to ProgressSink.
type ProgressFunc func(jobID, message string, percent int, extras map[string]any)

func (f ProgressFunc) Report(jobID, message string, percent int, extras map[string]any) {
	f(jobID, message, percent, extras)
}

type Deps struct {
	Extractor   Extractor
	Transcriber Transcriber
	Generator   Generator
	Prober      Prober
	Sink        ProgressSink
}

type Options struct {
	Verifier      alignment.Verifier
	SnapThreshold time.Duration
	GuideProfile  string
	WriteEDL      bool
}

// Job is one pipeline run. WorkDir receives every artifact. A non-empty
// TranscriptPath names a transcript file that replaces extraction and
// transcription.
type Job struct {
	ID             string
	SourcePath     string
	WorkDir        string
	Profile        string
	TranscriptPath string
}

// Result describes how a run ended. LastStage is the last stage that
// completed successfully.
type Result struct {
	State          State              `json:"state"`
	LastStage      State              `json:"last_stage"`
	TranscriptPath string             `json:"transcript_path,omitempty"`
	GuidePath      string             `json:"guide_path,omitempty"`
	TimelinePath   string             `json:"timeline_path,omitempty"`
	EDLPath        string             `json:"edl_path,omitempty"`
	Alignment      alignment.Result   `json:"alignment"`
	Decision       alignment.Decision `json:"decision,omitempty"`
	Regenerated    bool               `json:"regenerated"`
	Stats          export.Stats       `json:"stats"`
	Warnings       []string           `json:"warnings,omitempty"`
}

// Pipeline is safe for concurrent use; every Run owns its own state.
type Pipeline struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
}

func New(deps Deps, opts Options, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if deps.Sink == nil {
		deps.Sink = ProgressFunc(func(string, string, int, map[string]any) {})
	}
	if opts.Verifier == (alignment.Verifier{}) {
		opts.Verifier = alignment.New(0, 0)
	}
	return &Pipeline{deps: deps, opts: opts, logger: logger}
}

// run carries the mutable state of a single job.
type run struct {
	p       *Pipeline
	job     Job
	logger  *slog.Logger
	result  *Result
	percent int
}

// Run executes job to a terminal state. On failure the returned error is a
// *StageError and the Result records the last successful stage.
func (p *Pipeline) Run(ctx context.Context, job Job) (*Result, error) {
	if job.Profile == "" {
		job.Profile = p.opts.GuideProfile
	}
	r := &run{
		p:      p,
		job:    job,
		logger: p.logger.With("job_id", job.ID),
		result: &Result{State: StatePending, LastStage: StatePending},
	}

	start := time.Now()
	err := r.execute(ctx)
	if err != nil {
		r.fail(err)
		return r.result, err
	}

	r.result.State = StateCompleted
	r.report(StateCompleted, "Timeline ready", StateCompleted.Percent(), map[string]any{
		ExtraGuidePath:    r.result.GuidePath,
		ExtraTimelinePath: r.result.TimelinePath,
	})
	r.logger.Info("pipeline completed",
		"duration_ms", time.Since(start).Milliseconds(),
		"clips", r.result.Stats.Clips,
		"regenerated", r.result.Regenerated,
	)
	return r.result, nil
}

func (r *run) execute(ctx context.Context) error {
	if err := os.MkdirAll(r.job.WorkDir, 0o755); err != nil {
		return &StageError{Stage: StateExtracting, Kind: KindMediaIO, Err: fmt.Errorf("create work dir: %w", err)}
	}

	var tr *transcript.Transcript
	var err error
	if r.job.TranscriptPath != "" {
		tr, err = r.loadTranscript(ctx)
	} else {
		tr, err = r.transcribe(ctx)
	}
	if err != nil {
		return err
	}
	tr.EnsureEntries()
	tr.Sort()
	r.result.TranscriptPath = export.ArtifactPath(r.job.WorkDir, r.job.SourcePath, "_transcript.json")
	if err := transcript.Save(r.result.TranscriptPath, tr); err != nil {
		return &StageError{Stage: StateTranscribing, Kind: KindMediaIO, Err: err}
	}
	r.done(StateTranscribing)

	// Guide generation
	if err := r.enter(ctx, StateGeneratingGuide, "Generating cutting guide"); err != nil {
		return err
	}
	g, err := r.generate(ctx, StateGeneratingGuide, tr)
	if err != nil {
		return err
	}
	r.done(StateGeneratingGuide)

	// Alignment
	if err := r.enter(ctx, StateVerifyingAlignment, "Verifying guide alignment"); err != nil {
		return err
	}
	verifier := r.p.opts.Verifier
	r.result.Alignment = verifier.Verify(g, tr)
	r.result.Decision = verifier.Decide(r.result.Alignment)
	r.logger.Info("alignment verified",
		"compatible", r.result.Alignment.Compatible,
		"offset_seconds", r.result.Alignment.OffsetSeconds,
		"decision", r.result.Decision,
	)
	r.report(StateVerifyingAlignment, alignmentMessage(r.result.Alignment, r.result.Decision), r.percent, map[string]any{
		ExtraOffsetSeconds: r.result.Alignment.OffsetSeconds,
		ExtraDecision:      string(r.result.Decision),
	})
	r.done(StateVerifyingAlignment)

	if r.result.Decision == alignment.Regenerate {
		if err := r.enter(ctx, StateRegeneratingGuide, "Regenerating cutting guide"); err != nil {
			return err
		}
		g, err = r.generate(ctx, StateRegeneratingGuide, tr)
		if err != nil {
			return err
		}
		if g.Empty() {
			return &StageError{Stage: StateRegeneratingGuide, Kind: KindGeneration, Err: errors.New("regenerated guide has no segments")}
		}
		r.result.Regenerated = true
		if again := verifier.Verify(g, tr); !again.Compatible {
			r.logger.Warn("regenerated guide still drifts", "offset_seconds", again.OffsetSeconds)
		}
		r.done(StateRegeneratingGuide)
	}

	return r.export(ctx, g)
}

func (r *run) transcribe(ctx context.Context) (*transcript.Transcript, error) {
	if err := r.enter(ctx, StateExtracting, "Extracting audio"); err != nil {
		return nil, err
	}
	audioPath, err := r.p.deps.Extractor.ExtractAudio(ctx, r.job.SourcePath, r.job.WorkDir)
	if err != nil {
		return nil, &StageError{Stage: StateExtracting, Kind: KindMediaIO, Err: err}
	}
	defer func() {
		if err := os.Remove(audioPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			r.logger.Debug("cannot remove extracted audio", "error", err)
		}
	}()
	r.done(StateExtracting)

	if err := r.enter(ctx, StateTranscribing, "Transcribing audio"); err != nil {
		return nil, err
	}
	tr, err := r.p.deps.Transcriber.Transcribe(ctx, audioPath)
	if err != nil {
		return nil, &StageError{Stage: StateTranscribing, Kind: KindTranscription, Err: err}
	}
	if tr == nil {
		return nil, &StageError{Stage: StateTranscribing, Kind: KindTranscription, Err: errors.New("transcriber returned no transcript")}
	}
	return tr, nil
}

// loadTranscript reads a previously produced transcript instead of running
// extraction and transcription.
func (r *run) loadTranscript(ctx context.Context) (*transcript.Transcript, error) {
	if err := r.enter(ctx, StateTranscribing, "Loading transcript"); err != nil {
		return nil, err
	}
	tr, err := transcript.Load(r.job.TranscriptPath)
	if err != nil {
		return nil, &StageError{Stage: StateTranscribing, Kind: KindTranscription, Err: err}
	}
	tr.EnsureEntries()
	if tr.Empty() {
		return nil, &StageError{Stage: StateTranscribing, Kind: KindTranscription, Err: fmt.Errorf("transcript %s is empty", r.job.TranscriptPath)}
	}
	r.logger.Info("transcript loaded", "path", r.job.TranscriptPath, "entries", len(tr.Entries))
	return tr, nil
}

func (r *run) generate(ctx context.Context, stage State, tr *transcript.Transcript) (*guide.CuttingGuide, error) {
	raw, err := r.p.deps.Generator.GenerateGuide(ctx, tr, r.job.Profile)
	if err != nil {
		return nil, &StageError{Stage: stage, Kind: KindGeneration, Err: err}
	}
	g, err := guide.Normalize(raw, r.logger)
	if err != nil {
		// An unrecognized document still yields an empty guide; the
		// alignment decision handles it.
		r.logger.Warn("guide did not match a known schema", "error", err)
	}
	r.result.Warnings = append(r.result.Warnings, g.Warnings...)
	r.logger.Info("guide normalized",
		"stage", stage,
		"source_format", g.SourceFormat,
		"segments", len(g.Segments),
	)
	return g, nil
}

func (r *run) export(ctx context.Context, g *guide.CuttingGuide) error {
	if err := r.enter(ctx, StateExporting, "Exporting timeline"); err != nil {
		return err
	}

	guidePath := export.ArtifactPath(r.job.WorkDir, r.job.SourcePath, "_guide.json")
	if err := guide.WriteFile(guidePath, g); err != nil {
		return &StageError{Stage: StateExporting, Kind: KindExport, Err: err}
	}
	r.result.GuidePath = guidePath
	r.report(StateExporting, "Cutting guide saved", r.percent, map[string]any{ExtraGuidePath: guidePath})

	info, err := r.p.deps.Prober.Probe(ctx, r.job.SourcePath)
	if err != nil {
		return &StageError{Stage: StateExporting, Kind: KindMediaIO, Err: err}
	}
	info.Path = r.job.SourcePath

	tl, err := export.Build(g, info, export.Options{SnapThreshold: r.p.opts.SnapThreshold, Logger: r.logger})
	if err != nil {
		return &StageError{Stage: StateExporting, Kind: KindExport, Err: err}
	}
	r.result.Warnings = append(r.result.Warnings, tl.Warnings...)
	r.result.Stats = tl.Stats()

	timelinePath := export.ArtifactPath(r.job.WorkDir, r.job.SourcePath, "_AI_Cuts.xml")
	if err := export.WriteXMEML(timelinePath, tl); err != nil {
		return &StageError{Stage: StateExporting, Kind: KindExport, Err: err}
	}
	r.result.TimelinePath = timelinePath
	extras := map[string]any{ExtraGuidePath: guidePath, ExtraTimelinePath: timelinePath}

	if r.p.opts.WriteEDL {
		edlPath := export.ArtifactPath(r.job.WorkDir, r.job.SourcePath, "_AI_Cuts.edl")
		if err := export.WriteEDL(edlPath, tl); err != nil {
			return &StageError{Stage: StateExporting, Kind: KindExport, Err: err}
		}
		r.result.EDLPath = edlPath
		extras[ExtraEDLPath] = edlPath
	}

	r.report(StateExporting, "Timeline written", percentTimelineWritten, extras)
	r.done(StateExporting)
	return nil
}

// enter checks for cancellation before moving into stage.
func (r *run) enter(ctx context.Context, stage State, message string) error {
	if err := ctx.Err(); err != nil {
		return &StageError{Stage: stage, Kind: KindCanceled, Err: err}
	}
	r.result.State = stage
	r.report(stage, message, stage.Percent(), nil)
	return nil
}

func (r *run) done(stage State) {
	r.result.LastStage = stage
}

func (r *run) fail(err error) {
	stage := r.result.State
	var se *StageError
	if errors.As(err, &se) {
		stage = se.Stage
	}
	r.result.State = StateFailed
	r.logger.Error("pipeline failed", "stage", stage, "last_stage", r.result.LastStage, "error", err)
	r.report(StateFailed, fmt.Sprintf("Failed while %s: %v", stageVerb(stage), err), r.percent, map[string]any{
		ExtraStage: string(r.result.LastStage),
	})
}

// report never lets the percentage move backwards.
func (r *run) report(stage State, message string, percent int, extras map[string]any) {
	if percent < r.percent {
		percent = r.percent
	}
	r.percent = percent
	r.logger.Debug("progress", "stage", stage, "percent", percent, "message", message)
	r.p.deps.Sink.Report(r.job.ID, message, percent, extras)
}

func alignmentMessage(res alignment.Result, d alignment.Decision) string {
	switch d {
	case alignment.Accept:
		return "Guide aligned with transcript"
	case alignment.Regenerate:
		if res.GuideEmpty {
			return "Guide has no usable segments"
		}
		return fmt.Sprintf("Guide drifted %.1fs from transcript", res.OffsetSeconds)
	default:
		return fmt.Sprintf("Tolerating %.1fs drift", res.OffsetSeconds)
	}
}

func stageVerb(s State) string {
	switch s {
	case StateExtracting:
		return "extracting audio"
	case StateTranscribing:
		return "transcribing"
	case StateGeneratingGuide:
		return "generating the guide"
	case StateVerifyingAlignment:
		return "verifying alignment"
	case StateRegeneratingGuide:
		return "regenerating the guide"
	case StateExporting:
		return "exporting"
	default:
		return string(s)
	}
}
