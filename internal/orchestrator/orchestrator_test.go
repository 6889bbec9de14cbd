package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/douglasnoga/editor-ia/internal/ai"
	"github.com/douglasnoga/editor-ia/internal/alignment"
	"github.com/douglasnoga/editor-ia/internal/export"
	"github.com/douglasnoga/editor-ia/internal/guide"
	"github.com/douglasnoga/editor-ia/internal/transcript"
)

type fakeExtractor struct {
	err   error
	calls int
}

func (f *fakeExtractor) ExtractAudio(_ context.Context, _, workDir string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	path := filepath.Join(workDir, "audio.wav")
	return path, os.WriteFile(path, []byte("RIFF"), 0o644)
}

type fakeTranscriber struct {
	t   *transcript.Transcript
	err error
}

func (f *fakeTranscriber) Transcribe(context.Context, string) (*transcript.Transcript, error) {
	return f.t, f.err
}

// fakeGenerator returns its responses in order, repeating the last.
type fakeGenerator struct {
	responses []string
	err       error
	calls     int
}

func (f *fakeGenerator) GenerateGuide(context.Context, *transcript.Transcript, string) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	i := f.calls - 1
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	return []byte(f.responses[i]), nil
}

type fakeProber struct {
	info export.MediaInfo
	err  error
}

func (f *fakeProber) Probe(context.Context, string) (export.MediaInfo, error) {
	return f.info, f.err
}

type report struct {
	message string
	percent int
	extras  map[string]any
}

type recordingSink struct {
	mu      sync.Mutex
	reports []report
}

func (s *recordingSink) Report(_ string, message string, percent int, extras map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, report{message, percent, extras})
}

func (s *recordingSink) last() report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reports[len(s.reports)-1]
}

const (
	alignedGuide = `{"segments":[{"start":"00:00:10","end":"00:00:20","text":"hello there"}]}`
	lateGuide    = `{"segments":[{"start":"00:00:45","end":"00:00:55","text":"hello there"}]}`
)

type harness struct {
	extractor   *fakeExtractor
	transcriber *fakeTranscriber
	generator   *fakeGenerator
	prober      *fakeProber
	sink        *recordingSink
	job         Job
}

func newHarness(t *testing.T, firstEntry float64, guides ...string) *harness {
	t.Helper()
	return &harness{
		extractor: &fakeExtractor{},
		transcriber: &fakeTranscriber{t: &transcript.Transcript{Entries: []transcript.Entry{
			{Start: firstEntry, End: firstEntry + 4, Text: "hello there"},
		}}},
		generator: &fakeGenerator{responses: guides},
		prober:    &fakeProber{info: export.MediaInfo{FPS: 30, Duration: 120}},
		sink:      &recordingSink{},
		job:       Job{ID: "job-1", SourcePath: "/media/talk.mp4", WorkDir: t.TempDir()},
	}
}

func (h *harness) pipeline(opts Options) *Pipeline {
	return New(Deps{
		Extractor:   h.extractor,
		Transcriber: h.transcriber,
		Generator:   h.generator,
		Prober:      h.prober,
		Sink:        h.sink,
	}, opts, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func assertMonotonic(t *testing.T, reports []report) {
	t.Helper()
	for i := 1; i < len(reports); i++ {
		if reports[i].percent < reports[i-1].percent {
			t.Fatalf("progress went backwards at %d: %d -> %d", i, reports[i-1].percent, reports[i].percent)
		}
	}
}

func TestRun_AlignedGuideCompletes(t *testing.T) {
	h := newHarness(t, 10, alignedGuide)

	res, err := h.pipeline(Options{}).Run(context.Background(), h.job)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.State != StateCompleted || res.LastStage != StateExporting {
		t.Errorf("state = %s, last stage = %s", res.State, res.LastStage)
	}
	if res.Decision != alignment.Accept || res.Regenerated {
		t.Errorf("decision = %s regenerated = %v", res.Decision, res.Regenerated)
	}
	if h.generator.calls != 1 {
		t.Errorf("generator calls = %d, want 1", h.generator.calls)
	}

	for _, p := range []string{res.GuidePath, res.TimelinePath, res.TranscriptPath} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("artifact %q missing: %v", p, err)
		}
	}
	if filepath.Base(res.GuidePath) != "talk_guide.json" || filepath.Base(res.TimelinePath) != "talk_AI_Cuts.xml" {
		t.Errorf("artifact names = %q, %q", res.GuidePath, res.TimelinePath)
	}
	if _, err := os.Stat(filepath.Join(h.job.WorkDir, "audio.wav")); !os.IsNotExist(err) {
		t.Error("extracted audio should be removed after the run")
	}

	assertMonotonic(t, h.sink.reports)
	last := h.sink.last()
	if last.percent != 100 || last.extras[ExtraTimelinePath] != res.TimelinePath {
		t.Errorf("final report = %+v", last)
	}
	if res.Stats.DurationFrames != 300 {
		t.Errorf("timeline frames = %d, want 300", res.Stats.DurationFrames)
	}
}

func TestRun_LargeDriftRegenerates(t *testing.T) {
	h := newHarness(t, 45, alignedGuide, lateGuide)

	res, err := h.pipeline(Options{}).Run(context.Background(), h.job)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Decision != alignment.Regenerate || !res.Regenerated {
		t.Fatalf("decision = %s regenerated = %v", res.Decision, res.Regenerated)
	}
	if res.Alignment.OffsetSeconds != 35 {
		t.Errorf("offset = %v, want 35", res.Alignment.OffsetSeconds)
	}
	if h.generator.calls != 2 {
		t.Errorf("generator calls = %d, want 2", h.generator.calls)
	}

	data, err := os.ReadFile(res.GuidePath)
	if err != nil {
		t.Fatal(err)
	}
	g, err := guide.Normalize(data, nil)
	if err != nil || len(g.Segments) != 1 || g.Segments[0].Start != 45 {
		t.Errorf("persisted guide should be the regenerated one, got %+v (err %v)", g, err)
	}

	sawRegenerate := false
	for _, r := range h.sink.reports {
		if r.percent == StateRegeneratingGuide.Percent() {
			sawRegenerate = true
		}
	}
	if !sawRegenerate {
		t.Error("no progress report for regeneration")
	}
	assertMonotonic(t, h.sink.reports)
}

func TestRun_ModerateDriftIsExportedAsIs(t *testing.T) {
	h := newHarness(t, 22, alignedGuide)

	res, err := h.pipeline(Options{}).Run(context.Background(), h.job)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Decision != alignment.ShiftIgnored || res.Regenerated {
		t.Errorf("decision = %s regenerated = %v", res.Decision, res.Regenerated)
	}
	if h.generator.calls != 1 {
		t.Errorf("generator calls = %d, want 1", h.generator.calls)
	}
}

func TestRun_EmptyGuideRegenerates(t *testing.T) {
	h := newHarness(t, 10, `{"nothing":"here"}`, alignedGuide)

	res, err := h.pipeline(Options{}).Run(context.Background(), h.job)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.Regenerated || res.Stats.Clips != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestRun_EmptyAfterRegenerationFails(t *testing.T) {
	h := newHarness(t, 10, `{"segments":[]}`)

	res, err := h.pipeline(Options{}).Run(context.Background(), h.job)
	if !errors.Is(err, ErrGeneration) {
		t.Fatalf("Run() error = %v, want ErrGeneration", err)
	}
	if res.State != StateFailed || res.LastStage != StateVerifyingAlignment {
		t.Errorf("state = %s last = %s", res.State, res.LastStage)
	}
}

func TestRun_StageFailures(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name      string
		breakIt   func(h *harness)
		sentinel  error
		lastStage State
	}{
		{"extraction", func(h *harness) { h.extractor.err = cause }, ErrMediaIO, StatePending},
		{"transcription", func(h *harness) { h.transcriber.err = cause }, ErrTranscription, StateExtracting},
		{"generation", func(h *harness) { h.generator.err = cause }, ErrGeneration, StateTranscribing},
		{"probe", func(h *harness) { h.prober.err = cause }, ErrMediaIO, StateVerifyingAlignment},
		{"bad media", func(h *harness) { h.prober.info.FPS = 0 }, ErrExport, StateVerifyingAlignment},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 10, alignedGuide)
			tt.breakIt(h)

			res, err := h.pipeline(Options{}).Run(context.Background(), h.job)
			if !errors.Is(err, tt.sentinel) {
				t.Fatalf("Run() error = %v, want %v", err, tt.sentinel)
			}
			var se *StageError
			if !errors.As(err, &se) {
				t.Fatalf("error %T is not a *StageError", err)
			}
			if res.State != StateFailed {
				t.Errorf("state = %s, want failed", res.State)
			}
			if res.LastStage != tt.lastStage {
				t.Errorf("last stage = %s, want %s", res.LastStage, tt.lastStage)
			}

			last := h.sink.last()
			if !strings.HasPrefix(last.message, "Failed while") {
				t.Errorf("terminal message = %q", last.message)
			}
			if last.extras[ExtraStage] != string(tt.lastStage) {
				t.Errorf("stage extra = %v", last.extras[ExtraStage])
			}
			assertMonotonic(t, h.sink.reports)
		})
	}
}

func TestRun_TranscriptFileWithLocalGenerator(t *testing.T) {
	h := newHarness(t, 10)
	h.extractor.err = errors.New("ffmpeg not available")
	h.transcriber.err = errors.New("no API key configured")

	input := filepath.Join(t.TempDir(), "talk.json")
	if err := transcript.Save(input, &transcript.Transcript{Entries: []transcript.Entry{
		{Start: 10, End: 14, Text: "Hello there."},
		{Start: 20, End: 26, Text: "This is the second part."},
	}}); err != nil {
		t.Fatal(err)
	}
	h.job.TranscriptPath = input

	p := New(Deps{
		Extractor:   h.extractor,
		Transcriber: h.transcriber,
		Generator:   ai.NewLocalGenerator(nil),
		Prober:      h.prober,
		Sink:        h.sink,
	}, Options{}, nil)

	res, err := p.Run(context.Background(), h.job)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.State != StateCompleted || res.Decision != alignment.Accept {
		t.Errorf("state = %s decision = %s", res.State, res.Decision)
	}
	if h.extractor.calls != 0 {
		t.Errorf("extractor calls = %d, want 0", h.extractor.calls)
	}
	if res.Stats.Clips != 1 || res.Stats.DurationFrames != 480 {
		t.Errorf("stats = %+v, want one 16s clip", res.Stats)
	}
	saved, err := transcript.Load(res.TranscriptPath)
	if err != nil || len(saved.Entries) != 2 {
		t.Errorf("transcript artifact = %+v (err %v)", saved, err)
	}
	assertMonotonic(t, h.sink.reports)
}

func TestRun_TranscriptFileErrors(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.json")
	if err := os.WriteFile(empty, []byte(`{"text": "", "entries": []}`), 0o644); err != nil {
		t.Fatal(err)
	}
	broken := filepath.Join(dir, "broken.json")
	if err := os.WriteFile(broken, []byte(`{"entries":`), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{filepath.Join(dir, "missing.json"), empty, broken} {
		t.Run(filepath.Base(path), func(t *testing.T) {
			h := newHarness(t, 10, alignedGuide)
			h.job.TranscriptPath = path

			res, err := h.pipeline(Options{}).Run(context.Background(), h.job)
			if !errors.Is(err, ErrTranscription) {
				t.Fatalf("Run() error = %v, want ErrTranscription", err)
			}
			if res.LastStage != StatePending || h.generator.calls != 0 {
				t.Errorf("last stage = %s, generator calls = %d", res.LastStage, h.generator.calls)
			}
		})
	}
}

func TestRun_CanceledBeforeStart(t *testing.T) {
	h := newHarness(t, 10, alignedGuide)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := h.pipeline(Options{}).Run(ctx, h.job)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if h.extractor.calls != 0 {
		t.Error("no stage should run after cancellation")
	}
	if res.State != StateFailed {
		t.Errorf("state = %s", res.State)
	}
}

func TestRun_WritesEDLWhenRequested(t *testing.T) {
	h := newHarness(t, 10, alignedGuide)

	res, err := h.pipeline(Options{WriteEDL: true}).Run(context.Background(), h.job)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	data, err := os.ReadFile(res.EDLPath)
	if err != nil {
		t.Fatalf("EDL not written: %v", err)
	}
	if !strings.Contains(string(data), "FCM: NON-DROP FRAME") {
		t.Errorf("unexpected EDL:\n%s", data)
	}
}

func TestStageError_Is(t *testing.T) {
	err := error(&StageError{Stage: StateExporting, Kind: KindExport, Err: &export.ExportError{Field: "fps"}})
	if !errors.Is(err, ErrExport) || errors.Is(err, ErrMediaIO) {
		t.Error("StageError should match only its own kind sentinel")
	}
	var ee *export.ExportError
	if !errors.As(err, &ee) {
		t.Error("StageError should unwrap to its cause")
	}
}
