package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/douglasnoga/editor-ia/internal/ai"
	"github.com/douglasnoga/editor-ia/internal/jobs"
	"github.com/douglasnoga/editor-ia/internal/logging"
	"github.com/douglasnoga/editor-ia/internal/orchestrator"
)

var (
	processProfile    string
	processJobs       int
	processWorkDir    string
	processTranscript string
)

var processCmd = &cobra.Command{
	Use:   "process <recording>...",
	Short: "Process recordings into timelines without the API",
	Long: `Process runs the full pipeline for each recording in the foreground: audio
extraction, transcription, guide generation, alignment and timeline export.
Artifacts are written to a per-recording directory under the work dir.

With --transcript, a previously saved transcript JSON file is used instead of
extracting and transcribing audio. This works without an API key: the guide
is then built by the offline generator.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runProcess,
}

func init() {
	processCmd.Flags().StringVar(&processProfile, "profile", "", "guide profile: "+fmt.Sprint(ai.Profiles)+" (default from EDITORIA_GUIDE_PROFILE)")
	processCmd.Flags().IntVarP(&processJobs, "jobs", "j", 0, "recordings processed concurrently (default from EDITORIA_MAX_CONCURRENT_JOBS)")
	processCmd.Flags().StringVar(&processWorkDir, "work-dir", "", "artifact root (default from EDITORIA_WORK_DIR)")
	processCmd.Flags().StringVar(&processTranscript, "transcript", "", "transcript JSON file to use instead of transcribing (single recording only)")
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if processProfile != "" && !ai.ValidProfile(processProfile) {
		return fmt.Errorf("unknown profile %q", processProfile)
	}

	workRoot := cfg.WorkDir()
	if processWorkDir != "" {
		workRoot = processWorkDir
	}
	if err := ensureDirs(workRoot); err != nil {
		return err
	}

	sources := make([]string, len(args))
	for i, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", arg, err)
		}
		if err := checkRecording(abs); err != nil {
			return err
		}
		sources[i] = abs
	}

	var transcriptPath string
	if processTranscript != "" {
		if len(sources) != 1 {
			return fmt.Errorf("--transcript needs exactly one recording, got %d", len(sources))
		}
		if transcriptPath, err = jobs.ResolveTranscriptFile(processTranscript); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink := orchestrator.ProgressFunc(func(jobID, message string, percent int, extras map[string]any) {
		logging.WithJobID(logger, jobID).Info(message, "percent", percent)
	})
	pipeline := newPipeline(cfg, newMediaRunner(cfg, logger), sink, logger)

	limit := cfg.MaxConcurrentJobs()
	if processJobs > 0 {
		limit = processJobs
	}

	results := make([]*orchestrator.Result, len(sources))
	failures := make([]error, len(sources))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, source := range sources {
		g.Go(func() error {
			id := jobs.NewID()
			res, err := pipeline.Run(ctx, orchestrator.Job{
				ID:             id,
				SourcePath:     source,
				WorkDir:        filepath.Join(workRoot, id),
				Profile:        processProfile,
				TranscriptPath: transcriptPath,
			})
			results[i], failures[i] = res, err
			return nil
		})
	}
	g.Wait()

	out := cmd.OutOrStdout()
	failed := 0
	for i, source := range sources {
		fmt.Fprintln(out, filepath.Base(source))
		if failures[i] != nil {
			failed++
			fmt.Fprintf(out, "  failed: %v\n", failures[i])
			continue
		}
		printResult(out, results[i])
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d recordings failed", failed, len(sources))
	}
	return ctx.Err()
}

func printResult(out io.Writer, res *orchestrator.Result) {
	fmt.Fprintf(out, "  timeline:   %s\n", res.TimelinePath)
	if res.EDLPath != "" {
		fmt.Fprintf(out, "  edl:        %s\n", res.EDLPath)
	}
	fmt.Fprintf(out, "  guide:      %s\n", res.GuidePath)
	fmt.Fprintf(out, "  clips:      %d (%s of %s source)\n",
		res.Stats.Clips,
		formatSeconds(res.Stats.DurationSeconds),
		formatSeconds(res.Stats.SourceSeconds),
	)
	fmt.Fprintf(out, "  alignment:  %s (offset %ss)\n", res.Decision, humanize.FtoaWithDigits(res.Alignment.OffsetSeconds, 2))
	if res.Regenerated {
		fmt.Fprintln(out, "  guide was regenerated after drift")
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(out, "  warning: %s\n", w)
	}
}

func formatSeconds(s float64) string {
	return humanize.FtoaWithDigits(s, 1) + "s"
}

func checkRecording(path string) error {
	if !jobs.IsMediaFile(path) {
		return fmt.Errorf("unsupported file type: %s", filepath.Ext(path))
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return nil
}
