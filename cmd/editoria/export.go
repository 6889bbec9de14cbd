package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/douglasnoga/editor-ia/internal/export"
	"github.com/douglasnoga/editor-ia/internal/guide"
)

var (
	exportGuide    string
	exportSource   string
	exportFPS      float64
	exportDuration float64
	exportWidth    int
	exportHeight   int
	exportFormat   string
	exportOut      string
	exportProject  string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Build a timeline from an existing cutting guide",
	Long: `Export lays out the cuts of a guide JSON file against a source recording and
writes the timeline. When --fps or --duration is omitted the recording is
probed with ffprobe.`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportGuide, "guide", "g", "", "cutting guide JSON file")
	exportCmd.Flags().StringVarP(&exportSource, "source", "s", "", "source recording the guide refers to")
	exportCmd.Flags().Float64Var(&exportFPS, "fps", 0, "source frame rate (probed when omitted)")
	exportCmd.Flags().Float64Var(&exportDuration, "duration", 0, "source duration in seconds (probed when omitted)")
	exportCmd.Flags().IntVar(&exportWidth, "width", 0, "frame width (default 1920)")
	exportCmd.Flags().IntVar(&exportHeight, "height", 0, "frame height (default 1080)")
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "xmeml", "output format: xmeml, edl or both")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output directory (default: next to the source)")
	exportCmd.Flags().StringVar(&exportProject, "project", "", "project name (default AI_Edit_<source>)")
	exportCmd.MarkFlagRequired("guide")
	exportCmd.MarkFlagRequired("source")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	format := strings.ToLower(exportFormat)
	if format != export.FormatXMEML && format != export.FormatEDL && format != "both" {
		return fmt.Errorf("unknown format %q", exportFormat)
	}

	raw, err := os.ReadFile(exportGuide)
	if err != nil {
		return fmt.Errorf("read guide: %w", err)
	}
	g, err := guide.Normalize(raw, logger)
	if err != nil {
		return err
	}
	if len(g.Cuts()) == 0 {
		return fmt.Errorf("guide %s has no cut segments", exportGuide)
	}

	source, err := filepath.Abs(exportSource)
	if err != nil {
		return fmt.Errorf("resolve source: %w", err)
	}
	info := export.MediaInfo{
		Path:     source,
		FPS:      exportFPS,
		Duration: exportDuration,
		Width:    exportWidth,
		Height:   exportHeight,
	}
	if info.FPS <= 0 || info.Duration <= 0 {
		probed, err := newMediaRunner(cfg, logger).Probe(cmd.Context(), source)
		if err != nil {
			return fmt.Errorf("probe source (pass --fps and --duration to skip): %w", err)
		}
		if info.FPS <= 0 {
			info.FPS = probed.FPS
		}
		if info.Duration <= 0 {
			info.Duration = probed.Duration
		}
		if info.Width <= 0 || info.Height <= 0 {
			info.Width, info.Height = probed.Width, probed.Height
		}
	}

	outDir := exportOut
	if outDir == "" {
		outDir = filepath.Dir(source)
	}
	if err := ensureDirs(outDir); err != nil {
		return err
	}

	project := export.SanitizeName(exportProject, 120)
	tl, err := export.Build(g, info, export.Options{
		ProjectName:   project,
		SnapThreshold: cfg.SnapThreshold(),
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	base := project
	if base == "" {
		base = tl.SequenceName
	}

	out := cmd.OutOrStdout()
	if format != export.FormatEDL {
		path := filepath.Join(outDir, base+".xml")
		if err := export.WriteXMEML(path, tl); err != nil {
			return err
		}
		fmt.Fprintln(out, path)
	}
	if format != export.FormatXMEML {
		path := filepath.Join(outDir, base+".edl")
		if err := export.WriteEDL(path, tl); err != nil {
			return err
		}
		fmt.Fprintln(out, path)
	}

	stats := tl.Stats()
	logger.Info("timeline exported",
		"clips", stats.Clips,
		"markers", stats.Markers,
		"duration_frames", stats.DurationFrames,
		"warnings", len(g.Warnings)+len(tl.Warnings),
	)
	return nil
}
