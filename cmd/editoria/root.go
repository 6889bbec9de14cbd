package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/douglasnoga/editor-ia/internal/config"
	"github.com/douglasnoga/editor-ia/internal/logging"
)

var (
	logLevel       string
	logFormat      string
	verbose        bool
	snapMS         int
	driftThreshold float64
)

var rootCmd = &cobra.Command{
	Use:   "editoria",
	Short: "Turn a long recording into an editable NLE timeline",
	Long: `editoria transcribes a recording, asks a language model for a cutting guide,
checks the guide against the transcript and writes an FCP7 XML timeline (and
optionally a CMX 3600 EDL) that Premiere Pro, DaVinci Resolve or Final Cut can import.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (default from EDITORIA_LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: json or text (default from EDITORIA_LOG_FORMAT)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "shorthand for --log-level=debug")
	rootCmd.PersistentFlags().IntVar(&snapMS, "snap-ms", 0, "frame snap threshold in milliseconds (default from EDITORIA_SNAP_THRESHOLD_MS)")
	rootCmd.PersistentFlags().Float64Var(&driftThreshold, "drift-threshold", 0, "guide drift in seconds that triggers regeneration (default from EDITORIA_DRIFT_THRESHOLD_S)")
}

// flagConfig layers command-line overrides on top of the environment.
type flagConfig struct {
	config.Config
	snap  time.Duration
	drift time.Duration
}

func (c flagConfig) SnapThreshold() time.Duration {
	if c.snap > 0 {
		return c.snap
	}
	return c.Config.SnapThreshold()
}

func (c flagConfig) DriftThreshold() time.Duration {
	if c.drift > 0 {
		return c.drift
	}
	return c.Config.DriftThreshold()
}

// loadConfig reads the environment and builds the process logger, letting
// command-line flags override the configured level and format.
func loadConfig() (config.Config, *slog.Logger, error) {
	env, err := config.New()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg := flagConfig{
		Config: env,
		snap:   time.Duration(snapMS) * time.Millisecond,
		drift:  time.Duration(driftThreshold * float64(time.Second)),
	}

	level := cfg.LogLevel()
	if logLevel != "" {
		level = logLevel
	}
	if verbose {
		level = "debug"
	}
	format := cfg.LogFormat()
	if logFormat != "" {
		format = logFormat
	}

	return cfg, logging.NewLogger(level, format), nil
}

func ensureDirs(dirs ...string) error {
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}
