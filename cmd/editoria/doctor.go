package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/douglasnoga/editor-ia/internal/config"
	"github.com/douglasnoga/editor-ia/internal/media"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that ffmpeg, ffprobe and the model API are configured",
	Args:  cobra.NoArgs,
	RunE:  runDoctor,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "editoria %s (commit %s, built %s)\n", config.Version, config.GitCommit, config.BuildTime)
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(versionCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.ProbeTimeout())
	defer cancel()

	caps, err := media.NewCachedDoctor(newMediaRunner(cfg, logger), logger).Refresh(ctx)
	if err != nil {
		return fmt.Errorf("doctor failed: %w", err)
	}

	out := cmd.OutOrStdout()
	printTool(out, "ffmpeg", caps.FFmpeg)
	printTool(out, "ffprobe", caps.FFprobe)
	if cfg.OpenAIAPIKey() != "" {
		fmt.Fprintf(out, "%-9s ok  %s (%s)\n", "api", cfg.OpenAIBaseURL(), cfg.OpenAIModel())
	} else {
		fmt.Fprintf(out, "%-9s --  %s not set; local guide generator only\n", "api", config.EnvOpenAIAPIKey)
	}

	if !caps.Ready() {
		return fmt.Errorf("media tools missing")
	}
	return nil
}

func printTool(out io.Writer, name string, t media.ToolInfo) {
	if t.Available {
		fmt.Fprintf(out, "%-9s ok  %s %s\n", name, t.Path, t.Version)
		return
	}
	fmt.Fprintf(out, "%-9s --  %s\n", name, t.Error)
}
