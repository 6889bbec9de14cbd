package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/douglasnoga/editor-ia/internal/api"
	"github.com/douglasnoga/editor-ia/internal/artifacts"
	"github.com/douglasnoga/editor-ia/internal/config"
	"github.com/douglasnoga/editor-ia/internal/db"
	"github.com/douglasnoga/editor-ia/internal/jobs"
	"github.com/douglasnoga/editor-ia/internal/media"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local job API",
	Long: `Serve starts the HTTP API on 127.0.0.1. Submitted recordings are queued and
processed in the background; progress streams over server-sent events and the
finished timeline can be downloaded from the job.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (default from EDITORIA_PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	startTime := time.Now()

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if err := ensureDirs(cfg.DataDir(), cfg.WorkDir()); err != nil {
		return err
	}
	port := cfg.Port()
	if servePort > 0 {
		port = servePort
	}

	logger.Info("starting editoria", "version", config.Version, "data_dir", cfg.DataDir(), "db", cfg.DBPath())

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := jobs.NewRepository(database.Conn())

	authToken, err := ensureAuthToken(cmd.Context(), repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  editoria %s\n", config.Version)
	fmt.Fprintf(out, "  API URL:    http://127.0.0.1:%d\n", port)
	fmt.Fprintf(out, "  Auth Token: %s\n", authToken)
	fmt.Fprintln(out)

	mediaRunner := newMediaRunner(cfg, logger)
	doctor := media.NewCachedDoctor(mediaRunner, logger)

	probeCtx, probeCancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	if caps, err := doctor.Refresh(probeCtx); err != nil {
		logger.Warn("initial media tool probe failed", "error", err)
	} else {
		logger.Info("media tools detected",
			"ffmpeg", caps.FFmpeg.Available,
			"ffprobe", caps.FFprobe.Available,
			"ffmpeg_version", caps.FFmpeg.Version,
		)
	}
	probeCancel()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jobRunner := jobs.NewRunner(repo, jobs.NewBroker(), cfg.MaxConcurrentJobs(), logger)
	jobRunner.SetPipeline(newPipeline(cfg, mediaRunner, jobRunner, logger))

	runnerDone := make(chan struct{})
	go func() {
		defer close(runnerDone)
		jobRunner.Start(ctx)
	}()

	apiServer := api.NewServer(api.ServerConfig{
		Port:          port,
		Jobs:          jobs.NewService(repo, cfg.WorkDir(), cfg.GuideProfile(), logger),
		Runner:        jobRunner,
		Repository:    repo,
		Artifacts:     artifacts.NewServer(logger),
		Doctor:        doctor,
		SnapThreshold: cfg.SnapThreshold(),
		Logger:        logger,
		StartTime:     startTime,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- apiServer.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-serverErr:
		if err != nil {
			stop()
			<-runnerDone
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	select {
	case <-runnerDone:
	case <-shutdownCtx.Done():
		logger.Warn("jobs still running at shutdown; they will be marked interrupted on next start")
	}

	logger.Info("shutdown complete")
	return nil
}

// tokenStore is the slice of the job repository that holds agent settings.
type tokenStore interface {
	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

// ensureAuthToken returns the stored API token, generating and persisting a
// random one on first start.
func ensureAuthToken(ctx context.Context, store tokenStore) (string, error) {
	existing, err := store.GetConfig(ctx, api.AuthTokenKey)
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := store.SetConfig(ctx, api.AuthTokenKey, token); err != nil {
		return "", err
	}
	return token, nil
}
