package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/douglasnoga/editor-ia/internal/ai"
	"github.com/douglasnoga/editor-ia/internal/alignment"
	"github.com/douglasnoga/editor-ia/internal/config"
	"github.com/douglasnoga/editor-ia/internal/media"
	"github.com/douglasnoga/editor-ia/internal/orchestrator"
	"github.com/douglasnoga/editor-ia/internal/transcript"
)

var errNoAPIKey = errors.New("transcription needs " + config.EnvOpenAIAPIKey + " to be set, or a transcript file")

// unavailableTranscriber fails every call; it stands in when no API key is
// configured so the pipeline stops at the transcription stage.
type unavailableTranscriber struct{}

func (unavailableTranscriber) Transcribe(ctx context.Context, audioPath string) (*transcript.Transcript, error) {
	return nil, errNoAPIKey
}

func newMediaRunner(cfg config.Config, logger *slog.Logger) *media.FFmpegRunner {
	return media.NewRunner(media.Config{
		FFmpegPath:     cfg.FFmpegPath(),
		FFprobePath:    cfg.FFprobePath(),
		ExtractTimeout: cfg.ExtractTimeout(),
		ProbeTimeout:   cfg.ProbeTimeout(),
		Logger:         logger,
	})
}

// newPipeline wires the media tools and the model client into an
// orchestrator. The local heuristic generator builds the guide when there is
// no API key or when the model call fails. Without a key, jobs need a
// transcript file.
func newPipeline(cfg config.Config, runner *media.FFmpegRunner, sink orchestrator.ProgressSink, logger *slog.Logger) *orchestrator.Pipeline {
	deps := orchestrator.Deps{
		Extractor: runner,
		Prober:    runner,
		Sink:      sink,
	}

	if cfg.OpenAIAPIKey() != "" {
		client := ai.NewClient(ai.Config{
			BaseURL:           cfg.OpenAIBaseURL(),
			APIKey:            cfg.OpenAIAPIKey(),
			Model:             cfg.OpenAIModel(),
			WhisperModel:      cfg.WhisperModel(),
			RequestsPerMinute: cfg.RateLimitRPM(),
			Logger:            logger,
		})
		deps.Transcriber = ai.NewChunkedTranscriber(client, runner, ai.ChunkedConfig{
			ChunkSeconds: int(cfg.ChunkSeconds()),
			Logger:       logger,
		})
		deps.Generator = ai.NewFallbackGenerator(client, ai.NewLocalGenerator(logger), logger)
	} else {
		logger.Warn("no API key configured; jobs need a transcript file and guides use the local generator",
			"env", config.EnvOpenAIAPIKey)
		deps.Transcriber = unavailableTranscriber{}
		deps.Generator = ai.NewLocalGenerator(logger)
	}

	return orchestrator.New(deps, orchestrator.Options{
		Verifier: alignment.New(
			cfg.AlignTolerance().Seconds(),
			cfg.DriftThreshold().Seconds(),
		),
		SnapThreshold: cfg.SnapThreshold(),
		GuideProfile:  cfg.GuideProfile(),
		WriteEDL:      true,
	}, logger)
}
