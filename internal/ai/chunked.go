package ai

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/douglasnoga/editor-ia/internal/transcript"
)

// FileTranscriber transcribes one audio file.
type FileTranscriber interface {
	Transcribe(ctx context.Context, audioPath string) (*transcript.Transcript, error)
}

// Splitter cuts audio into fixed-length chunks.
type Splitter interface {
	SplitAudio(ctx context.Context, audioPath, outDir string, chunkSeconds int) ([]string, error)
}

type ChunkedConfig struct {
	ChunkSeconds  int
	MaxConcurrent int
	MaxBytes      int64
	Logger        *slog.Logger
}

// ChunkedTranscriber sends small files straight through and splits larger
// ones, transcribing the chunks concurrently and stitching the results back
// onto one timeline.
type ChunkedTranscriber struct {
	inner    FileTranscriber
	splitter Splitter
	cfg      ChunkedConfig
}

func NewChunkedTranscriber(inner FileTranscriber, splitter Splitter, cfg ChunkedConfig) *ChunkedTranscriber {
	if cfg.ChunkSeconds <= 0 {
		cfg.ChunkSeconds = 600
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = MaxUploadBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ChunkedTranscriber{inner: inner, splitter: splitter, cfg: cfg}
}

func (c *ChunkedTranscriber) Transcribe(ctx context.Context, audioPath string) (*transcript.Transcript, error) {
	info, err := os.Stat(audioPath)
	if err != nil {
		return nil, fmt.Errorf("stat audio: %w", err)
	}
	if info.Size() <= c.cfg.MaxBytes {
		return c.inner.Transcribe(ctx, audioPath)
	}

	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	dir := filepath.Join(filepath.Dir(audioPath), base+"_chunks")
	defer os.RemoveAll(dir)

	chunks, err := c.splitter.SplitAudio(ctx, audioPath, dir, c.cfg.ChunkSeconds)
	if err != nil {
		return nil, fmt.Errorf("split audio: %w", err)
	}
	c.cfg.Logger.Info("transcribing in chunks",
		"chunks", len(chunks),
		"chunk_seconds", c.cfg.ChunkSeconds,
		"max_concurrent", c.cfg.MaxConcurrent,
	)

	parts := make([]*transcript.Transcript, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.MaxConcurrent)

	for i, chunk := range chunks {
		g.Go(func() error {
			t, err := c.inner.Transcribe(gctx, chunk)
			if err != nil {
				return fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
			}
			t.Shift(float64(i * c.cfg.ChunkSeconds))
			parts[i] = t
			c.cfg.Logger.Debug("chunk transcribed", "chunk", i+1, "entries", len(t.Entries))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return transcript.Merge(parts...), nil
}
