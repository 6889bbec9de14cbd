// Package ai talks to an OpenAI-compatible API for transcription and
// cutting-guide generation, and provides an offline guide generator.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"

	"github.com/douglasnoga/editor-ia/internal/transcript"
)

const (
	DefaultBaseURL      = "https://api.openai.com/v1"
	DefaultModel        = "gpt-4o-mini"
	DefaultWhisperModel = "whisper-1"
	DefaultRPM          = 50

	// MaxUploadBytes is the transcription endpoint's file size limit.
	MaxUploadBytes = 25 * 1024 * 1024

	maxErrorBody = 4096
)

// ErrFileTooLarge is returned for audio above MaxUploadBytes; split it first.
var ErrFileTooLarge = errors.New("audio file exceeds upload limit")

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ai api: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable returns true for server errors and rate limiting. Client
// errors are permanent.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

type Config struct {
	BaseURL           string
	APIKey            string
	Model             string
	WhisperModel      string
	RequestsPerMinute int
	Timeout           time.Duration
	Logger            *slog.Logger
}

// Client is safe for concurrent use; all requests share one rate limiter.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.WhisperModel == "" {
		cfg.WhisperModel = DefaultWhisperModel
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = DefaultRPM
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1),
		logger:     cfg.Logger,
	}
}

type verboseTranscription struct {
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Text     string  `json:"text"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
	Words []transcript.Word `json:"words"`
}

// Transcribe uploads audioPath and returns a timestamped transcript.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (*transcript.Transcript, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat audio: %w", err)
	}
	if stat.Size() > MaxUploadBytes {
		return nil, fmt.Errorf("%w: %s", ErrFileTooLarge, humanize.Bytes(uint64(stat.Size())))
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fields := [][2]string{
		{"model", c.cfg.WhisperModel},
		{"response_format", "verbose_json"},
		{"timestamp_granularities[]", "word"},
		{"timestamp_granularities[]", "segment"},
	}
	for _, kv := range fields {
		if err := mw.WriteField(kv[0], kv[1]); err != nil {
			return nil, fmt.Errorf("write form field: %w", err)
		}
	}
	part, err := mw.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("copy audio: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	c.logger.Info("uploading audio for transcription",
		"file", filepath.Base(audioPath),
		"size", humanize.Bytes(uint64(stat.Size())),
		"model", c.cfg.WhisperModel,
	)

	var out verboseTranscription
	if err := c.do(ctx, "/audio/transcriptions", mw.FormDataContentType(), &body, &out); err != nil {
		return nil, err
	}

	t := &transcript.Transcript{
		Language: out.Language,
		Duration: out.Duration,
		Text:     strings.TrimSpace(out.Text),
		Words:    out.Words,
	}
	for _, s := range out.Segments {
		t.Entries = append(t.Entries, transcript.Entry{Start: s.Start, End: s.End, Text: strings.TrimSpace(s.Text)})
	}
	t.EnsureEntries()
	t.Sort()

	c.logger.Info("transcription received", "entries", len(t.Entries), "words", len(t.Words), "language", t.Language)
	return t, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// GenerateGuide asks the chat model for a cutting guide JSON document.
func (c *Client) GenerateGuide(ctx context.Context, t *transcript.Transcript, profile string) ([]byte, error) {
	if t == nil || (t.Empty() && strings.TrimSpace(t.Text) == "") {
		return nil, errors.New("transcript is empty")
	}

	req := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: SystemPrompt(profile)},
			{Role: "user", Content: FormatTranscript(t)},
		},
	}
	req.ResponseFormat.Type = "json_object"

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	c.logger.Info("requesting cutting guide", "model", c.cfg.Model, "profile", profile, "entries", len(t.Entries))

	var out chatResponse
	if err := c.do(ctx, "/chat/completions", "application/json", bytes.NewReader(payload), &out); err != nil {
		return nil, err
	}
	if len(out.Choices) == 0 {
		return nil, errors.New("chat completion returned no choices")
	}

	content := strings.TrimSpace(out.Choices[0].Message.Content)
	if !json.Valid([]byte(content)) {
		return nil, fmt.Errorf("chat completion is not valid JSON (%d bytes)", len(content))
	}
	return []byte(content), nil
}

func (c *Client) do(ctx context.Context, path, contentType string, body io.Reader, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn("ai request failed", "path", path, "status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	c.logger.Debug("ai request complete", "path", path, "duration_ms", time.Since(start).Milliseconds())
	return nil
}
