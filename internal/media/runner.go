package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/douglasnoga/editor-ia/internal/export"
	"github.com/douglasnoga/editor-ia/internal/logging"
)

const (
	maxStderrBytes = 8 * 1024 // tail of stderr kept for diagnostics

	// Speech models want mono 16kHz PCM.
	extractSampleRate = "16000"
)

// ErrToolMissing is returned when ffmpeg or ffprobe cannot be found.
var ErrToolMissing = errors.New("media tool not found")

// Config holds the runner's configuration.
type Config struct {
	FFmpegPath     string // empty = look up "ffmpeg" on PATH
	FFprobePath    string // empty = look up "ffprobe" on PATH
	ExtractTimeout time.Duration
	SplitTimeout   time.Duration
	ProbeTimeout   time.Duration
	DoctorTimeout  time.Duration
	Logger         *slog.Logger
	DebugPaths     bool // log full paths instead of sanitized ones
}

func DefaultConfig(logger *slog.Logger) Config {
	return Config{
		ExtractTimeout: 30 * time.Minute,
		SplitTimeout:   10 * time.Minute,
		ProbeTimeout:   time.Minute,
		DoctorTimeout:  30 * time.Second,
		Logger:         logger,
	}
}

// FFmpegRunner shells out to ffmpeg and ffprobe. Binaries are resolved per
// call so a tool installed after startup is picked up.
type FFmpegRunner struct {
	cfg Config
}

func NewRunner(cfg Config) *FFmpegRunner {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	def := DefaultConfig(cfg.Logger)
	if cfg.ExtractTimeout <= 0 {
		cfg.ExtractTimeout = def.ExtractTimeout
	}
	if cfg.SplitTimeout <= 0 {
		cfg.SplitTimeout = def.SplitTimeout
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = def.ProbeTimeout
	}
	if cfg.DoctorTimeout <= 0 {
		cfg.DoctorTimeout = def.DoctorTimeout
	}
	return &FFmpegRunner{cfg: cfg}
}

// ExtractAudio writes a mono 16kHz WAV of sourcePath into workDir and
// returns its path.
func (r *FFmpegRunner) ExtractAudio(ctx context.Context, sourcePath, workDir string) (string, error) {
	if err := checkInput(sourcePath); err != nil {
		return "", err
	}
	ffmpeg, err := resolveTool(r.cfg.FFmpegPath, "ffmpeg")
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", fmt.Errorf("cannot create work dir: %w", err)
	}
	dst := export.ArtifactPath(workDir, sourcePath, "_audio.wav")

	ctx, cancel := context.WithTimeout(ctx, r.cfg.ExtractTimeout)
	defer cancel()

	res := r.exec(ctx, ffmpeg,
		"-y", "-i", sourcePath,
		"-vn", "-acodec", "pcm_s16le",
		"-ar", extractSampleRate, "-ac", "1",
		dst,
	)
	if !res.IsSuccess() {
		return "", fmt.Errorf("ffmpeg extract exited %d: %s", res.ExitCode, truncate(res.StderrTail, 512))
	}

	info, err := os.Stat(dst)
	if err != nil || info.Size() == 0 {
		return "", fmt.Errorf("ffmpeg produced no audio for %s", r.safePath(sourcePath))
	}
	r.cfg.Logger.Info("audio extracted",
		"output", r.safePath(dst),
		"size", humanize.Bytes(uint64(info.Size())),
		"duration_ms", res.Duration.Milliseconds(),
	)
	return dst, nil
}

// SplitAudio cuts audioPath into chunks of chunkSeconds inside outDir and
// returns them in playback order.
func (r *FFmpegRunner) SplitAudio(ctx context.Context, audioPath, outDir string, chunkSeconds int) ([]string, error) {
	if chunkSeconds <= 0 {
		return nil, fmt.Errorf("chunk length must be positive, got %d", chunkSeconds)
	}
	if err := checkInput(audioPath); err != nil {
		return nil, err
	}
	ffmpeg, err := resolveTool(r.cfg.FFmpegPath, "ffmpeg")
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create chunk dir: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	ext := filepath.Ext(audioPath)

	ctx, cancel := context.WithTimeout(ctx, r.cfg.SplitTimeout)
	defer cancel()

	res := r.exec(ctx, ffmpeg,
		"-y", "-i", audioPath,
		"-f", "segment",
		"-segment_time", strconv.Itoa(chunkSeconds),
		"-c", "copy",
		filepath.Join(outDir, base+"_chunk_%03d"+ext),
	)
	if !res.IsSuccess() {
		return nil, fmt.Errorf("ffmpeg split exited %d: %s", res.ExitCode, truncate(res.StderrTail, 512))
	}

	chunks, err := filepath.Glob(filepath.Join(outDir, base+"_chunk_*"+ext))
	if err != nil {
		return nil, fmt.Errorf("glob chunk files: %w", err)
	}
	if len(chunks) == 0 {
		return nil, errors.New("ffmpeg produced no chunk files")
	}
	sort.Strings(chunks)
	return chunks, nil
}

// Probe returns the metadata the timeline exporter needs.
func (r *FFmpegRunner) Probe(ctx context.Context, sourcePath string) (export.MediaInfo, error) {
	p, err := r.ProbeFile(ctx, sourcePath)
	if err != nil {
		return export.MediaInfo{}, err
	}
	return export.MediaInfo{
		Path:     sourcePath,
		FPS:      p.FPS,
		Duration: p.Duration,
		Width:    p.Width,
		Height:   p.Height,
	}, nil
}

// ProbeFile runs ffprobe and parses its JSON report.
func (r *FFmpegRunner) ProbeFile(ctx context.Context, path string) (*ProbeResult, error) {
	if err := checkInput(path); err != nil {
		return nil, err
	}
	ffprobe, err := resolveTool(r.cfg.FFprobePath, "ffprobe")
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.ProbeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, ffprobe,
		"-v", "error",
		"-show_format",
		"-show_streams",
		"-of", "json",
		path,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &limitedWriter{w: &stderr, limit: maxStderrBytes}
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w: %s", err, truncate(stderr.String(), 512))
	}

	p, err := parseProbe(out)
	if err != nil {
		return nil, err
	}
	r.cfg.Logger.Info("media probed",
		"path", r.safePath(path),
		"fps", p.FPS,
		"duration_s", p.Duration,
		"resolution", fmt.Sprintf("%dx%d", p.Width, p.Height),
		"size", humanize.Bytes(uint64(p.Size)),
	)
	return p, nil
}

// Version runs `<tool> -version` and returns its first line.
func (r *FFmpegRunner) Version(ctx context.Context, tool string) ToolInfo {
	configured := r.cfg.FFmpegPath
	if tool == "ffprobe" {
		configured = r.cfg.FFprobePath
	}
	path, err := resolveTool(configured, tool)
	if err != nil {
		return ToolInfo{Error: err.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.DoctorTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		return ToolInfo{Path: path, Error: err.Error()}
	}
	line, _, _ := strings.Cut(string(out), "\n")
	return ToolInfo{Available: true, Path: path, Version: strings.TrimSpace(line)}
}

// RunDoctor reports the availability of both tools.
func (r *FFmpegRunner) RunDoctor(ctx context.Context) (*Capabilities, error) {
	caps := &Capabilities{
		FFmpeg:   r.Version(ctx, "ffmpeg"),
		FFprobe:  r.Version(ctx, "ffprobe"),
		ProbedAt: time.Now(),
	}
	r.cfg.Logger.Info("doctor probe complete",
		"ffmpeg", caps.FFmpeg.Available,
		"ffprobe", caps.FFprobe.Available,
	)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return caps, nil
}

// exec is the core subprocess execution helper.
func (r *FFmpegRunner) exec(ctx context.Context, bin string, args ...string) RunResult {
	start := time.Now()

	cmd := exec.CommandContext(ctx, bin, args...)
	var stderrBuf bytes.Buffer
	cmd.Stderr = &limitedWriter{w: &stderrBuf, limit: maxStderrBytes}
	cmd.Stdout = io.Discard

	r.cfg.Logger.Debug("executing media command", "bin", filepath.Base(bin), "args", len(args))

	err := cmd.Run()
	elapsed := time.Since(start)

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
		if stderrBuf.Len() == 0 {
			stderrBuf.WriteString(err.Error())
		}
	}

	if exitCode != 0 {
		r.cfg.Logger.Warn("media command failed",
			"bin", filepath.Base(bin),
			"exit_code", exitCode,
			"duration_ms", elapsed.Milliseconds(),
			"stderr_tail", truncate(stderrBuf.String(), 512),
		)
	}

	return RunResult{
		ExitCode:   exitCode,
		StderrTail: stderrBuf.String(),
		Duration:   elapsed,
	}
}

func (r *FFmpegRunner) safePath(path string) string {
	if r.cfg.DebugPaths {
		return path
	}
	return logging.SanitizePath(path)
}

func parseProbe(data []byte) (*ProbeResult, error) {
	var ff ffprobeOutput
	if err := json.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("cannot parse ffprobe JSON: %w", err)
	}

	p := &ProbeResult{}
	if d, err := strconv.ParseFloat(ff.Format.Duration, 64); err == nil {
		p.Duration = d
	}
	if s, err := strconv.ParseInt(ff.Format.Size, 10, 64); err == nil {
		p.Size = s
	}

	for _, s := range ff.Streams {
		switch s.CodecType {
		case "video":
			if p.VideoCodec != "" {
				continue
			}
			p.VideoCodec = s.CodecName
			p.Width, p.Height = s.Width, s.Height
			p.FPS = parseFrameRate(s.RFrameRate)
			if p.FPS <= 0 {
				p.FPS = parseFrameRate(s.AvgFrameRate)
			}
			if p.Duration <= 0 {
				p.Duration, _ = strconv.ParseFloat(s.Duration, 64)
			}
		case "audio":
			if p.AudioCodec == "" {
				p.AudioCodec = s.CodecName
			}
		}
	}

	if p.VideoCodec == "" && p.AudioCodec == "" {
		return nil, errors.New("ffprobe found no audio or video streams")
	}
	return p, nil
}

// parseFrameRate accepts "30000/1001" or a plain number.
func parseFrameRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		v, _ := strconv.ParseFloat(s, 64)
		return v
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}

func checkInput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot read media %s: %w", filepath.Base(path), err)
	}
	if info.IsDir() {
		return fmt.Errorf("media path %s is a directory", filepath.Base(path))
	}
	if info.Size() == 0 {
		return fmt.Errorf("media file %s is empty", filepath.Base(path))
	}
	return nil
}

func resolveTool(preferred, name string) (string, error) {
	if preferred != "" {
		if p, err := exec.LookPath(preferred); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("%w: configured %s %q", ErrToolMissing, name, preferred)
	}
	p, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s is not on PATH", ErrToolMissing, name)
	}
	return p, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter keeps only the last limit bytes written to it.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		b := lw.w.Bytes()
		tail := append([]byte(nil), b[len(b)-lw.limit:]...)
		lw.w.Reset()
		lw.w.Write(tail)
	}
	return n, nil
}
