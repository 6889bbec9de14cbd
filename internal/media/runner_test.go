package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"30000/1001", 30000.0 / 1001.0},
		{"25/1", 25},
		{"24", 24},
		{"0/0", 0},
		{"", 0},
		{"abc/1", 0},
	}
	for _, tt := range tests {
		if got := parseFrameRate(tt.in); got != tt.want {
			t.Errorf("parseFrameRate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseProbe(t *testing.T) {
	data := []byte(`{"streams":[` +
		`{"index":0,"codec_name":"h264","codec_type":"video","width":1920,"height":1080,"r_frame_rate":"30000/1001"},` +
		`{"index":1,"codec_name":"aac","codec_type":"audio"},` +
		`{"index":2,"codec_name":"hevc","codec_type":"video","width":640,"height":360,"r_frame_rate":"25/1"}],` +
		`"format":{"duration":"12.5","size":"1048576"}}`)

	p, err := parseProbe(data)
	if err != nil {
		t.Fatalf("parseProbe() error = %v", err)
	}
	if p.Width != 1920 || p.Height != 1080 || p.VideoCodec != "h264" {
		t.Errorf("first video stream should win, got %+v", p)
	}
	if p.Duration != 12.5 || p.AudioCodec != "aac" || p.Size != 1048576 {
		t.Errorf("probe = %+v", p)
	}
	if p.FPS < 29.96 || p.FPS > 29.98 {
		t.Errorf("FPS = %v, want ~29.97", p.FPS)
	}
}

func TestParseProbe_FallbacksAndErrors(t *testing.T) {
	p, err := parseProbe([]byte(`{"streams":[{"codec_type":"video","codec_name":"vp9","r_frame_rate":"0/0","avg_frame_rate":"24/1","duration":"8.0"}],"format":{}}`))
	if err != nil {
		t.Fatal(err)
	}
	if p.FPS != 24 || p.Duration != 8 {
		t.Errorf("fallbacks not applied: %+v", p)
	}

	if _, err := parseProbe([]byte(`{"streams":[],"format":{"duration":"3"}}`)); err == nil {
		t.Error("expected error for a file without streams")
	}
	if _, err := parseProbe([]byte(`not json`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestCheckInput(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.mp4")
	full := filepath.Join(dir, "full.mp4")
	os.WriteFile(empty, nil, 0o644)
	os.WriteFile(full, []byte("data"), 0o644)

	if err := checkInput(full); err != nil {
		t.Errorf("checkInput(full) = %v", err)
	}
	for _, p := range []string{empty, dir, filepath.Join(dir, "missing.mp4")} {
		if err := checkInput(p); err == nil {
			t.Errorf("checkInput(%q) should fail", p)
		}
	}
}

func TestResolveTool_MissingConfiguredBinary(t *testing.T) {
	_, err := resolveTool("/definitely/not/here/ffmpeg", "ffmpeg")
	if !errors.Is(err, ErrToolMissing) {
		t.Fatalf("resolveTool() error = %v, want ErrToolMissing", err)
	}
}

func TestExtractAudio_MissingSource(t *testing.T) {
	r := NewRunner(Config{Logger: testLogger()})
	_, err := r.ExtractAudio(context.Background(), filepath.Join(t.TempDir(), "nope.mp4"), t.TempDir())
	if err == nil {
		t.Fatal("ExtractAudio() should fail for a missing source")
	}
}

func TestSplitAudio_RejectsBadChunkLength(t *testing.T) {
	r := NewRunner(Config{Logger: testLogger()})
	if _, err := r.SplitAudio(context.Background(), "x.wav", t.TempDir(), 0); err == nil {
		t.Fatal("SplitAudio() should reject a zero chunk length")
	}
}

func TestNewRunner_DefaultsTimeouts(t *testing.T) {
	r := NewRunner(Config{})
	if r.cfg.ExtractTimeout != 30*time.Minute || r.cfg.ProbeTimeout != time.Minute {
		t.Errorf("timeouts not defaulted: %+v", r.cfg)
	}
}

func TestLimitedWriter_KeepsOnlyTail(t *testing.T) {
	var buf bytes.Buffer
	lw := &limitedWriter{w: &buf, limit: 10}

	lw.Write([]byte("hello"))
	if buf.String() != "hello" {
		t.Errorf("after short write got %q, want %q", buf.String(), "hello")
	}

	n, err := lw.Write([]byte(" world of test data"))
	if err != nil || n != 19 {
		t.Fatalf("Write() = %d, %v", n, err)
	}
	if got := buf.String(); got != " test data" {
		t.Errorf("after overflow got %q, want %q", got, " test data")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate short = %q", got)
	}
	got := truncate(strings.Repeat("a", 20)+"tail", 4)
	if got != "...tail" {
		t.Errorf("truncate long = %q", got)
	}
}
