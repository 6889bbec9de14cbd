package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/douglasnoga/editor-ia/internal/artifacts"
	"github.com/douglasnoga/editor-ia/internal/db"
	"github.com/douglasnoga/editor-ia/internal/jobs"
	"github.com/douglasnoga/editor-ia/internal/media"
)

const testToken = "test-token-123456"

type fakeDoctor struct {
	caps *media.Capabilities
	err  error
}

func (f *fakeDoctor) RunDoctor(ctx context.Context) (*media.Capabilities, error) {
	return f.caps, f.err
}

type testEnv struct {
	cfg    ServerConfig
	repo   *jobs.SQLiteRepository
	router http.Handler
	dir    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	database, err := db.New(db.MemoryPath, nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	repo := jobs.NewRepository(database.Conn())
	if err := repo.SetConfig(context.Background(), AuthTokenKey, testToken); err != nil {
		t.Fatalf("failed to store auth token: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	workRoot := t.TempDir()
	doctor := &fakeDoctor{caps: &media.Capabilities{
		FFmpeg:   media.ToolInfo{Available: true, Path: "/usr/bin/ffmpeg", Version: "6.1"},
		FFprobe:  media.ToolInfo{Available: true, Path: "/usr/bin/ffprobe", Version: "6.1"},
		ProbedAt: time.Now(),
	}}

	cfg := ServerConfig{
		Jobs:       jobs.NewService(repo, workRoot, "", logger),
		Runner:     jobs.NewRunner(repo, jobs.NewBroker(), 1, logger),
		Repository: repo,
		Artifacts:  artifacts.NewServer(logger),
		Doctor:     media.NewCachedDoctor(doctor, logger),
		Logger:     logger,
		StartTime:  time.Now().Add(-time.Minute),
		KeepAlive:  50 * time.Millisecond,
	}
	return &testEnv{cfg: cfg, repo: repo, router: NewRouter(cfg), dir: t.TempDir()}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.RemoteAddr = "127.0.0.1:51234"
	req.Header.Set("Authorization", "Bearer "+testToken)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) writeMedia(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	if err := os.WriteFile(path, []byte("fake media"), 0o644); err != nil {
		t.Fatalf("failed to write media: %v", err)
	}
	return path
}

func (e *testEnv) submit(t *testing.T) *jobs.Job {
	t.Helper()
	job, err := e.cfg.Jobs.Submit(context.Background(), jobs.SubmitRequest{SourcePath: e.writeMedia(t, "talk.mp4")})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	return job
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error body %q: %v", rec.Body.String(), err)
	}
	return resp
}

func TestHealth_NoAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || resp.Version == "" {
		t.Errorf("unexpected health response: %+v", resp)
	}
	if resp.UptimeS < 59 {
		t.Errorf("UptimeS = %d, want >= 59", resp.UptimeS)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestProtectedRoutes_Auth(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + testToken, http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "Bearer " + testToken, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/status", nil)
			req.RemoteAddr = "127.0.0.1:40000"
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			env.router.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestProtectedRoutes_RejectRemoteClients(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	req.RemoteAddr = "192.168.1.20:5000"
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if got := decodeError(t, rec).Code; got != "FORBIDDEN" {
		t.Errorf("code = %q, want FORBIDDEN", got)
	}
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t)
	env.submit(t)

	rec := env.do(t, http.MethodGet, "/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp StatusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.State != "queued" {
		t.Errorf("State = %q, want queued", resp.State)
	}
	if resp.JobCounts[jobs.StatusPending] != 1 {
		t.Errorf("pending count = %d, want 1", resp.JobCounts[jobs.StatusPending])
	}
	if resp.Tools == nil || !resp.Tools.Ready || resp.Tools.FFmpegVersion != "6.1" {
		t.Errorf("Tools = %+v, want ready with ffmpeg 6.1", resp.Tools)
	}
}

func TestStatus_DegradedWithoutTools(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Doctor = media.NewCachedDoctor(&fakeDoctor{caps: &media.Capabilities{
		FFmpeg:  media.ToolInfo{Available: false, Error: "not found"},
		FFprobe: media.ToolInfo{Available: true},
	}}, nil)
	router := NewRouter(env.cfg)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.RemoteAddr = "127.0.0.1:40000"
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp StatusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.State != "degraded" {
		t.Errorf("State = %q, want degraded", resp.State)
	}
	if resp.Tools == nil || resp.Tools.Ready || resp.Tools.FFmpeg {
		t.Errorf("Tools = %+v, want ffmpeg unavailable", resp.Tools)
	}
}

func TestStatus_Paused(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Runner.Pause()

	rec := env.do(t, http.MethodGet, "/status", "")
	var resp StatusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.State != "paused" {
		t.Errorf("State = %q, want paused", resp.State)
	}
}

func TestSubmitJob(t *testing.T) {
	env := newTestEnv(t)
	source := env.writeMedia(t, "interview.mov")

	body, _ := json.Marshal(jobs.SubmitRequest{SourcePath: source, Profile: "vsl"})
	rec := env.do(t, http.MethodPost, "/jobs", string(body))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202; body=%s", rec.Code, rec.Body.String())
	}

	var resp SubmitJobResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.JobID == "" || resp.Status != jobs.StatusPending {
		t.Errorf("unexpected response: %+v", resp)
	}

	job, err := env.cfg.Jobs.Get(context.Background(), resp.JobID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if job.SourcePath != source || job.Profile != "vsl" {
		t.Errorf("stored job = %+v", job)
	}
}

func TestSubmitJob_Errors(t *testing.T) {
	env := newTestEnv(t)
	notMedia := filepath.Join(env.dir, "notes.txt")
	os.WriteFile(notMedia, []byte("x"), 0o644)

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantErr  string
	}{
		{"malformed body", "{", http.StatusBadRequest, "BAD_REQUEST"},
		{"relative path", `{"source_path":"talk.mp4"}`, http.StatusBadRequest, "INVALID_SOURCE"},
		{"missing file", `{"source_path":"` + filepath.Join(env.dir, "gone.mp4") + `"}`, http.StatusBadRequest, "INVALID_SOURCE"},
		{"not media", `{"source_path":"` + notMedia + `"}`, http.StatusBadRequest, "INVALID_SOURCE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/jobs", tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d; body=%s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if got := decodeError(t, rec).Code; got != tt.wantErr {
				t.Errorf("code = %q, want %q", got, tt.wantErr)
			}
		})
	}
}

func TestListAndGetJobs(t *testing.T) {
	env := newTestEnv(t)
	first := env.submit(t)
	env.submit(t)

	rec := env.do(t, http.MethodGet, "/jobs?limit=10", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var list JobsResponse
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Jobs) != 2 {
		t.Fatalf("len(Jobs) = %d, want 2", len(list.Jobs))
	}

	rec = env.do(t, http.MethodGet, "/jobs/"+first.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got JobResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != first.ID || got.Status != jobs.StatusPending {
		t.Errorf("job = %+v", got)
	}
	if got.Artifacts[artifactTimeline] {
		t.Error("timeline artifact should not be ready for a pending job")
	}

	rec = env.do(t, http.MethodGet, "/jobs/does-not-exist", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing job status = %d, want 404", rec.Code)
	}

	for _, limit := range []string{"0", "501", "abc"} {
		rec = env.do(t, http.MethodGet, "/jobs?limit="+limit, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("limit=%s status = %d, want 400", limit, rec.Code)
		}
	}
}

func TestDeleteJob(t *testing.T) {
	env := newTestEnv(t)
	job := env.submit(t)

	rec := env.do(t, http.MethodDelete, "/jobs/"+job.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}

	if _, err := env.cfg.Jobs.Get(context.Background(), job.ID); !errors.Is(err, jobs.ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
}

func TestDeleteJob_RunningElsewhere(t *testing.T) {
	env := newTestEnv(t)
	job := env.submit(t)
	if err := env.repo.UpdateJobStatus(context.Background(), job.ID, jobs.StatusRunning, ""); err != nil {
		t.Fatalf("UpdateJobStatus() error = %v", err)
	}

	rec := env.do(t, http.MethodDelete, "/jobs/"+job.ID, "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestArtifactDownload(t *testing.T) {
	env := newTestEnv(t)
	job := env.submit(t)

	timeline := filepath.Join(env.dir, "talk_AI_Cuts.xml")
	content := `<?xml version="1.0" encoding="UTF-8"?><xmeml version="4"></xmeml>`
	if err := os.WriteFile(timeline, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	err := env.repo.UpdateJobArtifacts(context.Background(), job.ID, jobs.Artifacts{
		TimelinePath: timeline,
		EDLPath:      filepath.Join(env.dir, "deleted.edl"),
	})
	if err != nil {
		t.Fatalf("UpdateJobArtifacts() error = %v", err)
	}

	rec := env.do(t, http.MethodGet, "/jobs/"+job.ID+"/timeline", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body=%s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != content {
		t.Errorf("body = %q", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/xml") {
		t.Errorf("Content-Type = %q", ct)
	}

	tests := []struct {
		artifact string
		wantCode int
		wantErr  string
	}{
		{"guide", http.StatusConflict, "NOT_READY"},
		{"edl", http.StatusGone, "GONE"},
		{"bogus", http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.artifact, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/jobs/"+job.ID+"/"+tt.artifact, "")
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if got := decodeError(t, rec).Code; got != tt.wantErr {
				t.Errorf("code = %q, want %q", got, tt.wantErr)
			}
		})
	}
}

func TestArtifactDownload_Range(t *testing.T) {
	env := newTestEnv(t)
	job := env.submit(t)

	path := filepath.Join(env.dir, "cuts.edl")
	os.WriteFile(path, []byte("TITLE: cuts\nFCM: NON-DROP FRAME\n"), 0o644)
	env.repo.UpdateJobArtifacts(context.Background(), job.ID, jobs.Artifacts{EDLPath: path})

	req := httptest.NewRequest(http.MethodGet, "/jobs/"+job.ID+"/edl", nil)
	req.RemoteAddr = "127.0.0.1:40000"
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Range", "bytes=0-5")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", rec.Code)
	}
	if rec.Body.String() != "TITLE:" {
		t.Errorf("body = %q, want TITLE:", rec.Body.String())
	}
}
