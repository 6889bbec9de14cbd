package api

import (
	"encoding/json"
	"time"

	"github.com/douglasnoga/editor-ia/internal/jobs"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
	Started string `json:"started"`
}

type StatusResponse struct {
	State       string         `json:"state"`
	LastError   string         `json:"last_error,omitempty"`
	JobsRunning int            `json:"jobs_running"`
	JobCounts   map[string]int `json:"job_counts"`
	Tools       *ToolsResponse `json:"tools,omitempty"`
	ActiveJobs  []JobResponse  `json:"active_jobs,omitempty"`
}

type ToolsResponse struct {
	Ready          bool   `json:"ready"`
	FFmpeg         bool   `json:"ffmpeg"`
	FFprobe        bool   `json:"ffprobe"`
	FFmpegVersion  string `json:"ffmpeg_version,omitempty"`
	FFprobeVersion string `json:"ffprobe_version,omitempty"`
	LastProbeAt    string `json:"last_probe_at,omitempty"`
}

type SubmitJobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type JobResponse struct {
	ID         string          `json:"id"`
	SourcePath string          `json:"source_path"`
	Profile    string          `json:"profile"`
	Status     string          `json:"status"`
	Stage      string          `json:"stage"`
	Progress   int             `json:"progress"`
	Message    string          `json:"message,omitempty"`
	Error      string          `json:"error,omitempty"`
	Artifacts  map[string]bool `json:"artifacts"`
	Result     json.RawMessage `json:"result,omitempty"`
	CreatedAt  string          `json:"created_at"`
	UpdatedAt  string          `json:"updated_at"`
}

type JobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

type EventsResponse struct {
	Events []*jobs.Event `json:"events"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func JobToResponse(j *jobs.Job) JobResponse {
	return JobResponse{
		ID:         j.ID,
		SourcePath: j.SourcePath,
		Profile:    j.Profile,
		Status:     j.Status,
		Stage:      j.Stage,
		Progress:   j.Progress,
		Message:    j.Message,
		Error:      j.Error,
		Artifacts: map[string]bool{
			artifactGuide:      j.GuidePath != "",
			artifactTimeline:   j.TimelinePath != "",
			artifactEDL:        j.EDLPath != "",
			artifactTranscript: j.TranscriptPath != "",
		},
		Result:    j.Result,
		CreatedAt: j.CreatedAt.Format(time.RFC3339),
		UpdatedAt: j.UpdatedAt.Format(time.RFC3339),
	}
}
