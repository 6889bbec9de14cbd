// Package jobs stores pipeline jobs in SQLite and runs them in the
// background.
package jobs

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Job is one recording submitted for processing.
type Job struct {
	ID             string          `json:"id"`
	SourcePath     string          `json:"source_path"`
	WorkDir        string          `json:"work_dir"`
	Profile        string          `json:"profile"`
	Status         string          `json:"status"`
	Stage          string          `json:"stage"`
	Progress       int             `json:"progress"`
	Message        string          `json:"message,omitempty"`
	GuidePath      string          `json:"guide_path,omitempty"`
	TimelinePath   string          `json:"timeline_path,omitempty"`
	EDLPath        string          `json:"edl_path,omitempty"`
	TranscriptPath string          `json:"transcript_path,omitempty"`
	Error          string          `json:"error,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCanceled  = "canceled"
)

// Done reports whether the job has reached a terminal status.
func (j *Job) Done() bool {
	return IsTerminal(j.Status)
}

func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// Event is a progress report. Terminal events are published once the job
// row reaches a final status and are not persisted.
type Event struct {
	ID        int64          `json:"id,omitempty"`
	JobID     string         `json:"job_id"`
	Message   string         `json:"message"`
	Percent   int            `json:"percent"`
	Extras    map[string]any `json:"extras,omitempty"`
	Status    string         `json:"status,omitempty"`
	Terminal  bool           `json:"terminal,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Artifacts are the files a completed job leaves in its work dir.
type Artifacts struct {
	GuidePath      string
	TimelinePath   string
	EDLPath        string
	TranscriptPath string
}

type ConfigEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// MediaExtensions are the containers ffmpeg is asked to extract audio from.
var MediaExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".mkv":  true,
	".avi":  true,
	".webm": true,
	".m4v":  true,
	".mxf":  true,
	".mts":  true,
	".mp3":  true,
	".wav":  true,
	".m4a":  true,
	".aac":  true,
	".flac": true,
}

func NewID() string {
	return uuid.NewString()
}

func IsMediaFile(path string) bool {
	return MediaExtensions[strings.ToLower(filepath.Ext(path))]
}
