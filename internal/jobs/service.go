package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/douglasnoga/editor-ia/internal/ai"
	"github.com/douglasnoga/editor-ia/internal/logging"
)

// ErrInvalidSource marks submissions rejected before a job is created.
var ErrInvalidSource = errors.New("invalid source")

var ErrNotFound = errors.New("job not found")

// SubmitRequest queues a recording. TranscriptPath optionally points at an
// existing transcript JSON file, which skips audio extraction and
// transcription.
type SubmitRequest struct {
	SourcePath     string `json:"source_path"`
	Profile        string `json:"profile,omitempty"`
	TranscriptPath string `json:"transcript_path,omitempty"`
}

type Service struct {
	repo           Repository
	workRoot       string
	defaultProfile string
	logger         *slog.Logger
}

func NewService(repo Repository, workRoot, defaultProfile string, logger *slog.Logger) *Service {
	if defaultProfile == "" {
		defaultProfile = ai.ProfileGeneral
	}
	return &Service{repo: repo, workRoot: workRoot, defaultProfile: defaultProfile, logger: logging.OrDiscard(logger)}
}

// Submit validates the recording and queues a pending job for it. Each job
// gets its own work dir under the service's work root.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*Job, error) {
	if req.SourcePath == "" {
		return nil, fmt.Errorf("%w: source_path is required", ErrInvalidSource)
	}
	absPath, err := filepath.Abs(req.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}

	info, err := os.Stat(absPath)
	switch {
	case os.IsNotExist(err):
		return nil, fmt.Errorf("%w: file does not exist", ErrInvalidSource)
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrInvalidSource, err)
	case info.IsDir():
		return nil, fmt.Errorf("%w: path is a directory", ErrInvalidSource)
	case !IsMediaFile(absPath):
		return nil, fmt.Errorf("%w: unsupported file type %q", ErrInvalidSource, filepath.Ext(absPath))
	}

	profile := req.Profile
	if profile == "" {
		profile = s.defaultProfile
	}
	if !ai.ValidProfile(profile) {
		return nil, fmt.Errorf("%w: unknown profile %q", ErrInvalidSource, profile)
	}

	var transcriptPath string
	if req.TranscriptPath != "" {
		if transcriptPath, err = ResolveTranscriptFile(req.TranscriptPath); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	id := NewID()
	job := &Job{
		ID:             id,
		SourcePath:     absPath,
		WorkDir:        filepath.Join(s.workRoot, id),
		Profile:        profile,
		Status:         StatusPending,
		Stage:          "pending",
		TranscriptPath: transcriptPath,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	s.logger.Info("job submitted",
		"job_id", job.ID,
		"path", logging.SanitizePath(absPath),
		"profile", profile,
		"transcript_supplied", transcriptPath != "",
	)
	return job, nil
}

// ResolveTranscriptFile returns the absolute path of an existing transcript
// JSON file.
func ResolveTranscriptFile(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}
	if !strings.EqualFold(filepath.Ext(absPath), ".json") {
		return "", fmt.Errorf("%w: transcript must be a .json file", ErrInvalidSource)
	}
	info, err := os.Stat(absPath)
	switch {
	case os.IsNotExist(err):
		return "", fmt.Errorf("%w: transcript file does not exist", ErrInvalidSource)
	case err != nil:
		return "", fmt.Errorf("%w: %v", ErrInvalidSource, err)
	case info.IsDir():
		return "", fmt.Errorf("%w: transcript path is a directory", ErrInvalidSource)
	}
	return absPath, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	job, err := s.repo.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrNotFound
	}
	return job, nil
}

func (s *Service) List(ctx context.Context, limit int) ([]*Job, error) {
	return s.repo.ListJobs(ctx, limit)
}

func (s *Service) Events(ctx context.Context, id string, afterID int64) ([]*Event, error) {
	return s.repo.ListEvents(ctx, id, afterID)
}

func (s *Service) Counts(ctx context.Context) (map[string]int, error) {
	return s.repo.CountJobsByStatus(ctx)
}

// Delete removes the job row, its events and its work dir. Running jobs
// must be canceled first.
func (s *Service) Delete(ctx context.Context, id string) error {
	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteJob(ctx, id); err != nil {
		return err
	}
	if job.WorkDir != "" && filepath.Dir(job.WorkDir) == filepath.Clean(s.workRoot) {
		if err := os.RemoveAll(job.WorkDir); err != nil {
			s.logger.Warn("failed to remove work dir", "job_id", id, "error", err)
		}
	}
	s.logger.Info("job deleted", "job_id", id)
	return nil
}
