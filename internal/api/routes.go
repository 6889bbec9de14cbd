package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"

	"github.com/douglasnoga/editor-ia/internal/artifacts"
	"github.com/douglasnoga/editor-ia/internal/config"
	"github.com/douglasnoga/editor-ia/internal/jobs"
)

const (
	artifactGuide      = "guide"
	artifactTimeline   = "timeline"
	artifactEDL        = "edl"
	artifactTranscript = "transcript"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSAllowlist())

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(LoopbackGuard())
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/status", statusHandler(cfg))
		r.Post("/jobs", submitJobHandler(cfg))
		r.Get("/jobs", listJobsHandler(cfg))
		r.Get("/jobs/{id}", getJobHandler(cfg))
		r.Delete("/jobs/{id}", deleteJobHandler(cfg))
		r.Get("/jobs/{id}/events", jobEventsHandler(cfg))
		r.Get("/jobs/{id}/{artifact}", artifactHandler(cfg))
		r.Head("/jobs/{id}/{artifact}", artifactHandler(cfg))
		r.Post("/export", exportHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := time.Since(cfg.StartTime)
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: config.Version,
			UptimeS: int64(uptime.Seconds()),
			Started: humanize.Time(cfg.StartTime),
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		counts, err := cfg.Jobs.Counts(ctx)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to count jobs", "INTERNAL_ERROR")
			return
		}
		recent, _ := cfg.Jobs.List(ctx, 20)

		resp := StatusResponse{
			State:       "idle",
			JobCounts:   counts,
			JobsRunning: counts[jobs.StatusRunning],
		}
		for _, j := range recent {
			if j.Status == jobs.StatusRunning {
				resp.ActiveJobs = append(resp.ActiveJobs, JobToResponse(j))
			}
			if j.Status == jobs.StatusFailed && resp.LastError == "" {
				resp.LastError = j.Error
			}
		}

		switch {
		case cfg.Runner != nil && cfg.Runner.IsPaused():
			resp.State = "paused"
		case resp.JobsRunning > 0:
			resp.State = "processing"
		case counts[jobs.StatusPending] > 0:
			resp.State = "queued"
		}

		if cfg.Doctor != nil {
			if caps, err := cfg.Doctor.Get(ctx); err == nil && caps != nil {
				resp.Tools = &ToolsResponse{
					Ready:          caps.Ready(),
					FFmpeg:         caps.FFmpeg.Available,
					FFprobe:        caps.FFprobe.Available,
					FFmpegVersion:  caps.FFmpeg.Version,
					FFprobeVersion: caps.FFprobe.Version,
				}
				if !caps.ProbedAt.IsZero() {
					resp.Tools.LastProbeAt = caps.ProbedAt.Format(time.RFC3339)
				}
				if !caps.Ready() && resp.State == "idle" {
					resp.State = "degraded"
				}
			}
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func submitJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req jobs.SubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		job, err := cfg.Jobs.Submit(r.Context(), req)
		if errors.Is(err, jobs.ErrInvalidSource) {
			WriteError(w, http.StatusBadRequest, err.Error(), "INVALID_SOURCE")
			return
		}
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to create job", "INTERNAL_ERROR")
			return
		}

		WriteJSON(w, http.StatusAccepted, SubmitJobResponse{JobID: job.ID, Status: job.Status})
	}
}

func listJobsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 1 || n > 500 {
				WriteError(w, http.StatusBadRequest, "limit must be between 1 and 500", "BAD_REQUEST")
				return
			}
			limit = n
		}

		list, err := cfg.Jobs.List(r.Context(), limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list jobs", "INTERNAL_ERROR")
			return
		}

		resp := JobsResponse{Jobs: make([]JobResponse, len(list))}
		for i, j := range list {
			resp.Jobs[i] = JobToResponse(j)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

// loadJob writes the error response itself and returns nil when the job
// cannot be served.
func loadJob(cfg ServerConfig, w http.ResponseWriter, r *http.Request) *jobs.Job {
	id := chi.URLParam(r, "id")
	job, err := cfg.Jobs.Get(r.Context(), id)
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		WriteError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
		return nil
	case err != nil:
		WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
		return nil
	}
	return job
}

func getJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if job := loadJob(cfg, w, r); job != nil {
			WriteJSON(w, http.StatusOK, JobToResponse(job))
		}
	}
}

// deleteJobHandler cancels a running job, or removes a finished or queued
// one together with its artifacts.
func deleteJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job := loadJob(cfg, w, r)
		if job == nil {
			return
		}

		if job.Status == jobs.StatusRunning {
			if cfg.Runner != nil && cfg.Runner.Cancel(job.ID) {
				WriteJSON(w, http.StatusAccepted, SubmitJobResponse{JobID: job.ID, Status: "canceling"})
				return
			}
			WriteError(w, http.StatusConflict, "job is running in another process", "CONFLICT")
			return
		}

		if err := cfg.Jobs.Delete(r.Context(), job.ID); err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func artifactHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job := loadJob(cfg, w, r)
		if job == nil {
			return
		}

		var path string
		switch chi.URLParam(r, "artifact") {
		case artifactGuide:
			path = job.GuidePath
		case artifactTimeline:
			path = job.TimelinePath
		case artifactEDL:
			path = job.EDLPath
		case artifactTranscript:
			path = job.TranscriptPath
		default:
			WriteError(w, http.StatusNotFound, "unknown artifact", "NOT_FOUND")
			return
		}
		if path == "" {
			WriteError(w, http.StatusConflict, "artifact not ready; job is "+job.Status, "NOT_READY")
			return
		}

		err := cfg.Artifacts.ServeFile(w, r, path)
		switch {
		case errors.Is(err, artifacts.ErrNotFound):
			WriteError(w, http.StatusGone, "artifact file no longer exists", "GONE")
		case err != nil:
			cfg.Logger.Error("artifact download failed", "job_id", job.ID, "error", err)
			WriteError(w, http.StatusInternalServerError, "failed to read artifact", "INTERNAL_ERROR")
		}
	}
}
