package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/douglasnoga/editor-ia/internal/jobs"
)

const defaultKeepAlive = 15 * time.Second

// jobEventsHandler streams a job's progress as server-sent events. Stored
// events after Last-Event-ID (or ?after=) are replayed first, then live
// events follow until the job reaches a terminal status.
func jobEventsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job := loadJob(cfg, w, r)
		if job == nil {
			return
		}

		after := int64(0)
		cursor := r.Header.Get("Last-Event-ID")
		if cursor == "" {
			cursor = r.URL.Query().Get("after")
		}
		if cursor != "" {
			n, err := strconv.ParseInt(cursor, 10, 64)
			if err != nil || n < 0 {
				WriteError(w, http.StatusBadRequest, "invalid event cursor", "BAD_REQUEST")
				return
			}
			after = n
		}

		// Subscribe before reading history so nothing published in between
		// is lost.
		var live <-chan jobs.Event
		if cfg.Runner != nil {
			ch, unsubscribe := cfg.Runner.Broker().Subscribe(job.ID)
			defer unsubscribe()
			live = ch
		}

		history, err := cfg.Jobs.Events(r.Context(), job.ID, after)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to load events", "INTERNAL_ERROR")
			return
		}

		rc := http.NewResponseController(w)
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)

		for _, ev := range history {
			writeEvent(w, *ev)
			after = ev.ID
		}

		// The job may have finished before we subscribed.
		if current, err := cfg.Jobs.Get(r.Context(), job.ID); err == nil && current.Done() {
			writeEvent(w, terminalEvent(current))
			rc.Flush()
			return
		}
		rc.Flush()
		if live == nil {
			return
		}

		keepAlive := cfg.KeepAlive
		if keepAlive <= 0 {
			keepAlive = defaultKeepAlive
		}
		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
				fmt.Fprint(w, ": keep-alive\n\n")
				rc.Flush()
			case ev, ok := <-live:
				if !ok {
					return
				}
				if !ev.Terminal && ev.ID != 0 && ev.ID <= after {
					continue
				}
				writeEvent(w, ev)
				rc.Flush()
				if ev.Terminal {
					return
				}
			}
		}
	}
}

func terminalEvent(j *jobs.Job) jobs.Event {
	msg := "Job " + j.Status
	if j.Error != "" {
		msg = j.Error
	}
	return jobs.Event{
		JobID:     j.ID,
		Message:   msg,
		Percent:   j.Progress,
		Status:    j.Status,
		Terminal:  true,
		CreatedAt: j.UpdatedAt,
	}
}

func writeEvent(w http.ResponseWriter, ev jobs.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	name := "progress"
	if ev.Terminal {
		name = "done"
	}
	if ev.ID > 0 {
		fmt.Fprintf(w, "id: %d\n", ev.ID)
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
}
