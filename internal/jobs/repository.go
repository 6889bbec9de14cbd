package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

type Repository interface {
	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	ListJobs(ctx context.Context, limit int) ([]*Job, error)
	ListPendingJobs(ctx context.Context) ([]*Job, error)
	DeleteJob(ctx context.Context, id string) error
	CountJobsByStatus(ctx context.Context) (map[string]int, error)
	UpdateJobStatus(ctx context.Context, id, status, errorMsg string) error
	UpdateJobProgress(ctx context.Context, id, stage string, progress int, message string) error
	UpdateJobArtifacts(ctx context.Context, id string, a Artifacts) error
	UpdateJobResult(ctx context.Context, id string, result json.RawMessage) error

	AppendEvent(ctx context.Context, ev *Event) error
	ListEvents(ctx context.Context, jobID string, afterID int64) ([]*Event, error)

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

const jobColumns = `id, source_path, work_dir, profile, status, stage, progress, message,
	guide_path, timeline_path, edl_path, transcript_path, error, result, created_at, updated_at`

func (r *SQLiteRepository) stamp() string {
	return r.now().UTC().Format(time.RFC3339)
}

func (r *SQLiteRepository) CreateJob(ctx context.Context, j *Job) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, j.ID, j.SourcePath, j.WorkDir, j.Profile, j.Status, j.Stage, j.Progress, nullString(j.Message),
		nullString(j.GuidePath), nullString(j.TimelinePath), nullString(j.EDLPath), nullString(j.TranscriptPath),
		nullString(j.Error), nullString(string(j.Result)),
		j.CreatedAt.UTC().Format(time.RFC3339), j.UpdatedAt.UTC().Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) GetJob(ctx context.Context, id string) (*Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return j, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*Job, error) {
	var j Job
	var message, guidePath, timelinePath, edlPath, transcriptPath, errMsg, result sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&j.ID, &j.SourcePath, &j.WorkDir, &j.Profile, &j.Status, &j.Stage, &j.Progress, &message,
		&guidePath, &timelinePath, &edlPath, &transcriptPath, &errMsg, &result, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	j.Message = message.String
	j.GuidePath = guidePath.String
	j.TimelinePath = timelinePath.String
	j.EDLPath = edlPath.String
	j.TranscriptPath = transcriptPath.String
	j.Error = errMsg.String
	if result.Valid && result.String != "" {
		j.Result = json.RawMessage(result.String)
	}
	j.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	j.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &j, nil
}

func (r *SQLiteRepository) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJobs(rows)
}

func (r *SQLiteRepository) ListPendingJobs(ctx context.Context) ([]*Job, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs WHERE status = 'pending' ORDER BY created_at ASC, rowid ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJobs(rows)
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (r *SQLiteRepository) DeleteJob(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM jobs WHERE id = ?", id)
	return err
}

func (r *SQLiteRepository) CountJobsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM jobs GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (r *SQLiteRepository) UpdateJobStatus(ctx context.Context, id, status, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, error = ?, updated_at = ? WHERE id = ?
	`, status, nullString(errorMsg), r.stamp(), id)
	return err
}

func (r *SQLiteRepository) UpdateJobProgress(ctx context.Context, id, stage string, progress int, message string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET stage = ?, progress = ?, message = ?, updated_at = ? WHERE id = ?
	`, stage, progress, nullString(message), r.stamp(), id)
	return err
}

func (r *SQLiteRepository) UpdateJobArtifacts(ctx context.Context, id string, a Artifacts) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET guide_path = ?, timeline_path = ?, edl_path = ?, transcript_path = ?, updated_at = ?
		WHERE id = ?
	`, nullString(a.GuidePath), nullString(a.TimelinePath), nullString(a.EDLPath), nullString(a.TranscriptPath),
		r.stamp(), id)
	return err
}

func (r *SQLiteRepository) UpdateJobResult(ctx context.Context, id string, result json.RawMessage) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET result = ?, updated_at = ? WHERE id = ?
	`, nullString(string(result)), r.stamp(), id)
	return err
}

func (r *SQLiteRepository) AppendEvent(ctx context.Context, ev *Event) error {
	var extras sql.NullString
	if len(ev.Extras) > 0 {
		data, err := json.Marshal(ev.Extras)
		if err != nil {
			return err
		}
		extras = sql.NullString{String: string(data), Valid: true}
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = r.now()
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO job_events (job_id, message, percent, extras, created_at) VALUES (?, ?, ?, ?, ?)
	`, ev.JobID, ev.Message, ev.Percent, extras, ev.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return err
	}
	ev.ID, err = res.LastInsertId()
	return err
}

// ListEvents returns the job's events with an id greater than afterID, oldest
// first.
func (r *SQLiteRepository) ListEvents(ctx context.Context, jobID string, afterID int64) ([]*Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, job_id, message, percent, extras, created_at
		FROM job_events WHERE job_id = ? AND id > ? ORDER BY id ASC
	`, jobID, afterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var ev Event
		var extras sql.NullString
		var createdAt string
		if err := rows.Scan(&ev.ID, &ev.JobID, &ev.Message, &ev.Percent, &extras, &createdAt); err != nil {
			return nil, err
		}
		if extras.Valid {
			if err := json.Unmarshal([]byte(extras.String), &ev.Extras); err != nil {
				return nil, err
			}
		}
		ev.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		events = append(events, &ev)
	}
	return events, rows.Err()
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
