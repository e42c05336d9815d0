// Package store persists transcription sessions and jobs in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"subgen/internal/config"
)

// Store manages job persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// Open initializes or connects to the job database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.Paths.DatabasePath
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

const sessionColumns = "id, source, status, total_files, skipped, created_at, updated_at, completed_at"

// NewSession inserts a session for a batch submission.
func (s *Store) NewSession(ctx context.Context, source string, totalFiles int) (*Session, error) {
	if strings.TrimSpace(source) == "" {
		return nil, errors.New("session source is required")
	}
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO sessions (source, status, total_files, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?)`,
		source,
		StatusPending,
		totalFiles,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetSession(ctx, id)
}

// SetSessionSkipped records the submitted paths that were dropped before
// job creation, replacing any previous list.
func (s *Store) SetSessionSkipped(ctx context.Context, id int64, skipped []SkippedPath) error {
	if skipped == nil {
		skipped = []SkippedPath{}
	}
	encoded, err := json.Marshal(skipped)
	if err != nil {
		return fmt.Errorf("encode skipped paths: %w", err)
	}
	_, err = s.execWithRetry(
		ctx,
		`UPDATE sessions SET skipped = ?, updated_at = ? WHERE id = ?`,
		string(encoded),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("set session skipped: %w", err)
	}
	return nil
}

// GetSession fetches a session by identifier, nil when absent.
func (s *Store) GetSession(ctx context.Context, id int64) (*Session, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

// ListSessions returns sessions newest first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// UpdateSessionStatus moves a session to a new lifecycle state, stamping
// completed_at when the state is terminal.
func (s *Store) UpdateSessionStatus(ctx context.Context, id int64, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("invalid session status %q", status)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	var completedAt any
	if status.Terminal() {
		completedAt = now
	}
	_, err := s.execWithRetry(
		ctx,
		`UPDATE sessions SET status = ?, updated_at = ?, completed_at = ? WHERE id = ?`,
		status, now, completedAt, id,
	)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	return nil
}

// SessionCounts aggregates job states for a session.
func (s *Store) SessionCounts(ctx context.Context, sessionID int64) (SessionCounts, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT status, COUNT(1) FROM jobs WHERE session_id = ? GROUP BY status`, sessionID)
	if err != nil {
		return SessionCounts{}, fmt.Errorf("session counts: %w", err)
	}
	defer rows.Close()

	var counts SessionCounts
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return SessionCounts{}, err
		}
		counts.Total += count
		switch status {
		case StatusPending:
			counts.Pending += count
		case StatusCompleted:
			counts.Completed += count
		case StatusSkipped:
			counts.Skipped += count
		case StatusFailed:
			counts.Failed += count
		case StatusCancelled:
			counts.Cancelled += count
		default:
			if status.Processing() {
				counts.Processing += count
			}
		}
	}
	return counts, rows.Err()
}

// DeleteTerminalSessionsBefore removes terminal sessions older than the
// cutoff, along with their jobs. Returns the number of sessions removed.
func (s *Store) DeleteTerminalSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoffStr := cutoff.UTC().Format(time.RFC3339Nano)
	terminal := []any{StatusCompleted, StatusFailed, StatusCancelled, StatusSkipped}

	args := append([]any{}, terminal...)
	args = append(args, cutoffStr)
	if _, err := s.execWithRetry(
		ctx,
		`DELETE FROM jobs WHERE session_id IN (
            SELECT id FROM sessions WHERE status IN (?, ?, ?, ?) AND updated_at < ?
        )`,
		args...,
	); err != nil {
		return 0, fmt.Errorf("sweep session jobs: %w", err)
	}

	res, err := s.execWithRetry(
		ctx,
		`DELETE FROM sessions WHERE status IN (?, ?, ?, ?) AND updated_at < ?`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	return res.RowsAffected()
}

// DeleteSession removes one session and its jobs. The boolean reports
// whether the session existed.
func (s *Store) DeleteSession(ctx context.Context, id int64) (bool, error) {
	if _, err := s.execWithRetry(ctx, `DELETE FROM jobs WHERE session_id = ?`, id); err != nil {
		return false, fmt.Errorf("delete session jobs: %w", err)
	}
	res, err := s.execWithRetry(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

const jobColumns = "id, session_id, media_path, language, detected_language, audio_track, status, transcription_id, blob_name, subtitle_path, skip_reason, error_message, segments_count, duration_seconds, cancel_requested, created_at, updated_at, started_at, completed_at"

// NewJob inserts a pending job. sessionID may be zero for ad-hoc jobs.
func (s *Store) NewJob(ctx context.Context, sessionID int64, mediaPath, language string) (*Job, error) {
	if strings.TrimSpace(mediaPath) == "" {
		return nil, errors.New("media path is required")
	}
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO jobs (session_id, media_path, language, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID,
		mediaPath,
		language,
		StatusPending,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetJob(ctx, id)
}

// GetJob fetches a job by identifier, nil when absent.
func (s *Store) GetJob(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// UpdateJob persists changes to an existing job. Status transitions into
// transcribing stamp started_at; terminal transitions stamp completed_at.
func (s *Store) UpdateJob(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	if !job.Status.Valid() {
		return fmt.Errorf("invalid job status %q", job.Status)
	}
	now := time.Now().UTC()
	job.UpdatedAt = now
	if job.Status == StatusTranscribing && job.StartedAt == nil {
		started := now
		job.StartedAt = &started
	}
	if job.Status.Terminal() && job.CompletedAt == nil {
		completed := now
		job.CompletedAt = &completed
	}

	_, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET session_id = ?, media_path = ?, language = ?, detected_language = ?,
             audio_track = ?, status = ?, transcription_id = ?, blob_name = ?,
             subtitle_path = ?, skip_reason = ?, error_message = ?,
             segments_count = ?, duration_seconds = ?, cancel_requested = ?,
             updated_at = ?, started_at = ?, completed_at = ?
         WHERE id = ?`,
		job.SessionID,
		job.MediaPath,
		job.Language,
		job.DetectedLanguage,
		job.AudioTrack,
		job.Status,
		job.TranscriptionID,
		job.BlobName,
		job.SubtitlePath,
		job.SkipReason,
		job.ErrorMessage,
		job.SegmentsCount,
		job.DurationSeconds,
		boolToInt(job.CancelRequested),
		now.Format(time.RFC3339Nano),
		nullableTime(job.StartedAt),
		nullableTime(job.CompletedAt),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

// SessionJobs returns a session's jobs in creation order.
func (s *Store) SessionJobs(ctx context.Context, sessionID int64) ([]*Job, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+jobColumns+` FROM jobs WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// JobsByStatus returns jobs matching a status set, oldest first. With no
// statuses it returns every job.
func (s *Store) JobsByStatus(ctx context.Context, statuses ...Status) ([]*Job, error) {
	baseQuery := `SELECT ` + jobColumns + ` FROM jobs`
	orderClause := ` ORDER BY id`

	var (
		rows *sql.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ensureContext(ctx), baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.db.QueryContext(ensureContext(ctx),
			baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("jobs by status: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// RequestJobCancel flags a non-terminal job for cancellation. The pipeline
// observes the flag at its next checkpoint.
func (s *Store) RequestJobCancel(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET cancel_requested = 1, updated_at = ?
         WHERE id = ? AND status IN (?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusPending, StatusExtracting, StatusUploading, StatusTranscribing,
	)
	if err != nil {
		return false, fmt.Errorf("request job cancel: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// RequestSessionCancel flags every non-terminal job in a session and
// returns how many were flagged.
func (s *Store) RequestSessionCancel(ctx context.Context, sessionID int64) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET cancel_requested = 1, updated_at = ?
         WHERE session_id = ? AND status IN (?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339Nano),
		sessionID,
		StatusPending, StatusExtracting, StatusUploading, StatusTranscribing,
	)
	if err != nil {
		return 0, fmt.Errorf("request session cancel: %w", err)
	}
	return res.RowsAffected()
}

// CancelRequested reads the current cancellation flag for a job.
func (s *Store) CancelRequested(ctx context.Context, id int64) (bool, error) {
	var flag int
	err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT cancel_requested FROM jobs WHERE id = ?`, id).Scan(&flag)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read cancel flag: %w", err)
	}
	return flag != 0, nil
}

// FailInFlight marks every processing job failed. Called on daemon
// shutdown so restarts never resume half-finished remote work.
func (s *Store) FailInFlight(ctx context.Context, message string) (int64, error) {
	if strings.TrimSpace(message) == "" {
		message = DaemonStopReason
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET status = ?, error_message = ?, updated_at = ?, completed_at = ?
         WHERE status IN (?, ?, ?, ?)`,
		StatusFailed, message, now, now,
		StatusPending, StatusExtracting, StatusUploading, StatusTranscribing,
	)
	if err != nil {
		return 0, fmt.Errorf("fail in-flight jobs: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

func collectJobs(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func scanSession(scanner interface{ Scan(dest ...any) error }) (*Session, error) {
	var (
		session      Session
		statusStr    string
		skippedRaw   string
		createdRaw   string
		updatedRaw   string
		completedRaw sql.NullString
	)
	if err := scanner.Scan(
		&session.ID,
		&session.Source,
		&statusStr,
		&session.TotalFiles,
		&skippedRaw,
		&createdRaw,
		&updatedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}
	session.Status = Status(statusStr)
	if skippedRaw != "" && skippedRaw != "[]" {
		if err := json.Unmarshal([]byte(skippedRaw), &session.Skipped); err != nil {
			return nil, fmt.Errorf("decode skipped paths: %w", err)
		}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		session.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		session.UpdatedAt = updated
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			session.CompletedAt = &completed
		}
	}
	return &session, nil
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		job          Job
		statusStr    string
		cancelFlag   int
		createdRaw   string
		updatedRaw   string
		startedRaw   sql.NullString
		completedRaw sql.NullString
	)
	if err := scanner.Scan(
		&job.ID,
		&job.SessionID,
		&job.MediaPath,
		&job.Language,
		&job.DetectedLanguage,
		&job.AudioTrack,
		&statusStr,
		&job.TranscriptionID,
		&job.BlobName,
		&job.SubtitlePath,
		&job.SkipReason,
		&job.ErrorMessage,
		&job.SegmentsCount,
		&job.DurationSeconds,
		&cancelFlag,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}
	job.Status = Status(statusStr)
	job.CancelRequested = cancelFlag != 0
	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	if startedRaw.Valid {
		if started, err := parseTimeString(startedRaw.String); err == nil {
			job.StartedAt = &started
		}
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			job.CompletedAt = &completed
		}
	}
	return &job, nil
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
