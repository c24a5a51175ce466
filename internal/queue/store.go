package queue

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"slidecast/internal/config"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes shape.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database was created by an incompatible version.
var ErrSchemaMismatch = errors.New("queue schema version mismatch")

// Store manages render job persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the job database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.WorkDir, "jobs.db"))
}

// OpenPath connects to a job database at an explicit location.
func OpenPath(dbPath string) (*Store, error) {
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

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	var version int
	err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case version != schemaVersion:
		return fmt.Errorf("%w: database has %d, expected %d", ErrSchemaMismatch, version, schemaVersion)
	}
	return nil
}

const jobColumns = `id, name, project_dir, output_dir, config_json, status, phase,
    progress_percent, progress_message, error_message, cancel_requested,
    scenes_total, scenes_completed, scenes_failed, outputs_json, report_path,
    created_at, updated_at, started_at, finished_at`

// Enqueue inserts a new job in the queued state.
func (s *Store) Enqueue(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	if strings.TrimSpace(job.ID) == "" {
		return errors.New("job id is required")
	}
	now := time.Now().UTC()
	job.Status = StatusQueued
	job.CreatedAt = now
	job.UpdatedAt = now

	configJSON, err := marshalConfig(job.Config)
	if err != nil {
		return fmt.Errorf("marshal job config: %w", err)
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO render_jobs (
            id, name, project_dir, output_dir, config_json, status,
            scenes_total, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.Name,
		job.ProjectDir,
		job.OutputDir,
		configJSON,
		StatusQueued,
		job.ScenesTotal,
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetByID fetches a job snapshot, or nil when unknown.
func (s *Store) GetByID(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM render_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// List returns job snapshots, newest first, optionally filtered by status.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM render_jobs`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, status := range statuses {
			placeholders[i] = "?"
			args = append(args, status)
		}
		query += ` WHERE status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ClaimNext atomically promotes the oldest queued job to processing and
// returns it. Returns nil when the queue is empty. Safe for concurrent
// workers: the claim is a single conditional update.
func (s *Store) ClaimNext(ctx context.Context) (*Job, error) {
	now := formatTime(time.Now().UTC())
	row := s.db.QueryRowContext(
		ctx,
		`UPDATE render_jobs
         SET status = ?, started_at = ?, updated_at = ?
         WHERE id = (
             SELECT id FROM render_jobs WHERE status = ?
             ORDER BY created_at ASC, id ASC LIMIT 1
         ) AND status = ?
         RETURNING `+jobColumns,
		StatusProcessing,
		now,
		now,
		StatusQueued,
		StatusQueued,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim next job: %w", err)
	}
	return job, nil
}

// Update persists the full mutable state of a job.
func (s *Store) Update(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	job.UpdatedAt = time.Now().UTC()

	configJSON, err := marshalConfig(job.Config)
	if err != nil {
		return fmt.Errorf("marshal job config: %w", err)
	}
	outputsJSON, err := marshalOutputs(job.Outputs)
	if err != nil {
		return fmt.Errorf("marshal outputs: %w", err)
	}

	res, err := s.db.ExecContext(
		ctx,
		`UPDATE render_jobs SET
            name = ?, project_dir = ?, output_dir = ?, config_json = ?,
            status = ?, phase = ?, progress_percent = ?, progress_message = ?,
            error_message = ?, cancel_requested = ?, scenes_total = ?,
            scenes_completed = ?, scenes_failed = ?, outputs_json = ?,
            report_path = ?, updated_at = ?, started_at = ?, finished_at = ?
         WHERE id = ?`,
		job.Name,
		job.ProjectDir,
		job.OutputDir,
		configJSON,
		job.Status,
		job.Phase,
		job.ProgressPercent,
		job.ProgressMessage,
		job.ErrorMessage,
		boolToInt(job.CancelRequested),
		job.ScenesTotal,
		job.ScenesCompleted,
		job.ScenesFailed,
		outputsJSON,
		job.ReportPath,
		formatTime(job.UpdatedAt),
		formatNullableTime(job.StartedAt),
		formatNullableTime(job.FinishedAt),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("job %s not found", job.ID)
	}
	return nil
}

// UpdateProgress persists only progress fields, avoiding write races with the
// rest of the record.
func (s *Store) UpdateProgress(ctx context.Context, id, phase, message string, percent float64) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE render_jobs
         SET phase = ?, progress_message = ?,
             progress_percent = MAX(progress_percent, ?), updated_at = ?
         WHERE id = ?`,
		phase,
		message,
		percent,
		formatTime(time.Now().UTC()),
		id,
	)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// RequestCancel marks a job for cancellation. Queued jobs transition straight
// to cancelled; processing jobs get a cooperative flag checked at the next
// safe checkpoint. Returns false for unknown or already-terminal jobs.
func (s *Store) RequestCancel(ctx context.Context, id string) (bool, error) {
	now := formatTime(time.Now().UTC())

	res, err := s.db.ExecContext(
		ctx,
		`UPDATE render_jobs
         SET status = ?, progress_message = 'Cancelled before processing',
             finished_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusCancelled, now, now, id, StatusQueued,
	)
	if err != nil {
		return false, fmt.Errorf("cancel queued job: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected > 0 {
		return true, nil
	}

	res, err = s.db.ExecContext(
		ctx,
		`UPDATE render_jobs SET cancel_requested = 1, updated_at = ?
         WHERE id = ? AND status = ?`,
		now, id, StatusProcessing,
	)
	if err != nil {
		return false, fmt.Errorf("flag processing job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cancel result: %w", err)
	}
	return affected > 0, nil
}

// CancelRequested reads the cooperative cancellation flag.
func (s *Store) CancelRequested(ctx context.Context, id string) (bool, error) {
	var flag int
	err := s.db.QueryRowContext(ctx, `SELECT cancel_requested FROM render_jobs WHERE id = ?`, id).Scan(&flag)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read cancel flag: %w", err)
	}
	return flag != 0, nil
}

// Counts aggregates job totals per lifecycle state.
func (s *Store) Counts(ctx context.Context) (HealthSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM render_jobs GROUP BY status`)
	if err != nil {
		return HealthSummary{}, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	var summary HealthSummary
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return HealthSummary{}, fmt.Errorf("scan count: %w", err)
		}
		summary.Total += count
		switch status {
		case StatusQueued:
			summary.Queued = count
		case StatusProcessing:
			summary.Processing = count
		case StatusCompleted:
			summary.Completed = count
		case StatusFailed:
			summary.Failed = count
		case StatusCancelled:
			summary.Cancelled = count
		}
	}
	return summary, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		job          Job
		configJSON   string
		outputsJSON  string
		cancelFlag   int
		createdAt    string
		updatedAt    string
		startedAtNS  sql.NullString
		finishedAtNS sql.NullString
	)
	if err := row.Scan(
		&job.ID,
		&job.Name,
		&job.ProjectDir,
		&job.OutputDir,
		&configJSON,
		&job.Status,
		&job.Phase,
		&job.ProgressPercent,
		&job.ProgressMessage,
		&job.ErrorMessage,
		&cancelFlag,
		&job.ScenesTotal,
		&job.ScenesCompleted,
		&job.ScenesFailed,
		&outputsJSON,
		&job.ReportPath,
		&createdAt,
		&updatedAt,
		&startedAtNS,
		&finishedAtNS,
	); err != nil {
		return nil, err
	}

	var err error
	if job.Config, err = unmarshalConfig(configJSON); err != nil {
		return nil, fmt.Errorf("parse config json: %w", err)
	}
	if job.Outputs, err = unmarshalOutputs(outputsJSON); err != nil {
		return nil, fmt.Errorf("parse outputs json: %w", err)
	}
	job.CancelRequested = cancelFlag != 0
	if job.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if job.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if job.StartedAt, err = parseNullableTime(startedAtNS); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if job.FinishedAt, err = parseNullableTime(finishedAtNS); err != nil {
		return nil, fmt.Errorf("parse finished_at: %w", err)
	}
	return &job, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(value string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, value)
}

func parseNullableTime(value sql.NullString) (*time.Time, error) {
	if !value.Valid || strings.TrimSpace(value.String) == "" {
		return nil, nil
	}
	parsed, err := parseTime(value.String)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
