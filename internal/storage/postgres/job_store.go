// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tbakker/linkcrm/internal/crm"
)

// PoolConfig controls the Postgres connection pool.
type PoolConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Pool is the subset of pgxpool.Pool the stores need, satisfied by pgxmock.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// NewPool connects a pgx pool using the provided config.
func NewPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// JobStore persists scrape job rows in the scrape_jobs table.
type JobStore struct {
	pool Pool
}

// NewJobStore constructs a JobStore over an existing pool.
func NewJobStore(pool Pool) (*JobStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &JobStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *JobStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// CreateJob inserts a pending job row.
func (s *JobStore) CreateJob(ctx context.Context, job crm.Job) error {
	urlsJSON, err := json.Marshal(job.URLs)
	if err != nil {
		return fmt.Errorf("marshal urls: %w", err)
	}
	query := `
INSERT INTO scrape_jobs (id, kind, urls, snapshot_id, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := s.pool.Exec(ctx, query,
		job.ID,
		string(job.Kind),
		urlsJSON,
		job.SnapshotID,
		string(job.Status),
		job.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert scrape job: %w", err)
	}
	return nil
}

// GetJob fetches a job row by id.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (crm.Job, error) {
	query := `
SELECT id, kind, urls, snapshot_id, status, result, error_text, created_at, completed_at
FROM scrape_jobs
WHERE id = $1`
	row := s.pool.QueryRow(ctx, query, jobID)
	job, err := scanJob(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return crm.Job{}, crm.ErrJobNotFound
	}
	if err != nil {
		return crm.Job{}, fmt.Errorf("select scrape job: %w", err)
	}
	return job, nil
}

// CompleteJob performs the terminal write for a successful job.
func (s *JobStore) CompleteJob(ctx context.Context, jobID string, result []crm.Record, completedAt time.Time) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	query := `
UPDATE scrape_jobs
SET status = $2, result = $3, completed_at = $4
WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, jobID, string(crm.JobStatusCompleted), resultJSON, completedAt)
	if err != nil {
		return fmt.Errorf("complete scrape job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return crm.ErrJobNotFound
	}
	return nil
}

// FailJob performs the terminal write for a failed job.
func (s *JobStore) FailJob(ctx context.Context, jobID string, errText string, completedAt time.Time) error {
	query := `
UPDATE scrape_jobs
SET status = $2, error_text = $3, completed_at = $4
WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, jobID, string(crm.JobStatusFailed), errText, completedAt)
	if err != nil {
		return fmt.Errorf("fail scrape job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return crm.ErrJobNotFound
	}
	return nil
}

// ListJobs returns up to limit jobs newest-first, optionally filtered by
// exact status.
func (s *JobStore) ListJobs(ctx context.Context, status crm.JobStatus, limit int) ([]crm.Job, error) {
	if limit <= 0 || limit > 50 {
		limit = 50
	}
	query := `
SELECT id, kind, urls, snapshot_id, status, result, error_text, created_at, completed_at
FROM scrape_jobs`
	args := []any{}
	if status != "" {
		query += `
WHERE status = $1
ORDER BY created_at DESC
LIMIT $2`
		args = append(args, string(status), limit)
	} else {
		query += `
ORDER BY created_at DESC
LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list scrape jobs: %w", err)
	}
	defer rows.Close()

	var jobs []crm.Job
	for rows.Next() {
		job, err := scanJob(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan scrape job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scrape jobs: %w", err)
	}
	return jobs, nil
}

func scanJob(scan func(dest ...any) error) (crm.Job, error) {
	var (
		job         crm.Job
		kind        string
		status      string
		urlsJSON    []byte
		resultJSON  []byte
		errText     *string
		completedAt *time.Time
	)
	if err := scan(
		&job.ID,
		&kind,
		&urlsJSON,
		&job.SnapshotID,
		&status,
		&resultJSON,
		&errText,
		&job.CreatedAt,
		&completedAt,
	); err != nil {
		return crm.Job{}, err
	}
	job.Kind = crm.EntityKind(kind)
	job.Status = crm.JobStatus(status)
	if len(urlsJSON) > 0 {
		if err := json.Unmarshal(urlsJSON, &job.URLs); err != nil {
			return crm.Job{}, fmt.Errorf("unmarshal urls: %w", err)
		}
	}
	if len(resultJSON) > 0 {
		if err := json.Unmarshal(resultJSON, &job.Result); err != nil {
			return crm.Job{}, fmt.Errorf("unmarshal result: %w", err)
		}
	}
	if errText != nil {
		job.ErrorText = *errText
	}
	job.CompletedAt = completedAt
	return job, nil
}
