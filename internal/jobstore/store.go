package jobstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned for unknown job ids.
var ErrNotFound = errors.New("job not found")

// DB is the Postgres-backed job registry. The pool is safe for concurrent
// use; the single-writer-per-job discipline is enforced by the pipeline,
// which is the only component that mutates a job after creation.
type DB struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// Connect opens the pool, pings it, and bootstraps the schema.
func Connect(ctx context.Context, databaseURL string, log zerolog.Logger) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	db := &DB{pool: pool, log: log}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	log.Info().Str("url", maskDSN(databaseURL)).Msg("job registry connected")
	return db, nil
}

// Pool exposes the underlying pool for scrape-time stats.
func (db *DB) Pool() *pgxpool.Pool { return db.pool }

// Close releases the pool.
func (db *DB) Close() {
	db.log.Info().Msg("closing job registry pool")
	db.pool.Close()
}

// HealthCheck pings the database with a short timeout.
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return db.pool.Ping(ctx)
}

// Create inserts a new pending job.
func (db *DB) Create(ctx context.Context, job *Job) error {
	meta, err := json.Marshal(job.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = db.pool.Exec(ctx,
		`INSERT INTO jobs (id, status, phase, progress, error, metadata, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now(), now())`,
		job.ID, string(job.Status), string(job.Phase), job.Progress, job.Error, meta,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Get returns one job by id.
func (db *DB) Get(ctx context.Context, id string) (*Job, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT id, status, phase, progress, error, metadata, created_at, updated_at
		 FROM jobs WHERE id = $1`, id)
	return scanJob(row)
}

// List returns jobs newest-first.
func (db *DB) List(ctx context.Context, limit, offset int) ([]*Job, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, status, phase, progress, error, metadata, created_at, updated_at
		 FROM jobs ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

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

// Update persists the mutable fields of a job. Terminal rows are left
// untouched so completed/failed absorb any late writes.
func (db *DB) Update(ctx context.Context, job *Job) error {
	meta, err := json.Marshal(job.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	tag, err := db.pool.Exec(ctx,
		`UPDATE jobs
		 SET status = $2, phase = $3, progress = $4, error = $5, metadata = $6, updated_at = now()
		 WHERE id = $1 AND status NOT IN ('completed', 'failed')`,
		job.ID, string(job.Status), string(job.Phase), job.Progress, job.Error, meta,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either unknown or already terminal; distinguish for the caller.
		if _, err := db.Get(ctx, job.ID); err != nil {
			return err
		}
		db.log.Debug().Str("job_id", job.ID).Msg("update ignored for terminal job")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		j      Job
		status string
		phase  string
		meta   []byte
	)
	err := row.Scan(&j.ID, &status, &phase, &j.Progress, &j.Error, &meta, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}
	j.Status = Status(status)
	j.Phase = Phase(phase)
	if err := json.Unmarshal(meta, &j.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if j.Metadata == nil {
		j.Metadata = map[string]string{}
	}
	return &j, nil
}

// maskDSN hides the password in a connection URL for logging. The
// placeholder must survive URL encoding, so it is plain letters.
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "redacted"
	}
	if u.User != nil {
		if _, hasPass := u.User.Password(); hasPass {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
		}
	}
	return u.String()
}
