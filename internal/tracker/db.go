// Package tracker persists Application Records keyed by (user_id, job_id)
// and serves the per-(user, job) lookup and the daily-cap count the
// engine uses. The engine does not query it at run start, so the apply
// queue is not de-duplicated against earlier applications. Schema and connection handling follow the
// teacher's store.Open/Migrate pattern (modernc sqlite, single writer,
// PRAGMA user_version gate).
package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the sqlite connection pool backing the Tracker.
type DB struct {
	Pool *sql.DB
}

// Open opens (creating if absent) the tracker database at path and runs
// pending migrations.
func Open(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)

	pool, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	pool.SetMaxOpenConns(1)
	pool.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pool.PingContext(ctx); err != nil {
		_ = pool.Close()
		return nil, err
	}

	db := &DB{Pool: pool}
	if err := db.migrate(ctx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("migrate tracker db: %w", err)
	}
	return db, nil
}

func (d *DB) Close() error {
	if d == nil || d.Pool == nil {
		return nil
	}
	return d.Pool.Close()
}

func (d *DB) migrate(ctx context.Context) error {
	tx, err := d.Pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var v int
	if err := tx.QueryRowContext(ctx, `PRAGMA user_version;`).Scan(&v); err != nil {
		return err
	}
	if v >= 1 {
		return tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS applications (
  user_id TEXT NOT NULL,
  job_id TEXT NOT NULL,
  job_title TEXT NOT NULL DEFAULT '',
  company TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL,
  submitted_at TEXT,
  confirmation_id TEXT NOT NULL DEFAULT '',
  error TEXT NOT NULL DEFAULT '',
  retry_count INTEGER NOT NULL DEFAULT 0,
  match_score INTEGER,
  match_reasoning TEXT NOT NULL DEFAULT '',
  PRIMARY KEY (user_id, job_id)
);
`); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
CREATE INDEX IF NOT EXISTS idx_applications_user_submitted
ON applications(user_id, submitted_at DESC);
`); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `PRAGMA user_version = 1;`); err != nil {
		return err
	}
	return tx.Commit()
}
