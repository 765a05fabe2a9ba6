package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"jobagent-engine/internal/domain"
)

// Tracker is the query surface the Workflow Engine and HTTP Surface use
// against the applications table.
type Tracker struct {
	db *DB
}

func New(db *DB) *Tracker {
	return &Tracker{db: db}
}

// UpsertAttempt writes record atomically by (user_id, job_id). If a prior
// row exists its retry_count is incremented; otherwise the row is
// inserted fresh. Per spec, retries mutate the record in place rather
// than creating a new row.
func (t *Tracker) UpsertAttempt(ctx context.Context, rec domain.ApplicationRecord) error {
	var submittedAt any
	if rec.SubmittedAt != nil {
		submittedAt = rec.SubmittedAt.UTC().Format(time.RFC3339)
	}

	tx, err := t.db.Pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var existingRetries int
	err = tx.QueryRowContext(ctx, `SELECT retry_count FROM applications WHERE user_id = ? AND job_id = ?`, rec.UserID, rec.JobID).Scan(&existingRetries)
	switch {
	case err == sql.ErrNoRows:
		existingRetries = -1 // first attempt, no increment
	case err != nil:
		return fmt.Errorf("upsert attempt: lookup: %w", err)
	}

	retryCount := rec.RetryCount
	if existingRetries >= 0 && retryCount <= existingRetries {
		retryCount = existingRetries + 1
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO applications (user_id, job_id, job_title, company, status, submitted_at, confirmation_id, error, retry_count, match_score, match_reasoning)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (user_id, job_id) DO UPDATE SET
  job_title = excluded.job_title,
  company = excluded.company,
  status = excluded.status,
  submitted_at = excluded.submitted_at,
  confirmation_id = excluded.confirmation_id,
  error = excluded.error,
  retry_count = excluded.retry_count,
  match_score = excluded.match_score,
  match_reasoning = excluded.match_reasoning;
`, rec.UserID, rec.JobID, rec.JobTitle, rec.Company, string(rec.Status), submittedAt, rec.ConfirmationID, rec.Error, retryCount, rec.MatchScore, rec.MatchReasoning)
	if err != nil {
		return fmt.Errorf("upsert attempt: %w", err)
	}
	return tx.Commit()
}

// List returns application records for userID, optionally filtered by
// status, ordered by submitted_at descending with missing timestamps
// last.
func (t *Tracker) List(ctx context.Context, userID string, statusFilter domain.ApplicationStatus) ([]domain.ApplicationRecord, error) {
	query := `
SELECT user_id, job_id, job_title, company, status, submitted_at, confirmation_id, error, retry_count, match_score, match_reasoning
FROM applications
WHERE user_id = ?`
	args := []any{userID}
	if statusFilter != "" {
		query += ` AND status = ?`
		args = append(args, string(statusFilter))
	}
	query += ` ORDER BY submitted_at IS NULL, submitted_at DESC;`

	rows, err := t.db.Pool.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	var out []domain.ApplicationRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CountSubmittedToday counts submitted applications for userID within a
// rolling 24h window against submitted_at, per the Policy Gate's daily
// cap check. The spec leaves rolling-vs-calendar open; this module
// chose rolling (see DESIGN.md).
func (t *Tracker) CountSubmittedToday(ctx context.Context, userID string) (int, error) {
	var n int
	err := t.db.Pool.QueryRowContext(ctx, `
SELECT COUNT(*) FROM applications
WHERE user_id = ? AND status = 'submitted' AND datetime(submitted_at) >= datetime('now', '-24 hours');
`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count submitted today: %w", err)
	}
	return n, nil
}

// Get returns the single record for (userID, jobID), if any.
func (t *Tracker) Get(ctx context.Context, userID, jobID string) (domain.ApplicationRecord, bool, error) {
	row := t.db.Pool.QueryRowContext(ctx, `
SELECT user_id, job_id, job_title, company, status, submitted_at, confirmation_id, error, retry_count, match_score, match_reasoning
FROM applications WHERE user_id = ? AND job_id = ?;
`, userID, jobID)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return domain.ApplicationRecord{}, false, nil
	}
	if err != nil {
		return domain.ApplicationRecord{}, false, fmt.Errorf("get application: %w", err)
	}
	return rec, true, nil
}

// Clear deletes all records for userID.
func (t *Tracker) Clear(ctx context.Context, userID string) (int64, error) {
	res, err := t.db.Pool.ExecContext(ctx, `DELETE FROM applications WHERE user_id = ?;`, userID)
	if err != nil {
		return 0, fmt.Errorf("clear applications: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(r rowScanner) (domain.ApplicationRecord, error) {
	var rec domain.ApplicationRecord
	var status string
	var submittedAt sql.NullString
	var matchScore sql.NullInt64

	if err := r.Scan(&rec.UserID, &rec.JobID, &rec.JobTitle, &rec.Company, &status, &submittedAt, &rec.ConfirmationID, &rec.Error, &rec.RetryCount, &matchScore, &rec.MatchReasoning); err != nil {
		return domain.ApplicationRecord{}, err
	}
	rec.Status = domain.ApplicationStatus(status)
	if submittedAt.Valid {
		if ts, err := time.Parse(time.RFC3339, submittedAt.String); err == nil {
			rec.SubmittedAt = &ts
		}
	}
	if matchScore.Valid {
		v := int(matchScore.Int64)
		rec.MatchScore = &v
	}
	return rec, nil
}
