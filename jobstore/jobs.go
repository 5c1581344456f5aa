package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrJobNotFound = errors.New("jobstore: job not found")

const timeLayout = time.RFC3339Nano

// CreateJob inserts a new PENDING job and returns its ID.
func (db *DB) CreateJob(ctx context.Context, principalID, jobType, inputBlobID string, opts JobOptions, priority PriorityClass) (string, error) {
	id := uuid.NewString()
	optsJSON, err := json.Marshal(opts)
	if err != nil {
		return "", fmt.Errorf("jobstore: marshaling job options: %w", err)
	}
	now := nowString()
	_, err = db.sql.ExecContext(ctx, `
		INSERT INTO jobs (id, principal_id, type, input_blob_id, options_json, status, phase, percent, description, attempts, priority_class, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, '', 0, '', 0, ?, ?, ?)`,
		id, principalID, jobType, inputBlobID, string(optsJSON), string(StatusPending), string(priority), now, now)
	if err != nil {
		return "", fmt.Errorf("jobstore: inserting job: %w", err)
	}
	return id, nil
}

// GetJob fetches a single job by ID, regardless of owning principal; callers
// that need ownership enforcement check PrincipalID themselves (httpapi does
// this uniformly for every job-scoped endpoint).
func (db *DB) GetJob(ctx context.Context, id string) (*Job, error) {
	row := db.sql.QueryRowContext(ctx, jobSelectColumns+` WHERE id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	return j, err
}

// ListByPrincipal returns every job owned by principalID, most recent first.
func (db *DB) ListByPrincipal(ctx context.Context, principalID string) ([]*Job, error) {
	rows, err := db.sql.QueryContext(ctx, jobSelectColumns+` WHERE principal_id = ? ORDER BY created_at DESC`, principalID)
	if err != nil {
		return nil, fmt.Errorf("jobstore: listing jobs: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

// NextPending pops the oldest PENDING job in priority class order
// (interactive before batch, ties by created_at), skipping any job whose
// principal already has concurrent running jobs at runningPerPrincipal, and
// any job still inside its retry backoff window.
func (db *DB) NextPending(ctx context.Context, runningPerPrincipal map[string]int, perPrincipalLimit int) (*Job, error) {
	rows, err := db.sql.QueryContext(ctx, jobSelectColumns+`
		WHERE status = ? AND (retry_after IS NULL OR retry_after <= ?)
		ORDER BY CASE priority_class WHEN 'interactive' THEN 0 ELSE 1 END, created_at ASC`,
		string(StatusPending), nowString())
	if err != nil {
		return nil, fmt.Errorf("jobstore: scanning pending queue: %w", err)
	}
	defer rows.Close()

	candidates, err := scanJobs(rows)
	if err != nil {
		return nil, err
	}
	for _, j := range candidates {
		if runningPerPrincipal[j.PrincipalID] < perPrincipalLimit {
			return j, nil
		}
	}
	return nil, nil
}

// Dispatch transitions a PENDING job to RUNNING under a freshly minted
// worker lease, resetting progress to 0 at attempt start.
func (db *DB) Dispatch(ctx context.Context, jobID, lease string, leaseExpiresAt time.Time) error {
	now := nowString()
	res, err := db.sql.ExecContext(ctx, `
		UPDATE jobs SET status = ?, phase = '', percent = 0, description = '', retry_after = NULL,
			worker_lease = ?, lease_expires_at = ?, started_at = COALESCE(started_at, ?), updated_at = ?
		WHERE id = ? AND status = ?`,
		string(StatusRunning), lease, leaseExpiresAt.Format(timeLayout), now, now, jobID, string(StatusPending))
	return checkRowsAffected(res, err)
}

// RenewLease extends a RUNNING job's worker lease; called on the worker
// heartbeat interval.
func (db *DB) RenewLease(ctx context.Context, jobID, lease string, leaseExpiresAt time.Time) error {
	res, err := db.sql.ExecContext(ctx, `
		UPDATE jobs SET lease_expires_at = ?, updated_at = ? WHERE id = ? AND worker_lease = ? AND status = ?`,
		leaseExpiresAt.Format(timeLayout), nowString(), jobID, lease, string(StatusRunning))
	return checkRowsAffected(res, err)
}

// UpdateProgress advances a RUNNING job's progress triple. percent must be
// non-decreasing within an attempt; callers (the pipeline coordinator) are
// responsible for only ever calling this with an increasing value.
func (db *DB) UpdateProgress(ctx context.Context, jobID string, p Progress) error {
	res, err := db.sql.ExecContext(ctx, `
		UPDATE jobs SET phase = ?, percent = ?, description = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		p.Phase, p.Percent, p.Description, nowString(), jobID, string(StatusRunning))
	return checkRowsAffected(res, err)
}

// Complete transitions a RUNNING job to COMPLETED with its results.
func (db *DB) Complete(ctx context.Context, jobID string, results JobResults) error {
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("jobstore: marshaling job results: %w", err)
	}
	now := nowString()
	res, err := db.sql.ExecContext(ctx, `
		UPDATE jobs SET status = ?, percent = 100, results_json = ?, worker_lease = NULL, lease_expires_at = NULL,
			finished_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(StatusCompleted), string(resultsJSON), now, now, jobID, string(StatusRunning))
	return checkRowsAffected(res, err)
}

// Fail transitions a RUNNING job to PENDING (retry, not eligible for
// dispatch again until retryAfter) or FAILED (terminal), depending on
// retryable and whether max attempts has been reached.
func (db *DB) Fail(ctx context.Context, jobID string, jobErr JobError, maxAttempts int, retryAfter time.Time) error {
	errJSON, err := json.Marshal(jobErr)
	if err != nil {
		return fmt.Errorf("jobstore: marshaling job error: %w", err)
	}
	now := nowString()

	j, err := db.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	retry := jobErr.Retryable && j.Attempts+1 < maxAttempts
	if retry {
		res, err := db.sql.ExecContext(ctx, `
			UPDATE jobs SET status = ?, attempts = attempts + 1, worker_lease = NULL, lease_expires_at = NULL,
				retry_after = ?, error_json = ?, updated_at = ?
			WHERE id = ? AND status = ?`,
			string(StatusPending), retryAfter.Format(timeLayout), string(errJSON), now, jobID, string(StatusRunning))
		return checkRowsAffected(res, err)
	}

	res, err := db.sql.ExecContext(ctx, `
		UPDATE jobs SET status = ?, attempts = attempts + 1, error_json = ?, worker_lease = NULL,
			lease_expires_at = NULL, finished_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(StatusFailed), string(errJSON), now, now, jobID, string(StatusRunning))
	return checkRowsAffected(res, err)
}

// Cancel transitions PENDING or RUNNING to CANCELLED. It is idempotent: a
// job already in a terminal state is left untouched and no error returned.
func (db *DB) Cancel(ctx context.Context, jobID string) error {
	now := nowString()
	res, err := db.sql.ExecContext(ctx, `
		UPDATE jobs SET status = ?, worker_lease = NULL, lease_expires_at = NULL, finished_at = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		string(StatusCancelled), now, now, jobID, string(StatusPending), string(StatusRunning))
	if err != nil {
		return fmt.Errorf("jobstore: cancelling job: %w", err)
	}
	return nil // no rows affected just means it was already terminal
}

// ReapExpiredLeases implements the crash-recovery rule: any RUNNING job
// whose lease has expired is returned to PENDING if it still has attempts
// remaining, else FAILED with kind worker-lost. blobExists is consulted to
// additionally fail a job outright if its input blob is gone.
func (db *DB) ReapExpiredLeases(ctx context.Context, maxAttempts int, blobExists func(ctx context.Context, blobID string) (bool, error)) (int, error) {
	rows, err := db.sql.QueryContext(ctx, jobSelectColumns+`
		WHERE status = ? AND (lease_expires_at IS NULL OR lease_expires_at < ?)`,
		string(StatusRunning), nowString())
	if err != nil {
		return 0, fmt.Errorf("jobstore: scanning expired leases: %w", err)
	}
	stale, err := scanJobs(rows)
	rows.Close()
	if err != nil {
		return 0, err
	}

	for _, j := range stale {
		exists := true
		if blobExists != nil {
			exists, err = blobExists(ctx, j.InputBlobID)
			if err != nil {
				return 0, err
			}
		}
		if exists && j.Attempts < maxAttempts {
			if err := db.requeue(ctx, j.ID); err != nil {
				return 0, err
			}
		} else {
			if err := db.Fail(ctx, j.ID, JobError{Kind: "worker-lost", Message: "worker lease expired without a live owner", Retryable: true}, 0, time.Time{}); err != nil {
				return 0, err
			}
		}
	}
	return len(stale), nil
}

func (db *DB) requeue(ctx context.Context, jobID string) error {
	now := nowString()
	_, err := db.sql.ExecContext(ctx, `
		UPDATE jobs SET status = ?, worker_lease = NULL, lease_expires_at = NULL, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(StatusPending), now, jobID, string(StatusRunning))
	return err
}

func checkRowsAffected(res sql.Result, err error) error {
	if err != nil {
		return fmt.Errorf("jobstore: executing update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("jobstore: checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return nil
}

func nowString() string { return time.Now().UTC().Format(timeLayout) }

const jobSelectColumns = `
	SELECT id, principal_id, type, input_blob_id, options_json, status, phase, percent, description,
		error_json, results_json, attempts, priority_class, worker_lease, lease_expires_at, retry_after,
		created_at, updated_at, started_at, finished_at
	FROM jobs`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		j                                      Job
		optsJSON                               string
		errJSON, resultsJSON, lease, leaseExp  sql.NullString
		retryAfter                             sql.NullString
		started, finished                      sql.NullString
		status, priority                       string
		created, updated                       string
	)
	err := row.Scan(&j.ID, &j.PrincipalID, &j.Type, &j.InputBlobID, &optsJSON, &status, &j.Progress.Phase,
		&j.Progress.Percent, &j.Progress.Description, &errJSON, &resultsJSON, &j.Attempts, &priority,
		&lease, &leaseExp, &retryAfter, &created, &updated, &started, &finished)
	if err != nil {
		return nil, err
	}
	j.Status = Status(status)
	j.PriorityClass = PriorityClass(priority)
	if err := json.Unmarshal([]byte(optsJSON), &j.Options); err != nil {
		return nil, fmt.Errorf("jobstore: unmarshaling options for job %s: %w", j.ID, err)
	}
	if errJSON.Valid {
		var e JobError
		if err := json.Unmarshal([]byte(errJSON.String), &e); err != nil {
			return nil, fmt.Errorf("jobstore: unmarshaling error for job %s: %w", j.ID, err)
		}
		j.Error = &e
	}
	if resultsJSON.Valid {
		var r JobResults
		if err := json.Unmarshal([]byte(resultsJSON.String), &r); err != nil {
			return nil, fmt.Errorf("jobstore: unmarshaling results for job %s: %w", j.ID, err)
		}
		j.Results = &r
	}
	j.WorkerLease = lease.String
	j.CreatedAt = parseTime(created)
	j.UpdatedAt = parseTime(updated)
	if leaseExp.Valid {
		t := parseTime(leaseExp.String)
		j.LeaseExpiresAt = &t
	}
	if retryAfter.Valid {
		t := parseTime(retryAfter.String)
		j.RetryAfter = &t
	}
	if started.Valid {
		t := parseTime(started.String)
		j.StartedAt = &t
	}
	if finished.Valid {
		t := parseTime(finished.String)
		j.FinishedAt = &t
	}
	return &j, nil
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	var out []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}
