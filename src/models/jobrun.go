package models

import (
	"database/sql"
	"time"
)

// Job run statuses.
const (
	JobRunRunning = "RUNNING"
	JobRunSuccess = "SUCCESS"
	JobRunFailed  = "FAILED"
)

// JobRun is an audit record for one execution of a background or
// request-triggered job (CSV import, price sync).
type JobRun struct {
	ID             int64
	JobName        string
	StartedAt      time.Time
	FinishedAt     sql.NullTime
	Status         string
	RequestedCount int
	ProcessedCount int
	FailedCount    int
	SkippedCount   int
	Details        string
}

// InsertJobRun creates a RUNNING job run row and returns its id.
func InsertJobRun(db *sql.DB, jobName, details string) (int64, error) {
	result, err := db.Exec(`
		INSERT INTO job_runs (job_name, started_at, status, details)
		VALUES (?, ?, ?, ?)`,
		jobName, time.Now().UTC(), JobRunRunning, details)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// CompleteJobRun finalizes a job run row with its outcome and counters.
func CompleteJobRun(db *sql.DB, id int64, status string, requested, processed, failed, skipped int, details string) error {
	_, err := db.Exec(`
		UPDATE job_runs
		SET finished_at = ?, status = ?, requested_count = ?, processed_count = ?, failed_count = ?, skipped_count = ?, details = ?
		WHERE id = ?`,
		time.Now().UTC(), status, requested, processed, failed, skipped, details, id)
	return err
}
