package services

import (
	"database/sql"
	"encoding/json"

	"github.com/temadison/stockdash/backend/src/logger"
	"github.com/temadison/stockdash/backend/src/models"
)

// Per-symbol statuses that count as failures in the job-run summary.
var failureSyncStatuses = map[string]bool{
	"rate_limited":   true,
	"circuit_open":   true,
	"invalid_symbol": true,
	"api_error":      true,
	"no_data":        true,
}

const maxJobRunDetails = 1024

// JobRunRecorder writes audit rows around job executions. Recording is best
// effort: an audit failure is logged, never allowed to fail the job itself.
type JobRunRecorder struct {
	db *sql.DB
}

func NewJobRunRecorder(db *sql.DB) *JobRunRecorder {
	return &JobRunRecorder{db: db}
}

// Start opens a RUNNING audit row and returns its id (0 when recording
// failed).
func (r *JobRunRecorder) Start(jobName, details string) int64 {
	id, err := models.InsertJobRun(r.db, jobName, details)
	if err != nil {
		logger.L.Error("Unable to record job run start", "job", jobName, "error", err)
		return 0
	}
	return id
}

// CompleteSync finalizes a price sync audit row with a condensed summary of
// the PriceSyncResult.
func (r *JobRunRecorder) CompleteSync(id int64, result models.PriceSyncResult, runErr error) {
	if id == 0 {
		return
	}

	status := models.JobRunSuccess
	details := ""
	if runErr != nil {
		status = models.JobRunFailed
		details = runErr.Error()
	} else if encoded, err := json.Marshal(result.StatusBySymbol); err == nil {
		details = string(encoded)
	}

	failed := 0
	for _, symbolStatus := range result.StatusBySymbol {
		if failureSyncStatuses[symbolStatus] {
			failed++
		}
	}

	r.complete(id, status, result.SymbolsRequested, result.SymbolsWithPurchases, failed, len(result.SkippedSymbols), details)
}

// CompleteImport finalizes a CSV import audit row.
func (r *JobRunRecorder) CompleteImport(id int64, result models.CSVUploadResult, runErr error) {
	if id == 0 {
		return
	}

	status := models.JobRunSuccess
	details := ""
	if runErr != nil {
		status = models.JobRunFailed
		details = runErr.Error()
	}
	requested := result.ImportedCount + result.SkippedCount
	r.complete(id, status, requested, result.ImportedCount, 0, result.SkippedCount, details)
}

func (r *JobRunRecorder) complete(id int64, status string, requested, processed, failed, skipped int, details string) {
	if len(details) > maxJobRunDetails {
		details = details[:maxJobRunDetails]
	}
	err := models.CompleteJobRun(r.db, id, status, requested, processed, failed, skipped, details)
	if err != nil {
		logger.L.Error("Unable to record job run completion", "job_run_id", id, "error", err)
	}
}
