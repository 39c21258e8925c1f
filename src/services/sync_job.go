package services

import (
	"context"
	"database/sql"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"github.com/temadison/stockdash/backend/src/logger"
	"github.com/temadison/stockdash/backend/src/models"
)

const syncJobName = "scheduled_price_sync"

// SyncJobScheduler runs a full-ledger price sync on a cron schedule.
// Overlapping runs are skipped rather than queued.
type SyncJobScheduler struct {
	db       *sql.DB
	syncer   PriceSyncer
	recorder *JobRunRecorder
	cronSpec string

	cron    *cron.Cron
	running atomic.Bool
}

func NewSyncJobScheduler(db *sql.DB, syncer PriceSyncer, recorder *JobRunRecorder, cronSpec string) *SyncJobScheduler {
	return &SyncJobScheduler{
		db:       db,
		syncer:   syncer,
		recorder: recorder,
		cronSpec: cronSpec,
	}
}

// Start registers the cron entry and begins scheduling.
func (s *SyncJobScheduler) Start() error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.cronSpec, s.runOnce); err != nil {
		return err
	}
	s.cron.Start()
	logger.L.Info("Scheduled price sync enabled", "cron", s.cronSpec)
	return nil
}

// Stop halts scheduling; an in-flight run finishes on its own.
func (s *SyncJobScheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

func (s *SyncJobScheduler) runOnce() {
	if !s.running.CompareAndSwap(false, true) {
		logger.L.Warn("Skipping scheduled price sync, previous run still in progress")
		return
	}
	defer s.running.Store(false)

	symbols, err := models.GetDistinctSymbols(s.db)
	if err != nil {
		logger.L.Error("Scheduled price sync could not list symbols", "error", err)
		return
	}
	if len(symbols) == 0 {
		logger.L.Info("Scheduled price sync found no symbols in the ledger")
		return
	}

	runID := s.recorder.Start(syncJobName, "")
	result, err := s.syncer.SyncForStocks(context.Background(), symbols)
	s.recorder.CompleteSync(runID, result, err)
	if err != nil {
		logger.L.Error("Scheduled price sync failed", "error", err)
		return
	}
	logger.L.Info("Scheduled price sync finished",
		"symbols", result.SymbolsRequested, "stored", result.PricesStored)
}
