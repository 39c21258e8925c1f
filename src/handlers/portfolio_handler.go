package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/temadison/stockdash/backend/src/logger"
	"github.com/temadison/stockdash/backend/src/models"
	"github.com/temadison/stockdash/backend/src/services"
	"github.com/temadison/stockdash/backend/src/utils"
)

const (
	manualSyncJobName = "manual_price_sync"
	csvImportJobName  = "transaction_csv_import"
)

type PortfolioHandler struct {
	db               *sql.DB
	syncService      services.PriceSyncer
	portfolioService *services.PortfolioService
	importService    *services.CSVImportService
	jobRecorder      *services.JobRunRecorder
}

func NewPortfolioHandler(db *sql.DB, syncService services.PriceSyncer, portfolioService *services.PortfolioService, importService *services.CSVImportService, jobRecorder *services.JobRunRecorder) *PortfolioHandler {
	return &PortfolioHandler{
		db:               db,
		syncService:      syncService,
		portfolioService: portfolioService,
		importService:    importService,
		jobRecorder:      jobRecorder,
	}
}

type syncRequest struct {
	Symbols []string `json:"symbols"`
}

// HandleSyncPrices triggers a price sync for the requested symbols, or for
// every symbol in the ledger when none are given.
func (h *PortfolioHandler) HandleSyncPrices(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())

	var req syncRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.SendJSONError(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
	}
	if len(req.Symbols) == 0 {
		symbols, err := models.GetDistinctSymbols(h.db)
		if err != nil {
			ctxLogger.Error("Unable to list ledger symbols for sync", "error", err)
			utils.SendJSONError(w, "unable to list symbols", http.StatusInternalServerError)
			return
		}
		req.Symbols = symbols
	}

	runID := h.jobRecorder.Start(manualSyncJobName, "")
	result, err := h.syncService.SyncForStocks(r.Context(), req.Symbols)
	h.jobRecorder.CompleteSync(runID, result, err)
	if err != nil {
		if errors.Is(err, services.ErrNoSymbols) {
			utils.SendJSONError(w, "at least one symbol is required", http.StatusBadRequest)
			return
		}
		ctxLogger.Error("Price sync failed", "error", err)
		utils.SendJSONError(w, fmt.Sprintf("price sync failed: %v", err), http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, result, http.StatusOK)
}

// HandleDailySummary returns per-account valuations as of ?date (today when
// omitted).
func (h *PortfolioHandler) HandleDailySummary(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())

	snapshots, err := h.portfolioService.GetDailySummary(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		if errors.Is(err, services.ErrInvalidDate) {
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		ctxLogger.Error("Daily summary failed", "error", err)
		utils.SendJSONError(w, "unable to compute daily summary", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, snapshots, http.StatusOK)
}

// HandlePerformance returns one aggregate value point per day over the
// requested range, optionally filtered by ?account.
func (h *PortfolioHandler) HandlePerformance(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())
	query := r.URL.Query()

	points, err := h.portfolioService.GetPerformance(r.Context(),
		query.Get("account"), query.Get("start_date"), query.Get("end_date"))
	if err != nil {
		if errors.Is(err, services.ErrInvalidDate) || errors.Is(err, services.ErrInvalidDateRange) {
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		ctxLogger.Error("Performance query failed", "error", err)
		utils.SendJSONError(w, "unable to compute performance", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, points, http.StatusOK)
}

// HandlePriceHistory returns stored closes for ?symbol within the optional
// ?start_date / ?end_date bounds, newest first.
func (h *PortfolioHandler) HandlePriceHistory(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())
	query := r.URL.Query()

	symbol := query.Get("symbol")
	if symbol == "" {
		utils.SendJSONError(w, "symbol is required", http.StatusBadRequest)
		return
	}

	prices, err := models.GetPriceHistory(h.db, symbol, query.Get("start_date"), query.Get("end_date"))
	if err != nil {
		ctxLogger.Error("Price history query failed", "symbol", symbol, "error", err)
		utils.SendJSONError(w, "unable to load price history", http.StatusInternalServerError)
		return
	}

	points := make([]models.DailyClosePricePoint, 0, len(prices))
	for _, p := range prices {
		points = append(points, models.DailyClosePricePoint{Date: p.PriceDate, ClosePrice: p.ClosePrice})
	}
	utils.SendJSON(w, points, http.StatusOK)
}

// HandleListSymbols returns every symbol present in the trade ledger.
func (h *PortfolioHandler) HandleListSymbols(w http.ResponseWriter, r *http.Request) {
	symbols, err := models.GetDistinctSymbols(h.db)
	if err != nil {
		logger.FromContext(r.Context()).Error("Symbol listing failed", "error", err)
		utils.SendJSONError(w, "unable to list symbols", http.StatusInternalServerError)
		return
	}
	if symbols == nil {
		symbols = []string{}
	}
	utils.SendJSON(w, symbols, http.StatusOK)
}

// HandleUploadTransactions imports a transaction CSV from the "file"
// multipart field.
func (h *PortfolioHandler) HandleUploadTransactions(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())

	file, header, err := r.FormFile("file")
	if err != nil {
		utils.SendJSONError(w, "a CSV file is required in the 'file' field", http.StatusBadRequest)
		return
	}
	defer file.Close()
	ctxLogger.Info("Processing transaction CSV upload", "filename", header.Filename, "size", header.Size)

	runID := h.jobRecorder.Start(csvImportJobName, header.Filename)
	result, err := h.importService.ImportTransactions(file)
	h.jobRecorder.CompleteImport(runID, result, err)
	if err != nil {
		ctxLogger.Warn("Transaction CSV import rejected", "error", err)
		utils.SendJSONError(w, fmt.Sprintf("import failed: %v", err), http.StatusBadRequest)
		return
	}
	utils.SendJSON(w, result, http.StatusOK)
}
