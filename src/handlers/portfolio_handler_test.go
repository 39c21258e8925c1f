package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temadison/stockdash/backend/src/logger"
	"github.com/temadison/stockdash/backend/src/models"
	"github.com/temadison/stockdash/backend/src/pricing"
	"github.com/temadison/stockdash/backend/src/services"
	_ "modernc.org/sqlite"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	os.Exit(m.Run())
}

const handlerTestSchema = `
CREATE TABLE accounts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE COLLATE NOCASE,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE trade_transactions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    account_id INTEGER NOT NULL REFERENCES accounts(id),
    symbol TEXT NOT NULL,
    side TEXT NOT NULL CHECK (side IN ('BUY', 'SELL')),
    quantity TEXT NOT NULL,
    price TEXT NOT NULL,
    fee TEXT NOT NULL,
    trade_date TEXT NOT NULL
);
CREATE TABLE daily_close_prices (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    symbol TEXT NOT NULL,
    price_date TEXT NOT NULL,
    close_price TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    CONSTRAINT uk_daily_close_prices_symbol_date UNIQUE (symbol, price_date)
);
CREATE TABLE job_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    job_name TEXT NOT NULL,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP,
    status TEXT NOT NULL CHECK (status IN ('RUNNING', 'SUCCESS', 'FAILED')),
    requested_count INTEGER NOT NULL DEFAULT 0,
    processed_count INTEGER NOT NULL DEFAULT 0,
    failed_count INTEGER NOT NULL DEFAULT 0,
    skipped_count INTEGER NOT NULL DEFAULT 0,
    details TEXT
);
`

type stubFetcher struct{}

func (stubFetcher) FetchDailyCloseSeries(context.Context, string) pricing.SeriesFetchResult {
	return pricing.SeriesFetchResult{Series: map[string]decimal.Decimal{}, Status: pricing.StatusNoData}
}

func newTestRouter(t *testing.T) (*chi.Mux, *sql.DB) {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(handlerTestSchema)
	require.NoError(t, err)

	fallback := services.NewFallbackSeriesService(db)
	syncService := services.NewPriceSyncService(db, stubFetcher{}, fallback, true, 120)
	portfolioService := services.NewPortfolioService(db, nil)
	importService := services.NewCSVImportService(db)
	recorder := services.NewJobRunRecorder(db)

	handler := NewPortfolioHandler(db, syncService, portfolioService, importService, recorder)

	r := chi.NewRouter()
	r.Use(ContextualLoggerMiddleware)
	r.Route("/api/portfolio", func(r chi.Router) {
		r.Post("/prices/sync", handler.HandleSyncPrices)
		r.Get("/prices/history", handler.HandlePriceHistory)
		r.Get("/daily-summary", handler.HandleDailySummary)
		r.Get("/performance", handler.HandlePerformance)
		r.Get("/symbols", handler.HandleListSymbols)
	})
	return r, db
}

func TestHandleSyncPricesRejectsEmptyLedger(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/portfolio/prices/sync", strings.NewReader(`{"symbols": []}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "symbol")
}

func TestHandleSyncPricesReportsPerSymbolStatus(t *testing.T) {
	router, db := newTestRouter(t)
	account, err := models.FindOrCreateAccount(db, "Main")
	require.NoError(t, err)
	err = models.InsertTransaction(db, models.Transaction{
		AccountID: account.ID, Symbol: "AAPL", Side: models.SideBuy,
		Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(100),
		Fee: decimal.Zero, TradeDate: "2026-03-01",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/portfolio/prices/sync", strings.NewReader(`{"symbols": ["AAPL", "ZZZZ"]}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var result models.PriceSyncResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 2, result.SymbolsRequested)
	assert.Equal(t, []string{"ZZZZ"}, result.SkippedSymbols)
	assert.Equal(t, "no_purchase_history", result.StatusBySymbol["ZZZZ"])
}

func TestHandlePerformanceRejectsInvertedRange(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/portfolio/performance?start_date=2026-02-16&end_date=2026-01-01", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleDailySummaryRejectsBadDate(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/portfolio/daily-summary?date=not-a-date", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlePriceHistoryRequiresSymbol(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/portfolio/prices/history", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleListSymbolsEmptyLedger(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/portfolio/symbols", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}
