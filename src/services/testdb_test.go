package services

import (
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/temadison/stockdash/backend/src/logger"
	"github.com/temadison/stockdash/backend/src/models"
	_ "modernc.org/sqlite"
)

var initTestLogger sync.Once

const testSchema = `
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

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	initTestLogger.Do(func() { logger.InitLogger("error") })

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(testSchema)
	require.NoError(t, err)
	return db
}

func insertTestTransaction(t *testing.T, db *sql.DB, account, symbol, side, quantity, price, fee, tradeDate string) {
	t.Helper()
	acc, err := models.FindOrCreateAccount(db, account)
	require.NoError(t, err)
	err = models.InsertTransaction(db, models.Transaction{
		AccountID: acc.ID,
		Symbol:    symbol,
		Side:      side,
		Quantity:  mustDecimal(t, quantity),
		Price:     mustDecimal(t, price),
		Fee:       mustDecimal(t, fee),
		TradeDate: tradeDate,
	})
	require.NoError(t, err)
}

func insertTestPrice(t *testing.T, db *sql.DB, symbol, date, price string) {
	t.Helper()
	err := models.InsertPrice(db, models.DailyClosePrice{
		Symbol:     symbol,
		PriceDate:  date,
		ClosePrice: mustDecimal(t, price),
	})
	require.NoError(t, err)
}

func mustDecimal(t *testing.T, value string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(value)
	require.NoError(t, err)
	return d
}

func fixedNow(date string) func() time.Time {
	return func() time.Time {
		parsed, _ := time.Parse(dateLayout, date)
		return parsed
	}
}
