package models

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrDuplicatePrice is returned when an insert collides with the
// UNIQUE(symbol, price_date) constraint. The constraint is the authoritative
// de-duplication guard for concurrent sync runs.
var ErrDuplicatePrice = errors.New("duplicate daily close price")

// DailyClosePrice represents one stored close price for a symbol and day.
// Rows are append-only; the sync orchestrator is the sole writer.
type DailyClosePrice struct {
	ID         int64
	Symbol     string
	PriceDate  string // YYYY-MM-DD
	ClosePrice decimal.Decimal
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// InsertPrice stores a single close price row. A collision on
// (symbol, price_date) surfaces as ErrDuplicatePrice.
func InsertPrice(db *sql.DB, price DailyClosePrice) error {
	_, err := db.Exec(`
		INSERT INTO daily_close_prices (symbol, price_date, close_price)
		VALUES (?, ?, ?)`,
		price.Symbol, price.PriceDate, price.ClosePrice.String())
	if isUniqueViolation(err) {
		return ErrDuplicatePrice
	}
	return err
}

// InsertPriceBatch stores a batch of close price rows in one transaction.
// Any failure rolls the whole batch back; a uniqueness collision surfaces as
// ErrDuplicatePrice so the caller can retry row by row.
func InsertPriceBatch(db *sql.DB, prices []DailyClosePrice) error {
	if len(prices) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO daily_close_prices (symbol, price_date, close_price)
		VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, price := range prices {
		if _, err := stmt.Exec(price.Symbol, price.PriceDate, price.ClosePrice.String()); err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicatePrice
			}
			return err
		}
	}
	return tx.Commit()
}

// GetLatestPriceDate returns the newest stored price date for a symbol.
func GetLatestPriceDate(db *sql.DB, symbol string) (string, bool, error) {
	var date string
	err := db.QueryRow(`
		SELECT price_date FROM daily_close_prices
		WHERE symbol = ?
		ORDER BY price_date DESC
		LIMIT 1`, symbol).Scan(&date)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return date, true, nil
}

// GetPriceDatesAfter returns the set of stored price dates strictly after the
// given date for a symbol.
func GetPriceDatesAfter(db *sql.DB, symbol, date string) (map[string]bool, error) {
	rows, err := db.Query(`
		SELECT price_date FROM daily_close_prices
		WHERE symbol = ? AND price_date > ?`, symbol, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	dates := make(map[string]bool)
	for rows.Next() {
		var priceDate string
		if err := rows.Scan(&priceDate); err != nil {
			return nil, err
		}
		dates[priceDate] = true
	}
	return dates, rows.Err()
}

// GetClosesThrough returns every stored close for a symbol with
// price_date <= endDate, ordered by price_date ascending.
func GetClosesThrough(db *sql.DB, symbol, endDate string) ([]DailyClosePrice, error) {
	rows, err := db.Query(`
		SELECT id, symbol, price_date, close_price FROM daily_close_prices
		WHERE symbol = ? AND price_date <= ?
		ORDER BY price_date ASC`, symbol, endDate)
	if err != nil {
		return nil, err
	}
	return collectPrices(rows)
}

// GetLatestCloseOnOrBefore returns the newest stored close at or before the
// given date for a symbol.
func GetLatestCloseOnOrBefore(db *sql.DB, symbol, date string) (decimal.Decimal, bool, error) {
	var raw string
	err := db.QueryRow(`
		SELECT close_price FROM daily_close_prices
		WHERE symbol = ? AND price_date <= ?
		ORDER BY price_date DESC
		LIMIT 1`, symbol, date).Scan(&raw)
	if err == sql.ErrNoRows {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	price, err := scanDecimal(raw, "close_price")
	if err != nil {
		return decimal.Zero, false, err
	}
	return price, true, nil
}

// GetPriceHistory returns stored closes for a symbol within the optional
// [startDate, endDate] bounds (blank means unbounded), newest first.
func GetPriceHistory(db *sql.DB, symbol, startDate, endDate string) ([]DailyClosePrice, error) {
	query := `SELECT id, symbol, price_date, close_price FROM daily_close_prices WHERE symbol = ?`
	args := []interface{}{symbol}
	if startDate != "" {
		query += ` AND price_date >= ?`
		args = append(args, startDate)
	}
	if endDate != "" {
		query += ` AND price_date <= ?`
		args = append(args, endDate)
	}
	query += ` ORDER BY price_date DESC`
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	return collectPrices(rows)
}

func collectPrices(rows *sql.Rows) ([]DailyClosePrice, error) {
	defer rows.Close()
	var prices []DailyClosePrice
	for rows.Next() {
		var p DailyClosePrice
		var raw string
		if err := rows.Scan(&p.ID, &p.Symbol, &p.PriceDate, &raw); err != nil {
			return nil, err
		}
		price, err := scanDecimal(raw, "close_price")
		if err != nil {
			return nil, err
		}
		p.ClosePrice = price
		prices = append(prices, p)
	}
	return prices, rows.Err()
}
