package models

import (
	"database/sql"
	"strings"

	"github.com/shopspring/decimal"
)

// Transaction sides.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Transaction represents a single immutable row of the trade ledger.
// Ordering key is (trade_date, id) ascending.
type Transaction struct {
	ID          int64           `json:"id,omitempty"`
	AccountID   int64           `json:"-"`
	AccountName string          `json:"account"`
	Symbol      string          `json:"symbol"`
	Side        string          `json:"side"` // BUY or SELL
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Fee         decimal.Decimal `json:"fee"`
	TradeDate   string          `json:"trade_date"` // YYYY-MM-DD
}

const transactionColumns = `t.id, t.account_id, a.name, t.symbol, t.side, t.quantity, t.price, t.fee, t.trade_date`

func scanTransaction(rows *sql.Rows) (Transaction, error) {
	var t Transaction
	var quantity, price, fee string
	if err := rows.Scan(&t.ID, &t.AccountID, &t.AccountName, &t.Symbol, &t.Side, &quantity, &price, &fee, &t.TradeDate); err != nil {
		return Transaction{}, err
	}
	var err error
	if t.Quantity, err = scanDecimal(quantity, "quantity"); err != nil {
		return Transaction{}, err
	}
	if t.Price, err = scanDecimal(price, "price"); err != nil {
		return Transaction{}, err
	}
	if t.Fee, err = scanDecimal(fee, "fee"); err != nil {
		return Transaction{}, err
	}
	return t, nil
}

func collectTransactions(rows *sql.Rows) ([]Transaction, error) {
	defer rows.Close()
	var transactions []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}

// InsertTransaction persists a single ledger row.
func InsertTransaction(db *sql.DB, t Transaction) error {
	_, err := db.Exec(`
		INSERT INTO trade_transactions (account_id, symbol, side, quantity, price, fee, trade_date)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.AccountID, t.Symbol, t.Side, t.Quantity.String(), t.Price.String(), t.Fee.String(), t.TradeDate)
	return err
}

// TransactionExists reports whether an identical ledger row is already stored.
// Used by the CSV importer to skip exact duplicates on re-upload.
func TransactionExists(db *sql.DB, t Transaction) (bool, error) {
	var count int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM trade_transactions
		WHERE account_id = ? AND symbol = ? AND side = ? AND quantity = ? AND price = ? AND fee = ? AND trade_date = ?`,
		t.AccountID, t.Symbol, t.Side, t.Quantity.String(), t.Price.String(), t.Fee.String(), t.TradeDate,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetTransactionsThrough returns every transaction with trade_date <= endDate,
// ordered by (trade_date, id) ascending.
func GetTransactionsThrough(db *sql.DB, endDate string) ([]Transaction, error) {
	rows, err := db.Query(`
		SELECT `+transactionColumns+`
		FROM trade_transactions t
		JOIN accounts a ON a.id = t.account_id
		WHERE t.trade_date <= ?
		ORDER BY t.trade_date ASC, t.id ASC`, endDate)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

// GetBuyTransactionsBySymbols returns BUY transactions for any of the given
// symbols, ordered by (trade_date, id) ascending.
func GetBuyTransactionsBySymbols(db *sql.DB, symbols []string) ([]Transaction, error) {
	if len(symbols) == 0 {
		return nil, nil
	}
	query := `
		SELECT ` + transactionColumns + `
		FROM trade_transactions t
		JOIN accounts a ON a.id = t.account_id
		WHERE t.side = 'BUY' AND t.symbol IN (?` + strings.Repeat(",?", len(symbols)-1) + `)
		ORDER BY t.trade_date ASC, t.id ASC`
	args := make([]interface{}, len(symbols))
	for i, symbol := range symbols {
		args[i] = symbol
	}
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

// GetTransactionsBySymbol returns the full ledger for one symbol,
// ordered by (trade_date, id) ascending.
func GetTransactionsBySymbol(db *sql.DB, symbol string) ([]Transaction, error) {
	rows, err := db.Query(`
		SELECT `+transactionColumns+`
		FROM trade_transactions t
		JOIN accounts a ON a.id = t.account_id
		WHERE t.symbol = ?
		ORDER BY t.trade_date ASC, t.id ASC`, symbol)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

// GetDistinctSymbols returns every symbol present in the ledger, ascending.
func GetDistinctSymbols(db *sql.DB) ([]string, error) {
	rows, err := db.Query(`SELECT DISTINCT symbol FROM trade_transactions ORDER BY symbol ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, err
		}
		symbols = append(symbols, symbol)
	}
	return symbols, rows.Err()
}
