package services

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/temadison/stockdash/backend/src/logger"
	"github.com/temadison/stockdash/backend/src/models"
	"github.com/temadison/stockdash/backend/src/pricing"
)

// CSVImportService parses an uploaded transaction CSV and persists the rows,
// creating accounts on first sight and skipping exact duplicates so the same
// file can be uploaded twice without doubling the ledger.
type CSVImportService struct {
	db *sql.DB
}

func NewCSVImportService(db *sql.DB) *CSVImportService {
	return &CSVImportService{db: db}
}

var requiredCSVHeaders = []string{"trade_date", "account", "symbol", "type", "quantity", "price", "fee"}

// ImportTransactions reads the CSV from r and persists valid rows. Invalid
// rows are skipped with a warning rather than failing the whole upload.
func (s *CSVImportService) ImportTransactions(r io.Reader) (models.CSVUploadResult, error) {
	result := models.CSVUploadResult{AccountsAffected: []string{}}

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return result, fmt.Errorf("reading CSV header: %w", err)
	}
	columns, err := mapCSVColumns(header)
	if err != nil {
		return result, err
	}

	accountIDs := make(map[string]int64)
	affected := make(map[string]bool)
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			logger.L.Warn("Skipping malformed CSV record", "line", line, "error", err)
			result.SkippedCount++
			continue
		}

		transaction, parseErr := parseCSVTransaction(record, columns)
		if parseErr != nil {
			logger.L.Warn("Skipping invalid CSV row", "line", line, "error", parseErr)
			result.SkippedCount++
			continue
		}

		accountID, ok := accountIDs[transaction.AccountName]
		if !ok {
			account, err := models.FindOrCreateAccount(s.db, transaction.AccountName)
			if err != nil {
				return result, fmt.Errorf("resolving account %q: %w", transaction.AccountName, err)
			}
			accountID = account.ID
			accountIDs[transaction.AccountName] = accountID
		}
		transaction.AccountID = accountID

		exists, err := models.TransactionExists(s.db, transaction)
		if err != nil {
			return result, err
		}
		if exists {
			result.SkippedCount++
			continue
		}
		if err := models.InsertTransaction(s.db, transaction); err != nil {
			return result, err
		}
		result.ImportedCount++
		affected[transaction.AccountName] = true
	}

	for name := range affected {
		result.AccountsAffected = append(result.AccountsAffected, name)
	}
	sort.Strings(result.AccountsAffected)

	logger.L.Info("Transaction CSV imported",
		"imported", result.ImportedCount, "skipped", result.SkippedCount, "accounts", len(result.AccountsAffected))
	return result, nil
}

func mapCSVColumns(header []string) (map[string]int, error) {
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range requiredCSVHeaders {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("missing required CSV column %q", required)
		}
	}
	return columns, nil
}

func parseCSVTransaction(record []string, columns map[string]int) (models.Transaction, error) {
	field := func(name string) string {
		idx := columns[name]
		if idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	tradeDate := field("trade_date")
	if _, err := time.Parse(dateLayout, tradeDate); err != nil {
		return models.Transaction{}, fmt.Errorf("invalid trade_date %q", tradeDate)
	}

	accountName := field("account")
	if accountName == "" {
		return models.Transaction{}, fmt.Errorf("blank account")
	}

	symbol := pricing.Normalize(field("symbol"))
	if symbol == "" {
		return models.Transaction{}, fmt.Errorf("blank symbol")
	}

	side := strings.ToUpper(field("type"))
	if side != models.SideBuy && side != models.SideSell {
		return models.Transaction{}, fmt.Errorf("invalid type %q", field("type"))
	}

	quantity, err := decimal.NewFromString(field("quantity"))
	if err != nil || !quantity.IsPositive() {
		return models.Transaction{}, fmt.Errorf("invalid quantity %q", field("quantity"))
	}
	price, err := decimal.NewFromString(field("price"))
	if err != nil || price.IsNegative() {
		return models.Transaction{}, fmt.Errorf("invalid price %q", field("price"))
	}

	fee := decimal.Zero
	if rawFee := field("fee"); rawFee != "" {
		fee, err = decimal.NewFromString(rawFee)
		if err != nil || fee.IsNegative() {
			return models.Transaction{}, fmt.Errorf("invalid fee %q", rawFee)
		}
	}

	return models.Transaction{
		AccountName: accountName,
		Symbol:      symbol,
		Side:        side,
		Quantity:    quantity,
		Price:       price,
		Fee:         fee,
		TradeDate:   tradeDate,
	}, nil
}
