package models

import "github.com/shopspring/decimal"

// PositionValue is one symbol's market value inside an account snapshot.
type PositionValue struct {
	Symbol      string          `json:"symbol"`
	Quantity    decimal.Decimal `json:"quantity"`
	ClosePrice  decimal.Decimal `json:"close_price"`
	MarketValue decimal.Decimal `json:"market_value"`
}

// PortfolioSnapshot is one account's valuation as of a single day.
type PortfolioSnapshot struct {
	AccountName string          `json:"account_name"`
	AsOfDate    string          `json:"as_of_date"`
	TotalValue  decimal.Decimal `json:"total_value"`
	Positions   []PositionValue `json:"positions"`
}

// StockPerformanceValue is one symbol's value inside a performance point.
type StockPerformanceValue struct {
	Symbol      string          `json:"symbol"`
	MarketValue decimal.Decimal `json:"market_value"`
}

// PerformancePoint is the aggregate portfolio value for one day of the
// performance range.
type PerformancePoint struct {
	Date       string                  `json:"date"`
	TotalValue decimal.Decimal         `json:"total_value"`
	Stocks     []StockPerformanceValue `json:"stocks"`
}

// DailyClosePricePoint is one row of the stored price history view.
type DailyClosePricePoint struct {
	Date       string          `json:"date"`
	ClosePrice decimal.Decimal `json:"close_price"`
}

// PriceSyncResult summarizes one SyncForStocks call. It is returned to the
// caller and condensed into a job_runs row, never persisted itself.
type PriceSyncResult struct {
	SymbolsRequested     int            `json:"symbols_requested"`
	SymbolsWithPurchases int            `json:"symbols_with_purchases"`
	PricesStored         int            `json:"prices_stored"`
	StoredBySymbol       map[string]int `json:"stored_by_symbol"`
	StatusBySymbol       map[string]string `json:"status_by_symbol"`
	SkippedSymbols       []string       `json:"skipped_symbols"`
}

// CSVUploadResult summarizes one transaction CSV import.
type CSVUploadResult struct {
	ImportedCount    int      `json:"imported_count"`
	SkippedCount     int      `json:"skipped_count"`
	AccountsAffected []string `json:"accounts_affected"`
}
