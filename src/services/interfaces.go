package services

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/temadison/stockdash/backend/src/models"
	"github.com/temadison/stockdash/backend/src/pricing"
)

// Caller input errors, mapped to rejected requests by the handlers.
var (
	ErrNoSymbols        = errors.New("no symbols provided")
	ErrInvalidDate      = errors.New("invalid date, expected YYYY-MM-DD")
	ErrInvalidDateRange = errors.New("start date is after end date")
)

// SeriesFetcher fetches the daily close series for one symbol.
type SeriesFetcher interface {
	FetchDailyCloseSeries(ctx context.Context, symbol string) pricing.SeriesFetchResult
}

// FallbackSeriesGenerator synthesizes a daily price series from the trade
// ledger when the external provider is unusable.
type FallbackSeriesGenerator interface {
	GenerateSeries(symbol, firstBuyDate string, lookbackDays int) (map[string]decimal.Decimal, error)
}

// MarketPriceLookup resolves a best-effort live quote for a symbol.
type MarketPriceLookup interface {
	GetLivePrice(ctx context.Context, symbol string) (decimal.Decimal, bool)
}

// PriceSyncer runs a price synchronization pass over a set of symbols.
type PriceSyncer interface {
	SyncForStocks(ctx context.Context, symbols []string) (models.PriceSyncResult, error)
}
