package services

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
	"github.com/temadison/stockdash/backend/src/logger"
	"github.com/temadison/stockdash/backend/src/models"
)

const dateLayout = "2006-01-02"

// FallbackSeriesService builds a forward-filled daily price series from the
// symbol's own trade history, carrying the last known trade price forward.
// It substitutes for the external provider when a fetch fails for a
// retryable/opaque reason.
type FallbackSeriesService struct {
	db  *sql.DB
	now func() time.Time
}

func NewFallbackSeriesService(db *sql.DB) *FallbackSeriesService {
	return &FallbackSeriesService{db: db, now: time.Now}
}

// GenerateSeries produces a date -> price map covering every calendar day
// from max(firstBuyDate+1, today-lookbackDays) through yesterday. Days before
// the first trade carry no price and are omitted. Returns an empty map when
// the symbol has no trades or the window is empty.
func (s *FallbackSeriesService) GenerateSeries(symbol, firstBuyDate string, lookbackDays int) (map[string]decimal.Decimal, error) {
	series := make(map[string]decimal.Decimal)

	trades, err := models.GetTransactionsBySymbol(s.db, symbol)
	if err != nil {
		return nil, err
	}
	if len(trades) == 0 {
		return series, nil
	}

	firstBuy, err := time.Parse(dateLayout, firstBuyDate)
	if err != nil {
		return nil, ErrInvalidDate
	}

	today := s.now().Truncate(24 * time.Hour)
	start := firstBuy.AddDate(0, 0, 1)
	if lookbackStart := today.AddDate(0, 0, -lookbackDays); lookbackStart.After(start) {
		start = lookbackStart
	}
	end := today.AddDate(0, 0, -1)
	if start.After(end) {
		return series, nil
	}

	// Advance the trade cursor past everything before the window so the
	// first day starts from the correct carried-forward price.
	startStr := start.Format(dateLayout)
	idx := 0
	var currentPrice decimal.Decimal
	priceKnown := false
	for idx < len(trades) && trades[idx].TradeDate < startStr {
		currentPrice = trades[idx].Price
		priceKnown = true
		idx++
	}

	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		dayStr := day.Format(dateLayout)
		if priceKnown {
			series[dayStr] = currentPrice
		}
		for idx < len(trades) && trades[idx].TradeDate <= dayStr {
			currentPrice = trades[idx].Price
			priceKnown = true
			idx++
		}
	}

	logger.L.Info("Generated local fallback price series",
		"symbol", symbol, "days", len(series), "window_start", startStr, "window_end", end.Format(dateLayout))
	return series, nil
}
