package services

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMarketPrice struct {
	prices map[string]string
	calls  int
}

func (f *fakeMarketPrice) GetLivePrice(_ context.Context, symbol string) (decimal.Decimal, bool) {
	f.calls++
	if raw, ok := f.prices[symbol]; ok {
		return decimal.RequireFromString(raw), true
	}
	return decimal.Zero, false
}

func TestGetDailySummaryValuesOpenPositions(t *testing.T) {
	db := openTestDB(t)
	insertTestTransaction(t, db, "Broker A", "AAPL", "BUY", "10", "100", "1.50", "2026-03-01")
	insertTestTransaction(t, db, "Broker A", "AAPL", "SELL", "4", "105", "1.50", "2026-03-03")
	insertTestTransaction(t, db, "Broker A", "MSFT", "BUY", "2", "200", "0", "2026-03-02")
	insertTestPrice(t, db, "AAPL", "2026-03-09", "110")

	service := NewPortfolioService(db, &fakeMarketPrice{prices: map[string]string{"MSFT": "210"}})
	service.now = fixedNow("2026-03-10")

	snapshots, err := service.GetDailySummary(context.Background(), "2026-03-10")
	require.NoError(t, err)
	require.Len(t, snapshots, 1)

	snapshot := snapshots[0]
	assert.Equal(t, "Broker A", snapshot.AccountName)
	assert.Equal(t, "2026-03-10", snapshot.AsOfDate)
	require.Len(t, snapshot.Positions, 2)

	// AAPL: net 6 shares at stored close 110, fees 3.00 -> 6*110-3 = 657.00
	aapl := snapshot.Positions[0]
	assert.Equal(t, "AAPL", aapl.Symbol)
	assert.Equal(t, "6", aapl.Quantity.String())
	assert.Equal(t, "110", aapl.ClosePrice.String())
	assert.True(t, aapl.MarketValue.Equal(decimal.RequireFromString("657")))

	// MSFT: no stored close, live quote 210 -> 2*210 = 420.00
	msft := snapshot.Positions[1]
	assert.Equal(t, "MSFT", msft.Symbol)
	assert.Equal(t, "210", msft.ClosePrice.String())
	assert.True(t, msft.MarketValue.Equal(decimal.RequireFromString("420")))

	assert.True(t, snapshot.TotalValue.Equal(decimal.RequireFromString("1077")))
}

func TestGetDailySummaryFallsBackToLastTradePrice(t *testing.T) {
	db := openTestDB(t)
	insertTestTransaction(t, db, "Broker A", "AAPL", "BUY", "10", "100", "0", "2026-03-01")
	insertTestTransaction(t, db, "Broker A", "AAPL", "BUY", "5", "120", "0", "2026-03-05")

	// No stored closes and the live lookup fails.
	service := NewPortfolioService(db, &fakeMarketPrice{})

	snapshots, err := service.GetDailySummary(context.Background(), "2026-03-10")
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	require.Len(t, snapshots[0].Positions, 1)
	assert.Equal(t, "120", snapshots[0].Positions[0].ClosePrice.String(), "last trade price is the final fallback")
}

func TestGetDailySummaryExcludesClosedPositions(t *testing.T) {
	db := openTestDB(t)
	insertTestTransaction(t, db, "Broker A", "AAPL", "BUY", "10", "100", "0", "2026-03-01")
	insertTestTransaction(t, db, "Broker A", "AAPL", "SELL", "10", "105", "0", "2026-03-05")

	service := NewPortfolioService(db, &fakeMarketPrice{})

	snapshots, err := service.GetDailySummary(context.Background(), "2026-03-10")
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	assert.Empty(t, snapshots[0].Positions)
	assert.True(t, snapshots[0].TotalValue.IsZero())
}

func TestGetDailySummaryRejectsInvalidDate(t *testing.T) {
	db := openTestDB(t)
	service := NewPortfolioService(db, &fakeMarketPrice{})

	_, err := service.GetDailySummary(context.Background(), "10-03-2026")
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestGetPerformanceForwardFillsStoredCloses(t *testing.T) {
	db := openTestDB(t)
	insertTestTransaction(t, db, "Broker A", "AAPL", "BUY", "10", "100", "2", "2026-03-01")
	insertTestPrice(t, db, "AAPL", "2026-03-02", "101")
	insertTestPrice(t, db, "AAPL", "2026-03-05", "104")

	service := NewPortfolioService(db, &fakeMarketPrice{})

	points, err := service.GetPerformance(context.Background(), "", "2026-03-01", "2026-03-06")
	require.NoError(t, err)
	require.Len(t, points, 6)

	// Day 1: no stored close yet, last trade price 100 -> 10*100-2 = 998
	assert.Equal(t, "2026-03-01", points[0].Date)
	assert.True(t, points[0].TotalValue.Equal(decimal.RequireFromString("998")))
	// Days 2-4: close 101 forward-filled -> 10*101-2 = 1008
	for _, point := range points[1:4] {
		assert.True(t, point.TotalValue.Equal(decimal.RequireFromString("1008")), "day %s", point.Date)
	}
	// Days 5-6: close 104 -> 10*104-2 = 1038
	for _, point := range points[4:] {
		assert.True(t, point.TotalValue.Equal(decimal.RequireFromString("1038")), "day %s", point.Date)
	}
}

func TestGetPerformanceCursorIsStartIndependent(t *testing.T) {
	db := openTestDB(t)
	insertTestTransaction(t, db, "Broker A", "AAPL", "BUY", "3", "100", "0", "2026-03-01")
	insertTestTransaction(t, db, "Broker A", "MSFT", "BUY", "2", "200", "1", "2026-03-03")
	insertTestTransaction(t, db, "Broker A", "AAPL", "SELL", "1", "108", "1", "2026-03-06")
	insertTestPrice(t, db, "AAPL", "2026-03-02", "101")
	insertTestPrice(t, db, "AAPL", "2026-03-05", "104")
	insertTestPrice(t, db, "MSFT", "2026-03-04", "205")

	service := NewPortfolioService(db, &fakeMarketPrice{})

	wide, err := service.GetPerformance(context.Background(), "", "2026-03-01", "2026-03-08")
	require.NoError(t, err)
	narrow, err := service.GetPerformance(context.Background(), "", "2026-03-04", "2026-03-08")
	require.NoError(t, err)

	require.Len(t, wide, 8)
	require.Len(t, narrow, 5)
	for i, point := range narrow {
		expected := wide[i+3]
		assert.Equal(t, expected.Date, point.Date)
		assert.True(t, expected.TotalValue.Equal(point.TotalValue),
			"day %s: wide %s vs narrow %s", point.Date, expected.TotalValue, point.TotalValue)
		assert.Equal(t, expected.Stocks, point.Stocks)
	}
}

func TestGetPerformanceTotalEqualsSumOfAccounts(t *testing.T) {
	db := openTestDB(t)
	insertTestTransaction(t, db, "Broker A", "AAPL", "BUY", "10", "100", "1", "2026-03-01")
	insertTestTransaction(t, db, "Broker B", "AAPL", "BUY", "4", "102", "1", "2026-03-02")
	insertTestPrice(t, db, "AAPL", "2026-03-03", "105")

	service := NewPortfolioService(db, &fakeMarketPrice{})

	total, err := service.GetPerformance(context.Background(), "TOTAL", "2026-03-01", "2026-03-05")
	require.NoError(t, err)
	accountA, err := service.GetPerformance(context.Background(), "Broker A", "2026-03-01", "2026-03-05")
	require.NoError(t, err)
	accountB, err := service.GetPerformance(context.Background(), "Broker B", "2026-03-01", "2026-03-05")
	require.NoError(t, err)

	require.Len(t, total, 5)
	for i := range total {
		sum := accountA[i].TotalValue.Add(accountB[i].TotalValue)
		assert.True(t, total[i].TotalValue.Equal(sum),
			"day %s: total %s vs sum %s", total[i].Date, total[i].TotalValue, sum)
	}
}

func TestGetPerformanceRoundsToTwoDecimals(t *testing.T) {
	db := openTestDB(t)
	insertTestTransaction(t, db, "Broker A", "AAPL", "BUY", "3", "33.333", "0.01", "2026-03-01")
	insertTestPrice(t, db, "AAPL", "2026-03-02", "33.335")

	service := NewPortfolioService(db, &fakeMarketPrice{})

	points, err := service.GetPerformance(context.Background(), "", "2026-03-02", "2026-03-02")
	require.NoError(t, err)
	require.Len(t, points, 1)

	// 3 * 33.335 - 0.01 = 99.995 -> 100.00 half-up
	assert.Equal(t, "100", points[0].TotalValue.String())
	assert.True(t, points[0].TotalValue.Equal(decimal.RequireFromString("100.00")))
}

func TestGetPerformanceValidation(t *testing.T) {
	db := openTestDB(t)
	service := NewPortfolioService(db, &fakeMarketPrice{})

	t.Run("start after end rejected", func(t *testing.T) {
		_, err := service.GetPerformance(context.Background(), "", "2026-02-16", "2026-01-01")
		assert.ErrorIs(t, err, ErrInvalidDateRange)
	})

	t.Run("no transactions yields empty result", func(t *testing.T) {
		points, err := service.GetPerformance(context.Background(), "", "2026-01-01", "2026-01-05")
		require.NoError(t, err)
		assert.Empty(t, points)
	})

	t.Run("unknown account yields empty result", func(t *testing.T) {
		insertTestTransaction(t, db, "Broker A", "AAPL", "BUY", "1", "100", "0", "2026-03-01")
		points, err := service.GetPerformance(context.Background(), "Nobody", "2026-03-01", "2026-03-02")
		require.NoError(t, err)
		assert.Empty(t, points)
	})
}
