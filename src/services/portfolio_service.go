package services

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/temadison/stockdash/backend/src/models"
)

// TotalAccountFilter selects every account in the performance view.
const TotalAccountFilter = "TOTAL"

// PortfolioService reconstructs positions and valuations by replaying the
// trade ledger forward against the stored price series.
type PortfolioService struct {
	db          *sql.DB
	marketPrice MarketPriceLookup
	now         func() time.Time
}

func NewPortfolioService(db *sql.DB, marketPrice MarketPriceLookup) *PortfolioService {
	return &PortfolioService{db: db, marketPrice: marketPrice, now: time.Now}
}

// position is the running replay state for one (scope, symbol).
type position struct {
	netQuantity decimal.Decimal
	fees        decimal.Decimal
	lastPrice   decimal.Decimal
}

func (p *position) apply(t models.Transaction) {
	if t.Side == models.SideSell {
		p.netQuantity = p.netQuantity.Sub(t.Quantity)
	} else {
		p.netQuantity = p.netQuantity.Add(t.Quantity)
	}
	p.fees = p.fees.Add(t.Fee)
	p.lastPrice = t.Price
}

func (p *position) marketValue(closePrice decimal.Decimal) decimal.Decimal {
	return p.netQuantity.Mul(closePrice).Sub(p.fees).Round(2)
}

// GetDailySummary values every account's open positions as of one day.
// A blank date defaults to today.
func (s *PortfolioService) GetDailySummary(ctx context.Context, asOfDate string) ([]models.PortfolioSnapshot, error) {
	if asOfDate == "" {
		asOfDate = s.now().Format(dateLayout)
	}
	if _, err := time.Parse(dateLayout, asOfDate); err != nil {
		return nil, ErrInvalidDate
	}

	transactions, err := models.GetTransactionsThrough(s.db, asOfDate)
	if err != nil {
		return nil, err
	}

	positions := make(map[string]map[string]*position) // account -> symbol -> state
	for _, t := range transactions {
		bySymbol, ok := positions[t.AccountName]
		if !ok {
			bySymbol = make(map[string]*position)
			positions[t.AccountName] = bySymbol
		}
		pos, ok := bySymbol[t.Symbol]
		if !ok {
			pos = &position{}
			bySymbol[t.Symbol] = pos
		}
		pos.apply(t)
	}

	snapshots := []models.PortfolioSnapshot{}
	for accountName, bySymbol := range positions {
		snapshot := models.PortfolioSnapshot{
			AccountName: accountName,
			AsOfDate:    asOfDate,
			TotalValue:  decimal.Zero,
			Positions:   []models.PositionValue{},
		}
		for symbol, pos := range bySymbol {
			if !pos.netQuantity.IsPositive() {
				continue
			}
			closePrice, err := s.resolveDailyPrice(ctx, symbol, asOfDate, pos.lastPrice)
			if err != nil {
				return nil, err
			}
			value := pos.marketValue(closePrice)
			snapshot.Positions = append(snapshot.Positions, models.PositionValue{
				Symbol:      symbol,
				Quantity:    pos.netQuantity,
				ClosePrice:  closePrice,
				MarketValue: value,
			})
			snapshot.TotalValue = snapshot.TotalValue.Add(value)
		}
		snapshot.TotalValue = snapshot.TotalValue.Round(2)
		sort.Slice(snapshot.Positions, func(i, j int) bool {
			return snapshot.Positions[i].Symbol < snapshot.Positions[j].Symbol
		})
		snapshots = append(snapshots, snapshot)
	}
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].AccountName < snapshots[j].AccountName
	})
	return snapshots, nil
}

// resolveDailyPrice applies the daily-summary price ladder: newest stored
// close at or before the day, else a live quote, else the last trade price.
// The stale last-trade fallback is deliberate so a valuation always renders.
func (s *PortfolioService) resolveDailyPrice(ctx context.Context, symbol, asOfDate string, lastTradePrice decimal.Decimal) (decimal.Decimal, error) {
	stored, found, err := models.GetLatestCloseOnOrBefore(s.db, symbol, asOfDate)
	if err != nil {
		return decimal.Zero, err
	}
	if found {
		return stored, nil
	}
	if s.marketPrice != nil {
		if live, ok := s.marketPrice.GetLivePrice(ctx, symbol); ok {
			return live, nil
		}
	}
	return lastTradePrice, nil
}

// GetPerformance replays the ledger day by day over [startDate, endDate] and
// emits one aggregate value point per day. A blank or "TOTAL" account filter
// includes every account; blank dates default to the first trade date and
// today respectively.
func (s *PortfolioService) GetPerformance(ctx context.Context, accountFilter, startDate, endDate string) ([]models.PerformancePoint, error) {
	if endDate == "" {
		endDate = s.now().Format(dateLayout)
	}
	end, err := time.Parse(dateLayout, endDate)
	if err != nil {
		return nil, ErrInvalidDate
	}
	if startDate != "" {
		if _, err := time.Parse(dateLayout, startDate); err != nil {
			return nil, ErrInvalidDate
		}
		if startDate > endDate {
			return nil, ErrInvalidDateRange
		}
	}

	transactions, err := models.GetTransactionsThrough(s.db, endDate)
	if err != nil {
		return nil, err
	}
	transactions = filterByAccount(transactions, accountFilter)
	if len(transactions) == 0 {
		return []models.PerformancePoint{}, nil
	}

	if startDate == "" {
		startDate = transactions[0].TradeDate
	}
	start, err := time.Parse(dateLayout, startDate)
	if err != nil {
		return nil, ErrInvalidDate
	}

	cursors, err := s.loadPriceCursors(transactions, endDate)
	if err != nil {
		return nil, err
	}

	positions := make(map[string]*position) // symbol -> state across the scope
	txIdx := 0

	points := []models.PerformancePoint{}
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		dayStr := day.Format(dateLayout)

		for txIdx < len(transactions) && transactions[txIdx].TradeDate <= dayStr {
			t := transactions[txIdx]
			pos, ok := positions[t.Symbol]
			if !ok {
				pos = &position{}
				positions[t.Symbol] = pos
			}
			pos.apply(t)
			txIdx++
		}

		point := models.PerformancePoint{
			Date:       dayStr,
			TotalValue: decimal.Zero,
			Stocks:     []models.StockPerformanceValue{},
		}
		for symbol, pos := range positions {
			if !pos.netQuantity.IsPositive() {
				continue
			}
			closePrice := pos.lastPrice
			if cursor := cursors[symbol]; cursor != nil {
				if stored, ok := cursor.priceOn(dayStr); ok {
					closePrice = stored
				}
			}
			value := pos.marketValue(closePrice)
			point.Stocks = append(point.Stocks, models.StockPerformanceValue{
				Symbol:      symbol,
				MarketValue: value,
			})
			point.TotalValue = point.TotalValue.Add(value)
		}
		point.TotalValue = point.TotalValue.Round(2)
		sort.Slice(point.Stocks, func(i, j int) bool {
			return point.Stocks[i].Symbol < point.Stocks[j].Symbol
		})
		points = append(points, point)
	}
	return points, nil
}

func filterByAccount(transactions []models.Transaction, accountFilter string) []models.Transaction {
	accountFilter = strings.TrimSpace(accountFilter)
	if accountFilter == "" || strings.EqualFold(accountFilter, TotalAccountFilter) {
		return transactions
	}
	filtered := transactions[:0:0]
	for _, t := range transactions {
		if strings.EqualFold(t.AccountName, accountFilter) {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

// priceCursor walks a pre-sorted ascending close series forward. Because the
// day loop only moves forward, each stored row is visited at most once over
// the whole replay.
type priceCursor struct {
	closes []models.DailyClosePrice
	idx    int
	last   decimal.Decimal
	found  bool
}

// priceOn advances past every close dated at or before day and returns the
// forward-filled price.
func (c *priceCursor) priceOn(day string) (decimal.Decimal, bool) {
	for c.idx < len(c.closes) && c.closes[c.idx].PriceDate <= day {
		c.last = c.closes[c.idx].ClosePrice
		c.found = true
		c.idx++
	}
	return c.last, c.found
}

func (s *PortfolioService) loadPriceCursors(transactions []models.Transaction, endDate string) (map[string]*priceCursor, error) {
	cursors := make(map[string]*priceCursor)
	for _, t := range transactions {
		if _, ok := cursors[t.Symbol]; ok {
			continue
		}
		closes, err := models.GetClosesThrough(s.db, t.Symbol, endDate)
		if err != nil {
			return nil, err
		}
		cursors[t.Symbol] = &priceCursor{closes: closes}
	}
	return cursors, nil
}
