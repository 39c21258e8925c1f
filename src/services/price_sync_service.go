package services

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/temadison/stockdash/backend/src/logger"
	"github.com/temadison/stockdash/backend/src/models"
	"github.com/temadison/stockdash/backend/src/pricing"
)

// Per-symbol sync statuses reported in PriceSyncResult.StatusBySymbol.
const (
	SyncStatusStored            = "stored"
	SyncStatusNoNewRows         = "no_new_rows"
	SyncStatusAlreadyUpToDate   = "already_up_to_date"
	SyncStatusLocalFallback     = "local_fallback_stored"
	SyncStatusNoPurchaseHistory = "no_purchase_history"
)

// PriceSyncService orchestrates incremental price backfill: it decides per
// symbol whether a fetch is needed, invokes the fetcher (substituting the
// local fallback generator on qualifying failures), filters against already
// stored rows, and persists the remainder idempotently.
type PriceSyncService struct {
	db              *sql.DB
	fetcher         SeriesFetcher
	fallback        FallbackSeriesGenerator
	fallbackEnabled bool
	lookbackDays    int

	// Lazily populated per-symbol locks; entries are never removed.
	symbolLocks sync.Map

	now func() time.Time
}

func NewPriceSyncService(db *sql.DB, fetcher SeriesFetcher, fallback FallbackSeriesGenerator, fallbackEnabled bool, lookbackDays int) *PriceSyncService {
	return &PriceSyncService{
		db:              db,
		fetcher:         fetcher,
		fallback:        fallback,
		fallbackEnabled: fallbackEnabled,
		lookbackDays:    lookbackDays,
		now:             time.Now,
	}
}

func (s *PriceSyncService) lockFor(symbol string) *sync.Mutex {
	lock, _ := s.symbolLocks.LoadOrStore(symbol, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// SyncForStocks synchronizes daily close prices for the given symbols.
// Symbols with no BUY history are skipped; per-symbol failures are reported
// as statuses so one bad symbol never aborts the rest.
func (s *PriceSyncService) SyncForStocks(ctx context.Context, symbols []string) (models.PriceSyncResult, error) {
	result := models.PriceSyncResult{
		StoredBySymbol: make(map[string]int),
		StatusBySymbol: make(map[string]string),
		SkippedSymbols: []string{},
	}

	canonical := normalizeSymbolSet(symbols)
	if len(canonical) == 0 {
		return result, ErrNoSymbols
	}
	result.SymbolsRequested = len(canonical)

	firstBuyDates, err := s.resolveFirstBuyDates(canonical)
	if err != nil {
		return result, err
	}

	for _, symbol := range canonical {
		firstBuy, ok := firstBuyDates[symbol]
		if !ok {
			result.SkippedSymbols = append(result.SkippedSymbols, symbol)
			result.StatusBySymbol[symbol] = SyncStatusNoPurchaseHistory
			continue
		}
		result.SymbolsWithPurchases++

		stored, status, err := s.syncSymbol(ctx, symbol, firstBuy)
		if err != nil {
			logger.L.Error("Price sync failed for symbol", "symbol", symbol, "error", err)
			result.StatusBySymbol[symbol] = strings.ToLower(string(pricing.StatusAPIError))
			continue
		}
		result.StoredBySymbol[symbol] = stored
		result.StatusBySymbol[symbol] = status
		result.PricesStored += stored
	}

	logger.L.Info("Price sync completed",
		"requested", result.SymbolsRequested,
		"with_purchases", result.SymbolsWithPurchases,
		"stored", result.PricesStored,
		"skipped", len(result.SkippedSymbols))
	return result, nil
}

// normalizeSymbolSet canonicalizes, de-duplicates, and sorts the input,
// dropping blanks.
func normalizeSymbolSet(symbols []string) []string {
	seen := make(map[string]bool)
	var canonical []string
	for _, raw := range symbols {
		symbol := pricing.Normalize(raw)
		if symbol == "" || seen[symbol] {
			continue
		}
		seen[symbol] = true
		canonical = append(canonical, symbol)
	}
	sort.Strings(canonical)
	return canonical
}

// resolveFirstBuyDates maps each canonical symbol to its earliest BUY date,
// looking up the canonical spelling and every known alias so trades recorded
// before normalization still count.
func (s *PriceSyncService) resolveFirstBuyDates(canonical []string) (map[string]string, error) {
	var candidates []string
	for _, symbol := range canonical {
		candidates = append(candidates, pricing.LookupCandidates(symbol)...)
	}
	buys, err := models.GetBuyTransactionsBySymbols(s.db, candidates)
	if err != nil {
		return nil, err
	}
	firstBuy := make(map[string]string)
	for _, buy := range buys {
		symbol := pricing.Normalize(buy.Symbol)
		if existing, ok := firstBuy[symbol]; !ok || buy.TradeDate < existing {
			firstBuy[symbol] = buy.TradeDate
		}
	}
	return firstBuy, nil
}

// syncSymbol runs steps (a)-(e) for one symbol under its exclusive lock.
func (s *PriceSyncService) syncSymbol(ctx context.Context, symbol, firstBuy string) (int, string, error) {
	lock := s.lockFor(symbol)
	lock.Lock()
	defer lock.Unlock()

	yesterday := s.now().AddDate(0, 0, -1).Format(dateLayout)
	latest, hasStored, err := models.GetLatestPriceDate(s.db, symbol)
	if err != nil {
		return 0, "", err
	}
	if hasStored && latest >= yesterday {
		return 0, SyncStatusAlreadyUpToDate, nil
	}

	series, usedFallback, failureStatus, err := s.obtainSeries(ctx, symbol, firstBuy)
	if err != nil {
		return 0, "", err
	}
	if failureStatus != "" {
		return 0, failureStatus, nil
	}

	resumePoint := firstBuy
	if hasStored {
		resumePoint = latest
	}
	rows, err := s.filterNewRows(symbol, series, firstBuy, resumePoint)
	if err != nil {
		return 0, "", err
	}
	if len(rows) == 0 {
		return 0, SyncStatusNoNewRows, nil
	}

	stored, err := s.persistRows(symbol, rows)
	if err != nil {
		return 0, "", err
	}
	if stored == 0 {
		return 0, SyncStatusNoNewRows, nil
	}
	if usedFallback {
		return stored, SyncStatusLocalFallback, nil
	}
	return stored, SyncStatusStored, nil
}

// obtainSeries fetches the external series, substituting the local fallback
// generator on retryable-class failures. A non-empty failureStatus means the
// symbol is done with that status and nothing to persist.
func (s *PriceSyncService) obtainSeries(ctx context.Context, symbol, firstBuy string) (series map[string]models.DailyClosePrice, usedFallback bool, failureStatus string, err error) {
	fetched := s.fetcher.FetchDailyCloseSeries(ctx, symbol)

	raw := fetched.Series
	switch {
	case fetched.Status == pricing.StatusSuccess && len(raw) > 0:
		// use fetched series as-is
	case fetched.Status.Retryable() && s.fallbackEnabled:
		generated, genErr := s.fallback.GenerateSeries(symbol, firstBuy, s.lookbackDays)
		if genErr != nil {
			return nil, false, "", genErr
		}
		if len(generated) == 0 {
			return nil, false, strings.ToLower(string(fetched.Status)), nil
		}
		raw = generated
		usedFallback = true
		logger.L.Info("Substituting local fallback series", "symbol", symbol,
			"fetch_status", string(fetched.Status), "days", len(generated))
	case fetched.Status == pricing.StatusSuccess:
		// An empty SUCCESS carries no usable data.
		return nil, false, strings.ToLower(string(pricing.StatusNoData)), nil
	default:
		return nil, false, strings.ToLower(string(fetched.Status)), nil
	}

	series = make(map[string]models.DailyClosePrice, len(raw))
	for date, price := range raw {
		series[date] = models.DailyClosePrice{Symbol: symbol, PriceDate: date, ClosePrice: price}
	}
	return series, usedFallback, "", nil
}

// filterNewRows keeps only dates strictly after the first purchase and the
// resume point that are not already stored, sorted ascending by date.
func (s *PriceSyncService) filterNewRows(symbol string, series map[string]models.DailyClosePrice, firstBuy, resumePoint string) ([]models.DailyClosePrice, error) {
	existing, err := models.GetPriceDatesAfter(s.db, symbol, resumePoint)
	if err != nil {
		return nil, err
	}
	var rows []models.DailyClosePrice
	for date, row := range series {
		if date <= firstBuy || date <= resumePoint || existing[date] {
			continue
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].PriceDate < rows[j].PriceDate })
	return rows, nil
}

// persistRows inserts the batch in one transaction; on a uniqueness collision
// it retries row-by-row, silently dropping duplicates from a concurrent sync.
func (s *PriceSyncService) persistRows(symbol string, rows []models.DailyClosePrice) (int, error) {
	err := models.InsertPriceBatch(s.db, rows)
	if err == nil {
		return len(rows), nil
	}
	if !errors.Is(err, models.ErrDuplicatePrice) {
		return 0, err
	}

	logger.L.Warn("Batch insert hit duplicate price row, retrying row by row", "symbol", symbol)
	stored := 0
	for _, row := range rows {
		switch insertErr := models.InsertPrice(s.db, row); {
		case insertErr == nil:
			stored++
		case errors.Is(insertErr, models.ErrDuplicatePrice):
			// benign race with a concurrent sync
		default:
			return stored, insertErr
		}
	}
	return stored, nil
}
